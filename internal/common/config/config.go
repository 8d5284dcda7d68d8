// Package config provides configuration management for the Miktos bridge.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for the bridge.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Docker     DockerConfig     `mapstructure:"docker"`
	Generation GenerationConfig `mapstructure:"generation"`
	Connectors ConnectorsConfig `mapstructure:"connectors"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // in seconds
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// NATSConfig holds NATS messaging configuration. An empty URL selects the
// in-memory event bus.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// DockerConfig holds Docker client configuration.
type DockerConfig struct {
	Host       string `mapstructure:"host"`
	APIVersion string `mapstructure:"apiVersion"`
}

// GenerationConfig configures the AI-generation collaborator.
type GenerationConfig struct {
	// Mode is "comfyui" for a live ComfyUI server or "standalone" for the
	// local executor that needs no server.
	Mode           string  `mapstructure:"mode"`
	ComfyUIHost    string  `mapstructure:"comfyuiHost"`
	ComfyUIPort    int     `mapstructure:"comfyuiPort"`
	Timeout        int     `mapstructure:"timeout"` // in seconds
	OutputDir      string  `mapstructure:"outputDir"`
	Model          string  `mapstructure:"model"`
	DefaultSteps   int     `mapstructure:"defaultSteps"`
	DefaultCFG     float64 `mapstructure:"defaultCfg"`
	DefaultWidth   int     `mapstructure:"defaultWidth"`
	DefaultHeight  int     `mapstructure:"defaultHeight"`
	NegativePrompt string  `mapstructure:"negativePrompt"`
}

// ConnectorsConfig holds one section per external creative tool.
type ConnectorsConfig struct {
	Blender ConnectorConfig `mapstructure:"blender"`
}

// ConnectorConfig describes how to reach, and if needed launch, one external tool.
type ConnectorConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Executable string `mapstructure:"executable"`
	ScriptPath string `mapstructure:"scriptPath"`
	// LaunchMode is "process", "docker" or "none".
	LaunchMode  string `mapstructure:"launchMode"`
	DockerImage string `mapstructure:"dockerImage"`

	ProbeTimeout      time.Duration `mapstructure:"probeTimeout"`
	SettleDelay       time.Duration `mapstructure:"settleDelay"`
	PollInterval      time.Duration `mapstructure:"pollInterval"`
	ConnectionTimeout time.Duration `mapstructure:"connectionTimeout"`
	CommandTimeout    time.Duration `mapstructure:"commandTimeout"`
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// TimeoutDuration returns the generation request timeout as a time.Duration.
func (g *GenerationConfig) TimeoutDuration() time.Duration {
	return time.Duration(g.Timeout) * time.Second
}

// ComfyUIURL returns the base URL of the ComfyUI server.
func (g *GenerationConfig) ComfyUIURL() string {
	return fmt.Sprintf("http://%s:%d", g.ComfyUIHost, g.ComfyUIPort)
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 330)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")

	// empty URL means use in-memory event bus
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "miktos-bridge")
	v.SetDefault("nats.maxReconnects", 10)

	v.SetDefault("docker.host", "unix:///var/run/docker.sock")
	v.SetDefault("docker.apiVersion", "1.41")

	v.SetDefault("generation.mode", "comfyui")
	v.SetDefault("generation.comfyuiHost", "localhost")
	v.SetDefault("generation.comfyuiPort", 8188)
	v.SetDefault("generation.timeout", 300)
	v.SetDefault("generation.outputDir", "./output/textures")
	v.SetDefault("generation.model", "stable-diffusion-xl")
	v.SetDefault("generation.defaultSteps", 20)
	v.SetDefault("generation.defaultCfg", 7.0)
	v.SetDefault("generation.defaultWidth", 512)
	v.SetDefault("generation.defaultHeight", 512)
	v.SetDefault("generation.negativePrompt", "blurry, low quality, distorted")

	v.SetDefault("connectors.blender.enabled", true)
	v.SetDefault("connectors.blender.host", "localhost")
	v.SetDefault("connectors.blender.port", 9999)
	v.SetDefault("connectors.blender.executable", "blender")
	v.SetDefault("connectors.blender.scriptPath", "./blender_addon/miktos_bridge.py")
	v.SetDefault("connectors.blender.launchMode", "process")
	v.SetDefault("connectors.blender.dockerImage", "miktos/blender-addon:latest")
	v.SetDefault("connectors.blender.probeTimeout", 2*time.Second)
	v.SetDefault("connectors.blender.settleDelay", 5*time.Second)
	v.SetDefault("connectors.blender.pollInterval", time.Second)
	v.SetDefault("connectors.blender.connectionTimeout", 30*time.Second)
	v.SetDefault("connectors.blender.commandTimeout", 10*time.Second)
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix MIKTOS_ with dots replaced by underscores.
// Config file should be named config.yaml and placed in the current directory or /etc/miktos/.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("MIKTOS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv does not map camelCase keys to SNAKE_CASE env vars.
	_ = v.BindEnv("generation.comfyuiHost", "MIKTOS_COMFYUI_HOST")
	_ = v.BindEnv("generation.comfyuiPort", "MIKTOS_COMFYUI_PORT")
	_ = v.BindEnv("connectors.blender.executable", "MIKTOS_BLENDER_EXECUTABLE")
	_ = v.BindEnv("connectors.blender.port", "MIKTOS_BLENDER_PORT")

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/miktos/")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are set.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true, "console": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text, console")
	}

	switch cfg.Generation.Mode {
	case "comfyui", "standalone":
	default:
		errs = append(errs, "generation.mode must be one of: comfyui, standalone")
	}
	if cfg.Generation.Timeout <= 0 {
		errs = append(errs, "generation.timeout must be positive")
	}

	b := cfg.Connectors.Blender
	if b.Enabled {
		if b.Port <= 0 || b.Port > 65535 {
			errs = append(errs, "connectors.blender.port must be between 1 and 65535")
		}
		switch b.LaunchMode {
		case "process", "docker", "none":
		default:
			errs = append(errs, "connectors.blender.launchMode must be one of: process, docker, none")
		}
		if b.ConnectionTimeout <= 0 {
			errs = append(errs, "connectors.blender.connectionTimeout must be positive")
		}
		if b.CommandTimeout <= 0 {
			errs = append(errs, "connectors.blender.commandTimeout must be positive")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}
