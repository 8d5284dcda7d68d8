package connector

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/miktos/bridge/internal/common/config"
	"github.com/miktos/bridge/internal/common/logger"
	"github.com/miktos/bridge/internal/connector/docker"
)

// BlenderName is the connector name used in commands and status views.
const BlenderName = "blender"

// NewBlender builds the Blender connector from configuration. runner is only
// used when the launch mode is "docker" and may be nil otherwise.
func NewBlender(cfg config.ConnectorConfig, runner ContainerRunner, log *logger.Logger) *Tool {
	timing := DefaultConfig("Blender")
	if cfg.ProbeTimeout > 0 {
		timing.ProbeTimeout = cfg.ProbeTimeout
	}
	if cfg.SettleDelay > 0 {
		timing.SettleDelay = cfg.SettleDelay
	}
	if cfg.PollInterval > 0 {
		timing.PollInterval = cfg.PollInterval
	}
	if cfg.ConnectionTimeout > 0 {
		timing.ConnectionTimeout = cfg.ConnectionTimeout
	}
	if cfg.CommandTimeout > 0 {
		timing.CommandTimeout = cfg.CommandTimeout
	}

	var launcher Launcher
	switch cfg.LaunchMode {
	case "process":
		launcher = NewProcessLauncher(ResolveBlenderExecutable(cfg.Executable), BlenderArgs(cfg.ScriptPath), log)
	case "docker":
		if runner != nil {
			launcher = NewDockerLauncher(runner, docker.ContainerConfig{
				Name:  "miktos-blender",
				Image: cfg.DockerImage,
				Cmd:   append([]string{"blender"}, BlenderArgs("/addon/"+filepath.Base(cfg.ScriptPath))...),
				Mounts: []docker.MountConfig{{
					Source:   absOrSelf(filepath.Dir(cfg.ScriptPath)),
					Target:   "/addon",
					ReadOnly: true,
				}},
				Labels: map[string]string{"miktos.connector": BlenderName},
			}, log)
		}
	}

	dialer := NewWebsocketDialer(cfg.Host, cfg.Port)
	return NewTool(NewSession(BlenderName, timing, dialer, launcher, log))
}

// BlenderArgs returns the headless command line that loads the bridge addon.
func BlenderArgs(scriptPath string) []string {
	return []string{"--background", "--python", scriptPath}
}

// ResolveBlenderExecutable returns configured if it resolves on PATH or on
// disk, else the first well-known install location that exists, else configured.
func ResolveBlenderExecutable(configured string) string {
	if configured != "" {
		if p, err := exec.LookPath(configured); err == nil {
			return p
		}
	}
	for _, name := range []string{"blender", "Blender"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}

	var candidates []string
	switch runtime.GOOS {
	case "darwin":
		candidates = []string{
			"/Applications/Blender.app/Contents/MacOS/Blender",
			"/Applications/Blender.app/Contents/MacOS/blender",
		}
	case "windows":
		candidates = []string{
			`C:\Program Files\Blender Foundation\Blender\blender.exe`,
			`C:\Program Files (x86)\Blender Foundation\Blender\blender.exe`,
		}
	default:
		candidates = []string{"/usr/bin/blender", "/usr/local/bin/blender", "/opt/blender/blender"}
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return configured
}

func absOrSelf(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
