package connector

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/miktos/bridge/internal/common/logger"
	"github.com/miktos/bridge/internal/connector/docker"
)

// Launcher starts an external tool whose listener is not reachable yet.
type Launcher interface {
	Launch(ctx context.Context) (Process, error)
}

// Process is a tool instance started by a Launcher.
type Process interface {
	Stop(ctx context.Context) error
	String() string
}

// ProcessLauncher starts the tool as a local subprocess.
type ProcessLauncher struct {
	Executable string
	Args       []string
	logger     *logger.Logger
}

// NewProcessLauncher creates a launcher for executable with args.
func NewProcessLauncher(executable string, args []string, log *logger.Logger) *ProcessLauncher {
	return &ProcessLauncher{
		Executable: executable,
		Args:       args,
		logger:     log.WithComponent("process-launcher"),
	}
}

// Launch starts the subprocess. The process outlives ctx; stop it with Process.Stop.
func (l *ProcessLauncher) Launch(ctx context.Context) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cmd := exec.Command(l.Executable, l.Args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", l.Executable, err)
	}

	p := &localProcess{cmd: cmd, exited: make(chan struct{})}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.exited)
		l.logger.Info("tool process exited",
			zap.Int("pid", cmd.Process.Pid),
			zap.Error(p.waitErr))
	}()

	l.logger.Info("tool process started",
		zap.String("executable", l.Executable),
		zap.Strings("args", l.Args),
		zap.Int("pid", cmd.Process.Pid))
	return p, nil
}

type localProcess struct {
	cmd      *exec.Cmd
	exited   chan struct{}
	waitErr  error
	stopOnce sync.Once
}

func (p *localProcess) Stop(ctx context.Context) error {
	var err error
	p.stopOnce.Do(func() {
		select {
		case <-p.exited:
			return
		default:
		}
		if err = p.cmd.Process.Kill(); err != nil {
			return
		}
		select {
		case <-p.exited:
		case <-ctx.Done():
			err = ctx.Err()
		}
	})
	return err
}

func (p *localProcess) String() string {
	return fmt.Sprintf("pid %d", p.cmd.Process.Pid)
}

// ContainerRunner is the part of the docker client a DockerLauncher needs.
type ContainerRunner interface {
	RunContainer(ctx context.Context, cfg docker.ContainerConfig) (string, error)
	StopContainer(ctx context.Context, containerID string, timeout time.Duration) error
	RemoveContainer(ctx context.Context, containerID string, force bool) error
}

// DockerLauncher starts the tool in a container on the host network so its
// listener port is reachable at the configured address.
type DockerLauncher struct {
	runner ContainerRunner
	config docker.ContainerConfig
	logger *logger.Logger
}

// NewDockerLauncher creates a launcher that runs cfg on every Launch.
func NewDockerLauncher(runner ContainerRunner, cfg docker.ContainerConfig, log *logger.Logger) *DockerLauncher {
	if cfg.NetworkMode == "" {
		cfg.NetworkMode = "host"
	}
	return &DockerLauncher{
		runner: runner,
		config: cfg,
		logger: log.WithComponent("docker-launcher"),
	}
}

// Launch runs the tool container.
func (l *DockerLauncher) Launch(ctx context.Context) (Process, error) {
	id, err := l.runner.RunContainer(ctx, l.config)
	if err != nil {
		return nil, err
	}
	return &containerProcess{runner: l.runner, id: id}, nil
}

type containerProcess struct {
	runner ContainerRunner
	id     string
}

func (p *containerProcess) Stop(ctx context.Context) error {
	if err := p.runner.StopContainer(ctx, p.id, 10*time.Second); err != nil {
		return err
	}
	return p.runner.RemoveContainer(ctx, p.id, true)
}

func (p *containerProcess) String() string {
	return "container " + p.id
}
