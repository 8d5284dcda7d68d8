package bridge

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/miktos/bridge/internal/common/errors"
	"github.com/miktos/bridge/internal/common/logger"
	v1 "github.com/miktos/bridge/pkg/api/v1"
)

// handlerFunc executes one command kind.
type handlerFunc func(ctx context.Context, p params) (map[string]interface{}, error)

// Dispatcher maps every known command kind to its handler and converts
// every outcome into a Response.
type Dispatcher struct {
	handlers map[v1.CommandKind]handlerFunc
	logger   *logger.Logger
}

// NewDispatcher builds the handler table for b.
func NewDispatcher(b *Bridge, log *logger.Logger) *Dispatcher {
	h := &handlers{bridge: b}
	return &Dispatcher{
		handlers: map[v1.CommandKind]handlerFunc{
			v1.CommandGenerateTexture:    h.generateTexture,
			v1.CommandGenerateImage:      h.generateImage,
			v1.CommandApplyStyle:         h.applyStyle,
			v1.CommandExecuteWorkflow:    h.executeWorkflow,
			v1.CommandGetWorkflowStatus:  h.getWorkflowStatus,
			v1.CommandCancelWorkflow:     h.cancelWorkflow,
			v1.CommandGetSceneInfo:       h.getSceneInfo,
			v1.CommandApplyTexture:       h.applyTexture,
			v1.CommandCreatePrimitive:    h.createPrimitive,
			v1.CommandExecuteScript:      h.executeScript,
			v1.CommandGetSelectedObjects: h.getSelectedObjects,
			v1.CommandGetConnectorStatus: h.getConnectorStatus,
		},
		logger: log.WithComponent("dispatcher"),
	}
}

// Execute runs cmd. It never panics and never returns a partially filled
// response: either Result or Error is set.
func (d *Dispatcher) Execute(ctx context.Context, cmd v1.Command) v1.Response {
	start := time.Now()
	log := d.logger.WithFields(zap.String("command_id", cmd.ID), zap.String("command", cmd.Name))

	kind, ok := v1.ParseCommandKind(cmd.Name)
	if !ok {
		log.Warn("unknown command")
		return failure(cmd, apperrors.UnknownCommand(cmd.Name), start)
	}
	handler, ok := d.handlers[kind]
	if !ok {
		return failure(cmd, apperrors.UnknownCommand(cmd.Name), start)
	}

	log.Info("executing command")
	result, err := d.run(ctx, handler, params(cmd.Parameters))
	if err != nil {
		log.Error("command failed", zap.String("code", apperrors.Code(err)), zap.Error(err))
		return failure(cmd, err, start)
	}

	resp := respond(cmd, result, "", start)
	log.Info("command completed", zap.Int64("duration_ms", *resp.ExecutionDurationMs))
	return resp
}

func (d *Dispatcher) run(ctx context.Context, handler handlerFunc, p params) (result map[string]interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("command handler panicked",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			err = apperrors.InternalError(fmt.Sprintf("%v", r), nil)
		}
	}()
	if p == nil {
		p = params{}
	}
	return handler(ctx, p)
}
