package shell

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"ddp-dispatch/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// EntrypointName is the name the shell entrypoint is registered under.
const EntrypointName = "shell"

type shellEntrypoint struct {
	logger *slog.Logger
	tracer trace.Tracer
}

// NewEntrypoint returns a training function that runs a command with the
// rendezvous variables in its environment. The command is the "command"
// kwarg, run by bash; without it the positional args are the argv.
func NewEntrypoint(logger *slog.Logger) domain.TrainFunc {
	e := &shellEntrypoint{
		logger: logger.With("entrypoint", EntrypointName),
		tracer: otel.Tracer("ddp-dispatch-shell-entrypoint"),
	}
	return e.Run
}

// Run executes the command and returns its standard output.
func (e *shellEntrypoint) Run(ctx context.Context, call domain.Call) (any, error) {
	argv, err := commandLine(call)
	if err != nil {
		return nil, err
	}

	ctx, span := e.tracer.Start(ctx, "entrypoint.shell.Run",
		trace.WithAttributes(attribute.StringSlice("shell.argv", argv)))
	defer span.End()

	e.logger.Info("executing training command", "argv", argv)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(), call.Env...)
	if dir, ok := call.Kwargs["dir"].(string); ok {
		cmd.Dir = dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	output := stdout.String()
	if errOutput := stderr.String(); errOutput != "" {
		span.SetAttributes(attribute.String("shell.stderr", errOutput))
		if err != nil {
			// Prepend stderr to the error for visibility
			err = fmt.Errorf("%w: %s", err, errOutput)
		}
	}

	if err != nil {
		span.SetStatus(codes.Error, "training command failed")
		span.RecordError(err)
		return output, fmt.Errorf("training command failed: %w", err)
	}

	e.logger.Info("training command finished")
	return output, nil
}

func commandLine(call domain.Call) ([]string, error) {
	if c, ok := call.Kwargs["command"]; ok {
		s, ok := c.(string)
		if !ok || s == "" {
			return nil, fmt.Errorf("command kwarg must be a non-empty string, got %T", c)
		}
		return []string{"bash", "-c", s}, nil
	}
	if len(call.Args) == 0 {
		return nil, fmt.Errorf("no command given: pass a command kwarg or the argv as args")
	}
	argv := make([]string, len(call.Args))
	for i, a := range call.Args {
		argv[i] = fmt.Sprint(a)
	}
	return argv, nil
}
