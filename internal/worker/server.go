package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"ddp-dispatch/internal/dispatch"
	"ddp-dispatch/internal/domain"
	"ddp-dispatch/internal/metrics"
	"ddp-dispatch/internal/rpc"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ProcessGroupFactory returns a fresh process group for one invocation.
type ProcessGroupFactory func() domain.ProcessGroup

// Server implements rpc.WorkerServer.
type Server struct {
	entrypoints  map[string]domain.TrainFunc
	processGroup ProcessGroupFactory
	baseEnv      []string
	workerID     string
	validate     *validator.Validate
	logger       *slog.Logger
	tracer       trace.Tracer
}

// NewServer creates the worker's Dispatch server. baseEnv holds KEY=VALUE
// pairs copied into every invocation's environment before the rendezvous
// variables are set.
func NewServer(entrypoints map[string]domain.TrainFunc, pg ProcessGroupFactory, baseEnv []string, workerID string, logger *slog.Logger) *Server {
	return &Server{
		entrypoints:  entrypoints,
		processGroup: pg,
		baseEnv:      baseEnv,
		workerID:     workerID,
		validate:     validator.New(),
		logger:       logger.With("component", "grpc-server"),
		tracer:       otel.Tracer("ddp-dispatch-worker"),
	}
}

// Dispatch runs one rank of a training run and returns the training function's result.
func (s *Server) Dispatch(ctx context.Context, req *structpb.Struct) (*structpb.Value, error) {
	ctx, span := s.tracer.Start(ctx, "worker.Dispatch")
	defer span.End()

	inv, err := rpc.InvocationFromProto(req)
	if err == nil {
		err = s.validate.Struct(inv)
	}
	if err != nil {
		s.logger.Error("invalid dispatch request", "error", err)
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "invalid dispatch request")
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	span.SetAttributes(
		attribute.String("worker.id", s.workerID),
		attribute.String("run.id", inv.RunID),
		attribute.String("entrypoint", inv.Entrypoint),
		attribute.Int("rank", inv.Rank),
		attribute.Int("world_size", inv.WorldSize),
		attribute.String("master.endpoint", inv.Rendezvous().Endpoint()),
	)
	logger := s.logger.With("run_id", inv.RunID, "entrypoint", inv.Entrypoint, "rank", inv.Rank, "world_size", inv.WorldSize)

	fn, ok := s.entrypoints[inv.Entrypoint]
	if !ok {
		err := fmt.Errorf("%w: %s", domain.ErrUnknownEntrypoint, inv.Entrypoint)
		logger.Error(err.Error())
		span.SetStatus(otelcodes.Error, "unknown entrypoint")
		return nil, status.Error(codes.NotFound, err.Error())
	}

	env := make(dispatch.Env, len(s.baseEnv)+4)
	for _, kv := range s.baseEnv {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}

	logger.Info("running training function", "master", inv.Rendezvous().Endpoint())
	result, err := dispatch.DispatchWithDDP(ctx, env, s.processGroup(), fn, inv)
	if err != nil {
		logger.Error("training function failed", "error", err)
		metrics.RankExecutionsTotal.WithLabelValues(inv.Entrypoint, "failed").Inc()
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "training function failed")
		return nil, toStatus(err)
	}
	metrics.RankExecutionsTotal.WithLabelValues(inv.Entrypoint, "success").Inc()
	span.SetStatus(otelcodes.Ok, "training function succeeded")
	logger.Info("training function finished")

	out, err := rpc.ResultToProto(result)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Unknown, err.Error())
	}
}
