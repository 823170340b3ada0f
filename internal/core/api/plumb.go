package api

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/mario/internal/core/auth"
	"github.com/solatis/mario/internal/core/journal"
	"github.com/solatis/mario/internal/rules"
	"github.com/solatis/mario/internal/types"
)

// Plumb dispatches one message against the current rules.
// The journal is best effort: a failed insert is logged and the response
// carries no dispatch_id.
func (s *PlumberService) Plumb(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := DecodePlumbRequest(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	// Reject payloads over the limit before touching the engine
	if len(req.Message.Data) > s.maxMessageSize {
		return nil, status.Errorf(codes.InvalidArgument, "%v: %d bytes (limit %d)",
			types.ErrMessageTooLarge, len(req.Message.Data), s.maxMessageSize)
	}

	set, _, _ := s.snapshot()
	engine := s.engine
	if req.DryRun && !engine.DryRun() {
		engine = engine.With(rules.WithDryRun(true))
	}

	logger := s.logger.With().
		Str("key_id", string(auth.KeyIDFromContext(ctx))).
		Str("kind", req.Message.Kind.String()).
		Logger()

	res, dispatchErr := engine.Dispatch(ctx, req.Message, set.Compiled)

	var id types.DispatchID
	if s.recorder != nil && !req.DryRun {
		id, err = s.recorder.Record(ctx, req.Message, res, journal.SourceGRPC)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to journal dispatch")
		}
	}

	if dispatchErr != nil {
		logger.Error().Err(dispatchErr).Msg("Dispatch failed")
		return nil, statusFor(dispatchErr)
	}

	logger.Info().
		Bool("matched", res.Matched).
		Str("rule", res.RuleName).
		Bool("completed", res.Completed).
		Msg("Plumbed message")

	out, err := NewPlumbResponse(id, res).Encode()
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// statusFor maps dispatch errors to gRPC status codes.
func statusFor(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, types.ErrCapability):
		return status.Error(codes.Internal, err.Error())
	default:
		return status.Error(codes.Unknown, err.Error())
	}
}
