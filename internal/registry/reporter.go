package registry

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/DoyleJ11/arena-sessions/internal/engine"
)

// Reporter delivers results best-effort. Failures are logged and swallowed.
type Reporter struct {
	client *Client
	logger *zap.Logger
}

func NewReporter(client *Client, logger *zap.Logger) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{client: client, logger: logger.Named("reporter")}
}

func (r *Reporter) Report(ctx context.Context, results engine.Results) {
	log := r.logger.With(
		zap.String("arenaId", results.ArenaID),
		zap.String("endReason", string(results.EndReason)),
	)

	err := r.client.Finalize(ctx, results)
	var se *StatusError
	switch {
	case err == nil:
		log.Info("results saved")
	case errors.Is(err, ErrNotConfigured):
		log.Error("registry configuration missing (url or secret)")
	case errors.As(err, &se):
		log.Error("registry rejected results", zap.Int("status", se.Code), zap.String("body", se.Body))
	default:
		log.Error("failed to save results", zap.Error(err))
	}
}
