package llm

import (
	"context"

	"go.uber.org/zap"

	"github.com/threadline-ai/conversation-api/pkg/logger"
	"github.com/threadline-ai/conversation-api/pkg/metrics"
)

// Failover composes the primary and secondary providers. The primary is
// always attempted first; on any primary error the secondary is called
// exactly once with the configured fallback model, never the originally
// requested one. There are no further retries.
type Failover struct {
	primary       Client
	secondary     Client
	fallbackModel string
	logger        *logger.Logger
}

// NewFailover creates a failover orchestrator over the two providers.
func NewFailover(primary, secondary Client, fallbackModel string, log *logger.Logger) *Failover {
	return &Failover{
		primary:       primary,
		secondary:     secondary,
		fallbackModel: fallbackModel,
		logger:        log,
	}
}

// Primary returns the primary provider client.
func (f *Failover) Primary() Client {
	return f.primary
}

// Generate calls the primary provider, falling back to the secondary on
// any error.
func (f *Failover) Generate(ctx context.Context, messages []ChatMessage, model string) (*Result, error) {
	result, err := f.primary.Generate(ctx, messages, model)
	if err == nil {
		return result, nil
	}

	f.logger.Warn("primary provider failed, falling back",
		zap.String("primary", f.primary.Name()),
		zap.String("secondary", f.secondary.Name()),
		zap.Error(err),
	)
	metrics.FailoversTotal.WithLabelValues("generate").Inc()

	return f.secondary.Generate(ctx, messages, f.fallbackModel)
}

// GenerateStream opens a stream on the primary provider, falling back to
// the secondary if the primary stream cannot be established. It returns
// the model actually in use alongside the stream. A failure after the
// stream has been established is not recovered here: deltas already
// yielded to the caller cannot be replaced by a fallback, so mid-stream
// errors propagate through Recv.
func (f *Failover) GenerateStream(ctx context.Context, messages []ChatMessage, model string) (Stream, string, error) {
	stream, err := f.primary.GenerateStream(ctx, messages, model)
	if err == nil {
		return stream, model, nil
	}

	f.logger.Warn("primary provider stream failed, falling back",
		zap.String("primary", f.primary.Name()),
		zap.String("secondary", f.secondary.Name()),
		zap.Error(err),
	)
	metrics.FailoversTotal.WithLabelValues("stream").Inc()

	stream, err = f.secondary.GenerateStream(ctx, messages, f.fallbackModel)
	if err != nil {
		return nil, "", err
	}
	return stream, f.fallbackModel, nil
}
