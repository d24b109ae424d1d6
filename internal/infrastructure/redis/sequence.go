package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Zhima-Mochi/minishop-orders/internal/domain/sequence"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
)

const (
	DefaultSequenceKey = "SEQUENCE"

	peerRedis        = "redis"
	endpointSequence = "sequence.next"
)

// Sequence issues order codes from a Redis hash: one field per prefix,
// incremented with HINCRBY so concurrent callers never share a value.
type Sequence struct {
	client       goredis.Cmdable
	key          string
	tracer       observability.Tracer
	extCounter   observability.Counter
	extHistogram observability.Histogram
}

var _ sequence.Generator = (*Sequence)(nil)

func NewSequence(client goredis.Cmdable, key string, tel observability.Observability) *Sequence {
	if key == "" {
		key = DefaultSequenceKey
	}
	if tel == nil {
		tel = observability.Nop()
	}
	return &Sequence{
		client:       client,
		key:          key,
		tracer:       tel.Tracer(),
		extCounter:   tel.Metrics().Counter(observability.MExternalRequests),
		extHistogram: tel.Metrics().Histogram(observability.MExternalRequestDuration),
	}
}

func (s *Sequence) Next(ctx context.Context, prefix string) (_ string, err error) {
	if prefix == "" {
		return "", sequence.ErrPrefixMissing
	}

	ctx, span := s.tracer.Start(ctx, "Redis.HINCRBY",
		attribute.String("peer.service", peerRedis),
		attribute.String("sequence.prefix", prefix),
	)
	start := time.Now()
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "OK")
		}
		s.extCounter.Add(1,
			observability.L("peer", peerRedis),
			observability.L("endpoint", endpointSequence),
			observability.L("outcome", outcome),
		)
		s.extHistogram.Observe(time.Since(start).Seconds(),
			observability.L("peer", peerRedis),
			observability.L("endpoint", endpointSequence),
		)
		span.End()
	}()

	n, err := s.client.HIncrBy(ctx, s.key, prefix, 1).Result()
	if err != nil {
		return "", fmt.Errorf("%w: hincrby %s %s: %w", sequence.ErrUnavailable, s.key, prefix, err)
	}
	return sequence.Format(prefix, n), nil
}
