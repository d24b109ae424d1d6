package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"

	"github.com/Zhima-Mochi/minishop-orders/internal/domain"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
)

const maxErrorBody = 512

// Config addresses one downstream service.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// jsonClient posts JSON to a single peer with tracing, metrics and a breaker.
type jsonClient struct {
	peer         string
	baseURL      string
	http         *http.Client
	breaker      *gobreaker.CircuitBreaker
	tracer       observability.Tracer
	logger       observability.Logger
	extCounter   observability.Counter
	extHistogram observability.Histogram
}

func newJSONClient(peer string, cfg Config, tel observability.Observability) *jsonClient {
	if tel == nil {
		tel = observability.Nop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	logger := tel.Logger().With(observability.F("peer", peer))
	return &jsonClient{
		peer:         peer,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		http:         &http.Client{Timeout: cfg.Timeout},
		breaker:      newBreaker(peer, logger),
		tracer:       tel.Tracer(),
		logger:       logger,
		extCounter:   tel.Metrics().Counter(observability.MExternalRequests),
		extHistogram: tel.Metrics().Histogram(observability.MExternalRequestDuration),
	}
}

type response struct {
	status int
	body   []byte
}

// post sends body to path and returns the response when the status is
// accepted. Transport failures, 429 and 5xx wrap ErrDependencyUnavailable; any
// other rejected status wraps ErrValidation.
func (c *jsonClient) post(ctx context.Context, endpoint, path string, body any, header http.Header, accept ...int) (_ response, err error) {
	ctx, span := c.tracer.Start(ctx, "HTTP POST "+path,
		attribute.String("peer.service", c.peer),
		attribute.String("http.request.method", http.MethodPost),
		attribute.String("url.path", path),
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
		c.extCounter.Add(1,
			observability.L("peer", c.peer),
			observability.L("endpoint", endpoint),
			observability.L("outcome", outcome),
		)
		c.extHistogram.Observe(time.Since(start).Seconds(),
			observability.L("peer", c.peer),
			observability.L("endpoint", endpoint),
		)
		span.End()
	}()

	payload, err := json.Marshal(body)
	if err != nil {
		return response{}, fmt.Errorf("%s: encode request: %w", c.peer, err)
	}

	return executeWithBreaker(c.breaker, func() (response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return response{}, fmt.Errorf("%s: build request: %w", c.peer, err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

		resp, err := c.http.Do(req)
		if err != nil {
			return response{}, fmt.Errorf("%w: %s: %w", domain.ErrDependencyUnavailable, c.peer, err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return response{}, fmt.Errorf("%w: %s: read body: %w", domain.ErrDependencyUnavailable, c.peer, err)
		}
		span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

		for _, code := range accept {
			if resp.StatusCode == code {
				return response{status: resp.StatusCode, body: raw}, nil
			}
		}
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			return response{}, fmt.Errorf("%w: %s answered %d: %s",
				domain.ErrDependencyUnavailable, c.peer, resp.StatusCode, truncate(raw))
		}
		return response{}, fmt.Errorf("%w: %s answered %d: %s",
			domain.ErrValidation, c.peer, resp.StatusCode, truncate(raw))
	})
}

// envelope is the response body every minishop service returns.
type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

func decodeEnvelope(raw []byte) (envelope, error) {
	var env envelope
	if len(bytes.TrimSpace(raw)) == 0 {
		return env, nil
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, fmt.Errorf("decode response: %w", err)
	}
	return env, nil
}

func truncate(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}
