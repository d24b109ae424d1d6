package httppresentation

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	appinventory "github.com/Zhima-Mochi/minishop-orders/internal/application/inventory"
	appinvoice "github.com/Zhima-Mochi/minishop-orders/internal/application/invoice"
	apporder "github.com/Zhima-Mochi/minishop-orders/internal/application/order"
	apppayment "github.com/Zhima-Mochi/minishop-orders/internal/application/payment"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability/logctx"
)

const (
	componentHTTPHandler = "http_server"
	headerRequestID      = "X-Request-ID"
	headerForwardedFor   = "X-Forwarded-For"
	tracerName           = "minishop.http"
)

// Services are the use cases exposed over HTTP. A nil service leaves its
// routes unregistered.
type Services struct {
	Orders    *apporder.Orchestrator
	Inventory *appinventory.Service
	Invoices  *appinvoice.Service
	Payments  *apppayment.Service
}

type Handler struct {
	svc      Services
	metrics  http.Handler
	validate *validator.Validate
	log      observability.Logger
	tel      observability.Observability
}

// NewHandler builds the HTTP surface. metrics, when set, is served unwrapped
// on /metrics.
func NewHandler(svc Services, metrics http.Handler, tel observability.Observability) *Handler {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Handler{
		svc:      svc,
		metrics:  metrics,
		validate: newValidator(),
		log:      tel.Logger().With(observability.F("component", componentHTTPHandler)),
		tel:      tel,
	}
}

func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	if h.svc.Orders != nil {
		h.route(mux, "POST /api/orders", h.handleCreateOrder)
		h.route(mux, "GET /api/orders", h.handleListOrders)
		h.route(mux, "GET /api/orders/{id}", h.handleGetOrder)
		h.route(mux, "PUT /api/orders/{id}", h.handleUpdateOrder)
		h.route(mux, "DELETE /api/orders/{id}", h.handleDeleteOrder)
	}
	if h.svc.Inventory != nil {
		h.route(mux, "POST /inventory/update", h.handleAdjustInventory)
		h.route(mux, "GET /inventory/{productId}", h.handleGetStock)
		h.route(mux, "PUT /inventory/{productId}", h.handleSetStock)
	}
	if h.svc.Invoices != nil {
		h.route(mux, "POST /invoices/create", h.handleCreateInvoice)
		h.route(mux, "GET /invoices", h.handleListInvoices)
		h.route(mux, "GET /invoices/{id}", h.handleGetInvoice)
		h.route(mux, "GET /reports", h.handleSalesReport)
		h.route(mux, "GET /reports/daily", h.handleDailyRevenue)
		h.route(mux, "GET /reports/monthly", h.handleMonthlyRevenue)
	}
	if h.svc.Payments != nil {
		h.route(mux, "POST /api/payments/vnpay", h.handleCreatePaymentURL)
		h.route(mux, "GET /api/payments/vnpay/return", h.handlePaymentReturn)
	}
	h.route(mux, "GET /health", h.handleHealth)
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics)
	}

	return mux
}

// route registers handler under pattern wrapped as
// Trace → request logger and metrics → access log → handler.
// The pattern doubles as the low-cardinality route label.
func (h *Handler) route(mux *http.ServeMux, pattern string, handler http.HandlerFunc) {
	wrapped := h.withTrace(
		ObservabilityMiddleware(h.log, h.tel)(
			h.withAccessLog(handler),
		),
	)
	mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped.ServeHTTP(w, r.WithContext(contextWithRoute(r.Context(), pattern)))
	}))
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, http.StatusOK, "ok", nil)
}

// withAccessLog writes a single access log after the handler completes.
// It relies on the request-scoped logger already injected by ObservabilityMiddleware.
func (h *Handler) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(lrw, r)

		logctx.FromOr(r.Context(), h.log).Info("http_access",
			observability.F("method", r.Method),
			observability.F("route", routeFromContext(r.Context())),
			observability.F("path", r.URL.Path),
			observability.F("status", lrw.status),
			observability.F("latency_ms", time.Since(start).Milliseconds()),
		)
	})
}

// withTrace creates a server span for the request using OTel and W3C propagation.
func (h *Handler) withTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tracer := otel.Tracer(tracerName)
		parentCtx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		route := routeFromContext(parentCtx)
		template := route
		if _, path, ok := strings.Cut(route, " "); ok {
			template = path
		}
		if template == "unknown" {
			template = r.URL.Path
		}

		ctx, span := tracer.Start(parentCtx, r.Method+" "+template,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", template),
				attribute.String("http.target", r.URL.Path),
				attribute.String("http.user_agent", r.UserAgent()),
			),
		)
		defer span.End()

		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(lrw, r.WithContext(ctx))

		span.SetAttributes(attribute.Int("http.status_code", lrw.status))
		if lrw.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(lrw.status))
		}
	})
}

// clientIP prefers the first X-Forwarded-For hop over the peer address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get(headerForwardedFor); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type routeKey struct{}

// contextWithRoute stores the stable route template in the context so downstream
// metrics/logging can rely on low-cardinality values.
func contextWithRoute(ctx context.Context, route string) context.Context {
	if route == "" {
		return ctx
	}
	return context.WithValue(ctx, routeKey{}, route)
}

func routeFromContext(ctx context.Context) string {
	if ctx == nil {
		return "unknown"
	}
	if route, ok := ctx.Value(routeKey{}).(string); ok && route != "" {
		return route
	}
	return "unknown"
}
