package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/dmehra2102/payment-reconciler/internal/payment/application"
	"github.com/dmehra2102/payment-reconciler/internal/payment/domain"
	"github.com/dmehra2102/payment-reconciler/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	msgIgnored      = "Ignore: Non-payment transaction"
	errInternal     = "internal error"
	defaultMaxBytes = 1 << 20
)

type Reconciler interface {
	Reconcile(ctx context.Context, t application.Transfer) (domain.Outcome, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	Gateway      string
	Secret       string
	MaxBodyBytes int64
}

type Handler struct {
	log        *slog.Logger
	reconciler Reconciler
	ready      Pinger
	metrics    *metrics.Webhook
	tracer     trace.Tracer
	cfg        Config
}

func NewHandler(log *slog.Logger, reconciler Reconciler, ready Pinger, m *metrics.Webhook, cfg Config) *Handler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBytes
	}
	return &Handler{
		log:        log,
		reconciler: reconciler,
		ready:      ready,
		metrics:    m,
		tracer:     otel.Tracer("payment-webhook-http"),
		cfg:        cfg,
	}
}

type webhookResponse struct {
	Success     bool           `json:"success"`
	Idempotency domain.Outcome `json:"idempotency,omitempty"`
	Error       string         `json:"error,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// WebhookPath is where the gateway posts notifications.
func WebhookPath(gateway string) string {
	return "/api/" + gateway + "/webhook"
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP)

	r.Get("/healthz", h.healthz)
	r.Get("/readyz", h.readyz)
	r.With(BearerAuth(h.log, h.cfg.Secret, h.metrics)).Post(WebhookPath(h.cfg.Gateway), h.receive)

	return r
}

// receive answers 200 for everything past authentication; the gateway
// redelivers on any other status.
func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := h.tracer.Start(ctx, "ReceiveWebhook")
	defer span.End()

	log := h.log.With("request_id", middleware.GetReqID(ctx), "gateway", h.cfg.Gateway)

	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("panic: %v", rec)
			log.Error("webhook handler panic", "err", err, "stack", string(debug.Stack()))
			h.fail(w, span, start, err)
		}
	}()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes))
	if err != nil {
		log.Error("read webhook body failed", "err", err)
		h.fail(w, span, start, err)
		return
	}

	n, err := application.DecodeNotification(body)
	if err != nil {
		log.Error("decode webhook body failed", "err", err, "body", truncate(body, 512))
		h.fail(w, span, start, err)
		return
	}

	t, err := application.Normalize(n, body)
	if errors.Is(err, application.ErrIgnored) {
		log.Info("ignoring non-payment notification", "transfer_type", n.TransferType)
		h.metrics.Observe(metrics.ResultIgnored)
		writeJSON(w, http.StatusOK, messageResponse{Message: msgIgnored})
		return
	}
	if err != nil {
		log.Error("invalid webhook payload", "err", err, "body", truncate(body, 512))
		h.fail(w, span, start, err)
		return
	}

	outcome, err := h.reconciler.Reconcile(ctx, t)
	if err != nil {
		log.Error("reconciliation failed",
			"err", err,
			"transaction_id", t.TransactionID,
			"payment_code", t.PaymentCode,
			"amount_received", t.AmountReceived,
		)
		h.fail(w, span, start, err)
		return
	}

	h.metrics.ObserveReconcile(string(outcome), start)
	writeJSON(w, http.StatusOK, webhookResponse{Success: true, Idempotency: outcome})
}

func (h *Handler) fail(w http.ResponseWriter, span trace.Span, start time.Time, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	h.metrics.ObserveReconcile(metrics.ResultError, start)
	writeJSON(w, http.StatusOK, webhookResponse{Success: false, Error: errInternal})
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.ready.Ping(ctx); err != nil {
			h.log.Warn("readiness check failed", "err", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
