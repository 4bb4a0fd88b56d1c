// Package webhook exposes the payment processor's notification endpoint.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mmynk/splitwiser-pay/internal/models"
	"github.com/mmynk/splitwiser-pay/internal/orderref"
	"github.com/mmynk/splitwiser-pay/internal/reconcile"
	"github.com/mmynk/splitwiser-pay/internal/signature"
)

// maxBodyBytes caps the size of a webhook request body.
const maxBodyBytes = 1 << 20

// Reconciler applies an authenticated payment event.
type Reconciler interface {
	Process(ctx context.Context, ev models.WebhookEvent) (reconcile.Result, error)
}

// Handler serves POST requests from the payment processor.
type Handler struct {
	verifier   *signature.Verifier
	reconciler Reconciler
	duration   *prometheus.HistogramVec
}

// NewHandler creates a webhook handler. Metrics are registered with reg when non-nil.
func NewHandler(verifier *signature.Verifier, reconciler Reconciler, reg prometheus.Registerer) *Handler {
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "splitwiser",
		Name:      "webhook_duration_seconds",
		Help:      "Time spent handling payment webhooks, by HTTP status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"status"})
	if reg != nil {
		reg.MustRegister(duration)
	}
	return &Handler{
		verifier:   verifier,
		reconciler: reconciler,
		duration:   duration,
	}
}

type response struct {
	OK     bool   `json:"ok"`
	Note   string `json:"note,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := h.serve(w, r)
	h.duration.WithLabelValues(strconv.Itoa(status)).Observe(time.Since(start).Seconds())
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request) int {
	ctx := r.Context()
	logger := slog.With("delivery_id", uuid.NewString())

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		return writeJSON(w, http.StatusMethodNotAllowed, response{Reason: "method_not_allowed"})
	}

	// The signature covers these exact bytes; they are never re-encoded.
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		logger.Warn("Failed to read webhook body", "error", err)
		return writeJSON(w, http.StatusBadRequest, response{Reason: "bad_request"})
	}

	presented := r.Header.Get(signature.Header)
	if !h.verifier.Enforcing() {
		logger.Warn("Webhook signature verification bypassed", "signature_present", presented != "")
	} else if err := h.verifier.Check(body, presented); err != nil {
		logger.Warn("Webhook signature verification failed",
			"error", err,
			"signature_present", presented != "",
		)
		return writeJSON(w, http.StatusUnauthorized, response{Reason: "invalid_signature"})
	}

	ev, err := parseEvent(body)
	if err != nil {
		logger.Warn("Invalid webhook payload", "error", err)
		return writeJSON(w, http.StatusBadRequest, response{Reason: "bad_request"})
	}
	logger.Info("Webhook received",
		"event_type", ev.EventType,
		"order_ref", ev.Payment.OrderRef,
		"payment_status", ev.Payment.Status,
	)

	res, err := h.reconciler.Process(ctx, ev)
	switch {
	case err == nil:
		return writeJSON(w, http.StatusOK, response{OK: true, Note: string(res.Outcome)})
	case errors.Is(err, orderref.ErrMalformedReference):
		logger.Warn("Rejecting webhook with malformed order reference", "order_ref", ev.Payment.OrderRef)
		return writeJSON(w, http.StatusBadRequest, response{Reason: "bad_request"})
	default:
		logger.Error("Webhook processing failed", "order_ref", ev.Payment.OrderRef, "error", err)
		return writeJSON(w, http.StatusInternalServerError, response{Reason: "transient_failure"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body response) int {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to write webhook response", "error", err)
	}
	return status
}
