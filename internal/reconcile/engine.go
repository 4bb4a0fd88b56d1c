// Package reconcile applies verified payment events to split documents.
//
// For every success event the engine decodes the order reference, loads the
// split and marks the referenced member paid with a compare-and-update on the
// split version. Lost races are retried a bounded number of times. A member
// that is already paid is left untouched, which makes redelivered events
// harmless.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mmynk/splitwiser-pay/internal/models"
	"github.com/mmynk/splitwiser-pay/internal/orderref"
	"github.com/mmynk/splitwiser-pay/internal/storage"
)

// Outcome names how an event was resolved. Every outcome except failures is
// acknowledged to the processor.
type Outcome string

const (
	OutcomeIgnored       Outcome = "ignored"
	OutcomeSplitNotFound Outcome = "split_not_found"
	OutcomeNoMember      Outcome = "no_member"
	OutcomeAlreadyPaid   Outcome = "already_paid"
	OutcomeMemberUpdated Outcome = "member_updated"

	// OutcomeBadRequest and OutcomeFailed accompany a non-nil error.
	OutcomeBadRequest Outcome = "bad_request"
	OutcomeFailed     Outcome = "transient_failure"
)

// ErrTransient reports a store failure the processor should retry.
var ErrTransient = errors.New("transient store failure")

// Result describes what the engine did with one event.
type Result struct {
	Outcome  Outcome
	SplitID  string
	MemberID string
	Attempts int
}

// Options configures an Engine.
type Options struct {
	// MaxAttempts bounds compare-and-update attempts per event.
	MaxAttempts int

	// Backoff is the wait before the second attempt; it doubles per attempt
	// up to MaxBackoff.
	Backoff    time.Duration
	MaxBackoff time.Duration

	// PaidBy is recorded on members marked paid.
	PaidBy string

	Metrics *Metrics
	Now     func() time.Time
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		MaxAttempts: 5,
		Backoff:     20 * time.Millisecond,
		MaxBackoff:  500 * time.Millisecond,
		PaidBy:      "Cashfree",
	}
}

// Engine reconciles payment events against the split store.
type Engine struct {
	store storage.SplitStore
	opts  Options
}

// NewEngine creates an Engine. Zero-valued options fall back to DefaultOptions.
func NewEngine(store storage.SplitStore, opts Options) *Engine {
	def := DefaultOptions()
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if opts.Backoff <= 0 {
		opts.Backoff = def.Backoff
	}
	if opts.MaxBackoff < opts.Backoff {
		opts.MaxBackoff = opts.Backoff
	}
	if opts.PaidBy == "" {
		opts.PaidBy = def.PaidBy
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{store: store, opts: opts}
}

// Process applies one authenticated event. The returned error is non-nil only
// for a malformed order reference (orderref.ErrMalformedReference) or a store
// failure (ErrTransient); every other outcome is a success for the caller.
func (e *Engine) Process(ctx context.Context, ev models.WebhookEvent) (Result, error) {
	res, err := e.process(ctx, ev)
	e.opts.Metrics.observe(res.Outcome)

	attrs := []any{
		"event_type", ev.EventType,
		"order_ref", ev.Payment.OrderRef,
		"payment_id", ev.Payment.PaymentID,
		"split_id", res.SplitID,
		"member_id", res.MemberID,
		"outcome", res.Outcome,
		"attempts", res.Attempts,
	}
	switch res.Outcome {
	case OutcomeMemberUpdated:
		slog.InfoContext(ctx, "Marked member paid", attrs...)
	case OutcomeIgnored, OutcomeAlreadyPaid:
		slog.InfoContext(ctx, "Payment event acknowledged without change", attrs...)
	case OutcomeSplitNotFound, OutcomeNoMember:
		slog.WarnContext(ctx, "Payment event references unknown target", attrs...)
	case OutcomeBadRequest:
		slog.WarnContext(ctx, "Payment event has malformed order reference", append(attrs, "error", err)...)
	default:
		slog.ErrorContext(ctx, "Payment event processing failed", append(attrs, "error", err)...)
	}
	return res, err
}

func (e *Engine) process(ctx context.Context, ev models.WebhookEvent) (Result, error) {
	if !ev.IsSuccess() {
		return Result{Outcome: OutcomeIgnored}, nil
	}

	ref, err := orderref.Decode(ev.Payment.OrderRef)
	if err != nil {
		return Result{Outcome: OutcomeBadRequest}, err
	}
	res := Result{SplitID: ref.SplitID, MemberID: ref.MemberID}

	for {
		res.Attempts++

		split, err := e.store.GetSplit(ctx, ref.SplitID)
		if errors.Is(err, storage.ErrNotFound) {
			res.Outcome = OutcomeSplitNotFound
			return res, nil
		}
		if err != nil {
			res.Outcome = OutcomeFailed
			return res, fmt.Errorf("%w: %v", ErrTransient, err)
		}

		idx := split.MemberIndex(ref.MemberID)
		if idx < 0 {
			res.Outcome = OutcomeNoMember
			return res, nil
		}
		if split.Members[idx].Paid {
			res.Outcome = OutcomeAlreadyPaid
			return res, nil
		}

		members := split.CloneMembers()
		paidAt := e.opts.Now().UTC()
		members[idx].Paid = true
		members[idx].PaidAt = &paidAt
		members[idx].PaidBy = e.opts.PaidBy
		members[idx].PaymentInfo = ev.Payment.Raw

		_, err = e.store.CompareAndUpdateMembers(ctx, ref.SplitID, split.Version, members)
		switch {
		case err == nil:
			res.Outcome = OutcomeMemberUpdated
			return res, nil
		case errors.Is(err, storage.ErrNotFound):
			res.Outcome = OutcomeSplitNotFound
			return res, nil
		case !errors.Is(err, storage.ErrVersionConflict):
			res.Outcome = OutcomeFailed
			return res, fmt.Errorf("%w: %v", ErrTransient, err)
		}

		e.opts.Metrics.conflicts.Inc()
		slog.DebugContext(ctx, "Split changed underneath update, retrying",
			"split_id", ref.SplitID,
			"member_id", ref.MemberID,
			"attempt", res.Attempts,
		)
		if res.Attempts >= e.opts.MaxAttempts {
			res.Outcome = OutcomeFailed
			return res, fmt.Errorf("%w: gave up after %d conflicting updates", ErrTransient, res.Attempts)
		}
		if err := e.wait(ctx, res.Attempts); err != nil {
			res.Outcome = OutcomeFailed
			return res, fmt.Errorf("%w: %v", ErrTransient, err)
		}
	}
}

// wait sleeps for the backoff that follows the given attempt.
func (e *Engine) wait(ctx context.Context, attempt int) error {
	d := e.opts.Backoff << (attempt - 1)
	if d > e.opts.MaxBackoff || d <= 0 {
		d = e.opts.MaxBackoff
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
