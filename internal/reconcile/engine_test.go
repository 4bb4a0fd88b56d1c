package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"github.com/mmynk/splitwiser-pay/internal/models"
	"github.com/mmynk/splitwiser-pay/internal/orderref"
	"github.com/mmynk/splitwiser-pay/internal/storage"
	"github.com/mmynk/splitwiser-pay/internal/storage/sqlite"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// setupEngine creates an engine over a temp SQLite store seeded with split S1.
func setupEngine(t *testing.T, memberIDs ...string) (*Engine, *sqlite.SQLiteStore) {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "reconcile-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	store, err := sqlite.New(filepath.Join(tempDir, "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if len(memberIDs) == 0 {
		memberIDs = []string{"M1", "M2"}
	}
	split := &models.Split{ID: "S1", Title: "Dinner", Currency: "INR", Total: decimal.NewFromInt(100)}
	for _, id := range memberIDs {
		split.Members = append(split.Members, models.Member{ID: id, Amount: decimal.NewFromInt(10)})
	}
	if err := store.CreateSplit(context.Background(), split); err != nil {
		t.Fatalf("failed to seed split: %v", err)
	}

	engine := NewEngine(store, Options{
		MaxAttempts: len(memberIDs) + 2,
		Backoff:     time.Millisecond,
		Now:         func() time.Time { return fixedNow },
	})
	return engine, store
}

func successEvent(orderRef string) models.WebhookEvent {
	raw := fmt.Sprintf(`{"order_id":%q,"payment_status":"SUCCESS","payment_id":"CF_%s"}`, orderRef, orderRef)
	return models.WebhookEvent{
		EventType: models.EventPaymentSuccess,
		Payment: models.Payment{
			OrderRef:  orderRef,
			Status:    models.PaymentSuccess,
			PaymentID: "CF_" + orderRef,
			Raw:       json.RawMessage(raw),
		},
	}
}

func member(t *testing.T, store storage.SplitStore, id string) models.Member {
	t.Helper()
	split, err := store.GetSplit(context.Background(), "S1")
	if err != nil {
		t.Fatalf("GetSplit failed: %v", err)
	}
	idx := split.MemberIndex(id)
	if idx < 0 {
		t.Fatalf("member %s missing", id)
	}
	return split.Members[idx]
}

func TestProcess_MarksMemberPaid(t *testing.T) {
	engine, store := setupEngine(t)
	ctx := context.Background()

	res, err := engine.Process(ctx, successEvent("S1_M1_1000"))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if res.Outcome != OutcomeMemberUpdated {
		t.Fatalf("outcome = %s, want %s", res.Outcome, OutcomeMemberUpdated)
	}
	if res.SplitID != "S1" || res.MemberID != "M1" {
		t.Errorf("unexpected target %s/%s", res.SplitID, res.MemberID)
	}

	m1 := member(t, store, "M1")
	if !m1.Paid {
		t.Fatal("expected M1 to be paid")
	}
	if m1.PaidAt == nil || !m1.PaidAt.Equal(fixedNow) {
		t.Errorf("PaidAt = %v, want %v", m1.PaidAt, fixedNow)
	}
	if m1.PaidBy != "Cashfree" {
		t.Errorf("PaidBy = %q, want Cashfree", m1.PaidBy)
	}
	if len(m1.PaymentInfo) == 0 {
		t.Error("expected PaymentInfo to be recorded")
	}
	if member(t, store, "M2").Paid {
		t.Error("M2 must stay unpaid")
	}
}

func TestProcess_RedeliveryIsIdempotent(t *testing.T) {
	engine, store := setupEngine(t)
	ctx := context.Background()

	if _, err := engine.Process(ctx, successEvent("S1_M1_1000")); err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}
	before := member(t, store, "M1")
	splitBefore, _ := store.GetSplit(ctx, "S1")

	// Same payment, different raw body: nothing may be rewritten.
	redelivery := successEvent("S1_M1_1000")
	redelivery.Payment.Raw = json.RawMessage(`{"order_id":"S1_M1_1000","payment_status":"SUCCESS","payment_id":"OTHER"}`)

	res, err := engine.Process(ctx, redelivery)
	if err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}
	if res.Outcome != OutcomeAlreadyPaid {
		t.Fatalf("outcome = %s, want %s", res.Outcome, OutcomeAlreadyPaid)
	}

	after := member(t, store, "M1")
	if string(after.PaymentInfo) != string(before.PaymentInfo) {
		t.Errorf("PaymentInfo changed: %s -> %s", before.PaymentInfo, after.PaymentInfo)
	}
	splitAfter, _ := store.GetSplit(ctx, "S1")
	if splitAfter.Version != splitBefore.Version {
		t.Errorf("version moved from %d to %d on redelivery", splitBefore.Version, splitAfter.Version)
	}
}

func TestProcess_Outcomes(t *testing.T) {
	tests := []struct {
		name    string
		event   models.WebhookEvent
		want    Outcome
		wantErr error
	}{
		{
			name:  "unknown member",
			event: successEvent("S1_MUNKNOWN_1000"),
			want:  OutcomeNoMember,
		},
		{
			name:  "member id is a prefix of a real one",
			event: successEvent("S1_M_1000"),
			want:  OutcomeNoMember,
		},
		{
			name:  "unknown split",
			event: successEvent("S9_M1_1000"),
			want:  OutcomeSplitNotFound,
		},
		{
			name:    "single segment reference",
			event:   successEvent("S1"),
			want:    OutcomeBadRequest,
			wantErr: orderref.ErrMalformedReference,
		},
		{
			name: "failed payment",
			event: models.WebhookEvent{
				EventType: "PAYMENT.FAILED",
				Payment:   models.Payment{OrderRef: "S1_M1_1000", Status: models.PaymentFailed},
			},
			want: OutcomeIgnored,
		},
		{
			name: "success event type with failed status",
			event: models.WebhookEvent{
				EventType: models.EventPaymentSuccess,
				Payment:   models.Payment{OrderRef: "S1_M1_1000", Status: models.PaymentFailed},
			},
			want: OutcomeIgnored,
		},
		{
			name: "success event type without status",
			event: models.WebhookEvent{
				EventType: models.EventPaymentSuccessWebhook,
				Payment:   models.Payment{OrderRef: "S1_M2_1000"},
			},
			want: OutcomeMemberUpdated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, store := setupEngine(t)
			before, _ := store.GetSplit(context.Background(), "S1")

			res, err := engine.Process(context.Background(), tt.event)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Outcome != tt.want {
				t.Errorf("outcome = %s, want %s", res.Outcome, tt.want)
			}

			after, _ := store.GetSplit(context.Background(), "S1")
			wrote := after.Version != before.Version
			if wrote != (tt.want == OutcomeMemberUpdated) {
				t.Errorf("store written = %v for outcome %s", wrote, res.Outcome)
			}
		})
	}
}

func TestProcess_ConcurrentMembersNoLostUpdate(t *testing.T) {
	ids := []string{"M1", "M2", "M3", "M4", "M5", "M6"}
	engine, store := setupEngine(t, ids...)

	var wg sync.WaitGroup
	errs := make(chan error, len(ids))
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			res, err := engine.Process(context.Background(), successEvent("S1_"+id+"_1000"))
			if err != nil {
				errs <- err
				return
			}
			if res.Outcome != OutcomeMemberUpdated {
				errs <- fmt.Errorf("%s: outcome %s", id, res.Outcome)
			}
		}(id)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	split, err := store.GetSplit(context.Background(), "S1")
	if err != nil {
		t.Fatalf("GetSplit failed: %v", err)
	}
	if split.PaidCount() != len(ids) {
		t.Errorf("paid members = %d, want %d", split.PaidCount(), len(ids))
	}
	if split.Version != int64(len(ids))+1 {
		t.Errorf("version = %d, want %d", split.Version, len(ids)+1)
	}
}

func TestProcess_ConcurrentDuplicateDeliveries(t *testing.T) {
	engine, store := setupEngine(t)

	const deliveries = 5
	outcomes := make(chan Outcome, deliveries)
	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := engine.Process(context.Background(), successEvent("S1_M1_1000"))
			if err != nil {
				t.Errorf("Process failed: %v", err)
			}
			outcomes <- res.Outcome
		}()
	}
	wg.Wait()
	close(outcomes)

	counts := make(map[Outcome]int)
	for o := range outcomes {
		counts[o]++
	}
	if counts[OutcomeMemberUpdated] != 1 {
		t.Errorf("member_updated count = %d, want 1 (%v)", counts[OutcomeMemberUpdated], counts)
	}
	if counts[OutcomeAlreadyPaid] != deliveries-1 {
		t.Errorf("already_paid count = %d, want %d", counts[OutcomeAlreadyPaid], deliveries-1)
	}

	split, _ := store.GetSplit(context.Background(), "S1")
	if split.Version != 2 {
		t.Errorf("version = %d, want 2", split.Version)
	}
}

// flakyStore wraps a SplitStore and injects failures.
type flakyStore struct {
	storage.SplitStore

	mu        sync.Mutex
	conflicts int
	getErr    error
	updateErr error
	updates   int
}

func (f *flakyStore) GetSplit(ctx context.Context, splitID string) (*models.Split, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.SplitStore.GetSplit(ctx, splitID)
}

func (f *flakyStore) CompareAndUpdateMembers(ctx context.Context, splitID string, expectedVersion int64, members []models.Member) (int64, error) {
	f.mu.Lock()
	f.updates++
	if f.conflicts > 0 {
		f.conflicts--
		f.mu.Unlock()
		return 0, fmt.Errorf("injected: %w", storage.ErrVersionConflict)
	}
	f.mu.Unlock()
	if f.updateErr != nil {
		return 0, f.updateErr
	}
	return f.SplitStore.CompareAndUpdateMembers(ctx, splitID, expectedVersion, members)
}

func TestProcess_RetriesVersionConflicts(t *testing.T) {
	_, store := setupEngine(t)
	flaky := &flakyStore{SplitStore: store, conflicts: 2}
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	engine := NewEngine(flaky, Options{MaxAttempts: 5, Backoff: time.Millisecond, Metrics: metrics})

	res, err := engine.Process(context.Background(), successEvent("S1_M1_1000"))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if res.Outcome != OutcomeMemberUpdated {
		t.Errorf("outcome = %s, want %s", res.Outcome, OutcomeMemberUpdated)
	}
	if res.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", res.Attempts)
	}
	if got := testutil.ToFloat64(metrics.conflicts); got != 2 {
		t.Errorf("conflict counter = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.outcomes.WithLabelValues(string(OutcomeMemberUpdated))); got != 1 {
		t.Errorf("member_updated counter = %v, want 1", got)
	}
}

func TestProcess_RetryExhaustionIsTransient(t *testing.T) {
	_, store := setupEngine(t)
	flaky := &flakyStore{SplitStore: store, conflicts: 100}
	engine := NewEngine(flaky, Options{MaxAttempts: 3, Backoff: time.Millisecond})

	res, err := engine.Process(context.Background(), successEvent("S1_M1_1000"))
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("error = %v, want ErrTransient", err)
	}
	if res.Outcome != OutcomeFailed {
		t.Errorf("outcome = %s, want %s", res.Outcome, OutcomeFailed)
	}
	if flaky.updates != 3 {
		t.Errorf("update attempts = %d, want 3", flaky.updates)
	}
	if member(t, store, "M1").Paid {
		t.Error("M1 must not be paid after exhaustion")
	}
}

func TestProcess_StoreFailuresAreTransient(t *testing.T) {
	outage := errors.New("connection refused")

	t.Run("read failure", func(t *testing.T) {
		_, store := setupEngine(t)
		engine := NewEngine(&flakyStore{SplitStore: store, getErr: outage}, Options{})

		_, err := engine.Process(context.Background(), successEvent("S1_M1_1000"))
		if !errors.Is(err, ErrTransient) {
			t.Errorf("error = %v, want ErrTransient", err)
		}
	})

	t.Run("write failure", func(t *testing.T) {
		_, store := setupEngine(t)
		engine := NewEngine(&flakyStore{SplitStore: store, updateErr: outage}, Options{})

		_, err := engine.Process(context.Background(), successEvent("S1_M1_1000"))
		if !errors.Is(err, ErrTransient) {
			t.Errorf("error = %v, want ErrTransient", err)
		}
	})
}

func TestProcess_CanceledContextStopsRetries(t *testing.T) {
	_, store := setupEngine(t)
	flaky := &flakyStore{SplitStore: store, conflicts: 100}
	engine := NewEngine(flaky, Options{MaxAttempts: 5, Backoff: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := engine.Process(ctx, successEvent("S1_M1_1000"))
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("error = %v, want ErrTransient", err)
	}
	if flaky.updates != 1 {
		t.Errorf("update attempts = %d, want 1", flaky.updates)
	}
}
