package cartrecovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/ShopPipe/internal/lock"
	"github.com/BTreeMap/ShopPipe/internal/messaging"
	"github.com/BTreeMap/ShopPipe/internal/metrics"
	"github.com/BTreeMap/ShopPipe/internal/models"
	"github.com/BTreeMap/ShopPipe/internal/store"
)

// CandidateWindow is how far back a cart's activity may lie and still be
// considered by a run.
const CandidateWindow = 72 * time.Hour

// CartFailure describes one cart (or one store, when CartID is zero) that
// could not be processed during a run.
type CartFailure struct {
	StoreID int64  `json:"store_id"`
	CartID  int64  `json:"cart_id,omitempty"`
	Error   string `json:"error"`
}

// RunResult summarizes one automation run.
type RunResult struct {
	Success  bool          `json:"success"`
	Error    string        `json:"error,omitempty"`
	Skipped  bool          `json:"skipped,omitempty"`
	Sent     int           `json:"sent"`
	Failures []CartFailure `json:"failures,omitempty"`
}

// Opts holds optional Runner collaborators.
type Opts struct {
	Notifier messaging.Notifier
	Locker   lock.Locker
	Metrics  *metrics.Automation
	Clock    func() time.Time
}

// Option configures a Runner.
type Option func(*Opts)

// WithNotifier sets where new attempts are handed off. Defaults to logging.
func WithNotifier(n messaging.Notifier) Option {
	return func(o *Opts) {
		o.Notifier = n
	}
}

// WithLocker sets the lock that keeps runs from overlapping. Defaults to an
// in-process lock.
func WithLocker(l lock.Locker) Option {
	return func(o *Opts) {
		o.Locker = l
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Automation) Option {
	return func(o *Opts) {
		o.Metrics = m
	}
}

// WithClock overrides time.Now.
func WithClock(clock func() time.Time) Option {
	return func(o *Opts) {
		o.Clock = clock
	}
}

// Runner evaluates every enabled store's carts and sends the next due message.
type Runner struct {
	store    store.Store
	builder  *Builder
	ledger   *Ledger
	notifier messaging.Notifier
	locker   lock.Locker
	metrics  *metrics.Automation
	clock    func() time.Time
}

// NewRunner wires a Runner over st.
func NewRunner(st store.Store, opts ...Option) *Runner {
	o := Opts{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Notifier == nil {
		o.Notifier = messaging.LogNotifier{}
	}
	if o.Locker == nil {
		o.Locker = lock.NewLocalLock()
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	ledger := NewLedger(st)
	ledger.clock = o.Clock
	return &Runner{
		store:    st,
		builder:  NewBuilder(st),
		ledger:   ledger,
		notifier: o.Notifier,
		locker:   o.Locker,
		metrics:  o.Metrics,
		clock:    o.Clock,
	}
}

// Ledger exposes the runner's attempt ledger.
func (r *Runner) Ledger() *Ledger {
	return r.ledger
}

// Builder exposes the runner's message builder.
func (r *Runner) Builder() *Builder {
	return r.builder
}

// RunOnce performs a single pass. A run whose lock is held elsewhere is
// skipped and reported as successful. Failures of individual carts are
// collected; only a failure to list enabled stores aborts the run.
func (r *Runner) RunOnce(ctx context.Context) RunResult {
	start := time.Now()
	result := r.runOnce(ctx)
	outcome := metrics.OutcomeSuccess
	switch {
	case result.Skipped:
		outcome = metrics.OutcomeSkipped
	case !result.Success:
		outcome = metrics.OutcomeFailure
	}
	r.metrics.ObserveRun(outcome, time.Since(start))
	return result
}

func (r *Runner) runOnce(ctx context.Context) RunResult {
	acquired, err := r.locker.Acquire(ctx)
	if err != nil {
		slog.Error("Runner.RunOnce: failed to acquire run lock", "error", err)
		return RunResult{Error: fmt.Sprintf("acquire run lock: %v", err)}
	}
	if !acquired {
		slog.Info("Runner.RunOnce: another run is in progress, skipping")
		return RunResult{Success: true, Skipped: true}
	}
	defer func() {
		if err := r.locker.Release(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("Runner.RunOnce: failed to release run lock", "error", err)
		}
	}()

	enabled, err := r.store.ListEnabledAutomationSettings()
	if err != nil {
		slog.Error("Runner.RunOnce: failed to list enabled stores", "error", err)
		return RunResult{Error: fmt.Sprintf("list enabled automation settings: %v", err)}
	}

	now := r.clock()
	result := RunResult{Success: true}
	for _, settings := range enabled {
		if err := ctx.Err(); err != nil {
			result.Success = false
			result.Error = fmt.Sprintf("run cancelled: %v", err)
			break
		}
		r.runStore(ctx, settings, now, &result)
	}

	slog.Info("Runner.RunOnce: run complete", "stores", len(enabled), "sent", result.Sent,
		"failures", len(result.Failures), "success", result.Success)
	return result
}

func (r *Runner) runStore(ctx context.Context, settings models.AutomationSettings, now time.Time, result *RunResult) {
	carts, err := r.store.ListRecoverableCarts(settings.StoreID, now.Add(-CandidateWindow))
	if err != nil {
		slog.Error("Runner.runStore: failed to list carts", "store_id", settings.StoreID, "error", err)
		result.Failures = append(result.Failures, CartFailure{StoreID: settings.StoreID, Error: err.Error()})
		r.metrics.IncCartFailure()
		return
	}
	for _, cart := range carts {
		if ctx.Err() != nil {
			return
		}
		sent, err := r.processCart(ctx, settings, cart, now)
		if err != nil {
			slog.Error("Runner.processCart: failed", "store_id", settings.StoreID, "cart_id", cart.ID, "error", err)
			result.Failures = append(result.Failures, CartFailure{StoreID: settings.StoreID, CartID: cart.ID, Error: err.Error()})
			r.metrics.IncCartFailure()
		}
		if sent {
			result.Sent++
		}
	}
}

// processCart reports whether an attempt was recorded. A notification
// failure after recording returns sent=true along with the error.
func (r *Runner) processCart(ctx context.Context, settings models.AutomationSettings, cart models.AbandonedCart, now time.Time) (sent bool, err error) {
	if cart.CustomerEmail == "" {
		return false, nil
	}
	attempts, err := r.store.ListRecoveryAttemptsByCart(cart.ID)
	if err != nil {
		return false, fmt.Errorf("list attempts: %w", err)
	}
	decision := DecideStage(settings, cart.AbandonedAt, attempts, now)
	if !decision.Due() {
		return false, nil
	}

	built, err := r.builder.Build(cart, decision.Stage, cart.CustomerName, decision.IncludeDiscount)
	if err != nil {
		return false, fmt.Errorf("build message: %w", err)
	}
	attempt, err := r.ledger.Record(cart.ID, RecordInput{
		MessageContent: built.Message,
		DiscountCode:   built.DiscountCode,
		DiscountAmount: built.DiscountAmount,
	})
	if err != nil {
		return false, err
	}
	if attempt == nil {
		return false, errors.New("cart disappeared before the attempt was recorded")
	}
	r.metrics.IncAttempt(string(decision.Stage))

	n := messaging.Notification{
		AttemptID:    attempt.ID,
		CartID:       cart.ID,
		StoreID:      cart.StoreID,
		Stage:        decision.Stage,
		Email:        cart.CustomerEmail,
		Phone:        cart.CustomerPhone,
		CustomerName: cart.CustomerName,
		Body:         built.Message,
	}
	if err := r.notifier.Notify(ctx, n); err != nil {
		return true, fmt.Errorf("notify attempt %d: %w", attempt.ID, err)
	}
	slog.Info("Runner.processCart: recovery message queued", "cart_id", cart.ID, "attempt_id", attempt.ID,
		"stage", decision.Stage, "recipient", cart.CustomerEmail)
	return true, nil
}
