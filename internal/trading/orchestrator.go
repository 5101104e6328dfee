package trading

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"securities-trader/internal/broker"
	"securities-trader/internal/errors"
	"securities-trader/internal/logging"
	"securities-trader/internal/models"
)

// OrderState is one step of the order execution state machine.
type OrderState int

const (
	StateIdle OrderState = iota
	StateTypeSelected
	StateConfirming
	StateSubmitting
	StateSettling
	StateDone
	StateFailed
)

// String returns a human-readable name for the state.
func (s OrderState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateTypeSelected:
		return "TYPE_SELECTED"
	case StateConfirming:
		return "CONFIRMING"
	case StateSubmitting:
		return "SUBMITTING"
	case StateSettling:
		return "SETTLING"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether the state ends the order attempt.
func (s OrderState) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Journal records engine events for manual reconciliation. Implementations
// must tolerate being called from the middle of an order flow; recording
// failures are logged but never abort the flow.
type Journal interface {
	RecordDecision(ctx context.Context, isin, decision, currency, required string) error
	RecordConfirmation(ctx context.Context, phone, event string) error
	RecordTransfer(ctx context.Context, pendingOrderID string, stepIndex int, step models.TransferStep, status string) error
	RecordOutcome(ctx context.Context, orderID, state, detail string) error
}

// OrchestratorConfig holds the collaborators and settings for one order flow.
type OrchestratorConfig struct {
	Broker          broker.Brokerage
	Gate            *ConfirmationGate
	Estimator       *CommissionEstimator
	Classifier      Classifier
	Planner         Planner
	Journal         Journal // optional
	Logger          zerolog.Logger
	UserID          string
	Phone           string
	DefaultCurrency string
}

// Orchestrator sequences one order attempt: type selection, commission
// estimation, funding classification, rebalance consent, phone confirmation,
// pending-order creation, transfer execution and final submission. States are
// strictly sequential; no two states run concurrently for the same attempt.
type Orchestrator struct {
	cfg OrchestratorConfig

	mu             sync.Mutex
	state          OrderState
	req            *models.OrderRequest
	decision       models.FundingDecision
	plan           models.TransferPlan
	pendingOrderID string
	orderID        string
	executed       int // transfer steps completed
	lastErr        error
}

// NewOrchestrator creates a new orchestrator in the Idle state.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	return &Orchestrator{cfg: cfg, state: StateIdle}
}

// State returns the current state.
func (o *Orchestrator) State() OrderState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Decision returns the funding decision from the last submission request.
func (o *Orchestrator) Decision() models.FundingDecision {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.decision
}

// Plan returns the computed transfer plan, if any.
func (o *Orchestrator) Plan() models.TransferPlan {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.plan
}

// OrderID returns the submitted (or pending) order identifier.
func (o *Orchestrator) OrderID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.orderID != "" {
		return o.orderID
	}
	return o.pendingOrderID
}

// Err returns the error that caused a Failed state.
func (o *Orchestrator) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

// SelectType validates the order terms and moves Idle -> TypeSelected,
// triggering an initial commission estimate. Validation errors are rejected
// locally before any network call.
func (o *Orchestrator) SelectType(req models.OrderRequest) error {
	if err := validateRequest(req); err != nil {
		return err
	}
	if req.Currency == "" {
		req.Currency = o.cfg.DefaultCurrency
	}

	o.mu.Lock()
	if o.state != StateIdle && o.state != StateTypeSelected {
		o.mu.Unlock()
		return errors.Wrapf(errors.ErrInvalidTransition, "select type from %s", o.state)
	}
	o.transitionLocked(StateTypeSelected)
	o.req = &req
	o.decision = models.FundingSufficient
	o.plan = nil
	o.mu.Unlock()

	if o.cfg.Estimator != nil {
		o.cfg.Estimator.Update(req)
	}
	return nil
}

// RequestSubmission re-runs the funding classification against a fresh
// balance snapshot. The returned decision tells the caller how to proceed:
//
//   - FundingSufficient: the flow has moved to Confirming and a code was sent.
//   - FundingNeedsRebalance / FundingNeedsRebalanceWithConversion: a transfer
//     plan was computed; the caller must show the rebalance-consent dialog
//     and call AcceptRebalance or DeclineRebalance.
//   - FundingNeedsTopUp: the flow stays in TypeSelected; the caller routes
//     the user to the deposit flow. No order is created.
func (o *Orchestrator) RequestSubmission(ctx context.Context) (models.FundingDecision, error) {
	o.mu.Lock()
	if o.state != StateTypeSelected {
		o.mu.Unlock()
		return 0, errors.Wrapf(errors.ErrInvalidTransition, "request submission from %s", o.state)
	}
	req := *o.req
	o.mu.Unlock()

	balances, err := o.cfg.Broker.FetchBalances(ctx, o.cfg.UserID)
	if err != nil {
		return 0, errors.Wrap(err, "fetching balances")
	}

	required := req.Value()
	decision := o.cfg.Classifier.Classify(req.Side, required, req.Currency, balances)

	var plan models.TransferPlan
	if decision.NeedsRebalance() {
		plan = o.cfg.Planner.Plan(balances, required, req.Currency)
		if len(plan) == 0 {
			// No account exists in the target currency, so there is no
			// destination to consolidate into. Funds may exist on paper but
			// cannot be moved; treat the order as unfundable rather than
			// creating a pending order no transfer will ever settle.
			decision = models.FundingNeedsTopUp
		}
	}

	logging.LogFundingDecision(logging.WithISIN(o.cfg.Logger, req.ISIN), decision.String(), req.Currency, required.String())
	o.record(func(j Journal) error {
		return j.RecordDecision(ctx, req.ISIN, decision.String(), req.Currency, required.String())
	})

	o.mu.Lock()
	o.decision = decision
	o.plan = plan
	o.mu.Unlock()

	if decision == models.FundingSufficient {
		return decision, o.beginConfirmation(ctx)
	}
	return decision, nil
}

// AcceptRebalance records the user's consent to the transfer plan and moves
// to Confirming.
func (o *Orchestrator) AcceptRebalance(ctx context.Context) error {
	o.mu.Lock()
	if o.state != StateTypeSelected || !o.decision.NeedsRebalance() {
		o.mu.Unlock()
		return errors.Wrapf(errors.ErrInvalidTransition, "accept rebalance from %s", o.state)
	}
	o.mu.Unlock()
	return o.beginConfirmation(ctx)
}

// DeclineRebalance drops the transfer plan; the flow stays in TypeSelected.
func (o *Orchestrator) DeclineRebalance() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.plan = nil
	o.decision = models.FundingSufficient
}

// beginConfirmation sends the one-time code and moves to Confirming.
func (o *Orchestrator) beginConfirmation(ctx context.Context) error {
	if err := o.cfg.Gate.Send(ctx, o.cfg.Phone); err != nil {
		return err
	}
	o.record(func(j Journal) error {
		return j.RecordConfirmation(ctx, o.cfg.Phone, "code_sent")
	})

	o.mu.Lock()
	o.transitionLocked(StateConfirming)
	o.mu.Unlock()
	return nil
}

// ResendCode requests a fresh confirmation code, subject to the cooldown.
func (o *Orchestrator) ResendCode(ctx context.Context) error {
	o.mu.Lock()
	if o.state != StateConfirming {
		o.mu.Unlock()
		return errors.Wrapf(errors.ErrInvalidTransition, "resend code from %s", o.state)
	}
	o.mu.Unlock()

	if err := o.cfg.Gate.Send(ctx, o.cfg.Phone); err != nil {
		return err
	}
	o.record(func(j Journal) error {
		return j.RecordConfirmation(ctx, o.cfg.Phone, "code_resent")
	})
	return nil
}

// CancelConfirmation returns from Confirming to TypeSelected.
func (o *Orchestrator) CancelConfirmation() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateConfirming {
		return errors.Wrapf(errors.ErrInvalidTransition, "cancel confirmation from %s", o.state)
	}
	o.transitionLocked(StateTypeSelected)
	return nil
}

// Confirm verifies the code and, on success, runs submission and settlement
// through to a terminal state. A rejected code keeps the flow in Confirming
// so the user can retry or resend under cooldown.
func (o *Orchestrator) Confirm(ctx context.Context, code string) error {
	o.mu.Lock()
	if o.state != StateConfirming {
		o.mu.Unlock()
		return errors.Wrapf(errors.ErrInvalidTransition, "confirm from %s", o.state)
	}
	o.mu.Unlock()

	if err := o.cfg.Gate.Verify(ctx, o.cfg.Phone, code); err != nil {
		o.record(func(j Journal) error {
			return j.RecordConfirmation(ctx, o.cfg.Phone, "code_rejected")
		})
		return err
	}
	o.record(func(j Journal) error {
		return j.RecordConfirmation(ctx, o.cfg.Phone, "code_verified")
	})

	o.mu.Lock()
	o.transitionLocked(StateSubmitting)
	req := *o.req
	needsRebalance := o.decision.NeedsRebalance()
	plan := o.plan
	o.mu.Unlock()

	// Once money-movement calls begin the sequence must not be cancelable;
	// abandoning the screen must not leave an ambiguous partial state.
	ctx = context.WithoutCancel(ctx)

	if !needsRebalance {
		return o.submitDirect(ctx, req)
	}
	return o.submitWithSettlement(ctx, req, plan)
}

// submitDirect submits the order straight to the order service.
func (o *Orchestrator) submitDirect(ctx context.Context, req models.OrderRequest) error {
	result, err := o.cfg.Broker.SubmitOrder(ctx, &req)
	if err != nil {
		return o.fail(ctx, errors.NewOrderError("", req.ISIN, "submit", "order submission failed", err))
	}

	o.mu.Lock()
	o.orderID = result.OrderID
	o.transitionLocked(StateDone)
	o.mu.Unlock()

	o.record(func(j Journal) error {
		return j.RecordOutcome(ctx, result.OrderID, StateDone.String(), result.Status)
	})
	return nil
}

// submitWithSettlement creates a pending order awaiting transfer, then
// executes the plan step by step in order. A single transfer failure aborts
// the remaining steps; the pending order and already-executed transfers stay
// in place for manual reconciliation.
func (o *Orchestrator) submitWithSettlement(ctx context.Context, req models.OrderRequest, plan models.TransferPlan) error {
	result, err := o.cfg.Broker.SubmitPendingOrder(ctx, &req)
	if err != nil {
		return o.fail(ctx, errors.NewOrderError("", req.ISIN, "pending", "pending order creation failed", err))
	}

	o.mu.Lock()
	o.pendingOrderID = result.OrderID
	o.transitionLocked(StateSettling)
	o.mu.Unlock()

	logger := logging.WithOrderID(o.cfg.Logger, result.OrderID)
	for i, step := range plan {
		if err := o.cfg.Broker.SubmitTransfer(ctx, step, result.OrderID); err != nil {
			o.record(func(j Journal) error {
				return j.RecordTransfer(ctx, result.OrderID, i, step, "failed")
			})
			terr := errors.NewTransferError(i, i, step.FromAccountID, step.ToAccountID, step.Currency, err)
			return o.fail(ctx, terr)
		}
		logging.LogTransferStep(logger, i, step.FromAccountID, step.ToAccountID, step.Currency, step.Amount.String(), step.ConversionNeeded)
		o.record(func(j Journal) error {
			return j.RecordTransfer(ctx, result.OrderID, i, step, "executed")
		})
		o.mu.Lock()
		o.executed++
		o.mu.Unlock()
	}

	o.mu.Lock()
	o.orderID = result.OrderID
	o.transitionLocked(StateDone)
	o.mu.Unlock()

	o.record(func(j Journal) error {
		return j.RecordOutcome(ctx, result.OrderID, StateDone.String(), "settled")
	})
	return nil
}

// Retry moves a failed attempt back to TypeSelected for a manual retry. The
// order terms are kept; decision and plan are recomputed on the next
// submission request.
func (o *Orchestrator) Retry() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateFailed {
		return errors.Wrapf(errors.ErrInvalidTransition, "retry from %s", o.state)
	}
	o.transitionLocked(StateTypeSelected)
	o.decision = models.FundingSufficient
	o.plan = nil
	o.pendingOrderID = ""
	o.executed = 0
	o.lastErr = nil
	return nil
}

// Abandon cancels the order attempt: the pending commission request and the
// confirmation cooldown are dropped, and the orchestrator returns to Idle so
// a new attempt can be started on it. Once Submitting or Settling has begun
// the sequence is not cancelable and Abandon returns an error.
func (o *Orchestrator) Abandon() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateSubmitting || o.state == StateSettling {
		return errors.Wrapf(errors.ErrInvalidTransition, "abandon from %s", o.state)
	}
	if o.cfg.Estimator != nil {
		o.cfg.Estimator.Reset()
	}
	o.cfg.Gate.Reset()
	o.transitionLocked(StateIdle)
	o.req = nil
	o.plan = nil
	o.decision = models.FundingSufficient
	return nil
}

// fail moves to the terminal Failed state.
func (o *Orchestrator) fail(ctx context.Context, err error) error {
	o.mu.Lock()
	o.lastErr = err
	pendingID := o.pendingOrderID
	o.transitionLocked(StateFailed)
	o.mu.Unlock()

	o.cfg.Logger.Error().Err(err).Msg("Order attempt failed")
	o.record(func(j Journal) error {
		return j.RecordOutcome(ctx, pendingID, StateFailed.String(), err.Error())
	})
	return err
}

// transitionLocked changes state and logs the transition. Callers hold o.mu.
func (o *Orchestrator) transitionLocked(next OrderState) {
	if o.state == next {
		return
	}
	logging.LogStateTransition(o.cfg.Logger, o.state.String(), next.String())
	o.state = next
}

// record writes to the journal when one is configured. Journal failures are
// logged and otherwise ignored.
func (o *Orchestrator) record(fn func(Journal) error) {
	if o.cfg.Journal == nil {
		return
	}
	if err := fn(o.cfg.Journal); err != nil {
		o.cfg.Logger.Warn().Err(err).Msg("Journal write failed")
	}
}

// validateRequest rejects invalid order terms locally, before any network
// call is made.
func validateRequest(req models.OrderRequest) error {
	if !req.Type.Valid() {
		return errors.ErrNoOrderType
	}
	if !req.Side.Valid() {
		return errors.NewValidationError("side", string(req.Side), "side must be BUY or SELL")
	}
	if req.Quantity <= 0 {
		return errors.ErrInvalidQuantity
	}
	if req.Price.LessThanOrEqual(decimal.Zero) {
		return errors.ErrInvalidPrice
	}
	if !req.Expiry.IsZero() && req.Expiry.Before(today()) {
		return errors.ErrExpiredOrder
	}
	return nil
}

// today returns midnight of the current day; expiry dates carry no time part.
func today() time.Time {
	now := time.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}
