// Package lifecycle runs the periodic drift-check/retrain cycle: analyze
// the window against the baseline, apply the decision policy, invoke the
// training job, select a candidate, and hot-swap the serving pointer. The
// cycle is single-flight; overlapping requests are deduplicated.
package lifecycle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/modelwatch/modelwatch/internal/baseline"
	"github.com/modelwatch/modelwatch/internal/drift"
	"github.com/modelwatch/modelwatch/internal/registry"
	"github.com/modelwatch/modelwatch/internal/serving"
	"github.com/modelwatch/modelwatch/internal/trainer"
	"github.com/modelwatch/modelwatch/internal/window"
	"github.com/modelwatch/modelwatch/pkg/metrics"
	"github.com/modelwatch/modelwatch/pkg/models"
)

// State is the retrain/swap lifecycle state. The machine re-enters Idle
// after every decision, ready for the next drift check.
type State int32

const (
	StateIdle State = iota
	StateDriftDetected
	StateRetraining
	StateSelecting
	StateValidating
	StateSwapping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDriftDetected:
		return "drift_detected"
	case StateRetraining:
		return "retraining"
	case StateSelecting:
		return "selecting"
	case StateValidating:
		return "validating"
	case StateSwapping:
		return "swapping"
	default:
		return "unknown"
	}
}

// ErrCycleInFlight is returned when a cycle is requested while another is
// still running.
var ErrCycleInFlight = errors.New("drift cycle already in flight")

// ErrNoBaseline is returned when no reference snapshot has been captured.
var ErrNoBaseline = errors.New("no baseline captured")

// Config holds the orchestrator's operational settings.
type Config struct {
	CorpusPointer     string
	Deadline          time.Duration
	F1Tolerance       float64
	SyntheticOverride bool
	CycleInterval     time.Duration
}

// ReportPublisher delivers the drift report artifact downstream. Publishing
// is best-effort; a publish failure never fails the cycle.
type ReportPublisher interface {
	PublishReport(ctx context.Context, report *drift.Report) error
}

// Orchestrator owns the drift-check/retrain state machine.
type Orchestrator struct {
	cfg       Config
	analyzer  *drift.Analyzer
	baselines *baseline.Store
	window    *window.Window
	registry  *registry.Registry
	swapper   *serving.HotSwapper
	runner    trainer.Runner
	policy    Policy
	publisher ReportPublisher
	logger    *zap.Logger

	state    atomic.Int32
	inFlight atomic.Bool

	mu         sync.Mutex
	lastReport *drift.Report
	decisions  []models.RetrainDecision

	// runCtx bounds retrain attempts instead of the triggering caller's
	// context, so a manual trigger disconnecting never aborts a training
	// run. Cancelled on Stop.
	runCtx    context.Context
	cancelRun context.CancelFunc

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewOrchestrator wires the cycle's collaborators. A nil publisher disables
// report publishing; a nil policy selects the default drift-share policy.
func NewOrchestrator(
	cfg Config,
	analyzer *drift.Analyzer,
	baselines *baseline.Store,
	w *window.Window,
	reg *registry.Registry,
	swapper *serving.HotSwapper,
	runner trainer.Runner,
	policy Policy,
	publisher ReportPublisher,
	logger *zap.Logger,
) *Orchestrator {
	if policy == nil {
		policy = DriftSharePolicy{}
	}
	runCtx, cancelRun := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg:       cfg,
		analyzer:  analyzer,
		baselines: baselines,
		window:    w,
		registry:  reg,
		swapper:   swapper,
		runner:    runner,
		policy:    policy,
		publisher: publisher,
		logger:    logger,
		runCtx:    runCtx,
		cancelRun: cancelRun,
		stopCh:    make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// LastReport returns the most recent drift report, or nil before the first
// cycle.
func (o *Orchestrator) LastReport() *drift.Report {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastReport
}

// decisionHistoryLimit bounds the in-memory decision history. The registry
// keeps the durable record of what was promoted; the history is an
// operational audit window, not an archive.
const decisionHistoryLimit = 128

// Decisions returns the retained retrain decision history, oldest first.
func (o *Orchestrator) Decisions() []models.RetrainDecision {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]models.RetrainDecision(nil), o.decisions...)
}

func (o *Orchestrator) appendDecision(dec models.RetrainDecision) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.decisions = append(o.decisions, dec)
	if len(o.decisions) > decisionHistoryLimit {
		o.decisions = o.decisions[len(o.decisions)-decisionHistoryLimit:]
	}
}

// Start launches the periodic cycle. No-op when the interval is zero.
func (o *Orchestrator) Start() {
	if o.cfg.CycleInterval <= 0 {
		return
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(o.cfg.CycleInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := o.RunCycle(context.Background()); err != nil &&
					!errors.Is(err, ErrCycleInFlight) && !errors.Is(err, ErrNoBaseline) {
					o.logger.Error("scheduled drift cycle failed", zap.Error(err))
				}
			case <-o.stopCh:
				return
			}
		}
	}()
}

// Stop halts the periodic cycle, aborts any in-flight retrain attempt, and
// waits for the scheduler to finish.
func (o *Orchestrator) Stop() {
	close(o.stopCh)
	o.cancelRun()
	o.wg.Wait()
}

// RunCycle executes one drift check and, when the policy fires, the full
// retrain/select/validate/swap sequence. Concurrent calls while a cycle is
// in flight are deduplicated with a logged no-op. The caller's context
// covers only the drift check and report publication; a raised retrain runs
// on the orchestrator's own context and outlives the trigger.
func (o *Orchestrator) RunCycle(ctx context.Context) (*drift.Report, error) {
	if !o.inFlight.CompareAndSwap(false, true) {
		o.logger.Info("drift cycle skipped, another cycle in flight",
			zap.String("state", o.State().String()))
		metrics.DriftCycles.WithLabelValues("skipped").Inc()
		return nil, ErrCycleInFlight
	}
	defer func() {
		o.state.Store(int32(StateIdle))
		o.inFlight.Store(false)
	}()

	ref := o.baselines.Current()
	if ref == nil {
		o.logger.Warn("drift cycle skipped, no baseline captured")
		return nil, ErrNoBaseline
	}
	if o.baselines.Stale(time.Now()) {
		o.logger.Warn("baseline exceeds staleness window",
			zap.Time("captured_at", ref.CapturedAt))
	}

	snapshot := o.window.Snapshot()
	report := o.analyzer.Analyze(ref, snapshot)

	o.mu.Lock()
	o.lastReport = report
	o.mu.Unlock()

	if o.publisher != nil {
		if err := o.publisher.PublishReport(ctx, report); err != nil {
			o.logger.Warn("failed to publish drift report", zap.Error(err))
		}
	}

	verdict := o.policy.Evaluate(o.buildSignals(report, snapshot))
	if !verdict.Retrain {
		o.logger.Info("no retrain",
			zap.String("policy", o.policy.Name()),
			zap.String("reason", verdict.Reason))
		metrics.DriftCycles.WithLabelValues("idle").Inc()
		return report, nil
	}

	o.state.Store(int32(StateDriftDetected))
	dec := models.RetrainDecision{
		ID:         uuid.NewString(),
		CreatedAt:  time.Now().UTC(),
		ReportTime: report.GeneratedAt,
		DriftShare: report.DriftShare,
		Status:     models.DecisionPending,
		Reason:     verdict.Reason,
	}
	o.logger.Info("retrain decision raised",
		zap.String("decision", dec.ID),
		zap.String("reason", dec.Reason))

	// The retrain runs on the orchestrator's own context: the trigger may
	// be an HTTP request whose connection closes long before training
	// finishes, and a caller disconnect must not abort the attempt. Only
	// the configured deadline and Stop cancel it.
	o.runRetrain(&dec)

	o.appendDecision(dec)
	metrics.DriftCycles.WithLabelValues(string(dec.Status)).Inc()

	return report, nil
}

func (o *Orchestrator) buildSignals(report *drift.Report, snapshot []models.PredictionRecord) Signals {
	sig := Signals{
		Report:            report,
		SyntheticOverride: o.cfg.SyntheticOverride,
	}
	sig.FeedbackAccuracy, sig.FeedbackSamples = feedbackAccuracy(snapshot)
	if active, ok := o.registry.Active(); ok {
		sig.ActiveOfflineAccuracy = active.Metrics.Accuracy
	}
	return sig
}

// runRetrain drives the decision through the Retraining/Selecting/
// Validating/Swapping stages, mutating it to its terminal status. The
// active model and baseline are untouched on every failure path.
func (o *Orchestrator) runRetrain(dec *models.RetrainDecision) {
	defer func() { dec.CompletedAt = time.Now().UTC() }()

	o.state.Store(int32(StateRetraining))
	trainCtx, cancel := context.WithTimeout(o.runCtx, o.cfg.Deadline)
	defer cancel()

	resp, err := o.runner.Train(trainCtx, trainer.Request{
		CorpusPointer: o.cfg.CorpusPointer,
		Deadline:      time.Now().Add(o.cfg.Deadline).UTC(),
	})
	if err != nil {
		dec.Status = models.DecisionFailed
		dec.Reason = "training job failed: " + err.Error()
		o.logger.Error("training job failed", zap.String("decision", dec.ID), zap.Error(err))
		return
	}

	o.state.Store(int32(StateSelecting))
	candidates := make([]models.ModelVersion, 0, len(resp.Candidates))
	for _, c := range resp.Candidates {
		mv, err := o.registry.Register(o.runCtx, models.ModelVersion{
			ID:            c.ModelID,
			Family:        c.Family,
			ArtifactPath:  c.ArtifactLocation,
			ArtifactBytes: c.ArtifactBytes,
			TrainSamples:  c.TrainSamples,
			Metrics:       c.Metrics,
		})
		if err != nil {
			o.logger.Warn("failed to register candidate",
				zap.String("model", c.ModelID), zap.Error(err))
			continue
		}
		candidates = append(candidates, mv)
	}

	selected, ok := o.registry.Select(candidates)
	if !ok {
		dec.Status = models.DecisionFailed
		dec.Reason = "training job returned no usable candidates"
		o.logger.Error("no usable candidates", zap.String("decision", dec.ID))
		return
	}

	if active, hasActive := o.registry.Active(); hasActive {
		if selected.Metrics.F1 <= active.Metrics.F1-o.cfg.F1Tolerance {
			dec.Status = models.DecisionRejected
			dec.Reason = "candidate F1 does not beat active model"
			o.logger.Info("candidate rejected on regression gate",
				zap.String("decision", dec.ID),
				zap.String("candidate", selected.ID),
				zap.Float64("candidate_f1", selected.Metrics.F1),
				zap.Float64("active_f1", active.Metrics.F1))
			return
		}
	}

	o.state.Store(int32(StateValidating))
	prepared, err := o.swapper.Prepare(o.runCtx, selected)
	if err != nil {
		dec.Status = models.DecisionFailed
		dec.Reason = "swap aborted: " + err.Error()
		return
	}

	o.state.Store(int32(StateSwapping))
	if err := o.registry.Promote(o.runCtx, selected.ID); err != nil {
		dec.Status = models.DecisionFailed
		dec.Reason = "promotion failed: " + err.Error()
		o.logger.Error("promotion failed", zap.String("decision", dec.ID), zap.Error(err))
		return
	}
	o.swapper.Commit(prepared)

	if len(resp.ReferenceSample) > 0 {
		b := baseline.FromRows(resp.ReferenceSample, time.Now().UTC())
		if err := o.baselines.Replace(o.runCtx, b); err != nil {
			o.logger.Error("failed to replace baseline after swap", zap.Error(err))
		}
	}

	dec.Status = models.DecisionAccepted
	dec.PromotedID = selected.ID
	o.logger.Info("retrain accepted",
		zap.String("decision", dec.ID),
		zap.String("promoted", selected.ID))
}

// Rollback swaps a previously retired version back into service. It shares
// the single-flight guard with the drift cycle so a rollback never races a
// retrain on the active-model slot.
func (o *Orchestrator) Rollback(ctx context.Context, id string) error {
	if !o.inFlight.CompareAndSwap(false, true) {
		return ErrCycleInFlight
	}
	defer func() {
		o.state.Store(int32(StateIdle))
		o.inFlight.Store(false)
	}()

	mv, ok := o.registry.Get(id)
	if !ok {
		return errors.New("model version not found: " + id)
	}
	if mv.Status == models.StatusCandidate {
		return errors.New("cannot roll back to an unvalidated candidate")
	}

	o.state.Store(int32(StateValidating))
	prepared, err := o.swapper.Prepare(ctx, mv)
	if err != nil {
		return err
	}

	o.state.Store(int32(StateSwapping))
	if err := o.registry.Promote(ctx, id); err != nil {
		return err
	}
	o.swapper.Commit(prepared)
	o.logger.Info("rollback complete", zap.String("id", id))
	return nil
}
