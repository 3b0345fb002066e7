package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"parcel-sorter/internal/core/logger"
	"parcel-sorter/internal/core/metrics"
	chutedomain "parcel-sorter/internal/features/chute/domain"
	chuteports "parcel-sorter/internal/features/chute/ports"
	congestion "parcel-sorter/internal/features/congestion/domain"
	executionports "parcel-sorter/internal/features/execution/ports"
	reroute "parcel-sorter/internal/features/reroute/domain"
	"parcel-sorter/internal/features/sorting/domain"
	"parcel-sorter/internal/features/sorting/ports"
	topology "parcel-sorter/internal/features/topology/domain"
	topologyports "parcel-sorter/internal/features/topology/ports"
	trackingports "parcel-sorter/internal/features/tracking/ports"

	"go.uber.org/zap"
)

// Config holds the orchestrator settings.
type Config struct {
	SortingMode      chutedomain.SortingMode
	ExceptionChuteID int64
	// ParcelTTL is the budget from detection to the chute.
	ParcelTTL time.Duration
	// ArrivalWindow is the nominal transit from the sensor to the first diverter.
	ArrivalWindow time.Duration
	// NotifyTimeout bounds one asynchronous notification.
	NotifyTimeout time.Duration
}

// Dependencies are the collaborators of the orchestrator.
type Dependencies struct {
	Tracking   trackingports.TrackingService
	Plans      ports.PlanStore
	Window     ports.LoadWindow
	Detector   ports.CongestionAssessor
	Policy     ports.OverloadPolicy
	Selector   chuteports.ChuteSelector
	Generator  topologyports.PathGenerator
	Rebuilder  ports.TopologyRebuilder
	Nodes      ports.NodeRegistry
	Executor   ports.PathExecutor
	Executions *Executions
	// Notifier may be nil.
	Notifier ports.Notifier
	Metrics  *metrics.Collector
}

// Orchestrator runs every parcel through congestion evaluation, chute
// selection, path planning and execution. Whatever fails, the parcel goes
// to the exception chute; only an unreachable exception chute is a hard failure.
type Orchestrator struct {
	cfg  Config
	deps Dependencies
	now  func() time.Time

	notifications sync.WaitGroup
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(cfg Config, deps Dependencies) *Orchestrator {
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 10 * time.Second
	}
	if deps.Executions == nil {
		deps.Executions = NewExecutions()
	}
	return &Orchestrator{cfg: cfg, deps: deps, now: time.Now}
}

// ProcessParcel sorts one detected parcel. The tracking record and route plan
// exist before any upstream call is made. Errors never escape: they end in the
// exception chute or a failed result.
func (o *Orchestrator) ProcessParcel(ctx context.Context, parcelID uint64, sensorID string, detectedAt *time.Time) domain.SortingResult {
	started := o.now()
	detected := started
	if detectedAt != nil && !detectedAt.IsZero() {
		detected = *detectedAt
	}

	log := logger.Named("sorting").With(zap.Uint64("parcel_id", parcelID), zap.String("sensor_id", sensorID))
	o.deps.Metrics.RecordDetected()

	// Detected
	if _, err := o.deps.Tracking.Create(parcelID, detected); err != nil {
		log.Warn("Parcel rejected", zap.Error(err))
		return o.failed(parcelID, 0, fmt.Sprintf("tracking: %v", err))
	}
	h := o.deps.Executions.Register(parcelID)
	defer o.deps.Executions.Release(h)

	if err := o.deps.Plans.CreatePlan(ctx, parcelID, detected); err != nil {
		log.Warn("Failed to create route plan, chute changes will be refused", zap.Error(err))
	}

	o.deps.Window.ParcelStarted()
	result := o.route(ctx, log, h, parcelID, detected)
	o.deps.Window.ParcelFinished(result.IsSuccess, o.now().Sub(started))

	snap := o.deps.Window.Snapshot()
	o.deps.Metrics.SetInFlight(snap.InFlightParcels)
	o.deps.Metrics.RecordSorted(outcome(result), o.now().Sub(started))
	return result
}

func (o *Orchestrator) route(ctx context.Context, log *zap.Logger, h *Handle, parcelID uint64, detected time.Time) domain.SortingResult {
	snap := o.deps.Window.Snapshot()
	assessment := o.deps.Detector.Assess(snap)
	o.deps.Metrics.SetInFlight(snap.InFlightParcels)
	o.deps.Metrics.SetCongestionLevel(int(assessment.Level))

	elapsed := o.now().Sub(detected)
	decision := o.deps.Policy.Evaluate(congestion.OverloadContext{
		Level:           assessment.Level,
		InFlightParcels: snap.InFlightParcels,
		RemainingTTL:    o.cfg.ParcelTTL - elapsed,
		ArrivalWindow:   o.cfg.ArrivalWindow - elapsed,
	})
	h.Advance(domain.StateCongestionEvaluated)
	if decision.Action() != "continue" {
		o.deps.Metrics.RecordOverload(string(decision.ReasonCode), decision.Action())
		log.Warn("Overload policy triggered",
			zap.String("level", assessment.Level.String()),
			zap.String("action", decision.Action()),
			zap.String("reason_code", string(decision.ReasonCode)),
			zap.String("reason", decision.Reason),
		)
	}
	if decision.ShouldForceException {
		return o.divert(ctx, log, h, parcelID, 0, fmt.Sprintf("overload: %s", decision.Reason))
	}

	selection := o.deps.Selector.SelectChute(ctx, chutedomain.SortingContext{
		ParcelID:    parcelID,
		SortingMode: o.cfg.SortingMode,
		DetectedAt:  detected,
	})
	h.Advance(domain.StateChuteSelected)
	switch selection.Kind {
	case chutedomain.SelectionSuccess:
	case chutedomain.SelectionException:
		return o.divert(ctx, log, h, parcelID, selection.ChuteID, selection.Reason)
	default:
		return o.divert(ctx, log, h, parcelID, 0, fmt.Sprintf("chute selection failed: %s", selection.Reason))
	}

	target, err := o.deps.Plans.AssignTarget(ctx, parcelID, selection.ChuteID)
	if err != nil {
		log.Warn("Failed to record target in route plan", zap.Error(err))
		target = selection.ChuteID
	}
	if target != selection.ChuteID {
		log.Info("Chute change accepted before planning", zap.Int64("selected", selection.ChuteID), zap.Int64("target", target))
	}
	if _, err := o.deps.Tracking.UpdateAssigned(parcelID, target); err != nil {
		log.Warn("Failed to mark parcel assigned", zap.Error(err))
	}
	o.transition(ctx, log, parcelID, reroute.PlanExecuting)

	path := o.deps.Generator.GeneratePath(target)
	if path == nil {
		return o.divert(ctx, log, h, parcelID, target, fmt.Sprintf("no path to chute %d", target))
	}

	// chute changes now wait for the executor, so no plan call may block
	// until Execute returns
	h.Arm(target)
	return o.execute(ctx, log, parcelID, path, h)
}

// execute runs path and reports the outcome. reroutes may be nil.
func (o *Orchestrator) execute(ctx context.Context, log *zap.Logger, parcelID uint64, path *topology.SwitchingPath, reroutes executionports.Reroutes) domain.SortingResult {
	if _, err := o.deps.Tracking.UpdateRouting(parcelID); err != nil {
		log.Warn("Failed to mark parcel routing", zap.Error(err))
	}

	res := o.deps.Executor.Execute(ctx, parcelID, path, reroutes)
	if res.Cancelled {
		log.Warn("Execution cancelled, leaving parcel to the timeout monitor", zap.String("reason", res.FailureReason))
		return o.failed(parcelID, res.TargetChuteID, res.FailureReason)
	}
	if !res.IsSuccess {
		reason := res.FailureReason
		if res.TimedOut {
			reason = fmt.Sprintf("timed out; %s", reason)
		}
		return o.undeliverable(ctx, log, parcelID, res.TargetChuteID, reason, res.TimedOut)
	}

	if _, err := o.deps.Tracking.UpdateSorted(parcelID, res.ActualChuteID); err != nil {
		log.Warn("Failed to mark parcel sorted", zap.Error(err))
	}
	if res.TimedOut {
		return o.timedOut(ctx, log, parcelID, res.TargetChuteID, res.ActualChuteID, res.SegmentsCompleted)
	}

	result := domain.SortingResult{
		ParcelID:          parcelID,
		IsSuccess:         true,
		TargetChuteID:     res.TargetChuteID,
		ActualChuteID:     res.ActualChuteID,
		IsExceptionRouted: res.UsedBackup,
		PathSegmentCount:  res.SegmentsCompleted,
		CompletedAt:       o.now(),
	}
	if res.UsedBackup {
		result.FailureReason = "segment failed, routed to exception chute"
		o.transition(ctx, log, parcelID, reroute.PlanExceptionRouted)
		log.Warn("Parcel sorted to exception chute after segment failure", zap.Int64("target", res.TargetChuteID))
	} else {
		o.transition(ctx, log, parcelID, reroute.PlanCompleted)
		log.Info("Parcel sorted", zap.Int64("chute", res.ActualChuteID), zap.Int("segments", res.SegmentsCompleted))
	}

	o.notify(domain.SortingCompletedNotification{
		ParcelID:      parcelID,
		ActualChuteID: result.ActualChuteID,
		CompletedAt:   result.CompletedAt,
		IsSuccess:     true,
		FinalStatus:   domain.FinalSuccess,
	})
	return result
}

// divert handles a parcel that must leave before its path was armed. A chute
// change accepted in the meantime is honoured; a timeout reroute is reported
// as a timeout.
func (o *Orchestrator) divert(ctx context.Context, log *zap.Logger, h *Handle, parcelID uint64, target int64, reason string) domain.SortingResult {
	r := h.Seal()
	switch {
	case r == nil, !r.Timeout && r.Path.TargetChuteID == target:
		return o.exceptionRoute(ctx, log, parcelID, target, reason, false)
	case r.Timeout:
		return o.exceptionRoute(ctx, log, parcelID, target, "timed out", true)
	}

	log.Info("Chute change accepted before routing, skipping exception chute",
		zap.Int64("chute", r.Path.TargetChuteID),
		zap.String("reason", reason),
	)
	if _, err := o.deps.Tracking.UpdateAssigned(parcelID, r.Path.TargetChuteID); err != nil {
		log.Warn("Failed to mark parcel assigned", zap.Error(err))
	}
	o.transition(ctx, log, parcelID, reroute.PlanExecuting)
	return o.execute(ctx, log, parcelID, r.Path, nil)
}

// exceptionRoute sends the parcel to the exception chute. target is the
// chute that could not be used, or zero. The plan stops accepting chute
// changes before the first diverter moves.
func (o *Orchestrator) exceptionRoute(ctx context.Context, log *zap.Logger, parcelID uint64, target int64, reason string, timedOut bool) domain.SortingResult {
	exception := o.cfg.ExceptionChuteID
	if target == 0 {
		target = exception
	}
	log.Warn("Routing parcel to exception chute", zap.String("reason", reason), zap.Int64("target", target))

	path := o.deps.Generator.GeneratePath(exception)
	if path == nil {
		return o.undeliverable(ctx, log, parcelID, target, fmt.Sprintf("%s; no path to exception chute %d", reason, exception), timedOut)
	}
	o.transition(ctx, log, parcelID, reroute.PlanExceptionRouted)

	if !timedOut {
		if _, err := o.deps.Tracking.UpdateAssigned(parcelID, exception); err != nil {
			log.Warn("Failed to mark parcel assigned", zap.Error(err))
		}
		if _, err := o.deps.Tracking.UpdateRouting(parcelID); err != nil {
			log.Warn("Failed to mark parcel routing", zap.Error(err))
		}
	}

	res := o.deps.Executor.Execute(ctx, parcelID, path, nil)
	if res.Cancelled {
		return o.failed(parcelID, target, res.FailureReason)
	}
	if !res.IsSuccess {
		return o.undeliverable(ctx, log, parcelID, target, fmt.Sprintf("%s; %s", reason, res.FailureReason), timedOut)
	}

	if _, err := o.deps.Tracking.UpdateSorted(parcelID, res.ActualChuteID); err != nil {
		log.Warn("Failed to mark parcel sorted", zap.Error(err))
	}
	if timedOut {
		return o.timedOut(ctx, log, parcelID, target, res.ActualChuteID, res.SegmentsCompleted)
	}

	o.notify(domain.SortingCompletedNotification{
		ParcelID:      parcelID,
		ActualChuteID: res.ActualChuteID,
		CompletedAt:   o.now(),
		IsSuccess:     true,
		FinalStatus:   domain.FinalSuccess,
	})

	return domain.SortingResult{
		ParcelID:          parcelID,
		IsSuccess:         true,
		TargetChuteID:     target,
		ActualChuteID:     res.ActualChuteID,
		IsExceptionRouted: true,
		FailureReason:     reason,
		PathSegmentCount:  res.SegmentsCompleted,
		CompletedAt:       o.now(),
	}
}

// timedOut reports a timed out parcel that reached the exception chute. The
// result keeps the chute the parcel was meant for.
func (o *Orchestrator) timedOut(ctx context.Context, log *zap.Logger, parcelID uint64, target, actual int64, segments int) domain.SortingResult {
	o.transition(ctx, log, parcelID, reroute.PlanExceptionRouted)
	log.Warn("Timed out parcel routed to exception chute", zap.Int64("target", target), zap.Int64("chute", actual))

	completed := o.now()
	o.notify(domain.SortingCompletedNotification{
		ParcelID:      parcelID,
		ActualChuteID: actual,
		CompletedAt:   completed,
		FinalStatus:   domain.FinalTimeout,
	})
	return domain.SortingResult{
		ParcelID:          parcelID,
		TargetChuteID:     target,
		ActualChuteID:     actual,
		IsExceptionRouted: true,
		FailureReason:     "timed out",
		PathSegmentCount:  segments,
		CompletedAt:       completed,
	}
}

// undeliverable reports a parcel that could not reach even the exception
// chute. A timed out parcel is left to the lost sweep, which reports it.
func (o *Orchestrator) undeliverable(ctx context.Context, log *zap.Logger, parcelID uint64, target int64, reason string, timedOut bool) domain.SortingResult {
	if !timedOut {
		return o.doubleFallback(ctx, log, parcelID, target, reason)
	}
	log.Error("Timed out parcel did not reach the exception chute",
		zap.Int64("target", target),
		zap.String("reason", reason),
	)
	o.deps.Metrics.RecordDoubleFallback()
	return o.failed(parcelID, target, reason)
}

// doubleFallback reports a parcel that could not even reach the exception chute.
func (o *Orchestrator) doubleFallback(ctx context.Context, log *zap.Logger, parcelID uint64, target int64, reason string) domain.SortingResult {
	log.Error("Exception chute unreachable, parcel not sorted",
		zap.Int64("target", target),
		zap.Int64("exception_chute", o.cfg.ExceptionChuteID),
		zap.String("reason", reason),
	)
	o.deps.Metrics.RecordDoubleFallback()
	o.transition(ctx, log, parcelID, reroute.PlanFailed)
	o.notify(domain.SortingCompletedNotification{
		ParcelID:    parcelID,
		CompletedAt: o.now(),
		FinalStatus: domain.FinalExecutionError,
	})
	return o.failed(parcelID, target, reason)
}

func (o *Orchestrator) failed(parcelID uint64, target int64, reason string) domain.SortingResult {
	return domain.SortingResult{
		ParcelID:      parcelID,
		TargetChuteID: target,
		FailureReason: reason,
		CompletedAt:   o.now(),
	}
}

// ExecuteDebugSort plans and executes a path without tracking or upstream routing.
func (o *Orchestrator) ExecuteDebugSort(ctx context.Context, parcelID uint64, targetChuteID int64) domain.SortingResult {
	log := logger.Named("sorting").With(zap.Uint64("parcel_id", parcelID), zap.Bool("debug", true))

	path := o.deps.Generator.GeneratePath(targetChuteID)
	if path == nil {
		log.Warn("Debug sort to unreachable chute", zap.Int64("target", targetChuteID))
		return o.failed(parcelID, targetChuteID, fmt.Sprintf("no path to chute %d", targetChuteID))
	}

	res := o.deps.Executor.Execute(ctx, parcelID, path, nil)
	if !res.IsSuccess {
		return domain.SortingResult{
			ParcelID:         parcelID,
			TargetChuteID:    targetChuteID,
			FailureReason:    res.FailureReason,
			PathSegmentCount: len(path.Segments),
			CompletedAt:      o.now(),
		}
	}

	result := domain.SortingResult{
		ParcelID:          parcelID,
		IsSuccess:         true,
		TargetChuteID:     targetChuteID,
		ActualChuteID:     res.ActualChuteID,
		IsExceptionRouted: res.UsedBackup,
		PathSegmentCount:  len(path.Segments),
		CompletedAt:       o.now(),
	}
	if res.UsedBackup {
		result.FailureReason = "segment failed, routed to exception chute"
	}
	return result
}

// ProcessTimedOutParcel marks the parcel timed out and sends it to the
// exception chute. A parcel still executing is rerouted in place once its
// executor takes the exception path; that execution then reports the outcome.
// A parcel past its last reroute point keeps its path.
func (o *Orchestrator) ProcessTimedOutParcel(ctx context.Context, parcelID uint64) domain.SortingResult {
	log := logger.Named("sorting").With(zap.Uint64("parcel_id", parcelID))

	record, err := o.deps.Tracking.UpdateTimedOut(parcelID)
	if err != nil {
		log.Warn("Cannot time out parcel", zap.Error(err))
		return o.failed(parcelID, 0, fmt.Sprintf("tracking: %v", err))
	}

	target := o.cfg.ExceptionChuteID
	if record.TargetChuteID != nil {
		target = *record.TargetChuteID
	}

	exception := o.cfg.ExceptionChuteID
	path := o.deps.Generator.GeneratePath(exception)
	if path == nil {
		return o.undeliverable(ctx, log, parcelID, target, fmt.Sprintf("timed out; no path to exception chute %d", exception), true)
	}

	ticket, err := o.deps.Executions.PushException(parcelID, path)
	switch {
	case errors.Is(err, ErrNoExecution):
		res := o.exceptionRoute(ctx, log, parcelID, target, "timed out", true)
		if res.ActualChuteID != 0 {
			o.deps.Metrics.RecordSorted(metrics.OutcomeTimeout, o.now().Sub(record.DetectedAt))
		}
		return res
	case err != nil:
		log.Info("Timed out parcel keeps its path", zap.Error(err))
		return o.failed(parcelID, target, fmt.Sprintf("timed out: %v", err))
	}

	if err := ticket.Wait(ctx); err != nil {
		state, _ := o.deps.Executions.State(parcelID)
		log.Info("Timed out parcel passed its last reroute point, keeping its path",
			zap.String("state", string(state)),
			zap.Error(err),
		)
		return o.failed(parcelID, target, fmt.Sprintf("timed out too late to reroute: %v", err))
	}

	o.transition(ctx, log, parcelID, reroute.PlanExceptionRouted)
	log.Warn("Timed out parcel still executing, rerouted to exception chute", zap.Int64("target", target))
	return domain.SortingResult{
		ParcelID:          parcelID,
		TargetChuteID:     target,
		ActualChuteID:     exception,
		IsExceptionRouted: true,
		FailureReason:     "timed out",
		PathSegmentCount:  len(path.Segments),
		CompletedAt:       o.now(),
	}
}

// MarkLost records a parcel that never reached any chute.
func (o *Orchestrator) MarkLost(ctx context.Context, parcelID uint64) error {
	log := logger.Named("sorting").With(zap.Uint64("parcel_id", parcelID))

	record, err := o.deps.Tracking.UpdateLost(parcelID)
	if err != nil {
		return err
	}

	log.Error("Parcel lost", zap.Time("detected_at", record.DetectedAt))
	o.deps.Metrics.RecordSorted(metrics.OutcomeLost, o.now().Sub(record.DetectedAt))
	o.transition(ctx, log, parcelID, reroute.PlanDeprecated)
	o.notify(domain.SortingCompletedNotification{
		ParcelID:    parcelID,
		CompletedAt: o.now(),
		FinalStatus: domain.FinalLost,
	})
	return nil
}

// CleanupExpired drops finished parcels detected before olderThan together
// with their route plans. It returns how many were removed.
func (o *Orchestrator) CleanupExpired(ctx context.Context, olderThan time.Time) int {
	removed := o.deps.Tracking.CleanupExpired(ctx, olderThan)
	for _, r := range removed {
		if err := o.deps.Plans.Forget(ctx, r.ParcelID); err != nil {
			logger.Named("sorting").Warn("Failed to drop route plan", zap.Uint64("parcel_id", r.ParcelID), zap.Error(err))
		}
	}
	return len(removed)
}

// RebuildCaches reloads the topology. Parcels in flight keep the path they hold.
func (o *Orchestrator) RebuildCaches(ctx context.Context) error {
	if err := o.deps.Rebuilder.Rebuild(ctx); err != nil {
		return err
	}
	if o.deps.Nodes != nil {
		o.deps.Nodes.SetKnownNodes(o.deps.Rebuilder.Topology().NodeIDs())
	}
	logger.Named("sorting").Info("Topology caches rebuilt")
	return nil
}

// Wait blocks until every pending notification has been sent or given up.
func (o *Orchestrator) Wait() {
	o.notifications.Wait()
}

func (o *Orchestrator) notify(n domain.SortingCompletedNotification) {
	if o.deps.Notifier == nil {
		return
	}

	o.notifications.Add(1)
	go func() {
		defer o.notifications.Done()

		ctx, cancel := context.WithTimeout(context.Background(), o.cfg.NotifyTimeout)
		defer cancel()

		if err := o.deps.Notifier.Notify(ctx, n); err != nil {
			logger.Named("sorting").Warn("Failed to send completion notification",
				zap.Uint64("parcel_id", n.ParcelID),
				zap.String("final_status", string(n.FinalStatus)),
				zap.Error(err),
			)
		}
	}()
}

func (o *Orchestrator) transition(ctx context.Context, log *zap.Logger, parcelID uint64, status reroute.PlanStatus) {
	if err := o.deps.Plans.Transition(ctx, parcelID, status); err != nil {
		log.Debug("Route plan not updated", zap.String("status", string(status)), zap.Error(err))
	}
}

func outcome(r domain.SortingResult) string {
	switch {
	case r.IsSuccess && r.IsExceptionRouted:
		return metrics.OutcomeException
	case r.IsSuccess:
		return metrics.OutcomeTarget
	case r.ActualChuteID != 0:
		// timed out, delivered to the exception chute
		return metrics.OutcomeTimeout
	default:
		return metrics.OutcomeFailed
	}
}
