package supervisor

// #region imports
import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/vault-sentinel/go-controlplane/internal/lifecycle"
	"github.com/danielpatrickdp/vault-sentinel/go-controlplane/internal/telemetry"
)

// #endregion

// #region supervisor

// Supervisor watches every registered component, scores its health each
// cycle, and drives escalating repairs when a component stays unhealthy.
// All lifecycle mutation goes through the controller; the supervisor never
// touches component state directly.
type Supervisor struct {
	ctrl   *lifecycle.Controller
	config Config

	mu         sync.Mutex
	health     map[string]*ComponentHealth
	standbys   map[string]any    // component -> redundant instance
	probeNames map[string]string // component -> health service name
	history    []RepairAction

	blueprints BlueprintSource
	backups    BackupStore
	memory     *Memory
	prober     Prober
	sink       telemetry.Sink
	clock      func() time.Time
}

// NewSupervisor creates a supervisor over the given controller.
func NewSupervisor(ctrl *lifecycle.Controller, config Config) *Supervisor {
	return &Supervisor{
		ctrl:       ctrl,
		config:     config,
		health:     make(map[string]*ComponentHealth),
		standbys:   make(map[string]any),
		probeNames: make(map[string]string),
		sink:       telemetry.NopSink{},
		clock:      func() time.Time { return time.Now().UTC() },
	}
}

// SetBlueprintSource wires the blueprint store used by reinitialization.
func (s *Supervisor) SetBlueprintSource(src BlueprintSource) { s.blueprints = src }

// SetBackupStore wires the snapshot store used by rollback.
func (s *Supervisor) SetBackupStore(store BackupStore) { s.backups = store }

// SetMemory wires the repair strategy memory.
func (s *Supervisor) SetMemory(mem *Memory) { s.memory = mem }

// SetProber wires an out-of-band liveness prober.
func (s *Supervisor) SetProber(p Prober) { s.prober = p }

// SetSink attaches a telemetry sink.
func (s *Supervisor) SetSink(sink telemetry.Sink) {
	if sink != nil {
		s.sink = sink
	}
}

// SetClock overrides the time source. Test hook.
func (s *Supervisor) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

// MarkCritical flags a component as critical. Critical components escalate
// to standby replacement instead of backup rollback, and exhausting their
// repair budget triggers an emergency shutdown.
func (s *Supervisor) MarkCritical(component string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthFor(component).IsCritical = true
}

// RegisterStandby provides the redundant instance used by the
// replace-with-redundant strategy.
func (s *Supervisor) RegisterStandby(component string, instance any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.standbys[component] = instance
}

// ProbeService maps a component to its health probe service name.
func (s *Supervisor) ProbeService(component, service string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.probeNames[component] = service
}

// Health returns a copy of the tracking record for a component.
func (s *Supervisor) Health(component string) (ComponentHealth, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.health[component]
	if !ok {
		return ComponentHealth{}, false
	}
	return *h, true
}

// History returns executed repair actions, oldest first.
func (s *Supervisor) History() []RepairAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RepairAction{}, s.history...)
}

// healthFor must be called with s.mu held.
func (s *Supervisor) healthFor(component string) *ComponentHealth {
	h, ok := s.health[component]
	if !ok {
		h = &ComponentHealth{ComponentName: component, HealthScore: 1.0}
		s.health[component] = h
	}
	return h
}

// #endregion supervisor

// #region run

// Run executes the monitoring loop until the context is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	log.Printf("[REPAIR] supervisor started: interval=%s threshold=%.2f",
		s.config.Interval, s.config.HealthThreshold)
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[REPAIR] supervisor stopped")
			return
		case <-ticker.C:
			s.CheckNow(ctx)
		}
	}
}

// CheckNow runs one monitoring cycle: score every component, track failure
// streaks, and trigger repairs where the streak crosses the threshold.
func (s *Supervisor) CheckNow(ctx context.Context) {
	status := s.ctrl.SystemStatus()

	for name, rec := range status.Components {
		score := Score(rec, s.clockNow())
		score -= s.probePenalty(ctx, name)
		if score < 0 {
			score = 0
		}

		s.mu.Lock()
		h := s.healthFor(name)
		h.HealthScore = score
		h.LastChecked = s.clock()

		if score >= s.config.HealthThreshold {
			h.ConsecutiveFailures = 0
			h.RepairAttempts = 0
			h.Escalated = false
			h.LastError = ""
			s.mu.Unlock()
			continue
		}

		h.ConsecutiveFailures++
		h.TotalFailures++
		streak := h.ConsecutiveFailures
		triggered := streak >= s.config.MaxConsecutiveFailures && !h.Escalated
		s.mu.Unlock()

		log.Printf("[REPAIR] %s unhealthy: score=%.2f streak=%d", name, score, streak)

		if triggered {
			if err := s.triggerRepair(ctx, name); err != nil {
				log.Printf("[REPAIR] %s: %v", name, err)
			}
		}
	}
}

func (s *Supervisor) clockNow() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock()
}

// probePenalty returns 0.3 when the component has a probe mapping and the
// probe reports it down, 0 otherwise.
func (s *Supervisor) probePenalty(ctx context.Context, component string) float64 {
	s.mu.Lock()
	service, ok := s.probeNames[component]
	prober := s.prober
	s.mu.Unlock()
	if !ok || prober == nil {
		return 0
	}
	alive, err := prober.Check(ctx, service)
	if err != nil || !alive {
		return 0.3
	}
	return 0
}

// #endregion run

// #region trigger-repair

// triggerRepair selects and executes one repair attempt. When the attempt
// budget is spent, a critical component gets a single emergency shutdown;
// a non-critical one is left alone until it recovers on its own.
func (s *Supervisor) triggerRepair(ctx context.Context, component string) error {
	s.mu.Lock()
	h := s.healthFor(component)

	if h.RepairAttempts >= s.config.MaxRepairAttempts {
		critical := h.IsCritical
		alreadyEscalated := h.Escalated
		h.Escalated = true
		s.mu.Unlock()

		if critical && !alreadyEscalated {
			return s.emergencyShutdown(ctx, component)
		}
		return fmt.Errorf("%s: %w", component, ErrRepairExhausted)
	}

	attempt := h.RepairAttempts
	h.RepairAttempts++
	strategy := selectStrategy(h, attempt, s.memory)
	s.mu.Unlock()

	log.Printf("[REPAIR] %s: attempt %d using %s", component, attempt+1, strategy)

	began := s.clockNow()
	err := s.execute(ctx, component, strategy)
	s.recordAction(component, strategy, began, err)

	if err != nil {
		return fmt.Errorf("repair %s with %s: %w", component, strategy, err)
	}

	// A successful repair clears the episode; health starts back at 0.8,
	// not full trust.
	s.mu.Lock()
	h = s.healthFor(component)
	h.ConsecutiveFailures = 0
	h.RepairAttempts = 0
	h.HealthScore = 0.8
	s.mu.Unlock()
	return nil
}

func (s *Supervisor) recordAction(component string, strategy Strategy, began time.Time, err error) {
	action := RepairAction{
		ActionID:      uuid.NewString(),
		ComponentName: component,
		Strategy:      strategy,
		Timestamp:     began,
		Success:       err == nil,
		RecoveryTime:  s.clockNow().Sub(began),
	}
	if err != nil {
		action.ErrorMessage = err.Error()
		s.mu.Lock()
		s.healthFor(component).LastError = err.Error()
		s.mu.Unlock()
	}

	s.mu.Lock()
	s.history = append(s.history, action)
	mem := s.memory
	s.mu.Unlock()

	if mem != nil {
		if rerr := mem.RecordAction(action); rerr != nil {
			log.Printf("[REPAIR] failed to record action for %s: %v", component, rerr)
		}
	}

	e := telemetry.NewEvent(component, "repair_"+string(strategy), action.RecoveryTime, action.Success)
	if !action.Success {
		e.Severity = telemetry.SeverityWarning
	}
	e.Metadata = map[string]string{"action_id": action.ActionID}
	s.sink.Emit(e)
}

// #endregion trigger-repair

// #region execute

func (s *Supervisor) execute(ctx context.Context, component string, strategy Strategy) error {
	switch strategy {
	case StrategyIsolateAndRestart:
		return s.isolateAndRestart(component)
	case StrategyReinitializeFromBlueprint:
		return s.reinitializeFromBlueprint(component)
	case StrategyRollbackToBackup:
		return s.rollbackToBackup(component)
	case StrategyReplaceWithRedundant:
		return s.replaceWithRedundant(component)
	case StrategyEmergencyShutdown:
		return s.emergencyShutdown(ctx, component)
	default:
		return fmt.Errorf("unknown strategy %q", strategy)
	}
}

// isolateAndRestart force-stops the component (isolating its dependents),
// runs its repair hook, pauses, and starts it again.
func (s *Supervisor) isolateAndRestart(component string) error {
	if err := s.ctrl.Stop(component, false); err != nil {
		return fmt.Errorf("isolate: %w", err)
	}
	if err := s.ctrl.Repair(component); err != nil {
		return fmt.Errorf("repair hook: %w", err)
	}
	if s.config.RestartPause > 0 {
		time.Sleep(s.config.RestartPause)
	}
	if err := s.ctrl.Start(component); err != nil {
		return fmt.Errorf("restart: %w", err)
	}
	return nil
}

// reinitializeFromBlueprint replaces the component's instance with its
// known-good blueprint and starts it fresh.
func (s *Supervisor) reinitializeFromBlueprint(component string) error {
	if s.blueprints == nil {
		return ErrNoBlueprint
	}
	blueprint, ok, err := s.blueprints.GetBlueprint(component)
	if err != nil {
		return fmt.Errorf("fetch blueprint: %w", err)
	}
	if !ok {
		return ErrNoBlueprint
	}
	if err := s.ctrl.Replace(component, blueprint); err != nil {
		return fmt.Errorf("replace from blueprint: %w", err)
	}
	if err := s.ctrl.Start(component); err != nil {
		return fmt.Errorf("start after reinitialize: %w", err)
	}
	return nil
}

// rollbackToBackup restores the most recent snapshot and starts from it.
func (s *Supervisor) rollbackToBackup(component string) error {
	if s.backups == nil {
		return ErrNoBackup
	}
	snapshot, ok, err := s.backups.GetBackup(component)
	if err != nil {
		return fmt.Errorf("fetch backup: %w", err)
	}
	if !ok {
		return ErrNoBackup
	}
	if err := s.ctrl.Replace(component, snapshot); err != nil {
		return fmt.Errorf("replace from backup: %w", err)
	}
	if err := s.ctrl.Start(component); err != nil {
		return fmt.Errorf("start after rollback: %w", err)
	}
	return nil
}

// replaceWithRedundant swaps in the registered standby instance.
func (s *Supervisor) replaceWithRedundant(component string) error {
	s.mu.Lock()
	standby, ok := s.standbys[component]
	s.mu.Unlock()
	if !ok {
		return ErrNoStandby
	}
	if err := s.ctrl.Replace(component, standby); err != nil {
		return fmt.Errorf("replace with standby: %w", err)
	}
	if err := s.ctrl.Start(component); err != nil {
		return fmt.Errorf("start standby: %w", err)
	}
	return nil
}

// emergencyShutdown force-stops the component, which cascades an ungraceful
// stop through every dependent. Fires at most once per escalation episode.
func (s *Supervisor) emergencyShutdown(_ context.Context, component string) error {
	log.Printf("[REPAIR] EMERGENCY SHUTDOWN: %s exhausted its repair budget", component)

	began := s.clockNow()
	err := s.ctrl.Stop(component, false)
	s.recordAction(component, StrategyEmergencyShutdown, began, err)

	e := telemetry.NewEvent(component, "emergency_shutdown", s.clockNow().Sub(began), err == nil)
	e.Severity = telemetry.SeverityCritical
	s.sink.Emit(e)

	if err != nil {
		return fmt.Errorf("emergency shutdown of %s: %w", component, err)
	}
	return nil
}

// #endregion execute
