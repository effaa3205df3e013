package lifecycle

// #region imports
import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/danielpatrickdp/vault-sentinel/go-controlplane/internal/telemetry"
)

// #endregion

// #region controller

const defaultHookTimeout = 30 * time.Second

// Controller owns the component registry and state machine. All mutating
// operations serialize under one mutex so cascading dependency walks never
// observe a half-transitioned graph.
type Controller struct {
	mu          sync.Mutex
	components  map[string]*component
	order       []string // registration order, for deterministic traversal
	nextOrder   int
	hookTimeout time.Duration
	sink        telemetry.Sink
	clock       func() time.Time
}

// NewController creates a controller. hookTimeout bounds every hook
// invocation; zero means the 30s default. sink may be nil.
func NewController(hookTimeout time.Duration, sink telemetry.Sink) *Controller {
	if hookTimeout <= 0 {
		hookTimeout = defaultHookTimeout
	}
	if sink == nil {
		sink = telemetry.NopSink{}
	}
	return &Controller{
		components:  make(map[string]*component),
		hookTimeout: hookTimeout,
		sink:        sink,
		clock:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source. Test hook.
func (c *Controller) SetClock(clock func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clock = clock
}

// #endregion controller

// #region register

// Register adds a component at Uninitialized and wires reverse dependents
// edges. Dependencies may name components registered later; such a component
// simply cannot start until they exist and are Active. Registration that
// would introduce a dependency cycle is rejected with nothing mutated.
func (c *Controller) Register(name string, dependencies []string, hooks Hooks) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if name == "" {
		return fmt.Errorf("register: empty component name")
	}
	if _, ok := c.components[name]; ok {
		return fmt.Errorf("register %q: %w", name, ErrAlreadyRegistered)
	}

	depSet := make(map[string]struct{}, len(dependencies))
	deps := make([]string, 0, len(dependencies))
	for _, d := range dependencies {
		if d == name {
			return fmt.Errorf("register %q: depends on itself: %w", name, ErrCycleDetected)
		}
		if _, dup := depSet[d]; dup {
			continue
		}
		depSet[d] = struct{}{}
		deps = append(deps, d)
	}

	comp := &component{
		name:           name,
		state:          StateUninitialized,
		healthScore:    1.0,
		deps:           deps,
		depSet:         depSet,
		lastTransition: c.clock(),
		hooks:          hooks,
		order:          c.nextOrder,
	}

	c.components[name] = comp
	if cycle := c.findCycleFrom(name); cycle != nil {
		delete(c.components, name)
		return fmt.Errorf("register %q: %v: %w", name, cycle, ErrCycleDetected)
	}
	c.order = append(c.order, name)
	c.nextOrder++

	// Reverse edges: this component onto its registered dependencies, and
	// any earlier forward declarations of this name onto it.
	for _, d := range deps {
		if dep, ok := c.components[d]; ok {
			dep.dependents = append(dep.dependents, name)
		}
	}
	for _, other := range c.order {
		o := c.components[other]
		if o == comp {
			continue
		}
		if _, declared := o.depSet[name]; declared {
			comp.dependents = append(comp.dependents, other)
		}
	}

	log.Printf("[LIFECYCLE] registered %q deps=%v", name, deps)
	c.emit(name, "register", 0, true, nil)
	return nil
}

// findCycleFrom walks declared dependency edges from name. Unregistered
// dependency names have no out-edges and cannot close a cycle.
func (c *Controller) findCycleFrom(name string) []string {
	var path []string
	onPath := make(map[string]bool)
	visited := make(map[string]bool)

	var walk func(n string) []string
	walk = func(n string) []string {
		comp, ok := c.components[n]
		if !ok {
			return nil
		}
		if onPath[n] {
			return append(append([]string{}, path...), n)
		}
		if visited[n] {
			return nil
		}
		visited[n] = true
		onPath[n] = true
		path = append(path, n)
		for _, d := range comp.deps {
			if cyc := walk(d); cyc != nil {
				return cyc
			}
		}
		path = path[:len(path)-1]
		onPath[n] = false
		return nil
	}
	return walk(name)
}

// Deregister removes a component. Only legal when it is not running and
// nothing registered depends on it.
func (c *Controller) Deregister(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	comp, ok := c.components[name]
	if !ok {
		return fmt.Errorf("deregister %q: %w", name, ErrUnknownComponent)
	}
	switch comp.state {
	case StateUninitialized, StateStopped, StateError:
	default:
		return fmt.Errorf("deregister %q from %s: %w", name, comp.state, ErrInvalidTransition)
	}
	if len(comp.dependents) > 0 {
		return fmt.Errorf("deregister %q: %d dependents still registered: %w",
			name, len(comp.dependents), ErrInvalidTransition)
	}

	delete(c.components, name)
	for i, n := range c.order {
		if n == name {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	for _, d := range comp.deps {
		if dep, ok := c.components[d]; ok {
			dep.dependents = removeName(dep.dependents, name)
		}
	}
	c.emit(name, "deregister", 0, true, nil)
	return nil
}

// #endregion register

// #region start

// Start activates a component. All dependencies must be Active; otherwise
// the component moves to Error and ErrDependencyNotReady is returned. On
// success, Stopped dependents whose dependencies are now all Active are
// started too (cascading activation).
func (c *Controller) Start(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startLocked(name)
}

func (c *Controller) startLocked(name string) error {
	comp, ok := c.components[name]
	if !ok {
		return fmt.Errorf("start %q: %w", name, ErrUnknownComponent)
	}
	switch comp.state {
	case StateActive:
		return nil
	case StateUninitialized, StateStopped:
	default:
		return fmt.Errorf("start %q from %s: %w", name, comp.state, ErrInvalidTransition)
	}

	if err := c.startOne(comp); err != nil {
		return err
	}
	c.cascadeActivation(comp)
	return nil
}

// startOne performs the dependency check and the Initializing to Active
// transition for a single component. No cascade.
func (c *Controller) startOne(comp *component) error {
	began := c.clock()
	for _, d := range comp.deps {
		dep, ok := c.components[d]
		if !ok || dep.state != StateActive {
			comp.errorCount++
			c.setState(comp, StateError)
			err := fmt.Errorf("start %q: dependency %q: %w", comp.name, d, ErrDependencyNotReady)
			c.emit(comp.name, "start", c.clock().Sub(began), false, err)
			return err
		}
	}

	c.setState(comp, StateInitializing)
	if err := c.runHook(comp.name, "start", func(ctx context.Context) error {
		if comp.hooks.Start == nil {
			return nil
		}
		return comp.hooks.Start(ctx)
	}); err != nil {
		comp.errorCount++
		c.setState(comp, StateError)
		c.emit(comp.name, "start", c.clock().Sub(began), false, err)
		return err
	}

	comp.healthScore = 1.0
	c.setState(comp, StateActive)
	c.emit(comp.name, "start", c.clock().Sub(began), true, nil)
	return nil
}

// cascadeActivation starts Stopped dependents of each newly Active component
// whose dependencies are all Active. Failures are recorded on the dependent
// and do not abort the cascade.
func (c *Controller) cascadeActivation(root *component) {
	work := []*component{root}
	for len(work) > 0 {
		cur := work[0]
		work = work[1:]
		for _, dn := range cur.dependents {
			dep, ok := c.components[dn]
			if !ok || dep.state != StateStopped {
				continue
			}
			if !c.depsAllActive(dep) {
				continue
			}
			if err := c.startOne(dep); err != nil {
				log.Printf("[LIFECYCLE] cascade start %q failed: %v", dn, err)
				continue
			}
			work = append(work, dep)
		}
	}
}

func (c *Controller) depsAllActive(comp *component) bool {
	for _, d := range comp.deps {
		dep, ok := c.components[d]
		if !ok || dep.state != StateActive {
			return false
		}
	}
	return true
}

// #endregion start

// #region stop

// Stop halts a component, first stopping every running transitive dependent
// (dependents before the component itself) so no Active component is ever
// left pointing at a non-Active dependency.
func (c *Controller) Stop(name string, graceful bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopLocked(name, graceful)
}

func (c *Controller) stopLocked(name string, graceful bool) error {
	comp, ok := c.components[name]
	if !ok {
		return fmt.Errorf("stop %q: %w", name, ErrUnknownComponent)
	}
	switch comp.state {
	case StateStopped:
		return nil
	case StateActive, StateSuspended, StateInitializing, StateError:
	default:
		return fmt.Errorf("stop %q from %s: %w", name, comp.state, ErrInvalidTransition)
	}

	var firstErr error
	for _, dn := range c.dependentsPostOrder(name) {
		dep := c.components[dn]
		switch dep.state {
		case StateActive, StateSuspended, StateInitializing:
			if err := c.stopOne(dep, graceful); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	if err := c.stopOne(comp, graceful); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (c *Controller) stopOne(comp *component, graceful bool) error {
	began := c.clock()
	c.setState(comp, StateStopping)
	if err := c.runHook(comp.name, "stop", func(ctx context.Context) error {
		if comp.hooks.Stop == nil {
			return nil
		}
		return comp.hooks.Stop(ctx, graceful)
	}); err != nil {
		comp.errorCount++
		c.setState(comp, StateError)
		c.emit(comp.name, "stop", c.clock().Sub(began), false, err)
		return err
	}
	c.setState(comp, StateStopped)
	c.emit(comp.name, "stop", c.clock().Sub(began), true, nil)
	return nil
}

// dependentsPostOrder returns the transitive dependents of root, deepest
// first, using an explicit stack (no unbounded recursion).
func (c *Controller) dependentsPostOrder(root string) []string {
	type frame struct {
		name string
		next int
	}
	var out []string
	seen := map[string]bool{root: true}
	stack := []frame{{name: root}}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		comp := c.components[top.name]
		if top.next < len(comp.dependents) {
			child := comp.dependents[top.next]
			top.next++
			if !seen[child] {
				seen[child] = true
				stack = append(stack, frame{name: child})
			}
			continue
		}
		if top.name != root {
			out = append(out, top.name)
		}
		stack = stack[:len(stack)-1]
	}
	return out
}

// #endregion stop

// #region suspend-resume

// Suspend pauses an Active component, suspending Active dependents first.
func (c *Controller) Suspend(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	comp, ok := c.components[name]
	if !ok {
		return fmt.Errorf("suspend %q: %w", name, ErrUnknownComponent)
	}
	if comp.state != StateActive {
		return fmt.Errorf("suspend %q from %s: %w", name, comp.state, ErrInvalidTransition)
	}

	for _, dn := range c.dependentsPostOrder(name) {
		dep := c.components[dn]
		if dep.state == StateActive {
			c.setState(dep, StateSuspended)
			c.emit(dn, "suspend", 0, true, nil)
		}
	}
	c.setState(comp, StateSuspended)
	c.emit(name, "suspend", 0, true, nil)
	return nil
}

// Resume reactivates a Suspended component and cascades re-activation to
// suspended dependents whose dependencies are all Active, exactly like
// start's cascade.
func (c *Controller) Resume(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	comp, ok := c.components[name]
	if !ok {
		return fmt.Errorf("resume %q: %w", name, ErrUnknownComponent)
	}
	if comp.state != StateSuspended {
		return fmt.Errorf("resume %q from %s: %w", name, comp.state, ErrInvalidTransition)
	}
	for _, d := range comp.deps {
		dep, ok := c.components[d]
		if !ok || dep.state != StateActive {
			comp.errorCount++
			c.setState(comp, StateError)
			err := fmt.Errorf("resume %q: dependency %q: %w", name, d, ErrDependencyNotReady)
			c.emit(name, "resume", 0, false, err)
			return err
		}
	}

	c.setState(comp, StateActive)
	c.emit(name, "resume", 0, true, nil)

	work := []*component{comp}
	for len(work) > 0 {
		cur := work[0]
		work = work[1:]
		for _, dn := range cur.dependents {
			dep, ok := c.components[dn]
			if !ok || dep.state != StateSuspended {
				continue
			}
			if !c.depsAllActive(dep) {
				continue
			}
			c.setState(dep, StateActive)
			c.emit(dn, "resume", 0, true, nil)
			work = append(work, dep)
		}
	}
	return nil
}

// #endregion suspend-resume

// #region repair-replace

// Repair runs the repair hook. Valid only from Error or Stopped. A repaired
// component lands in Stopped, ready for Start, with its health explicitly
// degraded to 0.8 rather than restored to full trust.
func (c *Controller) Repair(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	comp, ok := c.components[name]
	if !ok {
		return fmt.Errorf("repair %q: %w", name, ErrUnknownComponent)
	}
	switch comp.state {
	case StateError, StateStopped:
	default:
		return fmt.Errorf("repair %q from %s: %w", name, comp.state, ErrInvalidTransition)
	}

	began := c.clock()
	c.setState(comp, StateRepairing)
	if err := c.runHook(name, "repair", func(ctx context.Context) error {
		if comp.hooks.Repair == nil {
			return nil
		}
		return comp.hooks.Repair(ctx)
	}); err != nil {
		comp.errorCount++
		c.setState(comp, StateError)
		c.emit(name, "repair", c.clock().Sub(began), false, err)
		return err
	}

	comp.healthScore = 0.8
	c.setState(comp, StateStopped)
	c.emit(name, "repair", c.clock().Sub(began), true, nil)
	return nil
}

// Replace swaps the component's underlying instance, stopping it first if
// running. Error count resets; the component lands in Stopped.
func (c *Controller) Replace(name string, newInstance any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	comp, ok := c.components[name]
	if !ok {
		return fmt.Errorf("replace %q: %w", name, ErrUnknownComponent)
	}
	switch comp.state {
	case StateActive, StateSuspended, StateInitializing:
		if err := c.stopLocked(name, true); err != nil {
			return fmt.Errorf("replace %q: %w", name, err)
		}
	}

	began := c.clock()
	if err := c.runHook(name, "replace", func(ctx context.Context) error {
		if comp.hooks.Replace == nil {
			return nil
		}
		return comp.hooks.Replace(ctx, newInstance)
	}); err != nil {
		comp.errorCount++
		c.setState(comp, StateError)
		c.emit(name, "replace", c.clock().Sub(began), false, err)
		return err
	}

	comp.instance = newInstance
	comp.errorCount = 0
	c.setState(comp, StateStopped)
	c.emit(name, "replace", c.clock().Sub(began), true, nil)
	return nil
}

// #endregion repair-replace

// #region status

// SystemStatus returns a snapshot copy of every component record plus the
// mean health score. Callers never hold the controller lock while consuming
// it.
func (c *Controller) SystemStatus() SystemStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := SystemStatus{
		Components: make(map[string]ComponentRecord, len(c.components)),
		TakenAt:    c.clock(),
	}
	var sum float64
	for name, comp := range c.components {
		status.Components[name] = ComponentRecord{
			Name:           comp.name,
			State:          comp.state,
			HealthScore:    comp.healthScore,
			ErrorCount:     comp.errorCount,
			Dependencies:   append([]string{}, comp.deps...),
			Dependents:     append([]string{}, comp.dependents...),
			LastTransition: comp.lastTransition,
		}
		sum += comp.healthScore
	}
	if len(c.components) > 0 {
		status.AggregateHealth = sum / float64(len(c.components))
	}
	return status
}

// Record returns the snapshot for a single component.
func (c *Controller) Record(name string) (ComponentRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	comp, ok := c.components[name]
	if !ok {
		return ComponentRecord{}, fmt.Errorf("record %q: %w", name, ErrUnknownComponent)
	}
	return ComponentRecord{
		Name:           comp.name,
		State:          comp.state,
		HealthScore:    comp.healthScore,
		ErrorCount:     comp.errorCount,
		Dependencies:   append([]string{}, comp.deps...),
		Dependents:     append([]string{}, comp.dependents...),
		LastTransition: comp.lastTransition,
	}, nil
}

// GracefulShutdown stops every running component in reverse dependency
// order: deepest dependents first.
func (c *Controller) GracefulShutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	order := c.topoOrder()
	var firstErr error
	for i := len(order) - 1; i >= 0; i-- {
		comp := c.components[order[i]]
		switch comp.state {
		case StateActive, StateSuspended, StateInitializing:
			if err := c.stopOne(comp, true); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// topoOrder returns names with dependencies before dependents, registration
// order breaking ties.
func (c *Controller) topoOrder() []string {
	indegree := make(map[string]int, len(c.components))
	for _, name := range c.order {
		comp := c.components[name]
		n := 0
		for _, d := range comp.deps {
			if _, ok := c.components[d]; ok {
				n++
			}
		}
		indegree[name] = n
	}

	var out []string
	remaining := append([]string{}, c.order...)
	for len(remaining) > 0 {
		picked := -1
		for i, name := range remaining {
			if indegree[name] == 0 {
				picked = i
				break
			}
		}
		if picked < 0 {
			// Unreachable while register rejects cycles; bail deterministically.
			sort.Strings(remaining)
			return append(out, remaining...)
		}
		name := remaining[picked]
		remaining = append(remaining[:picked], remaining[picked+1:]...)
		out = append(out, name)
		for _, dn := range c.components[name].dependents {
			indegree[dn]--
		}
	}
	return out
}

// #endregion status

// #region helpers

// runHook invokes fn bounded by the hook timeout. A hook that does not
// return within the bound is abandoned and reported as ErrHookTimeout so a
// stuck component cannot starve the rest of the control plane.
func (c *Controller) runHook(name, op string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.hookTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%s hook for %q: %w: %v", op, name, ErrHookFailure, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s hook for %q exceeded %s: %w", op, name, c.hookTimeout, ErrHookTimeout)
	}
}

func (c *Controller) setState(comp *component, next State) {
	if comp.state == next {
		return
	}
	log.Printf("[LIFECYCLE] %s: %s -> %s", comp.name, comp.state, next)
	comp.state = next
	comp.lastTransition = c.clock()
}

func (c *Controller) emit(component, operation string, duration time.Duration, success bool, err error) {
	e := telemetry.NewEvent(component, operation, duration, success)
	if err != nil {
		e.Metadata = map[string]string{"error": err.Error()}
	}
	c.sink.Emit(e)
}

func removeName(list []string, name string) []string {
	for i, n := range list {
		if n == name {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// #endregion helpers
