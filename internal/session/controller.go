// SPDX-License-Identifier: MIT

// Package session owns the capture lifecycle. A single run loop applies
// every mutation: API commands, monitor notifications and watchdog
// ticks all funnel into the same goroutine, so transitions are serial
// and the configuration bracket can never overlap itself.
package session

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ManuGH/camwatch/internal/device"
	"github.com/ManuGH/camwatch/internal/events"
	"github.com/ManuGH/camwatch/internal/frames"
	"github.com/ManuGH/camwatch/internal/fsm"
	"github.com/ManuGH/camwatch/internal/journal"
	"github.com/ManuGH/camwatch/internal/log"
	"github.com/ManuGH/camwatch/internal/metrics"
	"github.com/ManuGH/camwatch/internal/permission"
	"github.com/ManuGH/camwatch/internal/pressure"
)

const (
	publishTimeout = 2 * time.Second
	commandBacklog = 16
)

// clock abstracts time for tests.
type clock interface {
	Now() time.Time
	NewTicker(d time.Duration) ticker
}

type ticker interface {
	C() <-chan time.Time
	Stop()
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTicker(d time.Duration) ticker { return realTicker{time.NewTicker(d)} }

type realTicker struct{ t *time.Ticker }

func (t realTicker) C() <-chan time.Time { return t.t.C }
func (t realTicker) Stop()               { t.t.Stop() }

// Recorder receives lifecycle journal entries. A nil Recorder is valid
// and drops everything.
type Recorder interface {
	Record(journal.Entry)
}

// Config tunes the controller.
type Config struct {
	// MaxSessionAge forces a restart once the running session gets this
	// old. Defaults to 30 minutes.
	MaxSessionAge time.Duration
	// WatchdogInterval is the age and liveness check cadence. Defaults
	// to one second.
	WatchdogInterval time.Duration
	// InitialProfile is the capture tier a fresh session starts with.
	InitialProfile device.QualityProfile
	// InitialOrientation seeds the rotation before the sensor reports.
	InitialOrientation device.Orientation
}

func (c Config) withDefaults() Config {
	if c.MaxSessionAge <= 0 {
		c.MaxSessionAge = 30 * time.Minute
	}
	if c.WatchdogInterval <= 0 {
		c.WatchdogInterval = time.Second
	}
	if c.InitialProfile == "" {
		c.InitialProfile = device.ProfileNormal
	}
	if c.InitialOrientation == "" {
		c.InitialOrientation = device.OrientationUnknown
	}
	return c
}

type commandKind int

const (
	cmdStart commandKind = iota
	cmdStartResolved
	cmdPause
	cmdResume
	cmdStop
)

type command struct {
	kind              commandKind
	requirePermission bool
	reason            string
	state             device.AccessState
	err               error
	reply             chan error
}

type photoRef struct{ out device.PhotoOutput }

// Controller drives the capture session through its lifecycle. All
// mutable state below the commands channel is owned by the Run
// goroutine; readers go through the published Status snapshot.
type Controller struct {
	cfg      Config
	config   *Configurator
	monitor  *permission.Monitor
	bus      events.Bus
	journal  Recorder
	holder   *frames.Holder
	clock    clock
	commands chan command
	machine  *fsm.Machine[RunState, EventKind]

	graph              *Graph
	pipeCancel         context.CancelFunc
	pipeDone           chan struct{}
	sessionID          string
	startedAt          time.Time
	lastMotionAt       time.Time
	permission         device.AccessState
	profile            device.QualityProfile
	orientation        device.Orientation
	pauseCause         EventKind
	resumeOnForeground bool
	lastErr            string

	status      atomic.Pointer[Status]
	photoOut    atomic.Pointer[photoRef]
	lastFrameNS atomic.Int64
}

// NewController wires the controller. The journal recorder may be nil.
func NewController(backend device.Backend, strategy device.SelectionStrategy, monitor *permission.Monitor, bus events.Bus, rec Recorder, holder *frames.Holder, cfg Config) (*Controller, error) {
	machine, err := fsm.New(StateStopped, lifecycle())
	if err != nil {
		return nil, fmt.Errorf("build lifecycle machine: %w", err)
	}
	c := &Controller{
		cfg:      cfg.withDefaults(),
		config:   NewConfigurator(backend, strategy),
		monitor:  monitor,
		bus:      bus,
		journal:  rec,
		holder:   holder,
		clock:    realClock{},
		commands: make(chan command, commandBacklog),
		machine:  machine,
	}
	c.profile = c.cfg.InitialProfile
	c.orientation = c.cfg.InitialOrientation
	c.permission = device.AccessUndetermined
	c.publishStatus()
	return c, nil
}

// Status returns the latest published snapshot.
func (c *Controller) Status() Status { return *c.status.Load() }

// Running reports whether the capture graph is live.
func (c *Controller) Running() bool { return c.Status().State == StateRunning }

// Paused reports whether the stream is paused.
func (c *Controller) Paused() bool { return c.Status().State == StatePaused }

// SessionID returns the current logical session identifier, empty when
// no session exists.
func (c *Controller) SessionID() string { return c.Status().SessionID }

// PermissionGranted reports whether camera access is authorized.
func (c *Controller) PermissionGranted() bool {
	return c.Status().Permission == device.AccessAuthorized
}

// PhotoOutput returns the live still output, or nil when none is
// attached. The output survives a pause, so a capture attempt while
// paused fails on the running check rather than on a missing output.
func (c *Controller) PhotoOutput() device.PhotoOutput {
	if ref := c.photoOut.Load(); ref != nil {
		return ref.out
	}
	return nil
}

// Start brings the session up. With requirePermission set the call
// first obtains camera access, waiting for the outcome when the state
// is still undetermined; without it an unauthorized state fails fast.
// Starting an existing session is a no-op.
func (c *Controller) Start(ctx context.Context, requirePermission bool) error {
	return c.enqueueWait(ctx, command{kind: cmdStart, requirePermission: requirePermission})
}

// PauseStream halts frame delivery but keeps the device open. Pausing
// a session that is not running is a no-op.
func (c *Controller) PauseStream(ctx context.Context) error {
	return c.enqueueWait(ctx, command{kind: cmdPause})
}

// ResumeStream rebuilds the capture graph and continues delivery.
// Resuming a session that is not paused is a no-op.
func (c *Controller) ResumeStream(ctx context.Context) error {
	return c.enqueueWait(ctx, command{kind: cmdResume})
}

// Stop tears the session down. Stopping a stopped session is a no-op.
func (c *Controller) Stop(ctx context.Context) error {
	return c.enqueueWait(ctx, command{kind: cmdStop, reason: "stop_command"})
}

// AskForPermission triggers the system access request and reports the
// resulting state. It does not touch the session lifecycle.
func (c *Controller) AskForPermission(ctx context.Context) (device.AccessState, error) {
	return c.monitor.Request(ctx).Await(ctx)
}

func (c *Controller) enqueueWait(ctx context.Context, cmd command) error {
	cmd.reply = make(chan error, 1)
	select {
	case c.commands <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes the control loop until the context ends. Any live
// session is torn down on exit.
func (c *Controller) Run(ctx context.Context) error {
	logger := log.WithComponent("session")
	ctx = logger.WithContext(ctx)

	subPerm, err := c.bus.Subscribe(ctx, events.TopicPermission)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", events.TopicPermission, err)
	}
	defer func() { _ = subPerm.Close() }()
	subPressure, err := c.bus.Subscribe(ctx, events.TopicPressure)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", events.TopicPressure, err)
	}
	defer func() { _ = subPressure.Close() }()
	subMotion, err := c.bus.Subscribe(ctx, events.TopicMotion)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", events.TopicMotion, err)
	}
	defer func() { _ = subMotion.Close() }()
	subOrientation, err := c.bus.Subscribe(ctx, events.TopicOrientation)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", events.TopicOrientation, err)
	}
	defer func() { _ = subOrientation.Close() }()
	subVisibility, err := c.bus.Subscribe(ctx, events.TopicVisibility)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", events.TopicVisibility, err)
	}
	defer func() { _ = subVisibility.Close() }()
	subDevice, err := c.bus.Subscribe(ctx, events.TopicDevice)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", events.TopicDevice, err)
	}
	defer func() { _ = subDevice.Close() }()

	wd := c.clock.NewTicker(c.cfg.WatchdogInterval)
	defer wd.Stop()

	c.permission = c.monitor.State()
	c.publishStatus()
	logger.Info().Str("event", "session.loop.start").Msg("session controller running")

	permCh := subPerm.C()
	pressureCh := subPressure.C()
	motionCh := subMotion.C()
	orientationCh := subOrientation.C()
	visibilityCh := subVisibility.C()
	deviceCh := subDevice.C()

	for {
		select {
		case <-ctx.Done():
			c.shutdown(ctx)
			logger.Info().Str("event", "session.loop.stop").Msg("session controller stopped")
			return nil
		case cmd := <-c.commands:
			c.handleCommand(ctx, cmd)
		case msg, ok := <-permCh:
			if !ok {
				permCh = nil
				continue
			}
			if change, ok := msg.(events.PermissionChange); ok {
				c.onPermission(ctx, change)
			}
		case msg, ok := <-pressureCh:
			if !ok {
				pressureCh = nil
				continue
			}
			if change, ok := msg.(events.PressureChange); ok {
				c.onPressure(ctx, change)
			}
		case msg, ok := <-motionCh:
			if !ok {
				motionCh = nil
				continue
			}
			c.onMotion(ctx, msg)
		case msg, ok := <-orientationCh:
			if !ok {
				orientationCh = nil
				continue
			}
			if change, ok := msg.(events.OrientationChange); ok {
				c.onOrientation(ctx, change)
			}
		case msg, ok := <-visibilityCh:
			if !ok {
				visibilityCh = nil
				continue
			}
			if change, ok := msg.(events.VisibilityChange); ok {
				c.onVisibility(ctx, change)
			}
		case msg, ok := <-deviceCh:
			if !ok {
				deviceCh = nil
				continue
			}
			if change, ok := msg.(events.DeviceChange); ok {
				c.onDevice(ctx, change)
			}
		case now := <-wd.C():
			c.onTick(ctx, now)
		}
	}
}

func (c *Controller) shutdown(ctx context.Context) {
	st := c.machine.State()
	if st == StateRunning || st == StatePaused {
		_ = c.stop(ctx, EventStop, "shutdown")
	}
}

func (c *Controller) handleCommand(ctx context.Context, cmd command) {
	switch cmd.kind {
	case cmdStart:
		c.handleStart(ctx, cmd)
	case cmdStartResolved:
		c.handleStartResolved(ctx, cmd)
	case cmdPause:
		cmd.reply <- c.pause(ctx, EventPause, "pause_command")
	case cmdResume:
		cmd.reply <- c.resume(ctx, EventResume, "resume_command")
	case cmdStop:
		c.resumeOnForeground = false
		cmd.reply <- c.stop(ctx, EventStop, cmd.reason)
	}
}

func (c *Controller) handleStart(ctx context.Context, cmd command) {
	if c.machine.State() != StateStopped {
		cmd.reply <- nil
		return
	}
	if c.permission == device.AccessAuthorized {
		cmd.reply <- c.startSession(ctx, "start_command")
		return
	}
	if !cmd.requirePermission {
		cmd.reply <- permission.DeniedError(c.permission)
		return
	}
	// Resolve access off the loop, then re-enter with the outcome. The
	// loop stays responsive while the user decides.
	fut := c.monitor.Request(ctx)
	go func() {
		state, err := fut.Await(ctx)
		resolved := command{kind: cmdStartResolved, state: state, err: err, reply: cmd.reply}
		select {
		case c.commands <- resolved:
		case <-ctx.Done():
			cmd.reply <- ctx.Err()
		}
	}()
}

func (c *Controller) handleStartResolved(ctx context.Context, cmd command) {
	if cmd.err != nil {
		cmd.reply <- cmd.err
		return
	}
	c.permission = cmd.state
	if cmd.state != device.AccessAuthorized {
		c.publishStatus()
		cmd.reply <- permission.DeniedError(cmd.state)
		return
	}
	if c.machine.State() != StateStopped {
		c.publishStatus()
		cmd.reply <- nil
		return
	}
	cmd.reply <- c.startSession(ctx, "start_command")
}

func (c *Controller) startSession(ctx context.Context, reason string) error {
	c.sessionID = uuid.NewString()
	c.profile = c.cfg.InitialProfile
	c.lastErr = ""
	if err := c.fire(ctx, EventStart, reason); err != nil {
		return err
	}
	if err := c.configureAndRun(ctx, reason); err != nil {
		return err
	}
	now := c.clock.Now()
	c.startedAt = now
	c.lastMotionAt = now
	metrics.SetSessionAge(0)
	c.publishStatus()
	return nil
}

// configureAndRun builds a graph for the current profile and completes
// the Configuring or Restarting pass. On failure the machine lands in
// Stopped, the session identity is cleared and the error is returned.
func (c *Controller) configureAndRun(ctx context.Context, reason string) error {
	g, err := c.config.Configure(ctx, c.profile, c.orientation)
	if err != nil {
		c.lastErr = err.Error()
		_ = c.fire(ctx, EventConfigureFailed, reason)
		c.sessionID = ""
		c.startedAt = time.Time{}
		metrics.SetSessionAge(0)
		c.publishStatus()
		return err
	}
	c.adoptGraph(ctx, g)
	if err := c.fire(ctx, EventConfigured, reason); err != nil {
		c.teardownGraph()
		return err
	}
	return nil
}

func (c *Controller) adoptGraph(ctx context.Context, g *Graph) {
	c.graph = g
	if g.Photos != nil {
		c.photoOut.Store(&photoRef{out: g.Photos})
	} else {
		c.photoOut.Store(nil)
	}

	pipe := frames.NewPipe(c.holder)
	pipe.OnFrame = func(at time.Time) {
		c.lastFrameNS.Store(at.UnixNano())
	}
	pipeCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.pipeCancel = cancel
	c.pipeDone = done
	in := g.Frames.Frames()
	go func() {
		defer close(done)
		_ = pipe.Run(pipeCtx, in)
	}()
}

func (c *Controller) teardownGraph() {
	if c.graph == nil {
		return
	}
	c.photoOut.Store(nil)
	if c.pipeCancel != nil {
		c.pipeCancel()
		<-c.pipeDone
		c.pipeCancel = nil
		c.pipeDone = nil
	}
	c.config.Teardown(c.graph)
	c.graph = nil
}

func (c *Controller) pause(ctx context.Context, ev EventKind, reason string) error {
	if c.machine.State() != StateRunning {
		return nil
	}
	if err := c.fire(ctx, ev, reason); err != nil {
		return err
	}
	c.pauseCause = ev
	// The graph stays built; only frame flow stops. Resume rebuilds it
	// from scratch regardless.
	if c.graph != nil {
		c.graph.Input.StopRunning()
	}
	return nil
}

func (c *Controller) resume(ctx context.Context, ev EventKind, reason string) error {
	if c.machine.State() != StatePaused {
		return nil
	}
	if err := c.fire(ctx, ev, reason); err != nil {
		return err
	}
	c.pauseCause = ""
	c.teardownGraph()
	return c.configureAndRun(ctx, reason)
}

func (c *Controller) stop(ctx context.Context, ev EventKind, reason string) error {
	st := c.machine.State()
	if st != StateRunning && st != StatePaused {
		return nil
	}
	if err := c.fire(ctx, ev, reason); err != nil {
		return err
	}
	c.pauseCause = ""
	c.teardownGraph()
	c.sessionID = ""
	c.startedAt = time.Time{}
	metrics.SetSessionAge(0)
	c.publishStatus()
	return nil
}

// fire commits one transition, then records it everywhere a transition
// is visible: metrics, journal, log, bus and the status snapshot.
func (c *Controller) fire(ctx context.Context, ev EventKind, reason string) error {
	from := c.machine.State()
	to, err := c.machine.Fire(ev)
	if err != nil {
		return err
	}
	metrics.IncStateTransition(string(from), string(to), reason)
	metrics.SetRunState(to.Ordinal())
	c.record(journal.Entry{
		SessionID: c.sessionID,
		Event:     string(ev),
		FromState: string(from),
		ToState:   string(to),
		Reason:    reason,
	})
	log.FromContext(ctx).Info().
		Str("event", "session.state.change").
		Str(log.FieldSessionID, c.sessionID).
		Str(log.FieldOldState, string(from)).
		Str(log.FieldNewState, string(to)).
		Str(log.FieldReason, reason).
		Msg("session state changed")
	c.publishState(ctx, from, to, reason)
	c.publishStatus()
	return nil
}

func (c *Controller) record(e journal.Entry) {
	if c.journal == nil {
		return
	}
	e.TS = c.clock.Now()
	c.journal.Record(e)
}

func (c *Controller) publishState(ctx context.Context, from, to RunState, reason string) {
	pctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	err := c.bus.Publish(pctx, events.TopicState, events.StateChange{
		From:      string(from),
		To:        string(to),
		Reason:    reason,
		SessionID: c.sessionID,
	})
	if err != nil {
		log.FromContext(ctx).Warn().Err(err).
			Str("event", "session.state.publish_failed").
			Msg("state change not published")
	}
}

func (c *Controller) publishStatus() {
	var lastFrame time.Time
	if ns := c.lastFrameNS.Load(); ns > 0 {
		lastFrame = time.Unix(0, ns)
	}
	st := Status{
		State:       c.machine.State(),
		SessionID:   c.sessionID,
		Profile:     c.profile,
		Orientation: c.orientation,
		Permission:  c.permission,
		Hint:        permission.RemediationHint(c.permission),
		LastError:   c.lastErr,
		Health: Health{
			StartedAt:    c.startedAt,
			LastFrameAt:  lastFrame,
			LastMotionAt: c.lastMotionAt,
		},
	}
	st.Paused = st.State == StatePaused
	c.status.Store(&st)
}

func (c *Controller) onPermission(ctx context.Context, change events.PermissionChange) {
	c.permission = device.AccessState(change.To)
	if c.permission == device.AccessAuthorized {
		c.publishStatus()
		return
	}
	st := c.machine.State()
	if st == StateRunning || st == StatePaused {
		_ = c.stop(ctx, EventPermissionLost, "permission_"+change.To)
		return
	}
	c.publishStatus()
}

func (c *Controller) onPressure(ctx context.Context, change events.PressureChange) {
	switch pressure.Level(change.Level) {
	case pressure.LevelHigh:
		_ = c.pause(ctx, EventPressureHigh, "pressure_high")
	case pressure.LevelEmergency:
		// Degrade first so any later configure, including the resume
		// after this pause, runs subdued.
		c.profile = device.ProfileSubdued
		c.publishStatus()
		_ = c.pause(ctx, EventPressureEmergency, "pressure_emergency")
	case pressure.LevelNormal:
		// Recovery never auto-resumes; motion or an explicit resume does.
	}
}

func (c *Controller) onMotion(ctx context.Context, msg events.Message) {
	switch m := msg.(type) {
	case events.MotionActivity:
		c.lastMotionAt = m.At
		// Motion wakes an idle pause. Explicit and pressure pauses hold
		// until resolved by their own paths.
		if c.machine.State() == StatePaused && c.pauseCause == EventIdleTimeout {
			_ = c.resume(ctx, EventActivity, "motion")
			return
		}
		c.publishStatus()
	case events.IdleTimeout:
		_ = c.pause(ctx, EventIdleTimeout, "idle_timeout")
	}
}

func (c *Controller) onOrientation(ctx context.Context, change events.OrientationChange) {
	o := device.Orientation(change.Orientation)
	if o == c.orientation {
		return
	}
	c.orientation = o
	if c.graph != nil {
		if !c.graph.Input.SetOrientation(o) {
			log.FromContext(ctx).Debug().
				Str(log.FieldOrientation, string(o)).
				Msg("orientation applies on next rebuild")
		}
	}
	c.publishStatus()
}

func (c *Controller) onVisibility(ctx context.Context, change events.VisibilityChange) {
	if !change.Foreground {
		st := c.machine.State()
		if st == StateRunning || st == StatePaused {
			c.resumeOnForeground = true
			_ = c.stop(ctx, EventBackground, "background")
		}
		return
	}
	if c.resumeOnForeground && c.machine.State() == StateStopped {
		c.resumeOnForeground = false
		if c.permission == device.AccessAuthorized {
			_ = c.startSession(ctx, "foreground")
		}
	}
}

func (c *Controller) onDevice(ctx context.Context, change events.DeviceChange) {
	if change.Op != events.DeviceRemoved || c.graph == nil {
		return
	}
	if c.graph.Device.Path != change.Path {
		return
	}
	c.lastErr = fmt.Sprintf("capture device %s removed", change.Path)
	_ = c.stop(ctx, EventDeviceLost, "device_removed")
}

func (c *Controller) onTick(ctx context.Context, now time.Time) {
	if ns := c.lastFrameNS.Load(); ns > 0 {
		metrics.SetLatestFrameAge(now.Sub(time.Unix(0, ns)))
	}
	if c.machine.State() == StateRunning && !c.startedAt.IsZero() {
		age := now.Sub(c.startedAt)
		metrics.SetSessionAge(age)
		if age >= c.cfg.MaxSessionAge {
			c.restart(ctx)
			return
		}
	}
	c.publishStatus()
}

// restart cycles an over-age session through Restarting back to
// Running. The age resets, so the next crossing is a full MaxSessionAge
// away and each crossing restarts exactly once.
func (c *Controller) restart(ctx context.Context) {
	if err := c.fire(ctx, EventMaxAge, "max_age"); err != nil {
		return
	}
	metrics.IncSessionRestart("max_age")
	c.teardownGraph()
	if err := c.configureAndRun(ctx, "max_age_restart"); err != nil {
		log.FromContext(ctx).Warn().Err(err).
			Str("event", "session.restart.failed").
			Str(log.FieldSessionID, c.sessionID).
			Msg("session restart failed")
		return
	}
	c.startedAt = c.clock.Now()
	metrics.SetSessionAge(0)
	c.publishStatus()
}
