package danfoss

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"
)

// Controller defaults.
const (
	DefaultPollInterval = 5 * time.Second
	DefaultStartTimeout = 20 * time.Second

	defaultCommandTimeout   = 10 * time.Second
	defaultCommandQueueSize = 16
	eventBufferSize         = 64
)

// SettingHostname is the settings key whose change reinitialises the session.
const SettingHostname = "hostname"

// State is the session lifecycle state.
type State int

// Session states.
const (
	StateUninitialized State = iota
	StateInitializing
	StateAvailable
	StateUnavailable
	StateReinitializing
	StateRemoved
)

var allStates = []State{
	StateUninitialized,
	StateInitializing,
	StateAvailable,
	StateUnavailable,
	StateReinitializing,
	StateRemoved,
}

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateAvailable:
		return "available"
	case StateUnavailable:
		return "unavailable"
	case StateReinitializing:
		return "reinitializing"
	case StateRemoved:
		return "removed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is a snapshot of the session.
type Status struct {
	DeviceID            string    `json:"device_id"`
	State               State     `json:"state"`
	Host                string    `json:"host"`
	SerialNumber        uint32    `json:"serial_number,omitempty"`
	Available           bool      `json:"available"`
	ReinitPending       bool      `json:"reinit_pending"`
	ReinitAttempts      uint64    `json:"reinit_attempts"`
	DebounceActive      bool      `json:"debounce_active"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastError           string    `json:"last_error,omitempty"`
	Since               time.Time `json:"since"`
}

// SettingsChange describes a settings update.
type SettingsChange struct {
	OldHostname string
	NewHostname string
	ChangedKeys []string
}

// Options configures a Controller.
type Options struct {
	DeviceID string
	Host     string

	Factory  TransportFactory
	Platform Platform
	Reporter Reporter
	Logger   Logger
	Metrics  *Metrics

	DebounceWindow  time.Duration
	ReinitDelay     time.Duration
	PollInterval    time.Duration
	StartTimeout    time.Duration
	CommandTimeout  time.Duration
	ContinueOnError bool

	// CommandQueueSize bounds capability writes waiting to be forwarded.
	CommandQueueSize int
}

// commandJob is a capability write handed to the command worker.
type commandJob struct {
	gen   uint64
	tr    Transport
	cmd   Command
	reply chan error
}

// Controller owns the session with one unit.
//
// All session state lives on the goroutine running Run. Public methods post
// closures to it and wait for the result; transport callbacks and timer
// expiries are posted the same way, so no two transitions ever run
// concurrently. Transport I/O happens off the loop: Start and the serial
// reads on an init goroutine, capability writes on a FIFO command worker.
//
// Each transport is tagged with a generation. Callbacks from a transport
// that has since been torn down are dropped.
type Controller struct {
	deviceID string
	factory  TransportFactory
	platform Platform
	reporter Reporter
	logger   Logger
	metrics  *Metrics

	pollInterval    time.Duration
	startTimeout    time.Duration
	commandTimeout  time.Duration
	continueOnError bool

	events   chan func()
	commands chan commandJob
	done     chan struct{}

	// Owned by the event loop.
	runCtx       context.Context
	host         string
	state        State
	since        time.Time
	available    bool
	transport    Transport
	gen          uint64
	initializing bool
	initCancel   context.CancelFunc
	serial       uint32
	failures     int
	lastErr      error
	removed      bool
	translator   *Translator
	debounce     *DebounceGuard
	reinit       *ReinitScheduler
}

// NewController creates a controller. Call Run to start its event loop.
//
// Parameters:
//   - opts: Device identity, transport factory, platform and timings;
//     zero timings take defaults
//
// Returns:
//   - *Controller: Controller in the uninitialized state
//   - error: ErrTransportRequired or ErrPlatformRequired
func NewController(opts Options) (*Controller, error) {
	if opts.Factory == nil {
		return nil, ErrTransportRequired
	}
	if opts.Platform == nil {
		return nil, ErrPlatformRequired
	}

	c := &Controller{
		deviceID:        opts.DeviceID,
		factory:         opts.Factory,
		platform:        opts.Platform,
		reporter:        opts.Reporter,
		logger:          opts.Logger,
		metrics:         opts.Metrics,
		pollInterval:    opts.PollInterval,
		startTimeout:    opts.StartTimeout,
		commandTimeout:  opts.CommandTimeout,
		continueOnError: opts.ContinueOnError,
		events:          make(chan func(), eventBufferSize),
		done:            make(chan struct{}),
		host:            opts.Host,
		state:           StateUninitialized,
		since:           time.Now().UTC(),
		translator:      NewTranslator(),
	}
	if c.reporter == nil {
		c.reporter = noopReporter{}
	}
	if c.logger == nil {
		c.logger = noopLogger{}
	}
	if c.pollInterval <= 0 {
		c.pollInterval = DefaultPollInterval
	}
	if c.startTimeout <= 0 {
		c.startTimeout = DefaultStartTimeout
	}
	if c.commandTimeout <= 0 {
		c.commandTimeout = defaultCommandTimeout
	}
	queueSize := opts.CommandQueueSize
	if queueSize <= 0 {
		queueSize = defaultCommandQueueSize
	}
	c.commands = make(chan commandJob, queueSize)
	c.debounce = NewDebounceGuard(opts.DebounceWindow, c.post, c.logger)
	c.reinit = NewReinitScheduler(opts.ReinitDelay, c.post)
	c.metrics.setState(c.state)
	c.metrics.setAvailable(false)

	return c, nil
}

// Run processes events until ctx is cancelled, then tears the session down.
// It must be called exactly once.
func (c *Controller) Run(ctx context.Context) error {
	c.runCtx = ctx
	workerDone := make(chan struct{})
	go c.commandWorker(ctx, workerDone)

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			close(c.done)
			<-workerDone
			return ctx.Err()
		case fn := <-c.events:
			fn()
		}
	}
}

// Done is closed once the event loop has exited.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// post queues fn on the event loop. It returns false once the loop has exited.
func (c *Controller) post(fn func()) bool {
	select {
	case c.events <- fn:
		return true
	case <-c.done:
		return false
	}
}

// call runs fn on the event loop and waits for the value it sends on reply.
func call[T any](ctx context.Context, c *Controller, fn func(reply chan<- T)) (T, error) {
	var zero T
	reply := make(chan T, 1)

	select {
	case c.events <- func() { fn(reply) }:
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-c.done:
		return zero, ErrControllerStopped
	}

	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-c.done:
		return zero, ErrControllerStopped
	}
}

// callErr is call for operations whose only result is an error.
func (c *Controller) callErr(ctx context.Context, fn func(done func(error))) error {
	err, callErr := call(ctx, c, func(reply chan<- error) {
		fn(func(err error) {
			select {
			case reply <- err:
			default:
			}
		})
	})
	if callErr != nil {
		return callErr
	}
	return err
}

// =============================================================================
// Lifecycle hooks
// =============================================================================

// OnInit prepares the device and starts the session if a host is configured.
// The device is marked unavailable and the fan step capability removed until
// the unit reports manual mode. The initialisation error is returned so the
// caller can hand over to ScheduleRestart.
func (c *Controller) OnInit(ctx context.Context) error {
	return c.callErr(ctx, func(done func(error)) {
		if c.removed {
			done(ErrDeviceRemoved)
			return
		}
		c.logger.Info("device initialised", "device_id", c.deviceID, "hostname", c.host)
		c.setUnavailable("initialising")
		c.updateFanStep(false)
		c.initialize(done)
	})
}

// OnAdded is called when the device is first added.
func (c *Controller) OnAdded() {
	c.logger.Info("device added", "device_id", c.deviceID)
}

// OnRenamed is called when the device name changes.
func (c *Controller) OnRenamed(name string) {
	c.logger.Info("device renamed", "device_id", c.deviceID, "name", name)
}

// OnSettings applies a settings change. A hostname change cancels any
// pending restart, tears the session down and, if the new hostname is
// non-empty, initialises against it. An initialisation already in flight is
// superseded.
func (c *Controller) OnSettings(ctx context.Context, change SettingsChange) error {
	c.logger.Info("settings changed", "device_id", c.deviceID, "keys", change.ChangedKeys)
	if !slices.Contains(change.ChangedKeys, SettingHostname) {
		return nil
	}

	return c.callErr(ctx, func(done func(error)) {
		if c.removed {
			done(ErrDeviceRemoved)
			return
		}
		c.reinit.Cancel()
		c.setUnavailable("hostname changed")
		c.cleanup()
		c.host = change.NewHostname
		c.logger.Info("hostname changed", "device_id", c.deviceID, "old", change.OldHostname, "new", c.host)
		if c.host == "" {
			c.setState(StateUninitialized)
			done(nil)
			return
		}
		c.initialize(done)
	})
}

// OnDeleted cancels every timer and tears the session down. Nothing fires afterwards.
func (c *Controller) OnDeleted(ctx context.Context) error {
	return c.callErr(ctx, func(done func(error)) {
		if c.removed {
			done(nil)
			return
		}
		c.reinit.Cancel()
		c.debounce.Stop()
		c.cleanup()
		c.removed = true
		c.setState(StateRemoved)
		c.logger.Info("device deleted", "device_id", c.deviceID)
		done(nil)
	})
}

// =============================================================================
// Session operations
// =============================================================================

// Initialize starts a session against the configured host. A call made
// while another initialisation is in flight returns nil without starting a
// second transport.
func (c *Controller) Initialize(ctx context.Context) error {
	return c.callErr(ctx, func(done func(error)) {
		if c.removed {
			done(ErrDeviceRemoved)
			return
		}
		c.initialize(done)
	})
}

// ScheduleRestart arms a single recovery attempt. It is a no-op while an
// attempt is pending or an initialisation is in flight.
func (c *Controller) ScheduleRestart(ctx context.Context) error {
	return c.callErr(ctx, func(done func(error)) {
		if c.removed {
			done(ErrDeviceRemoved)
			return
		}
		c.scheduleRestart("restart requested")
		done(nil)
	})
}

// SetCapability writes a capability. Validation errors are returned;
// forwarding failures are logged and swallowed. It returns once the write
// has been forwarded or has failed.
func (c *Controller) SetCapability(ctx context.Context, capability string, value any) error {
	return c.callErr(ctx, func(done func(error)) {
		c.setCapabilityOnLoop(capability, value, done)
	})
}

// Status returns a snapshot of the session.
func (c *Controller) Status(ctx context.Context) (Status, error) {
	return call(ctx, c, func(reply chan<- Status) {
		reply <- c.status()
	})
}

// =============================================================================
// Event loop internals
// =============================================================================

func (c *Controller) initialize(done func(error)) {
	if c.host == "" {
		c.logger.Info("no hostname configured, not starting session", "device_id", c.deviceID)
		done(nil)
		return
	}
	if c.initializing {
		c.logger.Info("initialisation already in progress, skipping", "device_id", c.deviceID)
		done(nil)
		return
	}

	if c.transport != nil {
		c.setUnavailable("reinitialising session")
	}
	c.cleanup()
	c.initializing = true
	c.gen++
	gen := c.gen
	c.setState(StateInitializing)

	tr, err := c.factory(TransportOptions{
		Host:            c.host,
		ContinueOnError: c.continueOnError,
		PollInterval:    c.pollInterval,
		OnParameter: func(p Parameter) {
			c.post(func() { c.handleParameter(gen, p) })
		},
		OnError: func(err error, kind string) {
			c.post(func() { c.handleTransportError(gen, err, kind) })
		},
	})
	if err != nil {
		c.finishInit(gen, 0, fmt.Errorf("creating transport: %w", err), done)
		return
	}
	c.transport = tr

	startCtx, cancel := context.WithTimeout(c.runCtx, c.startTimeout)
	c.initCancel = cancel
	host := c.host

	go func() {
		defer cancel()
		serial, err := startTransport(startCtx, tr)
		if err != nil {
			err = fmt.Errorf("starting session with %s: %w", host, err)
		}
		if !c.post(func() { c.finishInit(gen, serial, err, done) }) {
			// Loop is gone; shutdown already cleaned up the transport.
			return
		}
	}()
}

// startTransport runs on the init goroutine.
func startTransport(ctx context.Context, tr Transport) (uint32, error) {
	if err := tr.Start(ctx); err != nil {
		return 0, err
	}
	return SerialNumber(tr)
}

func (c *Controller) finishInit(gen uint64, serial uint32, err error, done func(error)) {
	if gen != c.gen {
		c.logger.Debug("discarding superseded initialisation", "device_id", c.deviceID, "error", err)
		done(ErrSessionSuperseded)
		return
	}
	c.initializing = false
	c.initCancel = nil

	if err != nil {
		c.failures++
		c.lastErr = err
		c.metrics.initFailed()
		c.setUnavailable(err.Error())
		c.setState(StateUnavailable)
		c.logger.Error("session initialisation failed", "device_id", c.deviceID, "host", c.host, "error", err)
		c.reporter.CaptureException(err, map[string]any{"device_id": c.deviceID, "host": c.host})
		done(err)
		return
	}

	c.serial = serial
	c.failures = 0
	c.lastErr = nil
	c.logger.Info("found device", "device_id", c.deviceID, "serial_number", serial)
	c.setAvailable()
	c.setState(StateAvailable)
	done(nil)
}

func (c *Controller) scheduleRestart(reason string) {
	if c.reinit.Pending() {
		c.logger.Debug("restart already pending", "device_id", c.deviceID)
		return
	}
	if c.initializing {
		c.logger.Info("initialisation in progress, skipping restart request", "device_id", c.deviceID)
		return
	}

	c.setUnavailable(reason)
	c.cleanup()
	c.reinit.Schedule(c.fireRestart)
	c.setState(StateReinitializing)
	c.logger.Info("restart scheduled", "device_id", c.deviceID, "delay", c.reinit.Delay())
}

func (c *Controller) fireRestart() {
	if c.removed {
		return
	}
	c.metrics.reinitFired()
	c.logger.Info("restarting session", "device_id", c.deviceID, "attempt", c.reinit.Attempts())
	c.reporter.CaptureMessage("Restarting session", map[string]any{"device_id": c.deviceID, "attempt": c.reinit.Attempts()})

	c.initialize(func(err error) {
		if err == nil || errors.Is(err, ErrSessionSuperseded) || c.removed {
			return
		}
		c.reporter.CaptureMessage("Session restart failed, retrying", map[string]any{
			"device_id": c.deviceID,
			"delay":     c.reinit.Delay().String(),
		})
		c.scheduleRestart(err.Error())
	})
}

// cleanup tears down the current transport and invalidates its callbacks.
// Teardown errors are logged only.
func (c *Controller) cleanup() {
	c.gen++
	c.initializing = false
	if c.initCancel != nil {
		c.initCancel()
		c.initCancel = nil
	}
	if c.transport == nil {
		return
	}

	tr := c.transport
	c.transport = nil
	c.logger.Info("cleaning up transport", "device_id", c.deviceID)
	if err := tr.Cleanup(); err != nil {
		c.logger.Error("transport cleanup failed", "device_id", c.deviceID, "error", err)
	}
}

func (c *Controller) shutdown() {
	c.reinit.Cancel()
	c.debounce.Stop()
	c.cleanup()
	c.logger.Info("controller stopped", "device_id", c.deviceID)
}

func (c *Controller) handleParameter(gen uint64, p Parameter) {
	if gen != c.gen || c.removed {
		c.metrics.parameter("stale")
		return
	}

	u := c.translator.Inbound(p)
	switch u.Kind {
	case UpdateMode:
		if c.debounce.IsActive() {
			c.logger.Info("skipping fan mode update during mode switch window", "device_id", c.deviceID, "mode", u.Value)
			c.metrics.parameter("suppressed")
			return
		}
		c.setCapability(CapFanMode, u.Value)
		c.updateFanStep(u.Manual)
	case UpdateStep:
		if c.platform.HasCapability(CapFanStep) {
			c.setCapability(CapFanStep, u.Value)
		}
	case UpdateValue:
		c.setCapability(u.Capability, u.Value)
	case UpdateIgnored:
	case UpdateUnknown:
		c.logger.Debug("unknown parameter received", "device_id", c.deviceID, "parameter", p.ID, "value", p.Value, "unit", p.Unit)
	}
	c.metrics.parameter(u.Kind.String())
}

func (c *Controller) handleTransportError(gen uint64, err error, kind string) {
	if gen != c.gen || c.removed {
		return
	}

	c.lastErr = err
	c.metrics.transportError(kind)
	c.logger.Error("transport error", "device_id", c.deviceID, "kind", kind, "error", err)
	fields := map[string]any{"device_id": c.deviceID, "type": kind, "error": err.Error()}
	c.reporter.CaptureMessage("Error callback from transport", fields)
	c.reporter.CaptureException(err, fields)

	if !c.reinit.Pending() {
		c.scheduleRestart(fmt.Sprintf("%s error: %v", kind, err))
	}
}

// updateFanStep makes the fan step capability present only in manual mode,
// backfilling it from the last observed step when it is added.
func (c *Controller) updateFanStep(manual bool) {
	present := c.platform.HasCapability(CapFanStep)
	switch {
	case manual && !present:
		if err := c.platform.AddCapability(CapFanStep); err != nil {
			c.logger.Error("adding capability failed", "capability", CapFanStep, "error", err)
			return
		}
		if step, ok := c.translator.LastStep(); ok {
			c.setCapability(CapFanStep, step*stepScale)
		}
	case !manual && present:
		if err := c.platform.RemoveCapability(CapFanStep); err != nil {
			c.logger.Error("removing capability failed", "capability", CapFanStep, "error", err)
		}
	}
}

func (c *Controller) setCapabilityOnLoop(capability string, value any, done func(error)) {
	if c.removed {
		done(ErrDeviceRemoved)
		return
	}

	cmd, err := c.translator.Outbound(capability, value)
	if err != nil {
		done(err)
		return
	}
	c.logger.Info("setting value", "device_id", c.deviceID, "capability", capability, "value", value)

	if capability == CapFanMode {
		c.debounce.Arm()
	}

	// Only a started session takes writes.
	if c.transport == nil || c.state != StateAvailable {
		c.logger.Warn("no active session, command not forwarded", "device_id", c.deviceID, "capability", capability, "state", c.state.String())
		c.metrics.command(capability, "offline")
		done(nil)
		return
	}

	job := commandJob{gen: c.gen, tr: c.transport, cmd: cmd, reply: make(chan error, 1)}
	select {
	case c.commands <- job:
	default:
		c.logger.Error("command queue full, dropping command", "device_id", c.deviceID, "capability", capability)
		c.metrics.command(capability, "dropped")
		done(nil)
		return
	}

	go func() {
		var err error
		select {
		case err = <-job.reply:
		case <-c.done:
			return
		}
		c.post(func() { c.finishCommand(job, err, done) })
	}()
}

func (c *Controller) finishCommand(job commandJob, err error, done func(error)) {
	capability := job.cmd.Capability
	if err != nil {
		c.logger.Error("forwarding command failed", "device_id", c.deviceID, "capability", capability, "error", err)
		c.metrics.command(capability, "failed")
		done(nil)
		return
	}

	c.metrics.command(capability, "forwarded")
	if job.gen == c.gen && !c.removed && c.platform.HasCapability(capability) {
		c.setCapability(capability, job.cmd.Value)
	}
	done(nil)
}

// commandWorker forwards capability writes in arrival order.
func (c *Controller) commandWorker(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-c.commands:
			cmdCtx, cancel := context.WithTimeout(ctx, c.commandTimeout)
			job.reply <- job.cmd.Apply(cmdCtx, job.tr)
			cancel()
		}
	}
}

func (c *Controller) setCapability(id string, value any) {
	if err := c.platform.SetCapabilityValue(id, value); err != nil {
		c.logger.Error("setting capability failed", "device_id", c.deviceID, "capability", id, "error", err)
	}
}

func (c *Controller) setAvailable() {
	c.available = true
	c.metrics.setAvailable(true)
	if err := c.platform.SetAvailable(); err != nil {
		c.logger.Error("setting available failed", "device_id", c.deviceID, "error", err)
	}
}

func (c *Controller) setUnavailable(reason string) {
	c.available = false
	c.metrics.setAvailable(false)
	if err := c.platform.SetUnavailable(reason); err != nil {
		c.logger.Error("setting unavailable failed", "device_id", c.deviceID, "error", err)
	}
}

func (c *Controller) setState(s State) {
	if c.state == s {
		return
	}
	c.logger.Debug("session state changed", "device_id", c.deviceID, "from", c.state.String(), "to", s.String())
	c.state = s
	c.since = time.Now().UTC()
	c.metrics.setState(s)
}

func (c *Controller) status() Status {
	st := Status{
		DeviceID:            c.deviceID,
		State:               c.state,
		Host:                c.host,
		SerialNumber:        c.serial,
		Available:           c.available,
		ReinitPending:       c.reinit.Pending(),
		ReinitAttempts:      c.reinit.Attempts(),
		DebounceActive:      c.debounce.IsActive(),
		ConsecutiveFailures: c.failures,
		Since:               c.since,
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	return st
}
