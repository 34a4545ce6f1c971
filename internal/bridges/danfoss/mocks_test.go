package danfoss

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Transport
// =============================================================================

type mockTransport struct {
	mu        sync.Mutex
	opts      TransportOptions
	params    map[string]Parameter
	startErr  error
	startGate chan struct{}
	cmdErr    error
	calls     []string
	started   bool
	cleanedUp bool
}

func (m *mockTransport) Start(ctx context.Context) error {
	m.mu.Lock()
	gate := m.startGate
	m.started = true
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startErr
}

func (m *mockTransport) record(call string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
	return m.cmdErr
}

func (m *mockTransport) SetMode(_ context.Context, code int) error {
	return m.record(fmt.Sprintf("SetMode(%d)", code))
}

func (m *mockTransport) SetFanStep(_ context.Context, step int) error {
	return m.record(fmt.Sprintf("SetFanStep(%d)", step))
}

func (m *mockTransport) ActivateBoost(context.Context) error {
	return m.record("ActivateBoost")
}

func (m *mockTransport) DeactivateBoost(context.Context) error {
	return m.record("DeactivateBoost")
}

func (m *mockTransport) WriteParameterValue(_ context.Context, name string, value bool) error {
	return m.record(fmt.Sprintf("WriteParameterValue(%s,%t)", name, value))
}

func (m *mockTransport) GetParameter(name string) (Parameter, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.params[name]
	return p, ok
}

func (m *mockTransport) Cleanup() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanedUp = true
	return nil
}

// emit pushes a parameter through the transport's callback.
func (m *mockTransport) emit(id string, value any) {
	m.mu.Lock()
	fn := m.opts.OnParameter
	m.mu.Unlock()
	fn(Parameter{ID: id, Value: value})
}

// fail pushes an error through the transport's callback.
func (m *mockTransport) fail(err error, kind string) {
	m.mu.Lock()
	fn := m.opts.OnError
	m.mu.Unlock()
	fn(err, kind)
}

func (m *mockTransport) callLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockTransport) isCleanedUp() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cleanedUp
}

func serialParams() map[string]Parameter {
	return map[string]Parameter{
		ParamSerialHigh: {ID: ParamSerialHigh, Value: 0x1234},
		ParamSerialLow:  {ID: ParamSerialLow, Value: 0xABCD},
	}
}

// mockFactory builds mockTransports and remembers them in order.
type mockFactory struct {
	mu         sync.Mutex
	transports []*mockTransport
	created    []time.Time
	err        error

	// configure adjusts each new transport before it is returned.
	configure func(n int, m *mockTransport)
}

func (f *mockFactory) New(opts TransportOptions) (Transport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, time.Now())
	if f.err != nil {
		return nil, f.err
	}

	m := &mockTransport{opts: opts, params: serialParams()}
	if f.configure != nil {
		f.configure(len(f.transports), m)
	}
	f.transports = append(f.transports, m)
	return m, nil
}

func (f *mockFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func (f *mockFactory) last() *mockTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.transports) == 0 {
		return nil
	}
	return f.transports[len(f.transports)-1]
}

func (f *mockFactory) get(i int) *mockTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transports[i]
}

func (f *mockFactory) creationTimes() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.created...)
}

// =============================================================================
// Platform
// =============================================================================

var errCapabilityAbsent = errors.New("capability absent")

type mockPlatform struct {
	mu        sync.Mutex
	available bool
	reason    string
	caps      map[string]bool
	values    map[string]any
}

func newMockPlatform() *mockPlatform {
	p := &mockPlatform{caps: make(map[string]bool), values: make(map[string]any)}
	for _, c := range DefaultCapabilities() {
		p.caps[c] = true
	}
	return p
}

func (p *mockPlatform) SetAvailable() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.available = true
	p.reason = ""
	return nil
}

func (p *mockPlatform) SetUnavailable(reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.available = false
	p.reason = reason
	return nil
}

func (p *mockPlatform) SetCapabilityValue(id string, value any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.caps[id] {
		return errCapabilityAbsent
	}
	p.values[id] = value
	return nil
}

func (p *mockPlatform) AddCapability(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.caps[id] = true
	return nil
}

func (p *mockPlatform) RemoveCapability(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.caps, id)
	delete(p.values, id)
	return nil
}

func (p *mockPlatform) HasCapability(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.caps[id]
}

func (p *mockPlatform) value(id string) (any, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.values[id]
	return v, ok
}

func (p *mockPlatform) isAvailable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.available
}

// =============================================================================
// Reporter
// =============================================================================

type recordingReporter struct {
	mu         sync.Mutex
	messages   []string
	exceptions []error
}

func (r *recordingReporter) CaptureMessage(msg string, _ map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

func (r *recordingReporter) CaptureException(err error, _ map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exceptions = append(r.exceptions, err)
}

func (r *recordingReporter) counts() (messages, exceptions int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages), len(r.exceptions)
}

// =============================================================================
// Helpers
// =============================================================================

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, msg string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition never met: %s", msg)
}

// testLoop is a minimal single-consumer event loop for the timer types.
type testLoop struct {
	events chan func()
	done   chan struct{}
}

func newTestLoop(t *testing.T) *testLoop {
	t.Helper()
	l := &testLoop{events: make(chan func(), 16), done: make(chan struct{})}
	go func() {
		for {
			select {
			case fn := <-l.events:
				fn()
			case <-l.done:
				return
			}
		}
	}()
	t.Cleanup(func() { close(l.done) })
	return l
}

func (l *testLoop) post(fn func()) bool {
	select {
	case l.events <- fn:
		return true
	case <-l.done:
		return false
	}
}

// run executes fn on the loop and waits for it.
func (l *testLoop) run(fn func()) {
	finished := make(chan struct{})
	l.post(func() {
		fn()
		close(finished)
	})
	<-finished
}

type controllerFixture struct {
	ctrl     *Controller
	factory  *mockFactory
	platform *mockPlatform
	reporter *recordingReporter
	cancel   context.CancelFunc
}

func newFixture(t *testing.T, mutate func(*Options)) *controllerFixture {
	t.Helper()
	f := &controllerFixture{
		factory:  &mockFactory{},
		platform: newMockPlatform(),
		reporter: &recordingReporter{},
	}
	opts := Options{
		DeviceID:        "unit-1",
		Host:            "10.10.10.167",
		Factory:         f.factory.New,
		Platform:        f.platform,
		Reporter:        f.reporter,
		DebounceWindow:  time.Hour,
		ReinitDelay:     time.Hour,
		StartTimeout:    2 * time.Second,
		ContinueOnError: true,
	}
	if mutate != nil {
		mutate(&opts)
	}

	ctrl, err := NewController(opts)
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}
	f.ctrl = ctrl

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	go ctrl.Run(ctx) //nolint:errcheck // returns ctx.Err() on cleanup
	t.Cleanup(func() {
		cancel()
		<-ctrl.Done()
	})
	return f
}

func (f *controllerFixture) status(t *testing.T) Status {
	t.Helper()
	st, err := f.ctrl.Status(context.Background())
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	return st
}

// initOK runs OnInit and requires success.
func (f *controllerFixture) initOK(t *testing.T) *mockTransport {
	t.Helper()
	if err := f.ctrl.OnInit(context.Background()); err != nil {
		t.Fatalf("OnInit() error = %v", err)
	}
	return f.factory.last()
}
