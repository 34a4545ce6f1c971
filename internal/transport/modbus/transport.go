package modbus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/goburrow/modbus"

	"github.com/nerrad567/gray-logic-danfoss/internal/bridges/danfoss"
	"github.com/nerrad567/gray-logic-danfoss/internal/infrastructure/config"
)

const (
	defaultPort    = 502
	defaultTimeout = 5 * time.Second
)

// Client is the subset of the goburrow Modbus client used by the transport.
type Client interface {
	ReadCoils(address, quantity uint16) ([]byte, error)
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
	ReadInputRegisters(address, quantity uint16) ([]byte, error)
	WriteSingleCoil(address, value uint16) ([]byte, error)
	WriteSingleRegister(address, value uint16) ([]byte, error)
}

// Dialer opens a Modbus connection to address.
type Dialer func(address string, unitID byte, timeout time.Duration) (Client, io.Closer, error)

// DialTCP connects to a Modbus TCP gateway.
func DialTCP(address string, unitID byte, timeout time.Duration) (Client, io.Closer, error) {
	h := modbus.NewTCPClientHandler(address)
	h.Timeout = timeout
	h.SlaveId = unitID
	if err := h.Connect(); err != nil {
		return nil, nil, err
	}
	return modbus.NewClient(h), h, nil
}

// Config holds the gateway settings shared by every transport.
type Config struct {
	Port      int
	UnitID    byte
	Timeout   time.Duration
	Registers RegisterMap

	// Dialer defaults to DialTCP.
	Dialer Dialer
	Logger danfoss.Logger
}

// ConfigFromSettings converts the transport configuration section.
func ConfigFromSettings(cfg config.ModbusConfig) (Config, error) {
	regs, err := NewRegisterMap(cfg.Registers)
	if err != nil {
		return Config{}, err
	}
	return Config{
		Port:      cfg.Port,
		UnitID:    byte(cfg.UnitID),
		Timeout:   cfg.Timeout,
		Registers: regs,
	}, nil
}

// NewFactory returns a factory creating one transport per session.
func NewFactory(cfg Config) danfoss.TransportFactory {
	return func(opts danfoss.TransportOptions) (danfoss.Transport, error) {
		return New(cfg, opts)
	}
}

// Transport implements danfoss.Transport over a Modbus TCP gateway.
//
// Start connects, polls every readable register once and then keeps polling
// in the background. Every decoded value is pushed through OnParameter.
// Cleanup stops the poll loop and never invokes callbacks.
//
// All methods are safe for concurrent use.
type Transport struct {
	cfg     Config
	opts    danfoss.TransportOptions
	address string
	logger  danfoss.Logger

	// ioMu serialises requests on the connection.
	ioMu sync.Mutex

	mu       sync.Mutex
	client   Client
	closer   io.Closer
	values   map[string]danfoss.Parameter
	stopped  bool
	looping  bool
	stopLoop context.CancelFunc
}

// New creates a transport for opts.Host. It does not connect.
func New(cfg Config, opts danfoss.TransportOptions) (*Transport, error) {
	if opts.Host == "" {
		return nil, ErrHostRequired
	}
	if cfg.Port <= 0 {
		cfg.Port = defaultPort
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Dialer == nil {
		cfg.Dialer = DialTCP
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = danfoss.DefaultPollInterval
	}

	t := &Transport{
		cfg:     cfg,
		opts:    opts,
		address: net.JoinHostPort(opts.Host, strconv.Itoa(cfg.Port)),
		logger:  cfg.Logger,
		values:  make(map[string]danfoss.Parameter, cfg.Registers.Len()),
	}
	if t.logger == nil {
		t.logger = nopLogger{}
	}
	return t, nil
}

// Start connects and performs the first poll. It returns once every
// readable register has been read once, so the serial number words are
// available to GetParameter.
func (t *Transport) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	client, closer, err := t.cfg.Dialer(t.address, t.cfg.UnitID, t.cfg.Timeout)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", t.address, err)
	}

	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		closeQuietly(closer)
		return ErrClosed
	}
	t.client = client
	t.closer = closer
	t.mu.Unlock()

	if err := t.poll(ctx); err != nil {
		return fmt.Errorf("initial poll: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		cancel()
		return ErrClosed
	}
	t.stopLoop = cancel
	t.looping = true
	t.mu.Unlock()

	go t.pollLoop(loopCtx)
	t.logger.Info("modbus transport started", "address", t.address, "registers", t.cfg.Registers.Len())
	return nil
}

// Cleanup stops polling and closes the connection. It does not block on I/O
// in flight: the poll loop closes the connection when it exits.
func (t *Transport) Cleanup() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return nil
	}
	t.stopped = true

	if t.looping {
		t.stopLoop()
		return nil
	}
	if t.closer != nil {
		closer := t.closer
		t.closer = nil
		t.client = nil
		go closeQuietly(closer)
	}
	return nil
}

// GetParameter returns the last polled value of a parameter.
func (t *Transport) GetParameter(name string) (danfoss.Parameter, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.values[name]
	return p, ok
}

// SetMode writes the operation mode register.
func (t *Transport) SetMode(ctx context.Context, code int) error {
	return t.write(ctx, danfoss.ParamOperationMode, code)
}

// SetFanStep writes the fan step register.
func (t *Transport) SetFanStep(ctx context.Context, step int) error {
	return t.write(ctx, danfoss.ParamFanStep, step)
}

// ActivateBoost switches boost on.
func (t *Transport) ActivateBoost(ctx context.Context) error {
	return t.write(ctx, danfoss.ParamBoost, true)
}

// DeactivateBoost switches boost off.
func (t *Transport) DeactivateBoost(ctx context.Context) error {
	return t.write(ctx, danfoss.ParamBoost, false)
}

// WriteParameterValue writes a boolean parameter by name.
func (t *Transport) WriteParameterValue(ctx context.Context, name string, value bool) error {
	return t.write(ctx, name, value)
}

func (t *Transport) write(ctx context.Context, name string, value any) error {
	err := t.writeRegister(ctx, name, value)
	if err != nil && !errors.Is(err, ErrClosed) && !errors.Is(err, ErrNotStarted) && ctx.Err() == nil {
		t.reportError(err, "write")
	}
	return err
}

func (t *Transport) writeRegister(ctx context.Context, name string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r, ok := t.cfg.Registers.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownParameter, name)
	}
	if !r.Writable {
		return fmt.Errorf("%w: %s", ErrNotWritable, name)
	}
	word, err := r.encode(value)
	if err != nil {
		return err
	}

	client, err := t.activeClient()
	if err != nil {
		return err
	}

	t.ioMu.Lock()
	if r.Table == TableCoil {
		_, err = client.WriteSingleCoil(r.Address, word)
	} else {
		_, err = client.WriteSingleRegister(r.Address, word)
	}
	t.ioMu.Unlock()
	if err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}

	t.logger.Debug("modbus register written", "parameter", name, "address", r.Address, "value", value)
	return nil
}

func (t *Transport) activeClient() (Client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return nil, ErrClosed
	}
	if t.client == nil {
		return nil, ErrNotStarted
	}
	return t.client, nil
}

func (t *Transport) pollLoop(ctx context.Context) {
	defer t.closeConnection()

	ticker := time.NewTicker(t.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := t.poll(ctx)
			if err == nil || ctx.Err() != nil {
				continue
			}
			t.reportError(err, "read")
			if !t.opts.ContinueOnError {
				t.logger.Warn("modbus polling stopped after read error", "address", t.address)
				return
			}
		}
	}
}

// poll reads every register once. Read failures do not stop the cycle;
// they are joined into the returned error.
func (t *Transport) poll(ctx context.Context) error {
	client, err := t.activeClient()
	if err != nil {
		return err
	}

	var errs []error
	for _, r := range t.cfg.Registers.All() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		value, err := t.read(client, r)
		if err != nil {
			errs = append(errs, fmt.Errorf("reading %s: %w", r.Name, err))
			continue
		}

		p := danfoss.Parameter{ID: r.Name, Value: value, Unit: r.Unit}
		if !t.store(p) {
			return ErrClosed
		}
		if t.opts.OnParameter != nil {
			t.opts.OnParameter(p)
		}
	}
	return errors.Join(errs...)
}

func (t *Transport) read(client Client, r Register) (any, error) {
	t.ioMu.Lock()
	defer t.ioMu.Unlock()

	var (
		raw []byte
		err error
	)
	switch r.Table {
	case TableCoil:
		raw, err = client.ReadCoils(r.Address, 1)
	case TableInput:
		raw, err = client.ReadInputRegisters(r.Address, 1)
	default:
		raw, err = client.ReadHoldingRegisters(r.Address, 1)
	}
	if err != nil {
		return nil, err
	}
	return r.decode(raw)
}

// store caches a value. It returns false once the transport is stopped.
func (t *Transport) store(p danfoss.Parameter) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return false
	}
	t.values[p.ID] = p
	return true
}

func (t *Transport) reportError(err error, kind string) {
	t.mu.Lock()
	stopped := t.stopped
	t.mu.Unlock()
	if stopped || t.opts.OnError == nil {
		return
	}
	t.opts.OnError(err, kind)
}

func (t *Transport) closeConnection() {
	t.mu.Lock()
	closer := t.closer
	t.closer = nil
	t.client = nil
	t.looping = false
	t.mu.Unlock()

	closeQuietly(closer)
}

func closeQuietly(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
