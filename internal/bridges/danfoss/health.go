package danfoss

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-danfoss/internal/infrastructure/mqtt"
)

const (
	defaultHealthInterval = 30 * time.Second
	healthStatusTimeout   = 2 * time.Second
)

// HealthPublisher publishes health messages. Typically the MQTT client.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// StatusSource returns the current session status.
type StatusSource func(ctx context.Context) (Status, error)

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	BridgeID  string
	Version   string
	Topic     string
	Interval  time.Duration
	Publisher HealthPublisher
	Status    StatusSource
}

// HealthReporter publishes retained health messages at a fixed interval.
type HealthReporter struct {
	bridgeID  string
	version   string
	topic     string
	startTime time.Time
	interval  time.Duration
	publisher HealthPublisher
	status    StatusSource

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewHealthReporter creates a reporter. Call Start to begin reporting.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	return &HealthReporter{
		bridgeID:  cfg.BridgeID,
		version:   cfg.Version,
		topic:     cfg.Topic,
		startTime: time.Now(),
		interval:  interval,
		publisher: cfg.Publisher,
		status:    cfg.Status,
		done:      make(chan struct{}),
	}
}

// Start begins periodic reporting until ctx is cancelled or Stop is called.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends reporting and publishes a final "stopping" status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		//nolint:errcheck // best-effort during shutdown
		h.publish(HealthStopping, "", nil)
	})
}

// SetLogger sets the logger for this reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publish(HealthStarting, "bridge starting", nil)
}

// PublishNow publishes the current status immediately.
func (h *HealthReporter) PublishNow() error {
	var session *SessionHealth
	status, reason := HealthHealthy, ""

	if h.status != nil {
		ctx, cancel := context.WithTimeout(context.Background(), healthStatusTimeout)
		st, err := h.status(ctx)
		cancel()
		if err != nil {
			status, reason = HealthDegraded, "session status unavailable: "+err.Error()
		} else {
			session = NewSessionHealth(st)
			if !st.Available {
				status, reason = HealthDegraded, "device "+st.State.String()
			}
		}
	}
	return h.publish(status, reason, session)
}

// LWT returns the health topic and the offline message the broker should
// publish as the bridge's will. It is needed before the MQTT client exists.
func LWT(bridgeID string) (topic string, payload []byte, err error) {
	payload, err = json.Marshal(NewLWTMessage(bridgeID))
	if err != nil {
		return "", nil, err
	}
	return mqtt.Topics{}.BridgeHealth(Protocol), payload, nil
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logError("failed to publish health", err)
			}
		}
	}
}

func (h *HealthReporter) publish(status HealthStatus, reason string, session *SessionHealth) error {
	if h.publisher == nil {
		return nil
	}

	msg := HealthMessage{
		Bridge:        h.bridgeID,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Session:       session,
		Reason:        reason,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return h.publisher.Publish(h.topic, payload, 1, true)
}

func (h *HealthReporter) logError(msg string, err error) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
