package danfoss

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-danfoss/internal/device"
	"github.com/nerrad567/gray-logic-danfoss/internal/infrastructure/mqtt"
)

// Bridge operation constants.
const (
	// bridgeCommandTimeout bounds a capability write received over MQTT.
	bridgeCommandTimeout = 15 * time.Second

	// pruneInterval is how often old state history is deleted.
	pruneInterval = time.Hour

	// minTopicParts is graylogic/{category}/danfoss/{device_id}.
	minTopicParts = 4
)

// MQTTClient is the subset of the MQTT client the bridge needs.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error
	IsConnected() bool
}

// StateSource is the capability store the bridge mirrors onto MQTT.
// It is satisfied by *device.Store.
type StateSource interface {
	Snapshot() device.Snapshot
	OnChange(fn func(device.Change))
	SetName(name string)
}

// TelemetryWriter records capability values as time series.
// It is satisfied by *influxdb.Client.
type TelemetryWriter interface {
	WriteDeviceMetric(deviceID, capability string, value float64)
	WriteSessionState(deviceID, state string, available bool)
}

// BridgeOptions holds the dependencies of a Bridge.
type BridgeOptions struct {
	BridgeID string
	Version  string
	DeviceID string

	HealthInterval   time.Duration
	HistoryRetention time.Duration

	MQTTClient MQTTClient
	Controller *Controller
	Store      StateSource

	// Settings persists hostname and name. Required.
	Settings device.SettingsRepository

	// History and Telemetry are optional.
	History   device.StateHistoryRepository
	Telemetry TelemetryWriter

	Logger Logger
}

// Bridge connects one device session to the Gray Logic MQTT hierarchy:
// commands and settings in, retained state, acks and health out.
//
// All methods are safe for concurrent use.
type Bridge struct {
	deviceID  string
	retention time.Duration
	topics    mqtt.Topics

	mqtt      MQTTClient
	ctrl      *Controller
	store     StateSource
	settings  device.SettingsRepository
	history   device.StateHistoryRepository
	telemetry TelemetryWriter
	health    *HealthReporter
	logger    Logger

	// settingsMu serialises read-modify-write of the stored settings.
	settingsMu sync.Mutex

	dirty chan struct{}

	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc
}

// NewBridge creates a bridge. Call Start to begin operation.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.MQTTClient == nil {
		return nil, errors.New("MQTT client is required")
	}
	if opts.Controller == nil {
		return nil, errors.New("controller is required")
	}
	if opts.Store == nil {
		return nil, errors.New("state store is required")
	}
	if opts.Settings == nil {
		return nil, errors.New("settings repository is required")
	}
	if opts.DeviceID == "" {
		return nil, device.ErrDeviceIDRequired
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		deviceID:  opts.DeviceID,
		retention: opts.HistoryRetention,
		mqtt:      opts.MQTTClient,
		ctrl:      opts.Controller,
		store:     opts.Store,
		settings:  opts.Settings,
		history:   opts.History,
		telemetry: opts.Telemetry,
		logger:    opts.Logger,
		dirty:     make(chan struct{}, 1),
		done:      make(chan struct{}),
		ctx:       ctx,
		ctxCancel: cancel,
	}
	if b.logger == nil {
		b.logger = noopLogger{}
	}

	bridgeID := opts.BridgeID
	if bridgeID == "" {
		bridgeID = Protocol
	}
	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:  bridgeID,
		Version:   opts.Version,
		Topic:     b.topics.BridgeHealth(Protocol),
		Interval:  opts.HealthInterval,
		Publisher: opts.MQTTClient,
		Status:    opts.Controller.Status,
	})
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
	}
	return b, nil
}

// Start subscribes to the command and config topics, starts publishing and
// initialises the session in the background. An initialisation failure is
// handed to the controller's restart schedule.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logger.Error("failed to publish starting status", "error", err)
	}

	commandTopic := b.topics.BridgeCommand(Protocol, b.deviceID)
	if err := b.mqtt.Subscribe(commandTopic, 1, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	configTopic := b.topics.BridgeConfig(Protocol, b.deviceID)
	if err := b.mqtt.Subscribe(configTopic, 1, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to config: %w", err)
	}
	b.logger.Info("subscribed to device topics", "command", commandTopic, "config", configTopic)

	b.store.OnChange(func(device.Change) { b.markDirty() })
	b.markDirty()

	b.wg.Add(1)
	go b.publishLoop()

	if b.history != nil && b.retention > 0 {
		b.wg.Add(1)
		go b.pruneLoop()
	}

	b.health.Start(ctx)
	if err := b.health.PublishNow(); err != nil {
		b.logger.Error("failed to publish health", "error", err)
	}

	b.wg.Add(1)
	go b.initSession()

	b.logger.Info("bridge started", "device_id", b.deviceID)
	return nil
}

// Stop shuts the bridge down. It does not stop the controller.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		b.ctxCancel()
		b.health.Stop()
		b.wg.Wait()
		b.logger.Info("bridge stopped")
	})
}

func (b *Bridge) initSession() {
	defer b.wg.Done()

	err := b.ctrl.OnInit(b.ctx)
	if err == nil || errors.Is(err, ErrSessionSuperseded) || errors.Is(err, ErrDeviceRemoved) || b.ctx.Err() != nil {
		return
	}
	b.logger.Warn("initial session start failed, scheduling restart", "device_id", b.deviceID, "error", err)
	if err := b.ctrl.ScheduleRestart(b.ctx); err != nil {
		b.logger.Error("scheduling restart failed", "device_id", b.deviceID, "error", err)
	}
}

// =============================================================================
// Inbound
// =============================================================================

func (b *Bridge) handleMQTTMessage(topic string, payload []byte) {
	parts := strings.Split(topic, "/")
	if len(parts) < minTopicParts {
		b.logger.Error("invalid topic format", "topic", topic)
		return
	}

	switch parts[1] {
	case "command":
		b.handleCommand(parts[3], payload)
	case "config":
		b.handleSettings(payload)
	default:
		b.logger.Error("unknown message type", "topic", topic)
	}
}

func (b *Bridge) handleCommand(topicDeviceID string, payload []byte) {
	cmd, err := decodeCommand(payload, topicDeviceID)
	if err != nil {
		b.publishAck(NewAckError(cmd, ErrCodeInvalidCommand, err.Error()))
		return
	}
	if cmd.DeviceID != b.deviceID {
		b.publishAck(NewAckError(cmd, ErrCodeInvalidCommand, fmt.Sprintf("device %s not managed by this bridge", cmd.DeviceID)))
		return
	}

	b.logger.Info("received command",
		"command_id", cmd.ID,
		"device_id", cmd.DeviceID,
		"capability", cmd.Capability,
		"source", cmd.Source)

	ctx, cancel := context.WithTimeout(b.ctx, bridgeCommandTimeout)
	defer cancel()

	if err := b.ctrl.SetCapability(ctx, cmd.Capability, cmd.Value); err != nil {
		b.publishAck(NewAckError(cmd, ErrorCode(err), err.Error()))
		return
	}
	b.publishAck(NewAckMessage(cmd, AckAccepted))
}

func (b *Bridge) handleSettings(payload []byte) {
	var msg SettingsMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		b.logger.Error("failed to parse settings", "error", err)
		return
	}
	patch := device.SettingsPatch{Hostname: msg.Hostname, Name: msg.Name}
	if _, err := b.UpdateSettings(b.ctx, patch); err != nil {
		b.logger.Error("settings update failed", "device_id", b.deviceID, "error", err)
	}
}

func (b *Bridge) publishAck(ack AckMessage) {
	if ack.Error != nil {
		b.logger.Warn("command failed", "command_id", ack.CommandID, "code", ack.Error.Code, "message", ack.Error.Message)
	}

	payload, err := json.Marshal(ack)
	if err != nil {
		b.logger.Error("failed to marshal ack", "error", err)
		return
	}
	if err := b.mqtt.Publish(b.topics.BridgeAck(Protocol, b.deviceID), payload, 1, false); err != nil {
		b.logger.Error("failed to publish ack", "error", err)
	}
}

// =============================================================================
// Settings and lifecycle
// =============================================================================

// Settings returns the stored settings, or empty settings if none were saved.
func (b *Bridge) Settings(ctx context.Context) (device.Settings, error) {
	s, err := b.settings.Get(ctx, b.deviceID)
	if errors.Is(err, device.ErrSettingsNotFound) {
		return device.Settings{DeviceID: b.deviceID}, nil
	}
	if err != nil {
		return device.Settings{}, err
	}
	return *s, nil
}

// UpdateSettings persists a settings patch and notifies the controller of
// what changed. A session that fails to start on the new hostname is left
// to the restart schedule; the saved settings are still returned.
func (b *Bridge) UpdateSettings(ctx context.Context, patch device.SettingsPatch) (device.Settings, error) {
	b.settingsMu.Lock()
	defer b.settingsMu.Unlock()

	old, err := b.Settings(ctx)
	if err != nil {
		return device.Settings{}, fmt.Errorf("loading settings: %w", err)
	}
	keys := patch.ChangedKeys(old)
	updated := patch.Apply(old)
	if err := device.ValidateSettings(&updated); err != nil {
		return device.Settings{}, err
	}
	if len(keys) == 0 {
		return old, nil
	}
	if err := b.settings.Save(ctx, &updated); err != nil {
		return device.Settings{}, fmt.Errorf("saving settings: %w", err)
	}

	if slices.Contains(keys, device.SettingName) {
		b.store.SetName(updated.Name)
		b.ctrl.OnRenamed(updated.Name)
	}

	err = b.ctrl.OnSettings(ctx, SettingsChange{
		OldHostname: old.Hostname,
		NewHostname: updated.Hostname,
		ChangedKeys: keys,
	})
	switch {
	case err == nil, errors.Is(err, ErrSessionSuperseded):
	case errors.Is(err, ErrDeviceRemoved), errors.Is(err, ErrControllerStopped):
		return updated, err
	default:
		b.logger.Warn("session start on new hostname failed, scheduling restart", "device_id", b.deviceID, "error", err)
		if err := b.ctrl.ScheduleRestart(ctx); err != nil {
			b.logger.Error("scheduling restart failed", "device_id", b.deviceID, "error", err)
		}
	}
	return updated, nil
}

// DeleteDevice stops the session for good, removes the stored settings and
// clears the retained state topic.
func (b *Bridge) DeleteDevice(ctx context.Context) error {
	if err := b.ctrl.OnDeleted(ctx); err != nil {
		return err
	}
	if err := b.settings.Delete(ctx, b.deviceID); err != nil && !errors.Is(err, device.ErrSettingsNotFound) {
		return fmt.Errorf("deleting settings: %w", err)
	}
	if err := b.mqtt.Publish(b.topics.BridgeState(Protocol, b.deviceID), nil, 1, true); err != nil {
		b.logger.Error("failed to clear retained state", "error", err)
	}
	return nil
}

// =============================================================================
// Outbound
// =============================================================================

func (b *Bridge) markDirty() {
	select {
	case b.dirty <- struct{}{}:
	default:
	}
}

// publishLoop coalesces store changes into retained state publications.
func (b *Bridge) publishLoop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			return
		case <-b.dirty:
			b.publishState()
		}
	}
}

func (b *Bridge) publishState() {
	snap := b.store.Snapshot()
	msg := StateMessage{
		DeviceID:     snap.DeviceID,
		Timestamp:    time.Now().UTC(),
		Available:    snap.Available,
		Reason:       snap.Reason,
		State:        snap.State,
		Capabilities: snap.Capabilities,
		Protocol:     Protocol,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("failed to marshal state", "error", err)
		return
	}
	if err := b.mqtt.Publish(b.topics.BridgeState(Protocol, b.deviceID), payload, 1, true); err != nil {
		b.logger.Error("failed to publish state", "error", err)
	}

	if b.history != nil {
		if err := b.history.RecordStateChange(b.ctx, b.deviceID, snap.State, device.StateHistorySourceSession); err != nil {
			b.logger.Error("failed to record state history", "error", err)
		}
	}
	b.writeTelemetry(snap)
}

func (b *Bridge) writeTelemetry(snap device.Snapshot) {
	if b.telemetry == nil {
		return
	}
	for capability, v := range snap.State {
		if f, ok := telemetryValue(v); ok {
			b.telemetry.WriteDeviceMetric(b.deviceID, capability, f)
		}
	}
	state := "unavailable"
	if snap.Available {
		state = "available"
	}
	b.telemetry.WriteSessionState(b.deviceID, state, snap.Available)
}

// telemetryValue converts numbers and booleans to a float. Other values
// (the fan mode string) are not written.
func telemetryValue(v any) (float64, bool) {
	if b, ok := v.(bool); ok {
		if b {
			return 1, true
		}
		return 0, true
	}
	return toFloat(v)
}

func (b *Bridge) pruneLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	b.pruneHistory()
	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			b.pruneHistory()
		}
	}
}

func (b *Bridge) pruneHistory() {
	n, err := b.history.PruneHistory(b.ctx, b.retention)
	if err != nil {
		b.logger.Error("failed to prune state history", "error", err)
		return
	}
	if n > 0 {
		b.logger.Info("pruned state history", "rows", n, "retention", b.retention)
	}
}
