package danfoss

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func decodeHealth(t *testing.T, p mockPublish) HealthMessage {
	t.Helper()
	var msg HealthMessage
	if err := json.Unmarshal(p.Payload, &msg); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	return msg
}

func TestHealthReporter_PublishNow(t *testing.T) {
	tests := []struct {
		name       string
		status     StatusSource
		want       HealthStatus
		hasSession bool
	}{
		{
			name: "available",
			status: func(context.Context) (Status, error) {
				return Status{DeviceID: "unit-1", State: StateAvailable, Available: true}, nil
			},
			want:       HealthHealthy,
			hasSession: true,
		},
		{
			name: "reinitializing",
			status: func(context.Context) (Status, error) {
				return Status{DeviceID: "unit-1", State: StateReinitializing}, nil
			},
			want:       HealthDegraded,
			hasSession: true,
		},
		{
			name: "controller stopped",
			status: func(context.Context) (Status, error) {
				return Status{}, ErrControllerStopped
			},
			want: HealthDegraded,
		},
		{
			name: "no source",
			want: HealthHealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mq := NewMockMQTTClient()
			h := NewHealthReporter(HealthReporterConfig{
				BridgeID:  "danfoss",
				Version:   "1.2.3",
				Topic:     testHealthTopic,
				Publisher: mq,
				Status:    tt.status,
			})
			if err := h.PublishNow(); err != nil {
				t.Fatalf("PublishNow() error = %v", err)
			}

			p, ok := mq.last(testHealthTopic)
			if !ok || !p.Retained || p.QoS != 1 {
				t.Fatalf("health publication = %+v", p)
			}
			msg := decodeHealth(t, p)
			if msg.Status != tt.want {
				t.Errorf("Status = %s, want %s", msg.Status, tt.want)
			}
			if (msg.Session != nil) != tt.hasSession {
				t.Errorf("Session = %+v", msg.Session)
			}
			if msg.Bridge != "danfoss" || msg.Version != "1.2.3" {
				t.Errorf("message = %+v", msg)
			}
		})
	}
}

func TestHealthReporter_Loop(t *testing.T) {
	mq := NewMockMQTTClient()
	h := NewHealthReporter(HealthReporterConfig{
		BridgeID:  "danfoss",
		Topic:     testHealthTopic,
		Interval:  10 * time.Millisecond,
		Publisher: mq,
	})

	h.Start(context.Background())
	eventually(t, "periodic publications", func() bool { return len(mq.all(testHealthTopic)) >= 3 })
	h.Stop()
	h.Stop()

	p, _ := mq.last(testHealthTopic)
	if msg := decodeHealth(t, p); msg.Status != HealthStopping {
		t.Errorf("final status = %s, want stopping", msg.Status)
	}
}

func TestHealthReporter_LWT(t *testing.T) {
	topic, payload, err := LWT("danfoss")
	if err != nil {
		t.Fatal(err)
	}
	if topic != "graylogic/health/danfoss" {
		t.Errorf("LWT topic = %q", topic)
	}
	var msg HealthMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Status != HealthOffline || msg.Bridge != "danfoss" {
		t.Errorf("LWT = %+v", msg)
	}

	// No publisher configured is not an error.
	h := NewHealthReporter(HealthReporterConfig{BridgeID: "danfoss"})
	if err := h.PublishNow(); err != nil {
		t.Errorf("PublishNow() without publisher error = %v", err)
	}
}
