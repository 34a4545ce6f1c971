package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

const (
	measurementCapability = "ventilation"
	measurementSession    = "ventilation_session"
)

// WriteDeviceMetric queues one capability reading, tagged by device and
// capability.
func (c *Client) WriteDeviceMetric(deviceID, capability string, value float64) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurementCapability,
		map[string]string{"device_id": deviceID, "capability": capability},
		map[string]any{"value": value},
		time.Now()))
}

// WriteSessionState queues a session availability point so outages line up
// with the gaps they leave in the capability series.
func (c *Client) WriteSessionState(deviceID, state string, available bool) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurementSession,
		map[string]string{"device_id": deviceID},
		map[string]any{"state": state, "available": available},
		time.Now()))
}
