// Package influxdb provides InfluxDB connectivity for the Danfoss Air bridge.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, telemetry writes and health monitoring.
//
// # Purpose
//
// Every numeric or boolean capability the unit reports (temperatures,
// humidity, fan RPM, filter remaining, boost/bypass flags) is written as a
// point in the "ventilation" measurement, tagged by device and capability.
// Session availability transitions go to "ventilation_session".
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteDeviceMetric("danfoss-air-01", "measure_temperature.supply", 19.5)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes; write errors
// are delivered through SetOnError.
package influxdb
