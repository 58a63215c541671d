// Package influxdb provides time-series telemetry storage for the
// patching controller.
//
// It wraps the official influxdb-client-go v2 library with the
// connection-management and batched-write patterns used across the
// infrastructure packages, and implements patch.Telemetry so the state
// machine can stream samples during attempts.
//
// # Purpose
//
// This package handles time-series data storage for:
//   - Pipette resistance traces (baseline, seal, break-in)
//   - Pressure commands and pulse trains
//   - Patch state transitions, for annotating resistance traces
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "openpatch",
//	    Bucket: "rig",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Stream a resistance sample
//	client.RecordResistance("pip1", 5.2e6)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are delivered via
// the SetOnError callback. Connection and health check errors are
// returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size,
// flush_interval). Resistance polling during seal formation produces
// several samples per second per unit; batching keeps that off the
// attempt's critical path.
package influxdb
