// Package influxdb provides InfluxDB connectivity for AstroHub Core.
//
// It wraps the official influxdb-client-go v2 library with AstroHub-specific
// patterns for connection management, sample writing, and health monitoring.
//
// # Purpose
//
// This package handles time-series data storage for:
//   - Numeric device property history (focuser position, CCD temperature)
//   - Connection state transitions per device
//   - Session statistics
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "astrohub",
//	    Bucket: "observatory",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Write a property sample
//	client.WritePropertySample("obs1:11111:camera:0", "camera", "ccdtemperature", -10.2)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a callback.
// Connection and health check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size, flush_interval).
// This reduces network overhead for high-frequency property polling.
package influxdb
