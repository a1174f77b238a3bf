// Package influxdb stores device and monitoring status changes in
// InfluxDB v2 as the device_status and monitoring_status measurements.
//
//	client, err := influxdb.Connect(cfg.InfluxDB,
//	    influxdb.WithMeasurements(influxdb.DefaultMeasurements()),
//	    influxdb.WithErrorHandler(func(err error) { log.Error("write failed", "error", err) }),
//	)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	devices.SetStatusRecorder(client)
//
// Writes are batched (influxdb.batch_size, influxdb.flush_interval) and
// never block the caller. Write failures are delivered to the
// WithErrorHandler callback.
package influxdb
