package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteDeviceStatus records a device switching ON or OFF.
//
//	client.WriteDeviceStatus("DVC00001", true, time.Now())
func (c *Client) WriteDeviceStatus(code string, on bool, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.points.WritePoint(c.deviceStatusPoint(code, on, at))
}

// WriteMonitoringStatus records a monitoring switching ON or OFF, tagged
// with the device it belongs to.
func (c *Client) WriteMonitoringStatus(code, deviceCode string, on bool, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.points.WritePoint(c.monitoringStatusPoint(code, deviceCode, on, at))
}

func (c *Client) deviceStatusPoint(code string, on bool, at time.Time) *write.Point {
	return statusPoint(c.names.Device, map[string]string{"device_code": code}, on, at)
}

func (c *Client) monitoringStatusPoint(code, deviceCode string, on bool, at time.Time) *write.Point {
	return statusPoint(c.names.Monitoring,
		map[string]string{"monitoring_code": code, "device_code": deviceCode}, on, at)
}

// statusPoint carries the switch state twice: a boolean for display and
// 0/1 for aggregation. A zero at is stamped now.
func statusPoint(measurement string, tags map[string]string, on bool, at time.Time) *write.Point {
	value := 0
	if on {
		value = 1
	}
	if at.IsZero() {
		at = time.Now()
	}
	return write.NewPoint(measurement, tags, map[string]any{"on": on, "value": value}, at)
}
