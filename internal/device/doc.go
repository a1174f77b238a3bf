// Package device manages the devices registered in the IoT system.
//
// A device is identified externally by its generated code (DVC00001,
// DVC00002, ...) and carries a status (ON or OFF), a list of command
// descriptions and an ownership record: the creating user plus the users
// it was shared with. Every per-device operation runs the ownership policy
// from the auth package before touching the repository.
//
// # Architecture
//
//	┌──────────────┐     ┌──────────────┐     ┌──────────────────┐
//	│   Service    │────▶│  Repository  │────▶│ SQLite (devices, │
//	│ (service.go) │     │(repository.go)│    │  device_members) │
//	└──────┬───────┘     └──────────────┘     └──────────────────┘
//	       │
//	       ├──▶ Publisher       iot/devices/<code>/command (MQTT)
//	       ├──▶ StatusRecorder  device_status points (InfluxDB)
//	       └──▶ Observer        realtime events (WebSocket hub)
//
// Commands are "Activate" and "Deactivate". Devices report their own
// status on iot/devices/<code>/status and the service applies it with
// ApplyReportedStatus.
package device
