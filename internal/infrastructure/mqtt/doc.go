// Package mqtt connects the IoT system API to its MQTT broker.
//
// The service publishes device commands on iot/devices/{code}/command,
// listens for device status reports on iot/devices/+/status and keeps a
// retained online/offline record on iot/system/status (with a Last Will
// for crashes). Reconnection uses paho's exponential backoff and restores
// subscriptions.
//
//	client, err := mqtt.Connect(cfg.MQTT,
//	    mqtt.WithLogger(log),
//	    mqtt.WithStatusTopic(mqtt.Topics{}.SystemStatus()),
//	)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllDeviceStatuses(), 1, devices.HandleStatusMessage)
//
// TLS should be enabled for any broker reachable off-host
// (mqtt.broker.tls). Payloads are not encrypted beyond the transport.
package mqtt
