package mqtt

import (
	"encoding/json"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	statusOnline   = "online"
	statusOffline  = "offline"
	reasonShutdown = "graceful_shutdown"
	reasonLost     = "unexpected_disconnect"
)

// presence is the service's retained online/offline record. The broker
// publishes the "offline" will itself if the process dies.
type presence struct {
	topic    string
	clientID string
	qos      byte
}

type presenceRecord struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

func (p presence) record(status, reason string) []byte {
	b, _ := json.Marshal(presenceRecord{ //nolint:errcheck // plain strings always marshal
		Status:    status,
		ClientID:  p.clientID,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	return b
}

// registerWill sets a retained QoS 1 will carrying the "offline" record.
func (p presence) registerWill(po *pahomqtt.ClientOptions) {
	po.SetBinaryWill(p.topic, p.record(statusOffline, reasonLost), 1, true)
}

func (p presence) announce(conn pahomqtt.Client, status, reason string) pahomqtt.Token {
	return conn.Publish(p.topic, p.qos, true, p.record(status, reason))
}
