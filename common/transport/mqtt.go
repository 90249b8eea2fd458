package transport

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/samiam2013/gpsrelay/common/gps"
	"github.com/samiam2013/gpsrelay/common/payload"
)

// publisher is the part of mqtt.Client the backend uses.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTT publishes fixes as JSON to a broker topic.
type MQTT struct {
	client  publisher
	topic   string
	timeout time.Duration
}

// DialMQTT connects to broker. An empty clientID gets a random one so several
// relays can share a broker. A broker that does not answer within timeout is
// retried in the background; publishes fail until it does. Only an error
// reported by the broker is returned.
func DialMQTT(broker, clientID, topic string, timeout time.Duration) (*MQTT, func(), error) {
	if clientID == "" {
		clientID = "gpsrelay-" + uuid.NewString()[:8]
	}
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetConnectTimeout(timeout).
		SetConnectRetry(true).
		SetAutoReconnect(true)

	log := logrus.WithFields(logrus.Fields{"broker": broker, "client_id": clientID})
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		log.WithField("timeout", timeout).Warn("MQTT broker not reachable yet, retrying in background")
	} else if err := token.Error(); err != nil {
		return nil, nil, fmt.Errorf("mqtt connect to %s: %w", broker, err)
	} else {
		log.Info("Connected to MQTT broker")
	}

	return newMQTT(client, topic, timeout), func() { client.Disconnect(250) }, nil
}

func newMQTT(client publisher, topic string, timeout time.Duration) *MQTT {
	return &MQTT{client: client, topic: topic, timeout: timeout}
}

func (m *MQTT) Name() string          { return "mqtt" }
func (m *MQTT) RequiresNetwork() bool { return true }

func (m *MQTT) Encode(fix gps.Fix, extras payload.Extras) ([]byte, error) {
	return payload.JSON(fix, extras)
}

func (m *MQTT) Send(_ context.Context, p []byte) error {
	token := m.client.Publish(m.topic, 0, false, p)
	if !token.WaitTimeout(m.timeout) {
		return fmt.Errorf("mqtt publish to %s: timed out after %s", m.topic, m.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish to %s: %w", m.topic, err)
	}
	return nil
}
