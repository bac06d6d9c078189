package telemetry

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/b2ctest/flowrunner/pkg/logger"
)

// TopicPrefix is the root of every topic the MQTT sink publishes to:
// flowrunner/<correlationId>/<kind>.
const TopicPrefix = "flowrunner/"

// publisher is the subset of mqtt.Client the sink uses.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Message is the JSON payload published for each telemetry item.
type Message struct {
	Kind          string            `json:"kind"` // event, metric, exception, trace
	Name          string            `json:"name,omitempty"`
	Value         float64           `json:"value,omitempty"`
	Properties    map[string]string `json:"properties,omitempty"`
	CorrelationID string            `json:"correlationId,omitempty"`
	Time          time.Time         `json:"time"`
}

// MQTTSink streams telemetry to an MQTT broker so a live dashboard can follow
// a parallel run.
type MQTTSink struct {
	client        publisher
	correlationID string
	timeout       time.Duration
	now           func() time.Time
}

// DialMQTT connects to broker and returns a sink publishing under the
// correlation id.
func DialMQTT(broker, correlationID string) (*MQTTSink, error) {
	opts := mqtt.NewClientOptions().AddBroker(broker)
	opts.SetClientID("flowrunner-" + uuid.New().String())
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.WaitTimeout(10*time.Second) && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", broker, token.Error())
	}
	if !client.IsConnected() {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: timed out", broker)
	}
	return newMQTTSink(client, correlationID), nil
}

func newMQTTSink(client publisher, correlationID string) *MQTTSink {
	return &MQTTSink{
		client:        client,
		correlationID: correlationID,
		timeout:       5 * time.Second,
		now:           time.Now,
	}
}

func (m *MQTTSink) topic(kind string) string {
	id := m.correlationID
	if id == "" {
		id = "default"
	}
	return TopicPrefix + id + "/" + kind
}

func (m *MQTTSink) publish(msg Message) {
	msg.CorrelationID = m.correlationID
	msg.Time = m.now()
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Warn("mqtt: encode %s: %v", msg.Kind, err)
		return
	}
	token := m.client.Publish(m.topic(msg.Kind), 1, false, data)
	if !token.WaitTimeout(m.timeout) {
		logger.Warn("mqtt: publish %s timed out", msg.Kind)
		return
	}
	if err := token.Error(); err != nil {
		logger.Warn("mqtt: publish %s: %v", msg.Kind, err)
	}
}

func (m *MQTTSink) TrackEvent(name string, props map[string]string) {
	m.publish(Message{Kind: "event", Name: name, Properties: props})
}

func (m *MQTTSink) TrackMetric(name string, value float64) {
	m.publish(Message{Kind: "metric", Name: name, Value: value})
}

func (m *MQTTSink) TrackException(err error, props map[string]string) {
	if err == nil {
		return
	}
	m.publish(Message{Kind: "exception", Name: err.Error(), Properties: props})
}

func (m *MQTTSink) TrackTrace(message string) {
	m.publish(Message{Kind: "trace", Name: message})
}

// Flush is a no-op; every publish waits for its acknowledgement.
func (m *MQTTSink) Flush() error { return nil }

func (m *MQTTSink) Close() error {
	m.client.Disconnect(250)
	return nil
}
