// Package mqtt implements the MQTT transport for aryad.
//
// MQTT is well-suited for IoT devices and lightweight pub/sub messaging.
// This transport subscribes to a configurable topic and publishes results
// back to the sender's MQTT v5 response topic, or to "<topic>/reply" when
// the request names none. Correlation data is echoed unchanged. Messages
// without a source are keyed by the sender's "source" user property or
// response topic.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/nadzzz/aryad/internal/message"
	"github.com/nadzzz/aryad/internal/transport"
)

// ErrNotConnected is returned by Send before Listen has connected.
var ErrNotConnected = errors.New("mqtt: not connected")

const (
	keepAlive     = 20
	sessionExpiry = 60
	retryDelay    = 3 * time.Second
)

// Transport implements transport.Transport over MQTT.
type Transport struct {
	broker   string
	topic    string
	clientID string

	mu sync.Mutex
	cm *autopaho.ConnectionManager
}

// New creates a new MQTT transport.
func New(broker, topic, clientID string) *Transport {
	if clientID == "" {
		clientID = fmt.Sprintf("aryad-%d", time.Now().UnixNano())
	}
	return &Transport{broker: broker, topic: topic, clientID: clientID}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "mqtt" }

// ReplyTopic is where results go when a request carries no response topic.
func (t *Transport) ReplyTopic() string { return t.topic + "/reply" }

// Listen connects to the MQTT broker and subscribes to the configured topic.
// The connection is re-established automatically until ctx is cancelled.
func (t *Transport) Listen(ctx context.Context, svc transport.Service) error {
	u, err := url.Parse(t.broker)
	if err != nil {
		return fmt.Errorf("mqtt broker url: %w", err)
	}
	ctx = transport.WithName(ctx, t.Name())

	cfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{u},
		KeepAlive:                     keepAlive,
		CleanStartOnInitialConnection: true,
		SessionExpiryInterval:         sessionExpiry,
		ReconnectBackoff:              autopaho.NewConstantBackoff(retryDelay),
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			slog.Info("mqtt connected", "broker", t.broker)
			if _, err := cm.Subscribe(ctx, &paho.Subscribe{
				Subscriptions: []paho.SubscribeOptions{{Topic: t.topic, QoS: 1}},
			}); err != nil {
				slog.Error("mqtt subscribe failed", "topic", t.topic, "error", err)
			}
		},
		OnConnectError: func(err error) {
			slog.Warn("mqtt connection attempt failed", "broker", t.broker, "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: t.clientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(pr paho.PublishReceived) (bool, error) {
					go t.dispatch(ctx, svc, pr.Packet)
					return true, nil
				},
			},
			OnClientError: func(err error) {
				slog.Error("mqtt client error", "error", err)
			},
		},
	}

	cm, err := autopaho.NewConnection(ctx, cfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	t.mu.Lock()
	t.cm = cm
	t.mu.Unlock()

	slog.Info("mqtt transport listening", "broker", t.broker, "topic", t.topic)
	<-ctx.Done()
	<-cm.Done()
	return nil
}

// dispatch handles one inbound publish and sends the reply.
func (t *Transport) dispatch(ctx context.Context, svc transport.Service, pub *paho.Publish) {
	reply := t.process(ctx, svc, pub)
	if err := t.publish(ctx, reply); err != nil {
		slog.Error("mqtt reply failed", "topic", reply.Topic, "error", err)
	}
}

// process turns an inbound publish into the reply publish.
func (t *Transport) process(ctx context.Context, svc transport.Service, pub *paho.Publish) *paho.Publish {
	reply := &paho.Publish{
		Topic:      t.ReplyTopic(),
		QoS:        1,
		Properties: &paho.PublishProperties{ContentType: "application/json"},
	}
	if p := pub.Properties; p != nil {
		if p.ResponseTopic != "" {
			reply.Topic = p.ResponseTopic
		}
		reply.Properties.CorrelationData = p.CorrelationData
	}

	var msg message.Message
	var result *message.Result
	if err := json.Unmarshal(pub.Payload, &msg); err != nil {
		slog.Warn("mqtt message is not valid json", "topic", pub.Topic, "error", err)
		result = &message.Result{Error: "invalid json: " + err.Error()}
	} else {
		msg.Normalize(senderSource(pub))
		res, err := svc.Handle(ctx, &msg)
		if err != nil {
			res = &message.Result{MessageID: msg.ID, Source: msg.Source, Error: err.Error()}
		}
		result = res
	}

	payload, err := json.Marshal(result)
	if err != nil {
		payload = []byte(fmt.Sprintf(`{"error":%q}`, err.Error()))
	}
	reply.Payload = payload
	return reply
}

// senderSource names the session of a sender that left "source" empty: the
// "source" user property, then the sender's response topic, then the topic
// it published to. Senders sharing a topic without either property share
// one conversation.
func senderSource(pub *paho.Publish) string {
	if p := pub.Properties; p != nil {
		if s := p.User.Get("source"); s != "" {
			return s
		}
		if p.ResponseTopic != "" {
			return p.ResponseTopic
		}
	}
	return pub.Topic
}

func (t *Transport) publish(ctx context.Context, pub *paho.Publish) error {
	t.mu.Lock()
	cm := t.cm
	t.mu.Unlock()
	if cm == nil {
		return ErrNotConnected
	}
	if _, err := cm.Publish(ctx, pub); err != nil {
		return err
	}
	return nil
}

// Send publishes a payload to the topic named by the target endpoint.
func (t *Transport) Send(ctx context.Context, target message.Target, payload []byte) error {
	err := t.publish(ctx, &paho.Publish{
		Topic:      target.Endpoint,
		QoS:        1,
		Payload:    payload,
		Properties: &paho.PublishProperties{ContentType: "application/json"},
	})
	if err != nil {
		return fmt.Errorf("mqtt send: %w", err)
	}
	slog.Debug("mqtt send success", "topic", target.Endpoint, "bytes", len(payload))
	return nil
}

// Close disconnects from the MQTT broker.
func (t *Transport) Close() error {
	t.mu.Lock()
	cm := t.cm
	t.mu.Unlock()
	if cm == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// The manager also disconnects when the Listen context ends, so a failure
	// here usually means the connection is already down.
	if err := cm.Disconnect(ctx); err != nil {
		slog.Debug("mqtt disconnect", "error", err)
	}
	return nil
}
