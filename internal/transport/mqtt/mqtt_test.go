package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/eclipse/paho.golang/paho"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/aryad/internal/message"
	"github.com/nadzzz/aryad/internal/transport"
)

func echo(fail bool) transport.HandlerFunc {
	return func(_ context.Context, msg *message.Message) (*message.Result, error) {
		if fail {
			return nil, errors.New("backend down")
		}
		return &message.Result{MessageID: msg.ID, Source: msg.Source, ResponseText: "re: " + msg.Text}, nil
	}
}

func decode(t *testing.T, pub *paho.Publish) message.Result {
	t.Helper()
	var res message.Result
	require.NoError(t, json.Unmarshal(pub.Payload, &res))
	return res
}

func TestProcessUsesResponseTopic(t *testing.T) {
	tr := New("mqtt://localhost:1883", "aryad/in", "test")
	pub := &paho.Publish{
		Topic:   "aryad/in",
		Payload: []byte(`{"id":"m1","source":"sensor","text":"ping"}`),
		Properties: &paho.PublishProperties{
			ResponseTopic:   "devices/sensor/reply",
			CorrelationData: []byte("corr-1"),
		},
	}

	reply := tr.process(context.Background(), echo(false), pub)
	assert.Equal(t, "devices/sensor/reply", reply.Topic)
	assert.Equal(t, []byte("corr-1"), reply.Properties.CorrelationData)
	assert.Equal(t, byte(1), reply.QoS)

	res := decode(t, reply)
	assert.Equal(t, "m1", res.MessageID)
	assert.Equal(t, "re: ping", res.ResponseText)
}

func TestProcessDefaultsReplyTopicAndSource(t *testing.T) {
	tr := New("mqtt://localhost:1883", "aryad/in", "")
	reply := tr.process(context.Background(), echo(false), &paho.Publish{
		Topic:   "aryad/in",
		Payload: []byte(`{"text":"hi"}`),
	})
	assert.Equal(t, "aryad/in/reply", reply.Topic)
	res := decode(t, reply)
	assert.Equal(t, "aryad/in", res.Source)
	assert.NotEmpty(t, res.MessageID)
}

func TestProcessDerivesSourcePerSender(t *testing.T) {
	tr := New("mqtt://localhost:1883", "aryad/in", "test")
	cases := []struct {
		props *paho.PublishProperties
		want  string
	}{
		{&paho.PublishProperties{ResponseTopic: "devices/a/reply"}, "devices/a/reply"},
		{&paho.PublishProperties{ResponseTopic: "devices/b/reply"}, "devices/b/reply"},
		{&paho.PublishProperties{
			ResponseTopic: "devices/b/reply",
			User:          paho.UserProperties{{Key: "source", Value: "kitchen"}},
		}, "kitchen"},
		{&paho.PublishProperties{}, "aryad/in"},
	}
	for _, tc := range cases {
		reply := tr.process(context.Background(), echo(false), &paho.Publish{
			Topic:      "aryad/in",
			Payload:    []byte(`{"text":"hi"}`),
			Properties: tc.props,
		})
		assert.Equal(t, tc.want, decode(t, reply).Source)
	}

	reply := tr.process(context.Background(), echo(false), &paho.Publish{
		Topic:      "aryad/in",
		Payload:    []byte(`{"source":"explicit","text":"hi"}`),
		Properties: &paho.PublishProperties{ResponseTopic: "devices/a/reply"},
	})
	assert.Equal(t, "explicit", decode(t, reply).Source)
}

func TestProcessErrors(t *testing.T) {
	tr := New("mqtt://localhost:1883", "aryad/in", "test")

	reply := tr.process(context.Background(), echo(false), &paho.Publish{Topic: "aryad/in", Payload: []byte("{bad")})
	assert.Contains(t, decode(t, reply).Error, "invalid json")

	reply = tr.process(context.Background(), echo(true), &paho.Publish{Topic: "aryad/in", Payload: []byte(`{"text":"x"}`)})
	assert.Equal(t, "backend down", decode(t, reply).Error)
}

func TestSendBeforeConnect(t *testing.T) {
	tr := New("mqtt://localhost:1883", "aryad/in", "test")
	err := tr.Send(context.Background(), message.Target{Endpoint: "out"}, []byte("{}"))
	require.ErrorIs(t, err, ErrNotConnected)
	require.NoError(t, tr.Close())
}
