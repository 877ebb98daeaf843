package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"grimm.is/rnsgate/internal/ctlplane"
)

func newTestClient(topics ...string) *wsClient {
	c := &wsClient{send: make(chan []byte, wsSendBuffer), topics: map[string]bool{}}
	for _, topic := range topics {
		c.topics[topic] = true
	}
	return c
}

func TestWSManager_PublishTopics(t *testing.T) {
	m := NewWSManager(nil, time.Hour, testLogger())
	plain := newTestClient()
	subscribed := newTestClient("settings")
	m.add(plain)
	m.add(subscribed)
	assert.Equal(t, 2, m.Clients())

	m.Publish("status", map[string]string{"status": "running"})
	m.Publish("settings", map[string]int{"changed": 1})

	assert.Len(t, plain.send, 1)
	assert.Len(t, subscribed.send, 2)

	var msg WSMessage
	require.NoError(t, json.Unmarshal(<-subscribed.send, &msg))
	assert.Equal(t, "status", msg.Topic)

	m.remove(plain)
	m.remove(plain)
	assert.Equal(t, 1, m.Clients())
	<-plain.send
	_, open := <-plain.send
	assert.False(t, open)
}

func TestWSManager_FullBufferDoesNotBlock(t *testing.T) {
	m := NewWSManager(nil, time.Hour, testLogger())
	c := &wsClient{send: make(chan []byte, 1), topics: map[string]bool{}}
	m.add(c)

	m.Publish("status", 1)
	m.Publish("status", 2)
	assert.Len(t, c.send, 1)
}

func TestWSManager_StopClosesClients(t *testing.T) {
	status := func(context.Context) (any, error) {
		return map[string]string{"status": "running"}, nil
	}
	m := NewWSManager(status, time.Hour, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)

	// Without clients a trigger does not query the status.
	m.TriggerStatusUpdate()

	c := newTestClient()
	m.add(c)
	m.TriggerStatusUpdate()

	select {
	case raw := <-c.send:
		var msg WSMessage
		require.NoError(t, json.Unmarshal(raw, &msg))
		assert.Equal(t, "status", msg.Topic)
	case <-time.After(2 * time.Second):
		t.Fatal("no status published")
	}

	cancel()
	assert.Eventually(t, func() bool { return m.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestStatusStream(t *testing.T) {
	env := newTestEnv(t, enabledSettings())
	env.client.On("Run", mock.Anything, ctlplane.Service(ctlplane.ServiceStatus)).
		Return(`{"status":"running","rnsd":true,"lxmd":false}`, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.server.ws.Start(ctx)

	ts := httptest.NewServer(env.server.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/reticulum/service/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	read := func() WSMessage {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var msg WSMessage
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	msg := read()
	assert.Equal(t, "status", msg.Topic)
	assert.Equal(t, "running", msg.Data.(map[string]any)["status"])

	require.NoError(t, conn.WriteJSON(map[string]any{"action": "subscribe", "topics": []string{"settings"}}))

	// The subscription is applied asynchronously; keep notifying until the
	// settings topic arrives.
	found := false
	for i := 0; i < 20 && !found; i++ {
		env.server.NotifySettingsChanged()
		found = read().Topic == "settings"
	}
	assert.True(t, found, "settings topic not delivered")
}

func TestStatusStream_RejectsForeignOrigin(t *testing.T) {
	env := newTestEnv(t, enabledSettings())
	ts := httptest.NewServer(env.server.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/reticulum/service/stream"
	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
