package websocket

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testHub() *Hub {
	return NewHub(zerolog.New(os.Stderr).Level(zerolog.Disabled))
}

func newTestClient(hub *Hub, topics ...string) *Client {
	return &Client{
		ID:     "test",
		Topics: topics,
		Send:   make(chan []byte, 16),
		hub:    hub,
	}
}

func recvEvent(t *testing.T, c *Client) TransitionEvent {
	t.Helper()
	select {
	case data := <-c.Send:
		var ev TransitionEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("bad event payload: %v", err)
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return TransitionEvent{}
	}
}

func TestPublishTransitionReachesTopicSubscribers(t *testing.T) {
	hub := testHub()
	client := newTestClient(hub, "oracle/p1")
	hub.Register(client)

	hub.PublishTransition("oracle", "p1", map[string]string{"value": "READY"})

	ev := recvEvent(t, client)
	if ev.Topic != "oracle/p1" || ev.Machine != "oracle" || ev.Key != "p1" {
		t.Errorf("unexpected event routing: %+v", ev)
	}
	var snap map[string]string
	if err := json.Unmarshal(ev.Snapshot, &snap); err != nil || snap["value"] != "READY" {
		t.Errorf("snapshot not carried through: %s", ev.Snapshot)
	}
}

func TestPublishTransitionSkipsOtherTopics(t *testing.T) {
	hub := testHub()
	client := newTestClient(hub, "security/p1")
	hub.Register(client)

	hub.PublishTransition("oracle", "p1", map[string]string{"value": "READY"})

	select {
	case data := <-client.Send:
		t.Fatalf("client on security topic received oracle event: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	hub := testHub()
	client := newTestClient(hub)
	hub.Register(client)

	hub.ProcessMessage(client, ClientMessage{Action: "subscribe", Topics: []string{"coding/s1"}})
	if hub.TopicCount("coding/s1") != 1 {
		t.Fatalf("TopicCount = %d, want 1", hub.TopicCount("coding/s1"))
	}

	hub.ProcessMessage(client, ClientMessage{Action: "unsubscribe", Topics: []string{"coding/s1"}})
	if hub.TopicCount("coding/s1") != 0 {
		t.Errorf("TopicCount after unsubscribe = %d, want 0", hub.TopicCount("coding/s1"))
	}
}

func TestUnregisterClosesSendChannel(t *testing.T) {
	hub := testHub()
	client := newTestClient(hub, "oracle/p1")
	hub.Register(client)

	hub.Unregister(client)
	hub.Unregister(client) // idempotent

	if _, open := <-client.Send; open {
		t.Error("Send channel still open after Unregister")
	}
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount = %d, want 0", hub.ClientCount())
	}
}

func TestFullBufferDoesNotBlockPublish(t *testing.T) {
	hub := testHub()
	client := &Client{ID: "slow", Topics: []string{"oracle/p1"}, Send: make(chan []byte, 1), hub: hub}
	hub.Register(client)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			hub.PublishTransition("oracle", "p1", map[string]int{"i": i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("PublishTransition blocked on a slow client")
	}
}
