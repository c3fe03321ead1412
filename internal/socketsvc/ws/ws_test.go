package ws

import (
	"encoding/json"
	"testing"

	"github.com/zuiy/crate-services/internal/comm"
)

type capturePublisher struct {
	topics   []string
	messages []comm.WSMessage
}

func (p *capturePublisher) Publish(topic string, payload []byte) error {
	var msg comm.WSMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return err
	}
	p.topics = append(p.topics, topic)
	p.messages = append(p.messages, msg)
	return nil
}

func TestForwardStripsClientCallerId(t *testing.T) {
	pub := &capturePublisher{}
	s := &Ws{Broker: pub}

	// an unauthenticated socket claiming to act as another user
	s.SocketMessage("sock-1", &comm.WSMessage{
		Type:     "cash_mines",
		Data:     json.RawMessage(`{}`),
		CallerId: "victim",
	})

	if len(pub.messages) != 1 {
		t.Fatalf("published %d messages, want 1", len(pub.messages))
	}
	if got := pub.messages[0].CallerId; got != "" {
		t.Fatalf("caller id = %q, want empty for an unauthenticated socket", got)
	}
	if pub.messages[0].SocketId != "sock-1" {
		t.Errorf("socket id = %q, want sock-1", pub.messages[0].SocketId)
	}
	if pub.topics[0] != "socket.service" {
		t.Errorf("published to %q, want socket.service", pub.topics[0])
	}
}

func TestForwardBindsAuthenticatedUser(t *testing.T) {
	pub := &capturePublisher{}
	s := &Ws{Broker: pub}
	s.userMap.Store("sock-1", "u1")

	s.SocketMessage("sock-1", &comm.WSMessage{
		Type:     "cash_mines",
		Data:     json.RawMessage(`{}`),
		CallerId: "victim",
	})

	if len(pub.messages) != 1 {
		t.Fatalf("published %d messages, want 1", len(pub.messages))
	}
	if got := pub.messages[0].CallerId; got != "u1" {
		t.Fatalf("caller id = %q, want the user bound at init", got)
	}
}

func TestDisconnectClearsAuth(t *testing.T) {
	pub := &capturePublisher{}
	s := &Ws{Broker: pub}
	s.userMap.Store("sock-1", "u1")

	s.HandleDisconnect("sock-1")
	s.SocketMessage("sock-1", &comm.WSMessage{Type: "cash_mines", Data: json.RawMessage(`{}`)})

	if len(pub.messages) != 1 {
		t.Fatalf("published %d messages, want 1", len(pub.messages))
	}
	if got := pub.messages[0].CallerId; got != "" {
		t.Fatalf("caller id = %q after disconnect, want empty", got)
	}
}
