package broker

import (
	"encoding/json"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"

	"github.com/zuiy/crate-services/internal/comm"
)

type Broker struct {
	Conn          *nats.Conn
	GetConnection func(string) (*websocket.Conn, bool)
	GetWatchers   func(string) ([]string, bool)
	GetAllSockets func() []string
}

func NewBroker(conn *nats.Conn, fncGetConnection func(string) (*websocket.Conn, bool),
	fncGetWatchers func(string) ([]string, bool), fncGetAllSockets func() []string) *Broker {
	return &Broker{
		Conn:          conn,
		GetConnection: fncGetConnection,
		GetWatchers:   fncGetWatchers,
		GetAllSockets: fncGetAllSockets,
	}
}

// consume events from the game service
func (b *Broker) Subscribe(topic string) (*nats.Subscription, error) {
	sub, err := b.Conn.Subscribe(topic, b.handleMessages)
	if err != nil {
		return nil, err
	}

	return sub, nil
}

// publish player action to the game service
func (b *Broker) Publish(topic string, payload []byte) error {
	err := b.Conn.Publish(topic, payload)
	if err != nil {
		log.Errorf("Error publishing to topic %s: %s", topic, err)
		return err
	}

	return nil
}

// handleMessages routes a game service event to the right sockets: a reply
// addressed to one socket goes there, a per-game channel event goes to its
// watchers, everything else is a site-wide feed event.
func (b *Broker) handleMessages(msgNats *nats.Msg) {
	message := &comm.WSMessage{}
	err := json.Unmarshal(msgNats.Data, &message)
	if err != nil {
		log.Errorf("Error %s", err)
		return
	}

	if message.SocketId != "" {
		b.sendMessage(message.SocketId, message)
		return
	}

	if gameId, ok := channelGame(message.Type); ok {
		if sockets, found := b.GetWatchers(gameId); found {
			for _, socketId := range sockets {
				b.sendMessage(socketId, message)
			}
		}
		return
	}

	for _, socketId := range b.GetAllSockets() {
		b.sendMessage(socketId, message)
	}
}

// channelGame extracts the game id from a per-game event type such as
// new_round_{id}. Feed events (crate_battle_created, crate_battle_updated)
// never carry an id suffix.
func channelGame(eventType string) (string, bool) {
	for _, prefix := range []string{"starting_", "eos_", "new_round_", "player_joined_", "ended_"} {
		if strings.HasPrefix(eventType, prefix) {
			return eventType[len(prefix):], true
		}
	}
	return "", false
}

// send socket message to the web client
func (b *Broker) sendMessage(socketId string, m *comm.WSMessage) {
	if conn, ok := b.GetConnection(socketId); ok {
		if err := conn.WriteJSON(m); err != nil {
			log.Println(err)
		}
	}
}
