package ws

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/go-chi/jwtauth"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/zuiy/crate-services/internal/comm"
)

// Publisher is the NATS side of the relay.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

type Ws struct {
	connMap  sync.Map // to keep track of socket connection with socketId
	watchMap sync.Map // to keep track of watched gameId with socketId
	userMap  sync.Map // to keep track of authenticated userId with socketId
	Broker   Publisher

	tokenAuth *jwtauth.JWTAuth
}

func NewWs() *Ws {
	return &Ws{
		tokenAuth: jwtauth.New("HS256", []byte(os.Getenv("JWT_SECRET_KEY")), nil),
	}
}

// handle socket message from web clients
func (s *Ws) SocketMessage(socketId string, message *comm.WSMessage) {
	switch message.Type {
	case "init":
		s.handleInit(socketId, message)
	case "watch_game":
		s.handleWatch(socketId, message)
	case "leave_game":
		s.watchMap.Delete(socketId)
	default:
		s.forward(socketId, message)
	}
}

// handleInit binds a verified user to the socket. Every later action carries
// that user id to the game service; unauthenticated sockets may still watch.
func (s *Ws) handleInit(socketId string, msg *comm.WSMessage) {
	var payload struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		log.Errorf("Error: invalid_init_data Malformed init payload %s", err)
		return
	}

	token, err := s.tokenAuth.Decode(payload.Token)
	if err != nil {
		log.Errorf("Error: invalid token on socket %s: %v", socketId, err)
		return
	}
	claim, _ := token.Get("user_id")
	userId, _ := claim.(string)
	if userId == "" {
		log.Error("Invalid init payload: missing user_id claim")
		return
	}

	s.userMap.Store(socketId, userId)
	log.Infof("Socket %s authenticated as user %s", socketId, userId)
}

// handleWatch subscribes the socket to one game's event channel.
func (s *Ws) handleWatch(socketId string, msg *comm.WSMessage) {
	var payload struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		log.Errorf("Error: malformed watch payload %s", err)
		return
	}
	if payload.ID == "" {
		return
	}
	s.watchMap.Store(socketId, payload.ID)
}

// forward relays a player action to the game service over NATS. The caller id
// only ever comes from this relay's own auth state; whatever the client put in
// the frame is discarded.
func (s *Ws) forward(socketId string, msg *comm.WSMessage) {
	msg.SocketId = socketId
	msg.CallerId = ""
	if userId, ok := s.userMap.Load(socketId); ok {
		msg.CallerId = userId.(string)
	}

	bytes, err := json.Marshal(msg)
	if err != nil {
		log.Errorf("Failed to marshal WSMessage for NATS: %v", err)
		return
	}

	topic := "socket.service"
	if err := s.Broker.Publish(topic, bytes); err != nil {
		log.Errorf("Failed to publish to NATS topic %s: %v", topic, err)
		return
	}
}

func (s *Ws) StoreConnection(socketId string, conn *websocket.Conn) {
	s.connMap.Store(socketId, conn)
}

func (s *Ws) GetConnection(socketId string) (*websocket.Conn, bool) {
	conn, ok := s.connMap.Load(socketId)
	if !ok {
		return nil, false
	}
	return conn.(*websocket.Conn), true
}

// GetWatchers returns every socket watching the game.
func (s *Ws) GetWatchers(gameId string) ([]string, bool) {
	var sockets []string
	found := false

	s.watchMap.Range(func(key, value interface{}) bool {
		if value.(string) == gameId {
			sockets = append(sockets, key.(string))
			found = true
		}
		return true // continue iterating
	})

	return sockets, found
}

// GetAllSockets returns every connected socket, for site-wide events.
func (s *Ws) GetAllSockets() []string {
	var sockets []string
	s.connMap.Range(func(key, value interface{}) bool {
		sockets = append(sockets, key.(string))
		return true
	})
	return sockets
}

func (s *Ws) HandleDisconnect(socketId string) {
	s.connMap.Delete(socketId)
	s.watchMap.Delete(socketId)
	s.userMap.Delete(socketId)
}
