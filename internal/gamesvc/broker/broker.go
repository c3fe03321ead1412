package broker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"

	"github.com/zuiy/crate-services/internal/comm"
	"github.com/zuiy/crate-services/internal/gamesvc/models"
	"github.com/zuiy/crate-services/internal/gamesvc/service"
	"github.com/zuiy/crate-services/internal/gamesvc/store"
)

const broadcastTopic = "game.service"

// Broker carries both directions of the NATS bridge: player actions arrive
// from the socket service and game events go back out on the broadcast topic.
// The service fields are set after construction because the services take the
// broker as their broadcaster.
type Broker struct {
	Conn          *nats.Conn
	GameService   *service.GameService
	BattleService *service.BattleService
	MinesService  *service.MinesService
	CaseService   *service.CaseOpenService
	CrateStore    *store.CrateStore
}

// handles player actions coming from the socket service
func (b *Broker) handleMessage(msgNat *nats.Msg) {
	msg := &comm.WSMessage{}
	err := json.Unmarshal(msgNat.Data, &msg)
	if err != nil {
		log.Errorf("Error nats message %s", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch msg.Type {
	case "get_games":
		var request struct {
			Game string `json:"game"`
		}
		if err := json.Unmarshal(msg.Data, &request); err != nil {
			log.Errorf("Error %s", err)
			return
		}
		if !models.IsValidType(request.Game) {
			b.publishError(msg, "unknown game type")
			return
		}
		games, err := b.GameService.ListGames(ctx, models.GameType(request.Game))
		if err != nil {
			log.Errorf("Error [GameService.ListGames] %s", err)
			b.publishError(msg, "unable to list games")
			return
		}
		b.publishResponse(msg, games)

	case "get_game":
		var request struct {
			Game string `json:"game"`
			ID   string `json:"id"`
		}
		if err := json.Unmarshal(msg.Data, &request); err != nil {
			log.Errorf("Error %s", err)
			return
		}
		if !models.IsValidType(request.Game) {
			b.publishError(msg, "unknown game type")
			return
		}
		g, err := b.GameService.GetGame(ctx, models.GameType(request.Game), request.ID)
		if err != nil {
			b.publishError(msg, userFacing(err))
			return
		}
		b.publishResponse(msg, g.PublicView())

	case "join_game":
		var request struct {
			Game string `json:"game"`
			ID   string `json:"id"`
			Team int    `json:"team"`
		}
		request.Team = -1
		if err := json.Unmarshal(msg.Data, &request); err != nil {
			log.Errorf("Error %s", err)
			return
		}
		if msg.CallerId == "" || !models.IsValidType(request.Game) {
			b.publishError(msg, "invalid join request")
			return
		}
		g, err := b.GameService.JoinGame(ctx, msg.CallerId, models.GameType(request.Game), request.ID, request.Team)
		if err != nil {
			b.publishError(msg, userFacing(err))
			return
		}
		b.publishResponse(msg, g.PublicView())

	case "call_bots":
		var request struct {
			Game string `json:"game"`
			ID   string `json:"id"`
			Team int    `json:"team"`
		}
		request.Team = -1
		if err := json.Unmarshal(msg.Data, &request); err != nil {
			log.Errorf("Error %s", err)
			return
		}
		if msg.CallerId == "" || !models.IsValidType(request.Game) {
			b.publishError(msg, "invalid request")
			return
		}
		g, err := b.GameService.CallBots(ctx, models.GameType(request.Game), request.ID, msg.CallerId, request.Team)
		if err != nil {
			b.publishError(msg, userFacing(err))
			return
		}
		if g != nil {
			b.publishResponse(msg, g.PublicView())
		}

	case "create_case_battle":
		var request service.CreateBattleRequest
		if err := json.Unmarshal(msg.Data, &request); err != nil {
			log.Errorf("Error %s", err)
			return
		}
		if msg.CallerId == "" {
			b.publishError(msg, "login required")
			return
		}
		battle, err := b.BattleService.CreateCaseBattle(ctx, msg.CallerId, request)
		if err != nil {
			b.publishError(msg, userFacing(err))
			return
		}
		b.publishResponse(msg, map[string]string{"id": battle.ID})

	case "create_mines":
		var request struct {
			Bet   float64 `json:"bet"`
			Mines int     `json:"mines"`
		}
		if err := json.Unmarshal(msg.Data, &request); err != nil {
			log.Errorf("Error %s", err)
			return
		}
		if msg.CallerId == "" {
			b.publishError(msg, "login required")
			return
		}
		mines, err := b.MinesService.Create(ctx, msg.CallerId, request.Bet, request.Mines)
		if err != nil {
			b.publishError(msg, userFacing(err))
			return
		}
		b.publishResponse(msg, mines.PublicView())

	case "get_mines":
		if msg.CallerId == "" {
			b.publishError(msg, "login required")
			return
		}
		mines, err := b.MinesService.Active(ctx, msg.CallerId)
		if err != nil {
			log.Errorf("Error [MinesService.Active] %s", err)
			return
		}
		if mines == nil {
			b.publishResponse(msg, nil)
			return
		}
		b.publishResponse(msg, mines.PublicView())

	case "reveal_mine":
		var request struct {
			X int `json:"x"`
			Y int `json:"y"`
		}
		if err := json.Unmarshal(msg.Data, &request); err != nil {
			log.Errorf("Error %s", err)
			return
		}
		if msg.CallerId == "" {
			b.publishError(msg, "login required")
			return
		}
		mines, err := b.MinesService.Reveal(ctx, msg.CallerId, request.X, request.Y)
		if err != nil {
			b.publishError(msg, userFacing(err))
			return
		}
		b.publishResponse(msg, mines.PublicView())

	case "cash_mines":
		if msg.CallerId == "" {
			b.publishError(msg, "login required")
			return
		}
		mines, err := b.MinesService.Cash(ctx, msg.CallerId)
		if err != nil {
			b.publishError(msg, userFacing(err))
			return
		}
		b.publishResponse(msg, mines.PublicView())

	case "all_cases":
		crates, err := b.CrateStore.GetAllCrates(ctx)
		if err != nil {
			log.Errorf("Error [CrateStore.GetAllCrates] %s", err)
			return
		}
		b.publishResponse(msg, crates)

	case "open_case":
		var request struct {
			Crate  string `json:"crate"`
			Amount int    `json:"amount"`
			Demo   bool   `json:"demo"`
		}
		if err := json.Unmarshal(msg.Data, &request); err != nil {
			log.Errorf("Error %s", err)
			return
		}
		result, err := b.CaseService.Open(ctx, request.Crate, msg.CallerId, request.Amount, request.Demo)
		if err != nil {
			b.publishError(msg, userFacing(err))
			return
		}
		b.publishResponse(msg, result)

	case "finish_case":
		var request struct {
			Crate string `json:"crate"`
		}
		if err := json.Unmarshal(msg.Data, &request); err != nil {
			log.Errorf("Error %s", err)
			return
		}
		if msg.CallerId == "" {
			b.publishError(msg, "login required")
			return
		}
		if err := b.CaseService.Finish(ctx, request.Crate, msg.CallerId); err != nil {
			b.publishError(msg, userFacing(err))
			return
		}
		b.publishResponse(msg, comm.Res{Status: true})

	case "running_case":
		var request struct {
			Crate string `json:"crate"`
		}
		if err := json.Unmarshal(msg.Data, &request); err != nil {
			log.Errorf("Error %s", err)
			return
		}
		if msg.CallerId == "" {
			b.publishError(msg, "login required")
			return
		}
		opening, err := b.CaseService.Running(ctx, request.Crate, msg.CallerId)
		if err != nil {
			log.Errorf("Error [CaseService.Running] %s", err)
			return
		}
		b.publishResponse(msg, opening)

	default:
		log.Error("Unknown message")
	}
}

// userFacing keeps internal failures out of client replies.
func userFacing(err error) string {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		return verr.Error()
	}
	switch {
	case errors.Is(err, service.ErrGameNotFound),
		errors.Is(err, service.ErrGameEnded),
		errors.Is(err, service.ErrSlotTaken),
		errors.Is(err, service.ErrAlreadyRevealed),
		errors.Is(err, service.ErrAlreadyJoined),
		errors.Is(err, service.ErrInsufficientBalance),
		errors.Is(err, service.ErrOpeningInProgress):
		return err.Error()
	}
	log.Errorf("internal error: %v", err)
	return "something went wrong"
}

func (b *Broker) publishResponse(req *comm.WSMessage, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		log.Errorf("unable to marshal %s response: %s", req.Type, err)
		return
	}
	msg := &comm.WSMessage{
		Type:     req.Type + "_response",
		Data:     payload,
		SocketId: req.SocketId,
	}
	out, err := json.Marshal(msg)
	if err != nil {
		log.Errorf("Error %s", err)
		return
	}
	b.publish(broadcastTopic, out)
}

func (b *Broker) publishError(req *comm.WSMessage, message string) {
	payload, _ := json.Marshal(comm.Res{Status: false, Error: message})
	msg := &comm.WSMessage{
		Type:     req.Type + "_response",
		Data:     payload,
		SocketId: req.SocketId,
	}
	out, err := json.Marshal(msg)
	if err != nil {
		log.Errorf("Error %s", err)
		return
	}
	b.publish(broadcastTopic, out)
}

// Emit publishes a site-wide event such as crate_battle_created.
func (b *Broker) Emit(event string, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		log.Errorf("unable to marshal %s event: %s", event, err)
		return
	}
	msg := &comm.WSMessage{Type: event, Data: payload}
	out, err := json.Marshal(msg)
	if err != nil {
		log.Errorf("Error %s", err)
		return
	}
	b.publish(broadcastTopic, out)
}

// EmitToGame publishes a per-game channel event, e.g. new_round_{id}.
func (b *Broker) EmitToGame(gameID, event string, data interface{}) {
	b.Emit(event+"_"+gameID, data)
}

// consume player actions relayed by the socket service
func (b *Broker) SubscribeSocketService(topic string) (*nats.Subscription, error) {
	sub, err := b.Conn.Subscribe(topic, b.handleMessage)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (b *Broker) publish(topic string, payload []byte) error {
	err := b.Conn.Publish(topic, payload)
	if err != nil {
		log.Errorf("Error publishing to topic %s: %s", topic, err)
		return err
	}
	return nil
}
