package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/httprate"

	config "github.com/zuiy/crate-services/configs"
	mongodb "github.com/zuiy/crate-services/internal/db"
	"github.com/zuiy/crate-services/internal/gamesvc/broker"
	"github.com/zuiy/crate-services/internal/gamesvc/db"
	"github.com/zuiy/crate-services/internal/gamesvc/fair"
	handlers "github.com/zuiy/crate-services/internal/gamesvc/handlers"
	"github.com/zuiy/crate-services/internal/gamesvc/models"
	"github.com/zuiy/crate-services/internal/gamesvc/poller"
	"github.com/zuiy/crate-services/internal/gamesvc/service"
	"github.com/zuiy/crate-services/internal/gamesvc/store"
	nats "github.com/zuiy/crate-services/internal/nats"
	log "github.com/sirupsen/logrus"
)

const SERVICE_NAME = "game"

var instanceId string

func init() {
	instanceId = config.CreateUniqueInstance(SERVICE_NAME)
	config.Logging(SERVICE_NAME + "_service_" + instanceId)
	config.LoadEnv(SERVICE_NAME)
}

func main() {

	// pg connection
	dbpool, err := db.Connect()
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer db.ClosePool()
	log.Printf("pg connection established successfully")

	// mongo holds the crate catalog and player accounts
	mdb, cancelMongo, err := mongodb.ConnectToDB()
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer cancelMongo()
	log.Printf("mongo connection established successfully")

	kv := store.NewPGStore(dbpool)
	gameStore := store.NewGameStore(kv)
	entropyStore := store.NewEntropyStore(dbpool)
	balanceStore := store.NewBalanceStore(dbpool)
	crateStore := store.NewCrateStore(mdb)
	accountStore := store.NewAccountStore(mdb)

	ledger := service.NewLedgerService(balanceStore, accountStore)
	engine := fair.NewEngine(entropyStore)

	// Connect to NATS
	n, err := nats.Connect()
	if err != nil {
		log.Errorf("Error: unable to connect to NATS server %v", err)
		os.Exit(0)
	}

	defer n.Conn.Close()
	log.Printf("NATS connection established successfully %s", n.Url)

	// the broker carries both directions: inbound player actions and
	// outbound game events, so it doubles as the services' broadcaster
	gameBroker := &broker.Broker{Conn: n.Conn, CrateStore: crateStore}

	gameService := service.NewGameService(gameStore, crateStore, ledger, gameBroker)
	battleService := service.NewBattleService(gameStore, crateStore, ledger, gameBroker)
	minesService := service.NewMinesService(gameStore, ledger, engine, gameBroker)
	caseService := service.NewCaseOpenService(kv, crateStore, ledger, engine)

	gameBroker.GameService = gameService
	gameBroker.BattleService = battleService
	gameBroker.MinesService = minesService
	gameBroker.CaseService = caseService

	// subscribe to socket service
	topic := "socket.service"
	sub, err := gameBroker.SubscribeSocketService(topic)
	if err != nil {
		log.Errorf("Error: unable to subscribe to queue %v", err)
		os.Exit(0)
	}

	// state machine driving every persisted game
	gamePoller := poller.New(gameStore, fair.NewChainClient(), ledger, gameBroker)
	gamePoller.Register(models.GameTypeCrateBattle, poller.BattleRules{Battles: battleService})
	gamePoller.Register(models.GameTypeMines, poller.MinesRules{Mines: minesService})
	gamePoller.Register(models.GameTypeSpinner, poller.SpinnerRules{})
	gamePoller.BotFill = func(ctx context.Context, g models.AnyGame) error {
		base := g.Base()
		_, err := gameService.CallBots(ctx, base.Type, base.ID, "", -1)
		return err
	}
	gamePoller.History = func(ctx context.Context, g models.AnyGame) error {
		base := g.Base()
		var userIDs []string
		for _, team := range base.Teams {
			for _, player := range team.Players {
				if !player.Bot {
					userIDs = append(userIDs, player.ID)
				}
			}
		}
		if len(userIDs) == 0 {
			return nil
		}
		return accountStore.AppendGameHistory(ctx, userIDs, g)
	}

	pollCtx, stopPolling := context.WithCancel(context.Background())
	defer stopPolling()
	go gamePoller.Run(pollCtx)
	go caseService.Run(pollCtx, 10*time.Second)

	// Setup router
	r := chi.NewRouter()
	c := config.CORS()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(config.CustomLoggerMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(c.Handler)

	// to protect the service api from any over requests
	rateLimitStr := os.Getenv("RATE_LIMIT")
	rateLimit, err := strconv.Atoi(rateLimitStr)
	if err != nil {
		log.Fatalf("Invalid RATE_LIMIT value: %v", err)
	}
	r.Use(httprate.LimitByIP(rateLimit, 1*time.Minute))

	// Init handlers and routes
	h := handlers.NewHandler(crateStore)
	h.InitAuth()
	h.SetRoutes(r)

	// Create server with timeout settings
	server := &http.Server{
		Addr:         ":" + os.Getenv("GAME_SERVICE_PORT"),
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe(): %v", err)
		}
	}()
	log.Infof("%s service running at port %s", SERVICE_NAME, server.Addr)

	// Wait for interrupt signal to gracefully shutdown the server
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	sub.Unsubscribe()
	stopPolling()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("%s service shutdown Failed:%+v", SERVICE_NAME, err)
	}
	log.Infof("%s service gracefully stopped", SERVICE_NAME)
}
