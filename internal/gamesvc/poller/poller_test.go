package poller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zuiy/crate-services/internal/gamesvc/fair"
	"github.com/zuiy/crate-services/internal/gamesvc/models"
	"github.com/zuiy/crate-services/internal/gamesvc/service"
	"github.com/zuiy/crate-services/internal/gamesvc/store"
)

type stubEOS struct {
	height int64
	id     string
	passed bool
}

func (e *stubEOS) GetLatestBlock(ctx context.Context) (int64, string, error) {
	return e.height, e.id, nil
}

func (e *stubEOS) HasBlockPassed(ctx context.Context, block int64) (bool, error) {
	return e.passed, nil
}

type recordingLedger struct {
	mu      sync.Mutex
	credits map[string]float64
}

func newRecordingLedger() *recordingLedger {
	return &recordingLedger{credits: map[string]float64{}}
}

func (l *recordingLedger) GetAccountData(ctx context.Context, userID string) (*models.AccountData, error) {
	return &models.AccountData{ID: userID}, nil
}

func (l *recordingLedger) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	return decimal.NewFromFloat(1_000_000), nil
}

func (l *recordingLedger) WagerBalance(ctx context.Context, userID string, amount float64) error {
	return nil
}

func (l *recordingLedger) AddWinnings(ctx context.Context, userID string, amount float64, reward bool, xpMultiplier float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credits[userID] += amount
	return nil
}

type recordedEvent struct {
	gameID string
	event  string
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (b *recordingBroadcaster) Emit(event string, data interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, recordedEvent{event: event})
}

func (b *recordingBroadcaster) EmitToGame(gameID, event string, data interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, recordedEvent{gameID: gameID, event: event})
}

func (b *recordingBroadcaster) sawGameEvent(gameID, event string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.events {
		if e.gameID == gameID && e.event == event {
			return true
		}
	}
	return false
}

type staticCatalog struct {
	crate models.Case
}

func (c staticCatalog) GetCrate(ctx context.Context, crateID string) (*models.Case, error) {
	crate := c.crate
	return &crate, nil
}

func (c staticCatalog) GetCrates(ctx context.Context, crateIDs []string) ([]models.Case, error) {
	return []models.Case{c.crate}, nil
}

type fixture struct {
	poller    *Poller
	games     *store.GameStore
	ledger    *recordingLedger
	broadcast *recordingBroadcaster
	eos       *stubEOS
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	games := store.NewGameStore(store.NewMemory())
	ledger := newRecordingLedger()
	broadcast := &recordingBroadcaster{}
	eos := &stubEOS{height: 100, id: "head-block-id", passed: true}

	crate := models.Case{ID: "case_a", Price: 50, Items: []models.CaseItem{
		{MarketItem: models.MarketItem{ID: "big", Price: 100}, Weight: 100},
		{MarketItem: models.MarketItem{ID: "small", Price: 1}, Weight: 9900},
	}}
	battles := service.NewBattleService(games, staticCatalog{crate: crate}, ledger, broadcast)
	mines := service.NewMinesService(games, ledger, fair.NewEngine(store.NewMemoryEntropy()), broadcast)

	f := &fixture{
		poller:    New(games, eos, ledger, broadcast),
		games:     games,
		ledger:    ledger,
		broadcast: broadcast,
		eos:       eos,
		now:       time.Unix(1700000000, 0),
	}
	battles.Now = f.clock
	mines.Now = f.clock
	f.poller.Now = f.clock
	f.poller.After = func(d time.Duration, fn func()) { fn() }
	f.poller.Register(models.GameTypeCrateBattle, BattleRules{Battles: battles})
	f.poller.Register(models.GameTypeMines, MinesRules{Mines: mines})
	return f
}

func (f *fixture) clock() time.Time { return f.now }

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func (f *fixture) runOnce(t *testing.T) {
	t.Helper()
	if err := f.poller.RunOnce(context.Background()); err != nil {
		t.Fatalf("poll failed: %v", err)
	}
}

func (f *fixture) battle(t *testing.T, id string) *models.CrateBattle {
	t.Helper()
	g, err := f.games.Get(context.Background(), models.GameTypeCrateBattle, id)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if g == nil {
		return nil
	}
	return g.(*models.CrateBattle)
}

func seedBattle(t *testing.T, f *fixture, full bool) *models.CrateBattle {
	t.Helper()
	teams := []models.Team{
		{ID: 0, Players: []models.AccountData{{ID: "alice"}}, MaxPlayers: 1},
		{ID: 1, Players: []models.AccountData{}, MaxPlayers: 1},
	}
	if full {
		teams[1].Players = append(teams[1].Players, models.AccountData{ID: "bob"})
	}
	battle := &models.CrateBattle{
		Game: models.Game{
			ID:        "battle-1",
			Type:      models.GameTypeCrateBattle,
			Status:    models.StatusWaiting,
			Teams:     teams,
			JoinCost:  50,
			Cost:      100,
			Expires:   f.now.UnixMilli() + 300_000,
			CreatorID: "alice",
			RoundIDs:  []string{"0"},
			Round:     -1,
			StartDate: f.now.UnixMilli(),
		},
		Mode:     "1v1",
		CaseIDs:  []string{"case_a"},
		WonItems: []models.CaseItem{},
		Crates:   []models.Case{{ID: "case_a", Price: 50}},
	}
	if err := f.games.Save(context.Background(), battle); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	return battle
}

func TestBattleLifecycle(t *testing.T) {
	f := newFixture(t)
	seedBattle(t, f, true)

	// full waiting game begins its countdown
	f.runOnce(t)
	battle := f.battle(t, "battle-1")
	if battle.Status != models.StatusStarting {
		t.Fatalf("status = %q, want starting", battle.Status)
	}
	if !f.broadcast.sawGameEvent("battle-1", "starting") {
		t.Error("no starting event emitted")
	}

	// countdown still running, nothing changes
	f.runOnce(t)
	if f.battle(t, "battle-1").Status != models.StatusStarting {
		t.Fatal("poll advanced a game before its countdown expired")
	}

	// countdown over: seed committed from the chain head
	f.advance(6 * time.Second)
	f.runOnce(t)
	battle = f.battle(t, "battle-1")
	if battle.Status != models.StatusEOS {
		t.Fatalf("status = %q, want eos", battle.Status)
	}
	if battle.ServerSeed != "head-block-id" || battle.EOSBlock != 100 {
		t.Fatalf("commitment not recorded: seed=%q block=%d", battle.ServerSeed, battle.EOSBlock)
	}

	// block confirmed: first round draws one item per player
	f.advance(4 * time.Second)
	f.runOnce(t)
	battle = f.battle(t, "battle-1")
	if battle.Status != models.StatusInProgress || battle.Round != 0 {
		t.Fatalf("status = %q round = %d, want in_progress round 0", battle.Status, battle.Round)
	}
	if len(battle.WonItems) != 2 {
		t.Fatalf("won items = %d, want 2", len(battle.WonItems))
	}
	if !f.broadcast.sawGameEvent("battle-1", "new_round") {
		t.Error("no new_round event emitted")
	}

	// rounds exhausted: the game ends and the delayed payout fires inline
	f.advance(8 * time.Second)
	f.runOnce(t)
	battle = f.battle(t, "battle-1")
	if battle.Status != models.StatusEnded {
		t.Fatalf("status = %q, want ended", battle.Status)
	}
	if battle.Winnings == nil || len(battle.Winnings.WinningTeams) == 0 {
		t.Fatal("no winnings attached to the ended game")
	}
	if !f.broadcast.sawGameEvent("battle-1", "ended") {
		t.Error("no ended event emitted")
	}
	f.ledger.mu.Lock()
	credited := len(f.ledger.credits)
	f.ledger.mu.Unlock()
	if credited == 0 {
		t.Fatal("no payout after finalization")
	}
}

func TestEndedGameHistoryAndRetention(t *testing.T) {
	f := newFixture(t)
	seedBattle(t, f, true)
	battle := f.battle(t, "battle-1")
	battle.Status = models.StatusEnded
	battle.Expires = f.now.UnixMilli() + retentionMs
	if err := f.games.SaveCAS(context.Background(), battle); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	histories := 0
	f.poller.History = func(ctx context.Context, g models.AnyGame) error {
		histories++
		return nil
	}

	f.runOnce(t)
	f.runOnce(t)
	if histories != 1 {
		t.Fatalf("history saved %d times, want exactly once", histories)
	}
	if !f.battle(t, "battle-1").SavedHistory {
		t.Fatal("savedHistory flag not persisted")
	}

	// retention window passes and the snapshot is removed
	f.advance(time.Duration(retentionMs+1000) * time.Millisecond)
	f.runOnce(t)
	if f.battle(t, "battle-1") != nil {
		t.Fatal("ended game survived its retention window")
	}
}

func TestWaitingGameBotFill(t *testing.T) {
	f := newFixture(t)
	seedBattle(t, f, false)

	filled := 0
	f.poller.BotFill = func(ctx context.Context, g models.AnyGame) error {
		filled++
		battle := f.battle(t, g.Base().ID)
		battle.Teams[1].Players = append(battle.Teams[1].Players, models.AccountData{ID: "bot1", Bot: true})
		return f.games.SaveCAS(ctx, battle)
	}

	// not expired yet: no fill, no transition
	f.runOnce(t)
	if filled != 0 {
		t.Fatal("bots called before the waiting window expired")
	}

	f.advance(301 * time.Second)
	f.runOnce(t)
	if filled != 1 {
		t.Fatalf("bot fill ran %d times, want 1", filled)
	}
	if f.battle(t, "battle-1").Status != models.StatusStarting {
		t.Fatal("filled game did not start")
	}
}

func TestUnconfirmedBlockExtendsWait(t *testing.T) {
	f := newFixture(t)
	seedBattle(t, f, true)
	battle := f.battle(t, "battle-1")
	battle.Status = models.StatusEOS
	battle.EOSBlock = 100
	battle.ServerSeed = "head-block-id"
	battle.Expires = f.now.UnixMilli() - 1000
	if err := f.games.SaveCAS(context.Background(), battle); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	f.eos.passed = false

	f.runOnce(t)
	reloaded := f.battle(t, "battle-1")
	if reloaded.Status != models.StatusEOS {
		t.Fatalf("status = %q, want still eos", reloaded.Status)
	}
	if reloaded.Expires <= f.now.UnixMilli() {
		t.Fatal("wait not extended for the unconfirmed block")
	}

	f.eos.passed = true
	f.advance(3 * time.Second)
	f.runOnce(t)
	if f.battle(t, "battle-1").Status != models.StatusInProgress {
		t.Fatal("confirmed block did not start the first round")
	}
}

func seedMines(t *testing.T, f *fixture, expires int64) *models.Mines {
	t.Helper()
	grid := make([][]int, models.MineGridSize)
	for i := range grid {
		grid[i] = make([]int, models.MineGridSize)
	}
	grid[0][0] = 1
	m := &models.Mines{
		Game: models.Game{
			ID:         "carol",
			Type:       models.GameTypeMines,
			Status:     models.StatusInProgress,
			Teams:      []models.Team{{ID: 0, Players: []models.AccountData{{ID: "carol"}}, MaxPlayers: 1}},
			Cost:       10,
			Private:    true,
			Expires:    expires,
			CreatorID:  "carol",
			RoundIDs:   []string{"0"},
			ServerSeed: "seed-a",
			Round:      -1,
			StartDate:  f.now.UnixMilli(),
		},
		MineCount: 1,
		Bet:       10,
		Grid:      grid,
		Revealed:  []int{},
	}
	if err := f.games.Save(context.Background(), m); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	return m
}

func TestAbandonedMinesTimesOutAsLoss(t *testing.T) {
	f := newFixture(t)
	seedMines(t, f, f.now.UnixMilli()+1000)
	ctx := context.Background()

	// still inside its window: untouched
	f.runOnce(t)
	g, err := f.games.Get(ctx, models.GameTypeMines, "carol")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if g.Base().Status != models.StatusInProgress {
		t.Fatalf("status = %q, want still in_progress", g.Base().Status)
	}

	// window passed with no player action: the game is lost
	f.advance(2 * time.Second)
	f.runOnce(t)
	g, err = f.games.Get(ctx, models.GameTypeMines, "carol")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if g.Base().Status != models.StatusEnded {
		t.Fatalf("status = %q, want ended", g.Base().Status)
	}
	if !f.broadcast.sawGameEvent("carol", "ended") {
		t.Error("no ended event emitted")
	}
	f.ledger.mu.Lock()
	defer f.ledger.mu.Unlock()
	if _, ok := f.ledger.credits["carol"]; ok {
		t.Fatal("a timed-out mines game paid out")
	}
}

func TestBotsNotPaid(t *testing.T) {
	f := newFixture(t)
	seedBattle(t, f, true)
	battle := f.battle(t, "battle-1")
	battle.Teams[1].Players[0].Bot = true
	if err := f.games.SaveCAS(context.Background(), battle); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	// walk the whole lifecycle
	for i := 0; i < 6; i++ {
		f.runOnce(t)
		f.advance(10 * time.Second)
	}

	f.ledger.mu.Lock()
	defer f.ledger.mu.Unlock()
	if _, ok := f.ledger.credits["bob"]; ok {
		t.Fatal("a bot received a payout")
	}
}
