// Package fleet is the supervisor (C7): it owns the bot registry,
// spawns and cancels per-bot workers, serializes the shared USDT
// capital quota across them, and reconciles orphaned wallet balances
// at boot.
package fleet

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/spotfleet/spotfleet/internal/ai"
	"github.com/spotfleet/spotfleet/internal/botlog"
	"github.com/spotfleet/spotfleet/internal/exchange"
	"github.com/spotfleet/spotfleet/internal/models"
	"github.com/spotfleet/spotfleet/internal/newscache"
	"github.com/spotfleet/spotfleet/internal/notify"
	"github.com/spotfleet/spotfleet/internal/store"
	"github.com/spotfleet/spotfleet/internal/worker"
)

// Errors returned by Supervisor methods.
var (
	ErrBotNotFound       = fmt.Errorf("fleet: bot not found")
	ErrBotAlreadyRunning = fmt.Errorf("fleet: bot already running")
	ErrBotNotRunning     = fmt.Errorf("fleet: bot not running")
	ErrSymbolLocked      = fmt.Errorf("fleet: cannot change symbol while a position is held")
	ErrStablecoinOrphan  = fmt.Errorf("fleet: asset is a stablecoin, not orphan-adoptable")
)

const orphanTradeAmountUSDT = 100

var stablecoins = map[string]bool{
	"USDT": true, "USDC": true, "BUSD": true, "DAI": true, "TUSD": true, "FDUSD": true,
}

// Config constructs a Supervisor.
type Config struct {
	DataDir          string
	Exchange         exchange.Client
	Notifier         *notify.Notifier
	NewsCache        *newscache.Cache
	Analyzer         *ai.Analyzer
	Logger           *logrus.Logger
	TickInterval     time.Duration
	AutoAdoptOrphans bool

	// StopLossPct, TakeProfitPct, and MaxHold configure every worker's
	// position management; zero values fall back to worker's own
	// package defaults.
	StopLossPct   decimal.Decimal
	TakeProfitPct decimal.Decimal
	MaxHold       time.Duration
}

type runningWorker struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Supervisor is the fleet-wide singleton managing every bot.
type Supervisor struct {
	cfg           Config
	registryStore *store.RegistryStore

	mu      sync.RWMutex
	bots    map[int64]*models.Bot
	nextID  int64
	running map[int64]*runningWorker
	loggers map[int64]*botlog.Logger

	// orphanPending marks bots created by Reconcile that still need
	// their first-start position synthesized from the wallet snapshot
	// that justified adopting them. Cleared on first Start.
	orphanPending map[int64]bool
}

// New constructs a Supervisor; call Boot to load the registry and
// start already-running bots.
func New(cfg Config) *Supervisor {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Supervisor{
		cfg:           cfg,
		registryStore: store.NewRegistryStore(cfg.DataDir),
		bots:          make(map[int64]*models.Bot),
		running:       make(map[int64]*runningWorker),
		loggers:       make(map[int64]*botlog.Logger),
		orphanPending: make(map[int64]bool),
	}
}

// Boot loads the persisted registry, recomputes each bot's
// committed-capital quota from its position on disk, reconciles
// orphaned wallet balances into stopped bots when AutoAdoptOrphans is
// set, and starts every bot marked running.
func (s *Supervisor) Boot(ctx context.Context) error {
	bots, nextID, err := s.registryStore.Load()
	if err != nil {
		return fmt.Errorf("loading registry: %w", err)
	}

	s.mu.Lock()
	for _, b := range bots {
		s.recomputeCommittedLocked(b)
		s.bots[b.ID] = b
	}
	s.nextID = nextID
	s.mu.Unlock()

	if s.cfg.AutoAdoptOrphans {
		if err := s.Reconcile(ctx); err != nil {
			s.cfg.Logger.WithError(err).Warn("orphan reconciliation failed")
		}
	}

	s.mu.RLock()
	toStart := make([]int64, 0)
	for id, b := range s.bots {
		if b.Status == models.StatusRunning {
			toStart = append(toStart, id)
		}
	}
	s.mu.RUnlock()

	for _, id := range toStart {
		if err := s.Start(id); err != nil {
			s.cfg.Logger.WithError(err).WithField("bot_id", id).Warn("failed to resume bot on boot")
		}
	}
	return nil
}

func (s *Supervisor) recomputeCommittedLocked(b *models.Bot) {
	posStore := store.NewPositionStore(s.cfg.DataDir, b.ID)
	pos, err := posStore.Load()
	if err != nil || pos == nil {
		b.CommittedUSDT = decimal.Zero
		return
	}
	b.CommittedUSDT = pos.Qty.Mul(pos.AvgEntryPrice)
}

// Reconcile scans wallet balances for non-stablecoin assets that no
// bot currently trades and creates a stopped "Auto-Manager" bot for
// each one that is tradeable. It never starts a worker or trades.
func (s *Supervisor) Reconcile(ctx context.Context) error {
	balances, err := s.cfg.Exchange.GetBalances(ctx)
	if err != nil {
		return fmt.Errorf("fetching balances: %w", err)
	}

	s.mu.RLock()
	covered := make(map[string]bool, len(s.bots))
	for _, b := range s.bots {
		covered[b.Symbol] = true
	}
	s.mu.RUnlock()

	for _, bal := range balances {
		if bal.Free.IsZero() || stablecoins[bal.Asset] {
			continue
		}
		symbol := bal.Asset + "USDT"
		if covered[symbol] {
			continue
		}

		info, err := s.cfg.Exchange.GetSymbolInfo(ctx, symbol)
		if err != nil || !info.Tradeable {
			s.cfg.Logger.WithField("asset", bal.Asset).Info("orphan asset not tradeable, skipping")
			continue
		}

		// Allocated capital for an adopted orphan covers at least its
		// current holding's notional so the worker can manage scale-ins.
		allocated := decimal.NewFromInt(orphanTradeAmountUSDT)
		if price, priceErr := s.cfg.Exchange.GetTickerPrice(ctx, symbol); priceErr == nil {
			allocated = decimal.Max(bal.Free.Mul(price), allocated)
		}

		spec := models.CreateBotSpec{
			Name:                 "Auto-Manager: " + bal.Asset,
			Symbol:               symbol,
			StrategyKind:         models.StrategyNewsAutonomous,
			AllocatedCapitalUSDT: allocated,
			TradeAmountUSDT:      decimal.NewFromInt(orphanTradeAmountUSDT),
		}

		bot, err := s.createBotLocked(spec, models.StatusStopped)
		if err != nil {
			s.cfg.Logger.WithError(err).WithField("asset", bal.Asset).Warn("failed to create orphan bot")
			continue
		}
		s.mu.Lock()
		s.orphanPending[bot.ID] = true
		s.mu.Unlock()
		s.cfg.Logger.WithField("bot_id", bot.ID).WithField("asset", bal.Asset).Info("adopted orphan asset")
	}
	return nil
}

// CreateBot registers a new bot in stopped state.
func (s *Supervisor) CreateBot(spec models.CreateBotSpec) (*models.Bot, error) {
	return s.createBotLocked(spec, models.StatusStopped)
}

func (s *Supervisor) createBotLocked(spec models.CreateBotSpec, status models.Status) (*models.Bot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++

	bot := &models.Bot{
		ID:                   id,
		Name:                 spec.Name,
		Symbol:               strings.ToUpper(spec.Symbol),
		StrategyKind:         spec.StrategyKind,
		AllocatedCapitalUSDT: spec.AllocatedCapitalUSDT,
		TradeAmountUSDT:      spec.TradeAmountUSDT,
		Status:               status,
		CreatedAt:            time.Now().UTC(),
	}
	s.bots[id] = bot
	if err := s.saveRegistryLocked(); err != nil {
		delete(s.bots, id)
		s.nextID--
		return nil, err
	}
	return bot.Clone(), nil
}

func (s *Supervisor) saveRegistryLocked() error {
	bots := make([]*models.Bot, 0, len(s.bots))
	for _, b := range s.bots {
		bots = append(bots, b)
	}
	return s.registryStore.Save(bots, s.nextID)
}

// Start begins a worker goroutine for id.
func (s *Supervisor) Start(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked(id)
}

func (s *Supervisor) startLocked(id int64) error {
	bot, ok := s.bots[id]
	if !ok {
		return ErrBotNotFound
	}
	if _, running := s.running[id]; running {
		return ErrBotAlreadyRunning
	}

	logger, err := s.loggerFor(id)
	if err != nil {
		return err
	}

	autoAdopted := s.orphanPending[id]
	delete(s.orphanPending, id)

	w, err := worker.New(worker.Config{
		Bot:           bot.Clone(),
		Exchange:      s.cfg.Exchange,
		Notifier:      s.cfg.Notifier,
		NewsCache:     s.cfg.NewsCache,
		Analyzer:      s.cfg.Analyzer,
		Accounting:    s,
		PositionStore: store.NewPositionStore(s.cfg.DataDir, id),
		Logger:        logger,
		TickInterval:  s.cfg.TickInterval,
		AutoAdopted:   autoAdopted,
		StopLossPct:   s.cfg.StopLossPct,
		TakeProfitPct: s.cfg.TakeProfitPct,
		MaxHold:       s.cfg.MaxHold,
	})
	if err != nil {
		return fmt.Errorf("building worker for bot %d: %w", id, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.running[id] = &runningWorker{cancel: cancel, done: done}

	bot.Status = models.StatusRunning
	if err := s.saveRegistryLocked(); err != nil {
		cancel()
		delete(s.running, id)
		return err
	}

	go func() {
		defer close(done)
		w.Run(ctx)
	}()
	return nil
}

func (s *Supervisor) loggerFor(id int64) (*botlog.Logger, error) {
	if l, ok := s.loggers[id]; ok {
		return l, nil
	}
	l, err := botlog.Open(s.cfg.DataDir, id, s.cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("opening bot log: %w", err)
	}
	s.loggers[id] = l
	return l, nil
}

// Stop cancels id's running worker and waits for it to exit.
func (s *Supervisor) Stop(id int64) error {
	s.mu.Lock()
	bot, ok := s.bots[id]
	if !ok {
		s.mu.Unlock()
		return ErrBotNotFound
	}
	rw, running := s.running[id]
	if !running {
		s.mu.Unlock()
		return ErrBotNotRunning
	}
	delete(s.running, id)
	bot.Status = models.StatusStopped
	saveErr := s.saveRegistryLocked()
	s.mu.Unlock()

	rw.cancel()
	<-rw.done
	return saveErr
}

// Delete removes a stopped bot from the registry, clears its position
// file and closes its logger. Its bot_<id>.log file is left on disk.
func (s *Supervisor) Delete(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bot, ok := s.bots[id]
	if !ok {
		return ErrBotNotFound
	}
	if _, running := s.running[id]; running || bot.Status == models.StatusRunning {
		return fmt.Errorf("fleet: stop bot %d before deleting it", id)
	}

	delete(s.bots, id)
	if err := s.saveRegistryLocked(); err != nil {
		return err
	}
	if err := store.NewPositionStore(s.cfg.DataDir, id).Clear(); err != nil {
		s.cfg.Logger.WithError(err).WithField("bot_id", id).Warn("failed to clear position file on delete")
	}
	if l, ok := s.loggers[id]; ok {
		l.Close()
		delete(s.loggers, id)
	}
	return nil
}

// Edit applies a partial patch to a bot's configuration.
func (s *Supervisor) Edit(id int64, patch models.EditBotPatch) (*models.Bot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bot, ok := s.bots[id]
	if !ok {
		return nil, ErrBotNotFound
	}
	if patch.Name != nil {
		bot.Name = *patch.Name
	}
	if patch.StrategyKind != nil {
		bot.StrategyKind = *patch.StrategyKind
	}
	if patch.AllocatedCapitalUSDT != nil {
		bot.AllocatedCapitalUSDT = *patch.AllocatedCapitalUSDT
	}
	if patch.TradeAmountUSDT != nil {
		bot.TradeAmountUSDT = *patch.TradeAmountUSDT
	}
	if err := s.saveRegistryLocked(); err != nil {
		return nil, err
	}
	return bot.Clone(), nil
}

// AddFunds increases a bot's allocated capital quota.
func (s *Supervisor) AddFunds(id int64, amount decimal.Decimal) (*models.Bot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bot, ok := s.bots[id]
	if !ok {
		return nil, ErrBotNotFound
	}
	bot.AllocatedCapitalUSDT = bot.AllocatedCapitalUSDT.Add(amount)
	if err := s.saveRegistryLocked(); err != nil {
		return nil, err
	}
	return bot.Clone(), nil
}

// EditSymbol changes a bot's symbol directly via the dashboard,
// refusing when a position is held (the position-lock invariant).
func (s *Supervisor) EditSymbol(id int64, newSymbol string) (*models.Bot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bot, ok := s.bots[id]
	if !ok {
		return nil, ErrBotNotFound
	}
	if !bot.CommittedUSDT.IsZero() {
		return nil, ErrSymbolLocked
	}
	bot.Symbol = strings.ToUpper(newSymbol)
	if err := s.saveRegistryLocked(); err != nil {
		return nil, err
	}
	return bot.Clone(), nil
}

// Bot returns a cloned snapshot of one bot.
func (s *Supervisor) Bot(id int64) (*models.Bot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bots[id]
	if !ok {
		return nil, false
	}
	return b.Clone(), true
}

// Snapshot is the overview payload served by the dashboard.
type Snapshot struct {
	Bots []*models.Bot
}

// Snapshot returns every bot's current state, for the dashboard overview.
func (s *Supervisor) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Bot, 0, len(s.bots))
	for _, b := range s.bots {
		out = append(out, b.Clone())
	}
	return Snapshot{Bots: out}
}

// Shutdown stops every running bot, used on process shutdown.
func (s *Supervisor) Shutdown() {
	s.mu.RLock()
	ids := make([]int64, 0, len(s.running))
	for id := range s.running {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	for _, id := range ids {
		if err := s.Stop(id); err != nil {
			s.cfg.Logger.WithError(err).WithField("bot_id", id).Warn("error stopping bot during shutdown")
		}
	}
	s.mu.Lock()
	for _, l := range s.loggers {
		l.Close()
	}
	s.mu.Unlock()
}

// --- worker.Accounting implementation ---

// Reserve commits up to want USDT against id's spare allocated
// capital, serialized by the supervisor's write lock so no two
// concurrently ticking workers can double-spend the same quota.
func (s *Supervisor) Reserve(id int64, want decimal.Decimal) (decimal.Decimal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bot, ok := s.bots[id]
	if !ok || want.IsNegative() || !want.IsPositive() {
		return decimal.Zero, false
	}
	spare := bot.AllocatedCapitalUSDT.Sub(bot.CommittedUSDT)
	if spare.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, false
	}
	reserve := decimal.Min(want, spare)
	bot.CommittedUSDT = bot.CommittedUSDT.Add(reserve)
	return reserve, true
}

// Release returns amount to id's spare capital, floored at zero so a
// caller accidentally releasing more than committed cannot push the
// quota negative.
func (s *Supervisor) Release(id int64, amount decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bot, ok := s.bots[id]
	if !ok {
		return
	}
	bot.CommittedUSDT = bot.CommittedUSDT.Sub(amount)
	if bot.CommittedUSDT.IsNegative() {
		bot.CommittedUSDT = decimal.Zero
	}
}

// UpdateSymbol persists a news-autonomous symbol switch.
func (s *Supervisor) UpdateSymbol(id int64, newSymbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bot, ok := s.bots[id]
	if !ok {
		return ErrBotNotFound
	}
	bot.Symbol = strings.ToUpper(newSymbol)
	return s.saveRegistryLocked()
}

// CurrentBot returns the live registry entry for a running worker.
func (s *Supervisor) CurrentBot(id int64) (*models.Bot, bool) {
	return s.Bot(id)
}
