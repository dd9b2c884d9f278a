package trader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"upbit-quant-bot/internal/decision"
	"upbit-quant-bot/internal/exchange"
	"upbit-quant-bot/internal/executor"
	"upbit-quant-bot/internal/ledger"
	"upbit-quant-bot/internal/logger"
	"upbit-quant-bot/internal/models"
	"upbit-quant-bot/internal/persistence"
	"upbit-quant-bot/internal/statemachine"
	"upbit-quant-bot/internal/strategy"

	"github.com/shopspring/decimal"
)

// supervised wraps one running task with its restart bookkeeping. Access is
// guarded by the supervisor mutex.
type supervised struct {
	id     string
	cfg    models.StrategyConfig
	task   *Task
	cancel context.CancelFunc
	done   chan struct{}

	restarts int
	failed   bool
}

// Supervisor starts a task per configured strategy and keeps them alive: a
// task whose heartbeat goes stale is canceled and restarted, up to MaxRestarts
// times, after which the strategy is marked failed and left stopped.
type Supervisor struct {
	cfg       *models.Config
	registry  *strategy.Registry
	accounts  *ledger.Manager
	journal   persistence.OrderJournal
	snapshots persistence.SnapshotStore
	market    exchange.MarketData

	heartbeatTimeout time.Duration
	monitorInterval  time.Duration
	restartDelay     time.Duration
	maxRestarts      int

	mu    sync.Mutex
	tasks map[string]*supervised
	wg    sync.WaitGroup
}

// NewSupervisor wires a supervisor from the process-wide collaborators.
func NewSupervisor(cfg *models.Config, registry *strategy.Registry, accounts *ledger.Manager, journal persistence.OrderJournal, snapshots persistence.SnapshotStore, market exchange.MarketData) *Supervisor {
	return &Supervisor{
		cfg:              cfg,
		registry:         registry,
		accounts:         accounts,
		journal:          journal,
		snapshots:        snapshots,
		market:           market,
		heartbeatTimeout: time.Duration(cfg.HeartbeatSec) * time.Second,
		monitorInterval:  30 * time.Second,
		restartDelay:     time.Minute,
		maxRestarts:      cfg.MaxRestarts,
		tasks:            make(map[string]*supervised),
	}
}

// Run starts every configured strategy and monitors their heartbeats until
// ctx is canceled, then waits for all tasks to stop.
func (s *Supervisor) Run(ctx context.Context) error {
	if len(s.cfg.Strategies) == 0 {
		return fmt.Errorf("no strategies configured")
	}

	for id, sc := range s.cfg.Strategies {
		if err := s.start(ctx, id, sc, 0); err != nil {
			return fmt.Errorf("failed to start strategy %s: %w", id, err)
		}
	}

	ticker := time.NewTicker(s.monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return nil
		case <-ticker.C:
			s.checkHeartbeats(ctx)
		}
	}
}

// start builds and launches one strategy task. restarts carries the restart
// count across incarnations.
func (s *Supervisor) start(ctx context.Context, id string, sc models.StrategyConfig, restarts int) error {
	strat, err := s.registry.Create(sc.Strategy, sc)
	if err != nil {
		return err
	}

	machine, err := s.restoreMachine(id)
	if err != nil {
		return err
	}

	account := s.accounts.Account(id)
	engine := decision.New(id, sc.Market, strat, machine, s.journal)
	paper := exchange.NewPaperExchange(account, decimal.NewFromFloat(sc.Commission))
	timeout := time.Duration(s.cfg.OrderTimeoutMs) * time.Millisecond
	exec := executor.New(id, sc.Market, paper, s.journal, machine, timeout)
	task := NewTask(id, sc, engine, exec, account, s.market, s.snapshots)

	taskCtx, cancel := context.WithCancel(ctx)
	sv := &supervised{
		id:       id,
		cfg:      sc,
		task:     task,
		cancel:   cancel,
		done:     make(chan struct{}),
		restarts: restarts,
	}

	s.mu.Lock()
	s.tasks[id] = sv
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(sv.done)
		task.Run(taskCtx)
	}()
	return nil
}

// restoreMachine resumes the position from the last snapshot, FLAT when none.
func (s *Supervisor) restoreMachine(id string) (*statemachine.Machine, error) {
	if s.snapshots == nil {
		return statemachine.New(), nil
	}
	snap, err := s.snapshots.LoadSnapshot(id)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return statemachine.New(), nil
	}
	logger.S().Infow("resuming strategy from snapshot",
		"strategy", id, "position", snap.Position)
	return statemachine.Restore(snap.Position)
}

// checkHeartbeats restarts tasks whose heartbeat exceeded the timeout.
func (s *Supervisor) checkHeartbeats(ctx context.Context) {
	s.mu.Lock()
	stale := make([]*supervised, 0)
	for _, sv := range s.tasks {
		if sv.failed {
			continue
		}
		if time.Since(sv.task.LastHeartbeat()) > s.heartbeatTimeout {
			stale = append(stale, sv)
		}
	}
	s.mu.Unlock()

	for _, sv := range stale {
		s.restart(ctx, sv)
	}
}

// restart cancels a stale task and schedules a replacement after the restart
// delay. Once the restart budget is spent the strategy is marked failed.
func (s *Supervisor) restart(ctx context.Context, sv *supervised) {
	sv.cancel()
	<-sv.done

	if sv.restarts >= s.maxRestarts {
		s.mu.Lock()
		sv.failed = true
		s.mu.Unlock()
		logger.S().Errorw("strategy exhausted restart budget, giving up",
			"strategy", sv.id, "restarts", sv.restarts)
		return
	}

	next := sv.restarts + 1
	logger.S().Warnw("strategy heartbeat stale, restarting",
		"strategy", sv.id, "attempt", next, "max", s.maxRestarts)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.restartDelay):
		}
		if err := s.start(ctx, sv.id, sv.cfg, next); err != nil {
			logger.S().Errorw("strategy restart failed", "strategy", sv.id, "error", err)
		}
	}()
}

// Snapshot reports the supervisor's view of one strategy, for status output.
func (s *Supervisor) Snapshot(id string) (restarts int, failed bool, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sv, ok := s.tasks[id]
	if !ok {
		return 0, false, false
	}
	return sv.restarts, sv.failed, true
}
