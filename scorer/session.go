package scorer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/iderdiyok/basketball-tourney/models"
)

const (
	DefaultTickInterval  = 100 * time.Millisecond
	DefaultAutoSaveDelay = 500 * time.Millisecond
	DefaultStoreTimeout  = 10 * time.Second
)

// GameStore is the persisted game record a session reads once and writes back.
type GameStore interface {
	GetGame(ctx context.Context, gameID int) (*models.Game, error)
	UpdateGameStatus(ctx context.Context, gameID int, status models.GameStatus) error
	SaveGameResult(ctx context.Context, gameID int, result models.GameResult) error
}

type Options struct {
	HalfTimeSeconds int
	TickInterval    time.Duration
	// AutoSaveDelay 0 saves as soon as the game ends; negative means DefaultAutoSaveDelay.
	AutoSaveDelay   time.Duration
	StoreTimeout    time.Duration

	// Clock defaults to clockwork.NewRealClock().
	Clock  clockwork.Clock
	Logger *slog.Logger

	Observers []Observer
	Notifiers []Notifier
}

func (o Options) withDefaults() Options {
	if o.HalfTimeSeconds <= 0 {
		o.HalfTimeSeconds = DefaultHalfTimeSeconds
	}
	if o.TickInterval <= 0 {
		o.TickInterval = DefaultTickInterval
	}
	// 0 is a valid delay: save right at the buzzer
	if o.AutoSaveDelay < 0 {
		o.AutoSaveDelay = DefaultAutoSaveDelay
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = DefaultStoreTimeout
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Session is one scorer screen for one game. All state below the loop marker is
// owned by the run goroutine; public methods hand closures to it and wait.
type Session struct {
	id     uuid.UUID
	gameID int
	store  GameStore
	opts   Options
	clock  clockwork.Clock
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	commands chan func()
	results  chan func()
	done     chan struct{}
	stopped  chan struct{}
	closing  sync.Once

	// loop
	gameClock      *GameClock
	ledger         *Ledger
	status         models.GameStatus
	ticker         clockwork.Ticker
	autoSave       clockwork.Timer
	autoSaveArmed  bool
	autoSaveQueued bool
	saving         bool
	storeCalls     int
	draining       bool
	drained        chan struct{}
	statusUpdating bool
	queuedStatus   models.GameStatus
}

// Open loads the game and starts its session loop. A game without both rosters
// cannot be scored and yields ErrIncompleteRoster.
func Open(ctx context.Context, gameID int, store GameStore, opts Options) (*Session, error) {
	opts = opts.withDefaults()

	game, err := store.GetGame(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("scorer: load game %d: %w", gameID, err)
	}
	ledger, err := NewLedger(game)
	if err != nil {
		return nil, err
	}

	status := game.Status
	if !status.Valid() {
		status = models.GameStatusPending
	}

	sctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:        uuid.New(),
		gameID:    gameID,
		store:     store,
		opts:      opts,
		clock:     opts.Clock,
		logger:    opts.Logger.With(slog.Int("game_id", gameID)),
		ctx:       sctx,
		cancel:    cancel,
		commands:  make(chan func()),
		results:   make(chan func(), 8),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
		gameClock: NewGameClock(opts.HalfTimeSeconds),
		ledger:    ledger,
		status:    status,
	}
	s.logger = s.logger.With(slog.String("session_id", s.id.String()))

	go s.run()
	s.logger.Info("scorer session opened", slog.String("status", string(status)))
	return s, nil
}

func (s *Session) ID() string  { return s.id.String() }
func (s *Session) GameID() int { return s.gameID }

func (s *Session) run() {
	defer close(s.stopped)
	for {
		var tick <-chan time.Time
		if s.ticker != nil {
			tick = s.ticker.Chan()
		}

		select {
		case <-s.done:
			s.stopTicker()
			if s.autoSave != nil {
				s.autoSave.Stop()
				s.autoSave = nil
			}
			return
		case fn := <-s.commands:
			fn()
		case fn := <-s.results:
			fn()
		case <-tick:
			s.onTick()
		}
	}
}

// exec runs fn on the loop and waits for it to finish.
func (s *Session) exec(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	rejected := false
	cmd := func() {
		defer close(finished)
		if s.draining {
			rejected = true
			return
		}
		fn()
	}
	select {
	case s.commands <- cmd:
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	<-finished
	if rejected {
		return ErrSessionClosed
	}
	return nil
}

// post delivers a completion to the loop. Dropped once the session is closed.
func (s *Session) post(fn func()) {
	select {
	case s.results <- fn:
	case <-s.done:
	}
}

// goStore runs a store call off the loop and posts its outcome back.
// Loop only: storeCalls is owned by the run goroutine.
func (s *Session) goStore(call func(ctx context.Context) error, complete func(error)) {
	if s.isDrained() {
		s.logger.Warn("store call dropped, session is closing")
		return
	}
	s.storeCalls++
	go func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.opts.StoreTimeout)
		defer cancel()
		err := call(ctx)
		s.post(func() {
			s.storeCalls--
			complete(err)
			s.checkDrained()
		})
	}()
}

// Close lets running store calls finish (each is bounded by StoreTimeout), flushes an
// armed auto-save, then ends the loop. Commands sent meanwhile get ErrSessionClosed.
// It is safe to call more than once.
func (s *Session) Close() {
	s.closing.Do(func() {
		drained := make(chan struct{})
		s.commands <- func() { s.beginDrain(drained) }
		<-drained

		close(s.done)
		<-s.stopped
		s.cancel()
		s.logger.Info("scorer session closed")
	})
}

func (s *Session) beginDrain(drained chan struct{}) {
	s.draining = true
	s.drained = drained
	s.stopTicker()
	if s.autoSave != nil {
		fired := !s.autoSave.Stop()
		s.autoSave = nil
		if !fired {
			s.runAutoSave()
		}
	}
	s.checkDrained()
}

func (s *Session) checkDrained() {
	if s.draining && s.storeCalls == 0 && !s.isDrained() {
		close(s.drained)
	}
}

func (s *Session) isDrained() bool {
	if s.drained == nil {
		return false
	}
	select {
	case <-s.drained:
		return true
	default:
		return false
	}
}

func (s *Session) Start(ctx context.Context) (Snapshot, error) {
	return s.command(ctx, s.start)
}

func (s *Session) Pause(ctx context.Context) (Snapshot, error) {
	return s.command(ctx, func() error {
		s.gameClock.Pause()
		s.stopTicker()
		return nil
	})
}

func (s *Session) Reset(ctx context.Context) (Snapshot, error) {
	return s.command(ctx, func() error {
		s.gameClock.Reset()
		s.stopTicker()
		return nil
	})
}

func (s *Session) AddPoints(ctx context.Context, playerID, points int) (Snapshot, error) {
	return s.command(ctx, func() error {
		return s.addPoints(playerID, points)
	})
}

func (s *Session) UndoLast(ctx context.Context) (Snapshot, error) {
	return s.command(ctx, func() error {
		s.undoLast()
		return nil
	})
}

func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	if err := s.exec(ctx, func() { snap = s.snapshot() }); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// Save flattens the ledger and waits for the store write. A second Save while
// one is in flight fails with ErrSaveInFlight.
func (s *Session) Save(ctx context.Context) error {
	reply := make(chan error, 1)
	var err error
	if e := s.exec(ctx, func() { err = s.beginSave(reply) }); e != nil {
		return e
	}
	if err != nil {
		return err
	}

	select {
	case err = <-reply:
		return err
	case <-s.done:
		// Close drains running saves first, so a reply may already be waiting
		select {
		case err = <-reply:
			return err
		default:
			return ErrSessionClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// command runs fn on the loop, publishes when it succeeds and returns the view after it.
func (s *Session) command(ctx context.Context, fn func() error) (Snapshot, error) {
	var snap Snapshot
	var err error
	e := s.exec(ctx, func() {
		if err = fn(); err == nil {
			s.publish()
		}
		snap = s.snapshot()
	})
	if e != nil {
		return Snapshot{}, e
	}
	return snap, err
}

func (s *Session) start() error {
	if s.status == models.GameStatusFinished {
		return ErrGameFinished
	}
	res := s.gameClock.Start(s.clock.Now())
	if !res.Started {
		return nil
	}
	s.startTicker()
	if res.FromIdle && s.status == models.GameStatusPending {
		s.requestStatus(models.GameStatusLive)
	}
	return nil
}

func (s *Session) startTicker() {
	if s.ticker == nil {
		s.ticker = s.clock.NewTicker(s.opts.TickInterval)
	}
}

func (s *Session) stopTicker() {
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
}

func (s *Session) onTick() {
	before := s.gameClock.Elapsed()
	event := s.gameClock.Tick(s.clock.Now())

	switch event {
	case ClockHalfEnded:
		s.stopTicker()
		s.notify(NotifyInfo, EventHalfEnded, "First half ended")
	case ClockGameEnded:
		s.stopTicker()
		s.endGame()
	}

	if event != ClockNoEvent || s.gameClock.Elapsed() != before {
		s.publish()
	}
}

// endGame marks the game finished and arms the one auto-save of this session.
func (s *Session) endGame() {
	if s.status != models.GameStatusFinished {
		s.status = models.GameStatusFinished
		s.requestStatus(models.GameStatusFinished)
	}
	s.notify(NotifyInfo, EventGameEnded, "Game ended, saving result")

	if s.autoSaveArmed {
		return
	}
	s.autoSaveArmed = true
	s.autoSave = s.clock.AfterFunc(s.opts.AutoSaveDelay, func() {
		s.post(func() {
			s.autoSave = nil
			s.runAutoSave()
		})
	})
}

// runAutoSave saves now, or right after the save already in flight if the
// ledger changed since that one was taken.
func (s *Session) runAutoSave() {
	if s.saving {
		s.autoSaveQueued = true
		s.logger.Info("auto-save queued behind running save")
		return
	}
	if err := s.beginSave(nil); err != nil {
		s.logger.Warn("auto-save failed to start", slog.Any("error", err))
	}
}

// requestStatus sends at most one status update at a time; a request made while
// another is in flight replaces any queued one.
func (s *Session) requestStatus(status models.GameStatus) {
	if s.statusUpdating {
		s.queuedStatus = status
		return
	}
	s.statusUpdating = true
	s.goStore(func(ctx context.Context) error {
		return s.store.UpdateGameStatus(ctx, s.gameID, status)
	}, func(err error) {
		s.statusUpdated(status, err)
	})
}

func (s *Session) statusUpdated(status models.GameStatus, err error) {
	s.statusUpdating = false
	if err != nil {
		s.logger.Error("failed to update game status",
			slog.String("status", string(status)), slog.Any("error", err))
		s.notify(NotifyError, EventStatusUpdateFailed, "Failed to update game status")
	} else if s.status != models.GameStatusFinished {
		// finished is never downgraded by a late live update
		s.status = status
	}

	if next := s.queuedStatus; next != "" {
		s.queuedStatus = ""
		s.requestStatus(next)
	}
	s.publish()
}

func (s *Session) addPoints(playerID, points int) error {
	c := s.gameClock
	if err := c.Timing().checkScoring(s.status, c.Elapsed(), c.Running()); err != nil {
		var reason RejectReason
		var rejected *ScoringRejectedError
		if errors.As(err, &rejected) {
			reason = rejected.Reason
		}
		s.notify(NotifyError, EventScoringRejected, reason.message())
		return err
	}

	action, err := s.ledger.AddPoints(playerID, points, s.clock.Now())
	if err != nil {
		s.notify(NotifyError, EventScoringRejected, rejectionMessage(err))
		return err
	}
	s.notify(NotifySuccess, EventPointsAdded,
		fmt.Sprintf("%s for %s (%s)", pointsLabel(action.Points), action.PlayerName, action.TeamName))
	return nil
}

func (s *Session) undoLast() {
	action, ok := s.ledger.UndoLast()
	if !ok {
		return
	}
	s.notify(NotifyInfo, EventPointsUndone,
		fmt.Sprintf("Undone: %s from %s", pointsLabel(action.Points), action.PlayerName))
}

// beginSave issues the flattened ledger taken at this instant.
func (s *Session) beginSave(reply chan<- error) error {
	if s.saving {
		return ErrSaveInFlight
	}
	s.saving = true
	result := s.ledger.Result()

	s.goStore(func(ctx context.Context) error {
		return s.store.SaveGameResult(ctx, s.gameID, result)
	}, func(err error) {
		s.saveFinished(result, err)
		if reply != nil {
			reply <- err
		}
	})
	s.publish()
	return nil
}

func (s *Session) saveFinished(result models.GameResult, err error) {
	s.saving = false
	defer s.flushQueuedAutoSave(result, err)

	if err != nil {
		s.logger.Error("failed to save game result", slog.Any("error", err))
		s.notify(NotifyError, EventSaveFailed, "Failed to save game: "+err.Error())
		s.publish()
		return
	}

	s.status = models.GameStatusFinished
	s.gameClock.Pause()
	s.stopTicker()

	a, b := s.ledger.TeamA(), s.ledger.TeamB()
	s.logger.Info("game result saved",
		slog.Int("score_a", result.ScoreA), slog.Int("score_b", result.ScoreB))
	s.notify(NotifySuccess, EventSaveSucceeded,
		fmt.Sprintf("Game saved. Final score: %s %d : %d %s", a.TeamName, result.ScoreA, result.ScoreB, b.TeamName))
	s.publish()
}

func (s *Session) flushQueuedAutoSave(saved models.GameResult, err error) {
	if !s.autoSaveQueued {
		return
	}
	s.autoSaveQueued = false
	if err == nil && sameResult(saved, s.ledger.Result()) {
		return
	}
	s.runAutoSave()
}

func sameResult(a, b models.GameResult) bool {
	return a.Status == b.Status && a.ScoreA == b.ScoreA && a.ScoreB == b.ScoreB &&
		slices.Equal(a.PlayerStats, b.PlayerStats)
}

func (s *Session) notify(kind NotificationKind, event NotificationEvent, msg string) {
	n := Notification{
		GameID:  s.gameID,
		Kind:    kind,
		Event:   event,
		Message: msg,
		At:      s.clock.Now(),
	}
	for _, nt := range s.opts.Notifiers {
		nt.Notify(n)
	}
}

func (s *Session) publish() {
	if len(s.opts.Observers) == 0 {
		return
	}
	snap := s.snapshot()
	for _, o := range s.opts.Observers {
		o.Observe(snap)
	}
}

func (s *Session) snapshot() Snapshot {
	c := s.gameClock
	snap := Snapshot{
		SessionID:      s.id.String(),
		GameID:         s.gameID,
		Status:         s.status,
		Clock:          c.View(),
		ScoringAllowed: c.Timing().ScoringAllowed(s.status, c.Elapsed(), c.Running()),
		TeamA:          s.ledger.TeamA(),
		TeamB:          s.ledger.TeamB(),
		CanUndo:        s.ledger.HistoryLen() > 0,
		Saving:         s.saving,
		At:             s.clock.Now(),
	}
	if last, ok := s.ledger.LastAction(); ok {
		snap.LastAction = &last
	}
	return snap
}

func rejectionMessage(err error) string {
	switch {
	case errors.Is(err, ErrPlayerInBothTeams):
		return "Player is listed in both teams"
	case errors.Is(err, ErrPlayerNotFound):
		return "Player not found"
	case errors.Is(err, ErrInvalidPoints):
		return "Points must be 1, 2 or 3"
	}
	return "Failed to add points"
}
