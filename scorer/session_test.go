package scorer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/iderdiyok/basketball-tourney/models"
)

type fakeStore struct {
	mu       sync.Mutex
	game     *models.Game
	getErr   error
	statuses []models.GameStatus
	saves    []models.GameResult
	saveErrs []error
	// when set, SaveGameResult blocks until it is closed
	release chan struct{}
}

func (f *fakeStore) GetGame(_ context.Context, id int) (*models.Game, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.game, nil
}

func (f *fakeStore) UpdateGameStatus(_ context.Context, id int, status models.GameStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeStore) SaveGameResult(ctx context.Context, id int, result models.GameResult) error {
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves = append(f.saves, result)
	if len(f.saveErrs) > 0 {
		err := f.saveErrs[0]
		f.saveErrs = f.saveErrs[1:]
		return err
	}
	return nil
}

func (f *fakeStore) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saves)
}

func (f *fakeStore) statusLog() []models.GameStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.GameStatus(nil), f.statuses...)
}

type recorder struct {
	mu    sync.Mutex
	notes []Notification
	snaps []Snapshot
}

func (r *recorder) Notify(n Notification) {
	r.mu.Lock()
	r.notes = append(r.notes, n)
	r.mu.Unlock()
}

func (r *recorder) Observe(s Snapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
}

func (r *recorder) count(event NotificationEvent) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, note := range r.notes {
		if note.Event == event {
			n++
		}
	}
	return n
}

func (r *recorder) last(event NotificationEvent) (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.notes) - 1; i >= 0; i-- {
		if r.notes[i].Event == event {
			return r.notes[i], true
		}
	}
	return Notification{}, false
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type harness struct {
	s     *Session
	store *fakeStore
	clock *clockwork.FakeClock
	rec   *recorder
}

func newHarness(t *testing.T, store *fakeStore) *harness {
	t.Helper()
	if store.game == nil {
		store.game = testGame()
	}
	fc := clockwork.NewFakeClock()
	rec := &recorder{}
	s, err := Open(context.Background(), store.game.ID, store, Options{
		HalfTimeSeconds: 60,
		AutoSaveDelay:   500 * time.Millisecond,
		Clock:           fc,
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		Observers:       []Observer{rec},
		Notifiers:       []Notifier{rec},
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(s.Close)
	return &harness{s: s, store: store, clock: fc, rec: rec}
}

// advance moves the fake clock and runs one tick on the loop.
func (h *harness) advance(t *testing.T, d time.Duration) Snapshot {
	t.Helper()
	h.clock.Advance(d)
	if err := h.s.exec(context.Background(), h.s.onTick); err != nil {
		t.Fatalf("tick: %v", err)
	}
	snap, err := h.s.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	return snap
}

func TestSession_OpenFailures(t *testing.T) {
	notFound := errors.New("not found")
	if _, err := Open(context.Background(), 1, &fakeStore{getErr: notFound}, Options{}); !errors.Is(err, notFound) {
		t.Fatalf("err = %v, want wrapped store error", err)
	}

	g := testGame()
	g.TeamA = nil
	if _, err := Open(context.Background(), 1, &fakeStore{game: g}, Options{}); !errors.Is(err, ErrIncompleteRoster) {
		t.Fatalf("err = %v, want ErrIncompleteRoster", err)
	}
}

func TestSession_FullGameAutoSavesOnce(t *testing.T) {
	h := newHarness(t, &fakeStore{})
	ctx := context.Background()

	if _, err := h.s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := h.s.AddPoints(ctx, 1, 2); err != nil {
		t.Fatal(err)
	}

	snap := h.advance(t, 60*time.Second)
	if snap.Clock.ElapsedSeconds != 60 || snap.Clock.Running {
		t.Fatalf("at half: %+v", snap.Clock)
	}
	if !snap.Clock.FirstHalfFinished || !snap.Clock.HalftimeBreak || snap.ScoringAllowed {
		t.Fatalf("halftime view wrong: %+v allowed=%v", snap.Clock, snap.ScoringAllowed)
	}
	if got := h.rec.count(EventHalfEnded); got != 1 {
		t.Fatalf("half ended notifications = %d, want 1", got)
	}

	_, err := h.s.AddPoints(ctx, 3, 3)
	var rejected *ScoringRejectedError
	if !errors.As(err, &rejected) || rejected.Reason != RejectHalftimeBreak || !errors.Is(err, ErrScoringNotAllowed) {
		t.Fatalf("halftime scoring err = %v", err)
	}

	if _, err := h.s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := h.s.AddPoints(ctx, 3, 3); err != nil {
		t.Fatal(err)
	}

	snap = h.advance(t, 60*time.Second)
	if snap.Clock.ElapsedSeconds != 120 || snap.Status != models.GameStatusFinished || snap.Clock.Running {
		t.Fatalf("at end: status %s clock %+v", snap.Status, snap.Clock)
	}
	if h.store.saveCount() != 0 {
		t.Fatal("auto-save must wait for its delay")
	}

	h.clock.Advance(500 * time.Millisecond)
	waitFor(t, "auto-save", func() bool { return h.store.saveCount() == 1 })
	waitFor(t, "save notification", func() bool { return h.rec.count(EventSaveSucceeded) == 1 })

	h.clock.Advance(time.Minute)
	h.advance(t, time.Second)
	if got := h.store.saveCount(); got != 1 {
		t.Fatalf("saves = %d, want exactly 1", got)
	}

	h.store.mu.Lock()
	saved := h.store.saves[0]
	h.store.mu.Unlock()
	if saved.ScoreA != 2 || saved.ScoreB != 3 || saved.Status != models.GameStatusFinished {
		t.Fatalf("saved result %+v", saved)
	}

	note, _ := h.rec.last(EventSaveSucceeded)
	if note.Message != "Game saved. Final score: Falcons 2 : 3 Wolves" {
		t.Fatalf("save message = %q", note.Message)
	}
	if h.rec.count(EventGameEnded) != 1 {
		t.Fatal("expected one game ended notification")
	}

	waitFor(t, "status updates", func() bool { return len(h.store.statusLog()) == 2 })
	if log := h.store.statusLog(); log[0] != models.GameStatusLive || log[1] != models.GameStatusFinished {
		t.Fatalf("status updates = %v", log)
	}

	if _, err := h.s.Start(ctx); !errors.Is(err, ErrGameFinished) {
		t.Fatalf("start after finish err = %v", err)
	}
	if _, err := h.s.AddPoints(ctx, 1, 1); !errors.Is(err, ErrScoringNotAllowed) {
		t.Fatalf("scoring after finish err = %v", err)
	}
}

func TestSession_LiveStatusOnlyFromIdle(t *testing.T) {
	h := newHarness(t, &fakeStore{})
	ctx := context.Background()

	h.s.Start(ctx)
	h.advance(t, 5*time.Second)
	h.s.Pause(ctx)
	h.s.Start(ctx)

	waitFor(t, "live status", func() bool {
		snap, _ := h.s.Snapshot(ctx)
		return snap.Status == models.GameStatusLive
	})

	h.s.Reset(ctx)
	h.s.Start(ctx)
	h.s.Pause(ctx)

	if got := h.store.statusLog(); len(got) != 1 || got[0] != models.GameStatusLive {
		t.Fatalf("status updates = %v, want exactly [live]", got)
	}
}

func TestSession_ResumeKeepsElapsed(t *testing.T) {
	h := newHarness(t, &fakeStore{})
	ctx := context.Background()

	h.s.Start(ctx)
	h.advance(t, 20*time.Second)
	h.s.Pause(ctx)

	h.clock.Advance(10 * time.Minute)
	h.s.Start(ctx)
	snap := h.advance(t, 5*time.Second)

	if snap.Clock.ElapsedSeconds != 25 || snap.Clock.Half != 1 || snap.Clock.Display != "00:35" {
		t.Fatalf("after resume: %+v", snap.Clock)
	}
}

func TestSession_SaveInFlightGuard(t *testing.T) {
	store := &fakeStore{release: make(chan struct{})}
	h := newHarness(t, store)
	ctx := context.Background()

	h.s.AddPoints(ctx, 4, 2)

	first := make(chan error, 1)
	go func() { first <- h.s.Save(ctx) }()

	waitFor(t, "save in flight", func() bool {
		snap, _ := h.s.Snapshot(ctx)
		return snap.Saving
	})
	if err := h.s.Save(ctx); !errors.Is(err, ErrSaveInFlight) {
		t.Fatalf("second save err = %v, want ErrSaveInFlight", err)
	}

	close(store.release)
	if err := <-first; err != nil {
		t.Fatalf("first save: %v", err)
	}
	if got := store.saveCount(); got != 1 {
		t.Fatalf("saves = %d, want 1", got)
	}

	snap, _ := h.s.Snapshot(ctx)
	if snap.Status != models.GameStatusFinished || snap.Saving || snap.Clock.Running {
		t.Fatalf("after save: status %s saving %v running %v", snap.Status, snap.Saving, snap.Clock.Running)
	}
}

func TestSession_SaveFailureKeepsStateForRetry(t *testing.T) {
	store := &fakeStore{saveErrs: []error{errors.New("db down")}}
	h := newHarness(t, store)
	ctx := context.Background()

	h.s.Start(ctx)
	h.s.AddPoints(ctx, 1, 3)

	if err := h.s.Save(ctx); err == nil {
		t.Fatal("expected first save to fail")
	}
	snap, _ := h.s.Snapshot(ctx)
	if snap.Status == models.GameStatusFinished || !snap.Clock.Running || snap.TeamA.TotalScore != 3 {
		t.Fatalf("failed save changed state: status %s running %v score %d",
			snap.Status, snap.Clock.Running, snap.TeamA.TotalScore)
	}
	if h.rec.count(EventSaveFailed) != 1 {
		t.Fatal("expected one save failed notification")
	}

	if err := h.s.Save(ctx); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got := store.saveCount(); got != 2 {
		t.Fatalf("save calls = %d, want 2", got)
	}
	store.mu.Lock()
	retried := store.saves[1]
	store.mu.Unlock()
	if retried.ScoreA != 3 {
		t.Fatalf("retry score A = %d, want 3", retried.ScoreA)
	}
}

func TestSession_UndoAndNotifications(t *testing.T) {
	h := newHarness(t, &fakeStore{})
	ctx := context.Background()

	h.s.Start(ctx)
	snap, err := h.s.AddPoints(ctx, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !snap.CanUndo || snap.LastAction == nil || snap.LastAction.PlayerName != "Ben" {
		t.Fatalf("after add: %+v", snap)
	}
	note, _ := h.rec.last(EventPointsAdded)
	if note.Message != "2 points for Ben (Falcons)" || note.Kind != NotifySuccess {
		t.Fatalf("add notification = %+v", note)
	}

	if _, err := h.s.AddPoints(ctx, 99, 1); !errors.Is(err, ErrPlayerNotFound) {
		t.Fatalf("unknown player err = %v", err)
	}
	if h.rec.count(EventScoringRejected) != 1 {
		t.Fatal("rejection must be notified")
	}

	snap, err = h.s.UndoLast(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if snap.CanUndo || snap.TeamA.TotalScore != 0 {
		t.Fatalf("after undo: %+v", snap)
	}
	if note, _ := h.rec.last(EventPointsUndone); note.Message != "Undone: 2 points from Ben" {
		t.Fatalf("undo notification = %q", note.Message)
	}

	// empty history
	if _, err := h.s.UndoLast(ctx); err != nil {
		t.Fatal(err)
	}
	if h.rec.count(EventPointsUndone) != 1 {
		t.Fatal("undo on empty history must stay silent")
	}
}

func TestSession_ObserversSeeSecondChanges(t *testing.T) {
	h := newHarness(t, &fakeStore{})
	ctx := context.Background()

	h.s.Start(ctx)
	h.advance(t, time.Second)
	h.advance(t, time.Second)

	h.rec.mu.Lock()
	defer h.rec.mu.Unlock()
	if len(h.rec.snaps) < 3 {
		t.Fatalf("observer saw %d snapshots, want at least 3", len(h.rec.snaps))
	}
	if last := h.rec.snaps[len(h.rec.snaps)-1]; last.Clock.ElapsedSeconds != 2 {
		t.Fatalf("last observed elapsed = %d, want 2", last.Clock.ElapsedSeconds)
	}
}

func TestSession_ClosedRejectsCalls(t *testing.T) {
	h := newHarness(t, &fakeStore{})
	ctx := context.Background()

	h.s.Start(ctx)
	h.s.Close()
	h.s.Close()

	if _, err := h.s.Start(ctx); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("Start after close err = %v", err)
	}
	if err := h.s.Save(ctx); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("Save after close err = %v", err)
	}
	if _, err := h.s.Snapshot(ctx); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("Snapshot after close err = %v", err)
	}
}

func (h *harness) loopState(t *testing.T) (saving, autoSaveQueued bool) {
	t.Helper()
	if err := h.s.exec(context.Background(), func() {
		saving, autoSaveQueued = h.s.saving, h.s.autoSaveQueued
	}); err != nil {
		t.Fatalf("exec: %v", err)
	}
	return saving, autoSaveQueued
}

// playTo110 starts the game and stops the clock ten seconds before the end.
func (h *harness) playTo110(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	h.s.Start(ctx)
	h.advance(t, 60*time.Second)
	h.s.Start(ctx)
	if snap := h.advance(t, 50*time.Second); snap.Clock.ElapsedSeconds != 110 {
		t.Fatalf("elapsed = %d, want 110", snap.Clock.ElapsedSeconds)
	}
}

func TestSession_AutoSaveAfterRunningSaveWritesLaterPoints(t *testing.T) {
	store := &fakeStore{release: make(chan struct{})}
	h := newHarness(t, store)
	ctx := context.Background()
	h.playTo110(t)
	h.s.AddPoints(ctx, 1, 2)

	manual := make(chan error, 1)
	go func() { manual <- h.s.Save(ctx) }()
	waitFor(t, "manual save in flight", func() bool { saving, _ := h.loopState(t); return saving })

	if _, err := h.s.AddPoints(ctx, 1, 3); err != nil {
		t.Fatalf("scoring while saving: %v", err)
	}
	h.advance(t, 10*time.Second)
	h.clock.Advance(500 * time.Millisecond)
	waitFor(t, "auto-save queued", func() bool { _, queued := h.loopState(t); return queued })

	close(store.release)
	if err := <-manual; err != nil {
		t.Fatalf("manual save: %v", err)
	}
	waitFor(t, "second save", func() bool { return store.saveCount() == 2 })

	store.mu.Lock()
	first, second := store.saves[0], store.saves[1]
	store.mu.Unlock()
	if first.ScoreA != 2 || second.ScoreA != 5 {
		t.Fatalf("saved scores %d then %d, want 2 then 5", first.ScoreA, second.ScoreA)
	}
}

func TestSession_QueuedAutoSaveSkippedWhenNothingChanged(t *testing.T) {
	store := &fakeStore{release: make(chan struct{})}
	h := newHarness(t, store)
	ctx := context.Background()
	h.playTo110(t)
	h.s.AddPoints(ctx, 3, 1)

	manual := make(chan error, 1)
	go func() { manual <- h.s.Save(ctx) }()
	waitFor(t, "manual save in flight", func() bool { saving, _ := h.loopState(t); return saving })

	h.advance(t, 10*time.Second)
	h.clock.Advance(500 * time.Millisecond)
	waitFor(t, "auto-save queued", func() bool { _, queued := h.loopState(t); return queued })

	close(store.release)
	if err := <-manual; err != nil {
		t.Fatalf("manual save: %v", err)
	}
	saving, queued := h.loopState(t)
	if saving || queued {
		t.Fatalf("saving=%v queued=%v after identical result", saving, queued)
	}
	if got := store.saveCount(); got != 1 {
		t.Fatalf("saves = %d, want 1", got)
	}
}

func TestSession_CloseWaitsForRunningSave(t *testing.T) {
	store := &fakeStore{release: make(chan struct{})}
	h := newHarness(t, store)
	ctx := context.Background()
	h.s.AddPoints(ctx, 4, 3)

	saved := make(chan error, 1)
	go func() { saved <- h.s.Save(ctx) }()
	waitFor(t, "save in flight", func() bool { saving, _ := h.loopState(t); return saving })

	closed := make(chan struct{})
	go func() {
		h.s.Close()
		close(closed)
	}()
	select {
	case <-closed:
		t.Fatal("Close returned while a save was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(store.release)
	if err := <-saved; err != nil {
		t.Fatalf("save across Close: %v", err)
	}
	<-closed

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.saves) != 1 || store.saves[0].ScoreB != 3 {
		t.Fatalf("persisted %+v, want one save with score B 3", store.saves)
	}
	if _, err := h.s.Start(ctx); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("Start after close err = %v", err)
	}
}

func TestSession_CloseFlushesArmedAutoSave(t *testing.T) {
	store := &fakeStore{}
	h := newHarness(t, store)
	h.playTo110(t)
	h.advance(t, 10*time.Second)

	h.s.Close()
	if got := store.saveCount(); got != 1 {
		t.Fatalf("saves after close = %d, want 1", got)
	}
}

func TestOptions_AutoSaveDelayDefaults(t *testing.T) {
	tests := []struct {
		in, want time.Duration
	}{
		{0, 0},
		{-time.Second, DefaultAutoSaveDelay},
		{2 * time.Second, 2 * time.Second},
	}
	for _, tt := range tests {
		if got := (Options{AutoSaveDelay: tt.in}).withDefaults().AutoSaveDelay; got != tt.want {
			t.Errorf("AutoSaveDelay %v -> %v, want %v", tt.in, got, tt.want)
		}
	}
}
