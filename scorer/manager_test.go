package scorer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/jonboulle/clockwork"

	"github.com/iderdiyok/basketball-tourney/models"
)

type countingStore struct {
	fakeStore
	gets atomic.Int32
}

func (c *countingStore) GetGame(ctx context.Context, id int) (*models.Game, error) {
	c.gets.Add(1)
	if id == 404 {
		return nil, errors.New("game not found")
	}
	g := testGame()
	g.ID = id
	return g, nil
}

func newTestManager(store GameStore) *Manager {
	return NewManager(store, Options{
		HalfTimeSeconds: 60,
		Clock:           clockwork.NewFakeClock(),
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestManager_OneSessionPerGame(t *testing.T) {
	store := &countingStore{}
	m := newTestManager(store)
	defer m.CloseAll()

	var wg sync.WaitGroup
	sessions := make([]*Session, 8)
	for i := range sessions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := m.Open(context.Background(), 5)
			if err != nil {
				t.Errorf("Open: %v", err)
				return
			}
			sessions[i] = s
		}(i)
	}
	wg.Wait()

	for _, s := range sessions[1:] {
		if s != sessions[0] {
			t.Fatal("concurrent opens returned different sessions")
		}
	}
	if got := store.gets.Load(); got != 1 {
		t.Fatalf("game loaded %d times, want 1", got)
	}

	other, err := m.Open(context.Background(), 6)
	if err != nil {
		t.Fatal(err)
	}
	if other == sessions[0] {
		t.Fatal("different games must not share a session")
	}
	if ids := m.Active(); len(ids) != 2 || ids[0] != 5 || ids[1] != 6 {
		t.Fatalf("Active() = %v", ids)
	}
}

func TestManager_CloseAndReopen(t *testing.T) {
	m := newTestManager(&countingStore{})
	ctx := context.Background()

	s, err := m.Open(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if !m.Close(5) {
		t.Fatal("Close should report an open session")
	}
	if m.Close(5) {
		t.Fatal("second Close should report false")
	}
	if _, err := s.Snapshot(ctx); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("closed session err = %v", err)
	}
	if _, ok := m.Get(5); ok {
		t.Fatal("closed session still registered")
	}

	again, err := m.Open(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if again == s {
		t.Fatal("reopen must create a fresh session")
	}
	m.CloseAll()
	if len(m.Active()) != 0 {
		t.Fatal("CloseAll left sessions behind")
	}
}

func TestManager_OpenErrorNotCached(t *testing.T) {
	m := newTestManager(&countingStore{})
	defer m.CloseAll()

	if _, err := m.Open(context.Background(), 404); err == nil {
		t.Fatal("expected load error")
	}
	if _, ok := m.Get(404); ok {
		t.Fatal("failed open must not register a session")
	}
}
