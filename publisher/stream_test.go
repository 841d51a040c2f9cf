package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iderdiyok/basketball-tourney/scorer"
)

type mockStream struct {
	mu   sync.Mutex
	args []*redis.XAddArgs
	err  error
}

func (m *mockStream) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.args = append(m.args, a)
	return redis.NewStringResult("1-0", m.err)
}

func (m *mockStream) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.args)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublish_WritesStreamEntry(t *testing.T) {
	stream := &mockStream{}
	p := NewStreamPublisher(stream, "games.live.basketball", testLogger())

	snap := scorer.Snapshot{
		GameID: 9,
		Status: "live",
		TeamA:  scorer.TeamLedger{TotalScore: 12},
		TeamB:  scorer.TeamLedger{TotalScore: 7},
		Clock:  scorer.ClockView{ElapsedSeconds: 42},
	}
	if err := p.Publish(context.Background(), snap); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	a := stream.args[0]
	if a.Stream != "games.live.basketball" || !a.Approx || a.MaxLen != defaultMaxLen {
		t.Fatalf("unexpected args %+v", a)
	}
	values := a.Values.(map[string]interface{})
	if values["game_id"] != 9 || values["score_a"] != 12 || values["score_b"] != 7 || values["elapsed"] != 42 {
		t.Fatalf("unexpected values %v", values)
	}

	var decoded scorer.Snapshot
	if err := json.Unmarshal([]byte(values["data"].(string)), &decoded); err != nil {
		t.Fatalf("data is not a snapshot: %v", err)
	}
	if decoded.GameID != 9 {
		t.Fatalf("decoded game id %d", decoded.GameID)
	}
}

func TestPublish_ReturnsRedisError(t *testing.T) {
	p := NewStreamPublisher(&mockStream{err: errors.New("READONLY")}, "s", testLogger())
	if err := p.Publish(context.Background(), scorer.Snapshot{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestRun_DrainsQueue(t *testing.T) {
	stream := &mockStream{}
	p := NewStreamPublisher(stream, "s", testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	for i := 0; i < 3; i++ {
		p.Observe(scorer.Snapshot{GameID: i})
	}

	deadline := time.Now().Add(time.Second)
	for stream.count() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("published %d snapshots, want 3", stream.count())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestObserve_DropsWhenFull(t *testing.T) {
	p := NewStreamPublisher(&mockStream{}, "s", testLogger())
	for i := 0; i < defaultQueueSize+10; i++ {
		p.Observe(scorer.Snapshot{GameID: i})
	}
	if len(p.queue) != defaultQueueSize {
		t.Fatalf("queue len = %d, want %d", len(p.queue), defaultQueueSize)
	}
}
