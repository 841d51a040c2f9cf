package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iderdiyok/basketball-tourney/scorer"
)

const (
	defaultQueueSize = 256
	defaultMaxLen    = 10000
	publishTimeout   = 2 * time.Second
)

// StreamAdder is the part of *redis.Client the publisher needs.
type StreamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// StreamPublisher publishes scorer snapshots to a Redis stream for downstream consumers.
type StreamPublisher struct {
	client    StreamAdder
	streamKey string
	maxLen    int64
	queue     chan scorer.Snapshot
	logger    *slog.Logger
}

func NewStreamPublisher(client StreamAdder, streamKey string, logger *slog.Logger) *StreamPublisher {
	return &StreamPublisher{
		client:    client,
		streamKey: streamKey,
		maxLen:    defaultMaxLen,
		queue:     make(chan scorer.Snapshot, defaultQueueSize),
		logger:    logger,
	}
}

// Connect parses a redis:// URL and checks the server is reachable.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return client, nil
}

// Observe implements scorer.Observer. It drops the snapshot when the queue is full.
func (p *StreamPublisher) Observe(snap scorer.Snapshot) {
	select {
	case p.queue <- snap:
	default:
		p.logger.Warn("live stream queue full, snapshot dropped", slog.Int("game_id", snap.GameID))
	}
}

// Run drains the queue until ctx is done.
func (p *StreamPublisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-p.queue:
			pctx, cancel := context.WithTimeout(ctx, publishTimeout)
			if err := p.Publish(pctx, snap); err != nil {
				p.logger.Error("failed to publish live score", slog.Int("game_id", snap.GameID), slog.Any("error", err))
			}
			cancel()
		}
	}
}

// Publish writes one snapshot to the stream.
func (p *StreamPublisher) Publish(ctx context.Context, snap scorer.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshaling scorer snapshot: %w", err)
	}

	return p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.streamKey,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"game_id": snap.GameID,
			"status":  string(snap.Status),
			"score_a": snap.TeamA.TotalScore,
			"score_b": snap.TeamB.TotalScore,
			"elapsed": snap.Clock.ElapsedSeconds,
			"data":    string(data),
		},
	}).Err()
}
