// Package snapshot adds threshold-triggered snapshot maintenance on top
// of the persistence contract's GetStreamsToSnapshot/AddSnapshot
// operations, which the core otherwise leaves uninvoked.
//
// Where a per-aggregate projection upserts one snapshot row on every
// event, Scheduler instead folds a batch of events into a single new
// Snapshot only once a stream's lag crosses a threshold, since many
// snapshots can coexist per stream, picked by highest revision <= a
// bound, which isn't expressible as a per-event upsert.
package snapshot

import (
	"context"
	"time"

	"github.com/parchment-es/eventstore/es"
	"github.com/parchment-es/eventstore/es/logging"
	"github.com/parchment-es/eventstore/es/persistence"
)

// Folder folds the events of a stream, starting from its prior snapshot
// payload (nil if none), into a new snapshot payload.
type Folder func(priorPayload []byte, events []es.EventMessage) ([]byte, error)

// Config configures a Scheduler.
type Config struct {
	// BucketID is the bucket whose streams are candidates for snapshotting.
	BucketID string

	// MinThreshold is the minimum lag (events since last snapshot) before
	// a stream is snapshotted.
	MinThreshold int64

	// Interval is how often the scheduler polls for streams to snapshot.
	Interval time.Duration

	// Logger receives suppressed per-stream failures.
	Logger logging.Logger
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig(bucketID string) Config {
	return Config{
		BucketID:     bucketID,
		MinThreshold: 100,
		Interval:     time.Minute,
		Logger:       logging.NoOp{},
	}
}

// Scheduler periodically snapshots streams whose lag has crossed a
// threshold.
type Scheduler struct {
	backend persistence.Persistence
	fold    Folder
	config  Config
}

// New builds a Scheduler over backend, using fold to produce snapshot
// payloads.
func New(backend persistence.Persistence, fold Folder, config Config) *Scheduler {
	if config.Logger == nil {
		config.Logger = logging.NoOp{}
	}
	return &Scheduler{backend: backend, fold: fold, config: config}
}

// Run polls on Config.Interval until ctx is cancelled, snapshotting
// eligible streams on each tick. It returns ctx.Err() on cancellation.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// Tick runs one snapshot pass immediately, without waiting for the
// ticker. Useful in tests and for callers driving their own schedule.
func (s *Scheduler) Tick(ctx context.Context) error {
	return s.tick(ctx)
}

func (s *Scheduler) tick(ctx context.Context) error {
	heads, err := s.backend.GetStreamsToSnapshot(ctx, s.config.BucketID, s.config.MinThreshold)
	if err != nil {
		s.config.Logger.Error(ctx, "get streams to snapshot failed", "error", err)
		return err
	}
	for _, head := range heads {
		if err := s.snapshotOne(ctx, head); err != nil {
			s.config.Logger.Error(ctx, "snapshot failed", "bucket_id", head.BucketID, "stream_id", head.StreamID, "error", err)
		}
	}
	return nil
}

func (s *Scheduler) snapshotOne(ctx context.Context, head es.StreamHead) error {
	var priorPayload []byte
	if head.SnapshotRevision > 0 {
		prior, ok, err := s.backend.GetSnapshot(ctx, head.BucketID, head.StreamID, head.SnapshotRevision)
		if err != nil {
			return err
		}
		if ok {
			priorPayload = prior.Payload
		}
	}

	commits, err := s.backend.GetFrom(ctx, head.BucketID, head.StreamID, head.SnapshotRevision+1, head.HeadRevision)
	if err != nil {
		return err
	}

	var events []es.EventMessage
	for _, c := range commits {
		events = append(events, c.Events...)
	}

	payload, err := s.fold(priorPayload, events)
	if err != nil {
		return err
	}

	_, err = s.backend.AddSnapshot(ctx, es.Snapshot{
		BucketID:       head.BucketID,
		StreamID:       head.StreamID,
		StreamRevision: head.HeadRevision,
		Payload:        payload,
	})
	return err
}
