// Package snapshots persists the heat tracker's serialized state so warm
// restarts keep recent heat. Snapshots go to redis when configured (they are
// small and expire on their own) and fall back to the byte store otherwise.
package snapshots

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/redis/rueidis"

	"github.com/guardianbot/guardian/bytestore"
)

const (
	redisKey = "guardian:heat_snapshot"

	// Snapshots older than this are useless to restore, decay would have
	// zeroed the state anyway.
	snapshotTTL = time.Hour

	snapshotDir  = "snapshots"
	snapshotName = "heat.bin"
)

// ErrNoSnapshot is returned by LoadHeat when no snapshot exists.
var ErrNoSnapshot = errors.New("snapshots: no heat snapshot found")

type Store struct {
	Redis   rueidis.Client // nil to use Backing instead
	Backing *bytestore.Store
}

func (s *Store) SaveHeat(ctx context.Context, data []byte) error {
	if s.Redis != nil {
		return s.Redis.Do(ctx, s.Redis.B().Set().Key(redisKey).Value(rueidis.BinaryString(data)).Ex(snapshotTTL).Build()).Error()
	}

	return s.Backing.Save(ctx, snapshotDir, snapshotName, bytes.NewBuffer(data))
}

func (s *Store) LoadHeat(ctx context.Context) ([]byte, error) {
	if s.Redis != nil {
		data, err := s.Redis.Do(ctx, s.Redis.B().Get().Key(redisKey).Build()).AsBytes()

		if errors.Is(err, rueidis.Nil) {
			return nil, ErrNoSnapshot
		}

		if err != nil {
			return nil, err
		}

		return data, nil
	}

	data, err := s.Backing.Read(ctx, snapshotDir, snapshotName)

	if errors.Is(err, bytestore.ErrNotFound) {
		return nil, ErrNoSnapshot
	}

	if err != nil {
		return nil, err
	}

	return data, nil
}
