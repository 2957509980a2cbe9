// Package guildconfig owns the durable per-guild configuration and running
// statistics consulted by every detector.
//
// Reads never fail: a missing, corrupt or oversized record degrades to the
// defaults so a guild keeps its protection while an operator investigates the
// quarantined payload. Writes clamp, serialize and replace atomically.
package guildconfig

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/infinitybotlist/eureka/jsonimpl"
	"go.uber.org/zap"

	"github.com/guardianbot/guardian/bytestore"
	"github.com/guardianbot/guardian/keylock"
)

const (
	recordDir = "guilds"

	// Records larger than this are treated as corrupt.
	maxRecordSize = 1 << 20

	saveAttempts = 3
	saveBackoff  = 100 * time.Millisecond

	// Bounded wait for the per-guild lock. Exceeding it surfaces
	// keylock.ErrLockTimeout to the caller rather than deadlocking.
	lockWait = 10 * time.Second
)

type Store struct {
	Logger  *zap.Logger
	Backing *bytestore.Store

	locks *keylock.M[string]
}

func NewStore(logger *zap.Logger, backing *bytestore.Store) *Store {
	return &Store{
		Logger:  logger,
		Backing: backing,
		locks:   keylock.New[string](),
	}
}

func recordName(guildID string) string {
	return guildID + ".json"
}

// Get returns the stored configuration merged over defaults. It never fails
// and never returns a partially populated config: unreadable or corrupt
// records are quarantined and replaced with defaults.
func (s *Store) Get(ctx context.Context, guildID string) *GuildConfig {
	cfg := Default()

	data, err := s.Backing.Read(ctx, recordDir, recordName(guildID))

	if errors.Is(err, bytestore.ErrNotFound) {
		return cfg
	}

	if err != nil {
		s.Logger.Error("Failed to read guild config, using defaults", zap.String("guildId", guildID), zap.Error(err))
		return cfg
	}

	if len(data) > maxRecordSize {
		s.quarantine(ctx, guildID, data, fmt.Sprintf("oversized record (%d bytes)", len(data)))
		return Default()
	}

	// Unmarshalling over the default value merges: present fields override,
	// absent fields keep their defaults.
	err = jsonimpl.Unmarshal(data, cfg)

	if err != nil {
		s.quarantine(ctx, guildID, data, "unparseable record: "+err.Error())
		return Default()
	}

	cfg.Clamp()
	return cfg
}

// Save clamps, serializes and atomically replaces the guild's record.
// Transient write failures are retried with a short backoff; an unrecoverable
// failure is logged and reported as false, never panicked.
func (s *Store) Save(ctx context.Context, guildID string, cfg *GuildConfig) bool {
	cfg.Clamp()

	data, err := jsonimpl.Marshal(cfg)

	if err != nil {
		s.Logger.Error("Failed to serialize guild config", zap.String("guildId", guildID), zap.Error(err))
		return false
	}

	if len(data) > maxRecordSize {
		s.Logger.Error("Refusing to save oversized guild config", zap.String("guildId", guildID), zap.Int("size", len(data)))
		return false
	}

	for attempt := 1; attempt <= saveAttempts; attempt++ {
		err = s.Backing.Save(ctx, recordDir, recordName(guildID), bytes.NewBuffer(data))

		if err == nil {
			return true
		}

		s.Logger.Warn("Failed to save guild config", zap.String("guildId", guildID), zap.Int("attempt", attempt), zap.Error(err))

		if attempt < saveAttempts {
			time.Sleep(saveBackoff)
		}
	}

	return false
}

// WithLock serializes concurrent get/save pairs for one guild so read-modify
//-write updates cannot interleave and lose an update. The scope is always a
// single guild, never global. Lock acquisition waits at most lockWait and
// then fails with keylock.ErrLockTimeout.
func (s *Store) WithLock(guildID string, fn func() error) error {
	ul, err := s.locks.LockTimeout(guildID, lockWait)

	if err != nil {
		return fmt.Errorf("acquiring config lock for guild %s: %w", guildID, err)
	}

	defer ul.Unlock()

	return fn()
}

// ListGuilds returns the IDs of every guild with a stored record.
func (s *Store) ListGuilds(ctx context.Context) ([]string, error) {
	names, err := s.Backing.List(ctx, recordDir)

	if err != nil {
		return nil, err
	}

	guilds := make([]string, 0, len(names))

	for _, name := range names {
		id, ok := strings.CutSuffix(name, ".json")
		if !ok {
			continue
		}
		guilds = append(guilds, id)
	}

	return guilds, nil
}

func (s *Store) quarantine(ctx context.Context, guildID string, data []byte, reason string) {
	s.Logger.Error("Quarantining corrupt guild config", zap.String("guildId", guildID), zap.String("reason", reason))

	err := s.Backing.Quarantine(ctx, recordDir, recordName(guildID), data)

	if err != nil {
		s.Logger.Error("Failed to quarantine guild config", zap.String("guildId", guildID), zap.Error(err))
	}
}
