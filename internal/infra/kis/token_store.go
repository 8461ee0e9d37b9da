package kis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/wonny/snowbot/internal/domain/trading"
)

// TokenStore persists credential state across restarts.
// Single-process use only: there is no cross-process locking.
type TokenStore interface {
	// Load returns the stored state of profile, or nil if none
	Load(ctx context.Context, profile trading.Profile) (*trading.CredentialState, error)

	// Save stores the state of state.Profile
	Save(ctx context.Context, state *trading.CredentialState) error
}

// ============================================================================
// File store
// ============================================================================

// FileTokenStore keeps all profiles in one JSON file
type FileTokenStore struct {
	path string
	mu   sync.Mutex
}

// NewFileTokenStore creates a store at path
func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

func (s *FileTokenStore) Load(_ context.Context, profile trading.Profile) (*trading.CredentialState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readAll()
	if err != nil {
		return nil, err
	}
	return all[profile], nil
}

func (s *FileTokenStore) Save(_ context.Context, state *trading.CredentialState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readAll()
	if err != nil {
		return err
	}
	copied := *state
	all[state.Profile] = &copied

	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal token file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}

	// write-then-rename so a crash never leaves a torn file
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename token file: %w", err)
	}
	return nil
}

func (s *FileTokenStore) readAll() (map[trading.Profile]*trading.CredentialState, error) {
	all := make(map[trading.Profile]*trading.CredentialState)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return all, nil
		}
		return nil, fmt.Errorf("read token file: %w", err)
	}
	if len(data) == 0 {
		return all, nil
	}
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("parse token file %s: %w", s.path, err)
	}
	return all, nil
}

// ============================================================================
// Redis store
// ============================================================================

// RedisKeyPrefix prefixes the per-profile token keys
const RedisKeyPrefix = "snowbot:kis:token:"

// RedisTokenStore keeps one JSON value per profile.
// Keys never expire so the issuance counter outlives the token.
type RedisTokenStore struct {
	rdb redis.Cmdable
}

// NewRedisTokenStore creates a store on rdb
func NewRedisTokenStore(rdb redis.Cmdable) *RedisTokenStore {
	return &RedisTokenStore{rdb: rdb}
}

func (s *RedisTokenStore) Load(ctx context.Context, profile trading.Profile) (*trading.CredentialState, error) {
	raw, err := s.rdb.Get(ctx, RedisKeyPrefix+string(profile)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get token: %w", err)
	}

	var state trading.CredentialState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("parse token state: %w", err)
	}
	return &state, nil
}

func (s *RedisTokenStore) Save(ctx context.Context, state *trading.CredentialState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal token state: %w", err)
	}
	if err := s.rdb.Set(ctx, RedisKeyPrefix+string(state.Profile), string(data), 0).Err(); err != nil {
		return fmt.Errorf("redis set token: %w", err)
	}
	return nil
}
