// Package settings provides tenant-level pipeline settings with a Redis
// read-through cache in front of Postgres.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"github.com/chatline/chatline/internal/store"
)

// TenantSettings gates pipeline behavior per tenant.
type TenantSettings struct {
	TenantID int64 `json:"tenant_id"`

	// BlockGroupMessages drops group-conversation events before any
	// processing.
	BlockGroupMessages bool `json:"block_group_messages"`

	// TranscribeAudio enables audio transcription when an AI provider key
	// is also configured.
	TranscribeAudio bool   `json:"transcribe_audio"`
	AIProviderKey   string `json:"ai_provider_key,omitempty"`

	GreetingMessage   string   `json:"greeting_message,omitempty"`
	GreetingMediaPath string   `json:"greeting_media_path,omitempty"`
	GreetingAllowList []string `json:"greeting_allow_list,omitempty"`
}

// GreetingAllowed applies the optional numeric allow-list: an empty list
// allows everyone.
func (s *TenantSettings) GreetingAllowed(number string) bool {
	if s == nil {
		return false
	}
	if len(s.GreetingAllowList) == 0 {
		return true
	}
	return s.GreetingListed(number)
}

// GreetingListed reports explicit allow-list membership. Unlike
// GreetingAllowed, an empty list matches nothing.
func (s *TenantSettings) GreetingListed(number string) bool {
	if s == nil {
		return false
	}
	for _, n := range s.GreetingAllowList {
		if n == number {
			return true
		}
	}
	return false
}

// Store is a read-through cache over the tenant_settings table. A nil
// Redis client degrades to direct database reads.
type Store struct {
	pool  store.PgxPool
	redis *redis.Client
	ttl   time.Duration
}

func NewStore(pool store.PgxPool, redisClient *redis.Client, ttl time.Duration) *Store {
	if pool == nil {
		panic("settings: pgx pool cannot be nil")
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Store{pool: pool, redis: redisClient, ttl: ttl}
}

func cacheKey(tenantID int64) string {
	return fmt.Sprintf("settings:tenant:%d", tenantID)
}

// Get returns the settings for a tenant, with defaults when no row exists.
func (s *Store) Get(ctx context.Context, tenantID int64) (*TenantSettings, error) {
	if s.redis != nil {
		if data, err := s.redis.Get(ctx, cacheKey(tenantID)).Bytes(); err == nil {
			var cached TenantSettings
			if err := json.Unmarshal(data, &cached); err == nil {
				return &cached, nil
			}
		}
	}

	loaded, err := s.load(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if s.redis != nil {
		if data, err := json.Marshal(loaded); err == nil {
			_ = s.redis.Set(ctx, cacheKey(tenantID), data, s.ttl).Err()
		}
	}
	return loaded, nil
}

// Invalidate drops the cached entry so the next read hits Postgres.
func (s *Store) Invalidate(ctx context.Context, tenantID int64) error {
	if s.redis == nil {
		return nil
	}
	if err := s.redis.Del(ctx, cacheKey(tenantID)).Err(); err != nil {
		return fmt.Errorf("settings: invalidate cache: %w", err)
	}
	return nil
}

func (s *Store) load(ctx context.Context, tenantID int64) (*TenantSettings, error) {
	query := `
		SELECT tenant_id, block_group_messages, transcribe_audio, ai_provider_key,
			greeting_message, greeting_media_path, greeting_allow_list
		FROM tenant_settings
		WHERE tenant_id = $1
	`
	var (
		rec       TenantSettings
		allowList []byte
	)
	err := s.pool.QueryRow(ctx, query, tenantID).Scan(
		&rec.TenantID, &rec.BlockGroupMessages, &rec.TranscribeAudio, &rec.AIProviderKey,
		&rec.GreetingMessage, &rec.GreetingMediaPath, &allowList)
	if err != nil {
		if err == pgx.ErrNoRows {
			return &TenantSettings{TenantID: tenantID}, nil
		}
		return nil, fmt.Errorf("settings: load tenant settings: %w", err)
	}
	if len(allowList) > 0 {
		if err := json.Unmarshal(allowList, &rec.GreetingAllowList); err != nil {
			return nil, fmt.Errorf("settings: decode allow list: %w", err)
		}
	}
	return &rec, nil
}
