package settings

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
)

func settingsRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"tenant_id", "block_group_messages", "transcribe_audio", "ai_provider_key",
		"greeting_message", "greeting_media_path", "greeting_allow_list",
	})
}

func TestStoreGetDefaultsWhenMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	s := &Store{pool: mock, ttl: time.Minute}
	mock.ExpectQuery("SELECT (.+) FROM tenant_settings").
		WithArgs(int64(1)).
		WillReturnError(pgx.ErrNoRows)

	got, err := s.Get(context.Background(), 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.TenantID != 1 || got.BlockGroupMessages || got.TranscribeAudio {
		t.Fatalf("expected zero-value defaults, got %+v", got)
	}
}

func TestStoreGetCachesInRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = redisClient.Close() }()

	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	s := &Store{pool: mock, redis: redisClient, ttl: time.Minute}
	mock.ExpectQuery("SELECT (.+) FROM tenant_settings").
		WithArgs(int64(2)).
		WillReturnRows(settingsRows().AddRow(
			int64(2), true, true, "key-123", "Welcome!", "", []byte(`["5511999999999"]`)))

	first, err := s.Get(context.Background(), 2)
	if err != nil {
		t.Fatalf("first get: %v", err)
	}
	if !first.BlockGroupMessages || first.AIProviderKey != "key-123" {
		t.Fatalf("unexpected settings %+v", first)
	}
	if len(first.GreetingAllowList) != 1 {
		t.Fatalf("expected allow list decoded, got %+v", first.GreetingAllowList)
	}

	// Second read must come from the cache: no further query expected.
	second, err := s.Get(context.Background(), 2)
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if second.GreetingMessage != "Welcome!" {
		t.Fatalf("unexpected cached settings %+v", second)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestStoreInvalidate(t *testing.T) {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = redisClient.Close() }()

	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	s := &Store{pool: mock, redis: redisClient, ttl: time.Minute}
	mr.Set(cacheKey(3), `{"tenant_id":3,"block_group_messages":true}`)

	if err := s.Invalidate(context.Background(), 3); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if mr.Exists(cacheKey(3)) {
		t.Fatalf("expected cache entry removed")
	}
}

func TestGreetingAllowed(t *testing.T) {
	open := &TenantSettings{}
	if !open.GreetingAllowed("5511999999999") {
		t.Fatalf("empty allow list must allow everyone")
	}

	restricted := &TenantSettings{GreetingAllowList: []string{"5511999999999"}}
	if !restricted.GreetingAllowed("5511999999999") {
		t.Fatalf("expected listed number allowed")
	}
	if restricted.GreetingAllowed("5511888888888") {
		t.Fatalf("expected unlisted number rejected")
	}

	var nilSettings *TenantSettings
	if nilSettings.GreetingAllowed("x") {
		t.Fatalf("nil settings must not allow greetings")
	}
}

func TestGreetingListed(t *testing.T) {
	open := &TenantSettings{}
	if open.GreetingListed("5511999999999") {
		t.Fatalf("empty list must match nothing")
	}

	restricted := &TenantSettings{GreetingAllowList: []string{"5511999999999"}}
	if !restricted.GreetingListed("5511999999999") {
		t.Fatalf("expected listed number to match")
	}
	if restricted.GreetingListed("5511888888888") {
		t.Fatalf("expected unlisted number to miss")
	}
}
