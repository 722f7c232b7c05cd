package dialog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// RedisSessionStore persists dialog sessions in Redis so conversations
// survive process restarts and multiple API instances share state. The
// key TTL is refreshed on every save, giving the inactivity expiry.
type RedisSessionStore struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

// NewRedisSessionStore creates a Redis-backed session store.
func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	if client == nil {
		panic("dialog: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisSessionStore{
		redis:  client,
		ttl:    ttl,
		tracer: otel.Tracer("dialog.sessions"),
	}
}

func (s *RedisSessionStore) Get(ctx context.Context, callerID string) (*Session, error) {
	ctx, span := s.tracer.Start(ctx, "dialog.session_get")
	defer span.End()

	data, err := s.redis.Get(ctx, sessionKey(callerID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrSessionNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("dialog: failed to load session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("dialog: failed to decode session: %w", err)
	}
	if session.Slots == nil {
		session.Slots = make(SlotBag)
	}
	return &session, nil
}

func (s *RedisSessionStore) Save(ctx context.Context, session *Session) error {
	ctx, span := s.tracer.Start(ctx, "dialog.session_save")
	defer span.End()

	data, err := json.Marshal(session)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("dialog: failed to marshal session: %w", err)
	}
	if err := s.redis.Set(ctx, sessionKey(session.CallerID), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("dialog: failed to persist session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, callerID string) error {
	ctx, span := s.tracer.Start(ctx, "dialog.session_delete")
	defer span.End()

	if err := s.redis.Del(ctx, sessionKey(callerID)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("dialog: failed to delete session: %w", err)
	}
	return nil
}

func sessionKey(callerID string) string {
	return fmt.Sprintf("dialog:session:%s", callerID)
}
