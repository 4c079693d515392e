package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kbukum/streamkit/errors"
	"github.com/kbukum/streamkit/session"
)

// Session hashes live under this prefix, one hash per session with a
// JSON "record" field and an integer "tabs" field. The tab counter is
// a separate field so HIncrBy stays atomic across processes.
const sessionKeyPrefix = "streamkit:session:"

// SessionStore is the Redis-backed session.Store for deployments where
// several hub processes share tab counters.
type SessionStore struct {
	client *Client
	ttl    time.Duration
}

var _ session.Store = (*SessionStore)(nil)

// NewSessionStore creates a store on the given client. ttl zero means
// session hashes never expire.
func NewSessionStore(client *Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

// GetSession resolves a session record by id.
func (s *SessionStore) GetSession(ctx context.Context, sessionID string) (*session.Record, error) {
	key := sessionKey(sessionID)

	raw, err := s.client.HGet(ctx, key, "record")
	if err == goredis.Nil {
		return nil, errors.NotFound("session", sessionID)
	}
	if err != nil {
		return nil, errors.StoreError("get_session", err)
	}

	var rec session.Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, errors.StoreError("get_session", fmt.Errorf("corrupt record for %s: %w", sessionID, err))
	}

	tabs, err := s.client.HGet(ctx, key, "tabs")
	if err == nil {
		fmt.Sscanf(tabs, "%d", &rec.Tabs)
	}
	return &rec, nil
}

// UpdateSession merges partial fields into the record, creating it if
// absent.
func (s *SessionStore) UpdateSession(ctx context.Context, sessionID string, fields map[string]any) error {
	rec, err := s.GetSession(ctx, sessionID)
	if appErr, ok := errors.AsAppError(err); ok && appErr.Code == errors.ErrCodeNotFound {
		now := time.Now()
		rec = &session.Record{ID: sessionID, CreatedAt: now, UpdatedAt: now}
	} else if err != nil {
		return err
	}

	if rec.Fields == nil {
		rec.Fields = make(map[string]any, len(fields))
	}
	for k, v := range fields {
		rec.Fields[k] = v
	}
	rec.UpdatedAt = time.Now()
	return s.writeRecord(ctx, sessionID, rec)
}

// IncrementTabs adjusts the open-tab counter atomically, clamped at
// zero, and returns the new count.
func (s *SessionStore) IncrementTabs(ctx context.Context, sessionID string, delta int) (int, error) {
	key := sessionKey(sessionID)

	if err := s.ensureRecord(ctx, sessionID); err != nil {
		return 0, err
	}
	count, err := s.client.HIncrBy(ctx, key, "tabs", int64(delta))
	if err != nil {
		return 0, errors.StoreError("increment_tabs", err)
	}
	if count < 0 {
		// Late decrements (e.g. a disconnect racing a delete) clamp back.
		if _, err := s.client.HIncrBy(ctx, key, "tabs", -count); err != nil {
			return 0, errors.StoreError("increment_tabs", err)
		}
		count = 0
	}
	s.touchTTL(ctx, key)
	return int(count), nil
}

// DeleteSession removes the session hash. Unknown ids are a no-op.
func (s *SessionStore) DeleteSession(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, sessionKey(sessionID)); err != nil {
		return errors.StoreError("delete_session", err)
	}
	return nil
}

// ensureRecord creates the record field if the hash is missing, so a
// tab increment on a fresh session leaves a readable record behind.
func (s *SessionStore) ensureRecord(ctx context.Context, sessionID string) error {
	exists, err := s.client.Exists(ctx, sessionKey(sessionID))
	if err != nil {
		return errors.StoreError("increment_tabs", err)
	}
	if exists > 0 {
		return nil
	}
	now := time.Now()
	return s.writeRecord(ctx, sessionID, &session.Record{
		ID:        sessionID,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (s *SessionStore) writeRecord(ctx context.Context, sessionID string, rec *session.Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return errors.StoreError("write_record", err)
	}
	key := sessionKey(sessionID)
	if err := s.client.HSet(ctx, key, "record", raw); err != nil {
		return errors.StoreError("write_record", err)
	}
	s.touchTTL(ctx, key)
	return nil
}

// touchTTL refreshes the hash expiry; best-effort, a failed refresh
// just expires the session at the old deadline.
func (s *SessionStore) touchTTL(ctx context.Context, key string) {
	if s.ttl > 0 {
		_ = s.client.Expire(ctx, key, s.ttl)
	}
}

func sessionKey(sessionID string) string {
	return sessionKeyPrefix + sessionID
}
