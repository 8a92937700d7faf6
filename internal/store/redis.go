package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// DefaultRecordTTL bounds how long build records stay in Redis.
const DefaultRecordTTL = 7 * 24 * time.Hour

// RedisBuilds keeps build records as hashes under build:{id} and indexes
// them per session in a sorted set scored by start time.
type RedisBuilds struct {
	client *redis.Client
	keyNS  string
	ttl    time.Duration
}

func NewRedisBuilds(redisURL string) (*RedisBuilds, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	c := redis.NewClient(opt)
	if err := c.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return &RedisBuilds{client: c, keyNS: "build", ttl: DefaultRecordTTL}, nil
}

func (s *RedisBuilds) key(id string) string { return fmt.Sprintf("%s:%s", s.keyNS, id) }

func (s *RedisBuilds) sessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s:builds", sessionID)
}

func (s *RedisBuilds) Save(ctx context.Context, b Build) error {
	score := float64(time.Now().UnixNano())
	if b.Start != nil {
		score = float64(b.Start.UnixNano())
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.key(b.ID), toHash(b))
	pipe.Expire(ctx, s.key(b.ID), s.ttl)
	if b.SessionID != "" {
		pipe.ZAdd(ctx, s.sessionKey(b.SessionID), redis.Z{Score: score, Member: b.ID})
		pipe.Expire(ctx, s.sessionKey(b.SessionID), s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisBuilds) Get(ctx context.Context, id string) (Build, error) {
	res, err := s.client.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return Build{}, err
	}
	if len(res) == 0 {
		return Build{}, ErrNotFound
	}
	return fromHash(id, res), nil
}

func (s *RedisBuilds) ListBySession(ctx context.Context, sessionID string) ([]Build, error) {
	ids, err := s.client.ZRevRange(ctx, s.sessionKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Build, 0, len(ids))
	for _, id := range ids {
		b, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return out, err
		}
		out = append(out, b)
	}
	return out, nil
}

func (s *RedisBuilds) Close() error { return s.client.Close() }

// Client returns the underlying Redis client.
func (s *RedisBuilds) Client() *redis.Client { return s.client }

func toHash(b Build) map[string]interface{} {
	m := map[string]interface{}{
		"session_id":  b.SessionID,
		"filename":    b.Filename,
		"status":      b.Status,
		"message":     b.Message,
		"include_toc": strconv.FormatBool(b.IncludeTOC),
		"page_count":  b.PageCount,
		"size":        b.Size,
		"location":    b.Location,
	}
	if b.Start != nil {
		m["start"] = b.Start.Format(time.RFC3339Nano)
	}
	if b.End != nil {
		m["end"] = b.End.Format(time.RFC3339Nano)
	}
	if len(b.Attachments) > 0 {
		raw, _ := json.Marshal(b.Attachments)
		m["attachments"] = string(raw)
	}
	return m
}

func fromHash(id string, res map[string]string) Build {
	b := Build{
		ID:        id,
		SessionID: res["session_id"],
		Filename:  res["filename"],
		Status:    res["status"],
		Message:   res["message"],
		Location:  res["location"],
	}
	b.IncludeTOC, _ = strconv.ParseBool(res["include_toc"])
	b.PageCount, _ = strconv.Atoi(res["page_count"])
	b.Size, _ = strconv.Atoi(res["size"])
	if v := res["start"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			b.Start = &t
		}
	}
	if v := res["end"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			b.End = &t
		}
	}
	if v := res["attachments"]; v != "" {
		_ = json.Unmarshal([]byte(v), &b.Attachments)
	}
	return b
}
