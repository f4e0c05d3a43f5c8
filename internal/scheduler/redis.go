package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/RezaEskandarii/jobsaga/internal/saga"
	"github.com/redis/go-redis/v9"
)

// claimDue re-scores due tokens to the end of their lease and returns them
// with their payloads, so two instances polling at once never hand out the
// same entry and an entry claimed by a crashed instance comes due again.
var claimDue = redis.NewScript(`
local tokens = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
local out = {}
for _, token in ipairs(tokens) do
  local payload = redis.call('HGET', KEYS[2], token)
  if payload then
    local score = redis.call('ZSCORE', KEYS[1], token)
    redis.call('ZADD', KEYS[1], 'XX', ARGV[3], token)
    table.insert(out, token)
    table.insert(out, score)
    table.insert(out, payload)
  else
    redis.call('ZREM', KEYS[1], token)
  end
end
return out
`)

// ackClaimed deletes a token only while it still carries the lease score of
// the claim being acked.
var ackClaimed = redis.NewScript(`
local score = redis.call('ZSCORE', KEYS[1], ARGV[1])
if score and tonumber(score) == tonumber(ARGV[2]) then
  redis.call('ZREM', KEYS[1], ARGV[1])
  redis.call('HDEL', KEYS[2], ARGV[1])
  return 1
end
return 0
`)

// RedisScheduler keeps scheduled envelopes in a sorted set scored by
// delivery time (unix milliseconds) plus a hash of encoded envelopes.
type RedisScheduler struct {
	client      *redis.Client
	scheduleKey string
	payloadKey  string
}

func NewRedisScheduler(client *redis.Client, prefix string) *RedisScheduler {
	return &RedisScheduler{
		client:      client,
		scheduleKey: prefix + ":scheduled",
		payloadKey:  prefix + ":scheduled:payload",
	}
}

func (s *RedisScheduler) ScheduleAt(ctx context.Context, env saga.Envelope, at time.Time) (string, error) {
	data, err := env.Marshal()
	if err != nil {
		return "", err
	}
	token := env.MessageID

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.payloadKey, token, data)
		pipe.ZAdd(ctx, s.scheduleKey, redis.Z{Score: float64(at.UnixMilli()), Member: token})
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("schedule %s: %w", token, err)
	}
	return token, nil
}

func (s *RedisScheduler) Cancel(ctx context.Context, token string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, s.scheduleKey, token)
		pipe.HDel(ctx, s.payloadKey, token)
		return nil
	})
	if err != nil {
		return fmt.Errorf("cancel %s: %w", token, err)
	}
	return nil
}

func (s *RedisScheduler) Claim(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]Entry, error) {
	if limit < 1 {
		limit = 100
	}
	until := time.UnixMilli(now.Add(lease).UnixMilli())
	raw, err := claimDue.Run(ctx, s.client, []string{s.scheduleKey, s.payloadKey}, now.UnixMilli(), limit, until.UnixMilli()).StringSlice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim due entries: %w", err)
	}
	return decodeClaimed(raw, until)
}

func (s *RedisScheduler) Ack(ctx context.Context, entry Entry) error {
	err := ackClaimed.Run(ctx, s.client, []string{s.scheduleKey, s.payloadKey}, entry.Token, entry.ClaimedUntil.UnixMilli()).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("ack %s: %w", entry.Token, err)
	}
	return nil
}

func decodeClaimed(raw []string, until time.Time) ([]Entry, error) {
	if len(raw)%3 != 0 {
		return nil, fmt.Errorf("claim due entries: malformed reply of %d items", len(raw))
	}
	entries := make([]Entry, 0, len(raw)/3)
	for i := 0; i < len(raw); i += 3 {
		millis, err := strconv.ParseFloat(raw[i+1], 64)
		if err != nil {
			return nil, fmt.Errorf("parse score of %s: %w", raw[i], err)
		}
		env, err := saga.UnmarshalEnvelope([]byte(raw[i+2]))
		if err != nil {
			return nil, fmt.Errorf("decode scheduled %s: %w", raw[i], err)
		}
		entries = append(entries, Entry{
			Token:        raw[i],
			Envelope:     env,
			DeliverAt:    time.UnixMilli(int64(millis)),
			ClaimedUntil: until,
		})
	}
	return entries, nil
}
