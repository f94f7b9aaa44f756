package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/peykchat/peyk/internal/models"
)

// RedisStore is an ephemeral EventStore backend for deployments that keep
// the log in a shared Redis rather than on local disk.
//
// Unlike the SQL backends it applies a fetch cycle event by event:
// marking the processed set last and letting SETNX message keys absorb
// replays keeps redelivery safe without a transaction.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() {
	s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

const (
	processedKey = "peyk:processed"
	presenceKey  = "peyk:presence"
)

// messageKey returns the key holding one message's JSON body.
func messageKey(id string) string {
	return fmt.Sprintf("peyk:msg:%s", id)
}

// accountKey returns the key holding one account's JSON body.
func accountKey(username string) string {
	return fmt.Sprintf("peyk:account:%s", username)
}

// conversationKey returns the sorted-set key indexing one conversation.
// Direct conversations use the participant pair in lexical order so both
// sides resolve to the same key.
func conversationKey(a, b string) string {
	if b == models.GlobalRoom || a == models.GlobalRoom {
		return "peyk:conv:global"
	}
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("peyk:conv:%s|%s", a, b)
}

// messageScore orders conversation indexes by message timestamp.
// Unparseable timestamps sort first rather than failing the write.
func messageScore(msg *models.Message) float64 {
	t, err := time.Parse(models.TimestampFormat, msg.Timestamp)
	if err != nil {
		return 0
	}
	return float64(t.Unix())
}

// PutMessage inserts a message iff no row with the same id exists.
func (s *RedisStore) PutMessage(ctx context.Context, msg *models.Message) (bool, error) {
	defer observe("put_message")()

	body, err := json.Marshal(msg)
	if err != nil {
		return false, err
	}

	inserted, err := s.client.SetNX(ctx, messageKey(msg.ID), body, 0).Result()
	if err != nil {
		return false, err
	}

	// Index even when the body already existed: ZADD is idempotent, and a
	// retry after a failure between the two writes repairs the index.
	convKey := conversationKey(msg.Sender, msg.Recipient)
	err = s.client.ZAdd(ctx, convKey, redis.Z{
		Score:  messageScore(msg),
		Member: msg.ID,
	}).Err()
	if err != nil {
		return false, err
	}
	return inserted, nil
}

// QueryConversation returns the conversation's messages ordered by
// timestamp ascending.
func (s *RedisStore) QueryConversation(ctx context.Context, conversationID, self string) ([]models.Message, error) {
	defer observe("query_conversation")()

	ids, err := s.client.ZRange(ctx, conversationKey(self, conversationID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = messageKey(id)
	}

	bodies, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	var msgs []models.Message
	for _, body := range bodies {
		str, ok := body.(string)
		if !ok {
			continue // index entry without a body; skip
		}
		var msg models.Message
		if err := json.Unmarshal([]byte(str), &msg); err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// MarkProcessed records an event id as applied. Idempotent.
func (s *RedisStore) MarkProcessed(ctx context.Context, eventID string) error {
	defer observe("mark_processed")()

	return s.client.ZAddNX(ctx, processedKey, redis.Z{
		Score:  float64(time.Now().Unix()),
		Member: eventID,
	}).Err()
}

// IsProcessed reports whether an event id has been applied.
func (s *RedisStore) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	defer observe("is_processed")()

	_, err := s.client.ZScore(ctx, processedKey, eventID).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// PruneProcessed removes processed-event markers seen before the cutoff.
func (s *RedisStore) PruneProcessed(ctx context.Context, olderThan time.Time) (int64, error) {
	defer observe("prune_processed")()

	max := strconv.FormatInt(olderThan.Unix(), 10)
	return s.client.ZRemRangeByScore(ctx, processedKey, "-inf", "("+max).Result()
}

// ApplyEvents applies one fetch cycle event by event. The processed
// marker is written last, so a failure mid-event leaves it unmarked and
// the feed's redelivery retries the apply; the SETNX message key absorbs
// the replay if the message itself already landed.
func (s *RedisStore) ApplyEvents(ctx context.Context, events []models.Event, now time.Time) (ApplyResult, error) {
	defer observe("apply_events")()

	var result ApplyResult

	for i := range events {
		ev := &events[i]

		seen, err := s.IsProcessed(ctx, ev.ID)
		if err != nil {
			return ApplyResult{}, err
		}
		if seen {
			result.Duplicates++
			continue
		}

		if msg, ok := ev.Message(); ok {
			inserted, err := s.PutMessage(ctx, msg)
			if err != nil {
				return ApplyResult{}, err
			}
			if inserted {
				result.NewMessages++
			}

			if err := s.TouchPresence(ctx, ev.Username, now); err != nil {
				return ApplyResult{}, err
			}
		} else {
			result.Ignored++
		}

		err = s.client.ZAddNX(ctx, processedKey, redis.Z{
			Score:  float64(now.Unix()),
			Member: ev.ID,
		}).Err()
		if err != nil {
			return ApplyResult{}, err
		}
	}

	return result, nil
}

// TouchPresence upserts a user's last-seen timestamp.
func (s *RedisStore) TouchPresence(ctx context.Context, username string, lastSeen time.Time) error {
	defer observe("touch_presence")()

	return s.client.ZAdd(ctx, presenceKey, redis.Z{
		Score:  unixSeconds(lastSeen),
		Member: username,
	}).Err()
}

// ListPresence returns known usernames, most recently seen first.
func (s *RedisStore) ListPresence(ctx context.Context, exclude string) ([]string, error) {
	defer observe("list_presence")()

	users, err := s.client.ZRevRange(ctx, presenceKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}

	out := users[:0]
	for _, u := range users {
		if u != exclude {
			out = append(out, u)
		}
	}
	return out, nil
}

// redisAccount is the stored account shape; models.Account hides the hash
// from JSON, so the backend keeps its own marshal form.
type redisAccount struct {
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
	Admin        bool   `json:"admin"`
}

// GetAccount retrieves an account by username. Returns nil when absent.
func (s *RedisStore) GetAccount(ctx context.Context, username string) (*models.Account, error) {
	defer observe("get_account")()

	body, err := s.client.Get(ctx, accountKey(username)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var stored redisAccount
	if err := json.Unmarshal([]byte(body), &stored); err != nil {
		return nil, err
	}
	return &models.Account{
		Username:     stored.Username,
		PasswordHash: stored.PasswordHash,
		Admin:        stored.Admin,
	}, nil
}

// CreateAccount inserts an account if the username is free.
func (s *RedisStore) CreateAccount(ctx context.Context, username, passwordHash string, admin bool) error {
	defer observe("create_account")()

	body, err := json.Marshal(redisAccount{
		Username:     username,
		PasswordHash: passwordHash,
		Admin:        admin,
	})
	if err != nil {
		return err
	}
	return s.client.SetNX(ctx, accountKey(username), body, 0).Err()
}
