package docket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const maxMoveRetries = 5

// Client provides namespace-scoped Redis operations for the docket.
// All keys and channels are automatically prefixed with the namespace.
// The client is thread-safe and can be used concurrently from multiple goroutines.
type Client struct {
	rdb       *redis.Client
	namespace string
}

var _ Store = (*Client)(nil)

// hashReader is satisfied by both *redis.Client and *redis.Tx.
type hashReader interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

// NewClient creates a docket client for the given namespace.
// Returns an error if namespace is empty.
func NewClient(redisOpts *redis.Options, namespace string) (*Client, error) {
	if namespace == "" {
		return nil, fmt.Errorf("namespace cannot be empty")
	}

	return &Client{
		rdb:       redis.NewClient(redisOpts),
		namespace: namespace,
	}, nil
}

// NewClientFromURL parses a redis:// URL and creates a client for it.
func NewClientFromURL(url, namespace string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return NewClient(opts, namespace)
}

// Close closes the Redis connection. Implements io.Closer.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity. Used by the health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// SaveItem writes an item hash and indexes it by id.
// Validates the item before writing; the write is idempotent.
func (c *Client) SaveItem(ctx context.Context, item *ReviewItem) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("invalid item: %w", err)
	}
	item.UpdatedAtMs = time.Now().UnixMilli()

	hash, err := ItemToHash(item)
	if err != nil {
		return fmt.Errorf("failed to serialize item: %w", err)
	}

	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, ItemKey(c.namespace, item.ID), hash)
		pipe.ZAdd(ctx, ItemIndexKey(c.namespace), redis.Z{Score: float64(item.ID), Member: strconv.Itoa(item.ID)})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write item %d to Redis: %w", item.ID, err)
	}
	return nil
}

// GetItem retrieves an item by id.
func (c *Client) GetItem(ctx context.Context, id int) (*ReviewItem, error) {
	return c.readItem(ctx, c.rdb, id)
}

func (c *Client) readItem(ctx context.Context, r hashReader, id int) (*ReviewItem, error) {
	hashData, err := r.HGetAll(ctx, ItemKey(c.namespace, id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read item %d from Redis: %w", id, err)
	}

	// HGetAll returns an empty map for missing keys
	if len(hashData) == 0 {
		return nil, fmt.Errorf("item #%d: %w", id, ErrNotFound)
	}

	item, err := HashToItem(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize item %d: %w", id, err)
	}
	return item, nil
}

// FilterItems walks the id index above filter.AfterID and returns matching items in id order.
func (c *Client) FilterItems(ctx context.Context, filter ItemFilter) ([]*ReviewItem, error) {
	members, err := c.rdb.ZRangeByScore(ctx, ItemIndexKey(c.namespace), &redis.ZRangeBy{
		Min: "(" + strconv.Itoa(filter.AfterID),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read item index: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	pipe := c.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(members))
	for i, member := range members {
		id, err := strconv.Atoi(member)
		if err != nil {
			return nil, fmt.Errorf("corrupt item index member %q: %w", member, err)
		}
		cmds[i] = pipe.HGetAll(ctx, ItemKey(c.namespace, id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to read items: %w", err)
	}

	var out []*ReviewItem
	for _, cmd := range cmds {
		hashData := cmd.Val()
		if len(hashData) == 0 {
			continue
		}
		item, err := HashToItem(hashData)
		if err != nil {
			return nil, fmt.Errorf("failed to deserialize item: %w", err)
		}
		if !filter.Match(item) {
			continue
		}
		out = append(out, item)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// SaveGroup writes a group hash and indexes it by position.
func (c *Client) SaveGroup(ctx context.Context, group *Group) error {
	if err := group.Validate(); err != nil {
		return fmt.Errorf("invalid group: %w", err)
	}

	hash, err := GroupToHash(group)
	if err != nil {
		return fmt.Errorf("failed to serialize group: %w", err)
	}

	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, GroupKey(c.namespace, group.Code), hash)
		pipe.ZAdd(ctx, GroupIndexKey(c.namespace), redis.Z{Score: float64(group.Position), Member: group.Code})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write group %s to Redis: %w", group.Code, err)
	}
	return nil
}

// GetGroup retrieves a group by code.
func (c *Client) GetGroup(ctx context.Context, code string) (*Group, error) {
	return c.readGroup(ctx, c.rdb, code)
}

func (c *Client) readGroup(ctx context.Context, r hashReader, code string) (*Group, error) {
	hashData, err := r.HGetAll(ctx, GroupKey(c.namespace, code)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read group %s from Redis: %w", code, err)
	}
	if len(hashData) == 0 {
		return nil, fmt.Errorf("group %s: %w", code, ErrNotFound)
	}

	group, err := HashToGroup(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize group %s: %w", code, err)
	}
	return group, nil
}

// FilterGroups returns matching groups in position order.
func (c *Client) FilterGroups(ctx context.Context, filter GroupFilter) ([]*Group, error) {
	codes, err := c.rdb.ZRange(ctx, GroupIndexKey(c.namespace), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read group index: %w", err)
	}

	var out []*Group
	for _, code := range codes {
		group, err := c.GetGroup(ctx, code)
		if IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if filter.Match(group) {
			out = append(out, group)
		}
	}
	return out, nil
}

// MoveItem reassigns an item between groups under WATCH so that concurrent moves of the
// same item cannot leave it listed in two groups.
func (c *Client) MoveItem(ctx context.Context, itemID int, toCode string) error {
	itemKey := ItemKey(c.namespace, itemID)

	move := func(tx *redis.Tx) error {
		item, err := c.readItem(ctx, tx, itemID)
		if err != nil {
			return err
		}
		if item.GroupCode == toCode {
			return nil
		}

		var from, to *Group
		if item.GroupCode != "" {
			if err := tx.Watch(ctx, GroupKey(c.namespace, item.GroupCode)).Err(); err != nil {
				return err
			}
			from, err = c.readGroup(ctx, tx, item.GroupCode)
			if err != nil && !IsNotFound(err) {
				return err
			}
		}
		if toCode != "" {
			to, err = c.readGroup(ctx, tx, toCode)
			if err != nil {
				return err
			}
		}

		if from != nil {
			from.ItemIDs = removeID(from.ItemIDs, itemID)
			delete(from.Decisions, itemID)
			from.Decided = len(from.ItemIDs) > 0 && len(from.Undecided()) == 0
		}
		if to != nil && !to.Has(itemID) {
			to.ItemIDs = append(to.ItemIDs, itemID)
			to.Decided = false
		}
		item.GroupCode = toCode

		itemHash, err := ItemToHash(item)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, itemKey, itemHash)
			for _, g := range []*Group{from, to} {
				if g == nil {
					continue
				}
				groupHash, err := GroupToHash(g)
				if err != nil {
					return err
				}
				pipe.HSet(ctx, GroupKey(c.namespace, g.Code), groupHash)
			}
			return nil
		})
		return err
	}

	var watchKeys []string
	watchKeys = append(watchKeys, itemKey)
	if toCode != "" {
		watchKeys = append(watchKeys, GroupKey(c.namespace, toCode))
	}

	for attempt := 0; attempt < maxMoveRetries; attempt++ {
		err := c.rdb.Watch(ctx, move, watchKeys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to move item %d to group %q: %w", itemID, toCode, err)
		}
		return nil
	}
	return fmt.Errorf("failed to move item %d to group %q: gave up after %d conflicting attempts",
		itemID, toCode, maxMoveRetries)
}

func removeID(ids []int, id int) []int {
	out := make([]int, 0, len(ids))
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	return out
}

// CreateSession allocates the next session number and writes an open session.
func (c *Client) CreateSession(ctx context.Context, kind SessionKind) (*Session, error) {
	number, err := c.rdb.Incr(ctx, SessionSeqKey(c.namespace)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate session number: %w", err)
	}

	session := &Session{
		ID:          uuid.New().String(),
		Number:      int(number),
		Kind:        kind,
		StartedAtMs: time.Now().UnixMilli(),
		Decided:     []int{},
	}
	if err := c.SaveSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// GetSession retrieves a session by number.
func (c *Client) GetSession(ctx context.Context, number int) (*Session, error) {
	hashData, err := c.rdb.HGetAll(ctx, SessionKey(c.namespace, number)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read session %d from Redis: %w", number, err)
	}
	if len(hashData) == 0 {
		return nil, fmt.Errorf("session %d: %w", number, ErrNotFound)
	}

	session, err := HashToSession(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize session %d: %w", number, err)
	}
	return session, nil
}

// SaveSession writes a session hash and indexes it by number.
func (c *Client) SaveSession(ctx context.Context, session *Session) error {
	if session.Number <= 0 {
		return fmt.Errorf("invalid session: number must be > 0, got %d", session.Number)
	}

	hash, err := SessionToHash(session)
	if err != nil {
		return fmt.Errorf("failed to serialize session: %w", err)
	}

	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, SessionKey(c.namespace, session.Number), hash)
		pipe.ZAdd(ctx, SessionIndexKey(c.namespace), redis.Z{
			Score:  float64(session.Number),
			Member: strconv.Itoa(session.Number),
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write session %d to Redis: %w", session.Number, err)
	}
	return nil
}

// ListSessions returns every session ordered by number.
func (c *Client) ListSessions(ctx context.Context) ([]*Session, error) {
	members, err := c.rdb.ZRange(ctx, SessionIndexKey(c.namespace), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read session index: %w", err)
	}

	sessions := make([]*Session, 0, len(members))
	for _, member := range members {
		number, err := strconv.Atoi(member)
		if err != nil {
			return nil, fmt.Errorf("corrupt session index member %q: %w", member, err)
		}
		session, err := c.GetSession(ctx, number)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

// AppendTranscript pushes JSON-encoded entries onto a transcript list.
func (c *Client) AppendTranscript(ctx context.Context, ref string, entries ...TranscriptEntry) error {
	if len(entries) == 0 {
		return nil
	}

	values := make([]interface{}, len(entries))
	for i, entry := range entries {
		raw, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal transcript entry: %w", err)
		}
		values[i] = string(raw)
	}

	if err := c.rdb.RPush(ctx, TranscriptKey(c.namespace, ref), values...).Err(); err != nil {
		return fmt.Errorf("failed to append transcript %s: %w", ref, err)
	}
	return nil
}

// Transcript reads a whole transcript in append order.
func (c *Client) Transcript(ctx context.Context, ref string) ([]TranscriptEntry, error) {
	raw, err := c.rdb.LRange(ctx, TranscriptKey(c.namespace, ref), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript %s: %w", ref, err)
	}

	entries := make([]TranscriptEntry, 0, len(raw))
	for _, line := range raw {
		var entry TranscriptEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal transcript entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// PublishDecision publishes a decision event to docket:{ns}:decision_events.
// An empty ID is filled with a fresh UUID.
func (c *Client) PublishDecision(ctx context.Context, event *DecisionEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.AtMs == 0 {
		event.AtMs = time.Now().UnixMilli()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal decision event: %w", err)
	}
	if err := c.rdb.Publish(ctx, DecisionEventsChannel(c.namespace), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish decision event: %w", err)
	}
	return nil
}
