// Package boltstore is an embedded, single-file implementation of docket.Store for
// running a session without a Redis server.
package boltstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dyluth/docket/pkg/docket"
	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

const (
	itemBucket       = "items"
	groupBucket      = "groups"
	sessionBucket    = "sessions"
	transcriptBucket = "transcripts"
	decisionBucket   = "decisions"
)

// Store provides a BoltDB-backed docket store.
type Store struct {
	db *bbolt.DB
}

var _ docket.Store = (*Store)(nil)

// Open opens (creating if needed) a BoltDB-backed store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	db, err := bbolt.Open(filepath.Clean(path), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}

	store := &Store{db: db}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying BoltDB database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping reports whether the database is open and readable.
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(itemBucket)) == nil {
			return fmt.Errorf("item bucket is missing")
		}
		return nil
	})
}

// SaveItem persists a review item.
func (s *Store) SaveItem(ctx context.Context, item *docket.ReviewItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := item.Validate(); err != nil {
		return fmt.Errorf("invalid item: %w", err)
	}
	item.UpdatedAtMs = time.Now().UnixMilli()

	return s.db.Update(func(tx *bbolt.Tx) error {
		return putJSON(tx.Bucket([]byte(itemBucket)), intKey(item.ID), item)
	})
}

// GetItem fetches an item by id.
func (s *Store) GetItem(ctx context.Context, id int) (*docket.ReviewItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var item docket.ReviewItem
	err := s.db.View(func(tx *bbolt.Tx) error {
		payload := tx.Bucket([]byte(itemBucket)).Get(intKey(id))
		if payload == nil {
			return fmt.Errorf("item #%d: %w", id, docket.ErrNotFound)
		}
		if err := json.Unmarshal(payload, &item); err != nil {
			return fmt.Errorf("unmarshal item %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// FilterItems scans items in key (id) order.
func (s *Store) FilterItems(ctx context.Context, filter docket.ItemFilter) ([]*docket.ReviewItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []*docket.ReviewItem
	err := s.db.View(func(tx *bbolt.Tx) error {
		cursor := tx.Bucket([]byte(itemBucket)).Cursor()
		for k, v := cursor.Seek(intKey(filter.AfterID + 1)); k != nil; k, v = cursor.Next() {
			var item docket.ReviewItem
			if err := json.Unmarshal(v, &item); err != nil {
				return fmt.Errorf("unmarshal item: %w", err)
			}
			if !filter.Match(&item) {
				continue
			}
			out = append(out, &item)
			if filter.Limit > 0 && len(out) >= filter.Limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SaveGroup persists a group.
func (s *Store) SaveGroup(ctx context.Context, group *docket.Group) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := group.Validate(); err != nil {
		return fmt.Errorf("invalid group: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return putJSON(tx.Bucket([]byte(groupBucket)), []byte(group.Code), group)
	})
}

// GetGroup fetches a group by code.
func (s *Store) GetGroup(ctx context.Context, code string) (*docket.Group, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var group *docket.Group
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		group, err = readGroup(tx, code)
		return err
	})
	if err != nil {
		return nil, err
	}
	return group, nil
}

// FilterGroups returns matching groups ordered by position, then code.
func (s *Store) FilterGroups(ctx context.Context, filter docket.GroupFilter) ([]*docket.Group, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []*docket.Group
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(groupBucket)).ForEach(func(_, v []byte) error {
			var group docket.Group
			if err := json.Unmarshal(v, &group); err != nil {
				return fmt.Errorf("unmarshal group: %w", err)
			}
			if filter.Match(&group) {
				out = append(out, &group)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].Code < out[j].Code
	})
	return out, nil
}

// MoveItem reassigns an item to another group inside one bolt write transaction.
func (s *Store) MoveItem(ctx context.Context, itemID int, toCode string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		items := tx.Bucket([]byte(itemBucket))
		payload := items.Get(intKey(itemID))
		if payload == nil {
			return fmt.Errorf("item #%d: %w", itemID, docket.ErrNotFound)
		}
		var item docket.ReviewItem
		if err := json.Unmarshal(payload, &item); err != nil {
			return fmt.Errorf("unmarshal item %d: %w", itemID, err)
		}
		if item.GroupCode == toCode {
			return nil
		}

		groups := tx.Bucket([]byte(groupBucket))
		if toCode != "" {
			to, err := readGroup(tx, toCode)
			if err != nil {
				return err
			}
			if !to.Has(itemID) {
				to.ItemIDs = append(to.ItemIDs, itemID)
				to.Decided = false
			}
			if err := putJSON(groups, []byte(to.Code), to); err != nil {
				return err
			}
		}
		if item.GroupCode != "" {
			from, err := readGroup(tx, item.GroupCode)
			if err != nil && !docket.IsNotFound(err) {
				return err
			}
			if from != nil {
				kept := make([]int, 0, len(from.ItemIDs))
				for _, id := range from.ItemIDs {
					if id != itemID {
						kept = append(kept, id)
					}
				}
				from.ItemIDs = kept
				delete(from.Decisions, itemID)
				from.Decided = len(kept) > 0 && len(from.Undecided()) == 0
				if err := putJSON(groups, []byte(from.Code), from); err != nil {
					return err
				}
			}
		}

		item.GroupCode = toCode
		return putJSON(items, intKey(itemID), &item)
	})
}

// CreateSession allocates the next session number from the bucket sequence.
func (s *Store) CreateSession(ctx context.Context, kind docket.SessionKind) (*docket.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var session *docket.Session
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(sessionBucket))
		seq, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("allocate session number: %w", err)
		}
		session = &docket.Session{
			ID:          uuid.New().String(),
			Number:      int(seq),
			Kind:        kind,
			StartedAtMs: time.Now().UnixMilli(),
			Decided:     []int{},
		}
		return putJSON(bucket, intKey(session.Number), session)
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// GetSession fetches a session by number.
func (s *Store) GetSession(ctx context.Context, number int) (*docket.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var session docket.Session
	err := s.db.View(func(tx *bbolt.Tx) error {
		payload := tx.Bucket([]byte(sessionBucket)).Get(intKey(number))
		if payload == nil {
			return fmt.Errorf("session %d: %w", number, docket.ErrNotFound)
		}
		if err := json.Unmarshal(payload, &session); err != nil {
			return fmt.Errorf("unmarshal session %d: %w", number, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// SaveSession persists a session.
func (s *Store) SaveSession(ctx context.Context, session *docket.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if session.Number <= 0 {
		return fmt.Errorf("invalid session: number must be > 0, got %d", session.Number)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return putJSON(tx.Bucket([]byte(sessionBucket)), intKey(session.Number), session)
	})
}

// ListSessions returns every session ordered by number.
func (s *Store) ListSessions(ctx context.Context) ([]*docket.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []*docket.Session
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(sessionBucket)).ForEach(func(_, v []byte) error {
			var session docket.Session
			if err := json.Unmarshal(v, &session); err != nil {
				return fmt.Errorf("unmarshal session: %w", err)
			}
			out = append(out, &session)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AppendTranscript appends entries to the nested bucket for ref.
func (s *Store) AppendTranscript(ctx context.Context, ref string, entries ...docket.TranscriptEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.Bucket([]byte(transcriptBucket)).CreateBucketIfNotExists([]byte(ref))
		if err != nil {
			return fmt.Errorf("create transcript bucket %s: %w", ref, err)
		}
		for _, entry := range entries {
			seq, err := bucket.NextSequence()
			if err != nil {
				return err
			}
			if err := putJSON(bucket, intKey(int(seq)), entry); err != nil {
				return err
			}
		}
		return nil
	})
}

// Transcript reads a transcript in append order. A missing transcript is empty.
func (s *Store) Transcript(ctx context.Context, ref string) ([]docket.TranscriptEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries := []docket.TranscriptEntry{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(transcriptBucket)).Bucket([]byte(ref))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(_, v []byte) error {
			var entry docket.TranscriptEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("unmarshal transcript entry: %w", err)
			}
			entries = append(entries, entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// PublishDecision appends the event to the decision log. There is no live feed for
// the embedded store; `docket watch` needs Redis.
func (s *Store) PublishDecision(ctx context.Context, event *docket.DecisionEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.AtMs == 0 {
		event.AtMs = time.Now().UnixMilli()
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(decisionBucket))
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		return putJSON(bucket, intKey(int(seq)), event)
	})
}

// Decisions returns the decision log in publish order.
func (s *Store) Decisions(ctx context.Context) ([]*docket.DecisionEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []*docket.DecisionEvent
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(decisionBucket)).ForEach(func(_, v []byte) error {
			var event docket.DecisionEvent
			if err := json.Unmarshal(v, &event); err != nil {
				return fmt.Errorf("unmarshal decision event: %w", err)
			}
			out = append(out, &event)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{itemBucket, groupBucket, sessionBucket, transcriptBucket, decisionBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

func readGroup(tx *bbolt.Tx, code string) (*docket.Group, error) {
	payload := tx.Bucket([]byte(groupBucket)).Get([]byte(code))
	if payload == nil {
		return nil, fmt.Errorf("group %s: %w", code, docket.ErrNotFound)
	}
	var group docket.Group
	if err := json.Unmarshal(payload, &group); err != nil {
		return nil, fmt.Errorf("unmarshal group %s: %w", code, err)
	}
	return &group, nil
}

func putJSON(bucket *bbolt.Bucket, key []byte, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	return bucket.Put(key, payload)
}

// intKey encodes ids big-endian so cursor order equals numeric order.
func intKey(id int) []byte {
	key := make([]byte, 8)
	if id < 0 {
		id = 0
	}
	binary.BigEndian.PutUint64(key, uint64(id))
	return key
}
