package docket

import (
	"context"
	"errors"
	"fmt"
)

// Store is the persistence contract shared by the Redis client and the embedded bolt store.
// Every method that reads a single record returns an error wrapping ErrNotFound when the
// record does not exist.
type Store interface {
	Ping(ctx context.Context) error
	Close() error

	GetItem(ctx context.Context, id int) (*ReviewItem, error)
	SaveItem(ctx context.Context, item *ReviewItem) error
	// FilterItems returns matching items ordered by id.
	FilterItems(ctx context.Context, filter ItemFilter) ([]*ReviewItem, error)

	GetGroup(ctx context.Context, code string) (*Group, error)
	SaveGroup(ctx context.Context, group *Group) error
	// FilterGroups returns matching groups ordered by position.
	FilterGroups(ctx context.Context, filter GroupFilter) ([]*Group, error)
	// MoveItem reassigns an item to the group toCode (or to no group when toCode is
	// empty). The item leaves its previous group in the same transaction.
	MoveItem(ctx context.Context, itemID int, toCode string) error

	CreateSession(ctx context.Context, kind SessionKind) (*Session, error)
	GetSession(ctx context.Context, number int) (*Session, error)
	SaveSession(ctx context.Context, session *Session) error
	ListSessions(ctx context.Context) ([]*Session, error)

	AppendTranscript(ctx context.Context, ref string, entries ...TranscriptEntry) error
	Transcript(ctx context.Context, ref string) ([]TranscriptEntry, error)

	PublishDecision(ctx context.Context, event *DecisionEvent) error
}

// IsNotFound returns true if err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// NextItem returns the lowest-id item matching filter.
func NextItem(ctx context.Context, store Store, filter ItemFilter) (*ReviewItem, error) {
	filter.Limit = 1
	items, err := store.FilterItems(ctx, filter)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("no item after #%d: %w", filter.AfterID, ErrNotFound)
	}
	return items[0], nil
}

// NextGroup returns the first group (by position) matching filter.
func NextGroup(ctx context.Context, store Store, filter GroupFilter) (*Group, error) {
	groups, err := store.FilterGroups(ctx, filter)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("no group after position %d: %w", filter.AfterPosition, ErrNotFound)
	}
	return groups[0], nil
}

// LoadGroupItems fetches every member of a group in group order.
func LoadGroupItems(ctx context.Context, store Store, group *Group) ([]*ReviewItem, error) {
	items := make([]*ReviewItem, 0, len(group.ItemIDs))
	for _, id := range group.ItemIDs {
		item, err := store.GetItem(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("group %s: %w", group.Code, err)
		}
		items = append(items, item)
	}
	return items, nil
}
