package docket

import "fmt"

// Redis key pattern helpers
//
// All Redis keys and Pub/Sub channels are namespaced so that several conferences (or
// test runs) can share one Redis server.
//
// Key pattern: docket:{namespace}:{entity}:{id}
// Channel pattern: docket:{namespace}:{event_type}_events

// ItemKey returns the Redis key for a review item hash.
// Pattern: docket:{ns}:item:{id}
func ItemKey(ns string, id int) string {
	return fmt.Sprintf("docket:%s:item:%d", ns, id)
}

// ItemIndexKey returns the ZSET of item ids, scored by id.
// Pattern: docket:{ns}:items
func ItemIndexKey(ns string) string {
	return fmt.Sprintf("docket:%s:items", ns)
}

// GroupKey returns the Redis key for a group hash.
// Pattern: docket:{ns}:group:{code}
func GroupKey(ns, code string) string {
	return fmt.Sprintf("docket:%s:group:%s", ns, code)
}

// GroupIndexKey returns the ZSET of group codes, scored by position.
// Pattern: docket:{ns}:groups
func GroupIndexKey(ns string) string {
	return fmt.Sprintf("docket:%s:groups", ns)
}

// SessionKey returns the Redis key for a session hash.
// Pattern: docket:{ns}:session:{number}
func SessionKey(ns string, number int) string {
	return fmt.Sprintf("docket:%s:session:%d", ns, number)
}

// SessionSeqKey returns the counter used to number sessions.
// Pattern: docket:{ns}:session_seq
func SessionSeqKey(ns string) string {
	return fmt.Sprintf("docket:%s:session_seq", ns)
}

// SessionIndexKey returns the ZSET of session numbers.
// Pattern: docket:{ns}:sessions
func SessionIndexKey(ns string) string {
	return fmt.Sprintf("docket:%s:sessions", ns)
}

// TranscriptKey returns the LIST holding a transcript.
// ref comes from ItemTranscriptRef or SessionTranscriptRef.
// Pattern: docket:{ns}:transcript:{ref}
func TranscriptKey(ns, ref string) string {
	return fmt.Sprintf("docket:%s:transcript:%s", ns, ref)
}

// DecisionEventsChannel returns the Pub/Sub channel for decision events.
// Pattern: docket:{ns}:decision_events
func DecisionEventsChannel(ns string) string {
	return fmt.Sprintf("docket:%s:decision_events", ns)
}
