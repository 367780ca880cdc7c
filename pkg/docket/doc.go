// Package docket provides the record types and storage for review sessions: review
// items, the groups they are batched into, and the sessions that decide them.
//
// # Overview
//
// A review item is a single proposal put in front of the committee. In a sequential
// session items are championed, debated and voted on one at a time. In a group session
// several items are reviewed side by side and each participant votes for the subset they
// support.
//
// Decisions flow back into the store: an item's status, its optional alternative
// suggestion and a snapshot of the vote that decided it. Sessions record which items they
// decided, and every line of chat is kept as a transcript per item and per session.
//
// # Redis Schema
//
// All Redis keys follow the pattern: docket:{namespace}:{entity}:{id}
//
// Items: docket:{ns}:item:{id}, indexed by the ZSET docket:{ns}:items (score = id)
// Groups: docket:{ns}:group:{code}, indexed by docket:{ns}:groups (score = position)
// Sessions: docket:{ns}:session:{number}, numbered by the counter docket:{ns}:session_seq
// Transcripts: docket:{ns}:transcript:{ref} (LIST of JSON entries)
//
// Pub/Sub channel: docket:{ns}:decision_events
//
// # Usage Example
//
//	client, err := docket.NewClient(&redis.Options{Addr: "localhost:6379"}, "pycon")
//	if err != nil {
//		log.Fatal(err)
//	}
//	item, err := docket.NextItem(ctx, client, docket.ItemFilter{
//		Statuses: []docket.Status{docket.StatusUnreviewed, docket.StatusHold},
//	})
//	if docket.IsNotFound(err) {
//		// queue is empty
//	}
package docket
