package docket

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Serialization helpers for converting between records and Redis hashes.
//
// Scalar fields get their own hash field so they can be inspected with redis-cli.
// Lists, maps and the tally snapshot are JSON-encoded into a single field.

// ItemToHash converts a ReviewItem to a Redis hash.
func ItemToHash(i *ReviewItem) (map[string]interface{}, error) {
	tally := ""
	if i.Tally != nil {
		raw, err := json.Marshal(i.Tally)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal tally: %w", err)
		}
		tally = string(raw)
	}

	return map[string]interface{}{
		"id":            i.ID,
		"title":         i.Title,
		"speaker":       i.Speaker,
		"status":        string(i.Status),
		"alternative":   string(i.Alternative),
		"withdrawn":     strconv.FormatBool(i.Withdrawn),
		"group_code":    i.GroupCode,
		"tally":         tally,
		"updated_at_ms": i.UpdatedAtMs,
	}, nil
}

// HashToItem converts a Redis hash to a ReviewItem.
func HashToItem(hash map[string]string) (*ReviewItem, error) {
	id, err := strconv.Atoi(hash["id"])
	if err != nil {
		return nil, fmt.Errorf("invalid id field: %w", err)
	}

	var tally *Tally
	if raw := hash["tally"]; raw != "" {
		tally = &Tally{}
		if err := json.Unmarshal([]byte(raw), tally); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tally: %w", err)
		}
	}

	withdrawn, _ := strconv.ParseBool(hash["withdrawn"])
	updatedAtMs, _ := strconv.ParseInt(hash["updated_at_ms"], 10, 64)

	return &ReviewItem{
		ID:          id,
		Title:       hash["title"],
		Speaker:     hash["speaker"],
		Status:      Status(hash["status"]),
		Alternative: Alternative(hash["alternative"]),
		Withdrawn:   withdrawn,
		GroupCode:   hash["group_code"],
		Tally:       tally,
		UpdatedAtMs: updatedAtMs,
	}, nil
}

// GroupToHash converts a Group to a Redis hash.
// item_ids and decisions are JSON-encoded.
func GroupToHash(g *Group) (map[string]interface{}, error) {
	ids := g.ItemIDs
	if ids == nil {
		ids = []int{}
	}
	idsJSON, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal item ids: %w", err)
	}

	decisions := g.Decisions
	if decisions == nil {
		decisions = map[int]Status{}
	}
	decisionsJSON, err := json.Marshal(decisions)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal decisions: %w", err)
	}

	return map[string]interface{}{
		"code":      g.Code,
		"label":     g.Label,
		"position":  g.Position,
		"item_ids":  string(idsJSON),
		"decided":   strconv.FormatBool(g.Decided),
		"decisions": string(decisionsJSON),
	}, nil
}

// HashToGroup converts a Redis hash to a Group.
func HashToGroup(hash map[string]string) (*Group, error) {
	position, err := strconv.Atoi(hash["position"])
	if err != nil {
		return nil, fmt.Errorf("invalid position field: %w", err)
	}

	var ids []int
	if raw := hash["item_ids"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &ids); err != nil {
			return nil, fmt.Errorf("failed to unmarshal item_ids: %w", err)
		}
	}
	if ids == nil {
		ids = []int{}
	}

	var decisions map[int]Status
	if raw := hash["decisions"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &decisions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal decisions: %w", err)
		}
	}
	if len(decisions) == 0 {
		decisions = nil
	}

	decided, _ := strconv.ParseBool(hash["decided"])

	return &Group{
		Code:      hash["code"],
		Label:     hash["label"],
		Position:  position,
		ItemIDs:   ids,
		Decided:   decided,
		Decisions: decisions,
	}, nil
}

// SessionToHash converts a Session to a Redis hash.
func SessionToHash(s *Session) (map[string]interface{}, error) {
	decided := s.Decided
	if decided == nil {
		decided = []int{}
	}
	decidedJSON, err := json.Marshal(decided)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal decided list: %w", err)
	}

	return map[string]interface{}{
		"id":            s.ID,
		"number":        s.Number,
		"kind":          string(s.Kind),
		"started_at_ms": s.StartedAtMs,
		"ended_at_ms":   s.EndedAtMs,
		"decided":       string(decidedJSON),
	}, nil
}

// HashToSession converts a Redis hash to a Session.
func HashToSession(hash map[string]string) (*Session, error) {
	number, err := strconv.Atoi(hash["number"])
	if err != nil {
		return nil, fmt.Errorf("invalid number field: %w", err)
	}

	var decided []int
	if raw := hash["decided"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &decided); err != nil {
			return nil, fmt.Errorf("failed to unmarshal decided: %w", err)
		}
	}
	if decided == nil {
		decided = []int{}
	}

	startedAtMs, _ := strconv.ParseInt(hash["started_at_ms"], 10, 64)
	endedAtMs, _ := strconv.ParseInt(hash["ended_at_ms"], 10, 64)

	return &Session{
		ID:          hash["id"],
		Number:      number,
		Kind:        SessionKind(hash["kind"]),
		StartedAtMs: startedAtMs,
		EndedAtMs:   endedAtMs,
		Decided:     decided,
	}, nil
}
