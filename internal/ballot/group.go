// Package ballot interprets free-text votes typed into the channel and tallies them.
//
// Group sessions use a small grammar over item numbers:
//
//	"1, 3, 5"     absolute form, the vote becomes exactly {1, 3, 5}
//	"all -5"      modifier form starting from every item in the group
//	"none +1 +3"  modifier form starting from nothing
//	"+2 -3"       modifier form starting from the participant's current vote
//
// Sequential sessions accept aye / nay / abstain words, see ParseSequential.
package ballot

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Set is a sorted, duplicate-free set of item ids.
type Set []int

// NewSet builds a Set from ids in any order.
func NewSet(ids ...int) Set {
	seen := make(map[int]bool, len(ids))
	out := make(Set, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Ints(out)
	return out
}

// Has reports whether id is in the set.
func (s Set) Has(id int) bool {
	i := sort.SearchInts(s, id)
	return i < len(s) && s[i] == id
}

// String renders the set in absolute form, e.g. "1, 3, 5".
// The empty set renders as "none".
func (s Set) String() string {
	if len(s) == 0 {
		return "none"
	}
	parts := make([]string, len(s))
	for i, id := range s {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ", ")
}

type tokenKind int

const (
	tokenUnknown tokenKind = iota
	tokenUnsigned
	tokenSigned
	tokenAll
	tokenNone
)

type token struct {
	raw  string
	kind tokenKind
	n    int  // magnitude for integer tokens
	add  bool // sign of a signed token
}

// ParseError explains why a ballot was rejected. The participant's vote is untouched.
type ParseError struct {
	Unrecognized []string
	OutOfGroup   []int
	Reason       string
}

func (e *ParseError) Error() string {
	var parts []string
	if len(e.Unrecognized) > 0 {
		parts = append(parts, fmt.Sprintf("I don't understand %s", quoteAll(e.Unrecognized)))
	}
	if len(e.OutOfGroup) > 0 {
		parts = append(parts, fmt.Sprintf("%s not in this group", NewSet(e.OutOfGroup...)))
	}
	if e.Reason != "" {
		parts = append(parts, e.Reason)
	}
	return strings.Join(parts, "; ")
}

func quoteAll(raw []string) string {
	quoted := make([]string, len(raw))
	for i, r := range raw {
		quoted[i] = strconv.Quote(r)
	}
	return strings.Join(quoted, ", ")
}

// ParseGroupVote interprets text against the group's member ids.
// prior is the participant's current vote and hasPrior reports whether they voted this
// round at all. The returned set is the participant's complete new vote; an empty set
// means "I vote for nothing". Nothing is applied on error.
func ParseGroupVote(text string, members Set, prior Set, hasPrior bool) (Set, error) {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return nil, &ParseError{Reason: "empty vote; list item numbers or say none"}
	}

	// (1) classify everything before touching state
	perr := &ParseError{}
	var signed, unsigned, keywords int
	for _, tok := range tokens {
		switch tok.kind {
		case tokenUnknown:
			perr.Unrecognized = append(perr.Unrecognized, tok.raw)
		case tokenSigned, tokenUnsigned:
			if tok.kind == tokenSigned {
				signed++
			} else {
				unsigned++
			}
			if !members.Has(tok.n) {
				perr.OutOfGroup = append(perr.OutOfGroup, tok.n)
			}
		case tokenAll, tokenNone:
			keywords++
		}
	}
	if signed > 0 && unsigned > 0 {
		perr.Reason = "can't mix +N/-N with plain item numbers"
	}
	if len(perr.Unrecognized) > 0 || len(perr.OutOfGroup) > 0 || perr.Reason != "" {
		return nil, perr
	}

	// (2) absolute form
	if signed == 0 && keywords == 0 {
		ids := make([]int, len(tokens))
		for i, tok := range tokens {
			ids[i] = tok.n
		}
		return NewSet(ids...), nil
	}

	// (3) modifier form
	var base Set
	rest := tokens[1:]
	switch first := tokens[0]; first.kind {
	case tokenAll:
		base = members
	case tokenNone:
		base = Set{}
	case tokenSigned:
		if !hasPrior {
			return nil, &ParseError{Reason: "you haven't voted yet, so start with all, none or a list of items"}
		}
		base = prior
		rest = tokens
	default:
		return nil, &ParseError{Reason: "all/none must come first, followed only by +N or -N"}
	}

	current := make(map[int]bool, len(base))
	for _, id := range base {
		current[id] = true
	}
	for _, tok := range rest {
		if tok.kind != tokenSigned {
			return nil, &ParseError{Reason: "all/none must come first, followed only by +N or -N"}
		}
		if tok.add {
			current[tok.n] = true
		} else {
			delete(current, tok.n)
		}
	}

	ids := make([]int, 0, len(current))
	for id := range current {
		ids = append(ids, id)
	}
	return NewSet(ids...), nil
}

func tokenize(text string) []token {
	fields := strings.Fields(strings.ReplaceAll(strings.ToLower(text), ",", " "))
	tokens := make([]token, 0, len(fields))
	for _, f := range fields {
		tokens = append(tokens, classify(f))
	}
	return tokens
}

func classify(raw string) token {
	tok := token{raw: raw}
	switch raw {
	case "all":
		tok.kind = tokenAll
		return tok
	case "none":
		tok.kind = tokenNone
		return tok
	}

	digits := raw
	if raw[0] == '+' || raw[0] == '-' {
		digits = raw[1:]
		tok.kind = tokenSigned
		tok.add = raw[0] == '+'
	} else {
		tok.kind = tokenUnsigned
	}
	if digits == "" || strings.TrimLeft(digits, "0123456789") != "" {
		return token{raw: raw, kind: tokenUnknown}
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return token{raw: raw, kind: tokenUnknown}
	}
	tok.n = n
	return tok
}
