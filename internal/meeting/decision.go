package meeting

import (
	"strconv"
	"strings"

	"github.com/dyluth/docket/pkg/docket"
)

// verdict is what a decision command asks for.
type verdict struct {
	status      docket.Status
	alternative docket.Alternative
}

// verdicts maps decision commands onto statuses. Sequential reviews use accept, reject,
// hold and poster; group reviews use accept, reject, damaged (hold is an alias) and poster.
var verdicts = map[string]verdict{
	"accept":  {status: docket.StatusAccepted},
	"reject":  {status: docket.StatusRejected},
	"hold":    {status: docket.StatusHold},
	"damaged": {status: docket.StatusDamaged},
	"poster":  {status: docket.StatusRejected, alternative: docket.AlternativePoster},
}

// validateBatch parses args as item ids that must all be in scope. Any bad id rejects
// the whole batch and the error lists every offender. Duplicates collapse.
func validateBatch(args []string, scope []int) ([]int, error) {
	inScope := make(map[int]bool, len(scope))
	for _, id := range scope {
		inScope[id] = true
	}

	var ids []int
	var bad []string
	seen := make(map[int]bool, len(args))
	for _, arg := range args {
		raw := strings.TrimPrefix(strings.TrimSpace(arg), "#")
		id, err := strconv.Atoi(raw)
		if err != nil || !inScope[id] {
			bad = append(bad, arg)
			continue
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	if len(bad) > 0 {
		return nil, userErrorf("Nothing applied; not under discussion: %s. Valid items: %s.",
			strings.Join(bad, ", "), joinIDs(scope))
	}
	if len(ids) == 0 {
		return nil, userErrorf("Which items? Valid items: %s.", joinIDs(scope))
	}
	return ids, nil
}

func joinIDs(ids []int) string {
	if len(ids) == 0 {
		return "none"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = "#" + strconv.Itoa(id)
	}
	return strings.Join(parts, ", ")
}

// decisionText is the channel announcement for a decided item.
func decisionText(id int, v verdict) string {
	switch v.status {
	case docket.StatusAccepted:
		return "Item #" + strconv.Itoa(id) + " accepted."
	case docket.StatusHold:
		return "Item #" + strconv.Itoa(id) + " put on hold; will be reviewed at a future session."
	case docket.StatusDamaged:
		return "Item #" + strconv.Itoa(id) + " damaged; kept on standby."
	default:
		if v.alternative != docket.AlternativeNone {
			return "Item #" + strconv.Itoa(id) + " rejected (suggest submission of " + v.alternative.Describe() + ")."
		}
		return "Item #" + strconv.Itoa(id) + " rejected."
	}
}
