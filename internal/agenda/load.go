package agenda

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dyluth/docket/pkg/docket"
)

// Manifest is the YAML import format for the load command.
type Manifest struct {
	Items  []ManifestItem  `yaml:"items"`
	Groups []ManifestGroup `yaml:"groups,omitempty"`
}

// ManifestItem describes one submission.
type ManifestItem struct {
	ID        int           `yaml:"id"`
	Title     string        `yaml:"title"`
	Speaker   string        `yaml:"speaker,omitempty"`
	Status    docket.Status `yaml:"status,omitempty"` // only applied to new items
	Withdrawn bool          `yaml:"withdrawn,omitempty"`
}

// ManifestGroup describes a review group. Position defaults to list order.
type ManifestGroup struct {
	Code     string `yaml:"code"`
	Label    string `yaml:"label,omitempty"`
	Position int    `yaml:"position,omitempty"`
	Items    []int  `yaml:"items"`
}

// LoadSummary counts what Apply changed.
type LoadSummary struct {
	Created int
	Updated int
	Groups  int
	Moved   int
}

// ReadManifest parses and validates a manifest file.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	return &m, nil
}

// Validate checks ids are unique and every group member is listed or already known.
func (m *Manifest) Validate() error {
	seen := make(map[int]bool, len(m.Items))
	for _, item := range m.Items {
		if item.ID <= 0 {
			return fmt.Errorf("item id must be > 0, got %d", item.ID)
		}
		if seen[item.ID] {
			return fmt.Errorf("item %d listed twice", item.ID)
		}
		seen[item.ID] = true
		if item.Title == "" {
			return fmt.Errorf("item %d: title is required", item.ID)
		}
		if item.Status != "" {
			if err := item.Status.Validate(); err != nil {
				return fmt.Errorf("item %d: %w", item.ID, err)
			}
		}
	}

	codes := make(map[string]bool, len(m.Groups))
	grouped := make(map[int]string)
	for _, g := range m.Groups {
		if g.Code == "" {
			return fmt.Errorf("group code is required")
		}
		if codes[g.Code] {
			return fmt.Errorf("group %s listed twice", g.Code)
		}
		codes[g.Code] = true
		for _, id := range g.Items {
			if other, ok := grouped[id]; ok {
				return fmt.Errorf("item %d is in groups %s and %s", id, other, g.Code)
			}
			grouped[id] = g.Code
		}
	}
	return nil
}

// Apply writes the manifest. Existing items keep their status, tally and group; only the
// descriptive fields are refreshed.
func Apply(ctx context.Context, store docket.Store, m *Manifest) (LoadSummary, error) {
	var summary LoadSummary

	for _, mi := range m.Items {
		item, err := store.GetItem(ctx, mi.ID)
		switch {
		case docket.IsNotFound(err):
			item = &docket.ReviewItem{ID: mi.ID, Status: docket.StatusUnreviewed}
			if mi.Status != "" {
				item.Status = mi.Status
			}
			summary.Created++
		case err != nil:
			return summary, err
		default:
			summary.Updated++
		}
		item.Title = mi.Title
		item.Speaker = mi.Speaker
		item.Withdrawn = mi.Withdrawn
		if err := store.SaveItem(ctx, item); err != nil {
			return summary, fmt.Errorf("failed to save item %d: %w", mi.ID, err)
		}
	}

	for i, mg := range m.Groups {
		group, err := store.GetGroup(ctx, mg.Code)
		if docket.IsNotFound(err) {
			group = &docket.Group{Code: mg.Code}
		} else if err != nil {
			return summary, err
		}
		group.Label = mg.Label
		if group.Label == "" {
			group.Label = mg.Code
		}
		group.Position = mg.Position
		if group.Position == 0 {
			group.Position = i + 1
		}
		if err := store.SaveGroup(ctx, group); err != nil {
			return summary, fmt.Errorf("failed to save group %s: %w", mg.Code, err)
		}
		summary.Groups++

		for _, id := range mg.Items {
			if group.Has(id) {
				continue
			}
			if err := store.MoveItem(ctx, id, mg.Code); err != nil {
				return summary, err
			}
			summary.Moved++
		}
	}
	return summary, nil
}
