// Package catalog holds the guided activity variants offered to students.
package catalog

import (
	"sort"
	"strings"

	"example.com/wellness/internal/domain"
)

// Variant is one guided activity a student can pick.
type Variant struct {
	Slug                     string              `json:"slug"`
	Type                     domain.ActivityType `json:"type"`
	Name                     string              `json:"name"`
	SuggestedDurationSeconds int                 `json:"suggestedDurationSeconds"`
	Description              string              `json:"description"`
}

// Catalog is a read-only, in-memory registry of variants keyed by slug.
type Catalog struct {
	bySlug map[string]Variant
	sorted []Variant
}

// New builds a Catalog from variants. Later entries replace earlier ones with the same slug.
func New(variants ...Variant) *Catalog {
	c := &Catalog{bySlug: make(map[string]Variant, len(variants))}
	for _, v := range variants {
		v.Slug = normalizeSlug(v.Slug)
		if v.Slug == "" {
			continue
		}
		c.bySlug[v.Slug] = v
	}

	c.sorted = make([]Variant, 0, len(c.bySlug))
	for _, v := range c.bySlug {
		c.sorted = append(c.sorted, v)
	}
	sort.Slice(c.sorted, func(i, j int) bool {
		if c.sorted[i].Type != c.sorted[j].Type {
			return c.sorted[i].Type < c.sorted[j].Type
		}
		return c.sorted[i].Slug < c.sorted[j].Slug
	})
	return c
}

// NewDefault returns the catalog seeded with the built-in variants.
func NewDefault() *Catalog {
	return New(defaultVariants...)
}

// List returns the variants of the given type, or all variants when t is empty.
func (c *Catalog) List(t domain.ActivityType) []Variant {
	out := make([]Variant, 0, len(c.sorted))
	for _, v := range c.sorted {
		if t == "" || v.Type == t {
			out = append(out, v)
		}
	}
	return out
}

// Lookup finds a variant by slug, ignoring case and surrounding whitespace.
func (c *Catalog) Lookup(slug string) (Variant, bool) {
	v, ok := c.bySlug[normalizeSlug(slug)]
	return v, ok
}

func normalizeSlug(slug string) string {
	return strings.ToLower(strings.TrimSpace(slug))
}

var defaultVariants = []Variant{
	{
		Slug:                     "box-breathing",
		Type:                     domain.ActivityTypeMeditation,
		Name:                     "Box Breathing",
		SuggestedDurationSeconds: 240,
		Description:              "Inhale, hold, exhale and hold again for four counts each.",
	},
	{
		Slug:                     "body-scan",
		Type:                     domain.ActivityTypeMeditation,
		Name:                     "Body Scan",
		SuggestedDurationSeconds: 600,
		Description:              "Move attention slowly from head to toes and notice tension.",
	},
	{
		Slug:                     "guided-breathing",
		Type:                     domain.ActivityTypeMeditation,
		Name:                     "Guided Breathing",
		SuggestedDurationSeconds: 300,
		Description:              "Follow a paced breathing prompt to settle before study.",
	},
	{
		Slug:                     "desk-stretch",
		Type:                     domain.ActivityTypeExercise,
		Name:                     "Desk Stretch",
		SuggestedDurationSeconds: 300,
		Description:              "Neck, shoulder and wrist stretches that fit between classes.",
	},
	{
		Slug:                     "brisk-walk",
		Type:                     domain.ActivityTypeExercise,
		Name:                     "Brisk Walk",
		SuggestedDurationSeconds: 900,
		Description:              "A short outdoor walk at a pace that raises your heart rate.",
	},
	{
		Slug:                     "yoga-flow",
		Type:                     domain.ActivityTypeExercise,
		Name:                     "Yoga Flow",
		SuggestedDurationSeconds: 1200,
		Description:              "A gentle sequence of poses for flexibility and balance.",
	},
	{
		Slug:                     "reframe",
		Type:                     domain.ActivityTypeStrategy,
		Name:                     "Reframe a Thought",
		SuggestedDurationSeconds: 300,
		Description:              "Write down a stressful thought and an alternative way to see it.",
	},
	{
		Slug:                     "grounding-54321",
		Type:                     domain.ActivityTypeStrategy,
		Name:                     "5-4-3-2-1 Grounding",
		SuggestedDurationSeconds: 180,
		Description:              "Name five things you see, four you feel, three you hear, two you smell and one you taste.",
	},
	{
		Slug:                     "worry-time",
		Type:                     domain.ActivityTypeStrategy,
		Name:                     "Scheduled Worry Time",
		SuggestedDurationSeconds: 600,
		Description:              "Set aside a fixed window to write worries down, then close the notebook.",
	},
}
