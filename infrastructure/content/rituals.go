package content

import (
	"context"
	"fmt"
	"os"

	"companionlife/application/ports"
	"companionlife/domain/core/entities"
	"companionlife/domain/core/valueobjects"

	"gopkg.in/yaml.v3"
)

// DefaultRitualDefinitions is the built-in catalog.
var DefaultRitualDefinitions = []entities.RitualDefinition{
	{
		ID:            "morning-anchor",
		Code:          "morning_anchor",
		Title:         "Morning Anchor",
		Description:   "Start the day with one intention shared with your companion.",
		RitualType:    "routine",
		BaseBondDelta: 1,
		BaseCareDelta: 0.02,
		CooldownHours: 20,
	},
	{
		ID:            "gratitude-note",
		Code:          "gratitude_note",
		Title:         "Gratitude Note",
		Description:   "Name one thing you are grateful for today.",
		RitualType:    "reflection",
		BaseBondDelta: 1,
		BaseCareDelta: 0.02,
		CooldownHours: 20,
	},
	{
		ID:            "focus-sprint",
		Code:          "focus_sprint",
		Title:         "Focus Sprint",
		Description:   "Finish one focused block of work with your companion watching.",
		RitualType:    "focus",
		BaseBondDelta: 1.5,
		BaseCareDelta: 0.03,
		CooldownHours: 12,
	},
	{
		ID:            "movement-break",
		Code:          "movement_break",
		Title:         "Movement Break",
		Description:   "Step away and move for five minutes.",
		RitualType:    "wellness",
		BaseBondDelta: 1,
		BaseCareDelta: 0.02,
		CooldownHours: 6,
	},
	{
		ID:            "evening-wind-down",
		Code:          "evening_wind_down",
		Title:         "Evening Wind-Down",
		Description:   "Close the day by reviewing what went well.",
		RitualType:    "routine",
		BaseBondDelta: 1,
		BaseCareDelta: 0.025,
		CooldownHours: 20,
	},
	{
		ID:            "repair-check",
		Code:          "repair_check",
		Title:         "Repair Check",
		Description:   "Revisit a missed request and talk it through.",
		RitualType:    "repair",
		BaseBondDelta: 2,
		BaseCareDelta: 0.04,
		CooldownHours: 24,
	},
}

// StaticRitualCatalog serves a fixed list of definitions.
type StaticRitualCatalog struct {
	definitions []entities.RitualDefinition
}

var _ ports.RitualCatalog = (*StaticRitualCatalog)(nil)

// NewStaticRitualCatalog creates a catalog over defs, or the defaults when empty
func NewStaticRitualCatalog(defs []entities.RitualDefinition) *StaticRitualCatalog {
	if len(defs) == 0 {
		defs = DefaultRitualDefinitions
	}
	return &StaticRitualCatalog{definitions: defs}
}

// Definitions implements ports.RitualCatalog
func (c *StaticRitualCatalog) Definitions(context.Context) ([]entities.RitualDefinition, error) {
	out := make([]entities.RitualDefinition, len(c.definitions))
	copy(out, c.definitions)
	return out, nil
}

// catalogFile is the YAML shape of a content override file.
type catalogFile struct {
	Rituals  []entities.RitualDefinition  `yaml:"rituals"`
	Requests map[string][]RequestTemplate `yaml:"requests"`
}

// LoadCatalogFile reads ritual definitions and request templates from a YAML
// file. Sections left out fall back to the defaults.
func LoadCatalogFile(path string) (*StaticRitualCatalog, *TemplateSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read content file: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, nil, fmt.Errorf("parse content file: %w", err)
	}

	for i, def := range file.Rituals {
		if def.Code == "" {
			return nil, nil, fmt.Errorf("ritual %d has no code", i)
		}
		if def.ID == "" {
			file.Rituals[i].ID = def.Code
		}
	}

	templates := make(map[valueobjects.Urgency][]RequestTemplate, len(file.Requests))
	for tier, list := range file.Requests {
		urgency, err := valueobjects.ParseUrgency(tier)
		if err != nil {
			return nil, nil, fmt.Errorf("content file: %w", err)
		}
		templates[urgency] = list
	}

	return NewStaticRitualCatalog(file.Rituals), NewTemplateSource(templates), nil
}
