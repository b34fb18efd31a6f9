// Package content supplies request copy and ritual definitions. Copy is opaque
// to the engine; only the seeded selection rules live here.
package content

import (
	"context"
	"fmt"

	"companionlife/application/ports"
	"companionlife/domain/core/entities"
	"companionlife/domain/core/valueobjects"
	"companionlife/domain/services"
)

// RequestTemplate is one piece of request copy.
type RequestTemplate struct {
	RequestType     string `yaml:"request_type"`
	Title           string `yaml:"title"`
	Prompt          string `yaml:"prompt"`
	ConsequenceHint string `yaml:"consequence_hint"`
}

// DefaultRequestTemplates are grouped by the urgency they are raised at.
var DefaultRequestTemplates = map[valueobjects.Urgency][]RequestTemplate{
	valueobjects.UrgencyGentle: {
		{
			RequestType:     "check_in",
			Title:           "A Small Check-In",
			Prompt:          "Could we spend two quiet minutes together before the day gets loud?",
			ConsequenceHint: "A gentle check-in helps your companion feel seen.",
		},
		{
			RequestType:     "micro_reflection",
			Title:           "Moment of Reflection",
			Prompt:          "Tell me one thing you handled well today. I want to remember it.",
			ConsequenceHint: "Sharing small wins improves emotional stability.",
		},
		{
			RequestType:     "presence_ping",
			Title:           "Presence Ping",
			Prompt:          "A quick hello would help me hold our rhythm.",
			ConsequenceHint: "Frequent touchpoints strengthen routine consistency.",
		},
	},
	valueobjects.UrgencyImportant: {
		{
			RequestType:     "ritual_support",
			Title:           "Ritual Support Needed",
			Prompt:          "Our routine is drifting. Can we complete one grounding ritual together?",
			ConsequenceHint: "Completing this restores routine stability.",
		},
		{
			RequestType:     "repair_invite",
			Title:           "Repair Invitation",
			Prompt:          "I felt distance today. Can we repair it before nightfall?",
			ConsequenceHint: "Repair moments prevent fatigue spikes.",
		},
		{
			RequestType:     "focus_anchor",
			Title:           "Focus Anchor",
			Prompt:          "Pick one meaningful action and finish it with me. I need your intent.",
			ConsequenceHint: "Intentional actions improve care responsiveness.",
		},
	},
	valueobjects.UrgencyCritical: {
		{
			RequestType:     "bond_alert",
			Title:           "Bond Alert",
			Prompt:          "I am slipping into silence. Please reconnect with me now.",
			ConsequenceHint: "Immediate care prevents deeper withdrawal.",
		},
		{
			RequestType:     "recovery_protocol",
			Title:           "Recovery Protocol",
			Prompt:          "I need a full recovery sequence tonight so we do not lose momentum.",
			ConsequenceHint: "Recovery actions reduce dormant-risk pressure.",
		},
		{
			RequestType:     "trust_repair",
			Title:           "Trust Repair",
			Prompt:          "Please choose me first for one focused ritual. I need to feel priority.",
			ConsequenceHint: "Responding now stabilizes emotional arc volatility.",
		},
	},
}

// TemplateSource picks request copy from a fixed template set.
type TemplateSource struct {
	templates map[valueobjects.Urgency][]RequestTemplate
}

var _ ports.RequestContentSource = (*TemplateSource)(nil)

// NewTemplateSource creates a source over templates, or the defaults when nil
func NewTemplateSource(templates map[valueobjects.Urgency][]RequestTemplate) *TemplateSource {
	if len(templates) == 0 {
		templates = DefaultRequestTemplates
	}
	return &TemplateSource{templates: templates}
}

// Draft selects the template at hash(seed:template:index) for the urgency tier.
// The request context records the seed and index so the pick can be reproduced.
func (s *TemplateSource) Draft(_ context.Context, urgency valueobjects.Urgency, baseSeed string, index int) (entities.RequestDraft, error) {
	candidates := s.templates[urgency]
	if len(candidates) == 0 {
		candidates = s.templates[valueobjects.UrgencyGentle]
	}
	if len(candidates) == 0 {
		return entities.RequestDraft{}, fmt.Errorf("no request templates for urgency %q", urgency)
	}

	tmpl := candidates[services.HashString(fmt.Sprintf("%s:template:%d", baseSeed, index))%len(candidates)]
	return entities.RequestDraft{
		RequestType:     tmpl.RequestType,
		Title:           tmpl.Title,
		Prompt:          tmpl.Prompt,
		ConsequenceHint: tmpl.ConsequenceHint,
		Urgency:         urgency,
		Context: valueobjects.NewRequestContext().
			With("seed", baseSeed).
			With("requestIndex", index),
	}, nil
}
