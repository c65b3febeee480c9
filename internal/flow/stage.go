// Package flow implements the per-vertical conversation state machines.
//
// A Vertical is a declarative table of stages. The Engine walks a session
// through that table one inbound message at a time, after the Interceptor
// has had a chance to handle the global exit and reset keywords.
package flow

import (
	"github.com/BTreeMap/LeadPipe/internal/models"
)

// StageKind selects how a stage interprets input.
type StageKind int

const (
	// KindPrompt replies with its prompt and moves to Next on any input.
	KindPrompt StageKind = iota
	// KindSelect matches input against a fixed set of choices.
	KindSelect
	// KindCollect stores the input verbatim into a field.
	KindCollect
	// KindQuery looks the input up in an external system and ends the conversation.
	KindQuery
)

func (k StageKind) String() string {
	switch k {
	case KindPrompt:
		return "prompt"
	case KindSelect:
		return "select"
	case KindCollect:
		return "collect"
	case KindQuery:
		return "query"
	default:
		return "unknown"
	}
}

// Variant replaces a prompt stage's text when the input is one of Keywords.
type Variant struct {
	Keywords []string
	Text     string
}

// Choice is one selectable option of a select stage.
type Choice struct {
	Keys []string
	// Send is delivered in order. Text bodies and captions are templates over the session fields.
	Send []models.Outbound
	// Next is the stage to move to; empty stays on the select stage.
	Next string
}

// Completion closes a flow and produces a LeadRecord.
type Completion struct {
	Kind    string
	Fields  []string
	Roles   models.Roles
	Effects models.EffectSet
	Reply   string
}

// Query describes a read-only lookup stage.
type Query struct {
	Resource string
	// Field stores the reference the user typed.
	Field    string
	Found    string
	NotFound string
	// PinName enables a location message when the lookup returns coordinates.
	PinName         string
	PinAddressField string
	Audit           bool
}

// Validation names a format check applied to collected input in strict mode.
type Validation string

const (
	ValidateNone    Validation = ""
	ValidateContact Validation = "contact"
)

// Stage is one state of a vertical's machine.
type Stage struct {
	Name string
	Kind StageKind
	// Prompt is shown when the conversation enters the stage.
	Prompt   string
	Variants []Variant
	Next     string

	Choices []Choice
	Invalid string

	Field    string
	Canned   map[string]string
	Validate Validation
	Complete *Completion

	Query *Query
}

// match returns the choice selected by normalized input, or nil.
func (s *Stage) match(norm string) *Choice {
	for i := range s.Choices {
		for _, k := range s.Choices[i].Keys {
			if k == norm {
				return &s.Choices[i]
			}
		}
	}
	return nil
}

// Vertical is one business flow.
type Vertical struct {
	Name    string
	Initial string
	Stages  []Stage

	// ResetKeywords extends the global reset set for this vertical.
	ResetKeywords []string
	// ResetClearsFields deletes the session on reset. When false only the stage rewinds.
	ResetClearsFields bool
	ResetReply        string
	ExitReply         string

	// Source tags every lead this vertical produces.
	Source string
	// BusinessType labels the vertical's records for downstream sheets.
	BusinessType string
	// Banner is the health-check text served at the root path.
	Banner string
}
