package models

import (
	"encoding/json"
	"time"
)

// Plan is a daily plan decoded from a completion. When the completion was not
// a JSON object, Degraded is set and only Raw carries the text.
type Plan struct {
	PriorityActions []string
	Suggestions     []string
	Rationale       string
	QuickTips       []string
	Summary         string

	Raw      string
	Degraded bool

	// fields keeps the decoded document so unknown keys survive re-encoding.
	fields map[string]json.RawMessage
}

// ParsePlan decodes raw completion text. It never fails: anything that is not
// a JSON object yields FallbackPlan(raw).
func ParsePlan(raw string) Plan {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil || fields == nil {
		return FallbackPlan(raw)
	}
	return planFromFields(fields)
}

// FallbackPlan wraps text that could not be decoded.
func FallbackPlan(raw string) Plan {
	return Plan{Raw: raw, Degraded: true}
}

func planFromFields(fields map[string]json.RawMessage) Plan {
	p := Plan{fields: fields}
	// Mistyped fields are left zero; the document itself is passed through.
	decodeField(fields, "priority_actions", &p.PriorityActions)
	decodeField(fields, "suggestions", &p.Suggestions)
	decodeField(fields, "rationale", &p.Rationale)
	decodeField(fields, "quick_tips", &p.QuickTips)
	decodeField(fields, "summary", &p.Summary)
	return p
}

func decodeField(fields map[string]json.RawMessage, key string, dst interface{}) {
	if v, ok := fields[key]; ok {
		_ = json.Unmarshal(v, dst)
	}
}

type planDocument struct {
	PriorityActions []string `json:"priority_actions"`
	Suggestions     []string `json:"suggestions"`
	Rationale       string   `json:"rationale"`
	QuickTips       []string `json:"quick_tips"`
	Summary         string   `json:"summary"`
}

// MarshalJSON emits {"raw": ...} for degraded plans and the decoded document
// otherwise.
func (p Plan) MarshalJSON() ([]byte, error) {
	if p.Degraded {
		return json.Marshal(map[string]string{"raw": p.Raw})
	}
	if p.fields != nil {
		return json.Marshal(p.fields)
	}
	return json.Marshal(planDocument{
		PriorityActions: p.PriorityActions,
		Suggestions:     p.Suggestions,
		Rationale:       p.Rationale,
		QuickTips:       p.QuickTips,
		Summary:         p.Summary,
	})
}

// UnmarshalJSON restores a plan written by MarshalJSON. A document whose only
// key is a string "raw" is read back as a degraded plan.
func (p *Plan) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	if len(fields) == 1 {
		var raw string
		if v, ok := fields["raw"]; ok && json.Unmarshal(v, &raw) == nil {
			*p = FallbackPlan(raw)
			return nil
		}
	}
	*p = planFromFields(fields)
	return nil
}

// PlanRecord is a persisted plan owned by an authenticated caller. Records are
// never mutated after Save.
type PlanRecord struct {
	ID           string
	OwnerID      string
	LocationName string
	Plan         Plan
	CreatedAt    time.Time
}
