package llm

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/phenoclass/conceptor/internal/model"
)

// Wire-level response payloads. Decoded strictly: unknown fields and shape
// mismatches reject the whole item rather than trusting freeform parsing.

type verdictPayload struct {
	TableName string  `json:"table_name"`
	Classify  bool    `json:"classify"`
	Measure   *string `json:"measure"`
	Domain    *string `json:"domain"`
	Rationale string  `json:"rationale"`
}

type conceptPayload struct {
	Variables []struct {
		VariableName string `json:"variable_name"`
		Concept      string `json:"concept"`
	} `json:"variables"`
}

type groupsPayload struct {
	Groups []struct {
		Canonical string   `json:"canonical"`
		Synonyms  []string `json:"synonyms"`
	} `json:"groups"`
}

// extractJSON strips optional markdown code fences around a JSON body.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if i := strings.LastIndex(text, "```"); i >= 0 {
			text = text[:i]
		}
	}
	return strings.TrimSpace(text)
}

// decodeStrict unmarshals text into v, rejecting unknown fields.
func decodeStrict(provider, text string, v any) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(extractJSON(text))))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &UnexpectedResponseError{Provider: provider, Reason: err.Error(), Raw: text}
	}
	return nil
}

func parseVerdict(provider, text string) (*model.Verdict, error) {
	var p verdictPayload
	if err := decodeStrict(provider, text, &p); err != nil {
		return nil, err
	}
	if p.Rationale == "" {
		return nil, &UnexpectedResponseError{Provider: provider, Reason: "missing rationale", Raw: text}
	}
	v := &model.Verdict{
		TableName: p.TableName,
		Classify:  p.Classify,
		Rationale: p.Rationale,
	}
	if p.Measure != nil {
		v.Measure = *p.Measure
	}
	if p.Domain != nil {
		v.Domain = *p.Domain
	}
	if v.Classify && (v.Measure == "" || v.Domain == "") {
		return nil, &UnexpectedResponseError{
			Provider: provider,
			Reason:   "classify=true without measure/domain",
			Raw:      text,
		}
	}
	return v, nil
}

func parseConcepts(provider, text string) ([]model.ConceptAssignment, error) {
	var p conceptPayload
	if err := decodeStrict(provider, text, &p); err != nil {
		return nil, err
	}
	out := make([]model.ConceptAssignment, 0, len(p.Variables))
	for _, v := range p.Variables {
		if v.VariableName == "" || v.Concept == "" {
			return nil, &UnexpectedResponseError{
				Provider: provider,
				Reason:   "empty variable_name or concept",
				Raw:      text,
			}
		}
		out = append(out, model.ConceptAssignment{VariableName: v.VariableName, Concept: v.Concept})
	}
	return out, nil
}

func parseGroups(provider, text string) ([]model.ConceptGroup, error) {
	var p groupsPayload
	if err := decodeStrict(provider, text, &p); err != nil {
		return nil, err
	}
	out := make([]model.ConceptGroup, 0, len(p.Groups))
	for _, g := range p.Groups {
		if g.Canonical == "" {
			return nil, &UnexpectedResponseError{
				Provider: provider,
				Reason:   "group without canonical name",
				Raw:      text,
			}
		}
		out = append(out, model.ConceptGroup{Canonical: g.Canonical, Synonyms: g.Synonyms})
	}
	return out, nil
}
