package rules

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidationError captures a single field-specific validation issue.
type ValidationError struct {
	File    string
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.File, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.File, e.Field, e.Message)
}

// ValidationErrors aggregates multiple validation problems.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, e.Error())
	}
	return strings.Join(parts, "\n")
}

// Parse decodes a YAML rule table and validates it. Unknown fields are rejected.
func Parse(data []byte, source string) (*RuleSet, error) {
	var rs RuleSet
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&rs); err != nil {
		return nil, ValidationErrors{{
			File:    source,
			Field:   "yaml",
			Message: err.Error(),
		}}
	}
	if err := rs.Validate(source); err != nil {
		return nil, err
	}
	return &rs, nil
}

// Validate checks structural and semantic constraints of the rule table.
func (rs *RuleSet) Validate(source string) error {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{File: source, Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if rs.Version != CurrentVersion {
		add("version", "unsupported version %d (want %d)", rs.Version, CurrentVersion)
	}
	if len(rs.ActivityTypes) == 0 {
		add("activity_types", "at least one activity type is required")
	}
	for name, k := range rs.ActivityTypes {
		if strings.TrimSpace(name) == "" {
			add("activity_types", "empty activity type name")
		}
		if _, ok := ParseKind(string(k)); !ok {
			add("activity_types."+name, "unknown kind %q", k)
		}
	}

	seen := make(map[string]struct{})
	for i, p := range rs.Team.Parameters {
		field := fmt.Sprintf("team.parameters[%d]", i)
		if strings.TrimSpace(p.Parameter) == "" {
			add(field+".parameter", "is required")
		}
		if _, dup := seen[p.Parameter]; dup {
			add(field+".parameter", "duplicate parameter %q", p.Parameter)
		}
		seen[p.Parameter] = struct{}{}
		if _, ok := ParseKind(string(p.Kind)); !ok {
			add(field+".kind", "unknown kind %q", p.Kind)
		}
		if p.MaxPoints <= 0 {
			add(field+".max_points", "must be > 0")
		}
	}
	if rs.Team.Involvement.Parameter == "" {
		add("team.involvement.parameter", "is required")
	}
	if rs.Team.Involvement.MaxPoints < 0 {
		add("team.involvement.max_points", "must be >= 0")
	}
	if rs.Team.Melas.Parameter == "" {
		add("team.melas.parameter", "is required")
	}
	if rs.Team.Melas.Target < 0 {
		add("team.melas.target", "must be >= 0")
	}
	if rs.Team.Melas.MaxPoints < 0 {
		add("team.melas.max_points", "must be >= 0")
	}

	if rs.Unit.Gate.Parameter != "" {
		if _, ok := rs.GateKind(); !ok {
			add("unit.gate.parameter", "%q is not a team parameter", rs.Unit.Gate.Parameter)
		}
		if rs.Unit.Gate.Threshold < 0 || rs.Unit.Gate.Threshold > 1 {
			add("unit.gate.threshold", "must be within [0,1]")
		}
	}
	steps := []struct {
		field string
		rule  StepRule
	}{
		{"unit.special_events", rs.Unit.SpecialEvents},
		{"unit.press_releases", rs.Unit.PressReleases},
	}
	for _, s := range steps {
		if s.rule.Parameter == "" {
			add(s.field+".parameter", "is required")
		}
		if s.rule.MinCount < 1 {
			add(s.field+".min_count", "must be >= 1")
		}
	}

	if _, ok := ParseKind(string(rs.Leads.LeadKind)); !ok {
		add("leads.lead_kind", "unknown kind %q", rs.Leads.LeadKind)
	}
	if _, ok := ParseKind(string(rs.Leads.ConversionKind)); !ok {
		add("leads.conversion_kind", "unknown kind %q", rs.Leads.ConversionKind)
	}
	if rs.Leads.LeadKind != "" && rs.Leads.LeadKind == rs.Leads.ConversionKind {
		add("leads.conversion_kind", "must differ from lead_kind")
	}
	if rs.Leads.Threshold < 0 || rs.Leads.Threshold > 1 {
		add("leads.threshold", "must be within [0,1]")
	}
	for i, c := range rs.Leads.Credits {
		if c.Parameter == "" {
			add(fmt.Sprintf("leads.credits[%d].parameter", i), "is required")
		}
	}

	for k, v := range rs.Individual.Points {
		if _, ok := ParseKind(string(k)); !ok {
			add("individual.points", "unknown kind %q", k)
		}
		if v < 0 {
			add("individual.points."+string(k), "must be >= 0")
		}
	}
	for _, k := range rs.Dedup.Unbounded {
		if _, ok := ParseKind(string(k)); !ok {
			add("dedup.unbounded", "unknown kind %q", k)
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Marshal renders the rule table as YAML.
func (rs *RuleSet) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(rs); err != nil {
		return nil, fmt.Errorf("encode rules: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode rules: %w", err)
	}
	return buf.Bytes(), nil
}
