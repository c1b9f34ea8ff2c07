package rules

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// CurrentVersion is the rule table schema version written by Default.
const CurrentVersion = 1

// Kind is the closed set of activity kinds the scoring rules understand.
type Kind string

const (
	KindMNP             Kind = "mnp"
	KindSIMSales        Kind = "sim_sales"
	KindSIMUpgrade      Kind = "4g_sim_upgradation"
	KindBNUConnection   Kind = "bnu_connection"
	KindUrbanConnection Kind = "urban_connection"
	KindHouseVisit      Kind = "house_visit"
	KindFTTHConnection  Kind = "ftth_connection"
)

var allKinds = []Kind{
	KindMNP,
	KindSIMSales,
	KindSIMUpgrade,
	KindBNUConnection,
	KindUrbanConnection,
	KindHouseVisit,
	KindFTTHConnection,
}

// Kinds returns every known activity kind in a stable order.
func Kinds() []Kind {
	out := make([]Kind, len(allKinds))
	copy(out, allKinds)
	return out
}

// ParseKind maps a string to a Kind.
func ParseKind(value string) (Kind, bool) {
	value = strings.TrimSpace(value)
	for _, k := range allKinds {
		if string(k) == value {
			return k, true
		}
	}
	return "", false
}

// RuleSet is a versioned scoring rule table.
type RuleSet struct {
	Version       int             `yaml:"version"`
	ActivityTypes map[string]Kind `yaml:"activity_types"`
	Team          TeamRules       `yaml:"team"`
	Unit          UnitRules       `yaml:"unit"`
	Leads         LeadRules       `yaml:"leads"`
	Individual    IndividualRules `yaml:"individual"`
	Dedup         DedupRules      `yaml:"dedup"`
}

// TeamRules configures team-level proportional scoring.
type TeamRules struct {
	Parameters  []TeamParameter `yaml:"parameters"`
	Involvement InvolvementRule `yaml:"involvement"`
	Melas       MelaRule        `yaml:"melas"`
}

// TeamParameter scores one activity kind against the team target.
type TeamParameter struct {
	Parameter string  `yaml:"parameter"`
	Kind      Kind    `yaml:"kind"`
	MaxPoints float64 `yaml:"max_points"`
}

type InvolvementRule struct {
	Parameter string  `yaml:"parameter"`
	MaxPoints float64 `yaml:"max_points"`
}

// MelaRule scores the team's mela count against a fixed target.
type MelaRule struct {
	Parameter string  `yaml:"parameter"`
	Target    int     `yaml:"target"`
	MaxPoints float64 `yaml:"max_points"`
}

// UnitRules configures business-unit aggregation and bonuses.
type UnitRules struct {
	Gate          GateRule `yaml:"gate"`
	SpecialEvents StepRule `yaml:"special_events"`
	PressReleases StepRule `yaml:"press_releases"`
}

// GateRule zeroes the unit value of Parameter when unit achievement over
// unit target falls below Threshold.
type GateRule struct {
	Parameter string  `yaml:"parameter"`
	Threshold float64 `yaml:"threshold"`
}

// StepRule awards Points once a count reaches MinCount.
type StepRule struct {
	Parameter string  `yaml:"parameter"`
	MinCount  int     `yaml:"min_count"`
	Points    float64 `yaml:"points"`
}

// LeadRules configures lead conversion credit.
type LeadRules struct {
	LeadKind       Kind         `yaml:"lead_kind"`
	ConversionKind Kind         `yaml:"conversion_kind"`
	Threshold      float64      `yaml:"threshold"`
	Credits        []LeadCredit `yaml:"credits"`
}

type LeadCredit struct {
	Parameter string  `yaml:"parameter"`
	Points    float64 `yaml:"points"`
}

// IndividualRules holds flat per-activity point values.
type IndividualRules struct {
	Points map[Kind]float64 `yaml:"points"`
}

// DedupRules lists kinds exempt from the per-customer uniqueness rule.
type DedupRules struct {
	Unbounded []Kind `yaml:"unbounded"`
}

// Default returns the built-in rule table.
func Default() *RuleSet {
	return &RuleSet{
		Version: CurrentVersion,
		ActivityTypes: map[string]Kind{
			"MNP":                KindMNP,
			"SIM Sales":          KindSIMSales,
			"4G SIM Upgradation": KindSIMUpgrade,
			"BNU connections":    KindBNUConnection,
			"Urban connections":  KindUrbanConnection,
			"House Visit":        KindHouseVisit,
			"FTTH Connection":    KindFTTHConnection,
		},
		Team: TeamRules{
			Parameters: []TeamParameter{
				{Parameter: "MNP", Kind: KindMNP, MaxPoints: 30},
				{Parameter: "4G SIM Upgradation", Kind: KindSIMUpgrade, MaxPoints: 5},
				{Parameter: "BNU connections", Kind: KindBNUConnection, MaxPoints: 10},
				{Parameter: "Urban connections", Kind: KindUrbanConnection, MaxPoints: 5},
				{Parameter: "SIM Sales", Kind: KindSIMSales, MaxPoints: 20},
			},
			Involvement: InvolvementRule{Parameter: "Employee involvement", MaxPoints: 10},
			Melas:       MelaRule{Parameter: "No of Melas", Target: 10, MaxPoints: 4},
		},
		Unit: UnitRules{
			Gate:          GateRule{Parameter: "SIM Sales", Threshold: 0.40},
			SpecialEvents: StepRule{Parameter: "Special Events", MinCount: 1, Points: 5},
			PressReleases: StepRule{Parameter: "Bonus Points", MinCount: 3, Points: 15},
		},
		Leads: LeadRules{
			LeadKind:       KindHouseVisit,
			ConversionKind: KindFTTHConnection,
			Threshold:      0.10,
			Credits: []LeadCredit{
				{Parameter: "No of Houses visited", Points: 4},
				{Parameter: "BNU leads", Points: 1},
				{Parameter: "Urban leads", Points: 1},
			},
		},
		Individual: IndividualRules{
			Points: map[Kind]float64{
				KindMNP:             30,
				KindSIMSales:        20,
				KindSIMUpgrade:      5,
				KindBNUConnection:   10,
				KindUrbanConnection: 5,
				KindHouseVisit:      4,
			},
		},
		Dedup: DedupRules{Unbounded: []Kind{KindHouseVisit}},
	}
}

// Load reads and validates a rule table from path.
func Load(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}
	return Parse(data, path)
}

// KindOf resolves an activity type name to its kind.
func (rs *RuleSet) KindOf(name string) (Kind, bool) {
	k, ok := rs.ActivityTypes[name]
	return k, ok
}

// NamesOf returns every activity type name mapped to kind, sorted.
func (rs *RuleSet) NamesOf(kind Kind) []string {
	var names []string
	for name, k := range rs.ActivityTypes {
		if k == kind {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// PointsFor returns the flat per-activity value for kind, zero when unlisted.
func (rs *RuleSet) PointsFor(kind Kind) float64 {
	return rs.Individual.Points[kind]
}

// IsUnbounded reports whether kind may be logged repeatedly for one customer.
func (rs *RuleSet) IsUnbounded(kind Kind) bool {
	for _, k := range rs.Dedup.Unbounded {
		if k == kind {
			return true
		}
	}
	return false
}

// GateKind returns the activity kind behind the gated unit parameter.
func (rs *RuleSet) GateKind() (Kind, bool) {
	for _, p := range rs.Team.Parameters {
		if p.Parameter == rs.Unit.Gate.Parameter {
			return p.Kind, true
		}
	}
	return "", false
}
