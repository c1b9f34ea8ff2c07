package scoring

// Snapshot is every fact a full recompute reads for one campaign. Activity
// types are referenced by name; kinds are resolved against the rule table.
type Snapshot struct {
	Campaign  int64
	Teams     []Team
	Units     []int64
	Employees []Employee

	// TeamCounts holds activity counts per (team, activity type name).
	TeamCounts map[TeamType]int
	// TeamTargets and UnitTargets hold goal values, summed over categories.
	TeamTargets map[TeamType]int
	UnitTargets map[UnitType]int
	// ActiveEmployees is the number of distinct employees with at least
	// one activity logged against each team.
	ActiveEmployees map[int64]int

	Melas         map[int64]int
	SpecialEvents map[int64]int
	PressReleases map[int64]int

	Leads          map[int64]LeadTally
	EmployeeCounts map[int64]map[string]int
	ActivityTypes  []string
}

// Team is a team with its business unit; UnitID is zero when unassigned.
type Team struct {
	ID     int64
	UnitID int64
}

// Employee is an employee with its team; TeamID is zero when unassigned.
type Employee struct {
	ID     int64
	TeamID int64
}

type TeamType struct {
	TeamID int64
	Type   string
}

type UnitType struct {
	UnitID int64
	Type   string
}

// LeadTally counts one employee's lead activities.
type LeadTally struct {
	Total     int
	Converted int
}

// Rate is the converted share of leads, zero without leads.
func (l LeadTally) Rate() float64 {
	if l.Total <= 0 {
		return 0
	}
	return float64(l.Converted) / float64(l.Total)
}
