package facts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/neevjustin/sales-portal/internal/rules"
	"github.com/neevjustin/sales-portal/internal/scoring"
)

func teamType(id int64, name string) scoring.TeamType { return scoring.TeamType{TeamID: id, Type: name} }

func unitType(id int64, name string) scoring.UnitType { return scoring.UnitType{UnitID: id, Type: name} }

func testOrg() *Org {
	return &Org{
		BusinessUnits: []BusinessUnit{{ID: 1, Name: "North"}},
		Teams: []TeamRecord{
			{ID: 10, CampaignID: 1, UnitID: 1, Code: "T10"},
			{ID: 20, CampaignID: 1, Code: "T20"},
		},
		Employees: []EmployeeRecord{
			{ID: 100, Code: "E100", TeamID: 10},
			{ID: 101, Code: "E101", TeamID: 10},
			{ID: 200, Code: "E200", TeamID: 20},
			{ID: 300, Code: "E300"},
		},
		ActivityTypes: []string{"MNP", "SIM Sales", "House Visit", "FTTH Connection"},
		Targets: []Target{
			{CampaignID: 1, Level: "team", EntityID: 10, ActivityType: "MNP", Value: 10},
			{CampaignID: 1, Level: "team", EntityID: 10, ActivityType: "MNP", Category: "urban", Value: 5},
			{CampaignID: 1, Level: "ba", EntityID: 1, ActivityType: "MNP", Value: 50},
		},
	}
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "facts.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	c := &clock{t: time.Date(2026, 8, 15, 9, 0, 0, 0, time.UTC)}
	st.now = c.now
	if _, err := st.Import(context.Background(), testOrg()); err != nil {
		t.Fatalf("import: %v", err)
	}
	return st
}

func TestImportCountsRecords(t *testing.T) {
	st, err := Open(filepath.Join(t.TempDir(), "facts.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()
	stats, err := st.Import(context.Background(), testOrg())
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	want := ImportStats{BusinessUnits: 1, Teams: 2, Employees: 4, ActivityTypes: 4, Targets: 3}
	if stats != want {
		t.Fatalf("stats = %+v, want %+v", stats, want)
	}
	// Importing twice overwrites rather than failing.
	if _, err := st.Import(context.Background(), testOrg()); err != nil {
		t.Fatalf("reimport: %v", err)
	}
}

func TestImportRejectsTargetForUnknownType(t *testing.T) {
	st := openTestStore(t)
	org := &Org{Targets: []Target{{CampaignID: 1, Level: "team", EntityID: 10, ActivityType: "Nope", Value: 1}}}
	_, err := st.Import(context.Background(), org)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("import error = %v, want ErrNotFound", err)
	}
}

func TestLoadOrgFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "org.yml")
	doc := `business_units:
  - id: 1
    name: North
teams:
  - id: 10
    campaign: 1
    unit: 1
employees:
  - id: 100
    team: 10
activity_types: [MNP]
targets:
  - campaign: 1
    level: team
    entity: 10
    activity_type: MNP
    value: 10
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	org, err := LoadOrg(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(org.Teams) != 1 || org.Teams[0].UnitID != 1 || org.Targets[0].Value != 10 {
		t.Fatalf("org = %+v", org)
	}
}

func TestLogActivityDedupsBoundedTypes(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	rs := rules.Default()

	first, err := st.LogActivity(ctx, rs, NewActivity{CampaignID: 1, EmployeeID: 100, ActivityType: "MNP", CustomerMobile: "900"})
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	if first.TeamID != 10 {
		t.Fatalf("team = %d, want employee's team 10", first.TeamID)
	}

	_, err = st.LogActivity(ctx, rs, NewActivity{CampaignID: 1, EmployeeID: 200, ActivityType: "MNP", CustomerMobile: "900"})
	if !errors.Is(err, ErrDuplicateActivity) {
		t.Fatalf("second MNP error = %v, want ErrDuplicateActivity", err)
	}

	// Same customer, other campaign or other type is fine.
	if _, err := st.LogActivity(ctx, rs, NewActivity{CampaignID: 2, EmployeeID: 100, ActivityType: "MNP", CustomerMobile: "900"}); err != nil {
		t.Fatalf("other campaign: %v", err)
	}
	if _, err := st.LogActivity(ctx, rs, NewActivity{CampaignID: 1, EmployeeID: 100, ActivityType: "SIM Sales", CustomerMobile: "900"}); err != nil {
		t.Fatalf("other type: %v", err)
	}
}

func TestLogActivityAllowsRepeatedHouseVisits(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	rs := rules.Default()
	for i := 0; i < 3; i++ {
		if _, err := st.LogActivity(ctx, rs, NewActivity{CampaignID: 1, EmployeeID: 100, ActivityType: "House Visit", CustomerMobile: "900", IsLead: true}); err != nil {
			t.Fatalf("house visit %d: %v", i, err)
		}
	}
	counts, err := st.EmployeeCounts(ctx, 1, 100)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts["House Visit"] != 3 {
		t.Fatalf("house visits = %d, want 3", counts["House Visit"])
	}
}

func TestLogActivityRejectsUnknownReferences(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	rs := rules.Default()
	if _, err := st.LogActivity(ctx, rs, NewActivity{CampaignID: 1, EmployeeID: 999, ActivityType: "MNP", CustomerMobile: "1"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown employee error = %v", err)
	}
	if _, err := st.LogActivity(ctx, rs, NewActivity{CampaignID: 1, EmployeeID: 100, ActivityType: "Door Knock", CustomerMobile: "1"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown type error = %v", err)
	}
	if _, err := st.LogActivity(ctx, rs, NewActivity{CampaignID: 1, EmployeeID: 300, ActivityType: "MNP", CustomerMobile: "1"}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("employee without team error = %v, want ErrInvalid", err)
	}
	if _, err := st.LogActivity(ctx, rs, NewActivity{CampaignID: 1, EmployeeID: 100, ActivityType: "MNP"}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("missing mobile error = %v, want ErrInvalid", err)
	}
}

func TestConversionFlipsMostRecentOpenLead(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	rs := rules.Default()

	visit := NewActivity{CampaignID: 1, EmployeeID: 100, ActivityType: "House Visit", CustomerMobile: "555", IsLead: true}
	older, err := st.LogActivity(ctx, rs, visit)
	if err != nil {
		t.Fatalf("older visit: %v", err)
	}
	newer, err := st.LogActivity(ctx, rs, visit)
	if err != nil {
		t.Fatalf("newer visit: %v", err)
	}
	// Another employee's lead for the same customer never converts.
	other, err := st.LogActivity(ctx, rs, NewActivity{CampaignID: 1, EmployeeID: 101, ActivityType: "House Visit", CustomerMobile: "555", IsLead: true})
	if err != nil {
		t.Fatalf("other visit: %v", err)
	}

	conv, err := st.LogActivity(ctx, rs, NewActivity{CampaignID: 1, EmployeeID: 100, ActivityType: "FTTH Connection", CustomerMobile: "555"})
	if err != nil {
		t.Fatalf("conversion: %v", err)
	}
	if conv.ConvertedLeadID != newer.ID {
		t.Fatalf("converted lead = %d, want most recent %d", conv.ConvertedLeadID, newer.ID)
	}

	states := map[int64]LeadState{older.ID: LeadOpen, newer.ID: LeadConverted, other.ID: LeadOpen, conv.ID: LeadNone}
	for id, want := range states {
		a, err := st.GetActivity(ctx, id)
		if err != nil {
			t.Fatalf("get %d: %v", id, err)
		}
		if got := a.State(); got != want {
			t.Fatalf("activity %d state = %s, want %s", id, got, want)
		}
	}
}

func TestConversionWithoutOpenLeadConvertsNothing(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	rs := rules.Default()
	conv, err := st.LogActivity(ctx, rs, NewActivity{CampaignID: 1, EmployeeID: 100, ActivityType: "FTTH Connection", CustomerMobile: "777"})
	if err != nil {
		t.Fatalf("conversion: %v", err)
	}
	if conv.ConvertedLeadID != 0 {
		t.Fatalf("converted lead = %d, want none", conv.ConvertedLeadID)
	}
}

func TestLeadStateTransitions(t *testing.T) {
	if s, err := LeadOpen.Convert(); err != nil || s != LeadConverted {
		t.Fatalf("open.Convert() = %s, %v", s, err)
	}
	for _, s := range []LeadState{LeadNone, LeadConverted} {
		if _, err := s.Convert(); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("%s.Convert() error = %v, want ErrInvalidTransition", s, err)
		}
	}
}

func TestDeleteActivity(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	a, err := st.LogActivity(ctx, rules.Default(), NewActivity{CampaignID: 1, EmployeeID: 100, ActivityType: "MNP", CustomerMobile: "1"})
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	deleted, err := st.DeleteActivity(ctx, a.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted.EmployeeID != 100 || deleted.CampaignID != 1 {
		t.Fatalf("deleted = %+v", deleted)
	}
	if _, err := st.DeleteActivity(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete error = %v, want ErrNotFound", err)
	}
}

func TestLoadSnapshot(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	rs := rules.Default()
	log := func(emp int64, typ, mobile string, lead bool) {
		t.Helper()
		if _, err := st.LogActivity(ctx, rs, NewActivity{CampaignID: 1, EmployeeID: emp, ActivityType: typ, CustomerMobile: mobile, IsLead: lead}); err != nil {
			t.Fatalf("log %s: %v", typ, err)
		}
	}
	log(100, "MNP", "1", false)
	log(100, "MNP", "2", false)
	log(200, "MNP", "3", false)
	log(101, "House Visit", "4", true)
	log(101, "FTTH Connection", "4", false)
	for _, ev := range []Event{
		{Kind: EventMela, CampaignID: 1, OwnerID: 10},
		{Kind: EventSpecial, CampaignID: 1, OwnerID: 1},
		{Kind: EventPressRelease, CampaignID: 1, OwnerID: 1},
		{Kind: EventPressRelease, CampaignID: 2, OwnerID: 1},
	} {
		if _, err := st.LogEvent(ctx, ev); err != nil {
			t.Fatalf("log event: %v", err)
		}
	}

	snap, err := st.LoadSnapshot(ctx, 1)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Teams) != 2 || snap.Teams[0].UnitID != 1 || snap.Teams[1].UnitID != 0 {
		t.Fatalf("teams = %+v", snap.Teams)
	}
	if len(snap.Employees) != 3 {
		t.Fatalf("employees = %+v, want the three on campaign 1 teams", snap.Employees)
	}
	if got := snap.TeamCounts[teamType(10, "MNP")]; got != 2 {
		t.Fatalf("team 10 MNP = %d, want 2", got)
	}
	if got := snap.TeamTargets[teamType(10, "MNP")]; got != 15 {
		t.Fatalf("team 10 MNP target = %d, want 15 across categories", got)
	}
	if got := snap.UnitTargets[unitType(1, "MNP")]; got != 50 {
		t.Fatalf("unit 1 MNP target = %d, want 50", got)
	}
	if got := snap.ActiveEmployees[10]; got != 2 {
		t.Fatalf("team 10 active = %d, want 2", got)
	}
	if snap.Melas[10] != 1 || snap.SpecialEvents[1] != 1 || snap.PressReleases[1] != 1 {
		t.Fatalf("events = melas %v special %v press %v", snap.Melas, snap.SpecialEvents, snap.PressReleases)
	}
	if l := snap.Leads[101]; l.Total != 1 || l.Converted != 1 {
		t.Fatalf("leads 101 = %+v, want 1/1", l)
	}
	if got := snap.EmployeeCounts[100]["MNP"]; got != 2 {
		t.Fatalf("employee 100 MNP = %d, want 2", got)
	}
}

func TestLoadSnapshotScopesEmployeesToCampaignTeams(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	other := &Org{
		Teams:     []TeamRecord{{ID: 30, CampaignID: 2, UnitID: 1, Code: "T30"}},
		Employees: []EmployeeRecord{{ID: 400, Code: "E400", TeamID: 30}},
	}
	if _, err := st.Import(ctx, other); err != nil {
		t.Fatalf("import campaign 2: %v", err)
	}

	snap, err := st.LoadSnapshot(ctx, 1)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	for _, e := range snap.Employees {
		if e.ID == 400 || e.ID == 300 {
			t.Fatalf("employee %d is not on a campaign 1 team: %+v", e.ID, snap.Employees)
		}
	}

	snap2, err := st.LoadSnapshot(ctx, 2)
	if err != nil {
		t.Fatalf("snapshot 2: %v", err)
	}
	if len(snap2.Employees) != 1 || snap2.Employees[0].TeamID != 30 {
		t.Fatalf("campaign 2 employees = %+v", snap2.Employees)
	}
}
