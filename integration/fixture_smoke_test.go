package integration_test

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/neevjustin/sales-portal/integration/harness"
)

func TestFixtureWorkspaceGateSmoke(t *testing.T) {
	binPath := harness.BuildBinary(t)
	runDir := t.TempDir()
	workspace := filepath.Join(t.TempDir(), "ws")

	fixture := filepath.Join(harness.RepoRoot(t), "integration", "fixtures", "workspace-campaign2")
	harness.CopyDir(t, fixture, workspace)

	mustRun := func(args ...string) string {
		t.Helper()
		full := append(args, "--workspace", workspace)
		stdout, stderr, code := harness.Run(t, binPath, runDir, full)
		if code != 0 {
			t.Fatalf("salesportal %s exit code %d\nstdout:\n%s\nstderr:\n%s", strings.Join(args, " "), code, stdout, stderr)
		}
		return stdout
	}

	mustRun("org", "import", "org.yml")
	// campaign 2 comes from the fixture config.yml.
	mustRun("activity", "log", "--employee", "7001", "--type", "SIM Sales", "--mobile", "9700000001")

	out := mustRun("scores", "--campaign", "2", "--level", "business_unit", "--id", "7")
	if got := pointsFor(out, "SIM Sales"); got != "0.00" {
		t.Fatalf("unit 7 SIM Sales = %q, want gated 0.00\n%s", got, out)
	}
	out = mustRun("scores", "--campaign", "2", "--level", "team", "--id", "70")
	if got := pointsFor(out, "SIM Sales"); got != "2.00" {
		t.Fatalf("team 70 SIM Sales = %q, want 2.00\n%s", got, out)
	}

	out = mustRun("audit", "events", "--type", "unit_gate_applied")
	if !strings.Contains(out, `"parameter":"SIM Sales"`) {
		t.Fatalf("gate audit events = %q", out)
	}

	stdout, stderr, code := harness.RunWithEnv(t, binPath, runDir,
		[]string{"leaderboard", "--level", "team", "--workspace", workspace},
		map[string]string{"SALESPORTAL_CAMPAIGN": "3"},
	)
	if code != 0 {
		t.Fatalf("leaderboard exit code %d\nstdout:\n%s\nstderr:\n%s", code, stdout, stderr)
	}
	if lines := strings.Split(strings.TrimSpace(stdout), "\n"); len(lines) != 1 {
		t.Fatalf("campaign 3 leaderboard should be empty, got:\n%s", stdout)
	}

	requireAuditEvents(t, filepath.Join(workspace, "audit", "audit.sqlite"), []string{
		"org_import_finished",
		"recompute_full",
		"unit_gate_applied",
	})
}

// pointsFor returns the POINTS column of the scores table row for parameter.
func pointsFor(table, parameter string) string {
	for _, line := range strings.Split(table, "\n") {
		if !strings.HasPrefix(line, parameter+" ") {
			continue
		}
		fields := strings.Fields(line)
		return fields[len(fields)-1]
	}
	return ""
}
