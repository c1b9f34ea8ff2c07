package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/neevjustin/sales-portal/internal/audit"
	"github.com/neevjustin/sales-portal/internal/config"
	"github.com/neevjustin/sales-portal/internal/daemon"
	"github.com/neevjustin/sales-portal/internal/facts"
	"github.com/neevjustin/sales-portal/internal/rules"
	"github.com/neevjustin/sales-portal/internal/scores"
	"github.com/neevjustin/sales-portal/internal/scoring"
	"github.com/neevjustin/sales-portal/internal/workspace"
)

const appName = "salesportal"

func main() {
	flag.String("workspace", "", "Path to workspace root")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s: sales incentive scoring\n\n", appName)
		fmt.Fprintf(os.Stderr, "Usage:\n  %s [command] [flags]\n\n", appName)
		fmt.Fprintln(os.Stderr, "Commands:")
		fmt.Fprintln(os.Stderr, "  init         Initialize a new workspace")
		fmt.Fprintln(os.Stderr, "  org          Import reference data")
		fmt.Fprintln(os.Stderr, "  activity     Log, delete or list activities")
		fmt.Fprintln(os.Stderr, "  event        Log melas, special events and press releases")
		fmt.Fprintln(os.Stderr, "  recompute    Recompute scores now")
		fmt.Fprintln(os.Stderr, "  leaderboard  Show a ranking")
		fmt.Fprintln(os.Stderr, "  scores       Show one entity's score rows")
		fmt.Fprintln(os.Stderr, "  rules        Validate, show or diff rule tables")
		fmt.Fprintln(os.Stderr, "  daemon       Run the daemon or show its run ledger")
		fmt.Fprintln(os.Stderr, "  audit        List audit events")
		fmt.Fprintln(os.Stderr, "  help         Show this help")
		fmt.Fprintln(os.Stderr, "\nFlags:")
		flag.PrintDefaults()
	}

	workspacePath, remaining, err := extractWorkspaceFlag(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	args := remaining
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		flag.Usage()
		return
	}

	commands := map[string]func([]string, string) error{
		"init":        runInit,
		"org":         runOrg,
		"activity":    runActivity,
		"event":       runEvent,
		"recompute":   runRecompute,
		"leaderboard": runLeaderboard,
		"scores":      runScores,
		"rules":       runRules,
		"daemon":      runDaemon,
		"audit":       runAudit,
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		flag.Usage()
		os.Exit(1)
	}
	if err := cmd(args[1:], workspacePath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func extractWorkspaceFlag(args []string) (string, []string, error) {
	var workspacePath string
	remaining := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--workspace" {
			if i+1 >= len(args) {
				return "", nil, fmt.Errorf("--workspace requires a value")
			}
			workspacePath = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--workspace=") {
			workspacePath = strings.TrimPrefix(arg, "--workspace=")
			continue
		}
		remaining = append(remaining, arg)
	}
	return workspacePath, remaining, nil
}

func resolveWorkspace(root string) (*workspace.Workspace, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("--workspace is required")
	}
	ws, err := workspace.Resolve(root)
	if err != nil {
		return nil, err
	}
	if err := ws.EnsureDirs(); err != nil {
		return nil, err
	}
	return ws, nil
}

// openDaemon opens the workspace stores without starting any loop. CLI
// commands log warnings only; the daemon logs JSON.
func openDaemon(workspacePath string, logger *slog.Logger) (*daemon.Daemon, error) {
	ws, err := resolveWorkspace(workspacePath)
	if err != nil {
		return nil, err
	}
	settings, err := config.Load(ws.ConfigPath)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}
	return daemon.New(daemon.Config{Workspace: ws, Settings: settings, Logger: logger})
}

// auditCommand writes <name>_started now and returns a func that writes
// <name>_finished with the final error, if any.
func auditCommand(logger *audit.Logger, name string, payload map[string]any) func(*error) {
	if err := logger.LogEvent("cli", name+"_started", payload); err != nil {
		fmt.Fprintln(os.Stderr, "audit log failed:", err)
	}
	return func(errp *error) {
		finish := make(map[string]any, len(payload)+1)
		for k, v := range payload {
			finish[k] = v
		}
		if errp != nil && *errp != nil {
			finish["error"] = (*errp).Error()
		}
		_ = logger.LogEvent("cli", name+"_finished", finish)
	}
}

func runInit(args []string, workspacePath string) (err error) {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	withSample := fs.Bool("sample-org", true, "Write a sample org.yml")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(workspacePath) == "" {
		return fmt.Errorf("--workspace is required")
	}

	root, err := workspace.ResolveRoot(workspacePath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("create workspace root: %w", err)
	}
	ws, err := workspace.Resolve(root)
	if err != nil {
		return err
	}
	if err := ws.EnsureDirs(); err != nil {
		return err
	}

	logger := audit.NewLogger(ws.AuditDBPath)
	finish := auditCommand(logger, "workspace_init", map[string]any{"workspace": ws.Root})
	defer finish(&err)

	defaults, err := config.Default().Marshal()
	if err != nil {
		return err
	}
	if err := writeFileIfMissing(ws.ConfigPath, configHeader+string(defaults)); err != nil {
		return err
	}
	table, err := rules.Default().Marshal()
	if err != nil {
		return err
	}
	if err := writeFileIfMissing(ws.RulesPath, rulesHeader+string(table)); err != nil {
		return err
	}
	if *withSample {
		if err := writeFileIfMissing(filepath.Join(ws.Root, "org.yml"), sampleOrgTemplate); err != nil {
			return err
		}
	}

	fmt.Fprintf(os.Stdout, "Initialized workspace: %s\n", ws.Root)
	fmt.Fprintln(os.Stdout, "Next steps:")
	fmt.Fprintf(os.Stdout, "  %s org import --workspace %s org.yml\n", appName, ws.Root)
	fmt.Fprintf(os.Stdout, "  %s activity log --workspace %s --employee 1001 --type MNP --mobile 9800000001\n", appName, ws.Root)
	fmt.Fprintf(os.Stdout, "  %s leaderboard --workspace %s --level team\n", appName, ws.Root)
	return nil
}

func writeFileIfMissing(path string, contents string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	return os.WriteFile(path, []byte(contents), 0o644)
}

func runOrg(args []string, workspacePath string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		return fmt.Errorf("%s org: missing subcommand", appName)
	}
	switch args[0] {
	case "import":
		return runOrgImport(args[1:], workspacePath)
	default:
		return fmt.Errorf("%s org: unknown subcommand %q", appName, args[0])
	}
}

func runOrgImport(args []string, workspacePath string) (err error) {
	fs := flag.NewFlagSet("org import", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: %s org import <org.yml>", appName)
	}

	d, err := openDaemon(workspacePath, nil)
	if err != nil {
		return err
	}
	defer d.Close()

	path, err := d.Workspace.ResolvePath(fs.Arg(0))
	if err != nil {
		return err
	}
	finish := auditCommand(d.AuditLogger, "org_import", map[string]any{"file": path})
	defer finish(&err)

	org, err := facts.LoadOrg(path)
	if err != nil {
		return err
	}
	stats, err := d.Facts.Import(context.Background(), org)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Imported %d business units, %d teams, %d employees, %d activity types, %d targets\n",
		stats.BusinessUnits, stats.Teams, stats.Employees, stats.ActivityTypes, stats.Targets)
	return nil
}

func runActivity(args []string, workspacePath string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		return fmt.Errorf("%s activity: missing subcommand", appName)
	}
	switch args[0] {
	case "log":
		return runActivityLog(args[1:], workspacePath)
	case "delete":
		return runActivityDelete(args[1:], workspacePath)
	case "list":
		return runActivityList(args[1:], workspacePath)
	default:
		return fmt.Errorf("%s activity: unknown subcommand %q", appName, args[0])
	}
}

func runActivityLog(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("activity log", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	campaign := fs.Int64("campaign", 0, "Campaign id (default: config campaign)")
	employee := fs.Int64("employee", 0, "Employee id")
	activityType := fs.String("type", "", "Activity type name")
	mobile := fs.String("mobile", "", "Customer mobile number")
	lead := fs.Bool("lead", false, "Mark the activity as a lead")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *employee == 0 || *activityType == "" {
		return fmt.Errorf("--employee and --type are required")
	}

	d, err := openDaemon(workspacePath, nil)
	if err != nil {
		return err
	}
	defer d.Close()
	if *campaign == 0 {
		*campaign = d.Settings.Campaign
	}

	ctx := context.Background()
	a, err := d.Facts.LogActivity(ctx, d.Engine.Rules(), facts.NewActivity{
		CampaignID:     *campaign,
		EmployeeID:     *employee,
		ActivityType:   *activityType,
		CustomerMobile: *mobile,
		IsLead:         *lead,
	})
	if err != nil {
		return err
	}
	_, recomputeErr := d.Coordinator.ActivityLogged(ctx, a.EmployeeID, a.CampaignID)
	d.Coordinator.Wait()
	if recomputeErr != nil {
		return fmt.Errorf("activity %d logged but rescoring failed: %w", a.ID, recomputeErr)
	}

	total, err := d.Scores.Total(ctx, a.CampaignID, scores.Employee, a.EmployeeID)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Logged activity %d (%s, team %d, lead=%s)\n", a.ID, a.ActivityType, a.TeamID, a.State())
	if a.ConvertedLeadID != 0 {
		fmt.Fprintf(os.Stdout, "Converted lead activity %d\n", a.ConvertedLeadID)
	}
	fmt.Fprintf(os.Stdout, "Employee %d total: %.2f\n", a.EmployeeID, total)
	return nil
}

func runActivityDelete(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("activity delete", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: %s activity delete <id>", appName)
	}
	id, err := strconv.ParseInt(fs.Arg(0), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid activity id %q", fs.Arg(0))
	}

	d, err := openDaemon(workspacePath, nil)
	if err != nil {
		return err
	}
	defer d.Close()

	ctx := context.Background()
	a, err := d.Facts.DeleteActivity(ctx, id)
	if err != nil {
		return err
	}
	_, recomputeErr := d.Coordinator.ActivityDeleted(ctx, a.EmployeeID, a.CampaignID)
	d.Coordinator.Wait()
	if recomputeErr != nil {
		return fmt.Errorf("activity %d deleted but rescoring failed: %w", id, recomputeErr)
	}
	fmt.Fprintf(os.Stdout, "Deleted activity %d (%s by employee %d)\n", a.ID, a.ActivityType, a.EmployeeID)
	return nil
}

func runActivityList(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("activity list", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	campaign := fs.Int64("campaign", 0, "Campaign id (default: config campaign)")
	employee := fs.Int64("employee", 0, "Only this employee")
	limit := fs.Int("limit", 20, "Maximum rows")
	if err := fs.Parse(args); err != nil {
		return err
	}

	d, err := openDaemon(workspacePath, nil)
	if err != nil {
		return err
	}
	defer d.Close()
	if *campaign == 0 {
		*campaign = d.Settings.Campaign
	}

	list, err := d.Facts.ListActivities(context.Background(), *campaign, *employee, *limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tEMPLOYEE\tTEAM\tTYPE\tMOBILE\tLEAD\tLOGGED")
	for _, a := range list {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%s\t%s\t%s\t%s\n",
			a.ID, a.EmployeeID, a.TeamID, a.ActivityType, a.CustomerMobile, a.State(), a.LoggedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func runEvent(args []string, workspacePath string) error {
	if len(args) == 0 || args[0] != "log" {
		return fmt.Errorf("%s event: missing subcommand (log)", appName)
	}
	fs := flag.NewFlagSet("event log", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	kind := fs.String("kind", "", "Event kind: mela, special or press")
	campaign := fs.Int64("campaign", 0, "Campaign id (default: config campaign)")
	owner := fs.Int64("owner", 0, "Team id for melas, business unit id otherwise")
	employee := fs.Int64("employee", 0, "Reporting employee")
	location := fs.String("location", "", "Where the event was held")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	ek, err := facts.ParseEventKind(*kind)
	if err != nil {
		return err
	}

	d, err := openDaemon(workspacePath, nil)
	if err != nil {
		return err
	}
	defer d.Close()
	if *campaign == 0 {
		*campaign = d.Settings.Campaign
	}

	id, err := d.Facts.LogEvent(context.Background(), facts.Event{
		Kind:       ek,
		CampaignID: *campaign,
		OwnerID:    *owner,
		EmployeeID: *employee,
		Location:   *location,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Logged %s event %d\n", ek, id)
	return nil
}

func runRecompute(args []string, workspacePath string) (err error) {
	fs := flag.NewFlagSet("recompute", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	campaign := fs.Int64("campaign", 0, "Campaign id (default: config campaign)")
	employee := fs.Int64("employee", 0, "Rescore only this employee's individual rows")
	dryRun := fs.Bool("dry-run", false, "Show the diff against stored scores without writing")
	asJSON := fs.Bool("json", false, "Print the summary as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	d, err := openDaemon(workspacePath, nil)
	if err != nil {
		return err
	}
	defer d.Close()
	if *campaign == 0 {
		*campaign = d.Settings.Campaign
	}
	ctx := context.Background()

	if *dryRun {
		diff, sum, err := d.Engine.Preview(ctx, *campaign)
		if err != nil {
			return err
		}
		if diff == "" {
			fmt.Fprintln(os.Stdout, "Stored scores are current.")
		} else {
			fmt.Fprint(os.Stdout, diff)
		}
		printGates(sum.Gates)
		return nil
	}

	finish := auditCommand(d.AuditLogger, "recompute", map[string]any{
		"campaign": *campaign,
		"employee": *employee,
	})
	defer finish(&err)

	if *employee != 0 {
		sum, err := d.Engine.RecomputeIncremental(ctx, *employee, *campaign)
		if err != nil {
			return err
		}
		if *asJSON {
			return printJSON(sum)
		}
		fmt.Fprintf(os.Stdout, "Employee %d: %d rows\n", *employee, sum.EmployeeRows)
		return nil
	}

	sum, err := d.Coordinator.Manual(ctx, *campaign)
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(sum)
	}
	fmt.Fprintf(os.Stdout, "Campaign %d: %d team rows, %d unit rows, %d employee rows in %s\n",
		sum.Campaign, sum.TeamRows, sum.UnitRows, sum.EmployeeRows, sum.Duration.Round(time.Millisecond))
	printGates(sum.Gates)
	if len(sum.UnknownTypes) > 0 {
		fmt.Fprintf(os.Stdout, "Activity types with no rule kind: %s\n", strings.Join(sum.UnknownTypes, ", "))
	}
	return nil
}

func runLeaderboard(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("leaderboard", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	campaign := fs.Int64("campaign", 0, "Campaign id (default: config campaign)")
	level := fs.String("level", "employee", "employee, team or business_unit")
	limit := fs.Int("limit", 10, "Maximum rows (0 for all)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	et, err := scores.ParseEntityType(*level)
	if err != nil {
		return err
	}

	d, err := openDaemon(workspacePath, nil)
	if err != nil {
		return err
	}
	defer d.Close()
	if *campaign == 0 {
		*campaign = d.Settings.Campaign
	}

	ranking, err := d.Scores.Ranking(context.Background(), *campaign, et)
	if err != nil {
		return err
	}
	if *limit > 0 && *limit < len(ranking) {
		ranking = ranking[:*limit]
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "RANK\t%s\tPOINTS\n", strings.ToUpper(string(et)))
	for _, s := range ranking {
		fmt.Fprintf(tw, "%d\t%d\t%.2f\n", s.Rank, s.EntityID, s.Points)
	}
	return tw.Flush()
}

func runScores(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("scores", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	campaign := fs.Int64("campaign", 0, "Campaign id (default: config campaign)")
	level := fs.String("level", "employee", "employee, team or business_unit")
	id := fs.Int64("id", 0, "Entity id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == 0 {
		return fmt.Errorf("--id is required")
	}
	et, err := scores.ParseEntityType(*level)
	if err != nil {
		return err
	}

	d, err := openDaemon(workspacePath, nil)
	if err != nil {
		return err
	}
	defer d.Close()
	if *campaign == 0 {
		*campaign = d.Settings.Campaign
	}

	rows, err := d.Scores.Rows(context.Background(), *campaign, et, *id)
	if err != nil {
		return err
	}
	var total float64
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PARAMETER\tPOINTS")
	for _, r := range rows {
		total += r.Points
		fmt.Fprintf(tw, "%s\t%.2f\n", r.Parameter, r.Points)
	}
	fmt.Fprintf(tw, "TOTAL\t%.2f\n", total)
	return tw.Flush()
}

func runRules(args []string, workspacePath string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		return fmt.Errorf("%s rules: missing subcommand", appName)
	}
	switch args[0] {
	case "validate":
		return runRulesValidate(args[1:], workspacePath)
	case "show":
		return runRulesShow(args[1:], workspacePath)
	case "diff":
		return runRulesDiff(args[1:])
	default:
		return fmt.Errorf("%s rules: unknown subcommand %q", appName, args[0])
	}
}

func runRulesValidate(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("rules validate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	path := fs.Arg(0)
	if path == "" {
		ws, err := resolveWorkspace(workspacePath)
		if err != nil {
			return err
		}
		path = ws.RulesPath
	}
	if _, err := rules.Load(path); err != nil {
		var verrs rules.ValidationErrors
		if errors.As(err, &verrs) {
			for _, v := range verrs {
				fmt.Fprintln(os.Stderr, v.Error())
			}
			return fmt.Errorf("%s: %d validation errors", path, len(verrs))
		}
		return err
	}
	fmt.Fprintf(os.Stdout, "%s: ok\n", path)
	return nil
}

func runRulesShow(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("rules show", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	kinds := fs.Bool("kinds", false, "List activity kinds with their mapped type names")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ws, err := resolveWorkspace(workspacePath)
	if err != nil {
		return err
	}
	rs, err := daemon.LoadRules(ws.RulesPath)
	if err != nil {
		return err
	}
	if *kinds {
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "KIND\tPOINTS\tACTIVITY TYPES")
		for _, k := range rules.Kinds() {
			fmt.Fprintf(tw, "%s\t%.2f\t%s\n", k, rs.PointsFor(k), strings.Join(rs.NamesOf(k), ", "))
		}
		return tw.Flush()
	}
	out, err := rs.Marshal()
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(out)
	return err
}

func runRulesDiff(args []string) error {
	fs := flag.NewFlagSet("rules diff", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 || fs.NArg() > 2 {
		return fmt.Errorf("usage: %s rules diff <from.yml> [to.yml] (to defaults to the built-in table)", appName)
	}
	from, err := rules.Load(fs.Arg(0))
	if err != nil {
		return err
	}
	toName, to := "built-in", rules.Default()
	if fs.NArg() == 2 {
		toName = fs.Arg(1)
		if to, err = rules.Load(toName); err != nil {
			return err
		}
	}
	diff, err := rules.Diff(fs.Arg(0), from, toName, to)
	if err != nil {
		return err
	}
	if diff == "" {
		fmt.Fprintln(os.Stdout, "Rule tables are identical.")
		return nil
	}
	fmt.Fprint(os.Stdout, diff)
	return nil
}

func runDaemon(args []string, workspacePath string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		return fmt.Errorf("%s daemon: missing subcommand", appName)
	}

	switch args[0] {
	case "run":
		return runDaemonRun(args[1:], workspacePath)
	case "status":
		return runDaemonStatus(args[1:], workspacePath)
	default:
		return fmt.Errorf("%s daemon: unknown subcommand %q", appName, args[0])
	}
}

func runDaemonRun(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("daemon run", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	listen := fs.String("listen", "", "Listen address (default: config listen_addr)")
	interval := fs.Duration("interval", 0, "Recompute interval (default: config recompute_interval)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ws, err := resolveWorkspace(workspacePath)
	if err != nil {
		return err
	}
	settings, err := config.Load(ws.ConfigPath)
	if err != nil {
		return err
	}
	if *listen != "" {
		settings.ListenAddr = *listen
	}
	if *interval > 0 {
		settings.RecomputeInterval = *interval
	}
	if err := settings.Validate(); err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: settings.SlogLevel()}))
	slog.SetDefault(logger)

	d, err := daemon.New(daemon.Config{Workspace: ws, Settings: settings, Logger: logger})
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	logger.Info("starting daemon",
		"workspace", ws.Root,
		"campaign", settings.Campaign,
		"interval", settings.RecomputeInterval.String(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return d.Run(ctx)
}

func runDaemonStatus(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("daemon status", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	limit := fs.Int("limit", 10, "Number of recent runs")
	runID := fs.String("run", "", "Show one run with its summary")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ws, err := resolveWorkspace(workspacePath)
	if err != nil {
		return err
	}
	store, err := daemon.Open(ws.StateDBPath)
	if err != nil {
		return fmt.Errorf("open daemon store: %w", err)
	}
	defer store.Close()

	if *runID != "" {
		run, err := store.GetRun(*runID)
		if err != nil {
			return err
		}
		return printJSON(run)
	}

	running, err := store.CountRunning()
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Running passes: %d\n\n", running)

	runs, err := store.ListRuns(*limit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	fmt.Fprintf(os.Stdout, "Recent runs (last %d):\n", len(runs))
	for _, run := range runs {
		var finishedStr string
		if run.FinishedAt != nil {
			finishedStr = run.FinishedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(os.Stdout, "  %s [%s/%s] campaign=%d status=%s started=%s finished=%s\n",
			run.ID, run.Trigger, run.Mode, run.CampaignID, run.Status, run.StartedAt.Format(time.RFC3339), finishedStr)
		if run.Error != "" {
			fmt.Fprintf(os.Stdout, "    error: %s\n", run.Error)
		}
	}
	return nil
}

func runAudit(args []string, workspacePath string) error {
	if len(args) == 0 || args[0] != "events" {
		return fmt.Errorf("%s audit: missing subcommand (events)", appName)
	}
	fs := flag.NewFlagSet("audit events", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	eventType := fs.String("type", "", "Only events of this type (e.g. unit_gate_applied)")
	limit := fs.Int("limit", 20, "Maximum events")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	ws, err := resolveWorkspace(workspacePath)
	if err != nil {
		return err
	}
	events, err := audit.NewLogger(ws.AuditDBPath).Events(*eventType, *limit)
	if err != nil {
		return err
	}
	for _, ev := range events {
		fmt.Fprintf(os.Stdout, "%s %-8s %-24s %s\n", ev.Timestamp.Format(time.RFC3339), ev.Actor, ev.Type, ev.PayloadJSON)
	}
	return nil
}

func printGates(gates []scoring.GateDecision) {
	for _, g := range gates {
		if !g.Zeroed {
			continue
		}
		fmt.Fprintf(os.Stdout, "Gate: unit %d %q zeroed (achieved %d of %d, ratio %.2f < %.2f, earned %.2f)\n",
			g.UnitID, g.Parameter, g.Achieved, g.Target, g.Ratio, g.Threshold, g.RawPoints)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
