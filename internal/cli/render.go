package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"

	"github.com/roach88/cfgmigrate/internal/executor"
	"github.com/roach88/cfgmigrate/internal/journal"
	"github.com/roach88/cfgmigrate/internal/migrate"
	"github.com/roach88/cfgmigrate/internal/model"
	"github.com/roach88/cfgmigrate/internal/planner"
	"github.com/roach88/cfgmigrate/internal/platform/httpapi"
)

// Table cells stay uncoloured so column widths line up; colour is applied
// to headings and summary lines only.

var (
	successAttrs = []color.Attribute{color.FgGreen, color.Bold}
	warningAttrs = []color.Attribute{color.FgYellow, color.Bold}
	failureAttrs = []color.Attribute{color.FgRed, color.Bold}
)

// palette hands out colours, all disabled under --no-color.
// fatih/color already disables them when stdout is not a terminal.
type palette struct {
	noColor bool
}

func (p palette) color(attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if p.noColor {
		c.DisableColor()
	}
	return c
}

func (p palette) heading() *color.Color {
	return p.color(color.FgBlue, color.Bold)
}

func (p palette) dim() *color.Color {
	return p.color(color.FgHiBlack)
}

func (p palette) status(s executor.Status) *color.Color {
	switch s {
	case executor.StatusCreated, executor.StatusUpdated:
		return p.color(successAttrs...)
	case executor.StatusSkipped:
		return p.dim()
	case executor.StatusConflict:
		return p.color(warningAttrs...)
	default:
		return p.color(failureAttrs...)
	}
}

func (p palette) action(a planner.Action) *color.Color {
	switch a {
	case planner.ActionCreate, planner.ActionUpdate:
		return p.color(color.FgGreen)
	case planner.ActionConflict:
		return p.color(color.FgYellow)
	default:
		return p.color(color.FgHiBlack)
	}
}

func newTable() *uitable.Table {
	table := uitable.New()
	table.MaxColWidth = 50
	table.Wrap = true
	return table
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// renderPlan prints the plan as a table followed by per-action counts.
func renderPlan(w io.Writer, plan *planner.Plan, pal palette) {
	_, _ = pal.heading().Fprintf(w, "Plan (%d steps)\n", len(plan.Steps))
	if len(plan.Steps) == 0 {
		fmt.Fprintln(w, "Nothing selected.")
		return
	}

	table := newTable()
	table.RightAlign(0)
	table.AddRow("#", "KIND", "SOURCE ID", "NAME", "ACTION", "DESTINATION ID", "REASON")
	for _, s := range plan.Steps {
		table.AddRow(s.Index+1, s.Key.Kind, s.Key.ID, orDash(s.Ref.Name), s.Action, orDash(s.DestinationID), s.Reason)
	}
	fmt.Fprintln(w, table)

	summary := plan.Summary()
	parts := make([]string, 0, len(planner.Actions))
	for _, a := range planner.Actions {
		parts = append(parts, pal.action(a).Sprintf("%s %d", strings.ToLower(string(a)), summary[a]))
	}
	fmt.Fprintln(w, strings.Join(parts, "  "))
}

// renderReport prints the outcomes of a run followed by per-status counts.
func renderReport(w io.Writer, report *executor.Report, pal palette) {
	title := "Report"
	if report.DryRun {
		title = "Report (dry run, nothing written)"
	}
	_, _ = pal.heading().Fprintln(w, title)
	renderOutcomes(w, report.Outcomes)
	fmt.Fprintln(w, summaryLine(report.Summary(), pal))
	if report.Cancelled {
		_, _ = pal.status(executor.StatusFailed).Fprintln(w, "Run interrupted; unstarted steps were not attempted.")
	}
	_, _ = pal.dim().Fprintf(w, "run %s\n", report.RunID)
}

func renderOutcomes(w io.Writer, outcomes []executor.Outcome) {
	if len(outcomes) == 0 {
		fmt.Fprintln(w, "No outcomes.")
		return
	}
	table := newTable()
	table.RightAlign(0)
	table.AddRow("#", "KIND", "SOURCE ID", "NAME", "STATUS", "DESTINATION ID", "ATTEMPTS", "REASON")
	for _, o := range outcomes {
		dest := o.DestinationID
		if o.Placeholder {
			dest += " (placeholder)"
		}
		attempts := "-"
		if o.Attempts > 0 {
			attempts = strconv.Itoa(o.Attempts)
		}
		table.AddRow(o.Index+1, o.Key.Kind, o.Key.ID, orDash(o.Ref.Name), o.Status, orDash(dest), attempts, o.Reason)
	}
	fmt.Fprintln(w, table)
}

func summaryLine(summary executor.Summary, pal palette) string {
	var parts []string
	for _, s := range executor.Statuses {
		if n := summary[s]; n > 0 {
			parts = append(parts, pal.status(s).Sprintf("%s %d", s, n))
		}
	}
	if len(parts) == 0 {
		return "no steps"
	}
	return strings.Join(parts, "  ")
}

// runState describes a journaled run in one word.
func runState(run journal.Run) string {
	switch {
	case run.Cancelled:
		return "interrupted"
	case !run.Finished():
		return "incomplete"
	case run.DryRun:
		return "dry-run"
	default:
		return "finished"
	}
}

func formatSummary(summary map[string]int) string {
	var parts []string
	for _, s := range executor.Statuses {
		if n := summary[string(s)]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", s, n))
		}
	}
	return orDash(strings.Join(parts, " "))
}

func renderRuns(w io.Writer, runs []journal.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	table := newTable()
	table.AddRow("RUN ID", "STARTED", "STATE", "SOURCE", "DESTINATION", "SUMMARY")
	for _, r := range runs {
		table.AddRow(r.ID, r.StartedAt.Local().Format(time.DateTime), runState(r), orDash(r.Source), orDash(r.Destination), formatSummary(r.Summary))
	}
	fmt.Fprintln(w, table)
}

func renderRun(w io.Writer, run journal.Run, outcomes []executor.Outcome, pal palette) {
	_, _ = pal.heading().Fprintf(w, "Run %s\n", run.ID)
	table := newTable()
	table.AddRow("Started:", run.StartedAt.Local().Format(time.DateTime))
	if run.Finished() {
		table.AddRow("Finished:", run.FinishedAt.Local().Format(time.DateTime))
	}
	table.AddRow("State:", runState(run))
	table.AddRow("Source:", orDash(run.Source))
	table.AddRow("Destination:", orDash(run.Destination))
	table.AddRow("Summary:", formatSummary(run.Summary))
	fmt.Fprintln(w, table)
	fmt.Fprintln(w)
	renderOutcomes(w, outcomes)
}

func renderRegions(w io.Writer, regions []httpapi.Region) {
	table := newTable()
	table.AddRow("CODE", "URL", "DESCRIPTION")
	for _, r := range regions {
		code := r.Code
		if code == httpapi.DefaultRegion {
			code += " (default)"
		}
		table.AddRow(code, r.BaseURL, r.Description)
	}
	fmt.Fprintln(w, table)
}

// renderComparison prints per-kind counts, then the objects behind each
// difference.
func renderComparison(w io.Writer, c *migrate.Comparison, pal palette) {
	_, _ = pal.heading().Fprintf(w, "Comparison of %s with %s\n", orDash(c.Source), orDash(c.Destination))
	table := newTable()
	table.RightAlign(1)
	table.RightAlign(2)
	table.RightAlign(3)
	table.RightAlign(4)
	table.AddRow("KIND", "SOURCE", "DESTINATION", "MATCHING", "DIFFERENCES")
	for _, k := range c.Kinds {
		table.AddRow(k.Kind, k.SourceCount, k.DestinationCount, k.Matching, k.Differences())
	}
	fmt.Fprintln(w, table)

	if c.Differences() == 0 {
		_, _ = pal.color(successAttrs...).Fprintln(w, "Instances are in sync.")
		return
	}
	for _, k := range c.Kinds {
		if k.Differences() == 0 {
			continue
		}
		fmt.Fprintln(w)
		_, _ = pal.heading().Fprintln(w, k.Kind)
		renderNames(w, "missing in destination", k.MissingInDestination)
		renderNames(w, "only in destination", k.MissingInSource)
		renderNames(w, "content differs", k.ContentDiffers)
		renderNames(w, "conflicts", k.Conflicts)
	}
	fmt.Fprintln(w)
	_, _ = pal.color(warningAttrs...).Fprintf(w, "%d differences\n", c.Differences())
}

func renderNames(w io.Writer, title string, names []string) {
	if len(names) == 0 {
		return
	}
	fmt.Fprintf(w, "  %s (%d):\n", title, len(names))
	for _, n := range names {
		fmt.Fprintf(w, "    %s\n", n)
	}
}

// renderObjects lists objects of one kind with a per-kind summary column.
func renderObjects(w io.Writer, kind model.Kind, objs []model.Object, pal palette) {
	_, _ = pal.heading().Fprintf(w, "%s (%d)\n", kind, len(objs))
	if len(objs) == 0 {
		fmt.Fprintln(w, "None found.")
		return
	}
	table := newTable()
	table.AddRow("ID", "NAME", "DETAILS")
	for _, o := range objs {
		table.AddRow(o.ID, orDash(o.Name), orDash(objectDetails(o)))
	}
	fmt.Fprintln(w, table)
}

// objectDetails summarizes the fields that tell objects of a kind apart.
func objectDetails(o model.Object) string {
	var parts []string
	add := func(label, v string) {
		if v != "" {
			parts = append(parts, label+"="+v)
		}
	}
	active := func() {
		if o.Has("active") {
			add("active", strconv.FormatBool(o.Bool("active")))
		}
	}
	switch o.Kind {
	case model.KindAction:
		add("type", o.String("type"))
		active()
	case model.KindList:
		add("entry_type", o.String("entry_type"))
		if entries, ok := o.Fields["entries"].([]any); ok {
			add("entries", strconv.Itoa(len(entries)))
		}
	case model.KindExclusion:
		add("scope", o.String("scope"))
		active()
	case model.KindFeed:
		add("git_url", o.String("git_url"))
		add("branch", o.String("git_branch"))
		if model.IsSystem(o) {
			parts = append(parts, "system")
		}
	case model.KindRule:
		add("type", o.String("type"))
		add("severity", o.String("severity"))
		active()
		if ids := o.Strings("action_ids"); len(ids) > 0 {
			add("actions", strconv.Itoa(len(ids)))
		}
	case model.KindRuleAction:
		add("rule", o.String("rule_id"))
		add("action", o.String("action_id"))
	case model.KindRuleExclusion:
		add("rule", o.String("rule_id"))
		add("source", o.String("source"))
	}
	return strings.Join(parts, " ")
}

// renderObject prints one object's fields in name order.
func renderObject(w io.Writer, o model.Object, pal palette) {
	_, _ = pal.heading().Fprintf(w, "%s %s\n", o.Kind, o.ID)
	table := newTable()
	if o.Name != "" {
		table.AddRow("name:", o.Name)
	}
	for _, f := range slices.Sorted(maps.Keys(o.Fields)) {
		if f == "name" {
			continue
		}
		table.AddRow(f+":", fieldValue(o.Fields[f]))
	}
	fmt.Fprintln(w, table)
	for _, k := range slices.Sorted(maps.Keys(o.Annotations)) {
		_, _ = pal.dim().Fprintf(w, "%s: %s\n", k, o.Annotations[k])
	}
}

func fieldValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "-"
	case string:
		return orDash(v)
	case []any, map[string]any:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	default:
		return fmt.Sprint(v)
	}
}
