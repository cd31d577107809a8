package templates

import (
	"context"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/a-h/templ"

	"github.com/cristian-data-science/kpi-punta-de-lobos-sub001/internal/core"
)

// PreviewItem is one line of the recent previews list.
type PreviewItem struct {
	ID        string
	FileName  string
	Profile   string
	Accepted  bool
	Committed bool
	Records   int
	Errors    int
	Warnings  int
	CreatedAt time.Time
}

// ReviewView is the data behind a preview review page.
type ReviewView struct {
	ID        string
	Result    *core.Result
	Committed bool
	// CanCommit is false when the server has no database.
	CanCommit bool
}

// PreviewList renders recent previews and the upload form.
func PreviewList(items []PreviewItem, profiles []string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &page{w: w}
		p.raw(`<h1>Roster imports</h1>`)
		p.raw(`<form method="post" action="/imports" enctype="multipart/form-data">`)
		p.raw(`<input type="file" name="file" accept=".xlsx,.xlsm,.xls,.csv" required> `)
		p.raw(`<select name="profile"><option value="">auto-detect</option>`)
		for _, name := range profiles {
			p.rawf(`<option value="%s">%s</option>`, name, name)
		}
		p.raw(`</select> <button type="submit">Preview</button></form>`)

		if len(items) == 0 {
			p.raw(`<p>No previews yet.</p>`)
			return p.err
		}
		p.raw(`<table><thead><tr><th>File</th><th>Profile</th><th>Status</th>` +
			`<th>Records</th><th>Errors</th><th>Warnings</th><th>Created</th></tr></thead><tbody>`)
		for _, it := range items {
			p.rawf(`<tr><td><a href="/imports/%s">%s</a></td><td>%s</td><td>%s</td>`,
				it.ID, it.FileName, it.Profile, statusLabel(it.Accepted, it.Committed))
			p.rawf(`<td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>`,
				itoa(it.Records), itoa(it.Errors), itoa(it.Warnings), it.CreatedAt.Format("2006-01-02 15:04"))
		}
		p.raw(`</tbody></table>`)
		return p.err
	})
}

func statusLabel(accepted, committed bool) string {
	switch {
	case committed:
		return "committed"
	case accepted:
		return "accepted"
	default:
		return "rejected"
	}
}

// Review renders the full outcome of one preview.
func Review(v ReviewView) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &page{w: w}
		res := v.Result
		p.rawf(`<h1>%s</h1>`, res.FileName)
		p.rawf(`<p>Profile <strong>%s</strong>`, res.Profile)
		if res.AutoSelected {
			p.rawf(` (auto-selected, score %s)`, itoa(res.ProfileScore))
		}
		p.raw(`</p>`)

		switch {
		case res.Failure != nil:
			p.child(ctx, ErrorAlert(res.Failure.Message, res.Failure.Hint, res.Failure.Code))
		case v.Committed:
			p.raw(`<div class="alert ok">Import committed.</div>`)
		default:
			p.raw(`<div class="alert ok">Import accepted.`)
			if v.CanCommit {
				p.rawf(`<form method="post" action="/imports/%s/commit"><button type="submit">Commit</button></form>`, v.ID)
			}
			p.raw(`</div>`)
		}

		summary(p, res.Summary)
		entries(p, "Errors", "error", res.Diagnostics.Errors)
		entries(p, "Warnings", "warn", res.Diagnostics.Warnings)
		corrections(p, res.Diagnostics.CorrectionSummary)
		records(p, res.Records)
		workers(p, res.WorkerStats)
		return p.err
	})
}

func summary(p *page, s core.Summary) {
	p.raw(`<h2>Summary</h2><table><tbody>`)
	rows := []struct {
		label string
		value int
	}{
		{"Data rows", s.DataRows},
		{"Shifts", s.Records},
		{"Cancelled", s.Cancelled},
		{"Skipped", s.Skipped},
		{"Excluded by errors", s.ExcludedByErrors},
		{"Coverage gaps", s.CoverageGaps},
		{"Assignments", s.Assignments},
		{"Workers", s.Workers},
	}
	for _, r := range rows {
		p.rawf(`<tr><th>%s</th><td>%s</td></tr>`, r.label, itoa(r.value))
	}
	if s.FirstDate != "" {
		p.rawf(`<tr><th>Period</th><td>%s to %s</td></tr>`, s.FirstDate, s.LastDate)
	}
	p.raw(`</tbody></table>`)
}

func entries(p *page, title, class string, list []core.Entry) {
	if len(list) == 0 {
		return
	}
	p.rawf(`<h2>%s (%s)</h2><table class="%s"><thead><tr><th>Row</th><th>Column</th><th>Message</th></tr></thead><tbody>`,
		title, itoa(len(list)), class)
	for _, e := range list {
		p.rawf(`<tr><td>%s</td><td>%s</td><td>%s</td></tr>`, position(e.Row), position(e.Column), e.Message)
	}
	p.raw(`</tbody></table>`)
}

// position prints 0-based grid coordinates as 1-based spreadsheet ones.
func position(i int) string {
	if i == core.NoPosition {
		return ""
	}
	return itoa(i + 1)
}

func corrections(p *page, groups []core.CorrectionGroup) {
	if len(groups) == 0 {
		return
	}
	p.raw(`<h2>Corrections</h2><table><thead><tr><th>Rule</th><th>Original</th><th>Corrected</th><th>Times</th></tr></thead><tbody>`)
	for _, g := range groups {
		p.rawf(`<tr><td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>`, g.Rule, g.Original, g.Corrected, itoa(g.Count))
	}
	p.raw(`</tbody></table>`)
}

func records(p *page, list []core.ShiftRecord) {
	if len(list) == 0 {
		return
	}
	p.raw(`<h2>Shifts</h2><table><thead><tr><th>Date</th><th>Shift</th><th>Expected</th><th>Workers</th></tr></thead><tbody>`)
	for _, r := range list {
		expected := itoa(r.ExpectedCount)
		p.rawf(`<tr><td>%s</td><td>%s</td>`, r.DateKey(), r.ShiftType)
		if r.HasCoverageGap {
			p.rawf(`<td class="gap">%s</td>`, expected)
		} else {
			p.rawf(`<td>%s</td>`, expected)
		}
		p.rawf(`<td>%s</td></tr>`, strings.Join(r.AssignedWorkers, ", "))
	}
	p.raw(`</tbody></table>`)
}

func workers(p *page, stats map[string]*core.WorkerStat) {
	if len(stats) == 0 {
		return
	}
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	p.raw(`<h2>Workers</h2><table><thead><tr><th>Name</th><th>Shifts</th><th>Days</th><th>By shift</th></tr></thead><tbody>`)
	for _, k := range keys {
		st := stats[k]
		p.rawf(`<tr><td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>`,
			st.Name, itoa(st.TotalShifts), itoa(st.DistinctDates()), byShift(st.ByShiftType))
	}
	p.raw(`</tbody></table>`)
}

func byShift(m map[string]int) string {
	labels := make([]string, 0, len(m))
	for l := range m {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	parts := make([]string, 0, len(labels))
	for _, l := range labels {
		parts = append(parts, l+": "+itoa(m[l]))
	}
	return strings.Join(parts, ", ")
}
