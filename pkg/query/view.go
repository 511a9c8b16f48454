// Package query implements the SQL scratchpad view. The editor buffer,
// run history, and cached result grid accumulate across navigations
// because the slot mechanism hides the view instead of unmounting it;
// a reviewer can hop to the lineage graph mid-query and come back to an
// untouched scratchpad.
package query

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/DataRecce/recce-sub014/pkg/vdom"
)

const (
	// DefaultHistorySize is how many past runs the view retains.
	DefaultHistorySize = 20

	// MaxResultRows caps the cached result grid; larger results are
	// truncated so snapshots stay bounded.
	MaxResultRows = 500
)

// Run records one query execution.
type Run struct {
	ID         string    `json:"id"`
	SQL        string    `json:"sql"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
	Rows       int       `json:"rows"`
	Error      string    `json:"error,omitempty"`
}

// Failed reports whether the run ended in an error.
func (r Run) Failed() bool {
	return r.Error != ""
}

// Result is a cached result grid.
type Result struct {
	Columns   []string   `json:"columns"`
	Rows      [][]string `json:"rows"`
	Truncated bool       `json:"truncated,omitempty"`
}

// View is the query slot view. It is not safe for concurrent use; the
// session event loop serializes all access.
type View struct {
	visible bool
	sql     string
	history []Run // newest first
	histCap int
	result  *Result
}

// Option configures a View.
type Option func(*View)

// WithHistorySize sets how many runs the history ring retains.
func WithHistorySize(n int) Option {
	return func(v *View) {
		if n > 0 {
			v.histCap = n
		}
	}
}

// New creates an empty query view.
func New(opts ...Option) *View {
	v := &View{
		histCap: DefaultHistorySize,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// SetVisible receives the visibility signal delivered on every
// navigation.
func (v *View) SetVisible(visible bool) {
	v.visible = visible
}

// Visible reports the last visibility signal.
func (v *View) Visible() bool {
	return v.visible
}

// SetSQL replaces the editor buffer.
func (v *View) SetSQL(sql string) {
	v.sql = sql
}

// SQL returns the editor buffer.
func (v *View) SQL() string {
	return v.sql
}

// RecordRun appends a run to the history ring and, for successful runs,
// caches its result grid. Missing run fields are filled in: ID, start
// time, and the row count from the result. Returns the normalized run.
func (v *View) RecordRun(run Run, result *Result) Run {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Rows == 0 && result != nil {
		run.Rows = len(result.Rows)
	}

	v.history = append([]Run{run}, v.history...)
	if len(v.history) > v.histCap {
		v.history = v.history[:v.histCap]
	}

	if result != nil && !run.Failed() {
		v.result = capResult(result)
	}
	return run
}

// History returns a copy of the run history, newest first.
func (v *View) History() []Run {
	out := make([]Run, len(v.history))
	copy(out, v.history)
	return out
}

// LastRun returns the most recent run.
func (v *View) LastRun() (Run, bool) {
	if len(v.history) == 0 {
		return Run{}, false
	}
	return v.history[0], true
}

// Result returns the cached result grid of the last successful run, or
// nil when no run has succeeded yet.
func (v *View) Result() *Result {
	return v.result
}

// ClearResult drops the cached result grid. History is kept.
func (v *View) ClearResult() {
	v.result = nil
}

// Render builds the scratchpad subtree: editor buffer, run history,
// and the cached result grid.
func (v *View) Render() *vdom.VNode {
	kids := []*vdom.VNode{
		vdom.El("pre", vdom.Props{"class": "query-editor"}, vdom.Text(v.sql)).WithHID("query-editor"),
	}

	if len(v.history) > 0 {
		items := make([]*vdom.VNode, 0, len(v.history))
		for _, run := range v.history {
			class := "query-run"
			label := fmt.Sprintf("%s (%d rows, %dms)", run.SQL, run.Rows, run.DurationMS)
			if run.Failed() {
				class = "query-run failed"
				label = fmt.Sprintf("%s (error: %s)", run.SQL, run.Error)
			}
			items = append(items, vdom.El("li", vdom.Props{"class": class}, vdom.Text(label)).WithKey(run.ID))
		}
		kids = append(kids, vdom.El("ol", vdom.Props{"class": "query-history"}, items...).WithHID("query-history"))
	}

	if v.result != nil {
		kids = append(kids, renderResult(v.result))
	}

	return vdom.El("div", vdom.Props{"class": "query-pane"}, kids...).WithHID("query-pane")
}

func renderResult(res *Result) *vdom.VNode {
	headCells := make([]*vdom.VNode, 0, len(res.Columns))
	for _, col := range res.Columns {
		headCells = append(headCells, vdom.El("th", nil, vdom.Text(col)))
	}

	bodyRows := make([]*vdom.VNode, 0, len(res.Rows))
	for _, row := range res.Rows {
		cells := make([]*vdom.VNode, 0, len(row))
		for _, val := range row {
			cells = append(cells, vdom.El("td", nil, vdom.Text(val)))
		}
		bodyRows = append(bodyRows, vdom.El("tr", nil, cells...))
	}

	props := vdom.Props{"class": "query-result"}
	if res.Truncated {
		props["data-truncated"] = "true"
	}
	return vdom.El("table", props,
		vdom.El("thead", nil, vdom.El("tr", nil, headCells...)),
		vdom.El("tbody", nil, bodyRows...),
	).WithHID("query-result")
}

// viewState is the snapshot wire form of the scratchpad.
type viewState struct {
	SQL     string  `json:"sql,omitempty"`
	History []Run   `json:"history,omitempty"`
	Result  *Result `json:"result,omitempty"`
}

// StateJSON serializes the scratchpad for a session snapshot.
func (v *View) StateJSON() ([]byte, error) {
	return json.Marshal(viewState{
		SQL:     v.sql,
		History: v.history,
		Result:  v.result,
	})
}

// RestoreJSON reapplies snapshot state, re-capping history and the
// result grid in case limits shrank between snapshot and resume.
func (v *View) RestoreJSON(data []byte) error {
	var st viewState
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}

	v.sql = st.SQL
	v.history = st.History
	if len(v.history) > v.histCap {
		v.history = v.history[:v.histCap]
	}
	v.result = nil
	if st.Result != nil {
		v.result = capResult(st.Result)
	}
	return nil
}

// capResult bounds a result grid to MaxResultRows, copying the row
// slice so the cache never aliases caller data.
func capResult(res *Result) *Result {
	capped := &Result{
		Columns:   append([]string(nil), res.Columns...),
		Truncated: res.Truncated,
	}
	rows := res.Rows
	if len(rows) > MaxResultRows {
		rows = rows[:MaxResultRows]
		capped.Truncated = true
	}
	capped.Rows = append([][]string(nil), rows...)
	return capped
}
