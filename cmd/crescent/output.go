package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/odvcencio/crescent/pkg/browser"
	"github.com/odvcencio/crescent/pkg/finder"
)

const maxTextLen = 80

type elementView struct {
	Tag     string `json:"tag"`
	ID      string `json:"id,omitempty"`
	Class   string `json:"class,omitempty"`
	Text    string `json:"text,omitempty"`
	Visible bool   `json:"visible"`
	Enabled bool   `json:"enabled"`
	Error   string `json:"error,omitempty"`
}

func viewOf(el browser.Element) elementView {
	var v elementView
	var err error
	if v.Tag, err = el.TagName(); err != nil {
		v.Error = err.Error()
		return v
	}
	v.ID, _, _ = el.Attribute("id")
	v.Class, _, _ = el.Attribute("class")
	if text, err := browser.TrimmedText(el); err == nil {
		v.Text = text
	}
	v.Visible, _ = browser.IsVisible(el)
	v.Enabled, _ = browser.IsEnabled(el)
	return v
}

func (v elementView) String() string {
	var b strings.Builder
	b.WriteString(v.Tag)
	if v.ID != "" {
		b.WriteString("#" + v.ID)
	}
	for _, class := range strings.Fields(v.Class) {
		b.WriteString("." + class)
	}
	if v.Error != "" {
		fmt.Fprintf(&b, " (%s)", v.Error)
		return b.String()
	}
	if v.Text != "" {
		text := v.Text
		if len(text) > maxTextLen {
			text = text[:maxTextLen-3] + "..."
		}
		fmt.Fprintf(&b, " %q", text)
	}
	if !v.Visible {
		b.WriteString(" [hidden]")
	}
	if !v.Enabled {
		b.WriteString(" [disabled]")
	}
	return b.String()
}

// result is the outcome of a lookup command.
type result struct {
	Command   string        `json:"command"`
	Locator   string        `json:"locator"`
	Policy    string        `json:"policy"`
	SessionID string        `json:"session_id"`
	Found     bool          `json:"found"`
	Absent    bool          `json:"absent,omitempty"`
	Count     int           `json:"count"`
	Elements  []elementView `json:"elements,omitempty"`
	Polls     int64         `json:"polls"`
	Retries   int64         `json:"retries"`
	ElapsedMS int64         `json:"elapsed_ms"`
	Outcome   string        `json:"outcome"`
	Error     string        `json:"error,omitempty"`
}

func (r *result) add(el browser.Element) {
	if el == nil {
		return
	}
	r.Elements = append(r.Elements, viewOf(el))
}

func (r *result) finish(m finder.MetricsSnapshot, err error) {
	r.Count = len(r.Elements)
	r.Found = r.Count > 0
	r.Polls = m.Polls
	r.Retries = m.Retries
	r.ElapsedMS = m.TotalWait.Milliseconds()
	switch {
	case m.Accepted > 0:
		r.Outcome = "accepted"
	case m.TimedOut > 0:
		r.Outcome = "timeout"
	case m.Cancelled > 0:
		r.Outcome = "cancelled"
	case m.Failed > 0:
		r.Outcome = "failed"
	default:
		r.Outcome = "error"
	}
	if err != nil {
		r.Error = err.Error()
	}
}

func (r *result) text(w io.Writer, th theme) {
	switch {
	case r.Error != "":
		fmt.Fprintf(w, "%s %s: %s\n", r.Command, r.Locator, th.failure.Render(r.Error))
	case r.Absent:
		fmt.Fprintf(w, "%s %s (%d polls)\n", th.success.Render("absent:"), r.Locator, r.Polls)
	case r.Command == "find" && !r.Found:
		fmt.Fprintf(w, "%s %s (%d polls)\n", th.dim.Render("not found:"), r.Locator, r.Polls)
	default:
		fmt.Fprintf(w, "%s at %s (%d polls, %s)\n", th.success.Render(fmt.Sprintf("%d element(s)", r.Count)), r.Locator, r.Polls, r.Outcome)
	}
	for i, el := range r.Elements {
		fmt.Fprintf(w, "  %d. %s\n", i+1, el)
	}
}

type policyDescription struct {
	Policy            string  `json:"policy"`
	Site              string  `json:"site"`
	TimeoutMS         int64   `json:"timeout_ms"`
	IntervalMS        int64   `json:"interval_ms"`
	MinStableMS       int64   `json:"min_stable_ms"`
	LatencyFactor     float64 `json:"latency_factor"`
	StableIntervalCnt int     `json:"stable_interval_count"`
}

func (d policyDescription) text(w io.Writer, th theme) {
	fmt.Fprintln(w, d.Policy)
	fmt.Fprintf(w, "  %s\n", th.dim.Render(d.Site))
	fmt.Fprintf(w, "  stable interval count: %d\n", d.StableIntervalCnt)
}

func (c *cli) render(opts *commonOptions, v any, text func(io.Writer, theme)) error {
	if !c.jsonOutput(opts) {
		text(c.stdout, c.theme())
		return nil
	}
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}
