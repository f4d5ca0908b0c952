package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Formatter outputs data in various formats.
type Formatter struct {
	w      io.Writer
	asJSON bool
}

// NewFormatter creates a new formatter.
func NewFormatter(w io.Writer, asJSON bool) *Formatter {
	return &Formatter{w: w, asJSON: asJSON}
}

// FormatStatus outputs the service state and, when available, the timer.
// timerErr is reported instead of the timer when it could not be read.
func (f *Formatter) FormatStatus(status *Status, timer *TimerSnapshot, timerErr error) error {
	if f.asJSON {
		out := struct {
			Extension *Status        `json:"extension"`
			Timer     *TimerSnapshot `json:"timer,omitempty"`
			Error     string         `json:"timer_error,omitempty"`
		}{Extension: status, Timer: timer}
		if timerErr != nil {
			out.Error = timerErr.Error()
		}
		return json.NewEncoder(f.w).Encode(out)
	}

	fmt.Fprintf(f.w, "Extension:     %s\n", status.Status)
	fmt.Fprintf(f.w, "Initialized:   %t\n", status.Initialized)
	fmt.Fprintf(f.w, "Capabilities:  %s\n", joinOrDash(status.Capabilities))
	if timerErr != nil {
		fmt.Fprintf(f.w, "Timer:         unavailable (%v)\n", timerErr)
		return nil
	}
	if timer != nil {
		f.formatTimer(timer)
	}
	return nil
}

func (f *Formatter) formatTimer(t *TimerSnapshot) {
	state := t.State
	if t.IsPaused {
		state += " (paused)"
	}
	fmt.Fprintf(f.w, "Timer:         %s\n", state)
	fmt.Fprintf(f.w, "Elapsed:       %s / %s\n", formatSeconds(t.Elapsed), formatSeconds(t.StateDuration))
	if t.Version != "" {
		fmt.Fprintf(f.w, "Version:       %s\n", t.Version)
	}
}

// FormatMessage outputs one WebSocket event.
func (f *Formatter) FormatMessage(msg Message) error {
	if f.asJSON {
		return json.NewEncoder(f.w).Encode(msg)
	}

	switch msg.Type {
	case "snapshot":
		if msg.Extension != nil {
			fmt.Fprintf(f.w, "extension %s\n", msg.Extension.Status)
		}
		if msg.Timer != nil {
			fmt.Fprintf(f.w, "timer %s elapsed=%s\n", msg.Timer.State, formatSeconds(msg.Timer.Elapsed))
		} else if msg.Error != "" {
			fmt.Fprintf(f.w, "timer unavailable: %s\n", msg.Error)
		}
	case "extension":
		status := "-"
		if msg.Extension != nil {
			status = msg.Extension.Status
		}
		fmt.Fprintf(f.w, "extension %s (%s)\n", msg.Event, status)
	case "timer":
		if msg.Change != nil {
			fmt.Fprintf(f.w, "timer %s\n", formatChange(msg.Change))
		}
	default:
		fmt.Fprintf(f.w, "%s\n", msg.Type)
	}
	return nil
}

// FormatAction outputs the result of a timer call.
func (f *Formatter) FormatAction(method string) error {
	if f.asJSON {
		return json.NewEncoder(f.w).Encode(map[string]string{"method": method, "status": "ok"})
	}
	fmt.Fprintf(f.w, "%s: ok\n", method)
	return nil
}

func formatChange(c *TimerChange) string {
	names := make([]string, 0, len(c.Changed))
	for name := range c.Changed {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names)+len(c.Invalidated))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%v", name, c.Changed[name]))
	}
	for _, name := range c.Invalidated {
		parts = append(parts, name+"=?")
	}
	return strings.Join(parts, " ")
}

func formatSeconds(s float64) string {
	total := int(s)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
