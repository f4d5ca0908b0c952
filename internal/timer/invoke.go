package timer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
)

var (
	// ErrUnknownMethod is returned by Invoke for a name the timer does not export.
	ErrUnknownMethod = errors.New("unknown timer method")
	// ErrBadArguments is returned by Invoke when arguments don't fit the method signature.
	ErrBadArguments = errors.New("bad arguments")
	// ErrNotConnected is returned when a proxy has no bus connection to watch.
	ErrNotConnected = errors.New("not connected")
)

type method struct {
	args []string // argument names, for usage messages
	call func(ctx context.Context, c Client, args []string) error
}

var methods = map[string]method{
	"SetState": {
		args: []string{"state", "timestamp"},
		call: func(ctx context.Context, c Client, args []string) error {
			ts, err := parseDouble("timestamp", args[1])
			if err != nil {
				return err
			}
			return c.SetState(ctx, args[0], ts)
		},
	},
	"SetStateDuration": {
		args: []string{"state", "duration"},
		call: func(ctx context.Context, c Client, args []string) error {
			d, err := parseDouble("duration", args[1])
			if err != nil {
				return err
			}
			return c.SetStateDuration(ctx, args[0], d)
		},
	},
	"ShowMainWindow": {
		args: []string{"mode", "timestamp"},
		call: func(ctx context.Context, c Client, args []string) error {
			ts, err := parseUint32("timestamp", args[1])
			if err != nil {
				return err
			}
			return c.ShowMainWindow(ctx, args[0], ts)
		},
	},
	"ShowPreferences": {
		args: []string{"timestamp"},
		call: func(ctx context.Context, c Client, args []string) error {
			ts, err := parseUint32("timestamp", args[0])
			if err != nil {
				return err
			}
			return c.ShowPreferences(ctx, ts)
		},
	},
	"Start":  {call: func(ctx context.Context, c Client, _ []string) error { return c.Start(ctx) }},
	"Stop":   {call: func(ctx context.Context, c Client, _ []string) error { return c.Stop(ctx) }},
	"Reset":  {call: func(ctx context.Context, c Client, _ []string) error { return c.Reset(ctx) }},
	"Pause":  {call: func(ctx context.Context, c Client, _ []string) error { return c.Pause(ctx) }},
	"Resume": {call: func(ctx context.Context, c Client, _ []string) error { return c.Resume(ctx) }},
	"Skip":   {call: func(ctx context.Context, c Client, _ []string) error { return c.Skip(ctx) }},
	"Quit":   {call: func(ctx context.Context, c Client, _ []string) error { return c.Quit(ctx) }},
}

// Methods returns the names of all timer methods, sorted.
func Methods() []string {
	names := make([]string, 0, len(methods))
	for name := range methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Usage returns "Name arg1 arg2" for a method, or "" if it is unknown.
func Usage(name string) string {
	m, ok := methods[name]
	if !ok {
		return ""
	}
	s := name
	for _, a := range m.args {
		s += " <" + a + ">"
	}
	return s
}

// Invoke calls the named timer method with arguments given as strings,
// converting them to the method's wire types. Remote errors are returned
// unchanged.
func Invoke(ctx context.Context, c Client, name string, args []string) error {
	m, ok := methods[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMethod, name)
	}
	if len(args) != len(m.args) {
		return fmt.Errorf("%w: %s takes %d argument(s), got %d", ErrBadArguments, name, len(m.args), len(args))
	}
	return m.call(ctx, c, args)
}

func parseDouble(name, s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number: %q", ErrBadArguments, name, s)
	}
	return f, nil
}

func parseUint32(name, s string) (uint32, error) {
	u, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an unsigned 32-bit integer: %q", ErrBadArguments, name, s)
	}
	return uint32(u), nil
}
