// Package capabilities holds the list of features the shell side advertises
// to the timer application.
package capabilities

// Capability names understood by the timer application.
const (
	Notifications = "notifications"
	Indicator     = "indicator"
	Accelerator   = "accelerator"
	Reminders     = "reminders"
	Presence      = "presence"
)

// Default is advertised when the configuration does not override it.
var Default = []string{Notifications, Indicator, Accelerator, Reminders, Presence}

// Registry supplies the advertised capability list.
type Registry struct {
	names []string
}

// New returns a registry for names, or for Default when names is empty.
// Empty and repeated names are dropped; order is kept.
func New(names []string) *Registry {
	if len(names) == 0 {
		names = Default
	}
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return &Registry{names: out}
}

// Names returns a copy of the capability list.
func (r *Registry) Names() []string {
	return append([]string{}, r.names...)
}

// Has reports whether name is advertised.
func (r *Registry) Has(name string) bool {
	for _, n := range r.names {
		if n == name {
			return true
		}
	}
	return false
}
