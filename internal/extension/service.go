// Package extension exports the org.gnome.ExTimer.Extension object, which
// tells the timer application what the shell side supports, and manages
// ownership of its bus name.
package extension

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"

	dbustypes "github.com/nikicat/extimer-bridge/internal/dbus"
)

const (
	busDaemon      = dbustypes.BusDaemonInterface
	nameAcquired   = busDaemon + ".NameAcquired"
	nameLostSignal = busDaemon + ".NameLost"
)

// Status is the bus name ownership state of a Service.
type Status int

const (
	StatusUnowned Status = iota
	StatusAcquiring
	StatusOwned
	StatusDestroyed
)

func (s Status) String() string {
	switch s {
	case StatusUnowned:
		return "unowned"
	case StatusAcquiring:
		return "acquiring"
	case StatusOwned:
		return "owned"
	case StatusDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Bus is the part of *dbus.Conn used by Service.
type Bus interface {
	Export(v interface{}, path dbus.ObjectPath, iface string) error
	RequestName(name string, flags dbus.RequestNameFlags) (dbus.RequestNameReply, error)
	ReleaseName(name string) (dbus.ReleaseNameReply, error)
	Signal(ch chan<- *dbus.Signal)
	RemoveSignal(ch chan<- *dbus.Signal)
}

// Service exports the capabilities object and owns org.gnome.ExTimer.Extension.
//
// Lifecycle: New exports the object; Run starts an asynchronous name request
// with REPLACE semantics; acquisition and loss are reported to subscribers;
// Destroy tears everything down. Destroy must be called once.
type Service struct {
	bus          Bus
	name         string
	capabilities []string
	observers    observers

	mu          sync.Mutex
	status      Status
	initialized bool
	registered  bool // a name request is outstanding or held
	emitting    bool // an acquired or lost event is being delivered
	destroyLate bool // Destroy ran during that delivery
	signals     chan *dbus.Signal
	done        chan struct{}
}

// New exports the capabilities object on bus. The capability list is copied
// and served unchanged for the lifetime of the service.
func New(bus Bus, capabilities []string) (*Service, error) {
	s := &Service{
		bus:          bus,
		name:         dbustypes.ExtensionBusName,
		capabilities: append([]string{}, capabilities...),
	}

	obj := &object{capabilities: s.capabilities}
	if err := bus.Export(obj, dbustypes.ExtensionPath, dbustypes.PropertiesInterface); err != nil {
		return nil, fmt.Errorf("export Properties interface: %w", err)
	}
	if err := bus.Export(introspection(), dbustypes.ExtensionPath, dbustypes.IntrospectableInterface); err != nil {
		s.unexport()
		return nil, fmt.Errorf("export Introspectable interface: %w", err)
	}

	return s, nil
}

// Subscribe registers handler for events of the given kind. Acquired and
// lost events are delivered on the service's signal goroutine; the destroy
// event is delivered on the goroutine calling Destroy, or on the signal
// goroutine once it finishes an acquired or lost delivery that Destroy
// interrupted. The destroy event is always the last one.
func (s *Service) Subscribe(kind EventKind, handler func(Event)) SubscriptionID {
	return s.observers.add(kind, handler)
}

// Unsubscribe removes a subscription. Unknown IDs are ignored.
func (s *Service) Unsubscribe(id SubscriptionID) {
	s.observers.remove(id)
}

// Capabilities returns the advertised capability names.
func (s *Service) Capabilities() []string {
	return append([]string{}, s.capabilities...)
}

// Status returns the current ownership state.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Initialized reports whether the bus name is currently held.
func (s *Service) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// Run requests ownership of the bus name. It returns immediately; the outcome
// is reported as EventAcquired or EventLost. Run is a no-op while a request
// is outstanding or held, including after the name was lost, and after
// Destroy.
func (s *Service) Run() {
	s.mu.Lock()
	if s.registered || s.status == StatusDestroyed {
		s.mu.Unlock()
		return
	}
	s.registered = true
	s.status = StatusAcquiring
	s.signals = make(chan *dbus.Signal, 16)
	s.done = make(chan struct{})
	signals, done := s.signals, s.done
	s.mu.Unlock()

	// NameAcquired and NameLost are unicast to the owner; no match rule needed.
	s.bus.Signal(signals)
	go s.loop(signals, done)
}

func (s *Service) loop(signals chan *dbus.Signal, done chan struct{}) {
	reply, err := s.bus.RequestName(s.name, dbus.NameFlagReplaceExisting)
	if err == nil && s.Status() == StatusDestroyed {
		// Destroy raced with the request; give the name back (or leave the queue).
		s.bus.ReleaseName(s.name) //nolint:errcheck
		return
	}

	switch {
	case err != nil:
		slog.Warn("request bus name failed", "name", s.name, "error", err)
		s.onLost()
	case reply == dbus.RequestNameReplyPrimaryOwner || reply == dbus.RequestNameReplyAlreadyOwner:
		s.onAcquired()
	default:
		slog.Debug("bus name owned by another process", "name", s.name, "reply", reply)
		s.onLost()
	}

	for {
		select {
		case <-done:
			return
		case sig, ok := <-signals:
			if !ok {
				// Channel closed by D-Bus library when connection closes
				s.onLost()
				return
			}
			s.handleSignal(sig)
		}
	}
}

func (s *Service) handleSignal(sig *dbus.Signal) {
	if sig.Sender != busDaemon || len(sig.Body) != 1 {
		return
	}
	if name, ok := sig.Body[0].(string); !ok || name != s.name {
		return
	}

	switch sig.Name {
	case nameAcquired:
		s.onAcquired()
	case nameLostSignal:
		s.onLost()
	}
}

func (s *Service) onAcquired() {
	s.mu.Lock()
	if s.status == StatusOwned || s.status == StatusDestroyed {
		s.mu.Unlock()
		return
	}
	s.status = StatusOwned
	s.initialized = true
	s.emitting = true
	s.mu.Unlock()

	slog.Info("bus name acquired", "name", s.name)
	s.deliver(Event{Kind: EventAcquired, Name: s.name})
}

func (s *Service) onLost() {
	s.mu.Lock()
	if s.status == StatusUnowned || s.status == StatusDestroyed {
		s.mu.Unlock()
		return
	}
	s.status = StatusUnowned
	s.initialized = false
	s.emitting = true
	s.mu.Unlock()

	slog.Info("bus name lost", "name", s.name)
	s.deliver(Event{Kind: EventLost, Name: s.name})
}

// deliver emits an acquired or lost event and then finishes a Destroy that
// ran while handlers were executing.
func (s *Service) deliver(ev Event) {
	s.observers.emit(ev)

	s.mu.Lock()
	s.emitting = false
	late := s.destroyLate
	s.destroyLate = false
	s.mu.Unlock()

	if late {
		s.emitDestroyed()
	}
}

func (s *Service) emitDestroyed() {
	s.observers.emit(Event{Kind: EventDestroyed, Name: s.name})
	s.observers.clear()
}

// Destroy releases the bus name, unexports the object, emits EventDestroyed
// and drops all subscriptions. No acquired or lost event follows the
// destroy event. Releasing a name that was never requested or
// already lost is a no-op. Calls after the first are ignored.
func (s *Service) Destroy() {
	s.mu.Lock()
	if s.status == StatusDestroyed {
		s.mu.Unlock()
		return
	}
	registered := s.registered
	signals, done := s.signals, s.done
	s.status = StatusDestroyed
	s.initialized = false
	s.registered = false
	late := s.emitting
	s.destroyLate = late
	s.mu.Unlock()

	if done != nil {
		close(done)
		s.bus.RemoveSignal(signals)
	}

	if registered {
		if reply, err := s.bus.ReleaseName(s.name); err != nil {
			slog.Debug("release bus name failed", "name", s.name, "error", err)
		} else {
			slog.Debug("released bus name", "name", s.name, "reply", reply)
		}
	}

	s.unexport()

	if !late {
		s.emitDestroyed()
	}
}

func (s *Service) unexport() {
	for _, iface := range []string{dbustypes.PropertiesInterface, dbustypes.IntrospectableInterface} {
		if err := s.bus.Export(nil, dbustypes.ExtensionPath, iface); err != nil {
			slog.Debug("unexport failed", "path", dbustypes.ExtensionPath, "interface", iface, "error", err)
		}
	}
}
