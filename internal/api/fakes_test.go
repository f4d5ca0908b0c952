package api

import (
	"context"
	"fmt"
	"sync"

	"github.com/nikicat/extimer-bridge/internal/extension"
	"github.com/nikicat/extimer-bridge/internal/timer"
)

type fakeExtension struct {
	mu          sync.Mutex
	status      extension.Status
	initialized bool
	caps        []string
	next        int
	subs        map[extension.SubscriptionID]fakeSub
}

type fakeSub struct {
	kind    extension.EventKind
	handler func(extension.Event)
}

func newFakeExtension(caps ...string) *fakeExtension {
	return &fakeExtension{caps: caps, subs: make(map[extension.SubscriptionID]fakeSub)}
}

func (f *fakeExtension) Status() extension.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeExtension) Initialized() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initialized
}

func (f *fakeExtension) Capabilities() []string { return append([]string{}, f.caps...) }

func (f *fakeExtension) Subscribe(kind extension.EventKind, handler func(extension.Event)) extension.SubscriptionID {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	id := extension.SubscriptionID(fmt.Sprintf("sub-%d", f.next))
	f.subs[id] = fakeSub{kind: kind, handler: handler}
	return id
}

func (f *fakeExtension) Unsubscribe(id extension.SubscriptionID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, id)
}

func (f *fakeExtension) subscriptions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// set updates the state and notifies subscribers of kind.
func (f *fakeExtension) set(status extension.Status, kind extension.EventKind) {
	f.mu.Lock()
	f.status = status
	f.initialized = status == extension.StatusOwned
	var handlers []func(extension.Event)
	for _, s := range f.subs {
		if s.kind == kind {
			handlers = append(handlers, s.handler)
		}
	}
	f.mu.Unlock()

	for _, h := range handlers {
		h(extension.Event{Kind: kind, Name: "org.gnome.ExTimer.Extension"})
	}
}

type fakeTimer struct {
	mu      sync.Mutex
	snap    timer.Snapshot
	snapErr error
	callErr error
	calls   []string
	changes chan timer.Change
}

func newFakeTimer() *fakeTimer {
	return &fakeTimer{
		snap:    timer.Snapshot{State: "pomodoro", Elapsed: 12.5, StateDuration: 1500, Version: "1.0"},
		changes: make(chan timer.Change, 4),
	}
}

func (f *fakeTimer) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.callErr
}

func (f *fakeTimer) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.calls...)
}

func (f *fakeTimer) Snapshot(ctx context.Context) (timer.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap, f.snapErr
}

func (f *fakeTimer) Watch(ctx context.Context, fn func(timer.Change)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c := <-f.changes:
			fn(c)
		}
	}
}

func (f *fakeTimer) Elapsed(ctx context.Context) (float64, error)       { return f.snap.Elapsed, nil }
func (f *fakeTimer) State(ctx context.Context) (string, error)          { return f.snap.State, nil }
func (f *fakeTimer) StateDuration(ctx context.Context) (float64, error) { return f.snap.StateDuration, nil }
func (f *fakeTimer) IsPaused(ctx context.Context) (bool, error)         { return f.snap.IsPaused, nil }
func (f *fakeTimer) Version(ctx context.Context) (string, error)        { return f.snap.Version, nil }

func (f *fakeTimer) SetState(ctx context.Context, state string, timestamp float64) error {
	return f.record(fmt.Sprintf("SetState %s %g", state, timestamp))
}

func (f *fakeTimer) SetStateDuration(ctx context.Context, state string, duration float64) error {
	return f.record(fmt.Sprintf("SetStateDuration %s %g", state, duration))
}

func (f *fakeTimer) ShowMainWindow(ctx context.Context, mode string, timestamp uint32) error {
	return f.record(fmt.Sprintf("ShowMainWindow %s %d", mode, timestamp))
}

func (f *fakeTimer) ShowPreferences(ctx context.Context, timestamp uint32) error {
	return f.record(fmt.Sprintf("ShowPreferences %d", timestamp))
}

func (f *fakeTimer) Start(ctx context.Context) error  { return f.record("Start") }
func (f *fakeTimer) Stop(ctx context.Context) error   { return f.record("Stop") }
func (f *fakeTimer) Reset(ctx context.Context) error  { return f.record("Reset") }
func (f *fakeTimer) Pause(ctx context.Context) error  { return f.record("Pause") }
func (f *fakeTimer) Resume(ctx context.Context) error { return f.record("Resume") }
func (f *fakeTimer) Skip(ctx context.Context) error   { return f.record("Skip") }
func (f *fakeTimer) Quit(ctx context.Context) error   { return f.record("Quit") }

var _ Timer = (*fakeTimer)(nil)
var _ Extension = (*fakeExtension)(nil)
