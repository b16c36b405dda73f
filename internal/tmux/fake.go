package tmux

import (
	"context"
	"sort"
	"sync"

	"github.com/agentfleet/orchestrator/internal/orcerr"
)

// Fake is an in-memory Adapter used by unit tests across every package
// that depends on tmux (messaging, lifecycle, supervisor, broadcast).
// It is not behind a build tag: keeping it in the main package, like the
// teacher keeps its *_test.go helpers alongside production code, means
// downstream packages can import it directly in their own tests.
type Fake struct {
	mu       sync.Mutex
	sessions map[string]*fakeSession
	panes    map[string]string // "session:window" -> captured text
	buffer   string
	nextIdx  map[string]int // per-session next window index

	// SendKeysLog records every SendKeys call for assertions.
	SendKeysLog []FakeSendKeysCall
}

// FakeSendKeysCall records one SendKeys invocation for test assertions.
type FakeSendKeysCall struct {
	Target  Target
	Keys    string
	Literal bool
}

type fakeSession struct {
	name     string
	windows  map[int]string // index -> name
	order    []int
}

// NewFake constructs an empty fake multiplexer.
func NewFake() *Fake {
	return &Fake{
		sessions: make(map[string]*fakeSession),
		panes:    make(map[string]string),
		nextIdx:  make(map[string]int),
	}
}

func (f *Fake) ListSessions(ctx context.Context) ([]Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Session
	for name := range f.sessions {
		out = append(out, Session{Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *Fake) ListWindows(ctx context.Context, session string) ([]Window, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[session]
	if !ok {
		return nil, &orcerr.NotFoundError{Target: session}
	}
	var out []Window
	indices := append([]int(nil), s.order...)
	sort.Ints(indices)
	for _, idx := range indices {
		out = append(out, Window{Index: idx, Name: s.windows[idx]})
	}
	return out, nil
}

func (f *Fake) HasSession(ctx context.Context, session string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.sessions[session]
	return ok, nil
}

func (f *Fake) CreateSession(ctx context.Context, session, firstWindowName, cwd string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[session]; ok {
		return nil
	}
	f.sessions[session] = &fakeSession{
		name:    session,
		windows: map[int]string{0: firstWindowName},
		order:   []int{0},
	}
	f.nextIdx[session] = 1
	return nil
}

func (f *Fake) CreateWindow(ctx context.Context, session, name, cwd string) (Target, error) {
	f.mu.Lock()
	s, ok := f.sessions[session]
	if !ok {
		f.mu.Unlock()
		return Target{}, &orcerr.NotFoundError{Target: session}
	}
	idx := f.nextIdx[session]
	f.nextIdx[session] = idx + 1
	s.windows[idx] = name
	s.order = append(s.order, idx)
	f.mu.Unlock()
	return Target{Session: session, Window: idx}, nil
}

func (f *Fake) KillWindow(ctx context.Context, target Target) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[target.Session]
	if !ok {
		return nil
	}
	delete(s.windows, target.Window)
	for i, idx := range s.order {
		if idx == target.Window {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	delete(f.panes, target.String())
	return nil
}

func (f *Fake) KillSession(ctx context.Context, session string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, session)
	return nil
}

func (f *Fake) CapturePane(ctx context.Context, target Target, tailLines int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.panes[target.String()], nil
}

// SetPaneText is a test helper to simulate output appearing in a pane.
func (f *Fake) SetPaneText(target Target, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.panes[target.String()] = text
}

func (f *Fake) SendKeys(ctx context.Context, target Target, keys string, literal bool) error {
	f.mu.Lock()
	f.SendKeysLog = append(f.SendKeysLog, FakeSendKeysCall{Target: target, Keys: keys, Literal: literal})
	f.mu.Unlock()
	return nil
}

func (f *Fake) SetPasteBuffer(ctx context.Context, text string) error {
	f.mu.Lock()
	f.buffer = text
	f.mu.Unlock()
	return nil
}

func (f *Fake) PasteBuffer(ctx context.Context, target Target) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.panes[target.String()] += f.buffer
	return nil
}

var _ Adapter = (*Fake)(nil)
