package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/agentfleet/orchestrator/internal/classifier"
	"github.com/agentfleet/orchestrator/internal/lifecycle"
	"github.com/agentfleet/orchestrator/internal/messaging"
	"github.com/agentfleet/orchestrator/internal/orcerr"
	"github.com/agentfleet/orchestrator/internal/schedule"
	"github.com/agentfleet/orchestrator/internal/tmux"
)

// AuditSink receives one line per recovery decision applied, for the
// sqlite-backed audit log (internal/audit) or any other sink a caller
// wires in. Nil is a valid no-op sink.
type AuditSink interface {
	RecordDecision(target, session string, kind string, reason string)
}

// Publisher fans a Supervisor event out to subscribers (internal/eventbus
// in production, a recording fake in tests). Nil is a valid no-op.
type Publisher interface {
	Publish(kind, target, session, reason string)
}

// Options configures a Supervisor's classification thresholds and
// crash-loop policy, mirroring internal/config.Config.
type Options struct {
	TickInterval      time.Duration
	TailLines         int
	IdleTicks         int
	UnresponsiveTicks int
	CrashLoopLimit    int
	CrashLoopWindow   time.Duration
}

// Supervisor is the process-wide singleton state machine from spec.md
// §4.6. The caller is responsible for enforcing the singleton via
// internal/singleton before constructing and running one.
type Supervisor struct {
	adapter    tmux.Adapter
	lifecycle  *lifecycle.Controller
	submitter  *messaging.Submitter
	pause      *schedule.PauseGate
	opts       Options
	log        *zap.Logger
	audit      AuditSink
	publisher  Publisher

	mu       sync.Mutex
	records  map[string]*AgentRecord // keyed by target.String()
	inFlight map[string]bool

	crashLoop *cache.Cache
}

// New constructs a Supervisor.
func New(adapter tmux.Adapter, lc *lifecycle.Controller, submitter *messaging.Submitter, pause *schedule.PauseGate, opts Options, log *zap.Logger, audit AuditSink) *Supervisor {
	return &Supervisor{
		adapter:   adapter,
		lifecycle: lc,
		submitter: submitter,
		pause:     pause,
		opts:      opts,
		log:       log,
		audit:     audit,
		records:   make(map[string]*AgentRecord),
		inFlight:  make(map[string]bool),
		crashLoop: cache.New(opts.CrashLoopWindow, opts.CrashLoopWindow/2),
	}
}

// SetPublisher wires an event publisher after construction, so callers
// can stand a Supervisor up before the eventbus connection is dialed.
func (s *Supervisor) SetPublisher(p Publisher) {
	s.publisher = p
}

// Run executes the main loop until ctx is cancelled, implementing
// spec.md §4.6's pseudocode and §5's cancellation rule: a cancellation
// observed between ticks finishes the current tick's current target and
// exits cleanly.
func (s *Supervisor) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()

	for {
		if err := s.Tick(ctx); err != nil && s.log != nil {
			s.log.Warn("tick returned an error", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Tick runs exactly one discover → classify → decide → apply pass.
func (s *Supervisor) Tick(ctx context.Context) error {
	if s.pause != nil && s.pause.Paused() {
		return nil
	}

	discovered, err := s.discover(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.reconcileRecords(discovered)
	targets := make([]*AgentRecord, 0, len(s.records))
	for _, r := range s.records {
		targets = append(targets, r)
	}
	s.mu.Unlock()

	for _, r := range targets {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		s.processOne(ctx, r)
	}

	if s.publisher != nil {
		s.publisher.Publish("TickSummary", "", "", summarizeStates(targets))
	}
	return nil
}

// summarizeStates renders a one-line per-state tally, the payload a
// TickSummary event carries so dashboard subscribers can render a live
// count without polling Snapshot over HTTP.
func summarizeStates(targets []*AgentRecord) string {
	counts := make(map[classifier.PaneState]int, 8)
	for _, r := range targets {
		counts[r.State]++
	}
	return fmt.Sprintf(
		"tracked=%d starting=%d ready=%d busy=%d idle=%d unresponsive=%d crashed=%d gone=%d",
		len(targets),
		counts[classifier.StateStarting],
		counts[classifier.StateReady],
		counts[classifier.StateBusy],
		counts[classifier.StateIdle],
		counts[classifier.StateUnresponsive],
		counts[classifier.StateCrashed],
		counts[classifier.StateGone],
	)
}

type discoveredWindow struct {
	session string
	window  tmux.Window
}

func (s *Supervisor) discover(ctx context.Context) ([]discoveredWindow, error) {
	sessions, err := s.adapter.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	var out []discoveredWindow
	for _, sess := range sessions {
		windows, err := s.adapter.ListWindows(ctx, sess.Name)
		if err != nil {
			if orcerr.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		for _, w := range windows {
			out = append(out, discoveredWindow{session: sess.Name, window: w})
		}
	}
	return out, nil
}

// reconcileRecords creates records for newly discovered agent windows
// and removes records for windows that disappeared or were renamed out
// of an agent pattern, per spec.md §3's record lifecycle invariant.
func (s *Supervisor) reconcileRecords(discovered []discoveredWindow) {
	seen := make(map[string]bool, len(discovered))
	for _, d := range discovered {
		role, ok := deriveRole(d.window.Name)
		if !ok {
			continue
		}
		target := tmux.Target{Session: d.session, Window: d.window.Index}
		key := target.String()
		seen[key] = true
		if _, exists := s.records[key]; !exists {
			s.records[key] = &AgentRecord{
				Target:           target,
				Role:             role,
				State:            classifier.StateStarting,
				LastSeenChangeAt: time.Now(),
			}
		}
	}
	for key := range s.records {
		if !seen[key] {
			delete(s.records, key)
			delete(s.inFlight, key)
		}
	}
}

func (s *Supervisor) processOne(ctx context.Context, r *AgentRecord) {
	key := r.Target.String()

	s.mu.Lock()
	if s.inFlight[key] {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	tail, err := s.adapter.CapturePane(ctx, r.Target, s.opts.TailLines)
	if err != nil {
		if orcerr.IsNotFound(err) {
			s.mu.Lock()
			delete(s.records, key)
			s.mu.Unlock()
			return
		}
		if s.log != nil {
			s.log.Warn("capture_pane failed", zap.String("target", key), zap.Error(err))
		}
		return
	}

	elapsed := r.ConsecutiveIdleChecks
	newHash := classifier.HashTail(tail)
	changed := newHash != r.LastActivityHash
	if changed {
		elapsed = 0
	} else {
		elapsed++
	}

	newState := classifier.Classify(classifier.Input{
		PrevTail:     r.PrevTail,
		NewTail:      tail,
		PrevState:    r.State,
		ElapsedTicks: elapsed,
		Thresholds: classifier.Thresholds{
			IdleTicks:         s.opts.IdleTicks,
			UnresponsiveTicks: s.opts.UnresponsiveTicks,
		},
	})

	if newState != r.State && s.publisher != nil {
		s.publisher.Publish("PaneStateChanged", r.Target.String(), r.Target.Session, newState.String())
	}

	decision := decide(r, newState)
	s.apply(ctx, r, decision)

	r.PrevTail = tail
	r.LastActivityHash = newHash
	if changed {
		r.LastSeenChangeAt = time.Now()
		r.ConsecutiveIdleChecks = 0
	} else {
		r.ConsecutiveIdleChecks = elapsed
	}
	if newState != classifier.StateIdle {
		r.SentNudgeThisIdleRun = false
	}
	if newState != classifier.StateUnresponsive {
		r.SentNudgeUnresponsive = false
	}
	r.State = newState
}

func (s *Supervisor) apply(ctx context.Context, r *AgentRecord, d Decision) {
	key := r.Target.String()

	switch d.Kind {
	case DecisionNoOp:
		return

	case DecisionSendNudge:
		if r.State == classifier.StateUnresponsive {
			if r.SentNudgeUnresponsive {
				return
			}
			r.SentNudgeUnresponsive = true
		} else {
			if r.SentNudgeThisIdleRun {
				return
			}
			r.SentNudgeThisIdleRun = true
		}
		if s.submitter != nil {
			_ = s.submitter.Deliver(ctx, d.Target, d.Message)
		}

	case DecisionRestart, DecisionRespawnPM:
		if s.rateLimited(key) {
			s.recordAudit(r, "RateLimited", "crash-loop backoff active")
			return
		}
		s.mu.Lock()
		s.inFlight[key] = true
		s.mu.Unlock()

		s.bumpCrashLoop(key)
		r.RecoveryAttemptsInWindow++
		r.LastRecoveryAt = time.Now()

		s.recover(ctx, r, d)

	case DecisionMarkMissing:
		s.mu.Lock()
		delete(s.records, key)
		delete(s.inFlight, key)
		s.mu.Unlock()
		s.recordAudit(r, "MarkMissing", "window disappeared")
	}
}

// recover performs the actual lifecycle write on the calling (tick)
// goroutine, serializing every spawn/restart/kill against tmux: the next
// record in Tick's loop simply waits its turn. The in_flight set (spec.md
// §4.6) still guards against this same target being re-decided mid-tick
// by a concurrent caller of processOne.
func (s *Supervisor) recover(ctx context.Context, r *AgentRecord, d Decision) {
	key := r.Target.String()
	defer func() {
		s.mu.Lock()
		delete(s.inFlight, key)
		s.mu.Unlock()
	}()

	var err error
	switch d.Kind {
	case DecisionRestart:
		err = s.lifecycle.Restart(ctx, d.Target)
		s.recordAudit(r, "Restart", errString(err))
	case DecisionRespawnPM:
		_, err = s.lifecycle.Spawn(ctx, d.Session, "pm", "", lifecycle.Briefing{})
		s.recordAudit(r, "RespawnPM", errString(err))
	}
	if err != nil && s.log != nil {
		s.log.Error("recovery action failed", zap.String("target", key), zap.Error(err))
	}
}

func (s *Supervisor) rateLimited(key string) bool {
	v, found := s.crashLoop.Get(key)
	if !found {
		return false
	}
	count, _ := v.(int)
	return count >= s.opts.CrashLoopLimit
}

func (s *Supervisor) bumpCrashLoop(key string) {
	if v, found := s.crashLoop.Get(key); found {
		count, _ := v.(int)
		s.crashLoop.Set(key, count+1, cache.DefaultExpiration)
		return
	}
	s.crashLoop.Set(key, 1, cache.DefaultExpiration)
}

func (s *Supervisor) recordAudit(r *AgentRecord, kind, reason string) {
	if s.audit != nil {
		s.audit.RecordDecision(r.Target.String(), r.Target.Session, kind, reason)
	}
	if s.publisher != nil {
		s.publisher.Publish(kind, r.Target.String(), r.Target.Session, reason)
	}
}

// Snapshot returns a point-in-time copy of every AgentRecord the
// Supervisor currently tracks, for read-only consumers (internal/server,
// cmd/orcdash). Callers must not mutate the Supervisor through it.
func (s *Supervisor) Snapshot() []AgentRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AgentRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, *r)
	}
	return out
}

func errString(err error) string {
	if err == nil {
		return "ok"
	}
	return err.Error()
}
