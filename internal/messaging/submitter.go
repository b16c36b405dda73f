package messaging

import (
	"context"
	"strings"
	"time"

	"github.com/rivo/uniseg"
	"go.uber.org/zap"

	"github.com/agentfleet/orchestrator/internal/classifier"
	"github.com/agentfleet/orchestrator/internal/orcerr"
	"github.com/agentfleet/orchestrator/internal/tmux"
)

// inputClearSequence is the idempotent key sequence sent before every
// message to clear whatever is sitting in the agent's input box
// (spec.md §4.4 step 2).
var inputClearSequence = []string{"C-c", "C-u", "Escape", "C-a", "C-k"}

// submitMethod is one of the four fallback submission strategies tried
// in order for each chunk.
type submitMethod int

const (
	methodStandard submitMethod = iota
	methodPasteBuffer
	methodLiteralKeys
	methodTrailingNewline
)

func (m submitMethod) String() string {
	switch m {
	case methodStandard:
		return "standard"
	case methodPasteBuffer:
		return "paste-buffer"
	case methodLiteralKeys:
		return "literal-keys"
	case methodTrailingNewline:
		return "trailing-newline"
	default:
		return "unknown"
	}
}

var allMethods = []submitMethod{methodStandard, methodPasteBuffer, methodLiteralKeys, methodTrailingNewline}

// SubmitOptions carries the timing knobs from internal/config.Config
// relevant to delivery.
type SubmitOptions struct {
	MaxChunkSize    int
	InterChunkDelay time.Duration
	SettleDelay     time.Duration
	TailLines       int
	ClearSpacing    time.Duration
}

// DefaultSubmitOptions mirrors config.Default()'s messaging-relevant fields.
func DefaultSubmitOptions() SubmitOptions {
	return SubmitOptions{
		MaxChunkSize:    DefaultMaxChunkSize,
		InterChunkDelay: 200 * time.Millisecond,
		SettleDelay:     300 * time.Millisecond,
		TailLines:       100,
		ClearSpacing:    200 * time.Millisecond,
	}
}

// Sleeper abstracts time.Sleep so tests can run the whole protocol
// without real delays.
type Sleeper func(time.Duration)

// ExternalFallbackFunc is invoked with the target and full message body
// after every in-process submission method has failed for some chunk. It
// mirrors send_message.py's fallback to an external `bin/tmux-message`
// script in the original Tmux-Orchestrator: an operator-supplied escape
// hatch, off by default (nil), never required for normal operation.
type ExternalFallbackFunc func(ctx context.Context, target tmux.Target, body string) error

// Submitter delivers ChunkPlans to panes and verifies submission,
// implementing the protocol in spec.md §4.4.
type Submitter struct {
	adapter tmux.Adapter
	opts    SubmitOptions
	sleep   Sleeper
	log     *zap.Logger

	// ExternalFallback, when set, is tried once for the whole message
	// body as soon as any one chunk exhausts its in-process fallback
	// methods; the remaining chunks are not attempted.
	ExternalFallback ExternalFallbackFunc
}

// NewSubmitter constructs a Submitter. sleep may be nil to use time.Sleep.
func NewSubmitter(adapter tmux.Adapter, opts SubmitOptions, log *zap.Logger, sleep Sleeper) *Submitter {
	if sleep == nil {
		sleep = time.Sleep
	}
	return &Submitter{adapter: adapter, opts: opts, sleep: sleep, log: log}
}

// Deliver sends body to target, chunking as needed, and returns an error
// describing the first unrecoverable failure, if any. If every
// in-process method fails for some chunk and ExternalFallback is set, it
// is tried once for the full body before giving up.
func (s *Submitter) Deliver(ctx context.Context, target tmux.Target, body string) error {
	ready, err := s.isReady(ctx, target)
	if err != nil {
		return err
	}
	if !ready {
		return &orcerr.NotReadyError{Target: target.String()}
	}

	s.clearInput(ctx, target)

	plan := ChunkMessage(body, s.opts.MaxChunkSize)
	for i, chunk := range plan.Chunks {
		if err := s.deliverChunk(ctx, target, chunk); err != nil {
			if s.ExternalFallback != nil {
				return s.ExternalFallback(ctx, target, body)
			}
			return err
		}
		if i < len(plan.Chunks)-1 {
			s.sleep(s.opts.InterChunkDelay)
		}
	}
	return nil
}

func (s *Submitter) isReady(ctx context.Context, target tmux.Target) (bool, error) {
	tail, err := s.adapter.CapturePane(ctx, target, s.opts.TailLines)
	if err != nil {
		return false, err
	}
	state := classifier.Classify(classifier.Input{PrevTail: tail, NewTail: tail, PrevState: classifier.StateUnknown})
	return state == classifier.StateReady || state == classifier.StateIdle, nil
}

func (s *Submitter) clearInput(ctx context.Context, target tmux.Target) {
	for _, key := range inputClearSequence {
		_ = s.adapter.SendKeys(ctx, target, key, false)
		s.sleep(s.opts.ClearSpacing)
	}
}

func (s *Submitter) deliverChunk(ctx context.Context, target tmux.Target, chunk Chunk) error {
	var tried []string
	for _, method := range allMethods {
		tried = append(tried, method.String())
		if err := s.attempt(ctx, target, chunk.Payload, method); err != nil {
			if s.log != nil {
				s.log.Debug("submission attempt failed",
					zap.String("target", target.String()),
					zap.String("method", method.String()),
					zap.Error(err))
			}
			continue
		}
		s.sleep(s.opts.SettleDelay)
		ok, err := s.verify(ctx, target, chunk.Payload)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return &orcerr.SubmissionFailedError{ChunkIndex: chunk.Index, MethodsTried: tried}
}

func (s *Submitter) attempt(ctx context.Context, target tmux.Target, payload string, method submitMethod) error {
	switch method {
	case methodStandard:
		if err := s.adapter.SendKeys(ctx, target, payload, true); err != nil {
			return err
		}
		return s.adapter.SendKeys(ctx, target, "C-Enter", false)
	case methodPasteBuffer:
		if err := s.adapter.SetPasteBuffer(ctx, payload); err != nil {
			return err
		}
		if err := s.adapter.PasteBuffer(ctx, target); err != nil {
			return err
		}
		return s.adapter.SendKeys(ctx, target, "C-Enter", false)
	case methodLiteralKeys:
		// Unlike methodStandard's single bulk "-l" write, this types the
		// payload one grapheme cluster at a time. Some multiplexer/terminal
		// combinations truncate or reorder a large literal write; a
		// per-cluster send is slower but survives that failure mode, and
		// submits with a bare Enter rather than C-Enter since it is meant
		// to behave like a human typing into the prompt.
		gr := uniseg.NewGraphemes(payload)
		for gr.Next() {
			if err := s.adapter.SendKeys(ctx, target, gr.Str(), true); err != nil {
				return err
			}
		}
		return s.adapter.SendKeys(ctx, target, "Enter", false)
	case methodTrailingNewline:
		if err := s.adapter.SendKeys(ctx, target, payload+"\n", true); err != nil {
			return err
		}
		return s.adapter.SendKeys(ctx, target, "Enter", false)
	default:
		return &orcerr.BadArgumentError{Reason: "unknown submission method"}
	}
}

// verify reports whether the chunk appears to have been submitted: the
// payload text is no longer sitting in the input area, or new lines
// appeared beneath where it was (spec.md §4.4 step 3.b).
func (s *Submitter) verify(ctx context.Context, target tmux.Target, payload string) (bool, error) {
	tail, err := s.adapter.CapturePane(ctx, target, s.opts.TailLines)
	if err != nil {
		return false, err
	}
	core := strings.TrimSpace(stripPaginationHeader(payload))
	if core == "" {
		return true, nil
	}
	lines := strings.Split(tail, "\n")
	lastLine := ""
	if len(lines) > 0 {
		lastLine = lines[len(lines)-1]
	}
	stillInInput := strings.Contains(lastLine, core)
	return !stillInInput, nil
}

func stripPaginationHeader(payload string) string {
	if !strings.HasPrefix(payload, "[") {
		return payload
	}
	if idx := strings.Index(payload, "] "); idx >= 0 && idx < 12 {
		return payload[idx+2:]
	}
	return payload
}
