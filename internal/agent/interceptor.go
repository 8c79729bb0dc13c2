package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/crystaldolphin/toolstream/internal/schema"
	"github.com/crystaldolphin/toolstream/internal/session"
	"github.com/crystaldolphin/toolstream/internal/shared/llmutils"
)

// ErrorMarker prefixes the single chunk written when a turn fails.
const ErrorMarker = "[ERROR] "

const (
	stageFirst    = "first"
	stageFollowup = "followup"
)

var (
	// ErrFirstFragmentTimeout is wrapped in an UpstreamStreamError when a
	// stream yields nothing within Options.FirstFragmentTimeout.
	ErrFirstFragmentTimeout = errors.New("no output from model before first-fragment timeout")

	// ErrClientGone wraps failures writing to the caller.
	ErrClientGone = errors.New("client gone")
)

// UpstreamStreamError is a model-service connection or decode failure.
type UpstreamStreamError struct {
	Stage string
	Err   error
}

func (e *UpstreamStreamError) Error() string {
	return fmt.Sprintf("model stream failed (%s): %v", e.Stage, e.Err)
}

func (e *UpstreamStreamError) Unwrap() error { return e.Err }

// ChunkWriter receives the text relayed to the caller.
type ChunkWriter interface {
	WriteChunk(chunk string) error
}

// ChunkWriterFunc adapts a function to ChunkWriter.
type ChunkWriterFunc func(chunk string) error

func (f ChunkWriterFunc) WriteChunk(chunk string) error { return f(chunk) }

// ToolInvoker performs one tool call. A non-nil error means the call could
// not be delivered; tool-level failures arrive inside the result.
type ToolInvoker interface {
	CallTool(ctx context.Context, name string, args map[string]any) (schema.ToolResult, error)
}

// Options configures an Interceptor.
type Options struct {
	Model       string
	Temperature float64
	// FirstFragmentTimeout bounds the wait for each stream's first fragment.
	// Zero disables it.
	FirstFragmentTimeout time.Duration
}

// Interceptor runs chat turns: it relays a model stream to the caller while
// watching it for a tool invocation, and on detection dispatches the tool and
// relays a second stream in place of the first.
type Interceptor struct {
	provider schema.LLMProvider
	invoker  ToolInvoker
	sessions *session.Store
	opts     Options
}

// NewInterceptor creates an Interceptor.
func NewInterceptor(provider schema.LLMProvider, invoker ToolInvoker, sessions *session.Store, opts Options) *Interceptor {
	if opts.Model == "" {
		opts.Model = provider.DefaultModel()
	}
	return &Interceptor{
		provider: provider,
		invoker:  invoker,
		sessions: sessions,
		opts:     opts,
	}
}

// RunTurn appends message to the session, streams the reply to out and
// records the turn. Turns on one session run one at a time.
//
// If the turn fails or ctx is cancelled, the session is restored to its state
// before the turn. Upstream failures are reported to out as one chunk starting
// with ErrorMarker; cancellation and write failures are not.
func (in *Interceptor) RunTurn(ctx context.Context, sessionID, message string, out ChunkWriter) error {
	sess, err := in.sessions.GetOrCreate(sessionID)
	if err != nil {
		return err
	}
	if err := sess.Lock(ctx); err != nil {
		return err
	}
	defer sess.Unlock()

	slog.Info("Processing message", "session", sessionID, "content", llmutils.Truncate(message, 80))

	base := sess.Len()
	committed := false
	defer func() {
		if !committed {
			sess.Truncate(base)
		}
	}()

	sess.Append(schema.NewUserMessage(message))

	reply, err := in.turn(ctx, sess, out)
	if err != nil {
		return in.abort(ctx, sessionID, err, out)
	}

	sess.Append(schema.NewAssistantMessage(reply))
	committed = true
	in.sessions.Enforce(sess)

	slog.Info("Response sent", "session", sessionID, "content", llmutils.Truncate(reply, 120))
	return nil
}

// turn runs the streams of one turn and returns the reply to persist.
func (in *Interceptor) turn(ctx context.Context, sess *session.Session, out ChunkWriter) (string, error) {
	first, err := in.open(ctx, stageFirst, sess.History())
	if err != nil {
		return "", err
	}
	w := &watcher{}
	inv, detected, err := relayWatched(first, w, out)
	first.close()
	if err != nil {
		return "", err
	}
	if !detected {
		return w.Reply(), nil
	}

	result, err := in.invoke(ctx, inv)
	if err != nil {
		return "", err
	}
	sess.Append(schema.NewToolMessage(result))

	second, err := in.open(ctx, stageFollowup, sess.History())
	if err != nil {
		return "", err
	}
	defer second.close()
	return relay(second, out)
}

// relayWatched forwards the first stream through w. It stops reading as soon
// as an invocation is detected; the rest of that stream is abandoned.
func relayWatched(u *upstream, w *watcher, out ChunkWriter) (schema.Invocation, bool, error) {
	for {
		frag, err := u.recv()
		if err == io.EOF {
			return schema.Invocation{}, false, write(out, w.flush()...)
		}
		if err != nil {
			return schema.Invocation{}, false, err
		}

		forward, inv, detected := w.feed(frag)
		if detected {
			return inv, true, nil
		}
		if err := write(out, forward...); err != nil {
			return schema.Invocation{}, false, err
		}
	}
}

// relay forwards every fragment of u and returns the concatenated text.
func relay(u *upstream, out ChunkWriter) (string, error) {
	var reply []byte
	for {
		frag, err := u.recv()
		if err == io.EOF {
			return string(reply), nil
		}
		if err != nil {
			return "", err
		}
		reply = append(reply, frag...)
		if err := write(out, frag); err != nil {
			return "", err
		}
	}
}

func write(out ChunkWriter, chunks ...string) error {
	for _, c := range chunks {
		if err := out.WriteChunk(c); err != nil {
			return fmt.Errorf("%w: %v", ErrClientGone, err)
		}
	}
	return nil
}

// invoke dispatches inv. Delivery failures become error results so the model
// can respond to them; only cancellation of ctx aborts the turn.
func (in *Interceptor) invoke(ctx context.Context, inv schema.Invocation) (schema.ToolResult, error) {
	slog.Info("Tool call", "call", llmutils.InvocationHint(inv))

	start := time.Now()
	result, err := in.invoker.CallTool(ctx, inv.Name, inv.Arguments)
	if ctx.Err() != nil {
		return schema.ToolResult{}, ctx.Err()
	}
	if err != nil {
		slog.Warn("Tool dispatch failed", "tool", inv.Name, "err", err)
		return schema.ErrorResult(err.Error()), nil
	}

	if result.IsError() {
		slog.Warn("Tool returned error", "tool", inv.Name, "error", llmutils.Truncate(result.Error, 200))
	} else {
		slog.Debug("Tool done", "tool", inv.Name, "elapsed_ms", time.Since(start).Milliseconds())
	}
	return result, nil
}

func (in *Interceptor) abort(ctx context.Context, sessionID string, err error, out ChunkWriter) error {
	if ctx.Err() != nil || errors.Is(err, ErrClientGone) {
		slog.Info("Turn aborted", "session", sessionID, "err", err)
		return err
	}

	slog.Error("Turn failed", "session", sessionID, "err", err)
	if werr := out.WriteChunk(ErrorMarker + err.Error()); werr != nil {
		slog.Debug("Error marker not delivered", "session", sessionID, "err", werr)
	}
	return err
}

// upstream is one open generation stream plus its first-fragment timer.
type upstream struct {
	stage    string
	parent   context.Context
	cancel   context.CancelFunc
	timer    *time.Timer
	timedOut atomic.Bool
	started  bool
	stream   schema.TextStream
}

func (in *Interceptor) open(ctx context.Context, stage string, history schema.Messages) (*upstream, error) {
	sctx, cancel := context.WithCancel(ctx)
	u := &upstream{stage: stage, parent: ctx, cancel: cancel}
	if d := in.opts.FirstFragmentTimeout; d > 0 {
		u.timer = time.AfterFunc(d, func() {
			u.timedOut.Store(true)
			cancel()
		})
	}

	stream, err := in.provider.Stream(sctx, history, schema.NewStreamOptions(in.opts.Model, in.opts.Temperature))
	if err != nil {
		u.close()
		return nil, u.fail(err)
	}
	u.stream = stream
	return u, nil
}

func (u *upstream) recv() (string, error) {
	frag, err := u.stream.Recv()
	if err == nil && !u.started {
		u.started = true
		if u.timer != nil && !u.timer.Stop() {
			return "", u.fail(ErrFirstFragmentTimeout)
		}
	}
	if err == io.EOF && !u.timedOut.Load() {
		return "", io.EOF
	}
	if err != nil {
		return "", u.fail(err)
	}
	return frag, nil
}

// fail maps a stream error to what the turn reports: the caller's own
// cancellation, a first-fragment timeout, or an upstream failure.
func (u *upstream) fail(err error) error {
	switch {
	case u.parent.Err() != nil:
		return u.parent.Err()
	case u.timedOut.Load():
		return &UpstreamStreamError{Stage: u.stage, Err: ErrFirstFragmentTimeout}
	default:
		return &UpstreamStreamError{Stage: u.stage, Err: err}
	}
}

func (u *upstream) close() {
	if u.timer != nil {
		u.timer.Stop()
	}
	u.cancel()
	if u.stream != nil {
		if err := u.stream.Close(); err != nil {
			slog.Debug("Closing model stream", "stage", u.stage, "err", err)
		}
	}
}
