package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/glimte/unitbus/contracts"
	"github.com/glimte/unitbus/internal/clock"
)

// CommandStatus represents the state of an emitted command
type CommandStatus string

const (
	CommandStatusPending  CommandStatus = "pending"
	CommandStatusResolved CommandStatus = "resolved"
	CommandStatusTimedOut CommandStatus = "timed_out"
	CommandStatusErrored  CommandStatus = "errored"
)

// DoneCallback is called when the reply of a command arrives
type DoneCallback func(reply contracts.CommandReply, success bool, message string)

// FailedCallback is called when a command ends without a reply
type FailedCallback func(failType contracts.CommandFailType, message string)

// CommandCallbacks are invoked on the terminal transition of a command
type CommandCallbacks struct {
	Done   DoneCallback
	Failed FailedCallback
}

// PendingCommand is the awaitable handle of an emitted command
type PendingCommand struct {
	name  string
	trace string
	done  chan struct{}

	// Written once before done is closed
	status CommandStatus
	reply  contracts.CommandReply
	err    error
}

func newPendingCommand(name, trace string) *PendingCommand {
	return &PendingCommand{
		name:   name,
		trace:  trace,
		done:   make(chan struct{}),
		status: CommandStatusPending,
	}
}

// Name returns the command name
func (p *PendingCommand) Name() string {
	return p.name
}

// Trace returns the correlation identifier of the command
func (p *PendingCommand) Trace() string {
	return p.trace
}

// Done is closed once the command reached a terminal state
func (p *PendingCommand) Done() <-chan struct{} {
	return p.done
}

// Status returns the current state of the command
func (p *PendingCommand) Status() CommandStatus {
	select {
	case <-p.done:
		return p.status
	default:
		return CommandStatusPending
	}
}

// Wait blocks until the command reached a terminal state or ctx is done.
// A received reply is returned even if it reports failure; a missing reply is returned as
// *contracts.CommandError. Cancelling ctx stops the wait but leaves the command pending.
func (p *PendingCommand) Wait(ctx context.Context) (contracts.CommandReply, error) {
	select {
	case <-p.done:
		return p.reply, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *PendingCommand) settle(status CommandStatus, reply contracts.CommandReply, err error) {
	p.status = status
	p.reply = reply
	p.err = err
	close(p.done)
}

// AwaitReply waits for the reply of a command and asserts its type
func AwaitReply[R contracts.CommandReply](ctx context.Context, p *PendingCommand) (R, error) {
	var zero R

	reply, err := p.Wait(ctx)
	if err != nil {
		return zero, err
	}

	typed, ok := reply.(R)
	if !ok {
		return zero, fmt.Errorf("command %s <%s>: expected reply %T, got %T", p.name, p.trace, zero, reply)
	}
	return typed, nil
}

type trackedCommand struct {
	pending   *PendingCommand
	callbacks CommandCallbacks
	timer     clock.Timer
	emittedAt time.Time
}

// CommandTracker correlates emitted commands with their replies by trace.
// Each tracked command reaches exactly one terminal state: the first of reply,
// timeout and failure wins and removes the entry.
type CommandTracker struct {
	pending map[string]*trackedCommand
	mu      sync.Mutex
	clock   clock.Clock
	logger  *slog.Logger
	metrics MetricsCollector
}

// TrackerOption configures the CommandTracker
type TrackerOption func(*CommandTracker)

// WithTrackerClock sets the clock used for deadlines
func WithTrackerClock(c clock.Clock) TrackerOption {
	return func(t *CommandTracker) {
		t.clock = c
	}
}

// WithTrackerLogger sets the logger
func WithTrackerLogger(logger *slog.Logger) TrackerOption {
	return func(t *CommandTracker) {
		t.logger = logger
	}
}

// WithTrackerMetrics sets the metrics collector
func WithTrackerMetrics(metrics MetricsCollector) TrackerOption {
	return func(t *CommandTracker) {
		t.metrics = metrics
	}
}

// NewCommandTracker creates a new command tracker
func NewCommandTracker(options ...TrackerOption) *CommandTracker {
	t := &CommandTracker{
		pending: make(map[string]*trackedCommand),
		clock:   clock.Real{},
		logger:  slog.Default(),
		metrics: &NoOpMetricsCollector{},
	}

	for _, opt := range options {
		opt(t)
	}

	return t
}

// Track registers a command as pending. A positive timeout arms a deadline after which the
// command fails with CommandFailTimeout.
func (t *CommandTracker) Track(cmd contracts.Command, timeout time.Duration, callbacks CommandCallbacks) (*PendingCommand, error) {
	if cmd == nil {
		return nil, fmt.Errorf("command cannot be nil")
	}
	trace := cmd.GetTrace()
	if trace == "" {
		return nil, fmt.Errorf("command %s has no trace", cmd.GetName())
	}

	entry := &trackedCommand{
		pending:   newPendingCommand(cmd.GetName(), trace),
		callbacks: callbacks,
		emittedAt: t.clock.Now(),
	}

	t.mu.Lock()
	if _, exists := t.pending[trace]; exists {
		t.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", contracts.ErrTraceInUse, trace)
	}
	t.pending[trace] = entry
	if timeout > 0 {
		entry.timer = t.clock.AfterFunc(timeout, func() {
			t.Fail(trace, contracts.CommandFailTimeout, fmt.Sprintf("no reply within %s", timeout))
		})
	}
	count := len(t.pending)
	t.mu.Unlock()

	t.metrics.SetPendingCommands(count)
	t.logger.Debug("tracking command", "command", cmd.GetName(), "trace", trace, "timeout", timeout)

	return entry.pending, nil
}

// Resolve settles the command matching the reply's trace.
// It returns false if no command with that trace is pending.
func (t *CommandTracker) Resolve(reply contracts.CommandReply) bool {
	if reply == nil {
		return false
	}

	entry, ok := t.take(reply.GetTrace())
	if !ok {
		t.logger.Debug("reply without pending command", "reply", reply.GetName(), "trace", reply.GetTrace())
		return false
	}

	t.metrics.RecordCommandOutcome(entry.pending.name, contracts.CommandFailNone, t.clock.Now().Sub(entry.emittedAt))

	t.invoke(entry, func() {
		if entry.callbacks.Done != nil {
			entry.callbacks.Done(reply, reply.IsSuccess(), reply.GetMessage())
		}
	})
	entry.pending.settle(CommandStatusResolved, reply, nil)
	return true
}

// Fail settles the pending command with the given trace without a reply.
// It returns false if no command with that trace is pending.
func (t *CommandTracker) Fail(trace string, failType contracts.CommandFailType, message string) bool {
	entry, ok := t.take(trace)
	if !ok {
		return false
	}

	status := CommandStatusErrored
	if failType == contracts.CommandFailTimeout {
		status = CommandStatusTimedOut
	}

	t.metrics.RecordCommandOutcome(entry.pending.name, failType, t.clock.Now().Sub(entry.emittedAt))
	t.logger.Warn("command failed",
		"command", entry.pending.name,
		"trace", trace,
		"fail_type", failType.String(),
		"reason", message)

	t.invoke(entry, func() {
		if entry.callbacks.Failed != nil {
			entry.callbacks.Failed(failType, message)
		}
	})
	entry.pending.settle(status, nil, &contracts.CommandError{
		FailType: failType,
		Name:     entry.pending.name,
		Trace:    trace,
		Message:  message,
	})
	return true
}

// Pending returns the number of commands waiting for a reply
func (t *CommandTracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Close fails all pending commands with CommandFailException
func (t *CommandTracker) Close() {
	t.mu.Lock()
	traces := make([]string, 0, len(t.pending))
	for trace := range t.pending {
		traces = append(traces, trace)
	}
	t.mu.Unlock()

	for _, trace := range traces {
		t.Fail(trace, contracts.CommandFailException, "tracker closed")
	}
}

func (t *CommandTracker) take(trace string) (*trackedCommand, bool) {
	t.mu.Lock()
	entry, ok := t.pending[trace]
	if ok {
		delete(t.pending, trace)
	}
	count := len(t.pending)
	t.mu.Unlock()

	if !ok {
		return nil, false
	}

	if entry.timer != nil {
		entry.timer.Stop()
	}
	t.metrics.SetPendingCommands(count)
	return entry, true
}

func (t *CommandTracker) invoke(entry *trackedCommand, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("command callback panicked",
				"command", entry.pending.name,
				"trace", entry.pending.trace,
				"panic", r)
		}
	}()
	fn()
}
