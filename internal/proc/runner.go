// Package proc spawns agent CLI processes, streams and classifies
// their output, and enforces timeouts.
package proc

import (
	"bufio"
	"context"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tmsolberg/conductor/internal/logging"
	"github.com/tmsolberg/conductor/internal/models"
)

// Sentinel exit codes for runs that never produced a normal exit.
const (
	// ExitCodeTimeout is reported when the wall-clock limit expired.
	ExitCodeTimeout = -2

	// ExitCodeNoOutput is reported when the process produced no output
	// within the startup window. Used to detect auxiliary-service
	// startup failure.
	ExitCodeNoOutput = -3
)

const (
	defaultLogBatchLines     = 10
	defaultHeartbeatInterval = 15 * time.Second
	lineChannelDepth         = 256
	pipeDrainGrace           = 2 * time.Second
)

// Sink receives batched log writes and ordered events. The store is
// expected to serialize concurrent writers; batching here bounds write
// amplification against it.
type Sink interface {
	AppendLog(ctx context.Context, runID, text string) error
	AppendEvent(ctx context.Context, runID, eventType string, payload map[string]any) (int64, error)
}

// Request describes one agent process invocation.
type Request struct {
	RunID           string
	Binary          string
	Args            []string
	Env             map[string]string
	Workspace       string
	Timeout         time.Duration
	NoOutputTimeout time.Duration

	// OnStart receives the process id once the process is running.
	OnStart func(pid int)
}

// Result is the outcome of one process invocation. Process failure is
// communicated here, never as an error.
type Result struct {
	Success  bool
	Output   string
	ExitCode int
}

// Runner executes agent CLI processes and streams their output.
type Runner struct {
	Sink              Sink
	Logger            zerolog.Logger
	LogBatchLines     int
	HeartbeatInterval time.Duration
}

// NewRunner creates a Runner with default settings.
func NewRunner(sink Sink) *Runner {
	return &Runner{
		Sink:              sink,
		Logger:            logging.Component("proc"),
		LogBatchLines:     defaultLogBatchLines,
		HeartbeatInterval: defaultHeartbeatInterval,
	}
}

// Run spawns the process with merged output streams and reads it line
// by line on a dedicated reader, so heartbeats and timeouts are
// observed while waiting. Returns success = (exit code 0) together
// with the concatenated raw output.
func (r *Runner) Run(ctx context.Context, req Request) Result {
	if r.LogBatchLines <= 0 {
		r.LogBatchLines = defaultLogBatchLines
	}
	if r.HeartbeatInterval <= 0 {
		r.HeartbeatInterval = defaultHeartbeatInterval
	}

	cmd := exec.Command(req.Binary, req.Args...)
	cmd.Dir = req.Workspace
	cmd.Env = mergedEnv(req.Env)

	pr, pw, err := os.Pipe()
	if err != nil {
		r.Logger.Error().Err(err).Msg("failed to create output pipe")
		return Result{Success: false, Output: err.Error(), ExitCode: -1}
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		r.Logger.Error().Err(err).Str("binary", req.Binary).Msg("failed to start process")
		return Result{Success: false, Output: err.Error(), ExitCode: -1}
	}
	// The child holds its own copy of the write end.
	_ = pw.Close()

	if req.OnStart != nil {
		req.OnStart(cmd.Process.Pid)
	}
	r.Logger.Debug().Str("run_id", req.RunID).Int("pid", cmd.Process.Pid).Str("binary", req.Binary).Msg("process started")

	lines := make(chan string, lineChannelDepth)
	go func() {
		defer close(lines)
		defer pr.Close()
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	return r.consume(ctx, req, cmd, lines, waitCh)
}

// consume drains the line channel, classifying output and enforcing
// both timeout policies.
func (r *Runner) consume(ctx context.Context, req Request, cmd *exec.Cmd, lines <-chan string, waitCh <-chan error) Result {
	var (
		output    strings.Builder
		logBatch  []string
		assistant []string
		gotFirst  bool
		killCode  int
	)

	heartbeat := time.NewTicker(r.HeartbeatInterval)
	defer heartbeat.Stop()

	var overallCh <-chan time.Time
	if req.Timeout > 0 {
		overall := time.NewTimer(req.Timeout)
		defer overall.Stop()
		overallCh = overall.C
	}

	var noOutputCh <-chan time.Time
	if req.NoOutputTimeout > 0 {
		noOutput := time.NewTimer(req.NoOutputTimeout)
		defer noOutput.Stop()
		noOutputCh = noOutput.C
	}

	flushLog := func() {
		if len(logBatch) == 0 || r.Sink == nil {
			return
		}
		_ = r.Sink.AppendLog(ctx, req.RunID, strings.Join(logBatch, "\n")+"\n")
		logBatch = logBatch[:0]
	}
	flushAssistant := func() {
		if len(assistant) == 0 {
			return
		}
		block := strings.Join(assistant, "\n")
		assistant = assistant[:0]
		r.emit(ctx, req.RunID, models.EventAssistantText, map[string]any{"text": block})
		logBatch = append(logBatch, block)
	}
	handleLine := func(line string) {
		output.WriteString(line)
		output.WriteString("\n")

		events, structured := ClassifyLine(line)
		if !structured {
			logBatch = append(logBatch, line)
		}
		for _, ev := range events {
			switch ev.Type {
			case models.EventAssistantText:
				// Fragments are flushed as one block at the next tool
				// or result boundary.
				assistant = append(assistant, ev.Text)
			case models.EventToolStarted:
				flushAssistant()
				r.emit(ctx, req.RunID, ev.Type, map[string]any{"tool": ev.Tool})
			case models.EventToolCompleted:
				flushAssistant()
				r.emit(ctx, req.RunID, ev.Type, map[string]any{"tool": ev.Tool})
			case models.EventModelInit:
				r.emit(ctx, req.RunID, ev.Type, map[string]any{"model": ev.Model})
			case models.EventResultSummary:
				flushAssistant()
				r.emit(ctx, req.RunID, ev.Type, map[string]any{"text": ev.Text, "is_error": ev.IsError})
			}
		}
		if len(logBatch) >= r.LogBatchLines {
			flushLog()
		}
	}
	kill := func(code int, reason string) {
		killCode = code
		r.Logger.Warn().Str("run_id", req.RunID).Str("reason", reason).Msg("killing process")
		_ = cmd.Process.Kill()
	}

	// Orphaned grandchildren can keep the pipe's write end open past
	// the process's own exit, so the line channel alone cannot signal
	// completion. After Wait returns, a short grace period bounds how
	// long we keep reading.
	var waitErr error
	waitDone := false
	var graceCh <-chan time.Time

	done := false
	for !done {
		select {
		case line, ok := <-lines:
			if !ok {
				done = true
				break
			}
			gotFirst = true
			handleLine(line)
		case waitErr = <-waitCh:
			waitDone = true
			waitCh = nil
			grace := time.NewTimer(pipeDrainGrace)
			defer grace.Stop()
			graceCh = grace.C
		case <-graceCh:
			done = drainBuffered(lines, handleLine)
		case <-noOutputCh:
			if gotFirst {
				noOutputCh = nil
				continue
			}
			kill(ExitCodeNoOutput, "no output within startup window")
			noOutputCh = nil
		case <-overallCh:
			kill(ExitCodeTimeout, "wall-clock timeout")
			overallCh = nil
		case <-ctx.Done():
			kill(ExitCodeTimeout, "context cancelled")
			ctx = context.WithoutCancel(ctx)
		case <-heartbeat.C:
			r.emit(ctx, req.RunID, models.EventHeartbeat, nil)
		}
	}

	if !waitDone {
		waitErr = <-waitCh
	}
	flushAssistant()
	flushLog()

	exitCode := exitCodeFromError(waitErr)
	if killCode != 0 {
		exitCode = killCode
	}

	return Result{
		Success:  exitCode == 0,
		Output:   output.String(),
		ExitCode: exitCode,
	}
}

func (r *Runner) emit(ctx context.Context, runID, eventType string, payload map[string]any) {
	if r.Sink == nil {
		return
	}
	if _, err := r.Sink.AppendEvent(ctx, runID, eventType, payload); err != nil {
		r.Logger.Warn().Err(err).Str("run_id", runID).Str("type", eventType).Msg("failed to append event")
	}
}

// drainBuffered consumes lines already sitting in the channel without
// blocking for more.
func drainBuffered(lines <-chan string, handle func(string)) bool {
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return true
			}
			handle(line)
		default:
			return true
		}
	}
}

func mergedEnv(overlay map[string]string) []string {
	env := os.Environ()
	for key, value := range overlay {
		env = append(env, key+"="+value)
	}
	return env
}

func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}
