package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/swpsco/nockpool-launcher/internal/history"
	"github.com/swpsco/nockpool-launcher/internal/metrics"
)

// DefaultSentinel is the in-band restart request the miner may print on
// either output stream.
const DefaultSentinel = "restart-miner-now"

// Restart trigger names used in logs, metrics, and history records.
const (
	TriggerSentinel = "sentinel"
	TriggerUpdate   = "update"
	TriggerExit     = "exit"
)

// LaunchError means the current pointer does not resolve to an executable
// miner binary. It is a precondition violation, not a runtime condition to
// recover from.
type LaunchError struct {
	Path string
	Err  error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch miner %s: %v", e.Path, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// Config wires a Supervisor.
type Config struct {
	// BinaryPath returns the path of the active miner binary; it resolves
	// through the current symlink so a relaunch after promote picks up the
	// new build.
	BinaryPath func() string
	Args       []string
	// Sentinel substring that requests a restart. DefaultSentinel when empty.
	Sentinel string
	// Updates is the update-ready notification from the update coordinator.
	Updates <-chan string
	Logger  *slog.Logger
	Sinks   []history.Sink
	// ForwardTo receives every non-sentinel miner output line. os.Stderr
	// when nil.
	ForwardTo io.Writer
	// StdoutLog/StderrLog optionally tee miner output into rotating files.
	StdoutLog io.Writer
	StderrLog io.Writer
}

// Supervisor owns the miner child process. Its Run loop launches the miner
// and arbitrates among four restart triggers: operator shutdown, the output
// sentinel, an update-ready notification, and the child exiting on its own.
// At most one child is alive at any time.
type Supervisor struct {
	cfg Config

	mu       sync.Mutex
	st       Status
	launches int
}

// Status is a point-in-time snapshot of the supervised miner.
type Status struct {
	Running   bool      `json:"running"`
	PID       int       `json:"pid"`
	Binary    string    `json:"binary"`
	StartedAt time.Time `json:"started_at"`
	Restarts  int       `json:"restarts"`
}

func New(cfg Config) *Supervisor {
	if cfg.Sentinel == "" {
		cfg.Sentinel = DefaultSentinel
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ForwardTo == nil {
		cfg.ForwardTo = os.Stderr
	}
	return &Supervisor{cfg: cfg}
}

// Status reports the currently supervised miner, if any.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st
}

func (s *Supervisor) markStopped() {
	s.mu.Lock()
	s.st.Running = false
	s.mu.Unlock()
}

type child struct {
	cmd    *exec.Cmd
	waitCh chan error
	// restartCh is per-generation and edge-triggered: the first sentinel
	// match on either stream wins, later ones are collapsed.
	restartCh chan struct{}
}

// Run executes the supervision loop until ctx is cancelled. Exactly one
// trigger is consumed per iteration; duplicate or superseded triggers
// collapse into a single relaunch, which is idempotent.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		// A shutdown that raced with another trigger must not cause one
		// more relaunch.
		select {
		case <-ctx.Done():
			s.markStopped()
			s.cfg.Logger.Info("miner shut down")
			return nil
		default:
		}

		c, err := s.launch()
		if err != nil {
			return err
		}

		// The fresh child resolved through the current pointer, so an
		// update notification sent before this launch is already
		// satisfied. Without the drain, an update racing a child exit
		// would relaunch twice.
		select {
		case version := <-s.cfg.Updates:
			s.cfg.Logger.Info("update already applied by this launch", "version", version)
		default:
		}

		select {
		case <-ctx.Done():
			s.cfg.Logger.Info("shutting down miner...")
			s.kill(c)
			s.markStopped()
			metrics.IncMinerStop()
			s.record(history.Event{Type: history.EventMinerStop, OccurredAt: time.Now().UTC(), Detail: "shutdown"})
			s.cfg.Logger.Info("miner shut down")
			return nil

		case <-c.restartCh:
			s.cfg.Logger.Info("miner requested restart")
			s.stopForRestart(c, TriggerSentinel)

		case version := <-s.cfg.Updates:
			s.cfg.Logger.Info("restarting miner for update", "version", version)
			s.stopForRestart(c, TriggerUpdate)

		case err := <-c.waitCh:
			s.cfg.Logger.Info("miner exited", "status", exitStatus(err))
			metrics.IncMinerRestart(TriggerExit)
			s.record(history.Event{Type: history.EventMinerRestart, OccurredAt: time.Now().UTC(), Trigger: TriggerExit, Detail: exitStatus(err)})
		}
	}
}

// launch starts the miner with piped stdout/stderr and attaches the line
// scanners and the exit waiter.
func (s *Supervisor) launch() (*child, error) {
	path := s.cfg.BinaryPath()
	fi, err := os.Stat(path)
	if err != nil {
		return nil, &LaunchError{Path: path, Err: err}
	}
	if fi.Mode().Perm()&0o111 == 0 {
		return nil, &LaunchError{Path: path, Err: errors.New("not executable")}
	}

	// #nosec G204 -- path comes from the launcher's own install store
	cmd := exec.Command(path, s.cfg.Args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &LaunchError{Path: path, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &LaunchError{Path: path, Err: err}
	}
	if err := cmd.Start(); err != nil {
		return nil, &LaunchError{Path: path, Err: err}
	}

	c := &child{
		cmd:       cmd,
		waitCh:    make(chan error, 1),
		restartCh: make(chan struct{}, 1),
	}
	go func() { c.waitCh <- cmd.Wait() }()
	go s.scan(stdout, c.restartCh, s.cfg.StdoutLog)
	go s.scan(stderr, c.restartCh, s.cfg.StderrLog)

	s.mu.Lock()
	s.launches++
	s.st = Status{
		Running:   true,
		PID:       cmd.Process.Pid,
		Binary:    path,
		StartedAt: time.Now().UTC(),
		Restarts:  s.launches - 1,
	}
	s.mu.Unlock()

	s.cfg.Logger.Info("miner started", "pid", cmd.Process.Pid)
	metrics.IncMinerStart()
	s.record(history.Event{Type: history.EventMinerStart, OccurredAt: time.Now().UTC(), PID: cmd.Process.Pid})
	return c, nil
}

// scan reads lines from one output stream. A line containing the sentinel
// signals the restart trigger and stops the scanner; it is never forwarded.
// Every other line goes unmodified to the forward writer and the optional
// rotating log.
func (s *Supervisor) scan(r io.Reader, restartCh chan struct{}, fileLog io.Writer) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if strings.Contains(line, s.cfg.Sentinel) {
			select {
			case restartCh <- struct{}{}:
			default:
			}
			return
		}
		fmt.Fprintln(s.cfg.ForwardTo, line)
		if fileLog != nil {
			fmt.Fprintln(fileLog, line)
		}
	}
}

// stopForRestart terminates the child and reaps it before the next launch,
// preserving the at-most-one-live-child invariant.
func (s *Supervisor) stopForRestart(c *child, trigger string) {
	s.kill(c)
	<-c.waitCh
	metrics.IncMinerRestart(trigger)
	s.record(history.Event{Type: history.EventMinerRestart, OccurredAt: time.Now().UTC(), Trigger: trigger})
}

// kill issues a non-blocking termination request to the child's process
// group.
func (s *Supervisor) kill(c *child) {
	if c.cmd.Process == nil {
		return
	}
	pid := c.cmd.Process.Pid
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil {
		// Fall back to the direct pid when the group is already gone.
		_ = syscall.Kill(pid, syscall.SIGKILL)
	}
}

func (s *Supervisor) record(e history.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, snk := range s.cfg.Sinks {
		if err := snk.Send(ctx, e); err != nil {
			s.cfg.Logger.Warn("history sink send failed", "error", err)
		}
	}
}

func exitStatus(err error) string {
	if err == nil {
		return "exit status 0"
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.String()
	}
	return err.Error()
}
