package transport

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/tiancaiamao/acp/pkg/acp"
	"github.com/tiancaiamao/acp/pkg/logger"
)

const (
	// Agent messages carrying whole file contents can get large.
	initialLineBuf = 64 * 1024
	maxLineBuf     = 10 * 1024 * 1024

	// How long we give the process after SIGTERM before SIGKILL.
	stopGrace = 2 * time.Second
)

// Config describes the agent subprocess to spawn.
type Config struct {
	Command string
	Args    []string
	// Env entries in KEY=VALUE form, layered over the parent environment.
	Env []string
	Dir string
}

// Transport owns an agent subprocess and its newline-delimited JSON
// wire. Each line written to the agent's stdout is one complete JSON
// document; stderr is passed through as diagnostics.
type Transport struct {
	cfg Config
	log *logger.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	running bool

	onMessage func(json.RawMessage)
	onExit    func(err error)
	done      chan struct{}
}

func New(cfg Config, log *logger.Logger) *Transport {
	return &Transport{cfg: cfg, log: log}
}

// SetMessageHandler registers the callback for each decoded line from
// the agent's stdout. Must be called before Start.
func (t *Transport) SetMessageHandler(fn func(json.RawMessage)) {
	t.onMessage = fn
}

// SetExitHandler registers the callback invoked once when the process
// exits for any reason other than Stop.
func (t *Transport) SetExitHandler(fn func(err error)) {
	t.onExit = fn
}

// Start spawns the agent subprocess and begins reading its stdout.
func (t *Transport) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return acp.TransportError("agent process already running")
	}
	if t.cfg.Command == "" {
		return acp.TransportError("no agent command configured")
	}

	cmd := exec.Command(t.cfg.Command, t.cfg.Args...)
	cmd.Dir = t.cfg.Dir
	cmd.Env = append(os.Environ(), t.cfg.Env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return acp.TransportError("stdin pipe: %v", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return acp.TransportError("stdout pipe: %v", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return acp.TransportError("stderr pipe: %v", err)
	}

	if err := cmd.Start(); err != nil {
		return acp.TransportError("spawn %s: %v", t.cfg.Command, err)
	}

	t.cmd = cmd
	t.stdin = stdin
	t.running = true
	t.done = make(chan struct{})

	go t.readLoop(stdout)
	go t.drainStderr(stderr)
	go t.waitExit(cmd, t.done)

	t.log.Info("agent process started: %s (pid %d)", t.cfg.Command, cmd.Process.Pid)
	return nil
}

// Send writes one message followed by a newline. It does not wait for
// any reply; correlation is the caller's concern.
func (t *Transport) Send(payload []byte) error {
	t.mu.Lock()
	stdin := t.stdin
	running := t.running
	t.mu.Unlock()

	if !running || stdin == nil {
		return acp.TransportError("agent process not running")
	}
	if _, err := stdin.Write(append(payload, '\n')); err != nil {
		return acp.TransportError("write to agent: %v", err)
	}
	return nil
}

// Running reports whether the subprocess is alive.
func (t *Transport) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Stop terminates the subprocess: SIGTERM first, SIGKILL if it lingers.
// Stopping an already-dead transport is a no-op.
func (t *Transport) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	cmd := t.cmd
	stdin := t.stdin
	done := t.done
	t.mu.Unlock()

	if stdin != nil {
		stdin.Close()
	}
	if cmd != nil && cmd.Process != nil {
		cmd.Process.Signal(syscall.SIGTERM)
		select {
		case <-done:
		case <-time.After(stopGrace):
			t.log.Warn("agent process ignored SIGTERM, killing")
			cmd.Process.Kill()
			<-done
		}
	}
	t.log.Info("agent process stopped")
}

func (t *Transport) readLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, initialLineBuf), maxLineBuf)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			t.log.Warn("dropping malformed line from agent: %.120s", string(line))
			continue
		}
		if t.onMessage != nil {
			msg := make(json.RawMessage, len(line))
			copy(msg, line)
			t.onMessage(msg)
		}
	}
	if err := scanner.Err(); err != nil {
		t.log.Warn("agent stdout closed: %v", err)
	}
}

func (t *Transport) drainStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, initialLineBuf), maxLineBuf)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || stderrNoise(line) {
			continue
		}
		t.log.Debug("agent stderr: %s", line)
	}
}

// stderrNoise filters chatter some agents emit on every turn, which
// would otherwise drown the log.
func stderrNoise(line string) bool {
	return strings.Contains(line, "Session not found") ||
		strings.Contains(line, "Prompting with")
}

func (t *Transport) waitExit(cmd *exec.Cmd, done chan struct{}) {
	err := cmd.Wait()
	close(done)

	t.mu.Lock()
	wasRunning := t.running
	t.running = false
	t.mu.Unlock()

	// Only an unexpected death reaches the exit handler; Stop already
	// told the caller what happened.
	if wasRunning {
		if err != nil {
			t.log.Error("agent process exited: %v", err)
		} else {
			t.log.Warn("agent process exited")
		}
		if t.onExit != nil {
			t.onExit(err)
		}
	}
}
