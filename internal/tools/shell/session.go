package shell

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"
)

const (
	promptMarker     = "___FORGE_PROMPT_MARKER___"
	commandEndMarker = "___FORGE_CMD_END___"

	// cleanupGrace is how long Close waits after SIGTERM before SIGKILL.
	cleanupGrace = 5 * time.Second
)

// Session is a persistent shell process. Environment variables, the
// working directory, shell functions, and virtualenv activations
// persist across Run calls. A Session supports one Run at a time.
type Session struct {
	mu       sync.Mutex
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	lines    chan string
	cwd      string
	waitDone chan struct{}
}

// NewSession starts a shell bound to the workspace root: no init
// files, a unique prompt marker, history disabled.
func NewSession(workspaceRoot string) (*Session, error) {
	cmd := exec.Command("/bin/bash", "--norc", "--noprofile")
	cmd.Dir = workspaceRoot

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("open shell stdin: %w", err)
	}
	// stderr is merged into stdout so the reader sees one stream.
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start shell: %w", err)
	}

	s := &Session{
		cmd:      cmd,
		stdin:    stdin,
		lines:    make(chan string, 1024),
		cwd:      workspaceRoot,
		waitDone: make(chan struct{}),
	}

	go func() {
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			s.lines <- scanner.Text()
		}
		close(s.lines)
	}()
	go func() {
		cmd.Wait()
		pw.Close()
		close(s.waitDone)
	}()

	// Prompt override and history off, then drain the initial output.
	s.sendRaw(fmt.Sprintf("export PS1=%q\n", promptMarker))
	s.sendRaw("unset HISTFILE\n")
	s.sendRaw("set +o history\n")
	time.Sleep(100 * time.Millisecond)
	s.drain()

	return s, nil
}

// Cwd returns the tracked working directory of the shell.
func (s *Session) Cwd() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cwd
}

// Alive reports whether the shell process is still running.
func (s *Session) Alive() bool {
	select {
	case <-s.waitDone:
		return false
	default:
		return true
	}
}

// Run executes a command and collects its output until the end marker
// appears. On timeout the shell is NOT killed; the command stays
// in-flight and its output is discarded by the next Run's drain.
func (s *Session) Run(command string, timeout time.Duration) (output string, exitCode int, timedOut bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Alive() {
		return "", 0, false, fmt.Errorf("shell session is not running")
	}

	s.drain()
	s.sendRaw(command + "\n")
	s.sendRaw("echo \"EXIT_CODE=$?\"\n")
	s.sendRaw("echo \"" + commandEndMarker + "\"\n")

	var collected []string
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

loop:
	for {
		select {
		case line, ok := <-s.lines:
			if !ok {
				return "", 0, false, fmt.Errorf("shell session terminated unexpectedly")
			}
			if strings.Contains(line, commandEndMarker) {
				break loop
			}
			if strings.HasPrefix(line, "EXIT_CODE=") {
				if n, convErr := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "EXIT_CODE="))); convErr == nil {
					exitCode = n
				}
				continue
			}
			if strings.Contains(line, promptMarker) {
				continue
			}
			collected = append(collected, line)
		case <-deadline.C:
			return strings.Join(collected, "\n"), 0, true, nil
		}
	}

	output = strings.Join(collected, "\n")

	if exitCode == 0 && strings.HasPrefix(strings.TrimSpace(command), "cd ") {
		s.refreshCwd()
	}
	return output, exitCode, false, nil
}

// refreshCwd asks the shell for its working directory after a cd.
func (s *Session) refreshCwd() {
	s.drain()
	s.sendRaw("pwd\n")
	s.sendRaw("echo \"" + commandEndMarker + "\"\n")

	var lines []string
	deadline := time.NewTimer(2 * time.Second)
	defer deadline.Stop()
	for {
		select {
		case line, ok := <-s.lines:
			if !ok {
				return
			}
			if strings.Contains(line, commandEndMarker) {
				if joined := strings.TrimSpace(strings.Join(lines, "")); joined != "" {
					s.cwd = joined
				}
				return
			}
			if !strings.Contains(line, promptMarker) {
				lines = append(lines, line)
			}
		case <-deadline.C:
			return
		}
	}
}

func (s *Session) sendRaw(input string) {
	io.WriteString(s.stdin, input)
}

// drain discards any buffered output from a previous command.
func (s *Session) drain() {
	for {
		select {
		case _, ok := <-s.lines:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// Close terminates the shell: SIGTERM, a short grace period, then
// SIGKILL.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd.Process == nil {
		return nil
	}
	// Keep the reader unblocked while the shell exits: a command still
	// emitting output after a Run timeout can fill s.lines, which
	// stalls the pipe and with it cmd.Wait.
	go func() {
		for range s.lines {
		}
	}()
	s.stdin.Close()
	s.cmd.Process.Signal(syscall.SIGTERM)

	select {
	case <-s.waitDone:
	case <-time.After(cleanupGrace):
		s.cmd.Process.Kill()
		<-s.waitDone
	}
	return nil
}
