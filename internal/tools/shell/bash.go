package shell

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/haasonsaas/forge/internal/tools"
)

// DefaultTimeout bounds a single bash command.
const DefaultTimeout = 30 * time.Second

// BashTool executes commands in a persistent shell session.
type BashTool struct {
	workspaceRoot string
	timeout       time.Duration
	policy        *CommandPolicy

	mu      sync.Mutex
	session *Session
}

// NewBashTool creates a bash tool. The shell process is started lazily
// on first use.
func NewBashTool(workspaceRoot string, timeout time.Duration, policy *CommandPolicy) *BashTool {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if policy == nil {
		policy = &CommandPolicy{}
	}
	return &BashTool{workspaceRoot: workspaceRoot, timeout: timeout, policy: policy}
}

func (t *BashTool) Definition() tools.Definition {
	return tools.Definition{
		Name: "bash",
		Description: "Executes a bash command in a persistent shell session. " +
			"Shell state (environment variables, current directory, virtualenvs) persists between commands. " +
			"Prefer the grep/glob tools over `find` and `grep`, and read_file over `cat`/`head`/`tail`. " +
			"Join multiple commands with ';' or '&&' rather than newlines, and prefer absolute paths over `cd`.",
		Parameters: []tools.Parameter{
			{Name: "command", Type: "string", Description: "The bash command to execute.", Required: true},
		},
		RequiresConfirmation: true,
	}
}

// RequiresConfirmation implements tools.ConfirmationPolicy: commands
// matching an allow pattern skip confirmation. Disallowed commands are
// rejected inside Execute, so they need no confirmation either.
func (t *BashTool) RequiresConfirmation(args map[string]any) bool {
	command, _ := tools.StringArg(args, "command")
	verdict, _ := t.policy.Check(command)
	return verdict == VerdictNeutral
}

func (t *BashTool) Execute(ctx context.Context, args map[string]any) (*tools.Result, error) {
	command, ok := tools.StringArg(args, "command")
	if !ok || command == "" {
		return tools.Errorf("command is required"), nil
	}

	if verdict, reason := t.policy.Check(command); verdict == VerdictDisallowed {
		return &tools.Result{
			Content: fmt.Sprintf("Error: Command rejected by policy: %s", reason),
			Display: "❌ Command rejected by policy",
		}, nil
	}

	session, err := t.ensureSession()
	if err != nil {
		return tools.Errorf("shell session error: %v", err), nil
	}

	output, exitCode, timedOut, err := session.Run(command, t.timeout)
	if err != nil {
		return tools.Errorf("shell session error: %v", err), nil
	}

	if timedOut {
		seconds := int(t.timeout.Seconds())
		content := fmt.Sprintf(
			"Command timed out after %d seconds.\n\n"+
				"Possible reasons:\n"+
				"1. The command is taking longer than %ds to complete\n"+
				"2. You provided an interactive command that's waiting for input\n"+
				"3. You provided a background command that doesn't terminate\n\n"+
				"Consider:\n"+
				"- Using a non-interactive version of the command\n"+
				"- Breaking the task into smaller commands\n"+
				"- Avoiding background processes",
			seconds, seconds)
		return &tools.Result{
			Content: "Error: " + content,
			Display: fmt.Sprintf("⏱️ Command timed out (%ds)", seconds),
		}, nil
	}

	if exitCode == 0 {
		content := "Command executed successfully (no output)."
		if output != "" {
			content = fmt.Sprintf("Command executed successfully.\n\nOutput:\n%s", output)
		}
		return &tools.Result{Content: content, Display: "✓ Command executed (exit code: 0)"}, nil
	}

	content := fmt.Sprintf("Command failed with exit code %d (no output).", exitCode)
	if output != "" {
		content = fmt.Sprintf("Command failed with exit code %d.\n\nOutput:\n%s", exitCode, output)
	}
	return &tools.Result{
		Content: content,
		Display: fmt.Sprintf("❌ Command failed (exit code: %d)", exitCode),
	}, nil
}

func (t *BashTool) ensureSession() (*Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session != nil && t.session.Alive() {
		return t.session, nil
	}
	session, err := NewSession(t.workspaceRoot)
	if err != nil {
		return nil, err
	}
	t.session = session
	return session, nil
}

// Close shuts down the underlying shell session, if any.
func (t *BashTool) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session == nil {
		return nil
	}
	err := t.session.Close()
	t.session = nil
	return err
}
