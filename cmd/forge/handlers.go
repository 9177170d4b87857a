package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"github.com/haasonsaas/forge/internal/agent"
	"github.com/haasonsaas/forge/internal/config"
	"github.com/haasonsaas/forge/internal/store"
)

var errConfigInvalid = errors.New("invalid configuration")

func runChat(ctx context.Context, cfg config.Config, resumePath string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	idx, err := openStore(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Warning: session index unavailable:", err)
	}
	if idx != nil {
		defer idx.Close()
	}

	rt, err := agent.NewRuntime(ctx, cfg, agent.RuntimeOptions{
		Confirm:    promptConfirmation,
		ResumePath: resumePath,
		Store:      idx,
	})
	if err != nil {
		return err
	}
	defer rt.Close(context.WithoutCancel(ctx))

	fmt.Printf("forge session %s (agent: %s, workspace: %s)\n", rt.SessionID, rt.Profile.Name, rt.Workspace)
	fmt.Println("Type a message, or /quit to exit.")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit" || line == "/exit":
			return nil
		}
		if err := drainEvents(ctx, rt.Run(ctx, line, true), true); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
	}
	return scanner.Err()
}

func runOnce(ctx context.Context, cfg config.Config, query string, stream bool, resumePath string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	idx, err := openStore(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Warning: session index unavailable:", err)
	}
	if idx != nil {
		defer idx.Close()
	}

	rt, err := agent.NewRuntime(ctx, cfg, agent.RuntimeOptions{
		Confirm:    promptConfirmation,
		ResumePath: resumePath,
		Store:      idx,
	})
	if err != nil {
		return err
	}
	defer rt.Close(context.WithoutCancel(ctx))

	return drainEvents(ctx, rt.Run(ctx, query, stream), stream)
}

// drainEvents renders the event stream until the channel closes. When
// streaming, llm_chunk deltas are printed as they arrive and the final
// content is not repeated.
func drainEvents(ctx context.Context, events <-chan agent.Event, stream bool) error {
	var runErr error
	streamed := false
	for ev := range events {
		switch ev.Kind {
		case agent.EventLLMChunk:
			fmt.Print(ev.Delta)
			streamed = true
		case agent.EventLLMDone:
			if streamed && ev.Content != "" {
				fmt.Println()
				streamed = false
			}
		case agent.EventToolStart:
			fmt.Printf("⏺ %s(%s)\n", ev.ToolName, formatArgs(ev.Arguments))
		case agent.EventToolDone:
			if ev.Display != "" {
				fmt.Println(" ", ev.Display)
			}
		case agent.EventAgentDone:
			if !stream && ev.Content != "" {
				fmt.Println(ev.Content)
			}
		case agent.EventError:
			runErr = errors.New(ev.Err)
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return runErr
}

// formatArgs renders tool arguments compactly for the terminal.
func formatArgs(args map[string]any) string {
	if len(args) == 0 {
		return ""
	}
	data, err := json.Marshal(args)
	if err != nil {
		return ""
	}
	s := string(data)
	if len(s) > 120 {
		s = s[:117] + "..."
	}
	return s
}

// promptConfirmation asks the user to approve a tool call. Without a
// terminal on stdin there is no one to ask, so the call is denied.
func promptConfirmation(toolName, toolID string, args map[string]any) bool {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintf(os.Stderr, "Denied tool %q: no terminal to confirm on (use --yolo to skip confirmations)\n", toolName)
		return false
	}
	fmt.Printf("\nAllow tool %q with arguments %s? [y/N] ", toolName, formatArgs(args))
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func openStore(cfg config.Config) (*store.Store, error) {
	if cfg.Store.Path == "" {
		return nil, nil
	}
	return store.Open(config.ExpandHome(cfg.Store.Path))
}

func listSessions(ctx context.Context, cfg config.Config, workspace string, limit int) error {
	idx, err := openStore(cfg)
	if err != nil {
		return err
	}
	if idx == nil {
		return errors.New("no session store configured")
	}
	defer idx.Close()

	records, err := idx.List(ctx, workspace, limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No sessions recorded.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tAGENT\tMODEL\tSTARTED\tDURATION\tPROMPTS\tTOKENS\tCOST")
	for _, rec := range records {
		duration := "-"
		if rec.EndedAt != nil {
			duration = rec.EndedAt.Sub(rec.StartedAt).Round(time.Second).String()
		}
		cost := "-"
		if rec.CostUSD != nil {
			cost = fmt.Sprintf("$%.4f", *rec.CostUSD)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			rec.SessionID, rec.Agent, rec.Model,
			rec.StartedAt.Local().Format("2006-01-02 15:04"),
			duration, rec.Prompts, rec.TotalTokens, cost)
	}
	return w.Flush()
}
