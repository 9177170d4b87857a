// Package shell implements the bash tool: one persistent shell process
// per session, with regex-based command policy filtering.
package shell

import (
	"fmt"
	"regexp"
)

// Verdict is the outcome of checking a command against the policy.
type Verdict int

const (
	// VerdictNeutral means no pattern matched; normal confirmation applies.
	VerdictNeutral Verdict = iota
	// VerdictAllowed means an allow pattern matched; no confirmation needed.
	VerdictAllowed
	// VerdictDisallowed means a disallow pattern matched; the command is rejected.
	VerdictDisallowed
)

// CommandPolicy filters shell commands with regex patterns. Disallow
// patterns win over allow patterns.
type CommandPolicy struct {
	allowed    []*regexp.Regexp
	disallowed []*regexp.Regexp
}

// NewCommandPolicy compiles the allow and disallow pattern lists.
func NewCommandPolicy(allowed, disallowed []string) (*CommandPolicy, error) {
	p := &CommandPolicy{}
	for _, pattern := range disallowed {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile disallowed pattern %q: %w", pattern, err)
		}
		p.disallowed = append(p.disallowed, re)
	}
	for _, pattern := range allowed {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile allowed pattern %q: %w", pattern, err)
		}
		p.allowed = append(p.allowed, re)
	}
	return p, nil
}

// Check evaluates a command. Disallow patterns are checked first; the
// returned reason names the matching pattern.
func (p *CommandPolicy) Check(command string) (Verdict, string) {
	for _, re := range p.disallowed {
		if re.MatchString(command) {
			return VerdictDisallowed, fmt.Sprintf("command matches disallowed pattern: %s", re.String())
		}
	}
	for _, re := range p.allowed {
		if re.MatchString(command) {
			return VerdictAllowed, fmt.Sprintf("command matches allowed pattern: %s", re.String())
		}
	}
	return VerdictNeutral, ""
}
