// Package main is the forge CLI: an interactive AI coding assistant
// with a safety-bounded workspace toolkit.
//
// # Basic Usage
//
// Start an interactive chat in the current directory:
//
//	forge chat
//
// Run a single query and exit:
//
//	forge run "explain the build failure in ci.log"
//
// List past sessions:
//
//	forge sessions
//
// # Environment Variables
//
//   - OPENAI_API_KEY: API key for the configured provider
//   - LLM_BASE_URL: Provider base URL
//   - LLM_MODEL: Model name
//   - LOGS_DIR: Session log directory
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
