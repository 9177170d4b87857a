package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/haasonsaas/forge/internal/tools"
)

// RemoteExecutor sends tool calls to a remote execution service over
// HTTP. The service runs its own registry and shell bound to an
// instance id.
type RemoteExecutor struct {
	url        string
	instanceID string
	client     *http.Client
}

// NewRemoteExecutor builds a remote executor with the given request
// timeout.
func NewRemoteExecutor(url, instanceID string, timeout time.Duration) *RemoteExecutor {
	return &RemoteExecutor{
		url:        url,
		instanceID: instanceID,
		client:     &http.Client{Timeout: timeout},
	}
}

type remoteRequest struct {
	InstanceID string         `json:"instance_id"`
	ToolName   string         `json:"toolName"`
	ToolArgs   map[string]any `json:"toolArgs"`
}

type remoteResponse struct {
	Response *struct {
		Success bool   `json:"success"`
		Result  string `json:"result"`
	} `json:"response"`
}

// Execute posts the tool call and maps every failure mode onto a
// ToolResult whose content starts with "Error:" and whose display
// carries the failure marker.
func (r *RemoteExecutor) Execute(ctx context.Context, toolName string, toolArgs map[string]any) *tools.Result {
	payload, err := json.Marshal(remoteRequest{
		InstanceID: r.instanceID,
		ToolName:   toolName,
		ToolArgs:   toolArgs,
	})
	if err != nil {
		return tools.Errorf("failed to encode remote tool request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(payload))
	if err != nil {
		return tools.Errorf("failed to build remote tool request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return tools.ErrorResult(
				fmt.Sprintf("Remote tool call timed out after %s", r.client.Timeout),
				"Remote tool call timed out")
		}
		return tools.ErrorResult(
			fmt.Sprintf("Connection error: %v", err),
			"Failed to connect to remote tool service")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return tools.Errorf("failed to read remote tool response: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		return tools.ErrorResult(
			fmt.Sprintf("Remote tool call failed with status %d\nResponse: %s", resp.StatusCode, body),
			fmt.Sprintf("Remote tool call failed (HTTP %d)", resp.StatusCode))
	}

	var decoded remoteResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return tools.ErrorResult(
			fmt.Sprintf("Failed to parse JSON response: %v", err),
			"Invalid JSON response from remote tool")
	}
	if decoded.Response == nil {
		return tools.ErrorResult(
			fmt.Sprintf("Invalid response structure: %s", body),
			"Invalid response format from remote tool")
	}

	if decoded.Response.Success {
		return &tools.Result{
			Content: decoded.Response.Result,
			Display: fmt.Sprintf("✓ Remote tool '%s' executed successfully", toolName),
		}
	}
	return &tools.Result{
		Content: decoded.Response.Result,
		Display: fmt.Sprintf("❌ Remote tool '%s' completed with errors", toolName),
	}
}
