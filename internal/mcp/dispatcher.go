package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/toolhost-mcp/toolhost/internal/capture"
	"github.com/toolhost-mcp/toolhost/internal/registry"
)

// baseInstructions is the constant sentence every initialize response
// starts with, per spec.md §4.6 and §9 ("keep the base sentence a
// constant").
const baseInstructions = "This server exposes tools discovered from independent executables in its tools directory. Call tools/list to see what is currently available."

// Runner is the subset of *runner.Runner the dispatcher depends on, kept
// narrow so tests can substitute a fake child-process runner.
type Runner interface {
	Run(ctx context.Context, execPath, subcommand, argJSON string, argProvided bool) capture.Result
}

// Logger is the subset of the server's logger the dispatcher uses.
type Logger interface {
	Info(msg string)
	Error(msg string)
}

// Metrics is the subset of observe.Metrics the dispatcher records
// against. A nil Metrics is valid: every recording call is a no-op.
type Metrics interface {
	RecordToolCall(ctx context.Context, tool, outcome string, seconds float64)
}

// Dispatcher reads registry.Registry state and dispatches JSON-RPC
// requests to it, invoking Runner for tools/call. One Dispatcher serves
// exactly one stdio connection at a time — spec.md §5 forbids concurrent
// tools/call execution, so there is no internal locking here beyond what
// the registry and runner already provide.
type Dispatcher struct {
	reg           *registry.Registry
	run           Runner
	log           Logger
	metrics       Metrics
	serverName    string
	serverVersion string
	callTimeout   time.Duration
}

// New builds a Dispatcher. metrics may be nil.
func New(reg *registry.Registry, run Runner, log Logger, metrics Metrics, serverName, serverVersion string, callTimeout time.Duration) *Dispatcher {
	return &Dispatcher{
		reg:           reg,
		run:           run,
		log:           log,
		metrics:       metrics,
		serverName:    serverName,
		serverVersion: serverVersion,
		callTimeout:   callTimeout,
	}
}

// Serve runs the newline-delimited JSON-RPC read/dispatch/write loop
// until r reaches EOF. One response line is written per non-notification
// request line, in the exact order requests were read (spec.md §5).
func (d *Dispatcher) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	enc := json.NewEncoder(w)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		resp := d.dispatchLine(ctx, line)
		if resp == nil {
			continue
		}
		if err := enc.Encode(resp); err != nil {
			d.log.Error("mcp: writing response: " + err.Error())
		}
	}

	return scanner.Err()
}

// dispatchLine parses one input line and either returns the envelope
// error response for a malformed line, or the dispatched method's
// response (nil for notifications).
func (d *Dispatcher) dispatchLine(ctx context.Context, line []byte) *Response {
	req, errResp := parseLine(line)
	if errResp != nil {
		return errResp
	}
	return d.Dispatch(ctx, req)
}

// Dispatch routes a validated request to its method handler. Returns nil
// for notifications, which produce no response.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "notifications/initialized":
		d.log.Info("client sent notifications/initialized")
		return nil
	case "initialize":
		return d.handleInitialize(req)
	case "tools/list":
		return d.handleToolsList(req)
	case "tools/call":
		return d.handleToolsCall(ctx, req)
	case "resources/list":
		return successResponse(req.ID, map[string]any{"resources": []any{}})
	case "resources/templates/list":
		return successResponse(req.ID, map[string]any{"resourceTemplates": []any{}})
	case "prompts/list":
		return successResponse(req.ID, map[string]any{"prompts": []any{}})
	default:
		return errorResponse(req.ID, CodeMethodNotFound, "Method not found: "+req.Method)
	}
}

func (d *Dispatcher) handleInitialize(req *Request) *Response {
	if len(req.Params) > 0 {
		var params InitializeParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, CodeInvalidParams, "invalid initialize params: "+err.Error())
		}
	}

	result := InitializeResult{
		ProtocolVersion: ProtocolVersion,
		ServerInfo: ServerInfoResponse{
			Name:    d.serverName,
			Version: d.serverVersion,
		},
		Capabilities: Capabilities{
			Tools:     &ToolsCapability{ListChanged: true},
			Resources: &ResourcesCapability{},
			Prompts:   &PromptsCapability{},
		},
		Instructions: d.instructionsText(),
	}
	return successResponse(req.ID, result)
}

// instructionsText concatenates the base sentence with every trimmed
// instructions blurb the registry collected, separated by a blank line.
// An empty blurb set yields only the base sentence, never a trailing
// separator (spec.md §9).
func (d *Dispatcher) instructionsText() string {
	blurbs := d.reg.Instructions()
	if len(blurbs) == 0 {
		return baseInstructions
	}
	parts := make([]string, 0, len(blurbs)+1)
	parts = append(parts, baseInstructions)
	parts = append(parts, blurbs...)
	return strings.Join(parts, "\n\n")
}

func (d *Dispatcher) handleToolsList(req *Request) *Response {
	if d.reg.HasListingErrors() {
		var reasons []string
		for _, le := range d.reg.ListingErrors() {
			reasons = append(reasons, fmt.Sprintf("%s: %s", le.ProviderPath, le.Reason))
		}
		return errorResponse(req.ID, CodeInternalError, "tool listing failed: "+strings.Join(reasons, "; "))
	}

	if d.reg.HasDuplicates() {
		var reasons []string
		for _, dup := range d.reg.Duplicates() {
			reasons = append(reasons, fmt.Sprintf("%q claimed by %s", dup.ToolName, strings.Join(dup.ProviderPaths, ", ")))
		}
		return errorResponse(req.ID, CodeInternalError, "duplicate tool names: "+strings.Join(reasons, "; "))
	}

	return successResponse(req.ID, map[string]any{"tools": d.reg.Definitions()})
}

func (d *Dispatcher) handleToolsCall(ctx context.Context, req *Request) *Response {
	if len(req.Params) == 0 {
		return errorResponse(req.ID, CodeInvalidParams, "params required")
	}

	var params ToolsCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, CodeInvalidParams, "invalid tools/call params: "+err.Error())
	}
	if params.Name == "" {
		return errorResponse(req.ID, CodeInvalidParams, "tool name is required")
	}

	binding, ok := d.reg.Lookup(params.Name)
	if !ok {
		return errorResponse(req.ID, CodeMethodNotFound, "Tool not found: "+params.Name)
	}
	if binding.Duplicate {
		return errorResponse(req.ID, CodeInternalError, fmt.Sprintf(
			"tool %q is claimed by multiple providers and cannot be called: %s",
			params.Name, strings.Join(binding.Dup.ProviderPaths, ", ")))
	}

	argJSON := "{}"
	if len(params.Arguments) > 0 {
		argJSON = string(params.Arguments)
	}

	callCtx, cancel := context.WithTimeout(ctx, d.callTimeout)
	defer cancel()

	correlationID := uuid.NewString()
	start := time.Now()
	res := d.run.Run(callCtx, binding.Single.ProviderPath, params.Name, argJSON, true)
	elapsed := time.Since(start)

	if len(res.Stderr) > 0 {
		d.log.Info(fmt.Sprintf("[%s] tool %s stderr: %s", correlationID, params.Name, strings.TrimSpace(string(res.Stderr))))
	}

	if res.ExitCode < 0 {
		d.recordOutcome(ctx, params.Name, "error", elapsed)
		d.log.Error(fmt.Sprintf("[%s] tool %s: output parse error", correlationID, params.Name))
		return errorResponse(req.ID, CodeInternalError, "output parse error")
	}

	if res.ExitCode != 0 {
		d.recordOutcome(ctx, params.Name, "error", elapsed)
		combined := strings.TrimSpace(string(res.Combined))
		if res.TimedOut {
			d.log.Error(fmt.Sprintf("[%s] tool %s timed out after %v", correlationID, params.Name, d.callTimeout))
			return errorResponse(req.ID, CodeInternalError, fmt.Sprintf(
				"Tool %q timed out after %v: %s", params.Name, d.callTimeout, combined))
		}
		d.log.Error(fmt.Sprintf("[%s] tool %s failed (exit %d)", correlationID, params.Name, res.ExitCode))
		return errorResponse(req.ID, CodeInternalError, fmt.Sprintf(
			"Tool %q failed (exit %d): %s", params.Name, res.ExitCode, combined))
	}

	parsed := capture.Parse(res)
	if !parsed.MCPShaped {
		d.recordOutcome(ctx, params.Name, "error", elapsed)
		d.log.Error(fmt.Sprintf("[%s] tool %s: invalid JSON output", correlationID, params.Name))
		return errorResponse(req.ID, CodeInternalError, fmt.Sprintf(
			"tool %q returned invalid JSON: %s", params.Name, string(res.Stdout)))
	}

	d.recordOutcome(ctx, params.Name, "ok", elapsed)
	d.log.Info(fmt.Sprintf("[%s] tool %s ok (exit 0)", correlationID, params.Name))
	return successResponse(req.ID, parsed.Object)
}

func (d *Dispatcher) recordOutcome(ctx context.Context, tool, outcome string, elapsed time.Duration) {
	if d.metrics == nil {
		return
	}
	d.metrics.RecordToolCall(ctx, tool, outcome, elapsed.Seconds())
}

// parseLine validates the JSON-RPC 2.0 envelope of one input line per
// spec.md §4.5. It returns either a parsed Request, or a non-nil error
// Response to emit directly (parse failure → -32700, envelope violation
// → -32600).
func parseLine(line []byte) (*Request, *Response) {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return nil, errorResponse(nil, CodeParseError, "Parse error: "+err.Error())
	}

	if req.JSONRPC != JSONRPCVersion {
		return nil, errorResponse(req.ID, CodeInvalidRequest, "invalid or missing jsonrpc version")
	}
	if req.Method == "" {
		return nil, errorResponse(req.ID, CodeInvalidRequest, "method is required")
	}

	// notifications/initialized is not required to carry an id (and
	// tolerates clients that send one anyway); every other method must
	// carry a numeric id.
	if req.Method != "notifications/initialized" {
		var num json.Number
		if req.IsNotification() || json.Unmarshal(req.ID, &num) != nil {
			return nil, errorResponse(req.ID, CodeInvalidRequest, "id must be a number")
		}
	}

	return &req, nil
}
