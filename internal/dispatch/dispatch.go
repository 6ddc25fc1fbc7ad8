// Package dispatch presents a uniform call interface over the tool servers.
//
// At startup the dispatcher connects to each configured MCP endpoint over
// SSE, lists the tools it serves, and builds a name-to-session routing table.
// The table is read-only for the life of the process. Invoke resolves a tool
// name, validates the arguments against the tool's declared input schema, and
// forwards the call to the owning server.
//
// Error taxonomy (checked with errors.Is):
//   - ErrConnect: a tool server was unreachable at startup. Fatal; the agent
//     does not start half-wired.
//   - ErrUnknownTool, ErrInvalidArguments: contract errors. Never retried.
//   - ErrToolUnavailable: transport failure mid-call. Transient; the caller
//     may retry once with backoff.
//   - ErrToolFailed: the tool executed and reported failure. Not retried.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/SuyodhanJ6/bedrockNoobPOC/internal/log"
)

var (
	// ErrConnect indicates a tool server could not be reached during discovery.
	ErrConnect = errors.New("tool server unreachable")

	// ErrUnknownTool indicates no connected server exposes the named tool.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrInvalidArguments indicates the arguments do not satisfy the tool's
	// input schema.
	ErrInvalidArguments = errors.New("invalid tool arguments")

	// ErrToolUnavailable indicates the call failed in transit.
	ErrToolUnavailable = errors.New("tool unavailable")

	// ErrToolFailed indicates the tool ran and reported an error result.
	ErrToolFailed = errors.New("tool failed")
)

// Endpoint names one tool server and its SSE URL.
type Endpoint struct {
	Name string
	URL  string
}

// Info describes a discovered tool.
type Info struct {
	Name        string
	Description string
	Server      string
}

// Result is a tool invocation result. Structured carries the tool's
// structured content when the server provides one; Text is the concatenated
// text content otherwise.
type Result struct {
	Structured any
	Text       string
}

// Decode unmarshals the result payload into v, preferring structured content.
func (r *Result) Decode(v any) error {
	if r.Structured != nil {
		raw, err := json.Marshal(r.Structured)
		if err != nil {
			return fmt.Errorf("encoding structured content: %w", err)
		}
		return json.Unmarshal(raw, v)
	}
	if r.Text == "" {
		return errors.New("empty tool result")
	}
	return json.Unmarshal([]byte(r.Text), v)
}

// session is the slice of *mcp.ClientSession the dispatcher uses; an
// interface so tests can run against in-memory servers or fakes.
type session interface {
	ListTools(ctx context.Context, params *mcp.ListToolsParams) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, params *mcp.CallToolParams) (*mcp.CallToolResult, error)
	Ping(ctx context.Context, params *mcp.PingParams) error
	Close() error
}

// dialFunc opens a session to one endpoint. Production uses the SSE client
// transport; tests substitute in-memory connections.
type dialFunc func(ctx context.Context, ep Endpoint) (session, error)

type boundTool struct {
	info    Info
	schema  *jsonschema.Resolved // nil when the server declares no schema
	session session
}

// Dispatcher routes tool invocations to the server that owns each tool.
// The routing table is immutable after Connect, so Invoke is safe for
// concurrent use.
type Dispatcher struct {
	tools       map[string]*boundTool
	sessions    []session
	callTimeout time.Duration
	logger      log.Logger
}

// Options configures the dispatcher.
type Options struct {
	// Implementation identifies this client to the servers.
	Implementation *mcp.Implementation

	// CallTimeout bounds each Invoke. Zero means 15s.
	CallTimeout time.Duration

	Logger log.Logger
}

// Connect dials every endpoint, discovers its tools, and returns a ready
// dispatcher. Any unreachable server fails the whole startup with ErrConnect;
// there is no background retry loop.
func Connect(ctx context.Context, endpoints []Endpoint, opts Options) (*Dispatcher, error) {
	impl := opts.Implementation
	if impl == nil {
		impl = &mcp.Implementation{Name: "bedrock-rag-agent", Version: "dev"}
	}
	dial := func(ctx context.Context, ep Endpoint) (session, error) {
		client := mcp.NewClient(impl, nil)
		return client.Connect(ctx, &mcp.SSEClientTransport{Endpoint: ep.URL}, nil)
	}
	return connect(ctx, endpoints, dial, opts)
}

func connect(ctx context.Context, endpoints []Endpoint, dial dialFunc, opts Options) (*Dispatcher, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	timeout := opts.CallTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	d := &Dispatcher{
		tools:       make(map[string]*boundTool),
		callTimeout: timeout,
		logger:      logger,
	}

	for _, ep := range endpoints {
		sess, err := dial(ctx, ep)
		if err != nil {
			d.close()
			return nil, fmt.Errorf("%w: %s (%s): %v", ErrConnect, ep.Name, ep.URL, err)
		}
		d.sessions = append(d.sessions, sess)

		list, err := sess.ListTools(ctx, nil)
		if err != nil {
			d.close()
			return nil, fmt.Errorf("%w: listing tools on %s: %v", ErrConnect, ep.Name, err)
		}

		for _, tool := range list.Tools {
			if _, exists := d.tools[tool.Name]; exists {
				d.close()
				return nil, fmt.Errorf("%w: tool %q exposed by more than one server", ErrConnect, tool.Name)
			}

			bound := &boundTool{
				info: Info{
					Name:        tool.Name,
					Description: tool.Description,
					Server:      ep.Name,
				},
				session: sess,
			}
			if tool.InputSchema != nil {
				resolved, err := tool.InputSchema.Resolve(nil)
				if err != nil {
					// An unresolvable schema disables local validation for
					// that tool; the server still validates on its side.
					logger.Warn("tool schema did not resolve, skipping local validation",
						"tool", tool.Name, "error", err)
				} else {
					bound.schema = resolved
				}
			}
			d.tools[tool.Name] = bound
		}

		logger.Info("connected to tool server",
			"server", ep.Name,
			"url", ep.URL,
			"tools", len(list.Tools))
	}

	return d, nil
}

// Tools lists the discovered tools sorted by name.
func (d *Dispatcher) Tools() []Info {
	out := make([]Info, 0, len(d.tools))
	for _, t := range d.tools {
		out = append(out, t.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Invoke calls the named tool with the given arguments and returns its
// result. See the package doc for the error taxonomy. Each call is bounded
// by the configured timeout on top of the caller's context.
func (d *Dispatcher) Invoke(ctx context.Context, name string, args map[string]any) (*Result, error) {
	tool, ok := d.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}

	if tool.schema != nil {
		if err := tool.schema.Validate(args); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidArguments, name, err)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, d.callTimeout)
	defer cancel()

	started := time.Now()
	res, err := tool.session.CallTool(callCtx, &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrToolUnavailable, name, err)
	}

	result := &Result{Structured: res.StructuredContent}
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			result.Text += tc.Text
		}
	}

	if res.IsError {
		return nil, fmt.Errorf("%w: %s: %s", ErrToolFailed, name, result.Text)
	}

	d.logger.Debug("tool invoked",
		"tool", name,
		"server", tool.info.Server,
		"elapsed", time.Since(started))
	return result, nil
}

// Ping checks every server session, for readiness probes.
func (d *Dispatcher) Ping(ctx context.Context) error {
	for _, s := range d.sessions {
		if err := s.Ping(ctx, nil); err != nil {
			return fmt.Errorf("%w: %v", ErrToolUnavailable, err)
		}
	}
	return nil
}

// Close closes all server sessions.
func (d *Dispatcher) Close() error {
	return d.close()
}

func (d *Dispatcher) close() error {
	var errs []error
	for _, s := range d.sessions {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
