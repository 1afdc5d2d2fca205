package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/go-kit/log/level"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/samber/lo"

	"github.com/runnerr0/tracescope/internal/metrics"
	"github.com/runnerr0/tracescope/internal/program"
	"github.com/runnerr0/tracescope/internal/storage"
)

// Filter modes accepted by the filter tool.
const (
	modeRules            = "rules"
	modeNone             = "none"
	modeConstructorsOnly = "constructors_only"
	modeNoConstructors   = "no_constructors"
)

// toolServer exposes one Program as MCP tools. Tool calls are serialized.
type toolServer struct {
	mu    sync.Mutex
	env   *env
	store storage.Store
	prog  *program.Program
}

func newToolServer(e *env, store storage.Store) *toolServer {
	return &toolServer{env: e, store: store}
}

// Execute implements the go-flags Commander interface for MCPCommand.
func (c *MCPCommand) Execute(args []string) error {
	e, err := loadEnv(c.globals)
	if err != nil {
		return err
	}
	store, db, err := openStore(e.cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	defer store.Close()

	version := e.cfg.MCP.Version
	if version == "" {
		version = c.version
	}
	s := server.NewMCPServer(e.cfg.MCP.Name, version, server.WithLogging())
	newToolServer(e, store).register(s)

	level.Info(e.logger).Log("msg", "serving MCP tools over stdio", "name", e.cfg.MCP.Name, "version", version)
	return server.ServeStdio(s)
}

func (t *toolServer) register(s *server.MCPServer) {
	s.AddTool(mcp.NewTool("load_trace",
		mcp.WithDescription("Load a trace archive, replacing the current one. The time cursor starts at the beginning of the trace."),
		mcp.WithString("file_path",
			mcp.Required(),
			mcp.Description("Path to the trace archive"),
		),
		mcp.WithString("attribution",
			mcp.Description("Charge polymorphic calls to the defining or the actual class"),
			mcp.Enum("defining", "actual"),
		),
		mcp.WithBoolean("merge_inner_classes",
			mcp.Description("Fold inner classes into their enclosing class (default from config)"),
		),
	), t.loadTrace)

	s.AddTool(mcp.NewTool("set_time",
		mcp.WithDescription("Move the time cursor. Every event at or before the time is applied."),
		mcp.WithString("time",
			mcp.Required(),
			mcp.Description("New current time, as a decimal integer"),
		),
		mcp.WithString("window_start",
			mcp.Description("Start of the metric window, as a decimal integer"),
		),
	), t.setTime)

	s.AddTool(mcp.NewTool("step",
		mcp.WithDescription("Step over unfiltered events and report the method calls entered and exited."),
		mcp.WithNumber("count",
			mcp.Description("Number of events to step over (default: 1)"),
		),
		mcp.WithString("direction",
			mcp.Description("forward or back (default: forward)"),
			mcp.Enum("forward", "back"),
		),
	), t.step)

	s.AddTool(mcp.NewTool("class_metrics",
		mcp.WithDescription("Windowed call and instance metrics per class, with on-stack state and top-of-stack intervals."),
		mcp.WithString("class",
			mcp.Description("Dotted class name; omit for every visible class"),
		),
	), t.classMetrics)

	s.AddTool(mcp.NewTool("edges",
		mcp.WithDescription("Call counts between classes over the metric window, with per-method counts."),
		mcp.WithString("from",
			mcp.Description("Only edges from this class"),
		),
		mcp.WithString("to",
			mcp.Description("Only edges into this class"),
		),
	), t.edges)

	s.AddTool(mcp.NewTool("stacks",
		mcp.WithDescription("Call stack of every thread at the current time, top frame first."),
	), t.stacks)

	s.AddTool(mcp.NewTool("filter",
		mcp.WithDescription("Replace the active filter. Blocked calls hide their whole subtree."),
		mcp.WithString("mode",
			mcp.Description("rules (default), none, constructors_only or no_constructors"),
			mcp.Enum(modeRules, modeNone, modeConstructorsOnly, modeNoConstructors),
		),
		mcp.WithString("classes",
			mcp.Description("Comma-separated classes to block"),
		),
		mcp.WithString("methods",
			mcp.Description("Comma-separated methods to block, as pkg.Class#method"),
		),
		mcp.WithString("packages",
			mcp.Description("Comma-separated package prefixes to block"),
		),
		mcp.WithString("profile",
			mcp.Description("Saved filter profile whose rules are added"),
		),
	), t.filter)
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func splitList(s string) []string {
	return lo.Compact(lo.Map(strings.Split(s, ","), func(x string, _ int) string {
		return strings.TrimSpace(x)
	}))
}

// loaded returns the program, or an error result when no trace is loaded.
func (t *toolServer) loaded() (*program.Program, *mcp.CallToolResult) {
	if t.prog == nil || !t.prog.HasTrace() {
		return nil, mcp.NewToolResultError("No trace loaded. Use load_trace first")
	}
	return t.prog, nil
}

type traceSummary struct {
	Path        string `json:"path"`
	Events      int    `json:"events"`
	Filtered    int    `json:"filtered"`
	Classes     int    `json:"classes"`
	Edges       int    `json:"edges"`
	Start       int64  `json:"start"`
	End         int64  `json:"end"`
	Time        int64  `json:"time"`
	WindowStart int64  `json:"window_start"`
}

func summarize(p *program.Program) traceSummary {
	return traceSummary{
		Path:        p.Path(),
		Events:      p.Log().Len(),
		Filtered:    p.Log().FilteredCount(),
		Classes:     len(p.Metrics().VisibleVertices()),
		Edges:       len(p.Metrics().VisibleEdges()),
		Start:       p.StartTime(),
		End:         p.EndTime(),
		Time:        p.CurrentTime(),
		WindowStart: p.MetricWindowStart(),
	}
}

func (t *toolServer) loadTrace(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("file_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	ef := EngineFlags{
		Attribution:  request.GetString("attribution", ""),
		NoMergeInner: !request.GetBool("merge_inner_classes", t.env.cfg.Engine.MergeInnerClasses),
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	p, err := openTrace(ctx, t.env, t.store, path, ef, FilterFlags{})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load trace: %v", err)), nil
	}
	t.prog = p
	return jsonResult(summarize(p))
}

// maxExactFloat is the largest integer a JSON number decodes to exactly.
const maxExactFloat = 1 << 53

// int64Arg reads an integer argument. Trace clocks are nanosecond counts, so
// the exact form is a decimal string; a JSON number is accepted only while
// float64 holds it exactly.
func int64Arg(request mcp.CallToolRequest, name string) (int64, bool, error) {
	v, ok := request.GetArguments()[name]
	if !ok || v == nil {
		return 0, false, nil
	}
	switch x := v.(type) {
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, true, fmt.Errorf("%s: %q is not an integer", name, x)
		}
		return n, true, nil
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			return 0, true, fmt.Errorf("%s: %s is not an integer", name, x)
		}
		return n, true, nil
	case float64:
		if x != math.Trunc(x) || math.Abs(x) > maxExactFloat {
			return 0, true, fmt.Errorf("%s: %v is not an exact integer, pass it as a string", name, x)
		}
		return int64(x), true, nil
	case int:
		return int64(x), true, nil
	case int64:
		return x, true, nil
	}
	return 0, true, fmt.Errorf("%s: want an integer, got %T", name, v)
}

func (t *toolServer) setTime(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	at, ok, err := int64Arg(request, "time")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !ok {
		return mcp.NewToolResultError("time is required"), nil
	}
	from, hasFrom, err := int64Arg(request, "window_start")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	p, res := t.loaded()
	if res != nil {
		return res, nil
	}
	if err := p.SetCurrentTime(at); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if hasFrom {
		if err := p.SetMetricWindowStart(from); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	return jsonResult(summarize(p))
}

func (t *toolServer) step(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n := int(request.GetFloat("count", 1))
	if n < 0 {
		return mcp.NewToolResultError("count must not be negative"), nil
	}
	back := request.GetString("direction", "forward") == "back"

	t.mu.Lock()
	defer t.mu.Unlock()

	p, res := t.loaded()
	if res != nil {
		return res, nil
	}
	steps, err := runSteps(p, n, back)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]interface{}{
		"time":  p.CurrentTime(),
		"steps": steps,
	})
}

func (t *toolServer) classMetrics(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	class := request.GetString("class", "")

	t.mu.Lock()
	defer t.mu.Unlock()

	p, res := t.loaded()
	if res != nil {
		return res, nil
	}
	if class == "" {
		return jsonResult(classViews(p))
	}
	cw, ok := p.ClassMetrics(class)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("Unknown class %s", class)), nil
	}
	return jsonResult(classView(p, cw))
}

func (t *toolServer) edges(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	from := request.GetString("from", "")
	to := request.GetString("to", "")

	t.mu.Lock()
	defer t.mu.Unlock()

	p, res := t.loaded()
	if res != nil {
		return res, nil
	}
	edges := lo.Filter(p.Edges(), func(e metrics.EdgeWindow, _ int) bool {
		return (from == "" || e.From == from) && (to == "" || e.To == to)
	})
	return jsonResult(edges)
}

func (t *toolServer) stacks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, res := t.loaded()
	if res != nil {
		return res, nil
	}
	return jsonResult(stacksJSON{Trace: p.Path(), At: p.CurrentTime(), Threads: snapshotStacks(p)})
}

func (t *toolServer) filter(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	mode := request.GetString("mode", modeRules)
	switch mode {
	case modeRules, modeNone, modeConstructorsOnly, modeNoConstructors:
	default:
		return mcp.NewToolResultError(fmt.Sprintf("Unknown filter mode %s", mode)), nil
	}
	ff := FilterFlags{
		Block:            splitList(request.GetString("classes", "")),
		BlockMethod:      splitList(request.GetString("methods", "")),
		BlockPackage:     splitList(request.GetString("packages", "")),
		Profile:          request.GetString("profile", ""),
		ConstructorsOnly: mode == modeConstructorsOnly,
		NoConstructors:   mode == modeNoConstructors,
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	p, res := t.loaded()
	if res != nil {
		return res, nil
	}
	if mode == modeNone {
		if err := p.Unfilter(); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(summarize(p))
	}

	// Every argument is checked before the published trace changes.
	plan, err := planFilters(ctx, t.env.cfg, t.store, ff)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := plan.apply(t.env, p); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(summarize(p))
}
