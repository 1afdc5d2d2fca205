package cli

import (
	"context"
	"fmt"

	"github.com/go-kit/log/level"

	"github.com/runnerr0/tracescope/internal/config"
	"github.com/runnerr0/tracescope/internal/filter"
	"github.com/runnerr0/tracescope/internal/graph"
	"github.com/runnerr0/tracescope/internal/program"
	"github.com/runnerr0/tracescope/internal/storage"
)

// newProgram builds a Program from the engine config, overridden by ef.
func newProgram(e *env, ef EngineFlags) (*program.Program, error) {
	opts := e.cfg.EngineOptions(e.logger)
	if ef.Attribution != "" {
		a, err := graph.ParseAttribution(ef.Attribution)
		if err != nil {
			return nil, err
		}
		opts.Attribution = a
	}
	if ef.NoMergeInner {
		opts.MergeInnerClasses = false
	}
	return program.New(opts), nil
}

// openTrace loads path, records the load in store and applies the
// configured filters plus ff. A nil store skips the history.
func openTrace(ctx context.Context, e *env, store storage.Store, path string, ef EngineFlags, ff FilterFlags) (*program.Program, error) {
	p, err := newProgram(e, ef)
	if err != nil {
		return nil, err
	}
	if err := p.Load(path); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	recordLoad(ctx, e, store, p)

	if err := applyFilters(ctx, e, store, p, ff); err != nil {
		return nil, err
	}
	return p, nil
}

// recordLoad appends p's trace to the history. Failures are logged, not
// returned; the history is a convenience.
func recordLoad(ctx context.Context, e *env, store storage.Store, p *program.Program) {
	if store == nil {
		return
	}
	load := &storage.TraceLoad{
		Path:     p.Path(),
		Events:   p.Log().Len(),
		Vertices: len(p.Metrics().VisibleVertices()),
		Edges:    len(p.Metrics().VisibleEdges()),
		Start:    p.StartTime(),
		End:      p.EndTime(),
	}
	if err := store.RecordLoad(ctx, load); err != nil {
		level.Warn(e.logger).Log("msg", "recording trace load failed", "path", load.Path, "err", err)
	}
}

// collectRules merges the configured filters, the named profile and ff.
func collectRules(ctx context.Context, cfg *config.Config, store storage.Store, ff FilterFlags) (filter.Rules, error) {
	rules := cfg.FilterRules()

	if ff.Profile != "" {
		if store == nil {
			return rules, fmt.Errorf("--profile needs the profile store")
		}
		prof, err := store.GetProfile(ctx, ff.Profile)
		if err != nil {
			return rules, err
		}
		rules.Classes = append(rules.Classes, prof.Rules.Classes...)
		rules.Methods = append(rules.Methods, prof.Rules.Methods...)
		rules.Packages = append(rules.Packages, prof.Rules.Packages...)
	}

	rules.Classes = append(rules.Classes, ff.Block...)
	for _, s := range ff.BlockMethod {
		m, ok := filter.ParseMethodRule(s)
		if !ok {
			return rules, fmt.Errorf("invalid --block-method %q: want pkg.Class#method", s)
		}
		rules.Methods = append(rules.Methods, m)
	}
	rules.Packages = append(rules.Packages, ff.BlockPackage...)
	if ff.HideJDK && !cfg.Filters.HideJDK {
		rules.Packages = append(rules.Packages, config.DefaultJDKPackages()...)
	}

	return rules, nil
}

// filterPlan is a validated filter request. Applying it is a single
// Program call, so a plan either takes effect whole or not at all.
type filterPlan struct {
	rules            filter.Rules
	constructorsOnly bool
	noConstructors   bool
}

// empty reports whether the plan leaves the trace unfiltered.
func (fp filterPlan) empty() bool {
	return !fp.constructorsOnly && !fp.noConstructors && fp.rules.Empty()
}

// planFilters checks ff and gathers every rule it names. Nothing is applied.
func planFilters(ctx context.Context, cfg *config.Config, store storage.Store, ff FilterFlags) (filterPlan, error) {
	if ff.ConstructorsOnly && ff.NoConstructors {
		return filterPlan{}, fmt.Errorf("--constructors-only and --no-constructors are mutually exclusive")
	}
	rules, err := collectRules(ctx, cfg, store, ff)
	if err != nil {
		return filterPlan{}, err
	}
	return filterPlan{
		rules:            rules,
		constructorsOnly: ff.ConstructorsOnly,
		noConstructors:   ff.NoConstructors,
	}, nil
}

// apply installs the plan on p, replacing the active filter.
func (fp filterPlan) apply(e *env, p *program.Program) error {
	switch {
	case fp.constructorsOnly:
		if !fp.rules.Empty() {
			level.Warn(e.logger).Log("msg", "block rules are ignored when showing constructors only")
		}
		return p.ConstructorsOnly()
	case fp.noConstructors:
		rules := p.ConstructorRules()
		rules.Classes = append(rules.Classes, fp.rules.Classes...)
		rules.Methods = append(rules.Methods, fp.rules.Methods...)
		rules.Packages = append(rules.Packages, fp.rules.Packages...)
		return p.FilterRules(rules)
	default:
		return p.FilterRules(fp.rules)
	}
}

// applyFilters installs the filter ff asks for on a freshly loaded trace.
// Without rules or a constructor mode the trace stays unfiltered.
func applyFilters(ctx context.Context, e *env, store storage.Store, p *program.Program, ff FilterFlags) error {
	plan, err := planFilters(ctx, e.cfg, store, ff)
	if err != nil {
		return err
	}
	if plan.empty() {
		return nil
	}
	return plan.apply(e, p)
}
