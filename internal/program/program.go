// Package program is the facade over the trace engine: it loads a trace,
// moves the time cursor, applies filters and answers metric queries.
//
// A Program is not safe for concurrent use. Every mutating call either
// completes or leaves the previously published state untouched.
package program

import (
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/runnerr0/tracescope/internal/filter"
	"github.com/runnerr0/tracescope/internal/graph"
	"github.com/runnerr0/tracescope/internal/metrics"
	"github.com/runnerr0/tracescope/internal/replay"
	"github.com/runnerr0/tracescope/internal/trace"
)

// ErrNotLoaded is returned by calls that need a trace before one is loaded.
var ErrNotLoaded = errors.New("program: no trace loaded")

// Options configures how traces are turned into a model.
type Options struct {
	Attribution       graph.Attribution
	MergeInnerClasses bool

	// Logger receives one line per load, re-filter and failed call. Nil
	// means no logging.
	Logger log.Logger
}

// session is everything derived from one loaded trace. Calls replace the
// whole value or parts of it, never mutate it in place.
type session struct {
	path     string
	model    *graph.Model
	log      *trace.Log
	baseline *metrics.Set
	metrics  *metrics.Set
	cursor   *replay.Cursor
	active   filter.EventFilter

	metricStart int64
}

// Program owns the model of one loaded trace.
type Program struct {
	opts      Options
	logger    log.Logger
	listeners []Listener

	rules *filter.ClassMethodFilter
	s     *session
}

// New returns a Program with no trace loaded.
func New(opts Options) *Program {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Program{
		opts:   opts,
		logger: log.With(logger, "component", "program"),
		rules:  filter.NewClassMethodFilter(),
	}
}

// Options returns the options the program was created with.
func (p *Program) Options() Options { return p.opts }

// AddListener registers l. Listeners are notified in registration order.
func (p *Program) AddListener(l Listener) {
	p.listeners = append(p.listeners, l)
}

// RemoveListener unregisters l.
func (p *Program) RemoveListener(l Listener) {
	for i, x := range p.listeners {
		if x == l {
			p.listeners = append(p.listeners[:i:i], p.listeners[i+1:]...)
			return
		}
	}
}

// Load reads a trace archive and replaces the current trace with it.
func (p *Program) Load(path string) error {
	l, err := trace.ReadArchive(path, trace.NewParser(trace.NewPool()))
	if err != nil {
		level.Warn(p.logger).Log("msg", "load failed", "path", path, "err", err)
		return err
	}
	return p.load(path, l)
}

// LoadLog replaces the current trace with an already parsed log. The log is
// copied; later changes to it do not affect the program.
func (p *Program) LoadLog(l *trace.Log) error {
	return p.load("", l)
}

func (p *Program) load(path string, l *trace.Log) error {
	begin := time.Now()
	l = l.Clone()
	for i := range l.Events {
		l.Events[i].Filtered = false
	}

	m, err := graph.Build(l, graph.Options{
		Attribution:       p.opts.Attribution,
		MergeInnerClasses: p.opts.MergeInnerClasses,
	})
	if err != nil {
		level.Warn(p.logger).Log("msg", "load failed", "path", path, "err", err)
		return err
	}

	set, err := metrics.Compute(m, l, nil)
	if err != nil {
		level.Warn(p.logger).Log("msg", "load failed", "path", path, "err", err)
		return err
	}

	cursor := replay.NewCursor(l, replay.NewState(m))
	if err := cursor.SeekTime(l.Start); err != nil {
		level.Warn(p.logger).Log("msg", "load failed", "path", path, "err", err)
		return err
	}

	p.s = &session{
		path:        path,
		model:       m,
		log:         l,
		baseline:    set,
		metrics:     set,
		cursor:      cursor,
		active:      filter.Null{},
		metricStart: l.Start,
	}
	p.rules = filter.NewClassMethodFilter()

	level.Info(p.logger).Log(
		"msg", "trace loaded",
		"path", path,
		"events", l.Len(),
		"classes", len(set.VisibleVertices()),
		"edges", len(set.VisibleEdges()),
		"start", l.Start,
		"end", l.End,
		"duration", time.Since(begin),
	)
	p.each(Listener.TraceLoaded)
	return nil
}

// HasTrace reports whether a trace is loaded.
func (p *Program) HasTrace() bool { return p.s != nil }

func (p *Program) loaded() (*session, error) {
	if p.s == nil {
		return nil, ErrNotLoaded
	}
	return p.s, nil
}

// SetCurrentTime moves the time cursor to t. Every event at or before t is
// applied afterwards.
func (p *Program) SetCurrentTime(t int64) error {
	s, err := p.loaded()
	if err != nil {
		return err
	}
	if err := s.cursor.SeekTime(t); err != nil {
		level.Warn(p.logger).Log("msg", "set current time aborted", "time", t, "err", err)
		return err
	}
	p.each(Listener.TimeChanged)
	return nil
}

// JumpToNextEvent applies the next unfiltered event and moves the current
// time to it. At the end of the trace it does nothing.
func (p *Program) JumpToNextEvent() error {
	return p.step(true)
}

// JumpToPreviousEvent undoes the last applied unfiltered event and moves the
// current time to it. At the start of the trace it does nothing.
func (p *Program) JumpToPreviousEvent() error {
	return p.step(false)
}

func (p *Program) step(forward bool) error {
	s, err := p.loaded()
	if err != nil {
		return err
	}

	var (
		st replay.Step
		ok bool
	)
	if forward {
		st, ok, err = s.cursor.Forward()
	} else {
		st, ok, err = s.cursor.Back()
	}
	if err != nil {
		level.Warn(p.logger).Log("msg", "step aborted", "forward", forward, "err", err)
		return err
	}
	if !ok {
		return nil
	}

	p.each(Listener.TimeChanged)

	if !st.Event.Kind.IsCall() {
		return nil
	}
	res := s.model.Resolution(st.Index)
	// Undoing an entry looks like an exit and undoing an exit like an entry.
	if (st.Event.Kind == trace.KindMethodEntry) == forward {
		p.each(func(l Listener) { l.MethodEntered(res.Caller, res.Callee) })
	} else {
		p.each(func(l Listener) { l.MethodExited(res.Caller, res.Callee) })
	}
	return nil
}

// SetMetricWindowStart sets the start of the metric window.
func (p *Program) SetMetricWindowStart(t int64) error {
	s, err := p.loaded()
	if err != nil {
		return err
	}
	s.metricStart = t
	p.each(Listener.TimeChanged)
	return nil
}

// Filter applies the configured class, method and package rules.
func (p *Program) Filter() error {
	return p.apply(p.rules.Clone())
}

// Unfilter drops every rule and shows the whole trace.
func (p *Program) Unfilter() error {
	if err := p.apply(filter.Null{}); err != nil {
		return err
	}
	p.rules = filter.NewClassMethodFilter()
	return nil
}

// FilterRules replaces the configured rules with r and applies them. On
// error both the rules and the published trace are left as they were.
func (p *Program) FilterRules(r filter.Rules) error {
	rules := filter.NewClassMethodFilter()
	rules.Apply(r)
	if err := p.apply(rules.Clone()); err != nil {
		return err
	}
	p.rules = rules
	return nil
}

// ConstructorsOnly shows constructor calls only. The configured rules are
// kept for the next Filter.
func (p *Program) ConstructorsOnly() error {
	return p.apply(filter.ConstructorFilter{})
}

// NoConstructors replaces the rules with one that hides the constructor of
// every class, and applies it.
func (p *Program) NoConstructors() error {
	return p.FilterRules(p.ConstructorRules())
}

// ConstructorRules returns a rule blocking the constructor of every class in
// the loaded trace.
func (p *Program) ConstructorRules() filter.Rules {
	if p.s == nil {
		return filter.Rules{}
	}
	names := p.s.model.Names()
	methods := make([]filter.MethodRule, 0, len(names))
	for _, name := range names {
		methods = append(methods, filter.MethodRule{Class: name, Method: filter.Constructor})
	}
	return filter.Rules{Methods: methods}
}

// apply runs f over a copy of the log and publishes the copy together with
// freshly computed metrics and a replay state resynchronized to the current
// time.
func (p *Program) apply(f filter.EventFilter) error {
	s, err := p.loaded()
	if err != nil {
		return err
	}
	begin := time.Now()

	l := s.log.Clone()
	n := filter.Run(f, s.model, l)

	set, err := metrics.Compute(s.model, l, s.baseline)
	if err != nil {
		level.Warn(p.logger).Log("msg", "filter aborted", "err", err)
		return err
	}

	cursor := replay.NewCursor(l, replay.NewState(s.model))
	if err := cursor.SeekTime(s.cursor.Time()); err != nil {
		level.Warn(p.logger).Log("msg", "filter aborted", "err", err)
		return err
	}

	next := *s
	next.log = l
	next.metrics = set
	next.cursor = cursor
	next.active = f
	p.s = &next

	level.Info(p.logger).Log(
		"msg", "trace filtered",
		"filtered", n,
		"events", l.Len(),
		"classes", len(set.VisibleVertices()),
		"edges", len(set.VisibleEdges()),
		"duration", time.Since(begin),
	)
	p.each(Listener.TraceFiltered)
	return nil
}

func (p *Program) each(fn func(Listener)) {
	for _, l := range p.listeners {
		fn(l)
	}
}
