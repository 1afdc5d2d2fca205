package filter

import (
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/runnerr0/tracescope/internal/graph"
	"github.com/runnerr0/tracescope/internal/trace"
)

// MethodRule blocks one method of one class.
type MethodRule struct {
	Class  string `json:"class" yaml:"class"`
	Method string `json:"method" yaml:"method"`
}

func (r MethodRule) String() string { return r.Class + "#" + r.Method }

// ParseMethodRule parses "pkg.Class#method".
func ParseMethodRule(s string) (MethodRule, bool) {
	class, method, ok := strings.Cut(s, "#")
	if !ok || class == "" || method == "" {
		return MethodRule{}, false
	}
	return MethodRule{Class: class, Method: method}, true
}

// Rules is a snapshot of a ClassMethodFilter's configuration.
type Rules struct {
	Classes  []string     `json:"classes,omitempty"`
	Methods  []MethodRule `json:"methods,omitempty"`
	Packages []string     `json:"packages,omitempty"`
}

// Empty reports whether the rules block nothing.
func (r Rules) Empty() bool {
	return len(r.Classes) == 0 && len(r.Methods) == 0 && len(r.Packages) == 0
}

// ClassMethodFilter filters every event that happens while a blocked frame is
// on the event's thread stack, so a blocked call hides its whole subtree.
// Class loads, allocations and frees are filtered by class name alone.
//
// Frames are matched by the vertex they are attributed to, so with merged
// inner classes blocking "a.Outer" also blocks "a.Outer$Inner".
type ClassMethodFilter struct {
	classes  map[string]struct{}
	methods  map[MethodRule]struct{}
	packages map[string]struct{}

	m      *graph.Model
	stacks graph.Stacks
}

// NewClassMethodFilter returns a filter that blocks nothing.
func NewClassMethodFilter() *ClassMethodFilter {
	return &ClassMethodFilter{
		classes:  make(map[string]struct{}),
		methods:  make(map[MethodRule]struct{}),
		packages: make(map[string]struct{}),
	}
}

func (f *ClassMethodFilter) AddClass(name string)    { f.classes[name] = struct{}{} }
func (f *ClassMethodFilter) RemoveClass(name string) { delete(f.classes, name) }

func (f *ClassMethodFilter) AddMethod(class, method string) {
	f.methods[MethodRule{class, method}] = struct{}{}
}

func (f *ClassMethodFilter) RemoveMethod(class, method string) {
	delete(f.methods, MethodRule{class, method})
}

// AddPackage blocks every class in package prefix or its subpackages.
func (f *ClassMethodFilter) AddPackage(prefix string) {
	f.packages[strings.TrimSuffix(prefix, ".")] = struct{}{}
}

func (f *ClassMethodFilter) RemovePackage(prefix string) {
	delete(f.packages, strings.TrimSuffix(prefix, "."))
}

// IsFilteredClass reports whether name is blocked, directly or by package.
func (f *ClassMethodFilter) IsFilteredClass(name string) bool {
	if _, ok := f.classes[name]; ok {
		return true
	}
	if len(f.packages) == 0 {
		return false
	}
	for pkg := graph.PackageName(name); pkg != ""; pkg = graph.PackageName(pkg) {
		if _, ok := f.packages[pkg]; ok {
			return true
		}
	}
	return false
}

// IsFilteredMethod reports whether the exact (class, method) pair is blocked.
func (f *ClassMethodFilter) IsFilteredMethod(class, method string) bool {
	_, ok := f.methods[MethodRule{class, method}]
	return ok
}

// Apply adds every rule in r.
func (f *ClassMethodFilter) Apply(r Rules) {
	for _, c := range r.Classes {
		f.AddClass(c)
	}
	for _, m := range r.Methods {
		f.AddMethod(m.Class, m.Method)
	}
	for _, p := range r.Packages {
		f.AddPackage(p)
	}
}

// Rules returns the configured rules in sorted order.
func (f *ClassMethodFilter) Rules() Rules {
	r := Rules{
		Classes:  lo.Keys(f.classes),
		Methods:  lo.Keys(f.methods),
		Packages: lo.Keys(f.packages),
	}
	sort.Strings(r.Classes)
	sort.Strings(r.Packages)
	sort.Slice(r.Methods, func(i, j int) bool {
		return r.Methods[i].String() < r.Methods[j].String()
	})
	return r
}

// Clone returns an independent copy of the rules.
func (f *ClassMethodFilter) Clone() *ClassMethodFilter {
	c := NewClassMethodFilter()
	c.Apply(f.Rules())
	return c
}

func (f *ClassMethodFilter) Begin(m *graph.Model) {
	f.m = m
	f.stacks = make(graph.Stacks)
}

func (f *ClassMethodFilter) Filtered(i int, ev *trace.Event) bool {
	switch ev.Kind {
	case trace.KindMethodEntry:
		st := f.stacks.Get(ev.Thread)
		st.Push(f.m.Resolution(i).Frame)
		return f.blocked(st)
	case trace.KindMethodExit, trace.KindFramePop:
		st := f.stacks.Get(ev.Thread)
		blocked := f.blocked(st)
		st.Pop()
		return blocked
	case trace.KindClassLoad, trace.KindObjectAlloc, trace.KindObjectFree:
		if f.IsFilteredClass(ev.Class) {
			return true
		}
		v, ok := f.m.Lookup(ev.Class)
		return ok && f.IsFilteredClass(f.m.Name(v))
	}
	return false
}

func (f *ClassMethodFilter) blocked(st *graph.CallStack) bool {
	return st.Any(func(id graph.FrameID) bool {
		name := f.m.Name(f.m.Attributed(id))
		return f.IsFilteredClass(name) || f.IsFilteredMethod(name, f.m.Frame(id).Method)
	})
}
