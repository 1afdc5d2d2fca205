package trace

import (
	"sort"
	"strconv"
	"strings"
)

// Kind identifies one of the closed set of trace record types.
type Kind uint8

const (
	KindVMStart Kind = iota + 1
	KindVMInit
	KindVMDeath
	KindThreadStart
	KindThreadEnd
	KindClassLoad
	KindMethodEntry
	KindMethodExit
	KindFramePop
	KindObjectAlloc
	KindObjectFree
)

// Kinds lists every event kind in declaration order.
var Kinds = []Kind{
	KindVMStart, KindVMInit, KindVMDeath,
	KindThreadStart, KindThreadEnd,
	KindClassLoad,
	KindMethodEntry, KindMethodExit, KindFramePop,
	KindObjectAlloc, KindObjectFree,
}

var kindInfo = map[Kind]struct {
	tag    string
	name   string
	fields int
}{
	KindVMStart:     {"VS", "vm-start", 2},
	KindVMInit:      {"VI", "vm-init", 2},
	KindVMDeath:     {"VD", "vm-death", 2},
	KindThreadStart: {"TB", "thread-start", 3},
	KindThreadEnd:   {"TE", "thread-end", 3},
	KindClassLoad:   {"CL", "class-load", 3},
	KindMethodEntry: {"MN", "method-entry", 6},
	KindMethodExit:  {"MX", "method-exit", 5},
	KindFramePop:    {"FP", "frame-pop", 5},
	KindObjectAlloc: {"OA", "object-alloc", 4},
	KindObjectFree:  {"OF", "object-free", 4},
}

var kindByTag = func() map[string]Kind {
	m := make(map[string]Kind, len(kindInfo))
	for k, info := range kindInfo {
		m[info.tag] = k
	}
	return m
}()

// Tag returns the two-letter record tag, e.g. "MN".
func (k Kind) Tag() string {
	return kindInfo[k].tag
}

func (k Kind) String() string {
	if info, ok := kindInfo[k]; ok {
		return info.name
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// HasThread reports whether events of this kind carry a thread id.
func (k Kind) HasThread() bool {
	switch k {
	case KindThreadStart, KindThreadEnd, KindMethodEntry, KindMethodExit, KindFramePop:
		return true
	}
	return false
}

// HasClass reports whether events of this kind carry a class name.
func (k Kind) HasClass() bool {
	switch k {
	case KindClassLoad, KindMethodEntry, KindMethodExit, KindFramePop, KindObjectAlloc, KindObjectFree:
		return true
	}
	return false
}

// IsCall reports whether the kind pushes or pops a call frame.
func (k Kind) IsCall() bool {
	return k == KindMethodEntry || k == KindMethodExit || k == KindFramePop
}

// IsReturn reports whether the kind pops a call frame.
func (k Kind) IsReturn() bool {
	return k == KindMethodExit || k == KindFramePop
}

// Event is one trace record. All fields except Filtered are fixed at parse
// time; fields that do not apply to the Kind are zero.
type Event struct {
	Kind   Kind
	Time   int64
	Thread int64
	Class  string
	Method string
	Object int64

	// Line is the 1-based source line of the record, 0 if synthesized.
	Line int

	// Filtered is set by the active event filter.
	Filtered bool
}

// String renders the event in its wire form with a dotted class name.
func (e Event) String() string {
	return e.record(e.Class)
}

// Record renders the event in its wire form, with '/' separated class names.
func (e Event) Record() string {
	return e.record(strings.ReplaceAll(e.Class, ".", "/"))
}

func (e Event) record(class string) string {
	fields := []string{e.Kind.Tag(), strconv.FormatInt(e.Time, 10)}
	switch e.Kind {
	case KindThreadStart, KindThreadEnd:
		fields = append(fields, strconv.FormatInt(e.Thread, 10))
	case KindClassLoad:
		fields = append(fields, class)
	case KindMethodEntry:
		fields = append(fields, strconv.FormatInt(e.Thread, 10), class, e.Method, strconv.FormatInt(e.Object, 10))
	case KindMethodExit, KindFramePop:
		fields = append(fields, strconv.FormatInt(e.Thread, 10), class, e.Method)
	case KindObjectAlloc, KindObjectFree:
		fields = append(fields, class, strconv.FormatInt(e.Object, 10))
	}
	return strings.Join(fields, ":")
}

// Log is the ordered event log of one trace.
type Log struct {
	Events []Event

	// Start and End bound the trace clock.
	Start int64
	End   int64
}

// Len returns the number of events.
func (l *Log) Len() int {
	return len(l.Events)
}

// Clone returns a copy whose events can be re-marked without touching l.
func (l *Log) Clone() *Log {
	events := make([]Event, len(l.Events))
	copy(events, l.Events)
	return &Log{Events: events, Start: l.Start, End: l.End}
}

// FilteredCount returns the number of events currently marked filtered.
func (l *Log) FilteredCount() int {
	n := 0
	for i := range l.Events {
		if l.Events[i].Filtered {
			n++
		}
	}
	return n
}

// After returns the index of the first event with Time > t, or Len().
func (l *Log) After(t int64) int {
	return sort.Search(len(l.Events), func(i int) bool {
		return l.Events[i].Time > t
	})
}
