package storage

import (
	"time"

	"github.com/runnerr0/tracescope/internal/filter"
)

// Rule kinds stored in profile_rules.kind.
const (
	RuleClass   = "class"
	RuleMethod  = "method"
	RulePackage = "package"
)

// Profile is a named set of filter rules.
type Profile struct {
	Name        string
	Description string
	Rules       filter.Rules
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TraceLoad records one successful trace load.
type TraceLoad struct {
	ID       int64
	Path     string
	LoadedAt time.Time
	Events   int
	Vertices int
	Edges    int
	Start    int64
	End      int64
}

// Stats holds aggregate statistics about the tracescope database.
type Stats struct {
	TotalProfiles     int64
	TotalRules        int64
	TotalLoads        int64
	LastLoad          time.Time
	DatabaseSizeBytes int64
	TopTraces         []PathCount
}

// PathCount pairs a trace path with the number of times it was loaded.
type PathCount struct {
	Path  string
	Count int64
}
