package cli

// GlobalFlags holds flags available to all subcommands.
type GlobalFlags struct {
	Config  string `long:"config" description:"Path to config file" default:""`
	JSON    bool   `long:"json" description:"Output in JSON format"`
	Verbose bool   `long:"verbose" description:"Log at debug level"`
	Version bool   `long:"version" description:"Show version and exit"`
}

// EngineFlags override the engine section of the config for one load.
type EngineFlags struct {
	Attribution  string `long:"attribution" description:"Charge calls to the defining or the actual class" choice:"defining" choice:"actual"`
	NoMergeInner bool   `long:"no-merge-inner" description:"Keep inner classes as their own vertices"`
}

// FilterFlags add rules on top of the configured filters.
type FilterFlags struct {
	Block            []string `long:"block" description:"Hide calls into a class (repeatable)"`
	BlockMethod      []string `long:"block-method" description:"Hide one method, as pkg.Class#method (repeatable)"`
	BlockPackage     []string `long:"block-package" description:"Hide every class under a package prefix (repeatable)"`
	Profile          string   `long:"profile" description:"Add the rules of a saved filter profile"`
	HideJDK          bool     `long:"hide-jdk" description:"Hide the JDK packages"`
	ConstructorsOnly bool     `long:"constructors-only" description:"Show constructor calls only"`
	NoConstructors   bool     `long:"no-constructors" description:"Hide every constructor call"`
}

// TraceArgs is the positional trace path.
type TraceArgs struct {
	Trace string `positional-arg-name:"TRACE" description:"Trace archive" required:"yes"`
}

// InspectCommand prints class and edge metrics at a point in time.
type InspectCommand struct {
	At   *int64 `long:"at" description:"Current time (default: end of trace)"`
	From *int64 `long:"from" description:"Metric window start (default: start of trace)"`

	EngineFlags
	FilterFlags

	Args TraceArgs `positional-args:"yes"`

	globals *GlobalFlags
	version string
}

// StacksCommand prints every thread's call stack at a point in time.
type StacksCommand struct {
	At int64 `long:"at" description:"Time to replay to" required:"yes"`

	EngineFlags
	FilterFlags

	Args TraceArgs `positional-args:"yes"`

	globals *GlobalFlags
	version string
}

// StepCommand steps over unfiltered events and prints the calls entered
// and exited.
type StepCommand struct {
	From  *int64 `long:"from" description:"Time to start from (default: start of trace, or end with --back)"`
	Count int    `long:"count" description:"Number of events to step over" default:"1"`
	Back  bool   `long:"back" description:"Step backwards"`

	EngineFlags
	FilterFlags

	Args TraceArgs `positional-args:"yes"`

	globals *GlobalFlags
	version string
}

// ProfileCommand groups the filter profile subcommands.
type ProfileCommand struct {
	Save   ProfileSaveCommand   `command:"save" description:"Create or replace a filter profile"`
	List   ProfileListCommand   `command:"list" description:"List filter profiles"`
	Show   ProfileShowCommand   `command:"show" description:"Print the rules of a filter profile"`
	Delete ProfileDeleteCommand `command:"delete" description:"Delete a filter profile"`
}

// ProfileName is the positional profile name.
type ProfileName struct {
	Name string `positional-arg-name:"NAME" required:"yes"`
}

// ProfileSaveCommand stores a named set of filter rules.
type ProfileSaveCommand struct {
	Description  string   `long:"description" description:"Free-form description"`
	Block        []string `long:"block" description:"Blocked class (repeatable)"`
	BlockMethod  []string `long:"block-method" description:"Blocked method, as pkg.Class#method (repeatable)"`
	BlockPackage []string `long:"block-package" description:"Blocked package prefix (repeatable)"`

	Args ProfileName `positional-args:"yes"`

	globals *GlobalFlags
}

// ProfileListCommand lists the saved profiles.
type ProfileListCommand struct {
	globals *GlobalFlags
}

// ProfileShowCommand prints one profile.
type ProfileShowCommand struct {
	Args ProfileName `positional-args:"yes"`

	globals *GlobalFlags
}

// ProfileDeleteCommand removes one profile.
type ProfileDeleteCommand struct {
	Args ProfileName `positional-args:"yes"`

	globals *GlobalFlags
}

// HistoryCommand lists recorded trace loads.
type HistoryCommand struct {
	Limit int `long:"limit" description:"Maximum entries" default:"20"`

	globals *GlobalFlags
}

// StatusCommand shows store statistics and the effective configuration.
type StatusCommand struct {
	globals *GlobalFlags
	version string
}

// PruneCommand deletes old trace history entries.
type PruneCommand struct {
	OlderThan string `long:"older-than" description:"Delete loads older than this (e.g. 30d, 2w)" default:"30d"`
	DryRun    bool   `long:"dry-run" description:"Show what would be pruned without deleting"`

	globals *GlobalFlags
}

// PurgeCommand deletes every profile and history entry.
type PurgeCommand struct {
	All   bool `long:"all" description:"Required flag to confirm purge intent"`
	Force bool `long:"force" description:"Skip safety confirmation prompt"`

	globals *GlobalFlags
}

// MCPCommand serves the engine as MCP tools over stdio.
type MCPCommand struct {
	globals *GlobalFlags
	version string
}
