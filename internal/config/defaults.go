package config

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			CallAttribution:   "defining_class",
			MergeInnerClasses: true,
		},
		Filters: FiltersConfig{
			Classes:  []string{},
			Methods:  []string{},
			Packages: []string{},
			HideJDK:  false,
		},
		Storage: StorageConfig{
			Path:              "~/.config/tracescope",
			SQLiteFile:        "tracescope.db",
			SQLiteJournalMode: "wal",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "logfmt",
		},
		MCP: MCPConfig{
			Name:    "tracescope",
			Version: "",
		},
	}
}
