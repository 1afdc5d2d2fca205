package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/runnerr0/tracescope/internal/filter"
	"github.com/runnerr0/tracescope/internal/storage"
)

// profileJSON is the JSON output structure for one filter profile.
type profileJSON struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Rules       filter.Rules `json:"rules"`
	CreatedAt   string       `json:"created_at"`
	UpdatedAt   string       `json:"updated_at"`
}

func toProfileJSON(p storage.Profile) profileJSON {
	return profileJSON{
		Name:        p.Name,
		Description: p.Description,
		Rules:       p.Rules,
		CreatedAt:   p.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   p.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// withStore opens the configured store for the duration of fn.
func withStore(globals *GlobalFlags, fn func(store *storage.SQLiteStore) error) error {
	e, err := loadEnv(globals)
	if err != nil {
		return err
	}
	store, db, err := openStore(e.cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	defer store.Close()

	return fn(store)
}

// Execute implements the go-flags Commander interface for ProfileSaveCommand.
func (c *ProfileSaveCommand) Execute(args []string) error {
	return withStore(c.globals, func(store *storage.SQLiteStore) error {
		return c.executeWithStore(context.Background(), store)
	})
}

// executeWithStore saves the profile to a provided store (for testing).
func (c *ProfileSaveCommand) executeWithStore(ctx context.Context, store storage.Store) error {
	rules := filter.Rules{
		Classes:  c.Block,
		Packages: c.BlockPackage,
	}
	for _, s := range c.BlockMethod {
		m, ok := filter.ParseMethodRule(s)
		if !ok {
			return fmt.Errorf("invalid --block-method %q: want pkg.Class#method", s)
		}
		rules.Methods = append(rules.Methods, m)
	}
	if rules.Empty() {
		return fmt.Errorf("profile %s needs at least one --block, --block-method or --block-package", c.Args.Name)
	}

	p := &storage.Profile{Name: c.Args.Name, Description: c.Description, Rules: rules}
	if existing, err := store.GetProfile(ctx, c.Args.Name); err == nil {
		p.CreatedAt = existing.CreatedAt
	}
	if err := store.SaveProfile(ctx, p); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(os.Stdout, toProfileJSON(*p))
	}
	fmt.Printf("Saved profile %s (%d classes, %d methods, %d packages)\n",
		p.Name, len(rules.Classes), len(rules.Methods), len(rules.Packages))
	return nil
}

// Execute implements the go-flags Commander interface for ProfileListCommand.
func (c *ProfileListCommand) Execute(args []string) error {
	return withStore(c.globals, func(store *storage.SQLiteStore) error {
		return c.executeWithStore(context.Background(), store)
	})
}

// executeWithStore lists the profiles of a provided store (for testing).
func (c *ProfileListCommand) executeWithStore(ctx context.Context, store storage.Store) error {
	profiles, err := store.ListProfiles(ctx)
	if err != nil {
		return err
	}

	if c.globals != nil && c.globals.JSON {
		out := make([]profileJSON, len(profiles))
		for i, p := range profiles {
			out[i] = toProfileJSON(p)
		}
		return printJSON(os.Stdout, out)
	}

	if len(profiles) == 0 {
		fmt.Println("No filter profiles.")
		return nil
	}
	table := newTable(os.Stdout, "Name", "Classes", "Methods", "Packages", "Updated", "Description")
	for _, p := range profiles {
		table.Append([]string{
			p.Name,
			fmt.Sprint(len(p.Rules.Classes)),
			fmt.Sprint(len(p.Rules.Methods)),
			fmt.Sprint(len(p.Rules.Packages)),
			humanize.Time(p.UpdatedAt),
			p.Description,
		})
	}
	table.Render()
	return nil
}

// Execute implements the go-flags Commander interface for ProfileShowCommand.
func (c *ProfileShowCommand) Execute(args []string) error {
	return withStore(c.globals, func(store *storage.SQLiteStore) error {
		return c.executeWithStore(context.Background(), store)
	})
}

// executeWithStore prints one profile of a provided store (for testing).
func (c *ProfileShowCommand) executeWithStore(ctx context.Context, store storage.Store) error {
	p, err := store.GetProfile(ctx, c.Args.Name)
	if err != nil {
		return err
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(os.Stdout, toProfileJSON(*p))
	}

	fmt.Printf("Profile:     %s\n", p.Name)
	if p.Description != "" {
		fmt.Printf("Description: %s\n", p.Description)
	}
	fmt.Printf("Updated:     %s\n", p.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
	printRuleList("Classes", p.Rules.Classes)
	methods := make([]string, len(p.Rules.Methods))
	for i, m := range p.Rules.Methods {
		methods[i] = m.String()
	}
	printRuleList("Methods", methods)
	printRuleList("Packages", p.Rules.Packages)
	return nil
}

func printRuleList(title string, rules []string) {
	if len(rules) == 0 {
		return
	}
	fmt.Println()
	fmt.Printf("%s:\n", title)
	fmt.Printf("  %s\n", strings.Join(rules, "\n  "))
}

// Execute implements the go-flags Commander interface for ProfileDeleteCommand.
func (c *ProfileDeleteCommand) Execute(args []string) error {
	return withStore(c.globals, func(store *storage.SQLiteStore) error {
		return c.executeWithStore(context.Background(), store)
	})
}

// executeWithStore deletes one profile from a provided store (for testing).
func (c *ProfileDeleteCommand) executeWithStore(ctx context.Context, store storage.Store) error {
	if err := store.DeleteProfile(ctx, c.Args.Name); err != nil {
		return err
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(os.Stdout, map[string]interface{}{"deleted": c.Args.Name})
	}
	fmt.Printf("Deleted profile %s\n", c.Args.Name)
	return nil
}
