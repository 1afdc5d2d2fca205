package program

import "github.com/runnerr0/tracescope/internal/filter"

// Rule edits take effect on the next Filter.

func (p *Program) AddClassFilter(name string)    { p.rules.AddClass(name) }
func (p *Program) RemoveClassFilter(name string) { p.rules.RemoveClass(name) }

func (p *Program) AddMethodFilter(class, method string)    { p.rules.AddMethod(class, method) }
func (p *Program) RemoveMethodFilter(class, method string) { p.rules.RemoveMethod(class, method) }

// AddPackageFilter blocks every class in prefix and its subpackages.
func (p *Program) AddPackageFilter(prefix string)    { p.rules.AddPackage(prefix) }
func (p *Program) RemovePackageFilter(prefix string) { p.rules.RemovePackage(prefix) }

// AddRules adds every rule in r.
func (p *Program) AddRules(r filter.Rules) { p.rules.Apply(r) }

// Rules returns the configured rules.
func (p *Program) Rules() filter.Rules { return p.rules.Rules() }

// IsFilteredClass reports whether name is blocked by the configured rules.
func (p *Program) IsFilteredClass(name string) bool { return p.rules.IsFilteredClass(name) }

// IsFilteredMethod reports whether class#method is blocked by the configured
// rules.
func (p *Program) IsFilteredMethod(class, method string) bool {
	return p.rules.IsFilteredMethod(class, method)
}
