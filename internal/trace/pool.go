package trace

// Pool canonicalizes repeated class and method names so that every distinct
// name is stored once per trace.
type Pool struct {
	constants map[string]string
}

// NewPool returns an empty pool.
func NewPool() *Pool {
	return &Pool{constants: make(map[string]string)}
}

// Intern returns the canonical instance of s.
func (p *Pool) Intern(s string) string {
	if c, ok := p.constants[s]; ok {
		return c
	}
	p.constants[s] = s
	return s
}

// Len returns the number of distinct names seen.
func (p *Pool) Len() int {
	return len(p.constants)
}
