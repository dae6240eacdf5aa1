package graph

// Definitions maps view names to their definition text, keeping insertion order.
type Definitions struct {
	names []string
	text  map[string]string
}

// NewDefinitions returns an empty mapping.
func NewDefinitions() *Definitions {
	return &Definitions{text: make(map[string]string)}
}

// Add stores def for name unless name is already present. It reports whether
// the definition was stored.
func (d *Definitions) Add(name, def string) bool {
	if _, ok := d.text[name]; ok || name == "" {
		return false
	}
	d.names = append(d.names, name)
	d.text[name] = def
	return true
}

// Get returns the definition of name.
func (d *Definitions) Get(name string) (string, bool) {
	if d == nil {
		return "", false
	}
	def, ok := d.text[name]
	return def, ok
}

// Has reports whether name has a definition.
func (d *Definitions) Has(name string) bool {
	_, ok := d.Get(name)
	return ok
}

// Names returns view names in insertion order.
func (d *Definitions) Names() []string {
	if d == nil {
		return nil
	}
	out := make([]string, len(d.names))
	copy(out, d.names)
	return out
}

// Len returns the number of definitions.
func (d *Definitions) Len() int {
	if d == nil {
		return 0
	}
	return len(d.names)
}
