package experiment

// Carrier holds the experiment collection and key prefix for one host
// session. It is built once at startup and passed to resolvers explicitly.
// A Carrier never validates or mutates its collection.
type Carrier struct {
	items  Collection
	prefix string
}

// NewCarrier creates a Carrier. An empty prefix selects DefaultPrefix.
func NewCarrier(items Collection, prefix string) *Carrier {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Carrier{items: items, prefix: prefix}
}

// Items returns the configured collection.
func (c *Carrier) Items() Collection {
	return c.items
}

// Prefix returns the variant ID prefix.
func (c *Carrier) Prefix() string {
	return c.prefix
}

// Lookup returns the resolved experiment for name, if configured.
func (c *Carrier) Lookup(name string) (Resolved, bool) {
	spec, ok := c.items[name]
	if !ok {
		return Resolved{}, false
	}
	return spec.Resolve(name, c.prefix), true
}
