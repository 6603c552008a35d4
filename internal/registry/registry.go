// Package registry builds and exposes the immutable, startup-computed
// mapping from tool name to provider executable.
package registry

// ProviderBinding associates a tool name with the single provider
// executable that first claimed it, plus the definition JSON that
// provider emitted for it.
type ProviderBinding struct {
	ToolName     string
	ProviderPath string
	Definition   map[string]any
}

// DuplicateEntry records every provider that claimed the same tool name,
// newest claim first. A name with a DuplicateEntry is unusable: it is
// dropped from the aggregated definitions array and any tools/call to it
// fails.
type DuplicateEntry struct {
	ToolName      string
	ProviderPaths []string
}

// ListingError explains why a single provider's `list` output was
// rejected in its entirety.
type ListingError struct {
	ProviderPath string
	Reason       string
}

// Binding is the tagged union the dispatcher consults for a known tool
// name: either a single provider or a poisoned duplicate.
type Binding struct {
	Duplicate bool
	Single    ProviderBinding
	Dup       DuplicateEntry
}

// Registry is the root, read-only aggregate built once at startup.
type Registry struct {
	// names is the discovery-ordered sequence of distinct tool names,
	// including names that were later found to be duplicated.
	names []string

	bindings map[string]Binding

	// definitions is the aggregated array used by tools/list: one entry
	// per first-claimed name that was never duplicated, in discovery
	// order.
	definitions []map[string]any

	listingErrors []ListingError
	instructions  []string
}

// Names returns every distinct tool name seen during discovery, in
// discovery order, whether or not it ended up duplicated.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Lookup returns the binding for name and whether it exists at all.
func (r *Registry) Lookup(name string) (Binding, bool) {
	b, ok := r.bindings[name]
	return b, ok
}

// Definitions returns the aggregated tools/list payload: every
// successfully bound, non-duplicated tool definition in discovery order.
func (r *Registry) Definitions() []map[string]any {
	return append([]map[string]any(nil), r.definitions...)
}

// ListingErrors returns every per-provider listing failure gathered
// during build. A non-empty result poisons tools/list.
func (r *Registry) ListingErrors() []ListingError {
	return append([]ListingError(nil), r.listingErrors...)
}

// HasListingErrors reports whether any provider's listing was rejected.
func (r *Registry) HasListingErrors() bool {
	return len(r.listingErrors) > 0
}

// Duplicates returns every tool name claimed by more than one provider.
func (r *Registry) Duplicates() []DuplicateEntry {
	var out []DuplicateEntry
	for _, name := range r.names {
		if b, ok := r.bindings[name]; ok && b.Duplicate {
			out = append(out, b.Dup)
		}
	}
	return out
}

// HasDuplicates reports whether any tool name was claimed more than once.
func (r *Registry) HasDuplicates() bool {
	for _, name := range r.names {
		if b := r.bindings[name]; b.Duplicate {
			return true
		}
	}
	return false
}

// Instructions returns every trimmed, non-empty instructions blurb in
// provider discovery order.
func (r *Registry) Instructions() []string {
	return append([]string(nil), r.instructions...)
}
