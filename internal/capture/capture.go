// Package capture decodes the raw output of a child process invocation into
// the typed shape the rest of the server reasons about.
package capture

import "encoding/json"

// Result is the raw output of one child execution: exit status plus the
// three captured byte streams. It is produced by the runner package and is
// short-lived — callers should parse it into a Parsed immediately.
type Result struct {
	// ExitCode is the direct child's exit status. A child killed by a
	// signal is reported with a non-zero, implementation-stable value.
	ExitCode int

	// Stdout holds everything the child wrote to its standard output
	// stream, up to the runner's drain window.
	Stdout []byte

	// Stderr holds everything the child wrote to its standard error
	// stream, up to the runner's drain window.
	Stderr []byte

	// Combined holds the chronologically interleaved concatenation of
	// Stdout and Stderr, as observed by the runner's readers.
	Combined []byte

	// TimedOut indicates the invocation was terminated because it
	// exceeded its configured timeout rather than exiting on its own.
	TimedOut bool
}

// Parsed is a Result plus the precomputed "MCP-shaped" predicate: whether
// stdout, taken as a whole, parses as a single JSON object with a `content`
// field.
type Parsed struct {
	Result

	// MCPShaped is true iff Stdout is valid JSON, the top-level value is
	// an object, and that object has a "content" key.
	MCPShaped bool

	// Object holds the decoded stdout object when MCPShaped is true and
	// is nil otherwise.
	Object map[string]any
}

// Parse decodes r into a Parsed value. Malformed or non-object stdout JSON
// is not itself an error here — it only clears MCPShaped. Callers that need
// to report a parse failure as an error do so based on MCPShaped, not on a
// returned error.
func Parse(r Result) *Parsed {
	p := &Parsed{Result: r}

	var obj map[string]any
	if err := json.Unmarshal(r.Stdout, &obj); err != nil {
		return p
	}
	if _, ok := obj["content"]; !ok {
		return p
	}

	p.MCPShaped = true
	p.Object = obj
	return p
}
