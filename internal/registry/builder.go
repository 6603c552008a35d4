package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/toolhost-mcp/toolhost/internal/capture"
	domainerrors "github.com/toolhost-mcp/toolhost/internal/errors"
)

// Runner is the subset of *runner.Runner the builder depends on, narrowed
// to keep this package testable without spawning real executables.
type Runner interface {
	Run(ctx context.Context, execPath, subcommand, argJSON string, argProvided bool) capture.Result
}

// Logger is the subset of the server's logger the builder uses to report
// non-fatal conditions (a failed `instructions` call is optional, not an
// error).
type Logger interface {
	Info(msg string)
	Error(msg string)
}

// Metrics is the subset of observe.Metrics the builder records against. A
// nil Metrics is valid: Config.withDefaults substitutes a no-op.
type Metrics interface {
	RecordListingError(ctx context.Context, providerPath string)
}

type nopLogger struct{}

func (nopLogger) Info(string)  {}
func (nopLogger) Error(string) {}

type nopMetrics struct{}

func (nopMetrics) RecordListingError(context.Context, string) {}

// Config tunes the per-invocation timeout the builder enforces on every
// `list` and `instructions` call.
type Config struct {
	ListTimeout time.Duration
	Logger      Logger
	Metrics     Metrics
}

func (c Config) withDefaults() Config {
	if c.ListTimeout <= 0 {
		c.ListTimeout = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = nopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = nopMetrics{}
	}
	return c
}

// Build enumerates toolsDir for provider executables, discovers their tool
// definitions and instructions via run, and returns the resulting Registry.
// A missing tools directory yields an empty Registry and a nil error;
// Build itself only returns an error for conditions that have nothing to
// do with any individual provider: any other failure to read toolsDir is
// returned as a DomainError. Per-provider failures are recorded as
// listing errors on the Registry instead.
func Build(ctx context.Context, toolsDir string, run Runner, cfg Config) (*Registry, error) {
	cfg = cfg.withDefaults()

	reg := &Registry{bindings: map[string]Binding{}}

	providers, err := discoverProviders(toolsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return reg, nil
		}
		return reg, domainerrors.New("registry", "Build", domainerrors.ErrInternal, err).
			WithContext("tools_dir", toolsDir)
	}

	for _, path := range providers {
		listCtx, cancel := context.WithTimeout(ctx, cfg.ListTimeout)
		res := run.Run(listCtx, path, "list", "", false)
		cancel()

		defs, listErr := classifyListing(path, res)
		if listErr != nil {
			reg.listingErrors = append(reg.listingErrors, *listErr)
			cfg.Metrics.RecordListingError(ctx, path)
		} else {
			for _, def := range defs {
				reg.submit(def.name, path, def.raw)
			}
		}

		instrCtx, cancel := context.WithTimeout(ctx, cfg.ListTimeout)
		instrRes := run.Run(instrCtx, path, "instructions", "", false)
		cancel()
		if instrRes.ExitCode == 0 {
			if text := strings.TrimSpace(string(instrRes.Stdout)); text != "" {
				reg.instructions = append(reg.instructions, text)
			}
		} else {
			cfg.Logger.Info(fmt.Sprintf("provider %s: instructions unavailable (exit %d)", path, instrRes.ExitCode))
		}
	}

	return reg, nil
}

// discoverProviders returns the full paths of every regular, executable,
// non-directory file directly inside toolsDir, sorted lexicographically by
// filename for reproducible listing-error messages.
func discoverProviders(toolsDir string) ([]string, error) {
	entries, err := os.ReadDir(toolsDir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.Mode()&0111 == 0 {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	paths := make([]string, 0, len(names))
	for _, n := range names {
		paths = append(paths, filepath.Join(toolsDir, n))
	}
	return paths, nil
}

type slurpedDef struct {
	name string
	raw  map[string]any
}

// classifyListing applies spec.md §4.3's classification: non-zero exit is
// a listing error carrying the combined stream; zero exit slurps stdout as
// a sequence of top-level JSON values, each validated as an object with a
// non-empty string `name`. Any failure at any stage poisons the whole
// provider's listing rather than partially admitting it.
func classifyListing(path string, res capture.Result) ([]slurpedDef, *ListingError) {
	if res.ExitCode != 0 {
		reason := strings.TrimSpace(string(res.Combined))
		return nil, &ListingError{
			ProviderPath: path,
			Reason:       fmt.Sprintf("exit %d: %s", res.ExitCode, reason),
		}
	}

	values, err := slurpJSONValues(res.Stdout)
	if err != nil {
		return nil, &ListingError{ProviderPath: path, Reason: "invalid JSON: " + err.Error()}
	}

	defs := make([]slurpedDef, 0, len(values))
	for _, raw := range values {
		var obj map[string]any
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, &ListingError{ProviderPath: path, Reason: "tool definition is not a JSON object"}
		}
		name, _ := obj["name"].(string)
		if name == "" {
			return nil, &ListingError{ProviderPath: path, Reason: "tool definition missing non-empty name"}
		}
		defs = append(defs, slurpedDef{name: name, raw: obj})
	}
	return defs, nil
}

// slurpJSONValues decodes every top-level JSON value in stdout, in order,
// the way a shell pipeline would slurp a stream of objects that may each
// span multiple lines.
func slurpJSONValues(stdout []byte) ([]json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(stdout))
	var values []json.RawMessage
	for {
		var raw json.RawMessage
		err := dec.Decode(&raw)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		values = append(values, raw)
	}
	return values, nil
}

// submit applies the collision policy: the first provider to claim a name
// installs a ProviderBinding; every subsequent claimant turns the name into
// a DuplicateEntry listing the newest provider first and removes the
// name's definition, so no provider wins a duplicated name.
func (r *Registry) submit(name, providerPath string, def map[string]any) {
	existing, known := r.bindings[name]
	if !known {
		r.names = append(r.names, name)
		r.bindings[name] = Binding{Single: ProviderBinding{
			ToolName:     name,
			ProviderPath: providerPath,
			Definition:   def,
		}}
		r.definitions = append(r.definitions, def)
		return
	}

	if existing.Duplicate {
		existing.Dup.ProviderPaths = append([]string{providerPath}, existing.Dup.ProviderPaths...)
		r.bindings[name] = existing
		return
	}

	dup := DuplicateEntry{
		ToolName:      name,
		ProviderPaths: []string{providerPath, existing.Single.ProviderPath},
	}
	r.bindings[name] = Binding{Duplicate: true, Dup: dup}
	r.definitions = removeDefinition(r.definitions, name)
}

func removeDefinition(defs []map[string]any, name string) []map[string]any {
	out := defs[:0:0]
	for _, d := range defs {
		if n, _ := d["name"].(string); n == name {
			continue
		}
		out = append(out, d)
	}
	return out
}
