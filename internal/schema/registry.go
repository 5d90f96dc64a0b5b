package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Source is one (directory, selector) pair from the loading contract: a
// selector of "" or "all" recursively loads every schema file under dir;
// otherwise it names a comma-separated list of immediate subdirectories.
type Source struct {
	Dir      string
	Selector string
}

// Registry holds the full set of schemas discovered at startup. Once Load
// returns, a Registry is immutable and safe for unsynchronized concurrent
// reads — there is no lock on the read path.
type Registry struct {
	byName map[string]Schema
	order  []string
}

// Load scans the configured sources (plus the root directory, if
// includeRoot and rootDir are set) and builds an immutable Registry.
// Individual unreadable or malformed files are logged and skipped; Load
// only fails if a configured root directory exists but cannot be listed.
func Load(logger *zap.Logger, sources []Source, includeRoot bool, rootDir string) (*Registry, error) {
	r := &Registry{byName: make(map[string]Schema)}

	// Root loads first so project-specific sources can replace its entries,
	// matching the spec's "later replaces earlier" conflict policy.
	if includeRoot && rootDir != "" {
		if _, err := os.ReadDir(rootDir); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("load root schema directory %s: %w", rootDir, err)
			}
			logger.Warn("root schema directory does not exist, skipping", zap.String("dir", rootDir))
		} else if err := r.loadDir(logger, rootDir, "all"); err != nil {
			return nil, fmt.Errorf("load root schema directory %s: %w", rootDir, err)
		}
	}

	for _, src := range sources {
		if err := r.loadDir(logger, src.Dir, src.Selector); err != nil {
			logger.Warn("schema source directory unreadable, skipping",
				zap.String("dir", src.Dir), zap.Error(err))
		}
	}

	return r, nil
}

func (r *Registry) loadDir(logger *zap.Logger, dir, selector string) error {
	roots, err := resolveRoots(dir, selector)
	if err != nil {
		return err
	}
	for _, root := range roots {
		filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				logger.Warn("schema file unreadable, skipping", zap.String("path", path), zap.Error(err))
				return nil
			}
			if d.IsDir() {
				return nil
			}
			ext := strings.ToLower(filepath.Ext(path))
			if ext != ".yaml" && ext != ".yml" {
				return nil
			}
			r.loadFile(logger, path)
			return nil
		})
	}
	return nil
}

// resolveRoots turns a (dir, selector) pair into the set of directories to
// walk: "" or "all" means dir itself (recursively); otherwise selector is a
// comma-separated list of dir's immediate subdirectories.
func resolveRoots(dir, selector string) ([]string, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, err
	}
	sel := strings.TrimSpace(selector)
	if sel == "" || sel == "all" {
		return []string{dir}, nil
	}
	var roots []string
	for _, name := range strings.Split(sel, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		roots = append(roots, filepath.Join(dir, name))
	}
	return roots, nil
}

// loadFile decodes every "---"-separated YAML document in path and
// registers each schema-shaped one. Failures are logged and the file is
// skipped; loading continues.
func (r *Registry) loadFile(logger *zap.Logger, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("failed to read schema file, skipping", zap.String("path", path), zap.Error(err))
		return
	}

	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	for {
		var s Schema
		if err := dec.Decode(&s); err != nil {
			if err.Error() != "EOF" {
				logger.Warn("failed to parse schema document, skipping",
					zap.String("path", path), zap.Error(err))
			}
			return
		}
		if !s.shaped() {
			continue
		}
		r.register(logger, s)
	}
}

func (r *Registry) register(logger *zap.Logger, s Schema) {
	if _, exists := r.byName[s.Name]; exists {
		logger.Warn("schema name registered more than once, replacing earlier definition",
			zap.String("name", s.Name))
	} else {
		r.order = append(r.order, s.Name)
	}
	r.byName[s.Name] = s
}

// All returns every currently registered schema, keyed by name.
func (r *Registry) All() map[string]Schema {
	out := make(map[string]Schema, len(r.byName))
	for k, v := range r.byName {
		out[k] = v
	}
	return out
}

// Subset returns only the named schemas that are registered; names with no
// matching schema are silently omitted — callers that care should check
// Names() themselves and log the gap.
func (r *Registry) Subset(names []string) map[string]Schema {
	out := make(map[string]Schema)
	for _, n := range names {
		if s, ok := r.byName[n]; ok {
			out[n] = s
		}
	}
	return out
}

// Names returns every registered schema name, sorted for stable logging and
// introspection output.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	sort.Strings(out)
	return out
}
