// Package pluginregistry is the Plugin Registry: an in-memory index of
// plugin descriptors keyed by id, with phase and severity lookups computed
// on demand, plus dynamic discovery of plugin-shaped values from a
// directory of compiled plugin files.
package pluginregistry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"plugin"
	"strings"
	"sync"

	"github.com/loki-oidc/loki-splice/pkg/logger"
	"github.com/loki-oidc/loki-splice/pkg/plugins"
)

// ErrUnknownPlugin is returned by Lookup when no plugin with the given id
// is registered.
var ErrUnknownPlugin = errors.New("unknown plugin id")

// pluginSourceSuffix is the file suffix the dynamic loader scans for.
// Declaration files (those ending in the Go plugin package's header
// suffix) are excluded, matching spec.md §4.C's "excluding declaration
// files" rule.
const (
	pluginSourceSuffix      = ".so"
	pluginDeclarationSuffix = ".decl.so"
	exportedSymbolName      = "Plugin"
)

// Registry is the Plugin Registry. Zero value is not usable; construct
// with New.
type Registry struct {
	mu       sync.RWMutex
	byID     map[string]plugins.Descriptor
	disabled map[string]bool
}

// New constructs a Registry. disabledIDs, if non-nil, is a set of plugin
// ids that Register silently drops.
func New(disabledIDs []string) *Registry {
	disabled := make(map[string]bool, len(disabledIDs))
	for _, id := range disabledIDs {
		disabled[id] = true
	}
	return &Registry{
		byID:     make(map[string]plugins.Descriptor),
		disabled: disabled,
	}
}

// Register adds d to the registry, unless its id is in the disabled set
// (in which case the call is a silent no-op) or d fails structural
// validation.
func (r *Registry) Register(d plugins.Descriptor) error {
	if err := validate(d); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disabled[d.ID] {
		logger.Debugw("pluginregistry: dropped disabled plugin", "id", d.ID)
		return nil
	}
	r.byID[d.ID] = d
	return nil
}

// Unregister removes a plugin by id. Unregistering an absent id is a no-op.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
}

// Lookup returns the descriptor registered under id.
func (r *Registry) Lookup(id string) (plugins.Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byID[id]
	if !ok {
		return plugins.Descriptor{}, fmt.Errorf("%w: %s", ErrUnknownPlugin, id)
	}
	return d, nil
}

// ListAll returns every registered descriptor, in no particular order.
func (r *Registry) ListAll() []plugins.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]plugins.Descriptor, 0, len(r.byID))
	for _, d := range r.byID {
		out = append(out, d)
	}
	return out
}

// ListByPhase returns every registered descriptor whose Phase matches.
func (r *Registry) ListByPhase(phase plugins.Phase) []plugins.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []plugins.Descriptor
	for _, d := range r.byID {
		if d.Phase == phase {
			out = append(out, d)
		}
	}
	return out
}

// ListBySeverity returns every registered descriptor whose Severity matches.
func (r *Registry) ListBySeverity(sev plugins.Severity) []plugins.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []plugins.Descriptor
	for _, d := range r.byID {
		if d.Severity == sev {
			out = append(out, d)
		}
	}
	return out
}

// validate applies the structural requirements spec.md §4.C lists for a
// dynamically-loaded plugin-shaped value: id/name/description/severity/
// phase/apply must be present, and spec.description must be non-empty.
func validate(d plugins.Descriptor) error {
	switch {
	case d.ID == "":
		return errors.New("pluginregistry: descriptor missing id")
	case d.Name == "":
		return fmt.Errorf("pluginregistry: descriptor %q missing name", d.ID)
	case d.Description == "":
		return fmt.Errorf("pluginregistry: descriptor %q missing description", d.ID)
	case d.Severity == "":
		return fmt.Errorf("pluginregistry: descriptor %q missing severity", d.ID)
	case d.Phase == "":
		return fmt.Errorf("pluginregistry: descriptor %q missing phase", d.ID)
	case d.Apply == nil:
		return fmt.Errorf("pluginregistry: descriptor %q missing apply", d.ID)
	case d.Spec.Description == "":
		return fmt.Errorf("pluginregistry: descriptor %q missing spec description", d.ID)
	}
	return nil
}

// LoadDir enumerates dir's immediate entries whose names end in the
// recognised plugin source suffix (excluding declaration files), loads
// each as a Go plugin, and registers its exported Plugin symbol. A single
// failing file is reported in the returned slice but does not abort the
// scan or propagate as an error.
func (r *Registry) LoadDir(dir string) []error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return []error{fmt.Errorf("pluginregistry: read dir %s: %w", dir, err)}
	}

	var errs []error
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, pluginSourceSuffix) || strings.HasSuffix(name, pluginDeclarationSuffix) {
			continue
		}
		if err := r.loadFile(filepath.Join(dir, name)); err != nil {
			logger.Errorw("pluginregistry: failed to load plugin file", "file", name, "error", err)
			errs = append(errs, err)
		}
	}
	return errs
}

func (r *Registry) loadFile(path string) error {
	p, err := plugin.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	sym, err := p.Lookup(exportedSymbolName)
	if err != nil {
		return fmt.Errorf("lookup %s in %s: %w", exportedSymbolName, path, err)
	}
	d, ok := sym.(*plugins.Descriptor)
	if !ok {
		return fmt.Errorf("%s: exported %s is %T, not *plugins.Descriptor", path, exportedSymbolName, sym)
	}
	return r.Register(*d)
}
