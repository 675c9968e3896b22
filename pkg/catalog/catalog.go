package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/grantor/pkg/grant"
	"github.com/platinummonkey/grantor/pkg/observability"
	"github.com/platinummonkey/grantor/pkg/platform"
)

// ErrTemplateNotFound is returned when a request names an unknown template.
var ErrTemplateNotFound = errors.New("permission template not found")

// DefaultSessionDuration applies when neither the template nor the request
// sets one.
const DefaultSessionDuration = "PT1H"

const (
	resolvedCacheSize = 128
	resolvedCacheTTL  = 5 * time.Minute
)

// Template is one named permission template.
type Template struct {
	Description          string   `yaml:"description"`
	ManagedPolicyARNs    []string `yaml:"managed_policy_arns"`
	InlinePolicyDocument string   `yaml:"inline_policy_document"`
	SessionDuration      string   `yaml:"session_duration"`
}

// catalogFile is the on-disk document shape.
type catalogFile struct {
	Version   string              `yaml:"version"`
	Templates map[string]Template `yaml:"templates"`
}

// Catalog holds the loaded templates and serves resolved lookups through an
// expiring LRU. Reload replaces the template set atomically and purges the
// cache.
type Catalog struct {
	path   string
	logger *observability.Logger

	mu        sync.RWMutex
	templates map[string]Template

	resolved *lru.LRU[string, platform.PermissionSetSpec]

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// Load reads the catalog file at path.
func Load(path string, logger *observability.Logger) (*Catalog, error) {
	c := &Catalog{
		path:     path,
		logger:   logger.WithField("catalog", filepath.Base(path)),
		resolved: lru.NewLRU[string, platform.PermissionSetSpec](resolvedCacheSize, nil, resolvedCacheTTL),
	}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload re-reads the catalog file and swaps in the new template set.
func (c *Catalog) Reload() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("failed to read catalog file: %w", err)
	}

	var doc catalogFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse catalog file: %w", err)
	}
	if len(doc.Templates) == 0 {
		return fmt.Errorf("catalog file %s defines no templates", c.path)
	}

	for name, tmpl := range doc.Templates {
		if tmpl.SessionDuration != "" && !grant.ValidSessionDuration(tmpl.SessionDuration) {
			return fmt.Errorf("template %q has invalid session duration %q", name, tmpl.SessionDuration)
		}
	}

	c.mu.Lock()
	c.templates = doc.Templates
	c.mu.Unlock()
	c.resolved.Purge()

	c.logger.Infof("Loaded %d permission templates", len(doc.Templates))
	return nil
}

// Watch starts a background goroutine that reloads the catalog when the
// file is rewritten. A reload failure keeps the previous template set.
func (c *Catalog) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create catalog watcher: %w", err)
	}
	// Watch the directory: editors and configmap mounts replace the file
	// rather than writing it in place.
	if err := watcher.Add(filepath.Dir(c.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch catalog directory: %w", err)
	}

	c.watcher = watcher
	c.done = make(chan struct{})

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if filepath.Clean(event.Name) != filepath.Clean(c.path) {
					continue
				}
				if err := c.Reload(); err != nil {
					c.logger.WithError(err).Error("Catalog reload failed, keeping previous templates")
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				c.logger.WithError(err).Warn("Catalog watcher error")
			case <-c.done:
				return
			}
		}
	}()

	return nil
}

// Close stops the watcher if one was started.
func (c *Catalog) Close() error {
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
	if c.watcher != nil {
		err := c.watcher.Close()
		c.watcher = nil
		return err
	}
	return nil
}

// Get returns one template by name.
func (c *Catalog) Get(name string) (Template, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tmpl, ok := c.templates[name]
	return tmpl, ok
}

// Names returns the template names in sorted order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.templates))
	for name := range c.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve materializes a template into a permission set spec, merging any
// request-level overrides on top. Override-free resolutions are cached.
func (c *Catalog) Resolve(name string, overrides *grant.CustomPermissionSpec) (platform.PermissionSetSpec, error) {
	if overrides == nil {
		if spec, ok := c.resolved.Get(name); ok {
			return spec, nil
		}
	}

	tmpl, ok := c.Get(name)
	if !ok {
		return platform.PermissionSetSpec{}, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}

	spec := platform.PermissionSetSpec{
		Name:                 name,
		Description:          tmpl.Description,
		ManagedPolicyARNs:    append([]string(nil), tmpl.ManagedPolicyARNs...),
		InlinePolicyDocument: tmpl.InlinePolicyDocument,
		SessionDuration:      tmpl.SessionDuration,
	}

	if overrides != nil {
		if len(overrides.ManagedPolicyARNs) > 0 {
			spec.ManagedPolicyARNs = append([]string(nil), overrides.ManagedPolicyARNs...)
		}
		if overrides.InlinePolicyDocument != "" {
			spec.InlinePolicyDocument = overrides.InlinePolicyDocument
		}
		if overrides.SessionDuration != "" {
			spec.SessionDuration = overrides.SessionDuration
		}
	}

	if spec.SessionDuration == "" {
		spec.SessionDuration = DefaultSessionDuration
	}

	if overrides == nil {
		c.resolved.Add(name, spec)
	}
	return spec, nil
}
