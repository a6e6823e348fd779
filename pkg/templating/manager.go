package templating

import (
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"sort"
	"sync"
)

// TemplateManager is the central controller for the templating engine.
// It manages the template set, configuration, extensions and function map,
// and is responsible for loading, parsing, and executing templates.
// All methods are concurrent-safe.
type TemplateManager struct {
	logger         *slog.Logger
	config         *TemplateConfig
	extensions     []Extension
	templates      *template.Template
	cleanTemplates *template.Template
	pageNames      []string
	funcMap        template.FuncMap
	templateDir    string
	mu             sync.RWMutex
}

// NewTemplateManager creates, initializes, and returns a new TemplateManager
// reading from templateDir. Extensions are registered before the initial
// Refresh so their functions are available to every template. A nil config
// uses DefaultConfig.
func NewTemplateManager(logger *slog.Logger, config *TemplateConfig, templateDir string, exts ...Extension) (*TemplateManager, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if config == nil {
		config = DefaultConfig()
	}

	tm := &TemplateManager{
		logger:      logger,
		config:      config,
		templateDir: templateDir,
	}
	for _, ext := range exts {
		tm.addExtension(ext)
	}
	tm.funcMap = tm.makeFuncMap(nil)

	if err := tm.Refresh(); err != nil {
		return nil, err
	}

	logger.Info("Template manager initialized", "dir", templateDir, "extensions", len(tm.extensions))
	return tm, nil
}

// makeFuncMap builds the full function map for r. The base helpers come
// first so an extension may deliberately replace one of them.
func (tm *TemplateManager) makeFuncMap(r *http.Request) template.FuncMap {
	funcs := template.FuncMap{
		// Data construction (from funcs_logic.go)
		"list":    list,
		"dict":    dict,
		"default": defaultValue,

		// Arithmetic (from funcs_simple.go)
		"add": add,
		"sub": sub,
		"inc": inc,
		"dec": dec,
		"min": minInt,
		"max": maxInt,
	}
	for _, ext := range tm.extensions {
		for name, fn := range ext.Funcs(r) {
			funcs[name] = fn
		}
	}
	return funcs
}

// addExtension must be called with tm.mu held or before tm is shared.
func (tm *TemplateManager) addExtension(ext Extension) {
	for _, existing := range tm.extensions {
		if existing.Name() == ext.Name() {
			tm.logger.Warn("Extension registered twice, keeping both", "extension", ext.Name())
		}
	}
	if c, ok := ext.(Configurable); ok {
		c.SetConfig(tm.config)
	}
	tm.extensions = append(tm.extensions, ext)
}

// LoadExtension registers an additional extension and reparses all templates
// so that its functions become callable.
func (tm *TemplateManager) LoadExtension(ext Extension) error {
	tm.mu.Lock()
	tm.addExtension(ext)
	tm.funcMap = tm.makeFuncMap(nil)
	tm.mu.Unlock()

	tm.logger.Info("Loaded template extension", "extension", ext.Name())
	return tm.Refresh()
}

// SetConfig applies a new configuration to the TemplateManager and to every
// extension that reads it. Pattern changes take effect on the next Refresh.
func (tm *TemplateManager) SetConfig(config *TemplateConfig) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.config = config
	for _, ext := range tm.extensions {
		if c, ok := ext.(Configurable); ok {
			c.SetConfig(config)
		}
	}
}

// Refresh reloads all templates from the filesystem. This function allows for
// updates to templates without restarting the application. A directory with
// no templates is not an error.
func (tm *TemplateManager) Refresh() error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	root := template.New("").Funcs(tm.funcMap)

	pagePattern := filepath.Join(tm.templateDir, tm.config.PagePattern)
	tm.logger.Info("Loading template files...", "pattern", pagePattern)
	pages, err := parseGlobIfAny(root, pagePattern)
	if err != nil {
		tm.logger.Error("failed to parse template files", "error", err)
		return err
	}

	names := make([]string, 0, len(pages))
	for _, p := range pages {
		names = append(names, filepath.Base(p))
	}
	sort.Strings(names)
	if len(names) == 0 {
		tm.logger.Warn("No template files found matching pattern", "pattern", pagePattern)
	}

	partialPattern := filepath.Join(tm.templateDir, tm.config.PartialPattern)
	tm.logger.Info("Loading partial files...", "pattern", partialPattern)
	if _, err = parseGlobIfAny(root, partialPattern); err != nil {
		tm.logger.Error("failed to parse partial files", "error", err)
		return err
	}

	// Clone before anything executes; html/template refuses to clone afterwards.
	clean, err := root.Clone()
	if err != nil {
		tm.logger.Error("failed to create a clean clone of templates", "error", err)
		return err
	}

	tm.templates = root
	tm.cleanTemplates = clean
	tm.pageNames = names
	tm.logger.Info("Loaded template and partial files", "pages", len(names), "count", len(root.Templates()))
	return nil
}

// parseGlobIfAny parses every file matching pattern into t and returns the
// matched paths. Unlike ParseGlob it treats "no matches" as success.
func parseGlobIfAny(t *template.Template, pattern string) ([]string, error) {
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid template pattern %q: %w", pattern, err)
	}
	if len(files) == 0 {
		return nil, nil
	}
	if _, err = t.ParseFiles(files...); err != nil {
		return nil, err
	}
	return files, nil
}

// Execute renders a specific template by name without request context,
// writing the output to w. Request-aware helpers behave as if no request
// were being served.
func (tm *TemplateManager) Execute(w io.Writer, name string, data any) error {
	if name == "" {
		return nil
	}
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.templates.ExecuteTemplate(w, name, data)
}

// ExecuteRequest renders the named template with every extension bound to r.
// Each call works on its own clone of the parsed set, so concurrent requests
// never observe each other's helpers.
func (tm *TemplateManager) ExecuteRequest(w io.Writer, r *http.Request, name string, data any) error {
	if name == "" {
		return nil
	}
	set, err := tm.requestSet(r)
	if err != nil {
		return err
	}
	return set.ExecuteTemplate(w, name, data)
}

// ExecuteTemplateString parses and executes a raw template string using the
// manager's function map, bound to r when it is non-nil. Pages and partials
// are available to the string. This is ideal for testing or previewing
// templates without saving them to disk.
func (tm *TemplateManager) ExecuteTemplateString(w io.Writer, r *http.Request, content string, data any) error {
	set, err := tm.requestSet(r)
	if err != nil {
		return err
	}

	t, err := set.Parse(content)
	if err != nil {
		return fmt.Errorf("failed to parse string template: %w", err)
	}
	return t.Execute(w, data)
}

// requestSet clones the clean, unexecuted template set and rebinds the
// extension functions to r.
func (tm *TemplateManager) requestSet(r *http.Request) (*template.Template, error) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	set, err := tm.cleanTemplates.Clone()
	if err != nil {
		return nil, fmt.Errorf("failed to clone clean templates: %w", err)
	}
	return set.Funcs(tm.makeFuncMap(r)), nil
}

// HasTemplate reports whether a page or partial with the given name is loaded.
func (tm *TemplateManager) HasTemplate(name string) bool {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.templates.Lookup(name) != nil
}

// GetConfig returns a copy of the current configuration.
// This mainly exists for concurrency-safety reasons.
func (tm *TemplateManager) GetConfig() TemplateConfig {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return *tm.config
}

// GetPageNames returns the sorted names of the loaded full page templates.
func (tm *TemplateManager) GetPageNames() []string {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	names := make([]string, len(tm.pageNames))
	copy(names, tm.pageNames)
	return names
}

// GetTemplateNames returns the sorted names of every loaded template,
// including partials and blocks defined inside files.
func (tm *TemplateManager) GetTemplateNames() []string {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	var names []string
	for _, t := range tm.templates.Templates() {
		// The root template has no name and is never executed directly.
		if t.Name() != "" {
			names = append(names, t.Name())
		}
	}
	sort.Strings(names)
	return names
}

// GetTemplateDir returns the template dir that the TemplateManager uses.
func (tm *TemplateManager) GetTemplateDir() string {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.templateDir
}
