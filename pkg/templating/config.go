package templating

// TemplateConfig holds all configuration options for the templating engine.
type TemplateConfig struct {
	// ExcerptLength is the default maximum length, in characters, of excerpt output.
	ExcerptLength int `json:"excerpt_length"`

	// ExcerptSuffix is appended to excerpts that had to be shortened.
	ExcerptSuffix string `json:"excerpt_suffix"`

	// PagePattern is the glob, relative to the template directory, matching full pages.
	PagePattern string `json:"page_pattern"`

	// PartialPattern is the glob matching partials. Partials are parsed but never
	// listed as pages.
	PartialPattern string `json:"partial_pattern"`
}

// DefaultConfig returns a TemplateConfig with default values.
func DefaultConfig() *TemplateConfig {
	return &TemplateConfig{
		ExcerptLength:  300,
		ExcerptSuffix:  "...",
		PagePattern:    "*.tmpl.html",
		PartialPattern: "*.part.html",
	}
}
