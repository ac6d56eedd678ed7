package config

import (
	"fmt"
	"net/url"
	"unicode"
)

const (
	// MaxModelNameLength is the maximum allowed length for model names
	MaxModelNameLength = 100

	// MaxTemplateSize is the maximum allowed size for template content
	MaxTemplateSize = 50 * 1024 // 50KB

	// MaxPoolEntryLength is the maximum allowed length for a single pool entry
	MaxPoolEntryLength = 500
)

// ValidateInputs performs additional sanity validation on user-controllable
// fields beyond structural checks: URL shape, sizes, control characters.
func (c *Config) ValidateInputs() error {
	if err := validateBaseURL(c.Endpoint.BaseURL); err != nil {
		return err
	}
	if err := validateModelName(c.Endpoint.Model); err != nil {
		return err
	}
	if err := c.validateTemplateSizes(); err != nil {
		return err
	}
	if err := c.validatePoolEntries(); err != nil {
		return err
	}
	return nil
}

// validateBaseURL checks that the endpoint URL is properly formatted
func validateBaseURL(baseURL string) error {
	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("endpoint.base_url is invalid: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("endpoint.base_url must use http or https scheme (got %s)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("endpoint.base_url must have a host")
	}
	return nil
}

func validateModelName(modelName string) error {
	if len(modelName) > MaxModelNameLength {
		return fmt.Errorf("endpoint.model exceeds maximum length of %d (got %d)",
			MaxModelNameLength, len(modelName))
	}
	if containsControlChars(modelName) {
		return fmt.Errorf("endpoint.model contains invalid control characters")
	}
	return nil
}

// validateTemplateSizes checks that templates are within reasonable size limits
func (c *Config) validateTemplateSizes() error {
	for name, tmpl := range c.Templates {
		if len(tmpl) > MaxTemplateSize {
			return fmt.Errorf("template %q exceeds maximum size of %d bytes (got %d)",
				name, MaxTemplateSize, len(tmpl))
		}
	}
	return nil
}

// validatePoolEntries checks pool strings for size and control characters,
// since all of them end up interpolated into prompts.
func (c *Config) validatePoolEntries() error {
	lists := map[string][]string{
		"pools.subjects":         c.Pools.Subjects,
		"pools.domains":          c.Pools.Domains,
		"pools.triggers":         c.Pools.Triggers,
		"pools.emotional_states": c.Pools.EmotionalStates,
		"pools.language_styles":  c.Pools.LanguageStyles,
		"pools.perspectives":     c.Pools.Perspectives,
		"pools.unique_angles":    c.Pools.UniqueAngles,
	}
	for field, pool := range lists {
		for _, entry := range pool {
			if err := checkPoolEntry(field, entry); err != nil {
				return err
			}
		}
	}
	for name, desc := range c.Pools.Categories {
		if err := checkPoolEntry("pools.categories", name); err != nil {
			return err
		}
		if err := checkPoolEntry("pools.categories", desc); err != nil {
			return err
		}
	}
	for name, desc := range c.Pools.Complexity {
		if err := checkPoolEntry("pools.complexity", name); err != nil {
			return err
		}
		if err := checkPoolEntry("pools.complexity", desc); err != nil {
			return err
		}
	}
	return nil
}

func checkPoolEntry(field, entry string) error {
	if len(entry) > MaxPoolEntryLength {
		return fmt.Errorf("%s entry exceeds maximum length of %d (got %d)",
			field, MaxPoolEntryLength, len(entry))
	}
	if containsControlChars(entry) {
		return fmt.Errorf("%s entry contains invalid control characters", field)
	}
	return nil
}

// containsControlChars checks if a string contains control characters
// (excluding newlines, tabs, and carriage returns which are acceptable)
func containsControlChars(s string) bool {
	for _, r := range s {
		if unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r' {
			return true
		}
	}
	return false
}
