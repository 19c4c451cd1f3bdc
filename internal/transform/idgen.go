package transform

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// SlugifyInstitution converts institution name to a URL-safe slug.
// Directory names are keyed through it, so "American Express", "american_express"
// and "american-express" all map to "american-express".
func SlugifyInstitution(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("institution name cannot be empty")
	}

	// Normalize unicode (e.g., accented characters)
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	normalized, _, err := transform.String(t, name)
	if err != nil {
		return "", fmt.Errorf("failed to normalize institution name %q: %w", name, err)
	}

	// Check that normalization didn't empty the string
	if normalized == "" {
		return "", fmt.Errorf("institution name %q contains only non-displayable unicode characters", name)
	}

	// Convert to lowercase
	slug := strings.ToLower(normalized)

	// Replace spaces and special characters with hyphens
	slug = nonSlugChars.ReplaceAllString(slug, "-")

	// Trim leading/trailing hyphens
	slug = strings.Trim(slug, "-")

	if slug == "" {
		return "", fmt.Errorf("institution name %q contains no alphanumeric characters", name)
	}

	return slug, nil
}
