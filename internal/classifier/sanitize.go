package classifier

import (
	"strings"

	"campuswatch/internal/constants"
	"campuswatch/internal/models"
	"campuswatch/internal/validation"
)

// sanitize enforces the repository's field invariants on model output: the
// category must be one of the offered categories, and every free-text field
// is trimmed, truncated, and defaulted when empty. Model output is untrusted
// input regardless of which vendor produced it.
func sanitize(parsed models.ParsedActivityData, categories []models.Category) models.ParsedActivityData {
	if !isKnownCategory(parsed.CategoryID, categories) {
		// Models occasionally return the category name instead of its id.
		if id, ok := findCategoryByName(categories, parsed.CategoryID); ok {
			parsed.CategoryID = id
		} else {
			parsed.CategoryID = defaultCategoryID(categories)
		}
	}

	parsed.Subcategory = cleanField(parsed.Subcategory, constants.MaxSubcategoryLength, constants.DefaultSubcategory)
	parsed.Location = cleanField(parsed.Location, constants.MaxLocationLength, constants.DefaultLocation)
	parsed.Notes = cleanField(parsed.Notes, constants.MaxNotesLength, constants.DefaultNotes)

	return parsed
}

func isKnownCategory(id string, categories []models.Category) bool {
	for _, c := range categories {
		if c.ID == id {
			return true
		}
	}
	return false
}

func cleanField(value string, maxLen int, fallback string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	return validation.TruncateString(value, maxLen)
}
