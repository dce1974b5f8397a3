package classifier

import (
	"regexp"
	"strings"

	"campuswatch/internal/constants"
	"campuswatch/internal/models"
	"campuswatch/internal/validation"
)

// categoryKeywords maps well-known category names to the substrings that
// select them. Matching is first-hit in declaration order against the
// lowercased report text.
var categoryKeywords = []struct {
	categoryName string
	words        []string
}{
	{"maintenance", []string{"broken", "repair", "fix", "leak", "damage", "install", "not working", "faulty"}},
	{"discipline", []string{"misbehav", "fight", "bullying", "disrespect", "cheat", "vandal"}},
	{"sports", []string{"sport", "game", "training", "match", "tournament", "practice"}},
}

var locationPattern = regexp.MustCompile(`(?i)\b(classroom\s*\w*|room\s*\w+|lab\w*|playground|office|corridor|hall\w*|grade\s*\d+\w*|cafeteria|library|gym\w*|toilet\w*|bathroom\w*)\b`)

// classifyByKeywords is the offline fallback used when no AI provider
// produced a usable classification. It always returns a populated result.
func classifyByKeywords(text string, categories []models.Category) models.ParsedActivityData {
	lower := strings.ToLower(text)

	categoryID := ""
	for _, group := range categoryKeywords {
		if categoryID != "" {
			break
		}
		for _, word := range group.words {
			if strings.Contains(lower, word) {
				if id, ok := findCategoryByName(categories, group.categoryName); ok {
					categoryID = id
				}
				break
			}
		}
	}
	if categoryID == "" {
		categoryID = defaultCategoryID(categories)
	}

	location := constants.DefaultLocation
	if m := locationPattern.FindString(text); m != "" {
		location = validation.TruncateString(strings.TrimSpace(m), constants.MaxLocationLength)
	}

	subcategory := fallbackTitle(text)
	if subcategory == "" {
		subcategory = constants.DefaultSubcategory
	}

	notes := validation.TruncateString(strings.TrimSpace(text), constants.MaxNotesLength)
	if notes == "" {
		notes = constants.DefaultNotes
	}

	return models.ParsedActivityData{
		CategoryID:  categoryID,
		Subcategory: subcategory,
		Location:    location,
		Notes:       notes,
		Source:      models.SourceFallback,
	}
}

// politenessWords are greeting and courtesy words trimmed from the edges of
// the report text before it becomes a subcategory title.
var politenessWords = map[string]bool{
	"please": true, "pls": true, "kindly": true,
	"hi": true, "hello": true, "hey": true,
	"thanks": true, "thank": true, "you": true,
	"can": true, "could": true, "would": true,
	"asap": true, "ok": true,
}

// fallbackTitle derives a short human-readable subcategory from the report
// text: politeness words are stripped from both ends, every word is
// title-cased, and the result is capped at the subcategory title length.
func fallbackTitle(text string) string {
	words := strings.Fields(text)
	for len(words) > 0 && isPoliteness(words[0]) {
		words = words[1:]
	}
	for len(words) > 0 && isPoliteness(words[len(words)-1]) {
		words = words[:len(words)-1]
	}
	for i, w := range words {
		words[i] = titleWord(w)
	}
	title := validation.TruncateString(strings.Join(words, " "), constants.MaxSubcategoryTitle)
	return strings.TrimRight(title, " .,!?")
}

func isPoliteness(word string) bool {
	return politenessWords[strings.ToLower(strings.Trim(word, ".,!?"))]
}

func titleWord(word string) string {
	runes := []rune(word)
	if len(runes) == 0 {
		return word
	}
	return strings.ToUpper(string(runes[0])) + string(runes[1:])
}

// findCategoryByName matches case-insensitively on the category name.
func findCategoryByName(categories []models.Category, name string) (string, bool) {
	for _, c := range categories {
		if strings.EqualFold(c.Name, name) {
			return c.ID, true
		}
	}
	return "", false
}

// defaultCategoryID prefers a category named "general", then the first
// system category, then the first category of any kind.
func defaultCategoryID(categories []models.Category) string {
	if id, ok := findCategoryByName(categories, "general"); ok {
		return id
	}
	for _, c := range categories {
		if c.IsSystem {
			return c.ID
		}
	}
	if len(categories) > 0 {
		return categories[0].ID
	}
	return ""
}
