package ticket

import "regexp"

// referencePattern matches project-key style references such as ABC-123.
var referencePattern = regexp.MustCompile(`[A-Z]+-[0-9]+`)

// keyPattern matches a string that is a single reference and nothing else.
var keyPattern = regexp.MustCompile(`^[A-Z]+-[0-9]+$`)

// Extract returns the leftmost ticket reference in text.
// ok is false when text contains none.
func Extract(text string) (ref string, ok bool) {
	loc := referencePattern.FindStringIndex(text)
	if loc == nil {
		return "", false
	}
	return text[loc[0]:loc[1]], true
}
