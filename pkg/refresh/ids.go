package refresh

import "regexp"

var (
	idPattern    = regexp.MustCompile(`\d+`)
	validIDMatch = regexp.MustCompile(`^\d+$`)
)

// ParseIDs extracts every run of digits from text, in order of first
// appearance and without duplicates. It accepts pasted lists, CSV exports
// and store URLs alike.
func ParseIDs(text string) []string {
	matches := idPattern.FindAllString(text, -1)
	seen := make(map[string]struct{}, len(matches))
	ids := make([]string, 0, len(matches))
	for _, id := range matches {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// ValidID reports whether id has the shape of an app id.
func ValidID(id string) bool {
	return validIDMatch.MatchString(id)
}
