package media

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var shortExtension = regexp.MustCompile(`(?i)^[a-z0-9]{1,5}$`)

// FormatName derives a display name from an id or path: the last segment,
// without query or short extension, with separators turned into spaces.
func FormatName(value string) string {
	if value == "" {
		return ""
	}
	last := value
	if idx := strings.LastIndexAny(value, `/\`); idx >= 0 {
		last = value[idx+1:]
		if last == "" {
			last = value
		}
	}
	if idx := strings.IndexByte(last, '?'); idx >= 0 {
		last = last[:idx]
	}
	if idx := strings.LastIndexByte(last, '.'); idx >= 0 && idx < len(last)-1 {
		if shortExtension.MatchString(last[idx+1:]) {
			last = last[:idx]
		}
	}

	source := []rune(strings.ReplaceAll(last, "_", " "))
	runes := append([]rune(nil), source...)
	for i, r := range source {
		if r != '-' {
			continue
		}
		spacedBefore := i > 0 && unicode.IsSpace(source[i-1])
		spacedAfter := i+1 < len(source) && unicode.IsSpace(source[i+1])
		if !spacedBefore && !spacedAfter {
			runes[i] = ' '
		}
	}
	cleaned := strings.TrimSpace(string(runes))
	if cleaned == "" {
		return ""
	}
	first, size := utf8.DecodeRuneInString(cleaned)
	return string(unicode.ToUpper(first)) + cleaned[size:]
}
