package run

import "strings"

var sanitizer = strings.NewReplacer(
	" ", "_",
	"/", "-",
	`\`, "-",
	"*", "-",
	"?", "-",
	`"`, "",
	"'", "",
	"<", "",
	">", "",
	"|", "-",
	"&", "and",
	"%", "pct",
	"#", "num",
)

// Sanitize derives the filesystem-safe key of a run name. Other whitespace
// (tabs, newlines) maps to underscores as well. The result never contains a
// replaced character, so Sanitize is idempotent.
func Sanitize(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '\t', '\n', '\r', '\v', '\f':
			return '_'
		}
		return r
	}, name)
	return sanitizer.Replace(name)
}
