package types

import (
	"regexp"
)

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// StripTags removes every <...> span from s: anything between a '<' and the
// next '>' is dropped, so StripTags(StripTags(s)) == StripTags(s).
func StripTags(s string) string {
	return tagPattern.ReplaceAllString(s, "")
}
