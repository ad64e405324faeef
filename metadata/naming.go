package metadata

import (
	"strings"
	"unicode"

	"github.com/go-openapi/inflect"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	upper = cases.Upper(language.Und)
	lower = cases.Lower(language.Und)
)

// RelationshipTypeName derives a relationship type from a member or class
// name: FriendsOf becomes FRIENDS_OF.
func RelationshipTypeName(name string) string {
	return upper.String(inflect.Underscore(name))
}

// PropertyName derives a property name from a member name by lowering its
// leading capitals: Name becomes name, ID becomes id, URLPath becomes urlPath.
func PropertyName(name string) string {
	runes := []rune(name)
	n := 0
	for n < len(runes) && unicode.IsUpper(runes[n]) {
		n++
	}
	switch {
	case n == 0:
		return name
	case n == 1 || n == len(runes):
		return lower.String(string(runes[:n])) + string(runes[n:])
	default:
		// Keep the last capital of an acronym when a word follows it.
		return lower.String(string(runes[:n-1])) + string(runes[n-1:])
	}
}

// memberKey strips accessor prefixes from a method name.
func memberKey(method string) (key string, kind MethodKind, ok bool) {
	switch {
	case len(method) > 3 && strings.HasPrefix(method, "Set") && unicode.IsUpper(rune(method[3])):
		return method[3:], Setter, true
	case len(method) > 3 && strings.HasPrefix(method, "Get") && unicode.IsUpper(rune(method[3])):
		return method[3:], Getter, true
	}
	return method, Getter, false
}
