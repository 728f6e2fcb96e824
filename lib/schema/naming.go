package schema

import (
	"strconv"
	"strings"
	"unicode"
)

// CamelToUnderline converts a mixed-case identifier to lower case words
// separated by underscores. Each uppercase letter is replaced by "_" followed
// by its lower case form and leading underscores are removed:
//
//	"UserAccount" -> "user_account"
//	"User"        -> "user"
//
// Digits are not separated: "User2Account" -> "user2_account".
func CamelToUnderline(s string) string {
	s = strings.TrimSpace(s)

	var b strings.Builder
	b.Grow(len(s) + 4)
	for _, r := range s {
		if unicode.IsUpper(r) {
			b.WriteByte('_')
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimLeft(b.String(), "_")
}

// PhysicalTableName returns the name of the physical table holding shard index of the entity.
func PhysicalTableName(entity string, index int) string {
	return CamelToUnderline(entity) + "_" + strconv.Itoa(index)
}

// ShardTypeName returns the synthesized per shard type name (entity name and index, no separator).
func ShardTypeName(entity string, index int) string {
	return entity + strconv.Itoa(index)
}
