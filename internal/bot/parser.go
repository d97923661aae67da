package bot

import (
	"strconv"
	"strings"
)

// parseID accepts a raw snowflake or a mention such as <@123>, <@!123>,
// <#123> or <@&123>.
func parseID(raw string, prefixes ...string) (string, bool) {
	value := strings.TrimSpace(raw)
	if strings.HasPrefix(value, "<") && strings.HasSuffix(value, ">") {
		inner := value[1 : len(value)-1]
		matched := false
		for _, prefix := range prefixes {
			if strings.HasPrefix(inner, prefix) {
				inner = inner[len(prefix):]
				matched = true
				break
			}
		}
		if !matched {
			return "", false
		}
		value = inner
	}
	if value == "" {
		return "", false
	}
	if _, err := strconv.ParseUint(value, 10, 64); err != nil {
		return "", false
	}
	return value, true
}

func parseUserID(raw string) (string, bool) {
	return parseID(raw, "@!", "@")
}

func parseChannelID(raw string) (string, bool) {
	return parseID(raw, "#")
}

func parseRoleID(raw string) (string, bool) {
	return parseID(raw, "@&")
}

func parseToggle(raw string) (bool, bool) {
	switch strings.ToLower(raw) {
	case "on", "true", "yes", "enable", "enabled":
		return true, true
	case "off", "false", "no", "disable", "disabled":
		return false, true
	default:
		return false, false
	}
}

// restAfter returns the text following the first n whitespace-separated
// fields of s, preserving the original spacing of the remainder.
func restAfter(s string, n int) string {
	rest := strings.TrimSpace(s)
	for i := 0; i < n && rest != ""; i++ {
		idx := strings.IndexFunc(rest, isSpace)
		if idx < 0 {
			return ""
		}
		rest = strings.TrimSpace(rest[idx:])
	}
	return rest
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
