package graphql

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrMutationBlocked rejects mutation documents when mutations are
// disabled.
var ErrMutationBlocked = errors.New("mutations are disabled (set UNRAID_ALLOW_MUTATIONS=true to enable)")

const maxVariableDepth = 10

var mutationRe = regexp.MustCompile(`(?i)\bmutation\b`)

// CheckReadOnly rejects documents containing a mutation operation.
// Comments and string literals are stripped first so the keyword inside
// either does not trigger a false positive.
func CheckReadOnly(query string) error {
	if mutationRe.MatchString(stripComments(query)) {
		return ErrMutationBlocked
	}
	return nil
}

// stripComments removes #-comments and blanks out string literals,
// honoring backslash escapes, so keyword scanning only sees executable
// syntax.
func stripComments(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	i, n := 0, len(s)
	for i < n {
		switch {
		case s[i] == '#':
			for i < n && s[i] != '\n' {
				i++
			}
		case strings.HasPrefix(s[i:], `"""`):
			b.WriteString(`""""""`)
			i += 3
			for i < n {
				if s[i] == '\\' {
					i += 2
					continue
				}
				if strings.HasPrefix(s[i:], `"""`) {
					i += 3
					break
				}
				i++
			}
		case s[i] == '"':
			b.WriteString(`""`)
			i++
			for i < n {
				if s[i] == '\\' {
					i += 2
					continue
				}
				if s[i] == '"' {
					i++
					break
				}
				i++
			}
		default:
			b.WriteByte(s[i])
			i++
		}
	}
	return b.String()
}

// ValidateVariables rejects variable payloads nested deeper than the
// Unraid API accepts.
func ValidateVariables(vars map[string]any) error {
	if vars == nil {
		return nil
	}
	if d := depth(vars); d > maxVariableDepth {
		return fmt.Errorf("variables nested %d levels deep (max %d)", d, maxVariableDepth)
	}
	return nil
}

func depth(v any) int {
	switch t := v.(type) {
	case map[string]any:
		deepest := 0
		for _, e := range t {
			if d := depth(e); d > deepest {
				deepest = d
			}
		}
		return deepest + 1
	case []any:
		deepest := 0
		for _, e := range t {
			if d := depth(e); d > deepest {
				deepest = d
			}
		}
		return deepest + 1
	default:
		return 0
	}
}
