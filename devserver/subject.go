package devserver

import "strings"

const (
	wildcardToken = "*"
	wildcardTail  = ">"
)

// SubjectMatches reports whether subject is covered by pattern. `*` matches
// exactly one token, a trailing `>` matches one or more tokens.
func SubjectMatches(pattern, subject string) bool {
	if pattern == subject {
		return true
	}

	pTokens := strings.Split(pattern, ".")
	sTokens := strings.Split(subject, ".")

	for i, p := range pTokens {
		if p == wildcardTail && i == len(pTokens)-1 {
			return len(sTokens) > i
		}

		if i >= len(sTokens) {
			return false
		}

		if p != wildcardToken && p != sTokens[i] {
			return false
		}
	}

	return len(pTokens) == len(sTokens)
}

// ValidSubject rejects empty tokens and wildcards used outside a whole token.
func ValidSubject(subject string, allowWildcards bool) bool {
	if subject == "" {
		return false
	}

	tokens := strings.Split(subject, ".")
	for i, token := range tokens {
		switch {
		case token == "":
			return false

		case token == wildcardToken || token == wildcardTail:
			if !allowWildcards || (token == wildcardTail && i != len(tokens)-1) {
				return false
			}

		case strings.ContainsAny(token, "*> \t"):
			return false
		}
	}

	return true
}
