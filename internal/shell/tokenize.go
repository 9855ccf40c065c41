package shell

import "strings"

// Tokenize splits a command line on whitespace. A single in-quote flag
// flips on every ' or " so quoted spans do not split; the quote characters
// are dropped. A quoted empty string ("") yields an empty token.
func Tokenize(line string) []string {
	var (
		tokens  []string
		cur     strings.Builder
		inQuote bool
		pending bool
	)
	for _, r := range line {
		switch {
		case r == '"' || r == '\'':
			inQuote = !inQuote
			pending = true
		case !inQuote && (r == ' ' || r == '\t' || r == '\n' || r == '\r'):
			if pending {
				tokens = append(tokens, cur.String())
				cur.Reset()
				pending = false
			}
		default:
			cur.WriteRune(r)
			pending = true
		}
	}
	if pending {
		tokens = append(tokens, cur.String())
	}
	return tokens
}
