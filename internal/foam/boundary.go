package foam

import (
	"fmt"
	"strings"
	"unicode"
)

// BoundaryPatchNames extracts the patch names from a polyMesh boundary file
func BoundaryPatchNames(data []byte) ([]string, error) {
	tokens := tokenize(stripComments(string(data)))

	// skip the FoamFile header block
	i := 0
	if len(tokens) > 1 && tokens[0] == "FoamFile" && tokens[1] == "{" {
		depth := 0
		for i = 1; i < len(tokens); i++ {
			if tokens[i] == "{" {
				depth++
			} else if tokens[i] == "}" {
				depth--
				if depth == 0 {
					i++
					break
				}
			}
		}
	}

	for ; i < len(tokens) && tokens[i] != "("; i++ {
	}
	if i == len(tokens) {
		return nil, fmt.Errorf("boundary list not found")
	}

	var names []string
	depth := 0
	for i++; i < len(tokens); i++ {
		switch tokens[i] {
		case "{":
			depth++
		case "}":
			depth--
		case ")":
			if depth == 0 {
				return names, nil
			}
		default:
			if depth == 0 && i+1 < len(tokens) && tokens[i+1] == "{" {
				names = append(names, tokens[i])
			}
		}
	}
	return nil, fmt.Errorf("unterminated boundary list")
}

func stripComments(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '/' && i+1 < len(s) {
			switch s[i+1] {
			case '/':
				for i < len(s) && s[i] != '\n' {
					i++
				}
				sb.WriteByte('\n')
				continue
			case '*':
				end := strings.Index(s[i+2:], "*/")
				if end < 0 {
					return sb.String()
				}
				i += end + 3
				sb.WriteByte(' ')
				continue
			}
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}

func tokenize(s string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range s {
		switch {
		case unicode.IsSpace(r) || r == ';':
			flush()
		case r == '{' || r == '}' || r == '(' || r == ')':
			flush()
			tokens = append(tokens, string(r))
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return tokens
}
