package authdoc

import (
	"encoding/hex"
	"strconv"
	"strings"
)

// kerningSpace is the TJ displacement, in thousandths of an em, past which
// a gap is read as a word break.
const kerningSpace = -200

// contentText pulls the shown strings out of a page content stream. Each
// text-showing operator contributes one piece; pieces are space separated.
func contentText(content []byte) string {
	var (
		pieces  []string
		current strings.Builder
		inArray bool
	)

	for i := 0; i < len(content); {
		c := content[i]
		switch {
		case c == '%':
			for i < len(content) && content[i] != '\n' && content[i] != '\r' {
				i++
			}
		case c == '(':
			s, next := readLiteral(content, i)
			current.WriteString(s)
			i = next
		case c == '<' && i+1 < len(content) && content[i+1] == '<':
			i += 2
		case c == '>' && i+1 < len(content) && content[i+1] == '>':
			i += 2
		case c == '<':
			s, next := readHex(content, i)
			current.WriteString(s)
			i = next
		case c == '[':
			inArray = true
			i++
		case c == ']':
			inArray = false
			i++
		case isSpace(c):
			i++
		default:
			start := i
			for i < len(content) && !isSpace(content[i]) && !isDelimiter(content[i]) {
				i++
			}
			if i == start {
				i++
				continue
			}
			tok := string(content[start:i])
			if inArray {
				if n, err := strconv.ParseFloat(tok, 64); err == nil && n < kerningSpace {
					current.WriteByte(' ')
				}
				continue
			}
			switch tok {
			case "Tj", "TJ", "'", `"`:
				if current.Len() > 0 {
					pieces = append(pieces, current.String())
					current.Reset()
				}
			}
		}
	}
	if current.Len() > 0 {
		pieces = append(pieces, current.String())
	}
	return strings.Join(pieces, " ")
}

// readLiteral decodes a balanced (...) string starting at content[start].
func readLiteral(content []byte, start int) (string, int) {
	var b strings.Builder
	depth := 0
	i := start
	for i < len(content) {
		c := content[i]
		switch c {
		case '\\':
			i++
			if i >= len(content) {
				return b.String(), i
			}
			switch e := content[i]; e {
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			case 'b':
				b.WriteByte('\b')
			case 'f':
				b.WriteByte('\f')
			case '\r', '\n':
				// line continuation
			default:
				if e >= '0' && e <= '7' {
					n := 0
					j := 0
					for ; j < 3 && i < len(content) && content[i] >= '0' && content[i] <= '7'; j++ {
						n = n*8 + int(content[i]-'0')
						i++
					}
					b.WriteByte(byte(n))
					continue
				}
				b.WriteByte(e)
			}
			i++
		case '(':
			if depth > 0 {
				b.WriteByte(c)
			}
			depth++
			i++
		case ')':
			depth--
			i++
			if depth == 0 {
				return b.String(), i
			}
			b.WriteByte(c)
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), i
}

// readHex decodes a <...> string starting at content[start].
func readHex(content []byte, start int) (string, int) {
	i := start + 1
	var digits []byte
	for i < len(content) && content[i] != '>' {
		if !isSpace(content[i]) {
			digits = append(digits, content[i])
		}
		i++
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	decoded, err := hex.DecodeString(string(digits))
	if err != nil {
		return "", i + 1
	}
	return string(decoded), i + 1
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '\f', 0:
		return true
	}
	return false
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}
