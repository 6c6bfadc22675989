package formula

import (
	"strconv"

	"github.com/shopspring/decimal"
)

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenNumber
	tokenIdent
	tokenOperator
	tokenCompare
	tokenLParen
	tokenRParen
	tokenComma
)

type token struct {
	kind  tokenKind
	text  string
	pos   int
	value decimal.Decimal
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) }

// tokenize splits src into tokens, enforcing the token budget
func tokenize(src string, maxTokens int) ([]token, error) {
	tokens := make([]token, 0, len(src)/2+1)
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
			continue
		case isDigit(c) || (c == '.' && i+1 < len(src) && isDigit(src[i+1])):
			start := i
			for i < len(src) && isDigit(src[i]) {
				i++
			}
			if i < len(src) && src[i] == '.' {
				i++
				for i < len(src) && isDigit(src[i]) {
					i++
				}
			}
			if i < len(src) && (src[i] == 'e' || src[i] == 'E') {
				j := i + 1
				if j < len(src) && (src[j] == '+' || src[j] == '-') {
					j++
				}
				if j < len(src) && isDigit(src[j]) {
					digits := j
					for j < len(src) && isDigit(src[j]) {
						j++
					}
					if exp, err := strconv.Atoi(src[digits:j]); err != nil || exp > MaxLiteralExponent {
						return nil, syntaxError(start, "exponent of %q exceeds %d", src[start:j], MaxLiteralExponent)
					}
					i = j
				}
			}
			text := src[start:i]
			value, err := decimal.NewFromString(text)
			if err != nil {
				return nil, syntaxError(start, "malformed number %q", text)
			}
			if value.Abs().GreaterThan(maxMagnitude) {
				return nil, syntaxError(start, "number %q exceeds the allowed magnitude 1e%d", text, MaxMagnitudeExponent)
			}
			tokens = append(tokens, token{kind: tokenNumber, text: text, pos: start, value: value})
		case isIdentStart(c):
			start := i
			for i < len(src) && isIdentPart(src[i]) {
				i++
			}
			tokens = append(tokens, token{kind: tokenIdent, text: src[start:i], pos: start})
		case c == '+' || c == '-' || c == '*' || c == '/' || c == '^':
			tokens = append(tokens, token{kind: tokenOperator, text: string(c), pos: i})
			i++
		case c == '<' || c == '>' || c == '=' || c == '!':
			start := i
			if i+1 < len(src) && src[i+1] == '=' {
				i += 2
			} else {
				i++
			}
			text := src[start:i]
			if text == "=" || text == "!" {
				return nil, syntaxError(start, "unexpected character %q", text)
			}
			tokens = append(tokens, token{kind: tokenCompare, text: text, pos: start})
		case c == '(':
			tokens = append(tokens, token{kind: tokenLParen, text: "(", pos: i})
			i++
		case c == ')':
			tokens = append(tokens, token{kind: tokenRParen, text: ")", pos: i})
			i++
		case c == ',':
			tokens = append(tokens, token{kind: tokenComma, text: ",", pos: i})
			i++
		default:
			return nil, syntaxError(i, "unexpected character %q", string(c))
		}
		if len(tokens) > maxTokens {
			return nil, syntaxError(-1, "formula exceeds %d tokens", maxTokens)
		}
	}
	tokens = append(tokens, token{kind: tokenEOF, pos: len(src)})
	return tokens, nil
}
