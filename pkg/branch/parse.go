// Package branch compiles REDCap branching-logic expressions. One parsed
// tree serves two targets: a render-time visibility verdict evaluated
// against a frozen record snapshot, and a generated JavaScript toggle that
// re-evaluates live as the user edits the form.
package branch

import (
	"errors"
	"fmt"
	"strings"
)

// Parse compiles a raw branching-logic expression into an expression tree.
// A blank expression yields a nil tree (the field is unconditionally
// visible). Anything that does not fit the grammar is an error: the
// expression came from remote metadata, and masking a defect there would
// produce a form that looks fine but branches incorrectly.
func Parse(raw string) (Expr, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}

	tokens, err := tokenize(trimmed)
	if err != nil {
		return nil, fmt.Errorf("branch: %w", err)
	}
	if len(tokens) == 0 {
		return nil, nil
	}

	stream := &tokenStream{tokens: tokens}
	expr, err := parseOr(stream)
	if err != nil {
		return nil, fmt.Errorf("branch: %w", err)
	}
	if stream.pos < len(stream.tokens) {
		return nil, fmt.Errorf("branch: unexpected token %q", stream.tokens[stream.pos].raw)
	}
	return expr, nil
}

type tokenKind int

const (
	tokenRef tokenKind = iota
	tokenLiteral
	tokenEq
	tokenNe
	tokenLt
	tokenGt
	tokenLe
	tokenGe
	tokenAnd
	tokenOr
	tokenLParen
	tokenRParen
)

type token struct {
	kind   tokenKind
	raw    string
	ref    Ref
	quoted bool
}

func isIdentChar(ch byte) bool {
	return ch == '_' ||
		(ch >= '0' && ch <= '9') ||
		(ch >= 'a' && ch <= 'z') ||
		(ch >= 'A' && ch <= 'Z')
}

func tokenize(input string) ([]token, error) {
	var tokens []token
	i := 0

	lastClosesValue := func() bool {
		if len(tokens) == 0 {
			return false
		}
		switch tokens[len(tokens)-1].kind {
		case tokenRef, tokenLiteral, tokenRParen:
			return true
		default:
			return false
		}
	}

	nextOpens := func(from int) bool {
		for j := from; j < len(input); j++ {
			switch input[j] {
			case ' ', '\t', '\n', '\r':
				continue
			case '[', '(':
				return true
			default:
				return false
			}
		}
		return false
	}

	for i < len(input) {
		ch := input[i]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			i++
		case ch == '(':
			tokens = append(tokens, token{kind: tokenLParen, raw: "("})
			i++
		case ch == ')':
			tokens = append(tokens, token{kind: tokenRParen, raw: ")"})
			i++
		case ch == '[':
			ref, rest, err := scanRef(input, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{kind: tokenRef, raw: input[i:rest], ref: ref})
			i = rest
		case ch == '=':
			tokens = append(tokens, token{kind: tokenEq, raw: "="})
			i++
		case ch == '<':
			if i+1 < len(input) && input[i+1] == '>' {
				tokens = append(tokens, token{kind: tokenNe, raw: "<>"})
				i += 2
			} else if i+1 < len(input) && input[i+1] == '=' {
				tokens = append(tokens, token{kind: tokenLe, raw: "<="})
				i += 2
			} else {
				tokens = append(tokens, token{kind: tokenLt, raw: "<"})
				i++
			}
		case ch == '>':
			if i+1 < len(input) && input[i+1] == '=' {
				tokens = append(tokens, token{kind: tokenGe, raw: ">="})
				i += 2
			} else {
				tokens = append(tokens, token{kind: tokenGt, raw: ">"})
				i++
			}
		case ch == '\'' || ch == '"':
			quote := ch
			end := strings.IndexByte(input[i+1:], quote)
			if end < 0 {
				return nil, errors.New("unterminated string literal")
			}
			tokens = append(tokens, token{
				kind:   tokenLiteral,
				raw:    input[i+1 : i+1+end],
				quoted: true,
			})
			i += end + 2
		default:
			start := i
			for i < len(input) {
				c := input[i]
				if c == ' ' || c == '\t' || c == '\n' || c == '\r' ||
					c == '[' || c == ']' || c == '(' || c == ')' ||
					c == '=' || c == '<' || c == '>' || c == '\'' || c == '"' {
					break
				}
				i++
			}
			word := input[start:i]
			if word == "" {
				return nil, fmt.Errorf("unexpected character %q", string(input[start]))
			}
			lower := strings.ToLower(word)
			// and/or are connectives only between a value boundary and an
			// opening bracket or parenthesis; anywhere else the word is a
			// bare literal. A global keyword rewrite would corrupt values.
			if (lower == "and" || lower == "or") && lastClosesValue() && nextOpens(i) {
				kind := tokenAnd
				if lower == "or" {
					kind = tokenOr
				}
				tokens = append(tokens, token{kind: kind, raw: lower})
				continue
			}
			tokens = append(tokens, token{kind: tokenLiteral, raw: word})
		}
	}

	return tokens, nil
}

// scanRef consumes one bracketed reference starting at input[start] == '['.
// Two adjacent bracket groups form an event-scoped reference; a trailing
// parenthesized index inside the final group addresses a checkbox choice.
// Event-scoped forms are recognized before plain ones by construction.
func scanRef(input string, start int) (Ref, int, error) {
	name, choice, rest, err := scanBracketGroup(input, start)
	if err != nil {
		return Ref{}, 0, err
	}
	if rest < len(input) && input[rest] == '[' {
		if choice != "" {
			return Ref{}, 0, fmt.Errorf("event reference %q cannot carry a choice index", name)
		}
		field, fieldChoice, after, err := scanBracketGroup(input, rest)
		if err != nil {
			return Ref{}, 0, err
		}
		return Ref{Event: name, Field: field, Choice: fieldChoice}, after, nil
	}
	return Ref{Field: name, Choice: choice}, rest, nil
}

func scanBracketGroup(input string, start int) (name, choice string, rest int, err error) {
	i := start + 1
	nameStart := i
	for i < len(input) && isIdentChar(input[i]) {
		i++
	}
	name = input[nameStart:i]
	if name == "" {
		return "", "", 0, fmt.Errorf("empty field reference at offset %d", start)
	}
	if i < len(input) && input[i] == '(' {
		i++
		idxStart := i
		for i < len(input) && input[i] >= '0' && input[i] <= '9' {
			i++
		}
		choice = input[idxStart:i]
		if choice == "" || i >= len(input) || input[i] != ')' {
			return "", "", 0, fmt.Errorf("invalid choice index in reference %q", name)
		}
		i++
	}
	if i >= len(input) || input[i] != ']' {
		return "", "", 0, fmt.Errorf("unterminated reference %q", name)
	}
	return name, choice, i + 1, nil
}

type tokenStream struct {
	tokens []token
	pos    int
}

func (s *tokenStream) match(kind tokenKind) bool {
	if s.pos >= len(s.tokens) || s.tokens[s.pos].kind != kind {
		return false
	}
	s.pos++
	return true
}

func (s *tokenStream) peek() (token, bool) {
	if s.pos >= len(s.tokens) {
		return token{}, false
	}
	return s.tokens[s.pos], true
}

func parseOr(stream *tokenStream) (Expr, error) {
	left, err := parseAnd(stream)
	if err != nil {
		return nil, err
	}
	for stream.match(tokenOr) {
		right, err := parseAnd(stream)
		if err != nil {
			return nil, err
		}
		left = logicalExpr{and: false, left: left, right: right}
	}
	return left, nil
}

func parseAnd(stream *tokenStream) (Expr, error) {
	left, err := parsePrimary(stream)
	if err != nil {
		return nil, err
	}
	for stream.match(tokenAnd) {
		right, err := parsePrimary(stream)
		if err != nil {
			return nil, err
		}
		left = logicalExpr{and: true, left: left, right: right}
	}
	return left, nil
}

func parsePrimary(stream *tokenStream) (Expr, error) {
	if stream.match(tokenLParen) {
		inner, err := parseOr(stream)
		if err != nil {
			return nil, err
		}
		if !stream.match(tokenRParen) {
			return nil, errors.New("missing closing ')'")
		}
		return inner, nil
	}

	left, err := parseOperand(stream)
	if err != nil {
		return nil, err
	}

	tok, ok := stream.peek()
	if !ok {
		return nil, errors.New("expected comparison operator")
	}
	var op cmpOp
	switch tok.kind {
	case tokenEq:
		op = opEq
	case tokenNe:
		op = opNe
	case tokenLt:
		op = opLt
	case tokenGt:
		op = opGt
	case tokenLe:
		op = opLe
	case tokenGe:
		op = opGe
	default:
		return nil, fmt.Errorf("expected comparison operator, got %q", tok.raw)
	}
	stream.pos++

	right, err := parseOperand(stream)
	if err != nil {
		return nil, err
	}
	return compareExpr{op: op, left: left, right: right}, nil
}

func parseOperand(stream *tokenStream) (operand, error) {
	tok, ok := stream.peek()
	if !ok {
		return nil, errors.New("expected field reference or literal")
	}
	switch tok.kind {
	case tokenRef:
		stream.pos++
		return refOperand{ref: tok.ref}, nil
	case tokenLiteral:
		stream.pos++
		return litOperand{text: tok.raw, quoted: tok.quoted}, nil
	default:
		return nil, fmt.Errorf("expected field reference or literal, got %q", tok.raw)
	}
}
