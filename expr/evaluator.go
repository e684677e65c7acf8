// Package expr implements the restricted expression language used by
// condition nodes and loop filter/transform clauses.
//
// Supported forms: comparison operators (==, !=, >, <, >=, <=), logical
// operators (&&, ||, !), arithmetic (+, -, *, /), parentheses, number,
// string and boolean literals, and dot-notation variable access
// (result.score looks up vars["result"].(map[string]any)["score"]).
//
// Unlike a permissive template engine, evaluation is strict: a syntax
// error or an identifier that cannot be resolved from the variable
// namespace returns *EvaluationError. Callers must not coerce such
// failures to false.
package expr

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// EvaluationError 表达式求值失败。条件节点与循环节点收到该错误时必须向上
// 传播，不允许降级为 false。
type EvaluationError struct {
	Expr   string
	Reason string
}

// Error implements the error interface.
func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluate %q: %s", e.Expr, e.Reason)
}

func evalErr(expr, format string, args ...any) *EvaluationError {
	return &EvaluationError{Expr: expr, Reason: fmt.Sprintf(format, args...)}
}

// Evaluator evaluates restricted expressions against a flat variable
// namespace. The zero value is ready to use.
type Evaluator struct{}

// New creates an expression evaluator.
func New() *Evaluator {
	return &Evaluator{}
}

// Evaluate evaluates the expression and coerces the result to a boolean.
func (e *Evaluator) Evaluate(expression string, vars map[string]any) (bool, error) {
	val, err := e.EvaluateValue(expression, vars)
	if err != nil {
		return false, err
	}
	return toBool(val), nil
}

// EvaluateValue evaluates the expression and returns the raw result.
// Loop map transforms consume this form.
func (e *Evaluator) EvaluateValue(expression string, vars map[string]any) (any, error) {
	trimmed := strings.TrimSpace(expression)
	if trimmed == "" {
		return nil, evalErr(expression, "empty expression")
	}

	tokens, err := tokenize(trimmed)
	if err != nil {
		return nil, evalErr(expression, "%v", err)
	}
	if len(tokens) == 0 {
		return nil, evalErr(expression, "empty expression")
	}

	p := &parser{expr: expression, tokens: tokens, vars: vars}
	val, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.tokens) {
		return nil, evalErr(expression, "unexpected token %q at position %d", p.tokens[p.pos].value, p.pos)
	}
	return val, nil
}

// --- Token types ---

type tokenKind int

const (
	tkNumber tokenKind = iota // 42, 0.8, -3.14
	tkString                  // "hello"
	tkIdent                   // variable name or true/false
	tkOp                      // ==, !=, >, <, >=, <=, &&, ||, !, +, -, *, /
	tkLParen                  // (
	tkRParen                  // )
)

type token struct {
	kind  tokenKind
	value string
}

// --- Tokenizer ---

func tokenize(expr string) ([]token, error) {
	var tokens []token
	i := 0
	runes := []rune(expr)

	for i < len(runes) {
		ch := runes[i]

		if unicode.IsSpace(ch) {
			i++
			continue
		}

		if ch == '(' {
			tokens = append(tokens, token{tkLParen, "("})
			i++
			continue
		}
		if ch == ')' {
			tokens = append(tokens, token{tkRParen, ")"})
			i++
			continue
		}

		if ch == '"' || ch == '\'' {
			s, n, err := readString(runes, i, ch)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{tkString, s})
			i = n
			continue
		}

		if i+1 < len(runes) {
			two := string(runes[i : i+2])
			switch two {
			case "==", "!=", ">=", "<=", "&&", "||":
				tokens = append(tokens, token{tkOp, two})
				i += 2
				continue
			}
		}

		// Negative number literal: '-' at expression start or after an
		// operator or opening parenthesis.
		if ch == '-' && i+1 < len(runes) && isDigit(runes[i+1]) && isNumberStart(tokens) {
			num, n := readNumber(runes, i)
			tokens = append(tokens, token{tkNumber, num})
			i = n
			continue
		}

		switch ch {
		case '>', '<', '!', '+', '-', '*', '/':
			tokens = append(tokens, token{tkOp, string(ch)})
			i++
			continue
		}

		if isDigit(ch) {
			num, n := readNumber(runes, i)
			tokens = append(tokens, token{tkNumber, num})
			i = n
			continue
		}

		if isIdentStart(ch) {
			ident, n := readIdent(runes, i)
			tokens = append(tokens, token{tkIdent, ident})
			i = n
			continue
		}

		return nil, fmt.Errorf("unexpected character %q at position %d", string(ch), i)
	}

	return tokens, nil
}

func readString(runes []rune, start int, quote rune) (string, int, error) {
	i := start + 1 // skip opening quote
	var sb strings.Builder
	for i < len(runes) {
		if runes[i] == '\\' && i+1 < len(runes) {
			sb.WriteRune(runes[i+1])
			i += 2
			continue
		}
		if runes[i] == quote {
			return sb.String(), i + 1, nil
		}
		sb.WriteRune(runes[i])
		i++
	}
	return "", 0, fmt.Errorf("unterminated string starting at position %d", start)
}

func readNumber(runes []rune, start int) (string, int) {
	i := start
	if i < len(runes) && runes[i] == '-' {
		i++
	}
	for i < len(runes) && isDigit(runes[i]) {
		i++
	}
	if i < len(runes) && runes[i] == '.' {
		i++
		for i < len(runes) && isDigit(runes[i]) {
			i++
		}
	}
	return string(runes[start:i]), i
}

func readIdent(runes []rune, start int) (string, int) {
	i := start
	for i < len(runes) && isIdentPart(runes[i]) {
		i++
	}
	return string(runes[start:i]), i
}

func isDigit(ch rune) bool      { return ch >= '0' && ch <= '9' }
func isIdentStart(ch rune) bool { return unicode.IsLetter(ch) || ch == '_' }
func isIdentPart(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' || ch == '.'
}

func isNumberStart(preceding []token) bool {
	if len(preceding) == 0 {
		return true
	}
	last := preceding[len(preceding)-1]
	return last.kind == tkOp || last.kind == tkLParen
}

// --- Recursive descent parser ---
//
// Precedence (loosest first): || , && , comparison, + -, * /, unary.

type parser struct {
	expr   string
	tokens []token
	pos    int
	vars   map[string]any
}

func (p *parser) peek() *token {
	if p.pos < len(p.tokens) {
		return &p.tokens[p.pos]
	}
	return nil
}

func (p *parser) advance() token {
	t := p.tokens[p.pos]
	p.pos++
	return t
}

func (p *parser) peekOp(ops ...string) bool {
	t := p.peek()
	if t == nil || t.kind != tkOp {
		return false
	}
	for _, op := range ops {
		if t.value == op {
			return true
		}
	}
	return false
}

func (p *parser) parseOr() (any, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peekOp("||") {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = toBool(left) || toBool(right)
	}
	return left, nil
}

func (p *parser) parseAnd() (any, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.peekOp("&&") {
		p.advance()
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = toBool(left) && toBool(right)
	}
	return left, nil
}

func (p *parser) parseComparison() (any, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	if p.peekOp("==", "!=", ">", "<", ">=", "<=") {
		op := p.advance().value
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return evalComparison(left, op, right), nil
	}
	return left, nil
}

func (p *parser) parseAdditive() (any, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.peekOp("+", "-") {
		op := p.advance().value
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left, err = p.arith(left, op, right)
		if err != nil {
			return nil, err
		}
	}
	return left, nil
}

func (p *parser) parseMultiplicative() (any, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peekOp("*", "/") {
		op := p.advance().value
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left, err = p.arith(left, op, right)
		if err != nil {
			return nil, err
		}
	}
	return left, nil
}

func (p *parser) arith(left any, op string, right any) (any, error) {
	// String concatenation keeps "+" useful for transform expressions.
	if op == "+" {
		if ls, ok := left.(string); ok {
			return ls + fmt.Sprintf("%v", right), nil
		}
	}
	lf, lok := toFloat64(left)
	rf, rok := toFloat64(right)
	if !lok || !rok {
		return nil, evalErr(p.expr, "operator %q requires numeric operands, got %T and %T", op, left, right)
	}
	switch op {
	case "+":
		return lf + rf, nil
	case "-":
		return lf - rf, nil
	case "*":
		return lf * rf, nil
	case "/":
		if rf == 0 {
			return nil, evalErr(p.expr, "division by zero")
		}
		return lf / rf, nil
	}
	return nil, evalErr(p.expr, "unknown arithmetic operator %q", op)
}

func (p *parser) parseUnary() (any, error) {
	if p.peekOp("!") {
		p.advance()
		val, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return !toBool(val), nil
	}
	if p.peekOp("-") {
		p.advance()
		val, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		f, ok := toFloat64(val)
		if !ok {
			return nil, evalErr(p.expr, "unary minus requires a numeric operand, got %T", val)
		}
		return -f, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (any, error) {
	t := p.peek()
	if t == nil {
		return nil, evalErr(p.expr, "unexpected end of expression")
	}

	switch t.kind {
	case tkNumber:
		p.advance()
		f, err := strconv.ParseFloat(t.value, 64)
		if err != nil {
			return nil, evalErr(p.expr, "invalid number %q", t.value)
		}
		return f, nil

	case tkString:
		p.advance()
		return t.value, nil

	case tkIdent:
		p.advance()
		switch t.value {
		case "true", "True":
			return true, nil
		case "false", "False":
			return false, nil
		case "null", "None", "nil":
			return nil, nil
		default:
			val, ok := resolveVar(t.value, p.vars)
			if !ok {
				return nil, evalErr(p.expr, "unresolved identifier %q", t.value)
			}
			return val, nil
		}

	case tkLParen:
		p.advance()
		val, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.peek() == nil || p.peek().kind != tkRParen {
			return nil, evalErr(p.expr, "expected closing parenthesis")
		}
		p.advance()
		return val, nil

	default:
		return nil, evalErr(p.expr, "unexpected token %q", t.value)
	}
}

// --- Evaluation helpers ---

// resolveVar resolves a dot-notation variable path from the vars map.
// "status" -> vars["status"]
// "result.score" -> vars["result"].(map[string]any)["score"]
func resolveVar(path string, vars map[string]any) (any, bool) {
	parts := strings.Split(path, ".")
	var current any = vars

	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// evalComparison evaluates a comparison between two values.
// nil is treated as less than any non-nil value; two nils are equal.
func evalComparison(left any, op string, right any) bool {
	if left == nil && right == nil {
		return op == "==" || op == ">=" || op == "<="
	}
	if left == nil || right == nil {
		if op == "!=" {
			return true
		}
		if op == "==" {
			return false
		}
		if left == nil {
			return op == "<" || op == "<="
		}
		return op == ">" || op == ">="
	}

	lf, lok := toFloat64(left)
	rf, rok := toFloat64(right)
	if lok && rok {
		switch op {
		case "==":
			return lf == rf
		case "!=":
			return lf != rf
		case ">":
			return lf > rf
		case "<":
			return lf < rf
		case ">=":
			return lf >= rf
		case "<=":
			return lf <= rf
		}
	}

	ls := fmt.Sprintf("%v", left)
	rs := fmt.Sprintf("%v", right)
	switch op {
	case "==":
		return ls == rs
	case "!=":
		return ls != rs
	case ">":
		return ls > rs
	case "<":
		return ls < rs
	case ">=":
		return ls >= rs
	case "<=":
		return ls <= rs
	}
	return false
}

// toBool converts a value to boolean.
func toBool(v any) bool {
	if v == nil {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case float64:
		return val != 0
	case int:
		return val != 0
	case string:
		return val != "" && val != "false" && val != "False" && val != "0"
	default:
		return true
	}
}

// toFloat64 attempts to convert a value to float64.
func toFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err == nil {
			return f, true
		}
		return 0, false
	default:
		return 0, false
	}
}
