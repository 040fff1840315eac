package main

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// SymbolResolver turns $names inside expressions into values. Registers are
// tried first, then symbols, so `$rip` and `$_r_debug` both work.
type SymbolResolver interface {
	ResolveRegister(name string) (uint64, error)
	ResolveSymbol(name string) (uint64, error)
}

func (dbger *TypeDbg) ResolveRegister(name string) (uint64, error) {
	return dbger.GetRegs(name)
}

func (dbger *TypeDbg) ResolveSymbol(name string) (uint64, error) {
	sym, err := dbger.ResolveSymbolToAddr(name)
	if err != nil {
		return 0, err
	}
	return dbger.symAbs(sym), nil
}

var symPattern = regexp.MustCompile(`\$([a-zA-Z_][a-zA-Z0-9_@.]*)`)

// EvaluateExpression resolves $names in expr and evaluates the result as
// unsigned arithmetic with +, -, *, / and parentheses.
func EvaluateExpression(expr string, resolver SymbolResolver) (uint64, error) {
	var resolveErr error
	resolved := symPattern.ReplaceAllStringFunc(expr, func(match string) string {
		name := strings.TrimPrefix(match, "$")
		if val, err := resolver.ResolveRegister(name); err == nil {
			return fmt.Sprintf("0x%x", val)
		}
		if val, err := resolver.ResolveSymbol(name); err == nil {
			return fmt.Sprintf("0x%x", val)
		}
		resolveErr = fmt.Errorf("failed to resolve symbol: %s", name)
		return match
	})
	if resolveErr != nil {
		return 0, resolveErr
	}

	p := &exprParser{input: strings.ReplaceAll(resolved, " ", "")}
	val, err := p.addSub()
	if err != nil {
		return 0, err
	}
	if p.pos != len(p.input) {
		return 0, fmt.Errorf("unexpected trailing input: %q", p.input[p.pos:])
	}
	return val, nil
}

type exprParser struct {
	input string
	pos   int
}

func (p *exprParser) peek() byte {
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func (p *exprParser) addSub() (uint64, error) {
	left, err := p.mulDiv()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '+':
			p.pos++
			right, err := p.mulDiv()
			if err != nil {
				return 0, err
			}
			left += right
		case '-':
			p.pos++
			right, err := p.mulDiv()
			if err != nil {
				return 0, err
			}
			if right > left {
				return 0, fmt.Errorf("subtraction underflow")
			}
			left -= right
		default:
			return left, nil
		}
	}
}

func (p *exprParser) mulDiv() (uint64, error) {
	left, err := p.factor()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '*':
			p.pos++
			right, err := p.factor()
			if err != nil {
				return 0, err
			}
			left *= right
		case '/':
			p.pos++
			right, err := p.factor()
			if err != nil {
				return 0, err
			}
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			left /= right
		default:
			return left, nil
		}
	}
}

func (p *exprParser) factor() (uint64, error) {
	if p.peek() == '(' {
		p.pos++
		val, err := p.addSub()
		if err != nil {
			return 0, err
		}
		if p.peek() != ')' {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return val, nil
	}

	start := p.pos
	if p.peek() == '0' && p.pos+1 < len(p.input) && (p.input[p.pos+1] == 'x' || p.input[p.pos+1] == 'X') {
		p.pos += 2
		for p.pos < len(p.input) && isHexDigit(p.input[p.pos]) {
			p.pos++
		}
	} else {
		for p.pos < len(p.input) && isDigit(p.input[p.pos]) {
			p.pos++
		}
	}
	if p.pos == start {
		return 0, fmt.Errorf("expected number at %q", p.input[start:])
	}
	return parseNumber(p.input[start:p.pos])
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isHexDigit(ch byte) bool {
	return isDigit(ch) || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
}

func parseNumber(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return strconv.ParseUint(s[2:], 16, 64)
	}
	if strings.HasPrefix(s, "0") && len(s) > 1 {
		return strconv.ParseUint(s, 8, 64)
	}
	return strconv.ParseUint(s, 10, 64)
}

var exprPattern = regexp.MustCompile(
	`(\$[a-zA-Z_][a-zA-Z0-9_@.]*(?:\s*[+\-*/]\s*(?:0[xX][0-9a-fA-F]+|[0-9]+|\$[a-zA-Z_][a-zA-Z0-9_@.]*))*)`)

// resolveSymbolsInCommand rewrites $name expressions inside a command line
// to their hex values before dispatch.
func resolveSymbolsInCommand(cmd string, resolver SymbolResolver) (string, error) {
	if !strings.Contains(cmd, "$") {
		return cmd, nil
	}

	result := exprPattern.ReplaceAllStringFunc(cmd, func(match string) string {
		val, err := EvaluateExpression(match, resolver)
		if err != nil {
			return match
		}
		return fmt.Sprintf("0x%x", val)
	})

	return result, nil
}
