package ddbtest

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"
)

type item = map[string]types.AttributeValue

// env resolves placeholders for one request.
type env struct {
	names  map[string]string
	values map[string]types.AttributeValue
}

func (e env) path(p string) (string, error) {
	p = strings.TrimSpace(p)
	if strings.HasPrefix(p, "#") {
		n, ok := e.names[p]
		if !ok {
			return "", fmt.Errorf("undefined attribute name %s", p)
		}
		return n, nil
	}
	if strings.ContainsAny(p, ".[") {
		return "", fmt.Errorf("nested path %q not supported", p)
	}
	return p, nil
}

func (e env) value(p string) (types.AttributeValue, error) {
	v, ok := e.values[strings.TrimSpace(p)]
	if !ok {
		return nil, fmt.Errorf("undefined attribute value %s", p)
	}
	return v, nil
}

// operand resolves a path or a :value. Missing attributes resolve to nil.
func (e env) operand(it item, s string) (types.AttributeValue, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, ":") {
		return e.value(s)
	}
	p, err := e.path(s)
	if err != nil {
		return nil, err
	}
	return it[p], nil
}

// checkUsage rejects names and values that none of the expressions reference,
// matching the service's validation.
func (e env) checkUsage(exprs ...string) error {
	all := strings.Join(exprs, " ")
	for k := range e.names {
		if !referenced(all, k) {
			return fmt.Errorf("unused expression attribute name %s", k)
		}
	}
	for k := range e.values {
		if !referenced(all, k) {
			return fmt.Errorf("unused expression attribute value %s", k)
		}
	}
	return nil
}

func referenced(expr, placeholder string) bool {
	re := regexp.MustCompile(regexp.QuoteMeta(placeholder) + `([^A-Za-z0-9_]|$)`)
	return re.MatchString(expr)
}

// splitTop splits s on sep where sep is not inside parentheses.
func splitTop(s, sep string) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		}
		if depth == 0 && strings.HasPrefix(s[i:], sep) {
			parts = append(parts, s[start:i])
			i += len(sep) - 1
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

func stripParens(s string) string {
	s = strings.TrimSpace(s)
	for len(s) >= 2 && s[0] == '(' && s[len(s)-1] == ')' && balanced(s[1:len(s)-1]) {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

func balanced(s string) bool {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}

// evalCondition supports conjunctions of attribute_exists, attribute_not_exists
// and binary comparisons.
func (e env) evalCondition(expr string, it item) (bool, error) {
	for _, clause := range splitTop(expr, " AND ") {
		ok, err := e.evalClause(stripParens(clause), it)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

var comparators = []string{"<>", ">=", "<=", "=", ">", "<"}

func (e env) evalClause(c string, it item) (bool, error) {
	switch {
	case strings.HasPrefix(c, "attribute_not_exists(") && strings.HasSuffix(c, ")"):
		p, err := e.path(c[len("attribute_not_exists(") : len(c)-1])
		if err != nil {
			return false, err
		}
		_, present := it[p]
		return !present, nil
	case strings.HasPrefix(c, "attribute_exists(") && strings.HasSuffix(c, ")"):
		p, err := e.path(c[len("attribute_exists(") : len(c)-1])
		if err != nil {
			return false, err
		}
		_, present := it[p]
		return present, nil
	}
	for _, op := range comparators {
		idx := strings.Index(c, " "+op+" ")
		if idx < 0 {
			continue
		}
		l, err := e.operand(it, c[:idx])
		if err != nil {
			return false, err
		}
		r, err := e.operand(it, c[idx+len(op)+2:])
		if err != nil {
			return false, err
		}
		return compare(l, r, op)
	}
	return false, fmt.Errorf("unsupported condition %q", c)
}

func compare(l, r types.AttributeValue, op string) (bool, error) {
	if l == nil || r == nil {
		return false, nil
	}
	switch lv := l.(type) {
	case *types.AttributeValueMemberN:
		rv, ok := r.(*types.AttributeValueMemberN)
		if !ok {
			return op == "<>", nil
		}
		a, err := decimal.NewFromString(lv.Value)
		if err != nil {
			return false, err
		}
		b, err := decimal.NewFromString(rv.Value)
		if err != nil {
			return false, err
		}
		return ordered(a.Cmp(b), op), nil
	case *types.AttributeValueMemberS:
		rv, ok := r.(*types.AttributeValueMemberS)
		if !ok {
			return op == "<>", nil
		}
		return ordered(strings.Compare(lv.Value, rv.Value), op), nil
	}
	switch op {
	case "=":
		return reflect.DeepEqual(l, r), nil
	case "<>":
		return !reflect.DeepEqual(l, r), nil
	}
	return false, fmt.Errorf("operator %s not supported for %T", op, l)
}

func ordered(cmp int, op string) bool {
	switch op {
	case "=":
		return cmp == 0
	case "<>":
		return cmp != 0
	case ">=":
		return cmp >= 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	default:
		return cmp < 0
	}
}

// applyUpdate mutates it in place and returns the attribute names touched.
func (e env) applyUpdate(expr string, it item) ([]string, error) {
	sections, err := splitSections(expr)
	if err != nil {
		return nil, err
	}
	var touched []string

	if s, ok := sections["SET"]; ok {
		for _, assign := range splitTop(s, ",") {
			eq := strings.Index(assign, "=")
			if eq < 0 {
				return nil, fmt.Errorf("malformed SET clause %q", assign)
			}
			p, err := e.path(assign[:eq])
			if err != nil {
				return nil, err
			}
			v, err := e.rhs(it, assign[eq+1:])
			if err != nil {
				return nil, err
			}
			it[p] = v
			touched = append(touched, p)
		}
	}

	if s, ok := sections["ADD"]; ok {
		for _, clause := range splitTop(s, ",") {
			fields := strings.Fields(clause)
			if len(fields) != 2 {
				return nil, fmt.Errorf("malformed ADD clause %q", clause)
			}
			p, err := e.path(fields[0])
			if err != nil {
				return nil, err
			}
			v, err := e.value(fields[1])
			if err != nil {
				return nil, err
			}
			cur := it[p]
			if cur == nil {
				cur = &types.AttributeValueMemberN{Value: "0"}
			}
			sum, err := arith(cur, v, "+")
			if err != nil {
				return nil, err
			}
			it[p] = sum
			touched = append(touched, p)
		}
	}

	if s, ok := sections["REMOVE"]; ok {
		for _, raw := range splitTop(s, ",") {
			p, err := e.path(raw)
			if err != nil {
				return nil, err
			}
			delete(it, p)
		}
	}
	return touched, nil
}

func splitSections(expr string) (map[string]string, error) {
	keywords := []string{"SET", "ADD", "REMOVE"}
	type mark struct {
		kw  string
		pos int
	}
	var marks []mark
	depth := 0
	for i := 0; i < len(expr); i++ {
		switch expr[i] {
		case '(':
			depth++
			continue
		case ')':
			depth--
			continue
		}
		if depth != 0 || (i > 0 && expr[i-1] != ' ') {
			continue
		}
		for _, kw := range keywords {
			if strings.HasPrefix(expr[i:], kw+" ") {
				marks = append(marks, mark{kw, i})
				break
			}
		}
	}
	if len(marks) == 0 || strings.TrimSpace(expr[:marks[0].pos]) != "" {
		return nil, fmt.Errorf("unsupported update expression %q", expr)
	}
	out := map[string]string{}
	for i, m := range marks {
		end := len(expr)
		if i+1 < len(marks) {
			end = marks[i+1].pos
		}
		if _, dup := out[m.kw]; dup {
			return nil, fmt.Errorf("duplicate %s section", m.kw)
		}
		out[m.kw] = strings.TrimSpace(expr[m.pos+len(m.kw) : end])
	}
	return out, nil
}

// rhs evaluates operand [(+|-) operand], where an operand may be
// if_not_exists(path, operand) or list_append(operand, operand).
func (e env) rhs(it item, s string) (types.AttributeValue, error) {
	s = strings.TrimSpace(s)
	for _, op := range []string{" + ", " - "} {
		parts := splitTop(s, op)
		if len(parts) == 2 {
			l, err := e.term(it, parts[0])
			if err != nil {
				return nil, err
			}
			r, err := e.term(it, parts[1])
			if err != nil {
				return nil, err
			}
			if l == nil || r == nil {
				return nil, fmt.Errorf("arithmetic on missing attribute in %q", s)
			}
			return arith(l, r, strings.TrimSpace(op))
		}
	}
	v, err := e.term(it, s)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, fmt.Errorf("SET to missing attribute in %q", s)
	}
	return v, nil
}

func (e env) term(it item, s string) (types.AttributeValue, error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "if_not_exists(") && strings.HasSuffix(s, ")"):
		args := splitTop(s[len("if_not_exists("):len(s)-1], ",")
		if len(args) != 2 {
			return nil, fmt.Errorf("if_not_exists takes two arguments: %q", s)
		}
		cur, err := e.operand(it, args[0])
		if err != nil {
			return nil, err
		}
		if cur != nil {
			return cur, nil
		}
		return e.term(it, args[1])
	case strings.HasPrefix(s, "list_append(") && strings.HasSuffix(s, ")"):
		args := splitTop(s[len("list_append("):len(s)-1], ",")
		if len(args) != 2 {
			return nil, fmt.Errorf("list_append takes two arguments: %q", s)
		}
		a, err := e.term(it, args[0])
		if err != nil {
			return nil, err
		}
		b, err := e.term(it, args[1])
		if err != nil {
			return nil, err
		}
		la, ok1 := a.(*types.AttributeValueMemberL)
		lb, ok2 := b.(*types.AttributeValueMemberL)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("list_append on non-list operands in %q", s)
		}
		joined := make([]types.AttributeValue, 0, len(la.Value)+len(lb.Value))
		joined = append(joined, la.Value...)
		joined = append(joined, lb.Value...)
		return &types.AttributeValueMemberL{Value: joined}, nil
	}
	return e.operand(it, s)
}

func arith(l, r types.AttributeValue, op string) (types.AttributeValue, error) {
	ln, ok1 := l.(*types.AttributeValueMemberN)
	rn, ok2 := r.(*types.AttributeValueMemberN)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("arithmetic on non-numeric operands")
	}
	a, err := decimal.NewFromString(ln.Value)
	if err != nil {
		return nil, err
	}
	b, err := decimal.NewFromString(rn.Value)
	if err != nil {
		return nil, err
	}
	if op == "-" {
		return &types.AttributeValueMemberN{Value: a.Sub(b).String()}, nil
	}
	return &types.AttributeValueMemberN{Value: a.Add(b).String()}, nil
}
