package engine

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"dualdb/src/store"
)

// PathClause is one comparison between a document path and a literal.
type PathClause struct {
	Path  string
	Op    string
	Value interface{}
}

// PredicateTerm is a clause or a parenthesized group, plus the logic
// connector ("AND" or "OR") linking it to the next term. The last term
// carries no connector.
type PredicateTerm struct {
	Clause *PathClause
	Group  *PathPredicate
	Logic  string
}

// PathPredicate filters materialized documents. Terms evaluate left to
// right; parentheses group.
type PathPredicate struct {
	Terms []PredicateTerm
}

var comparisonOps = map[string]bool{
	"=": true, "!=": true, "<": true, ">": true, "<=": true, ">=": true,
}

// ParsePredicate parses a filter expression such as
//
//	points > 100 AND (name LIKE "Red%" OR driver.points >= 50)
func ParsePredicate(input string) (*PathPredicate, error) {
	tokens, err := tokenizePredicate(input)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("empty filter expression")
	}

	pred, rest, err := parseTerms(tokens)
	if err != nil {
		return nil, err
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("unexpected token '%s' in filter expression", rest[0])
	}
	return pred, nil
}

// tokenizePredicate splits the expression into tokens, keeping quoted
// strings intact and emitting parentheses and comparison operators as
// their own tokens.
func tokenizePredicate(input string) ([]string, error) {
	var tokens []string
	var current strings.Builder
	inQuotes := false
	var quoteChar byte

	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}

	for i := 0; i < len(input); i++ {
		ch := input[i]

		if inQuotes {
			current.WriteByte(ch)
			if ch == quoteChar {
				inQuotes = false
				flush()
			}
			continue
		}

		switch {
		case ch == '"' || ch == '\'':
			flush()
			inQuotes = true
			quoteChar = ch
			current.WriteByte(ch)
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			flush()
		case ch == '(' || ch == ')':
			flush()
			tokens = append(tokens, string(ch))
		case ch == '=':
			flush()
			tokens = append(tokens, "=")
		case ch == '!' || ch == '<' || ch == '>':
			flush()
			op := string(ch)
			if i+1 < len(input) && input[i+1] == '=' {
				op += "="
				i++
			}
			if op == "!" {
				return nil, fmt.Errorf("stray '!' in filter expression")
			}
			tokens = append(tokens, op)
		default:
			current.WriteByte(ch)
		}
	}
	if inQuotes {
		return nil, fmt.Errorf("unterminated string literal in filter expression")
	}
	flush()
	return tokens, nil
}

// parseTerms consumes terms until the tokens run out or a closing
// parenthesis is reached, returning the unconsumed remainder.
func parseTerms(tokens []string) (*PathPredicate, []string, error) {
	pred := &PathPredicate{}

	for len(tokens) > 0 {
		if tokens[0] == ")" {
			break
		}

		var term PredicateTerm
		var err error

		if tokens[0] == "(" {
			var group *PathPredicate
			group, tokens, err = parseTerms(tokens[1:])
			if err != nil {
				return nil, nil, err
			}
			if len(tokens) == 0 || tokens[0] != ")" {
				return nil, nil, fmt.Errorf("missing closing parenthesis in filter expression")
			}
			tokens = tokens[1:]
			term.Group = group
		} else {
			var clause *PathClause
			clause, tokens, err = parseClause(tokens)
			if err != nil {
				return nil, nil, err
			}
			term.Clause = clause
		}

		if len(tokens) > 0 && tokens[0] != ")" {
			logic := strings.ToUpper(tokens[0])
			if logic != "AND" && logic != "OR" {
				return nil, nil, fmt.Errorf("expected AND or OR, got '%s'", tokens[0])
			}
			term.Logic = logic
			tokens = tokens[1:]
			if len(tokens) == 0 || tokens[0] == ")" {
				return nil, nil, fmt.Errorf("filter expression ends after '%s'", logic)
			}
		}

		pred.Terms = append(pred.Terms, term)
	}

	if len(pred.Terms) == 0 {
		return nil, nil, fmt.Errorf("empty group in filter expression")
	}
	return pred, tokens, nil
}

func parseClause(tokens []string) (*PathClause, []string, error) {
	if len(tokens) < 3 {
		return nil, nil, fmt.Errorf("incomplete comparison in filter expression")
	}

	path := tokens[0]
	op := strings.ToUpper(tokens[1])
	if op != "LIKE" && !comparisonOps[tokens[1]] {
		return nil, nil, fmt.Errorf("unknown operator '%s' in filter expression", tokens[1])
	}
	if op != "LIKE" {
		op = tokens[1]
	}

	value := parseLiteral(tokens[2])
	if op == "LIKE" {
		if _, ok := value.(string); !ok {
			return nil, nil, fmt.Errorf("LIKE requires a string pattern")
		}
	}

	return &PathClause{Path: path, Op: op, Value: value}, tokens[3:], nil
}

// EvaluatePredicate applies the predicate to a document's fields. Terms
// combine strictly left to right.
func EvaluatePredicate(pred *PathPredicate, fields map[string]interface{}) bool {
	if pred == nil || len(pred.Terms) == 0 {
		return true
	}

	result := evalTerm(&pred.Terms[0], fields)
	for i := 0; i < len(pred.Terms)-1; i++ {
		next := evalTerm(&pred.Terms[i+1], fields)
		switch pred.Terms[i].Logic {
		case "OR":
			result = result || next
		default:
			result = result && next
		}
	}
	return result
}

func evalTerm(term *PredicateTerm, fields map[string]interface{}) bool {
	if term.Group != nil {
		return EvaluatePredicate(term.Group, fields)
	}
	return evalClause(term.Clause, fields)
}

// evalClause is satisfied when any value at the path matches; paths
// through to-many children yield one value per array element.
func evalClause(clause *PathClause, fields map[string]interface{}) bool {
	for _, v := range lookupPath(fields, clause.Path) {
		if matchValue(clause.Op, v, clause.Value) {
			return true
		}
	}
	return false
}

func matchValue(op string, actual, expected interface{}) bool {
	actual = normalizeLoose(actual)
	expected = normalizeLoose(expected)

	switch op {
	case "=":
		return store.ValuesEqual(actual, expected)
	case "!=":
		return !store.ValuesEqual(actual, expected)
	case "LIKE":
		s, okA := actual.(string)
		pattern, okB := expected.(string)
		return okA && okB && likeMatch(pattern, s)
	}

	if actual == nil || expected == nil {
		return false
	}
	cmp := store.CompareValues(actual, expected)
	switch op {
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	}
	return false
}

// likeMatch implements SQL LIKE patterns: % matches any run, _ matches
// one character.
func likeMatch(pattern, s string) bool {
	var re strings.Builder
	re.WriteString("(?s)^")
	for _, ch := range pattern {
		switch ch {
		case '%':
			re.WriteString(".*")
		case '_':
			re.WriteString(".")
		default:
			re.WriteString(regexp.QuoteMeta(string(ch)))
		}
	}
	re.WriteString("$")

	matched, err := regexp.MatchString(re.String(), s)
	return err == nil && matched
}

// sortDocuments orders documents by the first value at the given path.
// Documents without a value at the path sort first.
func sortDocuments(docs []*Document, path string, descending bool) {
	sort.SliceStable(docs, func(i, j int) bool {
		a := firstAtPath(docs[i].Fields, path)
		b := firstAtPath(docs[j].Fields, path)
		cmp := store.CompareValues(normalizeLoose(a), normalizeLoose(b))
		if descending {
			return cmp > 0
		}
		return cmp < 0
	})
}

func firstAtPath(fields map[string]interface{}, path string) interface{} {
	values := lookupPath(fields, path)
	if len(values) == 0 {
		return nil
	}
	return values[0]
}
