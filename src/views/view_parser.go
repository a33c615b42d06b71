package views

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

/*
	The annotation syntax mirrors the document shape itself:

	CREATE DUALITY VIEW "team_dv" AS team {
	  _id: team_id,
	  name,
	  points,
	  driver: driver @insert @update [ {
	    driverId: driver_id,
	    name,
	    points
	  } ]
	}

	A field is `jsonName: column` (or just `column` when the names
	match), a nested to-one child is `jsonName: table { ... }`, a
	to-many child is `jsonName: table @flags [ { ... } ]`, and an
	unnested to-one child is `table @unnest { ... }`. Flags annotate
	whichever element they follow.
*/

var createViewRegex = regexp.MustCompile(`(?is)^CREATE\s+DUALITY\s+VIEW\s+"([^"]+)"\s+AS\s+(\w+)\s*(\{[\s\S]*\})\s*;?\s*$`)

// ParseCreateViewCommand parses a CREATE DUALITY VIEW command into a
// view definition.
func ParseCreateViewCommand(command string, logger *zap.SugaredLogger) (*ViewDefinition, error) {
	command = strings.TrimSpace(command)

	matches := createViewRegex.FindStringSubmatch(command)
	if len(matches) < 4 {
		if logger != nil {
			logger.Errorw("Invalid CREATE DUALITY VIEW command syntax", "command", command)
		}
		return nil, fmt.Errorf("invalid CREATE DUALITY VIEW command syntax")
	}

	viewName := matches[1]
	rootTable := matches[2]
	body := matches[3]

	tokens := tokenizeViewBody(body)
	root, pos, err := parseNodeBody(tokens, 0, rootTable)
	if err != nil {
		return nil, fmt.Errorf("error parsing view '%s': %w", viewName, err)
	}
	if pos < len(tokens) {
		return nil, fmt.Errorf("error parsing view '%s': unexpected tokens after body: %v", viewName, tokens[pos:])
	}

	return &ViewDefinition{
		Name: viewName,
		Root: *root,
	}, nil
}

// tokenizeViewBody breaks a view body into tokens while preserving
// quoted strings
func tokenizeViewBody(body string) []string {
	var tokens []string
	var currentToken strings.Builder
	inQuote := false

	flush := func() {
		if currentToken.Len() > 0 {
			tokens = append(tokens, currentToken.String())
			currentToken.Reset()
		}
	}

	for i := 0; i < len(body); i++ {
		ch := body[i]

		// Handle quotes
		if ch == '"' {
			currentToken.WriteByte(ch)
			inQuote = !inQuote
			continue
		}

		// If we're in quotes, just add the character
		if inQuote {
			currentToken.WriteByte(ch)
			continue
		}

		// Handle punctuation as separate tokens
		if ch == '{' || ch == '}' || ch == '[' || ch == ']' || ch == ':' || ch == ',' || ch == '(' || ch == ')' {
			flush()
			tokens = append(tokens, string(ch))
			continue
		}

		// Handle spaces outside quotes
		if ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' {
			flush()
			continue
		}

		// For all other characters
		currentToken.WriteByte(ch)
	}

	flush()
	return tokens
}

// parseNodeBody parses one `{ ... }` object body into a node
// definition for the given table.
func parseNodeBody(tokens []string, pos int, table string) (*NodeDefinition, int, error) {
	if pos >= len(tokens) || tokens[pos] != "{" {
		return nil, pos, fmt.Errorf("expected '{' at position %d", pos)
	}
	pos++

	node := &NodeDefinition{Table: table}

	for pos < len(tokens) {
		if tokens[pos] == "}" {
			pos++
			return node, pos, nil
		}
		if tokens[pos] == "," {
			pos++
			continue
		}

		name := tokens[pos]
		if !isIdentifier(name) {
			return nil, pos, fmt.Errorf("expected a field or child name, got '%s'", name)
		}
		pos++

		// Optional `: target`
		target := ""
		if pos < len(tokens) && tokens[pos] == ":" {
			pos++
			if pos >= len(tokens) || !isIdentifier(tokens[pos]) {
				return nil, pos, fmt.Errorf("expected a column or table name after '%s:'", name)
			}
			target = tokens[pos]
			pos++
		}

		// Collect annotations
		var flags []string
		var via string
		for pos < len(tokens) && strings.HasPrefix(tokens[pos], "@") {
			flag := strings.ToLower(tokens[pos])
			pos++
			if flag == "@via" {
				if pos+2 >= len(tokens) || tokens[pos] != "(" || tokens[pos+2] != ")" {
					return nil, pos, fmt.Errorf("@via requires a foreign key name in parentheses")
				}
				via = tokens[pos+1]
				pos += 3
				continue
			}
			flags = append(flags, flag)
		}

		switch {
		case pos < len(tokens) && tokens[pos] == "{":
			// Nested or unnested to-one child
			childTable := target
			if childTable == "" {
				childTable = name
			}
			childNode, newPos, err := parseNodeBody(tokens, pos, childTable)
			if err != nil {
				return nil, pos, err
			}
			pos = newPos

			child := ChildDefinition{Key: name, Node: *childNode, ForeignKey: via}
			if err := applyNodeFlags(&child, flags); err != nil {
				return nil, pos, err
			}
			if child.Unnest {
				if target != "" {
					return nil, pos, fmt.Errorf("unnested child '%s' must not declare a JSON key", name)
				}
				child.Key = ""
			}
			node.Children = append(node.Children, child)

		case pos < len(tokens) && tokens[pos] == "[":
			// To-many child: [ { ... } ]
			pos++
			childTable := target
			if childTable == "" {
				childTable = name
			}
			childNode, newPos, err := parseNodeBody(tokens, pos, childTable)
			if err != nil {
				return nil, pos, err
			}
			pos = newPos
			if pos >= len(tokens) || tokens[pos] != "]" {
				return nil, pos, fmt.Errorf("expected ']' after array child '%s'", name)
			}
			pos++

			child := ChildDefinition{Key: name, Many: true, Node: *childNode, ForeignKey: via}
			if err := applyNodeFlags(&child, flags); err != nil {
				return nil, pos, err
			}
			if child.Unnest {
				return nil, pos, fmt.Errorf("to-many child '%s' cannot be unnested", name)
			}
			node.Children = append(node.Children, child)

		default:
			// Plain field
			field := FieldDefinition{Name: name, Column: target}
			if err := applyFieldFlags(&field, flags); err != nil {
				return nil, pos, err
			}
			node.Fields = append(node.Fields, field)
		}
	}

	return nil, pos, fmt.Errorf("unterminated '{' in view body")
}

func applyFieldFlags(field *FieldDefinition, flags []string) error {
	for _, flag := range flags {
		switch flag {
		case "@insert":
			field.Insert = true
		case "@noinsert":
			field.NoInsert = true
		case "@update":
			field.Update = true
		case "@noupdate":
			field.NoUpdate = true
		case "@check":
			field.Check = true
		case "@nocheck":
			field.NoCheck = true
		default:
			return fmt.Errorf("unknown annotation '%s' on field '%s'", flag, field.Name)
		}
	}
	return nil
}

func applyNodeFlags(child *ChildDefinition, flags []string) error {
	for _, flag := range flags {
		switch flag {
		case "@insert":
			child.Node.Insert = true
		case "@noinsert":
			child.Node.NoInsert = true
		case "@update":
			child.Node.Update = true
		case "@noupdate":
			child.Node.NoUpdate = true
		case "@delete":
			child.Node.Delete = true
		case "@nodelete":
			child.Node.NoDelete = true
		case "@unnest":
			child.Unnest = true
		default:
			return fmt.Errorf("unknown annotation '%s' on child '%s'", flag, child.Node.Table)
		}
	}
	return nil
}

func isIdentifier(token string) bool {
	if token == "" {
		return false
	}
	for _, ch := range token {
		if ch != '_' && !('a' <= ch && ch <= 'z') && !('A' <= ch && ch <= 'Z') && !('0' <= ch && ch <= '9') {
			return false
		}
	}
	return true
}
