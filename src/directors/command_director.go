package directors

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"dualdb/src/engine"
	"dualdb/src/views"

	"go.uber.org/zap"
)

// Command grammar routed here:
//
//	CREATE DUALITY VIEW "name" AS table { ... }
//	SELECT VIEWS
//	SELECT FROM "view" KEY { ... }
//	SELECT FROM "view" [WHERE <filter>] [ORDER BY <path> [DESC]] [KEEP <paths>] [REMOVE <paths>]
//	INSERT INTO "view" { ... }
//	REPLACE INTO "view" { ... }
//	PATCH "view" KEY { ... } WITH { ... }
//	TRANSFORM "view" KEY { ... } [ETAG "..."] SET <path> TO <value> | REMOVE <path> | KEEP <paths>
//	DELETE FROM "view" KEY { ... } [ETAG "..."]
var (
	selectRegex    = regexp.MustCompile(`(?is)^SELECT\s+FROM\s+"([^"]+)"\s*(.*)$`)
	insertRegex    = regexp.MustCompile(`(?is)^INSERT\s+INTO\s+"([^"]+)"\s*(\{.*\})$`)
	replaceRegex   = regexp.MustCompile(`(?is)^REPLACE\s+INTO\s+"([^"]+)"\s*(\{.*\})$`)
	patchRegex     = regexp.MustCompile(`(?is)^PATCH\s+"([^"]+)"\s+KEY\s*(\{.*?\})\s+WITH\s*(\{.*\})$`)
	transformRegex = regexp.MustCompile(`(?is)^TRANSFORM\s+"([^"]+)"\s+KEY\s*(\{.*?\})\s*(?:ETAG\s+"([^"]*)")?\s+(SET|REMOVE|KEEP)\s+(.*)$`)
	deleteRegex    = regexp.MustCompile(`(?is)^DELETE\s+FROM\s+"([^"]+)"\s+KEY\s*(\{.*?\})\s*(?:ETAG\s+"([^"]*)")?$`)
	setOpRegex     = regexp.MustCompile(`(?is)^(\S+)\s+TO\s+(.*)$`)
	tailClauseRe   = regexp.MustCompile(`(?i)\b(WHERE|ORDER\s+BY|KEEP|REMOVE)\b`)
	whitespaceRe   = regexp.MustCompile(`\s+`)
)

func CommandDirector(serviceManager *ServiceManager, command string, logger *zap.SugaredLogger) (*engine.CommandResponse, error) {
	command = strings.TrimSpace(command)
	command = strings.TrimSuffix(command, ";")

	if serviceManager == nil || serviceManager.ViewService == nil {
		return nil, fmt.Errorf("service manager is not initialized")
	}
	svc := serviceManager.ViewService

	lower := strings.ToLower(command)

	if strings.HasPrefix(lower, "create duality view") {
		def, err := views.ParseCreateViewCommand(command, logger)
		if err != nil {
			return nil, err
		}
		plan, err := svc.DefineView(def)
		if err != nil {
			return nil, err
		}
		return &engine.CommandResponse{
			ResultCount: 1,
			Result:      fmt.Sprintf("Duality view '%s' created with %d nodes.", plan.ViewName, len(plan.Nodes)),
		}, nil
	}

	if strings.EqualFold(command, "select views") {
		names := svc.ViewNames()
		return &engine.CommandResponse{ResultCount: len(names), Result: names}, nil
	}

	if m := selectRegex.FindStringSubmatch(command); m != nil {
		return runSelect(svc, m[1], m[2])
	}

	if m := insertRegex.FindStringSubmatch(command); m != nil {
		doc, err := decodeObject(m[2])
		if err != nil {
			return nil, err
		}
		inserted, err := svc.Insert(m[1], doc)
		if err != nil {
			return nil, err
		}
		return &engine.CommandResponse{ResultCount: 1, Result: inserted.AsMap()}, nil
	}

	if m := replaceRegex.FindStringSubmatch(command); m != nil {
		doc, err := decodeObject(m[2])
		if err != nil {
			return nil, err
		}
		replaced, err := svc.Replace(m[1], doc)
		if err != nil {
			return nil, err
		}
		return &engine.CommandResponse{ResultCount: 1, Result: replaced.AsMap()}, nil
	}

	if m := patchRegex.FindStringSubmatch(command); m != nil {
		keyDoc, err := decodeObject(m[2])
		if err != nil {
			return nil, err
		}
		patch, err := decodeObject(m[3])
		if err != nil {
			return nil, err
		}
		patched, err := svc.MergePatch(m[1], keyDoc, patch)
		if err != nil {
			return nil, err
		}
		return &engine.CommandResponse{ResultCount: 1, Result: patched.AsMap()}, nil
	}

	if m := transformRegex.FindStringSubmatch(command); m != nil {
		return runTransform(svc, m)
	}

	if m := deleteRegex.FindStringSubmatch(command); m != nil {
		keyDoc, err := decodeObject(m[2])
		if err != nil {
			return nil, err
		}
		if err := svc.Delete(m[1], keyDoc, m[3]); err != nil {
			return nil, err
		}
		return &engine.CommandResponse{ResultCount: 1, Result: "Document deleted."}, nil
	}

	return nil, fmt.Errorf("unknown command format: %s", command)
}

// runSelect handles both by-key reads and filtered queries.
func runSelect(svc *ViewService, view, tail string) (*engine.CommandResponse, error) {
	tail = strings.TrimSpace(tail)

	if strings.HasPrefix(strings.ToLower(tail), "key") {
		keyDoc, err := decodeObject(strings.TrimSpace(tail[3:]))
		if err != nil {
			return nil, err
		}
		doc, err := svc.Get(view, keyDoc)
		if err != nil {
			return nil, err
		}
		return &engine.CommandResponse{ResultCount: 1, Result: doc.AsMap()}, nil
	}

	pred, opts, err := parseSelectTail(tail)
	if err != nil {
		return nil, err
	}

	docs, err := svc.Query(view, pred, opts)
	if err != nil {
		return nil, err
	}

	results := make([]map[string]interface{}, 0, len(docs))
	for _, doc := range docs {
		results = append(results, doc.AsMap())
	}
	return &engine.CommandResponse{ResultCount: len(results), Result: results}, nil
}

// parseSelectTail splits the clauses after the view name.
func parseSelectTail(tail string) (*engine.PathPredicate, engine.ReadOptions, error) {
	var pred *engine.PathPredicate
	var opts engine.ReadOptions

	if tail == "" {
		return nil, opts, nil
	}

	locs := tailClauseRe.FindAllStringIndex(tail, -1)
	if len(locs) == 0 || locs[0][0] != 0 {
		return nil, opts, fmt.Errorf("malformed SELECT clause: %s", tail)
	}

	for i, loc := range locs {
		end := len(tail)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		keyword := strings.ToUpper(whitespaceRe.ReplaceAllString(tail[loc[0]:loc[1]], " "))
		body := strings.TrimSpace(tail[loc[1]:end])

		switch keyword {
		case "WHERE":
			parsed, err := engine.ParsePredicate(body)
			if err != nil {
				return nil, opts, err
			}
			pred = parsed
		case "ORDER BY":
			parts := strings.Fields(body)
			if len(parts) == 0 {
				return nil, opts, fmt.Errorf("ORDER BY requires a path")
			}
			opts.OrderBy = parts[0]
			if len(parts) > 1 && strings.EqualFold(parts[1], "DESC") {
				opts.Descending = true
			}
		case "KEEP":
			opts.Keep = splitPaths(body)
		case "REMOVE":
			opts.Remove = splitPaths(body)
		default:
			return nil, opts, fmt.Errorf("unknown SELECT clause '%s'", keyword)
		}
	}

	return pred, opts, nil
}

func runTransform(svc *ViewService, m []string) (*engine.CommandResponse, error) {
	view, rawKey, etag, verb, body := m[1], m[2], m[3], strings.ToUpper(m[4]), strings.TrimSpace(m[5])

	keyDoc, err := decodeObject(rawKey)
	if err != nil {
		return nil, err
	}

	var op engine.TransformOp
	switch verb {
	case "SET":
		sm := setOpRegex.FindStringSubmatch(body)
		if sm == nil {
			return nil, fmt.Errorf("SET requires '<path> TO <value>'")
		}
		var value interface{}
		if err := json.Unmarshal([]byte(sm[2]), &value); err != nil {
			return nil, fmt.Errorf("error decoding SET value: %w", err)
		}
		op = engine.TransformOp{Op: engine.TransformSet, Path: sm[1], Value: value}
	case "REMOVE":
		op = engine.TransformOp{Op: engine.TransformRemove, Path: body}
	case "KEEP":
		op = engine.TransformOp{Op: engine.TransformKeep, Paths: splitPaths(body)}
	}

	doc, err := svc.Transform(view, keyDoc, []engine.TransformOp{op}, etag)
	if err != nil {
		return nil, err
	}
	return &engine.CommandResponse{ResultCount: 1, Result: doc.AsMap()}, nil
}

func decodeObject(raw string) (map[string]interface{}, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("error decoding JSON document: %w", err)
	}
	return doc, nil
}

func splitPaths(body string) []string {
	var paths []string
	for _, p := range strings.Split(body, ",") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			paths = append(paths, trimmed)
		}
	}
	return paths
}
