package engine

import (
	"encoding/hex"
	"fmt"

	"dualdb/src/views"

	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/crypto/blake2b"
)

// ComputeTag derives the version tag of a materialized document. The
// tag is a BLAKE2b-256 hash over the document's canonical BSON form:
// every checked field in the plan's field order, recursing through
// children in plan order. Fields marked nocheck never influence the
// tag. Two reads of an unchanged document always produce the same tag;
// any persisted content change produces a different one.
func ComputeTag(plan *views.MappingPlan, fields map[string]interface{}) (string, error) {
	canonical := canonicalObject(plan, 0, fields)

	payload, err := bson.Marshal(bson.D{
		{Key: "view", Value: plan.ViewName},
		{Key: "doc", Value: canonical},
	})
	if err != nil {
		return "", fmt.Errorf("error encoding canonical document for view '%s': %w", plan.ViewName, err)
	}

	sum := blake2b.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalObject serializes one object level in the plan's canonical
// field order. Unnested children contribute their fields at the parent
// level, in their declared position.
func canonicalObject(plan *views.MappingPlan, id views.NodeID, obj map[string]interface{}) bson.D {
	node := plan.Node(id)

	var doc bson.D
	for _, f := range node.Fields {
		if !f.Checked {
			continue
		}
		doc = append(doc, bson.E{Key: f.Name, Value: obj[f.Name]})
	}

	for _, childID := range node.Children {
		child := plan.Node(childID)

		if child.Card == views.Many {
			arr := bson.A{}
			if raw, ok := obj[child.JSONKey].([]interface{}); ok {
				for _, elem := range raw {
					if elemMap, ok := elem.(map[string]interface{}); ok {
						arr = append(arr, canonicalObject(plan, childID, elemMap))
					}
				}
			}
			doc = append(doc, bson.E{Key: child.JSONKey, Value: arr})
			continue
		}

		if child.Unnest {
			doc = append(doc, canonicalObject(plan, childID, obj)...)
			continue
		}

		if childMap, ok := obj[child.JSONKey].(map[string]interface{}); ok {
			doc = append(doc, bson.E{Key: child.JSONKey, Value: canonicalObject(plan, childID, childMap)})
		} else {
			doc = append(doc, bson.E{Key: child.JSONKey, Value: nil})
		}
	}

	return doc
}

// CheckTag compares an expected version tag against the current one.
func CheckTag(view, expected, current string) error {
	if expected != current {
		return &ConcurrencyError{View: view, Expected: expected, Current: current}
	}
	return nil
}
