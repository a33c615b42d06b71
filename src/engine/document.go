package engine

import (
	"dualdb/src/store"
)

// MetadataField is the reserved field carrying document metadata: the
// version tag on read, and the expected tag on write.
const MetadataField = "_metadata"

// Document is the materialized JSON value for one root row. It is a
// read-only snapshot; writes flow back through the Decomposer.
type Document struct {
	// View is the name of the duality view the document came from.
	View string

	// Key is the root row's primary key, by column name.
	Key store.Key

	// Fields is the nested JSON content, without metadata.
	Fields map[string]interface{}

	// Etag is the version tag derived from the document content.
	Etag string
}

// AsMap returns the document content with the reserved metadata object
// attached.
func (d *Document) AsMap() map[string]interface{} {
	out := deepCopyMap(d.Fields)
	out[MetadataField] = map[string]interface{}{
		"etag": d.Etag,
	}
	return out
}

// CommandResponse wraps a command result for the wire.
type CommandResponse struct {
	ResultCount int         `json:"resultCount"`
	Result      interface{} `json:"result"`
}

// stripMetadata splits a submitted document into its content and the
// expected version tag carried in the reserved metadata object.
func stripMetadata(doc map[string]interface{}) (map[string]interface{}, string) {
	tag := ""
	out := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		if k == MetadataField {
			if meta, ok := v.(map[string]interface{}); ok {
				if etag, ok := meta["etag"].(string); ok {
					tag = etag
				}
			}
			continue
		}
		out[k] = v
	}
	return out, tag
}
