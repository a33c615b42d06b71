package views

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// The declarative graph syntax expresses the same tree as the
// annotation command syntax; both compile to the identical plan.

type yamlFile struct {
	Views []yamlView `yaml:"views"`
}

type yamlView struct {
	Name string   `yaml:"name"`
	Root yamlNode `yaml:"root"`
}

type yamlNode struct {
	Table    string      `yaml:"table"`
	Fields   []yamlField `yaml:"fields"`
	Children []yamlChild `yaml:"children"`

	Insert   bool `yaml:"insert"`
	NoInsert bool `yaml:"noinsert"`
	Update   bool `yaml:"update"`
	NoUpdate bool `yaml:"noupdate"`
	Delete   bool `yaml:"delete"`
	NoDelete bool `yaml:"nodelete"`
}

type yamlField struct {
	Name   string `yaml:"name"`
	Column string `yaml:"column"`

	Insert   bool `yaml:"insert"`
	NoInsert bool `yaml:"noinsert"`
	Update   bool `yaml:"update"`
	NoUpdate bool `yaml:"noupdate"`
	Check    bool `yaml:"check"`
	NoCheck  bool `yaml:"nocheck"`
}

type yamlChild struct {
	Key         string   `yaml:"key"`
	Cardinality string   `yaml:"cardinality"` // one (default) or many
	Unnest      bool     `yaml:"unnest"`
	ForeignKey  string   `yaml:"foreign_key"`
	Node        yamlNode `yaml:"node"`
}

// LoadViews parses YAML view declarations into view definitions.
func LoadViews(data []byte) ([]*ViewDefinition, error) {
	var yf yamlFile
	if err := yaml.Unmarshal(data, &yf); err != nil {
		return nil, fmt.Errorf("unmarshalling views YAML: %w", err)
	}

	var defs []*ViewDefinition
	for _, yv := range yf.Views {
		root, err := convertNode(&yv.Root)
		if err != nil {
			return nil, fmt.Errorf("view '%s': %w", yv.Name, err)
		}
		defs = append(defs, &ViewDefinition{
			Name: yv.Name,
			Root: *root,
		})
	}

	return defs, nil
}

// LoadViewsFile reads YAML view declarations from disk.
func LoadViewsFile(filename string) ([]*ViewDefinition, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading views file: %w", err)
	}
	return LoadViews(data)
}

func convertNode(yn *yamlNode) (*NodeDefinition, error) {
	node := &NodeDefinition{
		Table:    yn.Table,
		Insert:   yn.Insert,
		NoInsert: yn.NoInsert,
		Update:   yn.Update,
		NoUpdate: yn.NoUpdate,
		Delete:   yn.Delete,
		NoDelete: yn.NoDelete,
	}

	for _, yf := range yn.Fields {
		node.Fields = append(node.Fields, FieldDefinition{
			Name:     yf.Name,
			Column:   yf.Column,
			Insert:   yf.Insert,
			NoInsert: yf.NoInsert,
			Update:   yf.Update,
			NoUpdate: yf.NoUpdate,
			Check:    yf.Check,
			NoCheck:  yf.NoCheck,
		})
	}

	for i := range yn.Children {
		yc := &yn.Children[i]
		childNode, err := convertNode(&yc.Node)
		if err != nil {
			return nil, err
		}

		many := false
		switch yc.Cardinality {
		case "", "one":
		case "many":
			many = true
		default:
			return nil, fmt.Errorf("child '%s' has unknown cardinality '%s'", yc.Key, yc.Cardinality)
		}

		node.Children = append(node.Children, ChildDefinition{
			Key:        yc.Key,
			Many:       many,
			Unnest:     yc.Unnest,
			ForeignKey: yc.ForeignKey,
			Node:       *childNode,
		})
	}

	return node, nil
}
