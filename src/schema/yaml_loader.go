package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type yamlFile struct {
	Tables []yamlTable `yaml:"tables"`
}

type yamlTable struct {
	Name        string           `yaml:"name"`
	Columns     []yamlColumn     `yaml:"columns"`
	PrimaryKey  []string         `yaml:"primary_key"`
	ForeignKeys []yamlForeignKey `yaml:"foreign_keys"`
	Uniques     []yamlUnique     `yaml:"unique"`
}

type yamlColumn struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Required bool   `yaml:"required"`
	Unique   bool   `yaml:"unique"`
}

type yamlForeignKey struct {
	Name       string   `yaml:"name"`
	Columns    []string `yaml:"columns"`
	References string   `yaml:"references"`
	RefColumns []string `yaml:"ref_columns"`
}

type yamlUnique struct {
	Name    string   `yaml:"name"`
	Columns []string `yaml:"columns"`
}

// LoadSchema parses a YAML schema declaration into a validated Schema.
func LoadSchema(data []byte) (*Schema, error) {
	var yf yamlFile
	if err := yaml.Unmarshal(data, &yf); err != nil {
		return nil, fmt.Errorf("unmarshalling schema YAML: %w", err)
	}

	s := NewSchema()
	for _, yt := range yf.Tables {
		table := &Table{
			Name:       yt.Name,
			PrimaryKey: yt.PrimaryKey,
		}
		for _, yc := range yt.Columns {
			table.Columns = append(table.Columns, Column{
				Name:     yc.Name,
				Type:     yc.Type,
				Required: yc.Required,
				Unique:   yc.Unique,
			})
		}
		for _, yfk := range yt.ForeignKeys {
			table.ForeignKeys = append(table.ForeignKeys, ForeignKey{
				Name:       yfk.Name,
				Columns:    yfk.Columns,
				RefTable:   yfk.References,
				RefColumns: yfk.RefColumns,
			})
		}
		for _, yu := range yt.Uniques {
			table.Uniques = append(table.Uniques, UniqueConstraint{
				Name:    yu.Name,
				Columns: yu.Columns,
			})
		}

		// Single-column unique flags become named constraints
		for _, col := range table.Columns {
			if col.Unique {
				table.Uniques = append(table.Uniques, UniqueConstraint{
					Name:    fmt.Sprintf("uq_%s_%s", table.Name, col.Name),
					Columns: []string{col.Name},
				})
			}
		}

		if err := s.AddTable(table); err != nil {
			return nil, err
		}
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	return s, nil
}

// LoadSchemaFile reads a YAML schema declaration from disk.
func LoadSchemaFile(filename string) (*Schema, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading schema file: %w", err)
	}
	return LoadSchema(data)
}
