package semantic

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"tabletalk/pkg/frame"
)

// schemaFile mirrors the on-disk YAML layout. One file per schema; a
// directory of files merges into a single registry snapshot.
type schemaFile struct {
	Name   string  `yaml:"name"`
	Tables []Table `yaml:"tables"`
	Views  []struct {
		Name        string   `yaml:"name"`
		Description string   `yaml:"description,omitempty"`
		Bases       []string `yaml:"bases"`
		Columns     []Column `yaml:"columns,omitempty"`
		Expression  string   `yaml:"expression,omitempty"`
	} `yaml:"views,omitempty"`
	Relationships []struct {
		Source      string `yaml:"source"`
		Target      string `yaml:"target"`
		Cardinality string `yaml:"cardinality,omitempty"`
	} `yaml:"relationships,omitempty"`
}

// ParseSchema parses one schema YAML document.
func ParseSchema(data []byte) (*Schema, error) {
	var sf schemaFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("semantic: parse schema: %w", err)
	}

	s := &Schema{
		Name:   sf.Name,
		Tables: make(map[string]*Table, len(sf.Tables)),
		Views:  make(map[string]*View, len(sf.Views)),
	}
	for i := range sf.Tables {
		t := sf.Tables[i]
		if _, dup := s.Tables[t.Name]; dup {
			return nil, fmt.Errorf("semantic: duplicate table %q", t.Name)
		}
		if err := resolveColumnTypes(t.Columns); err != nil {
			return nil, fmt.Errorf("semantic: table %q: %w", t.Name, err)
		}
		s.Tables[t.Name] = &sf.Tables[i]
	}
	for _, v := range sf.Views {
		if err := resolveColumnTypes(v.Columns); err != nil {
			return nil, fmt.Errorf("semantic: view %q: %w", v.Name, err)
		}
		s.Views[v.Name] = &View{
			Name:        v.Name,
			Description: v.Description,
			Bases:       v.Bases,
			Columns:     v.Columns,
			Expression:  v.Expression,
		}
	}
	for _, rel := range sf.Relationships {
		src, err := ParseColumnRef(rel.Source)
		if err != nil {
			return nil, err
		}
		dst, err := ParseColumnRef(rel.Target)
		if err != nil {
			return nil, err
		}
		card := Cardinality(rel.Cardinality)
		if card == "" {
			card = OneToMany
		}
		switch card {
		case OneToOne, OneToMany, ManyToMany:
		default:
			return nil, fmt.Errorf("semantic: unknown cardinality %q", rel.Cardinality)
		}
		s.Relationships = append(s.Relationships, Relationship{Source: src, Target: dst, Cardinality: card})
	}
	return s, nil
}

func resolveColumnTypes(cols []Column) error {
	for i := range cols {
		if cols[i].TypeName == "" {
			cols[i].TypeName = "string"
		}
		k, err := frame.KindFromString(cols[i].TypeName)
		if err != nil {
			return fmt.Errorf("column %q: %w", cols[i].Name, err)
		}
		cols[i].Type = k
	}
	return nil
}

// LoadDir reads every *.yaml/*.yml file in dir and merges them into one
// schema, then installs it in the registry (bumping the version).
func (r *Registry) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("semantic: read schema dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	if len(files) == 0 {
		return fmt.Errorf("semantic: no schema files in %s", dir)
	}

	merged := &Schema{Tables: map[string]*Table{}, Views: map[string]*View{}}
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("semantic: read %s: %w", path, err)
		}
		s, err := ParseSchema(data)
		if err != nil {
			return fmt.Errorf("semantic: %s: %w", path, err)
		}
		if merged.Name == "" {
			merged.Name = s.Name
		}
		for k, v := range s.Tables {
			if _, dup := merged.Tables[k]; dup {
				return fmt.Errorf("semantic: table %q defined in more than one schema file", k)
			}
			merged.Tables[k] = v
		}
		for k, v := range s.Views {
			if _, dup := merged.Views[k]; dup {
				return fmt.Errorf("semantic: view %q defined in more than one schema file", k)
			}
			merged.Views[k] = v
		}
		merged.Relationships = append(merged.Relationships, s.Relationships...)
	}
	return r.Replace(merged)
}
