// Package semantic implements the schema registry: typed descriptions of
// tables, columns, relationships and derived views, plus resolution of a
// query's referenced entities against them. The registry is the only
// component allowed to mint schema versions; everything downstream (cache
// fingerprints, stored artifacts) keys off those versions.
package semantic

import (
	"fmt"
	"strings"

	"tabletalk/pkg/frame"
)

// Column describes one column of a table or view.
type Column struct {
	Name        string     `yaml:"name"`
	Type        frame.Kind `yaml:"-"`
	TypeName    string     `yaml:"type"`
	Nullable    bool       `yaml:"nullable"`
	Description string     `yaml:"description,omitempty"`
}

// Table is a named, ordered set of columns.
type Table struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Columns     []Column `yaml:"columns"`
}

// Column returns the named column, or nil.
func (t *Table) Column(name string) *Column {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// Cardinality of a relationship edge.
type Cardinality string

const (
	OneToOne   Cardinality = "one_to_one"
	OneToMany  Cardinality = "one_to_many"
	ManyToMany Cardinality = "many_to_many"
)

// ColumnRef is a table-qualified column, written "table.column" in schema
// files.
type ColumnRef struct {
	Table  string
	Column string
}

func (r ColumnRef) String() string { return r.Table + "." + r.Column }

// ParseColumnRef parses "table.column".
func ParseColumnRef(s string) (ColumnRef, error) {
	parts := strings.SplitN(s, ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return ColumnRef{}, fmt.Errorf("semantic: column reference %q must be table.column", s)
	}
	return ColumnRef{Table: parts[0], Column: parts[1]}, nil
}

// Relationship is a directed join edge between two tables (or views).
type Relationship struct {
	Source      ColumnRef
	Target      ColumnRef
	Cardinality Cardinality
}

// ViewDef is the input to RegisterView: a derived table composed from base
// tables and/or other views.
type ViewDef struct {
	Name        string
	Description string
	Bases       []string // referenced tables or views
	Columns     []Column
	Expression  string // transformation expression, opaque to the registry
}

// View is a registered derived table.
type View struct {
	Name        string
	Description string
	Bases       []string
	Columns     []Column
	Expression  string
}

// Schema is one immutable snapshot of the semantic layer. Mutations go
// through the Registry, which builds a new Schema and swaps it in.
type Schema struct {
	Name          string
	Version       uint64
	Tables        map[string]*Table
	Views         map[string]*View
	Relationships []Relationship
}

// Table returns the named base table, or nil.
func (s *Schema) Table(name string) *Table { return s.Tables[name] }

// View returns the named view, or nil.
func (s *Schema) View(name string) *View { return s.Views[name] }

// EntityColumns returns the columns of the named table or view.
func (s *Schema) EntityColumns(name string) ([]Column, bool) {
	if t := s.Tables[name]; t != nil {
		return t.Columns, true
	}
	if v := s.Views[name]; v != nil {
		return v.Columns, true
	}
	return nil, false
}

// ResolvedContext is the minimal slice of the schema relevant to one query:
// the entities the query mentions plus the relationships connecting them.
type ResolvedContext struct {
	SchemaName    string
	SchemaVersion uint64
	Tables        []*Table
	Views         []*View
	Relationships []Relationship
}

// TableNames lists resolved table and view names in resolution order.
func (rc *ResolvedContext) TableNames() []string {
	names := make([]string, 0, len(rc.Tables)+len(rc.Views))
	for _, t := range rc.Tables {
		names = append(names, t.Name)
	}
	for _, v := range rc.Views {
		names = append(names, v.Name)
	}
	return names
}

// QueryContext carries one natural-language query plus optional explicit
// entity bindings and conversation history for follow-up disambiguation.
type QueryContext struct {
	Query    string
	Entities []string // explicit table/view names; resolved in addition to names mined from the query text
	History  []Turn
}

// Turn is one prior query/answer pair in a conversation.
type Turn struct {
	Query  string
	Answer string
}

// typesCompatible reports whether two semantic types can serve as a join key
// pair. Numeric kinds are mutually compatible, as are string and categorical.
func typesCompatible(a, b frame.Kind) bool {
	norm := func(k frame.Kind) frame.Kind {
		switch k {
		case frame.Categorical:
			return frame.String
		case frame.Float:
			return frame.Int
		default:
			return k
		}
	}
	return norm(a) == norm(b)
}
