package semantic

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Registry owns the current schema snapshot. Reads (Resolve, Current) are
// lock-free against an atomically swapped immutable *Schema; structural
// mutations are serialized by a mutex, build a fresh snapshot, bump the
// version counter and swap. A reader therefore never observes a
// half-applied edit.
type Registry struct {
	mu      sync.Mutex // serializes mutations and subscriber updates
	current atomic.Pointer[Schema]
	version atomic.Uint64 // monotonic across schema replacements

	subs   []func(version uint64)
	logger *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{logger: logger}
	r.current.Store(&Schema{
		Name:   "empty",
		Tables: map[string]*Table{},
		Views:  map[string]*View{},
	})
	return r
}

// Current returns the live snapshot. The returned Schema must be treated as
// immutable.
func (r *Registry) Current() *Schema {
	return r.current.Load()
}

// Version returns the current schema version.
func (r *Registry) Version() uint64 {
	return r.Current().Version
}

// Subscribe registers a callback invoked (under the registry mutex) after
// every structural change. The cache uses this to invalidate stale entries.
func (r *Registry) Subscribe(fn func(version uint64)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = append(r.subs, fn)
}

// Replace installs a whole new schema, as when (re)loading from disk.
// The version still moves strictly forward.
func (r *Registry) Replace(s *Schema) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := validateSchema(s); err != nil {
		return err
	}
	r.swap(s)
	return nil
}

// swap publishes the snapshot with a fresh version. Caller holds r.mu.
func (r *Registry) swap(s *Schema) {
	s.Version = r.version.Add(1)
	r.current.Store(s)
	r.logger.Debug("schema swapped",
		zap.String("schema", s.Name),
		zap.Uint64("version", s.Version),
		zap.Int("tables", len(s.Tables)),
		zap.Int("views", len(s.Views)))
	for _, fn := range r.subs {
		fn(s.Version)
	}
}

// clone shallow-copies the snapshot maps so the mutation can build a new
// schema without touching the published one.
func (r *Registry) clone() *Schema {
	cur := r.Current()
	next := &Schema{
		Name:          cur.Name,
		Tables:        make(map[string]*Table, len(cur.Tables)),
		Views:         make(map[string]*View, len(cur.Views)),
		Relationships: append([]Relationship(nil), cur.Relationships...),
	}
	for k, v := range cur.Tables {
		next.Tables[k] = v
	}
	for k, v := range cur.Views {
		next.Views[k] = v
	}
	return next
}

// RegisterView adds or replaces a view. Fails with a wrapped ErrCyclicView
// when the derivation graph would become cyclic, with a ResolutionError when
// a base is unknown, and bumps the schema version on success.
func (r *Registry) RegisterView(def ViewDef) (*View, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.clone()
	if def.Name == "" {
		return nil, fmt.Errorf("semantic: view name required")
	}
	if _, isTable := next.Tables[def.Name]; isTable {
		return nil, fmt.Errorf("semantic: %q already names a base table", def.Name)
	}
	for _, base := range def.Bases {
		if _, ok := next.EntityColumns(base); !ok && base != def.Name {
			return nil, &ResolutionError{Name: base, Reason: "unknown base"}
		}
	}

	view := &View{
		Name:        def.Name,
		Description: def.Description,
		Bases:       append([]string(nil), def.Bases...),
		Columns:     append([]Column(nil), def.Columns...),
		Expression:  def.Expression,
	}
	next.Views[view.Name] = view

	if path, cyclic := findViewCycle(next, view.Name); cyclic {
		return nil, cycleError(path)
	}

	r.swap(next)
	return view, nil
}

// RemoveView drops a view and bumps the version. Views derived from it make
// the removal fail.
func (r *Registry) RemoveView(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.clone()
	if _, ok := next.Views[name]; !ok {
		return &ResolutionError{Name: name, Reason: "unknown view"}
	}
	for _, v := range next.Views {
		if v.Name == name {
			continue
		}
		for _, base := range v.Bases {
			if base == name {
				return fmt.Errorf("semantic: view %q is still derived from %q", v.Name, name)
			}
		}
	}
	delete(next.Views, name)
	r.swap(next)
	return nil
}

// AddRelationship validates both endpoints and their type compatibility,
// then bumps the version.
func (r *Registry) AddRelationship(rel Relationship) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.clone()
	src, err := lookupColumn(next, rel.Source)
	if err != nil {
		return err
	}
	dst, err := lookupColumn(next, rel.Target)
	if err != nil {
		return err
	}
	if !typesCompatible(src.Type, dst.Type) {
		return &TypeMismatchError{
			Source:     rel.Source,
			Target:     rel.Target,
			SourceType: src.Type.String(),
			TargetType: dst.Type.String(),
		}
	}
	next.Relationships = append(next.Relationships, rel)
	r.swap(next)
	return nil
}

func lookupColumn(s *Schema, ref ColumnRef) (*Column, error) {
	cols, ok := s.EntityColumns(ref.Table)
	if !ok {
		return nil, &ResolutionError{Name: ref.Table, Reason: "unknown table"}
	}
	for i := range cols {
		if cols[i].Name == ref.Column {
			return &cols[i], nil
		}
	}
	return nil, &ResolutionError{Name: ref.String(), Reason: "unknown column"}
}

// findViewCycle runs a DFS over the view derivation graph starting at root.
func findViewCycle(s *Schema, root string) ([]string, bool) {
	var path []string
	onPath := make(map[string]bool)
	done := make(map[string]bool)

	var visit func(name string) bool
	visit = func(name string) bool {
		if done[name] {
			return false
		}
		if onPath[name] {
			path = append(path, name)
			return true
		}
		v, ok := s.Views[name]
		if !ok {
			return false // base table, terminal
		}
		onPath[name] = true
		path = append(path, name)
		for _, base := range v.Bases {
			if visit(base) {
				return true
			}
		}
		onPath[name] = false
		path = path[:len(path)-1]
		done[name] = true
		return false
	}
	if visit(root) {
		return path, true
	}
	return nil, false
}

var wordPattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// Resolve returns the minimal subset of the current schema relevant to the
// query: explicitly bound entities plus any table or view whose name appears
// in the query text, and the relationships connecting them. A query that
// names nothing resolves to every base table, since there is nothing to
// narrow by.
func (r *Registry) Resolve(q QueryContext) (*ResolvedContext, error) {
	s := r.Current()

	// Case-insensitive name index. A collision (two entities whose names
	// differ only by case) makes the folded name ambiguous.
	byFolded := make(map[string][]string)
	for name := range s.Tables {
		f := strings.ToLower(name)
		byFolded[f] = append(byFolded[f], name)
	}
	for name := range s.Views {
		f := strings.ToLower(name)
		byFolded[f] = append(byFolded[f], name)
	}

	picked := make(map[string]bool)
	pick := func(ref string, explicit bool) error {
		matches := byFolded[strings.ToLower(ref)]
		switch len(matches) {
		case 0:
			if explicit {
				return &ResolutionError{Name: ref, Reason: "unknown"}
			}
			return nil
		case 1:
			picked[matches[0]] = true
			return nil
		default:
			// Exact spelling disambiguates.
			for _, m := range matches {
				if m == ref {
					picked[m] = true
					return nil
				}
			}
			return &ResolutionError{
				Name:   ref,
				Reason: fmt.Sprintf("ambiguous (matches %s)", strings.Join(matches, ", ")),
			}
		}
	}

	for _, e := range q.Entities {
		if err := pick(e, true); err != nil {
			return nil, err
		}
	}
	for _, tok := range wordPattern.FindAllString(q.Query, -1) {
		if err := pick(tok, false); err != nil {
			return nil, err
		}
	}

	if len(picked) == 0 {
		for name := range s.Tables {
			picked[name] = true
		}
	}

	rc := &ResolvedContext{SchemaName: s.Name, SchemaVersion: s.Version}
	for _, t := range orderedTables(s) {
		if picked[t.Name] {
			rc.Tables = append(rc.Tables, t)
		}
	}
	for _, v := range orderedViews(s) {
		if picked[v.Name] {
			rc.Views = append(rc.Views, v)
			// A view drags its bases in so execution can bind them.
			for _, base := range v.Bases {
				if t := s.Tables[base]; t != nil && !picked[base] {
					picked[base] = true
					rc.Tables = append(rc.Tables, t)
				}
			}
		}
	}
	for _, rel := range s.Relationships {
		if picked[rel.Source.Table] && picked[rel.Target.Table] {
			rc.Relationships = append(rc.Relationships, rel)
		}
	}
	return rc, nil
}

func validateSchema(s *Schema) error {
	if s.Tables == nil {
		s.Tables = map[string]*Table{}
	}
	if s.Views == nil {
		s.Views = map[string]*View{}
	}
	for name, t := range s.Tables {
		seen := make(map[string]bool, len(t.Columns))
		for _, c := range t.Columns {
			if seen[c.Name] {
				return fmt.Errorf("semantic: table %q: duplicate column %q", name, c.Name)
			}
			seen[c.Name] = true
		}
		if _, dup := s.Views[name]; dup {
			return fmt.Errorf("semantic: %q is both a table and a view", name)
		}
	}
	for name := range s.Views {
		if path, cyclic := findViewCycle(s, name); cyclic {
			return cycleError(path)
		}
	}
	for _, rel := range s.Relationships {
		src, err := lookupColumn(s, rel.Source)
		if err != nil {
			return err
		}
		dst, err := lookupColumn(s, rel.Target)
		if err != nil {
			return err
		}
		if !typesCompatible(src.Type, dst.Type) {
			return &TypeMismatchError{
				Source:     rel.Source,
				Target:     rel.Target,
				SourceType: src.Type.String(),
				TargetType: dst.Type.String(),
			}
		}
	}
	return nil
}

func orderedTables(s *Schema) []*Table {
	names := make([]string, 0, len(s.Tables))
	for n := range s.Tables {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]*Table, len(names))
	for i, n := range names {
		out[i] = s.Tables[n]
	}
	return out
}

func orderedViews(s *Schema) []*View {
	names := make([]string, 0, len(s.Views))
	for n := range s.Views {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]*View, len(names))
	for i, n := range names {
		out[i] = s.Views[n]
	}
	return out
}
