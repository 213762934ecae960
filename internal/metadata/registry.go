// Package metadata describes the entity records served by the API. The
// definitions drive search index mappings, child lookup routes and the
// /api/meta endpoints.
package metadata

import (
	"fmt"
	"sort"
)

// FieldType defines the data type of a field.
type FieldType string

const (
	TypeID        FieldType = "id"
	TypeString    FieldType = "string"
	TypeInteger   FieldType = "integer"
	TypeMoney     FieldType = "money"
	TypeDate      FieldType = "date"
	TypeDateTime  FieldType = "datetime"
	TypeReference FieldType = "reference"
)

// EntityDef describes an entity record type.
type EntityDef struct {
	Name      string     `json:"name"`
	Label     string     `json:"label,omitempty"`
	Path      string     `json:"path"`
	TableName string     `json:"-"`
	Fields    []FieldDef `json:"fields"`
	Children  []ChildDef `json:"children,omitempty"`
}

// FieldDef describes a field.
type FieldDef struct {
	Name          string    `json:"name"`
	Column        string    `json:"-"`
	Label         string    `json:"label,omitempty"`
	Type          FieldType `json:"type"`
	ReferenceType string    `json:"referenceType,omitempty"` // e.g. "purchases"
}

// ChildDef describes a one-to-many relation seen from the parent: records of
// Entity whose Column holds the parent id.
type ChildDef struct {
	Entity string `json:"entity"`
	Path   string `json:"path"`
	Field  string `json:"field"`
	Column string `json:"-"`
}

// Field returns the field named name (json name).
func (d EntityDef) Field(name string) (FieldDef, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDef{}, false
}

// Columns returns the database columns in field order.
func (d EntityDef) Columns() []string {
	cols := make([]string, 0, len(d.Fields))
	for _, f := range d.Fields {
		cols = append(cols, f.Column)
	}
	return cols
}

// References returns the reference fields.
func (d EntityDef) References() []FieldDef {
	var refs []FieldDef
	for _, f := range d.Fields {
		if f.Type == TypeReference {
			refs = append(refs, f)
		}
	}
	return refs
}

// Registry stores entity definitions. It is filled once at startup and read
// concurrently afterwards.
type Registry struct {
	entities map[string]EntityDef
}

func NewRegistry() *Registry {
	return &Registry{
		entities: make(map[string]EntityDef),
	}
}

// Register adds def, replacing a previous definition with the same name.
// Children of every registered entity are recomputed.
func (r *Registry) Register(def EntityDef) {
	r.entities[def.Name] = def
	r.linkChildren()
}

func (r *Registry) Get(name string) (EntityDef, bool) {
	d, ok := r.entities[name]
	return d, ok
}

// MustGet panics on unknown names; used while wiring.
func (r *Registry) MustGet(name string) EntityDef {
	d, ok := r.entities[name]
	if !ok {
		panic(fmt.Sprintf("metadata: entity %q not registered", name))
	}
	return d
}

// List returns all definitions ordered by name.
func (r *Registry) List() []EntityDef {
	list := make([]EntityDef, 0, len(r.entities))
	for _, def := range r.entities {
		list = append(list, def)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// ChildrenOf returns the relations in which other entities reference name.
func (r *Registry) ChildrenOf(name string) []ChildDef {
	return r.entities[name].Children
}

// Names returns the registered entity names ordered.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entities))
	for name := range r.entities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) linkChildren() {
	children := make(map[string][]ChildDef, len(r.entities))
	for _, def := range r.entities {
		for _, ref := range def.References() {
			children[ref.ReferenceType] = append(children[ref.ReferenceType], ChildDef{
				Entity: def.Name,
				Path:   def.Path,
				Field:  ref.Name,
				Column: ref.Column,
			})
		}
	}
	for name, def := range r.entities {
		kids := children[name]
		sort.Slice(kids, func(i, j int) bool {
			if kids[i].Entity == kids[j].Entity {
				return kids[i].Field < kids[j].Field
			}
			return kids[i].Entity < kids[j].Entity
		})
		def.Children = kids
		r.entities[name] = def
	}
}
