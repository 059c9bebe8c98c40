package abi

import (
	"fmt"
	"strings"

	"github.com/greymass/roborovski/libraries/encoding"
)

const VersionPrefix = "eosio::abi/1."

type abiDocument struct {
	Version string `json:"version"`
	Types   []struct {
		NewTypeName string `json:"new_type_name"`
		Type        string `json:"type"`
	} `json:"types"`
	Structs []struct {
		Name   string `json:"name"`
		Base   string `json:"base"`
		Fields []struct {
			Name string `json:"name"`
			Type string `json:"type"`
		} `json:"fields"`
	} `json:"structs"`
	Variants []struct {
		Name  string   `json:"name"`
		Types []string `json:"types"`
	} `json:"variants"`
	Tables []struct {
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"tables"`
}

type structDef struct {
	base   string
	fields []fieldDef
}

type fieldDef struct {
	name, typ string
}

// Registry holds the definitions of one ABI document and resolves type
// names to descriptors on demand. A Registry is not safe for concurrent
// use.
type Registry struct {
	Version string

	aliases  map[string]string
	structs  map[string]*structDef
	variants map[string][]string
	tables   map[string]string

	resolved  map[string]*Type
	resolving map[string]bool
	// compressed marks struct fields by struct name
	compressed map[string]map[string]bool
}

// Load parses an ABI JSON document. The version is checked before anything
// else so that no type is resolved against an unsupported document.
func Load(document []byte) (*Registry, error) {
	var doc abiDocument
	if err := encoding.JSONiter.Unmarshal(document, &doc); err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}
	if !strings.HasPrefix(doc.Version, VersionPrefix) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedVersion, doc.Version)
	}

	r := &Registry{
		Version:    doc.Version,
		aliases:    make(map[string]string, len(doc.Types)),
		structs:    make(map[string]*structDef, len(doc.Structs)),
		variants:   make(map[string][]string, len(doc.Variants)),
		tables:     make(map[string]string, len(doc.Tables)),
		resolved:   make(map[string]*Type),
		resolving:  make(map[string]bool),
		compressed: make(map[string]map[string]bool),
	}

	for _, t := range doc.Types {
		if err := r.define(t.NewTypeName); err != nil {
			return nil, err
		}
		r.aliases[t.NewTypeName] = t.Type
	}
	for _, s := range doc.Structs {
		if err := r.define(s.Name); err != nil {
			return nil, err
		}
		def := &structDef{base: s.Base}
		for _, f := range s.Fields {
			def.fields = append(def.fields, fieldDef{name: f.Name, typ: f.Type})
		}
		r.structs[s.Name] = def
	}
	for _, v := range doc.Variants {
		if err := r.define(v.Name); err != nil {
			return nil, err
		}
		r.variants[v.Name] = v.Types
	}
	for _, t := range doc.Tables {
		r.tables[t.Name] = t.Type
	}
	return r, nil
}

func (r *Registry) define(name string) error {
	if name == "" {
		return fmt.Errorf("abi: empty type name")
	}
	if _, ok := builtins[name]; ok {
		return fmt.Errorf("abi: %q redefines a builtin type", name)
	}
	_, isAlias := r.aliases[name]
	_, isStruct := r.structs[name]
	_, isVariant := r.variants[name]
	if isAlias || isStruct || isVariant {
		return fmt.Errorf("abi: duplicate definition of %q", name)
	}
	return nil
}

// TableType returns the row type name declared for a table, falling back to
// the table name itself.
func (r *Registry) TableType(table string) string {
	if t, ok := r.tables[table]; ok && t != "" {
		return t
	}
	return table
}

// MarkCompressed flags bytes fields of a struct as zlib-compressed. It must
// be called before the struct is first resolved.
func (r *Registry) MarkCompressed(structName string, fields ...string) error {
	def, ok := r.structs[structName]
	if !ok {
		return &UnknownTypeError{Name: structName}
	}
	if _, done := r.resolved[structName]; done {
		return fmt.Errorf("abi: %s already resolved", structName)
	}
	set := r.compressed[structName]
	if set == nil {
		set = make(map[string]bool)
		r.compressed[structName] = set
	}
	for _, name := range fields {
		found := false
		for _, f := range def.fields {
			if f.name == name {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("abi: %s has no field %q", structName, name)
		}
		set[name] = true
	}
	return nil
}

func (r *Registry) Resolve(name string) (*Type, error) {
	if t, ok := r.resolved[name]; ok {
		return t, nil
	}

	switch {
	case strings.HasSuffix(name, "[]"):
		return r.resolveWrapper(name, strings.TrimSuffix(name, "[]"), KindArray)
	case strings.HasSuffix(name, "?"):
		return r.resolveWrapper(name, strings.TrimSuffix(name, "?"), KindOptional)
	case strings.HasSuffix(name, "$"):
		return r.resolveWrapper(name, strings.TrimSuffix(name, "$"), KindExtension)
	}

	if b, ok := builtins[name]; ok {
		t := &Type{Name: name, Kind: KindBuiltin, builtin: b}
		r.resolved[name] = t
		return t, nil
	}
	if target, ok := r.aliases[name]; ok {
		if r.resolving[name] {
			return nil, fmt.Errorf("%w: %s", ErrTypeCycle, name)
		}
		r.resolving[name] = true
		defer delete(r.resolving, name)
		t, err := r.Resolve(target)
		if err != nil {
			return nil, err
		}
		r.resolved[name] = t
		return t, nil
	}
	if def, ok := r.structs[name]; ok {
		return r.resolveStruct(name, def)
	}
	if alts, ok := r.variants[name]; ok {
		return r.resolveVariant(name, alts)
	}
	if def, ok := builtinStructs[name]; ok {
		return r.resolveStruct(name, def)
	}
	return nil, &UnknownTypeError{Name: name}
}

func (r *Registry) resolveWrapper(name, elemName string, kind Kind) (*Type, error) {
	t := &Type{Name: name, Kind: kind}
	r.resolved[name] = t
	elem, err := r.Resolve(elemName)
	if err != nil {
		delete(r.resolved, name)
		return nil, err
	}
	t.Elem = elem
	return t, nil
}

// resolveStruct registers the descriptor before its fields so that a struct
// may refer to itself through an array or optional.
func (r *Registry) resolveStruct(name string, def *structDef) (*Type, error) {
	if r.containsInline(def, name, make(map[string]bool)) {
		return nil, fmt.Errorf("%w: %s contains itself", ErrTypeCycle, name)
	}
	t := &Type{Name: name, Kind: KindStruct}
	r.resolved[name] = t

	fail := func(err error) (*Type, error) {
		delete(r.resolved, name)
		return nil, err
	}

	if def.base != "" {
		base, err := r.Resolve(def.base)
		if err != nil {
			return fail(err)
		}
		if base.Kind != KindStruct {
			return fail(fmt.Errorf("abi: base %s of %s is not a struct", def.base, name))
		}
		t.Fields = append(t.Fields, base.Fields...)
	}

	marked := r.compressed[name]
	for _, fd := range def.fields {
		ft, err := r.Resolve(fd.typ)
		if err != nil {
			return fail(err)
		}
		f := Field{Name: fd.name, Type: ft, compressed: marked[fd.name]}
		if f.compressed && !isBytesLike(ft) {
			return fail(fmt.Errorf("abi: compressed field %s.%s must be bytes", name, fd.name))
		}
		t.Fields = append(t.Fields, f)
	}
	return t, nil
}

// containsInline reports whether def reaches the struct target through base
// and field types that are stored inline. Arrays, optionals and variants
// always consume bytes and break the chain; binary extensions do not.
func (r *Registry) containsInline(def *structDef, target string, seen map[string]bool) bool {
	if def.base != "" && r.reachesInline(def.base, target, seen) {
		return true
	}
	for _, f := range def.fields {
		if r.reachesInline(f.typ, target, seen) {
			return true
		}
	}
	return false
}

func (r *Registry) reachesInline(typ, target string, seen map[string]bool) bool {
	typ = strings.TrimSuffix(typ, "$")
	if strings.HasSuffix(typ, "[]") || strings.HasSuffix(typ, "?") {
		return false
	}
	if typ == target {
		return true
	}
	if seen[typ] {
		return false
	}
	seen[typ] = true
	if alias, ok := r.aliases[typ]; ok {
		return r.reachesInline(alias, target, seen)
	}
	def, ok := r.structs[typ]
	if !ok {
		def, ok = builtinStructs[typ]
	}
	return ok && r.containsInline(def, target, seen)
}

func (r *Registry) resolveVariant(name string, alts []string) (*Type, error) {
	t := &Type{Name: name, Kind: KindVariant}
	r.resolved[name] = t
	for _, alt := range alts {
		at, err := r.Resolve(alt)
		if err != nil {
			delete(r.resolved, name)
			return nil, err
		}
		t.Alternatives = append(t.Alternatives, Alternative{Name: alt, Type: at})
	}
	return t, nil
}

func isBytesLike(t *Type) bool {
	for t.Kind == KindOptional || t.Kind == KindExtension {
		t = t.Elem
	}
	return t.Kind == KindBuiltin && t.Name == "bytes"
}

// MustResolve resolves a type known to exist in an embedded document.
func (r *Registry) MustResolve(name string) *Type {
	t, err := r.Resolve(name)
	if err != nil {
		panic(err)
	}
	return t
}
