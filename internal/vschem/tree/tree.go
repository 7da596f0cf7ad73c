// Package tree is a read-only view of a decoded NBT document as a closed set
// of node kinds. Every accessor is a checked projection: a missing key or a
// node of the wrong kind is a *schemerr.SchemaError naming the node's path.
package tree

import (
	"fmt"
	"sort"
	"strconv"

	"shipscore.ai/internal/vschem/schemerr"
)

type Kind uint8

const (
	KindCompound Kind = iota + 1
	KindList
	KindString
	KindInt
	KindDouble
)

func (k Kind) String() string {
	switch k {
	case KindCompound:
		return "compound"
	case KindList:
		return "list"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindDouble:
		return "double"
	default:
		return "unknown"
	}
}

// Value is one of *Compound, *List or *Scalar.
type Value interface {
	Kind() Kind
	Path() string
	node()
}

type Compound struct {
	path    string
	keys    []string
	entries map[string]Value
}

type List struct {
	path  string
	items []Value
}

type Scalar struct {
	path string
	kind Kind
	s    string
	i    int64
	f    float64
}

func (c *Compound) Kind() Kind   { return KindCompound }
func (c *Compound) Path() string { return c.path }
func (*Compound) node()          {}

func (l *List) Kind() Kind   { return KindList }
func (l *List) Path() string { return l.path }
func (*List) node()          {}

func (s *Scalar) Kind() Kind   { return s.kind }
func (s *Scalar) Path() string { return s.path }
func (*Scalar) node()          {}

func join(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "/" + key
}

func kindError(v Value, want Kind) error {
	return schemerr.Schema(v.Path(), "expected %s, got %s", want, v.Kind())
}

// AsCompound projects v onto a compound.
func AsCompound(v Value) (*Compound, error) {
	c, ok := v.(*Compound)
	if !ok {
		return nil, kindError(v, KindCompound)
	}
	return c, nil
}

// AsList projects v onto a list.
func AsList(v Value) (*List, error) {
	l, ok := v.(*List)
	if !ok {
		return nil, kindError(v, KindList)
	}
	return l, nil
}

// AsString returns the value of a string scalar.
func AsString(v Value) (string, error) {
	s, ok := v.(*Scalar)
	if !ok || s.kind != KindString {
		return "", kindError(v, KindString)
	}
	return s.s, nil
}

// AsInt returns the value of an integer scalar of any width.
func AsInt(v Value) (int64, error) {
	s, ok := v.(*Scalar)
	if !ok || s.kind != KindInt {
		return 0, kindError(v, KindInt)
	}
	return s.i, nil
}

// AsDouble returns a floating point scalar, widening integers.
func AsDouble(v Value) (float64, error) {
	s, ok := v.(*Scalar)
	if !ok || (s.kind != KindDouble && s.kind != KindInt) {
		return 0, kindError(v, KindDouble)
	}
	if s.kind == KindInt {
		return float64(s.i), nil
	}
	return s.f, nil
}

// Stringify renders a scalar as text. Containers render as their kind name.
func Stringify(v Value) string {
	s, ok := v.(*Scalar)
	if !ok {
		return v.Kind().String()
	}
	switch s.kind {
	case KindString:
		return s.s
	case KindInt:
		return strconv.FormatInt(s.i, 10)
	default:
		return strconv.FormatFloat(s.f, 'g', -1, 64)
	}
}

func (c *Compound) Len() int { return len(c.keys) }

func (c *Compound) Has(key string) bool {
	_, ok := c.entries[key]
	return ok
}

// Keys returns a copy of the keys in document order.
func (c *Compound) Keys() []string { return append([]string(nil), c.keys...) }

// Get returns the child at key or a SchemaError if it is absent.
func (c *Compound) Get(key string) (Value, error) {
	v, ok := c.entries[key]
	if !ok {
		return nil, schemerr.Schema(join(c.path, key), "missing key")
	}
	return v, nil
}

// Lookup returns the child at key, reporting presence.
func (c *Compound) Lookup(key string) (Value, bool) {
	v, ok := c.entries[key]
	return v, ok
}

func (c *Compound) Compound(key string) (*Compound, error) {
	v, err := c.Get(key)
	if err != nil {
		return nil, err
	}
	return AsCompound(v)
}

func (c *Compound) List(key string) (*List, error) {
	v, err := c.Get(key)
	if err != nil {
		return nil, err
	}
	return AsList(v)
}

func (c *Compound) String(key string) (string, error) {
	v, err := c.Get(key)
	if err != nil {
		return "", err
	}
	return AsString(v)
}

func (c *Compound) Int(key string) (int64, error) {
	v, err := c.Get(key)
	if err != nil {
		return 0, err
	}
	return AsInt(v)
}

// Int32 reads an integer that must fit in 32 bits.
func (c *Compound) Int32(key string) (int32, error) {
	v, err := c.Int(key)
	if err != nil {
		return 0, err
	}
	if v < -1<<31 || v > 1<<31-1 {
		return 0, schemerr.Schema(join(c.path, key), "value %d overflows int32", v)
	}
	return int32(v), nil
}

func (c *Compound) Double(key string) (float64, error) {
	v, err := c.Get(key)
	if err != nil {
		return 0, err
	}
	return AsDouble(v)
}

// Each visits entries in document order, stopping at the first error.
func (c *Compound) Each(fn func(key string, v Value) error) error {
	for _, k := range c.keys {
		if err := fn(k, c.entries[k]); err != nil {
			return err
		}
	}
	return nil
}

func (l *List) Len() int { return len(l.items) }

func (l *List) At(i int) Value { return l.items[i] }

// Each visits elements in order, stopping at the first error.
func (l *List) Each(fn func(i int, v Value) error) error {
	for i, v := range l.items {
		if err := fn(i, v); err != nil {
			return err
		}
	}
	return nil
}

// EachCompound visits elements that must all be compounds.
func (l *List) EachCompound(fn func(i int, c *Compound) error) error {
	return l.Each(func(i int, v Value) error {
		c, err := AsCompound(v)
		if err != nil {
			return err
		}
		return fn(i, c)
	})
}

func (s *Scalar) GoString() string {
	return fmt.Sprintf("tree.Scalar{%s %s}", s.kind, Stringify(s))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
