package tree

import (
	"fmt"
	"io"
	"reflect"

	"github.com/Tnze/go-mc/nbt"

	"shipscore.ai/internal/vschem/schemerr"
)

// Decode reads one uncompressed NBT document and returns its root compound.
// Compound entries keep their order in the document.
func Decode(r io.Reader) (*Compound, error) {
	var root node
	if _, err := nbt.NewDecoder(r).Decode(&root); err != nil {
		return nil, schemerr.Formatf("nbt", err, "bad tag stream")
	}
	v, err := root.value("")
	if err != nil {
		return nil, err
	}
	return AsCompound(v)
}

// node is one decoded tag. Compounds and lists are walked here so entry
// order survives; every other tag is decoded by go-mc into a Go value.
type node struct {
	tag  byte
	keys []string
	kids []*node
	raw  any
}

func (n *node) UnmarshalNBT(tagType byte, r nbt.DecoderReader) error {
	n.tag = tagType
	switch tagType {
	case nbt.TagCompound:
		for {
			t, err := r.ReadByte()
			if err != nil {
				return err
			}
			if t == nbt.TagEnd {
				return nil
			}
			var name string
			if err := readTag(r, nbt.TagString, &name); err != nil {
				return err
			}
			child := new(node)
			if err := child.UnmarshalNBT(t, r); err != nil {
				return fmt.Errorf("tag %q: %w", name, err)
			}
			n.keys = append(n.keys, name)
			n.kids = append(n.kids, child)
		}
	case nbt.TagList:
		elem, err := r.ReadByte()
		if err != nil {
			return err
		}
		var length int32
		if err := readTag(r, nbt.TagInt, &length); err != nil {
			return err
		}
		if length < 0 {
			return fmt.Errorf("list length %d less than 0", length)
		}
		n.kids = make([]*node, 0, min(int(length), 1024))
		for i := int32(0); i < length; i++ {
			child := new(node)
			if err := child.UnmarshalNBT(elem, r); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
			n.kids = append(n.kids, child)
		}
		return nil
	default:
		return readTag(r, tagType, &n.raw)
	}
}

// readTag decodes one tag payload of the given type into v.
func readTag(r nbt.DecoderReader, tagType byte, v any) error {
	var m nbt.RawMessage
	if err := m.UnmarshalNBT(tagType, r); err != nil {
		return err
	}
	return m.Unmarshal(v)
}

func (n *node) value(path string) (Value, error) {
	switch n.tag {
	case nbt.TagCompound:
		c := &Compound{path: path, keys: make([]string, 0, len(n.keys)), entries: make(map[string]Value, len(n.keys))}
		for i, k := range n.keys {
			v, err := n.kids[i].value(join(path, k))
			if err != nil {
				return nil, err
			}
			// A repeated name keeps its first position and the last value.
			if _, dup := c.entries[k]; !dup {
				c.keys = append(c.keys, k)
			}
			c.entries[k] = v
		}
		return c, nil
	case nbt.TagList:
		l := &List{path: path, items: make([]Value, len(n.kids))}
		for i, kid := range n.kids {
			v, err := kid.value(join(path, fmt.Sprintf("[%d]", i)))
			if err != nil {
				return nil, err
			}
			l.items[i] = v
		}
		return l, nil
	}
	return convert(path, n.raw)
}

// FromAny converts generic Go values (maps, slices, numbers, strings) into a
// tree rooted at path "". Go maps carry no order, so compound keys are sorted.
func FromAny(raw any) (Value, error) {
	return convert("", raw)
}

func convert(path string, raw any) (Value, error) {
	switch x := raw.(type) {
	case map[string]any:
		c := &Compound{path: path, keys: sortedKeys(x), entries: make(map[string]Value, len(x))}
		for _, k := range c.keys {
			v, err := convert(join(path, k), x[k])
			if err != nil {
				return nil, err
			}
			c.entries[k] = v
		}
		return c, nil
	case []any:
		l := &List{path: path, items: make([]Value, len(x))}
		for i, e := range x {
			v, err := convert(join(path, fmt.Sprintf("[%d]", i)), e)
			if err != nil {
				return nil, err
			}
			l.items[i] = v
		}
		return l, nil
	case string:
		return &Scalar{path: path, kind: KindString, s: x}, nil
	case bool:
		var i int64
		if x {
			i = 1
		}
		return &Scalar{path: path, kind: KindInt, i: i}, nil
	case int8:
		return intScalar(path, int64(x)), nil
	case int16:
		return intScalar(path, int64(x)), nil
	case int32:
		return intScalar(path, int64(x)), nil
	case int64:
		return intScalar(path, x), nil
	case int:
		return intScalar(path, int64(x)), nil
	case uint8:
		return intScalar(path, int64(x)), nil
	case float32:
		return &Scalar{path: path, kind: KindDouble, f: float64(x)}, nil
	case float64:
		return &Scalar{path: path, kind: KindDouble, f: x}, nil
	case nil:
		return &List{path: path}, nil
	}
	return convertReflect(path, reflect.ValueOf(raw))
}

// convertReflect handles typed containers such as []int32 (int arrays) or
// []map[string]any.
func convertReflect(path string, rv reflect.Value) (Value, error) {
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		l := &List{path: path, items: make([]Value, rv.Len())}
		for i := 0; i < rv.Len(); i++ {
			v, err := convert(join(path, fmt.Sprintf("[%d]", i)), rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			l.items[i] = v
		}
		return l, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return convert(path, m)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return intScalar(path, rv.Int()), nil
	case reflect.Float32, reflect.Float64:
		return &Scalar{path: path, kind: KindDouble, f: rv.Float()}, nil
	case reflect.String:
		return &Scalar{path: path, kind: KindString, s: rv.String()}, nil
	}
	return nil, schemerr.Schema(path, "unsupported tag value %T", rv.Interface())
}

func intScalar(path string, v int64) *Scalar {
	return &Scalar{path: path, kind: KindInt, i: v}
}
