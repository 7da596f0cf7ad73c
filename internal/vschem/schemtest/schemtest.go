// Package schemtest builds ship schematic containers for tests.
package schemtest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"testing"

	"github.com/klauspost/compress/gzip"

	"shipscore.ai/internal/vschem/framing"
)

// Doc is a schematic document under construction. Entities stays nil (and the
// entityData key absent) until Entity is called.
type Doc struct {
	Palette   []any
	Grids     map[string]any
	ExtraData []any
	Entities  map[string]any
	Header    framing.Header
}

func NewDoc() *Doc {
	return &Doc{
		Grids:  map[string]any{},
		Header: framing.Header{Format: "vschem", Version: "1.0.0"},
	}
}

// StateTag is the {Name, Properties} compound used for palettes and materials.
func StateTag(name string, props map[string]string) map[string]any {
	tag := map[string]any{"Name": name}
	if len(props) > 0 {
		p := map[string]any{}
		for k, v := range props {
			p[k] = v
		}
		tag["Properties"] = p
	}
	return tag
}

// State appends a palette entry and returns its index.
func (d *Doc) State(name string, props map[string]string) int32 {
	d.Palette = append(d.Palette, StateTag(name, props))
	return int32(len(d.Palette) - 1)
}

// Extra appends an auxiliary record and returns its index.
func (d *Doc) Extra(rec map[string]any) int32 {
	d.ExtraData = append(d.ExtraData, rec)
	return int32(len(d.ExtraData) - 1)
}

func (d *Doc) Block(grid string, x, y, z, pid, edi int32) {
	blocks, _ := d.Grids[grid].([]any)
	d.Grids[grid] = append(blocks, map[string]any{"x": x, "y": y, "z": z, "pid": pid, "edi": edi})
}

// Grid registers an empty grid.
func (d *Doc) Grid(id string) {
	if _, ok := d.Grids[id]; !ok {
		d.Grids[id] = []any{}
	}
}

func (d *Doc) Entity(group string, pos [3]float64, tag map[string]any) {
	if d.Entities == nil {
		d.Entities = map[string]any{}
	}
	list, _ := d.Entities[group].([]any)
	d.Entities[group] = append(list, map[string]any{
		"posx": pos[0], "posy": pos[1], "posz": pos[2],
		"entity": tag,
	})
}

// ContraptionTag builds an entity tag carrying a contraption. Blocks are
// {State: int32, Data?: compound}.
func ContraptionTag(palette []map[string]any, blocks []map[string]any) map[string]any {
	pal := make([]any, len(palette))
	for i, p := range palette {
		pal[i] = p
	}
	bl := make([]any, len(blocks))
	for i, b := range blocks {
		bl[i] = b
	}
	return map[string]any{
		"id": "create:contraption",
		"Contraption": map[string]any{
			"Blocks": map[string]any{"Palette": pal, "BlockList": bl},
		},
	}
}

func (d *Doc) Map() map[string]any {
	m := map[string]any{
		"blockPalette":   orEmpty(d.Palette),
		"gridData":       d.Grids,
		"extraBlockData": orEmpty(d.ExtraData),
	}
	if d.Entities != nil {
		m["entityData"] = d.Entities
	}
	return m
}

// Container returns the framed, gzip compressed document.
func (d *Doc) Container(tb testing.TB) []byte {
	tb.Helper()
	return Container(tb, d.Header, d.Map())
}

// Container frames and compresses an arbitrary root compound.
func Container(tb testing.TB, h framing.Header, root map[string]any) []byte {
	tb.Helper()
	body, err := EncodeNBT(root)
	if err != nil {
		tb.Fatalf("encode nbt: %v", err)
	}
	var buf bytes.Buffer
	buf.Write(framing.AppendHeader(nil, h))
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(body); err != nil {
		tb.Fatalf("gzip: %v", err)
	}
	if err := zw.Close(); err != nil {
		tb.Fatalf("gzip: %v", err)
	}
	return buf.Bytes()
}

func orEmpty(v []any) []any {
	if v == nil {
		return []any{}
	}
	return v
}

const (
	tagEnd      = 0
	tagByte     = 1
	tagShort    = 2
	tagInt      = 3
	tagLong     = 4
	tagFloat    = 5
	tagDouble   = 6
	tagString   = 8
	tagList     = 9
	tagCompound = 10
)

// EncodeNBT writes root as an unnamed root compound in big-endian NBT.
// Empty lists are written as lists of compounds.
func EncodeNBT(root map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(tagCompound)
	writeString(&buf, "")
	if err := writePayload(&buf, root); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func tagOf(v any) (byte, error) {
	switch v.(type) {
	case int8:
		return tagByte, nil
	case int16:
		return tagShort, nil
	case int32, int:
		return tagInt, nil
	case int64:
		return tagLong, nil
	case float32:
		return tagFloat, nil
	case float64:
		return tagDouble, nil
	case string:
		return tagString, nil
	case []any:
		return tagList, nil
	case map[string]any:
		return tagCompound, nil
	}
	return 0, fmt.Errorf("schemtest: unsupported value %T", v)
}

func writeString(buf *bytes.Buffer, s string) {
	_ = binary.Write(buf, binary.BigEndian, uint16(len(s)))
	buf.WriteString(s)
}

func writePayload(buf *bytes.Buffer, v any) error {
	switch x := v.(type) {
	case int8:
		buf.WriteByte(byte(x))
	case int16:
		_ = binary.Write(buf, binary.BigEndian, x)
	case int32:
		_ = binary.Write(buf, binary.BigEndian, x)
	case int:
		_ = binary.Write(buf, binary.BigEndian, int32(x))
	case int64:
		_ = binary.Write(buf, binary.BigEndian, x)
	case float32:
		_ = binary.Write(buf, binary.BigEndian, math.Float32bits(x))
	case float64:
		_ = binary.Write(buf, binary.BigEndian, math.Float64bits(x))
	case string:
		writeString(buf, x)
	case []any:
		elem := byte(tagCompound)
		if len(x) > 0 {
			t, err := tagOf(x[0])
			if err != nil {
				return err
			}
			elem = t
		}
		buf.WriteByte(elem)
		_ = binary.Write(buf, binary.BigEndian, int32(len(x)))
		for _, e := range x {
			if t, err := tagOf(e); err != nil || t != elem {
				return fmt.Errorf("schemtest: mixed list element %T", e)
			}
			if err := writePayload(buf, e); err != nil {
				return err
			}
		}
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			t, err := tagOf(x[k])
			if err != nil {
				return err
			}
			buf.WriteByte(t)
			writeString(buf, k)
			if err := writePayload(buf, x[k]); err != nil {
				return err
			}
		}
		buf.WriteByte(tagEnd)
	default:
		return fmt.Errorf("schemtest: unsupported value %T", v)
	}
	return nil
}
