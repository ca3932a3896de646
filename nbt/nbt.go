// Package nbt models NBT data as an opaque tag tree. The save-archive codecs
// only ever read a tree, pull a few children out of it, and write it back, so
// the tree preserves compound insertion order to keep round trips byte-stable.
package nbt

import (
	"errors"
	"fmt"

	"github.com/elliotchance/orderedmap/v2"
)

type TagType byte

const (
	TagEnd TagType = iota
	TagByte
	TagShort
	TagInt
	TagLong
	TagFloat
	TagDouble
	TagByteArray
	TagString
	TagList
	TagCompound
	TagIntArray
	TagLongArray
)

var ErrMalformed = errors.New("nbt: malformed tag data")

// Tag is one node of the tree. Value holds the variant selected by Type:
// int8, int16, int32, int64, float32, float64, []byte, string, *List,
// *Compound, []int32 or []int64.
type Tag struct {
	Type  TagType
	Value interface{}
}

// List is a homogeneous sequence of payloads.
type List struct {
	Elem  TagType
	Items []Tag
}

// Compound is an insertion-ordered map of named tags.
type Compound struct {
	m *orderedmap.OrderedMap[string, Tag]
}

func NewCompound() *Compound {
	return &Compound{m: orderedmap.NewOrderedMap[string, Tag]()}
}

func (c *Compound) Set(key string, t Tag)      { c.m.Set(key, t) }
func (c *Compound) Get(key string) (Tag, bool) { return c.m.Get(key) }
func (c *Compound) Delete(key string) bool     { return c.m.Delete(key) }
func (c *Compound) Len() int                   { return c.m.Len() }
func (c *Compound) Keys() []string             { return c.m.Keys() }

// Equal compares two compounds by key order and value. Defined so that
// cmp-based tests can compare trees without reaching into the map internals.
func (c *Compound) Equal(o *Compound) bool {
	if c == nil || o == nil {
		return c == o
	}
	if c.Len() != o.Len() {
		return false
	}
	ck, ok := c.Keys(), o.Keys()
	for i := range ck {
		if ck[i] != ok[i] {
			return false
		}
		a, _ := c.Get(ck[i])
		b, _ := o.Get(ok[i])
		if !Equal(a, b) {
			return false
		}
	}
	return true
}

// Constructors for the variants the codecs build.

func Byte(v int8) Tag       { return Tag{TagByte, v} }
func Short(v int16) Tag     { return Tag{TagShort, v} }
func Int(v int32) Tag       { return Tag{TagInt, v} }
func Long(v int64) Tag      { return Tag{TagLong, v} }
func Float(v float32) Tag   { return Tag{TagFloat, v} }
func Double(v float64) Tag  { return Tag{TagDouble, v} }
func String(v string) Tag   { return Tag{TagString, v} }
func ByteArray(v []byte) Tag { return Tag{TagByteArray, v} }
func IntArray(v []int32) Tag { return Tag{TagIntArray, v} }
func LongArray(v []int64) Tag { return Tag{TagLongArray, v} }

func MakeList(elem TagType, items []Tag) Tag {
	return Tag{TagList, &List{Elem: elem, Items: items}}
}

func MakeCompound() Tag {
	return Tag{TagCompound, NewCompound()}
}

// Compound returns the compound payload, or nil for non-compound tags.
func (t Tag) Compound() *Compound {
	c, _ := t.Value.(*Compound)
	return c
}

// List returns the list payload, or nil for non-list tags.
func (t Tag) List() *List {
	l, _ := t.Value.(*List)
	return l
}

// Set adds or replaces a child of a compound tag.
func (t Tag) Set(key string, child Tag) {
	if c := t.Compound(); c != nil {
		c.Set(key, child)
	}
}

// Extract removes and returns the named child of a compound tag.
func (t Tag) Extract(key string) (Tag, bool) {
	c := t.Compound()
	if c == nil {
		return Tag{}, false
	}
	child, ok := c.Get(key)
	if ok {
		c.Delete(key)
	}
	return child, ok
}

// Equal reports deep equality of two tags, compound order included.
func Equal(a, b Tag) bool {
	if a.Type != b.Type {
		return false
	}
	switch a.Type {
	case TagEnd:
		return true
	case TagByte, TagShort, TagInt, TagLong, TagFloat, TagDouble, TagString:
		return a.Value == b.Value
	case TagByteArray:
		x, y := a.Value.([]byte), b.Value.([]byte)
		if len(x) != len(y) {
			return false
		}
		for i := range x {
			if x[i] != y[i] {
				return false
			}
		}
		return true
	case TagIntArray:
		x, y := a.Value.([]int32), b.Value.([]int32)
		if len(x) != len(y) {
			return false
		}
		for i := range x {
			if x[i] != y[i] {
				return false
			}
		}
		return true
	case TagLongArray:
		x, y := a.Value.([]int64), b.Value.([]int64)
		if len(x) != len(y) {
			return false
		}
		for i := range x {
			if x[i] != y[i] {
				return false
			}
		}
		return true
	case TagList:
		x, y := a.List(), b.List()
		if x == nil || y == nil {
			return x == y
		}
		if x.Elem != y.Elem || len(x.Items) != len(y.Items) {
			return false
		}
		for i := range x.Items {
			if !Equal(x.Items[i], y.Items[i]) {
				return false
			}
		}
		return true
	case TagCompound:
		return a.Compound().Equal(b.Compound())
	}
	return false
}

func (t TagType) valid() bool { return t <= TagLongArray }

func (t TagType) String() string {
	names := [...]string{
		"end", "byte", "short", "int", "long", "float", "double",
		"byte-array", "string", "list", "compound", "int-array", "long-array",
	}
	if int(t) < len(names) {
		return names[t]
	}
	return fmt.Sprintf("type(%d)", byte(t))
}
