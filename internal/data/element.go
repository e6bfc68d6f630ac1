// Package data implements the Element value model used as the command and
// configuration representation throughout kestrel.
//
// An Element is a tagged value holding exactly one of: a 32-bit integer, a
// double-precision real, a boolean, a string, an ordered list of Elements,
// or an insertion-ordered map from string keys to Elements. Elements are
// shared through *Element handles: a nil handle is the distinguished "null
// handle" meaning absence, never a typed value. Composites hold only
// non-nil children; every insertion point rejects the null handle.
//
// Every capability comes in two flavors. The type-specific accessors
// (IntValue, ListValue, ...) fail with a TypeError when called on the wrong
// variant; the Get*/Set* families report a bool instead and never fail.
//
// Concurrency contract: Elements carry no internal locking. A tree that is
// never mutated after construction is safe for unsynchronized concurrent
// reads; concurrent mutation of a shared Element must be serialized by the
// caller.
package data

import (
	"fmt"
	"sort"
	"strings"
)

// Type tags an Element variant. The numeric values are stable; the wire
// format encodes them directly.
type Type int

const (
	Integer Type = iota
	Real
	Boolean
	String
	List
	Map
)

func (t Type) String() string {
	switch t {
	case Integer:
		return "integer"
	case Real:
		return "real"
	case Boolean:
		return "boolean"
	case String:
		return "string"
	case List:
		return "list"
	case Map:
		return "map"
	}
	return "unknown"
}

// Element is a single node of the value model. The type tag is set at
// construction and never changes; setters replace the payload only.
type Element struct {
	typ Type

	intv  int32
	realv float64
	boolv bool
	strv  string
	listv []*Element

	// maps keep insertion order: keys holds the order, mapv the values.
	keys []string
	mapv map[string]*Element
}

// IsNull reports whether e is the null handle.
func IsNull(e *Element) bool { return e == nil }

// GetType returns the immutable type tag.
func (e *Element) GetType() Type { return e.typ }

// Factories. Every factory returns a fully constructed, non-nil handle.

// NewInt creates an integer element.
func NewInt(v int32) *Element { return &Element{typ: Integer, intv: v} }

// NewReal creates a real element.
func NewReal(v float64) *Element { return &Element{typ: Real, realv: v} }

// NewBool creates a boolean element.
func NewBool(v bool) *Element { return &Element{typ: Boolean, boolv: v} }

// NewString creates a string element.
func NewString(v string) *Element { return &Element{typ: String, strv: v} }

// NewList creates a list element holding the given children, in order. Nil
// handles are skipped, keeping the no-null-children invariant.
func NewList(children ...*Element) *Element {
	listv := make([]*Element, 0, len(children))
	for _, c := range children {
		if c != nil {
			listv = append(listv, c)
		}
	}
	return &Element{typ: List, listv: listv}
}

// NewMap creates an empty map element.
func NewMap() *Element {
	return &Element{typ: Map, mapv: map[string]*Element{}}
}

// Type-specific accessors. Each succeeds only for the matching variant and
// otherwise fails with a TypeError naming the operation and the actual type.

func (e *Element) IntValue() (int32, error) {
	if e.typ != Integer {
		return 0, typeErr("IntValue", e.typ)
	}
	return e.intv, nil
}

func (e *Element) RealValue() (float64, error) {
	if e.typ != Real {
		return 0, typeErr("RealValue", e.typ)
	}
	return e.realv, nil
}

func (e *Element) BoolValue() (bool, error) {
	if e.typ != Boolean {
		return false, typeErr("BoolValue", e.typ)
	}
	return e.boolv, nil
}

func (e *Element) StringValue() (string, error) {
	if e.typ != String {
		return "", typeErr("StringValue", e.typ)
	}
	return e.strv, nil
}

// ListValue returns the underlying child slice. The slice is shared with the
// element; callers must not grow it directly.
func (e *Element) ListValue() ([]*Element, error) {
	if e.typ != List {
		return nil, typeErr("ListValue", e.typ)
	}
	return e.listv, nil
}

// MapValue returns the underlying key-to-child mapping, shared with the
// element. Iteration order of the returned map is unspecified; use Keys for
// insertion order.
func (e *Element) MapValue() (map[string]*Element, error) {
	if e.typ != Map {
		return nil, typeErr("MapValue", e.typ)
	}
	return e.mapv, nil
}

// Keys returns the map keys in insertion order, or a TypeError for non-maps.
func (e *Element) Keys() ([]string, error) {
	if e.typ != Map {
		return nil, typeErr("Keys", e.typ)
	}
	return append([]string(nil), e.keys...), nil
}

// Exception-safe getters. On a type mismatch they report false and leave
// nothing touched.

func (e *Element) GetInt() (int32, bool) {
	if e.typ != Integer {
		return 0, false
	}
	return e.intv, true
}

func (e *Element) GetReal() (float64, bool) {
	if e.typ != Real {
		return 0, false
	}
	return e.realv, true
}

func (e *Element) GetBool() (bool, bool) {
	if e.typ != Boolean {
		return false, false
	}
	return e.boolv, true
}

func (e *Element) GetString() (string, bool) {
	if e.typ != String {
		return "", false
	}
	return e.strv, true
}

func (e *Element) GetList() ([]*Element, bool) {
	if e.typ != List {
		return nil, false
	}
	return e.listv, true
}

func (e *Element) GetMap() (map[string]*Element, bool) {
	if e.typ != Map {
		return nil, false
	}
	return e.mapv, true
}

// Exception-safe setters. They replace the payload in place when the type
// matches and report false otherwise; no partial writes.

func (e *Element) SetInt(v int32) bool {
	if e.typ != Integer {
		return false
	}
	e.intv = v
	return true
}

func (e *Element) SetReal(v float64) bool {
	if e.typ != Real {
		return false
	}
	e.realv = v
	return true
}

func (e *Element) SetBool(v bool) bool {
	if e.typ != Boolean {
		return false
	}
	e.boolv = v
	return true
}

func (e *Element) SetString(v string) bool {
	if e.typ != String {
		return false
	}
	e.strv = v
	return true
}

// SetList replaces the child slice. It reports false for a non-list
// receiver and when any child is the null handle; no partial writes.
func (e *Element) SetList(children []*Element) bool {
	if e.typ != List {
		return false
	}
	for _, c := range children {
		if c == nil {
			return false
		}
	}
	e.listv = append([]*Element(nil), children...)
	return true
}

// SetMap replaces the whole mapping. Insertion order of the new payload is
// the sorted key order, since the input map carries none of its own. A nil
// value anywhere in m makes the whole call report false.
func (e *Element) SetMap(m map[string]*Element) bool {
	if e.typ != Map {
		return false
	}
	for _, v := range m {
		if v == nil {
			return false
		}
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	e.keys = keys
	e.mapv = make(map[string]*Element, len(m))
	for k, v := range m {
		e.mapv[k] = v
	}
	return true
}

// List operations. Valid only on list elements; any other variant yields a
// TypeError. Bounds violations are range errors, not type errors.

// GetAt returns the child at index i.
func (e *Element) GetAt(i int) (*Element, error) {
	if e.typ != List {
		return nil, typeErr("GetAt", e.typ)
	}
	if i < 0 || i >= len(e.listv) {
		return nil, rangeErrf("GetAt", i, len(e.listv))
	}
	return e.listv[i], nil
}

// SetAt replaces the child at index i. The index must address an existing
// slot: i == Size() is a range error, not an append (use Add).
func (e *Element) SetAt(i int, el *Element) error {
	if e.typ != List {
		return typeErr("SetAt", e.typ)
	}
	if el == nil {
		return nilChildErr("SetAt")
	}
	if i < 0 || i >= len(e.listv) {
		return rangeErrf("SetAt", i, len(e.listv))
	}
	e.listv[i] = el
	return nil
}

// Add appends a child to the list.
func (e *Element) Add(el *Element) error {
	if e.typ != List {
		return typeErr("Add", e.typ)
	}
	if el == nil {
		return nilChildErr("Add")
	}
	e.listv = append(e.listv, el)
	return nil
}

// RemoveAt deletes the child at index i. An out-of-range index deliberately
// does nothing.
func (e *Element) RemoveAt(i int) error {
	if e.typ != List {
		return typeErr("RemoveAt", e.typ)
	}
	if i < 0 || i >= len(e.listv) {
		return nil
	}
	e.listv = append(e.listv[:i], e.listv[i+1:]...)
	return nil
}

// Size returns the number of children in the list.
func (e *Element) Size() (int, error) {
	if e.typ != List {
		return 0, typeErr("Size", e.typ)
	}
	return len(e.listv), nil
}

// Map operations. Valid only on map elements.

// Get returns the child at the given key. Lookup is strictly read-only: an
// absent key yields (nil, nil), the null handle, with no side effect. Use
// Contains or Find when presence matters.
func (e *Element) Get(name string) (*Element, error) {
	if e.typ != Map {
		return nil, typeErr("Get", e.typ)
	}
	return e.mapv[name], nil
}

// Set stores the child at the given key, keeping the key's original position
// when it already exists.
func (e *Element) Set(name string, el *Element) error {
	if e.typ != Map {
		return typeErr("Set", e.typ)
	}
	if el == nil {
		return nilChildErr("Set")
	}
	if _, ok := e.mapv[name]; !ok {
		e.keys = append(e.keys, name)
	}
	e.mapv[name] = el
	return nil
}

// Remove deletes the key. Removing an absent key is a no-op.
func (e *Element) Remove(name string) error {
	if e.typ != Map {
		return typeErr("Remove", e.typ)
	}
	if _, ok := e.mapv[name]; !ok {
		return nil
	}
	delete(e.mapv, name)
	for i, k := range e.keys {
		if k == name {
			e.keys = append(e.keys[:i], e.keys[i+1:]...)
			break
		}
	}
	return nil
}

// Contains reports whether the key is present.
func (e *Element) Contains(name string) (bool, error) {
	if e.typ != Map {
		return false, typeErr("Contains", e.typ)
	}
	_, ok := e.mapv[name]
	return ok, nil
}

// Find resolves a slash-separated path of map keys recursively. Every
// segment but the last must name a nested map to continue the descent; if
// any intermediate segment is absent or not a map, Find returns the null
// handle with a nil error rather than failing. Only calling Find on a
// non-map receiver is an error.
func (e *Element) Find(identifier string) (*Element, error) {
	if e.typ != Map {
		return nil, typeErr("Find", e.typ)
	}
	return e.findPath(identifier), nil
}

// FindOK is the boolean overload of Find: it reports presence instead of
// returning errors, including false for a non-map receiver.
func (e *Element) FindOK(identifier string) (*Element, bool) {
	if e.typ != Map {
		return nil, false
	}
	found := e.findPath(identifier)
	return found, found != nil
}

func (e *Element) findPath(identifier string) *Element {
	cur := e
	rest := identifier
	for {
		seg := rest
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			seg, rest = rest[:i], rest[i+1:]
		} else {
			rest = ""
		}
		child, ok := cur.mapv[seg]
		if !ok {
			return nil
		}
		if rest == "" {
			return child
		}
		if child == nil || child.typ != Map {
			return nil
		}
		cur = child
	}
}

// Equal reports deep value equality. Null handles are equal to each other
// and to nothing else. Map comparison ignores insertion order.
func Equal(a, b *Element) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.typ != b.typ {
		return false
	}
	switch a.typ {
	case Integer:
		return a.intv == b.intv
	case Real:
		return a.realv == b.realv
	case Boolean:
		return a.boolv == b.boolv
	case String:
		return a.strv == b.strv
	case List:
		if len(a.listv) != len(b.listv) {
			return false
		}
		for i := range a.listv {
			if !Equal(a.listv[i], b.listv[i]) {
				return false
			}
		}
		return true
	case Map:
		if len(a.mapv) != len(b.mapv) {
			return false
		}
		for k, av := range a.mapv {
			bv, ok := b.mapv[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	}
	return false
}

// nilChildErr rejects the null handle as a composite child. Rendering and
// wire encoding assume non-nil children throughout.
func nilChildErr(op string) error {
	return fmt.Errorf("%s: the null handle cannot be a child element: %w", op, ErrType)
}

func rangeErrf(op string, i, size int) error {
	return &rangeError{op: op, index: i, size: size}
}

type rangeError struct {
	op    string
	index int
	size  int
}

func (e *rangeError) Error() string {
	return fmt.Sprintf("%s: index %d out of range for list of %d", e.op, e.index, e.size)
}

func (e *rangeError) Unwrap() error { return ErrRange }
