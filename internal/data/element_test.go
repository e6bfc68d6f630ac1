package data

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExactlyOneAccessorSucceeds(t *testing.T) {
	tests := []struct {
		name string
		el   *Element
		typ  Type
	}{
		{"integer", NewInt(42), Integer},
		{"real", NewReal(2.5), Real},
		{"boolean", NewBool(true), Boolean},
		{"string", NewString("s"), String},
		{"list", NewList(), List},
		{"map", NewMap(), Map},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.typ, tt.el.GetType())

			_, intErr := tt.el.IntValue()
			_, realErr := tt.el.RealValue()
			_, boolErr := tt.el.BoolValue()
			_, strErr := tt.el.StringValue()
			_, listErr := tt.el.ListValue()
			_, mapErr := tt.el.MapValue()
			errs := []error{intErr, realErr, boolErr, strErr, listErr, mapErr}

			succeeded := 0
			for i, err := range errs {
				if Type(i) == tt.typ {
					assert.NoError(t, err)
					succeeded++
				} else {
					assert.ErrorIs(t, err, ErrType, "accessor for %s should fail", Type(i))
				}
			}
			assert.Equal(t, 1, succeeded)
		})
	}
}

func TestTypeErrorNamesOperationAndType(t *testing.T) {
	_, err := NewList().IntValue()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "IntValue")
	assert.Contains(t, err.Error(), "list")

	var te *TypeError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, List, te.Type)
}

func TestGetValueFamilyLeavesOutputUntouched(t *testing.T) {
	el := NewString("hello")

	v, ok := el.GetInt()
	assert.False(t, ok)
	assert.Zero(t, v)

	s, ok := el.GetString()
	assert.True(t, ok)
	assert.Equal(t, "hello", s)
}

func TestSetValueFamily(t *testing.T) {
	el := NewInt(1)
	assert.True(t, el.SetInt(7))
	v, err := el.IntValue()
	require.NoError(t, err)
	assert.Equal(t, int32(7), v)

	// wrong-typed setter reports failure and changes nothing
	assert.False(t, el.SetString("nope"))
	v, _ = el.IntValue()
	assert.Equal(t, int32(7), v)
	assert.Equal(t, Integer, el.GetType())
}

func TestListOperations(t *testing.T) {
	l := NewList(NewInt(1), NewInt(2), NewInt(3))

	n, err := l.Size()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	el, err := l.GetAt(1)
	require.NoError(t, err)
	v, _ := el.IntValue()
	assert.Equal(t, int32(2), v)

	require.NoError(t, l.SetAt(1, NewString("two")))
	el, _ = l.GetAt(1)
	assert.Equal(t, String, el.GetType())

	require.NoError(t, l.Add(NewBool(true)))
	n, _ = l.Size()
	assert.Equal(t, 4, n)
}

func TestListBounds(t *testing.T) {
	l := NewList(NewInt(1), NewInt(2))

	_, err := l.GetAt(2)
	assert.ErrorIs(t, err, ErrRange)
	_, err = l.GetAt(-1)
	assert.ErrorIs(t, err, ErrRange)

	// index == size is a range error for SetAt, not an append
	err = l.SetAt(2, NewInt(9))
	assert.ErrorIs(t, err, ErrRange)
	n, _ := l.Size()
	assert.Equal(t, 2, n)

	// out-of-range remove is deliberately a no-op
	require.NoError(t, l.RemoveAt(17))
	require.NoError(t, l.RemoveAt(-1))
	n, _ = l.Size()
	assert.Equal(t, 2, n)

	require.NoError(t, l.RemoveAt(0))
	n, _ = l.Size()
	assert.Equal(t, 1, n)
	el, _ := l.GetAt(0)
	v, _ := el.IntValue()
	assert.Equal(t, int32(2), v)
}

func TestListOpsOnNonListAreTypeErrors(t *testing.T) {
	m := NewMap()
	_, err := m.GetAt(0)
	assert.ErrorIs(t, err, ErrType)
	assert.ErrorIs(t, m.Add(NewInt(1)), ErrType)
	assert.ErrorIs(t, m.RemoveAt(0), ErrType)
	assert.ErrorIs(t, m.SetAt(0, NewInt(1)), ErrType)
	_, err = m.Size()
	assert.ErrorIs(t, err, ErrType)
}

func TestMapOperations(t *testing.T) {
	m := NewMap()
	require.NoError(t, m.Set("a", NewInt(1)))
	require.NoError(t, m.Set("b", NewString("x")))

	ok, err := m.Contains("a")
	require.NoError(t, err)
	assert.True(t, ok)

	el, err := m.Get("a")
	require.NoError(t, err)
	v, _ := el.IntValue()
	assert.Equal(t, int32(1), v)

	require.NoError(t, m.Remove("a"))
	ok, _ = m.Contains("a")
	assert.False(t, ok)

	// removing an absent key is a no-op
	require.NoError(t, m.Remove("never-there"))

	keys, err := m.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, keys)
}

func TestCompositeChildrenMustNotBeNull(t *testing.T) {
	l := NewList(NewInt(1))
	assert.ErrorIs(t, l.Add(nil), ErrType)
	assert.ErrorIs(t, l.SetAt(0, nil), ErrType)
	assert.False(t, l.SetList([]*Element{NewInt(1), nil}))

	m := NewMap()
	assert.ErrorIs(t, m.Set("k", nil), ErrType)
	assert.False(t, m.SetMap(map[string]*Element{"k": nil}))

	// rejected inserts leave both trees untouched, renderable and encodable
	n, err := l.Size()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "[ 1 ]", l.Str())
	assert.Equal(t, "{  }", m.Str())
	_, err = l.ToWire(false)
	require.NoError(t, err)
	_, err = m.ToWire(false)
	require.NoError(t, err)

	// the list factory drops nil handles instead of storing them
	n, err = NewList(nil, NewInt(2), nil).Size()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMapGetIsReadOnly(t *testing.T) {
	m := NewMap()
	require.NoError(t, m.Set("present", NewInt(1)))

	el, err := m.Get("absent")
	require.NoError(t, err)
	assert.True(t, IsNull(el))

	// the miss must not have inserted anything
	ok, _ := m.Contains("absent")
	assert.False(t, ok)
	keys, _ := m.Keys()
	assert.Equal(t, []string{"present"}, keys)
}

func TestMapOpsOnNonMapAreTypeErrors(t *testing.T) {
	l := NewList()
	_, err := l.Get("k")
	assert.ErrorIs(t, err, ErrType)
	assert.ErrorIs(t, l.Set("k", NewInt(1)), ErrType)
	assert.ErrorIs(t, l.Remove("k"), ErrType)
	_, err = l.Contains("k")
	assert.ErrorIs(t, err, ErrType)
	_, err = l.Find("a/b")
	assert.ErrorIs(t, err, ErrType)
}

func TestMapKeyOrderIsInsertionOrder(t *testing.T) {
	m := NewMap()
	for _, k := range []string{"zebra", "alpha", "middle"} {
		require.NoError(t, m.Set(k, NewInt(1)))
	}
	// overwriting keeps the original position
	require.NoError(t, m.Set("alpha", NewInt(2)))

	keys, err := m.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"zebra", "alpha", "middle"}, keys)
}

func TestFind(t *testing.T) {
	root := NewMap()
	a := NewMap()
	b := NewMap()
	require.NoError(t, b.Set("c", NewInt(42)))
	require.NoError(t, a.Set("b", b))
	require.NoError(t, a.Set("leaf", NewString("s")))
	require.NoError(t, root.Set("a", a))

	el, err := root.Find("a/b/c")
	require.NoError(t, err)
	require.False(t, IsNull(el))
	v, _ := el.IntValue()
	assert.Equal(t, int32(42), v)

	// single-segment path
	el, err = root.Find("a")
	require.NoError(t, err)
	assert.Equal(t, Map, el.GetType())

	// missing intermediate segment: not found, not an error
	el, err = root.Find("a/x/c")
	require.NoError(t, err)
	assert.True(t, IsNull(el))

	// intermediate segment that is not a map: not found, not an error
	el, err = root.Find("a/leaf/c")
	require.NoError(t, err)
	assert.True(t, IsNull(el))

	// final segment may be any type
	el, err = root.Find("a/leaf")
	require.NoError(t, err)
	assert.Equal(t, String, el.GetType())
}

func TestFindOK(t *testing.T) {
	root := NewMap()
	nested := NewMap()
	require.NoError(t, nested.Set("port", NewInt(53)))
	require.NoError(t, root.Set("server", nested))

	el, ok := root.FindOK("server/port")
	assert.True(t, ok)
	v, _ := el.IntValue()
	assert.Equal(t, int32(53), v)

	_, ok = root.FindOK("server/missing")
	assert.False(t, ok)

	// the boolean overload reports false on a non-map receiver too
	_, ok = NewInt(1).FindOK("a/b")
	assert.False(t, ok)
}

func TestEqual(t *testing.T) {
	mk := func() *Element {
		m := NewMap()
		m.Set("x", NewInt(1))
		m.Set("y", NewList(NewInt(1), NewReal(2.5), NewBool(true), NewString("s")))
		return m
	}

	assert.True(t, Equal(mk(), mk()))
	assert.True(t, Equal(nil, nil))
	assert.False(t, Equal(mk(), nil))
	assert.False(t, Equal(NewInt(1), NewReal(1)))
	assert.False(t, Equal(NewList(NewInt(1)), NewList(NewInt(2))))

	// map equality ignores insertion order
	a := NewMap()
	a.Set("1", NewInt(1))
	a.Set("2", NewInt(2))
	b := NewMap()
	b.Set("2", NewInt(2))
	b.Set("1", NewInt(1))
	assert.True(t, Equal(a, b))
}

func TestStr(t *testing.T) {
	tests := []struct {
		name string
		el   *Element
		want string
	}{
		{"int", NewInt(-7), "-7"},
		{"real", NewReal(2.5), "2.5"},
		{"real whole", NewReal(3), "3.0"},
		{"bool", NewBool(true), "true"},
		{"string", NewString(`say "hi"`), `"say \"hi\""`},
		{"empty list", NewList(), "[  ]"},
		{"list", NewList(NewInt(1), NewString("a")), `[ 1, "a" ]`},
		{"empty map", NewMap(), "{  }"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.el.Str())
		})
	}
}

func TestStrMapInsertionOrder(t *testing.T) {
	m := NewMap()
	m.Set("b", NewInt(2))
	m.Set("a", NewInt(1))
	assert.Equal(t, `{ "b": 2, "a": 1 }`, m.Str())
}
