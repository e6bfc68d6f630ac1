package msgq

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscribeAndFindSub(t *testing.T) {
	m := NewSubscriptionManager[int]()

	m.Subscribe("g1", "i1", 1)
	m.Subscribe("g1", "i1", 2)
	m.Subscribe("g1", "i2", 3)
	m.Subscribe("g2", "i1", 4)

	assert.Equal(t, []int{1, 2}, m.FindSub("g1", "i1"))
	assert.Equal(t, []int{3}, m.FindSub("g1", "i2"))
	assert.Equal(t, []int{4}, m.FindSub("g2", "i1"))
	assert.Empty(t, m.FindSub("g2", "i2"))
}

func TestSubscribeTwiceIsNoOp(t *testing.T) {
	m := NewSubscriptionManager[int]()

	m.Subscribe("g1", "i1", 1)
	m.Subscribe("g1", "i1", 1)

	assert.Equal(t, []int{1}, m.FindSub("g1", "i1"))
}

func TestUnsubscribe(t *testing.T) {
	m := NewSubscriptionManager[int]()

	m.Subscribe("g1", "i1", 1)
	m.Subscribe("g1", "i1", 2)

	m.Unsubscribe("g1", "i1", 1)
	assert.Equal(t, []int{2}, m.FindSub("g1", "i1"))

	// unknown pair and unknown subscriber are silent
	m.Unsubscribe("g9", "i9", 1)
	m.Unsubscribe("g1", "i1", 99)
	assert.Equal(t, []int{2}, m.FindSub("g1", "i1"))
}

func TestUnsubscribeAll(t *testing.T) {
	m := NewSubscriptionManager[int]()

	m.Subscribe("g1", "i1", 1)
	m.Subscribe("g1", "*", 1)
	m.Subscribe("g2", "i1", 1)
	m.Subscribe("g1", "i1", 2)

	m.UnsubscribeAll(1)

	assert.Equal(t, []int{2}, m.FindSub("g1", "i1"))
	assert.Empty(t, m.FindSub("g1", "*"))
	assert.Empty(t, m.FindSub("g2", "i1"))
}

func TestFindIncludesWildcard(t *testing.T) {
	m := NewSubscriptionManager[int]()

	m.Subscribe("g1", "i1", 1)
	m.Subscribe("g1", "*", 2)
	m.Subscribe("g2", "i1", 3)

	tests := []struct {
		name     string
		group    string
		instance string
		want     []int
	}{
		{"exact plus wildcard", "g1", "i1", []int{1, 2}},
		{"wildcard only", "g1", "other", []int{2}},
		{"wildcard query returns wildcard subs", "g1", "*", []int{2}},
		{"no wildcard in group", "g2", "i1", []int{3}},
		{"unknown group", "g9", "i1", nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.ElementsMatch(t, tc.want, m.Find(tc.group, tc.instance))
		})
	}
}

func TestFindDeduplicates(t *testing.T) {
	m := NewSubscriptionManager[int]()

	m.Subscribe("g1", "i1", 1)
	m.Subscribe("g1", "*", 1)

	assert.Equal(t, []int{1}, m.Find("g1", "i1"))
}

func TestFindSubReturnsCopy(t *testing.T) {
	m := NewSubscriptionManager[int]()

	m.Subscribe("g1", "i1", 1)
	got := m.FindSub("g1", "i1")
	got[0] = 99

	assert.Equal(t, []int{1}, m.FindSub("g1", "i1"))
}
