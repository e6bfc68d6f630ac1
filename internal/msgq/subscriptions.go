// Package msgq implements the command-channel message bus: a broker that
// routes Element-framed messages between connected modules by group and
// instance subscriptions.
package msgq

import "sync"

type groupInstance struct {
	group    string
	instance string
}

// SubscriptionManager tracks which subscriber wants which group/instance
// pair. The instance "*" subscribes to every instance of a group. Safe for
// concurrent use.
type SubscriptionManager[S comparable] struct {
	mu   sync.Mutex
	subs map[groupInstance][]S
}

// NewSubscriptionManager creates an empty manager.
func NewSubscriptionManager[S comparable]() *SubscriptionManager[S] {
	return &SubscriptionManager[S]{subs: map[groupInstance][]S{}}
}

// Subscribe registers s for the exact group/instance pair. Subscribing the
// same subscriber twice is a no-op.
func (m *SubscriptionManager[S]) Subscribe(group, instance string, s S) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := groupInstance{group, instance}
	for _, existing := range m.subs[key] {
		if existing == s {
			return
		}
	}
	m.subs[key] = append(m.subs[key], s)
}

// Unsubscribe removes s from the exact group/instance pair. Unknown pairs
// and unknown subscribers are no-ops.
func (m *SubscriptionManager[S]) Unsubscribe(group, instance string, s S) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(groupInstance{group, instance}, s)
}

// UnsubscribeAll removes s from every subscription it holds.
func (m *SubscriptionManager[S]) UnsubscribeAll(s S) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.subs {
		m.removeLocked(key, s)
	}
}

func (m *SubscriptionManager[S]) removeLocked(key groupInstance, s S) {
	list := m.subs[key]
	for i, existing := range list {
		if existing == s {
			m.subs[key] = append(list[:i], list[i+1:]...)
			if len(m.subs[key]) == 0 {
				delete(m.subs, key)
			}
			return
		}
	}
}

// FindSub returns the subscribers of the exact group/instance pair, in
// registration order.
func (m *SubscriptionManager[S]) FindSub(group, instance string) []S {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]S(nil), m.subs[groupInstance{group, instance}]...)
}

// Find returns the subscribers a message for group/instance should reach:
// the exact matches plus the group's "*" wildcard subscribers, without
// duplicates.
func (m *SubscriptionManager[S]) Find(group, instance string) []S {
	m.mu.Lock()
	defer m.mu.Unlock()

	exact := m.subs[groupInstance{group, instance}]
	out := append([]S(nil), exact...)
	if instance == "*" {
		return out
	}
	seen := make(map[S]struct{}, len(exact))
	for _, s := range exact {
		seen[s] = struct{}{}
	}
	for _, s := range m.subs[groupInstance{group, "*"}] {
		if _, dup := seen[s]; !dup {
			out = append(out, s)
		}
	}
	return out
}
