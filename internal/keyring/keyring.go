// Package keyring holds TSIG key material and its config-channel
// representation. It stores and serializes keys; it does not sign or
// verify anything.
package keyring

import (
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kestreldns/kestrel/internal/data"
)

// DefaultAlgorithm is assumed when a key spec names no algorithm.
const DefaultAlgorithm = "hmac-md5.sig-alg.reg.int"

var ErrKeySpec = errors.New("invalid key spec")

// Key is one shared secret. Immutable once built; Ring hands out copies.
type Key struct {
	Name      string
	Algorithm string
	Secret    []byte
}

// ParseKeySpec parses the "name:base64secret[:algorithm]" key string
// format used on the config channel.
func ParseKeySpec(spec string) (Key, error) {
	parts := strings.Split(spec, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return Key{}, fmt.Errorf("%w: %q", ErrKeySpec, spec)
	}
	name := parts[0]
	if name == "" {
		return Key{}, fmt.Errorf("%w: empty key name in %q", ErrKeySpec, spec)
	}
	secret, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return Key{}, fmt.Errorf("%w: bad secret in %q: %v", ErrKeySpec, spec, err)
	}
	algorithm := DefaultAlgorithm
	if len(parts) == 3 {
		if parts[2] == "" {
			return Key{}, fmt.Errorf("%w: empty algorithm in %q", ErrKeySpec, spec)
		}
		algorithm = parts[2]
	}
	return Key{Name: name, Algorithm: algorithm, Secret: secret}, nil
}

// String renders the key back into spec form. The algorithm is always
// included, so String output parses to an equal key even for the default.
func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%s", k.Name, base64.StdEncoding.EncodeToString(k.Secret), k.Algorithm)
}

// ToElement builds the key's config-channel map.
func (k Key) ToElement() *data.Element {
	el := data.NewMap()
	el.Set("name", data.NewString(k.Name))
	el.Set("algorithm", data.NewString(k.Algorithm))
	el.Set("secret", data.NewString(base64.StdEncoding.EncodeToString(k.Secret)))
	return el
}

// KeyFromElement is the inverse of Key.ToElement. A missing algorithm
// falls back to the default; name and secret are required.
func KeyFromElement(el *data.Element) (Key, error) {
	if el.GetType() != data.Map {
		return Key{}, fmt.Errorf("%w: key element is a %s, not a map", ErrKeySpec, el.GetType())
	}
	name, ok := el.FindOK("name")
	if !ok {
		return Key{}, fmt.Errorf("%w: key element without name", ErrKeySpec)
	}
	nameStr, ok := name.GetString()
	if !ok {
		return Key{}, fmt.Errorf("%w: key name is not a string", ErrKeySpec)
	}
	secret, ok := el.FindOK("secret")
	if !ok {
		return Key{}, fmt.Errorf("%w: key element without secret", ErrKeySpec)
	}
	secretStr, ok := secret.GetString()
	if !ok {
		return Key{}, fmt.Errorf("%w: key secret is not a string", ErrKeySpec)
	}
	raw, err := base64.StdEncoding.DecodeString(secretStr)
	if err != nil {
		return Key{}, fmt.Errorf("%w: bad secret: %v", ErrKeySpec, err)
	}
	algorithm := DefaultAlgorithm
	if alg, ok := el.FindOK("algorithm"); ok {
		s, ok := alg.GetString()
		if !ok {
			return Key{}, fmt.Errorf("%w: key algorithm is not a string", ErrKeySpec)
		}
		algorithm = s
	}
	return Key{Name: nameStr, Algorithm: algorithm, Secret: raw}, nil
}

// Ring is a set of keys indexed by name. One key per name; adding a
// duplicate name replaces nothing and reports failure. Safe for
// concurrent use.
type Ring struct {
	mu   sync.RWMutex
	keys map[string]Key
}

func NewRing() *Ring {
	return &Ring{keys: map[string]Key{}}
}

// Add stores the key. It returns false when a key of that name already
// exists; the existing key stays.
func (r *Ring) Add(k Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.keys[k.Name]; exists {
		return false
	}
	r.keys[k.Name] = k
	return true
}

// Remove deletes the named key, reporting whether it was present.
func (r *Ring) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.keys[name]; !exists {
		return false
	}
	delete(r.keys, name)
	return true
}

// Find returns the named key.
func (r *Ring) Find(name string) (Key, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.keys[name]
	return k, ok
}

func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.keys)
}

// ToElement renders the ring as a list of key maps, ordered by name so
// the output is deterministic.
func (r *Ring) ToElement() *data.Element {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.keys))
	for name := range r.keys {
		names = append(names, name)
	}
	sort.Strings(names)

	list := data.NewList()
	for _, name := range names {
		list.Add(r.keys[name].ToElement())
	}
	return list
}

// RingFromElement rebuilds a ring from a list of key maps. Duplicate
// names are an error.
func RingFromElement(el *data.Element) (*Ring, error) {
	if el.GetType() != data.List {
		return nil, fmt.Errorf("%w: keyring element is a %s, not a list", ErrKeySpec, el.GetType())
	}
	r := NewRing()
	n, err := el.Size()
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		child, err := el.GetAt(i)
		if err != nil {
			return nil, err
		}
		k, err := KeyFromElement(child)
		if err != nil {
			return nil, err
		}
		if !r.Add(k) {
			return nil, fmt.Errorf("%w: duplicate key name %q", ErrKeySpec, k.Name)
		}
	}
	return r, nil
}
