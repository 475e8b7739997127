package record

import (
	"encoding/json"
	"fmt"
)

// Attrs is the open key-value attribute bag carried by every record.
// Values are restricted to what survives a JSON round trip.
type Attrs map[string]any

// Merge returns a new bag with updates applied on top of the receiver.
// Shallow merge: keys in updates overwrite same-named keys, unrelated keys
// are preserved. Neither input is mutated.
//
// Merge is idempotent: Merge(Merge(a, u), u) == Merge(a, u).
func (a Attrs) Merge(updates Attrs) Attrs {
	merged := make(Attrs, len(a)+len(updates))
	for k, v := range a {
		merged[k] = v
	}
	for k, v := range updates {
		merged[k] = v
	}
	return merged
}

// Clone returns a shallow copy of the bag. Nil stays nil.
func (a Attrs) Clone() Attrs {
	if a == nil {
		return nil
	}
	c := make(Attrs, len(a))
	for k, v := range a {
		c[k] = v
	}
	return c
}

// MarshalAttrs serializes a bag to JSON for storage. An empty or nil bag
// serializes to "{}" so the stored column is never NULL.
func MarshalAttrs(a Attrs) (string, error) {
	if len(a) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("marshal attrs: %w", err)
	}
	return string(b), nil
}

// UnmarshalAttrs deserializes a stored bag. Empty input yields an empty,
// non-nil bag.
func UnmarshalAttrs(s string) (Attrs, error) {
	a := Attrs{}
	if s == "" {
		return a, nil
	}
	if err := json.Unmarshal([]byte(s), &a); err != nil {
		return nil, fmt.Errorf("unmarshal attrs: %w", err)
	}
	return a, nil
}
