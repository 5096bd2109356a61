package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// Field is a single key/value entry of a Reason.
type Field struct {
	Key   string
	Value any
}

// Reason is an ordered evidence record attached to a signal or trade: the
// rule that fired, the indicator values it looked at and the trigger.
// Values are scalars (string, bool, float64, int) or nil for "not available".
type Reason []Field

// R builds a Reason from alternating key/value arguments.
func R(kv ...any) Reason {
	r := make(Reason, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		r = append(r, Field{Key: key, Value: kv[i+1]})
	}
	return r
}

// With returns a copy of r with key set to v. An existing key is replaced in
// place so the original ordering is kept.
func (r Reason) With(key string, v any) Reason {
	out := make(Reason, len(r), len(r)+1)
	copy(out, r)
	for i := range out {
		if out[i].Key == key {
			out[i].Value = v
			return out
		}
	}
	return append(out, Field{Key: key, Value: v})
}

// Merge returns a copy of r with every field of other applied via With.
func (r Reason) Merge(other Reason) Reason {
	out := make(Reason, len(r), len(r)+len(other))
	copy(out, r)
	for _, f := range other {
		out = out.With(f.Key, f.Value)
	}
	return out
}

// Get returns the value stored under key.
func (r Reason) Get(key string) (any, bool) {
	for _, f := range r {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// String returns the value under key when it is a string.
func (r Reason) String(key string) string {
	v, _ := r.Get(key)
	s, _ := v.(string)
	return s
}

// Map converts r to a plain map. Non-finite floats become nil.
func (r Reason) Map() map[string]any {
	m := make(map[string]any, len(r))
	for _, f := range r {
		m[f.Key] = jsonSafe(f.Value)
	}
	return m
}

// MarshalJSON encodes r as a JSON object preserving field order. Non-finite
// floats are encoded as null.
func (r Reason) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(jsonSafe(f.Value))
		if err != nil {
			return nil, fmt.Errorf("encoding reason field %q: %w", f.Key, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object into r, keeping the key order of the
// document.
func (r *Reason) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*r = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("reason: expected JSON object")
	}

	out := Reason{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)
		var v any
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("reason field %q: %w", key, err)
		}
		if n, ok := v.(json.Number); ok {
			if f, err := n.Float64(); err == nil {
				v = f
			}
		}
		out = append(out, Field{Key: key, Value: v})
	}
	*r = out
	return nil
}

func jsonSafe(v any) any {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
	case float32:
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return nil
		}
	}
	return v
}
