package click

import (
	"bytes"
	"encoding/json"
)

// Values is an ordered mapping from address (or nickname) to decoded value,
// as returned by Driver.Get for ranges and tag dumps.
type Values struct {
	keys []string
	m    map[string]interface{}
}

func newValues(n int) *Values {
	return &Values{
		keys: make([]string, 0, n),
		m:    make(map[string]interface{}, n),
	}
}

func (v *Values) add(k string, value interface{}) {
	if _, ok := v.m[k]; !ok {
		v.keys = append(v.keys, k)
	}
	v.m[k] = value
}

// Keys returns the keys in address order.
func (v *Values) Keys() []string {
	return append([]string(nil), v.keys...)
}

// Value returns the value stored under k.
func (v *Values) Value(k string) (interface{}, bool) {
	value, ok := v.m[k]
	return value, ok
}

// Len returns the number of entries.
func (v *Values) Len() int {
	return len(v.keys)
}

// Merge appends the entries of o, overwriting existing keys in place.
func (v *Values) Merge(o *Values) {
	for _, k := range o.keys {
		v.add(k, o.m[k])
	}
}

// MarshalJSON encodes v as a JSON object keeping the key order.
func (v *Values) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range v.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(v.m[k])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
