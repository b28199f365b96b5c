package section

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ErrInvalidDocument is returned when a page document is not a JSON object.
var ErrInvalidDocument = errors.New("page document must be a JSON object")

// Config is a page configuration: an ordered mapping from section key to
// section payload.
type Config struct {
	keys   []string
	values map[string]Data
}

// NewConfig creates an empty configuration.
func NewConfig() *Config {
	return &Config{values: make(map[string]Data)}
}

// Set stores data under key, appending key if it is new.
func (c *Config) Set(key string, data Data) {
	if _, ok := c.values[key]; !ok {
		c.keys = append(c.keys, key)
	}
	c.values[key] = data
}

// Get returns the payload stored under key.
func (c *Config) Get(key string) (Data, bool) {
	d, ok := c.values[key]
	return d, ok
}

// Keys returns the keys in order.
func (c *Config) Keys() []string {
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// Len returns the number of sections.
func (c *Config) Len() int {
	return len(c.keys)
}

// Clone returns a deep copy. Mutating the copy never affects c.
func (c *Config) Clone() *Config {
	out := &Config{
		keys:   make([]string, len(c.keys)),
		values: make(map[string]Data, len(c.values)),
	}
	copy(out.keys, c.keys)
	for k, v := range c.values {
		out.values[k] = Clone(v)
	}
	return out
}

// MarshalJSON encodes the configuration as an object, keys in order.
func (c *Config) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range c.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(c.values[key])
		if err != nil {
			return nil, fmt.Errorf("encode section %q: %w", key, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Equal reports whether both configurations encode to the same document.
func (c *Config) Equal(o *Config) bool {
	if c == nil || o == nil {
		return c == o
	}
	a, errA := c.MarshalJSON()
	b, errB := o.MarshalJSON()
	return errA == nil && errB == nil && bytes.Equal(a, b)
}

// Decode parses a page document. Registry keys missing from the document get
// their default payload; keys the registry does not declare are kept as
// Unknown, after the registry keys, in lexical order.
func (t *Template) Decode(doc []byte) (*Config, error) {
	var raw map[string]json.RawMessage
	if len(bytes.TrimSpace(doc)) > 0 {
		if err := json.Unmarshal(doc, &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		}
	}

	cfg := NewConfig()
	for _, d := range t.Sections {
		value, ok := raw[d.Key]
		if !ok || string(bytes.TrimSpace(value)) == "null" {
			cfg.Set(d.Key, d.Fallback())
			continue
		}
		data, err := Decode(d.Shape, value)
		if err != nil {
			return nil, fmt.Errorf("decode section %q: %w", d.Key, err)
		}
		cfg.Set(d.Key, data)
	}

	extra := make([]string, 0)
	for key := range raw {
		if _, ok := t.Lookup(key); !ok {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	for _, key := range extra {
		cfg.Set(key, Unknown{Raw: append(json.RawMessage(nil), raw[key]...)})
	}
	return cfg, nil
}
