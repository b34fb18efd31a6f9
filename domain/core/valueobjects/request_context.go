package valueobjects

import (
	"encoding/json"
	"fmt"
)

// RequestContext is the opaque key/value bag produced by the content source.
// Its schema varies by request type, so values stay JSON-like.
type RequestContext map[string]interface{}

// NewRequestContext returns an empty context.
func NewRequestContext() RequestContext {
	return RequestContext{}
}

// With returns a copy of c with key set to value.
func (c RequestContext) With(key string, value interface{}) RequestContext {
	out := c.Clone()
	out[key] = value
	return out
}

// Clone returns a shallow copy.
func (c RequestContext) Clone() RequestContext {
	out := make(RequestContext, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// String returns the value at key if it is a string.
func (c RequestContext) String(key string) (string, bool) {
	v, ok := c[key].(string)
	return v, ok
}

// Int returns the value at key as an int. JSON round trips decode numbers
// as float64, so both are accepted.
func (c RequestContext) Int(key string) (int, bool) {
	switch v := c[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	}
	return 0, false
}

// Marshal encodes the context as a JSON object.
func (c RequestContext) Marshal() ([]byte, error) {
	if c == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]interface{}(c))
}

// UnmarshalRequestContext decodes a JSON object. Empty input yields an empty context.
func UnmarshalRequestContext(data []byte) (RequestContext, error) {
	if len(data) == 0 || string(data) == "null" {
		return RequestContext{}, nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode request context: %w", err)
	}
	if out == nil {
		out = map[string]interface{}{}
	}
	return RequestContext(out), nil
}
