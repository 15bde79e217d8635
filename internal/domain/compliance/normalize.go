package compliance

import (
	"fmt"
	"strings"
)

// Keys that only ever appear on a valid analysis record.
const (
	FieldStatus   = "cumplimiento_actual"
	FieldMeasures = "medidas_recomendadas"
)

// Envelope path used by chat-completion style responses: message.content
const (
	envelopeField = "message"
	contentField  = "content"
)

// shapeMatcher reports whether v has a known shape and extracts the record from it.
type shapeMatcher func(v any) (Object, bool)

// matchers are tried in order, first match wins
var matchers = []shapeMatcher{
	matchArray,
	matchObject,
	matchProperty,
}

// Normalize extracts the canonical raw record from an analysis payload of any accepted shape.
func Normalize(payload []byte) (Object, error) {
	v, err := Decode(payload)
	if err != nil {
		return Object{}, fmt.Errorf("%w: invalid json: %v", ErrNormalization, err)
	}
	return NormalizeValue(v)
}

// NormalizeValue is Normalize for an already decoded value.
func NormalizeValue(v any) (Object, error) {
	for _, m := range matchers {
		if rec, ok := m(v); ok {
			return rec, nil
		}
	}
	return Object{}, fmt.Errorf("%w: unrecognized response shape", ErrNormalization)
}

func hasMarker(o Object) bool {
	return o.Has(FieldStatus) || o.Has(FieldMeasures)
}

// envelope returns message.content when it is an object or a string holding one.
func envelope(o Object) (Object, bool) {
	mv, ok := o.Get(envelopeField)
	if !ok {
		return Object{}, false
	}
	msg, ok := mv.(Object)
	if !ok {
		return Object{}, false
	}
	cv, ok := msg.Get(contentField)
	if !ok {
		return Object{}, false
	}
	switch c := cv.(type) {
	case Object:
		return c, true
	case string:
		decoded, err := Decode([]byte(stripFence(c)))
		if err != nil {
			return Object{}, false
		}
		obj, ok := decoded.(Object)
		return obj, ok
	}
	return Object{}, false
}

// stripFence removes a markdown code fence some models wrap around JSON
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

func matchArray(v any) (Object, bool) {
	arr, ok := v.([]any)
	if !ok || len(arr) == 0 {
		return Object{}, false
	}
	head, ok := arr[0].(Object)
	if !ok {
		return Object{}, false
	}
	if c, ok := envelope(head); ok {
		return c, true
	}
	if hasMarker(head) {
		return head, true
	}
	return Object{}, false
}

func matchObject(v any) (Object, bool) {
	obj, ok := v.(Object)
	if !ok {
		return Object{}, false
	}
	if hasMarker(obj) {
		return obj, true
	}
	return envelope(obj)
}

// matchProperty scans own properties one level deep, in document order.
func matchProperty(v any) (Object, bool) {
	obj, ok := v.(Object)
	if !ok {
		return Object{}, false
	}
	for _, k := range obj.keys {
		val := obj.values[k]
		if rec, ok := matchArray(val); ok {
			return rec, true
		}
		if rec, ok := matchObject(val); ok {
			return rec, true
		}
	}
	return Object{}, false
}
