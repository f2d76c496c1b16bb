package dashboard

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"unicode"
	"unicode/utf8"

	"github.com/dalemusser/schoolctx/internal/domain/models"
)

// Payload is a decoded backend object whose keys may be camelCase or
// PascalCase. All lookups go through it so nothing else branches on
// casing.
type Payload map[string]any

// decode parses body as a JSON object. Numbers stay json.Number so large
// numeric ids keep every digit.
func decode(body []byte) (Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var top map[string]any
	if err := dec.Decode(&top); err != nil {
		return nil, fmt.Errorf("dashboard: decode response: %w", err)
	}
	if dec.More() {
		return nil, errTrailingData
	}
	return top, nil
}

var errTrailingData = errors.New("dashboard: decode response: trailing data after object")

// Unwrap decodes body and peels up to two "data" envelopes, so
// {"data":{"data":{...}}}, {"data":{...}} and {...} all yield the inner
// object.
func Unwrap(body []byte) (Payload, error) {
	p, err := decode(body)
	if err != nil {
		return nil, err
	}
	for range 2 {
		inner, ok := p.lookup("data").(map[string]any)
		if !ok {
			break
		}
		p = inner
	}
	return p, nil
}

// lookup tries key as given, then with its first letter upper-cased.
func (p Payload) lookup(key string) any {
	if p == nil {
		return nil
	}
	if v, ok := p[key]; ok {
		return v
	}
	if v, ok := p[pascal(key)]; ok {
		return v
	}
	return nil
}

// Has reports whether key is present in either casing.
func (p Payload) Has(key string) bool {
	return p.lookup(key) != nil
}

// String returns key as a string. Numeric values are rendered in their
// JSON form, so an id sent as 7 reads as "7". Anything else is "".
func (p Payload) String(key string) string {
	switch v := p.lookup(key).(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

// Bool returns key as a bool, false when absent or not a boolean.
func (p Payload) Bool(key string) bool {
	b, _ := p.lookup(key).(bool)
	return b
}

// Object returns the nested object under key, or nil. Lookups on a nil
// Payload are safe and return zero values.
func (p Payload) Object(key string) Payload {
	m, _ := p.lookup(key).(map[string]any)
	return m
}

// List returns the array under key, or nil.
func (p Payload) List(key string) []any {
	l, _ := p.lookup(key).([]any)
	return l
}

func pascal(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[n:]
}

// NormalizeSwitchingData maps a school-switching payload onto the
// canonical model. Entries without an id are dropped.
func NormalizeSwitchingData(p Payload) models.SchoolSwitchingData {
	out := models.SchoolSwitchingData{
		CurrentSchoolID:  p.String("currentSchoolId"),
		CanSwitchSchools: p.Bool("canSwitchSchools"),
		AvailableSchools: []models.SchoolOption{},
	}
	for _, item := range p.List("availableSchools") {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		opt := NormalizeSchoolOption(m)
		if opt.ID != "" {
			out.AvailableSchools = append(out.AvailableSchools, opt)
		}
	}
	return out
}

// NormalizeSchoolOption accepts id/Id/ID and name/Name.
func NormalizeSchoolOption(p Payload) models.SchoolOption {
	id := p.String("id")
	if id == "" {
		id = p.String("ID")
	}
	return models.SchoolOption{ID: id, Name: p.String("name")}
}

// SwitchResult is the backend's answer to a switch request.
type SwitchResult struct {
	// Success is false only when the backend said so explicitly.
	Success bool
	// Message is the backend's text for the user, possibly empty.
	Message string
}

// NormalizeSwitchResult reads success and message from the outermost
// object that carries them. The body came with a 2xx status, so a
// missing success field counts as success.
func NormalizeSwitchResult(body []byte) (SwitchResult, error) {
	top, err := decode(body)
	if err != nil {
		return SwitchResult{}, err
	}
	inner, _ := Unwrap(body)
	res := SwitchResult{Success: true, Message: inner.String("message")}
	if inner.Has("success") {
		res.Success = inner.Bool("success")
	}
	if top.Has("success") {
		res.Success = top.Bool("success")
	}
	if msg := top.String("message"); msg != "" {
		res.Message = msg
	}
	return res, nil
}

// ErrorMessage finds a human-readable message in a failure body. It
// checks message, error (string or object) and data.message, in either
// casing, and returns "" when none is present.
func ErrorMessage(body []byte) string {
	p, err := decode(body)
	if err != nil {
		return ""
	}
	if msg := p.String("message"); msg != "" {
		return msg
	}
	if msg := p.String("error"); msg != "" {
		return msg
	}
	if msg := p.Object("error").String("message"); msg != "" {
		return msg
	}
	return p.Object("data").String("message")
}
