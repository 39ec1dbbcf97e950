package testutils

import (
	"encoding/json"
	"fmt"

	"github.com/mcuadros/go-defaults"
	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"
)

// PresencePlaceholder in expected JSON matches any actual value under the same key.
const PresencePlaceholder = "<<PRESENCE>>"

// MustJSON marshals v or panics.
func MustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}

type JSONAssertOptions struct {
	IgnoreExtraKeys bool     `default:"true"`
	IgnoredFields   []string `default:""`
}

// JSONOption is a functional option for configuring JSONAsserter
type JSONOption func(*JSONAssertOptions)

// JSONAsserter compares JSON documents structurally and reports an ASCII diff.
type JSONAsserter struct {
	t       TestingT
	options JSONAssertOptions
}

func NewJSONAsserter(t TestingT) *JSONAsserter {
	opts := JSONAssertOptions{}
	defaults.SetDefaults(&opts)
	return &JSONAsserter{t: t, options: opts}
}

func (ja *JSONAsserter) WithOptions(opts ...JSONOption) *JSONAsserter {
	for _, opt := range opts {
		opt(&ja.options)
	}
	return ja
}

// Assert compares actualJSON against expectedJSON
func (ja *JSONAsserter) Assert(actualJSON, expectedJSON string) bool {
	if diff := ja.diff(actualJSON, expectedJSON); diff != "" {
		ja.t.Errorf("JSON assertion failed:\n%s", diff)
		return false
	}
	return true
}

func (ja *JSONAsserter) diff(actualJSON, expectedJSON string) string {
	var expected, actual map[string]any
	if err := json.Unmarshal([]byte(expectedJSON), &expected); err != nil {
		return fmt.Sprintf("invalid expected JSON object: %v", err)
	}
	if err := json.Unmarshal([]byte(actualJSON), &actual); err != nil {
		return fmt.Sprintf("invalid actual JSON object: %v", err)
	}

	fillPresence(expected, actual)
	for _, f := range ja.options.IgnoredFields {
		dropKey(expected, f)
		dropKey(actual, f)
	}
	if ja.options.IgnoreExtraKeys {
		pruneExtraKeys(actual, expected)
	}

	d := gojsondiff.New().CompareObjects(expected, actual)
	if !d.Modified() {
		return ""
	}

	f := formatter.NewAsciiFormatter(expected, formatter.AsciiFormatterConfig{ShowArrayIndex: true})
	out, err := f.Format(d)
	if err != nil {
		return fmt.Sprintf("JSON differs, diff formatting failed: %v", err)
	}
	return out
}

// fillPresence replaces placeholders in expected with the actual value.
func fillPresence(expected, actual any) {
	switch exp := expected.(type) {
	case map[string]any:
		act, _ := actual.(map[string]any)
		for k, v := range exp {
			if s, ok := v.(string); ok && s == PresencePlaceholder {
				if av, present := act[k]; present {
					exp[k] = av
				}
				continue
			}
			fillPresence(v, act[k])
		}
	case []any:
		act, _ := actual.([]any)
		for i := range exp {
			if i < len(act) {
				fillPresence(exp[i], act[i])
			}
		}
	}
}

func dropKey(v any, key string) {
	switch m := v.(type) {
	case map[string]any:
		delete(m, key)
		for _, child := range m {
			dropKey(child, key)
		}
	case []any:
		for _, child := range m {
			dropKey(child, key)
		}
	}
}

// pruneExtraKeys removes keys of actual objects that expected does not mention.
func pruneExtraKeys(actual, expected any) {
	switch exp := expected.(type) {
	case map[string]any:
		act, ok := actual.(map[string]any)
		if !ok {
			return
		}
		for k := range act {
			if _, ok := exp[k]; !ok {
				delete(act, k)
			}
		}
		for k := range exp {
			pruneExtraKeys(act[k], exp[k])
		}
	case []any:
		act, ok := actual.([]any)
		if !ok {
			return
		}
		for i := range exp {
			if i < len(act) {
				pruneExtraKeys(act[i], exp[i])
			}
		}
	}
}

// WithIgnoreExtraKeys toggles whether keys absent from expected are ignored
func WithIgnoreExtraKeys(ignore bool) JSONOption {
	return func(o *JSONAssertOptions) { o.IgnoreExtraKeys = ignore }
}

// WithIgnoredFields drops the named keys at every depth before comparing
func WithIgnoredFields(fields ...string) JSONOption {
	return func(o *JSONAssertOptions) { o.IgnoredFields = append(o.IgnoredFields, fields...) }
}
