package testutils

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// recordingT captures failures instead of failing the enclosing test
type recordingT struct {
	failures []string
}

func (r *recordingT) Errorf(format string, args ...interface{}) {
	r.failures = append(r.failures, fmt.Sprintf(format, args...))
}

func TestJSONAsserter(t *testing.T) {
	tests := []struct {
		name     string
		actual   string
		expected string
		opts     []JSONOption
		pass     bool
	}{
		{name: "identical", actual: `{"a":1}`, expected: `{"a":1}`, pass: true},
		{name: "extra keys ignored by default", actual: `{"a":1,"b":2}`, expected: `{"a":1}`, pass: true},
		{name: "extra keys reported when strict", actual: `{"a":1,"b":2}`, expected: `{"a":1}`, opts: []JSONOption{WithIgnoreExtraKeys(false)}, pass: false},
		{name: "presence placeholder", actual: `{"session":"01J9","ok":true}`, expected: `{"session":"<<PRESENCE>>","ok":true}`, pass: true},
		{name: "placeholder needs the key", actual: `{"ok":true}`, expected: `{"session":"<<PRESENCE>>","ok":true}`, pass: false},
		{name: "ignored nested field", actual: `{"info":{"ts":5,"v":1}}`, expected: `{"info":{"ts":9,"v":1}}`, opts: []JSONOption{WithIgnoredFields("ts")}, pass: true},
		{name: "value mismatch", actual: `{"a":1}`, expected: `{"a":2}`, pass: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingT{}
			ok := NewJSONAsserter(rec).WithOptions(tt.opts...).Assert(tt.actual, tt.expected)

			assert.Equal(t, tt.pass, ok)
			assert.Equal(t, tt.pass, len(rec.failures) == 0, "failures MUST be reported through TestingT")
		})
	}
}

func TestTextAsserter(t *testing.T) {
	rec := &recordingT{}
	ta := NewTextAsserter(rec)

	assert.True(t, ta.Assert("line one  \nline two\n\n", "line one\nline two"))
	assert.False(t, ta.Assert("line one\nline 2", "line one\nline two"))
	if assert.Len(t, rec.failures, 1) {
		assert.Contains(t, rec.failures[0], "-line two")
		assert.Contains(t, rec.failures[0], "+line 2")
	}

	rec.failures = nil
	assert.True(t, ta.WithOptions(WithIgnoreEmptyLines(true)).Assert("a\n\nb", "a\nb"))
	assert.Empty(t, rec.failures)
}
