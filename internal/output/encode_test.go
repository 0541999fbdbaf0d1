package output

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAppendLine(t *testing.T) {
	t.Parallel()

	line := AppendLine(nil, "a", "b", "c")
	assert.Equal(t, "a\tb\tc\n", string(line))
}

func TestAppendLineSanitizes(t *testing.T) {
	t.Parallel()

	line := AppendLine(nil, "back\\slash", "multi\nline\r", "tab\there")
	assert.Equal(t, "back\\\\slash\tmultiline\ttabhere\n", string(line))
}

func TestAppendLineKeepsNullVerbatim(t *testing.T) {
	t.Parallel()

	// The null marker must not have its backslash doubled.
	line := AppendLine(nil, Null, "x")
	assert.Equal(t, `\N`+"\tx\n", string(line))
}

func TestTimeFormat(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 8, 27, 9, 30, 15, 123456000, time.UTC)
	assert.Equal(t, "2026-08-27 09:30:15.123456+00", Time(ts))
}

func TestNullableString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Null, NullableString(""))
	assert.Equal(t, "name", NullableString("name"))
}

func TestNullableInt(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Null, NullableInt(0))
	assert.Equal(t, "42", NullableInt(42))
}
