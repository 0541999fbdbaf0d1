package output

import (
	"strconv"
	"strings"
	"time"
)

// Null is the literal marker for SQL NULL in output files.
const Null = `\N`

// fieldSeparator delimits fields within a record.
const fieldSeparator = "\t"

// TimeFormat renders timestamps so the relational store's bulk loader parses
// them without a cast.
const TimeFormat = "2006-01-02 15:04:05.999999-07"

var sanitizer = strings.NewReplacer(
	`\`, `\\`,
	"\n", "",
	"\r", "",
	fieldSeparator, "",
)

// sanitize escapes backslashes and strips the characters that would break a
// record across lines or fields.
func sanitize(s string) string {
	return sanitizer.Replace(s)
}

// AppendLine appends one tab-separated, newline-terminated record to dst.
// Fields equal to Null are emitted verbatim, everything else is sanitized.
func AppendLine(dst []byte, fields ...string) []byte {
	for i, field := range fields {
		if i > 0 {
			dst = append(dst, fieldSeparator...)
		}
		if field == Null {
			dst = append(dst, field...)
		} else {
			dst = append(dst, sanitize(field)...)
		}
	}
	return append(dst, '\n')
}

// Int formats an integer field.
func Int(v int) string {
	return strconv.Itoa(v)
}

// Time formats a timestamp field.
func Time(t time.Time) string {
	return t.Format(TimeFormat)
}

// NullableString formats a field that is NULL when empty.
func NullableString(s string) string {
	if s == "" {
		return Null
	}
	return s
}

// NullableInt formats a field that is NULL when zero.
func NullableInt(v int) string {
	if v == 0 {
		return Null
	}
	return strconv.Itoa(v)
}
