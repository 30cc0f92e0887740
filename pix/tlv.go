package pix

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxValueLength is the ceiling imposed by the two digit length prefix
const MaxValueLength = 99

type Field struct {
	Tag   string
	Value string
}

// EncodeField renders tag, zero padded length and value.
// Callers must never pass a value longer than MaxValueLength: a truncated
// payload would still scan as a valid but wrong payment, so this panics.
func EncodeField(tag, value string) string {
	if len(tag) != 2 {
		panic(fmt.Sprintf("pix: tag %q must be 2 characters", tag))
	}
	length := utf8.RuneCountInString(value)
	if length > MaxValueLength {
		panic(fmt.Sprintf("pix: value of tag %s has %d characters, limit is %d", tag, length, MaxValueLength))
	}
	return fmt.Sprintf("%s%02d%s", tag, length, value)
}

func (f Field) String() string {
	return EncodeField(f.Tag, f.Value)
}

// composite joins already encoded nested fields, skipping empty ones
func composite(fields ...string) string {
	return strings.Join(fields, "")
}

func fits(value string) bool {
	return utf8.RuneCountInString(value) <= MaxValueLength
}
