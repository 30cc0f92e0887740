package pix

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrMalformed = errors.New("malformed payload")
	ErrChecksum  = errors.New("checksum mismatch")
)

// ParseFields decodes a flat sequence of TLV fields
func ParseFields(s string) ([]Field, error) {
	runes := []rune(s)
	var fields []Field
	for pos := 0; pos < len(runes); {
		if pos+4 > len(runes) {
			return nil, fmt.Errorf("%w: truncated header at %d", ErrMalformed, pos)
		}
		tag := string(runes[pos : pos+2])
		length, err := strconv.Atoi(string(runes[pos+2 : pos+4]))
		if err != nil {
			return nil, fmt.Errorf("%w: length of tag %s: %v", ErrMalformed, tag, err)
		}
		start := pos + 4
		if start+length > len(runes) {
			return nil, fmt.Errorf("%w: tag %s runs past the end", ErrMalformed, tag)
		}
		fields = append(fields, Field{Tag: tag, Value: string(runes[start : start+length])})
		pos = start + length
	}
	return fields, nil
}

// Verify checks the trailing checksum field of a payload
func Verify(payload string) error {
	idx := len(payload) - len(crcPlaceholder) - 4
	if idx < 0 || payload[idx:idx+len(crcPlaceholder)] != crcPlaceholder {
		return fmt.Errorf("%w: no trailing checksum field", ErrMalformed)
	}
	body := payload[:idx]
	if _, err := ParseFields(body); err != nil {
		return err
	}
	expected := Checksum(body)
	if got := strings.ToUpper(payload[idx+len(crcPlaceholder):]); got != expected {
		return fmt.Errorf("%w: got %s, expected %s", ErrChecksum, got, expected)
	}
	return nil
}

// Lookup returns the value of the first field with the given tag
func Lookup(fields []Field, tag string) (string, bool) {
	for _, f := range fields {
		if f.Tag == tag {
			return f.Value, true
		}
	}
	return "", false
}
