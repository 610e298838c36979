package nostrdb

import (
	"encoding/binary"
	"fmt"
)

// validateTags checks tag count, name length, value count, and value
// length against the configured limits (spec §3).
func validateTags(tags []Tag) error {
	if len(tags) > maxTagsPerEvent {
		return fmt.Errorf("tag count %d exceeds %d: %w", len(tags), maxTagsPerEvent, ErrInvalidEvent)
	}
	for _, t := range tags {
		if len(t.Name) < minTagNameLen || len(t.Name) > maxTagNameLen {
			return fmt.Errorf("tag name length %d out of range [%d,%d]: %w", len(t.Name), minTagNameLen, maxTagNameLen, ErrInvalidEvent)
		}
		if len(t.Values) > maxTagValues {
			return fmt.Errorf("tag %q has %d values, max %d: %w", t.Name, len(t.Values), maxTagValues, ErrInvalidEvent)
		}
		for _, v := range t.Values {
			if len(v) > maxTagValueLen {
				return fmt.Errorf("tag %q value exceeds %d bytes: %w", t.Name, maxTagValueLen, ErrInvalidEvent)
			}
		}
	}
	return nil
}

// encodeTags serialises tags into the in-record tag blob (spec §3 "Tag
// serialisation"):
//
//	tag_count:u16
//	  for each tag: value_count:u8  name_len:u8  name:[u8;name_len]
//	    for each value: value_len:u16  value:[u8;value_len]
func encodeTags(tags []Tag) ([]byte, error) {
	size := 2
	for _, t := range tags {
		size += 1 + 1 + len(t.Name)
		for _, v := range t.Values {
			size += 2 + len(v)
		}
	}

	buf := make([]byte, size)
	off := 0
	binary.LittleEndian.PutUint16(buf[off:], uint16(len(tags)))
	off += 2

	for _, t := range tags {
		buf[off] = uint8(len(t.Values))
		off++
		buf[off] = uint8(len(t.Name))
		off++
		off += copy(buf[off:], t.Name)

		for _, v := range t.Values {
			binary.LittleEndian.PutUint16(buf[off:], uint16(len(v)))
			off += 2
			off += copy(buf[off:], v)
		}
	}

	return buf, nil
}

// decodeTags is the inverse of encodeTags.
func decodeTags(buf []byte) ([]Tag, error) {
	if len(buf) < 2 {
		return nil, fmt.Errorf("tag blob too short")
	}
	off := 0
	count := binary.LittleEndian.Uint16(buf[off:])
	off += 2

	// A tag-less event decodes to nil Tags, as it was appended.
	var tags []Tag
	for i := 0; i < int(count); i++ {
		if off+2 > len(buf) {
			return nil, fmt.Errorf("truncated tag header")
		}
		valueCount := int(buf[off])
		off++
		nameLen := int(buf[off])
		off++
		if off+nameLen > len(buf) {
			return nil, fmt.Errorf("truncated tag name")
		}
		name := string(buf[off : off+nameLen])
		off += nameLen

		values := make([]string, 0, valueCount)
		for j := 0; j < valueCount; j++ {
			if off+2 > len(buf) {
				return nil, fmt.Errorf("truncated tag value length")
			}
			valueLen := int(binary.LittleEndian.Uint16(buf[off:]))
			off += 2
			if off+valueLen > len(buf) {
				return nil, fmt.Errorf("truncated tag value")
			}
			values = append(values, string(buf[off:off+valueLen]))
			off += valueLen
		}

		tags = append(tags, Tag{Name: name, Values: values})
	}

	return tags, nil
}
