package record

import "fmt"

// Kind is the tagged-variant discriminator of a record. It is immutable
// once a record is constructed and participates in the content hash.
type Kind string

const (
	KindAttribute Kind = "attribute"
	KindObject    Kind = "object"
	KindEvent     Kind = "event"
	KindSession   Kind = "session"
	KindRaw       Kind = "raw"
)

// UnknownKindError reports a kind tag outside the variant family.
// Decoding an untyped document switches on the tag and fails typed
// instead of guessing.
type UnknownKindError struct {
	Tag string
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("record: unknown kind tag %q", e.Tag)
}

// DecodeKind validates a kind tag.
func DecodeKind(tag string) (Kind, error) {
	switch k := Kind(tag); k {
	case KindAttribute, KindObject, KindEvent, KindSession, KindRaw:
		return k, nil
	default:
		return "", &UnknownKindError{Tag: tag}
	}
}

// Category classifies an event's judgement about its content. It is
// mutable metadata, never part of the event's identity.
type Category string

const (
	CategoryBenign    Category = "benign"
	CategoryMalicious Category = "malicious"
	CategoryUnknown   Category = "unknown"
)

// DecodeCategory validates a category tag.
func DecodeCategory(tag string) (Category, error) {
	switch c := Category(tag); c {
	case CategoryBenign, CategoryMalicious, CategoryUnknown:
		return c, nil
	default:
		return "", fmt.Errorf("record: unknown category %q", tag)
	}
}
