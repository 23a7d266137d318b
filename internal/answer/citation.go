package answer

import (
	"bytes"
	"encoding/json"
)

// Optional holds a value that may be absent. The zero value is absent.
// It marshals to JSON null when absent so nullable citation fields round-trip
// without relying on pointer nil-ness.
type Optional[T any] struct {
	value T
	ok    bool
}

// Some returns a present Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, ok: true}
}

// None returns an absent Optional.
func None[T any]() Optional[T] {
	return Optional[T]{}
}

// Get returns the value and whether it is present.
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.ok
}

// IsSome reports whether a value is present.
func (o Optional[T]) IsSome() bool {
	return o.ok
}

// OrElse returns the value when present and def otherwise.
func (o Optional[T]) OrElse(def T) T {
	if o.ok {
		return o.value
	}
	return def
}

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.ok {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*o = None[T]()
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}

// Citation is one source record attached to a generated answer.
//
// ID is the retrieval key on input (e.g. "doc1") and the display number on
// output. PartIndex is always computed by GroupAndIndex; any caller-supplied
// value is overwritten.
type Citation struct {
	ID         string           `json:"id"`
	SourcePath string           `json:"filepath"`
	PartIndex  int              `json:"part_index,omitempty"`
	Content    string           `json:"content"`
	Title      Optional[string] `json:"title"`
	URL        Optional[string] `json:"url"`
	Metadata   Optional[string] `json:"metadata"`
	ChunkID    Optional[string] `json:"chunk_id"`
	ReindexID  Optional[string] `json:"reindex_id"`
}

// AnswerPayload is the raw generated answer with its candidate citations.
// A nil Citations slice means the field was not supplied.
type AnswerPayload struct {
	Text      Optional[string] `json:"answer"`
	Citations []Citation       `json:"citations"`
}

// NewPayload builds a payload with both fields present.
func NewPayload(text string, citations []Citation) AnswerPayload {
	if citations == nil {
		citations = []Citation{}
	}
	return AnswerPayload{Text: Some(text), Citations: citations}
}

// ParsedAnswer is the display-ready answer. Citations holds only the records
// referenced in the text, numbered in first-appearance order.
type ParsedAnswer struct {
	FormattedText string     `json:"markdown_format_text"`
	Citations     []Citation `json:"citations"`
}

// Report counts what a single scan found.
type Report struct {
	Tokens     int `json:"tokens"`     // bracketed candidates inspected
	Resolved   int `json:"resolved"`   // candidates that matched a citation id
	Unresolved int `json:"unresolved"` // candidates left as literal text
	Distinct   int `json:"distinct"`   // distinct citations emitted
}
