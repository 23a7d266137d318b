package answer

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptional(t *testing.T) {
	var absent Optional[string]
	_, ok := absent.Get()
	assert.False(t, ok)
	assert.Equal(t, "fallback", absent.OrElse("fallback"))
	assert.Equal(t, None[string](), absent)

	present := Some("value")
	v, ok := present.Get()
	assert.True(t, ok)
	assert.Equal(t, "value", v)
	assert.Equal(t, "value", present.OrElse("fallback"))

	// an empty string is still present
	assert.True(t, Some("").IsSome())
}

func TestOptional_JSON(t *testing.T) {
	type holder struct {
		Title Optional[string] `json:"title"`
	}

	t.Run("null decodes to absent", func(t *testing.T) {
		var h holder
		require.NoError(t, json.Unmarshal([]byte(`{"title":null}`), &h))
		assert.False(t, h.Title.IsSome())
	})

	t.Run("missing decodes to absent", func(t *testing.T) {
		var h holder
		require.NoError(t, json.Unmarshal([]byte(`{}`), &h))
		assert.False(t, h.Title.IsSome())
	})

	t.Run("value decodes to present", func(t *testing.T) {
		var h holder
		require.NoError(t, json.Unmarshal([]byte(`{"title":"Guide"}`), &h))
		assert.Equal(t, Some("Guide"), h.Title)
	})

	t.Run("wrong type is an error", func(t *testing.T) {
		var h holder
		assert.Error(t, json.Unmarshal([]byte(`{"title":12}`), &h))
	})

	t.Run("encodes absent as null", func(t *testing.T) {
		out, err := json.Marshal(holder{})
		require.NoError(t, err)
		assert.JSONEq(t, `{"title":null}`, string(out))

		out, err = json.Marshal(holder{Title: Some("x")})
		require.NoError(t, err)
		assert.JSONEq(t, `{"title":"x"}`, string(out))
	})
}

func TestAnswerPayload_DecodeClientShape(t *testing.T) {
	raw := `{
		"answer": "See [doc1].",
		"citations": [
			{"id": "doc1", "filepath": "file1.pdf", "content": "", "title": null,
			 "url": null, "metadata": null, "chunk_id": null, "reindex_id": null}
		]
	}`

	var payload AnswerPayload
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))

	parsed, err := ParseAnswer(payload)
	require.NoError(t, err)
	assert.Equal(t, "See  ^1^ .", parsed.FormattedText)

	out, err := json.Marshal(parsed)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"markdown_format_text": "See  ^1^ .",
		"citations": [
			{"id": "1", "filepath": "file1.pdf", "part_index": 1, "content": "", "title": null,
			 "url": null, "metadata": null, "chunk_id": null, "reindex_id": "1"}
		]
	}`, string(out))
}

func TestAnswerPayload_DecodeMissingFields(t *testing.T) {
	var payload AnswerPayload
	require.NoError(t, json.Unmarshal([]byte(`{"citations": []}`), &payload))
	_, err := ParseAnswer(payload)
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	payload = AnswerPayload{}
	require.NoError(t, json.Unmarshal([]byte(`{"answer": "x", "citations": null}`), &payload))
	_, err = ParseAnswer(payload)
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestNewPayload_NilCitations(t *testing.T) {
	payload := NewPayload("text [doc1]", nil)
	parsed, err := ParseAnswer(payload)
	require.NoError(t, err)
	assert.Equal(t, "text [doc1]", parsed.FormattedText)
	assert.Empty(t, parsed.Citations)
}
