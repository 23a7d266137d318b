package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Kocoro-lab/Shannon/go/annotator/internal/answer"
)

// CitationList is a json column holding the renumbered citations.
type CitationList []answer.Citation

// Value implements the driver.Valuer interface
func (c CitationList) Value() (driver.Value, error) {
	if c == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]answer.Citation(c))
}

// Scan implements the sql.Scanner interface
func (c *CitationList) Scan(value interface{}) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		*c = CitationList{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into CitationList", value)
	}
	var out []answer.Citation
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	if out == nil {
		out = []answer.Citation{}
	}
	*c = out
	return nil
}

// AnnotatedAnswer is one rendered answer kept for conversation history.
type AnnotatedAnswer struct {
	ID             uuid.UUID    `db:"id" json:"id"`
	ConversationID string       `db:"conversation_id" json:"conversation_id"`
	MessageID      *string      `db:"message_id" json:"message_id,omitempty"`
	RawText        string       `db:"raw_text" json:"raw_text"`
	FormattedText  string       `db:"formatted_text" json:"markdown_format_text"`
	Citations      CitationList `db:"citations" json:"citations"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
}

// NewAnnotatedAnswer builds a record for a parsed answer. An empty
// messageID is stored as NULL.
func NewAnnotatedAnswer(conversationID, messageID, rawText string, parsed answer.ParsedAnswer) *AnnotatedAnswer {
	rec := &AnnotatedAnswer{
		ID:             uuid.New(),
		ConversationID: conversationID,
		RawText:        rawText,
		FormattedText:  parsed.FormattedText,
		Citations:      CitationList(parsed.Citations),
		CreatedAt:      time.Now().UTC(),
	}
	if messageID != "" {
		rec.MessageID = &messageID
	}
	return rec
}
