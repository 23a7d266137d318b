package db

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Kocoro-lab/Shannon/go/annotator/internal/answer"
)

var answerColumns = []string{"id", "conversation_id", "message_id", "raw_text", "formatted_text", "citations", "created_at"}

func newMockClient(t *testing.T) (*Client, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewFromDB(sqlx.NewDb(db, "postgres"), zaptest.NewLogger(t)), mock
}

func sampleParsed(t *testing.T) answer.ParsedAnswer {
	t.Helper()
	parsed, err := answer.ParseAnswer(answer.NewPayload("See [doc1].", []answer.Citation{
		{ID: "doc1", SourcePath: "file1.pdf"},
	}))
	require.NoError(t, err)
	return parsed
}

func TestSaveAnswer(t *testing.T) {
	client, mock := newMockClient(t)
	rec := NewAnnotatedAnswer("conv-1", "msg-1", "See [doc1].", sampleParsed(t))

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO annotated_answers")).
		WithArgs(rec.ID, "conv-1", "msg-1", "See [doc1].", "See  ^1^ .", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, client.SaveAnswer(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveAnswer_FillsDefaults(t *testing.T) {
	client, mock := newMockClient(t)
	rec := &AnnotatedAnswer{ConversationID: "conv-1", RawText: "x", FormattedText: "x"}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO annotated_answers")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, client.SaveAnswer(context.Background(), rec))
	assert.NotEqual(t, uuid.Nil, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())
	assert.NotNil(t, rec.Citations)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveAnswer_Error(t *testing.T) {
	client, mock := newMockClient(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO annotated_answers")).
		WillReturnError(errors.New("connection reset"))

	err := client.SaveAnswer(context.Background(), &AnnotatedAnswer{ConversationID: "c"})
	assert.Error(t, err)
}

func TestGetAnswer(t *testing.T) {
	client, mock := newMockClient(t)
	id := uuid.New()
	now := time.Now().UTC().Truncate(time.Second)
	citations := `[{"id":"1","filepath":"file1.pdf","part_index":1,"content":"","title":null,"url":null,"metadata":null,"chunk_id":null,"reindex_id":"1"}]`

	mock.ExpectQuery(regexp.QuoteMeta("FROM annotated_answers WHERE id = $1")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(answerColumns).
			AddRow(id.String(), "conv-1", nil, "See [doc1].", "See  ^1^ .", []byte(citations), now))

	rec, err := client.GetAnswer(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, rec.ID)
	assert.Nil(t, rec.MessageID)
	assert.Equal(t, "See  ^1^ .", rec.FormattedText)
	require.Len(t, rec.Citations, 1)
	assert.Equal(t, "1", rec.Citations[0].ID)
	assert.Equal(t, answer.Some("1"), rec.Citations[0].ReindexID)
	assert.Equal(t, 1, rec.Citations[0].PartIndex)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAnswer_NotFound(t *testing.T) {
	client, mock := newMockClient(t)
	id := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("FROM annotated_answers WHERE id = $1")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(answerColumns))

	_, err := client.GetAnswer(context.Background(), id)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestListByConversation(t *testing.T) {
	client, mock := newMockClient(t)
	now := time.Now().UTC().Truncate(time.Second)

	tests := []struct {
		name      string
		limit     int
		wantLimit int
	}{
		{name: "default limit", limit: 0, wantLimit: defaultListLimit},
		{name: "explicit limit", limit: 5, wantLimit: 5},
		{name: "capped limit", limit: 10000, wantLimit: maxListLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock.ExpectQuery(regexp.QuoteMeta("WHERE conversation_id = $1 ORDER BY created_at ASC LIMIT $2")).
				WithArgs("conv-1", tt.wantLimit).
				WillReturnRows(sqlmock.NewRows(answerColumns).
					AddRow(uuid.New().String(), "conv-1", "m1", "a", "a", []byte("[]"), now).
					AddRow(uuid.New().String(), "conv-1", "m2", "b", "b", "[]", now.Add(time.Second)))

			out, err := client.ListByConversation(context.Background(), "conv-1", tt.limit)
			require.NoError(t, err)
			require.Len(t, out, 2)
			require.NotNil(t, out[0].MessageID)
			assert.Equal(t, "m1", *out[0].MessageID)
			assert.Empty(t, out[1].Citations)
		})
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	client, mock := newMockClient(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS annotated_answers")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE INDEX IF NOT EXISTS idx_annotated_answers_conversation")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, client.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCitationList_Scan(t *testing.T) {
	var c CitationList
	require.NoError(t, c.Scan(nil))
	assert.NotNil(t, c)
	assert.Empty(t, c)

	require.NoError(t, c.Scan(`[{"id":"1","filepath":"a.pdf","content":"","title":"T"}]`))
	require.Len(t, c, 1)
	assert.Equal(t, answer.Some("T"), c[0].Title)

	assert.Error(t, c.Scan(42))
	assert.Error(t, c.Scan([]byte("{")))
}

func TestNewAnnotatedAnswer_EmptyMessageID(t *testing.T) {
	rec := NewAnnotatedAnswer("conv", "", "raw", answer.ParsedAnswer{})
	assert.Nil(t, rec.MessageID)
	assert.Equal(t, "conv", rec.ConversationID)
}
