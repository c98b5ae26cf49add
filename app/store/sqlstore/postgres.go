package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/usageflows/chatbot/pkg/types"
	"github.com/usageflows/chatbot/pkg/utils"
)

const pgSchemaDDL = `
CREATE TABLE IF NOT EXISTS chat_sessions (
	client_id VARCHAR(256) NOT NULL PRIMARY KEY,
	email VARCHAR(320) NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS chat_messages (
	id BIGSERIAL PRIMARY KEY,
	client_id VARCHAR(256) NOT NULL,
	conversation_id VARCHAR(64) NOT NULL,
	chat_mode VARCHAR(64) NOT NULL,
	role VARCHAR(32) NOT NULL,
	content TEXT NOT NULL,
	model VARCHAR(128) NULL,
	usage TEXT NULL,
	email VARCHAR(320) NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS ix_chat_messages_client_conversation
	ON chat_messages (client_id, conversation_id, created_at);
CREATE INDEX IF NOT EXISTS ix_chat_messages_email
	ON chat_messages (email, created_at) WHERE email IS NOT NULL;
`

// PostgresChatStore stores chat history in PostgreSQL. Usage stays a TEXT
// column; cost extraction casts through jsonb at query time.
type PostgresChatStore struct {
	db      *lazyDB
	builder sq.StatementBuilderType
	schema  schemaLatch
}

func NewPostgresChatStore(cfg Config) *PostgresChatStore {
	return &PostgresChatStore{
		db:      newLazyDB(DriverPostgres, cfg),
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (s *PostgresChatStore) IsConfigured() bool { return true }

func (s *PostgresChatStore) EnsureSchema(ctx context.Context) error {
	return s.schema.ensure(func() error {
		db, err := s.db.get()
		if err != nil {
			return err
		}
		_, err = db.ExecContext(ctx, pgSchemaDDL)
		return err
	})
}

func (s *PostgresChatStore) UpsertSession(ctx context.Context, clientID, email string) error {
	db, err := s.db.get()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO `+types.TABLE_CHAT_SESSION.Name()+` (client_id, email) VALUES ($1, $2)
		 ON CONFLICT (client_id) DO UPDATE SET email = EXCLUDED.email, updated_at = now()`,
		clientID, nullIfEmpty(email))
	return err
}

func (s *PostgresChatStore) AppendMessages(ctx context.Context, clientID, conversationID, chatMode string, messages []types.MessageInput, email string) error {
	if len(messages) == 0 {
		return nil
	}
	db, err := s.db.get()
	if err != nil {
		return err
	}

	query := s.builder.Insert(types.TABLE_CHAT_MESSAGE.Name()).
		Columns("client_id", "conversation_id", "chat_mode", "role", "content", "model", "usage", "email")
	for _, m := range messages {
		query = query.Values(clientID, conversationID, chatMode,
			m.Role, m.Content, nullIfEmpty(m.Model), nullIfEmpty(string(m.Usage)), nullIfEmpty(email))
	}

	queryString, args, err := query.ToSql()
	if err != nil {
		return ErrorSqlBuild(err)
	}
	_, err = db.ExecContext(ctx, queryString, args...)
	return err
}

func (s *PostgresChatStore) BackfillEmail(ctx context.Context, clientID, email string) (int64, error) {
	db, err := s.db.get()
	if err != nil {
		return 0, err
	}
	res, err := db.ExecContext(ctx,
		`UPDATE `+types.TABLE_CHAT_MESSAGE.Name()+` SET email = $2 WHERE client_id = $1 AND (email IS NULL OR email = '')`,
		clientID, email)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *PostgresChatStore) ListConversations(ctx context.Context, clientID, email, chatMode string) ([]types.Conversation, error) {
	return s.listConversations(ctx, clientID, email, chatMode, false)
}

func (s *PostgresChatStore) ListConversationsWithPreview(ctx context.Context, clientID, email, chatMode string) ([]types.Conversation, error) {
	return s.listConversations(ctx, clientID, email, chatMode, true)
}

func (s *PostgresChatStore) listConversations(ctx context.Context, clientID, email, chatMode string, withPreview bool) ([]types.Conversation, error) {
	db, err := s.db.get()
	if err != nil {
		return nil, err
	}

	queryString, args, err := buildPostgresConversationQuery(s.builder, clientID, email, chatMode, withPreview)
	if err != nil {
		return nil, ErrorSqlBuild(err)
	}

	var res []types.Conversation
	if err = db.SelectContext(ctx, &res, queryString, args...); err != nil {
		return nil, err
	}
	if email == "" {
		for i := range res {
			res[i].ClientID = clientID
		}
	}
	return res, nil
}

// buildPostgresConversationQuery groups messages into conversations. With an
// email the grouping spans clients and matches the email exactly; otherwise
// rows are confined to one client.
func buildPostgresConversationQuery(builder sq.StatementBuilderType, clientID, email, chatMode string, withPreview bool) (string, []interface{}, error) {
	table := types.TABLE_CHAT_MESSAGE.Name()
	previewCol := `(SELECT content FROM ` + table + ` p
		WHERE p.client_id = m.client_id AND p.conversation_id = m.conversation_id AND p.role = 'user'
		ORDER BY p.created_at ASC LIMIT 1) AS question_preview`

	if email != "" {
		cols := []string{
			"DISTINCT m.client_id", "m.conversation_id", "m.chat_mode",
			`(SELECT MIN(created_at) FROM ` + table + ` f
				WHERE f.client_id = m.client_id AND f.conversation_id = m.conversation_id) AS created_at`,
		}
		if withPreview {
			cols = append(cols, previewCol)
		}
		query := builder.Select(cols...).
			From(table + " m").
			Where(sq.Eq{"m.email": email}).
			OrderBy("created_at DESC")
		if strings.TrimSpace(chatMode) != "" {
			query = query.Where(sq.Eq{"m.chat_mode": strings.TrimSpace(chatMode)})
		}
		return query.ToSql()
	}

	cols := []string{"m.conversation_id", "m.chat_mode", "MIN(m.created_at) AS created_at"}
	if withPreview {
		cols = append(cols, previewCol)
	}
	query := builder.Select(cols...).
		From(table + " m").
		Where(sq.Eq{"m.client_id": clientID}).
		GroupBy("m.client_id", "m.conversation_id", "m.chat_mode").
		OrderBy("MIN(m.created_at) DESC")
	if strings.TrimSpace(chatMode) != "" {
		query = query.Where(sq.Eq{"m.chat_mode": strings.TrimSpace(chatMode)})
	}
	return query.ToSql()
}

// pgCostSumExpr sums per-turn cost over assistant turns, trying the usage
// keys in their priority order. Postgres has no TRY_CAST, so every cast sits
// inside a CASE (CASE evaluates lazily): a row whose usage is not a JSON
// object, or whose cost value is non-numeric, contributes nothing instead of
// aborting the whole query.
func pgCostSumExpr(table string) string {
	casts := make([]string, 0, len(types.UsageCostFields))
	for _, field := range types.UsageCostFields {
		v := fmt.Sprintf("c.usage::jsonb->>'%s'", field)
		casts = append(casts, fmt.Sprintf(`CASE WHEN %s ~ '^-?[0-9]+(\.[0-9]+)?([eE][+-]?[0-9]+)?$' THEN (%s)::float END`, v, v))
	}
	return `(SELECT SUM(CASE WHEN c.usage ~ '^\s*\{' THEN COALESCE(` + strings.Join(casts, ", ") + `) END)
		FROM ` + table + ` c
		WHERE c.client_id = m.client_id AND c.conversation_id = m.conversation_id
			AND c.role = 'assistant' AND c.usage IS NOT NULL AND length(c.usage) > 0) AS total_cost`
}

func (s *PostgresChatStore) ListConversationsForAdmin(ctx context.Context, opts types.ListAdminConversationOptions) ([]types.AdminConversation, error) {
	db, err := s.db.get()
	if err != nil {
		return nil, err
	}

	queryString, args, err := buildPostgresAdminQuery(s.builder, opts)
	if err != nil {
		return nil, ErrorSqlBuild(err)
	}

	var res []types.AdminConversation
	if err = db.SelectContext(ctx, &res, queryString, args...); err != nil {
		return nil, err
	}
	return res, nil
}

func buildPostgresAdminQuery(builder sq.StatementBuilderType, opts types.ListAdminConversationOptions) (string, []interface{}, error) {
	table := types.TABLE_CHAT_MESSAGE.Name()
	query := builder.Select(
		"m.client_id",
		"MAX(m.email) AS email",
		"m.conversation_id",
		"m.chat_mode",
		"MIN(m.created_at) AS created_at",
		`(SELECT content FROM `+table+` p
			WHERE p.client_id = m.client_id AND p.conversation_id = m.conversation_id AND p.role = 'user'
			ORDER BY p.created_at ASC LIMIT 1) AS question_preview`,
		`(SELECT a.model FROM `+table+` a
			WHERE a.client_id = m.client_id AND a.conversation_id = m.conversation_id
				AND a.role = 'assistant' AND a.model IS NOT NULL AND a.model <> ''
			ORDER BY a.created_at DESC LIMIT 1) AS model`,
		pgCostSumExpr(table),
	).
		From(table + " m").
		GroupBy("m.client_id", "m.conversation_id", "m.chat_mode").
		OrderBy("MIN(m.created_at) DESC").
		Limit(uint64(clampAdminLimit(opts.Limit)))

	if v := strings.TrimSpace(opts.ClientID); v != "" {
		query = query.Where(sq.Eq{"m.client_id": utils.TruncateString(v, types.MAX_CLIENT_ID_LENGTH)})
	}
	if v := strings.TrimSpace(opts.Email); v != "" {
		query = query.Where(sq.Like{"m.email": "%" + utils.TruncateString(v, types.MAX_EMAIL_LENGTH) + "%"})
	}
	if v := strings.TrimSpace(opts.ChatMode); v != "" {
		query = query.Where(sq.Eq{"m.chat_mode": utils.TruncateString(v, types.MAX_CHAT_MODE_LENGTH)})
	}
	return query.ToSql()
}

func (s *PostgresChatStore) GetMessages(ctx context.Context, clientID, conversationID string) ([]types.MessageRecord, error) {
	db, err := s.db.get()
	if err != nil {
		return nil, err
	}

	query := s.builder.Select("role", "content", "model", "usage", "created_at").
		From(types.TABLE_CHAT_MESSAGE.Name()).
		Where(sq.Eq{"client_id": clientID, "conversation_id": conversationID}).
		OrderBy("created_at ASC", "id ASC")

	queryString, args, err := query.ToSql()
	if err != nil {
		return nil, ErrorSqlBuild(err)
	}

	var res []types.MessageRecord
	if err = db.SelectContext(ctx, &res, queryString, args...); err != nil {
		return nil, err
	}
	decodeUsage(res)
	return res, nil
}

func (s *PostgresChatStore) DeleteConversation(ctx context.Context, clientID, conversationID string) (int64, error) {
	db, err := s.db.get()
	if err != nil {
		return 0, err
	}

	query := s.builder.Delete(types.TABLE_CHAT_MESSAGE.Name()).
		Where(sq.Eq{"client_id": clientID, "conversation_id": conversationID})

	queryString, args, err := query.ToSql()
	if err != nil {
		return 0, ErrorSqlBuild(err)
	}
	res, err := db.ExecContext(ctx, queryString, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *PostgresChatStore) GetClientIDByEmail(ctx context.Context, email string) (string, error) {
	db, err := s.db.get()
	if err != nil {
		return "", err
	}

	var clientID string
	err = db.GetContext(ctx, &clientID,
		`SELECT client_id FROM `+types.TABLE_CHAT_SESSION.Name()+` WHERE email = $1 ORDER BY updated_at DESC LIMIT 1`,
		email)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return clientID, err
}

func (s *PostgresChatStore) GetSessionEmail(ctx context.Context, clientID string) (string, error) {
	db, err := s.db.get()
	if err != nil {
		return "", err
	}

	var email sql.NullString
	err = db.GetContext(ctx, &email,
		`SELECT email FROM `+types.TABLE_CHAT_SESSION.Name()+` WHERE client_id = $1`,
		clientID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return email.String, err
}
