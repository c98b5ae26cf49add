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

const mssqlSchemaDDL = `
IF OBJECT_ID(N'dbo.chat_sessions', N'U') IS NULL
CREATE TABLE dbo.chat_sessions (
	client_id NVARCHAR(256) NOT NULL PRIMARY KEY,
	email NVARCHAR(320) NULL,
	created_at DATETIME2 NOT NULL DEFAULT GETUTCDATE(),
	updated_at DATETIME2 NOT NULL DEFAULT GETUTCDATE()
);

IF OBJECT_ID(N'dbo.chat_messages', N'U') IS NULL
CREATE TABLE dbo.chat_messages (
	id BIGINT IDENTITY(1,1) NOT NULL PRIMARY KEY,
	client_id NVARCHAR(256) NOT NULL,
	conversation_id NVARCHAR(64) NOT NULL,
	chat_mode NVARCHAR(64) NOT NULL,
	role NVARCHAR(32) NOT NULL,
	content NVARCHAR(MAX) NOT NULL,
	model NVARCHAR(128) NULL,
	usage NVARCHAR(MAX) NULL,
	email NVARCHAR(320) NULL,
	created_at DATETIME2 NOT NULL DEFAULT GETUTCDATE()
);

IF NOT EXISTS (SELECT 1 FROM sys.indexes WHERE name = 'IX_chat_messages_client_conversation')
CREATE INDEX IX_chat_messages_client_conversation ON dbo.chat_messages (client_id, conversation_id, created_at);
IF NOT EXISTS (SELECT 1 FROM sys.indexes WHERE name = 'IX_chat_messages_email')
CREATE INDEX IX_chat_messages_email ON dbo.chat_messages (email, created_at) WHERE email IS NOT NULL;
`

// SQLServerChatStore is the SQL Server rendition of the chat history store.
// Same shape as the postgres one, with MERGE instead of ON CONFLICT and
// TOP instead of LIMIT.
type SQLServerChatStore struct {
	db      *lazyDB
	builder sq.StatementBuilderType
	schema  schemaLatch
}

func NewSQLServerChatStore(cfg Config) *SQLServerChatStore {
	return &SQLServerChatStore{
		db:      newLazyDB(DriverSQLServer, cfg),
		builder: sq.StatementBuilder.PlaceholderFormat(sq.AtP),
	}
}

func (s *SQLServerChatStore) IsConfigured() bool { return true }

func (s *SQLServerChatStore) EnsureSchema(ctx context.Context) error {
	return s.schema.ensure(func() error {
		db, err := s.db.get()
		if err != nil {
			return err
		}
		_, err = db.ExecContext(ctx, mssqlSchemaDDL)
		return err
	})
}

func (s *SQLServerChatStore) UpsertSession(ctx context.Context, clientID, email string) error {
	db, err := s.db.get()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx,
		`MERGE `+mssqlTable(types.TABLE_CHAT_SESSION)+` AS t
		 USING (SELECT @p1 AS client_id, @p2 AS email) AS src
		 ON t.client_id = src.client_id
		 WHEN MATCHED THEN UPDATE SET email = src.email, updated_at = GETUTCDATE()
		 WHEN NOT MATCHED THEN INSERT (client_id, email) VALUES (src.client_id, src.email);`,
		clientID, nullIfEmpty(email))
	return err
}

func (s *SQLServerChatStore) AppendMessages(ctx context.Context, clientID, conversationID, chatMode string, messages []types.MessageInput, email string) error {
	if len(messages) == 0 {
		return nil
	}
	db, err := s.db.get()
	if err != nil {
		return err
	}

	query := s.builder.Insert(mssqlTable(types.TABLE_CHAT_MESSAGE)).
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

func (s *SQLServerChatStore) BackfillEmail(ctx context.Context, clientID, email string) (int64, error) {
	db, err := s.db.get()
	if err != nil {
		return 0, err
	}
	res, err := db.ExecContext(ctx,
		`UPDATE `+mssqlTable(types.TABLE_CHAT_MESSAGE)+` SET email = @p2 WHERE client_id = @p1 AND (email IS NULL OR email = '')`,
		clientID, email)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLServerChatStore) ListConversations(ctx context.Context, clientID, email, chatMode string) ([]types.Conversation, error) {
	return s.listConversations(ctx, clientID, email, chatMode, false)
}

func (s *SQLServerChatStore) ListConversationsWithPreview(ctx context.Context, clientID, email, chatMode string) ([]types.Conversation, error) {
	return s.listConversations(ctx, clientID, email, chatMode, true)
}

func (s *SQLServerChatStore) listConversations(ctx context.Context, clientID, email, chatMode string, withPreview bool) ([]types.Conversation, error) {
	db, err := s.db.get()
	if err != nil {
		return nil, err
	}

	queryString, args, err := buildSQLServerConversationQuery(s.builder, clientID, email, chatMode, withPreview)
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

func buildSQLServerConversationQuery(builder sq.StatementBuilderType, clientID, email, chatMode string, withPreview bool) (string, []interface{}, error) {
	table := mssqlTable(types.TABLE_CHAT_MESSAGE)
	previewCol := `(SELECT TOP 1 content FROM ` + table + ` p
		WHERE p.client_id = m.client_id AND p.conversation_id = m.conversation_id AND p.role = 'user'
		ORDER BY p.created_at ASC) AS question_preview`

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

// mssqlCostSumExpr mirrors the postgres cost aggregate using JSON_VALUE.
// TRY_CAST keeps malformed usage payloads from failing the whole query.
func mssqlCostSumExpr(table string) string {
	casts := make([]string, 0, len(types.UsageCostFields))
	for _, field := range types.UsageCostFields {
		casts = append(casts, fmt.Sprintf("TRY_CAST(JSON_VALUE(c.usage, '$.%s') AS FLOAT)", field))
	}
	return `(SELECT SUM(COALESCE(` + strings.Join(casts, ", ") + `))
		FROM ` + table + ` c
		WHERE c.client_id = m.client_id AND c.conversation_id = m.conversation_id
			AND c.role = 'assistant' AND c.usage IS NOT NULL AND LEN(c.usage) > 0) AS total_cost`
}

func (s *SQLServerChatStore) ListConversationsForAdmin(ctx context.Context, opts types.ListAdminConversationOptions) ([]types.AdminConversation, error) {
	db, err := s.db.get()
	if err != nil {
		return nil, err
	}

	queryString, args, err := buildSQLServerAdminQuery(s.builder, opts)
	if err != nil {
		return nil, ErrorSqlBuild(err)
	}

	var res []types.AdminConversation
	if err = db.SelectContext(ctx, &res, queryString, args...); err != nil {
		return nil, err
	}
	return res, nil
}

func buildSQLServerAdminQuery(builder sq.StatementBuilderType, opts types.ListAdminConversationOptions) (string, []interface{}, error) {
	table := mssqlTable(types.TABLE_CHAT_MESSAGE)
	query := builder.Select(
		"m.client_id",
		"MAX(m.email) AS email",
		"m.conversation_id",
		"m.chat_mode",
		"MIN(m.created_at) AS created_at",
		`(SELECT TOP 1 content FROM `+table+` p
			WHERE p.client_id = m.client_id AND p.conversation_id = m.conversation_id AND p.role = 'user'
			ORDER BY p.created_at ASC) AS question_preview`,
		`(SELECT TOP 1 a.model FROM `+table+` a
			WHERE a.client_id = m.client_id AND a.conversation_id = m.conversation_id
				AND a.role = 'assistant' AND a.model IS NOT NULL AND a.model <> ''
			ORDER BY a.created_at DESC) AS model`,
		mssqlCostSumExpr(table),
	).
		Options(fmt.Sprintf("TOP (%d)", clampAdminLimit(opts.Limit))).
		From(table + " m").
		GroupBy("m.client_id", "m.conversation_id", "m.chat_mode").
		OrderBy("MIN(m.created_at) DESC")

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

func (s *SQLServerChatStore) GetMessages(ctx context.Context, clientID, conversationID string) ([]types.MessageRecord, error) {
	db, err := s.db.get()
	if err != nil {
		return nil, err
	}

	query := s.builder.Select("role", "content", "model", "usage", "created_at").
		From(mssqlTable(types.TABLE_CHAT_MESSAGE)).
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

func (s *SQLServerChatStore) DeleteConversation(ctx context.Context, clientID, conversationID string) (int64, error) {
	db, err := s.db.get()
	if err != nil {
		return 0, err
	}

	query := s.builder.Delete(mssqlTable(types.TABLE_CHAT_MESSAGE)).
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

func (s *SQLServerChatStore) GetClientIDByEmail(ctx context.Context, email string) (string, error) {
	db, err := s.db.get()
	if err != nil {
		return "", err
	}

	var clientID string
	err = db.GetContext(ctx, &clientID,
		`SELECT TOP 1 client_id FROM `+mssqlTable(types.TABLE_CHAT_SESSION)+` WHERE email = @p1 ORDER BY updated_at DESC`,
		email)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return clientID, err
}

func (s *SQLServerChatStore) GetSessionEmail(ctx context.Context, clientID string) (string, error) {
	db, err := s.db.get()
	if err != nil {
		return "", err
	}

	var email sql.NullString
	err = db.GetContext(ctx, &email,
		`SELECT email FROM `+mssqlTable(types.TABLE_CHAT_SESSION)+` WHERE client_id = @p1`,
		clientID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return email.String, err
}

func mssqlTable(t types.TableName) string {
	return "dbo." + t.Name()
}
