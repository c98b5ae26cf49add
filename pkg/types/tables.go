package types

type TableName string

func (s TableName) Name() string {
	return string(s)
}

const (
	TABLE_CHAT_SESSION = TableName("chat_sessions")
	TABLE_CHAT_MESSAGE = TableName("chat_messages")
)
