package i18n

var ALLOW_LANG = map[string]bool{
	"en":    true,
	"zh-CN": true,
}

const DEFAULT_LANG = "en"

const (
	ERROR_INTERNAL        = "error.internal"
	ERROR_INVALIDARGUMENT = "error.invalidargument"

	ERROR_UNKNOWN_CHAT_MODE              = "error.chatmode.unknown"
	ERROR_CHAT_MODE_REQUIRED             = "error.chat.mode_required"
	ERROR_CONVERSATION_HISTORY_NOT_ARRAY = "error.chat.history_not_array"
	ERROR_USER_MESSAGE_REQUIRED          = "error.chat.user_message_required"

	ERROR_VALID_EMAIL_REQUIRED         = "error.session.valid_email_required"
	ERROR_PERSISTENCE_NOT_CONFIGURED   = "error.persistence.not_configured"
	ERROR_LINK_EMAIL_FAILED            = "error.session.link_email_failed"
	ERROR_LIST_HISTORY_FAILED          = "error.history.list_failed"
	ERROR_LOAD_MESSAGES_FAILED         = "error.history.load_messages_failed"
	ERROR_DELETE_CONVERSATION_FAILED   = "error.history.delete_failed"
	ERROR_CONVERSATION_ID_REQUIRED     = "error.history.conversation_id_required"
	ERROR_CLIENT_CONVERSATION_REQUIRED = "error.history.client_conversation_required"

	ERROR_GATEWAY_PROXY_TIMEOUT    = "error.gateway.proxy_timeout"
	ERROR_GATEWAY_UPSTREAM_TIMEOUT = "error.gateway.upstream_timeout"
)
