package v1

import (
	"context"
	"net/http"
	"strings"

	"github.com/usageflows/chatbot/app/core"
	"github.com/usageflows/chatbot/pkg/errors"
	"github.com/usageflows/chatbot/pkg/i18n"
	"github.com/usageflows/chatbot/pkg/types"
)

type SessionLogic struct {
	ctx  context.Context
	core *core.Core
}

func NewSessionLogic(ctx context.Context, core *core.Core) *SessionLogic {
	return &SessionLogic{
		ctx:  ctx,
		core: core,
	}
}

type LinkEmailResult struct {
	OK         bool  `json:"ok"`
	Backfilled int64 `json:"backfilled"`
}

// LinkEmail binds an email to the caller's client id and stamps it onto any
// of their messages that predate the link.
func (l *SessionLogic) LinkEmail(clientID, email string) (*LinkEmailResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || len(email) > types.MAX_EMAIL_LENGTH {
		return nil, errors.New("SessionLogic.LinkEmail.Email", i18n.ERROR_VALID_EMAIL_REQUIRED, nil).Code(http.StatusBadRequest)
	}
	if !l.core.Store().IsConfigured() {
		return nil, errors.New("SessionLogic.LinkEmail.Store", i18n.ERROR_PERSISTENCE_NOT_CONFIGURED, nil).Code(http.StatusServiceUnavailable)
	}

	if err := l.core.Store().EnsureSchema(l.ctx); err != nil {
		return nil, errors.New("SessionLogic.LinkEmail.EnsureSchema", i18n.ERROR_LINK_EMAIL_FAILED, err)
	}
	if err := l.core.Store().UpsertSession(l.ctx, clientID, email); err != nil {
		return nil, errors.New("SessionLogic.LinkEmail.UpsertSession", i18n.ERROR_LINK_EMAIL_FAILED, err)
	}
	backfilled, err := l.core.Store().BackfillEmail(l.ctx, clientID, email)
	if err != nil {
		return nil, errors.New("SessionLogic.LinkEmail.BackfillEmail", i18n.ERROR_LINK_EMAIL_FAILED, err)
	}

	return &LinkEmailResult{OK: true, Backfilled: backfilled}, nil
}
