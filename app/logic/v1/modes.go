package v1

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/usageflows/chatbot/app/core"
	"github.com/usageflows/chatbot/pkg/errors"
	"github.com/usageflows/chatbot/pkg/i18n"
	"github.com/usageflows/chatbot/pkg/rules"
)

type ModeLogic struct {
	ctx  context.Context
	core *core.Core
}

func NewModeLogic(ctx context.Context, core *core.Core) *ModeLogic {
	return &ModeLogic{
		ctx:  ctx,
		core: core,
	}
}

// ListModes returns every chat mode with its template metadata. An empty or
// missing rules directory yields an empty list.
func (l *ModeLogic) ListModes() []rules.ModeInfo {
	modes := l.core.RulesStore().ListModes()
	if modes == nil {
		modes = []rules.ModeInfo{}
	}
	return modes
}

// GetRulesContent returns the raw template body of one chat mode.
func (l *ModeLogic) GetRulesContent(chatMode string) (string, error) {
	template, err := l.core.RulesStore().Load(chatMode)
	if err != nil {
		var notFound rules.ErrNotFound
		if stderrors.As(err, &notFound) {
			return "", errors.New("ModeLogic.GetRulesContent.Load", i18n.ERROR_UNKNOWN_CHAT_MODE, err).Code(http.StatusNotFound)
		}
		return "", errors.New("ModeLogic.GetRulesContent.Load", i18n.ERROR_INTERNAL, err)
	}
	return template.Content, nil
}
