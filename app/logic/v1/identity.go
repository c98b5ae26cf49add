package v1

import (
	"github.com/usageflows/chatbot/pkg/types"
	"github.com/usageflows/chatbot/pkg/utils"
)

// DeriveClientID picks the caller-supplied session id with header taking
// precedence over body, then query. Without one the client collapses to a
// hash of its IP, so everyone behind the same NAT shares a history.
func DeriveClientID(headerSessionID, bodySessionID, querySessionID, remoteIP string) string {
	for _, candidate := range []string{headerSessionID, bodySessionID, querySessionID} {
		if v := utils.TrimAndBound(candidate, types.MAX_CLIENT_ID_LENGTH); v != "" {
			return v
		}
	}
	if remoteIP == "" {
		remoteIP = "unknown"
	}
	return utils.SHA256Hex(remoteIP)
}
