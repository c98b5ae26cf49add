package v1

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/usageflows/chatbot/pkg/utils"
)

func Test_DeriveClientID_Precedence(t *testing.T) {
	assert.Equal(t, "from-header", DeriveClientID("from-header", "from-body", "from-query", "1.2.3.4"))
	assert.Equal(t, "from-body", DeriveClientID("", "from-body", "from-query", "1.2.3.4"))
	assert.Equal(t, "from-query", DeriveClientID("  ", "", "from-query", "1.2.3.4"))
}

func Test_DeriveClientID_FallsBackToIPHash(t *testing.T) {
	got := DeriveClientID("", "", "", "1.2.3.4")
	assert.Equal(t, utils.SHA256Hex("1.2.3.4"), got)
	assert.Len(t, got, 64)

	// Two anonymous callers behind the same address share an identity.
	assert.Equal(t, got, DeriveClientID("", "", "", "1.2.3.4"))
	assert.NotEqual(t, got, DeriveClientID("", "", "", "5.6.7.8"))

	assert.Equal(t, utils.SHA256Hex("unknown"), DeriveClientID("", "", "", ""))
}

func Test_DeriveClientID_Bounds(t *testing.T) {
	long := strings.Repeat("a", 1000)
	got := DeriveClientID(" "+long+" ", "", "", "1.2.3.4")
	assert.Len(t, got, 256)
}
