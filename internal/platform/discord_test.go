package platform

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"warden/internal/notify"
	"warden/internal/sanction"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
)

func TestClassifyForbidden(t *testing.T) {
	restErr := &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusForbidden}}
	err := classify(restErr)
	assert.ErrorIs(t, err, sanction.ErrForbidden)

	var target *discordgo.RESTError
	assert.ErrorAs(t, err, &target, "original error stays reachable")
}

func TestClassifyPassesOtherErrors(t *testing.T) {
	notFound := &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusNotFound}}
	assert.NotErrorIs(t, classify(notFound), sanction.ErrForbidden)

	plain := errors.New("socket closed")
	assert.Equal(t, plain, classify(plain))
	assert.NoError(t, classify(nil))
}

func TestAuditReasonSetsHeader(t *testing.T) {
	assert.Empty(t, auditReason(""))

	req := httptest.NewRequest(http.MethodPut, "/guilds/g1/members/u1/roles/r1", nil)
	cfg := &discordgo.RequestConfig{Request: req}
	for _, opt := range auditReason("spam") {
		opt(cfg)
	}
	assert.Equal(t, "spam", req.Header.Get("X-Audit-Log-Reason"))
}

var (
	_ sanction.Platform = (*Discord)(nil)
	_ notify.Messenger  = (*Discord)(nil)
)
