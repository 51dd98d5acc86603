package attacktest_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/loki-oidc/loki-splice/pkg/attacktest"
	"github.com/loki-oidc/loki-splice/pkg/oauthclient"
)

func TestSetupResult_GettersDefaultWhenAbsent(t *testing.T) {
	t.Parallel()
	s := attacktest.NewSetupResult(nil)
	assert.False(t, s.Bool("missing"))
	assert.Equal(t, "", s.String("missing"))

	s.Set("has_aud", true)
	s.Set("actor_sub", "agent-a")
	assert.True(t, s.Bool("has_aud"))
	assert.Equal(t, "agent-a", s.String("actor_sub"))
}

func TestExpectRejection_InconclusiveSkips(t *testing.T) {
	t.Parallel()
	resp := attacktest.NewAttackResponse(&oauthclient.Response{Status: 500})
	v := attacktest.ExpectRejection(resp)
	assert.Equal(t, attacktest.StatusSkipped, v.Status)
}

func TestExpectRejection_SecurityRejectionPasses(t *testing.T) {
	t.Parallel()
	resp := attacktest.NewAttackResponse(&oauthclient.Response{Status: 400, Body: map[string]any{"error": "invalid_grant"}})
	v := attacktest.ExpectRejection(resp)
	assert.Equal(t, attacktest.StatusPassed, v.Status)
}

func TestExpectRejection_SuccessFails(t *testing.T) {
	t.Parallel()
	resp := attacktest.NewAttackResponse(&oauthclient.Response{Status: 200, Body: map[string]any{"access_token": "x"}})
	v := attacktest.ExpectRejection(resp)
	assert.Equal(t, attacktest.StatusFailed, v.Status)
}

func TestAttackResponse_ErrorCodeAndField(t *testing.T) {
	t.Parallel()
	resp := attacktest.NewAttackResponse(&oauthclient.Response{
		Status: 400,
		Body:   map[string]any{"error": "invalid_target", "access_token": "tok"},
	})
	assert.Equal(t, "invalid_target", resp.ErrorCode())
	assert.Equal(t, "tok", resp.Field("access_token"))
	assert.True(t, resp.IsSecurityRejection())
	assert.False(t, resp.IsSuccess())
}
