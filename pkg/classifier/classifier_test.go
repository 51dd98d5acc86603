package classifier_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/loki-oidc/loki-splice/pkg/classifier"
)

func TestClassify_StatusOnly(t *testing.T) {
	t.Parallel()
	cases := map[int]classifier.Category{
		200: classifier.CategorySuccess,
		201: classifier.CategorySuccess,
		299: classifier.CategorySuccess,
		429: classifier.CategoryRateLimit,
		500: classifier.CategoryServerError,
		503: classifier.CategoryServerError,
		401: classifier.CategoryAuthError,
		404: classifier.CategoryUnknown,
		418: classifier.CategoryUnknown,
	}
	for status, want := range cases {
		assert.Equal(t, want, classifier.Classify(status, nil), status)
	}
}

func TestClassify_400And403ErrorCodes(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		status int
		error  string
		want   classifier.Category
	}{
		{"invalid_client on 400", 400, "invalid_client", classifier.CategoryAuthError},
		{"invalid_client on 403", 403, "invalid_client", classifier.CategoryAuthError},
		{"unsupported_grant_type", 400, "unsupported_grant_type", classifier.CategoryUnsupported},
		{"unsupported_response_type", 400, "unsupported_response_type", classifier.CategoryUnsupported},
		{"invalid_grant", 400, "invalid_grant", classifier.CategorySecurityRejection},
		{"invalid_target", 400, "invalid_target", classifier.CategorySecurityRejection},
		{"invalid_request", 400, "invalid_request", classifier.CategorySecurityRejection},
		{"invalid_scope", 400, "invalid_scope", classifier.CategorySecurityRejection},
		{"unauthorized_client", 403, "unauthorized_client", classifier.CategorySecurityRejection},
		{"access_denied", 403, "access_denied", classifier.CategorySecurityRejection},
		{"no body", 400, "", classifier.CategorySecurityRejection},
		{"unrecognised error code", 400, "some_future_error", classifier.CategorySecurityRejection},
	}
	for _, tc := range cases {
		var body map[string]any
		if tc.error != "" {
			body = map[string]any{"error": tc.error}
		}
		assert.Equal(t, tc.want, classifier.Classify(tc.status, body), tc.name)
	}
}

func TestIsSecurityRejection(t *testing.T) {
	t.Parallel()
	assert.True(t, classifier.IsSecurityRejection(classifier.CategorySecurityRejection))
	assert.False(t, classifier.IsSecurityRejection(classifier.CategorySuccess))
	assert.False(t, classifier.IsSecurityRejection(classifier.CategoryAuthError))
}

func TestIsInconclusive(t *testing.T) {
	t.Parallel()
	inconclusive := []classifier.Category{
		classifier.CategoryAuthError,
		classifier.CategoryRateLimit,
		classifier.CategoryServerError,
		classifier.CategoryUnsupported,
		classifier.CategoryUnknown,
	}
	for _, c := range inconclusive {
		assert.True(t, classifier.IsInconclusive(c), c)
	}

	conclusive := []classifier.Category{classifier.CategorySuccess, classifier.CategorySecurityRejection}
	for _, c := range conclusive {
		assert.False(t, classifier.IsInconclusive(c), c)
	}
}

func TestDescribeResponse(t *testing.T) {
	t.Parallel()
	got := classifier.DescribeResponse(400, map[string]any{"error": "invalid_grant"}, classifier.CategorySecurityRejection)
	assert.Equal(t, "HTTP 400 (security_rejection, error=invalid_grant)", got)

	got = classifier.DescribeResponse(200, nil, classifier.CategorySuccess)
	assert.Equal(t, "HTTP 200 (success)", got)
}
