package generation

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyFailure(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		headers http.Header
		body    string
		want    FailureReason
	}{
		{"Rate limited", 429, nil, `{"error":"too many requests"}`, ReasonRateLimited},
		{"Payment required", 402, nil, `{"error":"quota exceeded"}`, ReasonPaymentRequired},
		{"Auth rejected 401", 401, nil, `{"error":"bad key"}`, ReasonAuthRejected},
		{"Auth rejected 403", 403, nil, `{"error":"forbidden"}`, ReasonAuthRejected},
		{"Content policy", 400, nil, `{"error":"rejected by content policy"}`, ReasonContentPolicy},
		{"Moderation", 400, nil, `{"error":"flagged by moderation"}`, ReasonContentPolicy},
		{"Minor flagged", 400, nil, `{"error":"possible minor detected"}`, ReasonMinorFlagged},
		{"Invalid model", 404, nil, `{"error":"model sana-v9 not found"}`, ReasonInvalidModel},
		{"Unknown model", 400, nil, `{"error":"unknown model requested"}`, ReasonInvalidModel},
		{"Server error with model word", 500, nil, `{"error":"model backend crashed, unknown state"}`, ReasonUpstreamError},
		{"HTML error page", 502, http.Header{"Content-Type": []string{"text/html"}}, "<html><body>Bad Gateway</body></html>", ReasonHTMLErrorPage},
		{"Doctype without header", 503, nil, "<!DOCTYPE html><html></html>", ReasonHTMLErrorPage},
		{"Empty body", 500, nil, "   ", ReasonEmptyBody},
		{"Generic upstream", 500, nil, `{"error":"internal"}`, ReasonUpstreamError},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			headers := c.headers
			if headers == nil {
				headers = http.Header{}
			}
			assert.Equal(t, c.want, ClassifyFailure(c.status, headers, c.body))
		})
	}
}

func TestFailureReasonMapping(t *testing.T) {
	assert.Equal(t, http.StatusTooManyRequests, ReasonRateLimited.HTTPStatus())
	assert.Equal(t, http.StatusPaymentRequired, ReasonPaymentRequired.HTTPStatus())
	assert.Equal(t, http.StatusUnprocessableEntity, ReasonContentPolicy.HTTPStatus())
	assert.Equal(t, http.StatusBadGateway, ReasonUpstreamError.HTTPStatus())

	for _, r := range []FailureReason{
		ReasonRateLimited, ReasonPaymentRequired, ReasonAuthRejected,
		ReasonContentPolicy, ReasonMinorFlagged, ReasonHTMLErrorPage,
		ReasonEmptyBody, ReasonInvalidModel, ReasonUpstreamError,
	} {
		assert.NotEmpty(t, r.Message(), "reason %s", r)
	}
}

func TestClassifyError(t *testing.T) {
	ue := &UpstreamError{Provider: ProviderDiffusion, Status: 429, Body: `{"error":"slow down"}`}
	assert.Equal(t, ReasonRateLimited, ClassifyError(ue))

	wrapped := errors.Join(errors.New("request failed"), ue)
	assert.Equal(t, ReasonRateLimited, ClassifyError(wrapped))

	assert.Equal(t, ReasonUpstreamError, ClassifyError(errors.New("dial tcp: timeout")))
}
