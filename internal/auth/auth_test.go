package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueVerify(t *testing.T) {
	now := time.Now()
	token, err := Issue("s3cret", "42", true, time.Hour, now)
	require.NoError(t, err)

	sub, err := Verify("s3cret", token)
	require.NoError(t, err)
	assert.Equal(t, Subject{UserID: "42", Operator: true}, sub)

	_, err = Verify("other", token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := Issue("s3cret", "42", false, time.Minute, now.Add(-time.Hour))
	require.NoError(t, err)
	_, err = Verify("s3cret", expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = Verify("s3cret", " ")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = Issue("", "42", false, time.Hour, now)
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	token, err := Issue("s3cret", "7", false, time.Hour, time.Now())
	require.NoError(t, err)

	var seen Subject
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = SubjectFrom(r.Context())
	})

	tests := []struct {
		name   string
		secret string
		header string
		query  string
		status int
		want   Subject
	}{
		{"open when no secret", "", "", "", http.StatusOK, Subject{Operator: true}},
		{"header token", "s3cret", "Bearer " + token, "", http.StatusOK, Subject{UserID: "7"}},
		{"query token", "s3cret", "", "?token=" + token, http.StatusOK, Subject{UserID: "7"}},
		{"missing", "s3cret", "", "", http.StatusUnauthorized, Subject{}},
		{"garbage", "s3cret", "Bearer nope", "", http.StatusUnauthorized, Subject{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = Subject{}
			req := httptest.NewRequest(http.MethodGet, "/x"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			Middleware(tt.secret)(ok).ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.want, seen)
		})
	}
}

func TestRequireOperator(t *testing.T) {
	h := RequireOperator(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req.WithContext(WithSubject(req.Context(), Subject{UserID: "1"})))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req.WithContext(WithSubject(req.Context(), Subject{Operator: true})))
	assert.Equal(t, http.StatusOK, rec.Code)
}
