package upstream

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wenfer/strmgate/internal/ids"
)

func TestAuthSessionFlow(t *testing.T) {
	t.Parallel()

	status := AuthNotScanned

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		switch r.URL.Path {
		case "/auth/qrcode_token":
			assert.Empty(t, r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`{"uid":"sess1","qrcode":"data:image/png;base64,xx","sign":"abc","time":1}`))
		case "/auth/qrcode_status":
			assert.Equal(t, "sess1", r.URL.Query().Get("uid"))
			_, _ = w.Write([]byte(`{"status":` + statusCode(status) + `}`))
		case "/auth/qrcode_scan_result":
			_, _ = w.Write([]byte(`{"cookie":{"UID":"u1","SEID":"s1","CID":""}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), testConfig(), nil)
	driveID := ids.NewDriveID("drive")

	sess, err := c.BeginAuthSession(t.Context(), driveID)
	require.NoError(t, err)
	assert.Equal(t, "sess1", sess.SessionID)
	assert.False(t, sess.ExpiresAt.IsZero())

	got, err := c.PollAuthSession(t.Context(), driveID, sess.SessionID)
	require.NoError(t, err)
	assert.Equal(t, AuthNotScanned, got)

	status = AuthConfirmed

	got, err = c.PollAuthSession(t.Context(), driveID, sess.SessionID)
	require.NoError(t, err)
	assert.Equal(t, AuthConfirmed, got)

	payload, err := c.ExchangeAuthSession(t.Context(), driveID, sess.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "SEID=s1; UID=u1", string(payload))
}

func statusCode(s AuthStatus) string {
	switch s {
	case AuthNotScanned:
		return "0"
	case AuthScanned:
		return "1"
	case AuthConfirmed:
		return "2"
	default:
		return "9"
	}
}
