package contact

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResendTestTransport(t *testing.T, h http.HandlerFunc) *ResendTransport {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	tr := NewResendTransport("re_test")
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	tr.client.BaseURL = base
	return tr
}

func TestResendTransportSend(t *testing.T) {
	var got map[string]any
	tr := newResendTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "Bearer re_test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1"}`))
	})

	env, msg := testEnvelope()
	require.NoError(t, tr.Send(context.Background(), env, msg))

	assert.Equal(t, `"Contact Form" <mailer@example.com>`, got["from"])
	assert.Equal(t, []any{"owner@example.com"}, got["to"])
	assert.Equal(t, "Contact Form: Hello", got["subject"])
	headers, _ := got["headers"].(map[string]any)
	assert.Equal(t, "req-42", headers["X-Request-ID"])
}

func TestResendTransportAPIError(t *testing.T) {
	tr := newResendTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"statusCode":422,"name":"validation_error","message":"invalid from"}`))
	})

	env, msg := testEnvelope()
	err := tr.Send(context.Background(), env, msg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "resend send")
}
