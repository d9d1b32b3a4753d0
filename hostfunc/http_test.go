package hostfunc

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPBlockedWhenNoHosts(t *testing.T) {
	h := NewHTTP(HTTPConfig{})
	_, err := h.Do(context.Background(), HTTPRequest{URL: "https://example.com"})
	assert.ErrorIs(t, err, ErrHTTPDisabled)
}

func TestHTTPBlockedHosts(t *testing.T) {
	h := NewHTTP(HTTPConfig{AllowedHosts: []string{"allowed.com"}})

	tests := []struct {
		url  string
		want string
	}{
		{"https://evil.com", "host not allowed: evil.com"},
		{"https://evil.com/?x=allowed.com", "host not allowed: evil.com"},
		{"https://allowed.com.evil.com/", "host not allowed: allowed.com.evil.com"},
		{"ftp://allowed.com/", "scheme must be http or https"},
		{"", "url required"},
	}
	for _, tt := range tests {
		_, err := h.Do(context.Background(), HTTPRequest{URL: tt.url})
		require.Error(t, err, tt.url)
		assert.Equal(t, tt.want, err.Error())
	}
}

func TestHTTPUnsupportedMethod(t *testing.T) {
	h := NewHTTP(HTTPConfig{AllowedHosts: []string{"allowed.com"}})
	_, err := h.Do(context.Background(), HTTPRequest{Method: "TRACE", URL: "https://allowed.com"})
	assert.EqualError(t, err, "unsupported method: TRACE")
}

func TestHTTPURLTooLong(t *testing.T) {
	h := NewHTTP(HTTPConfig{AllowedHosts: []string{"allowed.com"}, MaxURLLength: 30})
	_, err := h.Do(context.Background(), HTTPRequest{URL: "https://allowed.com/" + strings.Repeat("a", 50)})
	assert.EqualError(t, err, "url exceeds max length")
}

func TestHTTPFormAndBasicAuth(t *testing.T) {
	var gotUser, gotPass, gotBody, gotType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, _ = r.BasicAuth()
		gotType = r.Header.Get("Content-Type")
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		w.Header().Set("X-Reply", "yes")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	h := NewHTTP(HTTPConfig{AllowedHosts: []string{"127.0.0.1"}, Username: "AC123", Password: "token"})
	resp, err := h.Do(context.Background(), HTTPRequest{
		Method: "post",
		URL:    server.URL + "/2010-04-01/Messages.json",
		Form:   map[string]string{"To": "+15550001", "Body": "hi"},
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.Equal(t, `{"ok":true}`, resp.Body)
	assert.Equal(t, "yes", resp.Headers["X-Reply"])
	assert.Equal(t, "AC123", gotUser)
	assert.Equal(t, "token", gotPass)
	assert.Equal(t, "application/x-www-form-urlencoded", gotType)
	assert.Equal(t, "Body=hi&To=%2B15550001", gotBody)
}

func TestHTTPHostMatching(t *testing.T) {
	tests := []struct {
		allowed []string
		host    string
		want    bool
	}{
		{[]string{"example.com"}, "example.com", true},
		{[]string{"example.com"}, "api.example.com", true},
		{[]string{"example.com"}, "badexample.com", false},
		{[]string{"example.com"}, "127.0.0.1", false},
		{[]string{"example.com"}, "::1", false},
		{[]string{"::1"}, "0:0:0:0:0:0:0:1", true},
		{[]string{"::1"}, "::2", false},
		{[]string{"192.168.1.1"}, "192.168.1.1", true},
		{[]string{"192.168.1.1"}, "192.168.1.2", false},
	}
	for _, tt := range tests {
		h := NewHTTP(HTTPConfig{AllowedHosts: tt.allowed})
		assert.Equal(t, tt.want, h.isHostAllowed(tt.host), "%v / %s", tt.allowed, tt.host)
	}
}
