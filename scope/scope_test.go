package scope

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/caffeineduck/fnhost/reply"
	"github.com/caffeineduck/fnhost/resource"
	"github.com/caffeineduck/fnhost/route"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validSID = "AC0123456789abcdef0123456789abcdef"

func TestNewContextComputedFields(t *testing.T) {
	ctx := NewContext(Config{BaseURL: "http://localhost:3000", Env: map[string]string{"FOO": "bar"}}, "/hello")

	assert.Equal(t, "localhost:3000", ctx.Get(EnvDomainName))
	assert.Equal(t, "/hello", ctx.Get(EnvPath))
	assert.Equal(t, "bar", ctx.Get("FOO"))
	assert.Equal(t, "/hello", ctx.Path())
}

func TestNewContextExplicitEnvWins(t *testing.T) {
	cfg := Config{
		BaseURL: "https://abc.ngrok.io",
		Env:     map[string]string{EnvDomainName: "example.com", EnvPath: "/custom"},
	}
	ctx := NewContext(cfg, "/hello")

	assert.Equal(t, "example.com", ctx.Get(EnvDomainName))
	assert.Equal(t, "/custom", ctx.Get(EnvPath))
	assert.Equal(t, "/hello", ctx.Path())
}

func TestContextEnvIsCopy(t *testing.T) {
	cfg := Config{Env: map[string]string{"A": "1"}}
	ctx := NewContext(cfg, "/x")

	env := ctx.Env()
	env["A"] = "2"
	assert.Equal(t, "1", ctx.Get("A"))
	assert.Equal(t, "1", cfg.Env["A"])
}

func TestContextClientValidation(t *testing.T) {
	tests := []struct {
		name   string
		env    map[string]string
		reason string
	}{
		{"missing sid", map[string]string{EnvAuthToken: "t"}, "ACCOUNT_SID is missing"},
		{"bad prefix", map[string]string{EnvAccountSID: "XX" + validSID[2:], EnvAuthToken: "t"}, "does not start with AC"},
		{"bad length", map[string]string{EnvAccountSID: "AC123", EnvAuthToken: "t"}, "5 characters instead of 34"},
		{"missing token", map[string]string{EnvAccountSID: validSID}, "AUTH_TOKEN is missing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := NewContext(Config{Env: tt.env}, "/x")
			client, err := ctx.Client()
			assert.Nil(t, client)

			var credErr *CredentialError
			require.ErrorAs(t, err, &credErr)
			assert.Equal(t, "context.getClient()", credErr.CallSite)
			assert.Contains(t, err.Error(), tt.reason)
			assert.Contains(t, err.Error(), "context.getClient()")
		})
	}
}

func TestContextClientValid(t *testing.T) {
	ctx := NewContext(Config{Env: map[string]string{EnvAccountSID: validSID, EnvAuthToken: "secret"}}, "/x")
	client, err := ctx.Client()
	require.NoError(t, err)
	assert.Equal(t, validSID, client.AccountSID())

	again, err := ctx.Client()
	require.NoError(t, err)
	assert.Same(t, client, again)
}

func TestCredentialErrorRendersAsHandlerError(t *testing.T) {
	err := ValidateCredentials(map[string]string{}, "context.getClient()")
	he := reply.NewHandlerError(err)
	assert.Equal(t, "CredentialError", he.Name)
	assert.True(t, he.Structured)
}

func TestClientRequest(t *testing.T) {
	var gotPath, gotQuery, gotUser, gotForm string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotUser, _, _ = r.BasicAuth()
		r.ParseForm()
		gotForm = r.PostForm.Get("To")
		w.Write([]byte(`{"sid":"SM1"}`))
	}))
	defer server.Close()

	client := NewClient(validSID, "secret", server.URL)

	resp, err := client.Request(context.Background(), ClientRequest{
		Method: "POST",
		URI:    "/2010-04-01/Accounts/" + validSID + "/Messages.json",
		Data:   map[string]any{"To": "+15550001"},
	})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, `{"sid":"SM1"}`, resp.Body)
	assert.True(t, strings.HasSuffix(gotPath, "/Messages.json"))
	assert.Equal(t, validSID, gotUser)
	assert.Equal(t, "+15550001", gotForm)

	_, err = client.Request(context.Background(), ClientRequest{URI: "calls", Data: map[string]any{"PageSize": 20}})
	require.NoError(t, err)
	assert.Equal(t, "/calls", gotPath)
	assert.Equal(t, "PageSize=20", gotQuery)
}

func TestClientRejectsOtherHosts(t *testing.T) {
	client := NewClient(validSID, "secret", "https://api.twilio.com")
	_, err := client.Request(context.Background(), ClientRequest{URI: "https://evil.example.com/steal"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "host not allowed")
}

func TestGlobals(t *testing.T) {
	dir := t.TempDir()
	assets := filepath.Join(dir, "assets")
	require.NoError(t, os.MkdirAll(assets, 0o755))
	secret := filepath.Join(assets, "img.private.png")
	require.NoError(t, os.WriteFile(secret, []byte("PNG"), 0o644))

	table, err := route.Build([]resource.Resource{
		{RoutePath: "/hello", FilePath: "/p/functions/hello.js", Kind: resource.Function},
		{RoutePath: "/img.png", FilePath: secret, Kind: resource.Asset, Access: resource.Private},
		{RoutePath: "/pub.txt", FilePath: filepath.Join(assets, "pub.txt"), Kind: resource.Asset},
	}, 1)
	require.NoError(t, err)

	g := NewGlobals(Config{Registry: RegistryFromTable(table, assets)})
	assert.Nil(t, g.Client())
	assert.Equal(t, map[string]string{"hello": "/p/functions/hello.js"}, g.Functions())

	got := g.Assets()
	require.Len(t, got, 1)
	require.Contains(t, got, "/img.png")
	assert.Equal(t, secret, got["/img.png"].Path)

	content, err := got["/img.png"].Open()
	require.NoError(t, err)
	assert.Equal(t, "PNG", content)

	g.SetRegistry(Registry{Functions: map[string]string{"/other": "/p/functions/other.js"}})
	assert.Equal(t, map[string]string{"other": "/p/functions/other.js"}, g.Functions())
	assert.Empty(t, g.Assets())
}

func TestGlobalsClientWithCredentials(t *testing.T) {
	g := NewGlobals(Config{Env: map[string]string{EnvAccountSID: validSID, EnvAuthToken: "secret"}})
	require.NotNil(t, g.Client())
	assert.Equal(t, validSID, g.Client().AccountSID())

	rv := g.NewResponse(reply.ResponseOptions{StatusCode: 201})
	assert.Equal(t, 201, rv.StatusCode())
}
