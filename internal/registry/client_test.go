// internal/registry/client_test.go
package registry

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient crée un client branché sur un registry simulé.
func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return NewClient(Config{
		Host:        strings.TrimPrefix(server.URL, "http://"),
		Namespace:   "ns",
		Credentials: "alice:secret",
		Insecure:    true,
	}, logger)
}

func TestConfigScheme(t *testing.T) {
	tests := []struct {
		cfg      Config
		expected string
	}{
		{Config{Host: "registry.example.com"}, "https"},
		{Config{Host: "localhost"}, "http"},
		{Config{Host: "registry.local"}, "http"},
		{Config{Host: "registry.localhost:5000"}, "http"},
		{Config{Host: "registry.example.com", Insecure: true}, "http"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.cfg.Scheme(), tt.cfg.Host)
	}
}

func TestConfigBasicAuth(t *testing.T) {
	user, pass, ok := Config{Credentials: "alice:se:cret"}.BasicAuth()
	assert.True(t, ok)
	assert.Equal(t, "alice", user)
	assert.Equal(t, "se:cret", pass)

	_, _, ok = Config{}.BasicAuth()
	assert.False(t, ok)
}

func TestCatalog(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/_catalog", r.URL.Path)
		assert.Equal(t, "stagehand", r.Header.Get("User-Agent"))

		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "alice", user)
		assert.Equal(t, "secret", pass)

		w.Write([]byte(`{"repositories": ["ns/app", "ns/api"]}`))
	})

	repos, err := client.Catalog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"ns/app", "ns/api"}, repos)
}

func TestCatalogMissingKey(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})

	_, err := client.Catalog(context.Background())
	require.Error(t, err)

	var regErr *Error
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, "UNEXPECTED_RESPONSE", regErr.Code)
}

func TestTags(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/ns/app/tags/list", r.URL.Path)
		w.Write([]byte(`{"name": "ns/app", "tags": ["dev", "rc"]}`))
	})

	tags, err := client.Tags(context.Background(), "ns/app")
	require.NoError(t, err)
	assert.Equal(t, []string{"dev", "rc"}, tags)
}

func TestGetManifestHeaders(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/ns/app/manifests/dev", r.URL.Path)
		assert.Equal(t, MediaTypeManifestV2, r.Header.Get("Accept"))

		w.Header().Set(headerContentDigest, "sha256:abc")
		w.Write([]byte(`{"schemaVersion": 2}`))
	})

	m, err := client.GetManifest(context.Background(), "ns/app", "dev", false)
	require.NoError(t, err)
	assert.Equal(t, "sha256:abc", m.Digest())
}

func TestGetManifestFat(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, MediaTypeManifestList, r.Header.Get("Accept"))
		w.Write([]byte(`{"schemaVersion": 2}`))
	})

	_, err := client.GetManifest(context.Background(), "ns/app", "dev", true)
	require.NoError(t, err)
}

func TestPutTagCopiesManifest(t *testing.T) {
	body := `{"schemaVersion": 2, "layers": []}`
	var putBody string
	var putHeaders http.Header

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			assert.Equal(t, "/v2/ns/app/manifests/dev", r.URL.Path)
			w.Write([]byte(body))
		case http.MethodPut:
			assert.Equal(t, "/v2/ns/app/manifests/rc", r.URL.Path)
			raw, _ := io.ReadAll(r.Body)
			putBody = string(raw)
			putHeaders = r.Header.Clone()
			w.WriteHeader(http.StatusCreated)
		}
	})

	err := client.PutTag(context.Background(), "ns/app", "dev", "rc")
	require.NoError(t, err)

	// Le corps est re-poussé octet pour octet.
	assert.Equal(t, body, putBody)
	assert.Equal(t, "*/*", putHeaders.Get("Accept"))
	assert.Equal(t, MediaTypeManifestV2, putHeaders.Get("Content-Type"))
}

func TestDeleteTagResolvesDigest(t *testing.T) {
	var deleted string

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Header().Set(headerContentDigest, "sha256:abc")
			w.Write([]byte(`{"schemaVersion": 2}`))
		case http.MethodDelete:
			deleted = r.URL.Path
			w.WriteHeader(http.StatusAccepted)
		}
	})

	err := client.DeleteTag(context.Background(), "ns/app", "dev")
	require.NoError(t, err)
	assert.Equal(t, "/v2/ns/app/manifests/sha256:abc", deleted)
}

func TestDeleteTagWithoutDigest(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"schemaVersion": 2}`))
	})

	err := client.DeleteTag(context.Background(), "ns/app", "dev")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no content digest")
}

func TestStructuredError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"errors": [{"code": "MANIFEST_UNKNOWN", "message": "manifest unknown"}]}`))
	})

	_, err := client.GetManifest(context.Background(), "ns/app", "gone", false)
	require.Error(t, err)

	var regErr *Error
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, "MANIFEST_UNKNOWN", regErr.Code)
	assert.True(t, IsNotFound(err))
}

func TestStatusError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	})

	_, err := client.Catalog(context.Background())
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.False(t, IsNotFound(err))
}

func TestStatusErrorNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.Digest(context.Background(), "ns/app", "gone")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}
