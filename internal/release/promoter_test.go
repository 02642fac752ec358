// internal/release/promoter_test.go
package release

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stagehand/internal/registry"
	"stagehand/internal/types/options"
)

// fakeRegistry simule un registry avec un seul repository ns/app et
// enregistre les écritures dans l'ordre.
type fakeRegistry struct {
	tags     map[string]string // tag -> corps de manifest
	failPut  map[string]bool   // tags dont le PUT échoue
	requests []string
}

func (f *fakeRegistry) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.requests = append(f.requests, r.Method+" "+r.URL.Path)

		switch {
		case r.URL.Path == "/v2/_catalog":
			fmt.Fprint(w, `{"repositories": ["ns/app"]}`)

		case r.URL.Path == "/v2/ns/app/tags/list":
			var quoted []string
			for tag := range f.tags {
				quoted = append(quoted, fmt.Sprintf("%q", tag))
			}
			fmt.Fprintf(w, `{"tags": [%s]}`, strings.Join(quoted, ","))

		case strings.HasPrefix(r.URL.Path, "/v2/ns/app/manifests/"):
			tag := strings.TrimPrefix(r.URL.Path, "/v2/ns/app/manifests/")
			switch r.Method {
			case http.MethodGet:
				body, ok := f.tags[tag]
				if !ok {
					w.WriteHeader(http.StatusNotFound)
					fmt.Fprint(w, `{"errors": [{"code": "MANIFEST_UNKNOWN", "message": "unknown"}]}`)
					return
				}
				w.Header().Set("Docker-Content-Digest", "sha256:"+tag)
				fmt.Fprint(w, body)
			case http.MethodPut:
				if f.failPut[tag] {
					w.WriteHeader(http.StatusInternalServerError)
					return
				}
				raw, _ := io.ReadAll(r.Body)
				f.tags[tag] = string(raw)
				w.WriteHeader(http.StatusCreated)
			}

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func newTestPromoter(t *testing.T, fake *fakeRegistry) *Promoter {
	t.Helper()
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	client := registry.NewClient(registry.Config{
		Host:      strings.TrimPrefix(server.URL, "http://"),
		Namespace: "ns",
		Insecure:  true,
	}, logger)
	return NewPromoter(client, nil, logger)
}

// puts filtre les écritures de manifest dans l'ordre d'émission.
func (f *fakeRegistry) puts() []string {
	var out []string
	for _, req := range f.requests {
		if strings.HasPrefix(req, "PUT ") {
			out = append(out, strings.TrimPrefix(req, "PUT /v2/ns/app/manifests/"))
		}
	}
	return out
}

func TestPromoteRollbackBeforeTarget(t *testing.T) {
	fake := &fakeRegistry{tags: map[string]string{
		"dev": `{"schemaVersion": 2, "layers": [{"digest": "new"}]}`,
		"rc":  `{"schemaVersion": 2, "layers": [{"digest": "old"}]}`,
	}}
	promoter := newTestPromoter(t, fake)

	results, err := promoter.PromoteToQuality(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, results, 1)

	result := results[0]
	assert.True(t, result.Success)
	assert.True(t, result.RolledBack)
	assert.Equal(t, "ns/app", result.Repository)
	assert.Equal(t, "rc-rollback", result.RollbackTag)

	// L'ancien rc est sauvegardé avant d'être écrasé.
	assert.Equal(t, []string{"rc-rollback", "rc"}, fake.puts())
	assert.Contains(t, fake.tags["rc-rollback"], "old")
	assert.Contains(t, fake.tags["rc"], "new")
}

func TestPromoteFirstReleaseSkipsRollback(t *testing.T) {
	fake := &fakeRegistry{tags: map[string]string{
		"dev": `{"schemaVersion": 2}`,
	}}
	promoter := newTestPromoter(t, fake)

	results, err := promoter.PromoteToQuality(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, results, 1)

	result := results[0]
	assert.True(t, result.Success)
	assert.False(t, result.RolledBack)
	assert.Empty(t, result.RollbackError)
	assert.Equal(t, []string{"rc"}, fake.puts())
}

func TestPromoteTargetFailurePropagates(t *testing.T) {
	fake := &fakeRegistry{
		tags: map[string]string{
			"rc":     `{"schemaVersion": 2, "layers": [{"digest": "new"}]}`,
			"latest": `{"schemaVersion": 2, "layers": [{"digest": "old"}]}`,
		},
		failPut: map[string]bool{"latest": true},
	}
	promoter := newTestPromoter(t, fake)

	results, err := promoter.PromoteToProduction(context.Background(), nil)
	require.Error(t, err)
	require.Len(t, results, 1)

	result := results[0]
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
	// Le rollback a tout de même été posé avant l'échec.
	assert.True(t, result.RolledBack)
}

func TestPromoteDryRun(t *testing.T) {
	fake := &fakeRegistry{tags: map[string]string{
		"dev": `{"schemaVersion": 2}`,
		"rc":  `{"schemaVersion": 2}`,
	}}
	promoter := newTestPromoter(t, fake)

	results, err := promoter.PromoteToQuality(context.Background(),
		options.NewPromoteOptions(options.WithPromoteDryRun(true)))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)

	// Aucune écriture en dry-run.
	assert.Empty(t, fake.puts())
}

func TestPromoteRepoFilter(t *testing.T) {
	fake := &fakeRegistry{tags: map[string]string{
		"dev": `{"schemaVersion": 2}`,
	}}
	promoter := newTestPromoter(t, fake)

	results, err := promoter.PromoteToQuality(context.Background(),
		options.NewPromoteOptions(options.WithPromoteRepos([]string{"other"})))
	require.NoError(t, err)
	assert.Empty(t, results)
}
