// internal/registry/client.go
package registry

///////////////////////////////////////////////////////////////////////////
// Docker Registry Documentation: https://docs.docker.com/registry/      //
///////////////////////////////////////////////////////////////////////////

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	userAgent = "stagehand"

	// Media types de l'API Docker Registry v2.
	MediaTypeManifestV2   = "application/vnd.docker.distribution.manifest.v2+json"
	MediaTypeManifestList = "application/vnd.docker.distribution.manifest.list.v2+json"

	headerContentDigest = "Docker-Content-Digest"
)

// rxLocal reconnaît les hôtes servis en clair (loopback ou .local).
var rxLocal = regexp.MustCompile(`(?i)^(localhost|.*\.local(?:host)?(?::\d{1,5})?)$`)

// Config décrit l'accès à un registry. Passée par valeur à la
// construction du client.
type Config struct {
	Host        string `yaml:"host"`
	Namespace   string `yaml:"namespace"`
	Credentials string `yaml:"credentials,omitempty"` // "user:pass", vide si anonyme
	Insecure    bool   `yaml:"insecure,omitempty"`
	Verify      bool   `yaml:"verify"`
}

// Scheme retourne le schéma dérivé de l'hôte: http pour un hôte local ou
// un accès insecure, https sinon.
func (c Config) Scheme() string {
	if c.Insecure || rxLocal.MatchString(c.Host) {
		return "http"
	}
	return "https"
}

// BasicAuth décompose les credentials sur le premier ':'. ok est faux
// quand aucun credential n'est configuré.
func (c Config) BasicAuth() (user, pass string, ok bool) {
	if c.Credentials == "" {
		return "", "", false
	}
	user, pass, _ = strings.Cut(c.Credentials, ":")
	return user, pass, true
}

// Client est un client (simple) de l'API Docker Registry v2.
type Client struct {
	cfg    Config
	httpc  *http.Client
	logger *logrus.Logger
}

// NewClient crée un client pour le registry configuré.
func NewClient(cfg Config, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.InfoLevel)
	}

	transport := &http.Transport{}
	if !cfg.Verify || cfg.Insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Client{
		cfg: cfg,
		httpc: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		logger: logger,
	}
}

// Namespace retourne le namespace configuré pour ce registry.
func (c *Client) Namespace() string {
	return c.cfg.Namespace
}

// BaseURL retourne la racine de l'API v2.
func (c *Client) BaseURL() string {
	return fmt.Sprintf("%s://%s/v2", c.cfg.Scheme(), c.cfg.Host)
}

// do exécute une requête en appliquant le User-Agent, l'authentification
// basique et la politique d'erreur commune.
func (c *Client) do(ctx context.Context, method, path string, headers map[string]string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL()+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if user, pass, ok := c.cfg.BasicAuth(); ok {
		req.SetBasicAuth(user, pass)
	}

	c.logger.Debugf("registry request: %s %s", method, path)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registry request failed: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp, nil
}

// errorsBody est le corps d'erreur structuré de l'API v2.
type errorsBody struct {
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// decodeError extrait la première erreur structurée du corps de réponse,
// ou retombe sur le statut HTTP si le corps n'est pas exploitable.
func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(resp.Body)

	var body errorsBody
	if err := json.Unmarshal(raw, &body); err == nil && len(body.Errors) > 0 {
		return &Error{Code: body.Errors[0].Code, Message: body.Errors[0].Message}
	}
	return &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
}

// listKey extrait une liste de chaînes sous une clé obligatoire de la
// réponse; une clé absente est une erreur du registry.
func listKey(data map[string]json.RawMessage, key string) ([]string, error) {
	raw, ok := data[key]
	if !ok {
		return nil, &Error{
			Code:    "UNEXPECTED_RESPONSE",
			Message: fmt.Sprintf("key %q missing from response", key),
		}
	}
	var values []string
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("failed to decode %s list: %w", key, err)
	}
	return values, nil
}

// Catalog retourne les repositories du registry, dans l'ordre retourné
// par celui-ci.
func (c *Client) Catalog(ctx context.Context) ([]string, error) {
	resp, err := c.do(ctx, http.MethodGet, "/_catalog", nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var data map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode catalog response: %w", err)
	}
	return listKey(data, "repositories")
}

// Tags retourne les tags d'un repository.
func (c *Client) Tags(ctx context.Context, name string) ([]string, error) {
	resp, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/%s/tags/list", name), nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var data map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode tags response: %w", err)
	}
	return listKey(data, "tags")
}

func manifestPath(name, reference string) string {
	return fmt.Sprintf("/%s/manifests/%s", name, reference)
}

// GetManifest récupère un manifest. Avec fat, demande le manifest
// multi-architecture (manifest list).
func (c *Client) GetManifest(ctx context.Context, name, reference string, fat bool) (*Manifest, error) {
	accept := MediaTypeManifestV2
	if fat {
		accept = MediaTypeManifestList
	}

	resp, err := c.do(ctx, http.MethodGet, manifestPath(name, reference),
		map[string]string{"Accept": accept}, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest body: %w", err)
	}
	return NewManifest(raw, resp.Header.Get(headerContentDigest))
}

// PutManifest pousse un manifest sous la référence donnée: c'est la
// création ou l'écrasement d'un tag.
func (c *Client) PutManifest(ctx context.Context, name, reference string, manifest *Manifest) error {
	headers := map[string]string{
		"Accept":       "*/*",
		"Content-Type": MediaTypeManifestV2,
	}
	resp, err := c.do(ctx, http.MethodPut, manifestPath(name, reference),
		headers, bytes.NewReader(manifest.Raw()))
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// DeleteManifest supprime un manifest par digest.
func (c *Client) DeleteManifest(ctx context.Context, name, digest string) error {
	headers := map[string]string{
		"Accept":       "*/*",
		"Content-Type": MediaTypeManifestV2,
	}
	resp, err := c.do(ctx, http.MethodDelete, manifestPath(name, digest), headers, nil)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// Digest retourne le digest de contenu d'une référence, chaîne vide si
// le registry ne le fournit pas.
func (c *Client) Digest(ctx context.Context, name, reference string) (string, error) {
	m, err := c.GetManifest(ctx, name, reference, false)
	if err != nil {
		return "", err
	}
	return m.Digest(), nil
}

// PutTag pose targetTag sur le manifest pointé par reference. L'API v2
// n'a pas de verbe de copie de tag: la composition get-puis-put est la
// seule façon de faire, et doit le rester.
func (c *Client) PutTag(ctx context.Context, name, reference, targetTag string) error {
	m, err := c.GetManifest(ctx, name, reference, false)
	if err != nil {
		return err
	}
	return c.PutManifest(ctx, name, targetTag, m)
}

// DeleteTag supprime un tag en résolvant d'abord son digest: certains
// registries refusent la suppression par nom de tag.
func (c *Client) DeleteTag(ctx context.Context, name, reference string) error {
	digest, err := c.Digest(ctx, name, reference)
	if err != nil {
		return err
	}
	if digest == "" {
		return fmt.Errorf("no content digest returned for %s:%s", name, reference)
	}
	return c.DeleteManifest(ctx, name, digest)
}
