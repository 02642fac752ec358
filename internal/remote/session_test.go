// internal/remote/session_test.go
package remote

import (
	"fmt"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stagehand/internal/config"
	"stagehand/internal/types"
)

// fakeRunner enregistre les commandes reçues et journalise sa
// fermeture dans un log partagé entre connexions.
type fakeRunner struct {
	label    string
	commands []string
	output   map[string]string
	events   *[]string
}

func (r *fakeRunner) Run(command string) (string, error) {
	r.commands = append(r.commands, command)
	if r.events != nil {
		*r.events = append(*r.events, "run:"+r.label)
	}
	if out, ok := r.output[command]; ok {
		return out, nil
	}
	return "", nil
}

func (r *fakeRunner) Close() error {
	if r.events != nil {
		*r.events = append(*r.events, "close:"+r.label)
	}
	return nil
}

func testSettings() *config.Settings {
	return &config.Settings{
		Development: types.StageProfile{
			Host: "dev.example.com", User: "deploy", Path: "/srv/project"},
		Quality: types.StageProfile{
			Host: "qa.example.com", User: "deploy", Path: "/srv/project"},
	}
}

func newTestSession(t *testing.T, settings *config.Settings, events *[]string) (*Session, map[string]*fakeRunner) {
	t.Helper()
	runners := make(map[string]*fakeRunner)
	dial := func(profile types.StageProfile) (Runner, error) {
		if events != nil {
			*events = append(*events, "dial:"+profile.Host)
		}
		runner := &fakeRunner{label: profile.Host, events: events}
		runners[profile.Host] = runner
		return runner, nil
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewSession(settings, dial, logger), runners
}

func TestSessionEnsureIsIdempotent(t *testing.T) {
	var events []string
	session, _ := newTestSession(t, testSettings(), &events)

	require.NoError(t, session.Ensure(types.Development))
	require.NoError(t, session.Ensure(types.Development))

	assert.Equal(t, []string{"dial:dev.example.com"}, events)
	assert.Equal(t, types.Development, session.Stage())
}

func TestSessionStageSwitchClosesBeforeDialing(t *testing.T) {
	var events []string
	session, _ := newTestSession(t, testSettings(), &events)

	require.NoError(t, session.Ensure(types.Development))
	require.NoError(t, session.Ensure(types.Quality))

	assert.Equal(t, []string{
		"dial:dev.example.com",
		"close:dev.example.com",
		"dial:qa.example.com",
	}, events)
	assert.Equal(t, types.Quality, session.Stage())
}

func TestSessionRejectsRootUser(t *testing.T) {
	// Le refus ne dépend pas de la casse du nom d'utilisateur.
	for _, user := range []string{"root", "Root", "ROOT", "rOoT"} {
		settings := testSettings()
		settings.Development.User = user

		var events []string
		session, _ := newTestSession(t, settings, &events)

		err := session.Ensure(types.Development)
		require.Error(t, err, user)

		var cfgErr *config.ConfigurationError
		assert.ErrorAs(t, err, &cfgErr, user)
		// La connexion n'a jamais été tentée.
		assert.Empty(t, events, user)
	}
}

func TestSessionRejectsUnknownStage(t *testing.T) {
	session, _ := newTestSession(t, testSettings(), nil)
	assert.Error(t, session.Ensure("production"))
}

func TestSessionRunPrependsCd(t *testing.T) {
	session, runners := newTestSession(t, testSettings(), nil)
	require.NoError(t, session.Ensure(types.Development))

	_, err := session.Run("docker-compose ps", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"cd /srv/project && docker-compose ps"},
		runners["dev.example.com"].commands)
}

func TestSessionRunWithoutPath(t *testing.T) {
	settings := testSettings()
	settings.Development.Path = ""

	session, runners := newTestSession(t, settings, nil)
	require.NoError(t, session.Ensure(types.Development))

	_, err := session.Run("docker-compose ps", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"docker-compose ps"},
		runners["dev.example.com"].commands)
}

func TestSessionRunNoCdSentinel(t *testing.T) {
	settings := testSettings()
	settings.Development.User = NoCdUser

	session, runners := newTestSession(t, settings, nil)
	require.NoError(t, session.Ensure(types.Development))

	_, err := session.Run("docker-compose ps", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"docker-compose ps"},
		runners["dev.example.com"].commands)
}

func TestSessionRunWithoutConnection(t *testing.T) {
	session, _ := newTestSession(t, testSettings(), nil)
	_, err := session.Run("docker-compose ps", true)
	assert.Error(t, err)
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	var events []string
	session, _ := newTestSession(t, testSettings(), &events)

	require.NoError(t, session.Ensure(types.Development))
	require.NoError(t, session.Close())
	require.NoError(t, session.Close())

	assert.Equal(t, []string{"dial:dev.example.com", "close:dev.example.com"}, events)
	assert.Empty(t, session.Stage())
}

func TestSessionDialError(t *testing.T) {
	dial := func(profile types.StageProfile) (Runner, error) {
		return nil, fmt.Errorf("connection refused")
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	session := NewSession(testSettings(), dial, logger)

	err := session.Ensure(types.Development)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "development")
}
