// internal/remote/session.go
package remote

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"

	"stagehand/internal/config"
	"stagehand/internal/types"
	"stagehand/pkg/utils"
)

// NoCdUser est la valeur sentinelle du user qui désactive le cd vers le
// répertoire du projet avant chaque commande.
const NoCdUser = "0x00"

// Runner exécute des commandes sur un hôte distant.
type Runner interface {
	Run(command string) (string, error)
	Close() error
}

// DialFunc ouvre une connexion vers l'hôte d'un profil d'environnement.
type DialFunc func(profile types.StageProfile) (Runner, error)

// Session maintient au plus une connexion distante à la fois, liée à
// l'environnement courant. Changer d'environnement ferme la connexion
// en cours avant d'en ouvrir une nouvelle.
type Session struct {
	settings *config.Settings
	dial     DialFunc
	logger   *logrus.Logger

	stage   string
	profile types.StageProfile
	runner  Runner
}

// NewSession crée une session. Avec dial nil, la connexion se fait en
// SSH avec authentification par clé.
func NewSession(settings *config.Settings, dial DialFunc, logger *logrus.Logger) *Session {
	if dial == nil {
		dial = dialSSH
	}
	return &Session{
		settings: settings,
		dial:     dial,
		logger:   logger,
	}
}

// Stage retourne l'environnement de la connexion courante, vide si
// aucune connexion n'est ouverte.
func (s *Session) Stage() string {
	if s.runner == nil {
		return ""
	}
	return s.stage
}

// Ensure garantit une connexion ouverte vers l'environnement demandé.
// La connexion précédente est fermée avant d'ouvrir la nouvelle.
func (s *Session) Ensure(stage string) error {
	if s.runner != nil && s.stage == stage {
		return nil
	}
	if err := s.Close(); err != nil {
		return err
	}

	profile, err := s.settings.Stage(stage)
	if err != nil {
		return err
	}
	// Les déploiements en root sont interdits, avant même de se
	// connecter, quelle que soit la casse du nom.
	if strings.EqualFold(profile.User, "root") {
		return &config.ConfigurationError{
			Message: "user root is not allowed to run deployments"}
	}

	runner, err := s.dial(profile)
	if err != nil {
		return fmt.Errorf("failed to connect to stage %s: %w", stage, err)
	}

	s.stage = stage
	s.profile = profile
	s.runner = runner
	s.logger.Infof("connection stage: %s (%s@%s)", stage, profile.User, profile.Host)
	return nil
}

// Close ferme la connexion courante. Sans connexion, ne fait rien.
func (s *Session) Close() error {
	if s.runner == nil {
		return nil
	}
	err := s.runner.Close()
	s.runner = nil
	s.stage = ""
	s.profile = types.StageProfile{}
	if err != nil {
		return fmt.Errorf("failed to close remote connection: %w", err)
	}
	return nil
}

// Run exécute une commande dans le répertoire du projet de
// l'environnement courant. Avec hide, la sortie n'est pas affichée.
func (s *Session) Run(command string, hide bool) (string, error) {
	if s.runner == nil {
		return "", fmt.Errorf("no remote connection is open")
	}

	// Le cd est omis sans chemin configuré ou avec le user sentinelle.
	if s.profile.Path != "" && s.profile.User != NoCdUser {
		command = fmt.Sprintf("cd %s && %s", s.profile.Path, command)
	}

	s.logger.Debugf("remote command: %s", command)
	output, err := s.runner.Run(command)
	if err != nil {
		return output, err
	}
	if !hide && output != "" {
		fmt.Fprintln(os.Stdout, output)
	}
	return output, nil
}

// dialSSH ouvre une connexion SSH authentifiée par clé privée.
func dialSSH(profile types.StageProfile) (Runner, error) {
	pkeyPath, err := utils.ExpandPath(profile.Pkey)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve private key path: %w", err)
	}
	raw, err := os.ReadFile(pkeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	port := profile.Port
	if port == 0 {
		port = 22
	}

	cfg := &ssh.ClientConfig{
		User:            profile.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         30 * time.Second,
	}

	client, err := ssh.Dial("tcp", net.JoinHostPort(profile.Host, strconv.Itoa(port)), cfg)
	if err != nil {
		return nil, fmt.Errorf("ssh dial failed: %w", err)
	}
	return &sshRunner{client: client}, nil
}

// sshRunner exécute chaque commande dans une session SSH dédiée.
type sshRunner struct {
	client *ssh.Client
}

func (r *sshRunner) Run(command string) (string, error) {
	session, err := r.client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to open ssh session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	if err := session.Run(command); err != nil {
		return stdout.String(), fmt.Errorf("remote command failed: %w (%s)",
			err, bytes.TrimSpace(stderr.Bytes()))
	}
	return stdout.String(), nil
}

func (r *sshRunner) Close() error {
	return r.client.Close()
}
