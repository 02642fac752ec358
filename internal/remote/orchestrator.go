// internal/remote/orchestrator.go
package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"stagehand/internal/config"
	"stagehand/internal/storage/database"
	"stagehand/internal/types"
)

// LoginError signale un échec d'authentification au registry depuis
// l'hôte distant. Il interrompt le déploiement avant toute étape
// destructrice.
type LoginError struct {
	Host string
}

func (e *LoginError) Error() string {
	return fmt.Sprintf("registry login failed on %s", e.Host)
}

// Orchestrator pilote les opérations docker-compose des environnements
// distants à travers une session unique.
type Orchestrator struct {
	session  *Session
	settings *config.Settings
	db       *database.Database
	logger   *logrus.Logger
}

// NewOrchestrator crée un orchestrateur. db peut être nil quand
// l'historique n'est pas souhaité.
func NewOrchestrator(settings *config.Settings, session *Session, db *database.Database, logger *logrus.Logger) *Orchestrator {
	return &Orchestrator{
		session:  session,
		settings: settings,
		db:       db,
		logger:   logger,
	}
}

// Close libère la session et la base d'historique.
func (o *Orchestrator) Close() error {
	var errs []error
	if err := o.session.Close(); err != nil {
		errs = append(errs, err)
	}
	if o.db != nil {
		if err := o.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// run exécute une commande distante après vérification du contexte:
// une annulation empêche l'étape suivante de partir.
func (o *Orchestrator) run(ctx context.Context, command string, hide bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return o.session.Run(command, hide)
}

// login authentifie l'hôte distant auprès du registry. La commande est
// masquée pour ne pas exposer le mot de passe.
func (o *Orchestrator) login(ctx context.Context) error {
	user, pass, ok := o.settings.Registry.BasicAuth()
	if !ok {
		return &config.ConfigurationError{
			Message: "registry credentials are not configured"}
	}

	output, err := o.run(ctx, fmt.Sprintf("docker login -u %s -p %s %s",
		user, pass, o.settings.Registry.Host), true)
	if err != nil {
		return err
	}
	if !LoginSucceeded(output) {
		return &LoginError{Host: o.session.profile.Host}
	}
	return nil
}

// Services retourne les services compose de l'environnement courant.
func (o *Orchestrator) Services(ctx context.Context, filter []string) ([]string, error) {
	output, err := o.run(ctx, "docker-compose ps --services", true)
	if err != nil {
		return nil, err
	}
	return ParseServices(output, filter), nil
}

// Images retourne les images des services donnés.
func (o *Orchestrator) Images(ctx context.Context, services []string) ([]string, error) {
	output, err := o.run(ctx, "docker-compose images", true)
	if err != nil {
		return nil, err
	}
	return ParseImages(output, services), nil
}

// ForEachStage exécute fn sur chaque environnement demandé, dans
// l'ordre et séquentiellement. Un échec de connexion arrête tout; un
// échec de fn est journalisé et les environnements suivants sont tout
// de même traités.
func (o *Orchestrator) ForEachStage(stages []string, fn func(stage string) error) error {
	if len(stages) == 0 {
		stages = []string{types.Development}
	}
	defer o.session.Close()

	var errs []error
	for _, stage := range stages {
		if err := o.session.Ensure(stage); err != nil {
			errs = append(errs, err)
			return errors.Join(errs...)
		}
		if err := fn(stage); err != nil {
			o.logger.Errorf("✗ stage %s failed: %v", stage, err)
			errs = append(errs, fmt.Errorf("stage %s: %w", stage, err))
			continue
		}
		o.logger.Infof("✓ stage %s completed", stage)
	}
	return errors.Join(errs...)
}

// record trace une opération dans l'historique, sans base configurée
// ne fait rien.
func (o *Orchestrator) record(operation, subject, sourceTag, targetTag string, success bool, message string) {
	if o.db == nil {
		return
	}
	status := "ok"
	if !success {
		status = "failed"
	}
	entry := &types.HistoryEntry{
		Operation: operation,
		Subject:   subject,
		SourceTag: sourceTag,
		TargetTag: targetTag,
		Status:    status,
		Message:   message,
	}
	if err := o.db.SaveEntry(entry); err != nil {
		o.logger.Warnf("failed to record history entry: %v", err)
	}
}
