// internal/remote/deploy.go
package remote

import (
	"context"
	"fmt"
	"strings"

	"stagehand/internal/types"
	"stagehand/internal/types/options"
)

// Deploy déroule la séquence de déploiement sur chaque environnement
// demandé et retourne le résultat de chacun.
func (o *Orchestrator) Deploy(ctx context.Context, stages []string, opts *options.DeployOptions) ([]*types.DeployResult, error) {
	if opts == nil {
		opts = options.NewDeployOptions()
	}

	var results []*types.DeployResult
	err := o.ForEachStage(stages, func(stage string) error {
		result := o.deployStage(ctx, stage, opts)
		results = append(results, result)
		o.record("deploy", stage, "", "", result.Success, result.Error)
		if !result.Success {
			return fmt.Errorf("%s", result.Error)
		}
		return nil
	})
	return results, err
}

// deployStage exécute la séquence complète sur l'environnement courant.
// L'authentification au registry vient en premier: son échec interdit
// toute étape destructrice.
func (o *Orchestrator) deployStage(ctx context.Context, stage string, opts *options.DeployOptions) *types.DeployResult {
	result := &types.DeployResult{Stage: stage}
	fail := func(err error) *types.DeployResult {
		result.Error = err.Error()
		return result
	}

	// 1. Authentification au registry
	if err := o.login(ctx); err != nil {
		return fail(err)
	}

	// 2. Arrêt des services
	if _, err := o.run(ctx, "docker-compose stop", false); err != nil {
		return fail(err)
	}

	// 3. Découverte des services
	services, err := o.Services(ctx, opts.Services)
	if err != nil {
		return fail(err)
	}
	result.Services = services

	// 4. Images des services retenus
	images, err := o.Images(ctx, services)
	if err != nil {
		return fail(err)
	}
	result.Images = images

	// 5. Suppression des conteneurs
	if len(services) > 0 {
		cmd := "docker-compose rm -fsv " + strings.Join(services, " ")
		if _, err := o.run(ctx, cmd, false); err != nil {
			return fail(err)
		}
	}

	// 6. Suppression des images locales
	if len(images) > 0 {
		cmd := "docker rmi -f " + strings.Join(images, " ")
		if _, err := o.run(ctx, cmd, false); err != nil {
			return fail(err)
		}
	}

	// 7. Purge des volumes orphelins, systématique
	if _, err := o.run(ctx, "docker volume prune -f", false); err != nil {
		return fail(err)
	}

	// 8. Mise à jour du dépôt du projet, sur demande
	if opts.Update {
		if err := o.updateRepo(ctx); err != nil {
			return fail(err)
		}
		result.Updated = true
	}

	// 9. Redémarrage
	if _, err := o.run(ctx, "docker-compose up -d --remove-orphans", false); err != nil {
		return fail(err)
	}

	result.Success = true
	return result
}

// updateRepo ramène le dépôt du projet distant sur la branche amont.
func (o *Orchestrator) updateRepo(ctx context.Context) error {
	if _, err := o.run(ctx, "git reset --hard", false); err != nil {
		return err
	}
	_, err := o.run(ctx, "git pull --rebase --stat", false)
	return err
}
