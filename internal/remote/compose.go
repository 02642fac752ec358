// internal/remote/compose.go
package remote

// Opérations compose unitaires, chacune déroulée sur les environnements
// demandés via ForEachStage.

import (
	"context"
	"fmt"
	"strings"

	"stagehand/pkg/utils"
)

// Up démarre les services en recréant ce qui doit l'être.
func (o *Orchestrator) Up(ctx context.Context, stages []string) error {
	return o.ForEachStage(stages, func(stage string) error {
		_, err := o.run(ctx, "docker-compose up -d --remove-orphans", false)
		o.record("up", stage, "", "", err == nil, errMessage(err))
		return err
	})
}

// Down arrête et supprime conteneurs, volumes et orphelins.
func (o *Orchestrator) Down(ctx context.Context, stages []string) error {
	return o.ForEachStage(stages, func(stage string) error {
		_, err := o.run(ctx, "docker-compose down -v --remove-orphans", false)
		o.record("down", stage, "", "", err == nil, errMessage(err))
		return err
	})
}

// Start démarre les services donnés (tous si filter est vide).
func (o *Orchestrator) Start(ctx context.Context, stages, filter []string) error {
	return o.composeVerb(ctx, "start", stages, filter)
}

// Stop arrête les services donnés (tous si filter est vide).
func (o *Orchestrator) Stop(ctx context.Context, stages, filter []string) error {
	return o.composeVerb(ctx, "stop", stages, filter)
}

// Restart redémarre les services donnés (tous si filter est vide).
func (o *Orchestrator) Restart(ctx context.Context, stages, filter []string) error {
	return o.composeVerb(ctx, "restart", stages, filter)
}

// composeVerb applique un verbe compose aux services découverts, pour
// ne viser que des services réellement connus du projet.
func (o *Orchestrator) composeVerb(ctx context.Context, verb string, stages, filter []string) error {
	return o.ForEachStage(stages, func(stage string) error {
		services, err := o.Services(ctx, filter)
		if err != nil {
			return err
		}
		if len(services) == 0 {
			o.logger.Warnf("- no matching service on stage %s", stage)
			return nil
		}
		_, err = o.run(ctx, fmt.Sprintf("docker-compose %s %s",
			verb, strings.Join(services, " ")), false)
		o.record(verb, stage, "", "", err == nil, errMessage(err))
		return err
	})
}

// ListServices affiche les services de chaque environnement.
func (o *Orchestrator) ListServices(ctx context.Context, stages, filter []string) error {
	return o.ForEachStage(stages, func(stage string) error {
		services, err := o.Services(ctx, filter)
		if err != nil {
			return err
		}
		o.logger.Infof("[%s] services:", stage)
		for _, service := range services {
			fmt.Println("  " + service)
		}
		return nil
	})
}

// Ps affiche l'état des conteneurs de chaque environnement.
func (o *Orchestrator) Ps(ctx context.Context, stages []string) error {
	return o.ForEachStage(stages, func(stage string) error {
		_, err := o.run(ctx, "docker-compose ps", false)
		return err
	})
}

// ComposeConfig affiche la configuration compose résolue, digests
// d'images inclus.
func (o *Orchestrator) ComposeConfig(ctx context.Context, stages []string) error {
	return o.ForEachStage(stages, func(stage string) error {
		_, err := o.run(ctx, "docker-compose config --resolve-image-digests", false)
		return err
	})
}

// Prune détruit l'intégralité du projet distant: conteneurs, volumes,
// images et orphelins.
func (o *Orchestrator) Prune(ctx context.Context, stages []string) error {
	return o.ForEachStage(stages, func(stage string) error {
		if _, err := o.run(ctx, "docker-compose down -v --rmi all --remove-orphans", false); err != nil {
			o.record("prune", stage, "", "", false, err.Error())
			return err
		}
		_, err := o.run(ctx, "docker volume prune -f", false)
		o.record("prune", stage, "", "", err == nil, errMessage(err))
		return err
	})
}

// UpdateRepo met à jour le dépôt git du projet de chaque environnement.
func (o *Orchestrator) UpdateRepo(ctx context.Context, stages []string) error {
	return o.ForEachStage(stages, func(stage string) error {
		err := o.updateRepo(ctx)
		o.record("update", stage, "", "", err == nil, errMessage(err))
		return err
	})
}

// Exec exécute une commande arbitraire restreinte aux binaires de
// gestion du projet.
func (o *Orchestrator) Exec(ctx context.Context, stages []string, command string) error {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return fmt.Errorf("empty command")
	}
	if !utils.Contains([]string{"docker", "docker-compose", "git"}, fields[0]) {
		return fmt.Errorf("command '%s' is not allowed: only docker, docker-compose and git", fields[0])
	}
	return o.ForEachStage(stages, func(stage string) error {
		_, err := o.run(ctx, command, false)
		return err
	})
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
