// internal/release/promoter.go
package release

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"stagehand/internal/registry"
	"stagehand/internal/storage/database"
	"stagehand/internal/types"
	"stagehand/internal/types/options"
)

// Tags de la chaîne de promotion.
const (
	TagDev    = "dev"
	TagRC     = "rc"
	TagLatest = "latest"

	rollbackSuffix = "-rollback"
)

// Promoter fait progresser les images dans la chaîne dev -> rc ->
// latest, en conservant l'état précédent sous un tag de rollback.
type Promoter struct {
	client *registry.Client
	walker *registry.Walker
	db     *database.Database
	logger *logrus.Logger
}

// NewPromoter crée un promoteur. db peut être nil quand l'historique
// n'est pas souhaité.
func NewPromoter(client *registry.Client, db *database.Database, logger *logrus.Logger) *Promoter {
	return &Promoter{
		client: client,
		walker: registry.NewWalker(client),
		db:     db,
		logger: logger,
	}
}

// PromoteToQuality promeut les images dev vers rc.
func (p *Promoter) PromoteToQuality(ctx context.Context, opts *options.PromoteOptions) ([]*types.PromoteResult, error) {
	return p.promote(ctx, TagDev, TagRC, opts)
}

// PromoteToProduction promeut les images rc vers latest.
func (p *Promoter) PromoteToProduction(ctx context.Context, opts *options.PromoteOptions) ([]*types.PromoteResult, error) {
	return p.promote(ctx, TagRC, TagLatest, opts)
}

// promote parcourt les images portant sourceTag et repointe targetTag
// vers elles. L'ancien targetTag est d'abord sauvegardé sous le tag de
// rollback: cet ordre garantit un état restaurable avant d'écraser quoi
// que ce soit. Un échec final laisse les promotions déjà faites en
// place.
func (p *Promoter) promote(ctx context.Context, sourceTag, targetTag string, opts *options.PromoteOptions) ([]*types.PromoteResult, error) {
	if opts == nil {
		opts = options.NewPromoteOptions()
	}

	var results []*types.PromoteResult
	walkOpts := registry.WalkOptions{
		Repos:      opts.Repos,
		Tags:       []string{sourceTag},
		ExpandTags: true,
	}

	err := p.walker.Walk(ctx, walkOpts, func(ref registry.Reference) error {
		result := &types.PromoteResult{
			Repository:  ref.Repository,
			SourceTag:   sourceTag,
			TargetTag:   targetTag,
			RollbackTag: targetTag + rollbackSuffix,
		}
		results = append(results, result)

		if opts.DryRun {
			p.logger.Infof("- dry-run: would promote %s:%s to %s",
				ref.Repository, sourceTag, targetTag)
			result.Success = true
			return nil
		}

		// Sauvegarde du target courant sous le tag de rollback, avant
		// tout écrasement. Un target absent (première promotion) n'est
		// pas une erreur.
		if err := p.client.PutTag(ctx, ref.Repository, targetTag, result.RollbackTag); err != nil {
			if registry.IsNotFound(err) {
				p.logger.Debugf("no previous %s tag on %s, rollback skipped",
					targetTag, ref.Repository)
			} else {
				p.logger.Errorf("✗ rollback tagging failed on %s: %v", ref.Repository, err)
				result.RollbackError = err.Error()
			}
		} else {
			result.RolledBack = true
		}

		if err := p.client.PutTag(ctx, ref.Repository, sourceTag, targetTag); err != nil {
			result.Error = err.Error()
			p.record(ref.Repository, sourceTag, targetTag, false, err.Error())
			return fmt.Errorf("failed to promote %s:%s to %s: %w",
				ref.Repository, sourceTag, targetTag, err)
		}

		result.Success = true
		p.logger.Infof("✓ release source: %s, target: %s",
			ref.RepoTag(), ref.Repository+":"+targetTag)
		p.record(ref.Repository, sourceTag, targetTag, true, "")
		return nil
	})
	return results, err
}

func (p *Promoter) record(subject, sourceTag, targetTag string, success bool, message string) {
	if p.db == nil {
		return
	}
	status := "ok"
	if !success {
		status = "failed"
	}
	entry := &types.HistoryEntry{
		Operation: "release",
		Subject:   subject,
		SourceTag: sourceTag,
		TargetTag: targetTag,
		Status:    status,
		Message:   message,
	}
	if err := p.db.SaveEntry(entry); err != nil {
		p.logger.Warnf("failed to record history entry: %v", err)
	}
}
