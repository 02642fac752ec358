// internal/registry/walker.go
package registry

import (
	"context"
	"strings"

	"stagehand/pkg/utils"
)

// Wildcard désigne "tous les tags" dans les filtres de tags.
const Wildcard = "*"

// WalkOptions filtre le parcours du catalogue.
type WalkOptions struct {
	Repos      []string // repositories à retenir (vide = tous ceux du namespace)
	Tags       []string // tags à énumérer quand ExpandTags est vrai (vide = tous)
	ExpandTags bool     // énumérer les tags de chaque repository
}

// WalkFunc est appelée pour chaque référence rencontrée. Une erreur
// retournée arrête le parcours.
type WalkFunc func(ref Reference) error

// Walker parcourt les repositories d'un namespace du registry.
type Walker struct {
	client    *Client
	namespace string
}

// NewWalker crée un walker lié au namespace du client.
func NewWalker(client *Client) *Walker {
	return &Walker{
		client:    client,
		namespace: client.Namespace(),
	}
}

// NormalizeRepo préfixe un repository avec le namespace configuré, sauf
// s'il l'est déjà.
func (w *Walker) NormalizeRepo(repo string) string {
	if w.namespace == "" || strings.HasPrefix(repo, w.namespace+"/") {
		return repo
	}
	return w.namespace + "/" + repo
}

// NormalizeRepos normalise une liste de repositories, chaque élément
// pouvant lui-même être une liste séparée par des virgules.
func (w *Walker) NormalizeRepos(repos []string) []string {
	var out []string
	for _, repo := range utils.SplitCSV(repos) {
		out = append(out, w.NormalizeRepo(repo))
	}
	return out
}

// NormalizeTags élimine les entrées vides et le wildcard: une liste
// résultante vide signifie "tous les tags".
func NormalizeTags(tags []string) []string {
	var out []string
	for _, tag := range utils.SplitCSV(tags) {
		if tag == Wildcard {
			continue
		}
		out = append(out, tag)
	}
	return out
}

// Walk parcourt le catalogue en préservant l'ordre du registry et
// appelle fn pour chaque référence retenue.
func (w *Walker) Walk(ctx context.Context, opts WalkOptions, fn WalkFunc) error {
	repos := w.NormalizeRepos(opts.Repos)
	tags := NormalizeTags(opts.Tags)

	catalog, err := w.client.Catalog(ctx)
	if err != nil {
		return err
	}

	for _, name := range catalog {
		// On ne retient que les repositories du namespace configuré.
		if w.namespace != "" && !strings.HasPrefix(name, w.namespace+"/") {
			continue
		}
		if len(repos) > 0 && !utils.Contains(repos, name) {
			continue
		}

		if !opts.ExpandTags {
			ref, err := ParseReference(name)
			if err != nil {
				return err
			}
			if err := fn(ref); err != nil {
				return err
			}
			continue
		}

		repoTags, err := w.client.Tags(ctx, name)
		if err != nil {
			return err
		}
		for _, tag := range repoTags {
			if len(tags) > 0 && !utils.Contains(tags, tag) {
				continue
			}
			ref, err := ParseReference(name + ":" + tag)
			if err != nil {
				return err
			}
			if err := fn(ref); err != nil {
				return err
			}
		}
	}
	return nil
}
