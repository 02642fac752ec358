// internal/registry/image.go
package registry

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	tagSep  = ":"
	repoSep = "/"
)

var (
	// préfixe registry: hôte pointé ou localhost, port optionnel, slash final
	rxRegistry = regexp.MustCompile(`(?i)^(localhost|[\w-]+(\.[\w-]+)+)(:\d{1,5})?/`)
	// charset restreint du repository: segments alphanumériques minuscules
	rxRepository = regexp.MustCompile(`^[a-z0-9]+(?:[/:._-][a-z0-9]+)*$`)
)

// Reference est une vue immuable sur une référence composite
// `registry/namespace/repo:tag`. Construite à la demande depuis toute
// chaîne fournie par l'utilisateur ou retournée par le registry, jamais
// modifiée ensuite.
type Reference struct {
	Registry   string // préfixe host[:port]/ si présent, slash final inclus
	Repository string // namespace/image, sans registry ni tag
	Namespace  string // repository privé de son dernier segment, vide si aucun
	Image      string // dernier segment du repository
	Tag        string // partie après le dernier ':', vide si absente
}

// ParseReference décompose une chaîne en ses parties et valide le
// repository. Une chaîne hors charset retourne une FormatError.
func ParseReference(value string) (Reference, error) {
	var ref Reference

	rest := value
	if m := rxRegistry.FindString(rest); m != "" {
		ref.Registry = m
		rest = strings.TrimPrefix(rest, m)
	}

	if i := strings.LastIndex(rest, tagSep); i >= 0 {
		ref.Tag = rest[i+1:]
		rest = rest[:i]
	}

	if !rxRepository.MatchString(rest) {
		return Reference{}, &FormatError{Value: value}
	}
	ref.Repository = rest

	if i := strings.LastIndex(rest, repoSep); i >= 0 {
		ref.Namespace = rest[:i]
		ref.Image = rest[i+1:]
	} else {
		ref.Image = rest
	}

	return ref, nil
}

// RepoTag retourne la forme `repository:tag`, sans séparateur quand le
// tag est absent.
func (r Reference) RepoTag() string {
	if r.Tag == "" {
		return r.Repository
	}
	return r.Repository + tagSep + r.Tag
}

// Full retourne la référence complète, registry compris.
func (r Reference) Full() string {
	return r.Registry + r.RepoTag()
}

func (r Reference) String() string {
	return fmt.Sprintf("<%s Namespace=%q Image=%q Tag=%q>",
		r.Registry, r.Namespace, r.Image, r.Tag)
}

// Less ordonne les références par nom d'image.
func (r Reference) Less(other Reference) bool {
	return r.Image < other.Image
}
