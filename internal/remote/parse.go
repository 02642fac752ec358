// internal/remote/parse.go
package remote

// L'analyse des sorties docker / docker-compose est isolée ici: le jour
// où une source structurée (--format json) devient disponible partout,
// seule cette unité change.

import (
	"regexp"
	"strings"

	"stagehand/pkg/utils"
)

var (
	// Ligne de `docker-compose ps --services`.
	rxService = regexp.MustCompile(`(?i)^[a-z](?:[\w_])+$`)

	// Ligne de `docker-compose images`: conteneur, repository, tag.
	rxImageRow = regexp.MustCompile(`(?i)^[a-z](?:[\w_])+_\d{1,3}\s{2,}` +
		`[a-z0-9](?:[\w.-]+)(?::\d{1,5})?/[a-z0-9](?:[\w.-/])*\s{2,}` +
		`(?:[a-z][\w.-]*)\s`)

	// Confirmation de `docker login`.
	rxLogin = regexp.MustCompile(`(?im)Login\sSucceeded$`)
)

// ParseServices extrait les noms de services d'une sortie de
// `docker-compose ps --services`, filtrés si filter n'est pas vide.
func ParseServices(output string, filter []string) []string {
	var services []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if !rxService.MatchString(line) {
			continue
		}
		if len(filter) > 0 && !utils.Contains(filter, line) {
			continue
		}
		services = append(services, line)
	}
	return services
}

// ParseImages extrait les couples repository:tag d'une sortie de
// `docker-compose images`, restreints aux services donnés.
func ParseImages(output string, services []string) []string {
	var images []string
	for _, line := range strings.Split(output, "\n") {
		if !rxImageRow.MatchString(strings.TrimSpace(line)) {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		container, repository, tag := fields[0], fields[1], fields[2]
		if len(services) > 0 && !utils.Contains(services, NormalizeContainerName(container)) {
			continue
		}
		images = append(images, repository+":"+tag)
	}
	return images
}

// NormalizeContainerName retrouve le nom de service d'un nom de
// conteneur compose ("projet_service_1" -> "service"). Chaîne vide si
// le nom n'a pas la forme attendue.
func NormalizeContainerName(container string) string {
	parts := strings.Split(container, "_")
	if len(parts) < 2 {
		return ""
	}
	return strings.Join(parts[1:len(parts)-1], "_")
}

// LoginSucceeded vérifie qu'une sortie de `docker login` confirme
// l'authentification.
func LoginSucceeded(output string) bool {
	return rxLogin.MatchString(output)
}
