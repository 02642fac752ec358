// internal/registry/errors.go
package registry

import (
	"errors"
	"fmt"
	"net/http"
)

// FormatError signale une référence d'image mal formée. Toujours fatale
// pour l'opération en cours, jamais réessayée.
type FormatError struct {
	Value string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s is malformed", e.Value)
}

// Error représente une erreur structurée retournée par l'API du registry
// (première entrée du tableau `errors` du corps de réponse).
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// StatusError est retournée quand le registry répond un statut HTTP
// d'erreur sans corps structuré exploitable.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("registry returned %s", e.Status)
}

// IsNotFound indique si l'erreur correspond à une ressource absente du
// registry, code structuré ou statut 404.
func IsNotFound(err error) bool {
	var re *Error
	if errors.As(err, &re) {
		switch re.Code {
		case "MANIFEST_UNKNOWN", "NAME_UNKNOWN", "BLOB_UNKNOWN", "TAG_INVALID":
			return true
		}
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusNotFound
	}
	return false
}
