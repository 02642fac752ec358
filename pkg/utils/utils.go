// pkg/utils/utils.go
package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Path helpers
// ------------

// ExpandPath remplace le préfixe "~" par le répertoire de l'utilisateur.
func ExpandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return path, nil
}

// List helpers
// ------------

// SplitCSV aplatit des valeurs éventuellement données sous forme "a,b,c"
// en éliminant les entrées vides.
func SplitCSV(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Contains indique si value figure dans values.
func Contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}

// JSON helpers
// ------------

// PrettyJSON retourne une représentation JSON indentée.
func PrettyJSON(v interface{}) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("error marshaling JSON: %v", err)
	}
	return string(b)
}

// Time helpers
// ------------

// ParseTime essaie de parser une chaîne de date avec différents formats
func ParseTime(timeStr string) (time.Time, error) {
	for _, layout := range []string{
		"2006-01-02 15:04:05",
		time.RFC3339, // Format avec T et Z
		"2006-01-02T15:04:05Z07:00",
		time.RFC3339Nano,
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, timeStr); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("failed to parse time: %q", timeStr)
}
