package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/runledger/runledger/internal/apperr"
)

// MaxNameLength bounds organization and project names.
const MaxNameLength = 255

// ValidateName trims name and checks it is non-empty and bounded.
// entity is used in messages ("organization", "project").
func ValidateName(entity, name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", apperr.Validation("name", fmt.Sprintf("%s name is required", entity))
	}
	if utf8.RuneCountInString(trimmed) > MaxNameLength {
		return "", apperr.Validation("name", fmt.Sprintf("%s name must be at most %d characters", entity, MaxNameLength))
	}
	return trimmed, nil
}
