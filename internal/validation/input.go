// Package validation checks caller-supplied identifiers before they
// reach storage or the engine.
package validation

import (
	"fmt"
	"regexp"
)

var (
	idPattern     = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	pageIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_/\\ -]+$`)
)

// ValidateAdventureID validates adventure ID format
func ValidateAdventureID(id string) error {
	if len(id) == 0 || len(id) > 64 {
		return fmt.Errorf("adventure ID must be 1-64 characters")
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("adventure ID can only contain alphanumeric characters, hyphens, and underscores")
	}
	return nil
}

// ValidateSessionID validates session ID format
func ValidateSessionID(id string) error {
	if len(id) == 0 || len(id) > 64 {
		return fmt.Errorf("session ID must be 1-64 characters")
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("session ID can only contain alphanumeric characters, hyphens, and underscores")
	}
	return nil
}

// ValidatePageID validates page ID format. Forward slashes are allowed
// because page ids may be folder-qualified.
func ValidatePageID(id string) error {
	if len(id) == 0 || len(id) > 128 {
		return fmt.Errorf("page ID must be 1-128 characters")
	}
	if !pageIDPattern.MatchString(id) {
		return fmt.Errorf("page ID can only contain alphanumeric characters, hyphens, underscores, and slashes")
	}
	return nil
}

// ValidateChoiceIndex validates a choice selection index
func ValidateChoiceIndex(index int) error {
	if index < 0 || index > 255 {
		return fmt.Errorf("choice index must be between 0 and 255")
	}
	return nil
}

// ValidateNameValue validates a player-supplied name value
func ValidateNameValue(value string) error {
	if len(value) == 0 || len(value) > 128 {
		return fmt.Errorf("name value must be 1-128 characters")
	}
	return nil
}
