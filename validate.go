package fbq

import (
	"fmt"
	"os"
	"regexp"
)

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.\-]*$`)

const maxNameLength = 128

// validateName validates a job or lock name before sending it to the server.
func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("fbq: name is required")
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("fbq: name must not exceed %d characters, got %d", maxNameLength, len(name))
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("fbq: invalid name %q: must match pattern ^[a-zA-Z0-9][a-zA-Z0-9_.-]*$", name)
	}
	return nil
}

// validateOwner validates a lock owner identity.
func validateOwner(owner string) error {
	if owner == "" {
		return fmt.Errorf("fbq: owner is required")
	}
	return nil
}

// validateID validates a job or durable id.
func validateID(id int64) error {
	if id <= 0 {
		return fmt.Errorf("fbq: id must be positive, got %d", id)
	}
	return nil
}

// validateFile checks that a local file scheduled for upload exists and is
// a regular file.
func validateFile(path string) error {
	if path == "" {
		return fmt.Errorf("fbq: file path is required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("fbq: file %q is not accessible: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("fbq: %q is a directory, not a file", path)
	}
	return nil
}
