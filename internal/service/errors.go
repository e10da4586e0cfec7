package service

import (
	"errors"
	"fmt"

	"github.com/listinginbox/backend/internal/repository"
)

var (
	// ErrValidation is returned when input is rejected before any write.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned when a referenced message or thread does not exist.
	ErrNotFound = errors.New("not found")
	// ErrPermissionDenied is returned when the caller is not a participant of the thread or message.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrTransient is returned when the store stayed unavailable after retries.
	ErrTransient = errors.New("store temporarily unavailable")
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// translate maps repository sentinels onto the service taxonomy.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrNotFound) && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}
