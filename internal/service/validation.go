package service

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

func newMessageID() string {
	return uuid.NewString()
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		parts := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			parts = append(parts, fmt.Sprintf("%s: %s", strings.ToLower(fe.Field()), fe.Tag()))
		}
		return validationError("%s", strings.Join(parts, ", "))
	}
	return validationError("%v", err)
}

// validateBody checks the length bounds in characters, matching the store constraint.
func validateBody(body string) error {
	n := utf8.RuneCountInString(body)
	if n < MinBodyLength {
		return validationError("body must be at least %d characters", MinBodyLength)
	}
	if n > MaxBodyLength {
		return validationError("body must be at most %d characters", MaxBodyLength)
	}
	return nil
}

func validateContact(listingID, recipientID, senderID string, in ContactInput) error {
	if listingID == "" || recipientID == "" || senderID == "" {
		return validationError("listing, recipient and sender are required")
	}
	if senderID == recipientID {
		return validationError("cannot contact yourself")
	}
	if err := validateStruct(in); err != nil {
		return err
	}
	if strings.TrimSpace(in.Subject) == "" {
		return validationError("subject: required")
	}
	return validateBody(in.Body)
}

func validateReply(originalID, senderID string, in ReplyInput) error {
	if originalID == "" || senderID == "" {
		return validationError("message and sender are required")
	}
	if err := validateStruct(in); err != nil {
		return err
	}
	return validateBody(in.Body)
}
