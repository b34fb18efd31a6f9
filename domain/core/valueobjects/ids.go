package valueobjects

import (
	pkgerrors "companionlife/pkg/errors"

	"github.com/google/uuid"
)

// CompanionID identifies the companion a request, ritual or snapshot belongs to.
type CompanionID string

// RequestID is the identifier of an autonomy request.
type RequestID string

// RitualID is the identifier of a generated daily ritual.
type RitualID string

// NewRequestID creates a new random RequestID
func NewRequestID() RequestID {
	return RequestID(uuid.New().String())
}

// NewRitualID creates a new random RitualID
func NewRitualID() RitualID {
	return RitualID(uuid.New().String())
}

// ParseRequestID validates an externally supplied request id.
func ParseRequestID(id string) (RequestID, error) {
	if id == "" {
		return "", pkgerrors.NewValidationError("request ID cannot be empty")
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", pkgerrors.NewValidationError("request ID must be a valid UUID")
	}
	return RequestID(id), nil
}

// ParseRitualID validates an externally supplied ritual id.
func ParseRitualID(id string) (RitualID, error) {
	if id == "" {
		return "", pkgerrors.NewValidationError("ritual ID cannot be empty")
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", pkgerrors.NewValidationError("ritual ID must be a valid UUID")
	}
	return RitualID(id), nil
}

// ParseCompanionID accepts any non-empty companion id.
func ParseCompanionID(id string) (CompanionID, error) {
	if id == "" {
		return "", pkgerrors.NewValidationError("companion ID cannot be empty")
	}
	return CompanionID(id), nil
}

func (id CompanionID) String() string { return string(id) }
func (id RequestID) String() string { return string(id) }
func (id RitualID) String() string { return string(id) }
