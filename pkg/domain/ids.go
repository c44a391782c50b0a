// Package domain provides typed identifiers shared across modules.
//
// IDs are distinct named types over uuid.UUID so the compiler rejects
// cross-type assignment (passing a ProjectID where a DomainID is expected).
package domain

import (
	"github.com/google/uuid"

	dErrors "plinth/pkg/domain-errors"
)

// DomainID identifies a Domain record in the registry.
type DomainID uuid.UUID

// ProjectID identifies a hosting project a domain can be bound to.
type ProjectID uuid.UUID

// UserID identifies the account that owns a project or initiated a purchase.
type UserID uuid.UUID

// LogEntryID identifies a deployment log entry.
type LogEntryID uuid.UUID

func (id DomainID) String() string   { return uuid.UUID(id).String() }
func (id ProjectID) String() string  { return uuid.UUID(id).String() }
func (id UserID) String() string     { return uuid.UUID(id).String() }
func (id LogEntryID) String() string { return uuid.UUID(id).String() }

func (id DomainID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id ProjectID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id UserID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id LogEntryID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// parseUUID enforces the shared invariant: IDs must be valid, non-nil UUIDs.
func parseUUID(s, what string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" is not a valid UUID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" cannot be the nil UUID")
	}
	return u, nil
}

// ParseDomainID parses a string into a DomainID, validating at the trust boundary.
func ParseDomainID(s string) (DomainID, error) {
	u, err := parseUUID(s, "domain id")
	return DomainID(u), err
}

// ParseProjectID parses a string into a ProjectID.
func ParseProjectID(s string) (ProjectID, error) {
	u, err := parseUUID(s, "project id")
	return ProjectID(u), err
}

// ParseUserID parses a string into a UserID.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user id")
	return UserID(u), err
}
