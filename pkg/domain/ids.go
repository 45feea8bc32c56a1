// Package domain defines typed identifiers shared across the service.
//
// Every aggregate gets its own UUID-backed type so a VisitID can never be
// passed where a BuildingID is expected. Parse* functions are the single
// trust boundary for identifiers arriving from transport.
package domain

import (
	"github.com/google/uuid"

	dErrors "passage/pkg/domain-errors"
)

type (
	// VisitID identifies a visit authorization.
	VisitID uuid.UUID
	// VisitorID identifies a reusable visitor profile.
	VisitorID uuid.UUID
	// HostID identifies the resident or staff member who issues invitations.
	HostID uuid.UUID
	// BuildingID identifies a building aggregate (licenses, blacklist).
	BuildingID uuid.UUID
	// BanID identifies a denylist entry.
	BanID uuid.UUID
	// UserID identifies a registered, license-consuming account.
	UserID uuid.UUID
	// OfficerID identifies the security officer operating a gate station.
	OfficerID uuid.UUID
)

func (id VisitID) String() string    { return uuid.UUID(id).String() }
func (id VisitorID) String() string  { return uuid.UUID(id).String() }
func (id HostID) String() string     { return uuid.UUID(id).String() }
func (id BuildingID) String() string { return uuid.UUID(id).String() }
func (id BanID) String() string      { return uuid.UUID(id).String() }
func (id UserID) String() string     { return uuid.UUID(id).String() }
func (id OfficerID) String() string  { return uuid.UUID(id).String() }

// MarshalText renders ids as canonical UUID strings in JSON and text
// encodings; defined types do not inherit uuid.UUID's methods.
func (id VisitID) MarshalText() ([]byte, error)    { return []byte(id.String()), nil }
func (id VisitorID) MarshalText() ([]byte, error)  { return []byte(id.String()), nil }
func (id HostID) MarshalText() ([]byte, error)     { return []byte(id.String()), nil }
func (id BuildingID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id BanID) MarshalText() ([]byte, error)      { return []byte(id.String()), nil }
func (id UserID) MarshalText() ([]byte, error)     { return []byte(id.String()), nil }
func (id OfficerID) MarshalText() ([]byte, error)  { return []byte(id.String()), nil }

func (id *VisitID) UnmarshalText(text []byte) error {
	parsed, err := uuid.Parse(string(text))
	*id = VisitID(parsed)
	return err
}

func (id *VisitorID) UnmarshalText(text []byte) error {
	parsed, err := uuid.Parse(string(text))
	*id = VisitorID(parsed)
	return err
}

func (id *HostID) UnmarshalText(text []byte) error {
	parsed, err := uuid.Parse(string(text))
	*id = HostID(parsed)
	return err
}

func (id *BuildingID) UnmarshalText(text []byte) error {
	parsed, err := uuid.Parse(string(text))
	*id = BuildingID(parsed)
	return err
}

func (id *BanID) UnmarshalText(text []byte) error {
	parsed, err := uuid.Parse(string(text))
	*id = BanID(parsed)
	return err
}

func (id *UserID) UnmarshalText(text []byte) error {
	parsed, err := uuid.Parse(string(text))
	*id = UserID(parsed)
	return err
}

func (id *OfficerID) UnmarshalText(text []byte) error {
	parsed, err := uuid.Parse(string(text))
	*id = OfficerID(parsed)
	return err
}

func (id VisitID) IsZero() bool    { return uuid.UUID(id) == uuid.Nil }
func (id VisitorID) IsZero() bool  { return uuid.UUID(id) == uuid.Nil }
func (id HostID) IsZero() bool     { return uuid.UUID(id) == uuid.Nil }
func (id BuildingID) IsZero() bool { return uuid.UUID(id) == uuid.Nil }
func (id BanID) IsZero() bool      { return uuid.UUID(id) == uuid.Nil }
func (id UserID) IsZero() bool     { return uuid.UUID(id) == uuid.Nil }
func (id OfficerID) IsZero() bool  { return uuid.UUID(id) == uuid.Nil }

// NewVisitID returns a fresh random visit identifier.
func NewVisitID() VisitID { return VisitID(uuid.New()) }

// NewVisitorID returns a fresh random visitor identifier.
func NewVisitorID() VisitorID { return VisitorID(uuid.New()) }

// NewHostID returns a fresh random host identifier.
func NewHostID() HostID { return HostID(uuid.New()) }

// NewBuildingID returns a fresh random building identifier.
func NewBuildingID() BuildingID { return BuildingID(uuid.New()) }

// NewBanID returns a fresh random ban identifier.
func NewBanID() BanID { return BanID(uuid.New()) }

// NewUserID returns a fresh random user identifier.
func NewUserID() UserID { return UserID(uuid.New()) }

// NewOfficerID returns a fresh random officer identifier.
func NewOfficerID() OfficerID { return OfficerID(uuid.New()) }

func parse(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be empty")
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must be a valid UUID")
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be the nil UUID")
	}
	return parsed, nil
}

// ParseVisitID validates and converts an external string into a VisitID.
func ParseVisitID(raw string) (VisitID, error) {
	parsed, err := parse(raw)
	return VisitID(parsed), err
}

// ParseVisitorID validates and converts an external string into a VisitorID.
func ParseVisitorID(raw string) (VisitorID, error) {
	parsed, err := parse(raw)
	return VisitorID(parsed), err
}

// ParseHostID validates and converts an external string into a HostID.
func ParseHostID(raw string) (HostID, error) {
	parsed, err := parse(raw)
	return HostID(parsed), err
}

// ParseBuildingID validates and converts an external string into a BuildingID.
func ParseBuildingID(raw string) (BuildingID, error) {
	parsed, err := parse(raw)
	return BuildingID(parsed), err
}

// ParseBanID validates and converts an external string into a BanID.
func ParseBanID(raw string) (BanID, error) {
	parsed, err := parse(raw)
	return BanID(parsed), err
}

// ParseUserID validates and converts an external string into a UserID.
func ParseUserID(raw string) (UserID, error) {
	parsed, err := parse(raw)
	return UserID(parsed), err
}

// ParseOfficerID validates and converts an external string into an OfficerID.
func ParseOfficerID(raw string) (OfficerID, error) {
	parsed, err := parse(raw)
	return OfficerID(parsed), err
}
