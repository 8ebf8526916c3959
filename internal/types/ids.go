package types

import (
	"time"

	"github.com/google/uuid"
)

// NewVersionID generates a UUIDv7 engine generation identifier.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewVersionID() VersionID {
	return VersionID(uuid.Must(uuid.NewV7()).String())
}

// NewCatalogID generates a UUIDv7 identifier for a stored catalog.
func NewCatalogID() CatalogID {
	return CatalogID(uuid.Must(uuid.NewV7()).String())
}

// ParseCatalogID validates and converts a string to CatalogID.
func ParseCatalogID(s string) (CatalogID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return CatalogID(s), nil
}

// VersionTime extracts the timestamp embedded in a UUIDv7 version ID.
// Returns zero time for invalid UUIDs; caller should check IsZero().
func VersionTime(id VersionID) time.Time {
	u, err := uuid.Parse(string(id))
	if err != nil {
		return time.Time{}
	}
	sec, nsec := u.Time().UnixTime()
	return time.Unix(sec, nsec)
}
