// Package identity derives the values that identify this client to the
// remote service. They are computed once per process and reused across
// every reconnection.
package identity

import (
	"strings"

	"github.com/google/uuid"

	"github.com/vinayprograms/nodelink/errors"
)

// Seed is the fixed name hashed into the device identifier.
const Seed = "no_proxy"

// DeviceID returns the version-3 UUID of the DNS namespace and Seed.
func DeviceID() uuid.UUID {
	return uuid.NewMD5(uuid.NameSpaceDNS, []byte(Seed))
}

// Identity is the immutable pair sent in every handshake response.
type Identity struct {
	deviceID string
	userID   string
}

// New builds an Identity for the given account identifier. Surrounding
// whitespace is trimmed; an empty result is a configuration error.
func New(userID string) (Identity, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Identity{}, errors.Config("user id is empty")
	}
	return Identity{
		deviceID: DeviceID().String(),
		userID:   userID,
	}, nil
}

// DeviceID returns the stable device identifier.
func (i Identity) DeviceID() string { return i.deviceID }

// UserID returns the configured account identifier.
func (i Identity) UserID() string { return i.userID }
