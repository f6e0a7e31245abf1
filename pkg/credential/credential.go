package credential

import (
	"errors"
	"fmt"
	"time"
)

const (
	MaxNetworkIDLen = 31
	MaxSecretLen    = 62
)

var (
	// ErrNotFound is returned by Load when nothing has been saved.
	ErrNotFound = errors.New("no saved credential")
	// ErrInvalid is returned for a credential that can never be used.
	ErrInvalid = errors.New("invalid credential")
)

// Credential is the saved home network. Valid is false for a record that
// was cleared or never completed; such a record must not be used to connect.
type Credential struct {
	NetworkID string    `json:"ssid"`
	Secret    string    `json:"password"`
	Valid     bool      `json:"saved"`
	LastSeen  time.Time `json:"lastSeen"`
}

// New returns a valid credential stamped with now.
func New(networkID, secret string, now time.Time) (Credential, error) {
	c := Credential{
		NetworkID: networkID,
		Secret:    secret,
		Valid:     true,
		LastSeen:  now,
	}
	if err := c.Validate(); err != nil {
		return Credential{}, err
	}
	return c, nil
}

// Validate checks the length bounds of the record.
func (c Credential) Validate() error {
	if c.NetworkID == "" {
		return fmt.Errorf("%w: network id is empty", ErrInvalid)
	}
	if len(c.NetworkID) > MaxNetworkIDLen {
		return fmt.Errorf("%w: network id is %d bytes, at most %d allowed", ErrInvalid, len(c.NetworkID), MaxNetworkIDLen)
	}
	if len(c.Secret) > MaxSecretLen {
		return fmt.Errorf("%w: secret is %d bytes, at most %d allowed", ErrInvalid, len(c.Secret), MaxSecretLen)
	}
	return nil
}

// Usable reports whether the record may be used to attempt a connection.
func (c Credential) Usable() bool {
	return c.Valid && c.Validate() == nil
}

// String never includes the secret.
func (c Credential) String() string {
	return fmt.Sprintf("Credential{ssid=%q, valid=%t}", c.NetworkID, c.Valid)
}
