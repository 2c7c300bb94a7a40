// Package model defines the travels domain entities and their JSON wire format.
//
// The wire format is fixed: identifiers are plain numbers, gender is the
// single letter "m" or "f", and timestamps are Unix seconds (possibly
// negative for dates before 1970). Struct field order matters because
// responses are compared byte-for-byte by the load generator.
package model

import (
	"encoding/json"
	"fmt"
)

// Entity identifiers. The dataset never exceeds uint32.
type (
	UserID     uint32
	LocationID uint32
	VisitID    uint32
)

// Timestamp is Unix seconds. Negative values are valid (birth dates).
type Timestamp = int64

// MaxMark is the highest visit rating.
const MaxMark = 5

// Gender is serialized as "m" or "f"; anything else is a decode error.
type Gender string

const (
	GenderMale   Gender = "m"
	GenderFemale Gender = "f"
)

// Valid reports whether g is one of the two wire values.
func (g Gender) Valid() bool {
	return g == GenderMale || g == GenderFemale
}

// MarshalJSON implements json.Marshaler.
func (g Gender) MarshalJSON() ([]byte, error) {
	if !g.Valid() {
		return nil, fmt.Errorf("invalid gender %q", string(g))
	}
	return []byte(`"` + string(g) + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (g *Gender) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch Gender(s) {
	case GenderMale, GenderFemale:
		*g = Gender(s)
		return nil
	default:
		return fmt.Errorf("invalid gender %q", s)
	}
}

// User is a registered traveler.
type User struct {
	ID        UserID    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Gender    Gender    `json:"gender"`
	BirthDate Timestamp `json:"birth_date"`
}

// Location is a place users visit.
type Location struct {
	ID       LocationID `json:"id"`
	Place    string     `json:"place"`
	Country  string     `json:"country"`
	City     string     `json:"city"`
	Distance uint32     `json:"distance"`
}

// Visit links a user to a location with a rating.
type Visit struct {
	ID        VisitID    `json:"id"`
	Location  LocationID `json:"location"`
	User      UserID     `json:"user"`
	VisitedAt Timestamp  `json:"visited_at"`
	Mark      uint8      `json:"mark"` // in range 0..5
}
