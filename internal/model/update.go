package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNullField is returned when a create or update body carries an explicit
// JSON null. The API contract treats null as invalid for every field.
var ErrNullField = errors.New("field must not be null")

// Optional wraps a field that may be absent from a request body. Unlike a
// pointer, decoding an explicit null fails instead of yielding nil: the
// wire contract distinguishes "absent" (keep current value) from "null"
// (client error).
type Optional[T any] struct {
	Value T
	Set   bool
}

// Some returns a populated Optional. Mostly used in tests.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Value: v, Set: true}
}

// UnmarshalJSON implements json.Unmarshaler. It is only invoked for fields
// present in the document, so Set is always true on success.
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return ErrNullField
	}
	if err := json.Unmarshal(data, &o.Value); err != nil {
		return err
	}
	o.Set = true
	return nil
}

// UserUpdate is a partial update for a user. Absent fields keep their value.
type UserUpdate struct {
	Email     Optional[string]    `json:"email"`
	FirstName Optional[string]    `json:"first_name"`
	LastName  Optional[string]    `json:"last_name"`
	Gender    Optional[Gender]    `json:"gender"`
	BirthDate Optional[Timestamp] `json:"birth_date"`
}

// LocationUpdate is a partial update for a location.
type LocationUpdate struct {
	Place    Optional[string] `json:"place"`
	Country  Optional[string] `json:"country"`
	City     Optional[string] `json:"city"`
	Distance Optional[uint32] `json:"distance"`
}

// VisitUpdate is a partial update for a visit.
type VisitUpdate struct {
	Location  Optional[LocationID] `json:"location"`
	User      Optional[UserID]     `json:"user"`
	VisitedAt Optional[Timestamp]  `json:"visited_at"`
	Mark      Optional[uint8]      `json:"mark"`
}

// UserCreate is a create body: every field is required.
type UserCreate struct {
	ID        Optional[UserID]    `json:"id"`
	Email     Optional[string]    `json:"email"`
	FirstName Optional[string]    `json:"first_name"`
	LastName  Optional[string]    `json:"last_name"`
	Gender    Optional[Gender]    `json:"gender"`
	BirthDate Optional[Timestamp] `json:"birth_date"`
}

// User builds the entity, failing if any field is missing.
func (c UserCreate) User() (User, error) {
	if !c.ID.Set || !c.Email.Set || !c.FirstName.Set || !c.LastName.Set || !c.Gender.Set || !c.BirthDate.Set {
		return User{}, errors.New("user create requires all fields")
	}
	return User{
		ID:        c.ID.Value,
		Email:     c.Email.Value,
		FirstName: c.FirstName.Value,
		LastName:  c.LastName.Value,
		Gender:    c.Gender.Value,
		BirthDate: c.BirthDate.Value,
	}, nil
}

// LocationCreate is a create body: every field is required.
type LocationCreate struct {
	ID       Optional[LocationID] `json:"id"`
	Place    Optional[string]     `json:"place"`
	Country  Optional[string]     `json:"country"`
	City     Optional[string]     `json:"city"`
	Distance Optional[uint32]     `json:"distance"`
}

// Location builds the entity, failing if any field is missing.
func (c LocationCreate) Location() (Location, error) {
	if !c.ID.Set || !c.Place.Set || !c.Country.Set || !c.City.Set || !c.Distance.Set {
		return Location{}, errors.New("location create requires all fields")
	}
	return Location{
		ID:       c.ID.Value,
		Place:    c.Place.Value,
		Country:  c.Country.Value,
		City:     c.City.Value,
		Distance: c.Distance.Value,
	}, nil
}

// VisitCreate is a create body: every field is required.
type VisitCreate struct {
	ID        Optional[VisitID]    `json:"id"`
	Location  Optional[LocationID] `json:"location"`
	User      Optional[UserID]     `json:"user"`
	VisitedAt Optional[Timestamp]  `json:"visited_at"`
	Mark      Optional[uint8]      `json:"mark"`
}

// Visit builds the entity, failing if any field is missing or the mark is
// out of range.
func (c VisitCreate) Visit() (Visit, error) {
	if !c.ID.Set || !c.Location.Set || !c.User.Set || !c.VisitedAt.Set || !c.Mark.Set {
		return Visit{}, errors.New("visit create requires all fields")
	}
	if c.Mark.Value > MaxMark {
		return Visit{}, fmt.Errorf("mark %d out of range", c.Mark.Value)
	}
	return Visit{
		ID:        c.ID.Value,
		Location:  c.Location.Value,
		User:      c.User.Value,
		VisitedAt: c.VisitedAt.Value,
		Mark:      c.Mark.Value,
	}, nil
}
