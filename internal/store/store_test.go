package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/travels/internal/foundation/errors"
	"git.home.luguber.info/inful/travels/internal/model"
)

const testNow model.Timestamp = 1500000000

func ts(v int64) *model.Timestamp { return &v }

func seeded(t *testing.T) *Store {
	t.Helper()
	s := New(testNow)

	require.NoError(t, s.CreateUser(model.User{
		ID: 1, Email: "ann@example.com", FirstName: "Ann", LastName: "Lee",
		Gender: model.GenderFemale, BirthDate: testNow - 30*secondsInYear,
	}))
	require.NoError(t, s.CreateUser(model.User{
		ID: 2, Email: "bob@example.com", FirstName: "Bob", LastName: "Ray",
		Gender: model.GenderMale, BirthDate: testNow - 50*secondsInYear,
	}))
	require.NoError(t, s.CreateLocation(model.Location{
		ID: 10, Place: "Old Bridge", Country: "Latvia", City: "Riga", Distance: 5,
	}))
	require.NoError(t, s.CreateLocation(model.Location{
		ID: 11, Place: "Sand Dunes", Country: "Estonia", City: "Tartu", Distance: 50,
	}))

	require.NoError(t, s.CreateVisit(model.Visit{ID: 100, Location: 10, User: 1, VisitedAt: 1000, Mark: 3}))
	require.NoError(t, s.CreateVisit(model.Visit{ID: 101, Location: 11, User: 1, VisitedAt: 2000, Mark: 5}))
	require.NoError(t, s.CreateVisit(model.Visit{ID: 102, Location: 10, User: 2, VisitedAt: 1500, Mark: 4}))
	return s
}

func TestEntityLookup(t *testing.T) {
	s := seeded(t)

	u, err := s.User(1)
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", u.Email)

	_, err = s.User(99)
	assert.True(t, errors.HasCategory(err, errors.CategoryNotFound))

	_, err = s.Location(99)
	assert.True(t, errors.HasCategory(err, errors.CategoryNotFound))

	v, err := s.Visit(100)
	require.NoError(t, err)
	assert.Equal(t, uint8(3), v.Mark)
}

func TestCreateDuplicateRejected(t *testing.T) {
	s := seeded(t)

	err := s.CreateUser(model.User{ID: 1, Email: "dup@example.com", Gender: model.GenderMale})
	assert.True(t, errors.HasCategory(err, errors.CategoryAlreadyExists))

	err = s.CreateVisit(model.Visit{ID: 100, Location: 10, User: 1, VisitedAt: 0, Mark: 0})
	assert.True(t, errors.HasCategory(err, errors.CategoryAlreadyExists))
}

func TestCreateVisitValidatesReferents(t *testing.T) {
	s := seeded(t)

	err := s.CreateVisit(model.Visit{ID: 200, Location: 10, User: 99, VisitedAt: 0, Mark: 1})
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))

	err = s.CreateVisit(model.Visit{ID: 200, Location: 99, User: 1, VisitedAt: 0, Mark: 1})
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))
}

func TestUpdateUserPartial(t *testing.T) {
	s := seeded(t)

	require.NoError(t, s.UpdateUser(1, model.UserUpdate{
		Email: model.Some("new@example.com"),
	}))

	u, err := s.User(1)
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", u.Email)
	assert.Equal(t, "Ann", u.FirstName) // untouched

	err = s.UpdateUser(99, model.UserUpdate{})
	assert.True(t, errors.HasCategory(err, errors.CategoryNotFound))
}

func TestUserVisitsOrderingAndBounds(t *testing.T) {
	s := seeded(t)

	items, err := s.UserVisits(1, VisitFilter{})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, model.Timestamp(1000), items[0].VisitedAt)
	assert.Equal(t, model.Timestamp(2000), items[1].VisitedAt)
	assert.Equal(t, "Old Bridge", items[0].Place)

	// Bounds are strictly exclusive.
	items, err = s.UserVisits(1, VisitFilter{FromDate: ts(1000)})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, model.Timestamp(2000), items[0].VisitedAt)

	items, err = s.UserVisits(1, VisitFilter{ToDate: ts(2000)})
	require.NoError(t, err)
	require.Len(t, items, 1)

	// Degenerate range yields nothing.
	items, err = s.UserVisits(1, VisitFilter{FromDate: ts(2000), ToDate: ts(1000)})
	require.NoError(t, err)
	assert.Empty(t, items)

	_, err = s.UserVisits(99, VisitFilter{})
	assert.True(t, errors.HasCategory(err, errors.CategoryNotFound))
}

func TestUserVisitsCountryAndDistance(t *testing.T) {
	s := seeded(t)

	country := "Latvia"
	items, err := s.UserVisits(1, VisitFilter{Country: &country})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Old Bridge", items[0].Place)

	// toDistance is strictly-less-than.
	dist := uint32(50)
	items, err = s.UserVisits(1, VisitFilter{ToDistance: &dist})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Old Bridge", items[0].Place)

	dist = 5
	items, err = s.UserVisits(1, VisitFilter{ToDistance: &dist})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestLocationAvg(t *testing.T) {
	s := seeded(t)

	// Visits 100 (mark 3) and 102 (mark 4) hit location 10: avg 3.5.
	avg, count, err := s.LocationAvg(10, AvgFilter{})
	require.NoError(t, err)
	assert.InDelta(t, 3.5, avg, 1e-9)
	assert.EqualValues(t, 2, count)

	// Rounded to 5 decimal places.
	require.NoError(t, s.CreateVisit(model.Visit{ID: 103, Location: 10, User: 1, VisitedAt: 3000, Mark: 1}))
	avg, count, err = s.LocationAvg(10, AvgFilter{})
	require.NoError(t, err)
	assert.InDelta(t, 2.66667, avg, 1e-9)
	assert.EqualValues(t, 3, count)

	_, _, err = s.LocationAvg(99, AvgFilter{})
	assert.True(t, errors.HasCategory(err, errors.CategoryNotFound))
}

func TestLocationAvgFilters(t *testing.T) {
	s := seeded(t)

	g := model.GenderFemale
	avg, _, err := s.LocationAvg(10, AvgFilter{Gender: &g})
	require.NoError(t, err)
	assert.InDelta(t, 3.0, avg, 1e-9) // only Ann's visit

	// Ann is 30, Bob is 50. fromAge=40 keeps only users older than 40.
	fromAge := int64(40)
	avg, _, err = s.LocationAvg(10, AvgFilter{FromAge: &fromAge})
	require.NoError(t, err)
	assert.InDelta(t, 4.0, avg, 1e-9)

	// toAge=40 keeps only users younger than 40.
	toAge := int64(40)
	avg, _, err = s.LocationAvg(10, AvgFilter{ToAge: &toAge})
	require.NoError(t, err)
	assert.InDelta(t, 3.0, avg, 1e-9)

	// Empty result yields a zero count.
	toAge = int64(1)
	avg, count, err := s.LocationAvg(10, AvgFilter{ToAge: &toAge})
	require.NoError(t, err)
	assert.Zero(t, avg)
	assert.Zero(t, count)

	// Degenerate date range short-circuits to zero.
	avg, count, err = s.LocationAvg(10, AvgFilter{FromDate: ts(100), ToDate: ts(100)})
	require.NoError(t, err)
	assert.Zero(t, avg)
	assert.Zero(t, count)
}

func TestUpdateVisitReindexes(t *testing.T) {
	s := seeded(t)

	// Move visit 100 from location 10 to 11 and shift its time.
	require.NoError(t, s.UpdateVisit(100, model.VisitUpdate{
		Location:  model.Some(model.LocationID(11)),
		VisitedAt: model.Some(model.Timestamp(2500)),
	}))

	// Location 10 now only has Bob's visit.
	avg, _, err := s.LocationAvg(10, AvgFilter{})
	require.NoError(t, err)
	assert.InDelta(t, 4.0, avg, 1e-9)

	// Ann's listing is re-ordered and re-homed.
	items, err := s.UserVisits(1, VisitFilter{})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, model.Timestamp(2000), items[0].VisitedAt)
	assert.Equal(t, model.Timestamp(2500), items[1].VisitedAt)
	assert.Equal(t, "Sand Dunes", items[1].Place)
}

func TestUpdateVisitMoveUser(t *testing.T) {
	s := seeded(t)

	require.NoError(t, s.UpdateVisit(100, model.VisitUpdate{
		User: model.Some(model.UserID(2)),
	}))

	items, err := s.UserVisits(1, VisitFilter{})
	require.NoError(t, err)
	assert.Len(t, items, 1)

	items, err = s.UserVisits(2, VisitFilter{})
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestUpdateVisitValidation(t *testing.T) {
	s := seeded(t)

	err := s.UpdateVisit(100, model.VisitUpdate{User: model.Some(model.UserID(99))})
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))

	err = s.UpdateVisit(100, model.VisitUpdate{Location: model.Some(model.LocationID(99))})
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))

	err = s.UpdateVisit(100, model.VisitUpdate{Mark: model.Some(uint8(6))})
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))

	err = s.UpdateVisit(999, model.VisitUpdate{})
	assert.True(t, errors.HasCategory(err, errors.CategoryNotFound))

	// Failed validation must not have disturbed the indexes.
	items, err := s.UserVisits(1, VisitFilter{})
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestCounts(t *testing.T) {
	s := seeded(t)
	users, locations, visits := s.Counts()
	assert.Equal(t, 2, users)
	assert.Equal(t, 2, locations)
	assert.Equal(t, 3, visits)
}
