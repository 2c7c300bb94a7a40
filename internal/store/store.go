// Package store holds the travels dataset in memory and answers all API
// queries. A single RWMutex guards the whole dataset: reads run
// concurrently, mutations are exclusive. Visits are indexed per user and
// per location, ordered by visit time, so range queries never scan the
// full visit table.
package store

import (
	"math"
	"sort"
	"sync"

	"git.home.luguber.info/inful/travels/internal/foundation/errors"
	"git.home.luguber.info/inful/travels/internal/model"
)

// secondsInYear converts ages to birth-date offsets (365.25 days).
const secondsInYear int64 = 31557600

// visitIndex keeps visits ordered by VisitedAt ascending.
type visitIndex []*model.Visit

// insert places v keeping the index ordered.
func (ix visitIndex) insert(v *model.Visit) visitIndex {
	i := sort.Search(len(ix), func(i int) bool { return ix[i].VisitedAt > v.VisitedAt })
	ix = append(ix, nil)
	copy(ix[i+1:], ix[i:])
	ix[i] = v
	return ix
}

// remove drops the entry for the given visit id located at timestamp at.
// The timestamp must be the value the visit was indexed under, which may
// differ from the visit's current field during an update.
func (ix visitIndex) remove(at model.Timestamp, id model.VisitID) visitIndex {
	i := sort.Search(len(ix), func(i int) bool { return ix[i].VisitedAt >= at })
	for ; i < len(ix) && ix[i].VisitedAt == at; i++ {
		if ix[i].ID == id {
			return append(ix[:i], ix[i+1:]...)
		}
	}
	return ix
}

// between returns the entries with at strictly inside (from, to).
func (ix visitIndex) between(from, to model.Timestamp) []*model.Visit {
	lo := sort.Search(len(ix), func(i int) bool { return ix[i].VisitedAt > from })
	hi := sort.Search(len(ix), func(i int) bool { return ix[i].VisitedAt >= to })
	if lo >= hi {
		return nil
	}
	return ix[lo:hi]
}

// Store is the in-memory travels database.
type Store struct {
	mu sync.RWMutex

	users     map[model.UserID]*model.User
	locations map[model.LocationID]*model.Location
	visits    map[model.VisitID]*model.Visit

	visitsByUser     map[model.UserID]visitIndex
	visitsByLocation map[model.LocationID]visitIndex

	// now is the reference time age filters are computed against. It is
	// fixed at load time (the dataset ships its own generation timestamp).
	now model.Timestamp
}

// New returns an empty store with the given reference time.
func New(now model.Timestamp) *Store {
	return &Store{
		users:            make(map[model.UserID]*model.User),
		locations:        make(map[model.LocationID]*model.Location),
		visits:           make(map[model.VisitID]*model.Visit),
		visitsByUser:     make(map[model.UserID]visitIndex),
		visitsByLocation: make(map[model.LocationID]visitIndex),
		now:              now,
	}
}

// ReferenceTime returns the timestamp age filters are computed against.
func (s *Store) ReferenceTime() model.Timestamp {
	return s.now
}

// Counts returns the entity totals for status reporting.
func (s *Store) Counts() (users, locations, visits int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users), len(s.locations), len(s.visits)
}

// User returns the user by id.
func (s *Store) User(id model.UserID) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return model.User{}, errors.NotFoundError("user not found").WithContext("id", id).Build()
	}
	return *u, nil
}

// Location returns the location by id.
func (s *Store) Location(id model.LocationID) (model.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.locations[id]
	if !ok {
		return model.Location{}, errors.NotFoundError("location not found").WithContext("id", id).Build()
	}
	return *l, nil
}

// Visit returns the visit by id.
func (s *Store) Visit(id model.VisitID) (model.Visit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.visits[id]
	if !ok {
		return model.Visit{}, errors.NotFoundError("visit not found").WithContext("id", id).Build()
	}
	return *v, nil
}

// CreateUser inserts a new user. Duplicate ids are rejected.
func (s *Store) CreateUser(u model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[u.ID]; exists {
		return errors.AlreadyExistsError("user already exists").WithContext("id", u.ID).Build()
	}
	s.users[u.ID] = &u
	return nil
}

// CreateLocation inserts a new location. Duplicate ids are rejected.
func (s *Store) CreateLocation(l model.Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.locations[l.ID]; exists {
		return errors.AlreadyExistsError("location already exists").WithContext("id", l.ID).Build()
	}
	s.locations[l.ID] = &l
	return nil
}

// CreateVisit inserts a new visit. The referenced user and location must
// exist, and the id must be unused.
func (s *Store) CreateVisit(v model.Visit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[v.User]; !ok {
		return errors.ValidationError("visit references unknown user").WithContext("user", v.User).Build()
	}
	if _, ok := s.locations[v.Location]; !ok {
		return errors.ValidationError("visit references unknown location").WithContext("location", v.Location).Build()
	}
	if _, exists := s.visits[v.ID]; exists {
		return errors.AlreadyExistsError("visit already exists").WithContext("id", v.ID).Build()
	}

	s.insertVisitLocked(&v)
	return nil
}

// insertVisitLocked stores the visit and updates both indexes. Callers hold mu.
func (s *Store) insertVisitLocked(v *model.Visit) {
	s.visits[v.ID] = v
	s.visitsByUser[v.User] = s.visitsByUser[v.User].insert(v)
	s.visitsByLocation[v.Location] = s.visitsByLocation[v.Location].insert(v)
}

// UpdateUser applies the present fields of upd to an existing user.
func (s *Store) UpdateUser(id model.UserID, upd model.UserUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return errors.NotFoundError("user not found").WithContext("id", id).Build()
	}

	if upd.Email.Set {
		u.Email = upd.Email.Value
	}
	if upd.FirstName.Set {
		u.FirstName = upd.FirstName.Value
	}
	if upd.LastName.Set {
		u.LastName = upd.LastName.Value
	}
	if upd.Gender.Set {
		u.Gender = upd.Gender.Value
	}
	if upd.BirthDate.Set {
		u.BirthDate = upd.BirthDate.Value
	}
	return nil
}

// UpdateLocation applies the present fields of upd to an existing location.
func (s *Store) UpdateLocation(id model.LocationID, upd model.LocationUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locations[id]
	if !ok {
		return errors.NotFoundError("location not found").WithContext("id", id).Build()
	}

	if upd.Place.Set {
		l.Place = upd.Place.Value
	}
	if upd.Country.Set {
		l.Country = upd.Country.Value
	}
	if upd.City.Set {
		l.City = upd.City.Value
	}
	if upd.Distance.Set {
		l.Distance = upd.Distance.Value
	}
	return nil
}

// UpdateVisit applies the present fields of upd to an existing visit.
// Changing location, user, or visited_at re-indexes the visit.
func (s *Store) UpdateVisit(id model.VisitID, upd model.VisitUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.visits[id]
	if !ok {
		return errors.NotFoundError("visit not found").WithContext("id", id).Build()
	}

	// Validate referents before touching anything.
	if upd.Location.Set {
		if _, ok := s.locations[upd.Location.Value]; !ok {
			return errors.ValidationError("visit references unknown location").
				WithContext("location", upd.Location.Value).Build()
		}
	}
	if upd.User.Set {
		if _, ok := s.users[upd.User.Value]; !ok {
			return errors.ValidationError("visit references unknown user").
				WithContext("user", upd.User.Value).Build()
		}
	}
	if upd.Mark.Set && upd.Mark.Value > model.MaxMark {
		return errors.ValidationError("mark out of range").WithContext("mark", upd.Mark.Value).Build()
	}

	reindex := upd.Location.Set || upd.User.Set || upd.VisitedAt.Set
	if reindex {
		// Remove under the old key before mutating.
		s.visitsByUser[v.User] = s.visitsByUser[v.User].remove(v.VisitedAt, v.ID)
		s.visitsByLocation[v.Location] = s.visitsByLocation[v.Location].remove(v.VisitedAt, v.ID)
	}

	if upd.Location.Set {
		v.Location = upd.Location.Value
	}
	if upd.User.Set {
		v.User = upd.User.Value
	}
	if upd.VisitedAt.Set {
		v.VisitedAt = upd.VisitedAt.Value
	}
	if upd.Mark.Set {
		v.Mark = upd.Mark.Value
	}

	if reindex {
		s.visitsByUser[v.User] = s.visitsByUser[v.User].insert(v)
		s.visitsByLocation[v.Location] = s.visitsByLocation[v.Location].insert(v)
	}
	return nil
}

// VisitFilter narrows a user's visit listing. Nil fields are not applied.
type VisitFilter struct {
	FromDate   *model.Timestamp
	ToDate     *model.Timestamp
	Country    *string
	ToDistance *uint32
}

// VisitItem is one row of a user's visit listing.
type VisitItem struct {
	Mark      uint8           `json:"mark"`
	VisitedAt model.Timestamp `json:"visited_at"`
	Place     string          `json:"place"`
}

// UserVisits lists a user's visits ordered by visit time, with visited_at
// strictly inside (fromDate, toDate). Country matches the location country
// exactly; toDistance keeps locations strictly closer than the bound.
func (s *Store) UserVisits(id model.UserID, f VisitFilter) ([]VisitItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.users[id]; !ok {
		return nil, errors.NotFoundError("user not found").WithContext("id", id).Build()
	}

	from := model.Timestamp(math.MinInt64)
	to := model.Timestamp(math.MaxInt64)
	if f.FromDate != nil {
		from = *f.FromDate
	}
	if f.ToDate != nil {
		to = *f.ToDate
	}
	if from >= to {
		return nil, nil
	}

	var items []VisitItem
	for _, v := range s.visitsByUser[id].between(from, to) {
		loc, ok := s.locations[v.Location]
		if !ok {
			return nil, errors.InternalError("visit index references missing location").
				WithContext("location", v.Location).Build()
		}
		if f.ToDistance != nil && loc.Distance >= *f.ToDistance {
			continue
		}
		if f.Country != nil && loc.Country != *f.Country {
			continue
		}
		items = append(items, VisitItem{Mark: v.Mark, VisitedAt: v.VisitedAt, Place: loc.Place})
	}
	return items, nil
}

// AvgFilter narrows the visit set an average rating is computed over.
type AvgFilter struct {
	FromDate *model.Timestamp
	ToDate   *model.Timestamp
	FromAge  *int64
	ToAge    *int64
	Gender   *model.Gender
}

// LocationAvg computes the average mark for a location, rounded to five
// decimal places, along with the number of qualifying visits. Age bounds
// are relative to the store's reference time and, like the date bounds,
// strictly exclusive.
func (s *Store) LocationAvg(id model.LocationID, f AvgFilter) (float64, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.locations[id]; !ok {
		return 0, 0, errors.NotFoundError("location not found").WithContext("id", id).Build()
	}

	from := model.Timestamp(math.MinInt64)
	to := model.Timestamp(math.MaxInt64)
	if f.FromDate != nil {
		from = *f.FromDate
	}
	if f.ToDate != nil {
		to = *f.ToDate
	}

	maxBirthDate := model.Timestamp(math.MaxInt64)
	minBirthDate := model.Timestamp(math.MinInt64)
	if f.FromAge != nil {
		maxBirthDate = s.now - secondsInYear**f.FromAge
	}
	if f.ToAge != nil {
		minBirthDate = s.now - secondsInYear**f.ToAge
	}

	if from >= to || minBirthDate >= maxBirthDate {
		return 0, 0, nil
	}

	needsUser := f.Gender != nil || f.FromAge != nil || f.ToAge != nil

	var sum, count int64
	for _, v := range s.visitsByLocation[id].between(from, to) {
		if needsUser {
			u, ok := s.users[v.User]
			if !ok {
				return 0, 0, errors.InternalError("visit index references missing user").
					WithContext("user", v.User).Build()
			}
			if f.Gender != nil && u.Gender != *f.Gender {
				continue
			}
			if u.BirthDate <= minBirthDate || u.BirthDate >= maxBirthDate {
				continue
			}
		}
		sum += int64(v.Mark)
		count++
	}

	if count == 0 {
		return 0, 0, nil
	}
	avg := float64(sum) / float64(count)
	return math.Round(avg*100000) / 100000, count, nil
}
