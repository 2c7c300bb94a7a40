package store

import (
	"archive/zip"
	"bufio"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"git.home.luguber.info/inful/travels/internal/foundation/errors"
	"git.home.luguber.info/inful/travels/internal/model"
)

// Load builds a store from a dataset zip archive. Entry names starting with
// "users", "locations", or "visits" hold JSON documents of the form
// {"users":[...]} etc.; everything else is ignored. Visits are loaded last
// so index insertion never sees a dangling referent warning.
func Load(dataFile string, now model.Timestamp) (*Store, error) {
	archive, err := zip.OpenReader(dataFile)
	if err != nil {
		return nil, errors.DataError("could not open dataset archive").
			WithCause(err).WithContext("path", dataFile).Build()
	}
	defer archive.Close()

	s := New(now)

	var visitEntries []*zip.File
	for _, entry := range archive.File {
		name := entry.Name
		switch {
		case strings.HasPrefix(name, "users"):
			if err := loadEntry(entry, s.ingestUsers); err != nil {
				return nil, err
			}
		case strings.HasPrefix(name, "locations"):
			if err := loadEntry(entry, s.ingestLocations); err != nil {
				return nil, err
			}
		case strings.HasPrefix(name, "visits"):
			visitEntries = append(visitEntries, entry)
		default:
			slog.Debug("Skipping unrecognized dataset entry", "name", name)
		}
	}
	for _, entry := range visitEntries {
		if err := loadEntry(entry, s.ingestVisits); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func loadEntry(entry *zip.File, ingest func([]byte) error) error {
	f, err := entry.Open()
	if err != nil {
		return errors.DataError("could not open dataset entry").
			WithCause(err).WithContext("name", entry.Name).Build()
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		return errors.DataError("could not read dataset entry").
			WithCause(err).WithContext("name", entry.Name).Build()
	}
	if err := ingest(raw); err != nil {
		return errors.DataError("could not decode dataset entry").
			WithCause(err).WithContext("name", entry.Name).Build()
	}
	return nil
}

func (s *Store) ingestUsers(raw []byte) error {
	var doc struct {
		Users []model.User `json:"users"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	for i := range doc.Users {
		u := doc.Users[i]
		s.users[u.ID] = &u
	}
	return nil
}

func (s *Store) ingestLocations(raw []byte) error {
	var doc struct {
		Locations []model.Location `json:"locations"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	for i := range doc.Locations {
		l := doc.Locations[i]
		s.locations[l.ID] = &l
	}
	return nil
}

func (s *Store) ingestVisits(raw []byte) error {
	var doc struct {
		Visits []model.Visit `json:"visits"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	for i := range doc.Visits {
		v := doc.Visits[i]
		s.insertVisitLocked(&v)
	}
	return nil
}

// ReadReferenceTime reads the dataset generation timestamp from the first
// line of the options file. Callers fall back to wall-clock time when it
// is unreadable.
func ReadReferenceTime(optionsFile string) (model.Timestamp, error) {
	f, err := os.Open(optionsFile)
	if err != nil {
		return 0, errors.DataError("could not open options file").
			WithCause(err).WithContext("path", optionsFile).Build()
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return 0, errors.DataError("could not read options file").
				WithCause(err).WithContext("path", optionsFile).Build()
		}
		return 0, errors.DataError("options file is empty").
			WithContext("path", optionsFile).Build()
	}

	ts, err := strconv.ParseInt(strings.TrimSpace(scanner.Text()), 10, 64)
	if err != nil {
		return 0, errors.DataError("options file does not start with a timestamp").
			WithCause(err).WithContext("path", optionsFile).Build()
	}
	return ts, nil
}
