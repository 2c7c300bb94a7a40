package handlers

import (
	"net/url"
	"strconv"

	"git.home.luguber.info/inful/travels/internal/foundation/errors"
	"git.home.luguber.info/inful/travels/internal/model"
	"git.home.luguber.info/inful/travels/internal/store"
)

// parseVisitFilter parses the query of GET /users/{id}/visits. Unknown
// parameters and malformed values are validation errors.
func parseVisitFilter(rawQuery string) (store.VisitFilter, error) {
	var f store.VisitFilter

	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return f, errors.ValidationError("malformed query").WithCause(err).Build()
	}

	for key := range values {
		v := values.Get(key)
		switch key {
		case "fromDate":
			ts, err := parseTimestamp(key, v)
			if err != nil {
				return f, err
			}
			f.FromDate = ts
		case "toDate":
			ts, err := parseTimestamp(key, v)
			if err != nil {
				return f, err
			}
			f.ToDate = ts
		case "country":
			country := v
			f.Country = &country
		case "toDistance":
			d, err := strconv.ParseUint(v, 10, 32)
			if err != nil {
				return f, badParam(key, v, err)
			}
			dist := uint32(d)
			f.ToDistance = &dist
		default:
			return f, badParam(key, v, nil)
		}
	}
	return f, nil
}

// parseAvgFilter parses the query of GET /locations/{id}/avg.
func parseAvgFilter(rawQuery string) (store.AvgFilter, error) {
	var f store.AvgFilter

	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return f, errors.ValidationError("malformed query").WithCause(err).Build()
	}

	for key := range values {
		v := values.Get(key)
		switch key {
		case "fromDate":
			ts, err := parseTimestamp(key, v)
			if err != nil {
				return f, err
			}
			f.FromDate = ts
		case "toDate":
			ts, err := parseTimestamp(key, v)
			if err != nil {
				return f, err
			}
			f.ToDate = ts
		case "fromAge":
			age, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return f, badParam(key, v, err)
			}
			f.FromAge = &age
		case "toAge":
			age, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return f, badParam(key, v, err)
			}
			f.ToAge = &age
		case "gender":
			g := model.Gender(v)
			if !g.Valid() {
				return f, badParam(key, v, nil)
			}
			f.Gender = &g
		default:
			return f, badParam(key, v, nil)
		}
	}
	return f, nil
}

func parseTimestamp(key, v string) (*model.Timestamp, error) {
	ts, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, badParam(key, v, err)
	}
	return &ts, nil
}

func badParam(key, value string, cause error) error {
	b := errors.ValidationError("invalid query parameter").
		WithContext("param", key).
		WithContext("value", value)
	if cause != nil {
		b = b.WithCause(cause)
	}
	return b.Build()
}
