package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	fieldID    = "id"
	fieldBegin = "begin"
	fieldName  = "name"
)

// ErrMalformedOutage is returned when an outage record lacks a usable id or begin.
var ErrMalformedOutage = errors.New("malformed outage record")

// Outage is a single outage record from the outages API.
//
// ID and Begin are decoded from the record; every field, including unknown
// ones, is kept as raw JSON and written back unchanged by MarshalJSON.
type Outage struct {
	ID    string
	Begin time.Time

	fields map[string]json.RawMessage
}

// Field returns the raw JSON value of a field and whether it was present.
func (o Outage) Field(key string) (json.RawMessage, bool) {
	v, ok := o.fields[key]
	return v, ok
}

// UnmarshalJSON decodes an outage object, requiring a string id and an
// RFC 3339 begin instant.
func (o *Outage) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return fmt.Errorf("%w: null record", ErrMalformedOutage)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("decode outage: %w", err)
	}

	id, err := stringField(fields, fieldID)
	if err != nil {
		return err
	}
	beginStr, err := stringField(fields, fieldBegin)
	if err != nil {
		return fmt.Errorf("outage %s: %w", id, err)
	}
	begin, err := time.Parse(time.RFC3339Nano, beginStr)
	if err != nil {
		return fmt.Errorf("%w: outage %s: parse begin %q: %v", ErrMalformedOutage, id, beginStr, err)
	}

	*o = Outage{ID: id, Begin: begin, fields: fields}
	return nil
}

// MarshalJSON writes the record's original fields.
func (o Outage) MarshalJSON() ([]byte, error) {
	rec, err := o.record()
	if err != nil {
		return nil, err
	}
	return json.Marshal(rec)
}

// record returns a copy of the raw fields, filling id and begin for
// outages that were built in code rather than decoded.
func (o Outage) record() (map[string]json.RawMessage, error) {
	rec := make(map[string]json.RawMessage, len(o.fields)+1)
	for k, v := range o.fields {
		rec[k] = v
	}
	if _, ok := rec[fieldID]; !ok {
		v, err := json.Marshal(o.ID)
		if err != nil {
			return nil, err
		}
		rec[fieldID] = v
	}
	if _, ok := rec[fieldBegin]; !ok && !o.Begin.IsZero() {
		v, err := json.Marshal(o.Begin.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return nil, err
		}
		rec[fieldBegin] = v
	}
	return rec, nil
}

// EnrichedOutage is an outage joined to its device. It marshals as the
// outage's fields plus "name".
type EnrichedOutage struct {
	Outage
	Name string
}

// MarshalJSON writes the outage fields with "name" set to the device name,
// replacing any name the outage already carried.
func (e EnrichedOutage) MarshalJSON() ([]byte, error) {
	rec, err := e.Outage.record()
	if err != nil {
		return nil, err
	}
	name, err := json.Marshal(e.Name)
	if err != nil {
		return nil, err
	}
	rec[fieldName] = name
	return json.Marshal(rec)
}

// UnmarshalJSON decodes an enriched outage, which must carry a string name.
func (e *EnrichedOutage) UnmarshalJSON(data []byte) error {
	var o Outage
	if err := o.UnmarshalJSON(data); err != nil {
		return err
	}
	name, err := stringField(o.fields, fieldName)
	if err != nil {
		return fmt.Errorf("outage %s: %w", o.ID, err)
	}
	*e = EnrichedOutage{Outage: o, Name: name}
	return nil
}

func stringField(fields map[string]json.RawMessage, key string) (string, error) {
	raw, ok := fields[key]
	if !ok || bytes.Equal(raw, []byte("null")) {
		return "", fmt.Errorf("%w: missing %q", ErrMalformedOutage, key)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%w: field %q is not a string", ErrMalformedOutage, key)
	}
	return s, nil
}
