package dbtypes

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONBlob is an opaque JSON document stored in a jsonb (Postgres) or TEXT
// (SQLite) column. It is written as a string so it survives the simple query
// protocol, which would otherwise encode []byte as bytea.
type JSONBlob []byte

// EmptyObject is the value stored when a caller omits a payload.
var EmptyObject = JSONBlob(`{}`)

func (j *JSONBlob) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*j = nil
		return nil
	case string:
		*j = JSONBlob(v)
		return nil
	case []byte:
		*j = JSONBlob(bytes.Clone(v))
		return nil
	default:
		return fmt.Errorf("JSONBlob: unsupported Scan type %T", src)
	}
}

func (j JSONBlob) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	if !json.Valid(j) {
		return nil, fmt.Errorf("JSONBlob: invalid json document")
	}
	return string(j), nil
}

func (j JSONBlob) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

func (j *JSONBlob) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*j = nil
		return nil
	}
	*j = JSONBlob(bytes.Clone(data))
	return nil
}

// IsZero reports whether the blob carries no document.
func (j JSONBlob) IsZero() bool {
	return len(j) == 0
}

// OrEmptyObject substitutes an empty object for a missing document.
func (j JSONBlob) OrEmptyObject() JSONBlob {
	if len(bytes.TrimSpace(j)) == 0 {
		return bytes.Clone(EmptyObject)
	}
	return j
}
