package dbtypes

import (
	"encoding/json"
	"testing"
)

func TestJSONBlobValueWritesString(t *testing.T) {
	blob := JSONBlob(`{"name":"ada"}`)
	value, err := blob.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	str, ok := value.(string)
	if !ok {
		t.Fatalf("expected string driver value, got %T", value)
	}
	if str != `{"name":"ada"}` {
		t.Fatalf("unexpected value %q", str)
	}
}

func TestJSONBlobValueRejectsInvalidJSON(t *testing.T) {
	if _, err := JSONBlob(`{"broken"`).Value(); err == nil {
		t.Fatal("expected invalid json to be rejected")
	}
}

func TestJSONBlobNilValue(t *testing.T) {
	var blob JSONBlob
	value, err := blob.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if value != nil {
		t.Fatalf("expected nil value, got %v", value)
	}
}

func TestJSONBlobScan(t *testing.T) {
	var blob JSONBlob
	if err := blob.Scan([]byte(`{"a":1}`)); err != nil {
		t.Fatalf("scan bytes: %v", err)
	}
	if string(blob) != `{"a":1}` {
		t.Fatalf("unexpected blob %s", blob)
	}
	if err := blob.Scan(`[1,2]`); err != nil {
		t.Fatalf("scan string: %v", err)
	}
	if string(blob) != `[1,2]` {
		t.Fatalf("unexpected blob %s", blob)
	}
	if err := blob.Scan(nil); err != nil {
		t.Fatalf("scan nil: %v", err)
	}
	if !blob.IsZero() {
		t.Fatalf("expected nil blob after scanning NULL")
	}
	if err := blob.Scan(42); err == nil {
		t.Fatal("expected unsupported type error")
	}
}

func TestJSONBlobEmbedsAsRawJSON(t *testing.T) {
	payload := struct {
		Context JSONBlob `json:"context"`
	}{Context: JSONBlob(`{"order":7}`)}

	out, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"context":{"order":7}}` {
		t.Fatalf("unexpected json %s", out)
	}
}

func TestJSONBlobOrEmptyObject(t *testing.T) {
	if got := JSONBlob(nil).OrEmptyObject(); string(got) != `{}` {
		t.Fatalf("expected empty object, got %s", got)
	}
	if got := JSONBlob(`{"x":true}`).OrEmptyObject(); string(got) != `{"x":true}` {
		t.Fatalf("expected payload preserved, got %s", got)
	}
}
