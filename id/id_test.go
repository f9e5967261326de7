package id_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/xraph/herald/id"
)

func TestNewPrefixes(t *testing.T) {
	cases := map[string]id.ID{
		"wh_":     id.NewSubscriptionID(),
		"whrec_":  id.NewRecordID(),
		"evtype_": id.NewEventTypeID(),
	}
	for prefix, got := range cases {
		if !strings.HasPrefix(got.String(), prefix) {
			t.Errorf("expected prefix %q, got %q", prefix, got.String())
		}
	}
}

func TestParseWithPrefixMismatch(t *testing.T) {
	rec := id.NewRecordID()
	if _, err := id.ParseSubscriptionID(rec.String()); err == nil {
		t.Fatal("expected prefix mismatch error")
	}
	parsed, err := id.ParseRecordID(rec.String())
	if err != nil {
		t.Fatal(err)
	}
	if parsed != rec {
		t.Fatalf("round trip mismatch: %v != %v", parsed, rec)
	}
}

func TestNilID(t *testing.T) {
	if !id.Nil.IsNil() {
		t.Fatal("Nil should report IsNil")
	}
	if id.Nil.String() != "" {
		t.Fatalf("Nil string should be empty, got %q", id.Nil.String())
	}
	v, err := id.Nil.Value()
	if err != nil || v != nil {
		t.Fatalf("Nil value should be NULL, got %v, %v", v, err)
	}
}

func TestJSONEmbedding(t *testing.T) {
	type wrapper struct {
		ID id.ID `json:"id"`
	}
	in := wrapper{ID: id.NewSubscriptionID()}
	raw, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	var out wrapper
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatal(err)
	}
	if out.ID != in.ID {
		t.Fatalf("got %v, want %v", out.ID, in.ID)
	}
}

func TestScan(t *testing.T) {
	want := id.NewSubscriptionID()
	var got id.ID
	if err := got.Scan(want.String()); err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if err := got.Scan(42); err == nil {
		t.Fatal("expected error scanning int")
	}
}
