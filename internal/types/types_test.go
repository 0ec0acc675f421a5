package types

import (
	"testing"
	"time"
)

func TestFiletimeRoundTrip(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 30, 45, 123456700, time.UTC)
	ft := FiletimeFrom(now)
	got := ft.Time()
	if !got.Equal(now) {
		t.Errorf("round trip mismatch: got %v, want %v", got, now)
	}
}

func TestFiletimeZero(t *testing.T) {
	if !Filetime(0).Time().IsZero() {
		t.Error("zero Filetime should convert to zero time")
	}
	if FiletimeFrom(time.Time{}) != 0 {
		t.Error("zero time should convert to zero Filetime")
	}
}

func TestFiletimeEpoch(t *testing.T) {
	// The Unix epoch expressed as FILETIME ticks.
	ft := Filetime(116444736000000000)
	want := time.Unix(0, 0).UTC()
	if !ft.Time().Equal(want) {
		t.Errorf("epoch conversion: got %v, want %v", ft.Time(), want)
	}
}

func TestExtensionOf(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"main.rs", "rs"},
		{"Cargo.TOML", "toml"},
		{"archive.tar.gz", "gz"},
		{"README", ""},
		{".gitignore", ""},
		{"trailing.", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ExtensionOf(tt.name); got != tt.want {
			t.Errorf("ExtensionOf(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestExtensionHashCaseInsensitive(t *testing.T) {
	if ExtensionHash("a.RS") != ExtensionHash("b.rs") {
		t.Error("extension hash should be case-insensitive")
	}
	if ExtensionHash("README") != 0 {
		t.Error("name without extension should hash to 0")
	}
}

func TestRawRecordConversion(t *testing.T) {
	raw := RawRecord{
		ID:       42,
		ParentID: 5,
		Name:     "notes.txt",
		Flags:    FlagHidden,
		Size:     1024,
		MTime:    FiletimeFrom(time.Now()),
	}
	rec := raw.Record()
	if rec.ID != 42 || rec.ParentID != 5 || rec.Name != "notes.txt" {
		t.Errorf("unexpected record fields: %+v", rec)
	}
	if rec.ExtHash != HashExtension("txt") {
		t.Error("extension hash not computed on conversion")
	}
}

func TestRecordFlags(t *testing.T) {
	f := FlagDirectory | FlagSystem
	if !f.IsDir() {
		t.Error("directory flag not detected")
	}
	if f.IsTombstone() || f.IsOrphan() {
		t.Error("unset flags reported as set")
	}
}
