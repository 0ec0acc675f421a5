package usn

import (
	"encoding/binary"
	"testing"
	"unicode/utf16"

	"github.com/glintsearch/glint/internal/interfaces"
)

// buildV2Record assembles one USN_RECORD_V2 with the given fields.
func buildV2Record(fileRef, parentRef, usn uint64, reason, attrs uint32, name string) []byte {
	units := utf16.Encode([]rune(name))
	nameLen := len(units) * 2
	total := (recordV2HeaderSize + nameLen + 7) &^ 7

	b := make([]byte, total)
	binary.LittleEndian.PutUint32(b[0:], uint32(total))
	binary.LittleEndian.PutUint16(b[4:], 2) // major
	binary.LittleEndian.PutUint64(b[8:], fileRef)
	binary.LittleEndian.PutUint64(b[16:], parentRef)
	binary.LittleEndian.PutUint64(b[24:], usn)
	binary.LittleEndian.PutUint64(b[32:], 131000000000000000) // timestamp
	binary.LittleEndian.PutUint32(b[40:], reason)
	binary.LittleEndian.PutUint32(b[52:], attrs)
	binary.LittleEndian.PutUint16(b[56:], uint16(nameLen))
	binary.LittleEndian.PutUint16(b[58:], recordV2HeaderSize)
	for i, u := range units {
		binary.LittleEndian.PutUint16(b[recordV2HeaderSize+i*2:], u)
	}
	return b
}

func buildV3Record(fileRef, parentRef, usn uint64, reason uint32, name string) []byte {
	units := utf16.Encode([]rune(name))
	nameLen := len(units) * 2
	total := (recordV3HeaderSize + nameLen + 7) &^ 7

	b := make([]byte, total)
	binary.LittleEndian.PutUint32(b[0:], uint32(total))
	binary.LittleEndian.PutUint16(b[4:], 3)
	binary.LittleEndian.PutUint64(b[8:], fileRef) // low half of FILE_ID_128
	binary.LittleEndian.PutUint64(b[24:], parentRef)
	binary.LittleEndian.PutUint64(b[40:], usn)
	binary.LittleEndian.PutUint32(b[56:], reason)
	binary.LittleEndian.PutUint16(b[72:], uint16(nameLen))
	binary.LittleEndian.PutUint16(b[74:], recordV3HeaderSize)
	for i, u := range units {
		binary.LittleEndian.PutUint16(b[recordV3HeaderSize+i*2:], u)
	}
	return b
}

func buildBuffer(nextUSN uint64, records ...[]byte) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, nextUSN)
	for _, r := range records {
		buf = append(buf, r...)
	}
	return buf
}

func TestDecodeBufferV2(t *testing.T) {
	rec := buildV2Record(42|0x5<<48, 5, 1000, interfaces.ReasonFileCreate|interfaces.ReasonClose, 0, "new.txt")
	events, next, err := DecodeBuffer(buildBuffer(2000, rec))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next != 2000 {
		t.Errorf("next USN = %d", next)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.ID != 42 {
		t.Errorf("id = %d: sequence bits not masked", ev.ID)
	}
	if ev.ParentID != 5 || ev.USN != 1000 || ev.Name != "new.txt" {
		t.Errorf("event = %+v", ev)
	}
	if ev.Reason&interfaces.ReasonFileCreate == 0 {
		t.Error("reason bits lost")
	}
	if ev.IsDir {
		t.Error("file flagged as directory")
	}
}

func TestDecodeBufferV2Directory(t *testing.T) {
	rec := buildV2Record(7, 5, 1, interfaces.ReasonFileCreate, 0x10, "folder")
	events, _, err := DecodeBuffer(buildBuffer(2, rec))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !events[0].IsDir {
		t.Error("directory attribute not decoded")
	}
}

func TestDecodeBufferV3(t *testing.T) {
	rec := buildV3Record(99, 5, 500, interfaces.ReasonFileDelete|interfaces.ReasonClose, "bye.log")
	events, next, err := DecodeBuffer(buildBuffer(600, rec))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next != 600 || len(events) != 1 {
		t.Fatalf("next=%d events=%d", next, len(events))
	}
	if events[0].ID != 99 || events[0].Name != "bye.log" {
		t.Errorf("event = %+v", events[0])
	}
}

func TestDecodeBufferMultipleRecords(t *testing.T) {
	buf := buildBuffer(10,
		buildV2Record(1, 5, 1, interfaces.ReasonFileCreate, 0, "a.txt"),
		buildV2Record(2, 5, 2, interfaces.ReasonFileDelete, 0, "b.txt"),
		buildV3Record(3, 5, 3, interfaces.ReasonRenameNewName, "c.txt"),
	)
	events, _, err := DecodeBuffer(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[2].Name != "c.txt" {
		t.Errorf("events = %+v", events)
	}
}

func TestDecodeBufferUnknownVersionSkipped(t *testing.T) {
	unknown := make([]byte, 24)
	binary.LittleEndian.PutUint32(unknown[0:], 24)
	binary.LittleEndian.PutUint16(unknown[4:], 9)
	buf := buildBuffer(10, unknown, buildV2Record(1, 5, 1, interfaces.ReasonClose, 0, "x"))
	events, _, err := DecodeBuffer(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 || events[0].Name != "x" {
		t.Errorf("events = %+v", events)
	}
}

func TestDecodeBufferCursorOnly(t *testing.T) {
	events, next, err := DecodeBuffer(buildBuffer(777))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 0 || next != 777 {
		t.Errorf("events=%d next=%d", len(events), next)
	}
}

func TestDecodeBufferTruncatedRecord(t *testing.T) {
	rec := buildV2Record(1, 5, 1, interfaces.ReasonClose, 0, "truncated.txt")
	binary.LittleEndian.PutUint32(rec[0:], uint32(len(rec)+100))
	if _, _, err := DecodeBuffer(buildBuffer(1, rec)); err == nil {
		t.Fatal("expected error for record length past buffer end")
	}
}

func TestDecodeBufferTooSmall(t *testing.T) {
	if _, _, err := DecodeBuffer([]byte{1, 2}); err == nil {
		t.Fatal("expected error for short buffer")
	}
}
