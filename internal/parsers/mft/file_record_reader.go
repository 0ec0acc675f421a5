// File: internal/parsers/mft/file_record_reader.go
package mft

import (
	"encoding/binary"
	"fmt"
	"unicode/utf16"

	"github.com/glintsearch/glint/internal/types"
)

// Attribute type codes.
const (
	AttrStandardInformation uint32 = 0x10
	AttrAttributeList       uint32 = 0x20
	AttrFileName            uint32 = 0x30
	AttrData                uint32 = 0x80
	AttrEnd                 uint32 = 0xFFFFFFFF
)

// $FILE_NAME namespaces.
const (
	NamespacePosix       uint8 = 0
	NamespaceWin32       uint8 = 1
	NamespaceDos         uint8 = 2
	NamespaceWin32AndDos uint8 = 3
)

// FILE record header flags.
const (
	recordFlagInUse     uint16 = 0x0001
	recordFlagDirectory uint16 = 0x0002
)

// $STANDARD_INFORMATION DOS attribute flags.
const (
	dosAttrHidden  uint32 = 0x0002
	dosAttrSystem  uint32 = 0x0004
	dosAttrReparse uint32 = 0x0400
)

// FileName is one $FILE_NAME attribute value of a record.
type FileName struct {
	// Name is the decoded UTF-8 name.
	Name string

	// ParentID is the MFT index of the containing directory (sequence
	// bits already masked off).
	ParentID types.FileID

	// Namespace is the NTFS name namespace (POSIX, Win32, DOS).
	Namespace uint8
}

// AttributeListEntry references an attribute stored in an extension
// record.
type AttributeListEntry struct {
	// Type is the attribute type code held by the extension record.
	Type uint32

	// RecordID is the MFT index of the extension record.
	RecordID types.FileID
}

// ParsedRecord is the decoded form of one FILE record.
type ParsedRecord struct {
	// InUse mirrors FILE_RECORD_IN_USE; records without it are deleted
	// on disk and dropped.
	InUse bool

	// IsDir mirrors the directory bit of the record header.
	IsDir bool

	// BaseRecord is the MFT index of the base record for extension
	// records, or 0 when this record is itself a base record.
	BaseRecord types.FileID

	// Names holds every $FILE_NAME value, in attribute order.
	Names []FileName

	// StandardFlags carries the $STANDARD_INFORMATION DOS attribute bits.
	StandardFlags uint32

	// MTime is the modification time from $STANDARD_INFORMATION.
	MTime types.Filetime

	// DataSize is the unnamed $DATA size: the resident content length, or
	// the allocated size for non-resident data per the record policy.
	DataSize uint64

	// HasData reports whether an unnamed $DATA attribute was present.
	HasData bool

	// DataRuns is the unnamed $DATA run list for non-resident data. Only
	// populated for records the caller asks to map (the $MFT file itself).
	DataRuns []Run

	// AttributeList references extension records named by an
	// $ATTRIBUTE_LIST attribute.
	AttributeList []AttributeListEntry
}

// ErrTornRecord is returned when the fixup array does not match the
// sector tails: the record was torn mid-write and must be skipped.
type ErrTornRecord struct {
	Sector int
}

func (e *ErrTornRecord) Error() string {
	return fmt.Sprintf("fixup mismatch in sector %d: torn record", e.Sector)
}

// ErrSkippedRecord is returned for records that are structurally valid but
// carry the BAAD signature written by chkdsk.
var ErrSkippedRecord = fmt.Errorf("record marked BAAD")

// ErrEmptyRecord is returned for zeroed record slots: allocated but never
// written. These are normal in a live MFT and skipped silently.
var ErrEmptyRecord = fmt.Errorf("empty record slot")

// NewFileRecordReader decodes one FILE record in place. The buffer is
// modified by fixup application, so callers must pass a private copy.
// Returns ErrSkippedRecord for BAAD records and *ErrTornRecord on fixup
// mismatch; both are per-record conditions the scan counts and skips.
func NewFileRecordReader(data []byte, bytesPerSector uint16) (*ParsedRecord, error) {
	if len(data) < 48 {
		return nil, fmt.Errorf("data too small for FILE record: %d bytes", len(data))
	}

	switch string(data[0:4]) {
	case "FILE":
	case "BAAD":
		return nil, ErrSkippedRecord
	case "\x00\x00\x00\x00":
		return nil, ErrEmptyRecord
	default:
		return nil, fmt.Errorf("invalid record signature %q", data[0:4])
	}

	if err := applyFixup(data, bytesPerSector); err != nil {
		return nil, err
	}

	rec := &ParsedRecord{}

	flags := binary.LittleEndian.Uint16(data[22:24])
	rec.InUse = flags&recordFlagInUse != 0
	rec.IsDir = flags&recordFlagDirectory != 0
	rec.BaseRecord = types.FileID(binary.LittleEndian.Uint64(data[32:40]) & types.FileRefIndexMask)

	attrOff := int(binary.LittleEndian.Uint16(data[20:22]))
	usedSize := int(binary.LittleEndian.Uint32(data[24:28]))
	if usedSize > len(data) {
		usedSize = len(data)
	}
	if attrOff < 48 || attrOff >= usedSize {
		return nil, fmt.Errorf("attribute offset %d out of range", attrOff)
	}

	if err := rec.walkAttributes(data[:usedSize], attrOff); err != nil {
		return nil, err
	}

	return rec, nil
}

// applyFixup replaces each 512-byte sector's trailing two bytes with the
// stored values from the update sequence array, verifying the tag first.
func applyFixup(data []byte, bytesPerSector uint16) error {
	usaOff := int(binary.LittleEndian.Uint16(data[4:6]))
	usaCount := int(binary.LittleEndian.Uint16(data[6:8]))
	if usaCount < 1 || usaOff+usaCount*2 > len(data) {
		return fmt.Errorf("invalid update sequence array: offset %d count %d", usaOff, usaCount)
	}

	usn := binary.LittleEndian.Uint16(data[usaOff : usaOff+2])
	// The update sequence stride is 512 bytes whatever the sector size.
	const sector = 512
	for i := 1; i < usaCount; i++ {
		end := i * sector
		if end > len(data) {
			break
		}
		tail := data[end-2 : end]
		if binary.LittleEndian.Uint16(tail) != usn {
			return &ErrTornRecord{Sector: i - 1}
		}
		copy(tail, data[usaOff+i*2:usaOff+i*2+2])
	}
	return nil
}

// walkAttributes visits every attribute header until $END, extracting the
// fields the index needs.
func (rec *ParsedRecord) walkAttributes(data []byte, offset int) error {
	for offset+8 <= len(data) {
		attrType := binary.LittleEndian.Uint32(data[offset : offset+4])
		if attrType == AttrEnd {
			return nil
		}
		attrLen := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		if attrLen < 16 || offset+attrLen > len(data) {
			return fmt.Errorf("invalid attribute length %d at offset %d", attrLen, offset)
		}
		attr := data[offset : offset+attrLen]

		switch attrType {
		case AttrStandardInformation:
			rec.parseStandardInformation(attr)
		case AttrFileName:
			rec.parseFileName(attr)
		case AttrData:
			if err := rec.parseData(attr); err != nil {
				return err
			}
		case AttrAttributeList:
			rec.parseAttributeList(attr)
		}

		offset += attrLen
	}
	return fmt.Errorf("attribute walk ran past record end without $END")
}

// residentContent returns the value bytes of a resident attribute, or nil
// for non-resident or malformed attributes.
func residentContent(attr []byte) []byte {
	if len(attr) < 24 || attr[8] != 0 {
		return nil
	}
	contentLen := int(binary.LittleEndian.Uint32(attr[16:20]))
	contentOff := int(binary.LittleEndian.Uint16(attr[20:22]))
	if contentOff < 24 || contentOff+contentLen > len(attr) {
		return nil
	}
	return attr[contentOff : contentOff+contentLen]
}

func (rec *ParsedRecord) parseStandardInformation(attr []byte) {
	content := residentContent(attr)
	if len(content) < 36 {
		return
	}
	rec.MTime = types.Filetime(binary.LittleEndian.Uint64(content[8:16]))
	rec.StandardFlags = binary.LittleEndian.Uint32(content[32:36])
}

func (rec *ParsedRecord) parseFileName(attr []byte) {
	content := residentContent(attr)
	if len(content) < 66 {
		return
	}
	nameLen := int(content[64])
	if 66+nameLen*2 > len(content) {
		return
	}
	units := make([]uint16, nameLen)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(content[66+i*2 : 68+i*2])
	}
	rec.Names = append(rec.Names, FileName{
		Name:      string(utf16.Decode(units)),
		ParentID:  types.FileID(binary.LittleEndian.Uint64(content[0:8]) & types.FileRefIndexMask),
		Namespace: content[65],
	})
}

func (rec *ParsedRecord) parseData(attr []byte) error {
	// Only the unnamed stream contributes to the record size.
	if attr[9] != 0 {
		return nil
	}
	rec.HasData = true

	if attr[8] == 0 {
		content := residentContent(attr)
		rec.DataSize = uint64(len(content))
		return nil
	}

	// Non-resident: use the allocated size per the record policy.
	if len(attr) < 56 {
		return fmt.Errorf("non-resident data attribute too short: %d bytes", len(attr))
	}
	rec.DataSize = binary.LittleEndian.Uint64(attr[40:48])

	runOff := int(binary.LittleEndian.Uint16(attr[32:34]))
	if runOff >= 16 && runOff < len(attr) {
		runs, err := DecodeRunList(attr[runOff:])
		if err != nil {
			return fmt.Errorf("decoding data runs: %w", err)
		}
		rec.DataRuns = runs
	}
	return nil
}

// parseAttributeList records which extension records hold attributes for
// this base record. Non-resident attribute lists are rare; their entries
// are not followed and the record keeps whatever attributes are local.
func (rec *ParsedRecord) parseAttributeList(attr []byte) {
	content := residentContent(attr)
	pos := 0
	for pos+26 <= len(content) {
		entryType := binary.LittleEndian.Uint32(content[pos : pos+4])
		entryLen := int(binary.LittleEndian.Uint16(content[pos+4 : pos+6]))
		if entryLen < 26 || pos+entryLen > len(content) {
			return
		}
		ref := types.FileID(binary.LittleEndian.Uint64(content[pos+16:pos+24]) & types.FileRefIndexMask)
		rec.AttributeList = append(rec.AttributeList, AttributeListEntry{
			Type:     entryType,
			RecordID: ref,
		})
		pos += entryLen
	}
}

// BestNames selects the names to index: Win32 and POSIX namespaces, in
// attribute order. DOS-only short names are dropped; a Win32AndDos name
// counts as Win32.
func (rec *ParsedRecord) BestNames() []FileName {
	var out []FileName
	for _, n := range rec.Names {
		switch n.Namespace {
		case NamespaceWin32, NamespacePosix, NamespaceWin32AndDos:
			out = append(out, n)
		}
	}
	return out
}
