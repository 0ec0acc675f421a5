// File: internal/parsers/usn/usn_record_reader.go
package usn

import (
	"encoding/binary"
	"fmt"
	"unicode/utf16"

	"github.com/glintsearch/glint/internal/interfaces"
	"github.com/glintsearch/glint/internal/types"
)

// Fixed header sizes for the two journal record versions. Version 3
// carries 128-bit file references; only the low 64 bits are retained.
const (
	recordV2HeaderSize = 60
	recordV3HeaderSize = 76
)

// DecodeBuffer parses one FSCTL_READ_USN_JOURNAL output buffer: a leading
// 8-byte next-USN cursor followed by variable-length records. Unknown
// record versions are skipped. Returns the decoded events and the next
// USN to read from.
func DecodeBuffer(buf []byte) ([]interfaces.ChangeEvent, uint64, error) {
	if len(buf) < 8 {
		return nil, 0, fmt.Errorf("buffer too small for USN cursor: %d bytes", len(buf))
	}
	nextUSN := binary.LittleEndian.Uint64(buf[0:8])

	var events []interfaces.ChangeEvent
	offset := 8
	for offset+8 <= len(buf) {
		recordLen := int(binary.LittleEndian.Uint32(buf[offset : offset+4]))
		if recordLen == 0 {
			break
		}
		if recordLen < 8 || offset+recordLen > len(buf) {
			return nil, 0, fmt.Errorf("invalid record length %d at offset %d", recordLen, offset)
		}
		record := buf[offset : offset+recordLen]
		major := binary.LittleEndian.Uint16(record[4:6])

		var ev *interfaces.ChangeEvent
		var err error
		switch major {
		case 2:
			ev, err = decodeV2(record)
		case 3:
			ev, err = decodeV3(record)
		default:
			// Newer versions are skipped, not fatal.
		}
		if err != nil {
			return nil, 0, fmt.Errorf("decoding v%d record at offset %d: %w", major, offset, err)
		}
		if ev != nil {
			events = append(events, *ev)
		}
		offset += recordLen
	}

	return events, nextUSN, nil
}

func decodeV2(record []byte) (*interfaces.ChangeEvent, error) {
	if len(record) < recordV2HeaderSize {
		return nil, fmt.Errorf("record too small: %d bytes", len(record))
	}
	ev := &interfaces.ChangeEvent{
		ID:       types.FileID(binary.LittleEndian.Uint64(record[8:16]) & types.FileRefIndexMask),
		ParentID: types.FileID(binary.LittleEndian.Uint64(record[16:24]) & types.FileRefIndexMask),
		USN:      binary.LittleEndian.Uint64(record[24:32]),
		Time:     types.Filetime(binary.LittleEndian.Uint64(record[32:40])),
		Reason:   binary.LittleEndian.Uint32(record[40:44]),
	}
	attrs := binary.LittleEndian.Uint32(record[52:56])
	ev.IsDir = attrs&0x10 != 0

	name, err := decodeName(record,
		int(binary.LittleEndian.Uint16(record[58:60])),
		int(binary.LittleEndian.Uint16(record[56:58])))
	if err != nil {
		return nil, err
	}
	ev.Name = name
	return ev, nil
}

func decodeV3(record []byte) (*interfaces.ChangeEvent, error) {
	if len(record) < recordV3HeaderSize {
		return nil, fmt.Errorf("record too small: %d bytes", len(record))
	}
	// FILE_ID_128: the low 64 bits are the MFT reference.
	ev := &interfaces.ChangeEvent{
		ID:       types.FileID(binary.LittleEndian.Uint64(record[8:16]) & types.FileRefIndexMask),
		ParentID: types.FileID(binary.LittleEndian.Uint64(record[24:32]) & types.FileRefIndexMask),
		USN:      binary.LittleEndian.Uint64(record[40:48]),
		Time:     types.Filetime(binary.LittleEndian.Uint64(record[48:56])),
		Reason:   binary.LittleEndian.Uint32(record[56:60]),
	}
	attrs := binary.LittleEndian.Uint32(record[68:72])
	ev.IsDir = attrs&0x10 != 0

	name, err := decodeName(record,
		int(binary.LittleEndian.Uint16(record[74:76])),
		int(binary.LittleEndian.Uint16(record[72:74])))
	if err != nil {
		return nil, err
	}
	ev.Name = name
	return ev, nil
}

func decodeName(record []byte, nameOff, nameLen int) (string, error) {
	if nameLen == 0 {
		return "", nil
	}
	if nameLen%2 != 0 || nameOff+nameLen > len(record) {
		return "", fmt.Errorf("name out of range: offset %d length %d", nameOff, nameLen)
	}
	units := make([]uint16, nameLen/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(record[nameOff+i*2 : nameOff+i*2+2])
	}
	return string(utf16.Decode(units)), nil
}
