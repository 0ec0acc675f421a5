package mft

import (
	"encoding/binary"
	"unicode/utf16"

	"github.com/glintsearch/glint/internal/types"
)

// Test image geometry: 512-byte sectors, 8 sectors per cluster, 1024-byte
// FILE records, $MFT at LCN 2.
const (
	testSectorSize  = 512
	testClusterSize = 4096
	testRecordSize  = 1024
	testMftLCN      = 2
	testSerial      = 0xC0FFEE42D15EA5E5
)

// buildBootSector produces a valid NTFS boot sector for the test geometry.
func buildBootSector() []byte {
	b := make([]byte, BootSectorSize)
	copy(b[3:11], "NTFS    ")
	binary.LittleEndian.PutUint16(b[11:13], testSectorSize)
	b[13] = testClusterSize / testSectorSize
	binary.LittleEndian.PutUint64(b[40:48], 1<<20) // total sectors
	binary.LittleEndian.PutUint64(b[48:56], testMftLCN)
	binary.LittleEndian.PutUint64(b[56:64], 10) // mirror, unused
	b[64] = 0xF6                                // -10: record size 2^10 = 1024
	binary.LittleEndian.PutUint64(b[72:80], testSerial)
	b[510], b[511] = 0x55, 0xAA
	return b
}

type testName struct {
	name      string
	parent    types.FileID
	namespace uint8
}

type testRecord struct {
	inUse     bool
	isDir     bool
	base      types.FileID
	names     []testName
	stdFlags  uint32
	mtime     types.Filetime
	dataSize  uint64 // resident unnamed $DATA of this many zero bytes
	dataRuns  []byte // raw run list; makes $DATA non-resident
	allocSize uint64 // allocated size for non-resident data
	realSize  uint64 // real size for non-resident data
	attrList  []byte // raw $ATTRIBUTE_LIST content
	baad      bool
	breakFixup bool
}

func putResidentAttr(buf []byte, off int, attrType uint32, content []byte) int {
	length := align8(24 + len(content))
	binary.LittleEndian.PutUint32(buf[off:], attrType)
	binary.LittleEndian.PutUint32(buf[off+4:], uint32(length))
	buf[off+8] = 0  // resident
	buf[off+9] = 0  // unnamed
	binary.LittleEndian.PutUint16(buf[off+10:], 24)
	binary.LittleEndian.PutUint32(buf[off+16:], uint32(len(content)))
	binary.LittleEndian.PutUint16(buf[off+20:], 24)
	copy(buf[off+24:], content)
	return off + length
}

func putNonResidentData(buf []byte, off int, runs []byte, allocSize, realSize uint64) int {
	length := align8(64 + len(runs))
	binary.LittleEndian.PutUint32(buf[off:], AttrData)
	binary.LittleEndian.PutUint32(buf[off+4:], uint32(length))
	buf[off+8] = 1 // non-resident
	buf[off+9] = 0 // unnamed
	binary.LittleEndian.PutUint16(buf[off+10:], 64)
	binary.LittleEndian.PutUint16(buf[off+32:], 64) // run offset
	binary.LittleEndian.PutUint64(buf[off+40:], allocSize)
	binary.LittleEndian.PutUint64(buf[off+48:], realSize)
	copy(buf[off+64:], runs)
	return off + length
}

func stdInfoContent(flags uint32, mtime types.Filetime) []byte {
	c := make([]byte, 48)
	binary.LittleEndian.PutUint64(c[8:], uint64(mtime))
	binary.LittleEndian.PutUint32(c[32:], flags)
	return c
}

func fileNameContent(n testName) []byte {
	units := utf16.Encode([]rune(n.name))
	c := make([]byte, 66+len(units)*2)
	binary.LittleEndian.PutUint64(c[0:], uint64(n.parent))
	c[64] = byte(len(units))
	c[65] = n.namespace
	for i, u := range units {
		binary.LittleEndian.PutUint16(c[66+i*2:], u)
	}
	return c
}

func align8(n int) int { return (n + 7) &^ 7 }

// buildFileRecord assembles one 1024-byte FILE record with a correct
// fixup array (unless breakFixup is set).
func buildFileRecord(rec testRecord) []byte {
	buf := make([]byte, testRecordSize)
	if rec.baad {
		copy(buf[0:4], "BAAD")
	} else {
		copy(buf[0:4], "FILE")
	}
	usaOff, usaCount := 48, 3
	binary.LittleEndian.PutUint16(buf[4:6], uint16(usaOff))
	binary.LittleEndian.PutUint16(buf[6:8], uint16(usaCount))

	var flags uint16
	if rec.inUse {
		flags |= recordFlagInUse
	}
	if rec.isDir {
		flags |= recordFlagDirectory
	}
	binary.LittleEndian.PutUint16(buf[22:24], flags)
	binary.LittleEndian.PutUint64(buf[32:40], uint64(rec.base))

	attrOff := 56
	binary.LittleEndian.PutUint16(buf[20:22], uint16(attrOff))

	off := attrOff
	off = putResidentAttr(buf, off, AttrStandardInformation, stdInfoContent(rec.stdFlags, rec.mtime))
	if rec.attrList != nil {
		off = putResidentAttr(buf, off, AttrAttributeList, rec.attrList)
	}
	for _, n := range rec.names {
		off = putResidentAttr(buf, off, AttrFileName, fileNameContent(n))
	}
	if rec.dataRuns != nil {
		off = putNonResidentData(buf, off, rec.dataRuns, rec.allocSize, rec.realSize)
	} else if !rec.isDir {
		off = putResidentAttr(buf, off, AttrData, make([]byte, rec.dataSize))
	}
	binary.LittleEndian.PutUint32(buf[off:], AttrEnd)
	binary.LittleEndian.PutUint32(buf[off+4:], 16)
	used := off + 16
	binary.LittleEndian.PutUint32(buf[24:28], uint32(used))
	binary.LittleEndian.PutUint32(buf[28:32], testRecordSize)

	// Fixup: stash each sector tail in the USA and stamp the tag.
	const tag = 0x0042
	binary.LittleEndian.PutUint16(buf[usaOff:], tag)
	for i := 1; i < usaCount; i++ {
		end := i * testSectorSize
		copy(buf[usaOff+i*2:usaOff+i*2+2], buf[end-2:end])
		binary.LittleEndian.PutUint16(buf[end-2:end], tag)
	}
	if rec.breakFixup {
		binary.LittleEndian.PutUint16(buf[testSectorSize-2:testSectorSize], tag+1)
	}
	return buf
}

// attrListContent builds a resident $ATTRIBUTE_LIST value with one entry
// per (type, extension record) pair.
func attrListContent(entries []AttributeListEntry) []byte {
	var out []byte
	for _, e := range entries {
		entry := make([]byte, 32)
		binary.LittleEndian.PutUint32(entry[0:], e.Type)
		binary.LittleEndian.PutUint16(entry[4:], 32)
		binary.LittleEndian.PutUint64(entry[16:], uint64(e.RecordID))
		out = append(out, entry...)
	}
	return out
}

// memDevice is an in-memory VolumeDevice over a byte image.
type memDevice struct {
	data []byte
}

func (d *memDevice) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(d.data)) {
		return 0, errOutOfRange
	}
	n := copy(p, d.data[off:])
	if n < len(p) {
		return n, errOutOfRange
	}
	return n, nil
}

func (d *memDevice) Size() int64  { return int64(len(d.data)) }
func (d *memDevice) Close() error { return nil }

var errOutOfRange = &rangeError{}

type rangeError struct{}

func (*rangeError) Error() string { return "read beyond device" }

// buildImage lays out a minimal NTFS image: boot sector, then the MFT at
// LCN 2 holding the given records. Record 0 is synthesized as $MFT itself
// with a non-resident $DATA covering the table.
func buildImage(records []testRecord) *memDevice {
	n := len(records) + 1 // plus record 0
	mftBytes := n * testRecordSize
	mftClusters := (mftBytes + testClusterSize - 1) / testClusterSize

	// Run list: one run of mftClusters at LCN 2 (header 0x11 would limit
	// to one byte each; both values fit).
	runs := []byte{0x11, byte(mftClusters), testMftLCN, 0x00}

	record0 := buildFileRecord(testRecord{
		inUse: true,
		names: []testName{{name: "$MFT", parent: types.RootDirectoryID, namespace: NamespaceWin32}},
		dataRuns:  runs,
		allocSize: uint64(mftClusters * testClusterSize),
		realSize:  uint64(mftBytes),
	})

	imageSize := testMftLCN*testClusterSize + mftClusters*testClusterSize
	img := make([]byte, imageSize)
	copy(img, buildBootSector())
	mftStart := testMftLCN * testClusterSize
	copy(img[mftStart:], record0)
	for i, rec := range records {
		copy(img[mftStart+(i+1)*testRecordSize:], buildFileRecord(rec))
	}
	return &memDevice{data: img}
}
