// File: internal/snapshot/codec.go
package snapshot

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	glerrors "github.com/glintsearch/glint/internal/errors"
	"github.com/glintsearch/glint/internal/index"
	"github.com/glintsearch/glint/internal/types"
)

// Magic identifies a Glint snapshot file.
const Magic = "GLNTIDX\x00"

// FormatVersion is the current on-disk format.
const FormatVersion uint32 = 1

// Header flag bits.
const (
	// FlagCompressed: the payload after the header is one compressed
	// frame.
	FlagCompressed uint32 = 1 << 0

	// FlagZstd selects zstd for the frame; clear means lz4.
	FlagZstd uint32 = 1 << 1
)

const headerSize = 16

// castagnoli is the CRC32C polynomial table used for the footer.
var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Options control snapshot encoding.
type Options struct {
	// Compress wraps the payload in a compression frame.
	Compress bool

	// Zstd selects zstd over lz4 when compressing.
	Zstd bool
}

// Encode serializes the index into the snapshot byte stream.
//
// Layout, little-endian: magic, format version, flags; then the payload
// (volumes with per-shard packed columns and name arenas, then the total
// record count); then a CRC32C footer over everything before it.
func Encode(ix *index.Index, opts Options) ([]byte, error) {
	payload, err := encodePayload(ix)
	if err != nil {
		return nil, err
	}

	var flags uint32
	if opts.Compress {
		flags |= FlagCompressed
		if opts.Zstd {
			flags |= FlagZstd
		}
		payload, err = compressFrame(payload, opts.Zstd)
		if err != nil {
			return nil, glerrors.Wrap(glerrors.KindIo, "snapshot.compress", err)
		}
	}

	out := bytes.NewBuffer(make([]byte, 0, headerSize+len(payload)+4))
	out.WriteString(Magic)
	binary.Write(out, binary.LittleEndian, FormatVersion)
	binary.Write(out, binary.LittleEndian, flags)
	out.Write(payload)

	crc := crc32.Checksum(out.Bytes(), castagnoli)
	binary.Write(out, binary.LittleEndian, crc)

	return out.Bytes(), nil
}

// encodePayload writes the uncompressed payload section.
func encodePayload(ix *index.Index) ([]byte, error) {
	volumes := ix.Volumes()
	shardCount := uint32(ix.ShardCount())

	// Group live records per volume then per shard, preserving shard
	// scan order.
	perVolume := make([][][]types.FileRecord, len(volumes))
	for i := range perVolume {
		perVolume[i] = make([][]types.FileRecord, shardCount)
	}
	var total uint64
	ix.ForEachRecord(func(vol int, rec types.FileRecord) {
		shard := uint32(uint64(rec.ID) % uint64(shardCount))
		perVolume[vol][shard] = append(perVolume[vol][shard], rec)
		total++
	})

	buf := &bytes.Buffer{}
	w := func(v any) { binary.Write(buf, binary.LittleEndian, v) }

	w(uint32(len(volumes)))
	for vi, vol := range volumes {
		w(vol.Info.Letter)
		label := []byte(vol.Info.Label)
		w(uint16(len(label)))
		buf.Write(label)
		w(vol.Info.Serial)
		w(vol.LastUSN)
		w(shardCount)

		for si := uint32(0); si < shardCount; si++ {
			recs := perVolume[vi][si]
			w(uint32(len(recs)))

			for _, r := range recs {
				w(uint64(r.ID))
			}
			for _, r := range recs {
				w(uint64(r.ParentID))
			}
			for _, r := range recs {
				w(uint16(r.Flags))
			}
			for _, r := range recs {
				w(r.Size)
			}
			for _, r := range recs {
				w(uint64(r.MTime))
			}
			for _, r := range recs {
				w(r.ExtHash)
			}

			var arena []byte
			for _, r := range recs {
				w(uint32(len(arena)))
				arena = append(arena, r.Name...)
			}
			w(uint32(len(arena)))
			buf.Write(arena)
		}
	}
	w(total)

	return buf.Bytes(), nil
}

// Decode rebuilds an index from snapshot bytes. Version and checksum
// mismatches come back as SnapshotIncompatible; structural damage inside
// a valid envelope comes back as Corrupt.
func Decode(data []byte) (*index.Index, error) {
	if len(data) < headerSize+4 {
		return nil, glerrors.New(glerrors.KindSnapshotIncompatible, "snapshot.decode",
			"file too small: %d bytes", len(data))
	}
	if string(data[0:8]) != Magic {
		return nil, glerrors.New(glerrors.KindSnapshotIncompatible, "snapshot.decode",
			"bad magic %q", data[0:8])
	}
	version := binary.LittleEndian.Uint32(data[8:12])
	if version != FormatVersion {
		return nil, glerrors.New(glerrors.KindSnapshotIncompatible, "snapshot.decode",
			"format version %d, want %d", version, FormatVersion)
	}
	flags := binary.LittleEndian.Uint32(data[12:16])

	body := data[:len(data)-4]
	stored := binary.LittleEndian.Uint32(data[len(data)-4:])
	if crc32.Checksum(body, castagnoli) != stored {
		return nil, glerrors.New(glerrors.KindSnapshotIncompatible, "snapshot.decode",
			"checksum mismatch")
	}

	payload := body[headerSize:]
	if flags&FlagCompressed != 0 {
		var err error
		payload, err = decompressFrame(payload, flags&FlagZstd != 0)
		if err != nil {
			return nil, glerrors.Wrap(glerrors.KindCorrupt, "snapshot.decompress", err)
		}
	}

	return decodePayload(payload)
}

type payloadReader struct {
	data []byte
	pos  int
}

func (r *payloadReader) need(n int) error {
	if r.pos+n > len(r.data) {
		return fmt.Errorf("truncated payload at offset %d (need %d bytes)", r.pos, n)
	}
	return nil
}

func (r *payloadReader) u8() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.data[r.pos]
	r.pos++
	return v, nil
}

func (r *payloadReader) u16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *payloadReader) u32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *payloadReader) u64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *payloadReader) bytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	v := r.data[r.pos : r.pos+n]
	r.pos += n
	return v, nil
}

func decodePayload(payload []byte) (*index.Index, error) {
	corrupt := func(err error) (*index.Index, error) {
		return nil, glerrors.Wrap(glerrors.KindCorrupt, "snapshot.decode", err)
	}
	r := &payloadReader{data: payload}

	volCount, err := r.u32()
	if err != nil {
		return corrupt(err)
	}
	if volCount > 1024 {
		return corrupt(fmt.Errorf("implausible volume count %d", volCount))
	}

	var ix *index.Index
	var total uint64

	for vi := uint32(0); vi < volCount; vi++ {
		letter, err := r.u8()
		if err != nil {
			return corrupt(err)
		}
		labelLen, err := r.u16()
		if err != nil {
			return corrupt(err)
		}
		label, err := r.bytes(int(labelLen))
		if err != nil {
			return corrupt(err)
		}
		serial, err := r.u64()
		if err != nil {
			return corrupt(err)
		}
		lastUSN, err := r.u64()
		if err != nil {
			return corrupt(err)
		}
		shardCount, err := r.u32()
		if err != nil {
			return corrupt(err)
		}
		if shardCount == 0 || shardCount > 4096 {
			return corrupt(fmt.Errorf("implausible shard count %d", shardCount))
		}

		if ix == nil {
			ix = index.New(int(shardCount))
		}
		vol := ix.AddVolume(types.VolumeInfo{
			Letter:     letter,
			Mount:      string(letter) + `:\`,
			Label:      string(label),
			Serial:     serial,
			Filesystem: "NTFS",
		})
		ix.SetLastUSN(vol, lastUSN)

		for si := uint32(0); si < shardCount; si++ {
			recs, err := decodeShard(r)
			if err != nil {
				return corrupt(err)
			}
			total += uint64(len(recs))
			ix.InsertBatch(vol, recs)
		}
	}

	declared, err := r.u64()
	if err != nil {
		return corrupt(err)
	}
	if declared != total {
		return corrupt(fmt.Errorf("record count %d does not match payload %d", declared, total))
	}
	if r.pos != len(r.data) {
		return corrupt(fmt.Errorf("%d trailing bytes after payload", len(r.data)-r.pos))
	}

	if ix == nil {
		ix = index.New(0)
	}
	return ix, nil
}

func decodeShard(r *payloadReader) ([]types.FileRecord, error) {
	count, err := r.u32()
	if err != nil {
		return nil, err
	}
	if uint64(count) > uint64(len(r.data)) {
		return nil, fmt.Errorf("implausible record count %d", count)
	}
	n := int(count)

	recs := make([]types.FileRecord, n)
	for i := 0; i < n; i++ {
		v, err := r.u64()
		if err != nil {
			return nil, err
		}
		recs[i].ID = types.FileID(v)
	}
	for i := 0; i < n; i++ {
		v, err := r.u64()
		if err != nil {
			return nil, err
		}
		recs[i].ParentID = types.FileID(v)
	}
	for i := 0; i < n; i++ {
		v, err := r.u16()
		if err != nil {
			return nil, err
		}
		recs[i].Flags = types.RecordFlags(v)
	}
	for i := 0; i < n; i++ {
		if recs[i].Size, err = r.u64(); err != nil {
			return nil, err
		}
	}
	for i := 0; i < n; i++ {
		v, err := r.u64()
		if err != nil {
			return nil, err
		}
		recs[i].MTime = types.Filetime(v)
	}
	for i := 0; i < n; i++ {
		if recs[i].ExtHash, err = r.u64(); err != nil {
			return nil, err
		}
	}

	offsets := make([]uint32, n+1)
	for i := 0; i <= n; i++ {
		if offsets[i], err = r.u32(); err != nil {
			return nil, err
		}
	}
	arena, err := r.bytes(int(offsets[n]))
	if err != nil {
		return nil, err
	}

	nameCounts := make(map[types.FileID]uint16)
	for i := 0; i < n; i++ {
		if offsets[i] > offsets[i+1] || int(offsets[i+1]) > len(arena) {
			return nil, fmt.Errorf("name offsets out of order at record %d", i)
		}
		recs[i].Name = string(arena[offsets[i]:offsets[i+1]])
		// Hardlink names renumber densely per id in shard order.
		recs[i].NameIndex = nameCounts[recs[i].ID]
		nameCounts[recs[i].ID]++
	}
	return recs, nil
}

// compressFrame wraps data in one lz4 or zstd frame.
func compressFrame(data []byte, useZstd bool) ([]byte, error) {
	var out bytes.Buffer
	if useZstd {
		enc, err := zstd.NewWriter(&out)
		if err != nil {
			return nil, err
		}
		if _, err := enc.Write(data); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return out.Bytes(), nil
	}
	w := lz4.NewWriter(&out)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func decompressFrame(data []byte, useZstd bool) ([]byte, error) {
	if useZstd {
		dec, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return io.ReadAll(dec)
	}
	return io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
}
