// File: internal/parsers/mft/run_list_reader.go
package mft

import "fmt"

// Run is one extent of a non-resident attribute. A sparse run has
// Sparse set and no on-disk clusters.
type Run struct {
	// LCN is the starting logical cluster number; meaningless for sparse
	// runs.
	LCN int64

	// Clusters is the run length in clusters.
	Clusters uint64

	// Sparse marks a hole with no backing clusters.
	Sparse bool
}

// DecodeRunList decodes an NTFS data-run list. Each run starts with a
// header byte whose low nibble is the length-field size and whose high
// nibble is the offset-field size; offsets are signed deltas from the
// previous run's LCN. A zero offset size denotes a sparse run.
func DecodeRunList(data []byte) ([]Run, error) {
	var runs []Run
	var lcn int64
	pos := 0

	for pos < len(data) {
		header := data[pos]
		if header == 0 {
			break
		}
		pos++

		lenSize := int(header & 0x0F)
		offSize := int(header >> 4)
		if lenSize == 0 || lenSize > 8 || offSize > 8 {
			return nil, fmt.Errorf("invalid run header 0x%02X at offset %d", header, pos-1)
		}
		if pos+lenSize+offSize > len(data) {
			return nil, fmt.Errorf("truncated run at offset %d", pos-1)
		}

		length := readUintLE(data[pos : pos+lenSize])
		pos += lenSize

		if length == 0 {
			return nil, fmt.Errorf("zero-length run at offset %d", pos-1-lenSize)
		}

		if offSize == 0 {
			runs = append(runs, Run{Clusters: length, Sparse: true})
			continue
		}

		delta := readIntLE(data[pos : pos+offSize])
		pos += offSize

		lcn += delta
		if lcn < 0 {
			return nil, fmt.Errorf("negative LCN %d in run list", lcn)
		}
		runs = append(runs, Run{LCN: lcn, Clusters: length})
	}

	return runs, nil
}

// readUintLE reads an unsigned little-endian integer of 1..8 bytes.
func readUintLE(b []byte) uint64 {
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// readIntLE reads a signed little-endian integer of 1..8 bytes.
func readIntLE(b []byte) int64 {
	v := readUintLE(b)
	shift := uint(64 - 8*len(b))
	return int64(v<<shift) >> shift
}
