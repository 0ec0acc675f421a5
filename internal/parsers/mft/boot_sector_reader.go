// File: internal/parsers/mft/boot_sector_reader.go
package mft

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// BootSectorSize is the size of the NTFS boot sector in bytes.
const BootSectorSize = 512

var ntfsOemID = []byte("NTFS    ")

// BootSector decodes the NTFS boot sector: cluster geometry and the
// location of $MFT.
type BootSector struct {
	bytesPerSector    uint16
	sectorsPerCluster uint8
	totalSectors      uint64
	mftLCN            uint64
	mftMirrorLCN      uint64
	fileRecordSize    uint32
	serial            uint64
}

// NewBootSectorReader parses a 512-byte NTFS boot sector. It validates the
// OEM identifier, the 0x55AA end marker, and the cluster geometry.
func NewBootSectorReader(data []byte) (*BootSector, error) {
	if len(data) < BootSectorSize {
		return nil, fmt.Errorf("data too small for boot sector: %d bytes", len(data))
	}
	if !bytes.Equal(data[3:11], ntfsOemID) {
		return nil, fmt.Errorf("not an NTFS boot sector: OEM id %q", data[3:11])
	}
	if data[510] != 0x55 || data[511] != 0xAA {
		return nil, fmt.Errorf("invalid boot sector end marker: %02X%02X", data[510], data[511])
	}

	r := &BootSector{
		bytesPerSector:    binary.LittleEndian.Uint16(data[11:13]),
		sectorsPerCluster: data[13],
		totalSectors:      binary.LittleEndian.Uint64(data[40:48]),
		mftLCN:            binary.LittleEndian.Uint64(data[48:56]),
		mftMirrorLCN:      binary.LittleEndian.Uint64(data[56:64]),
		serial:            binary.LittleEndian.Uint64(data[72:80]),
	}

	if r.bytesPerSector == 0 || r.bytesPerSector%256 != 0 {
		return nil, fmt.Errorf("implausible bytes per sector: %d", r.bytesPerSector)
	}
	if r.sectorsPerCluster == 0 {
		return nil, fmt.Errorf("zero sectors per cluster")
	}

	// Clusters-per-file-record is signed: a negative value v means the
	// record size is 2^(-v) bytes rather than a cluster multiple.
	cpfr := int8(data[64])
	if cpfr > 0 {
		r.fileRecordSize = uint32(cpfr) * r.clusterSize()
	} else {
		r.fileRecordSize = 1 << uint(-cpfr)
	}
	if r.fileRecordSize == 0 || r.fileRecordSize > 64*1024 {
		return nil, fmt.Errorf("implausible file record size: %d", r.fileRecordSize)
	}

	return r, nil
}

func (r *BootSector) clusterSize() uint32 {
	return uint32(r.bytesPerSector) * uint32(r.sectorsPerCluster)
}

// BytesPerSector returns the sector size in bytes.
func (r *BootSector) BytesPerSector() uint16 { return r.bytesPerSector }

// ClusterSize returns the allocation unit size in bytes.
func (r *BootSector) ClusterSize() uint32 { return r.clusterSize() }

// TotalSectors returns the volume length in sectors.
func (r *BootSector) TotalSectors() uint64 { return r.totalSectors }

// MftLCN returns the logical cluster number where $MFT starts.
func (r *BootSector) MftLCN() uint64 { return r.mftLCN }

// MftMirrorLCN returns the logical cluster number of the $MFT mirror.
func (r *BootSector) MftMirrorLCN() uint64 { return r.mftMirrorLCN }

// FileRecordSize returns the size of one FILE record in bytes (1024 on
// all common volumes).
func (r *BootSector) FileRecordSize() uint32 { return r.fileRecordSize }

// Serial returns the volume serial number.
func (r *BootSector) Serial() uint64 { return r.serial }
