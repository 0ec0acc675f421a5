//go:build !windows

// File: internal/backends/ntfs/platform_other.go
package ntfs

import (
	"context"

	"github.com/rs/zerolog"

	glerrors "github.com/glintsearch/glint/internal/errors"
	"github.com/glintsearch/glint/internal/interfaces"
	"github.com/glintsearch/glint/internal/types"
)

// listNtfsVolumes: live volume enumeration needs the Windows volume API.
func listNtfsVolumes() ([]types.VolumeInfo, error) {
	return nil, glerrors.New(glerrors.KindUnsupported, "ntfs.volumes",
		"live NTFS volumes are only available on windows")
}

// openRawVolume: raw device access needs the Windows device namespace.
func openRawVolume(letter byte) (interfaces.VolumeDevice, error) {
	return nil, glerrors.New(glerrors.KindUnsupported, "ntfs.open",
		"raw volume access is only available on windows")
}

// openJournalWatch: the USN journal needs DeviceIoControl.
func openJournalWatch(ctx context.Context, vol types.VolumeInfo, sinceUSN uint64, log zerolog.Logger) (interfaces.WatchHandle, error) {
	return nil, glerrors.New(glerrors.KindUnsupported, "ntfs.watch",
		"the USN journal is only available on windows")
}
