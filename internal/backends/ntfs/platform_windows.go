//go:build windows

// File: internal/backends/ntfs/platform_windows.go
package ntfs

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"
	"unsafe"

	"github.com/rs/zerolog"
	"golang.org/x/sys/windows"

	"github.com/glintsearch/glint/internal/device"
	glerrors "github.com/glintsearch/glint/internal/errors"
	"github.com/glintsearch/glint/internal/interfaces"
	usnparser "github.com/glintsearch/glint/internal/parsers/usn"
	"github.com/glintsearch/glint/internal/types"
)

// NTFS ioctl codes not exported by x/sys.
const (
	fsctlQueryUsnJournal = 0x000900f4
	fsctlReadUsnJournal  = 0x000900bb
)

// Win32 error codes signalling journal loss.
const (
	errJournalDeleteInProgress = 1178
	errJournalNotActive        = 1179
	errJournalEntryDeleted     = 1181
)

// eventChannelSize bounds the per-volume delivery channel; overflow drops
// the batch and reports JournalLost so the index stays correct.
const eventChannelSize = 65536

const pollInterval = 500 * time.Millisecond

// listNtfsVolumes enumerates mounted NTFS drives.
func listNtfsVolumes() ([]types.VolumeInfo, error) {
	mask, err := windows.GetLogicalDrives()
	if err != nil {
		return nil, glerrors.Wrap(glerrors.KindIo, "ntfs.volumes", err)
	}

	var volumes []types.VolumeInfo
	for i := 0; i < 26; i++ {
		if mask&(1<<uint(i)) == 0 {
			continue
		}
		letter := byte('A' + i)
		root := string(letter) + `:\`
		rootPtr, err := windows.UTF16PtrFromString(root)
		if err != nil {
			continue
		}

		var labelBuf, fsBuf [windows.MAX_PATH + 1]uint16
		var serial, maxComponent, fsFlags uint32
		err = windows.GetVolumeInformation(rootPtr,
			&labelBuf[0], uint32(len(labelBuf)),
			&serial, &maxComponent, &fsFlags,
			&fsBuf[0], uint32(len(fsBuf)))
		if err != nil {
			continue
		}
		if windows.UTF16ToString(fsBuf[:]) != "NTFS" {
			continue
		}

		var free, total, totalFree uint64
		_ = windows.GetDiskFreeSpaceEx(rootPtr, &free, &total, &totalFree)

		volumes = append(volumes, types.VolumeInfo{
			Letter:          letter,
			Mount:           root,
			Label:           windows.UTF16ToString(labelBuf[:]),
			Serial:          uint64(serial),
			TotalBytes:      total,
			Filesystem:      "NTFS",
			SupportsJournal: true,
		})
	}
	return volumes, nil
}

// openRawVolume opens the raw device, mapping access denial to the
// PermissionDenied kind so the orchestrator can downgrade.
func openRawVolume(letter byte) (interfaces.VolumeDevice, error) {
	dev, err := device.OpenRawVolume(letter)
	if err != nil {
		if isAccessDenied(err) {
			return nil, glerrors.Wrap(glerrors.KindPermissionDenied, "ntfs.open", err)
		}
		return nil, glerrors.Wrap(glerrors.KindIo, "ntfs.open", err)
	}
	return dev, nil
}

func isAccessDenied(err error) bool {
	var errno windows.Errno
	for err != nil {
		if e, ok := err.(windows.Errno); ok {
			errno = e
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return errno == windows.ERROR_ACCESS_DENIED
}

// journalData mirrors USN_JOURNAL_DATA_V0.
type journalData struct {
	journalID       uint64
	firstUSN        uint64
	nextUSN         uint64
	lowestValidUSN  uint64
	maxUSN          uint64
	maximumSize     uint64
	allocationDelta uint64
}

func queryJournal(handle windows.Handle) (*journalData, error) {
	buf := make([]byte, 56)
	var returned uint32
	err := windows.DeviceIoControl(handle, fsctlQueryUsnJournal,
		nil, 0, &buf[0], uint32(len(buf)), &returned, nil)
	if err != nil {
		if errno, ok := err.(windows.Errno); ok {
			switch uint32(errno) {
			case errJournalNotActive, errJournalDeleteInProgress:
				return nil, glerrors.Wrap(glerrors.KindUnsupported, "usn.query", err)
			case uint32(windows.ERROR_ACCESS_DENIED):
				return nil, glerrors.Wrap(glerrors.KindPermissionDenied, "usn.query", err)
			}
		}
		return nil, glerrors.Wrap(glerrors.KindIo, "usn.query", err)
	}
	return &journalData{
		journalID:       binary.LittleEndian.Uint64(buf[0:8]),
		firstUSN:        binary.LittleEndian.Uint64(buf[8:16]),
		nextUSN:         binary.LittleEndian.Uint64(buf[16:24]),
		lowestValidUSN:  binary.LittleEndian.Uint64(buf[24:32]),
		maxUSN:          binary.LittleEndian.Uint64(buf[32:40]),
		maximumSize:     binary.LittleEndian.Uint64(buf[40:48]),
		allocationDelta: binary.LittleEndian.Uint64(buf[48:56]),
	}, nil
}

// readJournalInput mirrors READ_USN_JOURNAL_DATA_V0.
type readJournalInput struct {
	startUSN          uint64
	reasonMask        uint32
	returnOnlyOnClose uint32
	timeout           uint64
	bytesToWaitFor    uint64
	journalID         uint64
}

func readJournal(handle windows.Handle, journalID, startUSN uint64, buf []byte) (uint32, error) {
	in := readJournalInput{
		startUSN: startUSN,
		reasonMask: interfaces.ReasonFileCreate | interfaces.ReasonFileDelete |
			interfaces.ReasonRenameOldName | interfaces.ReasonRenameNewName |
			interfaces.ReasonDataOverwrite | interfaces.ReasonDataExtend |
			interfaces.ReasonDataTruncation | interfaces.ReasonBasicInfo |
			interfaces.ReasonClose,
		journalID: journalID,
	}
	var returned uint32
	err := windows.DeviceIoControl(handle, fsctlReadUsnJournal,
		(*byte)(unsafe.Pointer(&in)), uint32(unsafe.Sizeof(in)),
		&buf[0], uint32(len(buf)), &returned, nil)
	if err != nil {
		if errno, ok := err.(windows.Errno); ok && uint32(errno) == errJournalEntryDeleted {
			return 0, glerrors.New(glerrors.KindJournalLost, "usn.read",
				"USN %d no longer in journal", startUSN)
		}
		return 0, glerrors.Wrap(glerrors.KindIo, "usn.read", err)
	}
	return returned, nil
}

// journalWatch streams change events from one volume's USN journal.
type journalWatch struct {
	events chan interfaces.ChangeEvent
	errVal error
	done   chan struct{}
	cancel context.CancelFunc
}

func (w *journalWatch) Events() <-chan interfaces.ChangeEvent { return w.events }

func (w *journalWatch) Err() error {
	select {
	case <-w.done:
		return w.errVal
	default:
		return nil
	}
}

func (w *journalWatch) Close() error {
	w.cancel()
	<-w.done
	return nil
}

// openJournalWatch validates the journal position and starts the poll
// loop. sinceUSN 0 means the current tail; a position older than the
// journal's first valid USN reports JournalLost immediately.
func openJournalWatch(ctx context.Context, vol types.VolumeInfo, sinceUSN uint64, log zerolog.Logger) (interfaces.WatchHandle, error) {
	raw, err := device.OpenRawVolume(vol.Letter)
	if err != nil {
		if isAccessDenied(err) {
			return nil, glerrors.Wrap(glerrors.KindPermissionDenied, "usn.watch", err)
		}
		return nil, glerrors.Wrap(glerrors.KindIo, "usn.watch", err)
	}

	jd, err := queryJournal(raw.Handle())
	if err != nil {
		raw.Close()
		return nil, err
	}

	start := sinceUSN
	if start == 0 {
		start = jd.nextUSN
	} else if start < jd.firstUSN {
		raw.Close()
		return nil, glerrors.New(glerrors.KindJournalLost, "usn.watch",
			"requested USN %d before journal start %d", sinceUSN, jd.firstUSN)
	}

	wctx, cancel := context.WithCancel(ctx)
	w := &journalWatch{
		events: make(chan interfaces.ChangeEvent, eventChannelSize),
		done:   make(chan struct{}),
		cancel: cancel,
	}

	go func() {
		defer close(w.done)
		defer close(w.events)
		defer raw.Close()
		w.errVal = watchLoop(wctx, raw.Handle(), jd.journalID, start, w.events, vol, log)
	}()

	return w, nil
}

func watchLoop(ctx context.Context, handle windows.Handle, journalID, start uint64,
	out chan<- interfaces.ChangeEvent, vol types.VolumeInfo, log zerolog.Logger) error {

	buf := make([]byte, 64*1024)
	cursor := start
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		returned, err := readJournal(handle, journalID, cursor, buf)
		if err != nil {
			if glerrors.IsKind(err, glerrors.KindJournalLost) {
				return err
			}
			log.Warn().Err(err).Str("volume", vol.Mount).Msg("transient journal read failure")
			continue
		}
		if returned < 8 {
			continue
		}

		events, next, err := usnparser.DecodeBuffer(buf[:returned])
		if err != nil {
			return glerrors.Wrap(glerrors.KindCorrupt, "usn.decode",
				fmt.Errorf("volume %s: %w", vol.Mount, err))
		}
		cursor = next

		for _, ev := range events {
			select {
			case out <- ev:
			default:
				// Consumer fell behind: drop the batch and force a
				// rescan rather than applying a gapped stream.
				return glerrors.New(glerrors.KindJournalLost, "usn.watch",
					"event channel overflow on %s", vol.Mount)
			}
		}
	}
}
