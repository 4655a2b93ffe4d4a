// Package spool implements the three-stage on-disk packet queue (spec §4.3):
// pending/ -> processing/ -> sent_buffer/, with every transition a same-
// filesystem atomic rename of a fully-written temp file. Adapted from the
// teacher's fs package staging idiom (write to a mountpath-local temp name,
// then os.Rename into place; on failure fall back to removing rather than
// leaving a half-written file visible).
package spool

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	ratomic "sync/atomic"

	"github.com/karrick/godirwalk"

	"github.com/natak-mesh/relayd/internal/envelope"
	"github.com/natak-mesh/relayd/internal/xerr"
)

const (
	pendingDir    = "pending"
	processingDir = "processing"
	sentBufferDir = "sent_buffer"
	tmpDir        = ".tmp"
)

type Spool struct {
	root string
	seq  int64 // same-millisecond tie-break, see fname()
}

// Open creates (if absent) the four directories under root and flushes any
// leftover processing/ files back into pending/, per §4.3's startup
// invariant: a crash mid-fan-out must not lose a packet.
func Open(root string) (*Spool, error) {
	s := &Spool{root: root}
	for _, d := range []string{pendingDir, processingDir, sentBufferDir, tmpDir} {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			return nil, xerr.Wrap(xerr.SpoolIO, err, "mkdir %s", d)
		}
	}
	if err := s.recoverProcessing(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Spool) dir(name string) string { return filepath.Join(s.root, name) }

// fname names a packet_<packet_id>.zst file; seq disambiguates packets
// staged within the same millisecond (see SPEC_FULL.md's C3 supplement).
// packet_id (the millisecond timestamp) remains the recoverable identifier:
// seq is only ever a tiebreaker for lexicographic ordering, never parsed
// back out on its own.
func fname(packetID int64, seq int64) string {
	if seq == 0 {
		return fmt.Sprintf("packet_%d.zst", packetID)
	}
	// zero-padded so that seq 10 sorts after seq 9 within one millisecond
	return fmt.Sprintf("packet_%d_%019d.zst", packetID, seq)
}

// Stage atomically writes compressed bytes into pending/ and returns the
// packet_id under which it was staged.
func (s *Spool) Stage(compressed []byte) (int64, error) {
	packetID := envelope.NewPacketID()
	seq := ratomic.AddInt64(&s.seq, 1)
	name := fname(packetID, seq)

	tmp := filepath.Join(s.root, tmpDir, name)
	if err := os.WriteFile(tmp, compressed, 0o644); err != nil {
		return 0, xerr.Wrap(xerr.SpoolIO, err, "write temp %s", tmp)
	}
	dst := filepath.Join(s.dir(pendingDir), name)
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return 0, xerr.Wrap(xerr.SpoolIO, err, "rename into pending %s", dst)
	}
	return packetID, nil
}

// Handle identifies one spooled file independent of which directory
// currently holds it.
type Handle struct {
	PacketID int64
	Name     string // basename, stable across pending->processing->sent_buffer
}

// ClaimOldest moves the lexicographically-first (= oldest, by packet_id)
// pending/ file into processing/, making it invisible to other scanners,
// and returns its bytes. Empty pending/ returns ok=false, not an error.
func (s *Spool) ClaimOldest() (h Handle, data []byte, ok bool, err error) {
	names, err := listSorted(s.dir(pendingDir))
	if err != nil {
		return Handle{}, nil, false, xerr.Wrap(xerr.SpoolIO, err, "scan pending")
	}
	if len(names) == 0 {
		return Handle{}, nil, false, nil
	}
	name := names[0]
	src := filepath.Join(s.dir(pendingDir), name)
	dst := filepath.Join(s.dir(processingDir), name)
	if err := os.Rename(src, dst); err != nil {
		return Handle{}, nil, false, xerr.Wrap(xerr.SpoolIO, err, "claim %s", name)
	}
	data, err = os.ReadFile(dst)
	if err != nil {
		return Handle{}, nil, false, xerr.Wrap(xerr.SpoolIO, err, "read claimed %s", name)
	}
	return Handle{PacketID: packetIDOf(name), Name: name}, data, true, nil
}

// PromoteToBuffer moves a packet from processing/ to sent_buffer/: it is
// fully dispatched (every current target has sent=true) but not yet fully
// acknowledged.
func (s *Spool) PromoteToBuffer(h Handle) error {
	src := filepath.Join(s.dir(processingDir), h.Name)
	dst := filepath.Join(s.dir(sentBufferDir), h.Name)
	if err := os.Rename(src, dst); err != nil {
		return xerr.Wrap(xerr.SpoolIO, err, "promote %s", h.Name)
	}
	return nil
}

// Release deletes a packet from sent_buffer/ once every target is
// terminal (delivered or attempts exhausted). A missing file is not an
// error: release is idempotent so a retried cleanup after a crash is safe.
func (s *Spool) Release(h Handle) error {
	path := filepath.Join(s.dir(sentBufferDir), h.Name)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return xerr.Wrap(xerr.SpoolIO, err, "release %s", h.Name)
	}
	return nil
}

// PurgeAll removes every file in all three stages. Invoked when no OVERLAY
// peers exist: there is nowhere for pending packets to go.
func (s *Spool) PurgeAll() error {
	var errs xerr.Errs
	for _, d := range []string{pendingDir, processingDir, sentBufferDir} {
		names, err := listSorted(s.dir(d))
		if err != nil {
			errs.Add(xerr.Wrap(xerr.SpoolIO, err, "scan %s", d))
			continue
		}
		for _, name := range names {
			if err := os.Remove(filepath.Join(s.dir(d), name)); err != nil && !os.IsNotExist(err) {
				errs.Add(xerr.Wrap(xerr.SpoolIO, err, "remove %s/%s", d, name))
			}
		}
	}
	if errs.Cnt() > 0 {
		return &errs
	}
	return nil
}

// recoverProcessing flushes processing/ back into pending/ on startup: a
// process that died mid-fan-out must not lose the packet, and since
// fan-out is idempotent per-target (acks are tracked by the ledger, which
// is in-memory and rebuilt fresh), restarting from pending/ is safe.
func (s *Spool) recoverProcessing() error {
	names, err := listSorted(s.dir(processingDir))
	if err != nil {
		return xerr.Wrap(xerr.SpoolIO, err, "scan processing on startup")
	}
	for _, name := range names {
		src := filepath.Join(s.dir(processingDir), name)
		dst := filepath.Join(s.dir(pendingDir), name)
		if err := os.Rename(src, dst); err != nil {
			return xerr.Wrap(xerr.SpoolIO, err, "flush processing->pending %s", name)
		}
	}
	return nil
}

// listSorted uses godirwalk for an allocation-light single-level scan
// (mirrors the teacher's use of godirwalk over filepath.Walk for large
// directory fan-in) and returns basenames in sort order, which recovers
// send order since names are packet_<ms>[_<seq>].zst.
func listSorted(dir string) ([]string, error) {
	var names []string
	dirents, err := godirwalk.ReadDirents(dir, nil)
	if err != nil {
		return nil, err
	}
	for _, de := range dirents {
		if de.IsRegular() {
			names = append(names, de.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func packetIDOf(name string) int64 {
	var ms, seq int64
	n, _ := fmt.Sscanf(name, "packet_%d_%d.zst", &ms, &seq)
	if n < 1 {
		fmt.Sscanf(name, "packet_%d.zst", &ms)
	}
	return ms
}
