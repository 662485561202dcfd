package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/fm/pkg/fleet/fleeterr"
	"github.com/cuemby/fm/pkg/fleet/types"
	"golang.org/x/sys/unix"
)

// staleLockAge is how old an acquired_at must be, with no live holder
// process, before the lock is considered abandoned by a crashed process.
const staleLockAge = 5 * time.Minute

// HostLock is a held mutation lock on a host; callers must call Release
// when their operation completes.
type HostLock struct {
	store  *Store
	hostID string
	file   *os.File
}

// AcquireHostLock takes the host's exclusive lock, tagging it with the
// operation name for diagnostics. It blocks using advisory file locking
// (flock via golang.org/x/sys/unix) up to timeout, then fails with
// lock_contention; a stale lock (holder PID no longer alive, or older than
// staleLockAge) is reclaimed rather than waited out.
func (s *Store) AcquireHostLock(hostID, operation string, timeout time.Duration) (*HostLock, error) {
	path := filepath.Join(s.hostDir(hostID), "lock")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fleeterr.Internalf("storage.acquire_lock", err)
	}

	deadline := time.Now().Add(timeout)
	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
		if err != nil {
			return nil, fleeterr.Internalf("storage.acquire_lock", err)
		}
		err = unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			meta := types.HostLock{Operation: operation, Holder: os.Getpid(), AcquiredAt: time.Now()}
			data, _ := json.Marshal(meta)
			f.Truncate(0)
			f.Seek(0, 0)
			f.Write(data)
			return &HostLock{store: s, hostID: hostID, file: f}, nil
		}
		f.Close()

		if s.tryReclaimStale(path) {
			continue
		}

		if time.Now().After(deadline) {
			return nil, fleeterr.LockContentionf("storage.acquire_lock", hostID,
				fmt.Errorf("timed out waiting for host lock (operation=%s)", operation))
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// tryReclaimStale reads the lock's recorded metadata and, if the holding
// PID is dead or the lock is older than staleLockAge, removes it so the
// next acquisition attempt succeeds. Returns whether it reclaimed anything.
func (s *Store) tryReclaimStale(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return false
	}
	var meta types.HostLock
	if err := json.Unmarshal(data, &meta); err != nil {
		return false
	}
	if pidAlive(meta.Holder) && time.Since(meta.AcquiredAt) < staleLockAge {
		return false
	}
	os.Remove(path)
	return true
}

func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return unix.Kill(pid, 0) == nil
}

// Release drops the host lock.
func (l *HostLock) Release() error {
	defer l.file.Close()
	unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	return os.Remove(filepath.Join(l.store.hostDir(l.hostID), "lock"))
}
