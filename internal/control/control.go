// Package control manages the control file that sits next to a scene
// table. The file is memory-mapped so any process (a DCC plugin, another
// cachesync run) can read the sync generation without opening the table,
// and it carries an advisory lock serializing writers across processes.
package control

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	ControlSize = 4096       // 1 page
	Magic       = 0x43535943 // 'CSYC'
	Suffix      = ".ctrl"
)

// ErrLocked is returned by TryLock when another process holds the lock.
var ErrLocked = errors.New("scene is locked by another process")

// Block is the layout of the control file.
type Block struct {
	Magic      uint32
	Version    uint32
	Generation uint64 // Atomic
	SyncedAt   int64  // unix seconds
	LastDir    [256]byte
	Padding    [ControlSize - 280]byte
}

// Controller is an open control file.
type Controller struct {
	path   string
	file   *os.File
	data   []byte
	ptr    *Block
	locked bool
}

// PathFor returns the control file path of a scene table.
func PathFor(scenePath string) string {
	return scenePath + Suffix
}

// OpenOrCreate opens or creates a control file at the given path.
func OpenOrCreate(path string) (*Controller, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open control file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat: %w", err)
	}
	if info.Size() < ControlSize {
		if err := f.Truncate(ControlSize); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("truncate: %w", err)
		}
	}

	data, err := unix.Mmap(int(f.Fd()), 0, ControlSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("mmap: %w", err)
	}

	ptr := (*Block)(unsafe.Pointer(&data[0]))
	if ptr.Magic == 0 {
		ptr.Magic = Magic
		ptr.Version = 1
	} else if ptr.Magic != Magic {
		_ = unix.Munmap(data)
		_ = f.Close()
		return nil, fmt.Errorf("%s: invalid magic %x", path, ptr.Magic)
	}

	return &Controller{path: path, file: f, data: data, ptr: ptr}, nil
}

// TryLock takes the exclusive writer lock without blocking.
func (c *Controller) TryLock() error {
	if err := unix.Flock(int(c.file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		if errors.Is(err, unix.EWOULDBLOCK) {
			return fmt.Errorf("%s: %w", c.path, ErrLocked)
		}
		return fmt.Errorf("flock %s: %w", c.path, err)
	}
	c.locked = true
	return nil
}

// Unlock releases the writer lock.
func (c *Controller) Unlock() error {
	if !c.locked {
		return nil
	}
	c.locked = false
	return unix.Flock(int(c.file.Fd()), unix.LOCK_UN)
}

// Generation returns the number of recorded syncs.
func (c *Controller) Generation() uint64 {
	return atomic.LoadUint64(&c.ptr.Generation)
}

// LastDir returns the cache directory of the last recorded sync.
func (c *Controller) LastDir() string {
	b := c.ptr.LastDir[:]
	for i, v := range b {
		if v == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// SyncedAt returns the unix time of the last recorded sync, 0 if none.
func (c *Controller) SyncedAt() int64 {
	return atomic.LoadInt64(&c.ptr.SyncedAt)
}

// Record notes that references were rebound to files of dir and bumps
// the generation. Readers that see the new generation see dir.
func (c *Controller) Record(dir string, now int64) (uint64, error) {
	if len(dir) >= len(c.ptr.LastDir) {
		return 0, fmt.Errorf("path too long (max %d)", len(c.ptr.LastDir)-1)
	}
	clear(c.ptr.LastDir[:])
	copy(c.ptr.LastDir[:], dir)
	atomic.StoreInt64(&c.ptr.SyncedAt, now)
	gen := atomic.AddUint64(&c.ptr.Generation, 1)

	if err := unix.Msync(c.data, unix.MS_SYNC); err != nil {
		return gen, fmt.Errorf("msync: %w", err)
	}
	return gen, nil
}

// Close releases the lock, unmaps and closes the control file.
func (c *Controller) Close() error {
	_ = c.Unlock()
	if err := unix.Munmap(c.data); err != nil {
		return err
	}
	return c.file.Close()
}
