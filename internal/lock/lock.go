// Package lock provides scoped advisory flock(2) locks on the HQ state file.
//
// A lock scope yields one *os.File opened read-write; the same handle is used to
// load and to save, so the lock window covers the whole read-modify-write. The
// lock is released and the file closed on every exit path, panics included.
//
// flock locks belong to the open file description, so two scopes in the same
// process exclude each other exactly like two processes do.
package lock

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	ferrors "github.com/wg-federation/wg-federation/internal/foundation/errors"
	"github.com/wg-federation/wg-federation/internal/logfields"
	"github.com/wg-federation/wg-federation/internal/metrics"
)

// Mode is the lock flavor requested for a scope.
type Mode int

const (
	Shared Mode = iota
	Exclusive
)

func (m Mode) String() string {
	if m == Exclusive {
		return "exclusive"
	}
	return "shared"
}

// Func is the body of a lock scope.
type Func func(f *os.File) error

// Locker acquires scoped locks on a path.
type Locker interface {
	// Shared locks an existing file for reading.
	Shared(ctx context.Context, path string, fn Func) error
	// Exclusive locks an existing file for read-modify-write. A missing file is
	// reported as fs.ErrNotExist.
	Exclusive(ctx context.Context, path string, fn Func) error
	// ExclusiveCreate is Exclusive but creates the file (and its directory) first.
	// A file created by the call is removed again when fn fails.
	ExclusiveCreate(ctx context.Context, path string, fn Func) error
}

// FileLocker is the flock(2) Locker.
type FileLocker struct {
	logger   *slog.Logger
	recorder metrics.Recorder
	fileMode os.FileMode
}

// Option configures a FileLocker.
type Option func(*FileLocker)

// WithLogger sets the logger used for lock diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(fl *FileLocker) { fl.logger = l }
}

// WithRecorder sets the metrics recorder used for lock wait times.
func WithRecorder(r metrics.Recorder) Option {
	return func(fl *FileLocker) { fl.recorder = metrics.OrNoop(r) }
}

// NewFileLocker returns a FileLocker. Created files get mode 0600.
func NewFileLocker(opts ...Option) *FileLocker {
	fl := &FileLocker{
		logger:   slog.Default(),
		recorder: metrics.NoopRecorder{},
		fileMode: 0o600,
	}
	for _, opt := range opts {
		opt(fl)
	}
	return fl
}

func (fl *FileLocker) Shared(ctx context.Context, path string, fn Func) error {
	return fl.scope(ctx, path, os.O_RDONLY, Shared, fn)
}

func (fl *FileLocker) Exclusive(ctx context.Context, path string, fn Func) error {
	return fl.scope(ctx, path, os.O_RDWR, Exclusive, fn)
}

func (fl *FileLocker) ExclusiveCreate(ctx context.Context, path string, fn Func) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to create state directory").
			WithContext("path", filepath.Dir(path)).
			Build()
	}

	created := false
	err := fl.scope(ctx, path, os.O_RDWR|os.O_CREATE|os.O_EXCL, Exclusive, func(f *os.File) error {
		created = true
		if err := fn(f); err != nil {
			// Still under the lock: waiters that opened the new file find it
			// empty and treat it as missing.
			if rerr := os.Remove(path); rerr != nil && !errors.Is(rerr, fs.ErrNotExist) {
				fl.logger.Warn("Failed to remove state file after failed create",
					logfields.Path(path), logfields.Error(rerr))
			}
			return err
		}
		return nil
	})
	if created || !errors.Is(err, fs.ErrExist) {
		return err
	}
	return fl.scope(ctx, path, os.O_RDWR, Exclusive, fn)
}

func (fl *FileLocker) scope(ctx context.Context, path string, flag int, mode Mode, fn Func) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	f, err := os.OpenFile(path, flag, fl.fileMode)
	if err != nil {
		// Left unwrapped: callers distinguish a missing state file with errors.Is.
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = ferrors.WrapError(cerr, ferrors.CategoryFileSystem, "failed to close locked file").
				WithContext("path", path).
				Build()
		}
	}()

	how := unix.LOCK_SH
	if mode == Exclusive {
		how = unix.LOCK_EX
	}

	start := time.Now()
	if err := flock(f, how); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryLock, "failed to acquire lock").
			WithContext("path", path).
			WithContext("mode", mode.String()).
			Build()
	}
	wait := time.Since(start)
	fl.recorder.ObserveLockWait(mode.String(), wait)
	fl.logger.Debug("Lock acquired",
		logfields.Path(path),
		logfields.LockMode(mode.String()),
		logfields.DurationMS(float64(wait.Microseconds())/1000))

	defer func() {
		if uerr := unix.Flock(int(f.Fd()), unix.LOCK_UN); uerr != nil {
			fl.logger.Warn("Failed to release lock", logfields.Path(path), logfields.Error(uerr))
		}
	}()

	return fn(f)
}

// flock blocks until the lock is granted, restarting after signal interruptions.
func flock(f *os.File, how int) error {
	for {
		err := unix.Flock(int(f.Fd()), how)
		if !errors.Is(err, unix.EINTR) {
			return err
		}
	}
}

// IsNotExist reports whether err means the locked path does not exist.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
