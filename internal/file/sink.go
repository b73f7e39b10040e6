package file

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/SpatiumPortae/lanbeam/internal/report"
)

var ErrInvalidName = errors.New("invalid file name")

// Sink streams a received file into a temporary file next to its destination. Close moves it into
// place, Abort removes it.
type Sink struct {
	dir       string
	name      string
	mimeType  string
	overwrite bool
	extract   bool
	confirm   func(path string) bool

	mu   sync.Mutex
	tmp  *os.File
	done bool
	path string
}

// SinkOptions controls where and how received files are stored.
type SinkOptions struct {
	Dir       string
	Overwrite bool
	// Extract unpacks archives packed by lanbeam into Dir once received.
	Extract bool
	// Confirm is asked whether an existing file at path is replaced when Overwrite is off. Without it, or
	// when it declines, the received file gets a numbered name.
	Confirm func(path string) bool
}

// Opener returns a report.FileOpener storing files according to the options.
func Opener(opts SinkOptions) report.FileOpener {
	return func(name, mimeType string, _ int64) (report.Sink, error) {
		return NewSink(opts, name, mimeType)
	}
}

// NewSink creates the temporary file for the announced name. Names are reduced to their base so that a
// peer cannot write outside of the destination directory.
func NewSink(opts SinkOptions, name, mimeType string) (*Sink, error) {
	base := filepath.Base(filepath.Clean("/" + strings.ReplaceAll(name, `\`, "/")))
	if base == "/" || base == "." || base == ".." {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	dir := opts.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating download directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+base+"-*"+ReceiveTempSuffix)
	if err != nil {
		return nil, fmt.Errorf("creating temporary file: %w", err)
	}
	return &Sink{
		dir:       dir,
		name:      base,
		mimeType:  mimeType,
		overwrite: opts.Overwrite,
		extract:   opts.Extract && mimeType == ArchiveMimeType,
		confirm:   opts.Confirm,
		tmp:       tmp,
	}, nil
}

func (s *Sink) Write(b []byte) (int, error) {
	return s.tmp.Write(b)
}

// Close commits the file to its destination. Without overwrite an existing file is kept and the
// received one gets a numbered name, unless confirm agrees to replace it.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil
	}
	s.done = true
	if err := s.tmp.Close(); err != nil {
		os.Remove(s.tmp.Name())
		return err
	}
	if s.extract {
		return s.unpack()
	}
	dst := filepath.Join(s.dir, s.name)
	if !s.overwrite && fileExists(dst) && (s.confirm == nil || !s.confirm(dst)) {
		dst = uniquePath(dst)
	}
	if err := os.Rename(s.tmp.Name(), dst); err != nil {
		os.Remove(s.tmp.Name())
		return fmt.Errorf("moving %s into place: %w", s.name, err)
	}
	s.path = dst
	return nil
}

// Abort discards the partially received file.
func (s *Sink) Abort() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil
	}
	s.done = true
	s.tmp.Close()
	return os.Remove(s.tmp.Name())
}

// Path returns where the file was stored, empty until committed or when unpacked.
func (s *Sink) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

func (s *Sink) unpack() error {
	defer os.Remove(s.tmp.Name())
	f, err := os.Open(s.tmp.Name())
	if err != nil {
		return err
	}
	defer f.Close()
	u, err := NewUnpacker(s.dir, s.overwrite, f)
	if err != nil {
		return fmt.Errorf("reading archive: %w", err)
	}
	defer u.Close()
	if _, err := u.UnpackAll(); err != nil {
		return fmt.Errorf("unpacking %s: %w", s.name, err)
	}
	s.path = s.dir
	return nil
}

// uniquePath returns path, or path with a counter before the extension if it already exists.
func uniquePath(path string) string {
	if !fileExists(path) {
		return path
	}
	ext := filepath.Ext(path)
	if strings.HasSuffix(path, archiveExt) {
		ext = archiveExt
	}
	stem := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, i, ext)
		if !fileExists(candidate) {
			return candidate
		}
	}
}
