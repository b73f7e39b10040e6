package file

import (
	"archive/tar"
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/pgzip"
)

// ----------------------------------------------------- Pack Files ----------------------------------------------------

// PackFiles tars and gzip-compresses files into a temporary file, returning it
// along with the resulting size.
func PackFiles(files []*os.File) (*os.File, int64, error) {
	// chained writers -> writing to tw writes to gw -> writes to temporary file
	tempFile, err := os.CreateTemp(os.TempDir(), SendTempPrefix)
	if err != nil {
		return nil, 0, err
	}
	fail := func(err error) (*os.File, int64, error) {
		tempFile.Close()
		os.Remove(tempFile.Name())
		return nil, 0, err
	}
	tempFileWriter := bufio.NewWriter(tempFile)
	gw := pgzip.NewWriter(tempFileWriter)
	tw := tar.NewWriter(gw)

	for _, file := range files {
		if err := addToTarArchive(tw, file); err != nil {
			return fail(err)
		}
	}
	if err := tw.Close(); err != nil {
		return fail(err)
	}
	if err := gw.Close(); err != nil {
		return fail(err)
	}
	if err := tempFileWriter.Flush(); err != nil {
		return fail(err)
	}
	fileInfo, err := tempFile.Stat()
	if err != nil {
		return fail(err)
	}
	if _, err = tempFile.Seek(0, io.SeekStart); err != nil {
		return fail(err)
	}
	return tempFile, fileInfo.Size(), nil
}

// addToTarArchive adds a file/folder to a tar archive.
// Handles symlinks by replacing them with the files that they point to.
func addToTarArchive(tw *tar.Writer, file *os.File) error {
	absPath, err := filepath.Abs(file.Name())
	if err != nil {
		return err
	}
	absoluteBase := filepath.Dir(absPath)

	return filepath.Walk(file.Name(), func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if (fi.Mode() & os.ModeSymlink) == os.ModeSymlink {
			link, err := filepath.EvalSymlinks(path)
			if err != nil {
				return err
			}
			// treat the symlink as the file it points to
			if fi, err = os.Stat(link); err != nil {
				return err
			}
		}

		header, err := tar.FileInfoHeader(fi, path)
		if err != nil {
			return err
		}
		// use absolute paths to handle both relative and absolute input paths identically
		targetPath, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		// remove the absolute root from the filename, leaving only the desired filename
		header.Name = filepath.ToSlash(strings.TrimPrefix(targetPath, absoluteBase))
		header.Name = strings.TrimPrefix(header.Name, "/")

		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if fi.IsDir() {
			return nil
		}
		data, err := os.Open(path)
		if err != nil {
			return err
		}
		defer data.Close()
		_, err = io.Copy(tw, data)
		return err
	})
}

// ---------------------------------------------------- Unpack Files ---------------------------------------------------

var (
	ErrUnpackNoHeader   = errors.New("no header in tar archive")
	ErrUnpackFileExists = errors.New("file exists")
	ErrUnsafePath       = errors.New("archive entry escapes the destination")
)

// Unpacker unpacks a compressed tar archive into a destination directory.
type Unpacker struct {
	overwrite bool
	dst       string

	gr *pgzip.Reader
	tr *tar.Reader
}

func NewUnpacker(dst string, overwrite bool, r io.Reader) (*Unpacker, error) {
	gr, err := pgzip.NewReader(r)
	if err != nil {
		return nil, err
	}
	return &Unpacker{
		overwrite: overwrite,
		dst:       dst,
		gr:        gr,
		tr:        tar.NewReader(gr),
	}, nil
}

func (u *Unpacker) Close() error {
	return u.gr.Close()
}

// Unpack writes the next entry of the archive to disk and returns its name. Returns io.EOF once
// the archive has been fully consumed. Existing files are only replaced when overwriting.
func (u *Unpacker) Unpack() (string, error) {
	header, err := u.tr.Next()
	switch {
	case err != nil:
		return "", err
	case header == nil:
		return "", ErrUnpackNoHeader
	}
	path := filepath.Join(u.dst, filepath.FromSlash(header.Name))
	if rel, err := filepath.Rel(u.dst, path); err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return header.Name, fmt.Errorf("%w: %s", ErrUnsafePath, header.Name)
	}

	switch header.Typeflag {
	case tar.TypeDir:
		return header.Name, os.MkdirAll(path, 0o755)
	case tar.TypeReg:
		if !u.overwrite && fileExists(path) {
			return header.Name, fmt.Errorf("%w: %s", ErrUnpackFileExists, header.Name)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return header.Name, err
		}
		f, err := os.Create(path)
		if err != nil {
			return header.Name, err
		}
		defer f.Close()
		_, err = io.Copy(f, u.tr)
		return header.Name, err
	default:
		return header.Name, fmt.Errorf("unsupported file type in archive: %s", header.Name)
	}
}

// UnpackAll unpacks every entry of the archive, returning the names written.
func (u *Unpacker) UnpackAll() ([]string, error) {
	var names []string
	for {
		name, err := u.Unpack()
		if errors.Is(err, io.EOF) {
			return names, nil
		}
		if err != nil {
			return names, err
		}
		names = append(names, name)
	}
}

func fileExists(filename string) bool {
	_, err := os.Stat(filename)
	return !os.IsNotExist(err)
}
