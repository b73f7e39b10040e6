// Package file opens the files a peer sends and stores the files a peer receives.
package file

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/SpatiumPortae/lanbeam/internal/transfer"
)

const (
	SendTempPrefix    = "lanbeam-send"
	ReceiveTempSuffix = ".part"

	// ArchiveMimeType marks payloads packed by lanbeam, the receiver may unpack them.
	ArchiveMimeType = "application/x-lanbeam-tar+gzip"
	archiveExt      = ".tar.gz"

	sniffLen = 512
)

var ErrNoFiles = errors.New("no files provided")

// Payload is the file offered to a peer. Directories and multiple files are packed into one archive.
type Payload struct {
	Name     string
	MimeType string
	Size     int64
	file     *os.File
	temp     bool
}

// Open prepares the provided paths for sending. A single regular file is sent as is.
func Open(paths ...string) (*Payload, error) {
	if len(paths) == 0 {
		return nil, ErrNoFiles
	}
	if len(paths) == 1 {
		info, err := os.Stat(paths[0])
		if err != nil {
			return nil, fmt.Errorf("file '%s' not found", paths[0])
		}
		if info.Mode().IsRegular() {
			return openRegular(paths[0], info)
		}
	}

	files, err := ReadFiles(paths)
	if err != nil {
		return nil, err
	}
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()
	packed, size, err := PackFiles(files)
	if err != nil {
		return nil, fmt.Errorf("packing files: %w", err)
	}
	return &Payload{
		Name:     archiveName(paths),
		MimeType: ArchiveMimeType,
		Size:     size,
		file:     packed,
		temp:     true,
	}, nil
}

func openRegular(path string, info os.FileInfo) (*Payload, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	mimeType, err := detectMimeType(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Payload{
		Name:     filepath.Base(path),
		MimeType: mimeType,
		Size:     info.Size(),
		file:     f,
	}, nil
}

// detectMimeType resolves the mime type by extension, falling back to sniffing the content.
func detectMimeType(f *os.File) (string, error) {
	if t := mime.TypeByExtension(filepath.Ext(f.Name())); t != "" {
		return t, nil
	}
	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", fmt.Errorf("reading %s: %w", f.Name(), err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return http.DetectContentType(buf[:n]), nil
}

func archiveName(paths []string) string {
	if len(paths) == 1 {
		return filepath.Base(filepath.Clean(paths[0])) + archiveExt
	}
	return fmt.Sprintf("lanbeam-%d-files%s", len(paths), archiveExt)
}

// Source returns the transfer source reading the payload from the start.
func (p *Payload) Source() (transfer.Source, error) {
	if _, err := p.file.Seek(0, io.SeekStart); err != nil {
		return transfer.Source{}, err
	}
	return transfer.Source{Name: p.Name, MimeType: p.MimeType, Size: p.Size, Reader: p.file}, nil
}

// Close closes the payload, removing the archive if one was packed.
func (p *Payload) Close() error {
	err := p.file.Close()
	if p.temp {
		if rerr := os.Remove(p.file.Name()); rerr != nil && err == nil {
			err = rerr
		}
	}
	return err
}

// ----------------------------------------------------- Utilities -----------------------------------------------------

func ReadFiles(fileNames []string) ([]*os.File, error) {
	var files []*os.File
	for _, fileName := range fileNames {
		f, err := os.Open(fileName)
		if err != nil {
			for _, opened := range files {
				opened.Close()
			}
			return nil, fmt.Errorf("file '%s' not found", fileName)
		}
		files = append(files, f)
	}
	return files, nil
}

// FileSize traverses a file or directory recursively for total size in bytes.
func FileSize(filePath string) (int64, error) {
	var size int64
	err := filepath.Walk(filePath, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		size += info.Size()
		return err
	})
	if err != nil {
		return 0, err
	}
	return size, nil
}

// RemoveTemporaryFiles optimistically removes archives left behind by earlier sends.
func RemoveTemporaryFiles() {
	tempFiles, err := os.ReadDir(os.TempDir())
	if err != nil {
		return
	}
	for _, tempFile := range tempFiles {
		if strings.HasPrefix(tempFile.Name(), SendTempPrefix) {
			os.Remove(filepath.Join(os.TempDir(), tempFile.Name()))
		}
	}
}
