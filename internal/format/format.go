// Package format classifies package files by magic bytes.
package format

import (
	"bytes"
	"io"
	"os"

	"golang.org/x/xerrors"
)

// Format is a detected package format.
type Format int

const (
	Unknown Format = iota
	AppImage
	FlatImage
	RunImage
	Wrappe
	ELF
)

func (f Format) String() string {
	switch f {
	case AppImage:
		return "appimage"
	case FlatImage:
		return "flatimage"
	case RunImage:
		return "runimage"
	case Wrappe:
		return "wrappe"
	case ELF:
		return "elf"
	}
	return "unknown"
}

var (
	elfMagic       = []byte{0x7f, 0x45, 0x4c, 0x46}
	appImageMagic  = []byte{0x41, 0x49, 0x02, 0x00}
	flatImageMagic = []byte{0x46, 0x49, 0x01, 0x00}
	runImageMagic  = []byte{0x52, 0x49, 0x02, 0x00}
	wrappeMagic    = []byte{0x50, 0x45, 0x33, 0x44, 0x41, 0x54, 0x41, 0x00}

	// wrappeTrailer is where the Wrappe magic sits relative to the end of
	// the file.
	wrappeTrailer int64 = 801
)

// Detect classifies r. The first 12 bytes decide the image formats (magic
// at offset 8); then the Wrappe trailer is probed; plain ELF is the
// fallback, Unknown the sentinel.
func Detect(r io.ReadSeeker) (Format, error) {
	var head [12]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return Unknown, xerrors.Errorf("reading magic bytes: %w", err)
	}
	switch {
	case bytes.Equal(head[8:12], appImageMagic):
		return AppImage, nil
	case bytes.Equal(head[8:12], flatImageMagic):
		return FlatImage, nil
	case bytes.Equal(head[8:12], runImageMagic):
		return RunImage, nil
	}

	end, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return Unknown, xerrors.Errorf("seeking: %w", err)
	}
	if end >= wrappeTrailer+int64(len(wrappeMagic)) {
		if _, err := r.Seek(end-wrappeTrailer, io.SeekStart); err != nil {
			return Unknown, xerrors.Errorf("seeking: %w", err)
		}
		var tail [8]byte
		if _, err := io.ReadFull(r, tail[:]); err != nil {
			return Unknown, xerrors.Errorf("reading trailer: %w", err)
		}
		if bytes.Equal(tail[:], wrappeMagic) {
			return Wrappe, nil
		}
	}

	if bytes.Equal(head[:4], elfMagic) {
		return ELF, nil
	}
	return Unknown, nil
}

// DetectFile opens and classifies the file at path.
func DetectFile(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return Unknown, err
	}
	defer f.Close()
	return Detect(f)
}
