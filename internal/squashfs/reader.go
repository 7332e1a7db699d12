package squashfs

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/xerrors"
)

// Reader reads one SquashFS image.
type Reader struct {
	r     io.ReaderAt
	super superblock
}

// NewReader opens the image whose superblock sits at byte 0 of r.
func NewReader(r io.ReaderAt) (*Reader, error) {
	var sb superblock
	if err := binary.Read(io.NewSectionReader(r, 0, int64(binary.Size(sb))), binary.LittleEndian, &sb); err != nil {
		return nil, fmt.Errorf("reading superblock: %v", err)
	}
	if got, want := sb.Magic, uint32(magic); got != want {
		return nil, fmt.Errorf("invalid magic (not a SquashFS image?): got %x, want %x", got, want)
	}
	switch sb.Compression {
	case compGzip, compZstd:
	default:
		return nil, xerrors.Errorf("unsupported compression id %d (only gzip and zstd)", sb.Compression)
	}
	return &Reader{r: r, super: sb}, nil
}

// NewReaderAt opens the image embedded at offset inside r (an AppImage
// payload appended to its runtime ELF).
func NewReaderAt(r io.ReaderAt, offset int64) (*Reader, error) {
	return NewReader(io.NewSectionReader(r, offset, 1<<62))
}

// ELFPayloadOffset computes where the appended payload of an AppImage
// starts: after the last section header of the runtime ELF.
func ELFPayloadOffset(r io.ReaderAt) (int64, error) {
	var ident [16]byte
	if _, err := r.ReadAt(ident[:], 0); err != nil {
		return 0, err
	}
	if ident[0] != 0x7f || ident[1] != 'E' || ident[2] != 'L' || ident[3] != 'F' {
		return 0, xerrors.New("not an ELF file")
	}
	switch ident[4] {
	case 1: // ELFCLASS32
		var hdr struct {
			Type      uint16
			Machine   uint16
			Version   uint32
			Entry     uint32
			Phoff     uint32
			Shoff     uint32
			Flags     uint32
			Ehsize    uint16
			Phentsize uint16
			Phnum     uint16
			Shentsize uint16
			Shnum     uint16
			Shstrndx  uint16
		}
		if err := binary.Read(io.NewSectionReader(r, 16, int64(binary.Size(hdr))), binary.LittleEndian, &hdr); err != nil {
			return 0, err
		}
		return int64(hdr.Shoff) + int64(hdr.Shentsize)*int64(hdr.Shnum), nil
	case 2: // ELFCLASS64
		var hdr struct {
			Type      uint16
			Machine   uint16
			Version   uint32
			Entry     uint64
			Phoff     uint64
			Shoff     uint64
			Flags     uint32
			Ehsize    uint16
			Phentsize uint16
			Phnum     uint16
			Shentsize uint16
			Shnum     uint16
			Shstrndx  uint16
		}
		if err := binary.Read(io.NewSectionReader(r, 16, int64(binary.Size(hdr))), binary.LittleEndian, &hdr); err != nil {
			return 0, err
		}
		return int64(hdr.Shoff) + int64(hdr.Shentsize)*int64(hdr.Shnum), nil
	}
	return 0, xerrors.New("unknown ELF class")
}

// OpenAppImage maps path and returns a reader positioned at its embedded
// SquashFS.
func OpenAppImage(path string) (*Reader, *os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	off, err := ELFPayloadOffset(f)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	rd, err := NewReaderAt(f, off)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return rd, f, nil
}

func (r *Reader) decompress(src []byte) ([]byte, error) {
	switch r.super.Compression {
	case compGzip:
		zr, err := zlib.NewReader(bytes.NewReader(src))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case compZstd:
		zr, err := zstd.NewReader(bytes.NewReader(src))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)
	}
	return nil, xerrors.Errorf("unsupported compression id %d", r.super.Compression)
}

func (r *Reader) inode(i Inode) (blockoffset int64, offset int64) {
	return int64(i >> 16), int64(i & 0xFFFF)
}

// metadataBlock reads the metadata block at abs and returns its
// uncompressed payload plus the length it occupies on disk.
func (r *Reader) metadataBlock(abs int64) ([]byte, int64, error) {
	var l uint16
	if err := binary.Read(io.NewSectionReader(r.r, abs, 2), binary.LittleEndian, &l); err != nil {
		return nil, 0, err
	}
	uncompressed := l&0x8000 > 0
	l &= 0x7FFF
	raw := make([]byte, l)
	if _, err := r.r.ReadAt(raw, abs+2); err != nil {
		return nil, 0, err
	}
	if uncompressed {
		return raw, int64(l) + 2, nil
	}
	data, err := r.decompress(raw)
	if err != nil {
		return nil, 0, err
	}
	return data, int64(l) + 2, nil
}

// blockReader decompresses consecutive metadata blocks starting at abs
// and discards offset bytes of the first block.
func (r *Reader) blockReader(abs, offset int64) (io.Reader, error) {
	br := &metaReader{r: r, next: abs}
	if _, err := io.CopyN(io.Discard, br, offset); err != nil {
		return nil, err
	}
	return br, nil
}

type metaReader struct {
	r    *Reader
	next int64
	buf  bytes.Reader
}

func (m *metaReader) Read(p []byte) (int, error) {
	n, err := m.buf.Read(p)
	if err == io.EOF {
		data, used, berr := m.r.metadataBlock(m.next)
		if berr != nil {
			return 0, berr
		}
		m.next += used
		m.buf.Reset(data)
		return m.buf.Read(p)
	}
	return n, err
}

func (r *Reader) readInode(i Inode) (interface{}, []uint32, error) {
	blockoffset, offset := r.inode(i)
	br, err := r.blockReader(r.super.InodeTableStart+blockoffset, offset)
	if err != nil {
		return nil, nil, err
	}

	// The inode type decides which struct to read, so it is read twice.
	var inodeType uint16
	typeBuf := bytes.NewBuffer(make([]byte, 0, binary.Size(inodeType)))
	if err := binary.Read(io.TeeReader(br, typeBuf), binary.LittleEndian, &inodeType); err != nil {
		return nil, nil, err
	}
	full := io.MultiReader(typeBuf, br)

	switch inodeType {
	case dirType:
		var di dirInodeHeader
		if err := binary.Read(full, binary.LittleEndian, &di); err != nil {
			return nil, nil, err
		}
		return di, nil, nil
	case ldirType:
		var di ldirInodeHeader
		if err := binary.Read(full, binary.LittleEndian, &di); err != nil {
			return nil, nil, err
		}
		return di, nil, nil
	case fileType:
		var ri regInodeHeader
		if err := binary.Read(full, binary.LittleEndian, &ri); err != nil {
			return nil, nil, err
		}
		blocks, err := r.readBlockList(full, uint64(ri.FileSize), ri.Fragment)
		if err != nil {
			return nil, nil, err
		}
		return ri, blocks, nil
	case lregType:
		var ri lregInodeHeader
		if err := binary.Read(full, binary.LittleEndian, &ri); err != nil {
			return nil, nil, err
		}
		blocks, err := r.readBlockList(full, ri.FileSize, ri.Fragment)
		if err != nil {
			return nil, nil, err
		}
		return ri, blocks, nil
	case symlinkType, lsymlinkType:
		var si symlinkInodeHeader
		if err := binary.Read(full, binary.LittleEndian, &si); err != nil {
			return nil, nil, err
		}
		target := make([]byte, si.SymlinkSize)
		if _, err := io.ReadFull(full, target); err != nil {
			return nil, nil, err
		}
		return symlinkInode{si, string(target)}, nil, nil
	}
	return nil, nil, fmt.Errorf("unknown inode type %d", inodeType)
}

type symlinkInode struct {
	symlinkInodeHeader
	target string
}

func (r *Reader) readBlockList(br io.Reader, fileSize uint64, fragment uint32) ([]uint32, error) {
	bs := uint64(r.super.BlockSize)
	n := fileSize / bs
	if fragment == invalidFragment && fileSize%bs != 0 {
		n++
	}
	blocks := make([]uint32, n)
	if err := binary.Read(br, binary.LittleEndian, blocks); err != nil {
		return nil, err
	}
	return blocks, nil
}

// RootInode returns the root directory inode.
func (r *Reader) RootInode() Inode {
	return r.super.RootInode
}

// Stat returns file info for the inode, using name for FileInfo.Name.
func (r *Reader) Stat(name string, i Inode) (os.FileInfo, error) {
	inode, _, err := r.readInode(i)
	if err != nil {
		return nil, err
	}
	switch x := inode.(type) {
	case dirInodeHeader:
		return &FileInfo{name: name, size: int64(x.FileSize), mode: os.ModeDir | os.FileMode(x.Mode&0777), modTime: time.Unix(int64(x.Mtime), 0), Inode: i}, nil
	case ldirInodeHeader:
		return &FileInfo{name: name, size: int64(x.FileSize), mode: os.ModeDir | os.FileMode(x.Mode&0777), modTime: time.Unix(int64(x.Mtime), 0), Inode: i}, nil
	case regInodeHeader:
		return &FileInfo{name: name, size: int64(x.FileSize), mode: os.FileMode(x.Mode & 0777), modTime: time.Unix(int64(x.Mtime), 0), Inode: i}, nil
	case lregInodeHeader:
		return &FileInfo{name: name, size: int64(x.FileSize), mode: os.FileMode(x.Mode & 0777), modTime: time.Unix(int64(x.Mtime), 0), Inode: i}, nil
	case symlinkInode:
		return &FileInfo{name: name, size: int64(x.SymlinkSize), mode: os.ModeSymlink | os.FileMode(x.Mode&0777), modTime: time.Unix(int64(x.Mtime), 0), Inode: i}, nil
	}
	return nil, fmt.Errorf("unknown inode type %T", inode)
}

// ReadLink returns the symlink target of the inode.
func (r *Reader) ReadLink(i Inode) (string, error) {
	inode, _, err := r.readInode(i)
	if err != nil {
		return "", err
	}
	si, ok := inode.(symlinkInode)
	if !ok {
		return "", fmt.Errorf("inode %d is not a symlink", i)
	}
	return si.target, nil
}

// fragmentEntryFor looks up the fragment table entry with the given index.
func (r *Reader) fragmentEntryFor(idx uint32) (*fragmentEntry, error) {
	const entriesPerBlock = metadataBlockSize / 16
	block := int64(idx / entriesPerBlock)
	offset := int64(idx%entriesPerBlock) * 16

	var blockStart uint64
	ptr := r.super.FragmentTableStart + block*8
	if err := binary.Read(io.NewSectionReader(r.r, ptr, 8), binary.LittleEndian, &blockStart); err != nil {
		return nil, err
	}
	data, _, err := r.metadataBlock(int64(blockStart))
	if err != nil {
		return nil, err
	}
	if int(offset)+16 > len(data) {
		return nil, xerrors.Errorf("fragment index %d out of range", idx)
	}
	var fe fragmentEntry
	if err := binary.Read(bytes.NewReader(data[offset:offset+16]), binary.LittleEndian, &fe); err != nil {
		return nil, err
	}
	return &fe, nil
}

// dataBlock reads and decompresses one data block. The on-disk size word
// carries the uncompressed flag in bit 24.
func (r *Reader) dataBlock(abs int64, sizeWord uint32, want int) ([]byte, error) {
	uncompressed := sizeWord&(1<<24) > 0
	size := sizeWord & 0xFFFFFF
	if size == 0 {
		// Sparse block.
		return make([]byte, want), nil
	}
	raw := make([]byte, size)
	if _, err := r.r.ReadAt(raw, abs); err != nil {
		return nil, err
	}
	if uncompressed {
		return raw, nil
	}
	return r.decompress(raw)
}

// FileReader streams the decompressed contents of a regular file inode.
func (r *Reader) FileReader(inode Inode) (io.Reader, error) {
	i, blocks, err := r.readInode(inode)
	if err != nil {
		return nil, err
	}
	var (
		start    int64
		fragment uint32
		fragOff  uint32
		fileSize uint64
	)
	switch ri := i.(type) {
	case regInodeHeader:
		start, fragment, fragOff, fileSize = int64(ri.StartBlock), ri.Fragment, ri.Offset, uint64(ri.FileSize)
	case lregInodeHeader:
		start, fragment, fragOff, fileSize = int64(ri.StartBlock), ri.Fragment, ri.Offset, ri.FileSize
	default:
		return nil, fmt.Errorf("inode %d is not a regular file", inode)
	}

	var bufs []io.Reader
	remaining := fileSize
	bs := uint64(r.super.BlockSize)
	off := start
	for _, sizeWord := range blocks {
		want := bs
		if remaining < want {
			want = remaining
		}
		data, err := r.dataBlock(off, sizeWord, int(want))
		if err != nil {
			return nil, err
		}
		if uint64(len(data)) > want {
			data = data[:want]
		}
		bufs = append(bufs, bytes.NewReader(data))
		off += int64(sizeWord & 0xFFFFFF)
		remaining -= want
	}
	if remaining > 0 {
		if fragment == invalidFragment {
			return nil, xerrors.Errorf("inode %d: %d trailing bytes without a fragment", inode, remaining)
		}
		fe, err := r.fragmentEntryFor(fragment)
		if err != nil {
			return nil, err
		}
		data, err := r.dataBlock(int64(fe.StartBlock), fe.Size, int(r.super.BlockSize))
		if err != nil {
			return nil, err
		}
		if uint64(fragOff)+remaining > uint64(len(data)) {
			return nil, xerrors.Errorf("inode %d: fragment too small", inode)
		}
		bufs = append(bufs, bytes.NewReader(data[fragOff:uint64(fragOff)+remaining]))
	}
	return io.MultiReader(bufs...), nil
}

// FileNotFoundError reports a missing path component.
type FileNotFoundError struct {
	path string
}

func (e *FileNotFoundError) Error() string {
	return fmt.Sprintf("%q not found", e.path)
}

func (r *Reader) lookupComponent(parent Inode, component string) (Inode, error) {
	rfis, err := r.readdir(parent, false)
	if err != nil {
		return 0, err
	}
	for _, rfi := range rfis {
		if rfi.Name() == component {
			return rfi.Sys().(*FileInfo).Inode, nil
		}
	}
	return 0, &FileNotFoundError{path: component}
}

// LookupPath resolves path (relative to the root, no leading slash),
// following symlinks.
func (r *Reader) LookupPath(path string) (Inode, error) {
	inode := r.RootInode()
	parts := strings.Split(path, "/")
	for idx, part := range parts {
		var err error
		inode, err = r.lookupComponent(inode, part)
		if err != nil {
			if _, ok := err.(*FileNotFoundError); ok {
				return 0, &FileNotFoundError{path: path}
			}
			return 0, err
		}
		fi, err := r.Stat("", inode)
		if err != nil {
			return 0, xerrors.Errorf("Stat(%d): %v", inode, err)
		}
		if fi.Mode()&os.ModeSymlink > 0 {
			target, err := r.ReadLink(inode)
			if err != nil {
				return 0, err
			}
			// Resolve the target against the link's parent, then keep
			// walking the components that follow the link.
			joined := append(append([]string{}, parts[:idx]...), target)
			joined = append(joined, parts[idx+1:]...)
			return r.LookupPath(filepath.Clean(filepath.Join(joined...)))
		}
	}
	return inode, nil
}

// Readdir lists the entries of a directory inode.
func (r *Reader) Readdir(dirInode Inode) ([]os.FileInfo, error) {
	return r.readdir(dirInode, true)
}

func (r *Reader) readdir(dirInode Inode, stat bool) ([]os.FileInfo, error) {
	i, _, err := r.readInode(dirInode)
	if err != nil {
		return nil, err
	}
	var (
		startBlock int64
		fileSize   int64
		offset     int64
	)
	switch x := i.(type) {
	case dirInodeHeader:
		startBlock, fileSize, offset = int64(x.StartBlock), int64(x.FileSize), int64(x.Offset)
	case ldirInodeHeader:
		startBlock, fileSize, offset = int64(x.StartBlock), int64(x.FileSize), int64(x.Offset)
	default:
		return nil, fmt.Errorf("unknown directory inode type %T", i)
	}

	br, err := r.blockReader(r.super.DirectoryTableStart+startBlock, offset)
	if err != nil {
		return nil, err
	}

	// See https://elixir.bootlin.com/linux/v4.18.9/source/fs/squashfs/dir.c#L63
	limit := fileSize - int64(len(".")) - int64(len(".."))
	lr := io.LimitReader(br, limit)

	var fis []os.FileInfo
	for {
		var dh dirHeader
		if err := binary.Read(lr, binary.LittleEndian, &dh); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return fis, nil
			}
			return nil, err
		}
		dh.Count++ // SquashFS stores count-1

		for j := 0; j < int(dh.Count); j++ {
			var de dirEntry
			if err := binary.Read(lr, binary.LittleEndian, &de); err != nil {
				return nil, err
			}
			de.Size++ // SquashFS stores size-1
			name := make([]byte, de.Size)
			if _, err := io.ReadFull(lr, name); err != nil {
				return nil, err
			}
			child := Inode(int64(dh.StartBlock)<<16 | int64(de.Offset))
			var fi os.FileInfo
			if stat {
				var err error
				fi, err = r.Stat(string(name), child)
				if err != nil {
					return nil, err
				}
			} else {
				fi = &FileInfo{name: string(name), Inode: child}
			}
			fis = append(fis, fi)
		}
	}
}

// FileInfo implements os.FileInfo for SquashFS entries.
type FileInfo struct {
	name    string
	size    int64
	mode    os.FileMode
	modTime time.Time
	Inode   Inode
}

func (fi *FileInfo) Name() string       { return fi.name }
func (fi *FileInfo) Size() int64        { return fi.size }
func (fi *FileInfo) Mode() os.FileMode  { return fi.mode }
func (fi *FileInfo) IsDir() bool        { return fi.mode.IsDir() }
func (fi *FileInfo) ModTime() time.Time { return fi.modTime }
func (fi *FileInfo) Sys() interface{}   { return fi }
