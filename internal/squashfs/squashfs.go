// Package squashfs implements a read-only SquashFS reader sufficient for
// walking AppImage payloads: gzip- and zstd-compressed metadata, data
// blocks and fragments.
package squashfs

const magic = 0x73717368

// Inode packs the metadata-block offset (upper 48 bits relative to the
// inode table) and the byte offset inside the uncompressed block (lower
// 16 bits).
type Inode int64

const metadataBlockSize = 8192

// compression ids from the superblock
const (
	compGzip = 1
	compLzma = 2
	compLzo  = 3
	compXz   = 4
	compLz4  = 5
	compZstd = 6
)

// inode types
const (
	dirType     = 1
	fileType    = 2
	symlinkType = 3
	ldirType    = 8
	lregType    = 9
	lsymlinkType = 10
)

const invalidFragment = 0xFFFFFFFF

type superblock struct {
	Magic               uint32
	Inodes              uint32
	MkfsTime            uint32
	BlockSize           uint32
	Fragments           uint32
	Compression         uint16
	BlockLog            uint16
	Flags               uint16
	NoIds               uint16
	Major               uint16
	Minor               uint16
	RootInode           Inode
	BytesUsed           int64
	IdTableStart        int64
	XattrIdTableStart   int64
	InodeTableStart     int64
	DirectoryTableStart int64
	FragmentTableStart  int64
	LookupTableStart    int64
}

type inodeHeader struct {
	InodeType   uint16
	Mode        uint16
	UID         uint16
	GID         uint16
	Mtime       uint32
	InodeNumber uint32
}

type regInodeHeader struct {
	inodeHeader

	StartBlock uint32
	Fragment   uint32
	Offset     uint32
	FileSize   uint32
	// Followed by a uint32 block-size list.
}

type lregInodeHeader struct {
	inodeHeader

	StartBlock uint64
	FileSize   uint64
	Sparse     uint64
	Nlink      uint32
	Fragment   uint32
	Offset     uint32
	Xattr      uint32
	// Followed by a uint32 block-size list.
}

type symlinkInodeHeader struct {
	inodeHeader

	Nlink       uint32
	SymlinkSize uint32
	// Followed by SymlinkSize bytes of target path.
}

type dirInodeHeader struct {
	inodeHeader

	StartBlock uint32
	Nlink      uint32
	FileSize   uint16
	Offset     uint16
	ParentInode uint32
}

type ldirInodeHeader struct {
	inodeHeader

	Nlink      uint32
	FileSize   uint32
	StartBlock uint32
	ParentInode uint32
	Icount     uint16
	Offset     uint16
	Xattr      uint32
}

type dirHeader struct {
	Count       uint32
	StartBlock  uint32
	InodeNumber uint32
}

type dirEntry struct {
	Offset      uint16
	InodeOffset int16
	EntryType   uint16
	Size        uint16
	// Followed by Size+1 bytes of name.
}

type fragmentEntry struct {
	StartBlock uint64
	Size       uint32
	Unused     uint32
}
