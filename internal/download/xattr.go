package download

import (
	"encoding/json"

	"golang.org/x/sys/unix"
)

// resumeKey is the extended attribute holding the download checkpoint.
const resumeKey = "user.soar.resume"

// ResumeInfo is the checkpoint written alongside a partially downloaded
// file.
type ResumeInfo struct {
	Downloaded   uint64 `json:"downloaded"`
	Total        uint64 `json:"total"`
	ETag         string `json:"etag,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
}

// readResume returns the checkpoint stored on path, or nil when absent or
// unreadable.
func readResume(path string) *ResumeInfo {
	sz, err := unix.Getxattr(path, resumeKey, nil)
	if err != nil || sz <= 0 {
		return nil
	}
	buf := make([]byte, sz)
	n, err := unix.Getxattr(path, resumeKey, buf)
	if err != nil {
		return nil
	}
	var info ResumeInfo
	if err := json.Unmarshal(buf[:n], &info); err != nil {
		return nil
	}
	return &info
}

func writeResume(path string, info *ResumeInfo) error {
	b, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return unix.Setxattr(path, resumeKey, b, 0)
}

func removeResume(path string) {
	// Filesystems without xattr support fail here; the checkpoint is an
	// optimization, not a correctness requirement.
	unix.Removexattr(path, resumeKey)
}
