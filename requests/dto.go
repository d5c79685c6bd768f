package requests

import (
	"time"

	"github.com/brettbedarf/memfs"
)

// NodeRequestDTO is the JSON representation of [memfs.NodeRequest]
type NodeRequestDTO struct {
	Path     string                      `json:"path"`
	Type     memfs.NodeCreateRequestType `json:"type"`
	UUID     *string                     `json:"uuid,omitempty"`  // Optional UUID to enable linking at request time
	Size     *uint64                     `json:"size,omitempty"`  // Optional size in bytes if known
	Atime    *time.Time                  `json:"atime,omitempty"` // Last Accessed at (Default current time)
	Mtime    *time.Time                  `json:"mtime,omitempty"` // Last Modified at (Default current time)
	Ctime    *time.Time                  `json:"ctime,omitempty"` // Created at (Default current time)
	Perms    *uint32                     `json:"perms,omitempty"` // i.e. 0755, defaults to the configured permissions
	OwnerUID *uint32                     `json:"owner_uid,omitempty"`
	OwnerGID *uint32                     `json:"owner_gid,omitempty"`
	// Blksize is the preferred size for file system operations.
	Blksize *uint32 `json:"blksize,omitempty"`
}

// FileRequestDTO is the JSON representation of [memfs.FileCreateRequest]
type FileRequestDTO struct {
	NodeRequestDTO
	Sources []SourceConfigDTO `json:"sources"`
}

type DirRequestDTO struct {
	NodeRequestDTO
}

// SymlinkRequestDTO is the JSON representation of [memfs.SymlinkCreateRequest]
type SymlinkRequestDTO struct {
	NodeRequestDTO
	Target string `json:"target"`
}

// HardlinkRequestDTO is the JSON representation of [memfs.HardlinkCreateRequest].
// One of TargetUUID or TargetPath names the linked node.
type HardlinkRequestDTO struct {
	NodeRequestDTO
	TargetPath string `json:"target_path,omitempty"`
	TargetUUID string `json:"target_uuid,omitempty"`
}

// SourceConfigDTO is the JSON representation of static [memfs.FileSource] fields
//
// Additional fields depend on the "type" value:
//
// Ex. For type="http" (see [adapters.HTTPSource]):
//
//	URL     string            `json:"url"`
//	Method  *string           `json:"method,omitempty"`
//	Headers map\[string\]string `json:"headers,omitempty"`
//
// Ex. For type="inline" (see [adapters.InlineSource]):
//
//	Text   *string `json:"text,omitempty"`
//	Base64 *string `json:"base64,omitempty"`
//
// See adapters package for built-ins complete field specifications.
type SourceConfigDTO struct {
	Type     string `json:"type"`
	Priority *int   `json:"priority,omitempty"` // Lower number = higher priority, defaults to array index
}
