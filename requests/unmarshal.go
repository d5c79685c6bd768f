package requests

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/brettbedarf/memfs"
	"github.com/brettbedarf/memfs/adapters"
)

var ErrUnknownNodeType = errors.New("unknown node type")

// GetNodeType extracts the node type from JSON without full unmarshaling
func GetNodeType(data []byte) (memfs.NodeCreateRequestType, error) {
	var meta struct {
		Type memfs.NodeCreateRequestType `json:"type"`
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return "", err
	}
	return meta.Type, nil
}

// UnmarshalFileRequest handles file-specific unmarshaling with sources.
// Source types are resolved against registry.
func UnmarshalFileRequest(data []byte, registry *adapters.Registry) (*memfs.FileCreateRequest, error) {
	var dto FileRequestDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, err
	}

	// Convert DTO to core type with defaults applied
	coreNode := convertNodeDTO(dto.NodeRequestDTO)

	sources, err := unmarshalSources(dto.Sources, data, registry)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", dto.Path, err)
	}

	return &memfs.FileCreateRequest{
		NodeRequest: coreNode,
		Sources:     sources,
	}, nil
}

// UnmarshalDirRequest handles explicit directory unmarshaling (no sources)
func UnmarshalDirRequest(data []byte) (*memfs.DirCreateRequest, error) {
	var dto DirRequestDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, err
	}

	return &memfs.DirCreateRequest{
		NodeRequest: convertNodeDTO(dto.NodeRequestDTO),
	}, nil
}

func UnmarshalSymlinkRequest(data []byte) (*memfs.SymlinkCreateRequest, error) {
	var dto SymlinkRequestDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, err
	}
	if dto.Target == "" {
		return nil, fmt.Errorf("%s: symlink target is required", dto.Path)
	}

	return &memfs.SymlinkCreateRequest{
		NodeRequest: convertNodeDTO(dto.NodeRequestDTO),
		Target:      dto.Target,
	}, nil
}

func UnmarshalHardlinkRequest(data []byte) (*memfs.HardlinkCreateRequest, error) {
	var dto HardlinkRequestDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, err
	}
	if dto.TargetPath == "" && dto.TargetUUID == "" {
		return nil, fmt.Errorf("%s: hardlink needs target_path or target_uuid", dto.Path)
	}

	return &memfs.HardlinkCreateRequest{
		NodeRequest: convertNodeDTO(dto.NodeRequestDTO),
		TargetPath:  dto.TargetPath,
		TargetUUID:  dto.TargetUUID,
	}, nil
}

// Helper function to process sources array
func unmarshalSources(sourceDTOs []SourceConfigDTO, rawData []byte, registry *adapters.Registry) ([]memfs.FileSource, error) {
	// Extract raw sources array from JSON for adapter registry
	var rawMessage struct {
		Sources []json.RawMessage `json:"sources"`
	}
	if err := json.Unmarshal(rawData, &rawMessage); err != nil {
		return nil, err
	}

	sources := make([]memfs.FileSource, 0, len(rawMessage.Sources))
	for i, rawSource := range rawMessage.Sources {
		provider, err := registry.GetProvider(sourceDTOs[i].Type)
		if err != nil {
			return nil, fmt.Errorf("source %d: %w", i, err)
		}

		// Apply priority default
		priority := i
		if sourceDTOs[i].Priority != nil {
			priority = *sourceDTOs[i].Priority
		}

		sources = append(sources, memfs.FileSource{
			Provider: provider,
			Config:   rawSource,
			Priority: priority,
		})
	}

	return sources, nil
}

// Conversion logic with defaults in the unmarshaling layer. Perms, owner and
// blksize left unset fall back to the filesystem's configured defaults.
func convertNodeDTO(dto NodeRequestDTO) memfs.NodeRequest {
	now := time.Now()

	return memfs.NodeRequest{
		Path:     dto.Path,
		Type:     dto.Type,
		UUID:     valueOrDefault(dto.UUID, uuid.New().String()),
		Size:     valueOrDefault(dto.Size, 0),
		Atime:    valueOrDefault(dto.Atime, now),
		Mtime:    valueOrDefault(dto.Mtime, now),
		Ctime:    valueOrDefault(dto.Ctime, now),
		Perms:    valueOrDefault(dto.Perms, 0),
		OwnerUID: valueOrDefault(dto.OwnerUID, 0),
		OwnerGID: valueOrDefault(dto.OwnerGID, 0),
		Blksize:  valueOrDefault(dto.Blksize, 0),
	}
}

func valueOrDefault[T any](ptr *T, defaultVal T) T {
	if ptr != nil {
		return *ptr
	}
	return defaultVal
}
