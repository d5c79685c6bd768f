package requests

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/brettbedarf/memfs"
	"github.com/brettbedarf/memfs/adapters"
	"github.com/brettbedarf/memfs/filesystem"
	"github.com/brettbedarf/memfs/internal/util"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatOf picks the format from a file extension, defaulting to JSON
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// NodeSet holds decoded node requests grouped by type, each group in file
// order
type NodeSet struct {
	Dirs      []*memfs.DirCreateRequest
	Files     []*memfs.FileCreateRequest
	Symlinks  []*memfs.SymlinkCreateRequest
	Hardlinks []*memfs.HardlinkCreateRequest
}

func (s *NodeSet) Len() int {
	return len(s.Dirs) + len(s.Files) + len(s.Symlinks) + len(s.Hardlinks)
}

// NodeAdder creates the nodes described by requests
type NodeAdder interface {
	AddDirNode(req *memfs.DirCreateRequest) error
	AddFileNode(req *memfs.FileCreateRequest) error
	AddSymlinkNode(req *memfs.SymlinkCreateRequest) error
	AddHardlinkNode(req *memfs.HardlinkCreateRequest) error
}

// FileSystemAdder adds nodes to fs, dropping the created files
func FileSystemAdder(fs *filesystem.FileSystem) NodeAdder {
	return fsAdder{fs}
}

type fsAdder struct {
	fs *filesystem.FileSystem
}

func (a fsAdder) AddDirNode(req *memfs.DirCreateRequest) error {
	_, err := a.fs.AddDirNode(req)
	return err
}

func (a fsAdder) AddFileNode(req *memfs.FileCreateRequest) error {
	_, err := a.fs.AddFileNode(req)
	return err
}

func (a fsAdder) AddSymlinkNode(req *memfs.SymlinkCreateRequest) error {
	_, err := a.fs.AddSymlinkNode(req)
	return err
}

func (a fsAdder) AddHardlinkNode(req *memfs.HardlinkCreateRequest) error {
	_, err := a.fs.AddHardlinkNode(req)
	return err
}

// ApplyTo adds directories, then files, then symbolic links and finally
// hard links, so link targets named by path or UUID exist first. It keeps
// going after a failed node and returns all failures joined.
func (s *NodeSet) ApplyTo(adder NodeAdder) error {
	logger := util.GetLogger("Requests.Apply")

	var errs []error
	record := func(path string, err error) {
		if err != nil {
			logger.Error().Err(err).Str("path", path).Msg("Failed to add node")
			errs = append(errs, err)
		}
	}
	for _, r := range s.Dirs {
		record(r.Path, adder.AddDirNode(r))
	}
	for _, r := range s.Files {
		record(r.Path, adder.AddFileNode(r))
	}
	for _, r := range s.Symlinks {
		record(r.Path, adder.AddSymlinkNode(r))
	}
	for _, r := range s.Hardlinks {
		record(r.Path, adder.AddHardlinkNode(r))
	}
	logger.Info().Int("nodes", s.Len()).Int("failed", len(errs)).Msg("Applied node requests")
	return errors.Join(errs...)
}

// UnmarshalNodes decodes a list of node requests in the given format
func UnmarshalNodes(data []byte, format Format, registry *adapters.Registry) (*NodeSet, error) {
	raw, err := splitNodes(data, format)
	if err != nil {
		return nil, err
	}

	set := &NodeSet{}
	for i, node := range raw {
		if err := set.add(node, registry); err != nil {
			return nil, fmt.Errorf("node %d: %w", i, err)
		}
	}
	return set, nil
}

// LoadNodesFile reads and decodes a node request file, picking the format
// from its extension
func LoadNodesFile(path string, registry *adapters.Registry) (*NodeSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read nodes file %s: %w", path, err)
	}
	set, err := UnmarshalNodes(data, FormatOf(path), registry)
	if err != nil {
		return nil, fmt.Errorf("failed to parse nodes file %s: %w", path, err)
	}
	return set, nil
}

// splitNodes returns each node of the list as raw JSON. YAML nodes are
// re-encoded as JSON so both formats share one decoding path.
func splitNodes(data []byte, format Format) ([]json.RawMessage, error) {
	var raw []json.RawMessage
	switch format {
	case FormatYAML:
		var nodes []map[string]any
		if err := yaml.Unmarshal(data, &nodes); err != nil {
			return nil, err
		}
		for _, n := range nodes {
			b, err := json.Marshal(n)
			if err != nil {
				return nil, err
			}
			raw = append(raw, b)
		}
	case FormatJSON:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
	return raw, nil
}

func (s *NodeSet) add(data []byte, registry *adapters.Registry) error {
	typ, err := GetNodeType(data)
	if err != nil {
		return err
	}
	switch typ {
	case memfs.FileNodeType:
		r, err := UnmarshalFileRequest(data, registry)
		if err != nil {
			return err
		}
		s.Files = append(s.Files, r)
	case memfs.DirNodeType:
		r, err := UnmarshalDirRequest(data)
		if err != nil {
			return err
		}
		s.Dirs = append(s.Dirs, r)
	case memfs.SymlinkNodeType:
		r, err := UnmarshalSymlinkRequest(data)
		if err != nil {
			return err
		}
		s.Symlinks = append(s.Symlinks, r)
	case memfs.HardlinkNodeType:
		r, err := UnmarshalHardlinkRequest(data)
		if err != nil {
			return err
		}
		s.Hardlinks = append(s.Hardlinks, r)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownNodeType, typ)
	}
	return nil
}
