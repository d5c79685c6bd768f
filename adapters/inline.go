package adapters

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/brettbedarf/memfs"
)

// InlineSource carries file content inside the source config, either as
// text or as base64 encoded bytes
type InlineSource struct {
	Text   *string `json:"text,omitempty"`
	Base64 *string `json:"base64,omitempty"`
}

type InlineProvider struct{}

func RegisterInline(r *Registry) {
	r.Register(InlineAdapterType, &InlineProvider{})
}

func (p *InlineProvider) NewAdapter(config []byte) (memfs.FileAdapter, error) {
	var src InlineSource
	if err := json.Unmarshal(config, &src); err != nil {
		return nil, err
	}
	switch {
	case src.Text != nil && src.Base64 != nil:
		return nil, errors.New("inline source takes either text or base64, not both")
	case src.Text != nil:
		return NewInlineAdapter([]byte(*src.Text)), nil
	case src.Base64 != nil:
		data, err := base64.StdEncoding.DecodeString(*src.Base64)
		if err != nil {
			return nil, err
		}
		return NewInlineAdapter(data), nil
	}
	return NewInlineAdapter(nil), nil
}

// InlineAdapter serves a fixed byte slice
type InlineAdapter struct {
	data    []byte
	created time.Time
}

func NewInlineAdapter(data []byte) *InlineAdapter {
	return &InlineAdapter{data: data, created: time.Now()}
}

func (a *InlineAdapter) Read(_ context.Context, offset int64, size int64, buf []byte) (int, error) {
	if offset >= int64(len(a.data)) {
		return 0, io.EOF
	}
	end := min(offset+size, int64(len(a.data)))
	return copy(buf, a.data[offset:end]), nil
}

func (a *InlineAdapter) GetMeta(context.Context) (*memfs.FileMetadata, error) {
	return &memfs.FileMetadata{
		Size:         uint64(len(a.data)),
		LastModified: &a.created,
	}, nil
}
