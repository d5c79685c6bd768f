package adapters

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/brettbedarf/memfs"
	"github.com/brettbedarf/memfs/internal/util"
	"github.com/puzpuzpuz/xsync/v4"
)

var (
	ErrUnknownAdapterType = errors.New("no provider registered for adapter type")
	ErrMissingAdapterType = errors.New("source config has no \"type\" field")
)

// Registry ties providers to the "type" key of a source config. A Registry
// is itself an [memfs.AdapterProvider] dispatching on that key, so it can
// back any [memfs.FileSource].
type Registry struct {
	providers *xsync.Map[string, memfs.AdapterProvider]
}

func NewRegistry() *Registry {
	return &Registry{providers: xsync.NewMap[string, memfs.AdapterProvider]()}
}

// Register ties provider to adapterType and should be called for each
// adapter type during app init. The first registration of a type wins.
func (r *Registry) Register(adapterType string, provider memfs.AdapterProvider) {
	if _, loaded := r.providers.LoadOrStore(adapterType, provider); loaded {
		logger := util.GetLogger("Adapters")
		logger.Warn().Str("type", adapterType).Msg("Provider already registered, ignoring")
	}
}

// GetProvider returns the provider registered for adapterType
func (r *Registry) GetProvider(adapterType string) (memfs.AdapterProvider, error) {
	p, ok := r.providers.Load(adapterType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAdapterType, adapterType)
	}
	return p, nil
}

// NewAdapter picks the provider based on the config's "type" field and lets
// it build the adapter from the same raw config.
func (r *Registry) NewAdapter(config []byte) (memfs.FileAdapter, error) {
	var meta struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(config, &meta); err != nil {
		return nil, fmt.Errorf("invalid source config: %w", err)
	}
	if meta.Type == "" {
		return nil, ErrMissingAdapterType
	}
	p, err := r.GetProvider(meta.Type)
	if err != nil {
		return nil, err
	}
	return p.NewAdapter(config)
}

var _ memfs.AdapterProvider = (*Registry)(nil)
