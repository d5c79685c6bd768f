package adapters

// NOTE: If build bloat becomes a concern for unused adapters
// look into build tags i.e. +build !nohttp
// or nested packages with init() and main app can include just importing
// import (_ github.com/.../adapters/http)

type BuiltInAdapterType = string

const (
	HTTPAdapterType   BuiltInAdapterType = "http"
	InlineAdapterType BuiltInAdapterType = "inline"
)

// RegisterBuiltins registers all built-in adapters with r by default
// or only the specific ones if keys are provided
func RegisterBuiltins(r *Registry, adapters ...BuiltInAdapterType) {
	if len(adapters) == 0 {
		// Include all built-in adapters here when adding implementations
		adapters = append(adapters, HTTPAdapterType, InlineAdapterType)
	}

	for _, key := range adapters {
		switch key {
		case HTTPAdapterType:
			RegisterHTTP(r)
		case InlineAdapterType:
			RegisterInline(r)
		}
	}
}
