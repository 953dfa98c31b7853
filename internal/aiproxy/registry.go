package aiproxy

import "fmt"

// ProviderFactory builds a Provider instance, mirroring the teacher's
// llm.ProviderFactory shape.
type ProviderFactory func() (Provider, error)

var providers = make(map[string]ProviderFactory)

// RegisterProvider registers a provider factory under a name. Concrete
// providers call this from an init() in their own package, exactly as the
// teacher's llm/gemini package does.
func RegisterProvider(name string, factory ProviderFactory) {
	providers[name] = factory
}

// NewProvider builds the named provider.
func NewProvider(name string) (Provider, error) {
	factory, ok := providers[name]
	if !ok {
		return nil, fmt.Errorf("aiproxy: unsupported provider %q", name)
	}
	return factory()
}
