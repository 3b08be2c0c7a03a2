package provider

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// GatewayConfig is what a gateway factory needs to build a client
type GatewayConfig struct {
	BaseURL string
	Timeout time.Duration
	// Token resolves the API token on every call so settings changes apply without restart
	Token func() (string, error)
}

// GatewayFactory builds a gateway from its configuration
type GatewayFactory func(cfg GatewayConfig) (Gateway, error)

// GatewayRegistry manages all payment gateway implementations
type GatewayRegistry struct {
	gateways map[string]GatewayFactory
	mu       sync.RWMutex
}

// NewGatewayRegistry creates a new gateway registry
func NewGatewayRegistry() *GatewayRegistry {
	return &GatewayRegistry{
		gateways: make(map[string]GatewayFactory),
	}
}

// Register adds a gateway factory to the registry
func (r *GatewayRegistry) Register(name string, factory GatewayFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gateways[name] = factory
}

// Get retrieves a gateway factory by name
func (r *GatewayRegistry) Get(name string) (GatewayFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, exists := r.gateways[name]
	if !exists {
		return nil, fmt.Errorf("payment gateway '%s' is not registered", name)
	}

	return factory, nil
}

// CreateGateway creates a new instance of a gateway
func (r *GatewayRegistry) CreateGateway(name string, cfg GatewayConfig) (Gateway, error) {
	factory, err := r.Get(name)
	if err != nil {
		return nil, err
	}

	return factory(cfg)
}

// GetAvailableGateways returns the sorted names of all registered gateways
func (r *GatewayRegistry) GetAvailableGateways() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.gateways))
	for name := range r.gateways {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// DefaultRegistry is the global default gateway registry
var DefaultRegistry = NewGatewayRegistry()

// Register registers a gateway with the default registry
func Register(name string, factory GatewayFactory) {
	DefaultRegistry.Register(name, factory)
}

// Get retrieves a gateway factory from the default registry
func Get(name string) (GatewayFactory, error) {
	return DefaultRegistry.Get(name)
}

// CreateGateway creates a gateway instance from the default registry
func CreateGateway(name string, cfg GatewayConfig) (Gateway, error) {
	return DefaultRegistry.CreateGateway(name, cfg)
}

// GetAvailableGateways lists the gateways of the default registry
func GetAvailableGateways() []string {
	return DefaultRegistry.GetAvailableGateways()
}
