package adapter

import (
	"sort"
	"sync"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/rs/zerolog"

	"github.com/dexponent/farmd/internal/logger"
	"github.com/dexponent/farmd/internal/types"
)

// Registry maps (namespace, name) to adapters. Registration is an admin-only upsert.
type Registry struct {
	mu       sync.RWMutex
	admin    sdk.AccAddress
	adapters map[string]map[string]Adapter
	log      zerolog.Logger
}

func NewRegistry(admin sdk.AccAddress) *Registry {
	return &Registry{
		admin:    admin,
		adapters: make(map[string]map[string]Adapter),
		log:      logger.GetForComponent("adapter_registry"),
	}
}

// RegisterAdapter binds name to a within namespace, replacing any previous binding.
func (r *Registry) RegisterAdapter(caller sdk.AccAddress, namespace, name string, a Adapter) error {
	if !caller.Equals(r.admin) {
		return types.ErrUnauthorized.Wrapf("%s is not the registry admin", caller)
	}
	if namespace == "" || name == "" || a == nil {
		return types.ErrInvalidConfig.Wrap("namespace, name and adapter are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	ns, ok := r.adapters[namespace]
	if !ok {
		ns = make(map[string]Adapter)
		r.adapters[namespace] = ns
	}
	_, replaced := ns[name]
	ns[name] = a

	r.log.Info().Str("namespace", namespace).Str("name", name).
		Str("address", a.Address().String()).Bool("replaced", replaced).Msg("adapter registered")
	return nil
}

// Resolve looks up an adapter.
func (r *Registry) Resolve(namespace, name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[namespace][name]
	if !ok {
		return nil, types.ErrUnknownAdapter.Wrapf("%s/%s", namespace, name)
	}
	return a, nil
}

// Names lists the registered names in namespace, sorted.
func (r *Registry) Names(namespace string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters[namespace]))
	for n := range r.adapters[namespace] {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
