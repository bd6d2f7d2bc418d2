// Package registry holds the deployment-wide configuration record: the
// platform owner, the operator set authorized to trigger swaps, and the
// whitelist of mints pockets may trade.
//
// The record lives at a well-known derived address and is created exactly
// once via the guarded Initialize transition. All administrative mutations
// require the stored owner; violations are rejected synchronously with no
// partial state.
package registry

import (
	"time"

	"pocket-keeper/pkg/types"
)

// Registry is the singleton platform configuration record.
type Registry struct {
	Address      types.Address    `json:"address"`
	Owner        types.Address    `json:"owner"`
	Initialized  bool             `json:"initialized"`
	Operators    []types.Address  `json:"operators"`
	AllowedMints []types.MintInfo `json:"allowed_mints"`
}

// New returns an uninitialized registry record at the platform address.
func New() *Registry {
	return &Registry{Address: types.RegistryAddress()}
}

// Initialize sets the owner and operator set. It succeeds exactly once;
// any later attempt fails with ErrAlreadyInitialized and mutates nothing.
func (r *Registry) Initialize(caller types.Address, operators []types.Address) error {
	if r.Initialized {
		return types.ErrAlreadyInitialized
	}
	r.Owner = caller
	r.Operators = append([]types.Address(nil), operators...)
	r.Initialized = true
	return nil
}

// UpdateOperators atomically replaces the operator set. Owner only.
func (r *Registry) UpdateOperators(caller types.Address, operators []types.Address) error {
	if !r.Initialized {
		return types.ErrNotInitialized
	}
	if caller != r.Owner {
		return types.ErrOnlyOwner
	}
	r.Operators = append([]types.Address(nil), operators...)
	return nil
}

// AddAllowedMint whitelists a mint for pocket trading and records its
// platform vault address. Adding an existing mint is a no-op.
func (r *Registry) AddAllowedMint(caller, mint types.Address) error {
	if !r.Initialized {
		return types.ErrNotInitialized
	}
	if caller != r.Owner {
		return types.ErrOnlyOwner
	}
	if r.mintIndex(mint) >= 0 {
		return nil
	}
	r.AllowedMints = append(r.AllowedMints, types.MintInfo{
		Mint:    mint,
		Vault:   types.VaultAddress(r.Address, mint),
		Enabled: true,
	})
	return nil
}

// SetMintEnabled toggles a whitelisted mint. Owner only.
func (r *Registry) SetMintEnabled(caller, mint types.Address, enabled bool) error {
	if !r.Initialized {
		return types.ErrNotInitialized
	}
	if caller != r.Owner {
		return types.ErrOnlyOwner
	}
	i := r.mintIndex(mint)
	if i < 0 {
		return types.ErrMintNotAllowed
	}
	r.AllowedMints[i].Enabled = enabled
	return nil
}

// IsOperator reports whether addr is in the authorized operator set.
func (r *Registry) IsOperator(addr types.Address) bool {
	for _, op := range r.Operators {
		if op == addr {
			return true
		}
	}
	return false
}

// IsMintEnabled reports whether the mint is whitelisted and enabled.
func (r *Registry) IsMintEnabled(mint types.Address) bool {
	i := r.mintIndex(mint)
	return i >= 0 && r.AllowedMints[i].Enabled
}

func (r *Registry) mintIndex(mint types.Address) int {
	for i, m := range r.AllowedMints {
		if m.Mint == mint {
			return i
		}
	}
	return -1
}

// Store is the persistence dependency for the registry service.
type Store interface {
	SaveRegistry(r *Registry) error
	LoadRegistry() (*Registry, error)
}

// Service wraps the registry record with persistence and event emission.
type Service struct {
	store  Store
	events chan<- types.Event
}

// NewService creates the registry service. events may be nil.
func NewService(store Store, events chan<- types.Event) *Service {
	return &Service{store: store, events: events}
}

// Load returns the persisted registry, or a fresh uninitialized record if
// none exists yet.
func (s *Service) Load() (*Registry, error) {
	reg, err := s.store.LoadRegistry()
	if err != nil {
		return nil, err
	}
	if reg == nil {
		return New(), nil
	}
	return reg, nil
}

// Initialize performs the one-time platform bootstrap and persists it.
func (s *Service) Initialize(caller types.Address, operators []types.Address) (*Registry, error) {
	reg, err := s.Load()
	if err != nil {
		return nil, err
	}
	if err := reg.Initialize(caller, operators); err != nil {
		return nil, err
	}
	if err := s.store.SaveRegistry(reg); err != nil {
		return nil, err
	}
	s.emit(types.Event{
		Kind:      types.EventRegistryInitialized,
		Timestamp: time.Now().UTC(),
		Actor:     caller,
		Entity:    reg.Address,
		Data:      map[string]int{"operators": len(reg.Operators)},
	})
	return reg, nil
}

// UpdateOperators replaces the operator set and persists the record.
func (s *Service) UpdateOperators(caller types.Address, operators []types.Address) (*Registry, error) {
	reg, err := s.Load()
	if err != nil {
		return nil, err
	}
	if err := reg.UpdateOperators(caller, operators); err != nil {
		return nil, err
	}
	if err := s.store.SaveRegistry(reg); err != nil {
		return nil, err
	}
	s.emit(types.Event{
		Kind:      types.EventOperatorsUpdated,
		Timestamp: time.Now().UTC(),
		Actor:     caller,
		Entity:    reg.Address,
		Data:      map[string]int{"operators": len(reg.Operators)},
	})
	return reg, nil
}

// AllowMint whitelists a mint for pocket trading and persists the record.
func (s *Service) AllowMint(caller, mint types.Address) (*Registry, error) {
	reg, err := s.Load()
	if err != nil {
		return nil, err
	}
	if err := reg.AddAllowedMint(caller, mint); err != nil {
		return nil, err
	}
	if err := s.store.SaveRegistry(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// SetMintEnabled toggles a whitelisted mint and persists the record.
func (s *Service) SetMintEnabled(caller, mint types.Address, enabled bool) (*Registry, error) {
	reg, err := s.Load()
	if err != nil {
		return nil, err
	}
	if err := reg.SetMintEnabled(caller, mint, enabled); err != nil {
		return nil, err
	}
	if err := s.store.SaveRegistry(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// Policy adapts the persisted registry to the operator and mint checks the
// executor and pocket service perform per call. Reads always see the latest
// persisted record.
type Policy struct {
	svc *Service
}

// NewPolicy creates a read-through policy over the registry service.
func NewPolicy(svc *Service) *Policy {
	return &Policy{svc: svc}
}

// IsOperator reports whether addr is in the current operator set.
func (p *Policy) IsOperator(addr types.Address) bool {
	reg, err := p.svc.Load()
	if err != nil {
		return false
	}
	return reg.IsOperator(addr)
}

// IsMintEnabled reports whether the mint is currently whitelisted and enabled.
func (p *Policy) IsMintEnabled(mint types.Address) bool {
	reg, err := p.svc.Load()
	if err != nil {
		return false
	}
	return reg.IsMintEnabled(mint)
}

func (s *Service) emit(ev types.Event) {
	if s.events == nil {
		return
	}
	select {
	case s.events <- ev:
	default: // never block a state transition on a slow consumer
	}
}
