package api

import (
	"time"

	"pocket-keeper/internal/pocket"
	"pocket-keeper/internal/registry"
	"pocket-keeper/pkg/types"
)

// Snapshot aggregates registry and pocket state for the snapshot endpoint
// and the initial websocket frame.
type Snapshot struct {
	Timestamp time.Time        `json:"timestamp"`
	Operator  types.Address    `json:"operator"`
	Registry  RegistrySummary  `json:"registry"`
	Pockets   []*pocket.Pocket `json:"pockets"`
}

// RegistrySummary is the registry record as served over the API.
type RegistrySummary struct {
	Address      types.Address    `json:"address"`
	Owner        types.Address    `json:"owner"`
	Initialized  bool             `json:"initialized"`
	Operators    []types.Address  `json:"operators"`
	AllowedMints []types.MintInfo `json:"allowed_mints"`
}

// BuildSnapshot reads current state from the services.
func BuildSnapshot(reg *registry.Service, pockets *pocket.Service, operator types.Address) (Snapshot, error) {
	r, err := reg.Load()
	if err != nil {
		return Snapshot{}, err
	}
	ps, err := pockets.List()
	if err != nil {
		return Snapshot{}, err
	}
	if ps == nil {
		ps = []*pocket.Pocket{}
	}

	return Snapshot{
		Timestamp: time.Now().UTC(),
		Operator:  operator,
		Registry: RegistrySummary{
			Address:      r.Address,
			Owner:        r.Owner,
			Initialized:  r.Initialized,
			Operators:    r.Operators,
			AllowedMints: r.AllowedMints,
		},
		Pockets: ps,
	}, nil
}
