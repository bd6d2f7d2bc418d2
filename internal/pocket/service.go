package pocket

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"pocket-keeper/pkg/types"
)

// TokenCustody is the external token-custody collaborator. Vault creation
// is idempotent; balances are authoritative on the custody side.
type TokenCustody interface {
	// EnsureVault creates the custodial vault for (mint, authority) if it
	// does not exist. created is false when the vault was already present.
	EnsureVault(ctx context.Context, mint, authority types.Address) (vault types.Address, created bool, err error)
	BalanceOf(ctx context.Context, vault types.Address) (uint64, error)
	// Transfer moves amount of mint between two custody accounts.
	Transfer(ctx context.Context, mint, from, to types.Address, amount uint64) error
	// CloseAccount releases a custody account and refunds its rent deposit
	// to destination.
	CloseAccount(ctx context.Context, account, destination types.Address) error
}

// Store is the persistence dependency for pocket records.
type Store interface {
	SavePocket(p *Pocket) error
	LoadPocket(addr types.Address) (*Pocket, error) // nil, nil when absent
	ListPockets() ([]*Pocket, error)
	DeletePocket(addr types.Address) error
}

// MintPolicy gates which mints pockets may trade. Implemented by the
// registry.
type MintPolicy interface {
	IsMintEnabled(mint types.Address) bool
}

// Service implements the owner-facing pocket operations: create, deposit,
// withdraw, status updates, and terminal account cleanup.
type Service struct {
	store   Store
	custody TokenCustody
	policy  MintPolicy
	events  chan<- types.Event
	logger  *slog.Logger
}

// NewService wires the pocket service. events may be nil.
func NewService(store Store, custody TokenCustody, policy MintPolicy, events chan<- types.Event, logger *slog.Logger) *Service {
	return &Service{
		store:   store,
		custody: custody,
		policy:  policy,
		events:  events,
		logger:  logger.With("component", "pocket"),
	}
}

// Get loads one pocket record.
func (s *Service) Get(addr types.Address) (*Pocket, error) {
	p, err := s.store.LoadPocket(addr)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, types.ErrPocketNotFound
	}
	return p, nil
}

// List returns all pocket records.
func (s *Service) List() ([]*Pocket, error) {
	return s.store.ListPockets()
}

// Create registers a new pocket and bootstraps its two vaults. The vault
// bootstrap is idempotent: pre-existing vaults are reused, never
// re-allocated.
func (s *Service) Create(ctx context.Context, params CreateParams) (*Pocket, error) {
	if !s.policy.IsMintEnabled(params.BaseMint) {
		return nil, fmt.Errorf("base mint %s: %w", params.BaseMint.Hex(), types.ErrMintNotAllowed)
	}
	if !s.policy.IsMintEnabled(params.QuoteMint) {
		return nil, fmt.Errorf("quote mint %s: %w", params.QuoteMint.Hex(), types.ErrMintNotAllowed)
	}

	p, err := New(params)
	if err != nil {
		return nil, err
	}
	if existing, err := s.store.LoadPocket(p.Address); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, fmt.Errorf("pocket %q: %w", p.ID, types.ErrDuplicateID)
	}

	for _, mint := range []types.Address{p.BaseMint, p.QuoteMint} {
		vault, created, err := s.custody.EnsureVault(ctx, mint, p.Address)
		if err != nil {
			return nil, fmt.Errorf("ensure vault: %w", err)
		}
		if created {
			s.emit(types.Event{
				Kind:      types.EventVaultCreated,
				Timestamp: time.Now().UTC(),
				Actor:     p.Owner,
				Entity:    vault,
				Data:      types.VaultCreatedData{Mint: mint, Authority: p.Address, Vault: vault},
			})
		}
	}

	if err := s.store.SavePocket(p); err != nil {
		return nil, err
	}
	s.logger.Info("pocket created",
		"pocket", p.Address.Hex(), "id", p.ID, "side", p.Side, "market", p.Market.Hex())
	s.emit(types.Event{
		Kind:      types.EventPocketCreated,
		Timestamp: time.Now().UTC(),
		Actor:     p.Owner,
		Entity:    p.Address,
		Data:      types.PocketCreatedData{ID: p.ID, Name: p.Name, Market: p.Market},
	})
	return p, nil
}

// Deposit moves amount from the owner's external token account into the
// pocket's vault for the given side, then credits the accounting counters.
func (s *Service) Deposit(ctx context.Context, caller, addr types.Address, side types.VaultSide, amount uint64) (*Pocket, error) {
	p, err := s.Get(addr)
	if err != nil {
		return nil, err
	}
	if caller != p.Owner {
		return nil, types.ErrOnlyOwner
	}

	// Guard first so a rejected deposit moves no funds.
	mint, err := p.ApplyDeposit(side, amount)
	if err != nil {
		return nil, err
	}
	vault := p.BaseVault
	if side == types.VaultQuote {
		vault = p.QuoteVault
	}
	if err := s.custody.Transfer(ctx, mint, caller, vault, amount); err != nil {
		return nil, fmt.Errorf("deposit transfer: %w", err)
	}
	if err := s.store.SavePocket(p); err != nil {
		return nil, err
	}
	s.emit(types.Event{
		Kind:      types.EventPocketDeposited,
		Timestamp: time.Now().UTC(),
		Actor:     caller,
		Entity:    p.Address,
		Data:      types.DepositedData{Mint: mint, Amount: amount},
	})
	return p, nil
}

// Withdraw drains both vaults back to the owner and transitions the pocket
// to Withdrawn. Amounts are read from the authoritative vault balances.
func (s *Service) Withdraw(ctx context.Context, caller, addr types.Address) (*Pocket, error) {
	p, err := s.Get(addr)
	if err != nil {
		return nil, err
	}
	if caller != p.Owner {
		return nil, types.ErrOnlyOwner
	}
	if p.Status != types.StatusClosed {
		return nil, fmt.Errorf("withdraw while %s: %w", p.Status, types.ErrNotClosed)
	}

	baseAmount, err := s.custody.BalanceOf(ctx, p.BaseVault)
	if err != nil {
		return nil, fmt.Errorf("base vault balance: %w", err)
	}
	quoteAmount, err := s.custody.BalanceOf(ctx, p.QuoteVault)
	if err != nil {
		return nil, fmt.Errorf("quote vault balance: %w", err)
	}

	if baseAmount > 0 {
		if err := s.custody.Transfer(ctx, p.BaseMint, p.BaseVault, caller, baseAmount); err != nil {
			return nil, fmt.Errorf("withdraw base: %w", err)
		}
	}
	if quoteAmount > 0 {
		if err := s.custody.Transfer(ctx, p.QuoteMint, p.QuoteVault, caller, quoteAmount); err != nil {
			return nil, fmt.Errorf("withdraw quote: %w", err)
		}
	}

	if err := p.ApplyWithdraw(); err != nil {
		return nil, err
	}
	if err := s.store.SavePocket(p); err != nil {
		return nil, err
	}
	s.logger.Info("pocket withdrawn",
		"pocket", p.Address.Hex(), "base_amount", baseAmount, "quote_amount", quoteAmount)
	s.emit(types.Event{
		Kind:      types.EventPocketWithdrawn,
		Timestamp: time.Now().UTC(),
		Actor:     caller,
		Entity:    p.Address,
		Data: types.WithdrawnData{
			BaseMint:    p.BaseMint,
			BaseAmount:  baseAmount,
			QuoteMint:   p.QuoteMint,
			QuoteAmount: quoteAmount,
		},
	})
	return p, nil
}

// UpdateStatus applies an owner-requested pause/resume/close transition.
func (s *Service) UpdateStatus(ctx context.Context, caller, addr types.Address, next types.PocketStatus) (*Pocket, error) {
	p, err := s.Get(addr)
	if err != nil {
		return nil, err
	}
	if caller != p.Owner {
		return nil, types.ErrOnlyOwner
	}
	prev := p.Status
	if err := p.SetStatus(next); err != nil {
		return nil, err
	}
	if err := s.store.SavePocket(p); err != nil {
		return nil, err
	}
	s.emit(types.Event{
		Kind:      types.EventPocketStatusChanged,
		Timestamp: time.Now().UTC(),
		Actor:     caller,
		Entity:    p.Address,
		Data:      types.StatusChangedData{From: prev, To: next},
	})
	return p, nil
}

// ForceClose transitions a pocket to Closed on the evaluator's verdict.
// Used by the executor; not owner-gated.
func (s *Service) ForceClose(ctx context.Context, addr types.Address, reason string) (*Pocket, error) {
	p, err := s.Get(addr)
	if err != nil {
		return nil, err
	}
	prev := p.Status
	if !p.ForceClose() {
		return p, nil
	}
	if err := s.store.SavePocket(p); err != nil {
		return nil, err
	}
	s.logger.Info("pocket auto-closed", "pocket", p.Address.Hex(), "reason", reason)
	s.emit(types.Event{
		Kind:      types.EventPocketStatusChanged,
		Timestamp: time.Now().UTC(),
		Actor:     p.Address, // system-initiated
		Entity:    p.Address,
		Data:      types.StatusChangedData{From: prev, To: types.StatusClosed, Reason: reason},
	})
	return p, nil
}

// Save persists a pocket mutated elsewhere (the executor after a confirmed
// swap).
func (s *Service) Save(p *Pocket) error {
	return s.store.SavePocket(p)
}

// CloseAccounts reclaims the vault and pocket records once the pocket is
// fully drained. Irreversible.
func (s *Service) CloseAccounts(ctx context.Context, caller, addr types.Address) error {
	p, err := s.Get(addr)
	if err != nil {
		return err
	}
	if caller != p.Owner {
		return types.ErrOnlyOwner
	}
	if !p.CanCloseAccounts() {
		return fmt.Errorf("close accounts while %s: %w", p.Status, types.ErrNotWithdrawn)
	}

	for _, vault := range []types.Address{p.BaseVault, p.QuoteVault} {
		if err := s.custody.CloseAccount(ctx, vault, caller); err != nil {
			return fmt.Errorf("close vault: %w", err)
		}
	}
	if err := s.store.DeletePocket(addr); err != nil {
		return err
	}
	s.logger.Info("pocket accounts closed", "pocket", addr.Hex())
	s.emit(types.Event{
		Kind:      types.EventPocketAccountsClosed,
		Timestamp: time.Now().UTC(),
		Actor:     caller,
		Entity:    addr,
	})
	return nil
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
