package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"pocket-keeper/internal/condition"
	"pocket-keeper/internal/config"
	"pocket-keeper/internal/pocket"
	"pocket-keeper/internal/registry"
	"pocket-keeper/pkg/types"
)

// Keeper is the engine surface the API depends on.
type Keeper interface {
	Registry() *registry.Service
	Pockets() *pocket.Service
	Events() <-chan types.Event
	Trigger(ctx context.Context, addr types.Address) (*types.SwapResult, condition.Decision, error)
	Operator() types.Address
}

// Handlers holds all HTTP handler dependencies.
type Handlers struct {
	keeper Keeper
	cfg    config.APIConfig
	hub    *Hub
	logger *slog.Logger
}

// NewHandlers creates a new handlers instance.
func NewHandlers(keeper Keeper, cfg config.APIConfig, hub *Hub, logger *slog.Logger) *Handlers {
	return &Handlers{
		keeper: keeper,
		cfg:    cfg,
		hub:    hub,
		logger: logger.With("component", "api-handlers"),
	}
}

// HandleHealth returns a simple health check response.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleSnapshot returns the current registry and pocket state.
func (h *Handlers) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshot, err := BuildSnapshot(h.keeper.Registry(), h.keeper.Pockets(), h.keeper.Operator())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// HandleWebSocket upgrades the connection and registers a stream client.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return isOriginAllowed(r.Header.Get("Origin"), h.cfg, r.Host)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(h.hub, conn)

	// Seed the stream with current state before any events arrive.
	snapshot, err := BuildSnapshot(h.keeper.Registry(), h.keeper.Pockets(), h.keeper.Operator())
	if err != nil {
		h.logger.Error("failed to build initial snapshot", "error", err)
		return
	}
	data, err := json.Marshal(StreamMessage{
		Type:      "snapshot",
		Timestamp: snapshot.Timestamp,
		Data:      snapshot,
	})
	if err != nil {
		h.logger.Error("failed to marshal initial snapshot", "error", err)
		return
	}

	select {
	case client.send <- data:
	default:
		h.logger.Warn("failed to send initial snapshot to client")
	}
}

// HandleInitRegistry performs the one-time platform bootstrap.
func (h *Handlers) HandleInitRegistry(w http.ResponseWriter, r *http.Request) {
	var req InitRegistryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeBadRequest(w, err)
		return
	}
	owner, err := parseAddress("owner", req.Owner)
	if err != nil {
		h.writeBadRequest(w, err)
		return
	}
	operators, err := parseAddresses("operators", req.Operators)
	if err != nil {
		h.writeBadRequest(w, err)
		return
	}

	reg, err := h.keeper.Registry().Initialize(owner, operators)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, reg)
}

// HandleUpdateOperators replaces the operator set.
func (h *Handlers) HandleUpdateOperators(w http.ResponseWriter, r *http.Request) {
	var req OperatorsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeBadRequest(w, err)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		h.writeBadRequest(w, err)
		return
	}
	operators, err := parseAddresses("operators", req.Operators)
	if err != nil {
		h.writeBadRequest(w, err)
		return
	}

	reg, err := h.keeper.Registry().UpdateOperators(caller, operators)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

// HandleMint whitelists a mint or toggles an existing one.
func (h *Handlers) HandleMint(w http.ResponseWriter, r *http.Request) {
	var req MintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeBadRequest(w, err)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		h.writeBadRequest(w, err)
		return
	}
	mint, err := parseAddress("mint", req.Mint)
	if err != nil {
		h.writeBadRequest(w, err)
		return
	}

	var reg *registry.Registry
	if req.Enabled == nil {
		reg, err = h.keeper.Registry().AllowMint(caller, mint)
	} else {
		reg, err = h.keeper.Registry().SetMintEnabled(caller, mint, *req.Enabled)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

// HandleListPockets returns every pocket record.
func (h *Handlers) HandleListPockets(w http.ResponseWriter, r *http.Request) {
	pockets, err := h.keeper.Pockets().List()
	if err != nil {
		h.writeError(w, err)
		return
	}
	if pockets == nil {
		pockets = []*pocket.Pocket{}
	}
	writeJSON(w, http.StatusOK, pockets)
}

// HandleCreatePocket registers a new pocket.
func (h *Handlers) HandleCreatePocket(w http.ResponseWriter, r *http.Request) {
	var req CreatePocketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeBadRequest(w, err)
		return
	}
	params, err := createParams(req)
	if err != nil {
		h.writeBadRequest(w, err)
		return
	}

	p, err := h.keeper.Pockets().Create(r.Context(), params)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// HandleGetPocket returns one pocket record.
func (h *Handlers) HandleGetPocket(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("address", r.PathValue("address"))
	if err != nil {
		h.writeBadRequest(w, err)
		return
	}
	p, err := h.keeper.Pockets().Get(addr)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleDeposit funds one side of a pocket.
func (h *Handlers) HandleDeposit(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("address", r.PathValue("address"))
	if err != nil {
		h.writeBadRequest(w, err)
		return
	}
	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeBadRequest(w, err)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		h.writeBadRequest(w, err)
		return
	}

	p, err := h.keeper.Pockets().Deposit(r.Context(), caller, addr, types.VaultSide(req.Side), req.Amount)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleWithdraw drains a closed pocket back to its owner.
func (h *Handlers) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("address", r.PathValue("address"))
	if err != nil {
		h.writeBadRequest(w, err)
		return
	}
	var req CallerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeBadRequest(w, err)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		h.writeBadRequest(w, err)
		return
	}

	p, err := h.keeper.Pockets().Withdraw(r.Context(), caller, addr)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleStatus applies a pause/resume/close transition.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("address", r.PathValue("address"))
	if err != nil {
		h.writeBadRequest(w, err)
		return
	}
	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeBadRequest(w, err)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		h.writeBadRequest(w, err)
		return
	}

	p, err := h.keeper.Pockets().UpdateStatus(r.Context(), caller, addr, types.PocketStatus(req.Status))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleCloseAccounts reclaims a drained pocket's records.
func (h *Handlers) HandleCloseAccounts(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("address", r.PathValue("address"))
	if err != nil {
		h.writeBadRequest(w, err)
		return
	}
	var req CallerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeBadRequest(w, err)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		h.writeBadRequest(w, err)
		return
	}

	if err := h.keeper.Pockets().CloseAccounts(r.Context(), caller, addr); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleTrigger evaluates one pocket immediately.
func (h *Handlers) HandleTrigger(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("address", r.PathValue("address"))
	if err != nil {
		h.writeBadRequest(w, err)
		return
	}

	result, decision, err := h.keeper.Trigger(r.Context(), addr)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TriggerResponse{
		Decision: decision.String(),
		Result:   result,
	})
}

// createParams converts the request DTO into validated service parameters.
func createParams(req CreatePocketRequest) (pocket.CreateParams, error) {
	owner, err := parseAddress("owner", req.Owner)
	if err != nil {
		return pocket.CreateParams{}, err
	}
	baseMint, err := parseAddress("base_mint", req.BaseMint)
	if err != nil {
		return pocket.CreateParams{}, err
	}
	quoteMint, err := parseAddress("quote_mint", req.QuoteMint)
	if err != nil {
		return pocket.CreateParams{}, err
	}
	market, err := parseAddress("market", req.Market)
	if err != nil {
		return pocket.CreateParams{}, err
	}

	params := pocket.CreateParams{
		ID:          req.ID,
		Name:        req.Name,
		Owner:       owner,
		Side:        types.Side(req.Side),
		BaseMint:    baseMint,
		QuoteMint:   quoteMint,
		Market:      market,
		BatchVolume: req.BatchVolume,
		StartAt:     req.StartAt,
		Frequency:   req.Frequency,
	}

	if req.BuyCondition != nil {
		pricedToken, err := parseAddress("buy_condition.priced_token", req.BuyCondition.PricedToken)
		if err != nil {
			return pocket.CreateParams{}, err
		}
		value, err := decimal.NewFromString(req.BuyCondition.Value)
		if err != nil {
			return pocket.CreateParams{}, err
		}
		cond := types.PriceCondition{Op: types.PriceOp(req.BuyCondition.Op), Value: value}
		if req.BuyCondition.ToValue != "" {
			if cond.ToValue, err = decimal.NewFromString(req.BuyCondition.ToValue); err != nil {
				return pocket.CreateParams{}, err
			}
		}
		params.BuyCondition = &types.BuyCondition{PricedToken: pricedToken, Condition: cond}
	}

	for _, sc := range req.StopConditions {
		params.StopConditions = append(params.StopConditions, types.StopCondition{
			Kind:    types.StopKind(sc.Kind),
			Time:    sc.Time,
			Amount:  sc.Amount,
			Primary: sc.Primary,
		})
	}
	return params, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *Handlers) writeBadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
}

// writeError maps domain sentinels to HTTP status codes.
func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, types.ErrPocketNotFound):
		status = http.StatusNotFound
	case errors.Is(err, types.ErrOnlyOwner), errors.Is(err, types.ErrOnlyOperator):
		status = http.StatusForbidden
	case errors.Is(err, types.ErrAlreadyInitialized), errors.Is(err, types.ErrDuplicateID):
		status = http.StatusConflict
	case errors.Is(err, types.ErrNotInitialized),
		errors.Is(err, types.ErrInvalidCondition),
		errors.Is(err, types.ErrInvalidStatusInput),
		errors.Is(err, types.ErrNoOpStatusChange),
		errors.Is(err, types.ErrZeroAmount),
		errors.Is(err, types.ErrSameMint),
		errors.Is(err, types.ErrMintNotAllowed),
		errors.Is(err, types.ErrNotActive),
		errors.Is(err, types.ErrNotPaused),
		errors.Is(err, types.ErrNotClosed),
		errors.Is(err, types.ErrNotWithdrawn):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// isOriginAllowed implements the websocket origin policy: same-host and
// localhost origins are always fine; anything else must be on the
// configured allowlist.
func isOriginAllowed(origin string, cfg config.APIConfig, reqHost string) bool {
	if origin == "" {
		return true
	}
	for _, allowed := range cfg.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	if len(cfg.AllowedOrigins) > 0 {
		return false
	}

	host := origin
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	if host == reqHost {
		return true
	}
	hostname := host
	if i := strings.Index(hostname, ":"); i >= 0 {
		hostname = hostname[:i]
	}
	return hostname == "localhost" || hostname == "127.0.0.1"
}
