package edition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

// ErrVariantMismatch is returned by Open when the store was created for a
// different field variant.
var ErrVariantMismatch = errors.New("stored variant does not match configured variant")

// Registry is the single-edition token state machine:
//
//	Undeployed -> Deployed (unminted) -> Minted
//
// Minted is terminal for existence. Field updates, transfers and ownership
// changes loop on it. Mutations are serialized by mu and run in one database
// transaction each, together with the event they append; reads see the last
// committed state and never take mu.
type Registry struct {
	mu      sync.Mutex
	store   *Store
	variant Variant
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time

	listenersMu sync.RWMutex
	listeners   []Listener
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithClock overrides the time source used for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// Open loads the registry held in store, initializing an undeployed state
// row for variant on first use.
func Open(ctx context.Context, store *Store, variant Variant, opts ...Option) (*Registry, error) {
	if variant.Name() == "" {
		variant = DefaultVariant
	}
	r := &Registry{
		store:   store,
		variant: variant,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	rec, err := store.EnsureRecord(ctx, variant.Name())
	if err != nil {
		return nil, err
	}
	if rec.Variant != variant.Name() {
		return nil, fmt.Errorf("%w: stored %q, configured %q", ErrVariantMismatch, rec.Variant, variant.Name())
	}
	r.metrics.setMinted(rec.Minted)
	return r, nil
}

// Variant returns the field variant of the registry.
func (r *Registry) Variant() Variant { return r.variant }

// Subscribe registers l to receive every committed event.
func (r *Registry) Subscribe(l Listener) {
	r.listenersMu.Lock()
	defer r.listenersMu.Unlock()
	r.listeners = append(r.listeners, l)
}

func (r *Registry) notify(ev Event) {
	r.listenersMu.RLock()
	listeners := slices.Clone(r.listeners)
	r.listenersMu.RUnlock()
	for _, l := range listeners {
		l(ev)
	}
}

// mutation inspects and modifies the locked state row. It returns the event
// to record, or nil when nothing changed. Any error rolls back the
// transaction.
type mutation func(rec *EditionRecord) (*EventRecord, error)

func (r *Registry) mutate(ctx context.Context, op string, fn mutation) error {
	started := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	var committed *EventRecord
	err := r.store.Transaction(ctx, func(tx *Store) error {
		rec, err := tx.getForUpdate(ctx)
		if err != nil {
			return err
		}
		ev, err := fn(rec)
		if err != nil || ev == nil {
			return err
		}
		if err := tx.Save(ctx, rec); err != nil {
			return err
		}
		ev.ID = uuid.NewString()
		ev.CreatedAt = r.now().UTC()
		if err := tx.AppendEvent(ctx, ev); err != nil {
			return err
		}
		committed = ev
		return nil
	})
	r.metrics.observe(op, started, err)

	if err != nil {
		if re, ok := AsRegistryError(err); ok {
			r.logger.Info("edition mutation rejected", "operation", op, "code", re.Code, "reason", err.Error())
		} else {
			r.logger.Error("edition mutation failed", "operation", op, "error", err)
		}
		return err
	}
	if committed == nil {
		return nil
	}

	r.logger.Info("edition mutation committed", "operation", op, "event", committed.Kind, "seq", committed.Seq)
	if committed.Kind == EventMinted {
		r.metrics.setMinted(true)
	}
	r.notify(eventFromRecord(committed))
	return nil
}

func requireOwner(rec *EditionRecord, caller common.Address) error {
	if !rec.Deployed() || common.HexToAddress(rec.Owner) != caller {
		return fmt.Errorf("%w: %s", ErrUnauthorized, caller.Hex())
	}
	return nil
}

// checkSupported rejects values for fields outside the variant. Empty values
// are ignored when ignoreEmpty is set.
func (r *Registry) checkSupported(values FieldValues, ignoreEmpty bool) error {
	for _, f := range slices.Sorted(maps.Keys(values)) {
		if ignoreEmpty && values[f] == "" {
			continue
		}
		if !r.variant.Has(f) {
			return unsupportedFieldError(f)
		}
	}
	return nil
}

func (r *Registry) snapshot(rec *EditionRecord) FieldValues {
	values := FieldValues{}
	for _, f := range r.variant.Fields() {
		values[f] = rec.field(f)
	}
	return values
}

func valuesToMap(values FieldValues) JSONMap {
	m := JSONMap{}
	for f, v := range values {
		m[string(f)] = v
	}
	return m
}

// Deploy runs the constructor: it records the collection name and symbol,
// makes caller the owner and derives the registry's contract address from
// the deployer.
func (r *Registry) Deploy(ctx context.Context, caller common.Address, name, symbol string) (common.Address, error) {
	var addr common.Address
	err := r.mutate(ctx, "deploy", func(rec *EditionRecord) (*EventRecord, error) {
		if rec.Deployed() {
			return nil, ErrAlreadyDeployed
		}
		if caller == (common.Address{}) {
			return nil, fmt.Errorf("%w: owner cannot be the zero address", ErrInvalidRecipient)
		}
		addr = crypto.CreateAddress(caller, 0)
		now := r.now().UTC()
		rec.ContractAddress = addr.Hex()
		rec.Name = name
		rec.Symbol = symbol
		rec.Owner = caller.Hex()
		rec.DeployedAt = &now
		return &EventRecord{
			Kind:  EventDeployed,
			Actor: caller.Hex(),
			NewValue: JSONMap{
				"contractAddress": rec.ContractAddress,
				"name":            name,
				"symbol":          symbol,
				"owner":           rec.Owner,
				"variant":         rec.Variant,
			},
		}, nil
	})
	if err != nil {
		return common.Address{}, err
	}
	return addr, nil
}

// Mint creates the token for recipient with the given field values. Every
// field of the variant must be non-empty. Checks run in order: caller is
// owner, unsupported field, not yet minted, required fields, recipient.
func (r *Registry) Mint(ctx context.Context, caller, recipient common.Address, values FieldValues) error {
	return r.mutate(ctx, "mint", func(rec *EditionRecord) (*EventRecord, error) {
		if err := requireOwner(rec, caller); err != nil {
			return nil, err
		}
		if err := r.checkSupported(values, false); err != nil {
			return nil, err
		}
		if rec.Minted {
			return nil, ErrAlreadyMinted
		}
		for _, f := range r.variant.Fields() {
			if values[f] == "" {
				return nil, EmptyFieldError(f)
			}
		}
		if recipient == (common.Address{}) {
			return nil, ErrInvalidRecipient
		}

		now := r.now().UTC()
		rec.Minted = true
		rec.Holder = recipient.Hex()
		rec.MintedAt = &now
		for _, f := range r.variant.Fields() {
			rec.setField(f, values[f])
		}

		newValue := valuesToMap(r.snapshot(rec))
		newValue["holder"] = rec.Holder
		return &EventRecord{
			Kind:     EventMinted,
			Actor:    caller.Hex(),
			TokenID:  TokenID,
			NewValue: newValue,
		}, nil
	})
}

// UpdateField overwrites a single field of the minted token. An empty value
// is stored as given.
func (r *Registry) UpdateField(ctx context.Context, caller common.Address, f Field, value string) error {
	return r.mutate(ctx, "update_field", func(rec *EditionRecord) (*EventRecord, error) {
		if err := requireOwner(rec, caller); err != nil {
			return nil, err
		}
		if !r.variant.Has(f) {
			return nil, unsupportedFieldError(f)
		}
		if !rec.Minted {
			return nil, ErrTokenNotFound
		}
		old := rec.field(f)
		rec.setField(f, value)
		return &EventRecord{
			Kind:     EventMetadataUpdated,
			Actor:    caller.Hex(),
			TokenID:  TokenID,
			OldValue: JSONMap{string(f): old},
			NewValue: JSONMap{string(f): value},
		}, nil
	})
}

// UpdateOffChainURI overwrites the off-chain URI.
func (r *Registry) UpdateOffChainURI(ctx context.Context, caller common.Address, value string) error {
	return r.UpdateField(ctx, caller, FieldOffChainURI, value)
}

// UpdateOnChainMetadata overwrites the on-chain metadata.
func (r *Registry) UpdateOnChainMetadata(ctx context.Context, caller common.Address, value string) error {
	return r.UpdateField(ctx, caller, FieldOnChainMetadata, value)
}

// UpdateOnChainImage overwrites the on-chain image.
func (r *Registry) UpdateOnChainImage(ctx context.Context, caller common.Address, value string) error {
	return r.UpdateField(ctx, caller, FieldOnChainImage, value)
}

// UpdateMetadata overwrites every field given a non-empty value and leaves
// the others untouched. A call that changes nothing succeeds without an
// event.
func (r *Registry) UpdateMetadata(ctx context.Context, caller common.Address, values FieldValues) error {
	return r.mutate(ctx, "update_metadata", func(rec *EditionRecord) (*EventRecord, error) {
		if err := requireOwner(rec, caller); err != nil {
			return nil, err
		}
		if err := r.checkSupported(values, true); err != nil {
			return nil, err
		}
		if !rec.Minted {
			return nil, ErrTokenNotFound
		}

		oldValue, newValue := JSONMap{}, JSONMap{}
		for _, f := range r.variant.Fields() {
			v := values[f]
			if v == "" {
				continue
			}
			oldValue[string(f)] = rec.field(f)
			newValue[string(f)] = v
			rec.setField(f, v)
		}
		if len(newValue) == 0 {
			return nil, nil
		}
		return &EventRecord{
			Kind:     EventMetadataUpdated,
			Actor:    caller.Hex(),
			TokenID:  TokenID,
			OldValue: oldValue,
			NewValue: newValue,
		}, nil
	})
}

// TransferFrom moves the token from its holder to to. Only the holder may
// move it.
func (r *Registry) TransferFrom(ctx context.Context, caller, from, to common.Address, id uint64) error {
	return r.mutate(ctx, "transfer", func(rec *EditionRecord) (*EventRecord, error) {
		if id != TokenID || !rec.Minted {
			return nil, fmt.Errorf("%w: %d", ErrTokenNotFound, id)
		}
		holder := common.HexToAddress(rec.Holder)
		if caller != holder || from != holder {
			return nil, fmt.Errorf("%w: %s does not hold token %d", ErrUnauthorized, caller.Hex(), id)
		}
		if to == (common.Address{}) {
			return nil, ErrInvalidRecipient
		}
		rec.Holder = to.Hex()
		return &EventRecord{
			Kind:     EventTransfer,
			Actor:    caller.Hex(),
			TokenID:  TokenID,
			OldValue: JSONMap{"holder": holder.Hex()},
			NewValue: JSONMap{"holder": rec.Holder},
		}, nil
	})
}

// TransferOwnership hands administrative control to newOwner.
func (r *Registry) TransferOwnership(ctx context.Context, caller, newOwner common.Address) error {
	return r.mutate(ctx, "transfer_ownership", func(rec *EditionRecord) (*EventRecord, error) {
		if err := requireOwner(rec, caller); err != nil {
			return nil, err
		}
		if newOwner == (common.Address{}) {
			return nil, fmt.Errorf("%w: owner cannot be the zero address", ErrInvalidRecipient)
		}
		old := rec.Owner
		rec.Owner = newOwner.Hex()
		return &EventRecord{
			Kind:     EventOwnershipTransferred,
			Actor:    caller.Hex(),
			OldValue: JSONMap{"owner": old},
			NewValue: JSONMap{"owner": rec.Owner},
		}, nil
	})
}

func (r *Registry) load(ctx context.Context) (*EditionRecord, error) {
	rec, err := r.store.Get(ctx)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return &EditionRecord{ID: TokenID, Variant: r.variant.Name()}, nil
	}
	return rec, nil
}

// Info summarizes the registry.
type Info struct {
	ContractAddress string  `json:"contractAddress,omitempty"`
	Name            string  `json:"name,omitempty"`
	Symbol          string  `json:"symbol,omitempty"`
	Owner           string  `json:"owner,omitempty"`
	Variant         string  `json:"variant"`
	Fields          []Field `json:"fields"`
	Deployed        bool    `json:"deployed"`
	Exists          bool    `json:"exists"`
	Holder          string  `json:"holder,omitempty"`
}

// Info returns a summary of the registry state.
func (r *Registry) Info(ctx context.Context) (Info, error) {
	rec, err := r.load(ctx)
	if err != nil {
		return Info{}, err
	}
	return Info{
		ContractAddress: rec.ContractAddress,
		Name:            rec.Name,
		Symbol:          rec.Symbol,
		Owner:           rec.Owner,
		Variant:         r.variant.Name(),
		Fields:          r.variant.Fields(),
		Deployed:        rec.Deployed(),
		Exists:          rec.Minted,
		Holder:          rec.Holder,
	}, nil
}

// Owner returns the administrative address, or the zero address before
// deploy.
func (r *Registry) Owner(ctx context.Context) (common.Address, error) {
	rec, err := r.load(ctx)
	if err != nil {
		return common.Address{}, err
	}
	if !rec.Deployed() {
		return common.Address{}, nil
	}
	return common.HexToAddress(rec.Owner), nil
}

// ContractAddress returns the address assigned at deploy.
func (r *Registry) ContractAddress(ctx context.Context) (common.Address, error) {
	rec, err := r.load(ctx)
	if err != nil {
		return common.Address{}, err
	}
	if rec.ContractAddress == "" {
		return common.Address{}, nil
	}
	return common.HexToAddress(rec.ContractAddress), nil
}

// Name returns the collection name.
func (r *Registry) Name(ctx context.Context) (string, error) {
	rec, err := r.load(ctx)
	if err != nil {
		return "", err
	}
	return rec.Name, nil
}

// Symbol returns the collection symbol.
func (r *Registry) Symbol(ctx context.Context) (string, error) {
	rec, err := r.load(ctx)
	if err != nil {
		return "", err
	}
	return rec.Symbol, nil
}

// Exists reports whether the token has been minted.
func (r *Registry) Exists(ctx context.Context) (bool, error) {
	rec, err := r.load(ctx)
	if err != nil {
		return false, err
	}
	return rec.Minted, nil
}

// Field returns the stored value of f. Before mint every field is empty.
func (r *Registry) Field(ctx context.Context, f Field) (string, error) {
	if !r.variant.Has(f) {
		return "", unsupportedFieldError(f)
	}
	rec, err := r.load(ctx)
	if err != nil {
		return "", err
	}
	return rec.field(f), nil
}

// OffChainURI returns the stored off-chain URI.
func (r *Registry) OffChainURI(ctx context.Context) (string, error) {
	return r.Field(ctx, FieldOffChainURI)
}

// OnChainMetadata returns the stored on-chain metadata.
func (r *Registry) OnChainMetadata(ctx context.Context) (string, error) {
	return r.Field(ctx, FieldOnChainMetadata)
}

// OnChainImage returns the stored on-chain image.
func (r *Registry) OnChainImage(ctx context.Context) (string, error) {
	return r.Field(ctx, FieldOnChainImage)
}

func (r *Registry) minted(ctx context.Context, id uint64) (*EditionRecord, error) {
	if id != TokenID {
		return nil, fmt.Errorf("%w: %d", ErrTokenNotFound, id)
	}
	rec, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	if !rec.Minted {
		return nil, fmt.Errorf("%w: %d", ErrTokenNotFound, id)
	}
	return rec, nil
}

// TokenURI returns the descriptor of token id built from the stored fields.
func (r *Registry) TokenURI(ctx context.Context, id uint64) (string, error) {
	rec, err := r.minted(ctx, id)
	if err != nil {
		return "", err
	}
	return EncodeTokenURI(r.variant.Fields(), r.snapshot(rec)), nil
}

// TokenJSON returns the ERC-721 style metadata document of token id.
func (r *Registry) TokenJSON(ctx context.Context, id uint64) (map[string]any, error) {
	rec, err := r.minted(ctx, id)
	if err != nil {
		return nil, err
	}
	return RenderTokenJSON(rec.Name, r.snapshot(rec)), nil
}

// OwnerOf returns the holder of token id.
func (r *Registry) OwnerOf(ctx context.Context, id uint64) (common.Address, error) {
	rec, err := r.minted(ctx, id)
	if err != nil {
		return common.Address{}, err
	}
	return common.HexToAddress(rec.Holder), nil
}

// BalanceOf returns 1 for the holder and 0 for everyone else.
func (r *Registry) BalanceOf(ctx context.Context, addr common.Address) (uint64, error) {
	if addr == (common.Address{}) {
		return 0, fmt.Errorf("%w: zero address is not a valid owner", ErrInvalidRecipient)
	}
	rec, err := r.load(ctx)
	if err != nil {
		return 0, err
	}
	if rec.Minted && common.HexToAddress(rec.Holder) == addr {
		return 1, nil
	}
	return 0, nil
}

// Events returns a page of the event log, oldest first.
func (r *Registry) Events(ctx context.Context, pageSize int, pageToken string) (EventPage, error) {
	records, next, err := r.store.ListEvents(ctx, pageSize, pageToken)
	if err != nil {
		return EventPage{}, err
	}
	page := EventPage{Events: make([]Event, len(records)), NextPageToken: next}
	for i := range records {
		page.Events[i] = eventFromRecord(&records[i])
	}
	return page, nil
}
