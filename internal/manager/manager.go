package manager

import (
	"fmt"
	"sync"

	"SynthLoans/internal/fixed"
	"SynthLoans/internal/guard"
	"SynthLoans/internal/loan"
	"SynthLoans/internal/observability"
	"SynthLoans/internal/oracle"
	"SynthLoans/internal/rates"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ChangeKind classifies an exposure delta. The global debt ceiling is
// enforced only on the debt-increasing kinds.
type ChangeKind int

const (
	ChangeOpen ChangeKind = iota
	ChangeDraw
	ChangeAccrual
	ChangeRepay
	ChangeClose
	ChangeLiquidation
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeOpen:
		return "open"
	case ChangeDraw:
		return "draw"
	case ChangeAccrual:
		return "accrual"
	case ChangeRepay:
		return "repay"
	case ChangeClose:
		return "close"
	case ChangeLiquidation:
		return "liquidation"
	default:
		return "unknown"
	}
}

func (k ChangeKind) increasesDebt() bool {
	return k == ChangeOpen || k == ChangeDraw
}

type aggregateKey struct {
	Currency string
	IsShort  bool
}

// AggregateSink receives committed aggregate values for durable storage.
type AggregateSink interface {
	EnqueueAggregate(currency string, isShort bool, amount fixed.Dec)
}

// Manager is the central registry and aggregator: it tracks which
// position engines exist, which synths are borrowable and shortable,
// per-currency long and short open interest, and the global debt
// ceiling. It also owns THE serialization mutex — every state-mutating
// operation on any engine runs inside Serialize, so no two operations
// ever observe an interleaved intermediate state.
//
// Aggregates are mutated only through ReportExposureChange, called by
// registered engines from within Serialize; the invariant that
// aggregate(currency, side) equals the sum of open loans' debt is
// enforceable in this one place.
type Manager struct {
	mu sync.Mutex

	guard   guard.Guard
	oracle  oracle.Oracle
	model   *rates.Model
	log     zerolog.Logger
	metrics *observability.Metrics
	sink    AggregateSink

	engines   map[string]bool
	synths    map[string]string // synth id -> underlying currency key
	shortable map[string]string // shortable currency -> inverse currency

	aggregates map[aggregateKey]fixed.Dec

	maxDebt fixed.Dec
	params  rates.Params
}

// Config carries the initial parameters.
type Config struct {
	MaxDebt               fixed.Dec
	BaseBorrowRate        fixed.Dec
	BaseShortRate         fixed.Dec
	UtilisationMultiplier fixed.Dec
}

func New(cfg Config, g guard.Guard, o oracle.Oracle, model *rates.Model, log zerolog.Logger, metrics *observability.Metrics) (*Manager, error) {
	if !cfg.UtilisationMultiplier.IsPositive() {
		return nil, fmt.Errorf("utilisation multiplier %s: %w", cfg.UtilisationMultiplier, loan.ErrMustBePositive)
	}
	if model == nil {
		model = rates.NewModel(nil)
	}

	return &Manager{
		guard:      g,
		oracle:     o,
		model:      model,
		log:        log,
		metrics:    metrics,
		engines:    make(map[string]bool),
		synths:     make(map[string]string),
		shortable:  make(map[string]string),
		aggregates: make(map[aggregateKey]fixed.Dec),
		maxDebt:    cfg.MaxDebt,
		params: rates.Params{
			BaseBorrowRate:        cfg.BaseBorrowRate,
			BaseShortRate:         cfg.BaseShortRate,
			UtilisationMultiplier: cfg.UtilisationMultiplier,
		},
	}, nil
}

// SetSink attaches the persistence sink. Must be called before serving.
func (m *Manager) SetSink(sink AggregateSink) { m.sink = sink }

// Serialize runs fn under the global ledger lock. Every engine
// operation and every admin mutation goes through here; fn must not
// call Serialize again.
func (m *Manager) Serialize(fn func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn()
}

// --- Registry (administrator-only) ---

func (m *Manager) AddCollaterals(caller uuid.UUID, engineIDs ...string) error {
	return m.adminMutation(caller, func() {
		for _, id := range engineIDs {
			m.engines[id] = true
		}
	})
}

func (m *Manager) RemoveCollaterals(caller uuid.UUID, engineIDs ...string) error {
	return m.adminMutation(caller, func() {
		for _, id := range engineIDs {
			delete(m.engines, id)
		}
	})
}

func (m *Manager) AddSynths(caller uuid.UUID, synthsByKey map[string]string) error {
	return m.adminMutation(caller, func() {
		for synth, key := range synthsByKey {
			m.synths[synth] = key
		}
	})
}

func (m *Manager) RemoveSynths(caller uuid.UUID, synths ...string) error {
	return m.adminMutation(caller, func() {
		for _, s := range synths {
			delete(m.synths, s)
		}
	})
}

func (m *Manager) AddShortableSynths(caller uuid.UUID, inverses map[string]string) error {
	return m.adminMutation(caller, func() {
		for currency, inverse := range inverses {
			m.shortable[currency] = inverse
		}
	})
}

func (m *Manager) RemoveShortableSynths(caller uuid.UUID, currencies ...string) error {
	return m.adminMutation(caller, func() {
		for _, c := range currencies {
			delete(m.shortable, c)
		}
	})
}

func (m *Manager) adminMutation(caller uuid.UUID, apply func()) error {
	if !m.guard.IsAdmin(caller) {
		return fmt.Errorf("registry mutation by %s: %w", caller, loan.ErrUnauthorized)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	apply()
	return nil
}

// HasCollateral reports whether an engine id is registered.
func (m *Manager) HasCollateral(engineID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engines[engineID]
}

// IsSynth reports whether a synth id is registered as borrowable.
// Callable only from within Serialize.
func (m *Manager) IsSynth(synth string) bool {
	_, ok := m.synths[synth]
	return ok
}

// InverseOf returns the inverse currency of a shortable synth.
// Callable only from within Serialize.
func (m *Manager) InverseOf(currency string) (string, bool) {
	inv, ok := m.shortable[currency]
	return inv, ok
}

// --- Parameters (administrator-only) ---

func (m *Manager) SetMaxDebt(caller uuid.UUID, maxDebt fixed.Dec) error {
	return m.adminMutation(caller, func() { m.maxDebt = maxDebt })
}

func (m *Manager) SetBaseBorrowRate(caller uuid.UUID, rate fixed.Dec) error {
	return m.adminMutation(caller, func() { m.params.BaseBorrowRate = rate })
}

func (m *Manager) SetBaseShortRate(caller uuid.UUID, rate fixed.Dec) error {
	return m.adminMutation(caller, func() { m.params.BaseShortRate = rate })
}

func (m *Manager) SetUtilisationMultiplier(caller uuid.UUID, multiplier fixed.Dec) error {
	if !m.guard.IsAdmin(caller) {
		return fmt.Errorf("set utilisation multiplier by %s: %w", caller, loan.ErrUnauthorized)
	}
	if !multiplier.IsPositive() {
		return fmt.Errorf("utilisation multiplier %s: %w", multiplier, loan.ErrMustBePositive)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.params.UtilisationMultiplier = multiplier
	return nil
}

// --- Exposure (engines only, under Serialize) ---

// ReportExposureChange applies one combined exposure delta for a single
// engine operation. For the debt-increasing kinds (open, draw) the new
// total system debt is checked against maxDebt first; on failure
// nothing is mutated. Callable only by a registered engine from within
// Serialize.
func (m *Manager) ReportExposureChange(engineID, currency string, isShort bool, delta fixed.Dec, kind ChangeKind) error {
	if !m.engines[engineID] {
		return fmt.Errorf("exposure report from unregistered engine %q: %w", engineID, loan.ErrUnauthorized)
	}
	if delta.IsZero() {
		return nil
	}

	if kind.increasesDebt() && delta.IsPositive() && !m.maxDebt.IsZero() {
		deltaValue := delta.Mul(m.oracle.Rate(currency))
		projected := m.totalDebt().Add(deltaValue)
		if projected.GreaterThan(m.maxDebt) {
			if m.metrics != nil {
				m.metrics.CeilingRejections.Inc()
			}
			return fmt.Errorf("total debt %s would exceed ceiling %s: %w",
				projected, m.maxDebt, loan.ErrDebtCeilingExceeded)
		}
	}

	key := aggregateKey{Currency: currency, IsShort: isShort}
	next := m.aggregates[key].Add(delta)
	if next.IsNegative() {
		// Rounding dust from conversions; the aggregate floor is zero.
		m.log.Debug().Str("currency", currency).Bool("short", isShort).
			Str("delta", delta.String()).Msg("aggregate clamped at zero")
		next = fixed.Zero()
	}
	m.aggregates[key] = next

	m.log.Debug().
		Str("engine", engineID).
		Str("currency", currency).
		Bool("short", isShort).
		Str("delta", delta.String()).
		Str("kind", kind.String()).
		Str("aggregate", next.String()).
		Msg("exposure change")

	if m.metrics != nil {
		if isShort {
			m.metrics.AggregateShort.WithLabelValues(currency).Set(next.Float64())
		} else {
			m.metrics.AggregateLong.WithLabelValues(currency).Set(next.Float64())
		}
		m.metrics.TotalSystemDebt.Set(m.totalDebt().Float64())
	}
	if m.sink != nil {
		m.sink.EnqueueAggregate(currency, isShort, next)
	}
	return nil
}

// Long returns the aggregate long open interest for a currency.
// Callable only from within Serialize; external readers use Totals or
// AggregateSnapshot.
func (m *Manager) Long(currency string) fixed.Dec {
	return m.aggregates[aggregateKey{Currency: currency}]
}

// Short returns the aggregate short open interest for a currency.
// Callable only from within Serialize.
func (m *Manager) Short(currency string) fixed.Dec {
	return m.aggregates[aggregateKey{Currency: currency, IsShort: true}]
}

// CurrentRate returns the annualized interest rate for one side of a
// currency, from base rates and the current skew. Callable only from
// within Serialize.
func (m *Manager) CurrentRate(currency string, isShort bool) fixed.Dec {
	return m.model.Rate(m.params, m.Long(currency), m.Short(currency), isShort)
}

// totalDebt sums both sides of every currency converted to the
// reference currency. Lock-free; called under the lock.
func (m *Manager) totalDebt() fixed.Dec {
	total := fixed.Zero()
	for key, amount := range m.aggregates {
		total = total.Add(amount.Mul(m.oracle.Rate(key.Currency)))
	}
	return total
}

// TotalLong sums all currencies' long aggregates in the reference
// currency. The returned flag is true if ANY involved price was stale
// or unset — one bad rate taints the whole result.
func (m *Manager) TotalLong() (fixed.Dec, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalSide(false)
}

// TotalShort is TotalLong for the short side.
func (m *Manager) TotalShort() (fixed.Dec, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalSide(true)
}

func (m *Manager) totalSide(isShort bool) (fixed.Dec, bool) {
	total := fixed.Zero()
	anyInvalid := false
	for key, amount := range m.aggregates {
		if key.IsShort != isShort {
			continue
		}
		if m.oracle.IsInvalid(key.Currency) {
			anyInvalid = true
			if m.metrics != nil {
				m.metrics.StaleRateSightings.WithLabelValues(key.Currency).Inc()
			}
		}
		total = total.Add(amount.Mul(m.oracle.Rate(key.Currency)))
	}
	return total, anyInvalid
}

// MaxDebt returns the configured ceiling. Zero means unlimited.
func (m *Manager) MaxDebt() fixed.Dec {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxDebt
}

// Params returns the current rate parameters.
func (m *Manager) Params() rates.Params {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.params
}

// AggregateEntry is one (currency, side) aggregate for external readers.
type AggregateEntry struct {
	Currency string    `json:"currency"`
	IsShort  bool      `json:"is_short"`
	Amount   fixed.Dec `json:"amount"`
}

// AggregateSnapshot copies the aggregate table for queries.
func (m *Manager) AggregateSnapshot() []AggregateEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := make([]AggregateEntry, 0, len(m.aggregates))
	for key, amount := range m.aggregates {
		entries = append(entries, AggregateEntry{Currency: key.Currency, IsShort: key.IsShort, Amount: amount})
	}
	return entries
}

// RestoreAggregate sets an aggregate directly when reloading durable
// state at startup, before any engine is serving.
func (m *Manager) RestoreAggregate(currency string, isShort bool, amount fixed.Dec) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aggregates[aggregateKey{Currency: currency, IsShort: isShort}] = amount
}
