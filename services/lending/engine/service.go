package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"sbtlend/core/events"
	"sbtlend/core/state"
	"sbtlend/core/types"
	"sbtlend/crypto"
	"sbtlend/native/bank"
	nativecommon "sbtlend/native/common"
	"sbtlend/native/lending"
	"sbtlend/native/reputation"
	"sbtlend/observability"
	"sbtlend/storage"
)

// Sink receives the events of each committed operation, in commit order. A
// failed Publish must not have applied any of evs; the service redelivers
// them ahead of the next batch.
type Sink interface {
	Publish(ctx context.Context, evs []*types.Event) error
}

// maxSinkBacklog bounds the events held for a sink that keeps failing.
const maxSinkBacklog = 4096

type sinkState struct {
	sink    Sink
	name    string
	pending []*types.Event
}

func newSinkState(sink Sink) *sinkState {
	return &sinkState{sink: sink, name: fmt.Sprintf("%T", sink)}
}

// Options configures a Service.
type Options struct {
	Params lending.Params
	Pauses nativecommon.PauseView
	Now    func() uint64
	Logger *slog.Logger
	Sinks  []Sink
}

// Service is the serialization point for the lending pool and the reputation
// registry. Each entry operation stages its writes in a fresh state overlay
// and commits them as one batch; rejected operations discard the overlay, so
// nothing partial ever reaches the database. Events are published only after
// the commit succeeds.
//
// Lending and bank writes hold poolMu; registry writes hold registryMu. Loan
// origination reads the registry and takes registryMu for reading while it
// holds poolMu, never the other way round.
type Service struct {
	db      storage.Database
	params  lending.Params
	pauses  nativecommon.PauseView
	now     func() uint64
	logger  *slog.Logger
	sinks   []*sinkState
	sinkMu  sync.Mutex
	tracer  trace.Tracer
	metrics *observability.LedgerMetrics

	poolMu     sync.RWMutex
	registryMu sync.RWMutex
}

// New constructs a service over db.
func New(db storage.Database, opts Options) (*Service, error) {
	if db == nil {
		return nil, errors.New("lending service: database required")
	}
	if err := opts.Params.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = func() uint64 { return uint64(time.Now().Unix()) }
	}
	svc := &Service{
		db:      db,
		params:  opts.Params,
		pauses:  opts.Pauses,
		now:     now,
		logger:  logger,
		tracer:  otel.Tracer("sbtlend/services/lending"),
		metrics: observability.Ledger(),
	}
	for _, sink := range opts.Sinks {
		svc.AddSink(sink)
	}
	return svc, nil
}

// Params returns the protocol parameters in force.
func (s *Service) Params() lending.Params { return s.params }

// AddSink registers an additional post-commit event consumer. It must be
// called before the service starts handling requests.
func (s *Service) AddSink(sink Sink) {
	if sink != nil {
		s.sinks = append(s.sinks, newSinkState(sink))
	}
}

type txn struct {
	state  *state.Manager
	events *events.Buffer
}

func (s *Service) lendingEngine(tx *txn) *lending.Engine {
	eng := lending.NewEngine(tx.state, bank.NewLedger(tx.state), s.params)
	eng.SetEmitter(tx.events)
	eng.SetPauses(s.pauses)
	eng.SetNowFunc(s.now)
	eng.SetReputation(s.reputationEngine(tx))
	return eng
}

func (s *Service) reputationEngine(tx *txn) *reputation.Engine {
	eng := reputation.NewEngine(tx.state)
	eng.SetEmitter(tx.events)
	eng.SetPauses(s.pauses)
	eng.SetNowFunc(s.now)
	return eng
}

// execute runs fn against a staged overlay and commits it when fn succeeds.
// The caller holds the aggregate lock.
func (s *Service) execute(ctx context.Context, module, op string, fn func(tx *txn) error) error {
	ctx, span := s.tracer.Start(ctx, module+"."+op, trace.WithAttributes(
		attribute.String("ledger.module", module),
		attribute.String("ledger.operation", op),
	))
	defer span.End()
	start := time.Now()

	tx := &txn{state: state.NewManager(s.db), events: &events.Buffer{}}
	err := fn(tx)
	if err == nil {
		if commitErr := tx.state.Commit(); commitErr != nil {
			err = fmt.Errorf("commit %s.%s: %w", module, op, commitErr)
		}
	} else {
		tx.state.Discard()
	}

	kind := Kind(err)
	outcome := "success"
	if err != nil {
		outcome = kind
		span.RecordError(err)
		span.SetStatus(codes.Error, kind)
	}
	s.metrics.Observe(module, op, outcome, time.Since(start))

	if err != nil {
		if kind == KindInternal {
			s.logger.ErrorContext(ctx, "ledger operation failed", "component", module, "op", op, "error", err)
			return fmt.Errorf("%w: %v", ErrInternal, err)
		}
		s.logger.InfoContext(ctx, "ledger operation rejected", "component", module, "op", op, "error", kind)
		return err
	}

	s.publish(ctx, tx.events.Events())
	s.logger.DebugContext(ctx, "ledger operation committed", "component", module, "op", op)
	return nil
}

func (s *Service) publish(ctx context.Context, evs []events.Event) {
	s.sinkMu.Lock()
	defer s.sinkMu.Unlock()
	if len(s.sinks) == 0 {
		return
	}
	rendered := make([]*types.Event, 0, len(evs))
	for _, ev := range evs {
		rendered = append(rendered, ev.Event())
	}
	for _, st := range s.sinks {
		batch := rendered
		if len(st.pending) > 0 {
			batch = make([]*types.Event, 0, len(st.pending)+len(rendered))
			batch = append(append(batch, st.pending...), rendered...)
		}
		if len(batch) == 0 {
			continue
		}
		if err := st.sink.Publish(ctx, batch); err != nil {
			s.metrics.RecordSinkFailure(st.name, "publish", len(rendered))
			if over := len(batch) - maxSinkBacklog; over > 0 {
				batch = batch[over:]
				s.metrics.RecordSinkFailure(st.name, "dropped", over)
				s.logger.ErrorContext(ctx, "event sink backlog overflow", "component", "events", "sink", st.name, "dropped", over)
			}
			st.pending = batch
			s.logger.WarnContext(ctx, "event sink failed", "component", "events", "sink", st.name, "pending", len(batch), "error", err)
		} else {
			st.pending = nil
		}
		s.metrics.RecordSinkBacklog(st.name, len(st.pending))
	}
}

// view runs a read-only query against committed state.
func (s *Service) view(fn func(tx *txn) error) error {
	tx := &txn{state: state.NewManager(s.db), events: &events.Buffer{}}
	defer tx.state.Discard()
	if err := fn(tx); err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return nil
}

func (s *Service) recordPool() {
	_ = s.view(func(tx *txn) error {
		stats, err := s.lendingEngine(tx).ProtocolStats()
		if err != nil {
			return err
		}
		s.metrics.RecordPool(stats.TotalDeposits, stats.TotalBorrowed, stats.TotalReserves)
		return nil
	})
}

func (s *Service) recordMinted() {
	_ = s.view(func(tx *txn) error {
		info, err := s.reputationEngine(tx).Info()
		if err != nil {
			return nil
		}
		s.metrics.RecordMinted(info.TotalMinted)
		return nil
	})
}

// poolWrite runs a lending operation under the pool lock. Loan pricing reads
// the registry, so the registry read lock is held as well.
func (s *Service) poolWrite(ctx context.Context, op string, fn func(eng *lending.Engine) error) error {
	s.poolMu.Lock()
	defer s.poolMu.Unlock()
	s.registryMu.RLock()
	defer s.registryMu.RUnlock()
	err := s.execute(ctx, nativecommon.ModuleLending, op, func(tx *txn) error {
		return fn(s.lendingEngine(tx))
	})
	if err == nil {
		s.recordPool()
	}
	return err
}

func (s *Service) registryWrite(ctx context.Context, op string, fn func(eng *reputation.Engine) error) error {
	s.registryMu.Lock()
	defer s.registryMu.Unlock()
	err := s.execute(ctx, nativecommon.ModuleReputation, op, func(tx *txn) error {
		return fn(s.reputationEngine(tx))
	})
	if err == nil {
		s.recordMinted()
	}
	return err
}

// InitializePool creates the lending pool administered by admin.
func (s *Service) InitializePool(ctx context.Context, admin crypto.Address) error {
	return s.poolWrite(ctx, "initialize", func(eng *lending.Engine) error {
		return eng.Initialize(admin)
	})
}

// Deposit moves amount of the base asset from user into pool custody.
func (s *Service) Deposit(ctx context.Context, user crypto.Address, amount uint64) error {
	return s.poolWrite(ctx, "deposit", func(eng *lending.Engine) error {
		return eng.DepositCollateral(user, amount)
	})
}

// Borrow draws amount against the user's collateral.
func (s *Service) Borrow(ctx context.Context, user crypto.Address, amount uint64) (*lending.LoanInfo, error) {
	var loan *lending.LoanInfo
	err := s.poolWrite(ctx, "borrow", func(eng *lending.Engine) error {
		var err error
		loan, err = eng.Borrow(user, amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// Repay settles amount of the user's loan.
func (s *Service) Repay(ctx context.Context, user crypto.Address, amount uint64) (*lending.LoanInfo, error) {
	var loan *lending.LoanInfo
	err := s.poolWrite(ctx, "repay", func(eng *lending.Engine) error {
		var err error
		loan, err = eng.Repay(user, amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// Withdraw returns collateral to the user.
func (s *Service) Withdraw(ctx context.Context, user crypto.Address, amount uint64) error {
	return s.poolWrite(ctx, "withdraw", func(eng *lending.Engine) error {
		return eng.WithdrawCollateral(user, amount)
	})
}

// Liquidate closes the borrower's undercollateralised loan on behalf of the
// liquidator.
func (s *Service) Liquidate(ctx context.Context, liquidator, borrower crypto.Address) (*lending.LiquidationResult, error) {
	var res *lending.LiquidationResult
	err := s.poolWrite(ctx, "liquidate", func(eng *lending.Engine) error {
		var err error
		res, err = eng.Liquidate(liquidator, borrower)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Credit mints base asset to addr. Only the pool admin may call it.
func (s *Service) Credit(ctx context.Context, caller, addr crypto.Address, amount uint64) error {
	s.poolMu.Lock()
	defer s.poolMu.Unlock()
	return s.execute(ctx, "bank", "credit", func(tx *txn) error {
		pool, err := s.lendingEngine(tx).Pool()
		if err != nil {
			return err
		}
		if pool == nil {
			return nativecommon.ErrNotInitialized
		}
		if !pool.Admin.Equal(caller) {
			return nativecommon.ErrNotAuthorized
		}
		if addr.IsZero() {
			return nativecommon.ErrInvalidAddress
		}
		return bank.NewLedger(tx.state).Credit(addr, amount)
	})
}

// ApplyGenesis seeds base asset balances the first time it runs against a
// database.
func (s *Service) ApplyGenesis(ctx context.Context, allocs []bank.Allocation) (bool, error) {
	s.poolMu.Lock()
	defer s.poolMu.Unlock()
	var applied bool
	err := s.execute(ctx, "bank", "genesis", func(tx *txn) error {
		var err error
		applied, err = bank.NewLedger(tx.state).ApplyGenesis(allocs)
		return err
	})
	return applied, err
}

// InitializeRegistry creates the reputation registry administered by admin.
func (s *Service) InitializeRegistry(ctx context.Context, admin crypto.Address, collection string) error {
	return s.registryWrite(ctx, "initialize", func(eng *reputation.Engine) error {
		return eng.Initialize(admin, collection)
	})
}

// Mint issues a reputation record for user.
func (s *Service) Mint(ctx context.Context, admin, user crypto.Address, score uint64) (*reputation.Record, error) {
	return s.recordWrite(ctx, "mint", func(eng *reputation.Engine) (*reputation.Record, error) {
		return eng.Mint(admin, user, score)
	})
}

// UpdateReputation overwrites the user's score.
func (s *Service) UpdateReputation(ctx context.Context, admin, user crypto.Address, score uint64) (*reputation.Record, error) {
	return s.recordWrite(ctx, "update", func(eng *reputation.Engine) (*reputation.Record, error) {
		return eng.Update(admin, user, score)
	})
}

// IncreaseReputation adds points to the user's score.
func (s *Service) IncreaseReputation(ctx context.Context, admin, user crypto.Address, points uint64) (*reputation.Record, error) {
	return s.recordWrite(ctx, "increase", func(eng *reputation.Engine) (*reputation.Record, error) {
		return eng.Increase(admin, user, points)
	})
}

// DecreaseReputation subtracts points from the user's score, flooring at one.
func (s *Service) DecreaseReputation(ctx context.Context, admin, user crypto.Address, points uint64) (*reputation.Record, error) {
	return s.recordWrite(ctx, "decrease", func(eng *reputation.Engine) (*reputation.Record, error) {
		return eng.Decrease(admin, user, points)
	})
}

// BatchUpdateReputation applies every score update or none of them.
func (s *Service) BatchUpdateReputation(ctx context.Context, admin crypto.Address, users []crypto.Address, scores []uint64) ([]*reputation.Record, error) {
	var out []*reputation.Record
	err := s.registryWrite(ctx, "batch_update", func(eng *reputation.Engine) error {
		var err error
		out, err = eng.BatchUpdate(admin, users, scores)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) recordWrite(ctx context.Context, op string, fn func(eng *reputation.Engine) (*reputation.Record, error)) (*reputation.Record, error) {
	var rec *reputation.Record
	err := s.registryWrite(ctx, op, func(eng *reputation.Engine) error {
		var err error
		rec, err = fn(eng)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}
