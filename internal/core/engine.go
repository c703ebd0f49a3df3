package core

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"CDPTreasury/internal/auction"
	"CDPTreasury/internal/dex"
	"CDPTreasury/internal/event"
	"CDPTreasury/internal/ledger"
	"CDPTreasury/internal/observability"
	"CDPTreasury/internal/treasury"
)

// SettlementCore is the single-threaded event processor. Every mutation of
// treasury state flows through ProcessEvent; the surrounding goroutines only
// feed it events and drain its outputs.
type SettlementCore struct {
	sequence          int64
	hasher            *StateHasher
	ledger            *ledger.MemoryLedger
	auctions          *auction.MemoryManager
	dex               *dex.MemoryDEX
	params            *treasury.Params
	treasury          *treasury.Treasury
	idempotency       *IdempotencyChecker
	sequenceValidator *SequenceValidator
	metrics           *observability.Metrics
	log               zerolog.Logger

	persistChan    chan<- CoreOutput
	projectionChan chan<- CoreOutput
}

// CoreOutput is one processed event with its ledger mutations. Pool values
// are captured at emit time so downstream workers never read core state from
// another goroutine. OpenLots and LockedCollateral are populated only when
// the event touched the auction book.
type CoreOutput struct {
	Envelope    *event.EventEnvelope
	Entries     []ledger.Entry
	StateDelta  []byte
	DebitPool   int64
	SurplusPool int64

	OpenLots         []auction.CollateralLot
	LockedCollateral map[ledger.CurrencyID]int64
}

func NewSettlementCore(
	startSequence int64,
	persistChan, projectionChan chan<- CoreOutput,
	dbChecker DBIdempotencyChecker,
	maxAuctionsCount int64,
	genesisAuctionSizes map[ledger.CurrencyID]int64,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *SettlementCore {
	ml := ledger.NewMemoryLedger()
	auctions := auction.NewMemoryManager()
	d := dex.NewMemoryDEX(ml)
	params := treasury.NewParams(maxAuctionsCount, genesisAuctionSizes)

	return &SettlementCore{
		sequence:          startSequence,
		hasher:            NewStateHasher(),
		ledger:            ml,
		auctions:          auctions,
		dex:               d,
		params:            params,
		treasury:          treasury.New(ml, auctions, d, params, log),
		idempotency:       NewIdempotencyChecker(1_000_000, dbChecker),
		sequenceValidator: NewSequenceValidator(),
		metrics:           metrics,
		log:               log,
		persistChan:       persistChan,
		projectionChan:    projectionChan,
	}
}

// Ledger exposes the in-process ledger (seeding, queries, tests).
func (c *SettlementCore) Ledger() *ledger.MemoryLedger { return c.ledger }

// Auctions exposes the in-process auction book.
func (c *SettlementCore) Auctions() *auction.MemoryManager { return c.auctions }

// DEX exposes the in-process swap venue (rate configuration).
func (c *SettlementCore) DEX() *dex.MemoryDEX { return c.dex }

// Treasury exposes the treasury core for queries.
func (c *SettlementCore) Treasury() *treasury.Treasury { return c.treasury }

// ProcessEvent is the main processing pipeline
func (c *SettlementCore) ProcessEvent(evt event.Event) error {
	start := time.Now()
	eventType := evt.EventType().String()
	idempotencyKey := evt.IdempotencyKey()

	// Step 1: Idempotency check (two-tier)
	isDuplicate := c.idempotency.IsDuplicate(eventType, idempotencyKey)

	// Step 2: Sequence validation. Admin-injected events carry a negative
	// source sequence (no upstream ordering) and adopt the partition's next
	// slot.
	partition := c.getPartition(evt)
	sourceSeq := evt.SourceSequence()
	if sourceSeq < 0 {
		sourceSeq = c.sequenceValidator.GetExpectedSequence(partition)
	}
	if err := c.sequenceValidator.ValidateSequence(partition, sourceSeq, idempotencyKey, isDuplicate); err != nil {
		return fmt.Errorf("sequence validation failed: %w", err)
	}

	if isDuplicate {
		if c.metrics != nil {
			c.metrics.CoreEventsRejected.WithLabelValues(eventType, "duplicate").Inc()
		}
		return nil
	}

	// Step 3: Event dispatch. Treasury operations are transactional, so a
	// dispatch error leaves state and journal untouched.
	if err := c.dispatchEvent(evt); err != nil {
		if c.metrics != nil {
			c.metrics.CoreEventsRejected.WithLabelValues(eventType, "dispatch").Inc()
		}
		return fmt.Errorf("dispatch failed: %w", err)
	}

	// Step 4: Drain the ledger mutations this event produced
	entries := c.ledger.TakeJournal()

	// Step 5: State digest and hash chain
	stateDigest := c.computeStateDigest()
	prevHash := c.hasher.GetPrevHash()
	stateHash := c.hasher.ComputeHash(c.sequence, stateDigest)

	// The payload is the event in its wire format, so the event log can be
	// re-parsed by the ingestion parser during replay.
	payload, err := json.Marshal(evt)
	if err != nil {
		panic(fmt.Sprintf("FATAL: marshal event payload %T: %v", evt, err))
	}

	envelope := &event.EventEnvelope{
		Sequence:       c.sequence,
		IdempotencyKey: idempotencyKey,
		EventType:      evt.EventType(),
		Currency:       evt.Currency(),
		Timestamp:      c.getEventTimestamp(evt),
		SourceSequence: sourceSeq,
		Payload:        payload,
		StateHash:      stateHash,
		PrevHash:       prevHash,
	}

	output := CoreOutput{
		Envelope:    envelope,
		Entries:     entries,
		StateDelta:  stateDigest,
		DebitPool:   c.treasury.DebitPool(),
		SurplusPool: c.treasury.SurplusPool(),
	}
	if touchesAuctionBook(evt) {
		output.OpenLots = c.auctions.OpenLots()
		output.LockedCollateral = c.auctions.LockedTotals()
	}
	c.sequence++

	// Step 6: Post-checks
	if err := c.postCheckInvariants(); err != nil {
		panic(fmt.Sprintf("FATAL: invariant violated: %v", err))
	}

	// Step 7: Emit outputs. Persistence uses a BLOCKING send so no event is
	// lost (backpressure stalls the core); projections use a NON-BLOCKING
	// send and rebuild from the event log if they fall behind.
	c.persistChan <- output

	select {
	case c.projectionChan <- output:
	default:
		// Silently dropped — projection catches up via rebuild
	}

	// Step 8: Mark as processed (add to LRU)
	c.idempotency.MarkProcessed(eventType, idempotencyKey)

	if c.metrics != nil {
		c.metrics.CoreEventsApplied.WithLabelValues(eventType).Inc()
		c.metrics.CoreEventDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
		c.metrics.CoreSequence.Set(float64(c.sequence))
		c.metrics.DebitPool.Set(float64(c.treasury.DebitPool()))
		c.metrics.SurplusPool.Set(float64(c.treasury.SurplusPool()))
	}

	return nil
}

// touchesAuctionBook reports whether applying the event can change the open
// lot book or the locked totals.
func touchesAuctionBook(evt event.Event) bool {
	switch e := evt.(type) {
	case *event.AuctionCollateral, *event.AuctionDealt:
		return true
	case *event.SwapExactSupply:
		return e.CollateralInAuction
	case *event.SwapExactTarget:
		return e.CollateralInAuction
	default:
		return false
	}
}

// getPartition determines the partition key for sequence validation
func (c *SettlementCore) getPartition(evt event.Event) string {
	if symbol := evt.Currency(); symbol != nil {
		return fmt.Sprintf("currency:%s", *symbol)
	}
	return "global"
}

// getEventTimestamp extracts the versioned timestamp from the event.
// The core MUST NOT call time.Now(); all timestamps are versioned inputs.
func (c *SettlementCore) getEventTimestamp(evt event.Event) time.Time {
	switch e := evt.(type) {
	case *event.SystemDebit:
		return time.UnixMicro(e.Timestamp)
	case *event.SystemSurplus:
		return time.UnixMicro(e.Timestamp)
	case *event.CollateralDeposit:
		return time.UnixMicro(e.Timestamp)
	case *event.CollateralWithdraw:
		return time.UnixMicro(e.Timestamp)
	case *event.SurplusExtract:
		return time.UnixMicro(e.Timestamp)
	case *event.AuctionCollateral:
		return time.UnixMicro(e.Timestamp)
	case *event.AuctionDealt:
		return time.UnixMicro(e.Timestamp)
	case *event.AuctionSizeUpdate:
		return time.UnixMicro(e.Timestamp)
	case *event.SwapExactSupply:
		return time.UnixMicro(e.Timestamp)
	case *event.SwapExactTarget:
		return time.UnixMicro(e.Timestamp)
	case *event.BlockFinalize:
		return time.UnixMicro(e.Timestamp)
	default:
		panic(fmt.Sprintf("FATAL: getEventTimestamp called with unhandled event type %T", evt))
	}
}

func (c *SettlementCore) dispatchEvent(evt event.Event) error {
	switch e := evt.(type) {
	case *event.SystemDebit:
		return c.treasury.OnSystemDebit(e.Amount)
	case *event.SystemSurplus:
		return c.treasury.OnSystemSurplus(e.Amount)
	case *event.CollateralDeposit:
		return c.handleCollateralDeposit(e)
	case *event.CollateralWithdraw:
		return c.handleCollateralWithdraw(e)
	case *event.SurplusExtract:
		return c.treasury.ExtractSurplusToTreasury(e.Amount)
	case *event.AuctionCollateral:
		return c.handleAuctionCollateral(e)
	case *event.AuctionDealt:
		return c.handleAuctionDealt(e)
	case *event.AuctionSizeUpdate:
		return c.handleAuctionSizeUpdate(e)
	case *event.SwapExactSupply:
		return c.handleSwapExactSupply(e)
	case *event.SwapExactTarget:
		return c.handleSwapExactTarget(e)
	case *event.BlockFinalize:
		return c.handleBlockFinalize(e)
	default:
		return fmt.Errorf("unknown event type: %T", evt)
	}
}

func (c *SettlementCore) handleCollateralDeposit(evt *event.CollateralDeposit) error {
	currency, err := resolveCurrency(evt.Symbol)
	if err != nil {
		return err
	}
	return c.treasury.DepositCollateral(ledger.AccountID(evt.From), currency, evt.Amount)
}

func (c *SettlementCore) handleCollateralWithdraw(evt *event.CollateralWithdraw) error {
	currency, err := resolveCurrency(evt.Symbol)
	if err != nil {
		return err
	}
	return c.treasury.WithdrawCollateral(ledger.AccountID(evt.To), currency, evt.Amount)
}

func (c *SettlementCore) handleAuctionCollateral(evt *event.AuctionCollateral) error {
	currency, err := resolveCurrency(evt.Symbol)
	if err != nil {
		return err
	}
	return c.treasury.AuctionCollateral(currency, evt.Amount, evt.Target, evt.Split)
}

// handleAuctionDealt settles a lot reported by the auction collaborator: the
// winning bid enters the surplus pool and the collateral leaves the treasury.
func (c *SettlementCore) handleAuctionDealt(evt *event.AuctionDealt) error {
	currency, err := resolveCurrency(evt.Symbol)
	if err != nil {
		return err
	}

	restoreLedger := c.ledger.Snapshot()
	restoreAuctions := c.auctions.Snapshot()
	rollback := func() {
		restoreLedger()
		restoreAuctions()
	}

	lot, err := c.auctions.DealLot(evt.LotID)
	if err != nil {
		return err
	}
	if lot.Currency != currency {
		rollback()
		return fmt.Errorf("lot %s holds %s, event says %s", evt.LotID, currencyName(lot.Currency), evt.Symbol)
	}

	winner := ledger.AccountID(evt.Winner)
	if err := c.treasury.DepositSurplus(winner, evt.BidAmount); err != nil {
		rollback()
		return fmt.Errorf("collect bid: %w", err)
	}
	if err := c.treasury.WithdrawCollateral(winner, lot.Currency, lot.Amount); err != nil {
		rollback()
		return fmt.Errorf("pay out collateral: %w", err)
	}
	return nil
}

func (c *SettlementCore) handleAuctionSizeUpdate(evt *event.AuctionSizeUpdate) error {
	currency, err := resolveCurrency(evt.Symbol)
	if err != nil {
		return err
	}
	if err := c.params.SetExpectedCollateralAuctionSize(currency, evt.Size); err != nil {
		return err
	}
	c.log.Info().
		Str("currency", evt.Symbol).
		Int64("size", evt.Size).
		Msg("expected collateral auction size updated")
	return nil
}

func (c *SettlementCore) handleSwapExactSupply(evt *event.SwapExactSupply) error {
	currency, path, err := resolvePath(evt.Symbol, evt.Path)
	if err != nil {
		return err
	}
	target, err := c.treasury.SwapExactCollateralToStable(currency, evt.SupplyAmount, evt.MinTarget, path, evt.CollateralInAuction)
	if err != nil {
		return err
	}
	if evt.CollateralInAuction {
		c.auctions.ReleaseCollateral(currency, evt.SupplyAmount)
	}
	c.log.Debug().
		Str("currency", evt.Symbol).
		Int64("supply", evt.SupplyAmount).
		Int64("target", target).
		Msg("collateral swapped with exact supply")
	return nil
}

func (c *SettlementCore) handleSwapExactTarget(evt *event.SwapExactTarget) error {
	currency, path, err := resolvePath(evt.Symbol, evt.Path)
	if err != nil {
		return err
	}
	supply, err := c.treasury.SwapCollateralToExactStable(currency, evt.TargetAmount, evt.MaxSupply, path, evt.CollateralInAuction)
	if err != nil {
		return err
	}
	if evt.CollateralInAuction {
		c.auctions.ReleaseCollateral(currency, supply)
	}
	c.log.Debug().
		Str("currency", evt.Symbol).
		Int64("supply", supply).
		Int64("target", evt.TargetAmount).
		Msg("collateral swapped with exact target")
	return nil
}

// handleBlockFinalize closes the settlement cycle: net bad debt against
// surplus by burning min(debit, surplus).
func (c *SettlementCore) handleBlockFinalize(evt *event.BlockFinalize) error {
	burned := c.treasury.OffsetSurplusAndDebit()
	if burned > 0 {
		c.log.Info().
			Int64("block", evt.BlockNumber).
			Int64("burned", burned).
			Msg("surplus and debit offset")
	}
	if c.metrics != nil {
		c.metrics.OffsetBurned.Add(float64(burned))
	}
	return nil
}

// computeStateDigest creates canonical bytes over the full treasury state:
// every balance, every issuance, the debit pool. The state is small enough
// that hashing all of it per event is cheaper than tracking deltas.
func (c *SettlementCore) computeStateDigest() []byte {
	balances := c.ledger.Balances()
	issuance := c.ledger.Issuance()

	currencies := make([]ledger.CurrencyID, 0, len(balances))
	for cur := range balances {
		currencies = append(currencies, cur)
	}
	for cur := range issuance {
		if _, ok := balances[cur]; !ok {
			currencies = append(currencies, cur)
		}
	}
	sort.Slice(currencies, func(i, j int) bool { return currencies[i] < currencies[j] })

	digest := make([]byte, 0, 256)
	for _, cur := range currencies {
		digest = append(digest, byte(cur), byte(cur>>8))

		accounts := make([]ledger.AccountID, 0, len(balances[cur]))
		for a := range balances[cur] {
			accounts = append(accounts, a)
		}
		sort.Slice(accounts, func(i, j int) bool { return accounts[i] < accounts[j] })

		for _, a := range accounts {
			digest = append(digest, byte(len(a)))
			digest = append(digest, []byte(a)...)
			digest = appendInt64LE(digest, balances[cur][a])
		}
		digest = appendInt64LE(digest, issuance[cur])
	}
	digest = appendInt64LE(digest, c.treasury.DebitPool())

	return digest
}

func appendInt64LE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}

// postCheckInvariants validates treasury invariants after event application
func (c *SettlementCore) postCheckInvariants() error {
	if c.treasury.DebitPool() < 0 {
		return fmt.Errorf("debit pool negative: %d", c.treasury.DebitPool())
	}

	// Periodic reconciliation: total issuance must equal the sum of account
	// balances for every currency.
	if c.sequence > 0 && c.sequence%1000 == 0 {
		balances := c.ledger.Balances()
		issuance := c.ledger.Issuance()
		for cur, accounts := range balances {
			var total int64
			for _, b := range accounts {
				total += b
			}
			if total != issuance[cur] {
				return fmt.Errorf("issuance mismatch for %s: balances sum %d, issuance %d (at seq %d)",
					currencyName(cur), total, issuance[cur], c.sequence)
			}
		}
	}

	return nil
}

func resolveCurrency(symbol string) (ledger.CurrencyID, error) {
	currency, ok := ledger.GetCurrencyID(symbol)
	if !ok {
		return 0, fmt.Errorf("unknown currency: %s", symbol)
	}
	return currency, nil
}

func resolvePath(symbol string, symbols []string) (ledger.CurrencyID, []ledger.CurrencyID, error) {
	currency, err := resolveCurrency(symbol)
	if err != nil {
		return 0, nil, err
	}
	path := make([]ledger.CurrencyID, len(symbols))
	for i, s := range symbols {
		path[i], err = resolveCurrency(s)
		if err != nil {
			return 0, nil, err
		}
	}
	return currency, path, nil
}

func currencyName(c ledger.CurrencyID) string {
	if s, ok := ledger.GetCurrencySymbol(c); ok {
		return s
	}
	return fmt.Sprintf("currency(%d)", c)
}

// --- Snapshot Restore & Startup Methods ---

// SnapshotState holds the serializable in-memory state for restore.
type SnapshotState struct {
	Sequence         int64
	StateHash        [32]byte
	Balances         map[ledger.CurrencyID]map[ledger.AccountID]int64
	Issuance         map[ledger.CurrencyID]int64
	DebitPool        int64
	AuctionSizes     map[ledger.CurrencyID]int64
	OpenLots         []auction.CollateralLot
	LockedCollateral map[ledger.CurrencyID]int64
	LotSequence      int64
	SequenceState    map[string]int64
	IdempotencyKeys  []string
}

// RestoreFromSnapshot restores the core's in-memory state. On warm restart
// the latest snapshot is loaded first, then the event log is replayed from
// the snapshot sequence.
func (c *SettlementCore) RestoreFromSnapshot(snap *SnapshotState) {
	c.sequence = snap.Sequence + 1 // Next sequence to assign
	c.hasher.SetPrevHash(snap.StateHash)

	for cur, accounts := range snap.Balances {
		for a, b := range accounts {
			c.ledger.SetBalance(cur, a, b)
		}
	}
	for cur, i := range snap.Issuance {
		c.ledger.SetIssuance(cur, i)
	}

	c.treasury.SetDebitPool(snap.DebitPool)
	c.params.RestoreAuctionSizes(snap.AuctionSizes)
	c.auctions.Restore(snap.OpenLots, snap.LockedCollateral, snap.LotSequence)

	for partition, nextSeq := range snap.SequenceState {
		c.sequenceValidator.RestorePartition(partition, nextSeq)
	}
}

// WarmLRU loads recent idempotency keys into the LRU cache.
func (c *SettlementCore) WarmLRU(keys []string) {
	c.idempotency.lru.WarmFromKeys(keys)
}

// GetSequence returns the current global sequence number.
func (c *SettlementCore) GetSequence() int64 {
	return c.sequence
}

// GetStateHash returns the current state hash (chain tip).
func (c *SettlementCore) GetStateHash() [32]byte {
	return c.hasher.GetPrevHash()
}

// CreateSnapshotState captures the current in-memory state for persistence.
func (c *SettlementCore) CreateSnapshotState() *SnapshotState {
	return &SnapshotState{
		Sequence:         c.sequence - 1, // Last processed sequence
		StateHash:        c.hasher.GetPrevHash(),
		Balances:         c.ledger.Balances(),
		Issuance:         c.ledger.Issuance(),
		DebitPool:        c.treasury.DebitPool(),
		AuctionSizes:     c.params.AuctionSizes(),
		OpenLots:         c.auctions.OpenLots(),
		LockedCollateral: c.auctions.LockedTotals(),
		LotSequence:      c.auctions.LotSequence(),
		SequenceState:    c.sequenceValidator.GetAllPartitions(),
		IdempotencyKeys:  c.idempotency.lru.GetAllKeys(),
	}
}
