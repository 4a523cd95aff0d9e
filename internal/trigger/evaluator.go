package trigger

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/glob"
	"go.uber.org/zap"

	"token-watchdesk/internal/domain"
	"token-watchdesk/internal/metrics"
	"token-watchdesk/internal/observability"
	"token-watchdesk/internal/storage"
)

// WatchSet applies trigger side effects. Both operations are
// idempotent; re-watching a watched mint and unwatching an unknown one
// are no-ops.
type WatchSet interface {
	Watch(ctx context.Context, mint string) error
	Unwatch(ctx context.Context, mint string) error
}

// Classifier resolves llmPrompt conditions through an external model.
// Out of core scope; the evaluator only needs the boolean answer.
type Classifier interface {
	Classify(ctx context.Context, prompt string, token *domain.Token) (bool, error)
}

type queueItem struct {
	group *domain.TriggerGroup
	event domain.Event
}

// Evaluator owns the trigger queue: a FIFO of (group, event) pairs
// drained one item at a time on a fixed tick under a processing flag.
type Evaluator struct {
	tokens     storage.TokenStore
	watchSet   WatchSet
	classifier Classifier
	window     *RollingWindow
	log        *zap.Logger

	interval time.Duration

	groupsMu sync.RWMutex
	groups   []*domain.TriggerGroup

	queueMu sync.Mutex
	queue   []queueItem

	processing atomic.Bool

	processedCount atomic.Int64
	lastProcessed  atomic.Int64

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup

	nowFn func() int64
}

// NewEvaluator creates an evaluator. classifier may be nil, in which
// case llmPrompt conditions never match.
func NewEvaluator(tokens storage.TokenStore, watchSet WatchSet, classifier Classifier, interval time.Duration, log *zap.Logger) *Evaluator {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &Evaluator{
		tokens:     tokens,
		watchSet:   watchSet,
		classifier: classifier,
		window:     NewRollingWindow(DefaultHorizon),
		log:        log,
		interval:   interval,
		stop:       make(chan struct{}),
		nowFn:      func() int64 { return time.Now().UnixMilli() },
	}
}

// SetGroups replaces the evaluated group set. Evaluation never mutates
// a group, so callers may reuse the slice's items.
func (ev *Evaluator) SetGroups(groups []*domain.TriggerGroup) {
	ev.groupsMu.Lock()
	ev.groups = groups
	ev.groupsMu.Unlock()
}

// LoadGroups reads the group set from the store.
func (ev *Evaluator) LoadGroups(ctx context.Context, store storage.TriggerGroupStore) error {
	groups, err := store.List(ctx)
	if err != nil {
		return err
	}
	ev.SetGroups(groups)
	return nil
}

// OnEvent feeds one classified feed event into the evaluator: trades
// extend the mint's rolling window, and every enabled group is queued
// against the event.
func (ev *Evaluator) OnEvent(event domain.Event) {
	if trade, ok := event.(*domain.TradeEvent); ok {
		ev.window.Add(trade)
	}
	if event.EventMint() == "" {
		return
	}

	ev.groupsMu.RLock()
	groups := ev.groups
	ev.groupsMu.RUnlock()

	for _, group := range groups {
		if group.Enabled {
			ev.QueueEvaluation(group, event)
		}
	}
}

// QueueEvaluation appends one (group, event) pair to the FIFO.
func (ev *Evaluator) QueueEvaluation(group *domain.TriggerGroup, event domain.Event) {
	ev.queueMu.Lock()
	ev.queue = append(ev.queue, queueItem{group: group, event: event})
	n := len(ev.queue)
	ev.queueMu.Unlock()
	observability.UpdateTriggerQueueDepth(n)
}

// Start runs the drain ticker until Stop.
func (ev *Evaluator) Start() {
	ev.wg.Add(1)
	go func() {
		defer ev.wg.Done()
		ticker := time.NewTicker(ev.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ev.stop:
				return
			case <-ticker.C:
				ev.Drain(context.Background())
			}
		}
	}()
}

// Stop halts the ticker. Queued pairs survive and are processed after
// the next Start or an explicit Drain.
func (ev *Evaluator) Stop() {
	ev.stopOnce.Do(func() { close(ev.stop) })
	ev.wg.Wait()
}

// Drain processes queued pairs one at a time until the queue is empty.
// Skipped when a drain is already in flight.
func (ev *Evaluator) Drain(ctx context.Context) {
	if ev.processing.Swap(true) {
		return
	}
	defer ev.processing.Store(false)

	for {
		ev.queueMu.Lock()
		if len(ev.queue) == 0 {
			ev.queueMu.Unlock()
			observability.UpdateTriggerQueueDepth(0)
			return
		}
		item := ev.queue[0]
		ev.queue = ev.queue[1:]
		n := len(ev.queue)
		ev.queueMu.Unlock()
		observability.UpdateTriggerQueueDepth(n)

		ev.process(ctx, item)
	}
}

func (ev *Evaluator) process(ctx context.Context, item queueItem) {
	defer func() {
		ev.processedCount.Add(1)
		ev.lastProcessed.Store(ev.nowFn())
		observability.RecordTriggerEvaluation()
	}()

	mint := item.event.EventMint()
	token, err := ev.tokens.GetByMint(ctx, mint)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Eventual consistency: a later event for this mint will
			// queue the group again once the token row exists.
			ev.log.Debug("trigger dropped for unknown token",
				zap.String("mint", mint), zap.String("group", item.group.Name))
			return
		}
		ev.log.Warn("trigger token lookup failed",
			zap.String("mint", mint), zap.Error(err))
		return
	}

	if !ev.evaluateGroup(ctx, item.group, token) {
		return
	}

	observability.RecordTriggerMatch(string(item.group.Type))
	ev.log.Info("trigger group matched",
		zap.String("group", item.group.Name),
		zap.String("type", string(item.group.Type)),
		zap.String("mint", mint))

	switch item.group.Type {
	case domain.TriggerWatch:
		if err := ev.watchSet.Watch(ctx, mint); err != nil {
			ev.log.Warn("watch side effect failed", zap.String("mint", mint), zap.Error(err))
		}
	case domain.TriggerUnwatch:
		if err := ev.watchSet.Unwatch(ctx, mint); err != nil {
			ev.log.Warn("unwatch side effect failed", zap.String("mint", mint), zap.Error(err))
		}
	}
}

// evaluateGroup applies AND/OR over the group's conditions. A group
// with no conditions never matches.
func (ev *Evaluator) evaluateGroup(ctx context.Context, group *domain.TriggerGroup, token *domain.Token) bool {
	if len(group.Conditions) == 0 {
		return false
	}

	switch group.Operator {
	case domain.OperatorAND:
		for i := range group.Conditions {
			if !ev.evaluateCondition(ctx, &group.Conditions[i], token) {
				return false
			}
		}
		return true
	case domain.OperatorOR:
		for i := range group.Conditions {
			if ev.evaluateCondition(ctx, &group.Conditions[i], token) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// evaluateCondition resolves one condition. Malformed conditions
// (missing comparison or threshold, bad pattern) evaluate to false,
// never error.
func (ev *Evaluator) evaluateCondition(ctx context.Context, cond *domain.TriggerCondition, token *domain.Token) bool {
	switch cond.Metric {
	case domain.MetricWildcardSearch:
		if cond.Pattern == "" {
			return false
		}
		g, err := glob.Compile(strings.ToLower(cond.Pattern))
		if err != nil {
			ev.log.Debug("bad wildcard pattern", zap.String("pattern", cond.Pattern), zap.Error(err))
			return false
		}
		return g.Match(strings.ToLower(token.Name))

	case domain.MetricLLMPrompt:
		if ev.classifier == nil || cond.Prompt == "" {
			return false
		}
		matched, err := ev.classifier.Classify(ctx, cond.Prompt, token)
		if err != nil {
			ev.log.Debug("classifier failed", zap.String("mint", token.Mint), zap.Error(err))
			return false
		}
		return matched
	}

	if cond.Comparison == "" || cond.Value == nil {
		return false
	}

	value := ev.resolveMetric(cond.Metric, token)
	return compare(value, cond.Comparison, *cond.Value)
}

// resolveMetric maps a metric name to a value computed from the mint's
// rolling window. Unrecognized names resolve to 0: a silent false
// negative beats crashing the evaluation loop.
func (ev *Evaluator) resolveMetric(metric string, token *domain.Token) float64 {
	now := ev.nowFn()
	history := ev.window.Get(token.Mint, now)
	snap := metrics.Compute(toRecords(history), ev.window.horizonMs, now)

	switch metric {
	case domain.MetricVolumeRate:
		return snap.VolumeRate
	case domain.MetricTradeFrequency:
		return snap.TradeFrequency
	case domain.MetricPriceChange:
		return snap.PriceChangePct
	case domain.MetricTotalVolume:
		return snap.TotalVolume
	case domain.MetricBuyPercentage:
		return snap.BuyRatio
	case domain.MetricBuyCount:
		return float64(countBuys(history))
	case domain.MetricConsecutiveBuys:
		return float64(consecutiveBuys(history))
	case domain.MetricVolumeDecline:
		return volumeDecline(history)
	case domain.MetricPriceDrop:
		return priceDrop(history)
	case domain.MetricInactiveTime:
		if token.LastTradeTime == 0 {
			return 0
		}
		return float64(now-token.LastTradeTime) / 60_000 // minutes
	default:
		return 0
	}
}

// toRecords adapts window events to the aggregator's input, newest
// first.
func toRecords(history []*domain.TradeEvent) []*domain.TradeRecord {
	records := make([]*domain.TradeRecord, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		e := history[i]
		price := e.Price()
		records = append(records, &domain.TradeRecord{
			TokenMint: e.Mint,
			Timestamp: e.Received,
			Side:      e.Side,
			Price:     price,
			Volume:    e.TokenAmount * price,
		})
	}
	return records
}

func countBuys(history []*domain.TradeEvent) int {
	n := 0
	for _, e := range history {
		if e.Side == domain.SideBuy {
			n++
		}
	}
	return n
}

// consecutiveBuys counts trailing buys scanning backward from the most
// recent trade; a sell breaks the streak.
func consecutiveBuys(history []*domain.TradeEvent) int {
	n := 0
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Side != domain.SideBuy {
			break
		}
		n++
	}
	return n
}

// volumeDecline compares the window's recent half against its earlier
// half and returns the decline percentage, clamped to [0, 100]. Zero
// when the earlier half has no volume.
func volumeDecline(history []*domain.TradeEvent) float64 {
	if len(history) < 2 {
		return 0
	}
	mid := len(history) / 2

	var earlier, recent float64
	for i, e := range history {
		v := e.TokenAmount * e.Price()
		if i < mid {
			earlier += v
		} else {
			recent += v
		}
	}
	if earlier <= 0 {
		return 0
	}

	decline := (earlier - recent) / earlier * 100
	if decline < 0 {
		return 0
	}
	if decline > 100 {
		return 100
	}
	return decline
}

// priceDrop returns the percentage drop of the latest price from the
// window peak, clamped to >= 0.
func priceDrop(history []*domain.TradeEvent) float64 {
	if len(history) == 0 {
		return 0
	}

	peak := 0.0
	for _, e := range history {
		if p := e.Price(); p > peak {
			peak = p
		}
	}
	if peak <= 0 {
		return 0
	}

	drop := (peak - history[len(history)-1].Price()) / peak * 100
	if drop < 0 {
		return 0
	}
	return drop
}

func compare(value float64, cmp domain.TriggerComparison, threshold float64) bool {
	switch cmp {
	case domain.CompareGT:
		return value > threshold
	case domain.CompareLT:
		return value < threshold
	case domain.CompareEQ:
		return value == threshold
	case domain.CompareGE:
		return value >= threshold
	case domain.CompareLE:
		return value <= threshold
	default:
		return false
	}
}

// QueueLength returns the number of queued pairs. Cheap synchronous
// read for the diagnostics surface.
func (ev *Evaluator) QueueLength() int {
	ev.queueMu.Lock()
	defer ev.queueMu.Unlock()
	return len(ev.queue)
}

// ProcessedCount returns the lifetime number of processed pairs.
func (ev *Evaluator) ProcessedCount() int64 {
	return ev.processedCount.Load()
}

// LastProcessedAt returns the unix-millisecond timestamp of the last
// processed pair, 0 if none yet.
func (ev *Evaluator) LastProcessedAt() int64 {
	return ev.lastProcessed.Load()
}
