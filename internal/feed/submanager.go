package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"token-watchdesk/internal/domain"
	"token-watchdesk/internal/observability"
	"token-watchdesk/internal/storage"
)

// Conn is the connection surface the subscription manager drives.
// Satisfied by *Client.
type Conn interface {
	Send(msg OutboundMessage)
	IsActive(mint string) bool
	MarkActive(mints []string)
	MarkInactive(mints []string)
}

// SubManager batches and deduplicates subscription intents. Intents
// accumulate in a queue and are drained on a fixed tick: per mint only
// the final desired state survives, intents already satisfied by the
// active set are discarded, and at most one batched subscribe and one
// batched unsubscribe message go out per cycle.
type SubManager struct {
	conn Conn
	subs storage.SubscriptionStore
	log  *zap.Logger

	interval time.Duration

	queueMu sync.Mutex
	queue   []domain.SubscriptionIntent

	// draining enforces at most one drain in flight; a tick firing
	// mid-drain is skipped.
	draining atomic.Bool

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup

	nowFn func() int64
}

// NewSubManager creates a subscription manager draining on the given
// interval.
func NewSubManager(conn Conn, subs storage.SubscriptionStore, interval time.Duration, log *zap.Logger) *SubManager {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &SubManager{
		conn:     conn,
		subs:     subs,
		interval: interval,
		log:      log,
		stop:     make(chan struct{}),
		nowFn:    func() int64 { return time.Now().UnixMilli() },
	}
}

// RequestSubscribe durably records the intent, then queues it. The
// durable row lets a restart recover intended state even though the
// in-memory queue is lost.
func (m *SubManager) RequestSubscribe(ctx context.Context, mint string) error {
	err := m.subs.Put(ctx, &domain.Subscription{
		Mint:          mint,
		SubscribeTime: m.nowFn(),
		Status:        domain.SubscriptionActive,
	})
	if err != nil {
		return fmt.Errorf("record subscription intent: %w", err)
	}
	m.Enqueue(mint, domain.ActionSubscribe)
	return nil
}

// RequestUnsubscribe marks the durable row inactive, then queues the
// intent. A missing row is not an error; the queue entry alone is
// enough to stop the trade stream.
func (m *SubManager) RequestUnsubscribe(ctx context.Context, mint string) error {
	err := m.subs.Put(ctx, &domain.Subscription{
		Mint:          mint,
		SubscribeTime: m.nowFn(),
		Status:        domain.SubscriptionInactive,
	})
	if err != nil {
		return fmt.Errorf("record unsubscription intent: %w", err)
	}
	m.Enqueue(mint, domain.ActionUnsubscribe)
	return nil
}

// Enqueue appends an intent without touching the durable store. Used
// by the ingestor, whose creation transaction has already written the
// subscription row.
func (m *SubManager) Enqueue(mint string, action domain.SubscriptionAction) {
	m.queueMu.Lock()
	m.queue = append(m.queue, domain.SubscriptionIntent{
		Mint:        mint,
		Action:      action,
		EnqueueTime: m.nowFn(),
	})
	n := len(m.queue)
	m.queueMu.Unlock()
	observability.UpdateSubscriptionQueueDepth(n)
}

// QueueLength returns the number of pending intents.
func (m *SubManager) QueueLength() int {
	m.queueMu.Lock()
	defer m.queueMu.Unlock()
	return len(m.queue)
}

// Start runs the drain ticker until Stop.
func (m *SubManager) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stop:
				return
			case <-ticker.C:
				m.Drain()
			}
		}
	}()
}

// Stop halts the ticker. Queued intents are kept and processed after
// the next Start or an explicit Drain.
func (m *SubManager) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	m.wg.Wait()
}

// Drain processes the whole queue once. Skipped if a drain is already
// in flight.
func (m *SubManager) Drain() {
	if m.draining.Swap(true) {
		return
	}
	defer m.draining.Store(false)

	m.queueMu.Lock()
	batch := m.queue
	m.queue = nil
	m.queueMu.Unlock()
	observability.UpdateSubscriptionQueueDepth(0)

	if len(batch) == 0 {
		return
	}

	// Collapse to per-mint final desired state; the last intent wins.
	final := make(map[string]domain.SubscriptionAction, len(batch))
	order := make([]string, 0, len(batch))
	for _, intent := range batch {
		if _, seen := final[intent.Mint]; !seen {
			order = append(order, intent.Mint)
		}
		final[intent.Mint] = intent.Action
	}

	var toSubscribe, toUnsubscribe []string
	for _, mint := range order {
		switch final[mint] {
		case domain.ActionSubscribe:
			if !m.conn.IsActive(mint) {
				toSubscribe = append(toSubscribe, mint)
			}
		case domain.ActionUnsubscribe:
			if m.conn.IsActive(mint) {
				toUnsubscribe = append(toUnsubscribe, mint)
			}
		}
	}

	// Fire-and-forget: the active set is updated optimistically right
	// after the batch is sent, with no acknowledgment. A stale entry
	// self-heals because redundant subscribes are harmless upstream.
	if len(toSubscribe) > 0 {
		m.conn.Send(OutboundMessage{Method: MethodSubscribeTokenTrade, Keys: toSubscribe})
		m.conn.MarkActive(toSubscribe)
		observability.RecordSubscribeBatch()
		m.log.Debug("subscribe batch sent", zap.Int("mints", len(toSubscribe)))
	}
	if len(toUnsubscribe) > 0 {
		m.conn.Send(OutboundMessage{Method: MethodUnsubscribeTokenTrade, Keys: toUnsubscribe})
		m.conn.MarkInactive(toUnsubscribe)
		observability.RecordUnsubscribeBatch()
		m.log.Debug("unsubscribe batch sent", zap.Int("mints", len(toUnsubscribe)))
	}
}

// RestoreIfEnabled reads the auto-resubscribe flag from the settings
// row and restores only when it is on. Reading at the decision point
// means a settings change applies to the very next reconnect, no
// restart needed. A missing row counts as enabled, matching the
// config default.
func (m *SubManager) RestoreIfEnabled(ctx context.Context, settings storage.SettingsStore) error {
	s, err := settings.Get(ctx)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("read settings for restore: %w", err)
	}
	if s != nil && !s.AutoResubscribe {
		m.log.Debug("auto-resubscribe disabled, skipping restore")
		return nil
	}
	return m.Restore(ctx)
}

// Restore re-queues subscribe intents for every durable active
// subscription. Called from the connection's open hook when
// auto-resubscribe is enabled.
func (m *SubManager) Restore(ctx context.Context) error {
	subs, err := m.subs.ListByStatus(ctx, domain.SubscriptionActive)
	if err != nil {
		return fmt.Errorf("list active subscriptions: %w", err)
	}
	for _, sub := range subs {
		m.Enqueue(sub.Mint, domain.ActionSubscribe)
	}
	if len(subs) > 0 {
		m.log.Info("queued subscription restore", zap.Int("mints", len(subs)))
	}
	return nil
}
