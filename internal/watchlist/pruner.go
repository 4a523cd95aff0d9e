package watchlist

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"token-watchdesk/internal/storage"
)

const defaultPruneInterval = time.Minute

// Pruner runs PruneStale on a ticker, reading the threshold from the
// settings row on every tick so runtime changes take effect without a
// restart. A threshold of zero disables pruning.
type Pruner struct {
	registry *Registry
	settings storage.SettingsStore
	log      *zap.Logger
	interval time.Duration

	stop chan struct{}
	wg   sync.WaitGroup
}

func NewPruner(registry *Registry, settings storage.SettingsStore, log *zap.Logger) *Pruner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pruner{
		registry: registry,
		settings: settings,
		log:      log,
		interval: defaultPruneInterval,
		stop:     make(chan struct{}),
	}
}

func (p *Pruner) Start() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.tick()
			case <-p.stop:
				return
			}
		}
	}()
}

func (p *Pruner) Stop() {
	close(p.stop)
	p.wg.Wait()
}

func (p *Pruner) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	settings, err := p.settings.Get(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			p.log.Error("read settings for prune", zap.Error(err))
		}
		return
	}
	if settings.PruneThresholdMinutes <= 0 {
		return
	}

	threshold := time.Duration(settings.PruneThresholdMinutes) * time.Minute
	if _, err := p.registry.PruneStale(ctx, threshold); err != nil {
		p.log.Error("prune stale tokens", zap.Error(err))
	}
}
