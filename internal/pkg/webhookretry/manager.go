package webhookretry

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/coinchartfun/coinchart-backend/app/repository"
	"github.com/coinchartfun/coinchart-backend/internal/pkg/billing"
	metrics "github.com/coinchartfun/coinchart-backend/internal/pkg/metrics/counter"
)

const (
	defaultReplayInterval = 2 * time.Minute
	defaultBatchSize      = 50
	maxReplayAttempts     = 10
)

// Manager periodically replays webhook deliveries that were recorded but
// never successfully applied, e.g. because the reconciler exhausted its
// conflict retries or the store was down when the delivery arrived.
type Manager struct {
	processor *billing.Processor
	events    repository.WebhookEventRepository

	interval  time.Duration
	batchSize int

	ticker  *time.Ticker
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewManager creates a replay manager over the shared processor.
func NewManager(processor *billing.Processor, events repository.WebhookEventRepository) *Manager {
	return &Manager{
		processor: processor,
		events:    events,
		interval:  defaultReplayInterval,
		batchSize: defaultBatchSize,
		stopCh:    make(chan struct{}),
	}
}

// Start starts the background replay loop
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so the manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	m.ticker = time.NewTicker(m.interval)
	m.wg.Add(1)
	go m.replayWorker()

	log.Info("[WebhookRetry] Started replay worker")
}

// Stop stops the background replay loop and waits for in-flight work
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	if m.ticker != nil {
		m.ticker.Stop()
	}
	close(m.stopCh)
	m.wg.Wait()
	m.running = false

	log.Info("[WebhookRetry] Stopped replay worker")
}

// IsRunning reports whether the replay loop is active
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Manager) replayWorker() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ticker.C:
			m.ReplayPending(context.Background())
		case <-m.stopCh:
			return
		}
	}
}

// ReplayPending runs one replay sweep. It is exported so an admin endpoint
// can trigger a sweep on demand.
func (m *Manager) ReplayPending(ctx context.Context) {
	pending, err := m.events.ListUnprocessed(m.batchSize)
	if err != nil {
		log.Errorf("[WebhookRetry] listing pending deliveries failed: %v", err)
		return
	}
	if len(pending) == 0 {
		return
	}

	log.Infof("[WebhookRetry] replaying %d pending deliveries", len(pending))
	for i := range pending {
		event := &pending[i]
		if event.Attempts >= maxReplayAttempts {
			// Poisoned delivery; leave it in the log for manual inspection
			// but stop burning attempts on it.
			continue
		}

		if err := m.processor.Process(ctx, event); err != nil {
			log.Errorf("[WebhookRetry] replay of %s event %s failed: %v", event.Provider, event.ProviderEventID, err)
			if markErr := m.events.MarkFailed(event.ID, err.Error()); markErr != nil {
				log.Errorf("[WebhookRetry] marking delivery %d failed: %v", event.ID, markErr)
			}
			_ = metrics.AddWebhookFailed(event.Provider)
			continue
		}

		if err := m.events.MarkProcessed(event.ID); err != nil {
			log.Errorf("[WebhookRetry] marking delivery %d processed: %v", event.ID, err)
			continue
		}
		_ = metrics.AddWebhookReplayed(event.Provider)
	}
}
