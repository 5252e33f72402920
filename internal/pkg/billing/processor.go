package billing

import (
	"context"
	"fmt"

	"github.com/coinchartfun/coinchart-backend/app/models"
)

// Processor routes a stored webhook delivery through the right provider
// normalizer and into the reconciler. The webhook controllers use it on the
// hot path; the replay worker uses it for deliveries that failed there.
type Processor struct {
	service     *Service
	normalizers map[string]Normalizer
}

// NewProcessor wires the reconciler with one normalizer per provider.
func NewProcessor(service *Service, normalizers ...Normalizer) *Processor {
	byProvider := make(map[string]Normalizer, len(normalizers))
	for _, n := range normalizers {
		byProvider[n.Provider()] = n
	}
	return &Processor{service: service, normalizers: byProvider}
}

// Service exposes the underlying reconciler for read-model queries.
func (p *Processor) Service() *Service {
	return p.service
}

// Process normalizes and applies one recorded delivery.
func (p *Processor) Process(ctx context.Context, event *models.WebhookEvent) error {
	normalizer, ok := p.normalizers[event.Provider]
	if !ok {
		return fmt.Errorf("%w: no normalizer for provider %q", ErrInvalidPayload, event.Provider)
	}

	upd, err := normalizer.Normalize(ctx, event.EventType, []byte(event.PayloadJSON))
	if err != nil {
		return err
	}
	return p.service.Apply(ctx, upd)
}
