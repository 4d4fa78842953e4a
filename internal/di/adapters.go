package di

import (
	"context"
	"fmt"

	"Confluence/internal/services/cachehandle"
	pkgkafka "Confluence/pkg/kafka"
)

// handleInvalidator drops a symbol's cached indicators through the cache
// handle. While the cache is still pending there is nothing to drop.
type handleInvalidator struct {
	h *cachehandle.Handle
}

func (i handleInvalidator) Invalidate(ctx context.Context, symbol string) error {
	inst, err := i.h.Instance()
	if err != nil {
		return nil
	}
	inv, ok := inst.(interface {
		Invalidate(ctx context.Context, symbol string) error
	})
	if !ok {
		return fmt.Errorf("cache instance %T cannot invalidate", inst)
	}
	return inv.Invalidate(ctx, symbol)
}

// consumerService adapts the Kafka consumer to the app lifecycle.
type consumerService struct {
	c *pkgkafka.Consumer
}

func (s consumerService) Start(context.Context) error { return s.c.Start() }

func (s consumerService) Stop(ctx context.Context) error { return s.c.Stop(ctx) }
