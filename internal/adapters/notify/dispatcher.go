// Package notify delivers engine notifications to external channels.
package notify

import (
	"context"
	"sync"
	"time"

	"aiTradeEngine/internal/domain"
	"aiTradeEngine/internal/metrics"
	"aiTradeEngine/internal/ports"

	"github.com/google/uuid"
)

// Sender is one delivery channel.
type Sender interface {
	Send(ctx context.Context, n *domain.Notification) error
	Name() string
}

// Dispatcher implements ports.Notifier with asynchronous fan-out to every sender.
// Notify never blocks on delivery; Wait drains in-flight deliveries.
type Dispatcher struct {
	senders []Sender
	logger  ports.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

var _ ports.Notifier = (*Dispatcher)(nil)

// NewDispatcher creates a dispatcher over senders. timeout bounds each delivery.
func NewDispatcher(logger ports.Logger, timeout time.Duration, senders ...Sender) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		senders: senders,
		logger:  logger,
		timeout: timeout,
	}
}

// Notify stamps the notification and sends it to all channels in the background.
func (d *Dispatcher) Notify(ctx context.Context, n *domain.Notification) {
	if n == nil || len(d.senders) == 0 {
		return
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now().UTC()
	}

	// Delivery outlives the caller's context.
	deliveryCtx := context.WithoutCancel(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		var wg sync.WaitGroup
		for _, sender := range d.senders {
			wg.Add(1)
			go func(s Sender) {
				defer wg.Done()
				sendCtx, cancel := context.WithTimeout(deliveryCtx, d.timeout)
				defer cancel()
				if err := s.Send(sendCtx, n); err != nil {
					metrics.RecordNotificationFailure(s.Name())
					d.logger.Warn(deliveryCtx, "Notification delivery failed", map[string]interface{}{
						"sender": s.Name(),
						"type":   n.Type,
						"userID": n.UserID,
						"error":  err.Error(),
					})
				}
			}(sender)
		}
		wg.Wait()
	}()
}

// Wait blocks until all in-flight deliveries finish or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
