package notify

import (
	"context"

	"aiTradeEngine/internal/domain"
	"aiTradeEngine/internal/ports"
)

// LogSender writes notifications to the application log.
type LogSender struct {
	logger ports.Logger
}

// NewLogSender creates a log-backed sender.
func NewLogSender(logger ports.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Name returns the sender name.
func (l *LogSender) Name() string {
	return "log"
}

// Send logs the notification at info level.
func (l *LogSender) Send(ctx context.Context, n *domain.Notification) error {
	fields := map[string]interface{}{
		"id":     n.ID,
		"type":   n.Type,
		"userID": n.UserID,
	}
	if n.Symbol != "" {
		fields["symbol"] = n.Symbol
	}
	if n.Action != "" {
		fields["action"] = n.Action
	}
	if n.Reason != "" {
		fields["reason"] = n.Reason
	}
	if n.PnL != nil {
		fields["pnl"] = *n.PnL
	}
	for k, v := range n.Data {
		fields[k] = v
	}
	l.logger.Info(ctx, "Notification", fields)
	return nil
}
