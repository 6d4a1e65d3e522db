package domain

import "time"

// NotificationType identifies the kind of outbound notification.
type NotificationType string

const (
	NotifyTradeExecuted    NotificationType = "trade_executed"
	NotifyTradeError       NotificationType = "trade_error"
	NotifyPositionClosed   NotificationType = "position_closed"
	NotifyExecutionSummary NotificationType = "execution_summary"
)

// Notification is a fire-and-forget event delivered to the external notifier.
type Notification struct {
	ID        string
	Type      NotificationType
	UserID    int64 // 0 for aggregate events
	Symbol    string
	Action    string
	Reason    string
	PnL       *float64
	Timestamp time.Time
	Data      map[string]interface{}
}
