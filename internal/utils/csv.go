package utils

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"

	"aiTradeEngine/internal/domain"
)

// WriteTradesToCSVFile writes the trade history to filename, replacing any existing file.
func WriteTradesToCSVFile(trades []*domain.TradeHistoryEntry, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return WriteTradesToCSV(trades, file)
}

// WriteTradesToCSV writes one row per trade history entry. The pnl column is empty for OPEN entries.
func WriteTradesToCSV(trades []*domain.TradeHistoryEntry, w io.Writer) error {
	writer := csv.NewWriter(w)

	// Write header
	if err := writer.Write([]string{"created_at", "user_id", "decision_id", "position_id", "symbol", "action", "type", "quantity", "price", "amount", "pnl", "notes"}); err != nil {
		return err
	}

	for _, t := range trades {
		pnl := ""
		if t.PnL != nil {
			pnl = strconv.FormatFloat(*t.PnL, 'f', -1, 64)
		}
		if err := writer.Write([]string{
			t.CreatedAt.UTC().Format(time.RFC3339),
			strconv.FormatInt(t.UserID, 10),
			strconv.FormatInt(t.DecisionID, 10),
			strconv.FormatInt(t.PositionID, 10),
			t.Symbol,
			string(t.Action),
			string(t.Type),
			strconv.FormatFloat(t.Quantity, 'f', -1, 64),
			strconv.FormatFloat(t.Price, 'f', -1, 64),
			strconv.FormatFloat(t.Amount, 'f', -1, 64),
			pnl,
			t.Notes,
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
