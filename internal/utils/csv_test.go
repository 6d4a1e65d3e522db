package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"aiTradeEngine/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteTradesToCSV(t *testing.T) {
	at := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	pnl := -4.5
	trades := []*domain.TradeHistoryEntry{
		{UserID: 1, DecisionID: 7, PositionID: 3, Symbol: "BTCUSDT", Action: domain.TradeOpen, Type: domain.Short,
			Quantity: 1, Price: 100, Amount: 100, Notes: "confidence 65", CreatedAt: at},
		{UserID: 1, PositionID: 3, Symbol: "BTCUSDT", Action: domain.TradeClose, Type: domain.Short,
			Quantity: 1, Price: 104.5, Amount: 104.5, PnL: &pnl, Notes: "STOP_LOSS", CreatedAt: at},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteTradesToCSV(trades, &buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "created_at,user_id,decision_id"))
	assert.Equal(t, "2026-02-03T04:05:06Z,1,7,3,BTCUSDT,OPEN,SHORT,1,100,100,,confidence 65", lines[1])
	assert.Equal(t, "2026-02-03T04:05:06Z,1,0,3,BTCUSDT,CLOSE,SHORT,1,104.5,104.5,-4.5,STOP_LOSS", lines[2])
}

func TestWriteTradesToCSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.csv")
	require.NoError(t, WriteTradesToCSVFile(nil, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "created_at,user_id,decision_id,position_id,symbol,action,type,quantity,price,amount,pnl,notes\n", string(data))
}
