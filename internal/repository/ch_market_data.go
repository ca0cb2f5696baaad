package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"FusionTrader/internal/domain/models"
	domrepo "FusionTrader/internal/domain/repository"
	pkgch "FusionTrader/pkg/clickhouse"
	applogger "FusionTrader/pkg/logger"
)

// CHMarketData serves bars from ClickHouse.
type CHMarketData struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHMarketData(ch *pkgch.Client, database string, l *applogger.Logger) *CHMarketData {
	return &CHMarketData{db: ch.DB(), table: database + ".bars", l: l}
}

// GetLatestNCandles returns up to n of the newest bars, oldest first.
func (s *CHMarketData) GetLatestNCandles(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) ([]models.Candle, error) {
	if !domrepo.IsValidTimeframe(tf) {
		return nil, fmt.Errorf("unsupported timeframe: %s", tf)
	}
	start := time.Now()
	q := fmt.Sprintf(`
        SELECT bucket, symbol, open, high, low, close, tick_volume
        FROM %s FINAL
        WHERE symbol = ? AND timeframe = ?
        ORDER BY bucket DESC
        LIMIT ?
    `, s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, string(tf), n)
	if err != nil {
		s.l.Error("clickhouse latest_bars query error",
			applogger.String("symbol", symbol),
			applogger.String("tf", string(tf)),
			applogger.Int("limit", n),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("get latest bars: %w", err)
	}
	defer rows.Close()

	out := make([]models.Candle, 0, n)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Bucket, &c.Symbol, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	// reverse to ASC
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	s.l.Debug("clickhouse latest_bars ok",
		applogger.String("symbol", symbol),
		applogger.String("tf", string(tf)),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

var _ domrepo.MarketData = (*CHMarketData)(nil)
