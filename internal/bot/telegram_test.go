package bot

import (
	"strings"
	"testing"

	"turbo-umbrella/internal/domain"
)

func TestStartTelegramBotSkipsWithoutToken(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	if b := StartTelegramBot(nil, nil, nil, nil); b != nil {
		t.Fatal("expected nil bot without token")
	}
}

func TestNotifyTradeOnNilBot(t *testing.T) {
	t.Parallel()

	var b *Bot
	// Must not panic.
	b.NotifyTrade(domain.TradeResult{Symbol: "BTCUSDT", Action: domain.ActionOpenLong})
}

func TestFormatPositions(t *testing.T) {
	t.Parallel()

	if got := formatPositions(nil); got != "No open positions" {
		t.Errorf("empty = %q", got)
	}

	got := formatPositions([]*domain.Position{
		{Symbol: "BTCUSDT", Side: domain.SideLong, Size: 0.005, EntryPrice: 48000, UnrealizedPnL: 10},
	})
	if !strings.Contains(got, "BTCUSDT LONG") || !strings.Contains(got, "0.005000") {
		t.Errorf("formatted = %q", got)
	}
}

func TestFormatTrade(t *testing.T) {
	t.Parallel()

	pnl := -3.5
	got := formatTrade(domain.TradeResult{
		Symbol: "ETHUSDT", Action: domain.ActionCloseShort,
		Quantity: 0.5, Price: 3000, RealizedPnL: &pnl, Reason: "trend flip",
	})
	for _, want := range []string{"CLOSE_SHORT ETHUSDT", "-3.5000", "trend flip"} {
		if !strings.Contains(got, want) {
			t.Errorf("formatted %q missing %q", got, want)
		}
	}
}

func TestFormatPerformance(t *testing.T) {
	t.Parallel()

	best, worst := 30.0, -10.0
	got := formatPerformance(domain.PerformanceSnapshot{
		TotalRealizedPnL: 20, TotalTrades: 2, WinningTrades: 1, LosingTrades: 1,
		BestTrade: &best, WorstTrade: &worst, MaxDrawdown: 10,
	})
	for _, want := range []string{"20.0000", "2 (1 wins / 1 losses)", "30.0000", "-10.0000"} {
		if !strings.Contains(got, want) {
			t.Errorf("formatted %q missing %q", got, want)
		}
	}
}

func TestFormatReports(t *testing.T) {
	t.Parallel()

	if got := formatReports(nil); got != "No reports yet" {
		t.Errorf("empty = %q", got)
	}

	got := formatReports([]domain.MarketReport{
		{Symbol: "BTCUSDT", Trend: domain.TrendBullish, Strength: domain.StrengthStrong,
			Confidence: domain.ConfidenceHigh, Analysis: "accumulation complete"},
	})
	for _, want := range []string{"BTCUSDT: bullish/strong (HIGH)", "accumulation complete"} {
		if !strings.Contains(got, want) {
			t.Errorf("formatted %q missing %q", got, want)
		}
	}
}
