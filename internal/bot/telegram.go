package bot

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"turbo-umbrella/internal/domain"

	tele "gopkg.in/telebot.v3"
)

// PositionReader queries open positions from the venue.
type PositionReader interface {
	FetchPosition(ctx context.Context, symbol string) (*domain.Position, error)
}

// PerformanceSource exposes the running performance totals.
type PerformanceSource interface {
	Snapshot() domain.PerformanceSnapshot
}

// ReportSource exposes the latest cached analyst reports.
type ReportSource interface {
	LatestReports(ctx context.Context, symbols []string) ([]domain.MarketReport, error)
}

// Bot serves operator commands and pushes trade notifications to the
// configured chat. A nil *Bot is valid and drops notifications, so the
// orchestrator wiring does not need a token to work.
type Bot struct {
	bot    *tele.Bot
	chatID int64
}

// StartTelegramBot creates and starts the bot when TELEGRAM_BOT_TOKEN is set.
// TELEGRAM_CHAT_ID selects the notification target; without it commands still
// work but no pushes are sent.
func StartTelegramBot(symbols []string, positions PositionReader, perf PerformanceSource, reports ReportSource) *Bot {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		log.Println("TELEGRAM_BOT_TOKEN not set, skipping Telegram bot startup")
		return nil
	}

	var chatID int64
	if raw := os.Getenv("TELEGRAM_CHAT_ID"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			log.Printf("invalid TELEGRAM_CHAT_ID %q, notifications disabled", raw)
		} else {
			chatID = id
		}
	}

	pref := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}
	b, err := tele.NewBot(pref)
	if err != nil {
		log.Fatalf("failed to create Telegram bot: %v", err)
	}

	b.Handle("/ping", func(c tele.Context) error {
		return c.Send("pong")
	})

	b.Handle("/position", func(c tele.Context) error {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		var open []*domain.Position
		for _, symbol := range symbols {
			pos, err := positions.FetchPosition(ctx, symbol)
			if err != nil {
				return c.Send(fmt.Sprintf("Error fetching position for %s: %v", symbol, err))
			}
			if pos != nil {
				open = append(open, pos)
			}
		}
		return c.Send(formatPositions(open))
	})

	b.Handle("/performance", func(c tele.Context) error {
		return c.Send(formatPerformance(perf.Snapshot()))
	})

	b.Handle("/report", func(c tele.Context) error {
		if reports == nil {
			return c.Send("Report cache not configured")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		latest, err := reports.LatestReports(ctx, symbols)
		if err != nil {
			return c.Send(fmt.Sprintf("Error fetching reports: %v", err))
		}
		return c.Send(formatReports(latest))
	})

	log.Println("Telegram bot started")
	go b.Start()

	return &Bot{bot: b, chatID: chatID}
}

// NotifyTrade pushes one executed leg to the configured chat.
func (b *Bot) NotifyTrade(result domain.TradeResult) {
	if b == nil || b.chatID == 0 {
		return
	}
	if _, err := b.bot.Send(tele.ChatID(b.chatID), formatTrade(result)); err != nil {
		log.Printf("telegram notify failed: %v", err)
	}
}

func formatPositions(positions []*domain.Position) string {
	if len(positions) == 0 {
		return "No open positions"
	}
	var sb strings.Builder
	for _, p := range positions {
		fmt.Fprintf(&sb, "%s %s\nSize: %.6f\nEntry: %.4f\nUnrealized PnL: %.4f USDT\n\n",
			p.Symbol, p.Side, p.Size, p.EntryPrice, p.UnrealizedPnL)
	}
	return strings.TrimSpace(sb.String())
}

func formatPerformance(snap domain.PerformanceSnapshot) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Realized PnL: %.4f USDT\n", snap.TotalRealizedPnL)
	fmt.Fprintf(&sb, "Trades: %d (%d wins / %d losses)\n", snap.TotalTrades, snap.WinningTrades, snap.LosingTrades)
	if snap.BestTrade != nil {
		fmt.Fprintf(&sb, "Best: %.4f  Worst: %.4f\n", *snap.BestTrade, *snap.WorstTrade)
	}
	fmt.Fprintf(&sb, "Max drawdown: %.4f USDT", snap.MaxDrawdown)
	return sb.String()
}

func formatReports(reports []domain.MarketReport) string {
	if len(reports) == 0 {
		return "No reports yet"
	}
	var sb strings.Builder
	for _, r := range reports {
		fmt.Fprintf(&sb, "%s: %s/%s (%s)\n", r.Symbol, r.Trend, r.Strength, r.Confidence)
		if r.Analysis != "" {
			fmt.Fprintf(&sb, "%s\n", r.Analysis)
		}
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String())
}

func formatTrade(result domain.TradeResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s\n", result.Action, result.Symbol)
	fmt.Fprintf(&sb, "Qty: %.6f @ %.4f\n", result.Quantity, result.Price)
	if result.RealizedPnL != nil {
		fmt.Fprintf(&sb, "Realized PnL: %.4f USDT\n", *result.RealizedPnL)
	}
	if result.Reason != "" {
		fmt.Fprintf(&sb, "Reason: %s", result.Reason)
	}
	return strings.TrimSpace(sb.String())
}
