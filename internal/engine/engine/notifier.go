package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Vodeneev/ticketedge/internal/pkg/models"
)

// Min interval between any two Telegram messages to the same chat to avoid 429 Too Many Requests (~30/min limit).
const telegramSendInterval = 2 * time.Second

const telegramQueueSize = 100

// Notifier delivers edge alerts.
type Notifier interface {
	SendEdgeAlert(ctx context.Context, f models.Fixture, r models.EdgeResult, threshold float64) error
	Stop()
}

// messageSender abstracts the bot so the queue can be tested without Telegram.
type messageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type queuedAlert struct {
	fixture   models.Fixture
	result    models.EdgeResult
	threshold float64
}

// TelegramNotifier sends edge alerts to one chat from a background queue.
type TelegramNotifier struct {
	bot      messageSender
	chatID   int64
	interval time.Duration
	mu       sync.Mutex
	lastSend time.Time

	queue     chan queuedAlert
	queueDone chan struct{}
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewTelegramNotifier connects to the bot API. It returns an error when the
// token is rejected.
func NewTelegramNotifier(token string, chatID int64) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	bot.Debug = false

	if _, err := bot.GetMe(); err != nil {
		return nil, fmt.Errorf("failed to get bot info: %w", err)
	}

	n := newTelegramNotifier(bot, chatID, telegramSendInterval)
	slog.Info("Telegram notifier initialized", "chat_id", chatID)
	return n, nil
}

func newTelegramNotifier(bot messageSender, chatID int64, interval time.Duration) *TelegramNotifier {
	ctx, cancel := context.WithCancel(context.Background())
	n := &TelegramNotifier{
		bot:       bot,
		chatID:    chatID,
		interval:  interval,
		queue:     make(chan queuedAlert, telegramQueueSize),
		queueDone: make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}

	n.wg.Add(1)
	go n.messageSender()
	return n
}

// QueueLen returns current number of messages in the send queue.
func (n *TelegramNotifier) QueueLen() int {
	if n == nil || n.queue == nil {
		return 0
	}
	return len(n.queue)
}

// SendEdgeAlert queues an alert (non-blocking). A full queue drops the alert.
func (n *TelegramNotifier) SendEdgeAlert(ctx context.Context, f models.Fixture, r models.EdgeResult, threshold float64) error {
	if n == nil || n.bot == nil {
		return fmt.Errorf("telegram notifier not initialized")
	}
	if n.ctx.Err() != nil {
		return fmt.Errorf("notifier stopped")
	}

	select {
	case <-n.ctx.Done():
		return fmt.Errorf("notifier stopped")
	case <-ctx.Done():
		return ctx.Err()
	case n.queue <- queuedAlert{fixture: f, result: r, threshold: threshold}:
		return nil
	default:
		slog.Warn("Telegram message queue is full, dropping message", "fixture", f.ID, "market", r.Market)
		return fmt.Errorf("message queue is full")
	}
}

// Stop stops the notifier after the queued messages are sent.
func (n *TelegramNotifier) Stop() {
	if n == nil {
		return
	}
	n.cancel()
	<-n.queueDone
	n.wg.Wait()
}

func (n *TelegramNotifier) messageSender() {
	defer n.wg.Done()

	for {
		select {
		case <-n.ctx.Done():
			// Drain remaining messages before exit
			for {
				select {
				case msg := <-n.queue:
					n.send(msg, false)
				default:
					close(n.queueDone)
					return
				}
			}
		case msg := <-n.queue:
			n.send(msg, true)
		}
	}
}

// send delivers one alert. When paced, it waits out the send interval first.
func (n *TelegramNotifier) send(msg queuedAlert, paced bool) {
	text := formatEdgeAlert(msg.fixture, msg.result, msg.threshold)
	tgMsg := tgbotapi.NewMessage(n.chatID, text)
	tgMsg.ParseMode = tgbotapi.ModeMarkdown

	n.mu.Lock()
	defer n.mu.Unlock()

	if elapsed := time.Since(n.lastSend); paced && elapsed < n.interval {
		select {
		case <-n.ctx.Done():
		case <-time.After(n.interval - elapsed):
		}
	}

	n.lastSend = time.Now()
	if _, err := n.bot.Send(tgMsg); err != nil {
		slog.Error("Telegram send: failed", "error", err, "fixture", msg.fixture.ID, "market", msg.result.Market)
		return
	}
	slog.Info("Telegram send: success",
		"fixture", msg.fixture.ID,
		"market", msg.result.Market,
		"edge", msg.result.Edge,
		"delay_since_calculation_sec", time.Since(msg.result.CalculatedAt).Seconds(),
		"queue_length", len(n.queue))
}

// formatEdgeAlert renders an edge as a Telegram Markdown message.
func formatEdgeAlert(f models.Fixture, r models.EdgeResult, threshold float64) string {
	var b strings.Builder

	leg := models.TicketLeg{Side: r.Side, Line: r.Line}
	fmt.Fprintf(&b, "🚨 *Edge Alert (%.0f%%+)*\n\n", threshold*100)
	fmt.Fprintf(&b, "*%s*\n", escapeMarkdown(f.Name()))
	fmt.Fprintf(&b, "⚽ %s | %s\n\n", formatCategory(r.Market), leg.Selection())
	fmt.Fprintf(&b, "📈 *Edge: %.1f%%*\n", r.Edge*100)
	fmt.Fprintf(&b, "🎯 Model: %.1f%% | Book (fair): %.1f%%\n", r.ModelProb*100, r.BookProb*100)
	fmt.Fprintf(&b, "💰 %s: %.2f (margin %.1f%%)\n", escapeMarkdown(r.Bookmaker), r.Odds, r.Overround*100)
	if r.Confidence != "" {
		fmt.Fprintf(&b, "📊 Confidence: %s\n", r.Confidence)
	}
	if !f.Kickoff.IsZero() {
		fmt.Fprintf(&b, "🕐 Kick-off: %s\n", f.Kickoff.UTC().Format("2006-01-02 15:04 UTC"))
	}
	return b.String()
}

func formatCategory(c models.Category) string {
	s := string(c)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func escapeMarkdown(text string) string {
	replacer := strings.NewReplacer(
		"_", "\\_",
		"*", "\\*",
		"[", "\\[",
		"]", "\\]",
		"`", "\\`",
	)
	return replacer.Replace(text)
}
