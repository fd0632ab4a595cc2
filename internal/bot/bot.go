// Package bot answers stock queries sent to the Telegram bot.
package bot

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"stocksignal/internal/analysis"
	"stocksignal/internal/logger"
	"stocksignal/internal/report"
)

const helpText = "Send a stock code (e.g. 2330) or an exact stock name to get price, moving averages, trend and dividend yield."

// API is the subset of *tgbotapi.BotAPI the bot uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Analyzer produces a report for free-form user input.
type Analyzer interface {
	Analyze(ctx context.Context, input string) (analysis.Report, error)
}

// Bot long-polls for messages and replies to each with an analysis.
type Bot struct {
	api          API
	analyzer     Analyzer
	queryTimeout time.Duration
	sem          chan struct{}
	wg           sync.WaitGroup
}

// New creates a bot handling at most concurrency queries at once.
func New(api API, analyzer Analyzer, concurrency int, queryTimeout time.Duration) *Bot {
	if concurrency <= 0 {
		concurrency = 4
	}
	if queryTimeout <= 0 {
		queryTimeout = 20 * time.Second
	}
	return &Bot{
		api:          api,
		analyzer:     analyzer,
		queryTimeout: queryTimeout,
		sem:          make(chan struct{}, concurrency),
	}
}

// Run blocks until ctx is cancelled, then waits for in-flight replies.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{"message"}

	updates := b.api.GetUpdatesChan(u)
	defer func() {
		b.api.StopReceivingUpdates()
		b.wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			if upd.Message == nil || upd.Message.Chat == nil {
				continue
			}
			select {
			case b.sem <- struct{}{}:
			case <-ctx.Done():
				return nil
			}
			b.wg.Add(1)
			go func(msg *tgbotapi.Message) {
				defer b.wg.Done()
				defer func() { <-b.sem }()
				b.handle(ctx, msg)
			}(upd.Message)
		}
	}
}

func (b *Bot) handle(ctx context.Context, msg *tgbotapi.Message) {
	ctx, traceID := logger.StartTrace(ctx)
	text := b.Reply(ctx, queryText(msg))
	if text == "" {
		return
	}
	reply := tgbotapi.NewMessage(msg.Chat.ID, text)
	reply.ReplyToMessageID = msg.MessageID
	if _, err := b.api.Send(reply); err != nil {
		slog.Error("telegram reply failed",
			slog.String("trace_id", traceID),
			slog.Int64("chat_id", msg.Chat.ID),
			slog.String("error", err.Error()))
	}
}

// Reply returns the text answering input. Blank input yields "".
func (b *Bot) Reply(ctx context.Context, input string) string {
	input = strings.TrimSpace(input)
	switch strings.ToLower(input) {
	case "":
		return ""
	case "/start", "/help":
		return helpText
	}

	qctx, cancel := context.WithTimeout(ctx, b.queryTimeout)
	defer cancel()
	r, err := b.analyzer.Analyze(qctx, input)
	if err != nil {
		slog.Info("query failed", append(logger.LogWithTrace(ctx),
			slog.String("input", input), slog.String("error", err.Error()))...)
		return report.FormatQueryError(input, err)
	}
	return report.FormatQuery(r)
}

// queryText accepts both plain text and "/q <input>".
func queryText(msg *tgbotapi.Message) string {
	if msg.IsCommand() && (msg.Command() == "q" || msg.Command() == "query") {
		return msg.CommandArguments()
	}
	return msg.Text
}
