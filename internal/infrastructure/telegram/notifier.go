package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"QAForge/internal/domain"
	"QAForge/internal/ports"
)

const defaultAPIBase = "https://api.telegram.org"

// Notifier sends run summaries to a Telegram chat via bot API.
type Notifier struct {
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client
	logger   *slog.Logger
}

var _ ports.ProgressListener = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier.
func NewNotifier(botToken, chatID string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		botToken: botToken,
		chatID:   chatID,
		apiBase:  defaultAPIBase,
		client:   &http.Client{Timeout: 5 * time.Second},
		logger:   logger.With("component", "telegram"),
	}
}

func (n *Notifier) DocumentStarted(domain.DocumentEvent)   {}
func (n *Notifier) ChunkCompleted(domain.ChunkEvent)       {}
func (n *Notifier) DocumentCompleted(domain.DocumentEvent) {}

// RunCompleted posts the summary of a successful run.
func (n *Notifier) RunCompleted(stats domain.Stats) {
	n.publish("*QAForge run completed*\n" + summary(stats))
}

// RunFailed posts the failure reason with the partial statistics.
func (n *Notifier) RunFailed(err error, stats domain.Stats) {
	n.publish(fmt.Sprintf("*QAForge run failed*\n`%s`\n%s", escape(err.Error()), summary(stats)))
}

func (n *Notifier) publish(text string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := n.PublishDigest(ctx, text); err != nil {
		n.logger.Warn("send run summary", "error", err)
	}
}

// PublishDigest posts a Markdown message to Telegram.
func (n *Notifier) PublishDigest(ctx context.Context, digest string) error {
	if n.botToken == "" || n.chatID == "" || n.client == nil {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.apiBase, n.botToken)
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", digest)
	form.Set("parse_mode", "Markdown")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram error: %s", resp.Status)
	}

	return nil
}

func summary(s domain.Stats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "documents: %d\n", s.Documents)
	fmt.Fprintf(&b, "chunks: %d ok, %d failed\n", s.ChunksProcessed, s.ChunksFailed)
	fmt.Fprintf(&b, "pairs: %d generated, %d rejected, %d duplicates\n", s.PairsGenerated, s.PairsRejected, s.DuplicatesRemoved)
	fmt.Fprintf(&b, "written: %d (%d high, %d medium)\n", s.PairsWritten, s.HighWritten, s.MediumWritten)
	fmt.Fprintf(&b, "retention: %.1f%%", 100*s.RetentionRate())
	return b.String()
}

func escape(s string) string {
	return strings.ReplaceAll(s, "`", "'")
}
