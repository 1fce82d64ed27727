// Package dingtalk delivers review notifications to DingTalk custom robots.
package dingtalk

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ericfisherdev/commitreview/internal/domain/model"
	"github.com/ericfisherdev/commitreview/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Notifier = (*Notifier)(nil)

const (
	defaultTimeout = 10 * time.Second
	maxListedFiles = 5
	maxExcerpt     = 500
	messageTitle   = "AI code review report"
)

// Notifier posts signed markdown messages to a robot webhook.
type Notifier struct {
	client *http.Client
	now    func() time.Time
}

// NewNotifier creates a Notifier whose requests are bounded by timeout.
// A zero timeout defaults to 10 seconds.
func NewNotifier(timeout time.Duration) *Notifier {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Notifier{
		client: &http.Client{Timeout: timeout},
		now:    time.Now,
	}
}

type markdownMessage struct {
	MsgType  string       `json:"msgtype"`
	Markdown markdownBody `json:"markdown"`
	At       atBlock      `json:"at"`
}

type markdownBody struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

type atBlock struct {
	AtMobiles []string `json:"atMobiles"`
	IsAtAll   bool     `json:"isAtAll"`
}

type robotResponse struct {
	ErrCode *int   `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// Notify renders n and posts it to endpoint, signing the request when secret
// is set. Any failure is logged and reported as false.
func (d *Notifier) Notify(ctx context.Context, endpoint, secret string, n driven.ReviewNotification) bool {
	log := slog.With("repo", n.RepositoryName, "commit", n.Record.CommitHash)

	target, err := signedURL(endpoint, secret, d.now())
	if err != nil {
		log.Error("invalid notification endpoint", "error", err)
		return false
	}

	body, err := json.Marshal(markdownMessage{
		MsgType:  "markdown",
		Markdown: markdownBody{Title: messageTitle, Text: RenderMarkdown(n)},
		At:       atBlock{AtMobiles: []string{}},
	})
	if err != nil {
		log.Error("failed to encode notification", "error", err)
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		log.Error("failed to build notification request", "error", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		log.Error("notification delivery failed", "error", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Error("notification rejected", "status", resp.StatusCode)
		return false
	}

	var result robotResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		log.Error("undecodable notification response", "error", err)
		return false
	}
	if result.ErrCode == nil || *result.ErrCode != 0 {
		log.Error("notification refused by robot", "errmsg", result.ErrMsg)
		return false
	}

	log.Info("notification delivered")
	return true
}

// signedURL appends timestamp and sign query parameters when secret is set.
func signedURL(endpoint, secret string, now time.Time) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if secret == "" {
		return u.String(), nil
	}

	ts := strconv.FormatInt(now.UnixMilli(), 10)
	q := u.Query()
	q.Set("timestamp", ts)
	q.Set("sign", Sign(secret, ts))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Sign computes base64(HMAC-SHA256(secret, timestamp + "\n" + secret)).
func Sign(secret, timestamp string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "\n" + secret))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

var riskEmoji = map[model.RiskLevel]string{
	model.RiskHigh:   "🔴",
	model.RiskMedium: "🟠",
	model.RiskLow:    "🟢",
}

var changeEmoji = map[model.ChangeType]string{
	model.ChangeAdded:    "➕",
	model.ChangeModified: "📝",
	model.ChangeDeleted:  "❌",
	model.ChangeRenamed:  "🔄",
}

// RenderMarkdown builds the message text for n.
func RenderMarkdown(n driven.ReviewNotification) string {
	r := n.Record
	emoji, ok := riskEmoji[r.RiskLevel]
	if !ok {
		emoji = riskEmoji[model.RiskLow]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## %s %s\n\n", messageTitle, emoji)
	fmt.Fprintf(&b, "**Repository**: %s\n", n.RepositoryName)
	fmt.Fprintf(&b, "**Branch**: %s\n", r.Branch)
	fmt.Fprintf(&b, "**Commit**: `%s`\n", model.ShortHash(r.CommitHash))
	fmt.Fprintf(&b, "**Author**: %s\n", r.Author)
	fmt.Fprintf(&b, "**Risk**: %s (%.0f%%)\n\n---\n\n", r.RiskLevel, r.RiskScore*100)

	fmt.Fprintf(&b, "### 📝 Commit message\n> %s\n\n", r.CommitMessage)

	fmt.Fprintf(&b, "### 📁 Changed files (%d)\n", len(r.Files))
	for i, f := range r.Files {
		if i >= maxListedFiles {
			fmt.Fprintf(&b, "... %d files in total\n", len(r.Files))
			break
		}
		icon, ok := changeEmoji[f.ChangeType]
		if !ok {
			icon = "📄"
		}
		critical := ""
		if f.IsCritical {
			critical = " ⚠️"
		}
		fmt.Fprintf(&b, "- %s `%s`%s\n", icon, f.Path, critical)
	}

	b.WriteString("\n### 🔍 AI review\n\n")
	b.WriteString(excerpt(n.Excerpt))

	if n.Link != "" {
		fmt.Fprintf(&b, "\n\n👉 [**View full review**](%s)\n", n.Link)
	}
	return b.String()
}

func excerpt(s string) string {
	runes := []rune(s)
	if len(runes) <= maxExcerpt {
		return s
	}
	return string(runes[:maxExcerpt]) + "..."
}
