package notifier

import (
	"fmt"
	"strings"
	"time"

	"banyan/internal/pkg/text"
	"banyan/internal/position"
)

const maxMessageLen = 3800

// StructuredMessage 统一格式的推送:标题行加代码块明细。
type StructuredMessage struct {
	Icon      string
	Title     string
	Lines     []string
	Timestamp time.Time
}

// RenderMarkdown 生成 Markdown 文本,自动裁剪长度。
func (m StructuredMessage) RenderMarkdown() string {
	var b strings.Builder
	header := strings.TrimSpace(m.Icon + " " + m.Title)
	if header != "" {
		b.WriteString(header + "\n\n")
	}
	lines := sanitizeLines(m.Lines)
	if len(lines) > 0 {
		b.WriteString("```\n")
		for _, line := range lines {
			b.WriteString(sanitize(line))
			b.WriteString("\n")
		}
		b.WriteString("```\n\n")
	}
	if !m.Timestamp.IsZero() {
		b.WriteString("时间：" + m.Timestamp.Format("2006-01-02 15:04:05 MST"))
	}
	return text.Truncate(strings.TrimSpace(b.String()), maxMessageLen)
}

// OpenMessage 开仓通知。
func OpenMessage(p *position.Position) StructuredMessage {
	return StructuredMessage{
		Icon:  "📈",
		Title: fmt.Sprintf("*开仓* %s %s", p.Symbol, p.Side),
		Lines: []string{
			fmt.Sprintf("数量   %.0f (%.0f 手)", p.InitialQty, p.Lots()),
			fmt.Sprintf("入场价 %.2f", p.EntryPrice),
			fmt.Sprintf("止损   %.2f (%.1f 点)", p.StopPrice, p.StopPoints),
		},
		Timestamp: p.EntryTime,
	}
}

// ExitMessage 平仓通知,盈亏决定图标。
func ExitMessage(ev position.ExitEvent, tr position.Trade) StructuredMessage {
	icon := "✅"
	if tr.NetPnL < 0 {
		icon = "🛑"
	}
	return StructuredMessage{
		Icon:  icon,
		Title: fmt.Sprintf("*平仓* %s %s", tr.Symbol, ev.Reason()),
		Lines: []string{
			fmt.Sprintf("数量   %.0f @ %.2f", tr.Quantity, tr.ExitPrice),
			fmt.Sprintf("净盈亏 %+.2f", tr.NetPnL),
			fmt.Sprintf("持仓   %s", tr.Duration.Round(time.Second)),
		},
		Timestamp: ev.Time,
	}
}

func sanitizeLines(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func sanitize(s string) string {
	return strings.ReplaceAll(s, "```", "'''")
}
