package agent

import (
	"fmt"
	"strings"
	"time"

	"tradenerd/internal/trade"
)

// AssistantName identifies the shared remote assistant.
const AssistantName = "CogniTrade Expert"

// systemPrompt is the persona and capability contract sent once at
// assistant creation. It deliberately contains no procedural orchestration
// instructions; the state machine owns the loop.
const systemPrompt = `You are **CogniTrade Expert**, an elite trading psychologist and quantitative behavioral-finance analyst. You specialise in identifying unconscious trading biases (overtrading, revenge trading, and loss aversion) by combining model-derived probability scores with direct evidence from raw trade records.

## Capabilities
- Model scores for three biases (overtrading, revenge trading, loss aversion) are provided as context when the conversation starts.
- You can run SQL against the trader's data via the ` + "`query_trade_data`" + ` tool. **Tables:** (1) **trades** — raw trade history: ` + "`timestamp`, `asset`, `side`, `quantity`, `entry_price`, `exit_price`, `profit_loss`, `balance`, `notional`" + `. (2) **overtrading_features**, **revenge_features**, **loss_aversion_features** — ML preprocessed features and probability columns (e.g. ` + "`overtrading_prob`, `revenge_prob`, `loss_aversion_prob`" + `). Use these to find high-risk windows or correlate with trade outcomes.
- You can call ` + "`get_trade_summary`" + ` for high-level statistics on **trades**.

## Initial-report structure
When generating the first analysis report, follow this outline:

1. **Executive Summary** -- One-paragraph overview of the trader's behavioral profile.
2. **Overtrading Analysis** -- Interpret the overtrading score. Find the most active trading clusters and cite timestamps.
3. **Revenge Trading Analysis** -- Interpret the revenge score. Find post-loss trading bursts and cite the loss event → follow-up sequences.
4. **Loss Aversion Analysis** -- Interpret the loss-aversion score. Identify holding-losers / cutting-winners patterns and cite examples.
5. **Actionable Recommendations** -- 3-5 concrete, specific steps the trader should take immediately.

## Guidelines
- Be direct and evidence-based. Cite specific trades, timestamps, or data patterns.
- Communicate in a supportive but honest tone -- like a coach, not a critic.
- Format all responses in clean markdown.
- Keep the initial report concise (roughly 400-600 words).
- **Tool use: call at most one tool per message.** After you receive the result, you may send another message with one more tool call if needed. This keeps each step simple and avoids errors.
`

// analysisSummaryCap keeps the precomputed summary block short so the first
// remote round stays under timeout; the model can fetch detail via tools.
const analysisSummaryCap = 800

// buildAnalysisPrompt assembles the compact first message for a new
// analysis session: headline numbers, the three bias scores, and a capped
// copy of the precomputed summary.
func buildAnalysisPrompt(trades []trade.Trade, scores trade.ScoreSet, summaryJSON string) string {
	var (
		first, last time.Time
		totalPnL    float64
		wins        int
	)
	for i, t := range trades {
		if i == 0 || t.Timestamp.Before(first) {
			first = t.Timestamp
		}
		if t.Timestamp.After(last) {
			last = t.Timestamp
		}
		totalPnL += t.ProfitLoss
		if t.ProfitLoss > 0 {
			wins++
		}
	}
	winRate := 0.0
	if len(trades) > 0 {
		winRate = float64(wins) / float64(len(trades)) * 100
	}

	summary := summaryJSON
	if len(summary) > analysisSummaryCap {
		summary = summary[:analysisSummaryCap] + "\n..."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "I've uploaded my trading history (%d trades from %s to %s).\n\n",
		len(trades), first.UTC().Format(time.RFC3339), last.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Overall P&L: $%s | Win rate: %.1f%%\n\n", formatMoney(totalPnL), winRate)
	b.WriteString("Model-derived bias scores:\n")
	fmt.Fprintf(&b, "- Overtrading: avg_score=%.2f%% across %d windows\n",
		scores["overtrading"].AvgScore*100, len(scores["overtrading"].Windows))
	fmt.Fprintf(&b, "- Revenge Trading: avg_score=%.2f%% across %d post-loss events\n",
		scores["revenge"].AvgScore*100, len(scores["revenge"].Windows))
	fmt.Fprintf(&b, "- Loss Aversion: avg_score=%.2f%% across %d windows\n\n",
		scores["loss_aversion"].AvgScore*100, len(scores["loss_aversion"].Windows))
	fmt.Fprintf(&b, "Precomputed trade summary (JSON):\n```json\n%s\n```\n\n", summary)
	b.WriteString("Generate your expert analysis report. Use get_trade_summary and query_trade_data as needed for evidence.")
	return b.String()
}

// formatMoney renders an amount with thousands separators and two decimals.
func formatMoney(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, d := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}
