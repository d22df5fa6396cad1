package assistant

import (
	"fmt"
	"regexp"
	"strings"

	"stella/internal/domain"
)

const assistantPersona = `You are Stella, a financial research assistant. You turn structured market data into clear, honest prose.

Rules:
- Use only the data provided. Never invent numbers, news, or filings.
- When a data point is missing or marked unavailable, say so plainly.
- Write simple Markdown.
- Be concise. No investment advice, no boilerplate disclaimers.`

const classifierPersona = `You classify financial queries. Respond with strict JSON only. No prose, no code fences.`

// classifyHistoryWindow caps how many prior decisions the classifier
// prompt carries.
const classifyHistoryWindow = 5

func buildClassifyPrompt(text string, history []domain.RouteDecision) string {
	var sb strings.Builder
	sb.WriteString("Classify the query below into JSON of the form {\"task\": \"...\", \"entities\": [...]}.\n")
	sb.WriteString("task is one of: report, overview, company_news, general_news, highlights, followup.\n")
	sb.WriteString("entities are the uppercase stock tickers the query is about, [] when there are none.\n")
	if len(history) > classifyHistoryWindow {
		history = history[len(history)-classifyHistoryWindow:]
	}
	if len(history) > 0 {
		sb.WriteString("\nRecent conversation, oldest first:\n")
		for _, d := range history {
			fmt.Fprintf(&sb, "- %q -> %s %v\n", d.RawQuery, d.Task, d.Entities)
		}
	}
	sb.WriteString("\nQuery: ")
	sb.WriteString(text)
	return sb.String()
}

func buildReportPrompt(symbols, data string) string {
	return fmt.Sprintf(`Write a detailed stock report in Markdown for %s from the data below.

Structure it as:
- Company Name, Ticker, Date, Current Price
- Market Profile
- Recent Performance and Volatility
- Recent News

Data:
%s

Use only this data. Mark anything missing as unavailable instead of guessing.`, symbols, data)
}

func buildOverviewPrompt(symbols, data string) string {
	return fmt.Sprintf(`Write a quick overview of %s from the data below: one short paragraph on the company, the current price picture, and two or three news takeaways.

Data:
%s`, symbols, data)
}

func buildNewsSummaryPrompt(news string) string {
	return "Summarize the following news items into key bullet points in a user-friendly way:\n" + news
}

func buildHighlightsNewsPrompt(sections string) string {
	return fmt.Sprintf(`For each company below, summarize its news into at most 5 concise bullet points. Merge related items. Keep the **TICKER** headings. Output only the headings and bullet points.

%s`, sections)
}

func buildFollowupPrompt(query string, history []domain.RouteDecision, data string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "The user asked a follow-up: %q\n", query)
	if len(history) > classifyHistoryWindow {
		history = history[len(history)-classifyHistoryWindow:]
	}
	if len(history) > 0 {
		sb.WriteString("\nEarlier questions, oldest first:\n")
		for _, d := range history {
			fmt.Fprintf(&sb, "- %q -> %s %v\n", d.RawQuery, d.Task, d.Entities)
		}
	}
	sb.WriteString("\nCurrent data for the subject:\n")
	sb.WriteString(data)
	sb.WriteString("\nAnswer the follow-up directly from this data.")
	return sb.String()
}

var (
	taskPrefixRe = regexp.MustCompile(`^\s*[1-5]\s*[:.)\-]\s*`)
	newsLeadRe   = regexp.MustCompile(`(?i)^(what(?:'s| is) (?:the )?latest news (?:on|about)|latest news (?:on|about)|news (?:on|about)|tell me the news (?:on|about))\s+`)
)

// topicFromQuery extracts the subject of a general news query, e.g.
// "What is the latest news on AI chips" -> "AI chips".
func topicFromQuery(raw string) string {
	text := taskPrefixRe.ReplaceAllString(strings.TrimSpace(raw), "")
	text = newsLeadRe.ReplaceAllString(text, "")
	text = strings.TrimSpace(strings.Trim(text, "?!."))
	if text == "" {
		return "financial markets"
	}
	return text
}
