package classifier

import (
	"github.com/mikey/llm-mail-pipeline/internal/core"
)

const maxSignals = 10

// buildInsights derives the analysis bundle from rule signals and the final
// category
func buildInsights(category core.Category, rules RuleResult) *core.Insights {
	ins := &core.Insights{
		Sentiment: "neutral",
		Urgency:   "low",
		Intent:    "unknown",
	}

	switch category {
	case core.CategoryInterested:
		ins.Sentiment = "positive"
		ins.Intent = "explore"
		ins.NextStep = "Reply with pricing details and offer a short call"
		if rules.PurchaseIntent {
			ins.Intent = "purchase"
			ins.NextStep = "Send the contract and confirm a start date"
		}
	case core.CategoryMeetingBooked:
		ins.Sentiment = "positive"
		ins.Intent = "meeting"
		ins.NextStep = "Confirm the meeting and prepare an agenda"
	case core.CategoryNotInterested:
		ins.Sentiment = "negative"
		ins.Intent = "decline"
		ins.NextStep = "Stop outreach and close the lead"
	case core.CategorySpam:
		ins.Sentiment = "negative"
		ins.Intent = "unsolicited"
		ins.NextStep = "No action required"
	case core.CategoryOutOfOffice:
		ins.Intent = "auto_reply"
		ins.NextStep = "Follow up after the sender returns"
	}

	if rules.Rejection && category != core.CategoryNotInterested {
		ins.Sentiment = "mixed"
	}

	switch {
	case rules.Urgent && category.HighValue():
		ins.Urgency = "high"
	case category.HighValue():
		ins.Urgency = "medium"
	case rules.Urgent:
		ins.Urgency = "medium"
	}

	ins.Signals = rules.Signals
	if len(ins.Signals) > maxSignals {
		ins.Signals = ins.Signals[:maxSignals]
	}

	return ins
}
