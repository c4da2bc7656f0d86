package classifier

import (
	"math"
	"sort"
	"strings"

	"github.com/mikey/llm-mail-pipeline/internal/core"
	"github.com/mikey/llm-mail-pipeline/internal/utils"
)

// phrase is one weighted signal of the rule scorer
type phrase struct {
	text   string
	weight float64
}

// rejectionPenalty is subtracted from interested for every rejection phrase
const rejectionPenalty = 0.5

// Rejections are consumed before any positive matching, so "not interested"
// never counts as interest.
var rejectionPhrases = []phrase{
	{"no longer interested", 0.6},
	{"not interested", 0.6},
	{"do not contact", 0.6},
	{"don't contact", 0.6},
	{"stop emailing", 0.6},
	{"please stop", 0.5},
	{"remove me", 0.5},
	{"take me off", 0.5},
	{"unsubscribe", 0.5},
	{"not a good fit", 0.5},
	{"not the right fit", 0.5},
	{"already have a solution", 0.45},
	{"already using", 0.35},
	{"not at this time", 0.4},
	{"not the right time", 0.4},
	{"not ready", 0.4},
	{"no thanks", 0.45},
	{"no thank you", 0.45},
	{"we'll pass", 0.4},
	{"we will pass", 0.4},
	{"not relevant", 0.4},
	{"no budget", 0.45},
}

var purchasePhrases = []phrase{
	{"budget approved", 0.45},
	{"ready to purchase", 0.45},
	{"ready to buy", 0.45},
	{"ready to sign", 0.45},
	{"send the contract", 0.45},
	{"send over the contract", 0.45},
	{"send me the contract", 0.45},
	{"purchase order", 0.45},
	{"sign the agreement", 0.45},
	{"move forward", 0.4},
	{"moving forward", 0.4},
	{"let's proceed", 0.4},
	{"like to proceed", 0.4},
	{"send an invoice", 0.4},
	{"send me a quote", 0.35},
	{"send a quote", 0.35},
}

var interestPhrases = []phrase{
	{"interested", 0.2},
	{"sounds good", 0.2},
	{"sounds great", 0.2},
	{"tell me more", 0.2},
	{"more information", 0.2},
	{"more details", 0.2},
	{"learn more", 0.2},
	{"pricing", 0.2},
	{"how much", 0.2},
	{"demo", 0.2},
	{"would love to", 0.2},
	{"keen to", 0.2},
	{"curious", 0.15},
	{"trial", 0.15},
}

var meetingPhrases = []phrase{
	{"meeting confirmed", 0.5},
	{"meeting booked", 0.5},
	{"booked a meeting", 0.5},
	{"calendar invite", 0.45},
	{"invitation:", 0.45},
	{"accepted:", 0.45},
	{"confirmed for", 0.4},
	{"scheduled for", 0.4},
	{"see you on", 0.4},
	{"see you then", 0.35},
	{"zoom.us/j", 0.4},
	{"meet.google.com", 0.4},
	{"teams.microsoft.com", 0.4},
	{"calendly.com", 0.35},
	{"looking forward to our call", 0.35},
	{"looking forward to the meeting", 0.35},
}

var schedulingPhrases = []phrase{
	{"schedule a call", 0.2},
	{"set up a call", 0.2},
	{"book a time", 0.2},
	{"what time works", 0.2},
	{"available on", 0.15},
	{"let's meet", 0.2},
	{"calendar", 0.15},
	{"meeting", 0.15},
}

var awayPhrases = []phrase{
	{"out of office", 0.95},
	{"out of the office", 0.95},
	{"automatic reply", 0.6},
	{"auto-reply", 0.6},
	{"autoreply", 0.6},
	{"away from the office", 0.6},
	{"currently away", 0.5},
	{"on vacation", 0.5},
	{"on holiday", 0.5},
	{"parental leave", 0.5},
	{"annual leave", 0.5},
	{"limited access to email", 0.5},
	{"will return on", 0.4},
	{"back in the office", 0.4},
}

var spamPhrases = []phrase{
	{"you have won", 0.5},
	{"you've won", 0.5},
	{"claim your prize", 0.5},
	{"lottery", 0.45},
	{"wire transfer", 0.35},
	{"act now", 0.35},
	{"limited time offer", 0.35},
	{"100% free", 0.35},
	{"risk-free", 0.3},
	{"earn money fast", 0.45},
	{"double your", 0.35},
	{"crypto giveaway", 0.5},
	{"viagra", 0.6},
	{"click here", 0.25},
	{"winner", 0.3},
	{"dear friend", 0.3},
}

var urgencyPhrases = []string{
	"asap", "urgent", "urgently", "immediately", "today", "tomorrow",
	"this week", "end of day", "eod", "right away", "deadline",
}

// RuleResult is the deterministic outcome of the rule scorer
type RuleResult struct {
	Category   core.Category
	Confidence float64
	Scores     map[core.Category]float64
	Signals    []string
	Matched    bool

	PurchaseIntent bool
	Rejection      bool
	AwayMessage    bool
	Scheduling     bool
	Urgent         bool
}

// RuleScorer is the Tier 1 classifier: weighted phrase signals over the
// normalized subject and body
type RuleScorer struct {
	text               *utils.TextProcessor
	fallbackConfidence float64
}

// NewRuleScorer creates a rule scorer
func NewRuleScorer(textProcessor *utils.TextProcessor, fallbackConfidence float64) *RuleScorer {
	if textProcessor == nil {
		textProcessor = utils.NewTextProcessor(nil)
	}
	return &RuleScorer{
		text:               textProcessor,
		fallbackConfidence: clamp(fallbackConfidence),
	}
}

// Score classifies subject and body text
func (s *RuleScorer) Score(subject, body string) RuleResult {
	text := " " + s.text.Normalize(subject+"\n"+body) + " "
	scores := make(map[core.Category]float64, len(core.Categories))
	res := RuleResult{Scores: scores}
	signals := make(map[string]bool)

	for _, p := range rejectionPhrases {
		n := strings.Count(text, p.text)
		if n == 0 {
			continue
		}
		text = strings.ReplaceAll(text, p.text, " | ")
		scores[core.CategoryNotInterested] += p.weight
		scores[core.CategoryInterested] -= rejectionPenalty * float64(n)
		signals[p.text] = true
		res.Rejection = true
	}

	match := func(list []phrase, category core.Category) bool {
		hit := false
		for _, p := range list {
			if strings.Contains(text, p.text) {
				scores[category] += p.weight
				signals[p.text] = true
				hit = true
			}
		}
		return hit
	}

	res.PurchaseIntent = match(purchasePhrases, core.CategoryInterested)
	match(interestPhrases, core.CategoryInterested)
	strongMeeting := match(meetingPhrases, core.CategoryMeetingBooked)
	res.Scheduling = match(schedulingPhrases, core.CategoryMeetingBooked) || strongMeeting
	res.AwayMessage = match(awayPhrases, core.CategoryOutOfOffice)
	match(spamPhrases, core.CategorySpam)

	for _, u := range urgencyPhrases {
		if strings.Contains(text, " "+u+" ") || strings.Contains(text, " "+u+",") || strings.Contains(text, " "+u+".") {
			res.Urgent = true
			break
		}
	}

	for sig := range signals {
		res.Signals = append(res.Signals, sig)
	}
	sort.Strings(res.Signals)

	res.Category, res.Confidence, res.Matched = s.pick(scores, "")
	return res
}

// pick returns the highest scoring category, skipping exclude. Ties resolve
// in the fixed category order.
func (s *RuleScorer) pick(scores map[core.Category]float64, exclude core.Category) (core.Category, float64, bool) {
	best := core.Category("")
	bestScore := 0.0
	for _, c := range core.Categories {
		if c == exclude {
			continue
		}
		if scores[c] > bestScore {
			best, bestScore = c, scores[c]
		}
	}
	if best == "" {
		return core.CategoryInterested, s.fallbackConfidence, false
	}
	return best, clamp(bestScore), true
}

// NextBest returns the best category other than exclude
func (s *RuleScorer) NextBest(res RuleResult, exclude core.Category) (core.Category, float64) {
	c, conf, _ := s.pick(res.Scores, exclude)
	return c, conf
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
