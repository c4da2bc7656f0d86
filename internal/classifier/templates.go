package classifier

import (
	"fmt"

	"github.com/mikey/llm-mail-pipeline/internal/core"
)

var replyTemplates = map[core.Category]map[Tone]string{
	core.CategoryInterested: {
		ToneFormal: `Dear %s,

Thank you for your reply and for your interest. I have attached an overview of our pricing and would welcome the opportunity to walk you through the next steps on a short call. Please let me know which day suits you best.

Kind regards`,
		ToneFriendly: `Hi %s,

Great to hear from you! I've put together the pricing details and I'm happy to jump on a quick call to go through next steps. What day works for you?

Cheers`,
	},
	core.CategoryMeetingBooked: {
		ToneFormal: `Dear %s,

Thank you for confirming the meeting. I will send a short agenda beforehand. If anything changes on your side, simply reply to this message and we will find another time.

Kind regards`,
		ToneFriendly: `Hi %s,

Thanks for booking a time, looking forward to it! I'll send over a quick agenda before we talk. If anything comes up just reply here and we'll move it.

Cheers`,
	},
	core.CategoryNotInterested: {
		ToneFormal: `Dear %s,

Thank you for letting me know. I have removed you from our outreach and will not contact you again about this. Should your needs change, you are welcome to get in touch.

Kind regards`,
		ToneFriendly: `Hi %s,

Thanks for the heads up, totally understood. I've taken you off our list and won't follow up on this. If things change down the line, you know where to find me.

Cheers`,
	},
	core.CategoryOutOfOffice: {
		ToneFormal: `Dear %s,

Thank you for your automatic reply. I will follow up once you are back in the office so we can continue our conversation.

Kind regards`,
		ToneFriendly: `Hi %s,

Thanks for the auto-reply! I'll check back in once you're back so we can pick things up again.

Cheers`,
	},
	core.CategorySpam: {
		ToneFormal: `Dear %s,

Thank you for your message. We are not able to help with this request.

Kind regards`,
		ToneFriendly: `Hi %s,

Thanks for reaching out, but this isn't something we can help with.

Cheers`,
	},
}

// renderTemplate returns the fallback reply for a category and tone
func renderTemplate(category core.Category, tone Tone, name string) string {
	byTone, ok := replyTemplates[category]
	if !ok {
		byTone = replyTemplates[core.CategoryInterested]
	}
	tmpl, ok := byTone[tone]
	if !ok {
		tmpl = byTone[ToneFormal]
	}
	return fmt.Sprintf(tmpl, name)
}
