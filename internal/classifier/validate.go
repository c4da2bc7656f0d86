package classifier

import (
	"fmt"

	"github.com/mikey/llm-mail-pipeline/internal/core"
)

// validateModelCategory cross-checks a model label against the rule signals
// of the source text
func validateModelCategory(category core.Category, rules RuleResult) error {
	switch category {
	case core.CategoryOutOfOffice:
		if rules.PurchaseIntent && !rules.AwayMessage {
			return fmt.Errorf("out_of_office rejected: purchase intent without away message")
		}
	case core.CategorySpam:
		if rules.Scheduling {
			return fmt.Errorf("spam rejected: scheduling language present")
		}
	case core.CategoryNotInterested:
		if rules.PurchaseIntent && !rules.Rejection {
			return fmt.Errorf("not_interested rejected: purchase intent without rejection")
		}
	}
	return nil
}
