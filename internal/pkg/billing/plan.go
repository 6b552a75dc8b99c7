package billing

import (
	"strings"
	"time"

	"github.com/ManuelReschke/BudgetFox/app/models"
)

func normalizePlan(plan string) string {
	switch strings.ToLower(strings.TrimSpace(plan)) {
	case models.SubscriptionPlanYearly:
		return models.SubscriptionPlanYearly
	case models.SubscriptionPlanMonthly:
		return models.SubscriptionPlanMonthly
	default:
		return models.SubscriptionPlanNone
	}
}

// statusForAction is the target status of each lifecycle step:
// pending/on_hold -> active on activate or renew, active -> active on renew,
// active|trialing -> cancelled|failed|expired, active -> on_hold.
func statusForAction(action Action, trialing bool) (string, bool) {
	switch action {
	case ActionActivate:
		if trialing {
			return models.SubscriptionStatusTrialing, true
		}
		return models.SubscriptionStatusActive, true
	case ActionRenew:
		return models.SubscriptionStatusActive, true
	case ActionCancel:
		return models.SubscriptionStatusCancelled, true
	case ActionFail:
		return models.SubscriptionStatusFailed, true
	case ActionExpire:
		return models.SubscriptionStatusExpired, true
	case ActionHold:
		return models.SubscriptionStatusOnHold, true
	default:
		return "", false
	}
}

func isActivating(action Action) bool {
	return action == ActionActivate || action == ActionRenew
}

// periodEndForPlan computes the end of a prepaid period for providers that
// only report one-off payments.
func periodEndForPlan(start time.Time, plan string) time.Time {
	if normalizePlan(plan) == models.SubscriptionPlanYearly {
		return start.AddDate(1, 0, 0)
	}
	return start.AddDate(0, 1, 0)
}
