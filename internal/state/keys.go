package state

import (
	"fmt"
	"time"

	"github.com/agentoauth/evaluator/internal/model"
)

// Namespace prefixes, per spec §6 "Persisted state layout".
const (
	prefixBudget = "budget"
	prefixReplay = "replay"
	prefixIdem   = "idem"
	prefixRevJTI = "rev:jti"
	prefixRevPol = "rev:pol"
	prefixRcpt   = "rcpt"
)

// AlignedPeriodID computes the aligned-period-id component of a budget key
// for now (UTC), per spec §4.5.
func AlignedPeriodID(period model.Period, now time.Time) string {
	now = now.UTC()
	switch period {
	case model.PeriodHour:
		return now.Format("2006-01-02-15")
	case model.PeriodDay:
		return now.Format("2006-01-02")
	case model.PeriodWeek:
		year, week := now.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case model.PeriodMonth:
		return now.Format("2006-01")
	default:
		return now.Format("2006-01-02")
	}
}

// PeriodEnd returns the UTC instant at which the aligned period containing
// now ends, used to populate Remaining.PeriodEnds and to size budget TTLs.
func PeriodEnd(period model.Period, now time.Time) time.Time {
	now = now.UTC()
	switch period {
	case model.PeriodHour:
		start := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, time.UTC)
		return start.Add(time.Hour)
	case model.PeriodDay:
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return start.Add(24 * time.Hour)
	case model.PeriodWeek:
		weekday := int(now.Weekday())
		if weekday == 0 {
			weekday = 7 // ISO: Monday=1..Sunday=7
		}
		monday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).
			AddDate(0, 0, -(weekday - 1))
		return monday.AddDate(0, 0, 7)
	case model.PeriodMonth:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start.AddDate(0, 1, 0)
	default:
		return now.Add(24 * time.Hour)
	}
}

// BudgetKey builds the key "budget:<policy_id>:<period>:<aligned-id>".
func BudgetKey(policyID string, period model.Period, now time.Time) string {
	return fmt.Sprintf("%s:%s:%s:%s", prefixBudget, policyID, period, AlignedPeriodID(period, now))
}

// ReplayKey builds the key "replay:<jti>".
func ReplayKey(jti string) string {
	return fmt.Sprintf("%s:%s", prefixReplay, jti)
}

// IdemKey builds the key "idem:<idempotency_key>".
func IdemKey(key string) string {
	return fmt.Sprintf("%s:%s", prefixIdem, key)
}

// RevJTIKey builds the key "rev:jti:<jti>".
func RevJTIKey(jti string) string {
	return fmt.Sprintf("%s:%s", prefixRevJTI, jti)
}

// RevPolicyKey builds the key "rev:pol:<policy_id>".
func RevPolicyKey(policyID string) string {
	return fmt.Sprintf("%s:%s", prefixRevPol, policyID)
}

// ReceiptKey builds the key "rcpt:<id>".
func ReceiptKey(id string) string {
	return fmt.Sprintf("%s:%s", prefixRcpt, id)
}
