// Package policy implements the AgentOAuth stateless Policy Engine (C4):
// action, resource, per-transaction, and time-window matching.
//
// Checks run in the fixed order from spec §4.4 — first failure wins and is
// authoritative; the engine never proceeds to stateful checks once a
// stateless check has failed. Reasons are exact, stable strings suitable for
// an audit trail, not formatted for a particular locale.
package policy

import (
	"fmt"
	"strings"
	"time"

	"github.com/agentoauth/evaluator/internal/model"
)

// Result is the outcome of a stateless evaluation.
type Result struct {
	Allowed bool
	Reason  string
}

// allow builds a passing Result.
func allow() Result { return Result{Allowed: true} }

// deny builds a failing Result with the given reason.
func deny(reason string) Result { return Result{Allowed: false, Reason: reason} }

var dowNames = [...]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// Evaluate runs the stateless checks against pol for ctx, at "now" (UTC).
// It never mutates pol or ctx and never performs I/O.
func Evaluate(pol model.Policy, ctx model.RequestContext, now time.Time) Result {
	now = now.UTC()

	if r := checkAction(pol, ctx); !r.Allowed {
		return r
	}
	if r := checkResource(pol, ctx); !r.Allowed {
		return r
	}
	if r := checkPerTxn(pol, ctx); !r.Allowed {
		return r
	}
	if r := checkTime(pol, now); !r.Allowed {
		return r
	}
	return allow()
}

func checkAction(pol model.Policy, ctx model.RequestContext) Result {
	for _, a := range pol.Actions {
		if a == ctx.Action {
			return allow()
		}
	}
	return deny(fmt.Sprintf("Action '%s' not permitted", ctx.Action))
}

func checkResource(pol model.Policy, ctx model.RequestContext) Result {
	if ctx.Resource == nil {
		return allow()
	}

	for _, entry := range pol.Resources {
		if entry.Type != ctx.Resource.Type {
			continue
		}
		for _, id := range entry.Match.IDs {
			if id == ctx.Resource.ID {
				return allow()
			}
		}
		for _, prefix := range entry.Match.Prefixes {
			if strings.HasPrefix(ctx.Resource.ID, prefix) {
				return allow()
			}
		}
	}

	return deny(fmt.Sprintf("Resource '%s:%s' not allowed", ctx.Resource.Type, ctx.Resource.ID))
}

func checkPerTxn(pol model.Policy, ctx model.RequestContext) Result {
	if ctx.Amount == nil || pol.Limits == nil || pol.Limits.PerTxn == nil {
		return allow()
	}

	if ctx.Currency == "" {
		return deny("Currency required for transaction amount checks")
	}
	limit := pol.Limits.PerTxn
	if ctx.Currency != limit.Currency {
		return deny(fmt.Sprintf("Currency mismatch: request %s, limit %s", ctx.Currency, limit.Currency))
	}
	if ctx.Amount.GreaterThan(limit.Amount) {
		return deny(fmt.Sprintf("Amount %s %s exceeds per-transaction limit %s %s",
			ctx.Amount.String(), ctx.Currency, limit.Amount.String(), limit.Currency))
	}
	return allow()
}

func checkTime(pol model.Policy, now time.Time) Result {
	if pol.Constraints == nil || pol.Constraints.Time == nil {
		return allow()
	}
	tc := pol.Constraints.Time

	if len(tc.DOW) > 0 {
		today := dowNames[int(now.Weekday())]
		found := false
		for _, d := range tc.DOW {
			if d == today {
				found = true
				break
			}
		}
		if !found {
			return deny(fmt.Sprintf("Day of week '%s' not permitted", today))
		}
	}

	if tc.Start != "" && tc.End != "" {
		hhmm := now.Format("15:04")
		if hhmm < tc.Start || hhmm > tc.End {
			return deny(fmt.Sprintf("Time '%s' outside allowed window %s-%s", hhmm, tc.Start, tc.End))
		}
	}

	return allow()
}
