// Package cronsched wraps gronx for the two things the cron list needs: is
// this a syntactically valid 5-field crontab expression, and does it match
// the current wall-clock minute.
package cronsched

import (
	"time"

	"github.com/adhocore/gronx"
)

// Valid reports whether expr is a well-formed 5-field crontab expression
// (minute hour dom month dow), accepting "*", numeric ranges, step syntax
// ("*/N"), and comma lists.
func Valid(expr string) bool {
	return gronx.New().IsValid(expr)
}

// Due reports whether expr matches the minute containing at. Evaluation
// errors (a malformed expression that slipped past Valid, e.g. from a
// corrupted snapshot) are treated as not due.
func Due(expr string, at time.Time) bool {
	ok, err := gronx.IsDue(expr, at)
	if err != nil {
		return false
	}
	return ok
}
