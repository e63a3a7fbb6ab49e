package ordering

import (
	"time"

	"mealorder-service/internal/apperr"
	"mealorder-service/internal/model"
)

// Window rule identifiers reported when an order date is rejected.
const (
	RuleCutoff     = "cutoff"
	RuleMinAdvance = "min_advance"
	RuleMaxAdvance = "max_advance"
	RuleWeekend    = "weekend"
)

// CheckWindow validates a target order date against a university's ordering
// rules. The cutoff instant is (target date - 1 day) at CutoffHour:00 in the
// university's local timezone; ordering closes the moment now reaches it.
func CheckWindow(now time.Time, targetDate string, settings model.OrderingSettings) error {
	loc, err := time.LoadLocation(settings.Timezone)
	if err != nil {
		loc = time.UTC
	}

	date, err := time.ParseInLocation(model.DateLayout, targetDate, loc)
	if err != nil {
		return apperr.Newf(apperr.KindValidation, "invalid order date %q, expected YYYY-MM-DD", targetDate)
	}

	nowLocal := now.In(loc)

	if !settings.AllowWeekendOrders {
		if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
			return windowClosed(RuleWeekend, "weekend ordering is disabled for this university")
		}
	}

	if settings.MaxAdvanceDays > 0 {
		latest := nowLocal.AddDate(0, 0, settings.MaxAdvanceDays)
		if date.After(latest) {
			return windowClosed(RuleMaxAdvance, "order date is too far in the future")
		}
	}

	if settings.MinAdvanceHours > 0 {
		minStart := nowLocal.Add(time.Duration(settings.MinAdvanceHours) * time.Hour)
		if date.Before(minStart) {
			return windowClosed(RuleMinAdvance, "order date is too soon")
		}
	}

	cutoff := time.Date(date.Year(), date.Month(), date.Day(), settings.CutoffHour, 0, 0, 0, loc).
		AddDate(0, 0, -1)
	if !nowLocal.Before(cutoff) {
		return windowClosed(RuleCutoff, "the ordering cutoff for this date has passed")
	}

	return nil
}

func windowClosed(rule, message string) error {
	return apperr.New(apperr.KindOrderingWindowClosed, message).WithField("rule", rule)
}
