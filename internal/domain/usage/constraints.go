package usage

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sosodev/duration"
)

// TimeLayout is the timestamp profile constraint values are written in.
const TimeLayout = "2006-01-02T15:04:05Z"

// ParseTime parses a constraint timestamp. The fixed UTC profile is tried
// first; RFC 3339 with offsets or fractional seconds is accepted as well.
func ParseTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(TimeLayout, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", value, err)
	}
	return t.UTC(), nil
}

// Interval is a half-open usage window; both bounds are exclusive.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether start < now < end.
func (i Interval) Contains(now time.Time) bool {
	return i.Start.Before(now) && now.Before(i.End)
}

// IntervalOf extracts the usage window from a rule: the AFTER constraint is
// the start and the BEFORE constraint the end. The bound may be expressed
// either as the operator or as the left operand.
func IntervalOf(rule Rule) (Interval, error) {
	var iv Interval
	var haveStart, haveEnd bool
	for _, c := range rule.Constraints {
		switch {
		case c.Operator == OperatorAfter || c.LeftOperand == LeftOperandAfter:
			t, err := ParseTime(c.RightOperand.Value)
			if err != nil {
				return Interval{}, fmt.Errorf("%w: start: %v", ErrInvalidInterval, err)
			}
			iv.Start, haveStart = t, true
		case c.Operator == OperatorBefore || c.LeftOperand == LeftOperandBefore:
			t, err := ParseTime(c.RightOperand.Value)
			if err != nil {
				return Interval{}, fmt.Errorf("%w: end: %v", ErrInvalidInterval, err)
			}
			iv.End, haveEnd = t, true
		}
	}
	if !haveStart || !haveEnd {
		return Interval{}, fmt.Errorf("%w: rule %q needs both AFTER and BEFORE bounds", ErrInvalidInterval, rule.ID)
	}
	if !iv.Start.Before(iv.End) {
		return Interval{}, fmt.Errorf("%w: start %s is not before end %s", ErrInvalidInterval,
			iv.Start.Format(TimeLayout), iv.End.Format(TimeLayout))
	}
	return iv, nil
}

// isDurationType reports whether a right operand type denotes an xsd:duration.
func isDurationType(t string) bool {
	return t == TypeDuration || t == TypeDurationLong
}

// Period is an ISO-8601 duration kept in calendar units so that years and
// months are added as calendar arithmetic rather than fixed lengths.
type Period struct {
	Years, Months, Days int
	Clock               time.Duration
	Negative            bool
}

// AddTo returns t shifted by the period.
func (p Period) AddTo(t time.Time) time.Time {
	sign := 1
	if p.Negative {
		sign = -1
	}
	return t.AddDate(sign*p.Years, sign*p.Months, sign*p.Days).Add(time.Duration(sign) * p.Clock)
}

// ParsePeriod parses an ISO-8601 duration such as "P1D" or "PT1H30M".
func ParsePeriod(value string) (Period, error) {
	d, err := duration.Parse(strings.TrimSpace(value))
	if err != nil {
		return Period{}, fmt.Errorf("%w: %q: %v", ErrInvalidDuration, value, err)
	}

	p := Period{Negative: d.Negative}
	var fracDays float64
	p.Years, fracDays = splitWhole(d.Years, 365)
	var m float64
	p.Months, m = splitWhole(d.Months, 30)
	fracDays += m
	weeksDays := d.Weeks * 7
	days, frac := math.Modf(d.Days + weeksDays + fracDays)
	p.Days = int(days)
	p.Clock = time.Duration(frac*24*float64(time.Hour)) +
		time.Duration(d.Hours*float64(time.Hour)) +
		time.Duration(d.Minutes*float64(time.Minute)) +
		time.Duration(d.Seconds*float64(time.Second))
	return p, nil
}

// splitWhole splits v into its integer part and the fraction expressed in days.
func splitWhole(v float64, daysPerUnit float64) (int, float64) {
	whole, frac := math.Modf(v)
	return int(whole), frac * daysPerUnit
}

// DurationOf reads the usage period of a DURATION_USAGE rule. The single
// constraint must carry a duration-typed right operand.
func DurationOf(rule Rule) (Period, error) {
	if len(rule.Constraints) == 0 {
		return Period{}, fmt.Errorf("%w: rule %q has no duration constraint", ErrMissingConstraint, rule.ID)
	}
	c := rule.Constraints[0]
	if !isDurationType(c.RightOperand.Type) {
		return Period{}, fmt.Errorf("%w: right operand type %q is not a duration", ErrInvalidDuration, c.RightOperand.Type)
	}
	return ParsePeriod(c.RightOperand.Value)
}

// Deadline returns created shifted by the usage period.
func Deadline(created time.Time, p Period) time.Time {
	return p.AddTo(created)
}

// MaxAccess computes how many accesses an N_TIMES_USAGE rule permits.
// EQ and LTEQ allow exactly the value, LT one fewer, anything else none.
// Negative values are treated as zero.
func MaxAccess(rule Rule) (int64, error) {
	if len(rule.Constraints) == 0 {
		return 0, fmt.Errorf("%w: rule %q has no count constraint", ErrMissingConstraint, rule.ID)
	}
	c := rule.Constraints[0]
	n, err := strconv.ParseInt(strings.TrimSpace(c.RightOperand.Value), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidCount, c.RightOperand.Value, err)
	}
	if n < 0 {
		n = 0
	}
	switch c.Operator {
	case OperatorEQ, OperatorLTEQ:
		return n, nil
	case OperatorLT:
		return n - 1, nil
	default:
		return 0, nil
	}
}

// AllowedConnector returns the connector a CONNECTOR_RESTRICTED_USAGE rule names.
func AllowedConnector(rule Rule) (string, error) {
	if len(rule.Constraints) == 0 || rule.Constraints[0].RightOperand.Value == "" {
		return "", fmt.Errorf("%w: rule %q has no connector constraint", ErrMissingConstraint, rule.ID)
	}
	return strings.TrimSpace(rule.Constraints[0].RightOperand.Value), nil
}

// NotificationEndpoint returns the endpoint the first post-duty of a
// USAGE_NOTIFICATION rule names. An ENDPOINT constraint is preferred; any
// first constraint value is accepted otherwise.
func NotificationEndpoint(rule Rule) (string, error) {
	if len(rule.PostDuties) == 0 {
		return "", fmt.Errorf("%w: rule %q has no post-duty", ErrMissingConstraint, rule.ID)
	}
	duty := rule.PostDuties[0]
	for _, c := range duty.Constraints {
		if c.LeftOperand == LeftOperandEndpoint && c.RightOperand.Value != "" {
			return c.RightOperand.Value, nil
		}
	}
	if len(duty.Constraints) > 0 && duty.Constraints[0].RightOperand.Value != "" {
		return duty.Constraints[0].RightOperand.Value, nil
	}
	return "", fmt.Errorf("%w: notification duty of rule %q names no endpoint", ErrMissingConstraint, rule.ID)
}

// DeletionDate returns the date carried by a duty's first constraint.
func DeletionDate(duty Rule) (time.Time, error) {
	if len(duty.Constraints) == 0 {
		return time.Time{}, fmt.Errorf("%w: duty %q has no date constraint", ErrMissingConstraint, duty.ID)
	}
	return ParseTime(duty.Constraints[0].RightOperand.Value)
}

// DeletionDue reports whether the rule carries a DELETE post-duty whose date
// has been reached (now >= date). Only the first DELETE duty is considered.
func DeletionDue(rule Rule, now time.Time) (bool, error) {
	if rule.Kind == KindProhibition {
		return false, nil
	}
	for _, duty := range rule.PostDuties {
		if !duty.HasAction(ActionDelete) {
			continue
		}
		date, err := DeletionDate(duty)
		if err != nil {
			return false, err
		}
		return !now.Before(date), nil
	}
	return false, nil
}
