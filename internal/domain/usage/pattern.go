package usage

import (
	"fmt"
	"strings"
)

// Pattern is the usage-control behavior a rule is recognized as.
// It is always derived from a rule and never stored on its own.
type Pattern string

const (
	PatternProvideAccess            Pattern = "PROVIDE_ACCESS"
	PatternProhibitAccess           Pattern = "PROHIBIT_ACCESS"
	PatternNTimesUsage              Pattern = "N_TIMES_USAGE"
	PatternDurationUsage            Pattern = "DURATION_USAGE"
	PatternUsageDuringInterval      Pattern = "USAGE_DURING_INTERVAL"
	PatternUsageUntilDeletion       Pattern = "USAGE_UNTIL_DELETION"
	PatternUsageLogging             Pattern = "USAGE_LOGGING"
	PatternUsageNotification        Pattern = "USAGE_NOTIFICATION"
	PatternConnectorRestrictedUsage Pattern = "CONNECTOR_RESTRICTED_USAGE"
)

// AllPatterns lists every supported pattern.
var AllPatterns = []Pattern{
	PatternProvideAccess,
	PatternProhibitAccess,
	PatternNTimesUsage,
	PatternDurationUsage,
	PatternUsageDuringInterval,
	PatternUsageUntilDeletion,
	PatternUsageLogging,
	PatternUsageNotification,
	PatternConnectorRestrictedUsage,
}

// Valid reports whether p is one of the supported patterns.
func (p Pattern) Valid() bool {
	for _, known := range AllPatterns {
		if p == known {
			return true
		}
	}
	return false
}

func (p Pattern) String() string {
	if p == "" {
		return "UNKNOWN"
	}
	return string(p)
}

// ParsePattern parses a pattern name case-insensitively.
func ParsePattern(s string) (Pattern, error) {
	p := Pattern(strings.ToUpper(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("unknown usage pattern %q", s)
	}
	return p, nil
}
