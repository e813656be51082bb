package config

import (
	"fmt"

	"github.com/inful/docgen/internal/foundation"
)

// retryModeNormalizer and retryModeValidator mirror the teacher's typed
// config enums (e.g. ParseDaemonModeType's daemonModeNormalizer /
// daemonModeValidator pair) applied to retry.mode.
var (
	retryModeNormalizer = foundation.NewNormalizer(map[string]RetryBackoffMode{
		"fixed":       RetryBackoffFixed,
		"linear":      RetryBackoffLinear,
		"exponential": RetryBackoffExponential,
	}, RetryBackoffExponential)

	retryModeValidator = foundation.OneOf("retry.mode", []RetryBackoffMode{
		RetryBackoffFixed, RetryBackoffLinear, RetryBackoffExponential,
	})
)

// ParseRetryBackoffMode normalizes and validates a retry.mode string,
// returning a foundation.Result the way the teacher's typed config
// package reports enum parse failures.
func ParseRetryBackoffMode(s string) foundation.Result[RetryBackoffMode, error] {
	mode, err := retryModeNormalizer.NormalizeWithError(s)
	if err != nil {
		return foundation.Err[RetryBackoffMode, error](
			foundation.ValidationError(fmt.Sprintf("invalid retry.mode: %s", s)).
				WithContext(foundation.Fields{
					"input":        s,
					"valid_values": []string{"fixed", "linear", "exponential"},
				}).
				Build(),
		)
	}
	if result := retryModeValidator(mode); !result.Valid {
		return foundation.Err[RetryBackoffMode, error](result.ToError())
	}
	return foundation.Ok[RetryBackoffMode, error](mode)
}
