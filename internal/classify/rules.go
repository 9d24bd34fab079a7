package classify

import (
	"strings"

	"github.com/vietddude/resilience/internal/core/domain"
)

// outcome is the classification attached to a kind.
type outcome struct {
	kind      domain.ErrorKind
	severity  domain.Severity
	retryable bool
	recovery  domain.RecoveryAction
}

var outcomes = map[domain.ErrorKind]outcome{
	domain.KindNetwork:    {domain.KindNetwork, domain.SeverityLow, true, domain.RecoveryRetry},
	domain.KindAuth:       {domain.KindAuth, domain.SeverityHigh, false, domain.RecoveryLogin},
	domain.KindQuota:      {domain.KindQuota, domain.SeverityHigh, false, domain.RecoveryUpgrade},
	domain.KindPermission: {domain.KindPermission, domain.SeverityHigh, false, domain.RecoveryNone},
	domain.KindValidation: {domain.KindValidation, domain.SeverityMedium, false, domain.RecoveryNone},
	domain.KindStorage:    {domain.KindStorage, domain.SeverityMedium, true, domain.RecoveryRetry},
	domain.KindProcessing: {domain.KindProcessing, domain.SeverityMedium, true, domain.RecoveryRetry},
	domain.KindUnknown:    {domain.KindUnknown, domain.SeverityMedium, false, domain.RecoveryNone},
}

// keywordRule maps a group of lowercase substrings to a kind. Rules are
// evaluated in order and the first match wins.
type keywordRule struct {
	kind     domain.ErrorKind
	keywords []string
}

var keywordRules = []keywordRule{
	{domain.KindNetwork, []string{
		"network", "fetch", "timeout", "timed out", "connection", "offline",
		"econnrefused", "econnreset", "socket", "dns", "unreachable", "no internet",
		"deadline exceeded",
	}},
	{domain.KindAuth, []string{
		"unauthorized", "unauthenticated", "authentication", "jwt", "token",
		"session", "not logged in", "sign in", "login",
	}},
	{domain.KindQuota, []string{
		"quota", "limit", "trial", "exceeded", "upgrade", "subscription",
	}},
	{domain.KindPermission, []string{
		"permission", "denied", "forbidden", "not allowed",
	}},
	{domain.KindValidation, []string{
		"invalid", "validation", "required", "malformed", "must be",
	}},
	{domain.KindStorage, []string{
		"storage", "upload", "bucket", "file too large",
	}},
	{domain.KindProcessing, []string{
		"processing", "extraction", "extract", "parse", "transcri", "ocr",
	}},
}

// backendCodes maps provider error codes to kinds. It takes precedence over
// keyword matching for BackendError values.
var backendCodes = map[string]domain.ErrorKind{
	// PostgREST
	"PGRST301": domain.KindAuth, // JWT expired
	"PGRST302": domain.KindAuth, // anonymous access disabled

	// Postgres SQLSTATE
	"28000": domain.KindAuth,
	"28P01": domain.KindAuth,
	"42501": domain.KindPermission,
	"23505": domain.KindValidation,
	"23503": domain.KindValidation,
	"23502": domain.KindValidation,
	"23514": domain.KindValidation,
	"22P02": domain.KindValidation,

	// auth provider
	"session_expired":            domain.KindAuth,
	"session_not_found":          domain.KindAuth,
	"refresh_token_not_found":    domain.KindAuth,
	"bad_jwt":                    domain.KindAuth,
	"over_request_rate_limit":    domain.KindQuota,
	"over_email_send_rate_limit": domain.KindQuota,
	"insufficient_aal":           domain.KindPermission,
	"validation_failed":          domain.KindValidation,
	"email_exists":               domain.KindValidation,
	"user_already_exists":        domain.KindValidation,

	// gRPC
	grpcCodePrefix + "Unavailable":        domain.KindNetwork,
	grpcCodePrefix + "DeadlineExceeded":   domain.KindNetwork,
	grpcCodePrefix + "Unauthenticated":    domain.KindAuth,
	grpcCodePrefix + "PermissionDenied":   domain.KindPermission,
	grpcCodePrefix + "ResourceExhausted":  domain.KindQuota,
	grpcCodePrefix + "InvalidArgument":    domain.KindValidation,
	grpcCodePrefix + "AlreadyExists":      domain.KindValidation,
	grpcCodePrefix + "FailedPrecondition": domain.KindValidation,
	grpcCodePrefix + "OutOfRange":         domain.KindValidation,
	grpcCodePrefix + "DataLoss":           domain.KindStorage,
}

// matchKeywords runs the ordered keyword rules against msg.
func matchKeywords(msg string) outcome {
	lower := strings.ToLower(msg)
	for _, rule := range keywordRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return outcomes[rule.kind]
			}
		}
	}
	return outcomes[domain.KindUnknown]
}

// MatchesNetwork reports whether msg uses network-failure wording.
func MatchesNetwork(msg string) bool {
	return matchKeywords(msg).kind == domain.KindNetwork
}
