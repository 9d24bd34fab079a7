package domain

// DefaultUserMessage returns the user-facing message shown for kind when the
// caller does not provide one. Unrecognised kinds fall back to the generic
// message.
func DefaultUserMessage(kind ErrorKind) UserMessage {
	switch kind {
	case KindNetwork:
		return UserMessage{
			Title:       "Connection Problem",
			Message:     "Please check your internet connection and try again.",
			ActionLabel: "Retry",
			ActionType:  RecoveryRetry,
		}
	case KindAuth:
		return UserMessage{
			Title:       "Session Expired",
			Message:     "Please sign in again to continue.",
			ActionLabel: "Sign In",
			ActionType:  RecoveryLogin,
		}
	case KindQuota:
		return UserMessage{
			Title:       "Limit Reached",
			Message:     "You've reached the limit of your current plan. Upgrade to keep going.",
			ActionLabel: "Upgrade",
			ActionType:  RecoveryUpgrade,
		}
	case KindValidation:
		return UserMessage{
			Title:   "Invalid Input",
			Message: "Please check the information you entered and try again.",
		}
	case KindPermission:
		return UserMessage{
			Title:   "Access Denied",
			Message: "You don't have permission to perform this action.",
		}
	case KindStorage:
		return UserMessage{
			Title:       "Upload Failed",
			Message:     "We couldn't save your file. Please try again.",
			ActionLabel: "Retry",
			ActionType:  RecoveryRetry,
		}
	case KindProcessing:
		return UserMessage{
			Title:       "Processing Failed",
			Message:     "We couldn't process your content. Please try again.",
			ActionLabel: "Retry",
			ActionType:  RecoveryRetry,
		}
	default:
		return UserMessage{
			Title:   "Something Went Wrong",
			Message: "An unexpected error occurred. Please try again.",
		}
	}
}
