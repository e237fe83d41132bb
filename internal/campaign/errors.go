package campaign

import (
	"errors"
	"fmt"
)

// NotFoundError reports an unknown campaign ID.
type NotFoundError struct {
	CampaignID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("campaign %s not found", e.CampaignID)
}

// VersionConflictError reports an optimistic-concurrency violation: the
// caller saved against a stale version and must reload and retry.
type VersionConflictError struct {
	CampaignID string
	Attempted  int64
	Stored     int64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("campaign %s version conflict: attempted v%d against stored v%d",
		e.CampaignID, e.Attempted, e.Stored)
}

// ValidationError reports malformed input or a broken aggregate invariant.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// ExternalServiceError reports a failed call to an external generation
// provider. Transient errors (timeouts, 5xx) are retried per adapter policy;
// non-transient ones (quota exhaustion) surface immediately.
type ExternalServiceError struct {
	Provider  string
	Operation string
	Transient bool
	Err       error
}

func (e *ExternalServiceError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("%s %s failed (%s): %v", e.Provider, e.Operation, kind, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// ContentPolicyError reports a provider content-policy rejection. Never
// retried: the same prompt will be rejected again.
type ContentPolicyError struct {
	Provider string
	Reason   string
}

func (e *ContentPolicyError) Error() string {
	return fmt.Sprintf("%s rejected content: %s", e.Provider, e.Reason)
}

// IsTransient reports whether err may succeed on retry.
func IsTransient(err error) bool {
	var ese *ExternalServiceError
	if errors.As(err, &ese) {
		return ese.Transient
	}
	return false
}

// IsContentPolicy reports whether err is a content-policy rejection.
func IsContentPolicy(err error) bool {
	var cpe *ContentPolicyError
	return errors.As(err, &cpe)
}

// IsNotFound reports whether err is an unknown-campaign error.
func IsNotFound(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}

// IsVersionConflict reports whether err is an optimistic-concurrency failure.
func IsVersionConflict(err error) bool {
	var vce *VersionConflictError
	return errors.As(err, &vce)
}
