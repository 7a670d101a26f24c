package engine

import "time"

// shouldApply is the merge gate: incoming content overwrites stored
// content only when it was fetched strictly later than the last applied
// response. Equal timestamps mean the same response redelivered, and an
// earlier one is a stale reordering; both leave the entity untouched.
func shouldApply(updatedAt, fetchedAt time.Time) bool {
	return fetchedAt.After(updatedAt)
}

// applySparse copies a sparse wire flag onto a stored flag. A nil
// source means the response did not report the flag, so the stored
// value stands. Reports whether the stored value changed.
func applySparse(dst *bool, src *bool) bool {
	if src == nil || *dst == *src {
		return false
	}
	*dst = *src
	return true
}
