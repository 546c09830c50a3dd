package accounting

import "strings"

// CashAssetType is the asset type of the cash legs booked against outcome
// shares.
const CashAssetType = "USD"

// UnknownAssetType is the fallback for blank outcome ids.
const UnknownAssetType = "OUTCOME_UNKNOWN"

// ResolveAssetType derives an outcome asset type from an outcome id:
// trimmed, hyphens to underscores, upper-cased. "drake-album" maps to
// "DRAKE_ALBUM". Idempotent on already-resolved inputs.
func ResolveAssetType(outcomeID string) string {
	trimmed := strings.TrimSpace(outcomeID)
	if trimmed == "" {
		return UnknownAssetType
	}
	return strings.ToUpper(strings.ReplaceAll(trimmed, "-", "_"))
}
