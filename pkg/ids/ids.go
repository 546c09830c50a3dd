package ids

import (
	"crypto/sha256"
	"strings"

	"github.com/google/uuid"
)

// ForOperator resolves a free-form operator string to a stable 128-bit id.
// A string that already parses as a UUID is used as-is; anything else maps
// to the first 16 bytes of the SHA-256 digest of the trimmed string, so the
// same operator name resolves to the same id across processes.
func ForOperator(operator string) uuid.UUID {
	trimmed := strings.TrimSpace(operator)
	if id, err := uuid.Parse(trimmed); err == nil {
		return id
	}
	sum := sha256.Sum256([]byte(trimmed))
	var id uuid.UUID
	copy(id[:], sum[:16])
	return id
}
