package httpx

import (
	"strings"

	"github.com/google/uuid"
)

// genID returns a random request identifier (32 hex chars, no dashes).
func genID() string {
	u := uuid.New()
	return strings.ReplaceAll(u.String(), "-", "")
}
