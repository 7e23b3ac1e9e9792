package ws

import (
	"strings"

	"github.com/google/uuid"
)

func newConnID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" || len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}
