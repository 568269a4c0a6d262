package models

import "github.com/google/uuid"

// ensureID assigns a random identifier when the caller left it empty so rows
// are portable across postgres and sqlite.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
