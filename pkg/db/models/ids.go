package models

import "github.com/google/uuid"

// ensureID assigns a v4 id when the caller left it empty so inserts work on
// both Postgres and the sqlite test harness.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
