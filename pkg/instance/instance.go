package instance

import (
	"fmt"
	"os"

	"github.com/angelmondragon/licensing-backend/pkg/env"
)

// GetID identifies this process for lock ownership and log fields.
// LICENSING_INSTANCE_ID wins; otherwise hostname and pid are combined.
func GetID() string {
	if id := env.Get("LICENSING_INSTANCE_ID", ""); id != "" {
		return id
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "licensing"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
