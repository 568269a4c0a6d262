package instance

import "github.com/angelmondragon/codfulfillment-backend/pkg/env"

// GetID identifies the running process in logs. CODF_INSTANCE_ID wins over
// the platform-provided DYNO.
func GetID() string {
	return env.First("local", "CODF_INSTANCE_ID", "DYNO")
}
