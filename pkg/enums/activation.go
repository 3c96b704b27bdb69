package enums

// ActivationStatus is the seat state of a device binding. ACTIVE and STALE
// both occupy a seat.
type ActivationStatus string

const (
	ActivationStatusActive      ActivationStatus = "ACTIVE"
	ActivationStatusStale       ActivationStatus = "STALE"
	ActivationStatusDeactivated ActivationStatus = "DEACTIVATED"
	ActivationStatusExpired     ActivationStatus = "EXPIRED"
)

var activationStatuses = newSet("activation status",
	ActivationStatusActive, ActivationStatusStale, ActivationStatusDeactivated, ActivationStatusExpired)

func (v ActivationStatus) IsValid() bool { return activationStatuses.has(v) }
