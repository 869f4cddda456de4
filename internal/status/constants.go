// internal/status/constants.go
package status

// Health codes of a watch session.
// Values are stable: they are exported as metric labels and printed by the CLI.

// HealthUnknown represents a session that has not fetched yet.
const HealthUnknown uint16 = 0

// HealthOK represents a session whose last fetch succeeded.
const HealthOK uint16 = 1

// HealthError represents a session with failing fetches still under the threshold.
const HealthError uint16 = 2

// HealthTripped represents a session whose breaker tripped.
// It stays tripped until the session is rebuilt.
const HealthTripped uint16 = 3

// HealthString names a health code.
func HealthString(h uint16) string {
	switch h {
	case HealthOK:
		return "ok"
	case HealthError:
		return "error"
	case HealthTripped:
		return "tripped"
	default:
		return "unknown"
	}
}

// Status block layout, published to holding registers when a connection
// configures a status endpoint. These values define the register protocol
// and MUST NOT be configurable.

// SlotsPerBlock is the fixed number of registers per connection.
const SlotsPerBlock = 16

// SlotHealthCode holds the health code.
const SlotHealthCode = 0

// SlotFailures holds the consecutive fetch failure count.
const SlotFailures = 1

// SlotSecondsInError holds the duration (in seconds) the session has been in error.
// It saturates at 65535.
const SlotSecondsInError = 2

// SlotModeFlags holds the Mode* bits.
const SlotModeFlags = 3

// SlotLiveCount is the number of slots derived from a snapshot.
// Slots 0..SlotLiveCount-1 are rewritten whenever they change.
const SlotLiveCount = 4

// Slots 4-7 are reserved and written as zero.
const SlotReservedStart = 4
const SlotReservedEnd = 7

// SlotNameStart is the first slot of the connection name.
// The name always sits at the end of the block.
const SlotNameStart = 8

// SlotNameSlots is the number of registers reserved for the name.
const SlotNameSlots = 8

// NameMaxChars is the maximum number of ASCII characters stored for the name.
const NameMaxChars = 2 * SlotNameSlots

// Mode flag bits of SlotModeFlags.
const (
	ModeAutoRefresh uint16 = 1 << 0
	ModeWriteIntent uint16 = 1 << 1
)
