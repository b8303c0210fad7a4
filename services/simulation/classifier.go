package simulation

import "github.com/previsim/previsim/services/simulation/datatypes"

// ChangeTier describes which subset of fields changed between two snapshots.
// The dispatcher maps the tier to a debounce delay: the cheaper the change,
// the longer the user gets to keep typing before a recalculation fires.
type ChangeTier int

const (
	// TierImmediate covers demographic/financial/actuarial changes that move
	// monetary outcomes. Shortest delay.
	TierImmediate ChangeTier = iota

	// TierAdministrative covers the administrative fee fields. Medium delay.
	TierAdministrative

	// TierTechnical covers formatting/methodology-only fields with no
	// monetary effect. Longest delay.
	TierTechnical
)

// String returns the tier name for logs and metric labels.
func (t ChangeTier) String() string {
	switch t {
	case TierImmediate:
		return "immediate"
	case TierAdministrative:
		return "administrative"
	case TierTechnical:
		return "technical"
	default:
		return "unknown"
	}
}

// technicalFields affect only output formatting or projection methodology,
// never the monetary result.
var technicalFields = map[string]bool{
	datatypes.FieldProjectionGranularity: true,
	datatypes.FieldResultPrecision:       true,
	datatypes.FieldShowNominalValues:     true,
}

// administrativeFields are the plan administration fee knobs.
var administrativeFields = map[string]bool{
	datatypes.FieldAdminFeeRate:   true,
	datatypes.FieldLoadingFeeRate: true,
}

// Classify returns the change tier for the edit that took prev to next.
//
// A change set made up entirely of technical fields is technical; entirely of
// administrative fee fields, administrative; anything else, including any mix
// that touches a field outside those two lists, is immediate. An empty change
// set should have been filtered upstream; if one slips through it classifies
// as immediate, failing toward responsiveness rather than silence.
//
// datatypes.Diff returns fields in fixed declaration order, so the result
// never depends on iteration order.
func Classify(prev, next datatypes.ParameterSnapshot) ChangeTier {
	changed := datatypes.Diff(prev, next)
	if len(changed) == 0 {
		return TierImmediate
	}

	allTechnical := true
	allAdministrative := true
	for _, field := range changed {
		if !technicalFields[field] {
			allTechnical = false
		}
		if !administrativeFields[field] {
			allAdministrative = false
		}
	}
	switch {
	case allTechnical:
		return TierTechnical
	case allAdministrative:
		return TierAdministrative
	default:
		return TierImmediate
	}
}
