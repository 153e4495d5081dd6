package entitlements

// Limits represents the entitlements derived from a subscription tier.
// Keep this small and stable: other services may rely on these limits to enforce behavior.
type Limits struct {
	Tier                   string `json:"tier"`
	MaxStaff               int32  `json:"max_staff"`
	MaxServices            int32  `json:"max_services"`
	MaxMonthlyAppointments int32  `json:"max_monthly_appointments"`
}

var tiers = map[string]Limits{
	"free": {
		Tier:                   "free",
		MaxStaff:               3,
		MaxServices:            10,
		MaxMonthlyAppointments: 200,
	},
	"starter": {
		Tier:                   "starter",
		MaxStaff:               5,
		MaxServices:            25,
		MaxMonthlyAppointments: 500,
	},
	"pro": {
		Tier:                   "pro",
		MaxStaff:               25,
		MaxServices:            100,
		MaxMonthlyAppointments: 5000,
	},
}

// LimitsForTier maps a tier name to its limits. Unknown tiers get free limits
// so a bad value can never grant more than the floor.
func LimitsForTier(tier string) Limits {
	if l, ok := tiers[tier]; ok {
		return l
	}
	return tiers["free"]
}

func ValidTier(tier string) bool {
	_, ok := tiers[tier]
	return ok
}

// Tiers returns the catalog in ascending order of entitlement.
func Tiers() []Limits {
	return []Limits{tiers["free"], tiers["starter"], tiers["pro"]}
}
