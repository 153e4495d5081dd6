package entitlements

import "testing"

func TestLimitsForTierUnknownFallsBackToFree(t *testing.T) {
	got := LimitsForTier("platinum")
	if got.Tier != "free" {
		t.Fatalf("tier = %q, want free", got.Tier)
	}
	if got.MaxMonthlyAppointments != 200 {
		t.Fatalf("max monthly appointments = %d, want 200", got.MaxMonthlyAppointments)
	}
}

func TestTiersAscending(t *testing.T) {
	all := Tiers()
	if len(all) != 3 {
		t.Fatalf("got %d tiers, want 3", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].MaxMonthlyAppointments <= all[i-1].MaxMonthlyAppointments {
			t.Fatalf("tier %q does not grant more than %q", all[i].Tier, all[i-1].Tier)
		}
	}
	for _, l := range all {
		if !ValidTier(l.Tier) {
			t.Fatalf("catalog tier %q not valid", l.Tier)
		}
	}
}
