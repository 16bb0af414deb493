package reconcile

import "testing"

func TestInferFromBadge(t *testing.T) {
	tests := []struct {
		name      string
		badge     string
		wantForce string
		wantRank  string
	}{
		{"sergeant prefix is rank not force", "PS1234", "", "Sergeant"},
		{"constable prefix", "PC4471", "", "Constable"},
		{"pcso prefix", "PCSO7012", "", "Police Community Support Officer"},
		{"inspector prefix", "INSP22", "", "Inspector"},
		{"force code", "GMP1234", "Greater Manchester Police", ""},
		{"transport police", "BTP881", "British Transport Police", ""},
		{"northern ireland beats short rank prefix", "PSNI4421", "Police Service of Northern Ireland", ""},
		{"single letter with enough digits", "M2345", "Metropolitan Police Service", ""},
		{"single letter too few digits", "M123", "", ""},
		{"kent with enough digits", "K9001", "Kent Police", ""},
		{"lowercase and spaces normalized", "  ps 1234 ", "", "Sergeant"},
		{"bare number", "1234", "", ""},
		{"letters only", "POLICE", "", ""},
		{"empty", "", "", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			inf := InferFromBadge(tc.badge)
			if inf.Force != tc.wantForce {
				t.Errorf("InferFromBadge(%q).Force = %q; want %q", tc.badge, inf.Force, tc.wantForce)
			}
			if inf.Rank != tc.wantRank {
				t.Errorf("InferFromBadge(%q).Rank = %q; want %q", tc.badge, inf.Rank, tc.wantRank)
			}
		})
	}
}

func TestInferFromBadgeConfidences(t *testing.T) {
	if inf := InferFromBadge("PS1234"); inf.RankConfidence <= 0 {
		t.Error("rank inference should carry positive confidence")
	}
	if inf := InferFromBadge("GMP1234"); inf.ForceConfidence <= 0 {
		t.Error("force inference should carry positive confidence")
	}

	multi := InferFromBadge("GMP1234").ForceConfidence
	single := InferFromBadge("M23456").ForceConfidence
	if single >= multi {
		t.Errorf("single-letter prefix should be less confident: %v vs %v", single, multi)
	}
}

func TestInferFromBadgeIndicators(t *testing.T) {
	inf := InferFromBadge("PS1234")
	if len(inf.Indicators) == 0 {
		t.Fatal("rank inference should explain itself in indicators")
	}
	inf = InferFromBadge("1234")
	if len(inf.Indicators) != 0 {
		t.Errorf("no inference should mean no indicators, got %v", inf.Indicators)
	}
}
