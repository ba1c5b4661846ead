package duedate

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/punchamoorthee/procurefin/internal/domain"
)

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestCompute(t *testing.T) {
	ref := date("2025-01-10")
	delivery := date("2025-01-15")

	tests := []struct {
		name     string
		fallback *time.Time
		term     Term
		want     string
	}{
		{"cash before delivery", &delivery, CBD(), "2025-01-10"},
		{"cash on delivery uses delivery date", &delivery, COD(), "2025-01-15"},
		{"cash on delivery without delivery date", nil, COD(), "2025-01-10"},
		{"net 30 crosses month", nil, NetDays(30), "2025-02-09"},
		{"net 0", nil, NetDays(0), "2025-01-10"},
		{"net 365 crosses year", nil, NetDays(365), "2026-01-10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compute(ref, tt.fallback, tt.term)
			if err != nil {
				t.Fatalf("Compute: %v", err)
			}
			if got.Format("2006-01-02") != tt.want {
				t.Fatalf("got %s, want %s", got.Format("2006-01-02"), tt.want)
			}
		})
	}
}

func TestComputeDropsClock(t *testing.T) {
	jkt := time.FixedZone("WIB", 7*3600)
	ref := time.Date(2025, 3, 31, 23, 45, 0, 0, jkt)
	got, err := Compute(ref, nil, NetDays(1))
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	want := time.Date(2025, 4, 1, 0, 0, 0, 0, jkt)
	if !got.Equal(want) {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestComputeRejectsBadInput(t *testing.T) {
	if _, err := Compute(date("2025-01-10"), nil, NetDays(-1)); !errors.Is(err, domain.ErrInvalidTerm) {
		t.Errorf("negative days: %v", err)
	}
	if _, err := Compute(time.Time{}, nil, CBD()); !errors.Is(err, domain.ErrInvalidTerm) {
		t.Errorf("zero reference: %v", err)
	}
}

func TestParseTerm(t *testing.T) {
	good := map[string]Term{
		"CBD":    CBD(),
		" cod ":  COD(),
		"NET30":  NetDays(30),
		"net 14": NetDays(14),
		"NET-45": NetDays(45),
		"NET_0":  NetDays(0),
	}
	for in, want := range good {
		got, err := ParseTerm(in)
		if err != nil || got != want {
			t.Errorf("ParseTerm(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	for _, in := range []string{"", "NET", "NET-5x", "NET-(-3)", "TT", "30"} {
		if _, err := ParseTerm(in); !errors.Is(err, domain.ErrInvalidTerm) {
			t.Errorf("ParseTerm(%q) err = %v", in, err)
		}
	}
}

func TestTermJSON(t *testing.T) {
	var body struct {
		Term Term `json:"term"`
	}
	if err := json.Unmarshal([]byte(`{"term":"net 30"}`), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Term != NetDays(30) {
		t.Fatalf("term = %v", body.Term)
	}
	out, _ := json.Marshal(body)
	if string(out) != `{"term":"NET30"}` {
		t.Fatalf("marshal = %s", out)
	}
}

func TestResolveManualWins(t *testing.T) {
	computed := date("2025-02-09")
	manual := date("2025-02-20")
	if got := Resolve(computed, &manual); !got.Equal(manual) {
		t.Fatalf("manual override ignored: %s", got)
	}
	if got := Resolve(computed, nil); !got.Equal(computed) {
		t.Fatalf("auto date lost: %s", got)
	}
}
