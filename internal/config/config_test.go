package config

import (
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"ADDR", "DATABASE_URL", "BOARD_SIZE", "FLEET", "CHALLENGE_TTL_SEC"} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.BoardSize != 10 || cfg.ChallengeTTL != 60*time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	want := []int{5, 4, 3, 3, 2}
	if len(cfg.Fleet) != len(want) {
		t.Fatalf("default fleet: %v", cfg.Fleet)
	}
	for i, l := range want {
		if cfg.Fleet[i] != l {
			t.Fatalf("default fleet: %v", cfg.Fleet)
		}
	}
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("ADDR", ":9999")
	t.Setenv("BOARD_SIZE", "8")
	t.Setenv("FLEET", "3,2")
	t.Setenv("CHALLENGE_TTL_SEC", "120")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9999" || cfg.BoardSize != 8 || cfg.ChallengeTTL != 120*time.Second {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if len(cfg.Fleet) != 2 || cfg.Fleet[0] != 3 || cfg.Fleet[1] != 2 {
		t.Fatalf("fleet override not applied: %v", cfg.Fleet)
	}
}

func TestLoad_RejectsFleetLargerThanBoard(t *testing.T) {
	clearEnv(t)
	t.Setenv("BOARD_SIZE", "4")
	t.Setenv("FLEET", "5,2")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for ship longer than board")
	}
}

func TestParseFleet(t *testing.T) {
	cases := []struct {
		in      string
		want    []int
		wantErr bool
	}{
		{in: "5,4,3,3,2", want: []int{5, 4, 3, 3, 2}},
		{in: " 3 , 2 ", want: []int{3, 2}},
		{in: "3,x", wantErr: true},
		{in: "3,0", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParseFleet(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseFleet(%q): expected error, got %v", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseFleet(%q): %v", tc.in, err)
			continue
		}
		if len(got) != len(tc.want) {
			t.Errorf("ParseFleet(%q) = %v, want %v", tc.in, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("ParseFleet(%q) = %v, want %v", tc.in, got, tc.want)
				break
			}
		}
	}
}
