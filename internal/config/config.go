package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr         string
	DatabaseURL  string
	BoardSize    int
	Fleet        []int
	ChallengeTTL time.Duration
}

// Load reads configuration from the environment. cmd/server loads .env
// first via godotenv, so local overrides live in a dotfile.
func Load() (Config, error) {
	cfg := Config{
		Addr:         ":8080",
		BoardSize:    10,
		Fleet:        []int{5, 4, 3, 3, 2},
		ChallengeTTL: 60 * time.Second,
	}

	if v := os.Getenv("ADDR"); v != "" {
		cfg.Addr = v
	}
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	if v := os.Getenv("BOARD_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return Config{}, fmt.Errorf("bad BOARD_SIZE %q", v)
		}
		cfg.BoardSize = n
	}

	if v := os.Getenv("FLEET"); v != "" {
		fleet, err := ParseFleet(v)
		if err != nil {
			return Config{}, err
		}
		cfg.Fleet = fleet
	}

	if v := os.Getenv("CHALLENGE_TTL_SEC"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return Config{}, fmt.Errorf("bad CHALLENGE_TTL_SEC %q", v)
		}
		cfg.ChallengeTTL = time.Duration(n) * time.Second
	}

	for _, l := range cfg.Fleet {
		if l > cfg.BoardSize {
			return Config{}, fmt.Errorf("fleet ship length %d does not fit board size %d", l, cfg.BoardSize)
		}
	}
	return cfg, nil
}

// ParseFleet parses a comma-separated manifest like "5,4,3,3,2".
func ParseFleet(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	fleet := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 1 {
			return nil, fmt.Errorf("bad fleet entry %q", p)
		}
		fleet = append(fleet, n)
	}
	return fleet, nil
}
