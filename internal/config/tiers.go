package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lowc1012/tiered-rate-limiter/pkg/ratelimiter"
)

type tiersFile struct {
	Tiers []ratelimiter.Tier `yaml:"tiers"`
}

// LoadTiersFile reads tier definitions from a YAML document of the form
//
//	tiers:
//	  - name: free
//	    per_minute: 10
//	    per_day: 1000
func LoadTiersFile(path string) ([]ratelimiter.Tier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tiers file: %w", err)
	}
	return DecodeTiers(data)
}

func DecodeTiers(data []byte) ([]ratelimiter.Tier, error) {
	var f tiersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to decode tiers: %w", err)
	}
	return f.Tiers, nil
}

// ParseTiers parses the compact form "name:minute/hour/day,...". Empty or zero
// fields leave a window unlimited, so "free:10//1000" has no hourly ceiling.
func ParseTiers(s string) ([]ratelimiter.Tier, error) {
	var tiers []ratelimiter.Tier
	for _, def := range strings.Split(s, ",") {
		def = strings.TrimSpace(def)
		if def == "" {
			continue
		}

		name, limits, ok := strings.Cut(def, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("tier %q: want name:minute/hour/day", def)
		}
		fields := strings.Split(limits, "/")
		if len(fields) != 3 {
			return nil, fmt.Errorf("tier %q: want name:minute/hour/day", def)
		}

		var ceilings [3]int64
		for i, f := range fields {
			f = strings.TrimSpace(f)
			if f == "" {
				continue
			}
			n, err := strconv.ParseInt(f, 10, 64)
			if err != nil || n < 0 {
				return nil, fmt.Errorf("tier %q: invalid ceiling %q", def, f)
			}
			ceilings[i] = n
		}

		tiers = append(tiers, ratelimiter.Tier{
			Name:      strings.TrimSpace(name),
			PerMinute: ceilings[0],
			PerHour:   ceilings[1],
			PerDay:    ceilings[2],
		})
	}
	return tiers, nil
}
