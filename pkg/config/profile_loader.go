package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// TierProfile is the collection policy for one fund tier: how hard and
// how fast the sweep escalates, and what joining costs.
type TierProfile struct {
	Name            string `yaml:"name" json:"name"`
	Tier            string `yaml:"tier" json:"tier"`
	Currency        string `yaml:"currency" json:"currency"`
	LateFeeMinor    int64  `yaml:"late_fee_minor" json:"late_fee_minor"`
	CautionMultiple int    `yaml:"caution_multiple" json:"caution_multiple"`
	Parallelism     int    `yaml:"parallelism" json:"parallelism"`
}

// DefaultTierProfile is the fallback when no profile file is present.
func DefaultTierProfile() *TierProfile {
	return &TierProfile{
		Name:            "Standard",
		Tier:            "standard",
		Currency:        "XAF",
		LateFeeMinor:    1000,
		CautionMultiple: 2,
		Parallelism:     1,
	}
}

// LoadTierProfile loads profile_<tier>.yaml from the profiles directory.
func LoadTierProfile(profilesDir, tier string) (*TierProfile, error) {
	tier = strings.ToLower(tier)
	path := filepath.Join(profilesDir, fmt.Sprintf("profile_%s.yaml", tier))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", tier, err)
	}

	var profile TierProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", tier, err)
	}

	if profile.Tier == "" {
		profile.Tier = tier
	}
	if profile.Parallelism < 1 {
		profile.Parallelism = 1
	}

	return &profile, nil
}

// LoadAllTierProfiles loads every profile_*.yaml in the directory.
func LoadAllTierProfiles(profilesDir string) (map[string]*TierProfile, error) {
	matches, err := filepath.Glob(filepath.Join(profilesDir, "profile_*.yaml"))
	if err != nil {
		return nil, err
	}

	profiles := make(map[string]*TierProfile, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		var profile TierProfile
		if err := yaml.Unmarshal(data, &profile); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}

		if profile.Tier == "" {
			base := filepath.Base(path)
			profile.Tier = strings.TrimSuffix(strings.TrimPrefix(base, "profile_"), ".yaml")
		}

		profiles[profile.Tier] = &profile
	}

	return profiles, nil
}

// CautionMinorFor derives the deposit a member must post for a fund
// with the given per-cycle contribution.
func (p *TierProfile) CautionMinorFor(contributionMinor int64) int64 {
	if p.CautionMultiple <= 0 {
		return 0
	}
	return contributionMinor * int64(p.CautionMultiple)
}
