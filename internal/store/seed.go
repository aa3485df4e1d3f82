package store

import (
	"fmt"
	"os"

	"YONASettlement/internal/models"

	"gopkg.in/yaml.v3"
)

// Seed is the directory content loaded into a Memory store.
type Seed struct {
	Members []struct {
		MemberID     string `yaml:"member_id"`
		MemberName   string `yaml:"member_name"`
		APIEndpoint  string `yaml:"api_endpoint"`
		BusinessType string `yaml:"business_type"`
		BpsPolicy    int    `yaml:"bps_policy"`
		JWKS         string `yaml:"jwks"`
	} `yaml:"members"`
	Users []struct {
		YonaID      string `yaml:"yona_id"`
		Username    string `yaml:"username"`
		MemberID    string `yaml:"member_id"`
		Email       string `yaml:"email"`
		AccountType string `yaml:"account_type"`
	} `yaml:"users"`
	SupportedAssets []struct {
		MemberID  string `yaml:"member_id"`
		Currency  string `yaml:"currency"`
		AssetCode string `yaml:"asset_code"`
		Issuer    string `yaml:"issuer"`
	} `yaml:"supported_assets"`
}

func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse seed %s: %w", path, err)
	}
	return &s, nil
}

// Apply loads the seed into m. Members without a key set are accepted; descriptors from them
// fail verification.
func (s *Seed) Apply(m *Memory) error {
	for _, mem := range s.Members {
		member := models.Member{
			MemberID:     mem.MemberID,
			MemberName:   mem.MemberName,
			APIEndpoint:  mem.APIEndpoint,
			BusinessType: models.BusinessType(mem.BusinessType),
			BpsPolicy:    mem.BpsPolicy,
		}
		if mem.JWKS != "" {
			ks, err := models.ParseKeySet([]byte(mem.JWKS))
			if err != nil {
				return fmt.Errorf("member %s: %w", mem.MemberID, err)
			}
			member.JWKS = ks
		}
		m.AddMember(member)
	}
	for _, u := range s.Users {
		accountType := models.AccountType(u.AccountType)
		if accountType == "" {
			accountType = models.AccountUser
		}
		m.AddUser(models.User{
			ID:          u.YonaID,
			YonaID:      u.YonaID,
			Username:    u.Username,
			MemberID:    u.MemberID,
			Email:       u.Email,
			AccountType: accountType,
		})
	}
	for _, a := range s.SupportedAssets {
		m.AddSupportedAsset(models.SupportedAsset{
			MemberID:  a.MemberID,
			Currency:  a.Currency,
			AssetCode: a.AssetCode,
			Issuer:    a.Issuer,
		})
	}
	return nil
}
