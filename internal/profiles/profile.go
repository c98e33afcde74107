package profiles

import (
	"time"

	"github.com/untreu2/divine-state/internal/nostr"
)

// Profile is the display metadata for one author pubkey.
type Profile struct {
	Pubkey      nostr.Pubkey
	Name        string
	DisplayName string
	Picture     string
	About       string
	UpdatedAt   time.Time
}

// Record is the persisted form of a cached profile.
type Record struct {
	Pubkey           string `gorm:"column:pubkey;primaryKey;size:64;not null"`
	Name             string `gorm:"column:name;size:190;not null;default:''"`
	DisplayName      string `gorm:"column:display_name;size:190;not null;default:''"`
	Picture          string `gorm:"column:picture;type:text;not null;default:''"`
	About            string `gorm:"column:about;type:text;not null;default:''"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Record) TableName() string {
	return "profile_cache"
}

func recordFromProfile(profile Profile) Record {
	return Record{
		Pubkey:           profile.Pubkey.String(),
		Name:             profile.Name,
		DisplayName:      profile.DisplayName,
		Picture:          profile.Picture,
		About:            profile.About,
		UpdatedAtSeconds: profile.UpdatedAt.UTC().Unix(),
	}
}

func (r Record) profile() Profile {
	return Profile{
		Pubkey:      nostr.Pubkey(r.Pubkey),
		Name:        r.Name,
		DisplayName: r.DisplayName,
		Picture:     r.Picture,
		About:       r.About,
		UpdatedAt:   time.Unix(r.UpdatedAtSeconds, 0).UTC(),
	}
}
