package profile

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("profile not found")

type Role string

const (
	RoleFarmer      Role = "farmer"
	RoleCooperative Role = "cooperative"
	RoleLender      Role = "lender"
)

// Profile is owned by the auth/onboarding side; this service only reads it.
type Profile struct {
	UserID        string    `gorm:"primaryKey;size:64;column:user_id" json:"user_id"`
	Role          Role      `gorm:"type:varchar(16)" json:"role"`
	WalletAddress string    `gorm:"size:64" json:"wallet_address"`
	CooperativeID *string   `gorm:"size:64" json:"cooperative_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func (Profile) TableName() string { return "profiles" }

func (p *Profile) Cooperative() string {
	if p.CooperativeID == nil {
		return ""
	}
	return *p.CooperativeID
}

type Repository interface {
	GetByUserID(ctx context.Context, userID string) (*Profile, error)
}
