package approval

import (
	"errors"
	"time"
)

var (
	ErrNotFound       = errors.New("approval not found")
	ErrAlreadyDecided = errors.New("loan already has a cooperative decision")
)

type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// Approval records the cooperative's decision on a pending loan request.
// At most one per loan.
type Approval struct {
	ID            uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	ApprovalID    string    `gorm:"column:approval_id;type:char(32);not null;uniqueIndex:ux_approvals_approval_id"`
	LoanID        uint64    `gorm:"column:loan_id;not null;uniqueIndex:ux_approvals_loan"`
	CooperativeID string    `gorm:"column:cooperative_id;size:64;not null"`
	Decision      Decision  `gorm:"column:decision;type:varchar(16);not null"`
	LenderID      *string   `gorm:"column:lender_id;size:64"`
	Reason        string    `gorm:"column:reason;type:text"`
	DecidedAt     time.Time `gorm:"column:decided_at;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Approval) TableName() string { return "approvals" }
