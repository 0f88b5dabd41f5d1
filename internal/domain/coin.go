package domain

import (
	"time"

	"github.com/google/uuid"
)

// RuleStatus is the lifecycle state of a coin rule. Rules are never deleted,
// only archived and reactivated.
type RuleStatus string

const (
	RuleActive   RuleStatus = "ACTIVE"
	RuleArchived RuleStatus = "ARCHIVED"
)

// CoinRule is a named issuance policy: a fixed coin amount that a restricted
// set of job positions may award.
type CoinRule struct {
	ID                 uuid.UUID   `json:"id"`
	Name               string      `json:"name"`
	Description        string      `json:"description"`
	CoinAmount         int64       `json:"coin_amount"`
	Status             RuleStatus  `json:"status"`
	AllowedPositionIDs []uuid.UUID `json:"allowed_job_positions"`
	UsageCount         int64       `json:"usage_count"`
	FirstUsedAt        *time.Time  `json:"first_used_at"`
	CreatedAt          time.Time   `json:"created_at"`
}

// AmountLocked reports whether coin_amount is frozen. The amount becomes
// immutable the instant the rule is first used.
func (r *CoinRule) AmountLocked() bool {
	return r.UsageCount > 0
}

// AllowsPosition reports whether the given job position may issue under r.
func (r *CoinRule) AllowsPosition(positionID uuid.UUID) bool {
	for _, id := range r.AllowedPositionIDs {
		if id == positionID {
			return true
		}
	}
	return false
}

// Archive moves the rule out of service. Archived rules reject issuance.
func (r *CoinRule) Archive() error {
	if r.Status != RuleActive {
		return ErrStateConflict
	}
	r.Status = RuleArchived
	return nil
}

// Activate returns an archived rule to service.
func (r *CoinRule) Activate() error {
	if r.Status != RuleArchived {
		return ErrStateConflict
	}
	r.Status = RuleActive
	return nil
}

// CoinRuleRequest is the payload for creating or updating a rule. On update
// of a used rule, CoinAmount must match the stored value.
type CoinRuleRequest struct {
	Name               string      `json:"name"`
	Description        string      `json:"description"`
	CoinAmount         int64       `json:"coin_amount"`
	AllowedPositionIDs []uuid.UUID `json:"allowed_job_position_ids"`
}

func (r CoinRuleRequest) Validate() error {
	fe := FieldErrors{}
	if r.Name == "" {
		fe.Add("name", "This field is required.")
	}
	if r.CoinAmount <= 0 {
		fe.Add("coin_amount", "Amount must be a positive integer.")
	}
	if len(r.AllowedPositionIDs) == 0 {
		fe.Add("allowed_job_position_ids", "At least one job position is required.")
	}
	return fe.Err()
}

// ApplyUpdate mutates the rule from the request, enforcing the amount
// freeze. Returns a field error on coin_amount when the freeze is violated.
func (r *CoinRule) ApplyUpdate(req CoinRuleRequest) error {
	if r.AmountLocked() && req.CoinAmount != r.CoinAmount {
		fe := FieldErrors{}
		fe.Add("coin_amount", "Amount cannot change after the rule has been used.")
		return fe
	}
	r.Name = req.Name
	r.Description = req.Description
	r.CoinAmount = req.CoinAmount
	r.AllowedPositionIDs = req.AllowedPositionIDs
	return nil
}

// TransactionType is the kind of ledger movement.
type TransactionType string

const (
	TransactionIssuance  TransactionType = "ISSUANCE"
	TransactionDeduction TransactionType = "DEDUCTION"
	// TransactionTransfer exists in stored data but no endpoint creates one;
	// its balance semantics are unspecified upstream.
	TransactionTransfer TransactionType = "TRANSFER"
)

// Transaction is one ledger movement against a student balance. Rows are
// immutable apart from the soft-deletion fields, which only a reversal of an
// ISSUANCE may set.
type Transaction struct {
	ID             uuid.UUID       `json:"id"`
	Type           TransactionType `json:"type"`
	Amount         int64           `json:"amount"`
	StudentID      uuid.UUID       `json:"student_id"`
	StaffID        uuid.UUID       `json:"staff_id"`
	CoinRuleID     *uuid.UUID      `json:"coin_rule_id"`
	Comment        string          `json:"comment,omitempty"`
	IsDeleted      bool            `json:"is_deleted"`
	DeletedAt      *time.Time      `json:"deleted_at"`
	DeletedBy      *uuid.UUID      `json:"deleted_by"`
	DeletionReason string          `json:"deletion_reason,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Deletable reports whether the transaction may be reversed. Only live
// ISSUANCE rows qualify.
func (t *Transaction) Deletable() error {
	if t.Type != TransactionIssuance {
		return ErrStateConflict
	}
	if t.IsDeleted {
		return ErrStateConflict
	}
	return nil
}

// IssueRequest is the payload for issuing coins under a rule.
type IssueRequest struct {
	StudentID  uuid.UUID `json:"student_id"`
	CoinRuleID uuid.UUID `json:"coin_rule_id"`
	Comment    string    `json:"comment,omitempty"`
}

func (r IssueRequest) Validate() error {
	fe := FieldErrors{}
	if r.StudentID == uuid.Nil {
		fe.Add("student_id", "This field is required.")
	}
	if r.CoinRuleID == uuid.Nil {
		fe.Add("coin_rule_id", "This field is required.")
	}
	return fe.Err()
}

// IssueResult is the response to a successful issuance.
type IssueResult struct {
	Transaction Transaction `json:"transaction"`
	NewBalance  int64       `json:"new_balance"`
}

// DeleteResult is the response to a successful issuance reversal.
type DeleteResult struct {
	Transaction Transaction   `json:"transaction"`
	NewBalance  int64         `json:"new_balance"`
	Audit       DeletionAudit `json:"audit"`
}

// DeletionAudit is the immutable record written when an issuance is
// reversed. Exactly one exists per deleted transaction.
type DeletionAudit struct {
	ID                uuid.UUID `json:"id"`
	TransactionID     uuid.UUID `json:"transaction_id"`
	StudentName       string    `json:"student_name"`
	StaffMemberName   string    `json:"staff_member_name"`
	TransactionAmount int64     `json:"transaction_amount"`
	DeletionReason    string    `json:"deletion_reason"`
	DeletedAt         time.Time `json:"deleted_at"`
}

// TransactionFilter narrows transaction listings.
type TransactionFilter struct {
	StudentID      uuid.UUID
	Type           TransactionType
	IncludeDeleted bool
	Page           int
	Size           int
}
