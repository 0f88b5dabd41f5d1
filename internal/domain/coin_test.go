package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activeRule(amount int64, positions ...uuid.UUID) *CoinRule {
	return &CoinRule{
		ID:                 uuid.New(),
		Name:               "Attendance",
		CoinAmount:         amount,
		Status:             RuleActive,
		AllowedPositionIDs: positions,
	}
}

func TestCoinRuleArchiveActivate(t *testing.T) {
	r := activeRule(10)

	require.NoError(t, r.Archive())
	assert.Equal(t, RuleArchived, r.Status)
	assert.ErrorIs(t, r.Archive(), ErrStateConflict)

	require.NoError(t, r.Activate())
	assert.Equal(t, RuleActive, r.Status)
	assert.ErrorIs(t, r.Activate(), ErrStateConflict)
}

func TestCoinRuleAmountFreeze(t *testing.T) {
	pos := uuid.New()
	r := activeRule(10, pos)

	// Unused rule: amount can still change.
	req := CoinRuleRequest{Name: "Attendance", CoinAmount: 25, AllowedPositionIDs: []uuid.UUID{pos}}
	require.NoError(t, r.ApplyUpdate(req))
	assert.Equal(t, int64(25), r.CoinAmount)

	r.UsageCount = 1
	req.CoinAmount = 30
	err := r.ApplyUpdate(req)
	require.Error(t, err)
	assert.Contains(t, err.(FieldErrors), "coin_amount")
	assert.Equal(t, int64(25), r.CoinAmount)

	// Name and positions stay editable after first use.
	other := uuid.New()
	req = CoinRuleRequest{Name: "Attendance (weekly)", CoinAmount: 25, AllowedPositionIDs: []uuid.UUID{other}}
	require.NoError(t, r.ApplyUpdate(req))
	assert.Equal(t, "Attendance (weekly)", r.Name)
	assert.True(t, r.AllowsPosition(other))
	assert.False(t, r.AllowsPosition(pos))
}

func TestCoinRuleAllowsPosition(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	r := activeRule(5, a)
	assert.True(t, r.AllowsPosition(a))
	assert.False(t, r.AllowsPosition(b))
}

func TestTransactionDeletable(t *testing.T) {
	tx := &Transaction{Type: TransactionIssuance}
	assert.NoError(t, tx.Deletable())

	tx.IsDeleted = true
	assert.ErrorIs(t, tx.Deletable(), ErrStateConflict)

	deduction := &Transaction{Type: TransactionDeduction}
	assert.ErrorIs(t, deduction.Deletable(), ErrStateConflict)

	transfer := &Transaction{Type: TransactionTransfer}
	assert.ErrorIs(t, transfer.Deletable(), ErrStateConflict)
}

func TestCoinRuleRequestValidate(t *testing.T) {
	err := CoinRuleRequest{}.Validate()
	require.Error(t, err)
	fe := err.(FieldErrors)
	assert.Contains(t, fe, "name")
	assert.Contains(t, fe, "coin_amount")
	assert.Contains(t, fe, "allowed_job_position_ids")
}

func TestFieldErrorsMessage(t *testing.T) {
	fe := FieldErrors{}
	assert.NoError(t, fe.Err())

	fe.Add("name", "This field is required.")
	fe.Add("coin_amount", "Amount must be a positive integer.")
	require.Error(t, fe.Err())
	assert.Equal(t, "coin_amount: Amount must be a positive integer.; name: This field is required.", fe.Error())
}
