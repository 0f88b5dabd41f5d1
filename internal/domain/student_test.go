package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStudentStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to StudentStatus
		ok       bool
	}{
		{StudentWaited, StudentApproved, true},
		{StudentWaited, StudentRejected, true},
		{StudentWaited, StudentWaited, false},
		{StudentApproved, StudentRejected, false},
		{StudentApproved, StudentWaited, false},
		{StudentRejected, StudentApproved, false},
		{StudentRejected, StudentWaited, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.ok, c.from.CanTransitionTo(c.to), "%s -> %s", c.from, c.to)
	}
}

func TestStudentStatusValid(t *testing.T) {
	assert.True(t, StudentWaited.Valid())
	assert.True(t, StudentApproved.Valid())
	assert.True(t, StudentRejected.Valid())
	assert.False(t, StudentStatus("pending").Valid())
	assert.False(t, StudentStatus("").Valid())
}

func TestCreateStudentRequestValidate(t *testing.T) {
	valid := CreateStudentRequest{
		FullName:      "Ada Lovelace",
		FacultyID:     uuid.New(),
		DegreeLevelID: uuid.New(),
		YearLevelID:   uuid.New(),
	}
	assert.NoError(t, valid.Validate())

	var fe FieldErrors
	err := CreateStudentRequest{}.Validate()
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, fe, "full_name")
	assert.Contains(t, fe, "faculty_id")
	assert.Contains(t, fe, "degree_level_id")
	assert.Contains(t, fe, "year_level_id")
}
