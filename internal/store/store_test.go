package store

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suyaash/batchrec/internal/apperr"
	"github.com/suyaash/batchrec/internal/models"
)

func sample() *models.RecordSet {
	return &models.RecordSet{
		Metadata:     models.Section{"product": "Saline", "batch": "B-042"},
		MixingStep:   models.Section{"ingredient": "NaCl", "qty": json.Number("9.0"), "verified": true},
		PHAdjustment: nil,
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	s := New()
	s.now = func() time.Time { return time.Date(2024, 3, 1, 9, 30, 0, 0, time.FixedZone("IST", 19800)) }

	in := sample()
	s.Load(in)
	snap := s.Serialize()

	assert.Equal(t, in.Metadata, snap.Metadata)
	assert.Equal(t, in.MixingStep, snap.MixingStep)
	assert.Nil(t, snap.PHAdjustment)
	assert.Equal(t, "2024-03-01T04:00:00Z", snap.Timestamp)
}

func TestLoadCopies(t *testing.T) {
	in := sample()
	s := New()
	s.Load(in)

	_, err := s.BeginEdit(models.SectionMetadata, "batch")
	require.NoError(t, err)
	require.NoError(t, s.CommitEdit("B-043"))

	assert.Equal(t, "B-042", in.Metadata["batch"], "source must not change")
	assert.Equal(t, "B-043", s.Records().Metadata["batch"])

	s.Load(in)
	assert.Equal(t, "B-042", s.Records().Metadata["batch"], "reload restores the original")
}

func TestEditLifecycle(t *testing.T) {
	tests := []struct {
		name   string
		do     func(t *testing.T, s *DataStore)
		want   any
		inEdit bool
	}{
		{
			name: "commit stores a string",
			do: func(t *testing.T, s *DataStore) {
				cur, err := s.BeginEdit(models.SectionMixingStep, "qty")
				require.NoError(t, err)
				assert.Equal(t, "9.0", cur)
				require.NoError(t, s.SetPending("9.5"))
				require.NoError(t, s.CommitEdit("9.5"))
			},
			want: "9.5",
		},
		{
			name: "cancel keeps the value",
			do: func(t *testing.T, s *DataStore) {
				_, err := s.BeginEdit(models.SectionMixingStep, "qty")
				require.NoError(t, err)
				require.NoError(t, s.SetPending("100"))
				s.CancelEdit()
			},
			want: json.Number("9.0"),
		},
		{
			name: "begin on another field replaces the pending edit",
			do: func(t *testing.T, s *DataStore) {
				_, err := s.BeginEdit(models.SectionMixingStep, "qty")
				require.NoError(t, err)
				require.NoError(t, s.SetPending("100"))
				_, err = s.BeginEdit(models.SectionMetadata, "product")
				require.NoError(t, err)
			},
			want:   json.Number("9.0"),
			inEdit: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			s.Load(sample())
			tt.do(t, s)

			assert.Equal(t, tt.want, s.Records().MixingStep["qty"])
			_, editing := s.ActiveEdit()
			assert.Equal(t, tt.inEdit, editing)
		})
	}
}

func TestSingleEditMode(t *testing.T) {
	s := New()
	s.Load(sample())

	_, err := s.BeginEdit(models.SectionMetadata, "batch")
	require.NoError(t, err)
	_, err = s.BeginEdit(models.SectionMixingStep, "ingredient")
	require.NoError(t, err)

	e, ok := s.ActiveEdit()
	require.True(t, ok)
	assert.Equal(t, Edit{Section: models.SectionMixingStep, Key: "ingredient", Pending: "NaCl"}, e)
}

func TestEditErrors(t *testing.T) {
	s := New()
	s.Load(sample())

	_, err := s.BeginEdit(models.SectionPHAdjustment, "ph")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = s.BeginEdit(models.SectionMetadata, "missing")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.ErrorIs(t, s.CommitEdit("x"), apperr.ErrValidation)
	assert.ErrorIs(t, s.SetPending("x"), apperr.ErrValidation)

	empty := New()
	_, err = empty.BeginEdit(models.SectionMetadata, "batch")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestLoadLeavesEditMode(t *testing.T) {
	s := New()
	s.Load(sample())
	_, err := s.BeginEdit(models.SectionMetadata, "batch")
	require.NoError(t, err)

	s.Load(sample())
	_, editing := s.ActiveEdit()
	assert.False(t, editing)
}
