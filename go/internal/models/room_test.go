package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlotQuotaClamp(t *testing.T) {
	settings := RoomSettings{SlotQuotaMin: 2, SlotQuotaMax: 6, SlotQuotaDivisor: 2}

	tests := []struct {
		players int
		want    int
	}{
		{players: 1, want: 2},  // ceil(1/2)=1, clamped up
		{players: 2, want: 2},  // ceil(2/2)=1, clamped up
		{players: 4, want: 2},
		{players: 5, want: 3},
		{players: 8, want: 4},
		{players: 11, want: 6},
		{players: 20, want: 6}, // ceil(20/2)=10, clamped down
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, settings.SlotQuota(tt.players), "players=%d", tt.players)
	}
}

func TestSlotQuotaDefaultsDivisor(t *testing.T) {
	settings := RoomSettings{SlotQuotaMin: 1, SlotQuotaMax: 10}
	assert.Equal(t, 3, settings.SlotQuota(6))
}

func TestCellGeometry(t *testing.T) {
	assert.True(t, Cell(0).Valid())
	assert.True(t, Cell(24).Valid())
	assert.False(t, Cell(25).Valid())
	assert.False(t, Cell(-1).Valid())

	assert.Equal(t, 2, CenterCell.Row())
	assert.Equal(t, 2, CenterCell.Col())
	assert.Equal(t, 3, Cell(18).Row())
	assert.Equal(t, 3, Cell(18).Col())
}
