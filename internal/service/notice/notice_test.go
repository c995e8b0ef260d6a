package notice

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoard_PostAndActive(t *testing.T) {
	b := NewBoard(time.Minute)

	first := b.Post(LevelInfo, "Bienvenidos")
	second := b.Post(LevelWarning, "Sin conexión")

	active := b.Active()
	require.Len(t, active, 2)
	assert.Equal(t, first.ID, active[0].ID, "掲示順に並ぶ")
	assert.Equal(t, second.ID, active[1].ID)
	assert.Equal(t, LevelWarning, active[1].Level)
	assert.Equal(t, time.Minute, first.ExpiresAt.Sub(first.CreatedAt))
}

func TestBoard_Expiry(t *testing.T) {
	b := NewBoard(20 * time.Millisecond)
	b.Post(LevelInfo, "Recoger pérgolas")

	require.Len(t, b.Active(), 1)
	assert.Eventually(t, func() bool {
		return len(b.Active()) == 0
	}, time.Second, 10*time.Millisecond, "表示時間を過ぎると消える")
}

func TestBoard_Dismiss(t *testing.T) {
	b := NewBoard(0)
	n := b.Post(LevelSuccess, "Guardado")
	b.Dismiss(n.ID)
	assert.Empty(t, b.Active())
}
