package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(ss []Session) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = s.Name
	}
	return out
}

func TestSortPinsMaster(t *testing.T) {
	ss := []Session{{Name: "zeta"}, {Name: "Master"}, {Name: "alpha"}}
	Sort(ss)
	assert.Equal(t, []string{"Master", "alpha", "zeta"}, names(ss))
}

func TestSortCaseInsensitive(t *testing.T) {
	ss := []Session{{Name: "discord"}, {Name: "Chrome"}, {Name: "brave"}, {Name: "MASTER"}, {Name: "Apple Music"}}
	Sort(ss)
	assert.Equal(t, []string{"MASTER", "Apple Music", "brave", "Chrome", "discord"}, names(ss))
}

func TestLess(t *testing.T) {
	assert.True(t, Less("master", "aaa"))
	assert.False(t, Less("aaa", "MASTER"))
	assert.True(t, Less("Alpha", "beta"))
	assert.False(t, Less("beta", "Alpha"))
}

func TestNewCollectionRejectsDuplicates(t *testing.T) {
	_, err := NewCollection([]Session{{Name: "Chrome"}, {Name: "chrome"}})
	assert.ErrorIs(t, err, ErrDuplicateSession)

	_, err = NewCollection([]Session{{Name: "  "}})
	assert.ErrorIs(t, err, ErrEmptyName)
}

func TestCollectionReplaceKeepsPriorOnError(t *testing.T) {
	c, err := NewCollection([]Session{{Name: "chrome", Volume: 20}})
	require.NoError(t, err)

	err = c.Replace([]Session{{Name: "a"}, {Name: "A"}})
	require.Error(t, err)
	assert.Equal(t, []string{"chrome"}, c.Names())
}

func TestCollectionReplaceIsFull(t *testing.T) {
	c, err := NewCollection([]Session{{Name: "chrome"}, {Name: "discord"}})
	require.NoError(t, err)

	require.NoError(t, c.Replace([]Session{{Name: "spotify", Volume: -40}, {Name: "master"}}))
	assert.Equal(t, []string{"master", "spotify"}, c.Names())
	s, ok := c.Get("SPOTIFY")
	require.True(t, ok)
	assert.Equal(t, 40, s.Volume)
	assert.False(t, c.Has("chrome"))
}

func TestCollectionApply(t *testing.T) {
	c, err := NewCollection([]Session{{Name: "Chrome", Volume: 20}})
	require.NoError(t, err)

	s, ok := c.Apply(Fragment{Name: "chrome", Volume: 45, Muted: true, Fields: FieldVolume | FieldMute})
	require.True(t, ok)
	assert.Equal(t, Session{Name: "Chrome", Volume: 45, Muted: true}, s)

	_, ok = c.Apply(Fragment{Name: "firefox", Volume: 1, Fields: FieldVolume})
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())
}

func TestCollectionApplyClampsVolume(t *testing.T) {
	c, err := NewCollection([]Session{{Name: "chrome", Volume: 20}})
	require.NoError(t, err)

	s, ok := c.Apply(Fragment{Name: "chrome", Volume: -30, Fields: FieldVolume})
	require.True(t, ok)
	assert.Equal(t, 30, s.Volume)

	s, _ = c.Apply(Fragment{Name: "chrome", Volume: 250, Fields: FieldVolume})
	assert.Equal(t, MaxVolume, s.Volume)
	got, _ := c.Get("chrome")
	assert.Equal(t, MaxVolume, got.Volume)
}

func TestCollectionSet(t *testing.T) {
	c := &Collection{}
	c.Set(Session{Name: "zeta", Volume: 5})
	c.Set(Session{Name: "master", Volume: 150})
	c.Set(Session{Name: "ZETA", Volume: 6})

	assert.Equal(t, []string{"master", "zeta"}, c.Names())
	m, _ := c.Get("master")
	assert.Equal(t, 100, m.Volume)
	z, _ := c.Get("zeta")
	assert.Equal(t, "ZETA", z.Name)
	assert.Equal(t, 6, z.Volume)
}

func TestSnapshotIsCopy(t *testing.T) {
	c, err := NewCollection([]Session{{Name: "a", Volume: 1}})
	require.NoError(t, err)
	snap := c.Snapshot()
	snap[0].Volume = 99
	s, _ := c.Get("a")
	assert.Equal(t, 1, s.Volume)
}
