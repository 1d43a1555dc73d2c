package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/eliteGoblin/focusd/bgmute/internal/domain"
)

func TestDesiredMute_Table(t *testing.T) {
	spotify := domain.ProcessIdentity{PID: 10, ExeName: "Spotify.exe"}
	notepad := domain.ProcessIdentity{PID: 20, ExeName: "notepad.exe"}
	excl := NewExclusionSet("spotify.exe")

	tests := []struct {
		name     string
		identity domain.ProcessIdentity
		focused  bool
		enabled  bool
		want     bool
	}{
		{"disabled beats everything", notepad, false, false, false},
		{"disabled excluded", spotify, false, false, false},
		{"excluded unfocused stays unmuted", spotify, false, true, false},
		{"excluded focused", spotify, true, true, false},
		{"focused unmuted", notepad, true, true, false},
		{"background muted", notepad, false, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DesiredMute(tt.identity, tt.focused, tt.enabled, excl))
		})
	}
}

func TestDesiredMute_EmptyExclusionSet(t *testing.T) {
	id := domain.ProcessIdentity{PID: 1, ExeName: "app_b.exe"}
	assert.True(t, DesiredMute(id, false, true, ExclusionSet{}))
}

func TestIsFocused(t *testing.T) {
	a := domain.ProcessIdentity{PID: 100, ExeName: "app_a.exe"}

	assert.False(t, IsFocused(a, nil), "nil focus means nothing is foreground")
	assert.True(t, IsFocused(a, &domain.ProcessIdentity{PID: 100, ExeName: "APP_A.EXE"}))
	assert.False(t, IsFocused(a, &domain.ProcessIdentity{PID: 101, ExeName: "app_a.exe"}),
		"another instance of the same exe is not focused")
	assert.False(t, IsFocused(a, &domain.ProcessIdentity{PID: 100, ExeName: "other.exe"}),
		"reused pid with a different exe is not focused")
}

func TestExclusionSet_CaseInsensitive(t *testing.T) {
	s := NewExclusionSet("Spotify.EXE", "  discord.exe  ", "")

	assert.True(t, s.Contains("spotify.exe"))
	assert.True(t, s.Contains("SPOTIFY.exe"))
	assert.True(t, s.Contains("Discord.exe"))
	assert.False(t, s.Contains("chrome.exe"))
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []string{"discord.exe", "spotify.exe"}, s.List())
}

func TestExclusionSet_ZeroValue(t *testing.T) {
	var s ExclusionSet
	assert.False(t, s.Contains("anything.exe"))
	assert.Empty(t, s.List())
}

func TestNormalizeExeName(t *testing.T) {
	assert.Equal(t, "spotify.exe", NormalizeExeName(`C:\Program Files\Spotify\Spotify.exe`))
	assert.Equal(t, "vlc.exe", NormalizeExeName("/opt/vlc/VLC.exe"))
	assert.Equal(t, "", NormalizeExeName("   "))
}
