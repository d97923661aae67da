package filter

import (
	"testing"

	"warden/internal/storage"

	"github.com/stretchr/testify/assert"
)

func withWords(words ...string) storage.GuildSettings {
	return storage.GuildSettings{BannedWords: words, MatchMode: "word"}
}

func TestScanIsCaseInsensitive(t *testing.T) {
	word, ok := Scan("This is BAD", withWords("bad"))
	assert.True(t, ok)
	assert.Equal(t, "bad", word)

	_, ok = Scan("nothing here", withWords("bad"))
	assert.False(t, ok)
}

func TestScanWordBoundaryByDefault(t *testing.T) {
	settings := withWords("ass")
	_, ok := Scan("the assassin left", settings)
	assert.False(t, ok, "word mode must not match inside longer words")

	word, ok := Scan("what an ass!", settings)
	assert.True(t, ok)
	assert.Equal(t, "ass", word)

	_, ok = Scan("ass", settings)
	assert.True(t, ok)
}

func TestScanSubstringOptIn(t *testing.T) {
	settings := withWords("ass")
	settings.MatchMode = "substring"
	_, ok := Scan("the assassin left", settings)
	assert.True(t, ok)
}

func TestScanSkipsEmbeddedOccurrenceThenMatchesLater(t *testing.T) {
	_, ok := Scan("classic bass and then ass", withWords("ass"))
	assert.True(t, ok)
}

func TestScanFoldsDiacritics(t *testing.T) {
	word, ok := Scan("quel CAFÉ horrible", withWords("cafe"))
	assert.True(t, ok)
	assert.Equal(t, "cafe", word)

	_, ok = Scan("quel cafe", withWords("Café"))
	assert.True(t, ok)
}

func TestScanOrderCustomBeforeBuiltin(t *testing.T) {
	settings := withWords("zebra", "damn")
	settings.BanDefaultOffensive = true

	word, ok := Scan("damn zebra", settings)
	assert.True(t, ok)
	assert.Equal(t, "zebra", word, "first candidate in list order wins")

	word, ok = Scan("oh shit", settings)
	assert.True(t, ok)
	assert.Equal(t, "shit", word)
}

func TestScanBuiltinOnlyWhenEnabled(t *testing.T) {
	settings := withWords()
	_, ok := Scan("oh shit", settings)
	assert.False(t, ok)

	settings.BanDefaultOffensive = true
	word, ok := Scan("you are a$$", settings)
	assert.True(t, ok)
	assert.Equal(t, "a$$", word)
}

func TestScanEmptyInput(t *testing.T) {
	settings := withWords("bad")
	settings.BanDefaultOffensive = true
	_, ok := Scan("   ", settings)
	assert.False(t, ok)
}

func TestOffensiveWordsIsCopy(t *testing.T) {
	words := OffensiveWords()
	words[0] = "changed"
	assert.NotEqual(t, "changed", OffensiveWords()[0])
}
