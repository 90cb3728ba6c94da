package namecanon

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVariants_CanonicalFirst(t *testing.T) {
	got := Variants("Spider-Man")
	assert.Equal(t, []string{"Spider-Man"}, got)
}

func TestVariants_StripsParenthetical(t *testing.T) {
	got := Variants("Spider-Man (Miles Morales)")
	assert.Equal(t, []string{"Spider-Man (Miles Morales)", "Spider-Man"}, got)
}

func TestVariants_FoldsDiacritics(t *testing.T) {
	got := Variants("Génis-Vell")
	assert.Equal(t, []string{"Génis-Vell", "Genis-Vell"}, got)
}

func TestVariants_ThePrefix(t *testing.T) {
	got := Variants("The Thing")
	assert.Equal(t, []string{"The Thing", "Thing"}, got)
}

func TestVariants_Combined(t *testing.T) {
	got := Variants("The Léader (Earth-616)")
	assert.Contains(t, got, "The Léader (Earth-616)")
	assert.Contains(t, got, "The Léader")
	assert.Contains(t, got, "The Leader")
	assert.Contains(t, got, "Leader")
	// Canonical name stays first.
	assert.Equal(t, "The Léader (Earth-616)", got[0])
}

func TestVariants_DedupCaseInsensitive(t *testing.T) {
	got := Variants("Thing (The)")
	for i, a := range got {
		for j, b := range got {
			if i != j {
				assert.NotEqual(t, a, b)
			}
		}
	}
}

func TestVariants_Empty(t *testing.T) {
	assert.Nil(t, Variants("   "))
}
