package labelkb

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "certregistry/pkg/domain-errors"
)

func kruger() Entry {
	return Entry{
		Key:      "1892 1 Pond - Kruger",
		Country:  "ZAR",
		Year:     "1892",
		CoinName: "1 Pond",
		Addl1:    "Double Shaft",
		Aliases:  []string{"Kruger Pond", "  kruger   PONDE "},
	}
}

func silverRand() Entry {
	return Entry{
		Key:      "1965 R1 Silver - English",
		Country:  "South Africa",
		Year:     "1965",
		CoinName: "R1-S",
		Aliases:  []string{"1965 silver rand"},
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "1965 r1 silver - english", Normalize("  1965   R1 Silver\t- English"))
}

func TestNewIndex_Resolution(t *testing.T) {
	idx, err := NewIndex([]Entry{kruger(), silverRand()})
	require.NoError(t, err)
	assert.Equal(t, 2, idx.Len())

	t.Run("exact key after normalization", func(t *testing.T) {
		e, ok := idx.ResolveAlias("1892 1 POND - kruger")
		require.True(t, ok)
		assert.Equal(t, "ZAR", e.Country)
	})

	t.Run("alias", func(t *testing.T) {
		e, ok := idx.ResolveAlias("Kruger Ponde")
		require.True(t, ok)
		assert.Equal(t, "1892 1 Pond - Kruger", e.Key)
	})

	t.Run("lookup by key", func(t *testing.T) {
		e, ok := idx.Lookup("1965 r1 silver - english")
		require.True(t, ok)
		assert.Equal(t, "R1-S", e.CoinName)
	})

	t.Run("no fuzzy matching", func(t *testing.T) {
		_, ok := idx.ResolveAlias("Kruger")
		assert.False(t, ok)
		_, ok = idx.ResolveAlias("")
		assert.False(t, ok)
	})
}

func TestNewIndex_Collisions(t *testing.T) {
	t.Run("alias claimed by two entries", func(t *testing.T) {
		other := silverRand()
		other.Aliases = append(other.Aliases, "KRUGER pond")

		_, err := NewIndex([]Entry{kruger(), other})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))

		var conflict *ConflictError
		require.True(t, errors.As(err, &conflict))
		require.Len(t, conflict.Collisions, 1)
		assert.Equal(t, "kruger pond", conflict.Collisions[0].Term)
		assert.Equal(t, []string{"1892 1 Pond - Kruger", "1965 R1 Silver - English"}, conflict.Collisions[0].Keys)
		assert.Contains(t, err.Error(), "kruger pond")
	})

	t.Run("alias equal to another key", func(t *testing.T) {
		other := silverRand()
		other.Aliases = []string{"1892 1 pond - kruger"}
		_, err := NewIndex([]Entry{kruger(), other})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	t.Run("duplicate key", func(t *testing.T) {
		_, err := NewIndex([]Entry{kruger(), kruger()})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	t.Run("alias repeating own key is fine", func(t *testing.T) {
		e := kruger()
		e.Aliases = append(e.Aliases, e.Key)
		_, err := NewIndex([]Entry{e})
		require.NoError(t, err)
	})

	t.Run("empty key", func(t *testing.T) {
		_, err := NewIndex([]Entry{{Key: "  "}})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestNewIndex_SerialFormat(t *testing.T) {
	e := silverRand()
	e.SerialFormat = "R{consignment}-{seq}"
	idx, err := NewIndex([]Entry{e})
	require.NoError(t, err)
	got, ok := idx.Lookup(e.Key)
	require.True(t, ok)
	assert.Equal(t, "R{consignment}-{seq}", got.SerialFormat)

	e.SerialFormat = "{seq}/{consignment}"
	_, err = NewIndex([]Entry{kruger(), e})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	assert.Contains(t, err.Error(), "1965 R1 Silver - English")
}

func TestEntryApply(t *testing.T) {
	got := kruger().Apply(Descriptors{Country: "South Africa", Addl2: "Gold"})
	assert.Equal(t, Descriptors{
		Country:  "South Africa",
		Year:     "1892",
		CoinName: "1 Pond",
		Addl1:    "Double Shaft",
		Addl2:    "Gold",
	}, got)
}

func TestRegistry_Replace(t *testing.T) {
	reg := NewRegistry(nil)
	_, ok := reg.ResolveAlias("kruger pond")
	assert.False(t, ok)

	_, err := reg.Replace([]Entry{kruger()})
	require.NoError(t, err)
	_, ok = reg.ResolveAlias("kruger pond")
	assert.True(t, ok)

	t.Run("failed replace keeps the previous index", func(t *testing.T) {
		_, err := reg.Replace([]Entry{kruger(), kruger()})
		require.Error(t, err)
		_, ok := reg.Lookup("1892 1 Pond - Kruger")
		assert.True(t, ok)
	})

	t.Run("readers never see a torn index", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				for j := 0; j < 200; j++ {
					if i%2 == 0 {
						_, _ = reg.Replace([]Entry{kruger(), silverRand()})
						continue
					}
					_, ok := reg.ResolveAlias("kruger pond")
					assert.True(t, ok)
				}
			}(i)
		}
		wg.Wait()
	})
}

func TestParseYAML(t *testing.T) {
	doc := `
labels:
  - key: 1892 1 Pond - Kruger
    country: ZAR
    year: "1892"
    coin_name: 1 Pond
    addl1: Double Shaft
    aliases: [Kruger Pond]
  - key: 1965 R1 Silver - English
    country: South Africa
    year: "1965"
    coin_name: R1-S
`
	entries, err := ParseYAML(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, []string{"Kruger Pond"}, entries[0].Aliases)
	assert.Equal(t, "R1-S", entries[1].CoinName)

	t.Run("unknown fields are rejected", func(t *testing.T) {
		_, err := ParseYAML(strings.NewReader("labels:\n  - key: x\n    colour: red\n"))
		require.Error(t, err)
	})

	t.Run("empty document", func(t *testing.T) {
		entries, err := ParseYAML(strings.NewReader(""))
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}
