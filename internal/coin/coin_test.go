package coin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "certregistry/pkg/domain-errors"
)

func TestSplitYearAndName(t *testing.T) {
	year, name := SplitYearAndName("1892 1 Pond")
	assert.Equal(t, "1892", year)
	assert.Equal(t, "1 Pond", name)

	year, name = SplitYearAndName("  Crown  Rhodesia ")
	assert.Equal(t, "", year)
	assert.Equal(t, "Crown Rhodesia", name)

	year, name = SplitYearAndName("")
	assert.Empty(t, year)
	assert.Empty(t, name)
}

func TestDenomination(t *testing.T) {
	tests := map[string]string{
		"1892 1 Pond":        "1 Pond",
		"1895 1/2 Pond":      "1/2 Pond",
		"2.5 Shillings":      "2.5 Shillings",
		"1 shilling":         "1 Shilling",
		"1898 1/4 Penny":     "1/4 Penny",
		"1965 6 Pence":       "6 Pence",
		"1965 R1-S":          "R1",
		"R5-N":               "R5",
		"R -S":               "R1",
		"1970 50 Cent":       "50 Cent",
		"1953 Crown":         "Crown",
		"1923 Threepence":    "",
		"":                   "",
		"Pattern Sixpence-G": "",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, Denomination(in))
		})
	}
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "1-2-pond", Slug("1/2 Pond"))
	assert.Equal(t, "2-5-shillings", Slug("2.5 Shillings"))
	assert.Equal(t, "r1", Slug("R1"))
	assert.Equal(t, "half-crown", Slug("½ Crown"))
	assert.Equal(t, "unknown", Slug(""))
}

func TestStrike(t *testing.T) {
	tests := map[string]string{
		"MS64":           StrikeMS,
		"UNC Details":    StrikeMS,
		"AU58":           StrikeMS,
		"VF 30":          StrikeMS,
		"F":              StrikeMS,
		"G 6":            StrikeMS,
		"PF65 Cameo":     StrikePF,
		"PL63":           StrikePL,
		"MS63 Prooflike": StrikePL,
		"pu62":           StrikePU,
		"Genuine":        "",
		"":               "",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, Strike(in))
		})
	}
}

func TestGradeNumber(t *testing.T) {
	assert.Equal(t, 64, GradeNumber("MS64"))
	assert.Equal(t, 1, GradeNumber("PO1"))
	assert.Equal(t, 70, GradeNumber("PF70 UCAM"))
	assert.Equal(t, 0, GradeNumber("MS71"))
	assert.Equal(t, 0, GradeNumber("MS0"))
	assert.Equal(t, 0, GradeNumber("Genuine"))
}

func TestYearAndMetal(t *testing.T) {
	assert.Equal(t, 1965, Year("R1-S", "1965"))
	assert.Equal(t, 1892, Year("1892 1 Pond", ""))
	assert.Equal(t, 0, Year("1 Pond", "unknown"))

	assert.Equal(t, "Silver", Metal("R1-S"))
	assert.Equal(t, "Gold", Metal("R1-g"))
	assert.Equal(t, "Nickel", Metal("5 Cent-N"))
	assert.Equal(t, "", Metal("1 Pond"))
}

func TestNormalizeCountry(t *testing.T) {
	assert.Equal(t, "ZAR", NormalizeCountry("South Africa", 1892))
	assert.Equal(t, "ZAR", NormalizeCountry("", 1902))
	assert.Equal(t, "South Africa", NormalizeCountry("ZAR", 1903))
	assert.Equal(t, "Southern Rhodesia", NormalizeCountry("Southern Rhodesia", 1932))
	assert.Equal(t, "Australia", NormalizeCountry("Australia", 1890))
	assert.Equal(t, "Union", NormalizeCountry("Union", 0))
	assert.Equal(t, "South Africa", NormalizeCountry("", 0))
}

func TestDerive(t *testing.T) {
	t.Run("from year and name", func(t *testing.T) {
		d, err := Derive(Fields{Country: "South Africa", YearAndName: "1892 1 Pond", Grade: "MS64"})
		require.NoError(t, err)
		assert.Equal(t, Detail{
			Denomination:     "1 Pond",
			DenominationSlug: "1-pond",
			Country:          "ZAR",
			Year:             1892,
			Strike:           StrikeMS,
			GradeText:        "MS64",
			GradeNum:         64,
		}, d)
	})

	t.Run("explicit name and year win", func(t *testing.T) {
		d, err := Derive(Fields{CoinName: "R1-S", Year: "1965", YearAndName: "1900 1 Pond", Grade: "PL65"})
		require.NoError(t, err)
		assert.Equal(t, "R1", d.Denomination)
		assert.Equal(t, 1965, d.Year)
		assert.Equal(t, "Silver", d.Metal)
		assert.Equal(t, StrikePL, d.Strike)
		assert.Equal(t, "South Africa", d.Country)
	})

	t.Run("missing fields are a validation error", func(t *testing.T) {
		_, err := Derive(Fields{YearAndName: "Token", Grade: "Genuine"})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		assert.Contains(t, err.Error(), "denomination")
		assert.Contains(t, err.Error(), "year")
		assert.Contains(t, err.Error(), "grade")
	})

	t.Run("out of range grade is not reported as missing", func(t *testing.T) {
		for grade, want := range map[string]string{
			"MS71":   "grade 71 outside 1..70",
			"PF 0":   "grade 0 outside 1..70",
			"AU 099": "grade 99 outside 1..70",
		} {
			_, err := Derive(Fields{YearAndName: "1892 1 Pond", Grade: grade})
			require.Error(t, err, grade)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
			assert.Contains(t, err.Error(), want)
			assert.NotContains(t, err.Error(), "missing")
		}
	})
}
