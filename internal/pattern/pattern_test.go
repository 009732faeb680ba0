package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pattern Pattern
		want    string
	}{
		{FirstDotLast, "jeanpierre.dupont@acme.fr"},
		{FirstLast, "jeanpierredupont@acme.fr"},
		{FLast, "jdupont@acme.fr"},
		{FDotLast, "j.dupont@acme.fr"},
		{First, "jeanpierre@acme.fr"},
		{LastDotFirst, "dupont.jeanpierre@acme.fr"},
		{Last, "dupont@acme.fr"},
		{LastF, "dupontj@acme.fr"},
		{FirstUnderLast, "jeanpierre_dupont@acme.fr"},
	}
	for _, tt := range tests {
		t.Run(string(tt.pattern), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.pattern.Address("Jean-Pierre", "Dupont", "acme.fr"))
		})
	}
}

func TestAddressStripsAccents(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "francois.legare@acme.fr", FirstDotLast.Address("François", "Légaré", "acme.fr"))
}

func TestFromHunter(t *testing.T) {
	t.Parallel()

	p, ok := FromHunter("{first}.{last}")
	require.True(t, ok)
	assert.Equal(t, FirstDotLast, p)

	p, ok = FromHunter("{f}{last}")
	require.True(t, ok)
	assert.Equal(t, FLast, p)

	_, ok = FromHunter("{first}.{last}@{domain}")
	assert.False(t, ok)
}

func TestClassifyWithRoster(t *testing.T) {
	t.Parallel()

	roster := []Person{{Firstname: "Jean", Lastname: "Dupont"}}

	p, ok := Classify("jean.dupont", roster)
	require.True(t, ok)
	assert.Equal(t, FirstDotLast, p)

	p, ok = Classify("jdupont", roster)
	require.True(t, ok)
	assert.Equal(t, FLast, p)

	p, ok = Classify("dupontj", roster)
	require.True(t, ok)
	assert.Equal(t, LastF, p)
}

func TestClassifyByShape(t *testing.T) {
	t.Parallel()

	p, ok := Classify("marie.curie", nil)
	require.True(t, ok)
	assert.Equal(t, FirstDotLast, p)

	p, ok = Classify("m.curie", nil)
	require.True(t, ok)
	assert.Equal(t, FDotLast, p)

	p, ok = Classify("marie_curie", nil)
	require.True(t, ok)
	assert.Equal(t, FirstUnderLast, p)

	_, ok = Classify("mcurie", nil)
	assert.False(t, ok, "bare tokens are ambiguous without a roster")

	_, ok = Classify("contact", nil)
	assert.False(t, ok, "role accounts carry no signal")

	_, ok = Classify("sales2024", nil)
	assert.False(t, ok)
}

func TestInfer_ConsistentEvidence(t *testing.T) {
	t.Parallel()

	inf := Infer(Evidence{
		Emails: []string{
			"jean.dupont@acme.fr",
			"marie.curie@acme.fr",
			"paul.martin@acme.fr",
		},
	})

	assert.Equal(t, FirstDotLast, inf.Pattern)
	assert.Equal(t, 3, inf.Matched)
	assert.Equal(t, 3, inf.Total)
	assert.GreaterOrEqual(t, inf.Confidence, 0.8)
	assert.False(t, inf.EvidenceAbsent)
}

func TestInfer_MixedEvidence(t *testing.T) {
	t.Parallel()

	inf := Infer(Evidence{
		Emails: []string{
			"jean.dupont@acme.fr",
			"marie.curie@acme.fr",
			"paul_martin@acme.fr",
		},
	})

	assert.Equal(t, FirstDotLast, inf.Pattern)
	assert.Equal(t, 2, inf.Matched)
	assert.Equal(t, 3, inf.Total)
	assert.Less(t, inf.Confidence, 0.8)
}

func TestInfer_IgnoresRoleAccountsAndDuplicates(t *testing.T) {
	t.Parallel()

	inf := Infer(Evidence{
		Emails: []string{
			"jean.dupont@acme.fr",
			"Jean.Dupont@acme.fr",
			"contact@acme.fr",
			"info@acme.fr",
		},
	})

	assert.Equal(t, FirstDotLast, inf.Pattern)
	assert.Equal(t, 1, inf.Matched)
	assert.Equal(t, 1, inf.Total)
}

func TestInfer_FallbackWithoutEvidence(t *testing.T) {
	t.Parallel()

	inf := Infer(Evidence{})

	assert.Equal(t, FirstDotLast, inf.Pattern)
	assert.InDelta(t, FallbackConfidence, inf.Confidence, 1e-9)
	assert.True(t, inf.EvidenceAbsent)
	assert.NotEmpty(t, inf.Notes)
}

func TestInfer_HintBeatsFallback(t *testing.T) {
	t.Parallel()

	inf := Infer(Evidence{
		Emails: []string{"contact@acme.fr"},
		Hint:   FLast,
	})

	assert.Equal(t, FLast, inf.Pattern)
	assert.True(t, inf.EvidenceAbsent)
	assert.Greater(t, inf.Confidence, FallbackConfidence)
}

func TestInfer_EvidenceBeatsHint(t *testing.T) {
	t.Parallel()

	inf := Infer(Evidence{
		Emails: []string{"jean.dupont@acme.fr", "marie.curie@acme.fr"},
		Hint:   FLast,
	})

	assert.Equal(t, FirstDotLast, inf.Pattern)
	assert.False(t, inf.EvidenceAbsent)
}
