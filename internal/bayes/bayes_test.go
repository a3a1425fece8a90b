package bayes

import (
	"context"
	"strings"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/tabinfer/internal/dataset"
)

const tennis = `Outlook,Temperature,Humidity,Wind,Play
Sunny,Hot,High,Weak,No
Sunny,Hot,High,Strong,No
Overcast,Hot,High,Weak,Yes
Rain,Mild,High,Weak,Yes
Rain,Cool,Normal,Weak,Yes
Rain,Cool,Normal,Strong,No
Overcast,Cool,Normal,Strong,Yes
Sunny,Mild,High,Weak,No
Sunny,Cool,Normal,Weak,Yes
Rain,Mild,Normal,Weak,Yes
Sunny,Mild,Normal,Strong,Yes
Overcast,Mild,High,Strong,Yes
Overcast,Hot,Normal,Weak,Yes
Rain,Mild,High,Strong,No
`

var allFeatures = []string{"Outlook", "Temperature", "Humidity", "Wind"}

func tennisData(t *testing.T) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.Load(strings.NewReader(tennis), dataset.LoadOptions{})
	require.NoError(t, err)
	return ds
}

func classic(laplace float64) Params {
	return Params{
		Target:   "Play",
		Features: allFeatures,
		Evidence: map[string]string{"Outlook": "Sunny", "Temperature": "Cool", "Humidity": "High", "Wind": "Strong"},
		Laplace:  laplace,
	}
}

func prior(m *Model, class string) Prior {
	p, _ := lo.Find(m.Priors, func(p Prior) bool { return p.Class == class })
	return p
}

func posterior(m *Model, class string) Posterior {
	p, _ := lo.Find(m.Posterior, func(p Posterior) bool { return p.Class == class })
	return p
}

func TestRun_Priors(t *testing.T) {
	ds := tennisData(t)

	m, err := Run(context.Background(), ds, classic(0))
	require.NoError(t, err)
	yes := prior(m, "Yes")
	assert.Equal(t, 9, yes.Count)
	assert.Equal(t, 9.0, yes.Numerator)
	assert.Equal(t, 14.0, yes.Denominator)
	assert.InDelta(t, 9.0/14.0, yes.Probability, 1e-12)

	m, err = Run(context.Background(), ds, classic(1))
	require.NoError(t, err)
	yes = prior(m, "Yes")
	assert.Equal(t, 10.0, yes.Numerator)
	assert.Equal(t, 16.0, yes.Denominator)
	assert.InDelta(t, 10.0/16.0, yes.Probability, 1e-12)
}

func TestRun_ClassicQuery(t *testing.T) {
	m, err := Run(context.Background(), tennisData(t), classic(0))
	require.NoError(t, err)

	assert.Equal(t, []string{"No", "Yes"}, m.Classes)
	assert.Equal(t, "No", m.Prediction)

	yesScore := 9.0 / 14 * 2.0 / 9 * 3.0 / 9 * 3.0 / 9 * 3.0 / 9
	noScore := 5.0 / 14 * 3.0 / 5 * 1.0 / 5 * 4.0 / 5 * 3.0 / 5
	assert.InDelta(t, yesScore, posterior(m, "Yes").Score, 1e-12)
	assert.InDelta(t, noScore, posterior(m, "No").Score, 1e-12)
	assert.InDelta(t, noScore/(yesScore+noScore), posterior(m, "No").Posterior, 1e-9)

	sum := lo.SumBy(m.Posterior, func(p Posterior) float64 { return p.Posterior })
	assert.InDelta(t, 1.0, sum, 1e-9)

	// Trace: Outlook=Sunny given No is 3/5.
	f := posterior(m, "No").Components[0]
	assert.Equal(t, "Outlook", f.Feature)
	assert.Equal(t, 3, f.Count)
	assert.Equal(t, 3.0, f.Numerator)
	assert.Equal(t, 5.0, f.Denominator)
	assert.Equal(t, 3, f.UniqueCount)
	assert.False(t, f.Unseen)
	assert.Empty(t, m.Warnings)
}

func TestRun_ConditionalTables(t *testing.T) {
	m, err := Run(context.Background(), tennisData(t), classic(1))
	require.NoError(t, err)

	require.Len(t, m.Conditionals, 4)
	outlook := m.Conditionals[0]
	assert.Equal(t, 3, outlook.UniqueCount)
	assert.Equal(t, []string{"Sunny", "Overcast", "Rain"},
		lo.Map(outlook.Values, func(v ValueRow, _ int) string { return v.Value }))

	overcastNo := outlook.Values[1].Classes[0]
	assert.Equal(t, "No", overcastNo.Class)
	assert.Equal(t, 0, overcastNo.Count)
	assert.Equal(t, 1.0, overcastNo.Numerator)
	assert.Equal(t, 8.0, overcastNo.Denominator)
}

func TestRun_ZeroCountZeroesScore(t *testing.T) {
	p := classic(0)
	p.Evidence["Outlook"] = "Overcast"

	m, err := Run(context.Background(), tennisData(t), p)
	require.NoError(t, err)

	no := posterior(m, "No")
	assert.Equal(t, 0.0, no.Score)
	assert.Nil(t, no.LogScore)
	assert.Equal(t, 0.0, no.Posterior)
	assert.Equal(t, "Yes", m.Prediction)
	assert.InDelta(t, 1.0, posterior(m, "Yes").Posterior, 1e-12)
	require.Len(t, m.Warnings, 1)
	assert.Contains(t, m.Warnings[0], "Outlook")
}

func TestRun_SmoothingRaisesZeroProbabilities(t *testing.T) {
	ds := tennisData(t)
	p := classic(0)
	p.Evidence["Outlook"] = "Overcast"

	prev := 0.0
	for _, l := range []float64{0, 0.5, 1, 2} {
		p.Laplace = l
		m, err := Run(context.Background(), ds, p)
		require.NoError(t, err)
		got := posterior(m, "No").Components[0].Probability
		if l == 0 {
			assert.Equal(t, 0.0, got)
		} else {
			assert.Greater(t, got, prev, "laplace=%v", l)
		}
		prev = got
	}
}

func TestRun_DegenerateModel(t *testing.T) {
	p := classic(0)
	p.Evidence["Outlook"] = "Foggy"

	_, err := Run(context.Background(), tennisData(t), p)
	require.ErrorIs(t, err, dataset.ErrDegenerateModel)
	assert.Contains(t, err.Error(), "Outlook=Foggy")
	assert.Contains(t, err.Error(), "Yes")
	assert.Contains(t, err.Error(), "No")
}

func TestRun_UnseenValueWidensVocabulary(t *testing.T) {
	p := classic(1)
	p.Evidence["Outlook"] = "Foggy"

	m, err := Run(context.Background(), tennisData(t), p)
	require.NoError(t, err)

	f := posterior(m, "Yes").Components[0]
	assert.True(t, f.Unseen)
	assert.Equal(t, 4, f.UniqueCount)
	assert.Equal(t, 0, f.Count)
	assert.Equal(t, 1.0, f.Numerator)
	assert.Equal(t, 13.0, f.Denominator)
}

func TestRun_TieGoesToFirstSeenClass(t *testing.T) {
	ds, err := dataset.Load(strings.NewReader("f,c\nx,b\nx,a\n"), dataset.LoadOptions{})
	require.NoError(t, err)

	m, err := Run(context.Background(), ds, Params{Target: "c", Features: []string{"f"}, Evidence: map[string]string{"f": "x"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, m.Classes)
	assert.Equal(t, "b", m.Prediction)
	assert.InDelta(t, 0.5, m.Posterior[0].Posterior, 1e-12)
}

func TestRun_SkipsMissingTargetAndNumericEvidence(t *testing.T) {
	ds, err := dataset.Load(strings.NewReader("n,c\n1,a\n2,b\n1,\n2.0,a\n"), dataset.LoadOptions{})
	require.NoError(t, err)

	m, err := Run(context.Background(), ds, Params{Target: "c", Features: []string{"n"}, Evidence: map[string]string{"n": "2.00"}, Laplace: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, m.RowCount)
	assert.Equal(t, 1, m.SkippedRows)
	assert.Equal(t, "2", m.Evidence["n"])
	assert.False(t, posterior(m, "a").Components[0].Unseen)
}

func TestRun_InvalidParameters(t *testing.T) {
	ds := tennisData(t)

	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"missing target", func(p *Params) { p.Target = "" }},
		{"unknown target", func(p *Params) { p.Target = "Nope" }},
		{"no features", func(p *Params) { p.Features = nil }},
		{"feature equals target", func(p *Params) { p.Features = []string{"Outlook", "Play"} }},
		{"unknown feature", func(p *Params) { p.Features = []string{"Outlook", "Color"} }},
		{"duplicate feature", func(p *Params) { p.Features = []string{"Outlook", "Outlook"} }},
		{"missing evidence", func(p *Params) { delete(p.Evidence, "Wind") }},
		{"blank evidence", func(p *Params) { p.Evidence["Wind"] = " " }},
		{"evidence for unselected column", func(p *Params) {
			p.Features = []string{"Outlook"}
			p.Evidence = map[string]string{"Outlook": "Sunny", "Wind": "Weak"}
		}},
		{"negative laplace", func(p *Params) { p.Laplace = -0.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := classic(0)
			tt.mutate(&p)
			_, err := Run(context.Background(), ds, p)
			assert.ErrorIs(t, err, dataset.ErrInvalidParameter)
		})
	}
}

func TestRun_AllTargetsMissing(t *testing.T) {
	ds, err := dataset.Load(strings.NewReader("f,c\nx,\ny,\n"), dataset.LoadOptions{})
	require.NoError(t, err)

	_, err = Run(context.Background(), ds, Params{Target: "c", Features: []string{"f"}, Evidence: map[string]string{"f": "x"}})
	assert.ErrorIs(t, err, dataset.ErrInvalidParameter)
}

func TestRun_ScoreIsProductOfShownFactors(t *testing.T) {
	for _, laplace := range []float64{0, 1, 0.5} {
		m, err := Run(context.Background(), tennisData(t), classic(laplace))
		require.NoError(t, err)

		for _, post := range m.Posterior {
			want := post.Prior.Probability
			for _, f := range post.Components {
				want *= f.Probability
			}
			assert.Equal(t, want, post.Score, "class %s laplace %v", post.Class, laplace)
		}
	}
}
