package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/tabinfer/internal/dataset"
	"github.com/JonMunkholm/tabinfer/internal/kmeans"
	"github.com/JonMunkholm/tabinfer/internal/reduct"
)

const weather = `Outlook,Wind,Play
Sunny,Weak,No
Sunny,Strong,No
Overcast,Weak,Yes
Rain,Weak,Yes
Rain,Strong,No
Overcast,Strong,Yes
`

func writeCSV(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "weather.csv")
	require.NoError(t, os.WriteFile(path, []byte(weather), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { outputFormat = "json" })
	err := rootCmd.ExecuteContext(t.Context())
	return out.String(), err
}

func TestReductCommandJSON(t *testing.T) {
	out, err := execute(t, "reduct", writeCSV(t), "--decision", "Play")
	require.NoError(t, err)

	var res reduct.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Reducts, 1)
	assert.Equal(t, []string{"Outlook", "Wind"}, res.Reducts[0].Attributes)
	assert.Equal(t, []string{"Outlook", "Wind"}, res.Core)
}

func TestApproxCommandTable(t *testing.T) {
	out, err := execute(t, "approx", writeCSV(t), "--decision", "Play",
		"--attributes", "Outlook", "--value", "Yes", "--output", "table")
	require.NoError(t, err)

	assert.Contains(t, out, "Play = Yes over {Outlook}")
	assert.Contains(t, out, "accuracy=0.5")
	assert.Contains(t, out, "2 5")
}

func TestBayesCommandInfersFeaturesFromEvidence(t *testing.T) {
	out, err := execute(t, "bayes", writeCSV(t), "--target", "Play",
		"--evidence", "Outlook=Overcast,Wind=Weak", "--laplace", "1", "--output", "table")
	require.NoError(t, err)
	assert.Contains(t, out, "prediction: Yes")
	assert.Contains(t, out, "1/6")
}

func TestRejectsUnknownOutput(t *testing.T) {
	_, err := execute(t, "preview", writeCSV(t), "--output", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--output must be json or table")
}

func TestRenderKnowsEveryResult(t *testing.T) {
	var buf bytes.Buffer
	err := render(&buf, "table", struct{}{})
	require.Error(t, err)
	assert.Empty(t, buf.String())
}

func TestKMeansCommandDefaultsMatchEngine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "points.csv")
	csv := "x,y\n1,1\n1,2\n9,9\n9,10\n5,5\n2,8\n"
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o600))

	out, err := execute(t, "kmeans", path, "--k", "2", "--seed", "3")
	require.NoError(t, err)

	var got kmeans.Model
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, kmeans.InitRandom, got.Init)

	ds, err := dataset.Load(strings.NewReader(csv), dataset.LoadOptions{})
	require.NoError(t, err)
	p := kmeans.DefaultParams(2)
	seed := int64(3)
	p.RandomState = &seed
	want, err := kmeans.Run(t.Context(), ds, p)
	require.NoError(t, err)

	assert.Equal(t, want.Labels, got.Labels)
	assert.Equal(t, want.Centroids, got.Centroids)
}
