package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/gwlearn/pkg/errors"
)

const testConfig = `
bandwidth: 8
kernel: bisquare
random_state: 1
fit_global_model: false
model:
  family: decision_tree
  params:
    max_depth: 2
`

// writeFixture lays out a 6x5 grid whose label alternates by column and
// whose single feature tracks the label.
func writeFixture(t *testing.T, dir string) (config, data string) {
	t.Helper()
	var b strings.Builder
	b.WriteString("x,y,a,target\n")
	for i := 0; i < 6; i++ {
		for j := 0; j < 5; j++ {
			label := i % 2
			fmt.Fprintf(&b, "%d,%d,%g,%d\n", i, j, float64(label)+0.1*float64(j), label)
		}
	}
	data = filepath.Join(dir, "train.csv")
	require.NoError(t, os.WriteFile(data, []byte(b.String()), 0o600))
	config = filepath.Join(dir, "gw.yaml")
	require.NoError(t, os.WriteFile(config, []byte(testConfig), 0o600))
	return config, data
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd(&stderr)
	root.SetOut(&stdout)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestFitWritesFocalProbabilities(t *testing.T) {
	dir := t.TempDir()
	config, data := writeFixture(t, dir)
	out := filepath.Join(dir, "focal.csv")
	metrics := filepath.Join(dir, "metrics.prom")

	_, stderr, err := execute(t, "fit", "--config", config, "--data", data,
		"--features", "a", "--out", out, "--metrics-out", metrics)
	require.NoError(t, err, stderr)
	assert.Contains(t, stderr, "Fit finished")

	focal, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(focal)), "\n")
	assert.Equal(t, "id,x,y,proba_0,proba_1", lines[0])
	assert.Len(t, lines, 31)

	prom, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "gwlearn_local_models_fitted_total")
}

func TestFitPredictsAndPlots(t *testing.T) {
	dir := t.TempDir()
	config, data := writeFixture(t, dir)
	query := filepath.Join(dir, "query.csv")
	require.NoError(t, os.WriteFile(query, []byte("x,y,a\n0.5,1,0.2\n3.5,2,1.1\n100,100,0\n"), 0o600))
	pred := filepath.Join(dir, "pred.csv")
	png := filepath.Join(dir, "focal.png")

	stdout, stderr, err := execute(t, "--log-format", "console", "fit", "--config", config, "--data", data,
		"--features", "a", "--standardize", "--predict", query, "--predictions-out", pred, "--plot", png)
	require.NoError(t, err, stderr)
	assert.True(t, strings.HasPrefix(stdout, "id,proba_0,proba_1\n"))
	assert.FileExists(t, png)

	rows, err := os.ReadFile(pred)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(rows)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "id,x,y,proba_0,proba_1,prediction", lines[0])
	// adaptive bandwidths always reach the nearest models, even far away
	assert.NotContains(t, lines[1], "NaN")
	assert.NotContains(t, lines[3], "NaN")
	for _, line := range lines[1:] {
		if strings.Contains(line, "NaN") {
			continue
		}
		fields := strings.Split(line, ",")
		p0, err := strconv.ParseFloat(fields[3], 64)
		require.NoError(t, err)
		p1, err := strconv.ParseFloat(fields[4], 64)
		require.NoError(t, err)
		want := "0"
		if p1 > p0 {
			want = "1"
		}
		assert.Equal(t, want, fields[5], line)
	}
}

func TestFitErrors(t *testing.T) {
	dir := t.TempDir()
	config, data := writeFixture(t, dir)

	t.Run("missing column", func(t *testing.T) {
		_, _, err := execute(t, "fit", "--config", config, "--data", data, "--features", "b")
		var ve *errors.ValidationError
		require.True(t, errors.As(err, &ve))
		assert.Equal(t, "column", ve.ParamName)
	})

	t.Run("predict without output", func(t *testing.T) {
		_, _, err := execute(t, "fit", "--config", config, "--data", data, "--features", "a", "--predict", data)
		assert.Error(t, err)
	})

	t.Run("bad log format", func(t *testing.T) {
		_, _, err := execute(t, "--log-format", "xml", "fit", "--config", config, "--data", data, "--features", "a")
		assert.Error(t, err)
	})

	t.Run("required flags", func(t *testing.T) {
		_, _, err := execute(t, "fit", "--data", data)
		assert.Error(t, err)
	})
}

func TestDecodeTableRejectsBadTarget(t *testing.T) {
	_, err := decodeTable(strings.NewReader("x,y,a,target\n0,0,1,maybe\n"),
		columns{features: []string{"a"}, x: "x", y: "y", target: "target"}, true)
	var ve *errors.ValueError
	assert.True(t, errors.As(err, &ve))

	tbl, err := decodeTable(strings.NewReader("x,y,a,target\n0,0,1,true\n1,2,3,0\n"),
		columns{features: []string{"a"}, x: "x", y: "y", target: "target"}, true)
	require.NoError(t, err)
	assert.Equal(t, 1.0, tbl.y.At(0, 0))
	assert.Equal(t, 0.0, tbl.y.At(1, 0))
	assert.Equal(t, 2.0, tbl.points[1].Y)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b "))
	assert.Nil(t, splitList(""))
}
