package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/bifrost/internal/bucketing"
)

const (
	experimentsJSON = `{
		"checkout": {
			"experimentId": "exp-checkout",
			"startDate": "2024-01-01",
			"segments": ["north-america"],
			"variants": [{"name": "control", "percentage": 0.5}, {"name": "new", "percentage": 0.5}]
		},
		"ghosted": {
			"experimentId": "exp-ghost",
			"startDate": "2024-01-01",
			"endDate": "2024-02-01",
			"segments": ["ghost"],
			"variants": [{"name": "a", "percentage": 1}]
		}
	}`

	segmentsYAML = `
north-america:
  rule:
    operator: OR
    parameters:
      storefront:
        arg: [US, CA]
`
)

// run executes a fresh command tree and returns its stdout.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)

	err := root.Execute()
	return out.String(), err
}

func writeFeeds(t *testing.T) (string, string) {
	t.Helper()

	dir := t.TempDir()
	exp := filepath.Join(dir, "experiments.json")
	seg := filepath.Join(dir, "segments.yml")
	require.NoError(t, os.WriteFile(exp, []byte(experimentsJSON), 0o600))
	require.NoError(t, os.WriteFile(seg, []byte(segmentsYAML), 0o600))
	return exp, seg
}

func TestDistributionCmd(t *testing.T) {
	t.Run("synthetic population as json", func(t *testing.T) {
		out, err := run(t, "", "distribution", "--synthetic", "10000", "--salt", "exp123", "--pct", "0.5", "--pct", "0.5", "--json")
		require.NoError(t, err)

		var report bucketing.DistributionReport
		require.NoError(t, json.Unmarshal([]byte(out), &report))
		assert.Equal(t, 10000, report.ExpectedTotal)
		assert.Equal(t, 10000, report.ActualTotal)
		require.Len(t, report.Buckets, 2)
		assert.Equal(t, 5003, report.Buckets[0].Count)
		assert.Equal(t, 4997, report.Buckets[1].Count)
	})

	t.Run("identities from stdin", func(t *testing.T) {
		out, err := run(t, "a\n\nb\nc\n", "distribution", "--ids", "-", "--salt", "s", "--pct", "1")
		require.NoError(t, err)
		assert.Contains(t, out, "identities: 3  bucketed: 3")
	})

	t.Run("random population within tolerance", func(t *testing.T) {
		_, err := run(t, "", "distribution", "--random", "20000", "--salt", "s", "--pct", "0.5", "--pct", "0.5", "--tolerance", "0.05")
		assert.NoError(t, err)
	})

	t.Run("tolerance breach fails", func(t *testing.T) {
		// Three identities cannot approximate a 50/50 split within 1%.
		_, err := run(t, "a\nb\nc\n", "distribution", "--ids", "-", "--salt", "s", "--pct", "0.5", "--pct", "0.5", "--tolerance", "0.01")
		assert.ErrorContains(t, err, "deviates")
	})

	errCases := []struct {
		name string
		args []string
		want string
	}{
		{name: "no population", args: []string{"--salt", "s", "--pct", "0.5"}, want: "no identities"},
		{name: "no percentages", args: []string{"--synthetic", "10", "--salt", "s"}, want: "--pct"},
		{name: "out of range", args: []string{"--synthetic", "10", "--salt", "s", "--pct", "1.2"}, want: "out of range"},
		{name: "sum above one", args: []string{"--synthetic", "10", "--salt", "s", "--pct", "0.7", "--pct", "0.7"}, want: "above 1"},
		{name: "missing salt", args: []string{"--synthetic", "10", "--pct", "0.5"}, want: "salt"},
		{name: "exclusive sources", args: []string{"--synthetic", "10", "--random", "10", "--salt", "s", "--pct", "0.5"}, want: "none of the others"},
	}
	for _, tt := range errCases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, "", append([]string{"distribution"}, tt.args...)...)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestAssignCmd(t *testing.T) {
	exp, seg := writeFeeds(t)

	t.Run("eligible user", func(t *testing.T) {
		out, err := run(t, "", "assign", "--experiments", exp, "--segments", seg,
			"--name", "checkout", "--identity", "1000123", "--storefront", "US")
		require.NoError(t, err)

		var got map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		assert.Equal(t, "checkout", got["experiment"])
		assert.Equal(t, true, got["active"])
		assert.Equal(t, true, got["in_segment"])
		assert.Equal(t, "control", got["variant"])
		assert.Equal(t, true, got["result"])
	})

	t.Run("requested variant mismatch", func(t *testing.T) {
		out, err := run(t, "", "assign", "--experiments", exp, "--segments", seg,
			"--name", "checkout", "--identity", "1000123", "--storefront", "US", "--variant", "new")
		require.NoError(t, err)
		assert.Contains(t, out, `"result": false`)
		assert.Contains(t, out, `"variant": "control"`)
	})

	t.Run("before start date", func(t *testing.T) {
		out, err := run(t, "", "assign", "--experiments", exp, "--segments", seg,
			"--name", "checkout", "--identity", "1000123", "--storefront", "US", "--at", "2023-06-01T00:00:00Z")
		require.NoError(t, err)
		assert.Contains(t, out, `"active": false`)
		assert.Contains(t, out, `"in_segment": false`)
	})

	t.Run("unknown experiment", func(t *testing.T) {
		_, err := run(t, "", "assign", "--experiments", exp, "--segments", seg, "--name", "nope", "--identity", "1")
		assert.ErrorContains(t, err, `"nope" not found`)
	})

	t.Run("bad feed path", func(t *testing.T) {
		_, err := run(t, "", "assign", "--experiments", "/does/not/exist.json", "--segments", seg, "--name", "checkout")
		assert.Error(t, err)
	})
}

func TestValidateCmd(t *testing.T) {
	exp, seg := writeFeeds(t)

	out, err := run(t, "", "validate", "--experiments", exp, "--segments", seg)
	require.NoError(t, err)

	assert.Contains(t, out, "ok: 2 experiments, 1 segments")
	assert.Contains(t, out, "checkout")
	assert.Contains(t, out, "missing segments: [ghost]")

	broken := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte(`[1, 2]`), 0o600))
	_, err = run(t, "", "validate", "--experiments", broken, "--segments", seg)
	assert.Error(t, err)
}

func TestReadIdentities(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ids.txt")
	require.NoError(t, os.WriteFile(path, []byte(" u1 \nu2\n\n"), 0o600))

	ids, err := readIdentities(path, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, ids)

	_, err = readIdentities(filepath.Join(t.TempDir(), "missing"), nil)
	assert.Error(t, err)
}

func TestValidateCmd_ShippedFeeds(t *testing.T) {
	out, err := run(t, "", "validate",
		"--experiments", "../../feeds/experiments.json",
		"--segments", "../../feeds/segments.json")
	require.NoError(t, err)
	assert.Contains(t, out, "ok: 2 experiments, 3 segments")
	assert.NotContains(t, out, "missing segments")
}
