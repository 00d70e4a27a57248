package runlog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogRoundTrip(t *testing.T) {
	t.Parallel()
	l, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer l.Close()

	run, err := l.NewRun("ising22", "tau: 0.1\nmaxBond: 4\n")
	require.NoError(t, err)

	recs := []Record{
		{Sweep: 1, Tau: 0.1, Time: 0.1, Energy: -1.2, GaugeDiff: 0.3},
		{Sweep: 2, Tau: 0.1, Time: 0.2, Energy: -1.5, GaugeDiff: 0.1},
	}
	for _, r := range recs {
		require.NoError(t, l.Append(run, r))
	}

	got, err := l.Records(run)
	require.NoError(t, err)
	require.Equal(t, recs, got)

	en, err := l.LastEnergy(run)
	require.NoError(t, err)
	require.Equal(t, -1.5, en)
}

func TestLogSeparatesRuns(t *testing.T) {
	t.Parallel()
	l, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer l.Close()

	a, err := l.NewRun("a", "")
	require.NoError(t, err)
	b, err := l.NewRun("b", "")
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	require.NoError(t, l.Append(a, Record{Sweep: 1, Energy: -1}))

	got, err := l.Records(b)
	require.NoError(t, err)
	require.Empty(t, got)

	_, err = l.LastEnergy(b)
	require.Error(t, err)
}

func TestLogReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "runs.db")
	l, err := Open(path)
	require.NoError(t, err)
	run, err := l.NewRun("a", "")
	require.NoError(t, err)
	require.NoError(t, l.Append(run, Record{Sweep: 1, Energy: -2}))
	require.NoError(t, l.Close())

	l, err = Open(path)
	require.NoError(t, err)
	defer l.Close()
	en, err := l.LastEnergy(run)
	require.NoError(t, err)
	require.Equal(t, -2.0, en)
}
