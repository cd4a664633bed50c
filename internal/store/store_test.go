package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StormyCloudInc/selector-vanitygen/internal/nonce"
	"github.com/StormyCloudInc/selector-vanitygen/internal/searchspec"
	"github.com/StormyCloudInc/selector-vanitygen/internal/validator"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func solution(t *testing.T, spec *searchspec.Spec, p nonce.Pair) validator.Solution {
	t.Helper()
	sol, _ := validator.Verify(spec, p)
	return sol
}

func TestAddAndList(t *testing.T) {
	s := openTemp(t)
	a, err := searchspec.Parse("00000012", "mint00000000(address)", "0")
	require.NoError(t, err)
	b, err := searchspec.Parse("deadbeef", "burn00000000()", "0")
	require.NoError(t, err)

	ra := NewRecord(a, solution(t, a, nonce.Pair{Outer: 1, Inner: 2}), "cpu")
	rb := NewRecord(b, solution(t, b, nonce.Pair{Outer: 3, Inner: 4}), "opencl")
	rb.FoundAt = ra.FoundAt.Add(time.Second)
	require.NoError(t, s.Add(ra))
	require.NoError(t, s.Add(rb))
	require.NoError(t, s.Add(ra))

	all, err := s.List("")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "mint01000002(address)", all[0].Message)
	assert.Equal(t, "01000002", all[0].Nonce)
	assert.Equal(t, "burn03000004()", all[1].Message)
	assert.Len(t, all[0].Digest, 64)

	only, err := s.List("deadbeef")
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, "opencl", only[0].Backend)
}

func TestStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	spec, err := searchspec.Parse("00000012", "f00000000()", "0")
	require.NoError(t, err)

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Add(NewRecord(spec, solution(t, spec, nonce.Pair{Inner: 9}), "cpu")))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	recs, err := s.List("")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, uint32(9), recs[0].Inner)
}
