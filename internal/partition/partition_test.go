package partition

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitEven(t *testing.T) {
	got, err := Split(1000, 4, RemainderDrop)
	require.NoError(t, err)

	want := []Assignment{
		{Start: 0, Length: 250},
		{Start: 250, Length: 250},
		{Start: 500, Length: 250},
		{Start: 750, Length: 250},
	}
	assert.Equal(t, want, got)
	assert.Equal(t, 1000, Rows(got))
	assert.NoError(t, Verify(got, 1000))
	assert.Empty(t, Uncovered(got, 1000))
}

func TestSplitRemainderPolicies(t *testing.T) {
	tests := []struct {
		name      string
		height    int
		workers   int
		policy    RemainderPolicy
		wantRows  int
		uncovered []int
	}{
		{name: "drop loses trailing rows", height: 10, workers: 4, policy: RemainderDrop, wantRows: 8, uncovered: []int{8, 9}},
		{name: "last absorbs trailing rows", height: 10, workers: 4, policy: RemainderLast, wantRows: 10},
		{name: "drop on 1000/3", height: 1000, workers: 3, policy: RemainderDrop, wantRows: 999, uncovered: []int{999}},
		{name: "last on 1000/3", height: 1000, workers: 3, policy: RemainderLast, wantRows: 1000},
		{name: "one row per worker", height: 7, workers: 7, policy: RemainderDrop, wantRows: 7},
		{name: "single worker", height: 7, workers: 1, policy: RemainderLast, wantRows: 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Split(tt.height, tt.workers, tt.policy)
			require.NoError(t, err)
			require.Len(t, got, tt.workers)

			// sum of lengths follows N*(H/N) for drop and H for last
			assert.Equal(t, tt.wantRows, Rows(got))
			assert.Equal(t, tt.uncovered, Uncovered(got, tt.height))

			if tt.uncovered == nil {
				assert.NoError(t, Verify(got, tt.height))
			} else {
				assert.True(t, errors.Is(Verify(got, tt.height), ErrGap))
			}

			// chunks are contiguous and in order
			for i := 1; i < len(got); i++ {
				assert.Equal(t, got[i-1].End(), got[i].Start)
			}
		})
	}
}

func TestSplitRejectsDegenerateCounts(t *testing.T) {
	for _, workers := range []int{0, -1, 11} {
		_, err := Split(10, workers, RemainderLast)
		assert.True(t, errors.Is(err, ErrInvalidWorkerCount), "workers=%d", workers)
	}
}

func TestVerify(t *testing.T) {
	tests := []struct {
		name    string
		in      []Assignment
		height  int
		wantErr error
	}{
		{name: "exact cover out of order", in: []Assignment{{5, 5}, {0, 5}}, height: 10},
		{name: "gap in the middle", in: []Assignment{{0, 3}, {5, 5}}, height: 10, wantErr: ErrGap},
		{name: "gap at the end", in: []Assignment{{0, 9}}, height: 10, wantErr: ErrGap},
		{name: "overlap", in: []Assignment{{0, 6}, {5, 5}}, height: 10, wantErr: ErrOverlap},
		{name: "past the end", in: []Assignment{{0, 11}}, height: 10, wantErr: ErrOverlap},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Verify(tt.in, tt.height)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestVerifyDoesNotReorderInput(t *testing.T) {
	in := []Assignment{{5, 5}, {0, 5}}
	require.NoError(t, Verify(in, 10))
	assert.Equal(t, Assignment{5, 5}, in[0])
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, RemainderLast, p)

	p, err = ParsePolicy(" DROP ")
	require.NoError(t, err)
	assert.Equal(t, RemainderDrop, p)

	_, err = ParsePolicy("spread")
	assert.Error(t, err)
}

func TestAssignmentHelpers(t *testing.T) {
	a := Assignment{Start: 3, Length: 4}
	assert.Equal(t, 7, a.End())
	assert.Equal(t, 40, a.Pixels(10))
	assert.Equal(t, "[3,7)", a.String())
}
