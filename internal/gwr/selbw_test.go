package gwr

import (
	"math"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCriterion(t *testing.T) {
	for in, want := range map[string]Criterion{"aicc": AICc, "AIC": AIC, "bic": BIC, "cv": CV} {
		got, err := ParseCriterion(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseCriterion("deviance")
	assert.Error(t, err)
}

func TestParseSearchMethod(t *testing.T) {
	got, err := ParseSearchMethod("Golden_Section")
	require.NoError(t, err)
	assert.Equal(t, GoldenSection, got)

	got, err = ParseSearchMethod("interval")
	require.NoError(t, err)
	assert.Equal(t, Interval, got)

	_, err = ParseSearchMethod("brent")
	assert.Error(t, err)
}

func parabola(center float64) func(float64) (float64, error) {
	return func(bw float64) (float64, error) {
		return (bw - center) * (bw - center), nil
	}
}

func TestGoldenSection_FindsConvexMinimum(t *testing.T) {
	s := newSelector(SearchOptions{Options: Options{Fixed: true}}, parabola(37.3))
	bw, err := s.run(0, 100)
	require.NoError(t, err)
	assert.InDelta(t, 37.3, bw, 0.01)
}

func TestGoldenSection_AdaptiveRoundsToWholeNeighbours(t *testing.T) {
	s := newSelector(SearchOptions{}, parabola(61.4))
	bw, err := s.run(10, 120)
	require.NoError(t, err)
	assert.Equal(t, math.Round(bw), bw)
	assert.InDelta(t, 61.4, bw, 1)

	for cand := range s.memo {
		assert.Equal(t, math.Round(cand), cand)
	}
}

func TestGoldenSection_MemoisesScores(t *testing.T) {
	calls := map[float64]int{}
	s := newSelector(SearchOptions{}, func(bw float64) (float64, error) {
		calls[bw]++
		return (bw - 30) * (bw - 30), nil
	})
	_, err := s.run(10, 90)
	require.NoError(t, err)
	for bw, n := range calls {
		assert.Equal(t, 1, n, "bandwidth %g evaluated more than once", bw)
	}
}

func TestGoldenSection_MinimumAtBoundary(t *testing.T) {
	s := newSelector(SearchOptions{Options: Options{Fixed: true}}, func(bw float64) (float64, error) {
		return bw, nil
	})
	bw, err := s.run(2, 50)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, bw, 0.01)
}

func TestGoldenSection_NotConverged(t *testing.T) {
	s := newSelector(SearchOptions{Options: Options{Fixed: true}, MaxIter: 2, Tolerance: 1e-12}, parabola(37.3))
	_, err := s.run(0, 100)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrModelFit))
	assert.Contains(t, err.Error(), "did not converge")
}

func TestSelector_FailedCandidatesScoreInf(t *testing.T) {
	s := newSelector(SearchOptions{Options: Options{Fixed: true}}, func(bw float64) (float64, error) {
		if bw < 40 {
			return 0, newFitError(3, bw, "singular local system")
		}
		return (bw - 55) * (bw - 55), nil
	})
	bw, err := s.run(0, 100)
	require.NoError(t, err)
	assert.InDelta(t, 55.0, bw, 0.01)
}

func TestSelector_AllCandidatesFail(t *testing.T) {
	s := newSelector(SearchOptions{Options: Options{Fixed: true}}, func(bw float64) (float64, error) {
		return 0, newFitError(0, bw, "singular local system")
	})
	_, err := s.run(1, 10)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrModelFit))
	assert.True(t, IsFitError(err))
}

func TestIntervalSearch(t *testing.T) {
	s := newSelector(SearchOptions{Options: Options{Fixed: true}, Method: Interval, Step: 0.5}, parabola(3.3))
	bw, err := s.run(1, 6)
	require.NoError(t, err)
	assert.InDelta(t, 3.5, bw, 1e-9)

	s = newSelector(SearchOptions{Method: Interval}, parabola(3.3))
	_, err = s.run(1, 6)
	assert.Error(t, err)
}

func TestSelectBandwidth_Adaptive(t *testing.T) {
	coords, y, X := synthetic(9, 9)
	opts := SearchOptions{Options: Options{Kernel: Bisquare}, Criterion: AICc}

	bw, err := SelectBandwidth(coords, y, X, opts)
	require.NoError(t, err)
	assert.Equal(t, math.Round(bw), bw)
	assert.GreaterOrEqual(t, bw, float64(40+2*3))
	assert.LessOrEqual(t, bw, 81.0)

	again, err := SelectBandwidth(coords, y, X, opts)
	require.NoError(t, err)
	assert.Equal(t, bw, again)
}

func TestSelectBandwidth_FixedWithinBounds(t *testing.T) {
	coords, y, X := synthetic(6, 6)
	opts := SearchOptions{
		Options:   Options{Kernel: Gaussian, Fixed: true},
		Criterion: CV,
		Min:       1.5,
		Max:       8,
	}
	bw, err := SelectBandwidth(coords, y, X, opts)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, bw, 1.5)
	assert.LessOrEqual(t, bw, 8.0)
}

func TestSearchBounds(t *testing.T) {
	coords, y, X := synthetic(10, 10)
	m, err := newModel(coords, y, X, Options{Kernel: Bisquare})
	require.NoError(t, err)

	a, c, err := searchBounds(m, SearchOptions{})
	require.NoError(t, err)
	assert.InDelta(t, 46.0, a, 0)
	assert.InDelta(t, 100.0, c, 0)

	// Adaptive maxima are clamped to n.
	_, c, err = searchBounds(m, SearchOptions{Max: 500})
	require.NoError(t, err)
	assert.InDelta(t, 100.0, c, 0)

	fixed, err := newModel(coords, y, X, Options{Kernel: Gaussian, Fixed: true})
	require.NoError(t, err)
	a, c, err = searchBounds(fixed, SearchOptions{Options: Options{Fixed: true}})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, a, 1e-12)
	assert.InDelta(t, 2*math.Hypot(9, 9), c, 1e-9)

	_, _, err = searchBounds(fixed, SearchOptions{Options: Options{Fixed: true}, Min: 9, Max: 3})
	assert.Error(t, err)
}

func TestSelectBandwidth_SmallSampleClampsRange(t *testing.T) {
	coords, y, X := synthetic(3, 3)
	bw, err := SelectBandwidth(coords, y, X, SearchOptions{Options: Options{Kernel: Gaussian}})
	require.NoError(t, err)
	assert.InDelta(t, 9.0, bw, 0)
}

func TestSelectBandwidth_DefaultOptionsOnPlanarGrid(t *testing.T) {
	coords, y, X := synthetic(8, 8)

	bw, err := SelectBandwidth(coords, y, X, SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, math.Round(bw), bw)
	assert.GreaterOrEqual(t, bw, 46.0)
	assert.LessOrEqual(t, bw, 64.0)

	res, err := Fit(coords, y, X, bw, Options{})
	require.NoError(t, err)
	assert.Equal(t, bw, res.Bandwidth)
}
