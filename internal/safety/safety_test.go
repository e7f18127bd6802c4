package safety_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/treesync/internal/config"
	"github.com/tonimelisma/treesync/internal/safety"
)

type fakeStore struct{ count int }

func (f fakeStore) Count() int { return f.count }

func testCfg() config.SafetyConfig {
	return config.SafetyConfig{
		BigBatchThreshold:  1000,
		BigBatchPercentage: 50,
		BigBatchMinItems:   10,
	}
}

func TestCheckBigBatchAllowsSmallDelete(t *testing.T) {
	c := safety.NewChecker(testCfg(), nil)

	err := c.CheckBigBatch(fakeStore{count: 100}, 5, false)
	require.NoError(t, err)
}

func TestCheckBigBatchExemptsSmallTrees(t *testing.T) {
	c := safety.NewChecker(testCfg(), nil)

	// 9 total items is below BigBatchMinItems (10): even deleting all of
	// them is exempt from the percentage check.
	err := c.CheckBigBatch(fakeStore{count: 9}, 9, false)
	require.NoError(t, err)
}

func TestCheckBigBatchBlocksByThreshold(t *testing.T) {
	c := safety.NewChecker(testCfg(), nil)

	err := c.CheckBigBatch(fakeStore{count: 5000}, 1001, false)
	require.True(t, errors.Is(err, safety.ErrBigBatchBlocked))
}

func TestCheckBigBatchBlocksByPercentage(t *testing.T) {
	c := safety.NewChecker(testCfg(), nil)

	// 60 of 100 items exceeds the 50% threshold, even though 60 is below
	// the absolute BigBatchThreshold of 1000.
	err := c.CheckBigBatch(fakeStore{count: 100}, 60, false)
	require.True(t, errors.Is(err, safety.ErrBigBatchBlocked))
}

func TestCheckBigBatchForceOverrides(t *testing.T) {
	c := safety.NewChecker(testCfg(), nil)

	err := c.CheckBigBatch(fakeStore{count: 100}, 60, true)
	require.NoError(t, err)
}
