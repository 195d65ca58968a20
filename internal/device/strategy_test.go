// SPDX-License-Identifier: MIT

package device

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPreferExternalPicksExternalFirst(t *testing.T) {
	devices := []Device{
		{ID: "video0", Path: "/dev/video0", Kind: KindIntegrated},
		{ID: "video2", Path: "/dev/video2", Kind: KindExternal},
		{ID: "video4", Path: "/dev/video4", Kind: KindExternal},
	}

	got, err := PreferExternal().Select(devices)
	require.NoError(t, err)
	require.Equal(t, "/dev/video2", got.Path, "first external by path order")
}

func TestPreferExternalFallsBackToIntegrated(t *testing.T) {
	devices := []Device{
		{ID: "video0", Path: "/dev/video0", Kind: KindIntegrated},
	}

	got, err := PreferExternal().Select(devices)
	require.NoError(t, err)
	require.Equal(t, "/dev/video0", got.Path)
}

func TestPreferIntegratedPicksIntegratedFirst(t *testing.T) {
	devices := []Device{
		{ID: "video2", Path: "/dev/video2", Kind: KindExternal},
		{ID: "video0", Path: "/dev/video0", Kind: KindIntegrated},
	}

	got, err := PreferIntegrated().Select(devices)
	require.NoError(t, err)
	require.Equal(t, "/dev/video0", got.Path)
}

func TestSelectEmptyListReturnsUnavailable(t *testing.T) {
	for _, s := range []SelectionStrategy{PreferExternal(), PreferIntegrated()} {
		_, err := s.Select(nil)
		require.ErrorIs(t, err, ErrUnavailable, s.Name())
	}
}

func TestSelectDoesNotMutateInput(t *testing.T) {
	devices := []Device{
		{ID: "video4", Path: "/dev/video4", Kind: KindExternal},
		{ID: "video0", Path: "/dev/video0", Kind: KindIntegrated},
	}

	_, err := PreferIntegrated().Select(devices)
	require.NoError(t, err)
	require.Equal(t, "/dev/video4", devices[0].Path, "caller slice must stay untouched")
}

func TestStrategyFromName(t *testing.T) {
	s, err := StrategyFromName("prefer-external")
	require.NoError(t, err)
	require.Equal(t, "prefer-external", s.Name())

	s, err = StrategyFromName("prefer-integrated")
	require.NoError(t, err)
	require.Equal(t, "prefer-integrated", s.Name())

	s, err = StrategyFromName("")
	require.NoError(t, err)
	require.Equal(t, "prefer-external", s.Name(), "empty defaults to prefer-external")

	_, err = StrategyFromName("nearest")
	require.Error(t, err)
}
