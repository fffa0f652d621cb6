package blockdev_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/qrutyy/ls-bdd/pkg/blockdev"
	"github.com/qrutyy/ls-bdd/pkg/lsmap"
)

func Test_Bind_Names_Devices_By_Index(t *testing.T) {
	t.Parallel()

	registry := blockdev.NewRegistry(nil)
	t.Cleanup(registry.Close)

	dev, err := registry.Bind(3, blockdev.NewMemDevice(1<<20), "mem", lsmap.BackendSkipList)
	require.NoError(t, err)
	require.Equal(t, "lsvbd3", dev.Name)
	require.Equal(t, int64(1<<20), dev.Capacity, "virtual capacity mirrors the backing device")
	require.NotEqual(t, dev.ID.String(), "00000000-0000-0000-0000-000000000000")
}

func Test_Bind_Rejects_Duplicate_Names(t *testing.T) {
	t.Parallel()

	registry := blockdev.NewRegistry(nil)
	t.Cleanup(registry.Close)

	_, err := registry.Bind(1, blockdev.NewMemDevice(1<<20), "mem-a", lsmap.BackendSkipList)
	require.NoError(t, err)

	_, err = registry.Bind(1, blockdev.NewMemDevice(1<<20), "mem-b", lsmap.BackendSkipList)
	require.ErrorIs(t, err, blockdev.ErrNameTaken)

	require.Len(t, registry.List(), 1, "a failed bind must leave the device list unmodified")
}

func Test_Bind_Rejects_Unknown_Backend(t *testing.T) {
	t.Parallel()

	registry := blockdev.NewRegistry(nil)
	t.Cleanup(registry.Close)

	_, err := registry.Bind(1, blockdev.NewMemDevice(1<<20), "mem", lsmap.Backend("zz"))
	require.ErrorIs(t, err, lsmap.ErrUnknownBackend)
	require.Empty(t, registry.List())
}

func Test_Lookup_By_Name_And_Index(t *testing.T) {
	t.Parallel()

	registry := blockdev.NewRegistry(nil)
	t.Cleanup(registry.Close)

	_, err := registry.Bind(1, blockdev.NewMemDevice(1<<20), "mem-a", lsmap.BackendBTree)
	require.NoError(t, err)
	_, err = registry.Bind(2, blockdev.NewMemDevice(1<<20), "mem-b", lsmap.BackendRBTree)
	require.NoError(t, err)

	byName, err := registry.ByName("lsvbd2")
	require.NoError(t, err)
	require.Equal(t, "mem-b", byName.BackingName)

	byIndex, err := registry.ByIndex(1)
	require.NoError(t, err)
	require.Equal(t, "lsvbd1", byIndex.Name)

	_, err = registry.ByName("lsvbd9")
	require.ErrorIs(t, err, blockdev.ErrNoDevice)

	_, err = registry.ByIndex(0)
	require.ErrorIs(t, err, blockdev.ErrBadIndex)

	_, err = registry.ByIndex(3)
	require.ErrorIs(t, err, blockdev.ErrBadIndex)
}

func Test_Unbind_Removes_By_Position_And_Renumbers(t *testing.T) {
	t.Parallel()

	registry := blockdev.NewRegistry(nil)
	t.Cleanup(registry.Close)

	for i := 1; i <= 3; i++ {
		_, err := registry.Bind(i, blockdev.NewMemDevice(1<<20), "mem", lsmap.BackendSkipList)
		require.NoError(t, err)
	}

	require.NoError(t, registry.Unbind(2))

	devices := registry.List()
	require.Len(t, devices, 2)
	require.Equal(t, "lsvbd1", devices[0].Name)
	require.Equal(t, "lsvbd3", devices[1].Name)

	// Positions are list positions, not bind indices.
	second, err := registry.ByIndex(2)
	require.NoError(t, err)
	require.Equal(t, "lsvbd3", second.Name)

	require.ErrorIs(t, registry.Unbind(5), blockdev.ErrBadIndex)
}

func Test_Close_Unbinds_Everything(t *testing.T) {
	t.Parallel()

	registry := blockdev.NewRegistry(nil)

	for i := 1; i <= 3; i++ {
		_, err := registry.Bind(i, blockdev.NewMemDevice(1<<20), "mem", lsmap.BackendHashTable)
		require.NoError(t, err)
	}

	registry.Close()

	require.Empty(t, registry.List())
}
