package blockdev_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/qrutyy/ls-bdd/pkg/blockdev"
)

func Test_MemDevice_Reads_Back_What_Was_Written(t *testing.T) {
	t.Parallel()

	dev := blockdev.NewMemDevice(1 << 20)

	payload := []byte("sectors all the way down")
	_, err := dev.WriteAt(payload, 4096)
	require.NoError(t, err)

	got := make([]byte, len(payload))
	_, err = dev.ReadAt(got, 4096)
	require.NoError(t, err)
	require.True(t, bytes.Equal(payload, got))
}

func Test_MemDevice_Rejects_Writes_Beyond_Capacity(t *testing.T) {
	t.Parallel()

	dev := blockdev.NewMemDevice(1024)

	_, err := dev.WriteAt(make([]byte, 512), 1024)
	require.Error(t, err)
}

func Test_OpenBacking_Parses_Mem_Paths(t *testing.T) {
	t.Parallel()

	dev, err := blockdev.OpenBacking("mem:4MB")
	require.NoError(t, err)

	t.Cleanup(func() { _ = dev.Close() })

	require.Equal(t, int64(4<<20), dev.Size())
}

func Test_OpenBacking_Rejects_Bad_Mem_Size(t *testing.T) {
	t.Parallel()

	_, err := blockdev.OpenBacking("mem:not-a-size")
	require.Error(t, err)
}

func Test_OpenBacking_File_ZeroFills_Past_EOF(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "backing.img")
	require.NoError(t, os.WriteFile(path, []byte("short"), 0o600))

	dev, err := blockdev.OpenBacking(path)
	require.NoError(t, err)

	t.Cleanup(func() { _ = dev.Close() })

	got := make([]byte, 16)
	_, err = dev.ReadAt(got, 0)
	require.NoError(t, err)

	want := append([]byte("short"), make([]byte, 11)...)
	require.True(t, bytes.Equal(want, got), "reads past the written extent read zeroes")
}

func Test_OpenBacking_Missing_File_Errors(t *testing.T) {
	t.Parallel()

	_, err := blockdev.OpenBacking(filepath.Join(t.TempDir(), "nope.img"))
	require.Error(t, err)
}
