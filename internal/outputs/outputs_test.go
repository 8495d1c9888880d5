package outputs

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Norgate-AV/outcache/internal/archive"
	"github.com/Norgate-AV/outcache/internal/property"
)

func exists(t *testing.T, fs afero.Fs, path string) bool {
	t.Helper()

	ok, err := afero.Exists(fs, path)
	require.NoError(t, err)

	return ok
}

func TestPrepare_Directory(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, fs afero.Fs)
	}{
		{"missing", func(*testing.T, afero.Fs) {}},
		{"stale content", func(t *testing.T, fs afero.Fs) {
			require.NoError(t, afero.WriteFile(fs, "/work/out/old.txt", []byte("old"), 0o644))
			require.NoError(t, afero.WriteFile(fs, "/work/out/sub/deep.txt", []byte("old"), 0o644))
		}},
		{"file in the way", func(t *testing.T, fs afero.Fs) {
			require.NoError(t, afero.WriteFile(fs, "/work/out", []byte("not a dir"), 0o644))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			tt.setup(t, fs)

			err := NewPreparer(fs).Prepare(property.Spec{Name: "out", Type: property.Directory, Root: "/work/out"})
			require.NoError(t, err)

			isDir, err := afero.IsDir(fs, "/work/out")
			require.NoError(t, err)
			assert.True(t, isDir)

			empty, err := afero.IsEmpty(fs, "/work/out")
			require.NoError(t, err)
			assert.True(t, empty)
		})
	}
}

func TestPrepare_File(t *testing.T) {
	t.Run("parent missing", func(t *testing.T) {
		fs := afero.NewMemMapFs()

		require.NoError(t, NewPreparer(fs).Prepare(property.Spec{Name: "bin", Type: property.File, Root: "/work/build/app"}))
		assert.True(t, exists(t, fs, "/work/build"))
		assert.False(t, exists(t, fs, "/work/build/app"))
	})

	t.Run("stale file", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fs, "/work/build/app", []byte("old"), 0o755))
		require.NoError(t, afero.WriteFile(fs, "/work/build/keep", []byte("keep"), 0o644))

		require.NoError(t, NewPreparer(fs).Prepare(property.Spec{Name: "bin", Type: property.File, Root: "/work/build/app"}))
		assert.False(t, exists(t, fs, "/work/build/app"))
		assert.True(t, exists(t, fs, "/work/build/keep"), "siblings are left alone")
	})

	t.Run("directory in the way", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, fs.MkdirAll("/work/build/app/inner", 0o755))

		require.NoError(t, NewPreparer(fs).Prepare(property.Spec{Name: "bin", Type: property.File, Root: "/work/build/app"}))
		assert.False(t, exists(t, fs, "/work/build/app"))
	})
}

func TestPrepare_Failure(t *testing.T) {
	base := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(base, "/work/out/old.txt", []byte("old"), 0o644))
	fs := afero.NewReadOnlyFs(base)

	specs := []property.Spec{
		{Name: "out", Type: property.Directory, Root: "/work/out"},
		{Name: "never", Type: property.Directory, Root: "/work/never"},
	}

	err := NewPreparer(fs).PrepareAll(specs)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPreparationFailed)
	assert.Contains(t, err.Error(), `"out"`)
	assert.True(t, exists(t, base, "/work/out/old.txt"))
}

func TestRemover_RemoveAll(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/work/out/a.txt", []byte("a"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/work/log", []byte("log"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/work/unrelated", []byte("keep"), 0o644))

	journal := &archive.Journal{}
	journal.Record("/work/out/a.txt")

	specs := []property.Spec{
		{Name: "out", Type: property.Directory, Root: "/work/out"},
		{Name: "log", Type: property.File, Root: "/work/log"},
		{Name: "gone", Type: property.File, Root: "/work/gone"},
	}

	require.NoError(t, NewRemover(fs).RemoveAll(specs, journal))
	assert.False(t, exists(t, fs, "/work/out"))
	assert.False(t, exists(t, fs, "/work/log"))
	assert.True(t, exists(t, fs, "/work/unrelated"))
	assert.Equal(t, 0, journal.Len())
}

func TestRemover_ReportsEveryFailure(t *testing.T) {
	base := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(base, "/work/out/a.txt", []byte("a"), 0o644))
	require.NoError(t, afero.WriteFile(base, "/work/log", []byte("log"), 0o644))

	specs := []property.Spec{
		{Name: "out", Type: property.Directory, Root: "/work/out"},
		{Name: "log", Type: property.File, Root: "/work/log"},
	}

	err := NewRemover(afero.NewReadOnlyFs(base)).RemoveAll(specs, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"out"`)
	assert.Contains(t, err.Error(), `"log"`)
}

func TestUnsetRootIsLeftAlone(t *testing.T) {
	// Any write to a read-only fs fails, so touching it would show up as an error
	fs := afero.NewReadOnlyFs(afero.NewMemMapFs())
	specs := []property.Spec{
		{Name: "report", Type: property.File, Optional: true},
		{Name: "logs", Type: property.Directory, Optional: true},
	}

	assert.NoError(t, NewPreparer(fs).PrepareAll(specs))
	assert.NoError(t, NewRemover(fs).RemoveAll(specs, nil))
}
