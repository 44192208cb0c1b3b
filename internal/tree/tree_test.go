package tree

import (
	"bytes"
	"slices"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/meigma/vfstool/internal/index"
	"github.com/meigma/vfstool/pathkey"
)

func samplePaths() []string {
	return []string{
		"meshes/b.nif",
		"Meshes/a.nif",
		"meshes/X/c.nif",
		"textures/t.dds",
		"morrowind.esm",
	}
}

func TestBuild(t *testing.T) {
	t.Parallel()

	root := Build(VirtualLabel, samplePaths())

	assert.Equal(t, VirtualLabel, root.Name)
	assert.Equal(t, []string{"morrowind.esm"}, root.Files)
	require.Len(t, root.Dirs, 2)

	meshes := root.Dirs[0]
	assert.Equal(t, "Meshes", meshes.Name, "first path in folded order names the directory")
	assert.Equal(t, []string{"a.nif", "b.nif"}, meshes.Files)
	require.Len(t, meshes.Dirs, 1)
	assert.Equal(t, []string{"c.nif"}, meshes.Dirs[0].Files)

	assert.Equal(t, 5, root.Len())

	var walked []string
	root.Walk(func(p string) { walked = append(walked, p) })
	assert.Equal(t, []string{"morrowind.esm", "Meshes/a.nif", "Meshes/b.nif", "Meshes/X/c.nif", "textures/t.dds"}, walked)
}

func TestFromEntries_Layouts(t *testing.T) {
	t.Parallel()

	entries := []index.Entry{
		{Key: pathkey.MustNormalize("meshes/a.nif"), Origin: index.Loose(1, "/games/mw/Data Files/meshes/a.nif")},
		{Key: pathkey.MustNormalize("textures/t.dds"), Origin: index.Archived(0, 0, 0, "/games/mw/Data Files/Morrowind.bsa", "textures/t.dds")},
	}

	virtual := FromEntries(entries, LayoutVirtual)
	assert.Equal(t, VirtualLabel, virtual.Name)
	var got []string
	virtual.Walk(func(p string) { got = append(got, p) })
	assert.Equal(t, []string{"meshes/a.nif", "textures/t.dds"}, got)

	source := FromEntries(entries, LayoutSource)
	assert.Equal(t, SourceLabel, source.Name)
	got = nil
	source.Walk(func(p string) { got = append(got, p) })
	assert.Equal(t, []string{
		"games/mw/Data Files/meshes/a.nif",
		"games/mw/Data Files/Morrowind.bsa/textures/t.dds",
	}, got)
}

func TestEncode_JSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, Build(VirtualLabel, samplePaths()), JSON))

	want := `{
  "Data Files": {
    ".": [
      "morrowind.esm"
    ],
    "Meshes": {
      ".": [
        "a.nif",
        "b.nif"
      ],
      "X": {
        ".": [
          "c.nif"
        ]
      }
    },
    "textures": {
      ".": [
        "t.dds"
      ]
    }
  }
}
`
	assert.Equal(t, want, buf.String())
}

func TestEncode_YAML(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, Build(VirtualLabel, samplePaths()), YAML))

	assert.Contains(t, buf.String(), `".":`)

	var decoded map[string]map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	root := decoded[VirtualLabel]
	require.NotNil(t, root)
	assert.Equal(t, []any{"morrowind.esm"}, root[FilesKey])
	meshes, ok := root["Meshes"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"a.nif", "b.nif"}, meshes[FilesKey])
	assert.Contains(t, meshes, "X")
}

func TestEncode_TOML(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, Build(VirtualLabel, samplePaths()), TOML))

	var decoded map[string]map[string]any
	require.NoError(t, toml.Unmarshal(buf.Bytes(), &decoded))

	root := decoded[VirtualLabel]
	require.NotNil(t, root)
	assert.Equal(t, []any{"morrowind.esm"}, root[FilesKey])
	meshes, ok := root["Meshes"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"a.nif", "b.nif"}, meshes[FilesKey])
}

func TestEncode_TOMLFoldedOrder(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	root := Build("/", []string{"Textures/t.dds", "meshes/m.nif", "Data Files/x.esp"})
	require.NoError(t, Encode(&buf, root, TOML))

	out := buf.String()
	data := strings.Index(out, `["/"."Data Files"]`)
	meshes := strings.Index(out, `["/".meshes]`)
	textures := strings.Index(out, `["/".Textures]`)
	require.GreaterOrEqual(t, data, 0, out)
	assert.Less(t, data, meshes, out)
	assert.Less(t, meshes, textures, out)

	var decoded map[string]map[string]map[string]any
	require.NoError(t, toml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, []any{"t.dds"}, decoded["/"]["Textures"][FilesKey])
}

func TestEncode_Stable(t *testing.T) {
	t.Parallel()

	paths := samplePaths()
	for _, format := range []Format{JSON, YAML, TOML} {
		var first bytes.Buffer
		require.NoError(t, Encode(&first, Build(SourceLabel, paths), format))

		for range 5 {
			shuffled := slices.Clone(paths)
			slices.Reverse(shuffled)
			var again bytes.Buffer
			require.NoError(t, Encode(&again, Build(SourceLabel, shuffled), format))
			assert.Equal(t, first.String(), again.String(), format.String())
		}
	}
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	for _, f := range []Format{JSON, YAML, TOML} {
		got, err := ParseFormat(f.String())
		require.NoError(t, err)
		assert.Equal(t, f, got)
	}
	_, err := ParseFormat("xml")
	require.ErrorIs(t, err, ErrUnknownFormat)
}
