package configio

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "github.com/wg-federation/wg-federation/internal/foundation/errors"
)

type doc struct {
	Name  string   `yaml:"name" json:"name"`
	Ports []int    `yaml:"ports" json:"ports"`
	Tags  []string `yaml:"tags,omitempty" json:"tags,omitempty"`
}

// prefixTransformer tags the payload so tests can observe ordering.
type prefixTransformer struct{ prefix string }

func (p prefixTransformer) Name() string { return p.prefix }
func (p prefixTransformer) Encode(b []byte) ([]byte, error) {
	return append([]byte(p.prefix+"\n"), b...), nil
}
func (p prefixTransformer) Decode(b []byte) ([]byte, error) {
	rest, ok := bytes.CutPrefix(b, []byte(p.prefix+"\n"))
	if !ok {
		return nil, errors.New("missing prefix " + p.prefix)
	}
	return rest, nil
}

func TestFormatForPath(t *testing.T) {
	assert.Equal(t, FormatYAML, FormatForPath("/var/lib/wg-federation/state.yaml"))
	assert.Equal(t, FormatYAML, FormatForPath("state.YML"))
	assert.Equal(t, FormatJSON, FormatForPath("state.json"))
	assert.Equal(t, FormatText, FormatForPath("notes.txt"))
	assert.Equal(t, Format(""), FormatForPath("state"))
	assert.Equal(t, Format(""), FormatForPath("wg0.conf"))
}

func TestSniff(t *testing.T) {
	assert.Equal(t, FormatJSON, Sniff([]byte(` {"name": "x"}`)))
	assert.Equal(t, FormatYAML, Sniff([]byte("name: x\nports: [1]\n")))
	assert.Equal(t, FormatText, Sniff([]byte("just words")))
	assert.Equal(t, FormatText, Sniff(nil))
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("YML")
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, f)
	_, err = ParseFormat("toml")
	require.Error(t, err)
}

func TestCodec_SaveLoadThroughLockedHandle(t *testing.T) {
	for _, format := range []Format{FormatYAML, FormatJSON} {
		t.Run(string(format), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "state."+string(format))
			f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
			require.NoError(t, err)
			defer f.Close()

			c := NewCodecForPath(path)
			long := doc{Name: "a-much-longer-name-than-the-next-one", Ports: []int{1, 2, 3}, Tags: []string{"x", "y"}}
			require.NoError(t, c.Save(f, long))

			short := doc{Name: "b", Ports: []int{4}}
			require.NoError(t, c.Save(f, short))

			var got doc
			require.NoError(t, c.Load(f, &got))
			assert.Equal(t, short, got, "second save must fully replace the first")

			var again doc
			require.NoError(t, c.LoadPath(path, &again))
			assert.Equal(t, short, again)
		})
	}
}

func TestCodec_SniffsWhenExtensionUnknown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state")
	require.NoError(t, os.WriteFile(path, []byte(`{"name":"sniffed","ports":[7]}`), 0o600))

	var got doc
	require.NoError(t, NewCodecForPath(path).LoadPath(path, &got))
	assert.Equal(t, "sniffed", got.Name)
}

func TestCodec_RejectsUnknownFields(t *testing.T) {
	c := NewCodec(FormatYAML)
	var got doc
	err := c.Decode([]byte("name: x\nbogus: 1\n"), &got)
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryState))

	err = NewCodec(FormatJSON).Decode([]byte(`{"name":"x","bogus":1}`), &got)
	require.Error(t, err)
}

func TestCodec_EmptyFile(t *testing.T) {
	var got doc
	err := NewCodec(FormatYAML).Decode([]byte("  \n"), &got)
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryState))
	assert.ErrorIs(t, err, ErrEmpty)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestCodec_SaveShrinksContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.yaml")
	c := NewCodecForPath(path)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	require.NoError(t, c.Save(f, doc{Name: "a-rather-long-name", Tags: []string{"one", "two", "three"}}))
	require.NoError(t, c.Save(f, doc{Name: "b"}))

	var got doc
	require.NoError(t, c.LoadPath(path, &got))
	assert.Equal(t, "b", got.Name)
	assert.Empty(t, got.Tags)
}

func TestCodec_TransformerOrder(t *testing.T) {
	c := NewCodec(FormatYAML, prefixTransformer{"ENC"}, prefixTransformer{"SIG"})
	data, err := c.Encode(doc{Name: "x"})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("SIG\nENC\n")), "last transformer is outermost")

	var got doc
	require.NoError(t, c.Decode(data, &got))
	assert.Equal(t, "x", got.Name)

	_, err = NewCodec(FormatYAML, prefixTransformer{"OTHER"}).Encode(doc{})
	require.NoError(t, err)
	require.Error(t, NewCodec(FormatYAML, prefixTransformer{"OTHER"}).Decode(data, &got))
}

func TestCodec_LoadPathMissing(t *testing.T) {
	var got doc
	err := NewCodec(FormatYAML).LoadPath(filepath.Join(t.TempDir(), "nope.yaml"), &got)
	assert.True(t, os.IsNotExist(err))
}

func TestTextFormat(t *testing.T) {
	c := NewCodec(FormatText)
	data, err := c.Encode("[Interface]\nAddress = 10.0.0.1/24\n")
	require.NoError(t, err)

	var s string
	require.NoError(t, c.Decode(data, &s))
	assert.Equal(t, "[Interface]\nAddress = 10.0.0.1/24\n", s)

	_, err = c.Encode(doc{})
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))
}

func TestSavePathAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "out.json")
	require.NoError(t, NewCodecForPath(path).SavePath(path, doc{Name: "n"}, 0o640))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file must not be left behind")
}
