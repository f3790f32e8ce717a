package mib

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func buildSampleTree() *Object {
	root := NewObject(0, "")
	iso := NewObject(1, "iso")
	org := NewObject(3, "org")
	dod := NewObject(6, "dod")
	internet := NewObject(1, "internet")
	internet.Description = "the internet subtree"
	internet.Type = 1
	internet.Access = 2
	internet.Status = 1

	dod.AddChild(internet)
	org.AddChild(dod)
	iso.AddChild(org)
	root.AddChild(iso)
	return root
}

func TestWriteReadRoundTrip(t *testing.T) {
	require := require.New(t)
	root := buildSampleTree()
	path := filepath.Join(t.TempDir(), "sample.mib")

	ts := time.Unix(1700000000, 0)
	require.NoError(WriteToFile(path, root, 0, ts))

	loaded, err := ReadFromFile(path)
	require.NoError(err)
	require.Equal("iso", loaded.Children[0].Name)
	require.Equal(uint32(1), loaded.Children[0].OID)

	internet := loaded.Children[0].Children[0].Children[0]
	require.Equal("internet", internet.Name)
	require.Equal("the internet subtree", internet.Description)
	require.Equal(int8(1), internet.Type)
}

func TestSkipDescriptionsOmitsText(t *testing.T) {
	require := require.New(t)
	root := buildSampleTree()
	path := filepath.Join(t.TempDir(), "nodesc.mib")

	require.NoError(WriteToFile(path, root, SkipDescriptions, time.Now()))

	loaded, err := ReadFromFile(path)
	require.NoError(err)
	internet := loaded.Children[0].Children[0].Children[0]
	require.Empty(internet.Description)
}

func TestReadTimestampWithoutLoadingTree(t *testing.T) {
	require := require.New(t)
	root := buildSampleTree()
	path := filepath.Join(t.TempDir(), "ts.mib")
	ts := time.Unix(1650000000, 0)
	require.NoError(WriteToFile(path, root, 0, ts))

	got, err := ReadTimestamp(path)
	require.NoError(err)
	require.Equal(ts.Unix(), got.Unix())
}

func TestBadMagicRejected(t *testing.T) {
	require := require.New(t)
	path := filepath.Join(t.TempDir(), "bad.mib")
	require.NoError(os.WriteFile(path, []byte("not-a-mib-file-at-all"), 0644))

	_, err := ReadFromFile(path)
	require.ErrorIs(err, ErrBadHeader)
}

func TestWideOIDUsesDwordTag(t *testing.T) {
	require := require.New(t)
	root := NewObject(0, "")
	root.AddChild(NewObject(100000, "bigarc"))
	path := filepath.Join(t.TempDir(), "wide.mib")
	require.NoError(WriteToFile(path, root, 0, time.Now()))

	loaded, err := ReadFromFile(path)
	require.NoError(err)
	require.Equal(uint32(100000), loaded.Children[0].OID)
}
