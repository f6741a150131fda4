package media

import (
	"testing"

	"github.com/hack-pad/hackpadfs"
	"github.com/hack-pad/hackpadfs/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	fs, err := mem.NewFS()
	require.NoError(t, err)
	s, err := NewStore(fs, "media/blobs")
	require.NoError(t, err)
	return s
}

func wav() []byte {
	return append([]byte("RIFF\x24\x00\x00\x00WAVEfmt "), make([]byte, 32)...)
}

func TestPutReadRemove(t *testing.T) {
	s := newTestStore(t)

	blob, err := s.Put("elicitation-01", "", wav())
	require.NoError(t, err)
	assert.NotEmpty(t, blob.Key)
	assert.Equal(t, "audio/wave", blob.MIMEType)
	assert.Equal(t, int64(len(wav())), blob.Size)
	assert.Equal(t, Checksum(wav()), blob.Checksum)

	data, err := s.Read(blob.Key)
	require.NoError(t, err)
	assert.Equal(t, wav(), data)

	keys, err := s.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{blob.Key}, keys)

	require.NoError(t, s.Remove(blob.Key))
	require.NoError(t, s.Remove(blob.Key))
	_, err = s.Read(blob.Key)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPutKeepsGivenType(t *testing.T) {
	s := newTestStore(t)
	blob, err := s.Put("notes.bin", "video/mp4", []byte{0, 1, 2})
	require.NoError(t, err)
	assert.Equal(t, "video/mp4", blob.MIMEType)

	blob, err = s.Put("notebook.pdf", "", []byte("%PDF-1.4"))
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", blob.MIMEType)
}

func TestVerify(t *testing.T) {
	s := newTestStore(t)
	blob, err := s.Put("a", "audio/wav", wav())
	require.NoError(t, err)

	file := blob.MediaFile()
	assert.Equal(t, blob.Key, file.BlobKey)
	assert.Equal(t, "a", file.Name)
	require.NoError(t, s.VerifyFile(file))

	require.NoError(t, hackpadfs.WriteFullFile(s.FS, s.path(blob.Key), []byte("tampered"), 0644))
	assert.ErrorIs(t, s.Verify(blob.Key, blob.Checksum), ErrChecksum)
}

func TestKeysRejectEscapes(t *testing.T) {
	s := newTestStore(t)
	for _, key := range []string{"", "..", "../x", "a/b"} {
		_, err := s.Read(key)
		assert.ErrorIs(t, err, ErrNotFound, key)
	}
}

func TestBlobDocument(t *testing.T) {
	doc := Blob{Key: "k", Name: "scan.pdf", MIMEType: "application/pdf"}.Document()
	assert.Equal(t, "scan.pdf", doc.Title)
	assert.Equal(t, "k", doc.BlobKey)
}
