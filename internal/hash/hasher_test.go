package hash

import (
	"crypto/md5"
	"os"
	"path/filepath"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, content, 0644))
	return path
}

func TestHashFile_SmallFile(t *testing.T) {
	tmpDir := t.TempDir()
	content := []byte("Hello, World!")
	testFile := writeFile(t, tmpDir, "test.txt", content)

	fp, err := HashFile(testFile, MD5)
	require.NoError(t, err)

	expected := md5.Sum(content)
	assert.Equal(t, Fingerprint(expected), fp)
}

func TestHashFile_LargeFile(t *testing.T) {
	tmpDir := t.TempDir()

	// 1MB, larger than the streaming buffer
	data := make([]byte, 1024*1024)
	for i := range data {
		data[i] = byte(i % 256)
	}
	testFile := writeFile(t, tmpDir, "large.bin", data)

	for _, name := range Algorithms() {
		algo := Algorithm(name)
		fromFile, err := HashFile(testFile, algo)
		require.NoError(t, err, name)

		fromBytes, err := HashBytes(data, algo)
		require.NoError(t, err, name)

		assert.Equal(t, fromBytes, fromFile, "algorithm %s", name)
	}
}

func TestHashFile_SameContentSameFingerprint(t *testing.T) {
	tmpDir := t.TempDir()
	a := writeFile(t, tmpDir, "a.txt", []byte("hello"))
	b := writeFile(t, tmpDir, "b.txt", []byte("hello"))
	c := writeFile(t, tmpDir, "c.txt", []byte("hellO"))

	for _, name := range Algorithms() {
		algo := Algorithm(name)
		ha, err := HashFile(a, algo)
		require.NoError(t, err)
		hb, err := HashFile(b, algo)
		require.NoError(t, err)
		hc, err := HashFile(c, algo)
		require.NoError(t, err)

		assert.Equal(t, ha, hb, "algorithm %s", name)
		assert.NotEqual(t, ha, hc, "algorithm %s", name)
	}
}

func TestHashFile_AlgorithmsDiffer(t *testing.T) {
	tmpDir := t.TempDir()
	path := writeFile(t, tmpDir, "f.txt", []byte("same bytes"))

	seen := make(map[Fingerprint]string)
	for _, name := range Algorithms() {
		fp, err := HashFile(path, Algorithm(name))
		require.NoError(t, err)
		if other, ok := seen[fp]; ok {
			t.Errorf("%s and %s produced the same fingerprint", name, other)
		}
		seen[fp] = name
	}
}

func TestHashFile_NonExistent(t *testing.T) {
	_, err := HashFile("/nonexistent/file.txt", DefaultAlgorithm)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestHashFile_EmptyFile(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := writeFile(t, tmpDir, "empty.txt", nil)

	fp, err := HashFile(testFile, DefaultAlgorithm)
	require.NoError(t, err)
	assert.NotEqual(t, Fingerprint{}, fp)
}

func TestHashFile_UnknownAlgorithm(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := writeFile(t, tmpDir, "f.txt", []byte("x"))

	_, err := HashFile(testFile, Algorithm("crc7"))
	assert.Error(t, err)
}

func TestParseAlgorithm(t *testing.T) {
	algo, err := ParseAlgorithm("")
	require.NoError(t, err)
	assert.Equal(t, DefaultAlgorithm, algo)

	algo, err = ParseAlgorithm(" MD5 ")
	require.NoError(t, err)
	assert.Equal(t, MD5, algo)

	_, err = ParseAlgorithm("sha1")
	assert.Error(t, err)
}

func TestFingerprint_TextRoundTrip(t *testing.T) {
	fp, err := HashBytes([]byte("hello"), DefaultAlgorithm)
	require.NoError(t, err)

	text, err := fp.MarshalText()
	require.NoError(t, err)
	assert.Len(t, text, Size*2)

	var decoded Fingerprint
	require.NoError(t, decoded.UnmarshalText(text))
	assert.Equal(t, fp, decoded)

	_, err = ParseFingerprint("abcd")
	assert.Error(t, err)
	_, err = ParseFingerprint("zz")
	assert.Error(t, err)
}

func TestXXHashFunc(t *testing.T) {
	data := []byte("test data")

	hashBytes, err := XXHashFunc(data)
	require.NoError(t, err)
	assert.Len(t, hashBytes, 8)

	hashBytes2, err := XXHashFunc(data)
	require.NoError(t, err)
	assert.Equal(t, hashBytes, hashBytes2)

	h := xxhash.New()
	_, _ = h.Write(data)
	assert.Equal(t, h.Sum(nil), hashBytes)
}
