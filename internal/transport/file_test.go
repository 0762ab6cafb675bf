package transport

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadFileHappyPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "artifact.bin")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	buf, err := LoadFile(path, FileOptions{})
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf))
}

func TestLoadFileRejectsEmptyPath(t *testing.T) {
	_, err := LoadFile("", FileOptions{})
	require.Error(t, err)
	var terr *Error
	require.ErrorAs(t, err, &terr)
	require.Equal(t, CodePathInvalid, terr.Code)
}

func TestLoadFileRejectsNulByte(t *testing.T) {
	_, err := LoadFile("foo\x00bar", FileOptions{})
	require.Error(t, err)
	var terr *Error
	require.ErrorAs(t, err, &terr)
	require.Equal(t, CodePathInvalid, terr.Code)
}

func TestLoadFileRejectsTraversal(t *testing.T) {
	_, err := LoadFile("../etc/passwd", FileOptions{})
	require.Error(t, err)
	var terr *Error
	require.ErrorAs(t, err, &terr)
	require.Equal(t, CodePathInvalid, terr.Code)
}

func TestLoadFileRejectsOutOfScope(t *testing.T) {
	allowed := t.TempDir()
	outside := t.TempDir()
	path := filepath.Join(outside, "artifact.bin")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := LoadFile(path, FileOptions{AllowedDirectory: allowed})
	require.Error(t, err)
	var terr *Error
	require.ErrorAs(t, err, &terr)
	require.Equal(t, CodePathOutOfScope, terr.Code)
}

func TestLoadFileEnforcesMaxBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.bin")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("a", 10)), 0o644))

	_, err := LoadFile(path, FileOptions{MaxBytes: 5})
	require.Error(t, err)
}

func TestLoadFileWithinAllowedDirectory(t *testing.T) {
	allowed := t.TempDir()
	path := filepath.Join(allowed, "artifact.bin")
	require.NoError(t, os.WriteFile(path, []byte("ok"), 0o644))

	buf, err := LoadFile(path, FileOptions{AllowedDirectory: allowed})
	require.NoError(t, err)
	require.Equal(t, "ok", string(buf))
}
