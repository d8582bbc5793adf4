package provider

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteResultTerminates(t *testing.T) {
	buf := NewBuffer()
	WriteResult(buf, "hello")

	assert.Equal(t, "hello", ReadResult(buf))
	assert.Equal(t, byte(0), buf[5])
}

func TestWriteResultZeroFillsPreviousContent(t *testing.T) {
	buf := NewBuffer()
	WriteResult(buf, "a much longer first message")
	WriteResult(buf, "short")

	assert.Equal(t, "short", ReadResult(buf))
	for i := 5; i < 64; i++ {
		require.Zerof(t, buf[i], "byte %d not cleared", i)
	}
}

func TestMaximumPayloadIsNotTruncated(t *testing.T) {
	payload := strings.Repeat("x", BufferSize-1)
	buf := NewBuffer()
	WriteResult(buf, payload)

	got := ReadResult(buf)
	assert.Len(t, got, BufferSize-1)
	assert.Equal(t, payload, got)
}

func TestOversizedPayloadIsClipped(t *testing.T) {
	buf := NewBuffer()
	WriteResult(buf, strings.Repeat("y", BufferSize*2))

	assert.Len(t, ReadResult(buf), BufferSize-1)
	assert.Equal(t, byte(0), buf[BufferSize-1])
}

func TestReadResultWithoutTerminator(t *testing.T) {
	buf := []byte("abc")
	assert.Equal(t, "abc", ReadResult(buf))
}

func TestWriteError(t *testing.T) {
	buf := NewBuffer()
	assert.Equal(t, StatusError, WriteError(buf, "bad password"))
	assert.Equal(t, "bad password", ReadResult(buf))
}

func TestCandidates(t *testing.T) {
	assert.Equal(t, []string{"chevron.so", "chevron.dylib", "chevron.dll"}, Candidates(true))
	assert.Equal(t, []string{"chevron32.so", "chevron.dylib", "chevron32.dll"}, Candidates(false))
}

func TestTableMissing(t *testing.T) {
	var table Table
	assert.Equal(t, Symbols, table.Missing())

	table.GetPublicKey = func(string, []byte) int32 { return StatusOK }
	assert.True(t, table.Bound(SymGetPublicKey))
	assert.False(t, table.Bound("NoSuchSymbol"))
	assert.Len(t, table.Missing(), len(Symbols)-1)
}

func stubLoader(t *testing.T, fn func(path string) (Table, error)) {
	t.Helper()
	orig := loadLibrary
	loadLibrary = fn
	t.Cleanup(func() { loadLibrary = orig })
}

func TestResolveFirstLoadableCandidateWins(t *testing.T) {
	var tried []string
	stubLoader(t, func(path string) (Table, error) {
		tried = append(tried, filepath.Base(path))
		if strings.HasSuffix(path, ".dylib") {
			return Table{GetPublicKey: func(string, []byte) int32 { return StatusOK }}, nil
		}
		return Table{}, errors.New("wrong format")
	})

	h, err := Resolve("/opt/chevron")
	require.NoError(t, err)

	want := Candidates(is64Bit)
	assert.Equal(t, want[:2], tried)
	assert.Equal(t, filepath.Join("/opt/chevron", "chevron.dylib"), h.Path())
	tbl := h.Table()
	assert.True(t, tbl.Bound(SymGetPublicKey))
	assert.Nil(t, tbl.UnlockKey)
}

func TestResolveReportsEveryCandidate(t *testing.T) {
	stubLoader(t, func(path string) (Table, error) {
		return Table{}, errors.New("no such file")
	})

	_, err := Resolve("/nowhere")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderNotFound)

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, Candidates(is64Bit), nf.Tried)
	assert.Len(t, nf.Causes, 3)
	assert.Contains(t, err.Error(), "/nowhere")
}

func TestResolveStopsWhenLoadingIsUnsupported(t *testing.T) {
	calls := 0
	stubLoader(t, func(path string) (Table, error) {
		calls++
		return Table{}, ErrDynamicLoadUnsupported
	})

	_, err := Resolve(t.TempDir())
	assert.ErrorIs(t, err, ErrProviderNotFound)
	assert.Equal(t, 1, calls)
}

func TestResolveEmptyDirectory(t *testing.T) {
	_, err := Resolve(t.TempDir())
	assert.ErrorIs(t, err, ErrProviderNotFound)
}

func TestResolveRejectsGarbageLibrary(t *testing.T) {
	dir := t.TempDir()
	for _, name := range Candidates(is64Bit) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("not a library"), 0o600))
	}

	_, err := Resolve(dir)
	assert.ErrorIs(t, err, ErrProviderNotFound)
}

func TestCheckCStrings(t *testing.T) {
	assert.NoError(t, checkCStrings("fingerprint", "", "pass word"))
	assert.EqualError(t, checkCStrings("ok", "pass\x00word"), "argument 1 contains a NUL byte")
	assert.EqualError(t, checkCStrings("\x00"), "argument 0 contains a NUL byte")
}
