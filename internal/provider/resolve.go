package provider

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

var (
	ErrProviderNotFound       = errors.New("provider library not found")
	ErrDynamicLoadUnsupported = errors.New("dynamic library loading is not supported in this build")
	ErrSymbolNotBound         = errors.New("symbol not bound")
)

const is64Bit = strconv.IntSize == 64

// NotFoundError reports every candidate that was tried and why it failed.
type NotFoundError struct {
	Dir    string
	Tried  []string
	Causes []error
}

func (e *NotFoundError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "no provider library in %q (tried %s)", e.Dir, strings.Join(e.Tried, ", "))
	if cause := errors.Join(e.Causes...); cause != nil {
		b.WriteString(": ")
		b.WriteString(strings.ReplaceAll(cause.Error(), "\n", "; "))
	}
	return b.String()
}

func (e *NotFoundError) Unwrap() error { return ErrProviderNotFound }

// Candidates returns the library file names to try, in order, for a process
// of the given word size. The list is not filtered by operating system:
// loading a foreign format simply fails and the next name is tried.
func Candidates(is64 bool) []string {
	if is64 {
		return []string{"chevron.so", "chevron.dylib", "chevron.dll"}
	}
	return []string{"chevron32.so", "chevron.dylib", "chevron32.dll"}
}

// loadLibrary opens and binds one library file. Replaced in tests.
var loadLibrary = openNative

// Resolve loads the first candidate library found in dir and binds its
// symbols. Symbols the library does not export are left nil in the table.
func Resolve(dir string) (*Handle, error) {
	nf := &NotFoundError{Dir: dir}
	for _, name := range Candidates(is64Bit) {
		path := filepath.Join(dir, name)
		nf.Tried = append(nf.Tried, name)

		table, err := loadLibrary(path)
		if err != nil {
			Logger().Debug("provider candidate rejected", zap.String("path", path), zap.Error(err))
			nf.Causes = append(nf.Causes, err)
			if errors.Is(err, ErrDynamicLoadUnsupported) {
				break
			}
			continue
		}

		if missing := table.Missing(); len(missing) > 0 {
			Logger().Warn("provider library is missing symbols",
				zap.String("path", path),
				zap.Strings("symbols", missing),
			)
		}
		Logger().Info("provider library loaded", zap.String("path", path))
		return NewHandle(path, table), nil
	}

	Logger().Warn("provider library not found", zap.String("dir", dir), zap.Strings("tried", nf.Tried))
	return nil, nf
}
