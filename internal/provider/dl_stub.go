//go:build !windows && !(cgo && unix)

package provider

// Without cgo there is no dlopen; only in-process providers can be used.
func openNative(path string) (Table, error) {
	return Table{}, ErrDynamicLoadUnsupported
}
