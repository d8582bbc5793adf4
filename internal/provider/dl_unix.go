//go:build cgo && unix

package provider

/*
#cgo linux LDFLAGS: -ldl
#include <dlfcn.h>
#include <stdlib.h>

struct LoadKey_return {
	int err;
	int loadedPrivateKeys;
};

typedef int                   UnlockKey_t(char *fingerprint, char *password, char *result, int resultLen);
typedef struct LoadKey_return LoadKey_t(char *keyData, char *result, int resultLen);
typedef int                   VerifySignature_t(char *data, int dataLen, char *signature, char *result, int resultLen);
typedef int                   VerifyBase64DataSignature_t(char *b64data, char *signature, char *result, int resultLen);
typedef int                   SignData_t(char *data, int dataLen, char *fingerprint, char *result, int resultLen);
typedef int                   SignBase64Data_t(char *b64data, char *fingerprint, char *result, int resultLen);
typedef int                   GetKeyFingerprints_t(char *keyData, char *result, int resultLen);
typedef int                   ChangeKeyPassword_t(char *keyData, char *currentPassword, char *newPassword, char *result, int resultLen);
typedef int                   GetPublicKey_t(char *fingerprint, char *result, int resultLen);
typedef int                   GenerateKey_t(char *password, char *identifier, int bits, char *result, int resultLen);

// Go cannot call C function pointers directly, so every slot goes through
// one of these trampolines.

static int call_unlock_key(void *fn, char *fingerprint, char *password, char *result, int resultLen) {
	return ((UnlockKey_t *)fn)(fingerprint, password, result, resultLen);
}

static struct LoadKey_return call_load_key(void *fn, char *keyData, char *result, int resultLen) {
	return ((LoadKey_t *)fn)(keyData, result, resultLen);
}

static int call_verify_signature(void *fn, char *data, int dataLen, char *signature, char *result, int resultLen) {
	return ((VerifySignature_t *)fn)(data, dataLen, signature, result, resultLen);
}

static int call_verify_b64_signature(void *fn, char *b64data, char *signature, char *result, int resultLen) {
	return ((VerifyBase64DataSignature_t *)fn)(b64data, signature, result, resultLen);
}

static int call_sign_data(void *fn, char *data, int dataLen, char *fingerprint, char *result, int resultLen) {
	return ((SignData_t *)fn)(data, dataLen, fingerprint, result, resultLen);
}

static int call_sign_b64_data(void *fn, char *b64data, char *fingerprint, char *result, int resultLen) {
	return ((SignBase64Data_t *)fn)(b64data, fingerprint, result, resultLen);
}

static int call_get_key_fingerprints(void *fn, char *keyData, char *result, int resultLen) {
	return ((GetKeyFingerprints_t *)fn)(keyData, result, resultLen);
}

static int call_change_key_password(void *fn, char *keyData, char *currentPassword, char *newPassword, char *result, int resultLen) {
	return ((ChangeKeyPassword_t *)fn)(keyData, currentPassword, newPassword, result, resultLen);
}

static int call_get_public_key(void *fn, char *fingerprint, char *result, int resultLen) {
	return ((GetPublicKey_t *)fn)(fingerprint, result, resultLen);
}

static int call_generate_key(void *fn, char *password, char *identifier, int bits, char *result, int resultLen) {
	return ((GenerateKey_t *)fn)(password, identifier, bits, result, resultLen);
}
*/
import "C"

import (
	"fmt"
	"unsafe"
)

// cstrings tracks C strings allocated for a single call. Arguments are
// checked with checkCStrings first: C.CString would cut them at a NUL.
type cstrings []*C.char

func (c *cstrings) add(s string) *C.char {
	p := C.CString(s)
	*c = append(*c, p)
	return p
}

func (c cstrings) free() {
	for _, p := range c {
		C.free(unsafe.Pointer(p))
	}
}

// cbytes returns a C view of a Go byte slice. The provider only uses the
// memory for the duration of the call.
func cbytes(b []byte) (*C.char, C.int) {
	if len(b) == 0 {
		return nil, 0
	}
	return (*C.char)(unsafe.Pointer(&b[0])), C.int(len(b))
}

func openNative(path string) (Table, error) {
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))

	handle := C.dlopen(cpath, C.RTLD_LAZY)
	if handle == nil {
		return Table{}, fmt.Errorf("dlopen %s: %s", path, C.GoString(C.dlerror()))
	}
	// The library is never closed: its functions stay referenced by the
	// handle for the rest of the process.
	return bindNative(handle), nil
}

func dlsym(handle unsafe.Pointer, name string) unsafe.Pointer {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	return C.dlsym(handle, cname)
}

func bindNative(handle unsafe.Pointer) Table {
	var t Table

	if fn := dlsym(handle, SymUnlockKey); fn != nil {
		t.UnlockKey = func(fingerprint, password string, result []byte) int32 {
			if err := checkCStrings(fingerprint, password); err != nil {
				return WriteError(result, err.Error())
			}
			var cs cstrings
			defer cs.free()
			buf, n := cbytes(result)
			return int32(C.call_unlock_key(fn, cs.add(fingerprint), cs.add(password), buf, n))
		}
	}

	if fn := dlsym(handle, SymLoadKey); fn != nil {
		t.LoadKey = func(keyData string, result []byte) LoadKeyReturn {
			if err := checkCStrings(keyData); err != nil {
				return LoadKeyReturn{Status: WriteError(result, err.Error())}
			}
			var cs cstrings
			defer cs.free()
			buf, n := cbytes(result)
			r := C.call_load_key(fn, cs.add(keyData), buf, n)
			return LoadKeyReturn{Status: int32(r.err), LoadedPrivateKeys: int32(r.loadedPrivateKeys)}
		}
	}

	if fn := dlsym(handle, SymVerifySignature); fn != nil {
		t.VerifySignature = func(data []byte, signature string, result []byte) int32 {
			if err := checkCStrings(signature); err != nil {
				return WriteError(result, err.Error())
			}
			var cs cstrings
			defer cs.free()
			d, dn := cbytes(data)
			buf, n := cbytes(result)
			return int32(C.call_verify_signature(fn, d, dn, cs.add(signature), buf, n))
		}
	}

	if fn := dlsym(handle, SymVerifyBase64DataSignature); fn != nil {
		t.VerifyBase64DataSignature = func(b64data, signature string, result []byte) int32 {
			if err := checkCStrings(b64data, signature); err != nil {
				return WriteError(result, err.Error())
			}
			var cs cstrings
			defer cs.free()
			buf, n := cbytes(result)
			return int32(C.call_verify_b64_signature(fn, cs.add(b64data), cs.add(signature), buf, n))
		}
	}

	if fn := dlsym(handle, SymSignData); fn != nil {
		t.SignData = func(data []byte, fingerprint string, result []byte) int32 {
			if err := checkCStrings(fingerprint); err != nil {
				return WriteError(result, err.Error())
			}
			var cs cstrings
			defer cs.free()
			d, dn := cbytes(data)
			buf, n := cbytes(result)
			return int32(C.call_sign_data(fn, d, dn, cs.add(fingerprint), buf, n))
		}
	}

	if fn := dlsym(handle, SymSignBase64Data); fn != nil {
		t.SignBase64Data = func(b64data, fingerprint string, result []byte) int32 {
			if err := checkCStrings(b64data, fingerprint); err != nil {
				return WriteError(result, err.Error())
			}
			var cs cstrings
			defer cs.free()
			buf, n := cbytes(result)
			return int32(C.call_sign_b64_data(fn, cs.add(b64data), cs.add(fingerprint), buf, n))
		}
	}

	if fn := dlsym(handle, SymGetKeyFingerprints); fn != nil {
		t.GetKeyFingerprints = func(keyData string, result []byte) int32 {
			if err := checkCStrings(keyData); err != nil {
				return WriteError(result, err.Error())
			}
			var cs cstrings
			defer cs.free()
			buf, n := cbytes(result)
			return int32(C.call_get_key_fingerprints(fn, cs.add(keyData), buf, n))
		}
	}

	if fn := dlsym(handle, SymChangeKeyPassword); fn != nil {
		t.ChangeKeyPassword = func(keyData, currentPassword, newPassword string, result []byte) int32 {
			if err := checkCStrings(keyData, currentPassword, newPassword); err != nil {
				return WriteError(result, err.Error())
			}
			var cs cstrings
			defer cs.free()
			buf, n := cbytes(result)
			return int32(C.call_change_key_password(fn, cs.add(keyData), cs.add(currentPassword), cs.add(newPassword), buf, n))
		}
	}

	if fn := dlsym(handle, SymGetPublicKey); fn != nil {
		t.GetPublicKey = func(fingerprint string, result []byte) int32 {
			if err := checkCStrings(fingerprint); err != nil {
				return WriteError(result, err.Error())
			}
			var cs cstrings
			defer cs.free()
			buf, n := cbytes(result)
			return int32(C.call_get_public_key(fn, cs.add(fingerprint), buf, n))
		}
	}

	if fn := dlsym(handle, SymGenerateKey); fn != nil {
		t.GenerateKey = func(password, identifier string, bits int32, result []byte) int32 {
			if err := checkCStrings(password, identifier); err != nil {
				return WriteError(result, err.Error())
			}
			var cs cstrings
			defer cs.free()
			buf, n := cbytes(result)
			return int32(C.call_generate_key(fn, cs.add(password), cs.add(identifier), C.int(bits), buf, n))
		}
	}

	return t
}
