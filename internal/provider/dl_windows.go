//go:build windows

package provider

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

func openNative(path string) (Table, error) {
	dll, err := windows.LoadDLL(path)
	if err != nil {
		return Table{}, fmt.Errorf("LoadLibrary %s: %w", path, err)
	}
	return bindNative(dll), nil
}

func bufPtr(b []byte) (uintptr, uintptr) {
	if len(b) == 0 {
		return 0, 0
	}
	return uintptr(unsafe.Pointer(&b[0])), uintptr(len(b))
}

// strPtrs converts call arguments to NUL terminated byte strings. Strings
// with embedded NULs cannot cross the C boundary.
func strPtrs(ss ...string) ([]*byte, error) {
	if err := checkCStrings(ss...); err != nil {
		return nil, err
	}
	out := make([]*byte, len(ss))
	for i, s := range ss {
		p, err := windows.BytePtrFromString(s)
		if err != nil {
			return nil, fmt.Errorf("argument %d contains a NUL byte", i)
		}
		out[i] = p
	}
	return out, nil
}

func bindNative(dll *windows.DLL) Table {
	var t Table
	find := func(name string) *windows.Proc {
		p, err := dll.FindProc(name)
		if err != nil {
			return nil
		}
		return p
	}

	if p := find(SymUnlockKey); p != nil {
		t.UnlockKey = func(fingerprint, password string, result []byte) int32 {
			s, err := strPtrs(fingerprint, password)
			if err != nil {
				return WriteError(result, err.Error())
			}
			buf, n := bufPtr(result)
			r, _, _ := p.Call(uintptr(unsafe.Pointer(s[0])), uintptr(unsafe.Pointer(s[1])), buf, n)
			return int32(r)
		}
	}

	if p := find(SymLoadKey); p != nil {
		t.LoadKey = func(keyData string, result []byte) LoadKeyReturn {
			s, err := strPtrs(keyData)
			if err != nil {
				return LoadKeyReturn{Status: WriteError(result, err.Error())}
			}
			buf, n := bufPtr(result)
			r1, r2, _ := p.Call(uintptr(unsafe.Pointer(s[0])), buf, n)
			// An 8 byte struct comes back packed in one register on 64-bit
			// targets and split across EAX:EDX on x86.
			if is64Bit {
				return LoadKeyReturn{Status: int32(r1), LoadedPrivateKeys: int32(uint64(r1) >> 32)}
			}
			return LoadKeyReturn{Status: int32(r1), LoadedPrivateKeys: int32(r2)}
		}
	}

	if p := find(SymVerifySignature); p != nil {
		t.VerifySignature = func(data []byte, signature string, result []byte) int32 {
			s, err := strPtrs(signature)
			if err != nil {
				return WriteError(result, err.Error())
			}
			d, dn := bufPtr(data)
			buf, n := bufPtr(result)
			r, _, _ := p.Call(d, dn, uintptr(unsafe.Pointer(s[0])), buf, n)
			return int32(r)
		}
	}

	if p := find(SymVerifyBase64DataSignature); p != nil {
		t.VerifyBase64DataSignature = func(b64data, signature string, result []byte) int32 {
			s, err := strPtrs(b64data, signature)
			if err != nil {
				return WriteError(result, err.Error())
			}
			buf, n := bufPtr(result)
			r, _, _ := p.Call(uintptr(unsafe.Pointer(s[0])), uintptr(unsafe.Pointer(s[1])), buf, n)
			return int32(r)
		}
	}

	if p := find(SymSignData); p != nil {
		t.SignData = func(data []byte, fingerprint string, result []byte) int32 {
			s, err := strPtrs(fingerprint)
			if err != nil {
				return WriteError(result, err.Error())
			}
			d, dn := bufPtr(data)
			buf, n := bufPtr(result)
			r, _, _ := p.Call(d, dn, uintptr(unsafe.Pointer(s[0])), buf, n)
			return int32(r)
		}
	}

	if p := find(SymSignBase64Data); p != nil {
		t.SignBase64Data = func(b64data, fingerprint string, result []byte) int32 {
			s, err := strPtrs(b64data, fingerprint)
			if err != nil {
				return WriteError(result, err.Error())
			}
			buf, n := bufPtr(result)
			r, _, _ := p.Call(uintptr(unsafe.Pointer(s[0])), uintptr(unsafe.Pointer(s[1])), buf, n)
			return int32(r)
		}
	}

	if p := find(SymGetKeyFingerprints); p != nil {
		t.GetKeyFingerprints = func(keyData string, result []byte) int32 {
			s, err := strPtrs(keyData)
			if err != nil {
				return WriteError(result, err.Error())
			}
			buf, n := bufPtr(result)
			r, _, _ := p.Call(uintptr(unsafe.Pointer(s[0])), buf, n)
			return int32(r)
		}
	}

	if p := find(SymChangeKeyPassword); p != nil {
		t.ChangeKeyPassword = func(keyData, currentPassword, newPassword string, result []byte) int32 {
			s, err := strPtrs(keyData, currentPassword, newPassword)
			if err != nil {
				return WriteError(result, err.Error())
			}
			buf, n := bufPtr(result)
			r, _, _ := p.Call(uintptr(unsafe.Pointer(s[0])), uintptr(unsafe.Pointer(s[1])), uintptr(unsafe.Pointer(s[2])), buf, n)
			return int32(r)
		}
	}

	if p := find(SymGetPublicKey); p != nil {
		t.GetPublicKey = func(fingerprint string, result []byte) int32 {
			s, err := strPtrs(fingerprint)
			if err != nil {
				return WriteError(result, err.Error())
			}
			buf, n := bufPtr(result)
			r, _, _ := p.Call(uintptr(unsafe.Pointer(s[0])), buf, n)
			return int32(r)
		}
	}

	if p := find(SymGenerateKey); p != nil {
		t.GenerateKey = func(password, identifier string, bits int32, result []byte) int32 {
			s, err := strPtrs(password, identifier)
			if err != nil {
				return WriteError(result, err.Error())
			}
			buf, n := bufPtr(result)
			r, _, _ := p.Call(uintptr(unsafe.Pointer(s[0])), uintptr(unsafe.Pointer(s[1])), uintptr(bits), buf, n)
			return int32(r)
		}
	}

	return t
}
