//go:build cgo

package main

import "C"

import "unsafe"

// resultBuffer views the caller's result buffer. Providers write at most
// n-1 bytes and zero fill the rest.
func resultBuffer(result *C.char, n C.int) []byte {
	if result == nil || n <= 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(result)), int(n))
}

func goData(data *C.char, n C.int) []byte {
	if data == nil || n <= 0 {
		return []byte{}
	}
	return C.GoBytes(unsafe.Pointer(data), n)
}

//export LoadKey
func LoadKey(keyData *C.char, result *C.char, resultLen C.int) (err C.int, loadedPrivateKeys C.int) {
	ret := table.LoadKey(C.GoString(keyData), resultBuffer(result, resultLen))
	return C.int(ret.Status), C.int(ret.LoadedPrivateKeys)
}

//export UnlockKey
func UnlockKey(fingerprint, password *C.char, result *C.char, resultLen C.int) C.int {
	return C.int(table.UnlockKey(C.GoString(fingerprint), C.GoString(password), resultBuffer(result, resultLen)))
}

//export VerifySignature
func VerifySignature(data *C.char, dataLen C.int, signature *C.char, result *C.char, resultLen C.int) C.int {
	return C.int(table.VerifySignature(goData(data, dataLen), C.GoString(signature), resultBuffer(result, resultLen)))
}

//export VerifyBase64DataSignature
func VerifyBase64DataSignature(b64data, signature *C.char, result *C.char, resultLen C.int) C.int {
	return C.int(table.VerifyBase64DataSignature(C.GoString(b64data), C.GoString(signature), resultBuffer(result, resultLen)))
}

//export SignData
func SignData(data *C.char, dataLen C.int, fingerprint *C.char, result *C.char, resultLen C.int) C.int {
	return C.int(table.SignData(goData(data, dataLen), C.GoString(fingerprint), resultBuffer(result, resultLen)))
}

//export SignBase64Data
func SignBase64Data(b64data, fingerprint *C.char, result *C.char, resultLen C.int) C.int {
	return C.int(table.SignBase64Data(C.GoString(b64data), C.GoString(fingerprint), resultBuffer(result, resultLen)))
}

//export GetKeyFingerprints
func GetKeyFingerprints(keyData *C.char, result *C.char, resultLen C.int) C.int {
	return C.int(table.GetKeyFingerprints(C.GoString(keyData), resultBuffer(result, resultLen)))
}

//export ChangeKeyPassword
func ChangeKeyPassword(keyData, currentPassword, newPassword *C.char, result *C.char, resultLen C.int) C.int {
	return C.int(table.ChangeKeyPassword(
		C.GoString(keyData),
		C.GoString(currentPassword),
		C.GoString(newPassword),
		resultBuffer(result, resultLen),
	))
}

//export GetPublicKey
func GetPublicKey(fingerprint *C.char, result *C.char, resultLen C.int) C.int {
	return C.int(table.GetPublicKey(C.GoString(fingerprint), resultBuffer(result, resultLen)))
}

//export GenerateKey
func GenerateKey(password, identifier *C.char, bits C.int, result *C.char, resultLen C.int) C.int {
	return C.int(table.GenerateKey(C.GoString(password), C.GoString(identifier), int32(bits), resultBuffer(result, resultLen)))
}
