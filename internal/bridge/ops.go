package bridge

import (
	"strings"

	"github.com/glinharesb/chevron-bridge/internal/provider"
)

// Typed wrappers around Submit and CallSync for Go callers.

func (b *Bridge) GenerateKey(password, identifier string, bits uint32, cb func(err error, keyData string)) (string, error) {
	return b.Submit(OpGenerateKey, []any{password, identifier, bits}, stringCallback(cb))
}

// LoadKey loads the keys in keyData and reports the first fingerprint found
// in it. The fingerprint lookup is not reported to the observer.
func (b *Bridge) LoadKey(keyData string, cb func(err error, fingerprint string)) (string, error) {
	var wrapped Callback
	if cb != nil {
		wrapped = func(err error, _ any) {
			if err != nil {
				cb(err, "")
				return
			}
			cb(nil, b.firstFingerprint(keyData))
		}
	}
	return b.Submit(OpLoadKey, []any{keyData}, wrapped)
}

// UnlockKey forwards whatever the provider wrote on success, usually nothing.
func (b *Bridge) UnlockKey(fingerprint, password string, cb func(err error, result string)) (string, error) {
	return b.Submit(OpUnlockKey, []any{fingerprint, password}, stringCallback(cb))
}

// VerifySignature checks signature over base64 encoded data.
func (b *Bridge) VerifySignature(b64data, signature string, cb func(err error, valid bool)) (string, error) {
	var wrapped Callback
	if cb != nil {
		wrapped = func(err error, v any) {
			valid, _ := v.(bool)
			cb(err, valid)
		}
	}
	return b.Submit(OpVerifySignature, []any{b64data, signature}, wrapped)
}

// SignData signs base64 encoded data with an unlocked key.
func (b *Bridge) SignData(b64data, fingerprint string, cb func(err error, signature string)) (string, error) {
	return b.Submit(OpSignData, []any{b64data, fingerprint}, stringCallback(cb))
}

func (b *Bridge) ChangeKeyPassword(keyData, currentPassword, newPassword string, cb func(err error, keyData string)) (string, error) {
	return b.Submit(OpChangeKeyPassword, []any{keyData, currentPassword, newPassword}, stringCallback(cb))
}

// GetKeyFingerprints returns the fingerprints of the keys in keyData. The
// provider reports them as a comma separated list.
func (b *Bridge) GetKeyFingerprints(keyData string) ([]string, error) {
	out, err := b.CallSync(OpGetKeyFingerprints, []any{keyData})
	if err != nil {
		return nil, err
	}
	return SplitFingerprints(out), nil
}

func (b *Bridge) GetPublicKey(fingerprint string) (string, error) {
	return b.CallSync(OpGetPublicKey, []any{fingerprint})
}

// SplitFingerprints splits a provider fingerprint list, dropping empty entries.
func SplitFingerprints(csv string) []string {
	fps := []string{}
	for _, fp := range strings.Split(csv, ",") {
		if fp = strings.TrimSpace(fp); fp != "" {
			fps = append(fps, fp)
		}
	}
	return fps
}

func stringCallback(cb func(error, string)) Callback {
	if cb == nil {
		return nil
	}
	return func(err error, v any) {
		s, _ := v.(string)
		cb(err, s)
	}
}

func (b *Bridge) firstFingerprint(keyData string) string {
	out := invoke(b.handle.Load(), OpGetKeyFingerprints, []arg{{s: keyData}})
	if out.status == provider.StatusError {
		return ""
	}
	if fps := SplitFingerprints(out.output); len(fps) > 0 {
		return fps[0]
	}
	return ""
}
