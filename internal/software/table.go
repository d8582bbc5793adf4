package software

import (
	"fmt"
	"runtime/debug"
	"strings"

	"go.uber.org/zap"

	"github.com/glinharesb/chevron-bridge/internal/provider"
)

// HandlePath is the path reported by handles of the in-process provider.
const HandlePath = "builtin:software"

// Table adapts the provider to the buffer protocol of the function table.
func (p *Provider) Table() provider.Table {
	return provider.Table{
		UnlockKey: func(fingerprint, password string, result []byte) (status int32) {
			defer p.guard(provider.SymUnlockKey, result, &status)
			return p.status(result, p.UnlockKey(fingerprint, password))
		},
		LoadKey: func(keyData string, result []byte) (ret provider.LoadKeyReturn) {
			defer p.guard(provider.SymLoadKey, result, &ret.Status)
			n, err := p.LoadKey(keyData)
			if err != nil {
				return provider.LoadKeyReturn{Status: provider.WriteError(result, err.Error())}
			}
			return provider.LoadKeyReturn{Status: provider.StatusOK, LoadedPrivateKeys: int32(n)}
		},
		VerifySignature: func(data []byte, signature string, result []byte) (status int32) {
			defer p.guard(provider.SymVerifySignature, result, &status)
			return p.verdict(result)(p.VerifySignature(data, signature))
		},
		VerifyBase64DataSignature: func(b64data, signature string, result []byte) (status int32) {
			defer p.guard(provider.SymVerifyBase64DataSignature, result, &status)
			return p.verdict(result)(p.VerifyBase64DataSignature(b64data, signature))
		},
		SignData: func(data []byte, fingerprint string, result []byte) (status int32) {
			defer p.guard(provider.SymSignData, result, &status)
			return p.output(result)(p.SignData(data, fingerprint))
		},
		SignBase64Data: func(b64data, fingerprint string, result []byte) (status int32) {
			defer p.guard(provider.SymSignBase64Data, result, &status)
			return p.output(result)(p.SignBase64Data(b64data, fingerprint))
		},
		GetKeyFingerprints: func(keyData string, result []byte) (status int32) {
			defer p.guard(provider.SymGetKeyFingerprints, result, &status)
			fps, err := p.GetKeyFingerprints(keyData)
			if err != nil {
				return provider.WriteError(result, err.Error())
			}
			return p.output(result)(strings.Join(fps, ","), nil)
		},
		ChangeKeyPassword: func(keyData, currentPassword, newPassword string, result []byte) (status int32) {
			defer p.guard(provider.SymChangeKeyPassword, result, &status)
			return p.output(result)(p.ChangeKeyPassword(keyData, currentPassword, newPassword))
		},
		GetPublicKey: func(fingerprint string, result []byte) (status int32) {
			defer p.guard(provider.SymGetPublicKey, result, &status)
			return p.output(result)(p.GetPublicKey(fingerprint))
		},
		GenerateKey: func(password, identifier string, bits int32, result []byte) (status int32) {
			defer p.guard(provider.SymGenerateKey, result, &status)
			return p.output(result)(p.GenerateKey(password, identifier, int(bits)))
		},
	}
}

// Handle wraps the provider's table as an installable provider handle.
func (p *Provider) Handle() *provider.Handle {
	return provider.NewHandle(HandlePath, p.Table())
}

func (p *Provider) status(result []byte, err error) int32 {
	if err != nil {
		return provider.WriteError(result, err.Error())
	}
	return provider.StatusOK
}

func (p *Provider) output(result []byte) func(string, error) int32 {
	return func(s string, err error) int32 {
		if err != nil {
			return provider.WriteError(result, err.Error())
		}
		if len(s) >= len(result) {
			p.logger.Warn("provider output truncated", zap.Int("size", len(s)), zap.Int("capacity", len(result)))
		}
		provider.WriteResult(result, s)
		return provider.StatusOK
	}
}

func (p *Provider) verdict(result []byte) func(bool, error) int32 {
	return func(ok bool, err error) int32 {
		switch {
		case err != nil:
			return provider.WriteError(result, err.Error())
		case ok:
			return provider.StatusTrue
		default:
			return provider.StatusFalse
		}
	}
}

// guard turns a panic in a table function into an ERROR status.
func (p *Provider) guard(symbol string, result []byte, status *int32) {
	if r := recover(); r != nil {
		p.logger.Error("panic recovered",
			zap.String("symbol", symbol),
			zap.Any("panic", r),
			zap.ByteString("stack", debug.Stack()),
		)
		*status = provider.WriteError(result, fmt.Sprintf("internal error in %s", symbol))
	}
}
