package bridge

import (
	"strings"

	"github.com/glinharesb/chevron-bridge/internal/provider"
)

// Op identifies a bridged provider operation.
type Op int

const (
	OpGenerateKey Op = iota + 1
	OpLoadKey
	OpUnlockKey
	OpVerifySignature
	OpSignData
	OpChangeKeyPassword
	OpGetKeyFingerprints
	OpGetPublicKey
)

// Style tells whether an operation completes through a callback or returns
// directly on the calling goroutine.
type Style int

const (
	Async Style = iota + 1
	Sync
)

func (s Style) String() string {
	switch s {
	case Async:
		return "async"
	case Sync:
		return "sync"
	default:
		return "unknown"
	}
}

// Kind is the host primitive type of an argument.
type Kind int

const (
	KindString Kind = iota + 1
	KindNumber
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	default:
		return "unknown"
	}
}

type param struct {
	name string
	kind Kind
}

type opSpec struct {
	name     string
	hostName string
	symbol   string
	style    Style
	params   []param
	boolean  bool // value is status == TRUE instead of the buffer
}

var catalog = map[Op]opSpec{
	OpGenerateKey: {
		name: "GenerateKey", hostName: "generateKey", symbol: provider.SymGenerateKey, style: Async,
		params: []param{{"password", KindString}, {"identifier", KindString}, {"bits", KindNumber}},
	},
	OpLoadKey: {
		name: "LoadKey", hostName: "loadKey", symbol: provider.SymLoadKey, style: Async,
		params: []param{{"keyData", KindString}},
	},
	OpUnlockKey: {
		name: "UnlockKey", hostName: "unlockKey", symbol: provider.SymUnlockKey, style: Async,
		params: []param{{"fingerprint", KindString}, {"password", KindString}},
	},
	OpVerifySignature: {
		name: "VerifyBase64DataSignature", hostName: "verifySignature", symbol: provider.SymVerifyBase64DataSignature, style: Async,
		params:  []param{{"b64data", KindString}, {"signature", KindString}},
		boolean: true,
	},
	OpSignData: {
		name: "SignData", hostName: "signData", symbol: provider.SymSignBase64Data, style: Async,
		params: []param{{"b64data", KindString}, {"fingerprint", KindString}},
	},
	OpChangeKeyPassword: {
		name: "ChangeKeyPassword", hostName: "changeKeyPassword", symbol: provider.SymChangeKeyPassword, style: Async,
		params: []param{{"keyData", KindString}, {"currentPassword", KindString}, {"newPassword", KindString}},
	},
	OpGetKeyFingerprints: {
		name: "GetKeyFingerprints", hostName: "getKeyFingerprints", symbol: provider.SymGetKeyFingerprints, style: Sync,
		params: []param{{"keyData", KindString}},
	},
	OpGetPublicKey: {
		name: "GetPublicKey", hostName: "getPublicKey", symbol: provider.SymGetPublicKey, style: Sync,
		params: []param{{"fingerprint", KindString}},
	},
}

// Ops lists every bridged operation.
var Ops = []Op{
	OpGenerateKey,
	OpLoadKey,
	OpUnlockKey,
	OpVerifySignature,
	OpSignData,
	OpChangeKeyPassword,
	OpGetKeyFingerprints,
	OpGetPublicKey,
}

func (o Op) String() string {
	if s, ok := catalog[o]; ok {
		return s.name
	}
	return "Unknown"
}

// HostName is the name the operation is exported under to the host.
func (o Op) HostName() string {
	return catalog[o].hostName
}

// Style reports how the operation completes. Unknown operations have no style.
func (o Op) Style() Style {
	return catalog[o].style
}

// Arity is the number of arguments the operation takes, excluding the
// completion callback.
func (o Op) Arity() int {
	return len(catalog[o].params)
}

// ParseOp looks an operation up by its catalog name or its host name,
// ignoring case.
func ParseOp(name string) (Op, bool) {
	for _, op := range Ops {
		s := catalog[op]
		if strings.EqualFold(name, s.name) || strings.EqualFold(name, s.hostName) {
			return op, true
		}
	}
	return 0, false
}

// ParamKind returns the kind of the i-th argument, or false when op has no
// such argument.
func (o Op) ParamKind(i int) (Kind, bool) {
	params := catalog[o].params
	if i < 0 || i >= len(params) {
		return 0, false
	}
	return params[i].kind, true
}
