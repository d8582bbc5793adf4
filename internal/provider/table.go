package provider

// Symbol names exported by provider libraries.
const (
	SymUnlockKey                 = "UnlockKey"
	SymLoadKey                   = "LoadKey"
	SymVerifySignature           = "VerifySignature"
	SymVerifyBase64DataSignature = "VerifyBase64DataSignature"
	SymSignData                  = "SignData"
	SymSignBase64Data            = "SignBase64Data"
	SymGetKeyFingerprints        = "GetKeyFingerprints"
	SymChangeKeyPassword         = "ChangeKeyPassword"
	SymGetPublicKey              = "GetPublicKey"
	SymGenerateKey               = "GenerateKey"
)

// Symbols lists every symbol a provider may export, in binding order.
var Symbols = []string{
	SymUnlockKey,
	SymLoadKey,
	SymVerifySignature,
	SymVerifyBase64DataSignature,
	SymSignData,
	SymSignBase64Data,
	SymGetKeyFingerprints,
	SymChangeKeyPassword,
	SymGetPublicKey,
	SymGenerateKey,
}

// Function signatures of the provider table. Every function writes into
// result, whose length is the capacity reported to the provider.
type (
	UnlockKeyFunc                 func(fingerprint, password string, result []byte) int32
	LoadKeyFunc                   func(keyData string, result []byte) LoadKeyReturn
	VerifySignatureFunc           func(data []byte, signature string, result []byte) int32
	VerifyBase64DataSignatureFunc func(b64data, signature string, result []byte) int32
	SignDataFunc                  func(data []byte, fingerprint string, result []byte) int32
	SignBase64DataFunc            func(b64data, fingerprint string, result []byte) int32
	GetKeyFingerprintsFunc        func(keyData string, result []byte) int32
	ChangeKeyPasswordFunc         func(keyData, currentPassword, newPassword string, result []byte) int32
	GetPublicKeyFunc              func(fingerprint string, result []byte) int32
	GenerateKeyFunc               func(password, identifier string, bits int32, result []byte) int32
)

// Table holds one slot per provider symbol. A nil slot means the symbol was
// not found and calls through it must be reported as errors.
type Table struct {
	UnlockKey                 UnlockKeyFunc
	LoadKey                   LoadKeyFunc
	VerifySignature           VerifySignatureFunc
	VerifyBase64DataSignature VerifyBase64DataSignatureFunc
	SignData                  SignDataFunc
	SignBase64Data            SignBase64DataFunc
	GetKeyFingerprints        GetKeyFingerprintsFunc
	ChangeKeyPassword         ChangeKeyPasswordFunc
	GetPublicKey              GetPublicKeyFunc
	GenerateKey               GenerateKeyFunc
}

// Bound reports whether the named symbol has a function in the table.
func (t *Table) Bound(symbol string) bool {
	switch symbol {
	case SymUnlockKey:
		return t.UnlockKey != nil
	case SymLoadKey:
		return t.LoadKey != nil
	case SymVerifySignature:
		return t.VerifySignature != nil
	case SymVerifyBase64DataSignature:
		return t.VerifyBase64DataSignature != nil
	case SymSignData:
		return t.SignData != nil
	case SymSignBase64Data:
		return t.SignBase64Data != nil
	case SymGetKeyFingerprints:
		return t.GetKeyFingerprints != nil
	case SymChangeKeyPassword:
		return t.ChangeKeyPassword != nil
	case SymGetPublicKey:
		return t.GetPublicKey != nil
	case SymGenerateKey:
		return t.GenerateKey != nil
	default:
		return false
	}
}

// Missing returns the symbols without a bound function.
func (t *Table) Missing() []string {
	var missing []string
	for _, sym := range Symbols {
		if !t.Bound(sym) {
			missing = append(missing, sym)
		}
	}
	return missing
}

// Handle is a resolved provider: where it came from and its function table.
// The table is never modified after the handle is built, so it can be read
// from any goroutine without locking.
type Handle struct {
	path  string
	table Table
}

// NewHandle wraps an already built table. It is used for in-process
// providers and tests; libraries are turned into handles by Resolve.
func NewHandle(path string, table Table) *Handle {
	return &Handle{path: path, table: table}
}

// Path returns the file the provider was loaded from.
func (h *Handle) Path() string {
	return h.path
}

// Table returns a copy of the function table.
func (h *Handle) Table() Table {
	return h.table
}
