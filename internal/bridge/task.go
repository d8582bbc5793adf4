package bridge

import (
	"time"

	"github.com/google/uuid"

	"github.com/glinharesb/chevron-bridge/internal/provider"
)

// Callback receives the outcome of an asynchronous operation on the host
// loop. On failure err is a *ProviderError and value is nil. On success err
// is nil and value is a string, or a bool for signature verification.
type Callback func(err error, value any)

// Task is one pending asynchronous operation. It is immutable once created;
// the provider's outcome is returned by execute rather than stored on it.
type Task struct {
	ID       string
	Op       Op
	args     []arg
	handle   *provider.Handle
	callback Callback
	created  time.Time
}

func newTask(op Op, args []arg, handle *provider.Handle, cb Callback) *Task {
	return &Task{
		ID:       uuid.NewString(),
		Op:       op,
		args:     args,
		handle:   handle,
		callback: cb,
		created:  time.Now(),
	}
}

type outcome struct {
	status int32
	loaded int32
	output string
	cause  error
}

// err returns the *ProviderError for an ERROR outcome, nil otherwise.
func (o outcome) err(op Op) error {
	if o.status != provider.StatusError {
		return nil
	}
	return &ProviderError{Op: op, Message: o.output, Err: o.cause}
}

// execute runs the provider call with a fresh result buffer. It touches no
// host state and may run on any goroutine.
func (t *Task) execute() outcome {
	return invoke(t.handle, t.Op, t.args)
}

func invoke(h *provider.Handle, op Op, a []arg) outcome {
	buf := provider.NewBuffer()
	if h == nil {
		return outcome{status: provider.WriteError(buf, ErrNotLoaded.Error()), output: ErrNotLoaded.Error(), cause: ErrNotLoaded}
	}

	tbl := h.Table()
	var (
		status int32
		loaded int32
		bound  = tbl.Bound(catalog[op].symbol)
	)
	if bound {
		switch op {
		case OpGenerateKey:
			status = tbl.GenerateKey(a[0].s, a[1].s, int32(a[2].n), buf)
		case OpLoadKey:
			r := tbl.LoadKey(a[0].s, buf)
			status, loaded = r.Status, r.LoadedPrivateKeys
		case OpUnlockKey:
			status = tbl.UnlockKey(a[0].s, a[1].s, buf)
		case OpVerifySignature:
			status = tbl.VerifyBase64DataSignature(a[0].s, a[1].s, buf)
		case OpSignData:
			status = tbl.SignBase64Data(a[0].s, a[1].s, buf)
		case OpChangeKeyPassword:
			status = tbl.ChangeKeyPassword(a[0].s, a[1].s, a[2].s, buf)
		case OpGetKeyFingerprints:
			status = tbl.GetKeyFingerprints(a[0].s, buf)
		case OpGetPublicKey:
			status = tbl.GetPublicKey(a[0].s, buf)
		default:
			bound = false
		}
	}
	if !bound {
		msg := absentMessage(op)
		return outcome{status: provider.WriteError(buf, msg), output: msg, cause: provider.ErrSymbolNotBound}
	}
	return outcome{status: status, loaded: loaded, output: provider.ReadResult(buf)}
}

// value converts a successful outcome into the host value for op.
func (o outcome) value(op Op) any {
	if catalog[op].boolean {
		return o.status == provider.StatusTrue
	}
	return o.output
}
