package livepoll

import (
	"context"
	"encoding/json"
	"time"
)

// DefaultCallTimeout bounds how long Correlate waits for a paired push.
const DefaultCallTimeout = 10 * time.Second

// InvokeFunc sends one hub command. Its error reports transport delivery
// only; the command's outcome arrives separately as a push event.
type InvokeFunc func(ctx context.Context, target string, args ...any) error

// CallSpec names a command and the disjoint push events that report its
// outcome. The events carry no request identifier, so callers must not
// overlap two calls that share an event pair.
type CallSpec struct {
	Command      string
	Args         []any
	SuccessEvent string
	ErrorEvent   string
	Timeout      time.Duration // defaults to DefaultCallTimeout
}

type callResult struct {
	data json.RawMessage
	err  error
}

// Correlate turns a fire-and-forget hub command plus its success/error push
// pair into one blocking call: it registers a one-shot listener on each
// event, invokes the command, and waits for whichever fires first. Exactly
// one of four outcomes resolves the call — success payload, typed protocol
// error, timeout, or transport failure — and both listeners are removed on
// every path, so a late paired push lands on nothing.
func Correlate(ctx context.Context, d *Dispatcher, invoke InvokeFunc, spec CallSpec) (json.RawMessage, error) {
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}

	// Buffered to one: whichever listener fires first wins, the sibling's
	// send is dropped.
	results := make(chan callResult, 1)

	okSub := d.Once(spec.SuccessEvent, func(data json.RawMessage) {
		select {
		case results <- callResult{data: data}:
		default:
		}
	})
	errSub := d.Once(spec.ErrorEvent, func(data json.RawMessage) {
		var payload CommandErrorPayload
		var res callResult
		if err := UnmarshalData(data, &payload); err != nil {
			res.err = WrapError(ErrorSerialization, "decode "+spec.ErrorEvent+" payload", err)
		} else {
			res.err = NewError(ParseErrorCode(payload.ErrorCode), payload.Message)
		}
		select {
		case results <- res:
		default:
		}
	})
	cleanup := func() {
		d.Unsubscribe(okSub)
		d.Unsubscribe(errSub)
	}

	if err := invoke(ctx, spec.Command, spec.Args...); err != nil {
		cleanup()
		return nil, WrapError(ErrorConnection, "invoke "+spec.Command, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-results:
		cleanup()
		if res.err != nil {
			return nil, res.err
		}
		return res.data, nil
	case <-timer.C:
		cleanup()
		return nil, NewError(ErrorTimeout, spec.Command+" received no response within "+timeout.String())
	case <-ctx.Done():
		cleanup()
		return nil, WrapError(ErrorConnection, spec.Command+" canceled", ctx.Err())
	}
}
