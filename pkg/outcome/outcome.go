package outcome

import (
	"fmt"

	"scenario/interpreter-go/pkg/remote"
	"scenario/interpreter-go/pkg/runtime"
)

// Kind identifies the outcome variant.
type Kind int

const (
	KindSuccess Kind = iota
	KindFailure
	KindThrown
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "Success"
	case KindFailure:
		return "Failure"
	case KindThrown:
		return "ThrownError"
	default:
		return "unknown"
	}
}

// Outcome is the classified terminal state of one remote call.
type Outcome interface {
	Kind() Kind
	String() string
	outcome()
}

// Success is a call that completed without a failure marker.
type Success struct {
	Value runtime.Value
	Logs  []remote.Log
}

func (Success) Kind() Kind { return KindSuccess }
func (Success) outcome()   {}

func (s Success) String() string {
	if s.Value == nil {
		return "Success"
	}
	return fmt.Sprintf("Success(%s)", runtime.Show(s.Value))
}

// Failure is a graceful, structured rejection. State is otherwise consistent.
type Failure struct {
	ErrorCode string
	SubCode   string
	Detail    string
	Logs      []remote.Log
}

func (Failure) Kind() Kind { return KindFailure }
func (Failure) outcome()   {}

func (f Failure) String() string {
	return fmt.Sprintf("Failure(error=%s, info=%s, detail=%s)", f.ErrorCode, f.SubCode, f.Detail)
}

// Matches compares against expected names; an empty detail matches "0".
func (f Failure) Matches(errorCode, subCode, detail string) bool {
	if detail == "" {
		detail = "0"
	}
	got := f.Detail
	if got == "" {
		got = "0"
	}
	return f.ErrorCode == errorCode && f.SubCode == subCode && got == detail
}

// ThrownError is an aborted call. Code is set when the abort message carried a
// code recognised by the call's taxonomy.
type ThrownError struct {
	Message string
	Code    string
}

func (ThrownError) Kind() Kind { return KindThrown }
func (ThrownError) outcome()   {}

func (e ThrownError) String() string {
	if e.Code != "" {
		return fmt.Sprintf("ThrownError(%s, code=%s)", e.Message, e.Code)
	}
	return fmt.Sprintf("ThrownError(%s)", e.Message)
}

// Logs returns the logs attached to an outcome, if any.
func Logs(o Outcome) []remote.Log {
	switch val := o.(type) {
	case Success:
		return val.Logs
	case Failure:
		return val.Logs
	default:
		return nil
	}
}

// AsValue renders an outcome as a Map for scripts that inspect it directly.
func AsValue(o Outcome) runtime.Value {
	switch val := o.(type) {
	case nil:
		return runtime.Nothing
	case Success:
		result := val.Value
		if result == nil {
			result = runtime.Nothing
		}
		return runtime.NewMap(
			runtime.MapEntry{Key: "kind", Value: runtime.String(val.Kind().String())},
			runtime.MapEntry{Key: "value", Value: result},
		)
	case Failure:
		return runtime.NewMap(
			runtime.MapEntry{Key: "kind", Value: runtime.String(val.Kind().String())},
			runtime.MapEntry{Key: "error", Value: runtime.String(val.ErrorCode)},
			runtime.MapEntry{Key: "info", Value: runtime.String(val.SubCode)},
			runtime.MapEntry{Key: "detail", Value: runtime.String(val.Detail)},
		)
	case ThrownError:
		code := runtime.Value(runtime.Nothing)
		if val.Code != "" {
			code = runtime.String(val.Code)
		}
		return runtime.NewMap(
			runtime.MapEntry{Key: "kind", Value: runtime.String(val.Kind().String())},
			runtime.MapEntry{Key: "message", Value: runtime.String(val.Message)},
			runtime.MapEntry{Key: "code", Value: code},
		)
	default:
		return runtime.Nothing
	}
}
