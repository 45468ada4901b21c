// Package remote describes the boundary between the interpreter and the system it
// drives. Implementations live elsewhere (see pkg/ledger).
package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// RevertMarker prefixes every abort message produced by the driven system.
const RevertMarker = "VM Exception while processing transaction: revert"

// Call is one request against a deployed contract or account.
type Call struct {
	From   string
	To     string
	Method string
	Args   []any
	Value  decimal.Decimal
}

func (c Call) String() string {
	parts := make([]string, len(c.Args))
	for i, arg := range c.Args {
		parts[i] = fmt.Sprint(arg)
	}
	return fmt.Sprintf("%s.%s(%s)", c.To, c.Method, strings.Join(parts, ", "))
}

// Field is one named log argument. Values are decimal.Decimal, string or bool.
type Field struct {
	Name  string
	Value any
}

// Log is an event emitted while executing a call.
type Log struct {
	Name   string
	Fields []Field
}

// Get returns the named field.
func (l Log) Get(name string) (any, bool) {
	for _, f := range l.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// FailureLog is the name of the log a contract emits when it rejects an operation
// without aborting.
const FailureLog = "Failure"

// Receipt is the terminal state of a completed call.
type Receipt struct {
	Return any
	Logs   []Log
}

// RevertError reports an aborted call. No state was changed.
type RevertError struct {
	Message string
}

func (e *RevertError) Error() string {
	return e.Message
}

// Revert builds a RevertError for a bare revert or one carrying a reason.
func Revert(reason string) *RevertError {
	if reason == "" {
		return &RevertError{Message: RevertMarker}
	}
	return &RevertError{Message: RevertMarker + " " + reason}
}

// RevertCode builds the structured abort form "<marker>: CODE (id)".
func RevertCode(code string, id int) *RevertError {
	return &RevertError{Message: fmt.Sprintf("%s: %s (%d)", RevertMarker, code, id)}
}

// IsRevert reports whether err is an abort raised by the driven system.
func IsRevert(err error) bool {
	var revert *RevertError
	return errors.As(err, &revert)
}

// DeploySpec describes a contract to create.
type DeploySpec struct {
	Kind   string
	Name   string
	Params map[string]any
}

// System is the driven system as seen by the interpreter.
type System interface {
	Accounts() []string
	Deploy(ctx context.Context, from string, spec DeploySpec) (string, error)
	Send(ctx context.Context, call Call) (Receipt, error)
	Call(ctx context.Context, call Call) (any, error)
	Balance(ctx context.Context, who string) (decimal.Decimal, error)
	BlockNumber(ctx context.Context) (int64, error)
	Timestamp(ctx context.Context) (int64, error)
	MineBlock(ctx context.Context) (int64, error)
	IncreaseTime(ctx context.Context, seconds int64) (int64, error)
	SetTime(ctx context.Context, timestamp int64) error
}
