package outcome

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"scenario/interpreter-go/pkg/remote"
	"scenario/interpreter-go/pkg/runtime"
)

var structuredRevert = regexp.MustCompile(`revert: ([A-Za-z_][A-Za-z0-9_]*) \((\d+)\)\s*$`)

var structuredSuffix = regexp.MustCompile(`: [A-Za-z_][A-Za-z0-9_]* \(\d+\)\s*$`)

// Classify turns the terminal state of one remote call into exactly one Outcome.
// A returned error is always a ThrownError. It carries a code only when it is a
// revert of the driven system whose message has the "revert: CODE (n)" shape and
// CODE is known to tax. A completed call whose
// logs contain a failure marker is a Failure; anything else is a Success.
func Classify(receipt remote.Receipt, err error, tax *Taxonomy) Outcome {
	if err != nil {
		message := err.Error()
		if !remote.IsRevert(err) {
			return ThrownError{Message: message}
		}
		return ThrownError{Message: message, Code: StructuredCode(message, tax)}
	}
	for _, log := range receipt.Logs {
		if log.Name != remote.FailureLog {
			continue
		}
		return failureFromLog(log, receipt.Logs, tax)
	}
	return Success{Value: runtime.FromNative(receipt.Return), Logs: receipt.Logs}
}

// StructuredCode extracts a recognised application error code from an abort
// message, or returns "".
func StructuredCode(message string, tax *Taxonomy) string {
	match := structuredRevert.FindStringSubmatch(message)
	if match == nil {
		return ""
	}
	if _, ok := tax.ErrorCode(match[1]); !ok {
		return ""
	}
	return match[1]
}

var maxResult = decimal.NewFromInt(1 << 31)

// Summary renders o for the invocation log. An integral Success result goes
// through tax.FormatResult.
func Summary(o Outcome, tax *Taxonomy) string {
	if s, ok := o.(Success); ok {
		if n, ok := s.Value.(runtime.NumberValue); ok && n.Val.IsInteger() && n.Val.Abs().LessThan(maxResult) {
			return "Success(" + tax.FormatResult(int(n.Val.IntPart())) + ")"
		}
	}
	return o.String()
}

// RevertText strips the structured ": CODE (n)" suffix from an abort message.
func RevertText(message string) string {
	if loc := structuredSuffix.FindStringIndex(message); loc != nil {
		return message[:loc[0]]
	}
	return message
}

func failureFromLog(log remote.Log, logs []remote.Log, tax *Taxonomy) Failure {
	errCode, errOK := fieldInt(log, "error")
	infoCode, infoOK := fieldInt(log, "info")
	detail, detailOK := fieldInt(log, "detail")

	failure := Failure{Logs: logs}
	switch {
	case !errOK:
		failure.ErrorCode = fieldText(log, "error")
	default:
		if name, ok := tax.ErrorName(errCode); ok {
			failure.ErrorCode = name
		} else {
			failure.ErrorCode = strconv.Itoa(errCode)
		}
	}
	switch {
	case !infoOK:
		failure.SubCode = fieldText(log, "info")
	default:
		if name, ok := tax.InfoName(infoCode); ok {
			failure.SubCode = name
		} else {
			failure.SubCode = strconv.Itoa(infoCode)
		}
	}
	if detailOK {
		failure.Detail = tax.DetailName(errCode, detail)
	} else {
		failure.Detail = fieldText(log, "detail")
	}
	return failure
}

func fieldInt(log remote.Log, name string) (int, bool) {
	raw, ok := log.Get(name)
	if !ok {
		return 0, false
	}
	switch val := raw.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case decimal.Decimal:
		if !val.Equal(val.Truncate(0)) {
			return 0, false
		}
		return int(val.IntPart()), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(val))
		return n, err == nil
	default:
		return 0, false
	}
}

func fieldText(log remote.Log, name string) string {
	raw, ok := log.Get(name)
	if !ok || raw == nil {
		return ""
	}
	return fmt.Sprint(raw)
}
