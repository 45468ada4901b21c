package interpreter

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"scenario/interpreter-go/pkg/ast"
	"scenario/interpreter-go/pkg/parser"
	"scenario/interpreter-go/pkg/remote"
	"scenario/interpreter-go/pkg/runtime"
	"scenario/interpreter-go/pkg/world"
)

const (
	geoff  = "0x0000000000000000000000000000000000000001"
	torrey = "0x0000000000000000000000000000000000000002"
)

// fakeSystem is a remote.System whose Send results are scripted per call.
type fakeSystem struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
	sends    []remote.Call
	next     []func(remote.Call) (remote.Receipt, error)
	block    int64
	now      int64
}

func newFakeSystem() *fakeSystem {
	return &fakeSystem{
		balances: map[string]decimal.Decimal{
			geoff:  decimal.NewFromInt(100),
			torrey: decimal.NewFromInt(0),
		},
		now: 1_000,
	}
}

// respond queues the result of the next Send.
func (f *fakeSystem) respond(fn func(remote.Call) (remote.Receipt, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next = append(f.next, fn)
}

func (f *fakeSystem) Accounts() []string { return []string{geoff, torrey} }

func (f *fakeSystem) Deploy(context.Context, string, remote.DeploySpec) (string, error) {
	return "0x00000000000000000000000000000000000000c0", nil
}

func (f *fakeSystem) Send(_ context.Context, call remote.Call) (remote.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, call)
	if len(f.next) > 0 {
		fn := f.next[0]
		f.next = f.next[1:]
		return fn(call)
	}
	if f.balances[call.From].LessThan(call.Value) {
		return remote.Receipt{}, remote.Revert("")
	}
	f.balances[call.From] = f.balances[call.From].Sub(call.Value)
	f.balances[call.To] = f.balances[call.To].Add(call.Value)
	return remote.Receipt{Return: true}, nil
}

func (f *fakeSystem) Call(context.Context, remote.Call) (any, error) { return nil, nil }

func (f *fakeSystem) Balance(_ context.Context, who string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[who], nil
}

func (f *fakeSystem) BlockNumber(context.Context) (int64, error) { return f.block, nil }
func (f *fakeSystem) Timestamp(context.Context) (int64, error)   { return f.now, nil }

func (f *fakeSystem) MineBlock(context.Context) (int64, error) {
	f.block++
	return f.block, nil
}

func (f *fakeSystem) IncreaseTime(_ context.Context, seconds int64) (int64, error) {
	f.now += seconds
	return f.now, nil
}

func (f *fakeSystem) SetTime(_ context.Context, ts int64) error {
	f.now = ts
	return nil
}

// recordingPrinter keeps every printed line.
type recordingPrinter struct {
	lines []string
}

func (p *recordingPrinter) PrintLine(line string) { p.lines = append(p.lines, line) }
func (p *recordingPrinter) PrintError(err error)  { p.lines = append(p.lines, "error: "+err.Error()) }

func (p *recordingPrinter) PrintValue(v runtime.Value) { p.lines = append(p.lines, runtime.Show(v)) }

func newTestWorld(t *testing.T, sys remote.System) (*world.World, *recordingPrinter) {
	t.Helper()
	printer := &recordingPrinter{}
	w := world.New(world.Config{
		Remote:         sys,
		Printer:        printer,
		Aliases:        map[string]string{"Geoff": geoff, "Torrey": torrey},
		DefaultFrom:    "Geoff",
		StrictOutcomes: true,
	})
	return w, printer
}

func mustParse(t *testing.T, line string) ast.Expression {
	t.Helper()
	expr, err := parser.ParseLine(line)
	if err != nil {
		t.Fatalf("ParseLine(%q) error: %v", line, err)
	}
	return expr
}

// run processes each line as a top-level event.
func run(t *testing.T, i *Interpreter, w *world.World, lines ...string) (*world.World, error) {
	t.Helper()
	events := make([]ast.Expression, 0, len(lines))
	for _, line := range lines {
		events = append(events, mustParse(t, line))
	}
	return i.ProcessEvents(context.Background(), w, events)
}

func joined(lines []string) string {
	return strings.Join(lines, "\n")
}
