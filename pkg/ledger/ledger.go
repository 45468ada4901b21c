// Package ledger is an in-process remote.System backed by SQLite. Every Send runs
// inside one SQL transaction; an aborted call rolls the transaction back, so a
// revert leaves no trace in the store.
package ledger

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"fortio.org/log"
	"github.com/shopspring/decimal"

	_ "modernc.org/sqlite"

	"scenario/interpreter-go/pkg/remote"
)

const (
	// MemoryDSN opens a private in-memory store.
	MemoryDSN = ":memory:"

	// DefaultAccounts is the number of funded accounts created by Open.
	DefaultAccounts = 10

	genesisTime = 1_600_000_000

	kindErc20  = "erc20"
	kindCToken = "ctoken"
)

// Funding is the native balance of every generated account (10000 x 10^18).
var Funding = decimal.New(1, 22)

const schema = `
CREATE TABLE IF NOT EXISTS chain (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	block INTEGER NOT NULL,
	timestamp INTEGER NOT NULL,
	nonce INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS accounts (
	idx INTEGER PRIMARY KEY,
	address TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS native (
	account TEXT PRIMARY KEY,
	balance TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS contracts (
	address TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	name TEXT NOT NULL,
	deployer TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS tokens (
	address TEXT PRIMARY KEY,
	symbol TEXT NOT NULL,
	decimals INTEGER NOT NULL,
	total_supply TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS balances (
	token TEXT NOT NULL,
	account TEXT NOT NULL,
	amount TEXT NOT NULL,
	PRIMARY KEY (token, account)
);
CREATE TABLE IF NOT EXISTS allowances (
	token TEXT NOT NULL,
	owner TEXT NOT NULL,
	spender TEXT NOT NULL,
	amount TEXT NOT NULL,
	PRIMARY KEY (token, owner, spender)
);
CREATE TABLE IF NOT EXISTS markets (
	address TEXT PRIMARY KEY,
	underlying TEXT NOT NULL,
	initial_exchange_rate TEXT NOT NULL,
	borrow_rate TEXT NOT NULL,
	collateral_factor TEXT NOT NULL,
	reserve_factor TEXT NOT NULL,
	total_supply TEXT NOT NULL,
	total_borrows TEXT NOT NULL,
	total_reserves TEXT NOT NULL,
	borrow_index TEXT NOT NULL,
	accrual_block INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS borrows (
	market TEXT NOT NULL,
	account TEXT NOT NULL,
	principal TEXT NOT NULL,
	interest_index TEXT NOT NULL,
	PRIMARY KEY (market, account)
);
`

// Ledger is a simulated chain. It is safe for concurrent use; calls serialise on
// the store.
type Ledger struct {
	db       *sql.DB
	accounts []string
}

var _ remote.System = (*Ledger)(nil)

// Open connects to the SQLite database at dsn, creating the schema and funding
// accounts on first use. An existing store keeps its accounts and state.
func Open(ctx context.Context, dsn string, accounts int) (*Ledger, error) {
	if dsn == "" {
		dsn = MemoryDSN
	}
	if accounts <= 0 {
		accounts = DefaultAccounts
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger: open %s: %w", dsn, err)
	}
	// Each connection to :memory: is its own database.
	db.SetMaxOpenConns(1)
	l := &Ledger{db: db}
	if err := l.migrate(ctx, accounts); err != nil {
		db.Close()
		return nil, err
	}
	log.LogVf("ledger: opened %s with %d accounts", dsn, len(l.accounts))
	return l, nil
}

// Close releases the store.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func (l *Ledger) migrate(ctx context.Context, accounts int) error {
	if _, err := l.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ledger: migrate: %w", err)
	}
	err := l.withTx(ctx, func(s *state) error {
		res, err := s.exec(`INSERT OR IGNORE INTO chain (id, block, timestamp, nonce) VALUES (1, 0, ?, 0)`, genesisTime)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		for idx := 0; idx < accounts; idx++ {
			addr := deriveAddress("account", fmt.Sprint(idx))
			if _, err := s.exec(`INSERT INTO accounts (idx, address) VALUES (?, ?)`, idx, addr); err != nil {
				return err
			}
			if err := s.setNative(addr, Funding); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ledger: migrate: %w", err)
	}
	rows, err := l.db.QueryContext(ctx, `SELECT address FROM accounts ORDER BY idx`)
	if err != nil {
		return fmt.Errorf("ledger: migrate: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return fmt.Errorf("ledger: migrate: %w", err)
		}
		l.accounts = append(l.accounts, addr)
	}
	return rows.Err()
}

// deriveAddress builds a stable 20-byte address from its parts.
func deriveAddress(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "/")))
	return "0x" + hex.EncodeToString(sum[:20])
}

func (l *Ledger) Accounts() []string {
	out := make([]string, len(l.accounts))
	copy(out, l.accounts)
	return out
}

// withTx runs fn in one transaction, rolling back when fn fails.
func (l *Ledger) withTx(ctx context.Context, fn func(*state) error) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(&state{ctx: ctx, q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Warnf("ledger: rollback: %v", rbErr)
		}
		return err
	}
	return tx.Commit()
}

// Deploy creates a contract. Kinds are "erc20" (params symbol, decimals) and
// "ctoken" (params underlying, exchangeRate, borrowRate, collateralFactor,
// reserveFactor).
func (l *Ledger) Deploy(ctx context.Context, from string, spec remote.DeploySpec) (string, error) {
	var addr string
	err := l.withTx(ctx, func(s *state) error {
		nonce, err := s.nextNonce()
		if err != nil {
			return err
		}
		addr = deriveAddress("contract", strings.ToLower(from), fmt.Sprint(nonce))
		switch strings.ToLower(spec.Kind) {
		case kindErc20:
			err = s.deployToken(addr, spec)
		case kindCToken:
			err = s.deployMarket(addr, spec)
		default:
			err = fmt.Errorf("unknown contract kind %q", spec.Kind)
		}
		if err != nil {
			return err
		}
		if _, err := s.exec(`INSERT INTO contracts (address, kind, name, deployer) VALUES (?, ?, ?, ?)`,
			addr, strings.ToLower(spec.Kind), spec.Name, strings.ToLower(from)); err != nil {
			return err
		}
		return s.mine()
	})
	if err != nil {
		return "", fmt.Errorf("ledger: deploy %s %s: %w", spec.Kind, spec.Name, err)
	}
	log.LogVf("ledger: deployed %s %s at %s", spec.Kind, spec.Name, addr)
	return addr, nil
}

// Send executes a state-changing call. Aborts are *remote.RevertError values and
// leave the store untouched.
func (l *Ledger) Send(ctx context.Context, call remote.Call) (remote.Receipt, error) {
	var receipt remote.Receipt
	err := l.withTx(ctx, func(s *state) error {
		from, to := strings.ToLower(call.From), strings.ToLower(call.To)
		if call.Value.IsPositive() {
			if err := s.moveNative(from, to, call.Value); err != nil {
				return err
			}
		}
		kind, err := s.kindOf(to)
		if err != nil {
			return err
		}
		switch kind {
		case "":
			if call.Method != "" {
				return remote.Revert("")
			}
			receipt = remote.Receipt{Return: true}
		case kindErc20:
			receipt, err = s.sendToken(to, from, call)
		case kindCToken:
			receipt, err = s.sendMarket(to, from, call)
		}
		if err != nil {
			return err
		}
		return s.mine()
	})
	if err != nil {
		return remote.Receipt{}, err
	}
	return receipt, nil
}

// Call runs a read-only method.
func (l *Ledger) Call(ctx context.Context, call remote.Call) (any, error) {
	s := &state{ctx: ctx, q: l.db}
	to := strings.ToLower(call.To)
	kind, err := s.kindOf(to)
	if err != nil {
		return nil, err
	}
	switch kind {
	case kindErc20:
		return s.callToken(to, call)
	case kindCToken:
		return s.callMarket(to, call)
	default:
		return nil, fmt.Errorf("ledger: call %s: no contract", call)
	}
}

func (l *Ledger) Balance(ctx context.Context, who string) (decimal.Decimal, error) {
	s := &state{ctx: ctx, q: l.db}
	return s.native(strings.ToLower(who))
}

func (l *Ledger) BlockNumber(ctx context.Context) (int64, error) {
	var block int64
	err := l.db.QueryRowContext(ctx, `SELECT block FROM chain WHERE id = 1`).Scan(&block)
	return block, err
}

func (l *Ledger) Timestamp(ctx context.Context) (int64, error) {
	var now int64
	err := l.db.QueryRowContext(ctx, `SELECT timestamp FROM chain WHERE id = 1`).Scan(&now)
	return now, err
}

func (l *Ledger) MineBlock(ctx context.Context) (int64, error) {
	err := l.withTx(ctx, func(s *state) error { return s.mine() })
	if err != nil {
		return 0, err
	}
	return l.BlockNumber(ctx)
}

func (l *Ledger) IncreaseTime(ctx context.Context, seconds int64) (int64, error) {
	if seconds < 0 {
		return 0, fmt.Errorf("ledger: cannot move time backwards by %d seconds", -seconds)
	}
	if _, err := l.db.ExecContext(ctx, `UPDATE chain SET timestamp = timestamp + ? WHERE id = 1`, seconds); err != nil {
		return 0, err
	}
	return l.Timestamp(ctx)
}

func (l *Ledger) SetTime(ctx context.Context, timestamp int64) error {
	_, err := l.db.ExecContext(ctx, `UPDATE chain SET timestamp = ? WHERE id = 1`, timestamp)
	return err
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// state is one view of the store, transactional during Send.
type state struct {
	ctx context.Context
	q   querier
}

func (s *state) exec(query string, args ...any) (sql.Result, error) {
	return s.q.ExecContext(s.ctx, query, args...)
}

// amount reads one decimal column, treating a missing row as zero.
func (s *state) amount(query string, args ...any) (decimal.Decimal, error) {
	var d decimal.Decimal
	err := s.q.QueryRowContext(s.ctx, query, args...).Scan(&d)
	if isNoRows(err) {
		return decimal.Zero, nil
	}
	return d, err
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func (s *state) block() (int64, error) {
	var block int64
	err := s.q.QueryRowContext(s.ctx, `SELECT block FROM chain WHERE id = 1`).Scan(&block)
	return block, err
}

func (s *state) mine() error {
	_, err := s.exec(`UPDATE chain SET block = block + 1 WHERE id = 1`)
	return err
}

func (s *state) nextNonce() (int64, error) {
	if _, err := s.exec(`UPDATE chain SET nonce = nonce + 1 WHERE id = 1`); err != nil {
		return 0, err
	}
	var nonce int64
	err := s.q.QueryRowContext(s.ctx, `SELECT nonce FROM chain WHERE id = 1`).Scan(&nonce)
	return nonce, err
}

func (s *state) kindOf(addr string) (string, error) {
	var kind string
	err := s.q.QueryRowContext(s.ctx, `SELECT kind FROM contracts WHERE address = ?`, addr).Scan(&kind)
	if isNoRows(err) {
		return "", nil
	}
	return kind, err
}

func (s *state) native(who string) (decimal.Decimal, error) {
	return s.amount(`SELECT balance FROM native WHERE account = ?`, who)
}

func (s *state) setNative(who string, balance decimal.Decimal) error {
	_, err := s.exec(`INSERT INTO native (account, balance) VALUES (?, ?)
		ON CONFLICT (account) DO UPDATE SET balance = excluded.balance`, who, balance)
	return err
}

func (s *state) moveNative(from, to string, value decimal.Decimal) error {
	have, err := s.native(from)
	if err != nil {
		return err
	}
	if have.LessThan(value) {
		return remote.Revert("")
	}
	if err := s.setNative(from, have.Sub(value)); err != nil {
		return err
	}
	dest, err := s.native(to)
	if err != nil {
		return err
	}
	return s.setNative(to, dest.Add(value))
}

// Argument decoding for calls built by command families.

func argAddress(call remote.Call, idx int) (string, error) {
	if idx >= len(call.Args) {
		return "", fmt.Errorf("%s: missing argument %d", call.Method, idx)
	}
	s, ok := call.Args[idx].(string)
	if !ok {
		return "", fmt.Errorf("%s: argument %d is %T, want address", call.Method, idx, call.Args[idx])
	}
	return strings.ToLower(s), nil
}

func argAmount(call remote.Call, idx int) (decimal.Decimal, error) {
	if idx >= len(call.Args) {
		return decimal.Zero, fmt.Errorf("%s: missing argument %d", call.Method, idx)
	}
	switch v := call.Args[idx].(type) {
	case decimal.Decimal:
		return v, nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case string:
		return decimal.NewFromString(v)
	default:
		return decimal.Zero, fmt.Errorf("%s: argument %d is %T, want amount", call.Method, idx, call.Args[idx])
	}
}

func paramString(spec remote.DeploySpec, key string) (string, error) {
	v, ok := spec.Params[key]
	if !ok {
		return "", fmt.Errorf("missing %s", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s is %T, want string", key, v)
	}
	return s, nil
}

func paramAmount(spec remote.DeploySpec, key string, fallback decimal.Decimal) (decimal.Decimal, error) {
	v, ok := spec.Params[key]
	if !ok {
		return fallback, nil
	}
	switch d := v.(type) {
	case decimal.Decimal:
		return d, nil
	case int:
		return decimal.NewFromInt(int64(d)), nil
	case int64:
		return decimal.NewFromInt(d), nil
	default:
		return decimal.Zero, fmt.Errorf("%s is %T, want number", key, v)
	}
}
