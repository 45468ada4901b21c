package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"scenario/interpreter-go/pkg/remote"
)

// Codes of the ctoken error and info tables, and the comptroller detail used
// for rejected borrows and redeems.
const (
	errComptrollerRejection       = 3
	errTokenInsufficientAllowance = 12
	errTokenInsufficientBalance   = 13
	errTokenInsufficientCash      = 14

	infoBorrowCashNotAvailable           = 1
	infoBorrowComptrollerRejection       = 2
	infoMintTransferInNotPossible        = 5
	infoRedeemComptrollerRejection       = 6
	infoRedeemTransferOutNotPossible     = 7
	infoRepayBorrowTransferInNotPossible = 9
	infoRedeemTokensInsufficient         = 11

	detailInsufficientLiquidity = 4
)

const ratePrecision = 18

type market struct {
	addr             string
	underlying       string
	initialRate      decimal.Decimal
	borrowRate       decimal.Decimal
	collateralFactor decimal.Decimal
	reserveFactor    decimal.Decimal
	totalSupply      decimal.Decimal
	totalBorrows     decimal.Decimal
	totalReserves    decimal.Decimal
	borrowIndex      decimal.Decimal
	accrualBlock     int64
}

func (s *state) deployMarket(addr string, spec remote.DeploySpec) error {
	underlying, err := paramString(spec, "underlying")
	if err != nil {
		return err
	}
	underlying = strings.ToLower(underlying)
	kind, err := s.kindOf(underlying)
	if err != nil {
		return err
	}
	if kind != kindErc20 {
		return fmt.Errorf("underlying %s is not an erc20 token", underlying)
	}
	m := &market{addr: addr, underlying: underlying, borrowIndex: decimal.NewFromInt(1)}
	for _, p := range []struct {
		key      string
		fallback decimal.Decimal
		dst      *decimal.Decimal
	}{
		{"exchangeRate", decimal.NewFromInt(1), &m.initialRate},
		{"borrowRate", decimal.Zero, &m.borrowRate},
		{"collateralFactor", decimal.NewFromFloat(0.5), &m.collateralFactor},
		{"reserveFactor", decimal.Zero, &m.reserveFactor},
	} {
		if *p.dst, err = paramAmount(spec, p.key, p.fallback); err != nil {
			return err
		}
	}
	if !m.initialRate.IsPositive() {
		return fmt.Errorf("exchangeRate must be positive, got %s", m.initialRate)
	}
	if m.accrualBlock, err = s.block(); err != nil {
		return err
	}
	_, err = s.exec(`INSERT INTO markets (address, underlying, initial_exchange_rate, borrow_rate,
		collateral_factor, reserve_factor, total_supply, total_borrows, total_reserves, borrow_index, accrual_block)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.addr, m.underlying, m.initialRate, m.borrowRate, m.collateralFactor, m.reserveFactor,
		decimal.Zero, decimal.Zero, decimal.Zero, m.borrowIndex, m.accrualBlock)
	return err
}

func (s *state) loadMarket(addr string) (*market, error) {
	m := &market{addr: addr}
	err := s.q.QueryRowContext(s.ctx, `SELECT underlying, initial_exchange_rate, borrow_rate, collateral_factor,
		reserve_factor, total_supply, total_borrows, total_reserves, borrow_index, accrual_block
		FROM markets WHERE address = ?`, addr).Scan(
		&m.underlying, &m.initialRate, &m.borrowRate, &m.collateralFactor, &m.reserveFactor,
		&m.totalSupply, &m.totalBorrows, &m.totalReserves, &m.borrowIndex, &m.accrualBlock)
	if err != nil {
		return nil, fmt.Errorf("market %s: %w", addr, err)
	}
	return m, nil
}

func (s *state) saveMarket(m *market) error {
	_, err := s.exec(`UPDATE markets SET total_supply = ?, total_borrows = ?, total_reserves = ?,
		borrow_index = ?, accrual_block = ? WHERE address = ?`,
		m.totalSupply, m.totalBorrows, m.totalReserves, m.borrowIndex, m.accrualBlock, m.addr)
	return err
}

func (s *state) marketAddresses() ([]string, error) {
	rows, err := s.q.QueryContext(s.ctx, `SELECT address FROM markets ORDER BY address`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, rows.Err()
}

func (s *state) cash(m *market) (decimal.Decimal, error) {
	return s.tokenBalance(m.underlying, m.addr)
}

// exchangeRate is (cash + borrows - reserves) / supply, or the initial rate
// before anything is minted.
func (s *state) exchangeRate(m *market) (decimal.Decimal, error) {
	if m.totalSupply.IsZero() {
		return m.initialRate, nil
	}
	cash, err := s.cash(m)
	if err != nil {
		return decimal.Zero, err
	}
	return cash.Add(m.totalBorrows).Sub(m.totalReserves).DivRound(m.totalSupply, ratePrecision), nil
}

func (s *state) borrowBalance(m *market, who string) (decimal.Decimal, error) {
	var principal, index decimal.Decimal
	err := s.q.QueryRowContext(s.ctx, `SELECT principal, interest_index FROM borrows WHERE market = ? AND account = ?`,
		m.addr, who).Scan(&principal, &index)
	if err != nil || principal.IsZero() {
		if err != nil && !isNoRows(err) {
			return decimal.Zero, err
		}
		return decimal.Zero, nil
	}
	return principal.Mul(m.borrowIndex).DivRound(index, ratePrecision), nil
}

func (s *state) setBorrow(m *market, who string, principal decimal.Decimal) error {
	_, err := s.exec(`INSERT INTO borrows (market, account, principal, interest_index) VALUES (?, ?, ?, ?)
		ON CONFLICT (market, account) DO UPDATE SET principal = excluded.principal, interest_index = excluded.interest_index`,
		m.addr, who, principal, m.borrowIndex)
	return err
}

// accrue applies simple per-block interest since the last accrual.
func (s *state) accrue(m *market) ([]remote.Log, error) {
	block, err := s.block()
	if err != nil {
		return nil, err
	}
	elapsed := block - m.accrualBlock
	if elapsed <= 0 {
		return nil, nil
	}
	factor := m.borrowRate.Mul(decimal.NewFromInt(elapsed))
	interest := m.totalBorrows.Mul(factor)
	m.totalBorrows = m.totalBorrows.Add(interest)
	m.totalReserves = m.totalReserves.Add(interest.Mul(m.reserveFactor))
	m.borrowIndex = m.borrowIndex.Add(m.borrowIndex.Mul(factor))
	m.accrualBlock = block
	if err := s.saveMarket(m); err != nil {
		return nil, err
	}
	if interest.IsZero() {
		return nil, nil
	}
	return []remote.Log{{Name: "AccrueInterest", Fields: []remote.Field{
		{Name: "interestAccumulated", Value: interest},
		{Name: "borrowIndex", Value: m.borrowIndex},
		{Name: "totalBorrows", Value: m.totalBorrows},
	}}}, nil
}

// liquidity is collateral minus debt across every market after a hypothetical
// redeem of redeemTokens and borrow of borrowAmount in target. Prices are one.
func (s *state) liquidity(who, target string, redeemTokens, borrowAmount decimal.Decimal) (decimal.Decimal, error) {
	addrs, err := s.marketAddresses()
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, addr := range addrs {
		m, err := s.loadMarket(addr)
		if err != nil {
			return decimal.Zero, err
		}
		tokens, err := s.tokenBalance(addr, who)
		if err != nil {
			return decimal.Zero, err
		}
		debt, err := s.borrowBalance(m, who)
		if err != nil {
			return decimal.Zero, err
		}
		if addr == target {
			tokens = tokens.Sub(redeemTokens)
			debt = debt.Add(borrowAmount)
		}
		rate, err := s.exchangeRate(m)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(tokens.Mul(rate).Mul(m.collateralFactor)).Sub(debt)
	}
	return total, nil
}

// failure is the graceful rejection shape: a zero-effect call returning an error
// code and emitting a Failure log.
func failure(logs []remote.Log, errCode, info, detail int64) remote.Receipt {
	return remote.Receipt{
		Return: decimal.NewFromInt(errCode),
		Logs: append(logs, remote.Log{Name: remote.FailureLog, Fields: []remote.Field{
			{Name: "error", Value: decimal.NewFromInt(errCode)},
			{Name: "info", Value: decimal.NewFromInt(info)},
			{Name: "detail", Value: decimal.NewFromInt(detail)},
		}}),
	}
}

func success(logs []remote.Log) remote.Receipt {
	return remote.Receipt{Return: decimal.Zero, Logs: logs}
}

func (s *state) sendMarket(addr, from string, call remote.Call) (remote.Receipt, error) {
	m, err := s.loadMarket(addr)
	if err != nil {
		return remote.Receipt{}, err
	}
	if call.Method == "mock" {
		return s.mock(m, call)
	}
	logs, err := s.accrue(m)
	if err != nil {
		return remote.Receipt{}, err
	}
	switch call.Method {
	case "accrueInterest":
		return success(logs), nil
	case "mint":
		amount, err := argAmount(call, 0)
		if err != nil {
			return remote.Receipt{}, err
		}
		return s.mintTokens(m, from, amount, logs)
	case "redeem":
		tokens, err := argAmount(call, 0)
		if err != nil {
			return remote.Receipt{}, err
		}
		rate, err := s.exchangeRate(m)
		if err != nil {
			return remote.Receipt{}, err
		}
		return s.redeem(m, from, tokens, tokens.Mul(rate), logs)
	case "redeemUnderlying":
		amount, err := argAmount(call, 0)
		if err != nil {
			return remote.Receipt{}, err
		}
		rate, err := s.exchangeRate(m)
		if err != nil {
			return remote.Receipt{}, err
		}
		return s.redeem(m, from, amount.DivRound(rate, ratePrecision), amount, logs)
	case "borrow":
		amount, err := argAmount(call, 0)
		if err != nil {
			return remote.Receipt{}, err
		}
		return s.borrow(m, from, amount, logs)
	case "repayBorrow":
		amount, err := argAmount(call, 0)
		if err != nil {
			return remote.Receipt{}, err
		}
		return s.repay(m, from, amount, logs)
	default:
		return remote.Receipt{}, fmt.Errorf("ctoken has no method %q", call.Method)
	}
}

// transferIn checks that payer can move amount of the underlying into the market.
func (s *state) transferIn(m *market, payer string, amount decimal.Decimal) (int64, error) {
	allowed, err := s.allowance(m.underlying, payer, m.addr)
	if err != nil {
		return 0, err
	}
	if allowed.LessThan(amount) {
		return errTokenInsufficientAllowance, nil
	}
	have, err := s.tokenBalance(m.underlying, payer)
	if err != nil {
		return 0, err
	}
	if have.LessThan(amount) {
		return errTokenInsufficientBalance, nil
	}
	if err := s.spend(m.underlying, payer, m.addr, amount); err != nil {
		return 0, err
	}
	return 0, s.move(m.underlying, payer, m.addr, amount)
}

func (s *state) mintTokens(m *market, minter string, amount decimal.Decimal, logs []remote.Log) (remote.Receipt, error) {
	rate, err := s.exchangeRate(m)
	if err != nil {
		return remote.Receipt{}, err
	}
	code, err := s.transferIn(m, minter, amount)
	if err != nil {
		return remote.Receipt{}, err
	}
	if code != 0 {
		return failure(logs, code, infoMintTransferInNotPossible, 0), nil
	}
	tokens := amount.DivRound(rate, ratePrecision)
	have, err := s.tokenBalance(m.addr, minter)
	if err != nil {
		return remote.Receipt{}, err
	}
	if err := s.setTokenBalance(m.addr, minter, have.Add(tokens)); err != nil {
		return remote.Receipt{}, err
	}
	m.totalSupply = m.totalSupply.Add(tokens)
	if err := s.saveMarket(m); err != nil {
		return remote.Receipt{}, err
	}
	return success(append(logs,
		remote.Log{Name: "Mint", Fields: []remote.Field{
			{Name: "minter", Value: minter},
			{Name: "mintAmount", Value: amount},
			{Name: "mintTokens", Value: tokens},
		}},
		transferLog(m.addr, minter, tokens))), nil
}

func (s *state) redeem(m *market, redeemer string, tokens, amount decimal.Decimal, logs []remote.Log) (remote.Receipt, error) {
	have, err := s.tokenBalance(m.addr, redeemer)
	if err != nil {
		return remote.Receipt{}, err
	}
	if have.LessThan(tokens) {
		return failure(logs, errTokenInsufficientBalance, infoRedeemTokensInsufficient, 0), nil
	}
	room, err := s.liquidity(redeemer, m.addr, tokens, decimal.Zero)
	if err != nil {
		return remote.Receipt{}, err
	}
	if room.IsNegative() {
		return failure(logs, errComptrollerRejection, infoRedeemComptrollerRejection, detailInsufficientLiquidity), nil
	}
	cash, err := s.cash(m)
	if err != nil {
		return remote.Receipt{}, err
	}
	if cash.LessThan(amount) {
		return failure(logs, errTokenInsufficientCash, infoRedeemTransferOutNotPossible, 0), nil
	}
	if err := s.move(m.underlying, m.addr, redeemer, amount); err != nil {
		return remote.Receipt{}, err
	}
	if err := s.setTokenBalance(m.addr, redeemer, have.Sub(tokens)); err != nil {
		return remote.Receipt{}, err
	}
	m.totalSupply = m.totalSupply.Sub(tokens)
	if err := s.saveMarket(m); err != nil {
		return remote.Receipt{}, err
	}
	return success(append(logs,
		remote.Log{Name: "Redeem", Fields: []remote.Field{
			{Name: "redeemer", Value: redeemer},
			{Name: "redeemAmount", Value: amount},
			{Name: "redeemTokens", Value: tokens},
		}},
		transferLog(redeemer, m.addr, tokens))), nil
}

func (s *state) borrow(m *market, borrower string, amount decimal.Decimal, logs []remote.Log) (remote.Receipt, error) {
	cash, err := s.cash(m)
	if err != nil {
		return remote.Receipt{}, err
	}
	if cash.LessThan(amount) {
		return failure(logs, errTokenInsufficientCash, infoBorrowCashNotAvailable, 0), nil
	}
	room, err := s.liquidity(borrower, m.addr, decimal.Zero, amount)
	if err != nil {
		return remote.Receipt{}, err
	}
	if room.IsNegative() {
		return failure(logs, errComptrollerRejection, infoBorrowComptrollerRejection, detailInsufficientLiquidity), nil
	}
	owed, err := s.borrowBalance(m, borrower)
	if err != nil {
		return remote.Receipt{}, err
	}
	if err := s.move(m.underlying, m.addr, borrower, amount); err != nil {
		return remote.Receipt{}, err
	}
	if err := s.setBorrow(m, borrower, owed.Add(amount)); err != nil {
		return remote.Receipt{}, err
	}
	m.totalBorrows = m.totalBorrows.Add(amount)
	if err := s.saveMarket(m); err != nil {
		return remote.Receipt{}, err
	}
	return success(append(logs, remote.Log{Name: "Borrow", Fields: []remote.Field{
		{Name: "borrower", Value: borrower},
		{Name: "borrowAmount", Value: amount},
		{Name: "accountBorrows", Value: owed.Add(amount)},
		{Name: "totalBorrows", Value: m.totalBorrows},
	}})), nil
}

// repay caps amount at the outstanding balance.
func (s *state) repay(m *market, payer string, amount decimal.Decimal, logs []remote.Log) (remote.Receipt, error) {
	owed, err := s.borrowBalance(m, payer)
	if err != nil {
		return remote.Receipt{}, err
	}
	if amount.GreaterThan(owed) {
		amount = owed
	}
	code, err := s.transferIn(m, payer, amount)
	if err != nil {
		return remote.Receipt{}, err
	}
	if code != 0 {
		return failure(logs, code, infoRepayBorrowTransferInNotPossible, 0), nil
	}
	if err := s.setBorrow(m, payer, owed.Sub(amount)); err != nil {
		return remote.Receipt{}, err
	}
	m.totalBorrows = decimal.Max(decimal.Zero, m.totalBorrows.Sub(amount))
	if err := s.saveMarket(m); err != nil {
		return remote.Receipt{}, err
	}
	return success(append(logs, remote.Log{Name: "RepayBorrow", Fields: []remote.Field{
		{Name: "payer", Value: payer},
		{Name: "repayAmount", Value: amount},
		{Name: "accountBorrows", Value: owed.Sub(amount)},
		{Name: "totalBorrows", Value: m.totalBorrows},
	}})), nil
}

// mock overwrites a storage variable without running market logic.
func (s *state) mock(m *market, call remote.Call) (remote.Receipt, error) {
	if len(call.Args) < 2 {
		return remote.Receipt{}, fmt.Errorf("mock: want variable and value")
	}
	variable, _ := call.Args[0].(string)
	value, err := argAmount(call, 1)
	if err != nil {
		return remote.Receipt{}, err
	}
	switch variable {
	case "totalBorrows":
		m.totalBorrows = value
	case "totalReserves":
		m.totalReserves = value
	default:
		return remote.Receipt{}, fmt.Errorf("ctoken has no storage variable %q", variable)
	}
	if err := s.saveMarket(m); err != nil {
		return remote.Receipt{}, err
	}
	return remote.Receipt{Return: true}, nil
}

func (s *state) callMarket(addr string, call remote.Call) (any, error) {
	m, err := s.loadMarket(addr)
	if err != nil {
		return nil, err
	}
	switch call.Method {
	case "totalBorrows":
		return m.totalBorrows, nil
	case "totalReserves":
		return m.totalReserves, nil
	case "totalSupply":
		return m.totalSupply, nil
	case "getCash":
		return s.cash(m)
	case "exchangeRateStored":
		return s.exchangeRate(m)
	case "underlying":
		return m.underlying, nil
	case "borrowIndex":
		return m.borrowIndex, nil
	case "balanceOf":
		who, err := argAddress(call, 0)
		if err != nil {
			return nil, err
		}
		return s.tokenBalance(addr, who)
	case "borrowBalanceStored":
		who, err := argAddress(call, 0)
		if err != nil {
			return nil, err
		}
		return s.borrowBalance(m, who)
	case "name":
		var name string
		err := s.q.QueryRowContext(s.ctx, `SELECT name FROM contracts WHERE address = ?`, addr).Scan(&name)
		return name, err
	default:
		return nil, fmt.Errorf("ctoken has no view %q", call.Method)
	}
}
