package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"scenario/interpreter-go/pkg/remote"
)

// Structured abort codes of the erc20 error table.
const (
	codeInsufficientAllowance = 6
	codeInsufficientBalance   = 7
)

const zeroAddress = "0x0000000000000000000000000000000000000000"

func (s *state) deployToken(addr string, spec remote.DeploySpec) error {
	symbol, err := paramString(spec, "symbol")
	if err != nil {
		return err
	}
	decimals, err := paramAmount(spec, "decimals", decimal.NewFromInt(18))
	if err != nil {
		return err
	}
	_, err = s.exec(`INSERT INTO tokens (address, symbol, decimals, total_supply) VALUES (?, ?, ?, ?)`,
		addr, symbol, decimals.IntPart(), decimal.Zero)
	return err
}

func (s *state) tokenBalance(token, who string) (decimal.Decimal, error) {
	return s.amount(`SELECT amount FROM balances WHERE token = ? AND account = ?`, token, who)
}

func (s *state) setTokenBalance(token, who string, amount decimal.Decimal) error {
	_, err := s.exec(`INSERT INTO balances (token, account, amount) VALUES (?, ?, ?)
		ON CONFLICT (token, account) DO UPDATE SET amount = excluded.amount`, token, who, amount)
	return err
}

func (s *state) allowance(token, owner, spender string) (decimal.Decimal, error) {
	return s.amount(`SELECT amount FROM allowances WHERE token = ? AND owner = ? AND spender = ?`, token, owner, spender)
}

func (s *state) setAllowance(token, owner, spender string, amount decimal.Decimal) error {
	_, err := s.exec(`INSERT INTO allowances (token, owner, spender, amount) VALUES (?, ?, ?, ?)
		ON CONFLICT (token, owner, spender) DO UPDATE SET amount = excluded.amount`, token, owner, spender, amount)
	return err
}

// move transfers token balance, aborting with INSUFFICIENT_BALANCE.
func (s *state) move(token, from, to string, amount decimal.Decimal) error {
	have, err := s.tokenBalance(token, from)
	if err != nil {
		return err
	}
	if have.LessThan(amount) {
		return remote.RevertCode("INSUFFICIENT_BALANCE", codeInsufficientBalance)
	}
	if err := s.setTokenBalance(token, from, have.Sub(amount)); err != nil {
		return err
	}
	dest, err := s.tokenBalance(token, to)
	if err != nil {
		return err
	}
	return s.setTokenBalance(token, to, dest.Add(amount))
}

// spend consumes allowance of spender over owner's tokens.
func (s *state) spend(token, owner, spender string, amount decimal.Decimal) error {
	allowed, err := s.allowance(token, owner, spender)
	if err != nil {
		return err
	}
	if allowed.LessThan(amount) {
		return remote.RevertCode("INSUFFICIENT_ALLOWANCE", codeInsufficientAllowance)
	}
	return s.setAllowance(token, owner, spender, allowed.Sub(amount))
}

func (s *state) mint(token, who string, amount decimal.Decimal) error {
	have, err := s.tokenBalance(token, who)
	if err != nil {
		return err
	}
	if err := s.setTokenBalance(token, who, have.Add(amount)); err != nil {
		return err
	}
	supply, err := s.amount(`SELECT total_supply FROM tokens WHERE address = ?`, token)
	if err != nil {
		return err
	}
	_, err = s.exec(`UPDATE tokens SET total_supply = ? WHERE address = ?`, supply.Add(amount), token)
	return err
}

func transferLog(from, to string, amount decimal.Decimal) remote.Log {
	return remote.Log{Name: "Transfer", Fields: []remote.Field{
		{Name: "from", Value: from},
		{Name: "to", Value: to},
		{Name: "amount", Value: amount},
	}}
}

func (s *state) sendToken(token, from string, call remote.Call) (remote.Receipt, error) {
	switch call.Method {
	case "transfer":
		to, err := argAddress(call, 0)
		if err != nil {
			return remote.Receipt{}, err
		}
		amount, err := argAmount(call, 1)
		if err != nil {
			return remote.Receipt{}, err
		}
		if err := s.move(token, from, to, amount); err != nil {
			return remote.Receipt{}, err
		}
		return remote.Receipt{Return: true, Logs: []remote.Log{transferLog(from, to, amount)}}, nil

	case "transferFrom":
		owner, err := argAddress(call, 0)
		if err != nil {
			return remote.Receipt{}, err
		}
		to, err := argAddress(call, 1)
		if err != nil {
			return remote.Receipt{}, err
		}
		amount, err := argAmount(call, 2)
		if err != nil {
			return remote.Receipt{}, err
		}
		if err := s.spend(token, owner, from, amount); err != nil {
			return remote.Receipt{}, err
		}
		if err := s.move(token, owner, to, amount); err != nil {
			return remote.Receipt{}, err
		}
		return remote.Receipt{Return: true, Logs: []remote.Log{transferLog(owner, to, amount)}}, nil

	case "approve":
		spender, err := argAddress(call, 0)
		if err != nil {
			return remote.Receipt{}, err
		}
		amount, err := argAmount(call, 1)
		if err != nil {
			return remote.Receipt{}, err
		}
		if err := s.setAllowance(token, from, spender, amount); err != nil {
			return remote.Receipt{}, err
		}
		return remote.Receipt{Return: true, Logs: []remote.Log{{Name: "Approval", Fields: []remote.Field{
			{Name: "owner", Value: from},
			{Name: "spender", Value: spender},
			{Name: "amount", Value: amount},
		}}}}, nil

	case "faucet":
		who, err := argAddress(call, 0)
		if err != nil {
			return remote.Receipt{}, err
		}
		amount, err := argAmount(call, 1)
		if err != nil {
			return remote.Receipt{}, err
		}
		if err := s.mint(token, who, amount); err != nil {
			return remote.Receipt{}, err
		}
		return remote.Receipt{Return: true, Logs: []remote.Log{transferLog(zeroAddress, who, amount)}}, nil

	default:
		return remote.Receipt{}, fmt.Errorf("erc20 has no method %q", call.Method)
	}
}

func (s *state) callToken(token string, call remote.Call) (any, error) {
	switch call.Method {
	case "balanceOf":
		who, err := argAddress(call, 0)
		if err != nil {
			return nil, err
		}
		return s.tokenBalance(token, who)
	case "allowance":
		owner, err := argAddress(call, 0)
		if err != nil {
			return nil, err
		}
		spender, err := argAddress(call, 1)
		if err != nil {
			return nil, err
		}
		return s.allowance(token, owner, spender)
	case "totalSupply":
		return s.amount(`SELECT total_supply FROM tokens WHERE address = ?`, token)
	case "name":
		var name string
		err := s.q.QueryRowContext(s.ctx, `SELECT name FROM contracts WHERE address = ?`, token).Scan(&name)
		return name, err
	case "symbol":
		var symbol string
		err := s.q.QueryRowContext(s.ctx, `SELECT symbol FROM tokens WHERE address = ?`, token).Scan(&symbol)
		return symbol, err
	case "decimals":
		var decimals int64
		err := s.q.QueryRowContext(s.ctx, `SELECT decimals FROM tokens WHERE address = ?`, token).Scan(&decimals)
		return decimal.NewFromInt(decimals), err
	default:
		return nil, fmt.Errorf("erc20 has no view %q", call.Method)
	}
}
