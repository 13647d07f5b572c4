// Package wallet implements the balance ledger: custody of user value and the
// privileged execute-on-behalf-of entry point the booking engine is driven
// through.
package wallet

import (
	"fmt"
	"time"

	"github.com/mktetts/sei-solar-depin/internal/engine"
)

// CostSchedule maps a command kind to its metered execution cost. The actual
// cost of a call is only known once it has run, so Execute pre-funds against a
// conservative estimate and charges the lesser of the two afterwards.
type CostSchedule map[string]uint64

// DefaultCosts mirrors the per-operation budgets the platform advertises.
func DefaultCosts() CostSchedule {
	return CostSchedule{
		engine.KindPrebook:       100,
		engine.KindBuyPower:      300,
		engine.KindEmergencyStop: 200,
	}
}

// ActualCost returns the metered cost for a command kind, falling back to the
// largest scheduled entry for unknown kinds.
func (c CostSchedule) ActualCost(kind string) uint64 {
	if v, ok := c[kind]; ok {
		return v
	}
	var max uint64
	for _, v := range c {
		if v > max {
			max = v
		}
	}
	return max
}

// Wallet holds every user's spendable balance. It is the sole component
// allowed to move value between users and to reimburse the operator for
// execution costs. Not safe for concurrent use; the substrate serializes
// all calls.
type Wallet struct {
	operator      engine.Address
	balances      map[engine.Address]uint64
	held          uint64
	estimatedCost uint64
	costs         CostSchedule
	executions    []engine.ExecutionRecord
}

// New constructs a wallet with the given operator identity and per-call
// execution cost estimate. The estimate should be an upper bound on every
// entry in the schedule.
func New(operator engine.Address, estimatedCost uint64, costs CostSchedule) (*Wallet, error) {
	if operator.Empty() {
		return nil, fmt.Errorf("wallet: operator: %w", engine.ErrInvalid)
	}
	if costs == nil {
		costs = DefaultCosts()
	}
	return &Wallet{
		operator:      operator,
		balances:      make(map[engine.Address]uint64),
		estimatedCost: estimatedCost,
		costs:         costs,
	}, nil
}

// Deposit credits the user and grows the total held value.
func (w *Wallet) Deposit(user engine.Address, amount uint64) error {
	if user.Empty() {
		return fmt.Errorf("wallet: deposit user: %w", engine.ErrInvalid)
	}
	if amount == 0 {
		return fmt.Errorf("wallet: deposit amount must be positive: %w", engine.ErrInvalid)
	}
	held, err := engine.AddChecked(w.held, amount)
	if err != nil {
		return err
	}
	bal, err := engine.AddChecked(w.balances[user], amount)
	if err != nil {
		return err
	}
	w.held = held
	w.balances[user] = bal
	return nil
}

// Withdraw debits the user and transfers the value out of the ledger.
func (w *Wallet) Withdraw(user engine.Address, amount uint64) error {
	if amount == 0 {
		return fmt.Errorf("wallet: withdraw amount must be positive: %w", engine.ErrInvalid)
	}
	if w.balances[user] < amount {
		return fmt.Errorf("wallet: withdraw %d for %s: %w", amount, user, engine.ErrInsufficientBalance)
	}
	w.balances[user] -= amount
	w.held -= amount
	return nil
}

// CreditUserRefund accepts value returned by another component, earmarked for
// a specific user. This is the only correct way external components return
// money: a bare transfer cannot carry the beneficiary's identity.
func (w *Wallet) CreditUserRefund(user engine.Address, amount uint64) error {
	if user.Empty() {
		return fmt.Errorf("wallet: refund user: %w", engine.ErrInvalid)
	}
	held, err := engine.AddChecked(w.held, amount)
	if err != nil {
		return err
	}
	bal, err := engine.AddChecked(w.balances[user], amount)
	if err != nil {
		return err
	}
	w.held = held
	w.balances[user] = bal
	return nil
}

// Execute invokes target with amount attached on behalf of user. Operator
// only. The user must be able to cover amount plus the estimated execution
// cost up front; after the target call succeeds the user is debited amount
// plus min(actual, estimated) and the operator is reimbursed the same. A
// failed target invocation aborts the whole call with no balance movement.
func (w *Wallet) Execute(caller, user engine.Address, target engine.Target, amount uint64, at time.Time, cmd engine.Command) (engine.Receipt, error) {
	if caller != w.operator {
		return engine.Receipt{}, fmt.Errorf("wallet: execute caller %s: %w", caller, engine.ErrUnauthorized)
	}
	if target == nil || cmd == nil {
		return engine.Receipt{}, fmt.Errorf("wallet: execute target/command: %w", engine.ErrInvalid)
	}
	need, err := engine.AddChecked(amount, w.estimatedCost)
	if err != nil {
		return engine.Receipt{}, err
	}
	if w.balances[user] < need {
		return engine.Receipt{}, fmt.Errorf("wallet: %s needs %d to execute %s: %w", user, need, cmd.Kind(), engine.ErrInsufficientBalance)
	}

	rcpt, err := target.Execute(engine.Call{User: user, Value: amount, At: at, Command: cmd})
	if err != nil {
		return engine.Receipt{}, err
	}

	actual := w.costs.ActualCost(cmd.Kind())
	charged := actual
	if w.estimatedCost < charged {
		charged = w.estimatedCost
	}
	// The target may have credited a refund during the call, so the balance
	// only grew since the pre-check.
	w.balances[user] -= amount + charged
	w.balances[w.operator] += charged
	w.held -= amount

	w.executions = append(w.executions, engine.ExecutionRecord{
		User:       user,
		Target:     target.Name(),
		Op:         cmd.Kind(),
		Amount:     amount,
		ActualCost: actual,
		Charged:    charged,
		At:         at,
	})
	return rcpt, nil
}

// ChangeOperator hands the operator role to a new identity. Current operator
// only; the new identity must be non-empty.
func (w *Wallet) ChangeOperator(caller, next engine.Address) error {
	if caller != w.operator {
		return fmt.Errorf("wallet: change operator by %s: %w", caller, engine.ErrUnauthorized)
	}
	if next.Empty() {
		return fmt.Errorf("wallet: new operator: %w", engine.ErrInvalid)
	}
	w.operator = next
	return nil
}

func (w *Wallet) Operator() engine.Address { return w.operator }

// Balance returns the user's spendable balance.
func (w *Wallet) Balance(user engine.Address) uint64 { return w.balances[user] }

// Held returns the ledger's total held value. The sum of all balances never
// exceeds it.
func (w *Wallet) Held() uint64 { return w.held }

// EstimatedCost returns the fixed per-call execution budget.
func (w *Wallet) EstimatedCost() uint64 { return w.estimatedCost }

// Costs returns the metered cost schedule.
func (w *Wallet) Costs() CostSchedule { return w.costs }

// Executions returns the proxy execution records in commit order.
func (w *Wallet) Executions() []engine.ExecutionRecord {
	out := make([]engine.ExecutionRecord, len(w.executions))
	copy(out, w.executions)
	return out
}
