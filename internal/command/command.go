// Package command parses operator text into controller commands and runs
// the interactive console.
package command

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Kind identifies a command.
type Kind int

const (
	KindAddCredit Kind = iota + 1
	KindDispense
	KindShutdown
	KindSimulateCoin
	KindStatus
	KindHelp
)

func (k Kind) String() string {
	switch k {
	case KindAddCredit:
		return "ADD_CREDIT"
	case KindDispense:
		return "DISPENSE"
	case KindShutdown:
		return "SHUTDOWN"
	case KindSimulateCoin:
		return "SIMULATE_COIN"
	case KindStatus:
		return "STATUS"
	case KindHelp:
		return "HELP"
	default:
		return "UNKNOWN"
	}
}

// Command is one parsed operator request.
type Command struct {
	Kind    Kind
	Amount  decimal.Decimal // KindAddCredit
	Channel string          // KindDispense: channel ID or alias
	Coin    decimal.Decimal // KindSimulateCoin: face value
}

// ErrEmpty is returned for blank input.
var ErrEmpty = errors.New("empty command")

// Help lists the console vocabulary.
const Help = `commands:
  <amount> | credit <amount>   add credit
  coin<value>                  simulate inserting a coin of that value
  <channel>                    dispense from a channel (ID or alias)
  status                       show credit and stock
  shutdown | quit | exit       stop the machine`

// Parse turns a line of text into a Command. Anything that is not a known
// keyword, amount or coin is taken as a channel to dispense from; the
// caller resolves it.
func Parse(text string) (Command, error) {
	fields := strings.Fields(strings.ToLower(text))
	if len(fields) == 0 {
		return Command{}, ErrEmpty
	}
	word := fields[0]

	switch word {
	case "shutdown", "quit", "exit", "q":
		return Command{Kind: KindShutdown}, nil
	case "status", "s":
		return Command{Kind: KindStatus}, nil
	case "help", "?":
		return Command{Kind: KindHelp}, nil
	case "credit":
		if len(fields) != 2 {
			return Command{}, fmt.Errorf("usage: credit <amount>")
		}
		return parseCredit(fields[1])
	case "coin":
		if len(fields) != 2 {
			return Command{}, fmt.Errorf("usage: coin<value>")
		}
		return parseCoin(fields[1])
	}

	if strings.HasPrefix(word, "coin") {
		return parseCoin(strings.TrimPrefix(word, "coin"))
	}
	if _, err := decimal.NewFromString(word); err == nil {
		return parseCredit(word)
	}
	if len(fields) != 1 {
		return Command{}, fmt.Errorf("unknown command %q", text)
	}
	return Command{Kind: KindDispense, Channel: word}, nil
}

func parseCredit(s string) (Command, error) {
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return Command{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if !amount.IsPositive() {
		return Command{}, fmt.Errorf("amount must be positive, got %s", amount)
	}
	return Command{Kind: KindAddCredit, Amount: amount}, nil
}

func parseCoin(s string) (Command, error) {
	value, err := decimal.NewFromString(s)
	if err != nil || !value.IsPositive() {
		return Command{}, fmt.Errorf("invalid coin value %q", s)
	}
	return Command{Kind: KindSimulateCoin, Coin: value}, nil
}
