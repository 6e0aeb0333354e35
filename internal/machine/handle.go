package machine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sweeney/vendo/internal/coin"
	"github.com/sweeney/vendo/internal/command"
	"github.com/sweeney/vendo/internal/dispense"
)

// Handle runs a parsed operator command and returns a short reply.
func (m *Machine) Handle(ctx context.Context, cmd command.Command) (string, error) {
	switch cmd.Kind {
	case command.KindAddCredit:
		m.AddCredit(cmd.Amount)
		return "Credit: " + m.deps.Credit.Balance().String(), nil

	case command.KindDispense:
		a, err := m.Dispense(ctx, cmd.Channel)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Dispensed %s (%s)", a.Channel, a.End.Sub(a.Start).Round(time.Millisecond)), nil

	case command.KindSimulateCoin:
		if m.injector == nil || m.deps.Coins == nil {
			return "", fmt.Errorf("coin simulation unavailable")
		}
		pulses, ok := m.deps.Coins.Signature(cmd.Coin)
		if !ok {
			return "", fmt.Errorf("invalid coin %s, use %s", cmd.Coin, coinWords(m.deps.Coins))
		}
		if !m.injector.Inject(m.cfg.CoinChannel, pulses) {
			return "", fmt.Errorf("coin queue full")
		}
		return fmt.Sprintf("Inserted %s coin (%d pulses)", cmd.Coin, pulses), nil

	case command.KindShutdown:
		m.RequestShutdown("console")
		return "Shutting down", nil

	case command.KindStatus:
		return m.Summary(), nil

	default:
		return "", fmt.Errorf("unsupported command %s", cmd.Kind)
	}
}

// coinWords lists the accepted coin commands, e.g. "coin1, coin5 or coin10".
func coinWords(t *coin.Table) string {
	ds := t.Denominations()
	words := make([]string, len(ds))
	for i, d := range ds {
		words[i] = "coin" + d.Value.String()
	}
	if len(words) < 2 {
		return strings.Join(words, "")
	}
	return strings.Join(words[:len(words)-1], ", ") + " or " + words[len(words)-1]
}

// Summary is a one-line description of credit and stock.
func (m *Machine) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "credit %s", m.deps.Credit.Balance())
	for _, ch := range m.channels {
		cfg := ch.Config()
		n, _ := m.deps.Stock.Get(cfg.ID)
		fmt.Fprintf(&b, "; %s cost %s stock %d", cfg.ID, cfg.Cost, n)
		if s := ch.State(); s != dispense.StateIdle {
			fmt.Fprintf(&b, " [%s]", s)
		}
	}
	return b.String()
}
