package commands

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/llxisdsh/parkx"
)

// NewDemoCmd returns the demo command.
func NewDemoCmd() *cobra.Command {
	var delay time.Duration

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the rendezvous and condition variable demonstrations",
		Args:  cobra.NoArgs,
		RunE: func(cc *cobra.Command, _ []string) error {
			msg, err := oneshotDemo()
			if err != nil {
				return err
			}
			cc.Printf("oneshot: received %q\n", msg)

			v, wakeups := condVarDemo(delay)
			cc.Printf("condvar: observed %d after %d wakeup(s)\n", v, wakeups)

			return nil
		},
	}

	cmd.Flags().DurationVar(&delay, "delay", 100*time.Millisecond, "How long the notifier sleeps before updating the value")

	return cmd
}

// oneshotDemo sends a message from a new goroutine while the caller polls
// IsReady and parks until it arrives.
func oneshotDemo() (string, error) {
	tx, rx := parkx.NewOneshot[string]()
	go func() {
		if err := tx.Send("hello, world"); err != nil {
			slog.Error("send failed", slog.Any("error", err))
		}
	}()

	msg, err := rx.Recv()
	if err != nil {
		return "", fmt.Errorf("oneshot: %w", err)
	}
	slog.Debug("oneshot delivered", slog.String("message", msg))
	return msg, nil
}

// condVarDemo waits on a CondVar until another goroutine raises a
// Mutex-protected value past 100.
func condVarDemo(delay time.Duration) (int, int) {
	m := parkx.NewMutex(0)
	cv := parkx.NewCondVar()

	go func() {
		time.Sleep(delay)
		g := m.Lock()
		*g.Value() = 123
		cv.NotifyOne()
		g.Unlock()
	}()

	wakeups := 0
	g := m.Lock()
	defer g.Unlock()
	for *g.Value() < 100 {
		cv.Wait(&g)
		wakeups++
		slog.Debug("condvar woke", slog.Int("value", *g.Value()), slog.Int("wakeups", wakeups))
	}
	return *g.Value(), wakeups
}
