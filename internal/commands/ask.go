package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/fumbl3b/harryAi/internal/chat"
	"github.com/fumbl3b/harryAi/internal/models"
)

var askCmd = &cobra.Command{
	Use:   "ask <message>",
	Short: "Send a single message and print the reply as it is revealed",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		return runAsk(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), strings.Join(args, " "), NewDependencies())
	},
}

func runAsk(ctx context.Context, out, errOut io.Writer, text string, deps *Dependencies) (err error) {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, true)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	a, err := newApp(cfg, logger, deps)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, a.Close()) }()

	// Submit runs on this goroutine, so snapshots arrive in order.
	printer := &revealPrinter{out: out}
	a.ctrl.OnChange(printer.observe)

	if err := a.ctrl.Submit(ctx, text); err != nil {
		if notice := printer.notice; notice != "" {
			fmt.Fprintln(errOut, notice)
		}
		return err
	}
	fmt.Fprintln(out)
	return nil
}

// revealPrinter writes the growing assistant record to out as fragments land.
type revealPrinter struct {
	out     io.Writer
	printed string
	notice  string
}

func (p *revealPrinter) observe(s chat.Snapshot) {
	if len(s.Messages) == 0 {
		return
	}
	rec := s.Messages[len(s.Messages)-1]
	switch {
	case rec.IsUser:
		return
	case rec.IsError:
		p.notice = rec.Text
		return
	case rec.IsTyping && models.IsPlaceholder(rec.Text):
		return
	}
	if s.State == chat.StateRevealing || s.State == chat.StateCommitted {
		if strings.HasPrefix(rec.Text, p.printed) {
			fmt.Fprint(p.out, rec.Text[len(p.printed):])
			p.printed = rec.Text
		}
	}
}
