package commands

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/fumbl3b/harryAi/internal/tui"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Start an interactive chat session.

The chat maintains conversation context across messages for as long as the
session runs. Press Ctrl+L to clear it; type 'exit', 'quit', or press Esc to
end the session.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd, NewDependencies())
	},
}

func runChat(cmd *cobra.Command, deps *Dependencies) (err error) {
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

	p := tea.NewProgram(tui.New(a.ctrl, a.client.Model()),
		tea.WithAltScreen(),
		tea.WithInput(cmd.InOrStdin()),
		tea.WithOutput(cmd.OutOrStdout()))
	tui.Subscribe(a.ctrl, p.Send)

	_, err = p.Run()
	return err
}
