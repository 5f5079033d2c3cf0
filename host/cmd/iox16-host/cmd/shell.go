package cmd

import (
	"context"
	"os"

	"github.com/abiosoft/ishell"
	"github.com/spf13/cobra"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "interactive session on an open bus",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openMaster()
		if err != nil {
			return err
		}
		defer m.Close()

		sh := newShell(cmd.Context(), &session{master: m, out: os.Stdout})
		sh.Printf("IOX16 bus on %s at %d baud, type help for commands\n", cfg.Port.Device, cfg.Port.Baud)
		sh.Run()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(shellCmd)
}

// newShell registers every bus operation as a shell command.
func newShell(ctx context.Context, s *session) *ishell.Shell {
	sh := ishell.New()
	sh.SetPrompt("iox16> ")
	for _, op := range operations {
		sh.AddCmd(shellCommand(ctx, s, op))
	}
	return sh
}

func shellCommand(ctx context.Context, s *session, op operation) *ishell.Cmd {
	return &ishell.Cmd{
		Name:     op.name(),
		Help:     op.Short,
		LongHelp: "usage: " + op.Use,
		Func: func(c *ishell.Context) {
			if err := op.checkArgs(c.Args); err != nil {
				c.Err(err)
				return
			}
			if err := op.Run(ctx, s, c.Args); err != nil {
				c.Err(err)
			}
		},
	}
}
