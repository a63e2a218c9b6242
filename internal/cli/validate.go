package cli

import (
	"fmt"

	"github.com/harun/clevent/pkg/plan"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate PLAN",
	Short: "Check a plan file without running it",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	p, err := plan.Load(args[0])
	if err != nil {
		return err
	}

	users := 0
	for _, c := range p.Commands {
		if c.User {
			users++
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "plan %s is valid: %d queues, %d commands (%d user)\n",
		p.Name, len(p.Queues), len(p.Commands), users)
	return nil
}
