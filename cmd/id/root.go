package id

import (
	"fmt"

	"github.com/ValentinKolb/dShard/cmd/util"
	"github.com/spf13/cobra"
)

var (
	rt *util.Runtime

	// IDCommands represents the id command group
	IDCommands = &cobra.Command{
		Use:   "id",
		Short: "Work with the global id counter",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) (err error) {
			rt, err = util.Setup(cmd)
			return err
		},
	}

	nextCmd = &cobra.Command{
		Use:   "next",
		Short: "Allocates and prints the next global id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := rt.Context()
			defer cancel()
			id, err := rt.Allocator.Allocate(ctx)
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		},
	}

	peekCmd = &cobra.Command{
		Use:   "peek",
		Short: "Prints the largest id allocated so far (without allocating)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := rt.Context()
			defer cancel()
			id, ok, err := rt.Allocator.PeekMax(ctx)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Printf("counter %s: no id allocated yet\n", rt.Allocator.Name())
				return nil
			}
			fmt.Println(id)
			return nil
		},
	}
)

func init() {
	IDCommands.AddCommand(nextCmd)
	IDCommands.AddCommand(peekCmd)
}
