package entity

import (
	"fmt"
	"strconv"

	"github.com/ValentinKolb/dShard/cmd/util"
	"github.com/spf13/cobra"
)

var (
	rt *util.Runtime

	// EntityCommands represents the entity command group
	EntityCommands = &cobra.Command{
		Use:   "entity",
		Short: "Create and read sharded records",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) (err error) {
			rt, err = util.Setup(cmd)
			return err
		},
	}

	createCmd = &cobra.Command{
		Use:   "create [entity] [field=value...]",
		Short: "Creates a record and prints its id and shard",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			et, err := rt.Entity(args[0])
			if err != nil {
				return err
			}
			values, err := util.ParseAssignments(et, args[1:])
			if err != nil {
				return err
			}
			ctx, cancel := rt.Context()
			defer cancel()
			rec, err := rt.Service.Create(ctx, et, values)
			if err != nil {
				return err
			}
			fmt.Print(util.FormatRecord(rec))
			return nil
		},
	}

	getCmd = &cobra.Command{
		Use:   "get [entity] [id]",
		Short: "Reads a record by id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			et, err := rt.Entity(args[0])
			if err != nil {
				return err
			}
			id, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("id must be a positive number: %w", err)
			}
			ctx, cancel := rt.Context()
			defer cancel()
			rec, ok, err := rt.Service.Get(ctx, et, id)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Printf("%s %d not found\n", et.Name(), id)
				return nil
			}
			fmt.Print(util.FormatRecord(rec))
			return nil
		},
	}
)

func init() {
	EntityCommands.AddCommand(createCmd)
	EntityCommands.AddCommand(getCmd)
}
