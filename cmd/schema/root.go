package schema

import (
	"fmt"
	"strconv"

	"github.com/ValentinKolb/dShard/cmd/util"
	libschema "github.com/ValentinKolb/dShard/lib/schema"
	"github.com/spf13/cobra"
)

var (
	rt *util.Runtime

	// SchemaCommands represents the schema command group
	SchemaCommands = &cobra.Command{
		Use:   "schema",
		Short: "Create and inspect the physical shard tables",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) (err error) {
			rt, err = util.Setup(cmd)
			return err
		},
	}

	initCmd = &cobra.Command{
		Use:   "init [entity...]",
		Short: "Creates the physical tables of all shards (all entities if none are given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			names := args
			if len(names) == 0 {
				names = rt.EntityNames()
			}
			for _, name := range names {
				et, err := rt.Entity(name)
				if err != nil {
					return err
				}
				ctx, cancel := rt.Context()
				descs, err := rt.Registry.InitializeAllShards(ctx, et)
				cancel()
				if err != nil {
					return err
				}
				fmt.Printf("initialized %d shards of %s\n", len(descs), et.Name())
			}
			return nil
		},
	}

	listCmd = &cobra.Command{
		Use:   "list",
		Short: "Initializes all entities and lists their shard tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, et := range rt.Entities {
				ctx, cancel := rt.Context()
				_, err := rt.Registry.InitializeAllShards(ctx, et)
				cancel()
				if err != nil {
					return err
				}
			}
			fmt.Print(util.FormatDescriptors(rt.Registry.Descriptors()))
			return nil
		},
	}

	tableCmd = &cobra.Command{
		Use:   "table [entity] [id]",
		Short: "Prints the shard of an id without touching the database",
		Args:  cobra.ExactArgs(2),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) (err error) {
			rt, err = util.SetupOffline(cmd)
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			et, err := rt.Entity(args[0])
			if err != nil {
				return err
			}
			id, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("id must be a positive number: %w", err)
			}
			index, err := rt.Registry.IndexFor(id, et.ShardCount())
			if err != nil {
				return err
			}
			fmt.Printf("%s %d -> index=%d, table=%s, type=%s\n",
				et.Name(), id, index,
				libschema.PhysicalTableName(et.Name(), index),
				libschema.ShardTypeName(et.Name(), index))
			return nil
		},
	}
)

func init() {
	SchemaCommands.AddCommand(initCmd)
	SchemaCommands.AddCommand(listCmd)
	SchemaCommands.AddCommand(tableCmd)
}
