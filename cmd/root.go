package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/dShard/cmd/entity"
	"github.com/ValentinKolb/dShard/cmd/id"
	"github.com/ValentinKolb/dShard/cmd/perf"
	"github.com/ValentinKolb/dShard/cmd/schema"
	"github.com/ValentinKolb/dShard/cmd/shell"
	"github.com/ValentinKolb/dShard/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "dshard",
		Short: "table sharding with a global id allocator",
		Long: fmt.Sprintf(`dShard (v%s)

Splits logical entities (e.g. User) across N physical tables (user_0 ... user_N-1).
Every record gets an id from a single global counter and lives in table id mod N.

All flags can also be set as environment variables DSHARD_<FLAG>
(e.g. DSHARD_BACKEND=postgres) or in a .env / .env.local file.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dShard",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dShard v%s\n", Version)
		},
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)
	// Close backend and counter after every command
	cobra.OnFinalize(util.Shutdown)

	// Add Commands
	RootCmd.AddCommand(schema.SchemaCommands)
	RootCmd.AddCommand(id.IDCommands)
	RootCmd.AddCommand(entity.EntityCommands)
	RootCmd.AddCommand(perf.PerfCmd)
	RootCmd.AddCommand(shell.ShellCmd)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	util.SetupConfigFlags(RootCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
