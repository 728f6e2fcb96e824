package shell

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ValentinKolb/dShard/cmd/util"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"
)

const (
	prompt      = "dshard> "
	historyFile = ".dshard_history"
)

var (
	rt *util.Runtime

	// ShellCmd starts the interactive shell
	ShellCmd = &cobra.Command{
		Use:   "shell",
		Short: "Start an interactive shell",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) (err error) {
			rt, err = util.Setup(cmd)
			return err
		},
		RunE: run,
	}
)

func run(_ *cobra.Command, _ []string) error {
	sh := NewShell(rt, os.Stdout)

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(sh.Complete)

	histPath := historyPath()
	if f, err := os.Open(histPath); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}

	fmt.Printf("dShard Shell (%s backend, entities: %s)\n", rt.Config.Backend, strings.Join(rt.EntityNames(), ", "))
	fmt.Println("Type 'help' for commands.")

	for {
		input, err := line.Prompt(prompt)
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			fmt.Println()
			break
		}
		if err != nil {
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		exit, err := sh.Execute(input)
		if err != nil {
			fmt.Printf("ERROR: %v\n", err)
		}
		if exit {
			break
		}
	}

	if f, err := os.Create(histPath); err == nil {
		_, _ = line.WriteHistory(f)
		f.Close()
	}
	return nil
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), historyFile)
	}
	return filepath.Join(home, historyFile)
}
