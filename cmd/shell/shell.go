package shell

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ValentinKolb/dShard/cmd/util"
	"github.com/ValentinKolb/dShard/lib/schema"
)

// errExit is returned by the exit command
var errExit = errors.New("exit")

// Shell executes shell commands against a runtime
type Shell struct {
	rt  *util.Runtime
	out io.Writer
}

// NewShell creates a shell writing its output to out
func NewShell(rt *util.Runtime, out io.Writer) *Shell {
	return &Shell{rt: rt, out: out}
}

type command struct {
	usage string
	help  string
	run   func(s *Shell, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"help":     {"help", "Show this help message", (*Shell).help},
		"exit":     {"exit", "Exit the shell", func(*Shell, []string) error { return errExit }},
		"entities": {"entities", "List the configured entity types", (*Shell).entities},
		"init":     {"init [entity]", "Create the tables of all shards", (*Shell).init},
		"create":   {"create <entity> [field=value...]", "Create a record", (*Shell).create},
		"get":      {"get <entity> <id>", "Read a record", (*Shell).get},
		"table":    {"table <entity> <id>", "Show the shard of an id", (*Shell).table},
		"next":     {"next", "Allocate the next global id", (*Shell).next},
		"peek":     {"peek", "Show the largest allocated id", (*Shell).peek},
	}
	commands["quit"] = commands["exit"]
}

// Execute runs a single line. The boolean return value is true if the shell should exit.
func (s *Shell) Execute(line string) (bool, error) {
	args, err := splitArgs(line)
	if err != nil {
		return false, err
	}
	if len(args) == 0 {
		return false, nil
	}
	cmd, ok := commands[strings.ToLower(args[0])]
	if !ok {
		return false, fmt.Errorf("unknown command %q, type 'help' for a list of commands", args[0])
	}
	err = cmd.run(s, args[1:])
	if errors.Is(err, errExit) {
		return true, nil
	}
	return false, err
}

// Complete returns completions for the line (command names and entity names)
func (s *Shell) Complete(line string) []string {
	var out []string
	fields := strings.Fields(line)
	switch {
	case len(fields) == 0 || (len(fields) == 1 && !strings.HasSuffix(line, " ")):
		prefix := strings.TrimSpace(line)
		for _, name := range commandNames() {
			if strings.HasPrefix(name, prefix) {
				out = append(out, name+" ")
			}
		}
	case len(fields) == 1 || (len(fields) == 2 && !strings.HasSuffix(line, " ")):
		prefix := ""
		if len(fields) == 2 {
			prefix = fields[1]
		}
		for _, name := range s.rt.EntityNames() {
			if strings.HasPrefix(strings.ToLower(name), strings.ToLower(prefix)) {
				out = append(out, fields[0]+" "+name+" ")
			}
		}
	}
	return out
}

// --------------------------------------------------------------------------
// Commands
// --------------------------------------------------------------------------

func (s *Shell) help(_ []string) error {
	fmt.Fprintln(s.out, "dShard Shell Commands:")
	for _, name := range commandNames() {
		c := commands[name]
		fmt.Fprintf(s.out, "  %-34s %s\n", c.usage, c.help)
	}
	fmt.Fprintln(s.out)
	fmt.Fprintln(s.out, "Values with spaces must be quoted: create User username=\"John Doe\"")
	return nil
}

func (s *Shell) entities(_ []string) error {
	for _, name := range s.rt.EntityNames() {
		et, _ := s.rt.Entity(name)
		fmt.Fprintln(s.out, et)
		for _, f := range et.Schema().Fields() {
			if f.Size > 0 {
				fmt.Fprintf(s.out, "  %-20s %s(%d)\n", f.Name, f.Type, f.Size)
			} else {
				fmt.Fprintf(s.out, "  %-20s %s\n", f.Name, f.Type)
			}
		}
	}
	return nil
}

func (s *Shell) init(args []string) error {
	names := args
	if len(names) == 0 {
		names = s.rt.EntityNames()
	}
	for _, name := range names {
		et, err := s.rt.Entity(name)
		if err != nil {
			return err
		}
		ctx, cancel := s.rt.Context()
		descs, err := s.rt.Registry.InitializeAllShards(ctx, et)
		cancel()
		if err != nil {
			return err
		}
		fmt.Fprint(s.out, util.FormatDescriptors(descs))
	}
	return nil
}

func (s *Shell) create(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: %s", commands["create"].usage)
	}
	et, err := s.rt.Entity(args[0])
	if err != nil {
		return err
	}
	values, err := util.ParseAssignments(et, args[1:])
	if err != nil {
		return err
	}
	ctx, cancel := s.rt.Context()
	defer cancel()
	rec, err := s.rt.Service.Create(ctx, et, values)
	if err != nil {
		return err
	}
	fmt.Fprint(s.out, util.FormatRecord(rec))
	return nil
}

func (s *Shell) get(args []string) error {
	et, id, err := s.entityAndID("get", args)
	if err != nil {
		return err
	}
	ctx, cancel := s.rt.Context()
	defer cancel()
	rec, ok, err := s.rt.Service.Get(ctx, et, id)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintf(s.out, "%s %d not found\n", et.Name(), id)
		return nil
	}
	fmt.Fprint(s.out, util.FormatRecord(rec))
	return nil
}

func (s *Shell) table(args []string) error {
	et, id, err := s.entityAndID("table", args)
	if err != nil {
		return err
	}
	index, err := s.rt.Registry.IndexFor(id, et.ShardCount())
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%s %d -> index=%d, table=%s, type=%s\n", et.Name(), id, index,
		schema.PhysicalTableName(et.Name(), index), schema.ShardTypeName(et.Name(), index))
	return nil
}

func (s *Shell) next(_ []string) error {
	ctx, cancel := s.rt.Context()
	defer cancel()
	id, err := s.rt.Allocator.Allocate(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, id)
	return nil
}

func (s *Shell) peek(_ []string) error {
	ctx, cancel := s.rt.Context()
	defer cancel()
	id, ok, err := s.rt.Allocator.PeekMax(ctx)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(s.out, "no id allocated yet")
		return nil
	}
	fmt.Fprintln(s.out, id)
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func (s *Shell) entityAndID(name string, args []string) (*schema.EntityType, uint64, error) {
	if len(args) != 2 {
		return nil, 0, fmt.Errorf("usage: %s", commands[name].usage)
	}
	et, err := s.rt.Entity(args[0])
	if err != nil {
		return nil, 0, err
	}
	id, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return nil, 0, fmt.Errorf("id must be a positive number: %w", err)
	}
	return et, id, nil
}

func commandNames() []string {
	return []string{"help", "entities", "init", "create", "get", "table", "next", "peek", "exit"}
}

// splitArgs splits a line at whitespace, double quotes group words
func splitArgs(line string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		inQuote bool
		inArg   bool
	)
	for _, r := range line {
		switch {
		case r == '"':
			inQuote = !inQuote
			inArg = true
		case (r == ' ' || r == '\t') && !inQuote:
			if inArg {
				args = append(args, cur.String())
				cur.Reset()
				inArg = false
			}
		default:
			cur.WriteRune(r)
			inArg = true
		}
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated quote")
	}
	if inArg {
		args = append(args, cur.String())
	}
	return args, nil
}
