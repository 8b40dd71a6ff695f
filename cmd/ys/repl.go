package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/yaml/yamlscript-go/mode"
	"github.com/yaml/yamlscript-go/ys"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive REPL on one engine isolate",
	Long: `Start an interactive REPL (Read-Eval-Print Loop) session.

Features:
  - Command history (up/down arrows)
  - Line editing (left/right, backspace, delete)
  - History search (Ctrl+R)
  - Multi-line input (end line with \)
  - :clj <source> prints the Clojure compilation

Type 'exit' or 'quit' to end the session, or press Ctrl+D.`,
	Args: cobra.NoArgs,
	RunE: runRepl,
}

func init() {
	replCmd.Flags().StringP("mode", "m", mode.Code.Name(), "Input mode: "+strings.Join(mode.Names(), ", "))
	replCmd.Flags().StringP("output", "o", "json-compact", "Output format: json, json-compact, yaml")
	replCmd.Flags().String("history", "", "History file path (default: ~/.ys_history)")
	rootCmd.AddCommand(replCmd)
}

const (
	promptMain = "ys> "
	promptMore = "... "
)

type lineReader interface {
	Readline() (string, error)
	SetPrompt(prompt string)
}

func runRepl(cmd *cobra.Command, args []string) error {
	modeName, _ := cmd.Flags().GetString("mode")
	output, _ := cmd.Flags().GetString("output")
	historyFile, _ := cmd.Flags().GetString("history")

	m, err := mode.Parse(modeName)
	if err != nil {
		return err
	}
	if _, ok := formats.Get(output); !ok {
		return fmt.Errorf("unknown output format %q", output)
	}

	if historyFile == "" {
		home, _ := os.UserHomeDir()
		historyFile = filepath.Join(home, ".ys_history")
	}

	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            promptMain,
		HistoryFile:       historyFile,
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("initialize readline: %w", err)
	}
	defer rl.Close()

	fmt.Fprintf(cmd.ErrOrStderr(), "ys %s REPL, %s mode (type 'exit' to quit, Ctrl+D to exit)\n", ys.Version, m)

	return repl(rl, rt, m, output, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// repl reads entries until EOF or exit and prints each result. Evaluation
// errors are printed and the loop continues.
func repl(rl lineReader, rt *ys.Runtime, m mode.Mode, output string, out, errOut io.Writer) error {
	var multiLine strings.Builder
	inMultiLine := false

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				if inMultiLine {
					multiLine.Reset()
					inMultiLine = false
					rl.SetPrompt(promptMain)
				}
				continue
			}
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(out)
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}

		// Handle multi-line input
		if strings.HasSuffix(line, "\\") {
			multiLine.WriteString(strings.TrimSuffix(line, "\\"))
			multiLine.WriteString("\n")
			inMultiLine = true
			rl.SetPrompt(promptMore)
			continue
		}

		if inMultiLine {
			multiLine.WriteString(line)
			line = multiLine.String()
			multiLine.Reset()
			inMultiLine = false
			rl.SetPrompt(promptMain)
		}

		entry := strings.TrimSpace(line)
		if entry == "" {
			continue
		}
		if entry == "exit" || entry == "quit" {
			return nil
		}

		if src, ok := strings.CutPrefix(entry, ":clj "); ok {
			clj, err := rt.Compile(m.Wrap(src))
			if err != nil {
				fmt.Fprintf(errOut, "Error: %v\n", err)
				continue
			}
			fmt.Fprintln(out, clj)
			continue
		}

		v, err := rt.Load(m.Wrap(line))
		if err != nil {
			fmt.Fprintf(errOut, "Error: %v\n", err)
			continue
		}
		if err := formats.Encode(output, out, v); err != nil {
			fmt.Fprintf(errOut, "Error: %v\n", err)
		}
	}
}
