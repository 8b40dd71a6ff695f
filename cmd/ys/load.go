package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/yaml/yamlscript-go/mode"
	"github.com/yaml/yamlscript-go/ys"
)

var loadCmd = &cobra.Command{
	Use:   "load [file]",
	Short: "Evaluate source and print the result",
	Long: `Evaluate YAMLScript and print the resulting data.

Source can be provided via:
  - File argument: ys load config.ys
  - Inline flag: ys load -e 'a: ! inc(41)' --mode data
  - Stdin: echo 'a: 1' | ys load

With --watch the file is evaluated again every time it is written.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLoad,
}

func init() {
	addLoadFlags(loadCmd)
	rootCmd.AddCommand(loadCmd)
}

func addLoadFlags(cmd *cobra.Command) {
	addSourceFlags(cmd, mode.Bare.Name())
	cmd.Flags().StringP("output", "o", "json", "Output format: json, json-compact, yaml")
	cmd.Flags().Bool("use-number", false, "Keep numbers exactly as the engine wrote them")
	cmd.Flags().Bool("watch", false, "Re-evaluate the file whenever it changes")
}

func runLoad(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")
	watch, _ := cmd.Flags().GetBool("watch")

	if _, ok := formats.Get(output); !ok {
		return fmt.Errorf("unknown output format %q", output)
	}
	if watch && len(args) == 0 {
		return fmt.Errorf("--watch requires a file argument")
	}
	if eval, _ := cmd.Flags().GetString("eval"); watch && eval != "" {
		return fmt.Errorf("--watch cannot be combined with --eval")
	}

	src, ok, err := readSource(cmd, args)
	if err != nil {
		return err
	}
	if !ok {
		return cmd.Help()
	}

	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := evalAndPrint(cmd, rt, src, output); err != nil {
		if !watch {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
	}
	if !watch {
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return watchFile(ctx, args[0], 100*time.Millisecond, func() {
		src, _, err := readSource(cmd, args)
		if err == nil {
			err = evalAndPrint(cmd, rt, src, output)
		}
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}
	})
}

func evalAndPrint(cmd *cobra.Command, rt *ys.Runtime, src, output string) error {
	v, err := rt.Load(src)
	if err != nil {
		return err
	}
	return formats.Encode(output, cmd.OutOrStdout(), v)
}

// watchFile calls onChange after path is written or recreated, once per
// burst of events within delay. It returns when ctx is done.
func watchFile(ctx context.Context, path string, delay time.Duration, onChange func()) error {
	path, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors often replace the file instead of writing it.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	timer := time.NewTimer(delay)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != path || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			timer.Reset(delay)

		case <-timer.C:
			onChange()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch %s: %w", path, err)
		}
	}
}
