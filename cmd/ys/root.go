package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/yaml/yamlscript-go/format"
	"github.com/yaml/yamlscript-go/mode"
	"github.com/yaml/yamlscript-go/ys"
)

var rootCmd = &cobra.Command{
	Use:   "ys [file]",
	Short: "Evaluate YAMLScript with libyamlscript",
	Long: `ys - Evaluate YAMLScript programs and data files.

Source is read from a file argument, the --eval flag, or stdin. Evaluation
runs in libyamlscript ` + ys.Version + `, which must be installed:

  curl https://yamlscript.org/install | VERSION=` + ys.Version + ` LIB=1 bash`,
	Args:              cobra.MaximumNArgs(1),
	RunE:              runLoad, // Default to load command behavior
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

// newRuntime creates runtimes for every command. Tests replace it.
var newRuntime = ys.New

var formats = format.Default()

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log library resolution and isolate lifecycle to stderr")
	rootCmd.PersistentFlags().String("lib", "", "Path to libyamlscript (default: search LD_LIBRARY_PATH, /usr/local/lib, ~/.local/lib)")

	// Add load-specific flags to root (for default command)
	addLoadFlags(rootCmd)
}

func setupLogging(cmd *cobra.Command, args []string) error {
	verbose, _ := cmd.Flags().GetBool("verbose")
	if !verbose {
		return nil
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	ys.SetLogger(logger)
	return nil
}

func addSourceFlags(cmd *cobra.Command, defaultMode string) {
	cmd.Flags().StringP("eval", "e", "", "Source to evaluate")
	cmd.Flags().StringP("mode", "m", defaultMode, "Input mode: "+strings.Join(mode.Names(), ", "))
}

func runtimeOpts(cmd *cobra.Command) []ys.Option {
	var opts []ys.Option
	if lib, _ := cmd.Flags().GetString("lib"); lib != "" {
		opts = append(opts, ys.WithLibraryPath(lib))
	}
	if useNumber, err := cmd.Flags().GetBool("use-number"); err == nil && useNumber {
		opts = append(opts, ys.WithUseNumber())
	}
	return opts
}

func openRuntime(cmd *cobra.Command) (*ys.Runtime, error) {
	return newRuntime(runtimeOpts(cmd)...)
}

// readSource returns the source from --eval, the file argument, or piped
// stdin, wrapped for the --mode flag. ok is false when there is no source
// and stdin is a terminal.
func readSource(cmd *cobra.Command, args []string) (src string, ok bool, err error) {
	eval, _ := cmd.Flags().GetString("eval")
	modeName, _ := cmd.Flags().GetString("mode")

	m, err := mode.Parse(modeName)
	if err != nil {
		return "", false, err
	}

	switch {
	case eval != "":
		src = eval
	case len(args) > 0:
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", false, err
		}
		src = string(data)
	default:
		in := cmd.InOrStdin()
		if f, isFile := in.(*os.File); isFile && term.IsTerminal(int(f.Fd())) {
			// No piped input
			return "", false, nil
		}
		data, err := io.ReadAll(in)
		if err != nil {
			return "", false, err
		}
		if len(data) == 0 {
			return "", false, nil
		}
		src = string(data)
	}

	return m.Wrap(src), true, nil
}
