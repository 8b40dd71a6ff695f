package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yaml/yamlscript-go/mode"
)

var compileCmd = &cobra.Command{
	Use:   "compile [file]",
	Short: "Print the Clojure code source compiles to",
	Long: `Compile YAMLScript to Clojure without evaluating it.

Requires a libyamlscript build that exports compile_ys_to_clj.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCompile,
}

func init() {
	addSourceFlags(compileCmd, mode.Code.Name())
	rootCmd.AddCommand(compileCmd)
}

func runCompile(cmd *cobra.Command, args []string) error {
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

	clj, err := rt.Compile(src)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), clj)
	return nil
}
