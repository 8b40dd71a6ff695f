package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/yaml/yamlscript-go/internal/native"
	"github.com/yaml/yamlscript-go/ys"
)

var libCmd = &cobra.Command{
	Use:   "lib",
	Short: "Inspect the libyamlscript installation",
	Long: `Show where libyamlscript is searched for and verify it can be used.

The library is installed with:

  curl https://yamlscript.org/install | VERSION=` + ys.Version + ` LIB=1 bash`,
}

var libPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the library file name and search directories",
	Args:  cobra.NoArgs,
	RunE:  runLibPath,
}

var libCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Open the library, create and tear down an isolate",
	Args:  cobra.NoArgs,
	RunE:  runLibCheck,
}

func init() {
	libCmd.AddCommand(libPathCmd, libCheckCmd)
	rootCmd.AddCommand(libCmd)
}

func runLibPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	name := native.Filename(ys.Version)

	if lib, _ := cmd.Flags().GetString("lib"); lib != "" {
		fmt.Fprintf(out, "%s\t%s\n", lib, found(lib))
		return nil
	}

	fmt.Fprintln(out, name)
	for _, dir := range native.SearchDirs() {
		path := filepath.Join(dir, name)
		fmt.Fprintf(out, "  %s\t%s\n", path, found(path))
	}
	return nil
}

func found(path string) string {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "missing"
	}
	return "found"
}

func runLibCheck(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	caps := rt.Capabilities()
	fmt.Fprintf(out, "library:  %s\n", rt.LibraryPath())
	fmt.Fprintf(out, "version:  %s\n", ys.Version)
	fmt.Fprintf(out, "compile:  %t\n", caps.Compile)
	fmt.Fprintf(out, "teardown: %t\n", caps.TearDown)

	if _, err := rt.Load("ok: true"); err != nil {
		rt.Close()
		return fmt.Errorf("evaluate: %w", err)
	}

	if err := rt.Close(); err != nil {
		return err
	}
	fmt.Fprintln(out, "ok")
	return nil
}
