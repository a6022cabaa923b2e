package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

// Version will be set at build time via -ldflags
var Version = "v0.1.0"

func main() {
	flags := pflag.NewFlagSet("refseqdl", pflag.ContinueOnError)
	flags.SortFlags = false

	outdir := flags.StringP("outdir", "o", "", "output directory (required)")
	configPath := flags.StringP("config", "c", "", "Lua run configuration file")
	catalogURL := flags.String("catalog-url", "", "override the assembly catalog URL")
	verbose := flags.BoolP("verbose", "v", false, "enable debug logging")
	showVersion := flags.Bool("version", false, "print version and exit")

	flags.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: refseqdl -o <outdir> [flags]")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Download, verify and extract curated RefSeq assemblies.")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Flags:")
		fmt.Fprint(os.Stderr, flags.FlagUsages())
	}

	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Printf("refseqdl %s\n", Version)
		return
	}

	opts := downloadOptions{
		Outdir:     *outdir,
		ConfigPath: *configPath,
		CatalogURL: *catalogURL,
		Verbose:    *verbose,
	}
	if err := runDownload(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
