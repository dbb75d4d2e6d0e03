package main

import (
	"embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/wavecrawl/internal/config"
)

//go:embed templates/wavecrawl.yaml
var configTemplate embed.FS

const templatePath = "templates/wavecrawl.yaml"

// errConfigExists is returned by init when the target file exists and
// --force is not set.
var errConfigExists = errors.New("configuration file already exists")

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new wavecrawl configuration file",
		Long: `Write a commented site configuration template.

By default the file is .wavecrawl in the current directory. With --xdg it goes
to the per-user location that crawl also searches, for example
~/.config/wavecrawl/config.yaml on Linux.

The template holds default ignore patterns and commented examples for
site-specific cookies, headers, scope patterns and target detection.

Examples:
  wavecrawl init
  wavecrawl init -o shop.yaml
  wavecrawl init --xdg --force`,
		Args: cobra.NoArgs,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile,
		"Output file path for the configuration")
	cmd.Flags().Bool("xdg", false,
		"Write to the per-user configuration directory instead of --output")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing configuration file")
	cmd.MarkFlagsMutuallyExclusive("output", "xdg")

	return cmd
}

func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	useXDG, err := cmd.Flags().GetBool("xdg")
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}
	if useXDG {
		outputPath = config.XDGConfigFile()
	}

	if err := writeConfigTemplate(outputPath, force); err != nil {
		return err
	}
	printInitHints(cmd.OutOrStdout(), outputPath)
	return nil
}

// writeConfigTemplate writes the embedded template to path, creating parent
// directories, and checks that the result loads.
func writeConfigTemplate(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s (use -f to overwrite)", errConfigExists, path)
		}
	}

	content, err := configTemplate.ReadFile(templatePath)
	if err != nil {
		return fmt.Errorf("failed to read config template: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, content, 0o600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	if _, err := config.LoadConfigFile(path); err != nil {
		return fmt.Errorf("generated configuration is invalid: %w", err)
	}
	return nil
}

func printInitHints(w io.Writer, path string) {
	fmt.Fprintf(w, "Created configuration file: %s\n\n", path)
	fmt.Fprintln(w, "Edit it to set per-site:")
	fmt.Fprintln(w, "  - cookies and request headers")
	fmt.Fprintln(w, "  - targetSelector and targetPatterns")
	fmt.Fprintln(w, "  - ignorePatterns and followPatterns")
	fmt.Fprintln(w, "  - visitLimit and workers overrides")
}
