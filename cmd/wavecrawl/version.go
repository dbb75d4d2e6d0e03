package main

import (
	"encoding/json"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/spf13/cobra"
)

// Version information set at build time via ldflags.
var (
	version = ""
	commit  = ""
	date    = ""
)

const shortCommitLen = 7

// readBuildInfo caches debug.ReadBuildInfo; it is nil for binaries built
// without module support.
var readBuildInfo = sync.OnceValue(func() *debug.BuildInfo {
	if info, ok := debug.ReadBuildInfo(); ok {
		return info
	}
	return nil
})

// buildDetails is what `wavecrawl version` reports.
type buildDetails struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go"`
	Platform  string `json:"platform"`
}

func currentBuild() buildDetails {
	return buildDetails{
		Version:   getVersion(),
		Commit:    getCommit(),
		Date:      getDate(),
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// getVersion prefers the ldflags value, then the module version, then "(devel)".
func getVersion() string {
	if version != "" {
		return version
	}
	if info := readBuildInfo(); info != nil && info.Main.Version != "" {
		return info.Main.Version
	}
	return "(devel)"
}

// buildSetting returns a VCS setting from the build info, or fallback.
func buildSetting(key, fallback string) string {
	info := readBuildInfo()
	if info == nil {
		return fallback
	}
	for _, s := range info.Settings {
		if s.Key == key && s.Value != "" {
			return s.Value
		}
	}
	return fallback
}

func getCommit() string {
	c := commit
	if c == "" {
		c = buildSetting("vcs.revision", "unknown")
	}
	if len(c) > shortCommitLen {
		return c[:shortCommitLen]
	}
	return c
}

func getDate() string {
	if date != "" {
		return date
	}
	return buildSetting("vcs.time", "unknown")
}

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long: `Print the version, commit hash, build date, Go version and platform of
wavecrawl. Use --short for the bare version string, or --json for scripts.`,
		Args: cobra.NoArgs,
		RunE: runVersionCmd,
	}

	cmd.Flags().Bool("short", false, "Print only the version string")
	cmd.Flags().BoolP("json", "j", false, "Print build information as JSON")

	return cmd
}

func runVersionCmd(cmd *cobra.Command, _ []string) error {
	short, err := cmd.Flags().GetBool("short")
	if err != nil {
		return err
	}
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	b := currentBuild()
	switch {
	case short:
		fmt.Fprintln(out, b.Version)
	case asJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(b)
	default:
		fmt.Fprintf(out, "wavecrawl version %s\n", b.Version)
		fmt.Fprintf(out, "  commit:   %s\n", b.Commit)
		fmt.Fprintf(out, "  built:    %s\n", b.Date)
		fmt.Fprintf(out, "  go:       %s\n", b.GoVersion)
		fmt.Fprintf(out, "  platform: %s\n", b.Platform)
	}
	return nil
}
