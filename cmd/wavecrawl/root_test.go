package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewRootCmd(t *testing.T) {
	t.Parallel()

	cmd := NewRootCmd()

	if cmd.Use != "wavecrawl" || cmd.Short == "" || cmd.Long == "" {
		t.Errorf("unexpected metadata: use=%q short=%q", cmd.Use, cmd.Short)
	}
	if cmd.Version != getVersion() {
		t.Errorf("Version = %q, want %q", cmd.Version, getVersion())
	}
	if !cmd.SilenceUsage || !cmd.SilenceErrors {
		t.Error("main prints errors itself; cobra must stay silent")
	}

	verbose := cmd.PersistentFlags().Lookup("verbose")
	if verbose == nil || verbose.Shorthand != "v" || verbose.DefValue != "false" {
		t.Fatalf("unexpected verbose flag: %+v", verbose)
	}

	subcommands := map[string]string{
		"crawl":   "crawl <domain>...",
		"history": "history [domain]",
		"init":    "init",
		"version": "version",
	}
	for name, use := range subcommands {
		sub, _, err := cmd.Find([]string{name})
		if err != nil || sub == cmd {
			t.Errorf("subcommand %q not registered", name)
			continue
		}
		if sub.Use != use {
			t.Errorf("%s: Use = %q, want %q", name, sub.Use, use)
		}
		if sub.InheritedFlags().Lookup("verbose") == nil {
			t.Errorf("%s does not inherit --verbose", name)
		}
	}
}

func TestRootCmdDispatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		args    []string
		wantOut string
		wantErr string
	}{
		{name: "version subcommand", args: []string{"version", "--short"}, wantOut: getVersion()},
		{name: "version flag", args: []string{"--version"}, wantOut: getVersion()},
		{name: "unknown subcommand", args: []string{"scan"}, wantErr: "unknown command"},
		{name: "crawl without domain", args: []string{"crawl"}, wantErr: "no domain specified"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cmd := NewRootCmd()
			var out, errOut bytes.Buffer
			cmd.SetOut(&out)
			cmd.SetErr(&errOut)
			cmd.SetArgs(tt.args)

			err := cmd.Execute()
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error = %v, want it to contain %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.Contains(out.String(), tt.wantOut) {
				t.Errorf("output %q does not contain %q", out.String(), tt.wantOut)
			}
		})
	}
}
