package cmd

import (
	"strings"
	"testing"
)

func TestParseOptions(t *testing.T) {
	options, rest := parseOptions([]string{"mode=production", "css", "empty=", "=value", "js:bundle"})

	if options["mode"] != "production" {
		t.Errorf("expected mode=production, got %v", options)
	}
	if value, ok := options["empty"]; !ok || value != "" {
		t.Errorf("expected an empty option, got %v", options)
	}
	if strings.Join(rest, ",") != "css,=value,js:bundle" {
		t.Errorf("unexpected remaining arguments %v", rest)
	}
}

func TestCommandsAreRegistered(t *testing.T) {
	for _, name := range []string{"build", "build-production", "css", "css-production", "html", "watch", "run", "tasks", "init", "fetch-vendor", "check-tools", "rm", "mkdir", "mv"} {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("command %s is not registered", name)
		}
	}

	for _, name := range []string{"rm", "mkdir", "mv"} {
		cmd, _, _ := rootCmd.Find([]string{name})
		if cmd.Annotations[standalone] == "" {
			t.Errorf("%s must run without a project", name)
		}
	}
}
