package cli

import (
	"strings"
	"testing"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := NewRootCommand()

	want := map[string]bool{
		"worker":      false,
		"enqueue":     false,
		"poll":        false,
		"healthcheck": false,
	}
	for _, cmd := range root.Commands() {
		name := strings.Fields(cmd.Use)[0]
		if _, ok := want[name]; ok {
			want[name] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Fatalf("missing subcommand %s", name)
		}
	}

	if root.PersistentFlags().Lookup("config-file") == nil {
		t.Fatal("missing --config-file flag")
	}
}

func TestEnqueueFlags(t *testing.T) {
	root := NewRootCommand()
	enqueue, _, err := root.Find([]string{"enqueue"})
	if err != nil {
		t.Fatalf("enqueue command missing: %v", err)
	}

	for _, flag := range []string{"id", "kind", "file", "filename", "body", "timeline-id"} {
		if enqueue.Flags().Lookup(flag) == nil {
			t.Fatalf("enqueue missing --%s flag", flag)
		}
	}
	if got := enqueue.Flags().Lookup("kind").DefValue; got != "file" {
		t.Fatalf("unexpected default kind %q", got)
	}
}

func TestPollRequiresJobID(t *testing.T) {
	root := NewRootCommand()
	root.SetArgs([]string{"poll"})
	if err := root.Execute(); err == nil {
		t.Fatal("poll without --id should fail")
	}
}
