package version

import "testing"

func TestCurrentFallsBackOnEmptyMetadata(t *testing.T) {
	origVersion, origCommit := AppVersion, GitCommit
	defer func() {
		AppVersion, GitCommit = origVersion, origCommit
	}()

	AppVersion = "  "
	GitCommit = ""

	info := Current()
	if info.Version != "dev" {
		t.Fatalf("expected dev fallback, got %q", info.Version)
	}
	if info.Commit != unknown {
		t.Fatalf("expected unknown fallback, got %q", info.Commit)
	}
}

func TestStringShortensCommit(t *testing.T) {
	origVersion, origCommit := AppVersion, GitCommit
	defer func() {
		AppVersion, GitCommit = origVersion, origCommit
	}()

	AppVersion = "v1.2.3"
	GitCommit = "0123456789abcdef0123"

	if got := String(); got != "v1.2.3 (0123456789ab)" {
		t.Fatalf("unexpected version string %q", got)
	}

	GitCommit = unknown
	if got := String(); got != "v1.2.3" {
		t.Fatalf("unexpected version string %q", got)
	}
}
