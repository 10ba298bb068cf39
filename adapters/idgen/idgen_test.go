package idgen_test

import (
	"regexp"
	"strings"
	"testing"

	"github.com/artpar/costboard/adapters/idgen"
)

var uuidV4 = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

func TestUUID_New(t *testing.T) {
	id := idgen.UUID{}.New()
	if !uuidV4.MatchString(id) {
		t.Errorf("ID %s doesn't match UUID v4 format", id)
	}
}

func TestUUID_Prefix(t *testing.T) {
	id := idgen.UUID{Prefix: "run_"}.New()
	if !strings.HasPrefix(id, "run_") {
		t.Fatalf("ID %s missing prefix", id)
	}
	if !uuidV4.MatchString(strings.TrimPrefix(id, "run_")) {
		t.Errorf("ID %s doesn't carry a UUID", id)
	}
}

func TestUUID_Unique(t *testing.T) {
	g := idgen.UUID{}
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := g.New()
		if seen[id] {
			t.Fatalf("duplicate ID generated: %s", id)
		}
		seen[id] = true
	}
}

func TestSequential_New(t *testing.T) {
	g := idgen.NewSequential("run_")

	for _, want := range []string{"run_1", "run_2", "run_3"} {
		if got := g.New(); got != want {
			t.Errorf("New() = %s, want %s", got, want)
		}
	}
}
