package migrations

import (
	"io/fs"
	"strings"
	"testing"
)

func TestEveryUpHasDown(t *testing.T) {
	ups, err := fs.Glob(FS, Dir+"/*.up.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(ups) == 0 {
		t.Fatalf("no migrations embedded")
	}
	for _, up := range ups {
		down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
		if _, err := fs.Stat(FS, down); err != nil {
			t.Fatalf("%s has no down migration", up)
		}
	}
	seeds, err := fs.Glob(FS, SeedsDir+"/*.sql")
	if err != nil || len(seeds) == 0 {
		t.Fatalf("no seeds embedded: %v", err)
	}
}
