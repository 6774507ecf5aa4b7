package dicomfile

import (
	"os"
	"path/filepath"
	"testing"
)

func touch(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte{0}, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDirectoryRefs(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "IM0002.dcm")
	touch(t, dir, "IM0001.dcm")
	touch(t, dir, "IM0003.dicom")
	touch(t, dir, "IM0000") // extensionless instances are common
	touch(t, dir, "notes.txt")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	refs, err := DirectoryRefs(dir)
	if err != nil {
		t.Fatalf("DirectoryRefs: %v", err)
	}
	if len(refs) != 4 {
		t.Fatalf("got %d refs, want 4: %v", len(refs), refs)
	}
	// Sorted by filename for stable instance order.
	want := []string{"IM0000", "IM0001.dcm", "IM0002.dcm", "IM0003.dicom"}
	for i, w := range want {
		if filepath.Base(string(refs[i])) != w {
			t.Errorf("refs[%d] = %s, want %s", i, refs[i], w)
		}
	}
}

func TestDirectoryRefsMissingDir(t *testing.T) {
	if _, err := DirectoryRefs("/no/such/series"); err == nil {
		t.Error("expected an error for a missing directory")
	}
}
