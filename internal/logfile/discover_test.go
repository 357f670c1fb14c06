package logfile

import (
	"os"
	"path/filepath"
	"testing"

	testutil "github.com/xtxerr/xferstat/internal/testing"
)

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	lines := testutil.Lines(1)

	want := []string{
		testutil.WriteGzipLog(t, root, "ftp/public/2023/01/a.tsv.gz", lines),
		testutil.WriteGzipLog(t, root, "ftp/public/b.tsv.gz", lines),
		testutil.WriteGzipLog(t, root, "http/private/c.tsv.gz", lines),
	}
	testutil.WriteGzipLog(t, root, "ftp/private/ignored.tsv.gz", lines)
	testutil.WriteGzipLog(t, root, "ftp/public/notes.txt.gz", lines)

	files, err := Discover(root, []string{"ftp", "http", "aspera"}, []string{"public"})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(files) != 2 || files[0] != want[0] || files[1] != want[1] {
		t.Errorf("expected %v, got %v", want[:2], files)
	}

	files, err = Discover(root, []string{"http"}, []string{"private"})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(files) != 1 || files[0] != want[2] {
		t.Errorf("expected %v, got %v", want[2:], files)
	}
}

func TestWriteReadList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "files.txt")
	files := []string{"/logs/a.tsv.gz", "/logs/b.tsv.gz"}

	if err := WriteList(path, files); err != nil {
		t.Fatalf("WriteList: %v", err)
	}

	// blank lines are tolerated
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	f.WriteString("\n  \n")
	f.Close()

	got, err := ReadList(path)
	if err != nil {
		t.Fatalf("ReadList: %v", err)
	}
	if len(got) != 2 || got[0] != files[0] || got[1] != files[1] {
		t.Errorf("expected %v, got %v", files, got)
	}
}
