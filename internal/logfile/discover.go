package logfile

import (
	"bufio"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	defaults "github.com/xtxerr/xferstat/config"
	xerrors "github.com/xtxerr/xferstat/internal/errors"
)

// Discover returns every compressed log below root/<protocol>/<visibility>,
// sorted. Missing protocol or visibility directories are skipped.
func Discover(root string, protocols, visibilities []string) ([]string, error) {
	var files []string

	for _, protocol := range protocols {
		for _, visibility := range visibilities {
			dir := filepath.Join(root, protocol, visibility)

			info, err := os.Stat(dir)
			if err != nil {
				if os.IsNotExist(err) {
					readerLog.Debug("log directory not found", "dir", dir)
					continue
				}
				return nil, xerrors.Wrapf(err, "stat %s", dir)
			}
			if !info.IsDir() {
				continue
			}

			err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if !d.IsDir() && strings.HasSuffix(d.Name(), defaults.LogFileExtension) {
					files = append(files, path)
				}
				return nil
			})
			if err != nil {
				return nil, xerrors.Wrapf(err, "walk %s", dir)
			}
		}
	}

	sort.Strings(files)
	readerLog.Info("discovered log files", "root", root, "count", len(files))
	return files, nil
}

// WriteList writes one path per line to path.
func WriteList(path string, files []string) error {
	f, err := os.Create(path)
	if err != nil {
		return xerrors.Wrap(err, "create file list")
	}

	w := bufio.NewWriter(f)
	for _, file := range files {
		w.WriteString(file)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return xerrors.Wrap(err, "write file list")
	}
	return f.Close()
}

// ReadList reads a list written by WriteList. Blank lines are ignored.
func ReadList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, xerrors.Wrap(err, "open file list")
	}
	defer f.Close()

	var files []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			files = append(files, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, xerrors.Wrap(err, "read file list")
	}
	return files, nil
}
