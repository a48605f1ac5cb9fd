package cos

import (
	"os"

	"github.com/golang/glog"
)

// CreateFile creates (or truncates) a file. It does not create missing
// parent directories; the parent must already exist.
func CreateFile(fqn string) (*os.File, error) {
	return os.OpenFile(fqn, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
}

// FlushClose syncs and closes a file, surfacing either error.
func FlushClose(f *os.File) error {
	errSync := f.Sync()
	errClose := f.Close()
	if errSync != nil {
		return errSync
	}
	return errClose
}

// Close closes a file, logging (but not propagating) any error - used from
// defer sites where the original error already takes precedence.
func Close(f *os.File) {
	if err := f.Close(); err != nil {
		glog.Errorf("[cos] failed to close %s: %v", f.Name(), err)
	}
}

// RemoveFile removes a file, tolerating "already gone".
func RemoveFile(fqn string) error {
	err := os.Remove(fqn)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}
