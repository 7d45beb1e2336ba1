package core

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
)

type ValidationError struct {
	Arg   string
	Cause string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Arg, e.Cause)
}

// LocalFile describes a file on disk selected for upload.
type LocalFile struct {
	Path        string
	Name        string
	Size        int64
	ContentType string
}

// ParseArgs validates the command line file arguments. Directories are
// rejected, each file is uploaded individually.
func ParseArgs(args []string) ([]LocalFile, error) {
	if len(args) == 0 {
		return nil, &ValidationError{Arg: "<files>", Cause: "no files provided"}
	}

	var out []LocalFile

	for _, raw := range args {
		p := filepath.Clean(raw)
		info, err := os.Stat(p)
		if err != nil {
			return nil, &ValidationError{Arg: raw, Cause: "not found or not accessible"}
		}
		if info.IsDir() {
			return nil, &ValidationError{Arg: raw, Cause: "is a directory, pass files individually"}
		}
		if info.Size() == 0 {
			return nil, &ValidationError{Arg: raw, Cause: "file is empty"}
		}

		ct := mime.TypeByExtension(filepath.Ext(p))
		if ct == "" {
			ct = "application/octet-stream"
		}

		out = append(out, LocalFile{
			Path:        p,
			Name:        info.Name(),
			Size:        info.Size(),
			ContentType: ct,
		})
	}

	return out, nil
}
