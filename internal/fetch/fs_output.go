package fetch

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// FilesystemOutput keeps a copy of fetched pages around, which is the quickest
// way to find out which selector stopped matching after a site redesign.
type FilesystemOutput struct {
	directory string
}

func NewFilesystemOutput(dir string) (FilesystemOutput, error) {
	err := os.MkdirAll(dir, 0777)
	if err != nil {
		return FilesystemOutput{}, err
	}
	return FilesystemOutput{directory: dir}, nil
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// FileName turns a url into a flat file name.
func FileName(url string) string {
	url = strings.TrimPrefix(url, "https://")
	url = strings.TrimPrefix(url, "http://")
	name := unsafeFilenameChars.ReplaceAllString(url, "_")
	return strings.Trim(name, "_") + ".html"
}

func (o FilesystemOutput) Write(url string, contents []byte) error {
	return os.WriteFile(filepath.Join(o.directory, FileName(url)), contents, 0600)
}
