package course

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrInvalidMaterialName name is empty or escapes the materials directory
var ErrInvalidMaterialName = errors.New("Invalid material file name")

// MaterialInfo availability of a material file
type MaterialInfo struct {
	Exists        bool   `json:"exists"`
	Size          int64  `json:"size,omitempty"`
	SizeFormatted string `json:"sizeFormatted,omitempty"`
	URL           string `json:"url,omitempty"`
}

// MaterialStore material files stored flat in one directory
type MaterialStore struct {
	Root      string // directory on disk
	URLPrefix string // public prefix the files are served under, eg. /materials
}

// NewMaterialStore .
func NewMaterialStore(root, urlPrefix string) *MaterialStore {
	return &MaterialStore{Root: root, URLPrefix: strings.TrimSuffix(urlPrefix, "/")}
}

// Check look up name, a missing file is reported with Exists=false and no error
func (ms *MaterialStore) Check(name string) (*MaterialInfo, error) {
	if !validMaterialName(name) {
		return nil, ErrInvalidMaterialName
	}
	stat, err := os.Stat(filepath.Join(ms.Root, name))
	if errors.Is(err, os.ErrNotExist) || (err == nil && stat.IsDir()) {
		return &MaterialInfo{Exists: false}, nil
	}
	if err != nil {
		return nil, err
	}
	return &MaterialInfo{
		Exists:        true,
		Size:          stat.Size(),
		SizeFormatted: FormatSize(stat.Size()),
		URL:           path.Join(ms.URLPrefix, name),
	}, nil
}

func validMaterialName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && !strings.Contains(name, "..")
}

// FormatSize human readable size, eg. 2.5 MB
func FormatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit && exp < 3; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGT"[exp])
}
