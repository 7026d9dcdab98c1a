// Package credentials loads the account identifier from standard locations.
package credentials

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/vinayprograms/nodelink/errors"
)

// DefaultFile is the plain-text file the account identifier is read from.
const DefaultFile = "userid.txt"

// StandardPaths returns the user id file locations in order of priority.
func StandardPaths() []string {
	paths := []string{DefaultFile}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "nodelink", DefaultFile))
	}

	return paths
}

// LoadUserID reads the account identifier. With an explicit path only that
// file is tried; otherwise the first existing StandardPaths entry is used.
// A missing file or an empty identifier is a CONFIG error.
func LoadUserID(path string) (string, string, error) {
	if path != "" {
		id, err := LoadFile(path)
		return id, path, err
	}

	for _, p := range StandardPaths() {
		if _, err := os.Stat(p); err == nil {
			id, err := LoadFile(p)
			return id, p, err
		}
	}
	return "", "", errors.Newf(errors.ErrCodeConfig,
		"%s not found; create it and put your user id in it", DefaultFile)
}

// LoadFile reads an account identifier from path. Files ending in .toml are
// decoded and must carry a top-level user_id key; anything else is read as
// plain text. Surrounding whitespace is trimmed.
func LoadFile(path string) (string, error) {
	var id string
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		var doc struct {
			UserID string `toml:"user_id"`
		}
		if _, err := toml.DecodeFile(path, &doc); err != nil {
			return "", wrapReadErr(err, path)
		}
		id = doc.UserID
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", wrapReadErr(err, path)
		}
		id = string(data)
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return "", errors.Config("user id file is empty",
			errors.WithMetadata("path", path))
	}
	return id, nil
}

func wrapReadErr(err error, path string) error {
	if os.IsNotExist(err) {
		return errors.WrapWithCode(err, errors.ErrCodeConfig, path+" not found",
			errors.WithMetadata("path", path))
	}
	return errors.WrapWithCode(err, errors.ErrCodeConfig, "read "+path,
		errors.WithMetadata("path", path))
}
