package util

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// AppName names the per-user config directory.
const AppName = "volmix"

// ResolvePath joins rel onto base unless rel is already absolute.
func ResolvePath(base, rel string) string {
	if filepath.IsAbs(rel) {
		return filepath.Clean(rel)
	}
	return filepath.Join(base, rel)
}

// ConfigPath resolves a config file name against the user's config
// directory (e.g. ~/.config/volmix). Absolute names are used as given.
func ConfigPath(name string) string {
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return name
	}
	return ResolvePath(filepath.Join(dir, AppName), name)
}

// WriteJSONFile writes v as indented JSON. The file is written next to
// path and renamed into place, so a watcher never reads half a file.
func WriteJSONFile(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
