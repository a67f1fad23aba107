package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"

	"github.com/speaky-cli/speaky/internal/config"
)

// editConfig opens the config file in the user's editor, creating it with
// the defaults first. EDITOR picks the editor.
func (a *app) editConfig(o options) error {
	file, err := ensureConfigFile(o.configFile)
	if err != nil {
		return err
	}

	c, err := editor.Cmd("Speaky", file)
	if err != nil {
		return fmt.Errorf("unable to set config file: %w", err)
	}
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	if err := c.Run(); err != nil {
		return fmt.Errorf("unable to run command: %w", err)
	}

	_, err = fmt.Fprintln(a.stdout, "Wrote config file to:", file)
	return err
}

// ensureConfigFile returns the config file to edit, writing the defaults to
// it first if it does not exist. An empty file means the default location.
func ensureConfigFile(file string) (string, error) {
	if file == "" {
		var err error
		file, err = config.DefaultConfigFile()
		if err != nil {
			return "", fmt.Errorf("could not find configuration directory: %w", err)
		}
	}

	if ext := path.Ext(file); ext != ".yaml" && ext != ".yml" {
		return "", fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(file); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(file), 0o700); err != nil {
			return "", fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(file)
		if err != nil {
			return "", fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(config.DefaultConfigYAML); err != nil {
			return "", fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return "", fmt.Errorf("unable to stat config file: %w", err)
	}
	return file, nil
}
