package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/shohag/slacker/internal/models"
)

// File is the on-disk webhook configuration:
//
//	slack_hook = "https://hooks.slack.com/services/..."
//
//	[hooks]
//	alerts = "https://hooks.slack.com/services/..."
type File struct {
	SlackHook string            `toml:"slack_hook"`
	Hooks     map[string]string `toml:"hooks"`
}

var ErrNoDefaultHook = errors.New("missing default slack webhook")

type HookNotFoundError struct {
	Name string
}

func (e *HookNotFoundError) Error() string {
	return fmt.Sprintf("could not find slack webhook %q", e.Name)
}

// LoadError covers everything that can go wrong between the config path and
// a validated File: home lookup, missing file, I/O, TOML syntax and schema.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return e.Err.Error()
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Resolve picks the webhook for this run. An explicit URL wins and the
// config file is not touched at all.
func Resolve(opts Options) (models.Endpoint, error) {
	if opts.URL != "" {
		if err := ValidateURL(opts.URL); err != nil {
			return models.Endpoint{}, &UsageError{Msg: fmt.Sprintf("invalid --url: %v", err)}
		}
		return models.Endpoint{URL: opts.URL, Source: models.SourceFlag}, nil
	}

	f, err := Load(opts.ConfigPath)
	if err != nil {
		return models.Endpoint{}, err
	}

	if opts.Name != "" {
		u, ok := f.Hooks[opts.Name]
		if !ok {
			return models.Endpoint{}, &HookNotFoundError{Name: opts.Name}
		}
		return models.Endpoint{URL: u, Name: opts.Name, Source: models.SourceHook}, nil
	}

	if f.SlackHook == "" {
		return models.Endpoint{}, ErrNoDefaultHook
	}
	return models.Endpoint{URL: f.SlackHook, Source: models.SourceDefault}, nil
}

func Load(path string) (*File, error) {
	resolved, err := ExpandPath(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, &LoadError{Path: resolved, Err: err}
	}

	f, err := Parse(data)
	if err != nil {
		return nil, &LoadError{Path: resolved, Err: err}
	}
	return f, nil
}

// Parse decodes and validates a config document. Hook names keep their case.
func Parse(data []byte) (*File, error) {
	var f File
	if err := toml.Unmarshal(data, &f); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return nil, fmt.Errorf("toml: line %d, column %d: %s", row, col, derr.Error())
		}
		return nil, fmt.Errorf("toml: %w", err)
	}

	if f.SlackHook != "" {
		if err := ValidateURL(f.SlackHook); err != nil {
			return nil, fmt.Errorf("slack_hook: %w", err)
		}
	}

	names := make([]string, 0, len(f.Hooks))
	for name := range f.Hooks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := ValidateURL(f.Hooks[name]); err != nil {
			return nil, fmt.Errorf("hooks.%s: %w", name, err)
		}
	}

	return &f, nil
}

// ExpandPath replaces a leading "~/" with the home directory, then returns
// the absolute, symlink-free path. The file has to exist.
func ExpandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("home directory not found: %w", err)
		}
		path = filepath.Join(home, path[len("~/"):])
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		// url.Error repeats the input, which is a secret here.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			return fmt.Errorf("invalid URL: %w", uerr.Err)
		}
		return err
	}
	if !u.IsAbs() {
		return errors.New("not an absolute URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("URL has no host")
	}
	return nil
}
