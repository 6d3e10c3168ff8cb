package botconfig

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/andrewgari/starbunk-js-sub002/replybot"
)

const (
	DefaultUnitTimeout = 10 * time.Second
	maxFileBytes       = 1 << 20
)

var ErrLoadTimeout = errors.New("plugin load timed out")

type LoaderOptions struct {
	// Path is a YAML file or a directory of *.yaml / *.yml files.
	Path        string
	UnitTimeout time.Duration
	Build       BuildOptions
	Logger      *slog.Logger
}

type UnitError struct {
	Path string
	Err  error
}

func (e UnitError) Error() string {
	return e.Path + ": " + e.Err.Error()
}

func (e UnitError) Unwrap() error {
	return e.Err
}

type Result struct {
	Plugins  []*replybot.Plugin
	Failures []UnitError
}

type Loader struct {
	path    string
	timeout time.Duration
	build   BuildOptions
	logger  *slog.Logger
	parse   func(root, path string) ([]*replybot.Plugin, error)
}

func NewLoader(opts LoaderOptions) (*Loader, error) {
	path := strings.TrimSpace(opts.Path)
	if path == "" {
		return nil, fmt.Errorf("plugins path is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	timeout := opts.UnitTimeout
	if timeout <= 0 {
		timeout = DefaultUnitTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	build := opts.Build
	if build.Logger == nil {
		build.Logger = logger
	}
	l := &Loader{path: abs, timeout: timeout, build: build, logger: logger}
	l.parse = l.parseUnit
	return l, nil
}

func (l *Loader) Path() string {
	return l.path
}

// Load reads every unit under the configured path. A failing or timed-out
// unit is reported and skipped; the other units still load.
func (l *Loader) Load(ctx context.Context) (Result, error) {
	units, root, err := l.units()
	if err != nil {
		return Result{}, err
	}
	var res Result
	seen := map[string]string{}
	for _, unit := range units {
		plugins, err := l.loadUnit(ctx, root, unit)
		if err != nil {
			l.logger.Warn("plugin_load_failed", "path", unit, "error", err.Error())
			res.Failures = append(res.Failures, UnitError{Path: unit, Err: err})
			continue
		}
		for _, p := range plugins {
			if prev, dup := seen[p.Name]; dup {
				err := fmt.Errorf("%w: %s (already defined in %s)", ErrDuplicateName, p.Name, prev)
				l.logger.Warn("plugin_load_failed", "path", unit, "error", err.Error())
				res.Failures = append(res.Failures, UnitError{Path: unit, Err: err})
				continue
			}
			seen[p.Name] = unit
			res.Plugins = append(res.Plugins, p)
		}
	}
	l.logger.Info("plugins_loaded", "path", l.path, "plugins", len(res.Plugins), "failures", len(res.Failures))
	return res, nil
}

func (l *Loader) units() ([]string, string, error) {
	info, err := os.Stat(l.path)
	if err != nil {
		return nil, "", fmt.Errorf("stat plugins path: %w", err)
	}
	if !info.IsDir() {
		return []string{l.path}, filepath.Dir(l.path), nil
	}
	entries, err := os.ReadDir(l.path)
	if err != nil {
		return nil, "", fmt.Errorf("read plugins dir: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !isYAML(e.Name()) || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		out = append(out, filepath.Join(l.path, e.Name()))
	}
	sort.Strings(out)
	return out, l.path, nil
}

func (l *Loader) loadUnit(ctx context.Context, root, path string) ([]*replybot.Plugin, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	type result struct {
		plugins []*replybot.Plugin
		err     error
	}
	ch := make(chan result, 1)
	go func() {
		plugins, err := l.parse(root, path)
		ch <- result{plugins: plugins, err: err}
	}()
	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrLoadTimeout
		}
		return nil, ctx.Err()
	case r := <-ch:
		return r.plugins, r.err
	}
}

func (l *Loader) parseUnit(root, path string) ([]*replybot.Plugin, error) {
	if err := confined(root, path); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	raw, err := io.ReadAll(io.LimitReader(f, maxFileBytes+1))
	if err != nil {
		return nil, err
	}
	if len(raw) > maxFileBytes {
		return nil, fmt.Errorf("file exceeds %d bytes", maxFileBytes)
	}
	file, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	return Build(file, l.build)
}

// confined rejects units that resolve outside root, e.g. through symlinks.
func confined(root, path string) error {
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return err
	}
	realPath, err := filepath.EvalSymlinks(path)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(realRoot, realPath)
	if err != nil {
		return err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("path escapes plugins root")
	}
	return nil
}

func isYAML(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
