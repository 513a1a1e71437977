package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"
)

var (
	faint  = color.New(color.Faint)
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
)

// resolveRoot makes a relative root absolute. When the root does not exist
// under the working directory, parent directories are searched for it so
// commands work from anywhere inside a project.
func resolveRoot(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	cleaned := filepath.Clean(raw)
	if filepath.IsAbs(cleaned) {
		return cleaned
	}
	cwd, err := os.Getwd()
	if err != nil {
		return cleaned
	}
	candidate := filepath.Join(cwd, cleaned)
	if dirExists(candidate) {
		return absPath(candidate)
	}
	if found, ok := findRootInParents(cwd, cleaned); ok {
		return found
	}
	return absPath(candidate)
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func absPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

func findRootInParents(startDir, relative string) (string, bool) {
	dir := filepath.Dir(startDir)
	for {
		candidate := filepath.Join(dir, relative)
		if dirExists(candidate) {
			return absPath(candidate), true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false
}

// readBody resolves a message body argument: literal text, @path for a file,
// or @- (or no argument) for stdin. Reading an interactive terminal is
// refused so a forgotten argument does not hang.
func (a *app) readBody(args []string) (string, error) {
	arg := ""
	if len(args) > 0 {
		arg = args[0]
	}
	if arg == "" || arg == "@-" {
		if isTerminal(a.in) {
			return "", UsageError("message text is required (pass text, @file or pipe it on stdin)")
		}
		data, err := io.ReadAll(a.in)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	if path, ok := strings.CutPrefix(arg, "@"); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return "", NotFoundError("message file not found: %s", path)
			}
			return "", err
		}
		return string(data), nil
	}
	return arg, nil
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// confirm asks a yes/no question on the command's input. Empty input and EOF
// mean no.
func (a *app) confirm(prompt string) (bool, error) {
	if err := a.printf("%s [y/N]: ", prompt); err != nil {
		return false, err
	}
	line, err := bufio.NewReader(a.in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	line = strings.TrimSpace(strings.ToLower(line))
	return line == "y" || line == "yes", nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeJSONLine writes v as one compact line, for streaming output.
func writeJSONLine(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}

func (a *app) printf(format string, args ...any) error {
	_, err := fmt.Fprintf(a.out, format, args...)
	return err
}

func (a *app) println(args ...any) error {
	_, err := fmt.Fprintln(a.out, args...)
	return err
}
