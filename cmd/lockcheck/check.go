// check.go implements the 'lockcheck check' command.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/hashicorp/go-multierror"

	"github.com/kolkov/reclock/cmd/lockcheck/analyze"
)

// checkConfig holds the parsed arguments of 'lockcheck check'.
type checkConfig struct {
	paths   []string
	json    bool
	noColor bool
}

func parseCheckArgs(args []string, stderr io.Writer) (*checkConfig, error) {
	cfg := &checkConfig{}
	fset := flag.NewFlagSet("check", flag.ContinueOnError)
	fset.SetOutput(stderr)
	fset.BoolVar(&cfg.json, "json", false, "print findings as JSON")
	fset.BoolVar(&cfg.noColor, "no-color", false, "disable colored output")
	if err := fset.Parse(args); err != nil {
		return nil, err
	}
	cfg.paths = fset.Args()
	if len(cfg.paths) == 0 {
		cfg.paths = []string{"."}
	}
	return cfg, nil
}

// checkReport is the -json output.
type checkReport struct {
	Module   string              `json:"module,omitempty"`
	Files    int                 `json:"files"`
	Stats    analyze.Stats       `json:"stats"`
	Findings []*analyze.Finding  `json:"findings"`
	Packages map[string][]string `json:"packages,omitempty"`
}

// checkCommand runs 'lockcheck check' and returns the exit status.
//
// Example:
//
//	lockcheck check ./...
//	lockcheck check -json internal/bus
func checkCommand(args []string, stdout, stderr io.Writer) int {
	cfg, err := parseCheckArgs(args, stderr)
	if err != nil {
		return 2
	}

	files, err := collectFiles(cfg.paths)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	mod, err := loadModule(filepath.Dir(files.first()))
	if err != nil {
		fmt.Fprintf(stderr, "Warning: reading go.mod: %v\n", err)
	}

	report := &checkReport{Files: len(files), Findings: []*analyze.Finding{}}
	if mod != nil {
		report.Module = mod.Path
	}

	var parseErrs *multierror.Error
	for _, file := range files {
		res, err := analyze.File(file, nil)
		if err != nil {
			parseErrs = multierror.Append(parseErrs, err)
			continue
		}
		report.Stats.Add(res.Stats)
		report.Findings = append(report.Findings, res.Findings...)
		for _, f := range res.Findings {
			if report.Packages == nil {
				report.Packages = make(map[string][]string)
			}
			pkg := mod.packagePath(filepath.Dir(f.File))
			report.Packages[pkg] = append(report.Packages[pkg], f.Position())
		}
	}

	if cfg.json {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
	} else {
		printText(stdout, report, cfg.noColor)
	}

	if err := parseErrs.ErrorOrNil(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if len(report.Findings) > 0 {
		return 1
	}
	return 0
}

func printText(w io.Writer, report *checkReport, noColor bool) {
	pos := color.New(color.Bold)
	msg := color.New(color.FgYellow)
	hint := color.New(color.Faint)
	for _, c := range []*color.Color{pos, msg, hint} {
		if noColor {
			c.DisableColor()
		}
	}

	for _, f := range report.Findings {
		fmt.Fprintf(w, "%s: %s\n", pos.Sprint(f.Position()), msg.Sprint(f.Message))
		if f.Suggestion != "" {
			fmt.Fprintf(w, "    %s\n", hint.Sprint("Suggestion: "+f.Suggestion))
		}
	}

	pkgs := make([]string, 0, len(report.Packages))
	for pkg := range report.Packages {
		pkgs = append(pkgs, pkg)
	}
	sort.Strings(pkgs)

	fmt.Fprintf(w, "\nChecked %d files, %d functions: %d locks, %d scopes, %d findings\n",
		report.Files, report.Stats.Functions, report.Stats.Locks, report.Stats.Scopes, len(report.Findings))
	for _, pkg := range pkgs {
		fmt.Fprintf(w, "    %s: %d\n", pkg, len(report.Packages[pkg]))
	}
}

// fileList is the set of .go files to check, in walk order.
type fileList []string

func (l fileList) first() string {
	if len(l) == 0 {
		return "."
	}
	return l[0]
}

// collectFiles expands paths into Go source files. A path ending in
// "/..." is walked recursively; a directory contributes its own files; a
// file is taken as is. Directories named testdata or vendor, or starting
// with "." or "_", are skipped.
func collectFiles(paths []string) (fileList, error) {
	var files fileList
	seen := make(map[string]bool)
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}

	for _, p := range paths {
		recursive := false
		if p == "..." || strings.HasSuffix(p, "/...") {
			recursive = true
			p = strings.TrimSuffix(strings.TrimSuffix(p, "..."), "/")
			if p == "" {
				p = "."
			}
		}

		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			add(p)
			continue
		}

		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path == p {
					return nil
				}
				if !recursive || skipDir(d.Name()) {
					return filepath.SkipDir
				}
				return nil
			}
			if strings.HasSuffix(path, ".go") {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no Go files in %s", strings.Join(paths, " "))
	}
	return files, nil
}

func skipDir(name string) bool {
	return name == "testdata" || name == "vendor" ||
		strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")
}
