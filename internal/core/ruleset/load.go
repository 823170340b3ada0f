// Package ruleset locates, parses and compiles the rule files of a mario
// installation: the main rules file followed by every *.plumb file of the
// rules directory in lexical order.
package ruleset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/solatis/mario/internal/logging"
	"github.com/solatis/mario/internal/rules"
	"github.com/solatis/mario/internal/types"
)

// Extension marks rule files inside the rules directory.
const Extension = ".plumb"

// Source is one parsed rule file.
type Source struct {
	Path  string
	Rules []types.Rule
}

// Set is the loaded and compiled rule list.
type Set struct {
	Sources  []Source
	Compiled []*rules.CompiledRule
}

// Rules returns the parsed rules of every source in load order.
func (s *Set) Rules() []types.Rule {
	var all []types.Rule
	for _, src := range s.Sources {
		all = append(all, src.Rules...)
	}
	return all
}

// Files lists the rule files in load order: rulesFile when it exists, then
// the *.plumb files of rulesDir sorted by name. Either may be absent.
func Files(rulesFile, rulesDir string) ([]string, error) {
	var files []string

	if rulesFile != "" {
		info, err := os.Stat(rulesFile)
		switch {
		case err == nil && !info.IsDir():
			files = append(files, rulesFile)
		case err == nil:
			return nil, fmt.Errorf("rules file %s is a directory", rulesFile)
		case !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("failed to stat rules file: %w", err)
		}
	}

	if rulesDir != "" {
		entries, err := os.ReadDir(rulesDir)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read rules dir: %w", err)
		}
		var names []string
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), Extension) {
				continue
			}
			names = append(names, e.Name())
		}
		// Sort by filename for deterministic ordering
		sort.Strings(names)
		for _, name := range names {
			files = append(files, filepath.Join(rulesDir, name))
		}
	}

	return files, nil
}

// Load parses and compiles the rules found by Files. Any parse or compile
// error aborts loading. ErrNoRules is returned when no file exists or all
// files are empty.
func Load(rulesFile, rulesDir string) (set *Set, err error) {
	logger := logging.GetLogger("core.ruleset")
	done := logging.TimeOperation(logger, "load rules")
	defer func() { done(err) }()

	files, err := Files(rulesFile, rulesDir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no rules file at %s and no %s files in %s",
			types.ErrNoRules, rulesFile, Extension, rulesDir)
	}

	set = &Set{}
	for _, path := range files {
		src, err := loadFile(path)
		if err != nil {
			return nil, err
		}
		logger.Debug().Str("file", path).Int("rules", len(src.Rules)).Msg("Loaded rule file")
		set.Sources = append(set.Sources, src)
	}

	all := set.Rules()
	if len(all) == 0 {
		return nil, fmt.Errorf("%w: %d file(s) contain no rules", types.ErrNoRules, len(files))
	}

	for _, src := range set.Sources {
		compiled, err := rules.CompileAll(src.Rules)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", src.Path, err)
		}
		for _, cr := range compiled {
			cr.Index = len(set.Compiled)
			set.Compiled = append(set.Compiled, cr)
		}
	}

	logger.Info().Int("files", len(files)).Int("rules", len(all)).Msg("Rules loaded")
	return set, nil
}

func loadFile(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return Source{}, fmt.Errorf("failed to open rules: %w", err)
	}
	defer f.Close()

	parsed, err := rules.Parse(f)
	if err != nil {
		return Source{}, fmt.Errorf("%s: %w", path, err)
	}
	return Source{Path: path, Rules: parsed}, nil
}
