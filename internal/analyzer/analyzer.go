// sqlcheck is a SQL-quality-analysis orchestration service.
// Copyright (C) 2025  Matthew Burns
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package analyzer is the narrow adapter over the third-party SQL linter.
// It caches one configured linter instance per dialect and normalizes
// whatever the underlying linter returns into an AnalysisResult. The linter
// itself is an external collaborator; the implementation here is a small
// structural stand-in exercising the same shape a real binding would have.
package analyzer

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// ConfigError is returned by Analyze when a dialect has no configured
// linter.
type ConfigError struct {
	Dialect string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("analyzer: unsupported dialect %q", e.Dialect)
}

const analyzerVersion = "sqlcheck-analyzer/1"

// criticalRules is the fixed small set of layout/whitespace-structural rule
// codes promoted to severity "critical"; everything else is "warning".
var criticalRules = map[string]bool{
	"L001": true,
	"L002": true,
	"L003": true,
	"L008": true,
	"L009": true,
}

// Violation is one normalized finding.
type Violation struct {
	LineNo      int    `json:"line_no"`
	LinePos     int    `json:"line_pos"`
	Code        string `json:"code"`
	Description string `json:"description"`
	Rule        string `json:"rule"`
	Severity    string `json:"severity"`
	Fixable     bool   `json:"fixable"`
}

// Summary aggregates Violations.
type Summary struct {
	TotalViolations    int  `json:"total_violations"`
	CriticalViolations int  `json:"critical_violations"`
	WarningViolations  int  `json:"warning_violations"`
	FilePassed         bool `json:"file_passed"`
	SuccessRate        int  `json:"success_rate"`
}

// FileInfo describes the analyzed source.
type FileInfo struct {
	FileName       string `json:"file_name"`
	FileSize       int    `json:"file_size"`
	LineCount      int    `json:"line_count"`
	CharacterCount int    `json:"character_count"`
	FilePath       string `json:"file_path,omitempty"`
}

// Metadata records how the analysis was produced.
type Metadata struct {
	AnalyzerVersion string   `json:"analyzer_version"`
	Dialect         string   `json:"dialect"`
	AnalysisTime    string   `json:"analysis_time"`
	RulesApplied    []string `json:"rules_applied"`
}

// AnalysisResult is the normalized record persisted as a task result artifact.
type AnalysisResult struct {
	Violations []Violation `json:"violations"`
	Summary    Summary     `json:"summary"`
	FileInfo   FileInfo    `json:"file_info"`
	Metadata   Metadata    `json:"analysis_metadata"`
}

// Options narrows or overrides the rule set applied to one analysis.
type Options struct {
	Rules         []string
	ExcludeRules  []string
	RuleOverrides map[string]string
}

type linter struct {
	dialect string
	rules   []rule
}

type rule struct {
	code        string
	description string
	fixable     bool
	check       func(line string) []int // byte offsets of violating positions
}

// Adapter caches a configured linter per dialect.
type Adapter struct {
	mu      sync.Mutex
	linters map[string]*linter
	now     func() time.Time
}

// New returns an Adapter supporting the given dialects, building and
// caching one linter per dialect up front.
func New(dialects []string) *Adapter {
	set := make(map[string]bool, len(dialects))
	for _, d := range dialects {
		set[strings.ToLower(d)] = true
	}
	a := &Adapter{linters: make(map[string]*linter), now: time.Now}
	for d := range set {
		a.linters[d] = buildLinter(d)
	}
	return a
}

func (a *Adapter) getLinter(dialect string) (*linter, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := strings.ToLower(dialect)
	if l, ok := a.linters[key]; ok {
		return l, nil
	}
	return nil, &ConfigError{Dialect: dialect}
}

// Analyze lints sqlText under the given dialect, applying the optional rule
// filter, and returns a normalized AnalysisResult.
func (a *Adapter) Analyze(sqlText, fileName, dialect string, opts Options) (AnalysisResult, error) {
	l, err := a.getLinter(dialect)
	if err != nil {
		return AnalysisResult{}, err
	}

	applied := selectRules(l.rules, opts)
	lines := strings.Split(sqlText, "\n")

	var violations []Violation
	for _, r := range applied {
		for lineIdx, line := range lines {
			for _, pos := range r.check(line) {
				violations = append(violations, Violation{
					LineNo:      lineIdx + 1,
					LinePos:     pos + 1,
					Code:        r.code,
					Description: r.description,
					Rule:        r.code,
					Severity:    severityFor(r.code),
					Fixable:     r.fixable,
				})
			}
		}
	}
	if ruleSelected(applied, "L009") && !strings.HasSuffix(sqlText, "\n") {
		violations = append(violations, Violation{
			LineNo:      len(lines),
			LinePos:     1,
			Code:        "L009",
			Description: "file does not end with a single trailing newline",
			Rule:        "L009",
			Severity:    severityFor("L009"),
			Fixable:     true,
		})
	}

	sort.Slice(violations, func(i, j int) bool {
		if violations[i].LineNo != violations[j].LineNo {
			return violations[i].LineNo < violations[j].LineNo
		}
		return violations[i].LinePos < violations[j].LinePos
	})

	critical, warning := 0, 0
	for _, v := range violations {
		if v.Severity == "critical" {
			critical++
		} else {
			warning++
		}
	}
	successRate := 100
	if critical > 0 {
		successRate = 0
	}

	ruleCodes := make([]string, 0, len(applied))
	for _, r := range applied {
		ruleCodes = append(ruleCodes, r.code)
	}
	sort.Strings(ruleCodes)

	return AnalysisResult{
		Violations: violations,
		Summary: Summary{
			TotalViolations:    len(violations),
			CriticalViolations: critical,
			WarningViolations:  warning,
			FilePassed:         critical == 0,
			SuccessRate:        successRate,
		},
		FileInfo: FileInfo{
			FileName:       fileName,
			FileSize:       len(sqlText),
			LineCount:      len(lines),
			CharacterCount: len([]rune(sqlText)),
		},
		Metadata: Metadata{
			AnalyzerVersion: analyzerVersion,
			Dialect:         l.dialect,
			AnalysisTime:    a.now().UTC().Format(time.RFC3339),
			RulesApplied:    ruleCodes,
		},
	}, nil
}

func ruleSelected(applied []rule, code string) bool {
	for _, r := range applied {
		if r.code == code {
			return true
		}
	}
	return false
}

func severityFor(code string) string {
	if criticalRules[code] {
		return "critical"
	}
	return "warning"
}

func selectRules(all []rule, opts Options) []rule {
	include := make(map[string]bool)
	for _, c := range opts.Rules {
		include[c] = true
	}
	exclude := make(map[string]bool)
	for _, c := range opts.ExcludeRules {
		exclude[c] = true
	}

	var out []rule
	for _, r := range all {
		if len(include) > 0 && !include[r.code] {
			continue
		}
		if exclude[r.code] {
			continue
		}
		out = append(out, r)
	}
	return out
}

var trailingWhitespace = regexp.MustCompile(`[ \t]+$`)

// buildLinter assembles the structural rule set for a dialect. Every
// dialect shares the same layout rules; a real binding would vary rule
// availability per dialect's grammar.
func buildLinter(dialect string) *linter {
	return &linter{
		dialect: dialect,
		rules: []rule{
			{
				code:        "L001",
				description: "trailing whitespace",
				fixable:     true,
				check: func(line string) []int {
					if loc := trailingWhitespace.FindStringIndex(line); loc != nil {
						return []int{loc[0]}
					}
					return nil
				},
			},
			{
				code:        "L002",
				description: "mixed tabs and spaces in indentation",
				fixable:     true,
				check: func(line string) []int {
					indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
					if strings.Contains(indent, " ") && strings.Contains(indent, "\t") {
						return []int{0}
					}
					return nil
				},
			},
			{
				code:        "L003",
				description: "indentation not a multiple of four spaces",
				fixable:     true,
				check: func(line string) []int {
					indent := line[:len(line)-len(strings.TrimLeft(line, " "))]
					if strings.Contains(indent, "\t") {
						return nil
					}
					if len(indent)%4 != 0 {
						return []int{0}
					}
					return nil
				},
			},
			{
				code:        "L008",
				description: "missing whitespace after comma",
				fixable:     true,
				check: func(line string) []int {
					var positions []int
					for i, r := range line {
						if r == ',' && i+1 < len(line) && line[i+1] != ' ' && line[i+1] != '\n' {
							positions = append(positions, i)
						}
					}
					return positions
				},
			},
			{
				code:        "L009",
				description: "file does not end with a single trailing newline",
				fixable:     true,
				check:       func(line string) []int { return nil },
			},
			{
				code:        "L010",
				description: "keywords should be consistently upper case",
				fixable:     true,
				check: func(line string) []int {
					lowered := strings.ToLower(line)
					for _, kw := range []string{"select", "insert", "update", "delete"} {
						if strings.Contains(lowered, kw) && strings.Contains(line, kw) {
							return []int{strings.Index(line, kw)}
						}
					}
					return nil
				},
			},
		},
	}
}
