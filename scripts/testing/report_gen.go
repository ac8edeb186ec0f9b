// Copyright 2026 The Soundry Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command report_gen turns `go test -json` output into JSON and Markdown
// test reports, annotated with the TestPurpose / Scope / Security /
// Expected / Test Case ID comment blocks carried by the test functions.
//
// Usage:
//
//	go test -json ./... > /tmp/results.json
//	go run scripts/testing/report_gen.go -input /tmp/results.json \
//	    -out-json report.json -out-md report.md
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const modulePath = "github.com/soundryhq/soundry"

// TestMetadata holds info parsed from Go source comments.
type TestMetadata struct {
	Name       string `json:"name"`
	Purpose    string `json:"purpose,omitempty"`
	Scope      string `json:"scope,omitempty"`
	Security   string `json:"security,omitempty"`
	Expected   string `json:"expected,omitempty"`
	TestCaseID string `json:"test_case_id,omitempty"`
	Package    string `json:"package"`
	Category   string `json:"category"`
}

// goTestEvent is a single event from `go test -json`.
type goTestEvent struct {
	Action  string  `json:"Action"`
	Package string  `json:"Package"`
	Test    string  `json:"Test"`
	Elapsed float64 `json:"Elapsed"`
	Output  string  `json:"Output"`
}

// testResult is the merged outcome for one test.
type testResult struct {
	Name        string       `json:"name"`
	Status      string       `json:"status"`
	Elapsed     float64      `json:"elapsed_seconds"`
	Package     string       `json:"package"`
	Failure     string       `json:"failure_reason,omitempty"`
	Annotations TestMetadata `json:"annotations"`
}

type reportSummary struct {
	GeneratedAt time.Time    `json:"generated_at"`
	Total       int          `json:"total"`
	Passed      int          `json:"passed"`
	Failed      int          `json:"failed"`
	Skipped     int          `json:"skipped"`
	Results     []testResult `json:"results"`
}

func main() {
	inputPath := flag.String("input", "", "Path to go test -json output file")
	outputJSON := flag.String("out-json", "", "Path for output JSON report")
	outputMD := flag.String("out-md", "", "Path for output Markdown report")
	title := flag.String("title", "Soundry Test Report", "Report title")
	flag.Parse()

	if *inputPath == "" || *outputJSON == "" || *outputMD == "" {
		fmt.Println("Usage: report_gen -input <json_file> -out-json <out_json> -out-md <out_md>")
		os.Exit(1)
	}

	metadata := scanMetadata()
	results := parseTestOutput(*inputPath, metadata)
	summary := summarize(results)

	saveJSON(summary, *outputJSON)
	saveMarkdown(summary, *outputMD, *title)

	if summary.Failed > 0 {
		fmt.Printf("report_gen: %d tests failed\n", summary.Failed)
		os.Exit(1)
	}
}

// scanMetadata walks the repository and indexes every test function's
// annotation block by package path and name.
func scanMetadata() map[string]TestMetadata {
	metadata := make(map[string]TestMetadata)
	fset := token.NewFileSet()

	filepath.WalkDir(".", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, "_test.go") {
			return nil
		}
		if strings.Contains(path, "vendor/") || strings.Contains(path, ".git/") {
			return nil
		}

		node, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
		if err != nil {
			return nil
		}

		pkgPath := packagePath(path)
		for _, decl := range node.Decls {
			fn, ok := decl.(*ast.FuncDecl)
			if !ok || !strings.HasPrefix(fn.Name.Name, "Test") {
				continue
			}

			meta := TestMetadata{
				Name:     fn.Name.Name,
				Package:  pkgPath,
				Category: category(pkgPath),
			}
			if fn.Doc != nil {
				for _, line := range fn.Doc.List {
					text := strings.TrimSpace(strings.TrimPrefix(line.Text, "//"))
					switch {
					case strings.HasPrefix(text, "TestPurpose:"):
						meta.Purpose = strings.TrimSpace(strings.TrimPrefix(text, "TestPurpose:"))
					case strings.HasPrefix(text, "Scope:"):
						meta.Scope = strings.TrimSpace(strings.TrimPrefix(text, "Scope:"))
					case strings.HasPrefix(text, "Security:"):
						meta.Security = strings.TrimSpace(strings.TrimPrefix(text, "Security:"))
					case strings.HasPrefix(text, "Expected:"):
						meta.Expected = strings.TrimSpace(strings.TrimPrefix(text, "Expected:"))
					case strings.HasPrefix(text, "Test Case ID:"):
						meta.TestCaseID = strings.TrimSpace(strings.TrimPrefix(text, "Test Case ID:"))
					}
				}
			}
			metadata[pkgPath+"."+fn.Name.Name] = meta
		}
		return nil
	})

	return metadata
}

func packagePath(filePath string) string {
	dir := strings.TrimPrefix(filepath.Dir(filePath), "./")
	if dir == "." {
		return modulePath
	}
	return modulePath + "/" + dir
}

func category(pkgPath string) string {
	rel := strings.TrimPrefix(pkgPath, modulePath+"/")
	switch {
	case strings.Contains(rel, "tenantdb"):
		return "Tenant DB"
	case strings.Contains(rel, "organization"):
		return "Organization"
	case strings.Contains(rel, "audit"):
		return "Audit"
	case strings.Contains(rel, "transport/http"):
		return "API"
	case strings.Contains(rel, "config"):
		return "Config"
	case strings.HasPrefix(rel, "tests/system"):
		return "System"
	case strings.HasPrefix(rel, "tests/e2e"):
		return "E2E"
	}
	return "Other"
}

func parseTestOutput(path string, metadata map[string]TestMetadata) []testResult {
	states := make(map[string]*testResult)
	for key, m := range metadata {
		states[key] = &testResult{
			Name:        m.Name,
			Package:     m.Package,
			Status:      "not run",
			Annotations: m,
		}
	}

	file, err := os.Open(path)
	if err != nil {
		fmt.Printf("report_gen: cannot open %s: %v\n", path, err)
		return nil
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var event goTestEvent
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			continue
		}
		if event.Test == "" {
			continue
		}

		key := event.Package + "." + event.Test
		res, ok := states[key]
		if !ok {
			// Subtests inherit the parent annotation block.
			anno := TestMetadata{Name: event.Test, Package: event.Package, Category: category(event.Package)}
			if parent := strings.Split(event.Test, "/")[0]; parent != event.Test {
				if parentMeta, found := metadata[event.Package+"."+parent]; found {
					anno = parentMeta
					anno.Name = event.Test
				}
			}
			res = &testResult{Name: event.Test, Package: event.Package, Annotations: anno}
			states[key] = res
		}

		switch event.Action {
		case "pass":
			res.Status = "pass"
			res.Elapsed = event.Elapsed
		case "fail":
			res.Status = "fail"
			res.Elapsed = event.Elapsed
		case "skip":
			res.Status = "skip"
		case "output":
			if res.Status == "fail" || res.Status == "" {
				res.Failure += event.Output
			}
		}
	}

	results := make([]testResult, 0, len(states))
	for _, v := range states {
		results = append(results, *v)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Package != results[j].Package {
			return results[i].Package < results[j].Package
		}
		return results[i].Name < results[j].Name
	})
	return results
}

func summarize(results []testResult) reportSummary {
	summary := reportSummary{GeneratedAt: time.Now(), Results: results}
	for _, r := range results {
		summary.Total++
		switch r.Status {
		case "pass":
			summary.Passed++
		case "fail":
			summary.Failed++
		case "skip":
			summary.Skipped++
		}
	}
	return summary
}

func saveJSON(summary reportSummary, path string) {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		fmt.Printf("report_gen: marshal: %v\n", err)
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		fmt.Printf("report_gen: write %s: %v\n", path, err)
	}
}

func saveMarkdown(summary reportSummary, path, title string) {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "Generated: %s\n\n", summary.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "| Total | Passed | Failed | Skipped |\n|---|---|---|---|\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %d |\n\n", summary.Total, summary.Passed, summary.Failed, summary.Skipped)

	byCategory := make(map[string][]testResult)
	for _, r := range summary.Results {
		byCategory[r.Annotations.Category] = append(byCategory[r.Annotations.Category], r)
	}
	categories := make([]string, 0, len(byCategory))
	for c := range byCategory {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	for _, c := range categories {
		fmt.Fprintf(&b, "## %s\n\n", c)
		fmt.Fprintf(&b, "| Test Case ID | Test | Status | Purpose |\n|---|---|---|---|\n")
		for _, r := range byCategory[c] {
			id := r.Annotations.TestCaseID
			if id == "" {
				id = "-"
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", id, r.Name, r.Status, r.Annotations.Purpose)
		}
		b.WriteString("\n")
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		fmt.Printf("report_gen: write %s: %v\n", path, err)
	}
}
