// gtest compiles a corpus of programs and compares every result against a golden snapshot
// stored next to the source as .<file>.json.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dustin/go-humanize"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/xplshn/gpas/pkg/compiler"
	"github.com/xplshn/gpas/pkg/config"
)

// Execution is one run of a binary built from the emitted C.
type Execution struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exitCode"`
	Duration time.Duration `json:"duration"`
	TimedOut bool          `json:"timed_out"`
}

// Snapshot is what a golden file records about one compilation.
type Snapshot struct {
	Fingerprint string     `json:"fingerprint"`
	Diagnostics []string   `json:"diagnostics"`
	Output      []string   `json:"output"`
	Run         *Execution `json:"run,omitempty"`
}

type FileTestResult struct {
	File    string        `json:"file"`
	Status  string        `json:"status"` // PASS, FAIL, SKIP, ERROR
	Message string        `json:"message,omitempty"`
	Diff    string        `json:"diff,omitempty"`
	Size    int           `json:"size"`
	Elapsed time.Duration `json:"elapsed"`
	Got     *Snapshot     `json:"got,omitempty"`
}

type TestSuiteResults map[string]*FileTestResult

var (
	generateGolden = flag.Bool("generate-golden", false, "Write golden snapshots instead of comparing against them.")
	testFiles      = flag.String("test-files", "tests/*.pas", "Glob pattern(s) for files to test (space-separated).")
	skipFiles      = flag.String("skip-files", "", "Files to skip (space-separated).")
	outputJSON     = flag.String("output", ".test_results.json", "Output file for the JSON test report.")
	jsonDir        = flag.String("dir", "", "Directory to store/read golden JSON files (defaults to source file dir).")
	std            = flag.String("std", "default", "Language standard passed to the compiler.")
	compilerFlags  = flag.String("flags", "", "Warning and feature switches, e.g. \"-Wshadow -Fno-assert\".")
	cc             = flag.String("cc", "", "C compiler used to build and run the output; empty skips execution.")
	stdin          = flag.String("stdin", "", "Data piped to every built program.")
	timeout        = flag.Duration("timeout", 5*time.Second, "Timeout for each external command.")
	jobs           = flag.Int("j", 4, "Number of parallel test jobs.")
	verbose        = flag.Bool("v", false, "Enable verbose logging.")
)

const (
	cRed    = "\x1b[91m"
	cYellow = "\x1b[93m"
	cGreen  = "\x1b[92m"
	cCyan   = "\x1b[96m"
	cBold   = "\x1b[1m"
	cNone   = "\x1b[0m"
)

func main() {
	flag.Parse()
	log.SetFlags(0)

	if *jobs < 1 {
		*jobs = 1
	}

	tempDir, err := os.MkdirTemp("", "gtest-*")
	if err != nil {
		log.Fatalf("%s[ERROR]%s Failed to create temp directory: %v\n", cRed, cNone, err)
	}
	defer os.RemoveAll(tempDir)
	setupInterruptHandler(tempDir)

	if failed := runSuite(tempDir); failed {
		os.RemoveAll(tempDir)
		os.Exit(1)
	}
}

func setupInterruptHandler(tempDir string) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() {
		<-c
		os.RemoveAll(tempDir)
		fmt.Printf("\n%s[INTERRUPT]%s Test run cancelled. Cleaning up...\n", cYellow, cNone)
		os.Exit(1)
	}()
}

func newConfig() (*config.Config, error) {
	cfg := config.NewConfig()
	if err := cfg.ApplyStd(*std); err != nil {
		return nil, err
	}
	cfg.ProcessFlagString(*compilerFlags)
	return cfg, nil
}

func getJSONPath(sourceFile string) string {
	name := "." + filepath.Base(sourceFile) + ".json"
	if *jsonDir != "" {
		return filepath.Join(*jsonDir, name)
	}
	return filepath.Join(filepath.Dir(sourceFile), name)
}

func runSuite(tempDir string) bool {
	files, err := expandGlobPatterns(*testFiles)
	if err != nil {
		log.Fatalf("%s[ERROR]%s Invalid glob pattern(s): %v\n", cRed, cNone, err)
	}
	if len(files) == 0 {
		log.Println("No test files found matching the pattern(s).")
		return false
	}
	if _, err := newConfig(); err != nil {
		log.Fatalf("%s[ERROR]%s %v\n", cRed, cNone, err)
	}

	skipList := make(map[string]bool)
	for _, f := range strings.Fields(*skipFiles) {
		if abs, err := filepath.Abs(f); err == nil {
			skipList[abs] = true
		}
	}

	type task struct {
		file string
		src  []byte
	}
	tasks := make(chan task, len(files))
	resultsChan := make(chan *FileTestResult, len(files))
	var wg sync.WaitGroup

	for i := 0; i < *jobs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range tasks {
				resultsChan <- testFile(t.file, t.src, tempDir)
			}
		}()
	}

	// Identical inputs are compiled once.
	seenHashes := make(map[uint64]string)
	for _, file := range files {
		if skipList[file] {
			resultsChan <- &FileTestResult{File: file, Status: "SKIP", Message: "Explicitly skipped"}
			continue
		}
		src, err := os.ReadFile(file)
		if err != nil {
			resultsChan <- &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Failed to read file: %v", err)}
			continue
		}
		h := xxhash.Sum64(src)
		if original, seen := seenHashes[h]; seen {
			resultsChan <- &FileTestResult{File: file, Status: "SKIP", Message: fmt.Sprintf("Content is identical to %s", original)}
			continue
		}
		seenHashes[h] = file
		tasks <- task{file, src}
	}
	close(tasks)

	wg.Wait()
	close(resultsChan)

	var all []*FileTestResult
	for r := range resultsChan {
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].File < all[j].File })

	printSummary(all)
	return hasFailures(writeJSONReport(all))
}

func snapshot(file string, src []byte, tempDir string) (*Snapshot, int, error) {
	cfg, err := newConfig()
	if err != nil {
		return nil, 0, err
	}
	res := compiler.Compile(file, src, cfg, compiler.Options{})

	snap := &Snapshot{Diagnostics: []string{}, Output: []string{}}
	for _, d := range res.Reporter.Sorted() {
		snap.Diagnostics = append(snap.Diagnostics, d.Error())
	}
	if res.Unit == nil {
		return snap, 0, nil
	}
	snap.Fingerprint = fmt.Sprintf("%016x", res.Unit.Fingerprint())
	snap.Output = res.Unit.Lines()
	text := res.Unit.String()

	if *cc != "" && res.OK() {
		run, err := buildAndRun(text, filepath.Join(tempDir, fmt.Sprintf("%x", xxhash.Sum64(src))))
		if err != nil {
			return snap, len(text), err
		}
		snap.Run = run
	}
	return snap, len(text), nil
}

func testFile(file string, src []byte, tempDir string) *FileTestResult {
	start := time.Now()
	got, size, err := snapshot(file, src, tempDir)
	result := &FileTestResult{File: file, Size: size, Got: got}
	defer func() { result.Elapsed = time.Since(start) }()
	if err != nil {
		result.Status, result.Message = "ERROR", err.Error()
		return result
	}

	goldenFile := getJSONPath(file)
	if *generateGolden {
		if err := writeGolden(goldenFile, got); err != nil {
			result.Status, result.Message = "ERROR", err.Error()
			return result
		}
		result.Status, result.Message = "PASS", "Golden file written to "+goldenFile
		return result
	}

	data, err := os.ReadFile(goldenFile)
	if err != nil {
		result.Status, result.Message = "SKIP", "No golden file; run with --generate-golden"
		return result
	}
	var want Snapshot
	if err := json.Unmarshal(data, &want); err != nil {
		result.Status, result.Message = "ERROR", fmt.Sprintf("Could not parse golden file %s: %v", goldenFile, err)
		return result
	}
	if *cc == "" {
		want.Run = nil
	}

	if diff := cmp.Diff(&want, got, cmpopts.IgnoreFields(Execution{}, "Duration"), cmpopts.EquateEmpty()); diff != "" {
		result.Status, result.Message, result.Diff = "FAIL", "Snapshot mismatch (-want +got)", diff
		return result
	}
	result.Status, result.Message = "PASS", "Matches golden snapshot"
	return result
}

func writeGolden(path string, snap *Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal golden data: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return os.WriteFile(path, data, 0644)
}

// buildAndRun compiles the C text with --cc and runs the binary once.
func buildAndRun(text, binaryPath string) (*Execution, error) {
	cFile := binaryPath + ".c"
	if err := os.WriteFile(cFile, []byte(text), 0644); err != nil {
		return nil, fmt.Errorf("failed to write C output: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	build := executeCommand(ctx, *cc, "", "-o", binaryPath, cFile)
	if build.ExitCode != 0 || build.TimedOut {
		return nil, fmt.Errorf("%s failed with exit code %d:\n%s", *cc, build.ExitCode, build.Stderr)
	}

	runCtx, runCancel := context.WithTimeout(context.Background(), *timeout)
	defer runCancel()
	run := executeCommand(runCtx, binaryPath, *stdin)
	return &run, nil
}

// executeCommand runs a command with a timeout and captures its output, optionally piping data to stdin
func executeCommand(ctx context.Context, command string, stdinData string, args ...string) Execution {
	start := time.Now()
	cmd := exec.CommandContext(ctx, command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout, cmd.Stderr = &stdout, &stderr
	if stdinData != "" {
		cmd.Stdin = strings.NewReader(stdinData)
	}

	err := cmd.Run()
	res := Execution{Stdout: stdout.String(), Stderr: stderr.String(), Duration: time.Since(start)}

	switch exitErr, isExit := err.(*exec.ExitError); {
	case ctx.Err() == context.DeadlineExceeded:
		res.TimedOut, res.ExitCode = true, -1
	case isExit:
		res.ExitCode = exitErr.ExitCode()
	case err != nil:
		res.ExitCode = -2
		res.Stderr += "\nExecution error: " + err.Error()
	}
	return res
}

func printSummary(results []*FileTestResult) {
	var passed, failed, skipped, errored, totalSize int
	var total time.Duration

	for _, r := range results {
		var color string
		switch r.Status {
		case "PASS":
			passed++
			color = cGreen
		case "FAIL":
			failed++
			color = cRed
		case "SKIP":
			skipped++
			color = cYellow
		case "ERROR":
			errored++
			color = cRed
		}
		totalSize += r.Size
		total += r.Elapsed

		if r.Status == "PASS" && !*verbose {
			continue
		}
		fmt.Printf("%s[%s]%s %s", color, r.Status, cNone, r.File)
		if r.Size > 0 {
			fmt.Printf(" %s(%s, %v)%s", cCyan, humanize.Bytes(uint64(r.Size)), r.Elapsed.Round(time.Microsecond), cNone)
		}
		fmt.Println()
		if r.Message != "" {
			fmt.Printf("    %s\n", r.Message)
		}
		if r.Diff != "" {
			fmt.Println(formatDiff(r.Diff))
		}
	}

	fmt.Println("----------------------")
	fmt.Printf("%sTests:%s %s total, %s%d passed%s, %s%d failed%s, %s%d skipped%s, %s%d errors%s\n",
		cBold, cNone, humanize.Comma(int64(len(results))),
		cGreen, passed, cNone, cRed, failed, cNone, cYellow, skipped, cNone, cRed, errored, cNone)
	fmt.Printf("%sOutput:%s %s of C in %v\n", cBold, cNone, humanize.Bytes(uint64(totalSize)), total.Round(time.Millisecond))
}

func formatDiff(diff string) string {
	var sb strings.Builder
	for _, line := range strings.Split(strings.TrimRight(diff, "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "-"):
			fmt.Fprintf(&sb, "    %s%s%s\n", cRed, line, cNone)
		case strings.HasPrefix(trimmed, "+"):
			fmt.Fprintf(&sb, "    %s%s%s\n", cGreen, line, cNone)
		default:
			fmt.Fprintf(&sb, "    %s\n", line)
		}
	}
	return sb.String()
}

func writeJSONReport(results []*FileTestResult) TestSuiteResults {
	resultsMap := make(TestSuiteResults, len(results))
	for _, r := range results {
		resultsMap[r.File] = r
	}

	data, err := json.MarshalIndent(resultsMap, "", "  ")
	if err != nil {
		log.Printf("%s[ERROR]%s Failed to marshal results to JSON: %v\n", cRed, cNone, err)
		return resultsMap
	}

	outputFile := *outputJSON
	if *jsonDir != "" {
		if err := os.MkdirAll(*jsonDir, 0755); err != nil {
			log.Printf("%s[ERROR]%s Failed to create dir %s: %v\n", cRed, cNone, *jsonDir, err)
		}
		outputFile = filepath.Join(*jsonDir, *outputJSON)
	}
	if err := os.WriteFile(outputFile, data, 0644); err != nil {
		log.Printf("%s[ERROR]%s Failed to write JSON report to %s: %v\n", cRed, cNone, outputFile, err)
	} else {
		fmt.Printf("Full test report saved to %s (%s)\n", outputFile, humanize.Bytes(uint64(len(data))))
	}
	return resultsMap
}

func hasFailures(results TestSuiteResults) bool {
	for _, r := range results {
		if r.Status == "FAIL" || r.Status == "ERROR" {
			return true
		}
	}
	return false
}

func expandGlobPatterns(patterns string) ([]string, error) {
	var all []string
	seen := make(map[string]bool)
	for _, pattern := range strings.Fields(patterns) {
		files, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %s: %w", pattern, err)
		}
		for _, file := range files {
			abs, err := filepath.Abs(file)
			if err != nil || seen[abs] {
				continue
			}
			if info, err := os.Stat(abs); err == nil && info.Mode().IsRegular() {
				all = append(all, abs)
				seen[abs] = true
			}
		}
	}
	return all, nil
}
