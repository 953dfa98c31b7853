package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// TestCase is one entry of a coding question's metadata.tests array:
// Input holds the ordered arguments the candidate's function is called
// with, Output holds the expected return value.
type TestCase struct {
	Input  []any `json:"input"`
	Output any   `json:"output"`
}

// TestResult is what each test case resolves to once it runs inside the
// container.
type TestResult struct {
	Pass   bool   `json:"pass"`
	Actual any    `json:"actual,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Result is CodeEval's return value: one TestResult per requested
// TestCase, in order, plus anything the sandbox itself failed to do
// (compile error, timeout, missing Docker).
type Result struct {
	Tests       []TestResult `json:"tests"`
	CompileLog  string       `json:"compileLog,omitempty"`
	SandboxErr  string       `json:"sandboxError,omitempty"`
}

const resultsMarker = "___PEERPREP_RESULTS___"

// Evaluator runs coding-question submissions, picking the right language
// image and invocation recipe per Sandbox.
type Evaluator struct {
	sandboxes map[Language]*Sandbox
}

// Images maps each supported language to the Docker image it runs in,
// sourced from config.Config's SandboxImage* fields.
type Images struct {
	Python string
	Java   string
	CPP    string
}

// NewEvaluator builds one Sandbox per language. Construction never touches
// Docker; connection failures surface lazily from CodeEval, matching the
// teacher's runtime's lazy-dial behavior.
func NewEvaluator(images Images, limits Limits) (*Evaluator, error) {
	py, err := NewSandbox(images.Python, limits)
	if err != nil {
		return nil, err
	}
	java, err := NewSandbox(images.Java, limits)
	if err != nil {
		return nil, err
	}
	cpp, err := NewSandbox(images.CPP, limits)
	if err != nil {
		return nil, err
	}
	return &Evaluator{sandboxes: map[Language]*Sandbox{
		LangPython: py,
		LangJava:   java,
		LangCPP:    cpp,
	}}, nil
}

// CodeEval compiles/runs the candidate's submission against every test
// case by generating a language-specific driver that calls functionName
// with each test's input and prints a single JSON line of TestResults
// after a sentinel marker, resolving spec.md §9's Open Question 2 (a
// Docker-based, three-language sandbox).
func (e *Evaluator) CodeEval(ctx context.Context, lang Language, code, functionName string, tests []TestCase) (Result, error) {
	sb, ok := e.sandboxes[lang]
	if !ok {
		return Result{}, fmt.Errorf("unsupported language %q", lang)
	}

	harness, fileName, cmds, err := buildHarness(lang, code, functionName, tests)
	if err != nil {
		return Result{}, err
	}

	run := sb.RunProgram(ctx, fileName, harness, cmds)
	if run.Error != "" {
		return Result{SandboxErr: run.Error, CompileLog: run.Stderr}, nil
	}
	if run.Exit.TimedOut {
		return Result{SandboxErr: "timeout", CompileLog: run.Stderr}, nil
	}
	if run.Exit.Code != 0 {
		return Result{CompileLog: run.Stderr}, nil
	}

	idx := strings.Index(run.Stdout, resultsMarker)
	if idx < 0 {
		return Result{CompileLog: run.Stderr + "\n" + run.Stdout}, nil
	}
	payload := strings.TrimSpace(run.Stdout[idx+len(resultsMarker):])

	var results []TestResult
	if err := json.Unmarshal([]byte(payload), &results); err != nil {
		return Result{CompileLog: "unparseable test output: " + payload}, nil
	}
	return Result{Tests: results}, nil
}

func buildHarness(lang Language, code, functionName string, tests []TestCase) (source []byte, fileName string, cmds [][]string, err error) {
	switch lang {
	case LangPython:
		return pythonHarness(code, functionName, tests)
	case LangJava:
		return javaHarness(code, functionName, tests)
	case LangCPP:
		return cppHarness(code, functionName, tests)
	default:
		return nil, "", nil, fmt.Errorf("unsupported language %q", lang)
	}
}

func encodeTests(tests []TestCase) (string, error) {
	b, err := json.Marshal(tests)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
