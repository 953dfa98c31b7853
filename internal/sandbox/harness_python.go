package sandbox

import "fmt"

// pythonHarness appends a small driver to the candidate's source that
// calls functionName with each test's args and prints a JSON line of
// results after resultsMarker. Python's own json module does the
// encoding/decoding, so no bespoke literal emission is needed here,
// unlike the compiled languages.
func pythonHarness(code, functionName string, tests []TestCase) ([]byte, string, [][]string, error) {
	testsJSON, err := encodeTests(tests)
	if err != nil {
		return nil, "", nil, err
	}

	src := fmt.Sprintf(`%s

import json as _json

def _run():
    _tests = _json.loads(%q)
    _results = []
    for _t in _tests:
        try:
            _actual = %s(*_t["input"])
            _results.append({"pass": _actual == _t.get("output"), "actual": _actual})
        except Exception as _e:
            _results.append({"pass": False, "error": str(_e)})
    print(%q)
    print(_json.dumps(_results))

_run()
`, code, testsJSON, functionName, resultsMarker)

	cmds := [][]string{
		{"python3", "solution.py"},
	}
	return []byte(src), "solution.py", cmds, nil
}
