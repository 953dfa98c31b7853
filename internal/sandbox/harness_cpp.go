package sandbox

import (
	"fmt"
	"strings"
)

// cppHarness assumes the candidate's submission declares a free function
// named functionName whose parameter and return types match the shapes
// the test cases carry (int, std::vector<int>, std::string, bool). A
// mismatched signature surfaces as a normal compile failure rather than
// a sandbox error, matching how a real judge would behave.
func cppHarness(code, functionName string, tests []TestCase) ([]byte, string, [][]string, error) {
	var calls strings.Builder
	for i, t := range tests {
		args := make([]string, len(t.Input))
		for j, a := range t.Input {
			args[j] = cppLiteral(a)
		}
		comma := ""
		if i > 0 {
			comma = `results << ",";`
		}
		fmt.Fprintf(&calls, `    %s
    try {
        auto actual%d = %s(%s);
        auto expected%d = %s;
        bool pass%d = (actual%d == expected%d);
        results << "{\"pass\":" << (pass%d ? "true" : "false") << ",\"actual\":" << toJson(actual%d) << "}";
    } catch (const std::exception& e) {
        results << "{\"pass\":false,\"error\":\"" << escape(e.what()) << "\"}";
    } catch (...) {
        results << "{\"pass\":false,\"error\":\"unknown exception\"}";
    }
`, comma, i, functionName, strings.Join(args, ", "), i, cppLiteral(t.Output), i, i, i, i, i)
	}

	src := fmt.Sprintf(`%s

#include <sstream>
#include <string>
#include <vector>
#include <iostream>
#include <exception>

static std::string toJson(int x) { return std::to_string(x); }
static std::string toJson(bool x) { return x ? "true" : "false"; }
static std::string escape(const std::string& s) {
    std::string r;
    for (char c : s) {
        if (c == '"' || c == '\\') r += '\\';
        r += c;
    }
    return r;
}
static std::string toJson(const std::string& s) { return "\"" + escape(s) + "\""; }
static std::string toJson(const std::vector<int>& v) {
    std::string r = "[";
    for (size_t i = 0; i < v.size(); i++) {
        if (i) r += ",";
        r += std::to_string(v[i]);
    }
    return r + "]";
}
static std::string toJson(const std::vector<std::string>& v) {
    std::string r = "[";
    for (size_t i = 0; i < v.size(); i++) {
        if (i) r += ",";
        r += toJson(v[i]);
    }
    return r + "]";
}

int main() {
    std::ostringstream results;
%s
    std::cout << %q << std::endl;
    std::cout << "[" << results.str() << "]" << std::endl;
    return 0;
}
`, code, calls.String(), resultsMarker)

	cmds := [][]string{
		{"g++", "-std=c++17", "-O2", "-o", "solution", "solution.cpp"},
		{"./solution"},
	}
	return []byte(src), "solution.cpp", cmds, nil
}
