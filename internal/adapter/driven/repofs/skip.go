package repofs

import "strings"

// ignoredDirs are never descended into.
var ignoredDirs = map[string]bool{
	".git":         true,
	"vendor":       true,
	"testdata":     true,
	"node_modules": true,
	"third_party":  true,
	"_output":      true,
}

// shouldSkip reports whether a slash-separated path relative to the scan root
// names a file that carries little signal for training data: tests, generated
// code, mocks, examples, vendored or hidden files.
func shouldSkip(rel string) bool {
	switch {
	case strings.HasSuffix(rel, "_test.go"),
		strings.HasSuffix(rel, ".pb.go"),
		strings.HasSuffix(rel, ".gen.go"),
		strings.Contains(rel, "mock"),
		strings.Contains(rel, "example"):
		return true
	}

	for _, seg := range strings.Split(rel, "/") {
		if seg == "test" || seg == "vendor" || seg == "testdata" || strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}
