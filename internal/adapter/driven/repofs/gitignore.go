package repofs

import (
	"path/filepath"

	ignore "github.com/sabhiram/go-gitignore"
)

// gitIgnoreCache holds the compiled .gitignore of every visited directory that
// has one. Files are checked against each gitignore from their parent up to
// the scan root.
type gitIgnoreCache struct {
	root    string
	cache   map[string]*ignore.GitIgnore // abs dir -> compiled rules, only dirs with a .gitignore
	visited map[string]struct{}
}

func newGitIgnoreCache(absRoot string) *gitIgnoreCache {
	c := &gitIgnoreCache{
		root:    absRoot,
		cache:   make(map[string]*ignore.GitIgnore),
		visited: make(map[string]struct{}),
	}
	c.load(absRoot)
	return c
}

// load compiles dir/.gitignore once per directory.
func (c *gitIgnoreCache) load(dir string) {
	if _, seen := c.visited[dir]; seen {
		return
	}
	c.visited[dir] = struct{}{}

	if gi, err := ignore.CompileIgnoreFile(filepath.Join(dir, ".gitignore")); err == nil {
		c.cache[dir] = gi
	}
}

// ignored reports whether absPath matches any applicable .gitignore.
func (c *gitIgnoreCache) ignored(absPath string) bool {
	if len(c.cache) == 0 {
		return false
	}

	dir := filepath.Dir(absPath)
	for {
		if gi, ok := c.cache[dir]; ok {
			rel, _ := filepath.Rel(dir, absPath)
			if gi.MatchesPath(filepath.ToSlash(rel)) {
				return true
			}
		}
		if dir == c.root {
			return false
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return false
		}
		dir = parent
	}
}
