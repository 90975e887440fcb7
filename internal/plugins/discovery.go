package plugins

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// HomeEnv names the variable whose agents/ directory is searched second.
const HomeEnv = "AUTOTEST_HOME"

// DiscoverAgents maps agent names to executables found in paths.
// When paths is empty the default search order is used:
//  1. ./agents
//  2. $AUTOTEST_HOME/agents
//  3. /usr/local/lib/autotest/agents
//
// Earlier directories win when two contain the same name. Missing directories are skipped.
func DiscoverAgents(paths []string) map[string]string {
	if len(paths) == 0 {
		paths = DefaultAgentPaths()
	}

	agents := make(map[string]string)
	for _, p := range paths {
		dir := expandPath(p)
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			name := entry.Name()
			if _, seen := agents[name]; seen {
				continue
			}
			full := filepath.Join(dir, name)
			if isExecutable(full) {
				agents[name] = full
			}
		}
	}
	return agents
}

// DefaultAgentPaths returns the agent search path in priority order.
func DefaultAgentPaths() []string {
	paths := []string{"./agents"}
	if home := os.Getenv(HomeEnv); home != "" {
		paths = append(paths, filepath.Join(home, "agents"))
	}
	return append(paths, "/usr/local/lib/autotest/agents")
}

func expandPath(path string) string {
	expanded := os.ExpandEnv(path)
	if !filepath.IsAbs(expanded) {
		if abs, err := filepath.Abs(expanded); err == nil {
			return abs
		}
	}
	return expanded
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Mode()&0o111 != 0
}

// FindAgent looks up an agent by name.
func FindAgent(agents map[string]string, name string) (string, error) {
	path, ok := agents[name]
	if !ok {
		return "", fmt.Errorf("agent not found: %s", name)
	}
	return path, nil
}

func agentNames(agents map[string]string) []string {
	names := make([]string, 0, len(agents))
	for name := range agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
