package rollback

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoCommand reports a checkpoint entry whose command cannot be turned
// into a restart invocation.
var ErrNoCommand = errors.New("no restart command could be inferred")

// packageManagers are recognized in recorded command lines; when the
// recorded working directory still holds a package.json, the original
// `<pm> run <script>` invocation is reconstructed verbatim.
var packageManagers = map[string]bool{
	"npm":  true,
	"yarn": true,
	"pnpm": true,
	"bun":  true,
}

// InferRestart derives a restart argv from a recorded command line and
// working directory. Inference is a best-effort heuristic: common
// project-script conventions are recognized, everything else falls back to a
// plain token split of the recorded command. It is explicitly fallible and
// makes no guarantee for arbitrary commands.
func InferRestart(command, workingDir string) ([]string, error) {
	tokens := strings.Fields(command)
	if len(tokens) == 0 {
		return nil, ErrNoCommand
	}

	if argv, ok := inferPackageScript(tokens, workingDir); ok {
		return argv, nil
	}

	return tokens, nil
}

// inferPackageScript recognizes package-manager dev scripts. A command like
// "node /proj/node_modules/.bin/next dev" restarts more reliably as
// "npm run dev" when the workspace still carries a package.json, because the
// original argv embeds absolute paths that may have been rebuilt since.
func inferPackageScript(tokens []string, workingDir string) ([]string, bool) {
	if workingDir == "" || !fileExists(filepath.Join(workingDir, "package.json")) {
		return nil, false
	}

	head := filepath.Base(tokens[0])

	// Direct package-manager invocations restart as recorded.
	if packageManagers[head] {
		return tokens, true
	}

	// node running a script out of node_modules/.bin: restart through the
	// package manager with the script name.
	if head == "node" && len(tokens) >= 2 && strings.Contains(tokens[1], string(filepath.Separator)+".bin"+string(filepath.Separator)) {
		script := scriptName(tokens)
		return []string{"npm", "run", script}, true
	}

	return nil, false
}

// scriptName guesses the dev-script name from the argv tail, defaulting to
// "dev" which is the overwhelmingly common convention.
func scriptName(tokens []string) string {
	for _, tok := range tokens[2:] {
		if !strings.HasPrefix(tok, "-") {
			return tok
		}
	}
	return "dev"
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// describeInference renders a short note for per-entry reporting.
func describeInference(argv []string) string {
	return fmt.Sprintf("restart via %q", strings.Join(argv, " "))
}
