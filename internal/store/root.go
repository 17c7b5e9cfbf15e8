package store

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/agentmux/agentmux/internal/common/logger"
)

// EnvStoreDir overrides the store root when set.
const EnvStoreDir = "AGENT_STORE_DIR"

// ResolveRoot picks the store root from a prioritized candidate list:
// the AGENT_STORE_DIR override, the canonical home path, the legacy home
// path, XDG_STATE_HOME, the working directory and finally the temp dir.
//
// A non-canonical candidate that already contains agent records wins over the
// canonical one, so prior state is never silently ignored. Otherwise the
// first writable candidate is used.
func ResolveRoot(log *logger.Logger) string {
	candidates := rootCandidates()

	for _, dir := range candidates {
		if hasAgentRecords(dir) {
			log.Info("using store root with existing agent records", zap.String("dir", dir))
			return dir
		}
	}
	for _, dir := range candidates {
		if ensureWritable(dir) {
			return dir
		}
		log.Warn("store root candidate not writable", zap.String("dir", dir))
	}

	// Last resort; MkdirAll on the temp dir is assumed to succeed.
	fallback := filepath.Join(os.TempDir(), "agentmux-agents")
	_ = os.MkdirAll(fallback, 0o755)
	return fallback
}

func rootCandidates() []string {
	var candidates []string
	if dir := os.Getenv(EnvStoreDir); dir != "" {
		candidates = append(candidates, dir)
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		candidates = append(candidates,
			filepath.Join(home, ".agentmux", "agents"),
			filepath.Join(home, ".agentmux-agents"), // legacy flat layout
		)
	}
	if state := os.Getenv("XDG_STATE_HOME"); state != "" {
		candidates = append(candidates, filepath.Join(state, "agentmux", "agents"))
	}
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, ".agentmux-agents"))
	}
	candidates = append(candidates, filepath.Join(os.TempDir(), "agentmux-agents"))
	return candidates
}

// hasAgentRecords reports whether dir contains at least one agent directory
// with a meta.json.
func hasAgentRecords(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, entry.Name(), metaFileName)); err == nil {
			return true
		}
	}
	return false
}

// ensureWritable creates dir if needed and probes it with a throwaway file.
func ensureWritable(dir string) bool {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false
	}
	probe, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return false
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	return true
}
