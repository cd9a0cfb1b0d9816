package sessionrt

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"log/slog"
)

// PruneResult reports what a pruning pass removed.
type PruneResult struct {
	Deleted    int
	FreedBytes int64
}

type sessionFileInfo struct {
	path     string
	modified time.Time
	size     int64
}

// PruneSessions deletes persisted session transcripts under
// stateDir/agents/agentID/sessions exceeding maxAge or maxCount (oldest
// first), mirroring original_source's session_pruning::prune_sessions.
// Either limit may be zero to disable that criterion.
func PruneSessions(stateDir, agentID string, maxAge time.Duration, maxCount int, log *slog.Logger) (PruneResult, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "sessionrt.pruning")

	sessionsDir := filepath.Join(stateDir, "agents", agentID, "sessions")
	entries, err := os.ReadDir(sessionsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return PruneResult{}, nil
		}
		return PruneResult{}, err
	}

	var sessions []sessionFileInfo
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".jsonl" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		sessions = append(sessions, sessionFileInfo{
			path:     filepath.Join(sessionsDir, entry.Name()),
			modified: info.ModTime(),
			size:     info.Size(),
		})
	}
	if len(sessions) == 0 {
		return PruneResult{}, nil
	}

	sort.Slice(sessions, func(i, j int) bool { return sessions[i].modified.Before(sessions[j].modified) })

	toDelete := selectForDeletion(sessions, maxAge, maxCount)

	var result PruneResult
	for _, s := range toDelete {
		if err := os.Remove(s.path); err != nil {
			log.Debug("failed to delete session", "path", s.path, "error", err)
			continue
		}
		result.Deleted++
		result.FreedBytes += s.size
		log.Debug("deleted session", "path", s.path, "bytes", s.size)
	}

	if result.Deleted > 0 {
		log.Info("pruned sessions", "agent_id", agentID, "deleted", result.Deleted, "freed_bytes", result.FreedBytes)
	}
	return result, nil
}

// selectForDeletion marks sessions exceeding maxAge, then marks additional
// oldest-first sessions until the remaining count is within maxCount.
// sessions must already be sorted oldest-first.
func selectForDeletion(sessions []sessionFileInfo, maxAge time.Duration, maxCount int) []sessionFileInfo {
	now := time.Now()
	marked := make(map[int]bool)
	var toDelete []sessionFileInfo

	if maxAge > 0 {
		for i, s := range sessions {
			if now.Sub(s.modified) > maxAge {
				marked[i] = true
				toDelete = append(toDelete, s)
			}
		}
	}

	if maxCount > 0 {
		remaining := len(sessions) - len(toDelete)
		if remaining > maxCount {
			excess := remaining - maxCount
			deleted := 0
			for i, s := range sessions {
				if marked[i] {
					continue
				}
				toDelete = append(toDelete, s)
				marked[i] = true
				deleted++
				if deleted >= excess {
					break
				}
			}
		}
	}

	return toDelete
}

// PruneAllAgents runs PruneSessions for every agent directory under
// stateDir/agents.
func PruneAllAgents(stateDir string, maxAge time.Duration, maxCount int, log *slog.Logger) (PruneResult, error) {
	agentsDir := filepath.Join(stateDir, "agents")
	entries, err := os.ReadDir(agentsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return PruneResult{}, nil
		}
		return PruneResult{}, err
	}

	var total PruneResult
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		result, err := PruneSessions(stateDir, entry.Name(), maxAge, maxCount, log)
		if err != nil {
			continue
		}
		total.Deleted += result.Deleted
		total.FreedBytes += result.FreedBytes
	}
	return total, nil
}
