package api

import (
	"fmt"
	"net/http"
	"path/filepath"
)

// @Title: Create Backup
// @Route: POST /api/backups/create
// @Description: Writes a consistent copy of the ledger database into the backup directory
// @Response: {"status": "ok", "path": "..."}
func (s *Service) HandleBackupCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "no durable store configured")
		return
	}

	backupPath, err := s.store.Backup(r.Context(), s.maxBackups)
	if err != nil {
		s.logger.Error(fmt.Sprintf("Failed to create backup: %v", err))
		s.writeError(w, http.StatusInternalServerError, "Failed to save backup")
		return
	}

	s.logger.Info(fmt.Sprintf("API: Created backup at: %s", backupPath))
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"path":   backupPath,
	})
}

// @Title: List Backups
// @Route: GET /api/backups/list
// @Description: Lists database backups, newest first
// @Response: Array of backup file names
func (s *Service) HandleBackupsList(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeJSON(w, http.StatusOK, []string{})
		return
	}
	paths, err := s.store.Backups()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to list backups")
		return
	}

	names := make([]string, 0, len(paths))
	for i := len(paths) - 1; i >= 0; i-- {
		names = append(names, filepath.Base(paths[i]))
	}
	s.writeJSON(w, http.StatusOK, names)
}
