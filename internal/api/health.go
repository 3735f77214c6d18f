package api

import (
	"fmt"
	"net/http"
	"runtime"

	"stryd.mini/ledger/internal/types"
)

// @Title: Get Health
// @Route: GET /api/health
// @Description: Returns server health status
// @Response: {"status": "ok"}
func (s *Service) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// @Title: Get Version
// @Route: GET /api/version
// @Description: Returns the node version, program id and last committed block
// @Response: {"version": "...", "program_id": "...", "height": 12, "app_hash": "...", "accounts": 3}
func (s *Service) HandleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"version":    types.Version,
		"build_time": types.BuildTime,
		"status":     "ok",
		"program_id": s.machine.Deriver().ProgramID().String(),
		"height":     s.state.Height(),
		"app_hash":   fmt.Sprintf("%X", s.state.AppHash()),
		"accounts":   s.state.Len(),
		"go_ver":     runtime.Version(),
		"os_arch":    fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	})
}
