package api

import (
	"net/http"
	"strconv"
)

// handleSearchUsers finds other accounts by name, username or email so
// they can be added as device members.
//
// Query parameters:
//   - q: search term (empty lists everyone)
//   - limit: max results (default and cap 50)
func (s *Server) handleSearchUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit")) //nolint:errcheck // zero means default

	users, err := s.accounts.SearchUsers(r.Context(), q.Get("q"), limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"users": users,
		"count": len(users),
	})
}
