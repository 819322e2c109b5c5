package v1

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iHildy/heb-sdk-unofficial-sub000/pkg/logger"
	"github.com/iHildy/heb-sdk-unofficial-sub000/pkg/versions"
)

// VersionRouter sets up the version route.
func VersionRouter() http.Handler {
	r := chi.NewRouter()
	r.Get("/", getVersion)
	return r
}

// versionResponse represents the version information returned by the API.
type versionResponse struct {
	// Version is the release version, or a build identifier for dev builds.
	Version string `json:"version"`
}

//	 getVersion
//		@Summary		Get server version
//		@Description	Returns the version of the server
//		@Tags			system
//		@Produce		json
//		@Success		200	{object}	versionResponse
//		@Router			/api/v1beta/version [get]
func getVersion(w http.ResponseWriter, _ *http.Request) {
	info := versions.GetVersionInfo()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(versionResponse{Version: info.Version}); err != nil {
		logger.Errorf("Failed to encode version response: %v", err)
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
