package httpapi

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/apperr"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/domain"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/store"
)

// RegistryHandler serves version publish and activation, the artifact
// registry half of spec.md §6. The uploaded artifact is hashed and moved
// under artifactsRoot/published/<digest>, the same layout
// worker.ArtifactStore.FetchAndVerify expects.
type RegistryHandler struct {
	store         *store.Store
	artifactsRoot string
}

func NewRegistryHandler(st *store.Store, artifactsRoot string) *RegistryHandler {
	return &RegistryHandler{store: st, artifactsRoot: artifactsRoot}
}

// publish backs both POST /robots/:robot_id/versions/publish and the
// deploy-token route, distinguished by createdSource.
func (h *RegistryHandler) publish(c *gin.Context, createdSource domain.CreatedSource) {
	robotID, ok := parseUUIDParam(c.Param("robot_id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid robot_id"})
		return
	}
	var req publishVersionRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	fileHeader, err := c.FormFile("artifact")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing artifact file"})
		return
	}

	digest, kind, err := h.storeArtifact(fileHeader)
	if err != nil {
		respondErr(c, apperr.New(apperr.Fatal, "httpapi.Publish", err))
		return
	}

	entrypointKind := domain.EntrypointScript
	if req.EntrypointType == string(domain.EntrypointBinary) {
		entrypointKind = domain.EntrypointBinary
	}

	var createdBy uuid.UUID
	if createdSource == domain.CreatedSourceUser {
		createdBy = identityFrom(c).UserID
	}

	version := &domain.RobotVersion{
		ID:             uuid.New(),
		RobotID:        robotID,
		Version:        req.Version,
		Channel:        domain.Channel(req.Channel),
		ArtifactKind:   kind,
		ArtifactDigest: digest,
		EntrypointKind: entrypointKind,
		EntrypointPath: req.EntrypointPath,
		SourceMeta: domain.SourceMeta{
			Commit:        req.CommitSHA,
			Branch:        req.Branch,
			BuildURL:      req.BuildURL,
			CreatedSource: createdSource,
		},
		Changelog: req.Changelog,
		CreatedBy: createdBy,
	}
	if err := h.store.CreateVersion(c.Request.Context(), version); err != nil {
		respondErr(c, apperr.New(apperr.Conflict, "httpapi.Publish", err))
		return
	}
	if req.Activate {
		if err := h.store.ActivateVersion(c.Request.Context(), robotID, version.ID); err != nil {
			respondErr(c, apperr.New(apperr.Transient, "httpapi.Publish", err))
			return
		}
		version.IsActive = true
	}
	c.JSON(http.StatusCreated, toVersionDTO(*version))
}

// PublishUser handles POST /robots/:robot_id/versions/publish.
func (h *RegistryHandler) PublishUser(c *gin.Context) {
	h.publish(c, domain.CreatedSourceUser)
}

// PublishCI handles POST /deploy/robots/:robot_id/versions/publish,
// authenticated separately by DeployAuthMiddleware.
func (h *RegistryHandler) PublishCI(c *gin.Context) {
	h.publish(c, domain.CreatedSourceCI)
}

// storeArtifact hashes the uploaded multipart file and copies it under
// artifactsRoot/published/<digest>, matching the layout
// worker.ArtifactStore reads from on the execution side.
func (h *RegistryHandler) storeArtifact(fh *multipart.FileHeader) (digest string, kind domain.ArtifactKind, err error) {
	src, err := fh.Open()
	if err != nil {
		return "", "", err
	}
	defer src.Close()

	hasher := sha256.New()
	tmp, err := os.CreateTemp(h.artifactsRoot, "upload-*")
	if err != nil {
		return "", "", err
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := io.Copy(io.MultiWriter(hasher, tmp), src); err != nil {
		return "", "", err
	}
	digest = hex.EncodeToString(hasher.Sum(nil))

	publishedDir := filepath.Join(h.artifactsRoot, "published")
	if err := os.MkdirAll(publishedDir, 0o755); err != nil {
		return "", "", err
	}
	dest := filepath.Join(publishedDir, digest)
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return "", "", err
	}
	out, err := os.Create(dest)
	if err != nil {
		return "", "", err
	}
	defer out.Close()
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return "", "", err
	}
	if _, err := io.Copy(out, tmp); err != nil {
		return "", "", err
	}

	kind = domain.ArtifactKindZip
	if filepath.Ext(fh.Filename) == ".exe" {
		kind = domain.ArtifactKindExe
	}
	return digest, kind, nil
}

// Activate handles POST /robots/:robot_id/versions/:version_id/activate.
func (h *RegistryHandler) Activate(c *gin.Context) {
	robotID, ok := parseUUIDParam(c.Param("robot_id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid robot_id"})
		return
	}
	versionID, ok := parseUUIDParam(c.Param("version_id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid version_id"})
		return
	}
	if err := h.store.ActivateVersion(c.Request.Context(), robotID, versionID); err != nil {
		respondErr(c, apperr.New(apperr.NotFound, "httpapi.Activate", err))
		return
	}
	v, err := h.store.GetVersionByID(c.Request.Context(), versionID)
	if err != nil {
		respondErr(c, apperr.New(apperr.Transient, "httpapi.Activate", err))
		return
	}
	c.JSON(http.StatusOK, toVersionDTO(*v))
}

// ListVersions handles GET /robots/:robot_id/versions.
func (h *RegistryHandler) ListVersions(c *gin.Context) {
	robotID, ok := parseUUIDParam(c.Param("robot_id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid robot_id"})
		return
	}
	versions, err := h.store.ListVersions(c.Request.Context(), robotID)
	if err != nil {
		respondErr(c, apperr.New(apperr.Transient, "httpapi.ListVersions", err))
		return
	}
	out := make([]versionDTO, 0, len(versions))
	for _, v := range versions {
		out = append(out, toVersionDTO(v))
	}
	c.JSON(http.StatusOK, gin.H{"versions": out})
}
