package vaultbackend

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/vaultbackend/internal/observability"
	"github.com/vyrodovalexey/vaultbackend/internal/vault"
)

// ListResponse is the body of a successful listing.
type ListResponse struct {
	Items []vault.Secret `json:"items"`
}

// newEngine returns an engine without routes. Nested secret paths arrive
// URL-encoded in one segment, so the raw path is matched and the parameter
// unescaped afterwards.
func newEngine() *gin.Engine {
	engine := gin.New()
	engine.UseRawPath = true
	engine.UnescapePathValues = true
	engine.RedirectTrailingSlash = false
	return engine
}

func buildRouter(lister vault.SecretsLister, logger observability.Logger) *gin.Engine {
	engine := newEngine()
	engine.Use(ErrorHandler(logger))

	h := &secretsHandler{lister: lister}
	engine.GET("/health", health)
	engine.GET("/v1/secrets/:path", h.list)
	engine.NoRoute(func(c *gin.Context) {
		_ = c.Error(&NotFoundError{Message: "Not found: " + c.Request.URL.Path})
	})

	return engine
}

func health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type secretsHandler struct {
	lister vault.SecretsLister
}

func (h *secretsHandler) list(c *gin.Context) {
	secretPath := c.Param("path")
	if strings.Trim(secretPath, "/ ") == "" || hasDotSegment(secretPath) {
		_ = c.Error(NewInputError("Invalid path: " + secretPath))
		return
	}

	engines := c.QueryArray("engine")
	if len(engines) > 1 {
		_ = c.Error(NewInputError("Invalid engine: " + strings.Join(engines, ",")))
		return
	}
	var engine string
	if len(engines) == 1 {
		engine = engines[0]
	}

	items, err := h.lister.ListSecrets(c.Request.Context(), secretPath, vault.ListOptions{SecretEngine: engine})
	if err != nil {
		_ = c.Error(err)
		return
	}
	if items == nil {
		items = []vault.Secret{}
	}

	c.JSON(http.StatusOK, ListResponse{Items: items})
}

func hasDotSegment(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}
