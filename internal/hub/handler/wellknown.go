package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/threadring/ringhub/internal/badge"
	"github.com/threadring/ringhub/internal/didresolver"
	"github.com/threadring/ringhub/pkg/did"
)

// WellKnownHandler serves the hub's own DID document and the service
// description. The DID document is what lets other hubs and participant
// sites verify badges this hub issued: it publishes the badge signing key
// under the same verificationMethod id the credentials carry.
type WellKnownHandler struct {
	keys    *badge.KeyManager // nil = hub has no signing key
	hubURL  string
	hubName string
	version string
	logger  *zap.Logger
}

// NewWellKnownHandler creates a new WellKnownHandler.
func NewWellKnownHandler(keys *badge.KeyManager, hubURL, hubName, version string, logger *zap.Logger) *WellKnownHandler {
	return &WellKnownHandler{
		keys:    keys,
		hubURL:  strings.TrimRight(hubURL, "/"),
		hubName: hubName,
		version: version,
		logger:  logger,
	}
}

// ServeDIDDocument handles GET /.well-known/did.json.
func (h *WellKnownHandler) ServeDIDDocument(c *gin.Context) {
	doc := didresolver.Document{
		Context: []string{
			"https://www.w3.org/ns/did/v1",
			"https://w3id.org/security/suites/ed25519-2020/v1",
		},
		ID:   h.hubDID(),
		Name: h.hubName,
		Service: []didresolver.Service{
			{
				ID:              h.hubURL + "#ring-hub",
				Type:            "RingHubService",
				ServiceEndpoint: h.hubURL + "/trp",
			},
		},
	}

	if h.keys != nil {
		mb, err := h.keys.PublicMultibase()
		if err != nil {
			h.logger.Error("encode signing key", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		doc.VerificationMethod = []didresolver.VerificationMethod{
			{
				ID:                 h.hubURL + "#key-1",
				Type:               "Ed25519VerificationKey2020",
				Controller:         doc.ID,
				PublicKeyMultibase: mb,
			},
		}
	}

	c.JSON(http.StatusOK, doc)
}

// ServeDocs handles GET /docs. A machine-readable service description, not
// rendered documentation.
func (h *WellKnownHandler) ServeDocs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        h.hubName,
		"protocol":    "ring-hub",
		"version":     h.version,
		"baseUrl":     h.hubURL + "/trp",
		"didDocument": h.hubURL + "/.well-known/did.json",
		"signatures": gin.H{
			"scheme":        "ed25519 http signatures",
			"signedHeaders": []string{"(request-target)", "host", "date", "digest"},
			"maxClockSkew":  "300s",
		},
		"generatedAt": time.Now().UTC(),
	})
}

// hubDID derives the hub's did:web identifier from its public URL.
func (h *WellKnownHandler) hubDID() string {
	d, err := did.FromWebURL(h.hubURL)
	if err != nil {
		return "did:web:" + h.hubURL
	}
	return d.String()
}
