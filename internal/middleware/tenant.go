package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// TenantMiddleware extracts and validates tenant information.
// SECURITY: No default tenant fallback - requests without tenant context are
// rejected. Imports write supplier catalogs, so a request that cannot prove
// its tenant must never fall through to a shared one.
func TenantMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// tenant_id may already be set upstream by the gateway auth layer,
		// which extracts it from JWT claims and strips legacy headers
		tenantID := c.GetString("tenant_id")

		if tenantID == "" {
			tenantID = c.GetHeader("X-Tenant-ID")
		}

		// SECURITY: No default fallback - fail closed
		if tenantID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "TENANT_REQUIRED",
					"message": "Tenant ID is required. Include X-Tenant-ID header.",
				},
			})
			c.Abort()
			return
		}

		c.Set("tenantId", tenantID)
		c.Set("tenant_id", tenantID)
		c.Next()
	}
}

// GetTenantID retrieves the tenant ID from gin context
func GetTenantID(c *gin.Context) string {
	if tid := c.GetString("tenant_id"); tid != "" {
		return tid
	}
	return c.GetString("tenantId")
}
