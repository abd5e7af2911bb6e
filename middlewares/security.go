package middlewares

import (
	"github.com/gin-gonic/gin"
)

// SecurityHeaders -> header standar untuk API. HSTS hanya dipasang jika service berjalan di
// belakang TLS (release), supaya development lewat http://localhost tidak terkunci.
func SecurityHeaders(hsts bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Permissions-Policy", "geolocation=(self), microphone=(), camera=()")
		if hsts {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		// token session tidak boleh ter-cache
		h.Set("Cache-Control", "no-store")

		c.Next()
	}
}
