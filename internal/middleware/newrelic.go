package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
)

// NewRelicAttributes annotates the transaction started by nrgin with the
// caller identity and records handler errors on it. It must run after
// RequireAuth; without an active transaction it does nothing.
func NewRelicAttributes() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		txn := nrgin.Transaction(c)
		if txn == nil {
			return
		}

		if id, ok := CurrentUser(c); ok {
			txn.AddAttribute("user.id", id.UserID)
			txn.AddAttribute("user.role", string(id.Role))
		}
		if tripID := c.Param("id"); tripID != "" {
			txn.AddAttribute("resource.id", tripID)
		}
		for _, err := range c.Errors {
			txn.NoticeError(err.Err)
		}
	}
}
