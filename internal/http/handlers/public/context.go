package public

import (
	handlershared "github.com/gateway-next/internal/http/handlers/shared"
	"github.com/gateway-next/internal/http/response"
	"github.com/gateway-next/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func requestLog(c *gin.Context) *zap.SugaredLogger {
	return handlershared.RequestLog(c)
}

func respondError(c *gin.Context, code int, msg string, err error) {
	handlershared.RespondError(c, code, msg, err)
}

// currentApp 取出鉴权中间件放入上下文的商户应用。
func currentApp(c *gin.Context) (*models.App, bool) {
	value, exists := c.Get("app")
	if !exists {
		respondError(c, response.CodeUnauthorized, "unauthorized", nil)
		return nil, false
	}
	app, ok := value.(*models.App)
	if !ok || app == nil {
		respondError(c, response.CodeUnauthorized, "unauthorized", nil)
		return nil, false
	}
	return app, true
}
