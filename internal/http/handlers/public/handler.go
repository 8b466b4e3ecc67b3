package public

import "github.com/gateway-next/internal/provider"

// Handler 商户侧与回调接口处理器入口
// 说明：该处理器仅用于商户 API 与提供方回调端点。
type Handler struct {
	*provider.Container
}

// New 创建商户侧处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
