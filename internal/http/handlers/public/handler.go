package public

import "github.com/daan-setu/internal/provider"

// Handler 前台/公开接口处理器入口
// 说明：该处理器仅用于捐赠人、游客与支付网关侧 API。
type Handler struct {
	*provider.Container
}

// New 创建前台处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
