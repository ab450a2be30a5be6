package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"atlaswd/pkg/atlasapi"
	"atlaswd/pkg/breaker"
	"atlaswd/pkg/response"
)

// Health 存活检查，meta 里附带上游熔断器状态
// GET /healthz
func Health(ctx context.Context, c *app.RequestContext) {
	status := "ok"
	meta := map[string]interface{}{}

	if api := atlasapi.Default(); api != nil {
		meta["upstream"] = api.Breaker().Stats()
		if api.Breaker().State() == breaker.StateOpen {
			status = "degraded"
		}
	}
	response.SuccessWithMeta(ctx, c, map[string]string{"status": status}, meta)
}
