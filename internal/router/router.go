package router

import (
	"github.com/cloudwego/hertz/pkg/app/server"

	"atlaswd/internal/handler"
	"atlaswd/internal/middleware"
)

func Register(h *server.Hertz) {
	h.Use(middleware.RecoverMiddleware())
	h.Use(middleware.CORSMiddleware())
	h.Use(middleware.OpenTelemetryMiddleware())

	h.GET("/healthz", handler.Health)

	v1 := h.Group("/v1")

	// 认证向导：流程 id 与 client id 保存在签名 cookie 中
	auth := v1.Group("/auth",
		middleware.SessionMiddleware(),
		middleware.ClientMiddleware(),
		middleware.CSRFMiddleware(),
	)
	{
		auth.GET("/csrf", handler.GetCSRFToken)
		auth.POST("/slider/verify", middleware.SliderRateLimitMiddleware(), handler.VerifySlider)

		flows := auth.Group("/flows", middleware.FlowRateLimitMiddleware())
		{
			flows.POST("", handler.MountFlow)
			flows.GET("/current", handler.GetCurrentFlow)
			flows.POST("/current/back", handler.GoBack)
			flows.POST("/current/forgot-password", handler.ForgotPassword)
			flows.POST("/current/signup", handler.StartSignup)
			flows.POST("/current/login", handler.Login)
			flows.POST("/current/otp", handler.RequestOTP)
			flows.POST("/current/otp/resend", handler.ResendOTP)
			flows.POST("/current/otp/verify", handler.VerifyOTP)
			flows.POST("/current/password", handler.SetNewPassword)
			flows.POST("/current/registration", handler.CompleteRegistration)
		}
	}

	// BFF 会话：前端持有 access / refresh token，不走 cookie
	session := v1.Group("/session", middleware.SessionRateLimitMiddleware())
	{
		session.POST("/refresh", handler.RefreshToken)
		session.GET("/me", middleware.AuthMiddleware(), handler.GetMe)
		session.POST("/logout", middleware.AuthMiddleware(), handler.Logout)
	}
}
