package http

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

var defaultAllowedOrigins = []string{"http://localhost:3000"}

func NewRouter(h *Handler, allowedOrigins []string) *gin.Engine {
	if len(allowedOrigins) == 0 {
		allowedOrigins = defaultAllowedOrigins
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           10 * time.Minute,
	}))
	r.Use(loopbackOnly())

	api := r.Group("/api")
	{
		api.GET("/health", h.Health)
		api.GET("/events", h.Events)

		api.GET("/wallet/tokens", h.WalletTokens)

		api.GET("/contacts", h.ListContacts)
		api.GET("/threads", h.ListThreads)
		api.POST("/profile", h.ShowProfile)
		api.POST("/profile/add", h.AddContact)
		api.POST("/profile/message", h.MessageContact)
		api.GET("/profile/:address/qr", h.ProfileQRCode)

		api.GET("/scanner/state", h.ScannerState)
		api.POST("/scanner/capture", h.ScannerCapture)
		api.POST("/scanner/approve", h.ScannerApprove)
		api.POST("/scanner/decline", h.ScannerDecline)
		api.POST("/scanner/dismiss", h.ScannerDismiss)
		api.POST("/scanner/failed", h.ScannerPaymentFailed)
	}

	return r
}
