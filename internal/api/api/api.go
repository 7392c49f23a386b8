package api

import (
	"github.com/gin-contrib/cors"
	"github.com/wb-go/wbf/ginext"

	"churchevents/cmd/middleware"
	"churchevents/internal/service"
)

type Routers struct {
	Service   service.Service
	JWTSecret string
}

func NewRouters(r *Routers) *ginext.Engine {
	app := ginext.New("release")

	app.Use(middleware.LoggingMiddleware())
	app.Use(cors.Default())

	apiGroup := app.Group("/v1")

	apiGroup.POST("/auth/signup", r.Service.SignUp)
	apiGroup.POST("/auth/login", r.Service.Login)

	apiGroup.GET("/churches", r.Service.GetChurches)
	apiGroup.GET("/events", r.Service.GetAllEvents)
	apiGroup.GET("/events/:id", r.Service.GetEvent)

	authGroup := apiGroup.Group("")
	authGroup.Use(middleware.AuthMiddleware(r.JWTSecret))

	authGroup.GET("/profile", r.Service.GetProfile)
	authGroup.PUT("/profile", r.Service.UpdateProfile)

	authGroup.POST("/events", r.Service.CreateEvent)
	authGroup.POST("/events/:id/register", r.Service.Register)

	authGroup.GET("/registrations", r.Service.MyRegistrations)
	authGroup.DELETE("/registrations/:id", r.Service.DeleteRegistration)
	authGroup.POST("/registrations/:id/approve", r.Service.ApproveRegistration)
	authGroup.POST("/registrations/:id/reject", r.Service.RejectRegistration)
	authGroup.POST("/registrations/:id/checkin", r.Service.CheckIn)

	authGroup.POST("/registrations/:id/payment", r.Service.CreatePayment)
	authGroup.GET("/registrations/:id/payment/status", r.Service.PaymentStatus)

	return app
}
