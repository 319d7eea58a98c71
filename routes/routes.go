package routes

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"gorm.io/gorm"

	"verifyengine/batch"
	"verifyengine/controllers"
	"verifyengine/enrich"
	"verifyengine/middleware"
	"verifyengine/utils"
	"verifyengine/verifier"
)

// SetupAuthRoutes wires the account endpoints: register/login/refresh are
// public, the rest require a JWT.
func SetupAuthRoutes(app *fiber.App) {
	authLogger := log.New(os.Stdout, "AUTH: ", log.Ldate|log.Ltime|log.Lshortfile)

	auth := app.Group("/auth", logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	auth.Post("/register", controllers.Register)
	auth.Post("/login", controllers.Login)
	auth.Post("/refresh", controllers.RefreshToken)

	protectedAuth := auth.Group("", middleware.Protected())
	protectedAuth.Post("/change-password", controllers.ChangePassword)
	protectedAuth.Get("/me", controllers.GetCurrentUser)

	authLogger.Println("auth routes initialized")
}

// SetupVerifyRoutes wires the §6 inbound interface: verify, enrich,
// submit_bulk, get_batch, get_batch_results, plus cancel and a WebSocket
// progress stream this engine adds over the distilled spec.
func SetupVerifyRoutes(app *fiber.App, v *verifier.Verifier, e *enrich.Enricher, executor *batch.Executor, store batch.Store) {
	apiLogger := log.New(os.Stdout, "API: ", log.Ldate|log.Ltime|log.Lshortfile)

	verifyController := controllers.NewVerifyController(v, e)
	batchController := controllers.NewBatchController(executor, store)

	api := app.Group("/api/v1", middleware.Protected(), middleware.APIRateLimiter(120), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	api.Get("/verify", verifyController.Verify)
	api.Get("/enrich", verifyController.Enrich)

	batchGroup := api.Group("/batches")
	batchGroup.Post("/", batchController.SubmitBulk)
	batchGroup.Get("/:batchID", batchController.GetBatch)
	batchGroup.Get("/:batchID/results", batchController.GetBatchResults)
	batchGroup.Post("/:batchID/cancel", batchController.CancelBatch)

	app.Get("/ws/batches/:batchID", websocket.New(func(c *websocket.Conn) {
		handleBatchProgressWS(c, executor)
	}))

	apiLogger.Println("verify/batch routes initialized")
}

// handleBatchProgressWS pushes periodic job snapshots to the client until
// the job reaches a terminal status or the socket closes, supplementing the
// polling-only get_batch operation with a push channel.
func handleBatchProgressWS(c *websocket.Conn, executor *batch.Executor) {
	batchID := c.Params("batchID")
	owner := utils.ParseUint(c.Query("owner"))

	for {
		job, err := executor.GetBatch(context.Background(), batchID, owner)
		if err != nil {
			_ = c.WriteJSON(fiber.Map{"error": "batch not found"})
			return
		}
		if err := c.WriteJSON(job); err != nil {
			return
		}
		if job.Status == "completed" || job.Status == "failed" {
			return
		}
		time.Sleep(time.Second)
	}
}

// SetupRoutes wires health check, auth, and verify/batch routes, and a
// catch-all 404 handler.
func SetupRoutes(app *fiber.App, db *gorm.DB, v *verifier.Verifier, e *enrich.Enricher, executor *batch.Executor, store batch.Store) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	SetupAuthRoutes(app)
	SetupVerifyRoutes(app, v, e, executor, store)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "The requested resource was not found",
		})
	})
}
