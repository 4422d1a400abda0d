package server

import (
	"github.com/kinship-crm/kinship/internal/server/middleware"
	"github.com/kinship-crm/kinship/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	// Objects of the in-memory bucket; keys are unguessable
	e.GET("/files/*", routes.GetPhotoFileHandler)

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// Person routes
	apiRoutes.GET("/persons", routes.GetPersonsHandler)
	apiRoutes.POST("/persons", routes.CreatePersonHandler)
	apiRoutes.GET("/persons/:id", routes.GetPersonHandler)
	apiRoutes.PATCH("/persons/:id", routes.EditPersonHandler)
	apiRoutes.DELETE("/persons/:id", routes.DeletePersonHandler)
	apiRoutes.GET("/persons/:id/relationships", routes.GetPersonRelationshipsHandler)

	// Owner profile
	apiRoutes.GET("/me", routes.GetMeHandler)
	apiRoutes.POST("/me", routes.CreateMeHandler)
	apiRoutes.PATCH("/me", routes.EditMeHandler)

	// Tag routes
	apiRoutes.GET("/tags", routes.GetTagsHandler)
	apiRoutes.POST("/tags", routes.CreateTagHandler)
	apiRoutes.GET("/tags/:id", routes.GetTagHandler)
	apiRoutes.PATCH("/tags/:id", routes.EditTagHandler)
	apiRoutes.DELETE("/tags/:id", routes.DeleteTagHandler)

	// Group routes
	apiRoutes.GET("/groups", routes.GetGroupsHandler)
	apiRoutes.POST("/groups", routes.CreateGroupHandler)
	apiRoutes.GET("/groups/:id", routes.GetGroupHandler)
	apiRoutes.PATCH("/groups/:id", routes.EditGroupHandler)
	apiRoutes.DELETE("/groups/:id", routes.DeleteGroupHandler)

	// Relationship type routes
	apiRoutes.GET("/relationship-types", routes.GetRelationshipTypesHandler)
	apiRoutes.POST("/relationship-types", routes.CreateRelationshipTypeHandler)
	apiRoutes.GET("/relationship-types/:id", routes.GetRelationshipTypeHandler)
	apiRoutes.PATCH("/relationship-types/:id", routes.EditRelationshipTypeHandler)
	apiRoutes.DELETE("/relationship-types/:id", routes.DeleteRelationshipTypeHandler)

	// Relationship routes
	apiRoutes.GET("/relationships", routes.GetRelationshipsHandler)
	apiRoutes.POST("/relationships", routes.CreateRelationshipHandler)
	apiRoutes.GET("/relationships/graph", routes.GetRelationshipGraphHandler)
	apiRoutes.GET("/relationships/:id", routes.GetRelationshipHandler)
	apiRoutes.PATCH("/relationships/:id", routes.EditRelationshipHandler)
	apiRoutes.DELETE("/relationships/:id", routes.DeleteRelationshipHandler)

	// Anecdote routes
	apiRoutes.GET("/anecdotes", routes.GetAnecdotesHandler)
	apiRoutes.POST("/anecdotes", routes.CreateAnecdoteHandler)
	apiRoutes.GET("/anecdotes/:id", routes.GetAnecdoteHandler)
	apiRoutes.PATCH("/anecdotes/:id", routes.EditAnecdoteHandler)
	apiRoutes.DELETE("/anecdotes/:id", routes.DeleteAnecdoteHandler)

	// Photo routes
	apiRoutes.GET("/photos", routes.GetPhotosHandler)
	apiRoutes.POST("/photos", routes.UploadPhotoHandler)
	apiRoutes.GET("/photos/:id", routes.GetPhotoHandler)
	apiRoutes.PATCH("/photos/:id", routes.EditPhotoHandler)
	apiRoutes.DELETE("/photos/:id", routes.DeletePhotoHandler)

	// Employment routes
	apiRoutes.GET("/employments", routes.GetEmploymentsHandler)
	apiRoutes.POST("/employments", routes.CreateEmploymentHandler)
	apiRoutes.GET("/employments/:id", routes.GetEmploymentHandler)
	apiRoutes.PATCH("/employments/:id", routes.EditEmploymentHandler)
	apiRoutes.DELETE("/employments/:id", routes.DeleteEmploymentHandler)

	// Overview routes
	apiRoutes.GET("/dashboard", routes.GetDashboardHandler)
	apiRoutes.GET("/search", routes.SearchHandler)
	apiRoutes.GET("/export/preview", routes.GetExportPreviewHandler)
	apiRoutes.GET("/export", routes.ExportHandler)

	// Assistant routes
	aiRoutes := apiRoutes.Group("/ai")
	aiRoutes.POST("/parse-contacts", routes.ParseContactsHandler)
	aiRoutes.POST("/bulk-import", routes.BulkImportHandler)
	aiRoutes.POST("/parse-updates", routes.ParseUpdatesHandler)
	aiRoutes.POST("/apply-updates", routes.ApplyUpdatesHandler)
	aiRoutes.POST("/chat", routes.ChatHandler)
	aiRoutes.POST("/suggest-relationships", routes.SuggestRelationshipsHandler)
	aiRoutes.POST("/apply-relationship-suggestion", routes.ApplyRelationshipSuggestionHandler)
	aiRoutes.POST("/smart-search", routes.SmartSearchHandler)
	aiRoutes.POST("/suggest-tags", routes.SuggestTagsHandler)
}
