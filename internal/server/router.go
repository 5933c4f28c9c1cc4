package server

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/onepointltd/kbserver/internal/handlers"
	"github.com/onepointltd/kbserver/internal/middleware"
	"github.com/onepointltd/kbserver/internal/ws"
)

type RouterConfig struct {
	ServiceName     string
	AllowedOrigins  string
	AuthMiddleware  *middleware.AuthMiddleware
	AdminHandler    *handlers.AdminHandler
	TenantHandler   *handlers.TenantHandler
	ProjectHandler  *handlers.ProjectHandler
	SearchHandler   *handlers.SearchHandler
	SnippetHandler  *handlers.SnippetHandler
	TokenHandler    *handlers.TokenHandler
	PDFHandler      *handlers.PDFHandler
	LinkedInHandler *handlers.LinkedInHandler
	Hub             *ws.Hub
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(middleware.CORS(cfg.AllowedOrigins))
	router.Use(cfg.AuthMiddleware.Authenticate())

	// ===============
	// || Public    ||
	// ===============
	router.GET("/", handlers.Health)
	router.GET("/tennant/admin_token", cfg.AdminHandler.AdminToken)
	router.GET("/token/validate_token", cfg.TokenHandler.Validate)
	router.GET("/ws", cfg.Hub.Serve)

	// ===============
	// || Admin     ||
	// ===============
	admin := router.Group("/admin")
	admin.Use(cfg.AuthMiddleware.RequireAdmin())
	{
		admin.POST("/create", cfg.AdminHandler.Create)
		admin.GET("/list", cfg.AdminHandler.List)
		admin.DELETE("/delete", cfg.AdminHandler.Delete)
	}

	// ===============
	// || Protected ||
	// ===============
	protected := router.Group("/protected")
	{
		// Tenant lifecycle (administrator tokens only, enforced in middleware)
		protected.POST("/tennant/create", cfg.TenantHandler.Create)
		protected.DELETE("/tennant/delete_tennant", cfg.TenantHandler.Delete)

		// Projects
		protected.GET("/projects", cfg.ProjectHandler.List)
		protected.POST("/project/upload_index", cfg.ProjectHandler.UploadIndex)
		protected.DELETE("/project/delete_index", cfg.ProjectHandler.DeleteIndex)
		protected.GET("/project/query", cfg.ProjectHandler.Query)
		protected.GET("/project/context", cfg.ProjectHandler.Context)
		protected.POST("/project/chat", cfg.ProjectHandler.Chat)

		// Search
		protected.POST("/search/expand_entities", cfg.SearchHandler.ExpandEntities)
		protected.POST("/search/relevant_documents", cfg.SearchHandler.RelevantDocuments)
		protected.POST("/search/extract_links", cfg.SearchHandler.ExtractLinks)
		protected.POST("/search/questions", cfg.SearchHandler.GenerateQuestions)
		protected.GET("/search/topics", cfg.SearchHandler.Topics)
		protected.GET("/search/history", cfg.SearchHandler.History)
		protected.POST("/search/related-topics", cfg.SearchHandler.RelatedTopics)

		// Embedding
		protected.POST("/snippet/generate_snippet", cfg.SnippetHandler.GenerateSnippet)
		protected.POST("/url/generate_direct_url", cfg.SnippetHandler.GenerateDirectURL)
		protected.POST("/token/generate_read_token", cfg.TokenHandler.GenerateReadToken)

		// Generation
		protected.POST("/pdf/pdf-generate", cfg.PDFHandler.Generate)
		protected.POST("/linkedin/extract_profile", cfg.LinkedInHandler.ExtractProfile)
	}

	return router
}
