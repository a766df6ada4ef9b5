package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"

	"taskboard/auth"
	"taskboard/cache"
	controller "taskboard/controllers"
	"taskboard/middleware"
	"taskboard/realtime"
)

// Deps is everything the route table needs. All fields are required.
type Deps struct {
	Verifier      auth.Verifier
	Cache         *cache.ResponseCache
	Socket        *realtime.SocketServer
	InviteLimiter fiber.Handler

	Auth          *controller.AuthController
	Boards        *controller.BoardController
	Cards         *controller.CardController
	Tasks         *controller.TaskController
	Notifications *controller.NotificationController
	GitHub        *controller.GitHubController
	System        *controller.SystemController
}

var accessLog = logger.Config{
	Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
}

func SetupRoutes(app *fiber.App, d Deps) {
	app.Get("/health", d.System.Health)
	app.Get("/ws", d.Socket.Authenticate(), d.Socket.Handler())

	api := app.Group("/api", logger.New(accessLog))
	protected := middleware.Protected(d.Verifier)

	setupAuthRoutes(api, d, protected)
	setupBoardRoutes(api, d, protected)
	setupNotificationRoutes(api, d, protected)
	setupGitHubRoutes(api, d, protected)

	api.Get("/cache/stats", protected, d.System.CacheStats)
}

func setupAuthRoutes(api fiber.Router, d Deps, protected fiber.Handler) {
	authGroup := api.Group("/auth")

	// Public auth endpoints (no authentication required)
	authGroup.Post("/send-verification-code", d.Auth.SendVerificationCode)
	authGroup.Post("/verify-code", d.Auth.VerifyCode)

	// GitHub linking relies on the access_token cookie across the redirect
	authGroup.Get("/github", protected, d.Auth.GitHubOAuth)
	authGroup.Get("/github/callback", protected, d.Auth.GitHubOAuthCallback)

	authGroup.Get("/profile", protected, d.Auth.Profile)
	authGroup.Put("/profile", protected, d.Auth.UpdateProfile)
	authGroup.Post("/refresh-token", protected, d.Auth.RefreshToken)
	authGroup.Post("/logout", protected, d.Auth.Logout)
}

func setupBoardRoutes(api fiber.Router, d Deps, protected fiber.Handler) {
	cached := d.Cache.Middleware(middleware.CurrentUserID)
	boards := api.Group("/boards", protected)

	// Invitations addressed to the caller
	boards.Get("/invitations/pending", d.Boards.PendingInvitations)
	boards.Get("/invitation/:invitationId/status", d.Boards.InvitationStatus)
	boards.Post("/invitation/respond", d.Boards.RespondInvitation)

	boards.Post("/", d.Boards.CreateBoard)
	boards.Get("/", d.Boards.GetBoards)
	boards.Get("/:id", d.Boards.GetBoard)
	boards.Put("/:id", d.Boards.UpdateBoard)
	boards.Delete("/:id", d.Boards.DeleteBoard)

	// Membership
	boards.Post("/:boardId/invite", d.InviteLimiter, d.Boards.Invite)
	boards.Get("/:boardId/invitations", d.Boards.BoardInvitations)
	boards.Delete("/:boardId/invitations/:invitationId", d.Boards.CancelInvitation)
	boards.Get("/:id/members", cached, d.Boards.GetMembers)
	boards.Delete("/:id/members/:memberId", d.Boards.RemoveMember)
	boards.Post("/:id/leave", d.Boards.LeaveBoard)

	// Cards
	boards.Get("/:boardId/cards", cached, d.Cards.GetCards)
	boards.Post("/:boardId/cards", d.Cards.CreateCard)
	boards.Patch("/:boardId/cards/reorder", d.Cards.ReorderCards)
	boards.Get("/:boardId/cards/user/:userId", d.Cards.GetCardsForMember)
	boards.Get("/:boardId/cards/:id", d.Cards.GetCard)
	boards.Put("/:boardId/cards/:id", d.Cards.UpdateCard)
	boards.Patch("/:boardId/cards/:id/move", d.Cards.MoveCard)
	boards.Put("/:boardId/cards/:id/members", d.Cards.AssignMembers)
	boards.Delete("/:boardId/cards/:id", d.Cards.DeleteCard)

	// Tasks
	tasks := boards.Group("/:boardId/cards/:cardId/tasks")
	tasks.Get("/", d.Tasks.GetTasks)
	tasks.Post("/", d.Tasks.CreateTask)
	tasks.Get("/:taskId", d.Tasks.GetTask)
	tasks.Put("/:taskId", d.Tasks.UpdateTask)
	tasks.Delete("/:taskId", d.Tasks.DeleteTask)
	tasks.Patch("/:taskId/toggle", d.Tasks.ToggleStatus)
	tasks.Post("/:taskId/assign", d.Tasks.AssignTask)
	tasks.Get("/:taskId/assign", d.Tasks.GetTaskMembers)
	tasks.Delete("/:taskId/assign/:memberId", d.Tasks.UnassignTask)
	tasks.Post("/:taskId/github-attachments", d.Tasks.AddAttachment)
	tasks.Get("/:taskId/github-attachments", d.Tasks.GetAttachments)
	tasks.Delete("/:taskId/github-attachments/:attachmentId", d.Tasks.RemoveAttachment)

	boards.Patch("/:boardId/tasks/:taskId/move", d.Tasks.MoveTask)
}

func setupNotificationRoutes(api fiber.Router, d Deps, protected fiber.Handler) {
	notifications := api.Group("/notifications", protected)
	notifications.Get("/", d.Notifications.GetNotifications)
	notifications.Get("/unread-count", d.Notifications.GetUnreadCount)
	notifications.Patch("/mark-all-read", d.Notifications.MarkAllAsRead)
	notifications.Patch("/:id/read", d.Notifications.MarkAsRead)
	notifications.Delete("/:id", d.Notifications.DeleteNotification)
}

func setupGitHubRoutes(api fiber.Router, d Deps, protected fiber.Handler) {
	gh := api.Group("/github", protected)
	gh.Get("/status", d.GitHub.Status)
	gh.Delete("/disconnect", d.GitHub.Disconnect)
	gh.Get("/repositories", d.GitHub.Repositories)
	gh.Get("/repositories/search", d.GitHub.SearchRepositories)

	repo := gh.Group("/repositories/:owner/:repo")
	repo.Get("/", d.GitHub.Repository)
	repo.Get("/github-info", d.GitHub.RepositoryInfo)
	repo.Get("/branches", d.GitHub.Branches)
	repo.Get("/branches/paginated", d.GitHub.Branches)
	repo.Get("/issues", d.GitHub.Issues)
	repo.Get("/issues/paginated", d.GitHub.Issues)
	repo.Get("/issues/:issue_number", d.GitHub.Issue)
	repo.Get("/pulls", d.GitHub.PullRequests)
	repo.Get("/pulls/paginated", d.GitHub.PullRequests)
	repo.Get("/pulls/:pull_number", d.GitHub.PullRequest)
	repo.Get("/commits", d.GitHub.Commits)
	repo.Get("/commits/paginated", d.GitHub.Commits)
	repo.Get("/commits/:sha", d.GitHub.Commit)
}
