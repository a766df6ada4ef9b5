package controller

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"taskboard/apperr"
	"taskboard/github"
	"taskboard/utils"
)

type GitHubController struct {
	accounts *github.Accounts
}

func NewGitHubController(accounts *github.Accounts) *GitHubController {
	return &GitHubController{accounts: accounts}
}

func (gc *GitHubController) client(c *fiber.Ctx) (*github.Client, error) {
	return gc.accounts.ClientFor(c.UserContext(), currentUser(c))
}

func listOptions(c *fiber.Ctx, defaultPerPage int) github.ListOptions {
	perPage := queryInt(c, "per_page", defaultPerPage)
	if perPage > 100 {
		perPage = 100
	}
	return github.ListOptions{
		Page:    queryInt(c, "page", 1),
		PerPage: perPage,
		State:   c.Query("state"),
		Search:  c.Query("search"),
	}
}

// paginated wraps a page of items with the paging info the frontend uses.
func paginated[T any](items []T, opts github.ListOptions) fiber.Map {
	return fiber.Map{
		"success": true,
		"data":    items,
		"pagination": fiber.Map{
			"page":    opts.Page,
			"perPage": opts.PerPage,
			"hasMore": len(items) >= opts.PerPage,
		},
	}
}

func issueNumber(c *fiber.Ctx, param string) (int, error) {
	n, err := strconv.Atoi(c.Params(param))
	if err != nil || n <= 0 {
		return 0, apperr.BadRequest(param + " must be a positive number")
	}
	return n, nil
}

func (gc *GitHubController) Status(c *fiber.Ctx) error {
	status, err := gc.accounts.Status(c.UserContext(), currentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(utils.SuccessResponse(status))
}

func (gc *GitHubController) Disconnect(c *fiber.Ctx) error {
	if err := gc.accounts.Disconnect(c.UserContext(), currentUser(c)); err != nil {
		return err
	}
	return c.JSON(utils.MessageResponse("GitHub account disconnected"))
}

func (gc *GitHubController) Repositories(c *fiber.Ctx) error {
	client, err := gc.client(c)
	if err != nil {
		return err
	}
	opts := listOptions(c, 100)
	repos, err := client.Repositories(c.UserContext(), opts)
	if err != nil {
		return err
	}
	return c.JSON(paginated(repos, opts))
}

func (gc *GitHubController) SearchRepositories(c *fiber.Ctx) error {
	q := c.Query("q")
	if q == "" {
		return apperr.BadRequest("search query is required")
	}
	client, err := gc.client(c)
	if err != nil {
		return err
	}
	res, err := client.SearchRepositories(c.UserContext(), q, listOptions(c, 30))
	if err != nil {
		return err
	}
	return c.JSON(utils.SuccessResponse(res))
}

func (gc *GitHubController) Repository(c *fiber.Ctx) error {
	client, err := gc.client(c)
	if err != nil {
		return err
	}
	repo, err := client.Repository(c.UserContext(), c.Params("owner"), c.Params("repo"))
	if err != nil {
		return err
	}
	return c.JSON(utils.SuccessResponse(repo))
}

// RepositoryInfo returns the repository with the first page of branches,
// open issues and open pull requests.
func (gc *GitHubController) RepositoryInfo(c *fiber.Ctx) error {
	client, err := gc.client(c)
	if err != nil {
		return err
	}
	ctx, owner, name := c.UserContext(), c.Params("owner"), c.Params("repo")

	repo, err := client.Repository(ctx, owner, name)
	if err != nil {
		return err
	}
	opts := github.ListOptions{Page: 1, PerPage: 10, State: "open"}
	branches, err := client.Branches(ctx, owner, name, github.ListOptions{Page: 1, PerPage: 10})
	if err != nil {
		return err
	}
	issues, err := client.Issues(ctx, owner, name, opts)
	if err != nil {
		return err
	}
	pulls, err := client.PullRequests(ctx, owner, name, opts)
	if err != nil {
		return err
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{
		"repository":   repo,
		"branches":     branches,
		"issues":       issues,
		"pullRequests": pulls,
	}))
}

func (gc *GitHubController) Branches(c *fiber.Ctx) error {
	client, err := gc.client(c)
	if err != nil {
		return err
	}
	opts := listOptions(c, 30)
	branches, err := client.Branches(c.UserContext(), c.Params("owner"), c.Params("repo"), opts)
	if err != nil {
		return err
	}
	return c.JSON(paginated(branches, opts))
}

func (gc *GitHubController) Issues(c *fiber.Ctx) error {
	client, err := gc.client(c)
	if err != nil {
		return err
	}
	opts := listOptions(c, 30)
	if opts.State == "" {
		opts.State = "open"
	}
	issues, err := client.Issues(c.UserContext(), c.Params("owner"), c.Params("repo"), opts)
	if err != nil {
		return err
	}
	return c.JSON(paginated(issues, opts))
}

func (gc *GitHubController) Issue(c *fiber.Ctx) error {
	n, err := issueNumber(c, "issue_number")
	if err != nil {
		return err
	}
	client, err := gc.client(c)
	if err != nil {
		return err
	}
	issue, err := client.Issue(c.UserContext(), c.Params("owner"), c.Params("repo"), n)
	if err != nil {
		return err
	}
	return c.JSON(utils.SuccessResponse(issue))
}

func (gc *GitHubController) PullRequests(c *fiber.Ctx) error {
	client, err := gc.client(c)
	if err != nil {
		return err
	}
	opts := listOptions(c, 30)
	if opts.State == "" {
		opts.State = "open"
	}
	pulls, err := client.PullRequests(c.UserContext(), c.Params("owner"), c.Params("repo"), opts)
	if err != nil {
		return err
	}
	return c.JSON(paginated(pulls, opts))
}

func (gc *GitHubController) PullRequest(c *fiber.Ctx) error {
	n, err := issueNumber(c, "pull_number")
	if err != nil {
		return err
	}
	client, err := gc.client(c)
	if err != nil {
		return err
	}
	pull, err := client.PullRequest(c.UserContext(), c.Params("owner"), c.Params("repo"), n)
	if err != nil {
		return err
	}
	return c.JSON(utils.SuccessResponse(pull))
}

func (gc *GitHubController) Commits(c *fiber.Ctx) error {
	client, err := gc.client(c)
	if err != nil {
		return err
	}
	opts := listOptions(c, 30)
	commits, err := client.Commits(c.UserContext(), c.Params("owner"), c.Params("repo"), opts)
	if err != nil {
		return err
	}
	return c.JSON(paginated(commits, opts))
}

func (gc *GitHubController) Commit(c *fiber.Ctx) error {
	client, err := gc.client(c)
	if err != nil {
		return err
	}
	commit, err := client.Commit(c.UserContext(), c.Params("owner"), c.Params("repo"), c.Params("sha"))
	if err != nil {
		return err
	}
	return c.JSON(utils.SuccessResponse(commit))
}
