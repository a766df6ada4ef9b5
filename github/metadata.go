package github

import (
	"context"
	"strconv"
	"strings"
	"time"

	"taskboard/apperr"
	"taskboard/models"
)

// Metadata is the display data of an attached GitHub object.
type Metadata struct {
	Title     string     `json:"title"`
	URL       string     `json:"url"`
	State     string     `json:"state,omitempty"`
	Author    string     `json:"author,omitempty"`
	AvatarURL string     `json:"avatarUrl,omitempty"`
	Message   string     `json:"message,omitempty"`
	Date      *time.Time `json:"date,omitempty"`
}

// AttachmentMetadata fetches current metadata for an attachment target.
func (c *Client) AttachmentMetadata(ctx context.Context, a models.GitHubAttachment) (*Metadata, error) {
	owner, repo := a.Repository.Owner, a.Repository.Name

	switch a.Type {
	case models.AttachmentBranch:
		b, err := c.Branch(ctx, owner, repo, a.GitHubID)
		if err != nil {
			return nil, err
		}
		md := &Metadata{Title: b.Name, URL: b.HTMLURL}
		if commit, err := c.Commit(ctx, owner, repo, b.Commit.SHA); err == nil {
			md.Author = commit.AuthorLogin()
			md.AvatarURL = commit.AuthorAvatar()
			md.Message = commit.Commit.Message
			date := commit.Commit.Author.Date
			md.Date = &date
		}
		return md, nil

	case models.AttachmentCommit:
		commit, err := c.Commit(ctx, owner, repo, a.GitHubID)
		if err != nil {
			return nil, err
		}
		date := commit.Commit.Author.Date
		return &Metadata{
			Title:     firstLine(commit.Commit.Message),
			URL:       commit.HTMLURL,
			Author:    commit.AuthorLogin(),
			AvatarURL: commit.AuthorAvatar(),
			Message:   commit.Commit.Message,
			Date:      &date,
		}, nil

	case models.AttachmentIssue:
		n, err := number(a.GitHubID)
		if err != nil {
			return nil, err
		}
		issue, err := c.Issue(ctx, owner, repo, n)
		if err != nil {
			return nil, err
		}
		return &Metadata{
			Title:     issue.Title,
			URL:       issue.HTMLURL,
			State:     issue.State,
			Author:    issue.User.Login,
			AvatarURL: issue.User.AvatarURL,
			Date:      &issue.UpdatedAt,
		}, nil

	case models.AttachmentPullRequest:
		n, err := number(a.GitHubID)
		if err != nil {
			return nil, err
		}
		pr, err := c.PullRequest(ctx, owner, repo, n)
		if err != nil {
			return nil, err
		}
		return &Metadata{
			Title:     pr.Title,
			URL:       pr.HTMLURL,
			State:     pr.State,
			Author:    pr.User.Login,
			AvatarURL: pr.User.AvatarURL,
			Date:      &pr.UpdatedAt,
		}, nil
	}
	return nil, apperr.BadRequest("unsupported attachment type: " + a.Type)
}

// FallbackMetadata is shown when metadata cannot be fetched.
func FallbackMetadata(a models.GitHubAttachment) Metadata {
	title := "Unable to fetch details"
	if a.Type == models.AttachmentBranch {
		title = a.GitHubID
	}
	url := a.URL
	if url == "" {
		url = "https://github.com/" + a.Repository.FullName
	}
	return Metadata{Title: title, URL: url, Author: "Unknown"}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func number(id string) (int, error) {
	n, err := strconv.Atoi(id)
	if err != nil || n <= 0 {
		return 0, apperr.BadRequest("github id must be a positive number")
	}
	return n, nil
}
