package handler

import (
	"fmt"

	"github.com/noah-isme/ops-tracker-api/internal/middleware"
	"github.com/noah-isme/ops-tracker-api/internal/models"
)

func describeRegister(_ middleware.RequestSummary, out middleware.OutcomeSummary) string {
	if res, ok := out.Data.(*models.LoginResponse); ok {
		return "New user registered: " + res.User.Email
	}
	return "New user registered"
}

func describeLogin(_ middleware.RequestSummary, out middleware.OutcomeSummary) string {
	if res, ok := out.Data.(*models.LoginResponse); ok {
		return fmt.Sprintf("User %s logged in successfully", res.User.Email)
	}
	return "User logged in successfully"
}

func describeLogout(_ middleware.RequestSummary, _ middleware.OutcomeSummary) string {
	return "User logged out"
}

func describeIssueCreate(_ middleware.RequestSummary, out middleware.OutcomeSummary) string {
	if issue, ok := out.Data.(*models.IssueView); ok {
		return fmt.Sprintf("Issue created: %s (%s)", issue.Title, issue.Code)
	}
	return "Issue created"
}

func describeIssueUpdate(_ middleware.RequestSummary, out middleware.OutcomeSummary) string {
	if issue, ok := out.Data.(*models.IssueView); ok {
		return fmt.Sprintf("Issue updated: %s (%s)", issue.Title, issue.Code)
	}
	return "Issue updated"
}

func describeIssueStatus(_ middleware.RequestSummary, out middleware.OutcomeSummary) string {
	if issue, ok := out.Data.(*models.IssueView); ok {
		return fmt.Sprintf("Issue %s status changed to %s", issue.Code, issue.Status)
	}
	return "Issue status changed"
}

func describeIssueAssign(_ middleware.RequestSummary, out middleware.OutcomeSummary) string {
	issue, ok := out.Data.(*models.IssueView)
	if !ok {
		return "Issue assignment changed"
	}
	if issue.AssignedTo == "" {
		return fmt.Sprintf("Issue %s unassigned", issue.Code)
	}
	return fmt.Sprintf("Issue %s assigned to %s", issue.Code, issue.AssignedTo)
}

func describeIssueDelete(req middleware.RequestSummary, out middleware.OutcomeSummary) string {
	if issue, ok := out.Data.(*models.Issue); ok {
		return fmt.Sprintf("Issue deleted: %s (%s)", issue.Title, issue.Code)
	}
	return "Issue deleted: " + req.Param("id")
}

// actorFromLogin names the account that just authenticated.
func actorFromLogin(_ middleware.RequestSummary, out middleware.OutcomeSummary) string {
	if res, ok := out.Data.(*models.LoginResponse); ok {
		return res.User.ID
	}
	return ""
}

// targetsFromLogin makes the account both actor and target of its own
// registration or login.
func targetsFromLogin(req middleware.RequestSummary, out middleware.OutcomeSummary) middleware.Targets {
	return middleware.Targets{UserID: actorFromLogin(req, out)}
}

// targetsFromIssue reads the issue id from the response so creates, which
// have no id in the path, are attributed too.
func targetsFromIssue(req middleware.RequestSummary, out middleware.OutcomeSummary) middleware.Targets {
	t := middleware.Targets{IssueID: req.Param("id")}
	switch issue := out.Data.(type) {
	case *models.IssueView:
		t.IssueID = issue.ID
		if issue.AssigneeID != nil {
			t.UserID = *issue.AssigneeID
		}
	case *models.Issue:
		t.IssueID = issue.ID
	}
	return t
}
