package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redminetogithub/config"
	"redminetogithub/models"
)

func TestIssueTitleAndToken(t *testing.T) {
	issue := &models.SourceIssue{ID: 42, Tracker: "Bug", Subject: "Crash on save"}
	title := IssueTitle(issue)
	assert.Equal(t, "Bug RM-42: Crash on save", title)

	id, ok := ParseSourceToken(title)
	require.True(t, ok)
	assert.Equal(t, 42, id)

	_, ok = ParseSourceToken("Feature request without token")
	assert.False(t, ok)
	_, ok = ParseSourceToken("FORM-12 is not a token")
	assert.False(t, ok)

	assert.Equal(t, "RM-7: untitled tracker", IssueTitle(&models.SourceIssue{ID: 7, Subject: "untitled tracker"}))
}

func TestBuildPayload(t *testing.T) {
	cfg := &config.Config{
		CustomFieldLabels: []string{"Platform", "Browser", "Component"},
		AssigneeMap:       map[string]string{"bob builder": "bobgh"},
	}
	target := newFakeTarget()
	target.milestones = []models.Milestone{{Number: 3, Title: "1.0"}, {Number: 4, Title: "1.0.1"}}
	target.labels = []string{"bug", "LINUX"}

	source := newFakeSource()
	builder := NewPayloadBuilder(cfg, source.IssueURL, target, NewLabelResolver(target))

	issue := &models.SourceIssue{
		ID:          42,
		Subject:     "Crash on save",
		Tracker:     "bug",
		CreatedOn:   baseTime,
		Description: "It crashes.",
		Version:     "1.0",
		AssignedTo:  "Bob Builder",
		CustomFields: []models.CustomFieldValue{
			{ID: 1, Name: "Platform", Value: "linux"},
			{ID: 2, Name: "Browser", Value: ""},
		},
	}
	comments := []models.Comment{{Body: "c1", CreatedAt: at(1)}}

	payload, err := builder.Build(context.Background(), issue, comments)
	require.NoError(t, err)

	assert.Equal(t, "bug RM-42: Crash on save", payload.Issue.Title)
	assert.Equal(t,
		"***Issue migrated from Redmine: https://redmine.example.com/issues/42***\n"+
			"*Originally created by Unknown at 2020-01-02 03:04:05 UTC.*\n\nIt crashes.",
		payload.Issue.Body)
	assert.Equal(t, baseTime, payload.Issue.CreatedAt)
	// トラッカー名は既存ラベルがあってもタイトルケースのまま
	assert.Equal(t, []string{"Bug", "LINUX"}, payload.Issue.Labels)
	require.NotNil(t, payload.Issue.Milestone)
	assert.Equal(t, 3, *payload.Issue.Milestone)
	require.NotNil(t, payload.Issue.Assignee)
	assert.Equal(t, "bobgh", *payload.Issue.Assignee)
	assert.Equal(t, comments, payload.Comments)
}

func TestBuildPayloadOptionalFields(t *testing.T) {
	target := newFakeTarget()
	builder := NewPayloadBuilder(&config.Config{}, newFakeSource().IssueURL, target, NewLabelResolver(target))

	issue := &models.SourceIssue{ID: 1, Subject: "s", Tracker: "feature request", Version: "9.9", Author: "Carol", AssignedTo: "nobody"}
	payload, err := builder.Build(context.Background(), issue, nil)
	require.NoError(t, err)

	assert.Nil(t, payload.Issue.Milestone)
	assert.Nil(t, payload.Issue.Assignee)
	assert.Equal(t, []string{"Feature Request"}, payload.Issue.Labels)
	assert.NotNil(t, payload.Comments)
	assert.Empty(t, payload.Comments)
	assert.Contains(t, payload.Issue.Body, "*Originally created by Carol at")
}

func TestLabelResolverDedupes(t *testing.T) {
	target := newFakeTarget()
	target.labels = []string{"Needs Review"}
	r := NewLabelResolver(target)

	labels, err := r.Resolve(context.Background(), "Bug", []string{" ", "needs review", "bug", "Docs", "NEEDS REVIEW"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Bug", "Needs Review", "Docs"}, labels)

	labels, err = r.Resolve(context.Background(), "", []string{"needs review"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Needs Review"}, labels)
}
