package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func TestParseChange(t *testing.T) {
	tests := []struct {
		property string
		want     ChangeKind
	}{
		{"attr", AttributeChange},
		{"cf", CustomFieldChange},
		{"attachment", AttachmentChange},
		{"relation", RelationChange},
		{"something", UnknownChange},
		{"", UnknownChange},
	}

	for _, tt := range tests {
		t.Run(tt.property, func(t *testing.T) {
			c := ParseChange(tt.property, "name", nil, strPtr("x"))
			assert.Equal(t, tt.want, c.Kind)
			assert.Equal(t, tt.property, c.Property)
		})
	}
}

func TestChangeValues(t *testing.T) {
	c := ParseChange("attr", "subject", nil, strPtr("new"))
	assert.Equal(t, "", c.OldValue())
	assert.Equal(t, "new", c.NewValue())
}

func TestSourceIssueIsClosed(t *testing.T) {
	issue := &SourceIssue{}
	assert.False(t, issue.IsClosed())
}
