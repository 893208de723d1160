package approval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDescribe(t *testing.T) {
	tests := []struct {
		name     string
		toolName string
		args     map[string]any
		want     string
	}{
		{
			name:     "update record",
			toolName: ToolUpdateRecord,
			args:     map[string]any{"objectName": "Contact", "recordId": "003x"},
			want:     "Update Contact record `003x`",
		},
		{
			name:     "create record",
			toolName: ToolCreateRecord,
			args:     map[string]any{"objectName": "Lead"},
			want:     "Create a new Lead record",
		},
		{
			name:     "delete record",
			toolName: ToolDeleteRecord,
			args:     map[string]any{"objectName": "Account", "recordId": "001a"},
			want:     "Delete Account record `001a`",
		},
		{
			name:     "bulk update plural",
			toolName: ToolBulkUpdate,
			args: map[string]any{
				"objectName": "Contact",
				"records":    []any{map[string]any{"Id": "1"}, map[string]any{"Id": "2"}},
			},
			want: "Bulk update 2 Contact records",
		},
		{
			name:     "bulk update singular",
			toolName: ToolBulkUpdate,
			args: map[string]any{
				"objectName": "Contact",
				"records":    []any{map[string]any{"Id": "1"}},
			},
			want: "Bulk update 1 Contact record",
		},
		{
			name:     "add contacts to campaign",
			toolName: ToolAddToCampaign,
			args: map[string]any{
				"campaignId": "701x",
				"contactIds": []any{"a", "b", "c"},
			},
			want: "Add 3 contacts to campaign `701x`",
		},
		{
			name:     "single contact",
			toolName: ToolAddToCampaign,
			args:     map[string]any{"campaignId": "701x", "contactIds": []string{"a"}},
			want:     "Add 1 contact to campaign `701x`",
		},
		{
			name:     "unknown tool falls back",
			toolName: "sendRocket",
			args:     nil,
			want:     "Execute `sendRocket`",
		},
		{
			name:     "missing args degrade to empty strings",
			toolName: ToolUpdateRecord,
			args:     map[string]any{},
			want:     "Update  record ``",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Describe(tt.toolName, tt.args))
		})
	}
}

func TestDescribeDeterministic(t *testing.T) {
	args := map[string]any{"objectName": "Case", "recordId": "500x"}
	first := Describe(ToolUpdateRecord, args)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Describe(ToolUpdateRecord, args))
	}
}

func TestIsGated(t *testing.T) {
	for _, name := range []string{
		ToolUpdateRecord, ToolCreateRecord, ToolDeleteRecord, ToolBulkUpdate, ToolAddToCampaign,
	} {
		assert.True(t, IsGated(name), name)
	}
	assert.False(t, IsGated("querySalesforce"))
	assert.False(t, IsGated(""))
}
