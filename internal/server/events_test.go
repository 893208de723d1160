package server

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchIssueShortcut(t *testing.T) {
	cases := []struct {
		text string
		kind string
		desc string
		ok   bool
	}{
		{"bug: dashboard spinner never stops", "Bug", "dashboard spinner never stops", true},
		{"BUG:  caps and extra spaces", "Bug", "caps and extra spaces", true},
		{"feature: add date filtering", "Feature", "add date filtering", true},
		{"feature request: export to PDF", "Feature", "export to PDF", true},
		{"todo: clean up stale campaigns", "Feature", "clean up stale campaigns", true},
		{"fix the bug: in my query", "", "", false},
		{"bug:", "", "", false},
		{"how many contacts do we have?", "", "", false},
	}
	for _, tc := range cases {
		kind, desc, ok := matchIssueShortcut(tc.text)
		assert.Equal(t, tc.ok, ok, tc.text)
		assert.Equal(t, tc.kind, kind, tc.text)
		assert.Equal(t, tc.desc, desc, tc.text)
	}
}

func TestFindCSVFile(t *testing.T) {
	files := []slackFile{
		{Name: "notes.txt", Filetype: "text", Mimetype: "text/plain"},
		{Name: "leads", Filetype: "csv", Mimetype: "application/octet-stream", URLPrivate: "https://files.slack.com/leads"},
		{Name: "more.csv", Filetype: "binary"},
	}

	// Первый подходящий: по filetype
	f := findCSVFile(files)
	require.NotNil(t, f)
	assert.Equal(t, "https://files.slack.com/leads", f.URLPrivate)

	// По расширению и по mimetype
	assert.NotNil(t, findCSVFile([]slackFile{{Name: "export.csv"}}))
	assert.NotNil(t, findCSVFile([]slackFile{{Name: "data", Mimetype: "text/csv"}}))

	assert.Nil(t, findCSVFile(nil))
	assert.Nil(t, findCSVFile([]slackFile{{Name: "image.png", Filetype: "png"}}))
}

func TestAppendCSVData(t *testing.T) {
	got := appendCSVData("update these records", "Id,Name\n003x,Acme")
	assert.Equal(t, "update these records\n\nAttached CSV data:\n```\nId,Name\n003x,Acme\n```", got)

	// Длинный файл обрезается до потолка превью
	big := strings.Repeat("a", csvPreviewLimit+500)
	got = appendCSVData("q", big)
	assert.Contains(t, got, "...(truncated)")
	assert.Contains(t, got, strings.Repeat("a", csvPreviewLimit))
	assert.NotContains(t, got, strings.Repeat("a", csvPreviewLimit+1))
}
