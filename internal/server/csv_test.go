package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordsToCSV(t *testing.T) {
	records := []map[string]any{
		{"Id": "001a", "Name": "Acme", "Amount": float64(1200)},
		{"Id": "001b", "Name": "Globex", "Stage": "Closed Won"},
	}

	out, err := recordsToCSV(records)
	require.NoError(t, err)

	// Id первая, остальные по алфавиту; пропущенные значения — пустые ячейки
	assert.Equal(t,
		"Id,Amount,Name,Stage\n001a,1200,Acme,\n001b,,Globex,Closed Won\n",
		out)
}

func TestRecordsToCSVEscaping(t *testing.T) {
	records := []map[string]any{
		{"Id": "1", "Note": `said "hi", left`},
	}
	out, err := recordsToCSV(records)
	require.NoError(t, err)
	assert.Equal(t, "Id,Note\n1,\"said \"\"hi\"\", left\"\n", out)
}

func TestCellString(t *testing.T) {
	assert.Equal(t, "", cellString(nil))
	assert.Equal(t, "plain", cellString("plain"))
	assert.Equal(t, "42", cellString(float64(42)))
	assert.Equal(t, "3.5", cellString(float64(3.5)))
	assert.Equal(t, "true", cellString(true))
}
