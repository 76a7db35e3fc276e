package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	err := WriteCSV(&buf, Table{
		Headers: []string{"subscription_id", "user_id"},
		Rows:    [][]string{{"sub-1", "u1"}, {"sub,2", "u2"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "subscription_id,user_id\nsub-1,u1\n\"sub,2\",u2\n", buf.String())
}

func TestWriteCSVRejectsRaggedRows(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, WriteCSV(&buf, Table{Headers: []string{"a", "b"}, Rows: [][]string{{"only-one"}}}))
	assert.Error(t, WriteCSV(&buf, Table{}))
}
