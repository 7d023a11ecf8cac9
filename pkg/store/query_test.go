package store

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueryStatement(t *testing.T) {
	scoped := queryStatement("chunks", true)
	assert.Contains(t, scoped, "WITH scoped AS MATERIALIZED")
	assert.Contains(t, scoped, "FROM chunks WHERE doc_id = $4")
	assert.Contains(t, scoped, "FROM scoped")
	assert.Less(t, strings.Index(scoped, "doc_id = $4"), strings.Index(scoped, "ORDER BY embedding <=> $1"))

	all := queryStatement("chunks", false)
	assert.NotContains(t, all, "doc_id =")
	assert.NotContains(t, all, "$4")
	assert.Contains(t, all, "FROM chunks")
	assert.Contains(t, all, "LIMIT $3")
}
