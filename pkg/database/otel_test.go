package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOperationName(t *testing.T) {
	cases := map[string]string{
		"SELECT * FROM submission_archive":      "db.select",
		"  insert into submission_archive ...": "db.insert",
		"UPDATE submission_archive SET ...":     "db.update",
		"DELETE FROM submission_archive":        "db.delete",
		"WITH x AS (...) SELECT 1":              "db.query",
		"":                                      "db.unknown",
	}
	for sql, want := range cases {
		assert.Equal(t, want, operationName(sql), sql)
	}
}

func TestTruncate(t *testing.T) {
	p := NewOTELPlugin("test")
	p.maxSQLLength = 5
	assert.Equal(t, "SELEC...", p.truncate("SELECT 1"))
	assert.Equal(t, "ab", p.truncate("ab"))
}
