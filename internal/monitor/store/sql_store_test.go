package store

import (
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"

	"github.com/watchvane/sentinel/internal/monitor/model"
)

func TestMarshalAuth_NilAndRoundTrip(t *testing.T) {
	b, err := marshalAuth(nil)
	assert.NoError(t, err)
	assert.Nil(t, b)

	auth := &model.AuthConfig{Type: model.AuthBearer, BearerToken: "secret-token"}
	b, err = marshalAuth(auth)
	assert.NoError(t, err)
	assert.Contains(t, string(b), "secret-token")
}

func TestIsDuplicateKeyErr(t *testing.T) {
	assert.False(t, isDuplicateKeyErr(nil))
	assert.False(t, isDuplicateKeyErr(assert.AnError))

	dup := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}
	assert.True(t, isDuplicateKeyErr(dup))

	other := &mysql.MySQLError{Number: 1146, Message: "table doesn't exist"}
	assert.False(t, isDuplicateKeyErr(other))
}

func TestDDLStatementsNonEmpty(t *testing.T) {
	assert.Len(t, ddlStatements, 5)
	for _, stmt := range ddlStatements {
		assert.Contains(t, stmt, "CREATE TABLE IF NOT EXISTS")
	}
}
