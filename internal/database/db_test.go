package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMySQLDSN(t *testing.T) {
	assert.Equal(t,
		"app:secret@tcp(db:3306)/reservations?charset=utf8mb4&parseTime=true&loc=UTC",
		MySQLDSN("app", "secret", "db", "3306", "reservations"))
	assert.Equal(t,
		"root@tcp(localhost:3306)/reservations?charset=utf8mb4&parseTime=true&loc=UTC",
		MySQLDSN("root", "", "localhost", "3306", "reservations"))
}
