// Package all registers every storage backend and the SQL Server driver.
package all

import (
	_ "github.com/microsoft/go-mssqldb"

	_ "sheetetl/internal/storage/mssql"
	_ "sheetetl/internal/storage/postgres"
	_ "sheetetl/internal/storage/sqlite"
)
