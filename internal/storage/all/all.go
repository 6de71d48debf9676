// Package all registers every storage backend with the storage factory.
// Config selects which one to use, but the binary carries support for all.
package all

import (
	_ "docnorm/internal/storage/mssql"
	_ "docnorm/internal/storage/postgres"
	_ "docnorm/internal/storage/sqlite"
)
