package postgres

import "docnorm/internal/storage"

func init() {
	// registers the backend factory
	storage.Register("postgres", New)
}
