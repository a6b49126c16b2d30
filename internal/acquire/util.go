package acquire

import (
	"database/sql"

	"github.com/DINO060/mediasink/internal/database"
	"github.com/DINO060/mediasink/internal/plugin"
)

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: f, Valid: f != 0}
}

func jsonMetadata(metadata plugin.Metadata) database.JsonColumn[map[string]any] {
	bag := map[string]any(metadata)
	return database.NewJsonColumn(&bag)
}
