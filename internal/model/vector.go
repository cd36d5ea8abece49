package model

import (
	"database/sql/driver"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

const EmbeddingDimensions = 1536

// Vector stores an embedding as a pgvector column on postgres and as its
// text form elsewhere, so the same rows work on every supported dialect.
type Vector struct {
	pgvector.Vector
}

func NewVector(values []float32) Vector {
	return Vector{Vector: pgvector.NewVector(values)}
}

func (Vector) GormDataType() string {
	return "vector"
}

func (Vector) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	switch db.Dialector.Name() {
	case "postgres":
		return fmt.Sprintf("vector(%d)", EmbeddingDimensions)
	case "mysql":
		return "LONGTEXT"
	default:
		return "TEXT"
	}
}

func (v Vector) Value() (driver.Value, error) {
	return v.Vector.Value()
}

func (v *Vector) Scan(src any) error {
	return v.Vector.Scan(src)
}
