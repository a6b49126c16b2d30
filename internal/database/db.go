package database

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Queryable is the union of the sqlx methods our stores need; both
// *sqlx.DB and *sqlx.Tx satisfy it, so store methods can run inside
// or outside of a transaction without caring which.
type Queryable interface {
	Get(dest interface{}, query string, args ...interface{}) error
	Select(dest interface{}, query string, args ...interface{}) error
	Exec(query string, args ...interface{}) (sql.Result, error)
}

// JsonColumn transports an arbitrary Go value through a jsonb column.
type JsonColumn[T any] struct {
	val *T
}

func (j *JsonColumn[T]) Scan(src any) error {
	if src == nil {
		j.val = nil
		return nil
	}

	raw, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("JsonColumn scan expected []byte, got %T", src)
	}

	val := new(T)
	if err := json.Unmarshal(raw, val); err != nil {
		return err
	}

	j.val = val
	return nil
}

func (j JsonColumn[T]) Value() (driver.Value, error) {
	if j.val == nil {
		return nil, nil
	}

	return json.Marshal(*j.val)
}

func (j *JsonColumn[T]) Get() *T {
	return j.val
}

func NewJsonColumn[T any](val *T) JsonColumn[T] {
	return JsonColumn[T]{val: val}
}
