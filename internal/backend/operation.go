package backend

import (
	"fmt"
	"math/rand/v2"

	"github.com/Masterminds/squirrel"
)

const usageTable = "usage_logs"

type Kind int

const (
	KindPing Kind = iota
	KindInsert
	KindSelect
	KindUpdate
	KindSchema
)

var kindNames = map[Kind]string{
	KindPing:   "ping",
	KindInsert: "insert",
	KindSelect: "select",
	KindUpdate: "update",
	KindSchema: "schema",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "unknown"
}

// Operation is one statement issued by a worker. Client identifies the
// worker in rows it writes.
type Operation struct {
	Kind   Kind
	Client int
	Data   string
}

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

func Ping() Operation {
	return Operation{Kind: KindPing}
}

// RandomWorkload picks one of insert, select and update with equal odds.
func RandomWorkload(client int) Operation {
	kinds := [...]Kind{KindInsert, KindSelect, KindUpdate}
	return Operation{
		Kind:   kinds[rand.IntN(len(kinds))],
		Client: client,
		Data:   fmt.Sprintf("Data-%d", rand.IntN(1000)+1),
	}
}

// SQL renders the statement and its arguments.
func (o Operation) SQL() (string, []any, error) {
	switch o.Kind {
	case KindPing:
		return "SELECT 1", nil, nil
	case KindInsert:
		return psql.Insert(usageTable).
			Columns("client_id", "action", "data").
			Values(o.Client, "INSERT", o.Data).
			ToSql()
	case KindSelect:
		return psql.Select("count(*)").From(usageTable).ToSql()
	case KindUpdate:
		return psql.Update(usageTable).
			Set("created_at", squirrel.Expr("NOW()")).
			Where(squirrel.Eq{"client_id": o.Client}).
			ToSql()
	case KindSchema:
		return schemaDDL, nil, nil
	}
	return "", nil, fmt.Errorf("unknown operation kind %d", o.Kind)
}

const schemaDDL = `CREATE TABLE IF NOT EXISTS usage_logs (
	id SERIAL PRIMARY KEY,
	client_id INT,
	action VARCHAR(20),
	data TEXT,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`
