//
// Copyright 2015 Gregory Trubetskoy. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package serde

import (
	"database/sql"
	"fmt"
	"log"
	"math"
	"strings"

	"github.com/lib/pq"

	"github.com/kunlun/kunlun/rollup"
	"github.com/kunlun/kunlun/sample"
)

// pgSerDe stores rows in PostgreSQL: a client table plus one table per
// tier and one for the latest snapshot, columns generated from the
// schema. Aggregation happens in SQL (SUM for counters, AVG for
// gauges, MAX(timestamp)).
type pgSerDe struct {
	dbConn *sql.DB
	schema sample.Schema
	prefix string

	sqlResolve    *sql.Stmt
	sqlGetLatest  *sql.Stmt
	sqlPutLatest  *sql.Stmt
	sqlListLatest *sql.Stmt

	sqlAppend    map[rollup.Tier]*sql.Stmt
	sqlQueryAsc  map[rollup.Tier]*sql.Stmt
	sqlQueryDesc map[rollup.Tier]*sql.Stmt
	sqlPrune     map[rollup.Tier]*sql.Stmt
	sqlAggregate map[rollup.Tier]*sql.Stmt
}

var tierTables = map[rollup.Tier]string{
	rollup.Seconds: "status_seconds",
	rollup.Minutes: "status_minutes",
	rollup.Hours:   "status_hours",
}

// InitDb connects to the database, creates the tables if needed and
// prepares all statements. prefix is prepended to every table name.
func InitDb(connectString, prefix string, schema sample.Schema) (SerDe, error) {
	dbConn, err := sql.Open("postgres", connectString)
	if err != nil {
		return nil, err
	}
	p := &pgSerDe{dbConn: dbConn, schema: schema, prefix: prefix}
	if err := p.dbConn.Ping(); err != nil {
		return nil, err
	}
	if err := p.createTablesIfNotExist(); err != nil {
		return nil, err
	}
	if err := p.prepareSqlStatements(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *pgSerDe) Close() error { return p.dbConn.Close() }

func (p *pgSerDe) table(name string) string {
	return pq.QuoteIdentifier(p.prefix + name)
}

// columnList returns "timestamp, f1, f2, ..." in schema order.
func (p *pgSerDe) columnList() string {
	names := make([]string, 0, len(p.schema)+1)
	names = append(names, "timestamp")
	for _, f := range p.schema {
		names = append(names, f.Name)
	}
	return strings.Join(names, ", ")
}

func (p *pgSerDe) createTablesIfNotExist() error {
	var cols strings.Builder
	for _, f := range p.schema {
		fmt.Fprintf(&cols, ",\n       %s DOUBLE PRECISION NOT NULL", f.Name)
	}

	createSql := fmt.Sprintf(`
       CREATE TABLE IF NOT EXISTS %s (
       id SERIAL NOT NULL PRIMARY KEY,
       machine_id TEXT UNIQUE NOT NULL,
       hostname TEXT NOT NULL);

       CREATE TABLE IF NOT EXISTS %s (
       client_id BIGINT NOT NULL PRIMARY KEY,
       timestamp BIGINT NOT NULL%s);
    `, p.table("client"), p.table("status_latest"), cols.String())

	for _, name := range []string{"status_seconds", "status_minutes", "status_hours"} {
		createSql += fmt.Sprintf(`
       CREATE TABLE IF NOT EXISTS %s (
       client_id BIGINT NOT NULL,
       timestamp BIGINT NOT NULL%s,
       PRIMARY KEY (client_id, timestamp));
    `, p.table(name), cols.String())
	}

	if rows, err := p.dbConn.Query(createSql); err != nil {
		log.Printf("ERROR: initial CREATE TABLE failed: %v", err)
		return err
	} else {
		rows.Close()
	}
	return nil
}

func (p *pgSerDe) prepareSqlStatements() error {
	var (
		err     error
		colList = p.columnList()
		// $1 is client_id, $2.. are timestamp + fields
		phList  = placeholders(2, len(p.schema)+1)
		setList = updateSetList(p.schema)
		aggList = aggregateList(p.schema)
	)

	if p.sqlResolve, err = p.dbConn.Prepare(fmt.Sprintf(
		"INSERT INTO %s (machine_id, hostname) VALUES ($1, $2) "+
			"ON CONFLICT (machine_id) DO UPDATE SET hostname = EXCLUDED.hostname RETURNING id",
		p.table("client"))); err != nil {
		return err
	}
	if p.sqlGetLatest, err = p.dbConn.Prepare(fmt.Sprintf(
		"SELECT %s FROM %s WHERE client_id = $1",
		colList, p.table("status_latest"))); err != nil {
		return err
	}
	if p.sqlPutLatest, err = p.dbConn.Prepare(fmt.Sprintf(
		"INSERT INTO %s (client_id, %s) VALUES ($1, %s) "+
			"ON CONFLICT (client_id) DO UPDATE SET %s",
		p.table("status_latest"), colList, phList, setList)); err != nil {
		return err
	}
	if p.sqlListLatest, err = p.dbConn.Prepare(fmt.Sprintf(
		"SELECT c.id, c.machine_id, c.hostname, %s FROM %s l "+
			"JOIN %s c ON l.client_id = c.id ORDER BY c.id",
		prefixCols("l.", p.schema), p.table("status_latest"), p.table("client"))); err != nil {
		return err
	}

	p.sqlAppend = make(map[rollup.Tier]*sql.Stmt)
	p.sqlQueryAsc = make(map[rollup.Tier]*sql.Stmt)
	p.sqlQueryDesc = make(map[rollup.Tier]*sql.Stmt)
	p.sqlPrune = make(map[rollup.Tier]*sql.Stmt)
	p.sqlAggregate = make(map[rollup.Tier]*sql.Stmt)

	for t, name := range tierTables {
		table := p.table(name)
		if p.sqlAppend[t], err = p.dbConn.Prepare(fmt.Sprintf(
			"INSERT INTO %s (client_id, %s) VALUES ($1, %s)",
			table, colList, phList)); err != nil {
			return err
		}
		if p.sqlQueryAsc[t], err = p.dbConn.Prepare(fmt.Sprintf(
			"SELECT %s FROM %s WHERE client_id = $1 AND timestamp > $2 ORDER BY timestamp ASC LIMIT $3",
			colList, table)); err != nil {
			return err
		}
		if p.sqlQueryDesc[t], err = p.dbConn.Prepare(fmt.Sprintf(
			"SELECT %s FROM %s WHERE client_id = $1 AND timestamp > $2 ORDER BY timestamp DESC LIMIT $3",
			colList, table)); err != nil {
			return err
		}
		if p.sqlPrune[t], err = p.dbConn.Prepare(fmt.Sprintf(
			"DELETE FROM %s WHERE client_id = $1 AND timestamp < $2",
			table)); err != nil {
			return err
		}
		if p.sqlAggregate[t], err = p.dbConn.Prepare(fmt.Sprintf(
			"SELECT MAX(timestamp), %s FROM %s WHERE client_id = $1 AND timestamp > $2 AND timestamp <= $3",
			aggList, table)); err != nil {
			return err
		}
	}
	return nil
}

func (p *pgSerDe) Resolve(machineId, hostname string) (int64, error) {
	var id int64
	if err := p.sqlResolve.QueryRow(machineId, hostname).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (p *pgSerDe) GetLatest(clientId int64) (*sample.Row, error) {
	row := newRow(len(p.schema))
	if err := p.sqlGetLatest.QueryRow(clientId).Scan(scanDest(row)...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return row, nil
}

func (p *pgSerDe) PutLatest(clientId int64, row *sample.Row) error {
	_, err := p.sqlPutLatest.Exec(execArgs(clientId, row)...)
	return err
}

func (p *pgSerDe) AppendTier(t rollup.Tier, clientId int64, row *sample.Row) error {
	_, err := p.sqlAppend[t].Exec(execArgs(clientId, row)...)
	return err
}

func (p *pgSerDe) QueryTier(t rollup.Tier, clientId int64, since int64, limit int, asc bool) ([]*sample.Row, error) {
	if limit <= 0 {
		limit = t.DefaultLimit()
	}
	stmt := p.sqlQueryDesc[t]
	if asc {
		stmt = p.sqlQueryAsc[t]
	}
	if since <= 0 {
		since = math.MinInt64
	}
	rows, err := stmt.Query(clientId, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*sample.Row
	for rows.Next() {
		row := newRow(len(p.schema))
		if err := rows.Scan(scanDest(row)...); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func (p *pgSerDe) PruneTier(t rollup.Tier, clientId int64, olderThan int64) error {
	_, err := p.sqlPrune[t].Exec(clientId, olderThan)
	return err
}

func (p *pgSerDe) AggregateTier(t rollup.Tier, clientId int64, winStart, winEnd int64, schema sample.Schema) (*sample.Row, error) {
	// Over an empty window every aggregate is NULL, so scan through
	// nullables and report the empty window as (nil, nil).
	var (
		ts   sql.NullInt64
		vals = make([]sql.NullFloat64, len(schema))
		dest = make([]interface{}, 0, len(schema)+1)
	)
	dest = append(dest, &ts)
	for i := range vals {
		dest = append(dest, &vals[i])
	}
	err := p.sqlAggregate[t].QueryRow(clientId, winStart, winEnd).Scan(dest...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !ts.Valid {
		return nil, nil
	}
	row := &sample.Row{Timestamp: ts.Int64, Values: make([]float64, len(schema))}
	for i, v := range vals {
		row.Values[i] = v.Float64
	}
	return row, nil
}

func (p *pgSerDe) ListLatest() ([]*LatestStatus, error) {
	rows, err := p.sqlListLatest.Query()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*LatestStatus
	for rows.Next() {
		ls := &LatestStatus{Row: newRow(len(p.schema))}
		dest := append([]interface{}{&ls.ClientId, &ls.MachineId, &ls.Hostname}, scanDest(ls.Row)...)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		result = append(result, ls)
	}
	return result, rows.Err()
}

// SQL building helpers

func newRow(n int) *sample.Row {
	return &sample.Row{Values: make([]float64, n)}
}

// placeholders returns "$from, $from+1, ..." with n entries.
func placeholders(from, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", from+i)
	}
	return strings.Join(parts, ", ")
}

// scanDest returns scan targets for "timestamp, fields..." selects.
func scanDest(row *sample.Row) []interface{} {
	dest := make([]interface{}, 0, len(row.Values)+1)
	dest = append(dest, &row.Timestamp)
	for i := range row.Values {
		dest = append(dest, &row.Values[i])
	}
	return dest
}

// execArgs returns exec arguments for "client_id, timestamp,
// fields..." inserts.
func execArgs(clientId int64, row *sample.Row) []interface{} {
	args := make([]interface{}, 0, len(row.Values)+2)
	args = append(args, clientId, row.Timestamp)
	for _, v := range row.Values {
		args = append(args, v)
	}
	return args
}

func updateSetList(schema sample.Schema) string {
	parts := make([]string, 0, len(schema)+1)
	parts = append(parts, "timestamp = EXCLUDED.timestamp")
	for _, f := range schema {
		parts = append(parts, fmt.Sprintf("%s = EXCLUDED.%s", f.Name, f.Name))
	}
	return strings.Join(parts, ", ")
}

func aggregateList(schema sample.Schema) string {
	parts := make([]string, len(schema))
	for i, f := range schema {
		if f.Kind == sample.Counter {
			parts[i] = fmt.Sprintf("SUM(%s)", f.Name)
		} else {
			parts[i] = fmt.Sprintf("AVG(%s)", f.Name)
		}
	}
	return strings.Join(parts, ", ")
}

func prefixCols(prefix string, schema sample.Schema) string {
	parts := make([]string, 0, len(schema)+1)
	parts = append(parts, prefix+"timestamp")
	for _, f := range schema {
		parts = append(parts, prefix+f.Name)
	}
	return strings.Join(parts, ", ")
}
