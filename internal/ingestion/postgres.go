package ingestion

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/lib/pq"
)

// PostgresSource describes a PostgreSQL table or SELECT query to import leads from. When DSN is
// set it is used as-is and the individual connection fields are ignored.
type PostgresSource struct {
	DSN          string `json:"dsn,omitempty" yaml:"dsn"`
	Host         string `json:"host,omitempty" yaml:"host"`
	Port         int    `json:"port,omitempty" yaml:"port"`
	User         string `json:"user,omitempty" yaml:"user"`
	Password     string `json:"password,omitempty" yaml:"password"`
	DBName       string `json:"dbname,omitempty" yaml:"dbname"`
	SSLMode      string `json:"sslmode,omitempty" yaml:"sslmode"`
	TableOrQuery string `json:"table_or_query" yaml:"query"`
}

// ConnectionString returns the lib/pq connection string for the source.
func (p PostgresSource) ConnectionString() (string, error) {
	if p.DSN != "" {
		return p.DSN, nil
	}
	if p.Host == "" || p.Port == 0 || p.User == "" || p.DBName == "" {
		return "", fmt.Errorf("missing required PostgreSQL connection parameters (host, port, user, dbname)")
	}
	sslMode := p.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, sslMode), nil
}

// Query returns the statement to run: TableOrQuery itself when it is a SELECT, otherwise a
// SELECT * over the table name. A schema-qualified name is quoted part by part.
func (p PostgresSource) Query() string {
	q := strings.TrimSpace(p.TableOrQuery)
	if !strings.Contains(q, " ") && !strings.HasPrefix(strings.ToUpper(q), "SELECT") {
		return "SELECT * FROM " + quoteTableName(q)
	}
	return q
}

func quoteTableName(name string) string {
	parts := strings.Split(name, ".")
	for i, part := range parts {
		parts[i] = pq.QuoteIdentifier(part)
	}
	return strings.Join(parts, ".")
}

// ReadPostgres connects to the source database, runs the query and returns the result as a
// table whose headers are the column names.
func ReadPostgres(ctx context.Context, src PostgresSource) (Table, error) {
	if strings.TrimSpace(src.TableOrQuery) == "" {
		return Table{}, fmt.Errorf("table_or_query is required for PostgreSQL sources")
	}
	connStr, err := src.ConnectionString()
	if err != nil {
		return Table{}, err
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return Table{}, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return Table{}, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}
	log.Printf("Connected to PostgreSQL source %s:%d/%s", src.Host, src.Port, src.DBName)
	return ReadQuery(ctx, db, src.Query())
}

// ReadQuery runs query on db and converts every value to its text form.
func ReadQuery(ctx context.Context, db *sql.DB, query string) (Table, error) {
	log.Printf("Executing lead import query: %s", query)
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return Table{}, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return Table{}, fmt.Errorf("failed to get columns for query result: %w", err)
	}
	if len(columns) == 0 {
		return Table{}, ErrEmptyInput
	}

	table := Table{Headers: columns, Rows: make([][]string, 0)}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range columns {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return Table{}, fmt.Errorf("failed to scan row %d: %w", len(table.Rows)+1, err)
		}
		row := make([]string, len(columns))
		for i, v := range values {
			row[i] = textValue(v)
		}
		table.Rows = append(table.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return Table{}, fmt.Errorf("error iterating rows: %w", err)
	}
	log.Printf("Read %d records from database query.", table.Len())
	return table, nil
}

func textValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(val)
	case string:
		return val
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprint(val)
	}
}
