package dataset

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/YuminosukeSato/churn/pkg/errors"
	"github.com/YuminosukeSato/churn/pkg/log"
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// TelcoDatabase is the schema holding the customer tables.
const TelcoDatabase = "telco_churn"

// TelcoQuery joins customers with its lookup tables so each row carries the
// readable contract, payment and internet service names.
const TelcoQuery = `SELECT *
FROM customers
JOIN payment_types USING (payment_type_id)
JOIN internet_service_types USING (internet_service_type_id)
JOIN contract_types USING (contract_type_id)`

// Credentials identify a database login.
type Credentials struct {
	User     string
	Password string
	Host     string
}

// MySQLDSN builds a go-sql-driver DSN for database on the credentials' host.
func MySQLDSN(c Credentials, database string) string {
	cfg := mysql.NewConfig()
	cfg.User = c.User
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = c.Host
	cfg.DBName = database
	return cfg.FormatDSN()
}

// PostgresDSN builds a lib/pq connection URL.
func PostgresDSN(c Credentials, database string) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host,
		Path:     "/" + database,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// SQLSource runs a query through sqlx and returns each row as a RawRecord.
// Driver is "mysql" or "postgres".
type SQLSource struct {
	Driver string
	DSN    string
	Query  string
}

// NewSQLSource builds a source for driver against the telco database.
func NewSQLSource(driver string, c Credentials) (*SQLSource, error) {
	var dsn string
	switch driver {
	case "mysql":
		dsn = MySQLDSN(c, TelcoDatabase)
	case "postgres":
		dsn = PostgresDSN(c, TelcoDatabase)
	default:
		return nil, errors.NewConfigurationError("source.driver", "must be mysql or postgres", driver)
	}
	return &SQLSource{Driver: driver, DSN: dsn, Query: TelcoQuery}, nil
}

// FetchAll implements Source.
func (s *SQLSource) FetchAll(ctx context.Context) ([]RawRecord, error) {
	logger := log.GetLoggerWithName("dataset").With(log.SourceKey, s.Driver)
	start := time.Now()

	db, err := sqlx.ConnectContext(ctx, s.Driver, s.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "connect %s", s.Driver)
	}
	defer db.Close()

	query := s.Query
	if query == "" {
		query = TelcoQuery
	}
	rows, err := db.QueryxContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "query customers")
	}
	defer rows.Close()

	var records []RawRecord
	for rows.Next() {
		row := make(map[string]interface{})
		if err := rows.MapScan(row); err != nil {
			return nil, errors.Wrap(err, "scan customer row")
		}
		records = append(records, toRaw(row))
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate customer rows")
	}

	logger.Info("fetched rows",
		log.SamplesKey, len(records),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return records, nil
}

// toRaw converts driver values to text. MySQL returns most columns as []byte;
// NULL becomes the empty string.
func toRaw(row map[string]interface{}) RawRecord {
	rec := make(RawRecord, len(row))
	for k, v := range row {
		rec[k] = textValue(v)
	}
	return rec
}

func textValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(t)
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return fmt.Sprint(t)
	}
}
