package proxy

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgproto3"
	_ "github.com/marcboeker/go-duckdb"

	"paimon-mirror/config"
	"paimon-mirror/metrics"
	"paimon-mirror/paimon"
	"paimon-mirror/paimonerr"
	"paimon-mirror/predicate"
	"paimon-mirror/storage"
)

// DuckDBProxy serves the warehouse over the Postgres wire protocol. Each
// table is a DuckDB view named database.table, refreshed before every query.
type DuckDBProxy struct {
	config   *config.Config
	db       *sql.DB
	listener net.Listener
	fsys     storage.Storage
	readOpts paimon.ReadOptions
	logger   *slog.Logger

	// mu serializes view refreshes
	mu sync.Mutex
}

func NewDuckDBProxy(ctx context.Context, cfg *config.Config, fsys storage.Storage, logger *slog.Logger) (*DuckDBProxy, error) {
	if logger == nil {
		logger = slog.Default()
	}
	readOpts, err := paimon.ReadOptionsFromConfig(cfg.Read)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("opening duckdb: %w", err)
	}

	if err := loadExtensions(ctx, db, cfg); err != nil {
		db.Close()
		return nil, fmt.Errorf("loading extensions: %w", err)
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Proxy.Port))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating listener: %w", err)
	}

	return &DuckDBProxy{
		config:   cfg,
		db:       db,
		listener: listener,
		fsys:     fsys,
		readOpts: readOpts,
		logger:   logger.With("component", "proxy", "addr", listener.Addr().String()),
	}, nil
}

func loadExtensions(ctx context.Context, db *sql.DB, cfg *config.Config) error {
	extensions := []string{"parquet"}
	if cfg.Storage.Type == "s3" {
		extensions = append(extensions, "httpfs")
	}
	for _, ext := range extensions {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("INSTALL %s; LOAD %s;", ext, ext)); err != nil {
			return fmt.Errorf("loading extension %s: %w", ext, err)
		}
	}
	if cfg.Storage.Type == "s3" {
		if _, err := db.ExecContext(ctx, s3SecretSQL(cfg)); err != nil {
			return fmt.Errorf("creating s3 secret: %w", err)
		}
	}
	return nil
}

// s3SecretSQL lets DuckDB read the warehouse bucket with the mirror's own
// credentials, or the default credential chain when none are configured.
func s3SecretSQL(cfg *config.Config) string {
	s3cfg := cfg.Storage.S3
	opts := "TYPE S3"
	if s3cfg.AccessKeyID != "" {
		opts += ", KEY_ID " + quoteLiteral(s3cfg.AccessKeyID) + ", SECRET " + quoteLiteral(s3cfg.SecretAccessKey)
	} else {
		opts += ", PROVIDER CREDENTIAL_CHAIN"
	}
	if s3cfg.Region != "" {
		opts += ", REGION " + quoteLiteral(s3cfg.Region)
	}
	if s3cfg.Endpoint != "" {
		opts += ", ENDPOINT " + quoteLiteral(s3cfg.Endpoint)
	}
	if s3cfg.UsePathStyle {
		opts += ", URL_STYLE 'path'"
	}
	return "CREATE OR REPLACE SECRET paimon_warehouse (" + opts + ")"
}

// Start accepts connections until ctx is done.
func (p *DuckDBProxy) Start(ctx context.Context) error {
	defer p.db.Close()
	go func() {
		<-ctx.Done()
		p.listener.Close()
	}()

	p.logger.Info("proxy listening")
	for {
		conn, err := p.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			p.logger.Warn("accept failed", "err", err)
			continue
		}

		go p.handleConnection(ctx, conn)
	}
}

func (p *DuckDBProxy) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	logger := p.logger.With("remote", conn.RemoteAddr().String())

	backend := pgproto3.NewBackend(conn, conn)

	startup, err := backend.ReceiveStartupMessage()
	if err != nil {
		logger.Debug("startup failed", "err", err)
		return
	}
	if _, ok := startup.(*pgproto3.SSLRequest); ok {
		// no TLS; the client retries in plain text
		if _, err := conn.Write([]byte{'N'}); err != nil {
			return
		}
		if _, err := backend.ReceiveStartupMessage(); err != nil {
			return
		}
	}

	backend.Send(&pgproto3.AuthenticationOk{})
	backend.Send(&pgproto3.ReadyForQuery{TxStatus: 'I'})
	if err := backend.Flush(); err != nil {
		return
	}

	for {
		msg, err := backend.Receive()
		if err != nil {
			return
		}

		switch msg := msg.(type) {
		case *pgproto3.Query:
			start := time.Now()
			if err := p.handleQuery(ctx, backend, msg.String); err != nil {
				metrics.ProxyQueries.WithLabelValues("error").Inc()
				logger.Debug("query failed", "err", err)
				p.sendError(backend, err)
				continue
			}
			metrics.ProxyQueries.WithLabelValues("ok").Inc()
			logger.Debug("query served", "duration", time.Since(start))

		case *pgproto3.Terminate:
			return
		}
	}
}

// listFiles serves pushdown rewrites from the current snapshot.
func (p *DuckDBProxy) listFiles(ctx context.Context, database, table string, filters []predicate.Filter) ([]string, *paimon.Schema, error) {
	return p.tableFiles(ctx, config.Table{Schema: database, Name: table}.Path(), filters)
}

func (p *DuckDBProxy) handleQuery(ctx context.Context, backend *pgproto3.Backend, query string) error {
	rewritten, ok, err := rewriteQuery(ctx, query, p.listFiles)
	if err != nil && !errors.Is(err, paimonerr.ErrNotFound) {
		return err
	}
	if ok {
		query = rewritten
	} else if err := p.RefreshViews(ctx); err != nil {
		return fmt.Errorf("refreshing views: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return err
	}

	oids := p.sendRowDescription(backend, columnTypes)

	values := make([]any, len(columnTypes))
	scanArgs := make([]any, len(columnTypes))
	for i := range values {
		scanArgs[i] = &values[i]
	}

	n := 0
	for rows.Next() {
		if err := rows.Scan(scanArgs...); err != nil {
			return err
		}

		dataRow := &pgproto3.DataRow{
			Values: make([][]byte, len(columnTypes)),
		}
		for i, val := range values {
			dataRow.Values[i] = formatValue(val, oids[i])
		}
		backend.Send(dataRow)
		n++
	}

	if err := rows.Err(); err != nil {
		return err
	}

	backend.Send(&pgproto3.CommandComplete{CommandTag: []byte(fmt.Sprintf("SELECT %d", n))})
	backend.Send(&pgproto3.ReadyForQuery{TxStatus: 'I'})
	return backend.Flush()
}

func (p *DuckDBProxy) sendRowDescription(backend *pgproto3.Backend, columns []*sql.ColumnType) []uint32 {
	oids := make([]uint32, len(columns))
	fields := make([]pgproto3.FieldDescription, len(columns))
	for i, col := range columns {
		oids[i] = mapDataTypeToOID(col.DatabaseTypeName())
		fields[i] = pgproto3.FieldDescription{
			Name:                 []byte(col.Name()),
			TableOID:             0,
			TableAttributeNumber: 0,
			DataTypeOID:          oids[i],
			DataTypeSize:         -1,
			TypeModifier:         -1,
			Format:               0,
		}
	}

	backend.Send(&pgproto3.RowDescription{Fields: fields})
	return oids
}

func (p *DuckDBProxy) sendError(backend *pgproto3.Backend, err error) {
	backend.Send(&pgproto3.ErrorResponse{
		Severity: "ERROR",
		Code:     "XX000",
		Message:  err.Error(),
	})
	backend.Send(&pgproto3.ReadyForQuery{TxStatus: 'I'})
	_ = backend.Flush()
}

// formatValue renders a value in the text format of its column OID.
func formatValue(val any, oid uint32) []byte {
	switch v := val.(type) {
	case nil:
		return nil
	case []byte:
		return []byte(`\x` + hex.EncodeToString(v))
	case bool:
		if v {
			return []byte("t")
		}
		return []byte("f")
	case time.Time:
		switch oid {
		case 1082:
			return []byte(v.Format("2006-01-02"))
		case 1184:
			return []byte(v.Format("2006-01-02 15:04:05.999999Z07:00"))
		default:
			return []byte(v.Format("2006-01-02 15:04:05.999999"))
		}
	default:
		return []byte(fmt.Sprintf("%v", v))
	}
}

// mapDataTypeToOID maps DuckDB's column type names, and the Postgres
// spellings some drivers report, to Postgres type OIDs.
func mapDataTypeToOID(databaseTypeName string) uint32 {
	switch databaseTypeName {
	case "BOOL", "BOOLEAN":
		return 16 // BOOL OID
	case "BLOB":
		return 17 // BYTEA OID
	case "INT8", "BIGINT", "HUGEINT", "UBIGINT":
		return 20 // BIGINT OID
	case "INT2", "SMALLINT", "TINYINT", "UTINYINT":
		return 21 // SMALLINT OID
	case "INT4", "INTEGER", "USMALLINT", "UINTEGER":
		return 23 // INTEGER OID
	case "FLOAT4", "FLOAT", "REAL":
		return 700 // REAL OID
	case "FLOAT8", "DOUBLE":
		return 701 // DOUBLE PRECISION OID
	case "VARCHAR", "TEXT":
		return 25 // TEXT OID
	case "DATE":
		return 1082 // DATE OID
	case "TIMESTAMP", "TIMESTAMP_MS", "TIMESTAMP_NS", "TIMESTAMP_S":
		return 1114 // TIMESTAMP OID
	case "TIMESTAMPTZ", "TIMESTAMP WITH TIME ZONE":
		return 1184 // TIMESTAMPTZ OID
	case "UUID":
		return 2950 // UUID OID
	default:
		return 25 // Default to TEXT OID
	}
}
