package replication

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/jackc/pglogrepl"
	"github.com/jackc/pgx/v5/pgtype"

	"paimon-mirror/config"
	"paimon-mirror/metrics"
	"paimon-mirror/paimon"
	"paimon-mirror/paimonerr"
	"paimon-mirror/schema"
	"paimon-mirror/storage"
)

// Applier turns decoded pgoutput messages into table commits. Inserts are
// buffered per transaction and committed when the transaction commits, one
// snapshot per table touched. Tables that are not configured are ignored.
//
// Delivery is at least once. A transaction that touches several tables
// commits them one at a time; if a later table fails, the earlier ones stay
// committed while the transaction is not acknowledged, so a restart replays
// it and their rows are mirrored twice.
//
// An Applier is not safe for concurrent use.
type Applier struct {
	cfg     *config.Config
	fsys    storage.Storage
	schemas *schema.Manager
	typeMap *pgtype.Map
	logger  *slog.Logger

	relations map[uint32]*pglogrepl.RelationMessageV2
	tables    map[uint32]*paimon.Table

	pending map[uint32][]map[string]any
	inTxn   bool
}

func NewApplier(cfg *config.Config, fsys storage.Storage, schemas *schema.Manager, logger *slog.Logger) *Applier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Applier{
		cfg:       cfg,
		fsys:      fsys,
		schemas:   schemas,
		typeMap:   pgtype.NewMap(),
		logger:    logger.With("component", "applier"),
		relations: make(map[uint32]*pglogrepl.RelationMessageV2),
		tables:    make(map[uint32]*paimon.Table),
		pending:   make(map[uint32][]map[string]any),
	}
}

// InTransaction reports whether a transaction has begun and not committed.
func (a *Applier) InTransaction() bool { return a.inTxn }

// Apply handles one message. It reports whether the message committed a
// transaction, after which its changes are durable in the warehouse.
func (a *Applier) Apply(ctx context.Context, msg pglogrepl.Message) (bool, error) {
	switch m := msg.(type) {
	case *pglogrepl.RelationMessageV2:
		metrics.ReplicationMessages.WithLabelValues("relation").Inc()
		return false, a.handleRelation(ctx, m)

	case *pglogrepl.BeginMessage:
		metrics.ReplicationMessages.WithLabelValues("begin").Inc()
		a.inTxn = true
		return false, nil

	case *pglogrepl.CommitMessage:
		metrics.ReplicationMessages.WithLabelValues("commit").Inc()
		a.inTxn = false
		if err := a.flush(ctx); err != nil {
			return false, err
		}
		a.logger.Debug("transaction committed", "commit_lsn", m.CommitLSN, "end_lsn", m.TransactionEndLSN)
		return true, nil

	case *pglogrepl.InsertMessageV2:
		metrics.ReplicationMessages.WithLabelValues("insert").Inc()
		return false, a.handleInsert(m)

	case *pglogrepl.UpdateMessageV2:
		metrics.ReplicationMessages.WithLabelValues("update").Inc()
		return false, a.unsupported("update", m.RelationID)

	case *pglogrepl.DeleteMessageV2:
		metrics.ReplicationMessages.WithLabelValues("delete").Inc()
		return false, a.unsupported("delete", m.RelationID)

	case *pglogrepl.TruncateMessageV2:
		metrics.ReplicationMessages.WithLabelValues("truncate").Inc()
		return false, paimonerr.Unsupported("truncate of %d relations", m.RelationNum)

	default:
		metrics.ReplicationMessages.WithLabelValues("other").Inc()
		return false, nil
	}
}

func (a *Applier) handleRelation(ctx context.Context, m *pglogrepl.RelationMessageV2) error {
	a.relations[m.RelationID] = m
	ts, err := a.schemas.HandleRelationMessage(m)
	if err != nil {
		return fmt.Errorf("handling relation message: %w", err)
	}

	tc, ok := a.cfg.FindTable(ts.Schema, ts.Name)
	if !ok {
		delete(a.tables, m.RelationID)
		a.logger.Debug("relation not mirrored", "table", ts.QualifiedName())
		return nil
	}

	want, err := schema.ToPaimon(ts, tc, a.cfg.Commit.FileFormat)
	if err != nil {
		return err
	}
	if t, ok := a.tables[m.RelationID]; ok {
		if !slices.Equal(t.Schema().FieldNames(), want.FieldNames()) {
			delete(a.tables, m.RelationID)
			return paimonerr.Unsupported("schema change on %s", ts.QualifiedName())
		}
		return nil
	}

	t, err := a.openTable(ctx, tc, want)
	if err != nil {
		return fmt.Errorf("opening table %s: %w", ts.QualifiedName(), err)
	}
	a.tables[m.RelationID] = t
	return nil
}

// openTable opens the table of a configured relation, creating it from the
// relation's schema on first sight.
func (a *Applier) openTable(ctx context.Context, tc config.Table, want *paimon.Schema) (*paimon.Table, error) {
	root := tc.Path()
	if _, err := paimon.LatestSchema(ctx, a.fsys, root); errors.Is(err, paimonerr.ErrNotFound) {
		if err := paimon.CreateTable(ctx, a.fsys, root, want); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	t, err := paimon.OpenTable(ctx, a.fsys, root, paimon.TableOptions{
		Name:       tc.Schema + "." + tc.Name,
		Buckets:    tc.Buckets,
		CommitUser: a.cfg.Commit.User,
		Logger:     a.logger,

		ManifestCompression: a.cfg.Read.MetadataCompressionCodec,
	})
	if err != nil {
		return nil, err
	}
	if !slices.Equal(t.Schema().FieldNames(), want.FieldNames()) {
		return nil, paimonerr.Unsupported("stored schema of %s has fields %v, relation has %v",
			root, t.Schema().FieldNames(), want.FieldNames())
	}
	return t, nil
}

func (a *Applier) handleInsert(m *pglogrepl.InsertMessageV2) error {
	t, ok := a.tables[m.RelationID]
	if !ok {
		return nil
	}
	rel, ok := a.relations[m.RelationID]
	if !ok {
		return fmt.Errorf("unknown relation ID %d", m.RelationID)
	}

	record, err := a.mapTupleToRecord(m.Tuple, rel, t.Schema())
	if err != nil {
		return err
	}

	a.pending[m.RelationID] = append(a.pending[m.RelationID], record)
	return nil
}

func (a *Applier) unsupported(kind string, relationID uint32) error {
	if _, ok := a.tables[relationID]; !ok {
		return nil
	}
	rel := a.relations[relationID]
	return paimonerr.Unsupported("%s on %s.%s", kind, rel.Namespace, rel.RelationName)
}

// flush commits the rows buffered by the transaction, relations in id order.
func (a *Applier) flush(ctx context.Context) error {
	byRel := a.pending
	a.pending = make(map[uint32][]map[string]any)

	ids := make([]uint32, 0, len(byRel))
	for id := range byRel {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		t, ok := a.tables[id]
		if !ok {
			continue
		}
		rows := byRel[id]
		snapshotID, err := t.Insert(ctx, rows)
		if err != nil {
			return fmt.Errorf("committing %d rows to %s: %w", len(rows), t.Name(), err)
		}
		a.logger.Info("rows mirrored", "table", t.Name(), "rows", len(rows), "snapshot_id", snapshotID)
	}
	return nil
}

// mapTupleToRecord decodes a tuple. Columns stored as STRING or DECIMAL keep
// Postgres' text form so types such as uuid, json and numeric survive
// unchanged.
func (a *Applier) mapTupleToRecord(tuple *pglogrepl.TupleData, rel *pglogrepl.RelationMessageV2, s *paimon.Schema) (map[string]any, error) {
	record := make(map[string]any)
	if tuple == nil {
		return record, nil
	}
	for idx, col := range tuple.Columns {
		if idx >= len(rel.Columns) {
			return nil, fmt.Errorf("tuple has %d columns, relation %d has %d", len(tuple.Columns), rel.RelationID, len(rel.Columns))
		}
		colName := rel.Columns[idx].Name
		dataType := rel.Columns[idx].DataType

		switch col.DataType {
		case 'n': // null
			record[colName] = nil
		case 'u': // unchanged TOAST data
			record[colName] = nil
		case 't', 'b':
			formatCode := int16(pgtype.TextFormatCode)
			if col.DataType == 'b' {
				formatCode = pgtype.BinaryFormatCode
			}
			if f, ok := s.Field(colName); ok && formatCode == pgtype.TextFormatCode &&
				(f.Type.Root == paimon.TypeString || f.Type.Root == paimon.TypeDecimal) {
				record[colName] = string(col.Data)
				continue
			}
			val, err := decodeColumnData(a.typeMap, col.Data, dataType, formatCode)
			if err != nil {
				return nil, fmt.Errorf("decoding column data for %s: %w", colName, err)
			}
			record[colName] = val
		default:
			return nil, fmt.Errorf("unknown column data type: %v", col.DataType)
		}
	}
	return record, nil
}

func decodeColumnData(typeMap *pgtype.Map, data []byte, dataTypeOID uint32, formatCode int16) (any, error) {
	dataType, ok := typeMap.TypeForOID(dataTypeOID)
	if !ok {
		return string(data), nil
	}

	value, err := dataType.Codec.DecodeValue(typeMap, dataTypeOID, formatCode, data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode value for OID %d: %w", dataTypeOID, err)
	}
	return value, nil
}
