package replication

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pglogrepl"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgproto3"

	"paimon-mirror/config"
	"paimon-mirror/paimonerr"
	"paimon-mirror/schema"
	"paimon-mirror/storage"
)

const standbyMessageTimeout = 10 * time.Second

// Replicator streams a publication through a logical replication slot into
// the warehouse.
type Replicator struct {
	config          *config.Config
	dbConn          *pgx.Conn
	replicationConn *pgconn.PgConn
	applier         *Applier
	schemaManager   *schema.Manager
	logger          *slog.Logger
}

func connString(cfg *config.Config) string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s",
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.Database,
	)
}

func NewReplicator(ctx context.Context, cfg *config.Config, fsys storage.Storage, logger *slog.Logger) (*Replicator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// Create a regular connection for querying the database
	dbConn, err := pgx.Connect(ctx, connString(cfg))
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	schemaManager := schema.NewSchemaManager(dbConn)

	// Initialize schemas for configured tables
	for _, table := range cfg.Tables {
		if err := schemaManager.InitializeSchema(ctx, table.Schema, table.Name); err != nil {
			dbConn.Close(ctx)
			return nil, fmt.Errorf("initializing schema for %s.%s: %w",
				table.Schema, table.Name, err)
		}
	}

	replicationConn, err := pgconn.Connect(ctx, connString(cfg)+"?replication=database")
	if err != nil {
		dbConn.Close(ctx)
		return nil, fmt.Errorf("connecting to postgres for replication: %w", err)
	}

	return &Replicator{
		config:          cfg,
		dbConn:          dbConn,
		replicationConn: replicationConn,
		applier:         NewApplier(cfg, fsys, schemaManager, logger),
		schemaManager:   schemaManager,
		logger:          logger.With("component", "replicator", "slot", cfg.Postgres.Slot),
	}, nil
}

// Start runs until ctx is done or replication fails.
func (r *Replicator) Start(ctx context.Context) error {
	defer r.dbConn.Close(context.Background())
	defer r.replicationConn.Close(context.Background())

	if err := r.createReplicationSlot(ctx); err != nil {
		return fmt.Errorf("creating replication slot: %w", err)
	}

	err := r.startReplication(ctx)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (r *Replicator) createReplicationSlot(ctx context.Context) error {
	_, err := pglogrepl.CreateReplicationSlot(ctx, r.replicationConn, r.config.Postgres.Slot, "pgoutput", pglogrepl.CreateReplicationSlotOptions{
		Mode: pglogrepl.LogicalReplication,
	})
	if err != nil {
		var pgerr *pgconn.PgError
		if errors.As(err, &pgerr) && pgerr.Code == "42710" {
			// Duplicate object error, slot already exists
			r.logger.Info("resuming replication slot")
			return nil
		}
		return fmt.Errorf("error creating replication slot: %w", err)
	}
	r.logger.Info("created replication slot")
	return nil
}

func (r *Replicator) startReplication(ctx context.Context) error {
	// LSN 0 resumes from the slot's confirmed flush position.
	err := pglogrepl.StartReplication(ctx, r.replicationConn, r.config.Postgres.Slot, 0, pglogrepl.StartReplicationOptions{
		PluginArgs: []string{
			"proto_version '2'",
			"messages 'true'",
			fmt.Sprintf("publication_names '%s'", r.config.Postgres.Publication),
		},
	})
	if err != nil {
		return fmt.Errorf("starting replication: %w", err)
	}

	return r.handleReplication(ctx)
}

// handleReplication acknowledges only positions whose changes are committed
// to the warehouse, so a restart replays any transaction that was not.
func (r *Replicator) handleReplication(ctx context.Context) error {
	var flushedLSN pglogrepl.LSN
	nextStandbyMessageDeadline := time.Now().Add(standbyMessageTimeout)

	for {
		if time.Now().After(nextStandbyMessageDeadline) {
			err := pglogrepl.SendStandbyStatusUpdate(ctx, r.replicationConn, pglogrepl.StandbyStatusUpdate{
				WALWritePosition: flushedLSN,
				WALFlushPosition: flushedLSN,
				WALApplyPosition: flushedLSN,
			})
			if err != nil {
				return fmt.Errorf("SendStandbyStatusUpdate failed: %w", err)
			}
			r.logger.Debug("sent standby status", "flushed_lsn", flushedLSN)
			nextStandbyMessageDeadline = time.Now().Add(standbyMessageTimeout)
		}

		recvCtx, cancel := context.WithDeadline(ctx, nextStandbyMessageDeadline)
		rawMsg, err := r.replicationConn.ReceiveMessage(recvCtx)
		cancel()
		if err != nil {
			if pgconn.Timeout(err) && ctx.Err() == nil {
				continue
			}
			return fmt.Errorf("ReceiveMessage failed: %w", err)
		}

		if errMsg, ok := rawMsg.(*pgproto3.ErrorResponse); ok {
			return fmt.Errorf("received Postgres WAL error: %+v", errMsg)
		}

		msg, ok := rawMsg.(*pgproto3.CopyData)
		if !ok {
			r.logger.Debug("unexpected message", "type", fmt.Sprintf("%T", rawMsg))
			continue
		}

		if len(msg.Data) == 0 {
			return fmt.Errorf("empty CopyData message received")
		}

		// The first byte of msg.Data indicates the message type
		switch msg.Data[0] {
		case pglogrepl.PrimaryKeepaliveMessageByteID: // 'k'
			pkm, err := pglogrepl.ParsePrimaryKeepaliveMessage(msg.Data[1:])
			if err != nil {
				return fmt.Errorf("ParsePrimaryKeepaliveMessage failed: %w", err)
			}
			r.logger.Debug("primary keepalive", "server_wal_end", pkm.ServerWALEnd, "reply_requested", pkm.ReplyRequested)
			// between transactions everything up to the server's WAL end
			// has been seen
			if !r.applier.InTransaction() && pkm.ServerWALEnd > flushedLSN {
				flushedLSN = pkm.ServerWALEnd
			}
			if pkm.ReplyRequested {
				nextStandbyMessageDeadline = time.Time{}
			}

		case pglogrepl.XLogDataByteID: // 'w'
			xld, err := pglogrepl.ParseXLogData(msg.Data[1:])
			if err != nil {
				return fmt.Errorf("ParseXLogData failed: %w", err)
			}

			logicalMsg, err := pglogrepl.ParseV2(xld.WALData, false)
			if err != nil {
				return fmt.Errorf("parsing logical replication message: %w", err)
			}

			committed, err := r.applier.Apply(ctx, logicalMsg)
			if errors.Is(err, paimonerr.ErrUnsupported) {
				r.logger.Warn("skipping change", "err", err, "wal_start", xld.WALStart)
				continue
			}
			if err != nil {
				return err
			}
			if c, ok := logicalMsg.(*pglogrepl.CommitMessage); ok && committed {
				flushedLSN = c.TransactionEndLSN
			}

		default:
			return fmt.Errorf("unknown replication message type: %c", msg.Data[0])
		}
	}
}
