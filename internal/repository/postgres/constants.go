package postgres

import (
	"fmt"
	"time"
)

const (
	poolHealthCheckPeriod = time.Minute
	poolMaxConnLifetime   = time.Hour
	poolMaxConnIdleTime   = 30 * time.Minute
	dbPingTimeout         = 5 * time.Second

	errKeyNotFound          = "key not found"
	errAssignmentNotFound   = "assignment not found"
	errDelegationNotFound   = "delegation not found"
	errTransactionNotFound  = "transaction not found"
	errKeyHasOutstanding    = "key already has an outstanding assignment"
	errDuplicateDelegation  = "an active delegation to this delegate already exists for the key"
	errAssignmentStateStale = "assignment is no longer in the expected state"
	errDelegationStateStale = "delegation is no longer in the expected state"

	errFailedParseDatabaseConfigFmt  = "failed to parse database config: %w"
	errFailedCreateConnectionPoolFmt = "failed to create connection pool: %w"
	errFailedPingDatabaseFmt         = "failed to ping database: %w"
	errFailedStartTransactionFmt     = "failed to start transaction: %w"
	errFailedCommitTransactionFmt    = "failed to commit transaction: %w"
	errFailedEnsureMigrationTableFmt = "failed to ensure migration table: %w"
	errFailedReadMigrationsFmt       = "failed to read migrations: %w"
	errFailedApplyMigrationFmt       = "failed to apply migration %s: %w"

	errFailedCreateKeyFmt      = "failed to create key: %w"
	errFailedGetKeyFmt         = "failed to get key: %w"
	errFailedListKeysFmt       = "failed to list keys: %w"
	errFailedScanKeyFmt        = "failed to scan key: %w"
	errFailedUpdateKeyStateFmt = "failed to update key state: %w"

	errFailedCreateAssignmentFmt = "failed to create assignment: %w"
	errFailedGetAssignmentFmt    = "failed to get assignment: %w"
	errFailedListAssignmentsFmt  = "failed to list assignments: %w"
	errFailedScanAssignmentFmt   = "failed to scan assignment: %w"
	errFailedUpdateAssignmentFmt = "failed to update assignment: %w"

	errFailedCreateDelegationFmt = "failed to create delegation: %w"
	errFailedGetDelegationFmt    = "failed to get delegation: %w"
	errFailedListDelegationsFmt  = "failed to list delegations: %w"
	errFailedScanDelegationFmt   = "failed to scan delegation: %w"
	errFailedUpdateDelegationFmt = "failed to update delegation: %w"

	errFailedAppendTransactionFmt  = "failed to append transaction: %w"
	errFailedGetTransactionFmt     = "failed to get transaction: %w"
	errFailedListTransactionsFmt   = "failed to list transactions: %w"
	errFailedScanTransactionFmt    = "failed to scan transaction: %w"
	errFailedUpdateTransactionFmt  = "failed to update transaction: %w"
	errFailedEncodeMetadataFmt     = "failed to encode transaction metadata: %w"
	errFailedDecodeMetadataFmt     = "failed to decode transaction metadata: %w"
)

var (
	errFailedAppendTransaction    = func(err error) error { return fmt.Errorf(errFailedAppendTransactionFmt, err) }
	errFailedApplyMigration       = func(name string, err error) error { return fmt.Errorf(errFailedApplyMigrationFmt, name, err) }
	errFailedCommitTransaction    = func(err error) error { return fmt.Errorf(errFailedCommitTransactionFmt, err) }
	errFailedCreateAssignment     = func(err error) error { return fmt.Errorf(errFailedCreateAssignmentFmt, err) }
	errFailedCreateConnectionPool = func(err error) error { return fmt.Errorf(errFailedCreateConnectionPoolFmt, err) }
	errFailedCreateDelegation     = func(err error) error { return fmt.Errorf(errFailedCreateDelegationFmt, err) }
	errFailedCreateKey            = func(err error) error { return fmt.Errorf(errFailedCreateKeyFmt, err) }
	errFailedDecodeMetadata       = func(err error) error { return fmt.Errorf(errFailedDecodeMetadataFmt, err) }
	errFailedEncodeMetadata       = func(err error) error { return fmt.Errorf(errFailedEncodeMetadataFmt, err) }
	errFailedEnsureMigrationTable = func(err error) error { return fmt.Errorf(errFailedEnsureMigrationTableFmt, err) }
	errFailedGetAssignment        = func(err error) error { return fmt.Errorf(errFailedGetAssignmentFmt, err) }
	errFailedGetDelegation        = func(err error) error { return fmt.Errorf(errFailedGetDelegationFmt, err) }
	errFailedGetKey               = func(err error) error { return fmt.Errorf(errFailedGetKeyFmt, err) }
	errFailedGetTransaction       = func(err error) error { return fmt.Errorf(errFailedGetTransactionFmt, err) }
	errFailedListAssignments      = func(err error) error { return fmt.Errorf(errFailedListAssignmentsFmt, err) }
	errFailedListDelegations      = func(err error) error { return fmt.Errorf(errFailedListDelegationsFmt, err) }
	errFailedListKeys             = func(err error) error { return fmt.Errorf(errFailedListKeysFmt, err) }
	errFailedListTransactions     = func(err error) error { return fmt.Errorf(errFailedListTransactionsFmt, err) }
	errFailedParseDatabaseConfig  = func(err error) error { return fmt.Errorf(errFailedParseDatabaseConfigFmt, err) }
	errFailedPingDatabase         = func(err error) error { return fmt.Errorf(errFailedPingDatabaseFmt, err) }
	errFailedReadMigrations       = func(err error) error { return fmt.Errorf(errFailedReadMigrationsFmt, err) }
	errFailedScanAssignment       = func(err error) error { return fmt.Errorf(errFailedScanAssignmentFmt, err) }
	errFailedScanDelegation       = func(err error) error { return fmt.Errorf(errFailedScanDelegationFmt, err) }
	errFailedScanKey              = func(err error) error { return fmt.Errorf(errFailedScanKeyFmt, err) }
	errFailedScanTransaction      = func(err error) error { return fmt.Errorf(errFailedScanTransactionFmt, err) }
	errFailedStartTransaction     = func(err error) error { return fmt.Errorf(errFailedStartTransactionFmt, err) }
	errFailedUpdateAssignment     = func(err error) error { return fmt.Errorf(errFailedUpdateAssignmentFmt, err) }
	errFailedUpdateDelegation     = func(err error) error { return fmt.Errorf(errFailedUpdateDelegationFmt, err) }
	errFailedUpdateKeyState       = func(err error) error { return fmt.Errorf(errFailedUpdateKeyStateFmt, err) }
	errFailedUpdateTransaction    = func(err error) error { return fmt.Errorf(errFailedUpdateTransactionFmt, err) }
)
