package archive

import "codeberg.org/farowl/co2mond/internal/errors"

const (
	// Configuration errors
	ErrInvalidConfig = errors.ErrorCode("archive_invalid_config")
	ErrInvalidDBPath = errors.ErrorCode("archive_invalid_db_path")

	// Storage errors
	ErrStorageAccess = errors.ErrorCode("archive_storage_access_failed")
	ErrStorageInit   = errors.ErrorCode("archive_storage_init_failed")
	ErrStorageClose  = errors.ErrorCode("archive_storage_close_failed")

	// Operation errors
	ErrInvalidRecord    = errors.ErrorCode("archive_invalid_record")
	ErrOperationTimeout = errors.ErrorCode("archive_operation_timeout")
	ErrQueryFailed      = errors.ErrorCode("archive_query_failed")
)
