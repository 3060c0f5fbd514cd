package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// ============================================
// Standard Tracing Fields (Context level)
// These fields are propagated through the call chain
// ============================================

const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldJobID is the background job ID
	FieldJobID = "job_id"

	// FieldJobType is the background job type (erp_sync, pricing_recalculation)
	FieldJobType = "job_type"

	// FieldLogID is the sync or recalculation log record ID
	FieldLogID = "log_id"

	// FieldWorkerID identifies the worker holding a job lease
	FieldWorkerID = "worker_id"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldSource is the catalog source name
	FieldSource = "source"

	// FieldUserID is the admin user that triggered the operation
	FieldUserID = "user_id"
)

// ============================================
// Catalog Fields
// ============================================

const (
	// FieldERPID is the ERP identifier of a catalog record
	FieldERPID = "erp_id"

	// FieldEntity is the ERP entity being fetched (product, brand, ...)
	FieldEntity = "entity"
)

// ============================================
// Standard Metric Fields (Entry level)
// These fields are used for aggregation and alerting
// ============================================

const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldSize is the data size in bytes
	FieldSize = "size"

	// FieldStatus is the operation status
	FieldStatus = "status"

	// FieldProgress is the job progress percentage
	FieldProgress = "progress"

	// FieldErrorCount is the number of per-record failures
	FieldErrorCount = "error_count"
)
