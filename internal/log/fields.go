package log

// Common field names for structured logging
const (
	FieldComponent = "component"
	FieldRequestID = "request_id"
	FieldKind      = "kind"
	FieldOwnerID   = "owner_id"
	FieldRecordID  = "record_id"
	FieldEventID   = "event_id"
	FieldOperation = "operation"
	FieldError     = "error"
)

// Components defines standard component names
const (
	ComponentApp         = "app"
	ComponentCLI         = "cli"
	ComponentServer      = "server"
	ComponentStorage     = "storage"
	ComponentCoordinator = "coordinator"
	ComponentRemote      = "remote"
	ComponentAMQP        = "amqp"
	ComponentWorker      = "worker"
	ComponentSheets      = "sheets"
)
