package log

// Components defines standard component names used in log output, so that
// log queries can filter one process or subsystem.
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentIngest    = "ingest"
	ComponentStaging   = "staging"
	ComponentWarehouse = "warehouse"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentSheets    = "sheets"
)
