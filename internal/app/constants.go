package app

import "time"

const (
	Name             = "rild"
	SourceURL        = "https://git.skobk.in/skobkin/rilcore"
	ConfigFilename   = "config.yaml"
	DBFilename       = "journal.db"
	LogFilename      = "rild.log"
	TraceFilename    = "ipc.trace"
	NVDataFilename   = "nv_data.bin"
	JournalRetention = 30 * 24 * time.Hour
	JournalQueueSize = 512
	CloseTimeout     = 5 * time.Second
)
