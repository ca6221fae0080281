package logger

import (
	"os"

	"github.com/google/ldpush/schema"
	"github.com/op/go-logging"
)

var Log schema.Logger

func init() {
	format := logging.MustStringFormatter(
		`%{color}%{time:15:04:05.000} %{shortfile} %{shortfunc} ▶ %{level:.4s} %{id:03x}%{color:reset} %{message}`,
	)

	log := logging.MustGetLogger("ldpush")
	backend := logging.NewLogBackend(os.Stderr, "", 0)
	backendFormatter := logging.NewBackendFormatter(backend, format)
	leveled := logging.AddModuleLevel(backendFormatter)
	leveled.SetLevel(logging.WARNING, "ldpush")
	logging.SetBackend(leveled)
	Log = log
}

// Verbose raises the log level so per-line session chatter is emitted.
func Verbose() {
	logging.SetLevel(logging.DEBUG, "ldpush")
}
