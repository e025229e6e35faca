package cli

import (
	"fmt"
	"io"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// defaultFieldsHook adds fields to every entry that does not already set them.
type defaultFieldsHook struct {
	fields log.Fields
}

func (h defaultFieldsHook) Levels() []log.Level {
	return log.AllLevels
}

func (h defaultFieldsHook) Fire(e *log.Entry) error {
	for k, v := range h.fields {
		if _, ok := e.Data[k]; !ok {
			e.Data[k] = v
		}
	}
	return nil
}

func setupLogging(w io.Writer, level, format string) (string, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return "", err
	}
	switch format {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text", "":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return "", fmt.Errorf("unsupported log format %q", format)
	}
	log.SetOutput(w)
	log.SetLevel(lvl)

	runID := uuid.NewString()
	hooks := make(log.LevelHooks)
	hooks.Add(defaultFieldsHook{fields: log.Fields{"run_id": runID}})
	log.StandardLogger().ReplaceHooks(hooks)
	return runID, nil
}
