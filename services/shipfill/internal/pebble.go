package internal

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/pebble/v2"
	"github.com/greymass/roborovski/libraries/logger"
)

// pebbleLogger routes Pebble's own logging into the pebble categories.
type pebbleLogger struct{}

var noisyPebbleMessages = []string{
	"sstable created",
	"sstable deleted",
	"WAL created",
	"WAL deleted",
	"MANIFEST created",
	"MANIFEST deleted",
	"all initial table stats loaded",
	"compacting",
	"flushing",
}

func (pebbleLogger) Infof(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	for _, s := range noisyPebbleMessages {
		if strings.Contains(msg, s) {
			return
		}
	}
	if idx := strings.Index(msg, "replayed"); idx != -1 {
		logger.Printf("pebble", "WAL recovery: %s", msg[idx:])
		return
	}
	logger.Printf("debug-pebble", "%s", msg)
}

func (pebbleLogger) Errorf(format string, args ...interface{}) {
	logger.Printf("pebble", "ERROR: "+format, args...)
}

func (pebbleLogger) Fatalf(format string, args ...interface{}) {
	logger.Fatal(format, args...)
}

func storeEventListener() *pebble.EventListener {
	return &pebble.EventListener{
		FlushEnd: func(info pebble.FlushInfo) {
			var size uint64
			for _, t := range info.Output {
				size += t.Size
			}
			logger.Printf("debug-pebble", "flush: %d memtables to %d files (%s) in %.1fs",
				info.Input, len(info.Output), logger.FormatBytes(int64(size)), info.Duration.Seconds())
		},
		CompactionEnd: func(info pebble.CompactionInfo) {
			var tables int
			for _, level := range info.Input {
				tables += len(level.Tables)
			}
			logger.Printf("debug-pebble", "compaction into L%d: %d to %d files in %.1fs",
				info.Output.Level, tables, len(info.Output.Tables), info.TotalDuration.Seconds())
		},
		WriteStallBegin: func(info pebble.WriteStallBeginInfo) {
			logger.Printf("pebble", "WARNING: write stall: %s", info.Reason)
		},
		WriteStallEnd: func() {
			logger.Printf("pebble", "write stall ended")
		},
		BackgroundError: func(err error) {
			logger.Printf("pebble", "ERROR: background error: %v", err)
		},
	}
}
