package fspreprocessed

import (
	"github.com/sgtransit/ingest/plugin"
	"github.com/sgtransit/ingest/wiring"
)

func init() {
	plugin.Provide("preprocessedcache.fs", func() error {
		return wiring.RegisterPreprocessedCache("fs", Factory, false)
	})
}
