package fsraw

import (
	"github.com/sgtransit/ingest/plugin"
	"github.com/sgtransit/ingest/wiring"
)

func init() {
	plugin.Provide("rawcache.fs", func() error {
		return wiring.RegisterRawCache("fs", Factory, false)
	})
}
