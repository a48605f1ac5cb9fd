package main

// Blank-importing every concrete implementation package links its
// init() into the binary, which calls plugin.Provide to make it
// available to the loader - it does not yet register anything into
// wiring. Only an explicit plugin.Load, driven by the job config's
// plugins list, does that. This file is the one place in the whole
// module allowed to know about every concrete implementation; no other
// package imports these.
import (
	_ "github.com/sgtransit/ingest/cache/fspreprocessed"
	_ "github.com/sgtransit/ingest/cache/fsraw"

	_ "github.com/sgtransit/ingest/source/datamall"
	_ "github.com/sgtransit/ingest/source/gcsobject"
	_ "github.com/sgtransit/ingest/source/odata"
	_ "github.com/sgtransit/ingest/source/overpass"
	_ "github.com/sgtransit/ingest/source/scenario"

	_ "github.com/sgtransit/ingest/transform/backend/jsconstants"
	_ "github.com/sgtransit/ingest/transform/frontend/jsonpayload"
	_ "github.com/sgtransit/ingest/transform/frontend/ltaheadlesscsv"
	_ "github.com/sgtransit/ingest/transform/frontend/osmjson"
	_ "github.com/sgtransit/ingest/transform/optimizer/ltatrainbucket"
	_ "github.com/sgtransit/ingest/transform/optimizer/plain"
)
